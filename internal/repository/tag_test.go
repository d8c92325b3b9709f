package repository

import (
	"context"
	"testing"

	"blango/internal/cache"
	"blango/internal/filters"
	"blango/internal/models"
	"blango/internal/testutil"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTagRepository_GetOrCreateIsCaseInsensitive(t *testing.T) {
	db := testutil.NewSQLiteDB(t)
	repo := NewTagRepository(db)
	ctx := context.Background()

	a, err := repo.GetOrCreate(ctx, "Go")
	require.NoError(t, err)
	b, err := repo.GetOrCreate(ctx, "go")
	require.NoError(t, err)
	assert.Equal(t, a.ID, b.ID)
	assert.Equal(t, "go", b.Value)

	var n int64
	db.Model(&models.Tag{}).Count(&n)
	assert.Equal(t, int64(1), n)

	_, err = repo.GetOrCreate(ctx, "   ")
	assert.True(t, models.IsCode(err, models.CodeValidation))
}

func TestTagRepository_ResolveDeduplicates(t *testing.T) {
	db := testutil.NewSQLiteDB(t)
	repo := NewTagRepository(db)

	tags, err := repo.Resolve(context.Background(), []string{"Web", "go", "WEB", ""})
	require.NoError(t, err)
	require.Len(t, tags, 2)
	assert.Equal(t, "web", tags[0].Value)
	assert.Equal(t, "go", tags[1].Value)
}

func TestTagRepository_CRUD(t *testing.T) {
	db := testutil.NewSQLiteDB(t)
	repo := NewTagRepository(db)
	ctx := context.Background()

	zeta := &models.Tag{Value: "Zeta"}
	require.NoError(t, repo.Create(ctx, zeta))
	require.NoError(t, repo.Create(ctx, &models.Tag{Value: "alpha"}))

	err := repo.Create(ctx, &models.Tag{Value: "ZETA"})
	var appErr *models.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, []string{MsgTagTaken}, appErr.Fields["value"])

	tags, total, err := repo.List(ctx, filters.Page{Number: 1, Size: 10})
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	assert.Equal(t, "alpha", tags[0].Value)

	all, err := repo.All(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	zeta.Value = "Omega"
	require.NoError(t, repo.Update(ctx, zeta))
	got, err := repo.GetByID(ctx, zeta.ID)
	require.NoError(t, err)
	assert.Equal(t, "omega", got.Value)

	author := testutil.CreateUser(t, db, "a@example.com")
	testutil.CreatePost(t, db, author, "tagged", testutil.WithTags(*got))
	require.NoError(t, repo.Delete(ctx, zeta.ID))

	var links int64
	db.Table("post_tags").Count(&links)
	assert.Zero(t, links)
	assert.True(t, models.IsCode(repo.Delete(ctx, zeta.ID), models.CodeNotFound))
	_, err = repo.GetByID(ctx, zeta.ID)
	assert.True(t, models.IsCode(err, models.CodeNotFound))
}

func TestTagRepository_AllIsCachedUntilWrite(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	cache.SetClient(rdb)
	t.Cleanup(func() {
		cache.SetClient(nil)
		_ = rdb.Close()
	})

	db := testutil.NewSQLiteDB(t)
	repo := NewTagRepository(db)
	ctx := context.Background()
	require.NoError(t, repo.Create(ctx, &models.Tag{Value: "web"}))

	all, err := repo.All(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.True(t, mr.Exists(cache.TagListKey()))

	// A row written behind the repository's back stays hidden until the entry goes.
	require.NoError(t, db.Create(&models.Tag{Value: "db"}).Error)
	all, err = repo.All(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)

	require.NoError(t, repo.Create(ctx, &models.Tag{Value: "go"}))
	assert.False(t, mr.Exists(cache.TagListKey()))
	all, err = repo.All(ctx)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []string{"db", "go", "web"}, []string{all[0].Value, all[1].Value, all[2].Value})
}
