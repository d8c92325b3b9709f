package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	"blango/internal/filters"
	"blango/internal/models"
	"blango/internal/testutil"

	"github.com/DATA-DOG/go-sqlmock"
	sq "github.com/Masterminds/squirrel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func slugs(posts []models.Post) []string {
	out := make([]string, 0, len(posts))
	for _, p := range posts {
		out = append(out, p.Slug)
	}
	return out
}

func TestPostRepository_CreateSQL(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewPostRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO "posts"`)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))
	mock.ExpectCommit()

	post := &models.Post{AuthorID: 1, Title: "Test Post", Slug: "test-post", Summary: "s", Content: "Content"}
	require.NoError(t, repo.Create(context.Background(), post))
	assert.Equal(t, models.DefaultPPOI, post.PPOI)
	assert.NoError(t, mock.ExpectationsWereMet())
}

type listFixture struct {
	author, other, staff *models.User
	now                  time.Time
	repo                 PostRepository
}

func newListFixture(t *testing.T) listFixture {
	t.Helper()
	db := testutil.NewSQLiteDB(t)
	now := time.Now().UTC().Truncate(time.Second)
	f := listFixture{
		author: testutil.CreateUser(t, db, "author@example.com"),
		other:  testutil.CreateUser(t, db, "other@example.com"),
		staff:  testutil.CreateUser(t, db, "staff@example.com", testutil.Staff()),
		now:    now,
		repo:   NewPostRepository(db),
	}
	tags, err := NewTagRepository(db).Resolve(context.Background(), []string{"Go", "web"})
	require.NoError(t, err)

	testutil.CreatePost(t, db, f.author, "published", testutil.PublishedAt(testutil.Ptr(now.Add(-2*time.Hour))), testutil.WithTags(tags[0]))
	testutil.CreatePost(t, db, f.author, "future", testutil.PublishedAt(testutil.Ptr(now.Add(24*time.Hour))))
	testutil.CreatePost(t, db, f.author, "draft", testutil.PublishedAt(nil))
	testutil.CreatePost(t, db, f.other, "old", testutil.PublishedAt(testutil.Ptr(now.AddDate(0, 0, -10))), testutil.WithTags(tags...))
	return f
}

func TestPostRepository_ListVisibility(t *testing.T) {
	f := newListFixture(t)
	ctx := context.Background()
	page := filters.Page{Number: 1, Size: 100}

	posts, total, err := f.repo.List(ctx, PostQuery{Now: f.now, Page: page})
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	assert.ElementsMatch(t, []string{"published", "old"}, slugs(posts))
	for _, p := range posts {
		assert.True(t, p.IsPublished(f.now))
	}

	posts, _, err = f.repo.List(ctx, PostQuery{Viewer: filters.Viewer{ID: f.author.ID}, Now: f.now, Page: page})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"published", "future", "draft", "old"}, slugs(posts))

	posts, _, err = f.repo.List(ctx, PostQuery{Viewer: filters.Viewer{ID: f.other.ID}, Now: f.now, Page: page})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"published", "old"}, slugs(posts))

	posts, _, err = f.repo.List(ctx, PostQuery{Viewer: filters.Viewer{ID: f.staff.ID, IsStaff: true}, Now: f.now, Page: page})
	require.NoError(t, err)
	assert.Len(t, posts, 4)
}

func TestPostRepository_ListFiltersAndOrdering(t *testing.T) {
	f := newListFixture(t)
	ctx := context.Background()
	page := filters.Page{Number: 1, Size: 100}

	posts, _, err := f.repo.List(ctx, PostQuery{Now: f.now, Page: page, Filter: filters.PostFilter{Tags: []string{"WEB"}}})
	require.NoError(t, err)
	assert.Equal(t, []string{"old"}, slugs(posts))
	assert.Equal(t, []string{"go", "web"}, posts[0].TagValues())

	posts, _, err = f.repo.List(ctx, PostQuery{Now: f.now, Page: page, Filter: filters.PostFilter{AuthorEmail: "AUTHOR@"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"published"}, slugs(posts))

	posts, _, err = f.repo.List(ctx, PostQuery{Now: f.now, Page: page, Ordering: filters.Ordering("published_at")})
	require.NoError(t, err)
	assert.Equal(t, []string{"old", "published"}, slugs(posts))

	posts, total, err := f.repo.List(ctx, PostQuery{Now: f.now, Page: filters.Page{Number: 2, Size: 1}, Ordering: filters.Ordering("slug")})
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	assert.Equal(t, []string{"published"}, slugs(posts))
}

func TestPostRepository_ListWindow(t *testing.T) {
	f := newListFixture(t)
	window, err := filters.Window(filters.WindowWeek, f.now, time.UTC)
	require.NoError(t, err)

	posts, _, err := f.repo.List(context.Background(), PostQuery{
		Viewer: filters.Viewer{ID: f.staff.ID, IsStaff: true},
		Now:    f.now,
		Extra:  []sq.Sqlizer{window},
		Page:   filters.Page{Number: 1, Size: 100},
	})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"published", "future"}, slugs(posts))
}

func TestPostRepository_UpdateReplacesTags(t *testing.T) {
	db := testutil.NewSQLiteDB(t)
	repo := NewPostRepository(db)
	tagRepo := NewTagRepository(db)
	ctx := context.Background()

	author := testutil.CreateUser(t, db, "a@example.com")
	tags, err := tagRepo.Resolve(ctx, []string{"go", "web"})
	require.NoError(t, err)
	post := testutil.CreatePost(t, db, author, "p", testutil.WithTags(tags...))

	got, err := repo.GetBySlug(ctx, "p")
	require.NoError(t, err)
	assert.Equal(t, []string{"go", "web"}, got.TagValues())

	newTags, err := tagRepo.Resolve(ctx, []string{"Rust"})
	require.NoError(t, err)
	got.Title = "Renamed"
	got.Tags = newTags
	require.NoError(t, repo.Update(ctx, got))

	got, err = repo.GetByID(ctx, post.ID)
	require.NoError(t, err)
	assert.Equal(t, "Renamed", got.Title)
	assert.Equal(t, []string{"rust"}, got.TagValues())
}

func TestPostRepository_DuplicateSlug(t *testing.T) {
	db := testutil.NewSQLiteDB(t)
	repo := NewPostRepository(db)
	author := testutil.CreateUser(t, db, "a@example.com")
	testutil.CreatePost(t, db, author, "taken")

	err := repo.Create(context.Background(), &models.Post{AuthorID: author.ID, Title: "t", Slug: "taken", Summary: "s", Content: "c"})
	var appErr *models.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, []string{MsgSlugTaken}, appErr.Fields["slug"])

	exists, err := repo.SlugExists(context.Background(), "taken", 0)
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestPostRepository_DeleteRemovesComments(t *testing.T) {
	db := testutil.NewSQLiteDB(t)
	repo := NewPostRepository(db)
	ctx := context.Background()
	author := testutil.CreateUser(t, db, "a@example.com")
	post := testutil.CreatePost(t, db, author, "p")
	require.NoError(t, db.Create(&models.Comment{CreatorID: author.ID, Content: "c", ObjectType: models.CommentTargetPost, ObjectID: post.ID}).Error)

	require.NoError(t, repo.Delete(ctx, post.ID))

	var n int64
	db.Model(&models.Comment{}).Count(&n)
	assert.Zero(t, n)
	assert.True(t, models.IsCode(repo.Delete(ctx, post.ID), models.CodeNotFound))
}

func TestPostRepository_Recent(t *testing.T) {
	db := testutil.NewSQLiteDB(t)
	repo := NewPostRepository(db)
	author := testutil.CreateUser(t, db, "a@example.com")
	now := time.Now().UTC()

	var current *models.Post
	for i, slug := range []string{"p1", "p2", "p3", "p4", "p5", "p6", "p7"} {
		p := testutil.CreatePost(t, db, author, slug, testutil.PublishedAt(testutil.Ptr(now.Add(-time.Duration(10-i)*time.Hour))))
		if slug == "p7" {
			current = p
		}
	}
	testutil.CreatePost(t, db, author, "later", testutil.PublishedAt(testutil.Ptr(now.Add(time.Hour))))

	recent, err := repo.Recent(context.Background(), current.ID, 5, now)
	require.NoError(t, err)
	assert.Equal(t, []string{"p6", "p5", "p4", "p3", "p2"}, slugs(recent))
}

func TestPostRepository_UpdateHeroImage(t *testing.T) {
	db := testutil.NewSQLiteDB(t)
	repo := NewPostRepository(db)
	author := testutil.CreateUser(t, db, "a@example.com")
	post := testutil.CreatePost(t, db, author, "p")

	require.NoError(t, repo.UpdateHeroImage(context.Background(), post.ID, "hero_images/x.png", "0.2x0.8"))
	got, err := repo.GetByID(context.Background(), post.ID)
	require.NoError(t, err)
	assert.Equal(t, "hero_images/x.png", got.HeroImage)
	assert.Equal(t, "0.2x0.8", got.PPOI)

	assert.True(t, models.IsCode(repo.UpdateHeroImage(context.Background(), 999, "k", "0.5x0.5"), models.CodeNotFound))
}
