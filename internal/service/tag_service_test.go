package service

import (
	"context"
	"net/http"
	"testing"

	"blango/internal/filters"
	"blango/internal/models"
	"blango/internal/permissions"
	"blango/internal/repository"
	"blango/internal/serializers"
	"blango/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTagService_CRUD(t *testing.T) {
	f := newFixture(t, "")
	ctx := context.Background()
	ann := testutil.CreateUser(t, f.db, "ann@example.com")
	actor := actorOf(ann, http.MethodPost)

	_, err := f.tags.Create(ctx, permissions.Requester{}, serializers.TagInput{Value: "go"})
	assertCode(t, err, models.CodeNotAuthenticated)

	tag, err := f.tags.Create(ctx, actor, serializers.TagInput{Value: " Go "})
	require.NoError(t, err)
	assert.Equal(t, "go", tag.Value)

	_, err = f.tags.Create(ctx, actor, serializers.TagInput{Value: "GO"})
	assert.Equal(t, []string{repository.MsgTagTaken}, fieldErrors(t, err)["value"])

	updated, err := f.tags.Update(ctx, actor, tag.ID, serializers.TagInput{Value: "Golang"})
	require.NoError(t, err)
	assert.Equal(t, "golang", updated.Value)

	tags, total, err := f.tags.List(ctx, filters.Page{Number: 1, Size: 10})
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	assert.Equal(t, "golang", tags[0].Value)

	require.NoError(t, f.tags.Delete(ctx, actor, tag.ID))
	_, err = f.tags.Get(ctx, tag.ID)
	assertCode(t, err, models.CodeNotFound)
}
