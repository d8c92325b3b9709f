package service

import (
	"context"
	"net/http"
	"testing"
	"time"

	"blango/internal/filters"
	"blango/internal/media"
	"blango/internal/models"
	"blango/internal/permissions"
	"blango/internal/repository"
	"blango/internal/serializers"
	"blango/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newPostInput(title string) *serializers.PostInput {
	return &serializers.PostInput{
		Title:   strp(title),
		Summary: strp("summary"),
		Content: strp("content"),
	}
}

func TestPostService_CreateDefaultsAndTags(t *testing.T) {
	f := newFixture(t, "")
	ctx := context.Background()
	ann := testutil.CreateUser(t, f.db, "ann@example.com")

	in := newPostInput("Hello Go")
	in.Tags = &[]string{"Go", "go", "Web"}
	in.Comments = &[]serializers.CommentInput{{Content: "first!"}}

	post, err := f.posts.Create(ctx, actorOf(ann, http.MethodPost), in)
	require.NoError(t, err)
	assert.Equal(t, ann.ID, post.AuthorID)
	assert.Equal(t, "hello-go", post.Slug)
	assert.Equal(t, []string{"go", "web"}, post.TagValues())
	require.Len(t, post.Comments, 1)
	assert.Equal(t, ann.ID, post.Comments[0].CreatorID)
	assert.Equal(t, []string{"first!"}, f.feed.comments[post.ID])

	var tagCount int64
	require.NoError(t, f.db.Model(&models.Tag{}).Count(&tagCount).Error)
	assert.EqualValues(t, 2, tagCount)
}

func TestPostService_CreateAuthorRules(t *testing.T) {
	f := newFixture(t, "")
	ctx := context.Background()
	ann := testutil.CreateUser(t, f.db, "ann@example.com")
	bob := testutil.CreateUser(t, f.db, "bob@example.com")
	staff := testutil.CreateUser(t, f.db, "staff@example.com", testutil.Staff())

	in := newPostInput("As Bob")
	in.Author = strp("http://blog.test/api/v1/users/bob@example.com")
	_, err := f.posts.Create(ctx, actorOf(ann, http.MethodPost), in)
	assert.Equal(t, []string{MsgAuthorSelf}, fieldErrors(t, err)["author"])

	in = newPostInput("Ghost")
	in.Author = strp("http://blog.test/api/v1/users/ghost@example.com")
	_, err = f.posts.Create(ctx, actorOf(staff, http.MethodPost), in)
	assert.Equal(t, []string{serializers.MsgInvalidHyperlink}, fieldErrors(t, err)["author"])

	in = newPostInput("For Bob")
	in.Author = strp("/api/v1/users/bob@example.com")
	post, err := f.posts.Create(ctx, actorOf(staff, http.MethodPost), in)
	require.NoError(t, err)
	assert.Equal(t, bob.ID, post.AuthorID)

	_, err = f.posts.Create(ctx, permissions.Requester{}, newPostInput("Anon"))
	assertCode(t, err, models.CodeNotAuthenticated)
}

func TestPostService_CreateDuplicateSlug(t *testing.T) {
	f := newFixture(t, "")
	ann := testutil.CreateUser(t, f.db, "ann@example.com")
	testutil.CreatePost(t, f.db, ann, "taken")

	in := newPostInput("Whatever")
	in.Slug = strp("taken")
	_, err := f.posts.Create(context.Background(), actorOf(ann, http.MethodPost), in)
	assert.Equal(t, []string{repository.MsgSlugTaken}, fieldErrors(t, err)["slug"])
}

func TestPostService_UpdatePermissions(t *testing.T) {
	f := newFixture(t, "")
	ctx := context.Background()
	ann := testutil.CreateUser(t, f.db, "ann@example.com")
	bob := testutil.CreateUser(t, f.db, "bob@example.com")
	staff := testutil.CreateUser(t, f.db, "staff@example.com", testutil.Staff())
	post := testutil.CreatePost(t, f.db, ann, "anns-post")
	draft := testutil.CreatePost(t, f.db, ann, "anns-draft", testutil.PublishedAt(nil))

	patch := &serializers.PostInput{Summary: strp("changed")}
	_, err := f.posts.Update(ctx, actorOf(bob, http.MethodPatch), post.ID, patch, true)
	assertCode(t, err, models.CodeForbidden)

	_, err = f.posts.Update(ctx, actorOf(bob, http.MethodPatch), draft.ID, patch, true)
	assertCode(t, err, models.CodeNotFound)

	_, err = f.posts.Update(ctx, permissions.Requester{}, post.ID, patch, true)
	assertCode(t, err, models.CodeNotAuthenticated)

	updated, err := f.posts.Update(ctx, actorOf(ann, http.MethodPatch), post.ID, patch, true)
	require.NoError(t, err)
	assert.Equal(t, "changed", updated.Summary)
	assert.Equal(t, post.Title, updated.Title)
	assert.Equal(t, ann.ID, updated.AuthorID)

	byStaff, err := f.posts.Update(ctx, actorOf(staff, http.MethodPatch), draft.ID, &serializers.PostInput{Title: strp("Edited")}, true)
	require.NoError(t, err)
	assert.Equal(t, "Edited", byStaff.Title)
	assert.Equal(t, ann.ID, byStaff.AuthorID)
}

func TestPostService_UpdateComments(t *testing.T) {
	f := newFixture(t, "")
	ctx := context.Background()
	ann := testutil.CreateUser(t, f.db, "ann@example.com")
	bob := testutil.CreateUser(t, f.db, "bob@example.com")
	post := testutil.CreatePost(t, f.db, ann, "with-comments")

	existing, err := f.comments.CreateOnPost(ctx, actorOf(bob, http.MethodPost), post.ID, "original")
	require.NoError(t, err)

	in := &serializers.PostInput{Comments: &[]serializers.CommentInput{
		{ID: &existing.ID, Content: "rewritten"},
		{Content: "added by author"},
	}}
	updated, err := f.posts.Update(ctx, actorOf(ann, http.MethodPatch), post.ID, in, true)
	require.NoError(t, err)
	require.Len(t, updated.Comments, 2)
	assert.Equal(t, "original", updated.Comments[0].Content)
	assert.Equal(t, bob.ID, updated.Comments[0].CreatorID)
	assert.Equal(t, "added by author", updated.Comments[1].Content)
	assert.Equal(t, ann.ID, updated.Comments[1].CreatorID)
}

func TestPostService_PutReplacesTags(t *testing.T) {
	f := newFixture(t, "")
	ctx := context.Background()
	ann := testutil.CreateUser(t, f.db, "ann@example.com")

	in := newPostInput("Tagged")
	in.Tags = &[]string{"go", "sql"}
	post, err := f.posts.Create(ctx, actorOf(ann, http.MethodPost), in)
	require.NoError(t, err)

	put := newPostInput("Tagged again")
	put.Slug = strp(post.Slug)
	put.Tags = &[]string{"Web"}
	updated, err := f.posts.Update(ctx, actorOf(ann, http.MethodPut), post.ID, put, false)
	require.NoError(t, err)
	assert.Equal(t, []string{"web"}, updated.TagValues())

	missing := &serializers.PostInput{Title: strp("only title")}
	_, err = f.posts.Update(ctx, actorOf(ann, http.MethodPut), post.ID, missing, false)
	assert.Contains(t, fieldErrors(t, err), "summary")
}

func TestPostService_Delete(t *testing.T) {
	f := newFixture(t, "")
	ctx := context.Background()
	ann := testutil.CreateUser(t, f.db, "ann@example.com")
	bob := testutil.CreateUser(t, f.db, "bob@example.com")
	staff := testutil.CreateUser(t, f.db, "staff@example.com", testutil.Staff())
	first := testutil.CreatePost(t, f.db, ann, "first")
	second := testutil.CreatePost(t, f.db, ann, "second")

	assertCode(t, f.posts.Delete(ctx, actorOf(bob, http.MethodDelete), first.ID), models.CodeForbidden)
	require.NoError(t, f.posts.Delete(ctx, actorOf(ann, http.MethodDelete), first.ID))
	require.NoError(t, f.posts.Delete(ctx, actorOf(staff, http.MethodDelete), second.ID))

	_, err := f.posts.Get(ctx, actorOf(staff, http.MethodGet), first.ID)
	assertCode(t, err, models.CodeNotFound)
}

func TestPostService_List(t *testing.T) {
	f := newFixture(t, "")
	ctx := context.Background()
	ann := testutil.CreateUser(t, f.db, "ann@example.com")
	bob := testutil.CreateUser(t, f.db, "bob@example.com")
	tag := models.Tag{Value: "go"}
	require.NoError(t, f.db.Create(&tag).Error)

	testutil.CreatePost(t, f.db, ann, "published", testutil.WithTags(tag))
	testutil.CreatePost(t, f.db, ann, "draft", testutil.PublishedAt(nil), testutil.WithTags(tag))
	testutil.CreatePost(t, f.db, ann, "future", testutil.PublishedAt(testutil.Ptr(time.Now().UTC().Add(time.Hour))))
	testutil.CreatePost(t, f.db, bob, "bobs", testutil.PublishedAt(testutil.Ptr(time.Now().UTC().Add(-10*24*time.Hour))))

	page := filters.Page{Number: 1, Size: 10}
	slugsOf := func(posts []models.Post) []string {
		out := make([]string, 0, len(posts))
		for _, p := range posts {
			out = append(out, p.Slug)
		}
		return out
	}

	posts, total, err := f.posts.List(ctx, ListPostsInput{Page: page})
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)
	assert.ElementsMatch(t, []string{"published", "bobs"}, slugsOf(posts))

	posts, _, err = f.posts.List(ctx, ListPostsInput{Actor: actorOf(ann, http.MethodGet), Page: page, Mine: true})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"published", "draft", "future"}, slugsOf(posts))

	_, _, err = f.posts.List(ctx, ListPostsInput{Page: page, Mine: true})
	assertCode(t, err, models.CodeNotAuthenticated)

	posts, _, err = f.posts.List(ctx, ListPostsInput{Page: page, Period: "week"})
	require.NoError(t, err)
	assert.Equal(t, []string{"published"}, slugsOf(posts))

	_, _, err = f.posts.List(ctx, ListPostsInput{Page: page, Period: "month"})
	assertCode(t, err, models.CodeNotFound)

	posts, _, err = f.posts.List(ctx, ListPostsInput{Page: page, TagID: tag.ID})
	require.NoError(t, err)
	assert.Equal(t, []string{"published"}, slugsOf(posts))

	posts, _, err = f.posts.List(ctx, ListPostsInput{Actor: actorOf(ann, http.MethodGet), Page: page, TagID: tag.ID})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"published", "draft"}, slugsOf(posts))

	posts, _, err = f.posts.List(ctx, ListPostsInput{Actor: actorOf(ann, http.MethodGet), Page: page, PublishedOnly: true})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"published", "bobs"}, slugsOf(posts))

	_, _, err = f.posts.List(ctx, ListPostsInput{Page: page, TagID: 999})
	assertCode(t, err, models.CodeNotFound)

	_, _, err = f.posts.List(ctx, ListPostsInput{Page: filters.Page{Number: 5, Size: 10}})
	assertCode(t, err, models.CodeNotFound)
}

func TestPostService_SetHeroImage(t *testing.T) {
	f := newFixture(t, "")
	ctx := context.Background()
	ann := testutil.CreateUser(t, f.db, "ann@example.com")
	bob := testutil.CreateUser(t, f.db, "bob@example.com")
	post := testutil.CreatePost(t, f.db, ann, "hero")
	upload := UploadImageInput{Filename: "a.png", Content: testutil.TinyPNG(t, 300, 300)}

	_, err := f.posts.SetHeroImage(ctx, actorOf(bob, http.MethodPut), post.ID, upload, nil)
	assertCode(t, err, models.CodeForbidden)

	_, err = f.posts.SetHeroImage(ctx, actorOf(ann, http.MethodPut), post.ID, upload, strp("5x5"))
	assert.Contains(t, fieldErrors(t, err), "ppoi")

	updated, err := f.posts.SetHeroImage(ctx, actorOf(ann, http.MethodPut), post.ID, upload, strp("0.2,0.8"))
	require.NoError(t, err)
	assert.Equal(t, "0.2x0.8", updated.PPOI)
	require.NotEmpty(t, updated.HeroImage)
	_, ok := f.store.Get(media.RenditionKey(updated.HeroImage, media.RenditionSquareCrop))
	assert.True(t, ok)

	first := updated.HeroImage
	replaced, err := f.posts.SetHeroImage(ctx, actorOf(ann, http.MethodPut), post.ID, upload, nil)
	require.NoError(t, err)
	assert.Equal(t, "0.2x0.8", replaced.PPOI)
	_, ok = f.store.Get(media.RenditionKey(first, media.RenditionFull))
	assert.False(t, ok, "previous renditions are removed")
	assert.Len(t, f.store.Keys(), 3)
}
