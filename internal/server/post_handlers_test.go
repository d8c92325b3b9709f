package server

import (
	"fmt"
	"net/http"
	"testing"
	"time"

	"blango/internal/models"
	"blango/internal/serializers"
	"blango/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func slugsOf(page serializers.Page[serializers.Post]) []string {
	out := make([]string, 0, len(page.Results))
	for _, p := range page.Results {
		out = append(out, p.Slug)
	}
	return out
}

func TestListPostsVisibility(t *testing.T) {
	env := newTestEnv(t)
	ann := testutil.CreateUser(t, env.db, "ann@example.com")
	bob := testutil.CreateUser(t, env.db, "bob@example.com")
	staff := testutil.CreateUser(t, env.db, "staff@example.com", testutil.Staff())

	testutil.CreatePost(t, env.db, ann, "live")
	testutil.CreatePost(t, env.db, ann, "draft", testutil.PublishedAt(nil))
	testutil.CreatePost(t, env.db, bob, "scheduled", testutil.PublishedAt(testutil.Ptr(time.Now().UTC().Add(24*time.Hour))))

	tests := []struct {
		name  string
		token string
		want  []string
	}{
		{"anonymous", "", []string{"live"}},
		{"author sees own draft", env.token(t, ann), []string{"draft", "live"}},
		{"other author", env.token(t, bob), []string{"live", "scheduled"}},
		{"staff", env.token(t, staff), []string{"draft", "live", "scheduled"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := env.do(t, http.MethodGet, "/api/v1/posts/?ordering=slug", nil, tt.token)
			require.Equal(t, http.StatusOK, resp.StatusCode)
			page := decode[serializers.Page[serializers.Post]](t, resp)
			assert.Equal(t, tt.want, slugsOf(page))
			assert.EqualValues(t, len(tt.want), page.Count)
		})
	}
}

func TestListPostsPagination(t *testing.T) {
	env := newTestEnv(t)
	ann := testutil.CreateUser(t, env.db, "ann@example.com")
	for i := range 12 {
		testutil.CreatePost(t, env.db, ann, fmt.Sprintf("post-%02d", i))
	}

	resp := env.do(t, http.MethodGet, "/api/v1/posts/?ordering=slug", nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	first := decode[serializers.Page[serializers.Post]](t, resp)
	assert.EqualValues(t, 12, first.Count)
	assert.Len(t, first.Results, 10)
	require.NotNil(t, first.Next)
	assert.Contains(t, *first.Next, "page=2")
	assert.Nil(t, first.Previous)

	resp = env.do(t, http.MethodGet, "/api/v1/posts/?ordering=slug&page=2", nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	second := decode[serializers.Page[serializers.Post]](t, resp)
	assert.Equal(t, []string{"post-10", "post-11"}, slugsOf(second))
	assert.Nil(t, second.Next)

	resp = env.do(t, http.MethodGet, "/api/v1/posts/?page=3", nil, "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestListPostsFilters(t *testing.T) {
	env := newTestEnv(t)
	ann := testutil.CreateUser(t, env.db, "ann@example.com")
	bob := testutil.CreateUser(t, env.db, "bob@example.com")
	golang := models.Tag{Value: "go"}
	require.NoError(t, env.db.Create(&golang).Error)

	testutil.CreatePost(t, env.db, ann, "tagged", testutil.WithTags(golang))
	testutil.CreatePost(t, env.db, bob, "plain")

	resp := env.do(t, http.MethodGet, "/api/v1/posts/?author_email=BOB@example.com", nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, []string{"plain"}, slugsOf(decode[serializers.Page[serializers.Post]](t, resp)))

	resp = env.do(t, http.MethodGet, "/api/v1/posts/?tags=Go", nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, []string{"tagged"}, slugsOf(decode[serializers.Page[serializers.Post]](t, resp)))

	resp = env.do(t, http.MethodGet, "/api/v1/posts/?published_from=not-a-date", nil, "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestListPostsByTime(t *testing.T) {
	env := newTestEnv(t)
	ann := testutil.CreateUser(t, env.db, "ann@example.com")
	testutil.CreatePost(t, env.db, ann, "recent", testutil.PublishedAt(testutil.Ptr(time.Now().UTC().Add(-time.Second))))
	testutil.CreatePost(t, env.db, ann, "old", testutil.PublishedAt(testutil.Ptr(time.Now().UTC().AddDate(0, 0, -30))))

	resp := env.do(t, http.MethodGet, "/api/v1/posts/by-time/week/", nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, []string{"recent"}, slugsOf(decode[serializers.Page[serializers.Post]](t, resp)))

	resp = env.do(t, http.MethodGet, "/api/v1/posts/by-time/decade/", nil, "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestListMyPostsRequiresAuth(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(t, http.MethodGet, "/api/v1/posts/mine/", nil, "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestGetPost(t *testing.T) {
	env := newTestEnv(t)
	ann := testutil.CreateUser(t, env.db, "ann@example.com")
	live := testutil.CreatePost(t, env.db, ann, "live")
	draft := testutil.CreatePost(t, env.db, ann, "draft", testutil.PublishedAt(nil))
	require.NoError(t, env.db.Create(&models.Comment{
		CreatorID:  ann.ID,
		Content:    "first!",
		ObjectType: models.CommentTargetPost,
		ObjectID:   live.ID,
	}).Error)

	resp := env.do(t, http.MethodGet, fmt.Sprintf("/api/v1/posts/%d", live.ID), nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	detail := decode[serializers.PostDetail](t, resp)
	assert.Equal(t, "live", detail.Slug)
	assert.Equal(t, "http://example.com/api/v1/users/ann@example.com", detail.Author)
	require.Len(t, detail.Comments, 1)
	assert.Equal(t, "first!", detail.Comments[0].Content)

	resp = env.do(t, http.MethodGet, fmt.Sprintf("/api/v1/posts/%d", draft.ID), nil, "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = env.do(t, http.MethodGet, fmt.Sprintf("/api/v1/posts/%d", draft.ID), nil, env.token(t, ann))
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = env.do(t, http.MethodGet, "/api/v1/posts/abc", nil, "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestCreatePost(t *testing.T) {
	env := newTestEnv(t)
	ann := testutil.CreateUser(t, env.db, "ann@example.com")

	payload := map[string]any{
		"title":        "Hello World",
		"summary":      "A summary",
		"content":      "Some content",
		"published_at": time.Now().UTC().Add(-time.Minute).Format(time.RFC3339),
		"tags":         []string{"Go", "go", "web"},
		"comments":     []map[string]any{{"content": "opening remark"}},
	}

	resp := env.do(t, http.MethodPost, "/api/v1/posts/", payload, "")
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = env.do(t, http.MethodPost, "/api/v1/posts/", payload, env.token(t, ann))
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	detail := decode[serializers.PostDetail](t, resp)
	assert.Equal(t, "hello-world", detail.Slug)
	assert.ElementsMatch(t, []string{"go", "web"}, detail.Tags)
	assert.Contains(t, detail.Author, "ann@example.com")
	require.Len(t, detail.Comments, 1)
	assert.Equal(t, "ann@example.com", detail.Comments[0].Creator.Email)

	var tags int64
	require.NoError(t, env.db.Model(&models.Tag{}).Count(&tags).Error)
	assert.EqualValues(t, 2, tags)
}

func TestCreatePostValidation(t *testing.T) {
	env := newTestEnv(t)
	ann := testutil.CreateUser(t, env.db, "ann@example.com")
	bob := testutil.CreateUser(t, env.db, "bob@example.com")
	testutil.CreatePost(t, env.db, ann, "taken")

	resp := env.do(t, http.MethodPost, "/api/v1/posts/", map[string]any{
		"title":   "Taken",
		"slug":    "taken",
		"summary": "",
		"content": "x",
		"author":  "http://example.com/api/v1/users/" + bob.Email,
	}, env.token(t, ann))
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	body := decode[models.ErrorResponse](t, resp)
	assert.Contains(t, body.Fields, "summary")
	assert.Contains(t, body.Fields, "author")
}

func TestUpdatePostPermissions(t *testing.T) {
	env := newTestEnv(t)
	ann := testutil.CreateUser(t, env.db, "ann@example.com")
	bob := testutil.CreateUser(t, env.db, "bob@example.com")
	staff := testutil.CreateUser(t, env.db, "staff@example.com", testutil.Staff())
	post := testutil.CreatePost(t, env.db, ann, "mine")
	path := fmt.Sprintf("/api/v1/posts/%d", post.ID)

	resp := env.do(t, http.MethodPatch, path, map[string]any{"title": "Hijacked"}, env.token(t, bob))
	require.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = env.do(t, http.MethodPatch, path, map[string]any{"title": "Edited"}, env.token(t, ann))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Edited", decode[serializers.PostDetail](t, resp).Title)

	resp = env.do(t, http.MethodPut, path, map[string]any{"title": "Only a title"}, env.token(t, ann))
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = env.do(t, http.MethodPut, path, map[string]any{
		"title":   "By staff",
		"slug":    "mine",
		"summary": "s",
		"content": "c",
	}, env.token(t, staff))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	detail := decode[serializers.PostDetail](t, resp)
	assert.Equal(t, "By staff", detail.Title)
	assert.Contains(t, detail.Author, "ann@example.com")
}

func TestDeletePost(t *testing.T) {
	env := newTestEnv(t)
	ann := testutil.CreateUser(t, env.db, "ann@example.com")
	bob := testutil.CreateUser(t, env.db, "bob@example.com")
	post := testutil.CreatePost(t, env.db, ann, "doomed")
	path := fmt.Sprintf("/api/v1/posts/%d", post.ID)

	resp := env.do(t, http.MethodDelete, path, nil, env.token(t, bob))
	require.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = env.do(t, http.MethodDelete, path, nil, env.token(t, ann))
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = env.do(t, http.MethodGet, path, nil, "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
