package server

import (
	"fmt"
	"net/http"
	"testing"
	"time"

	"blango/internal/config"
	"blango/internal/models"
	"blango/internal/serializers"
	"blango/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func superuser(u *models.User) {
	u.IsStaff = true
	u.IsSuperuser = true
}

func TestAdminRequiresStaff(t *testing.T) {
	env := newTestEnv(t)
	ann := testutil.CreateUser(t, env.db, "ann@example.com")

	resp := env.do(t, http.MethodGet, "/api/v1/admin/users", nil, "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = env.do(t, http.MethodGet, "/api/v1/admin/users", nil, env.token(t, ann))
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestAdminListUsers(t *testing.T) {
	env := newTestEnv(t)
	staff := testutil.CreateUser(t, env.db, "staff@example.com", testutil.Staff())
	testutil.CreateUser(t, env.db, "ann@example.com")

	resp := env.do(t, http.MethodGet, "/api/v1/admin/users", nil, env.token(t, staff))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	page := decode[serializers.Page[AdminUser]](t, resp)
	assert.EqualValues(t, 2, page.Count)

	resp = env.do(t, http.MethodGet, "/api/v1/admin/users?page=9", nil, env.token(t, staff))
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestPromoteAndDemote(t *testing.T) {
	env := newTestEnv(t)
	staff := testutil.CreateUser(t, env.db, "staff@example.com", testutil.Staff())
	root := testutil.CreateUser(t, env.db, "root@example.com", superuser)
	ann := testutil.CreateUser(t, env.db, "ann@example.com")
	promote := fmt.Sprintf("/api/v1/admin/users/%d/promote", ann.ID)

	resp := env.do(t, http.MethodPost, promote, nil, env.token(t, staff))
	require.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = env.do(t, http.MethodPost, promote, nil, env.token(t, root))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, decode[AdminUser](t, resp).IsStaff)

	resp = env.do(t, http.MethodPost, fmt.Sprintf("/api/v1/admin/users/%d/demote", ann.ID), nil, env.token(t, root))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.False(t, decode[AdminUser](t, resp).IsStaff)

	resp = env.do(t, http.MethodPost, "/api/v1/admin/users/999/promote", nil, env.token(t, root))
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAdminDeleteUser(t *testing.T) {
	env := newTestEnv(t)
	staff := testutil.CreateUser(t, env.db, "staff@example.com", testutil.Staff())
	author := testutil.CreateUser(t, env.db, "author@example.com")
	idle := testutil.CreateUser(t, env.db, "idle@example.com")
	testutil.CreatePost(t, env.db, author, "kept")

	resp := env.do(t, http.MethodDelete, fmt.Sprintf("/api/v1/admin/users/%d", author.ID), nil, env.token(t, staff))
	require.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, models.CodeProtected, decode[models.ErrorResponse](t, resp).Code)

	resp = env.do(t, http.MethodDelete, fmt.Sprintf("/api/v1/admin/users/%d", idle.ID), nil, env.token(t, staff))
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = env.do(t, http.MethodGet, "/api/v1/users/idle@example.com", nil, "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAdminComments(t *testing.T) {
	env := newTestEnv(t)
	staff := testutil.CreateUser(t, env.db, "staff@example.com", testutil.Staff())
	ann := testutil.CreateUser(t, env.db, "ann@example.com")
	comment := models.Comment{CreatorID: ann.ID, Content: "spam", ObjectType: models.CommentTargetUser, ObjectID: staff.ID}
	require.NoError(t, env.db.Create(&comment).Error)

	resp := env.do(t, http.MethodGet, "/api/v1/admin/comments", nil, env.token(t, staff))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	page := decode[serializers.Page[serializers.Comment]](t, resp)
	require.Len(t, page.Results, 1)
	assert.Equal(t, "spam", page.Results[0].Content)

	path := fmt.Sprintf("/api/v1/admin/comments/%d", comment.ID)
	resp = env.do(t, http.MethodDelete, path, nil, env.token(t, staff))
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = env.do(t, http.MethodDelete, path, nil, env.token(t, staff))
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestRunCleanup(t *testing.T) {
	env := newTestEnv(t)
	staff := testutil.CreateUser(t, env.db, "staff@example.com", testutil.Staff())
	old := time.Now().UTC().AddDate(0, 0, -30)
	testutil.CreateUser(t, env.db, "expired@example.com", testutil.Inactive(old))
	testutil.CreateUser(t, env.db, "fresh@example.com", testutil.Inactive(time.Now().UTC()))

	resp := env.do(t, http.MethodPost, "/api/v1/admin/cleanup", nil, env.token(t, staff))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.EqualValues(t, 1, decode[map[string]any](t, resp)["deleted"])

	var remaining int64
	require.NoError(t, env.db.Model(&models.User{}).Count(&remaining).Error)
	assert.EqualValues(t, 2, remaining)
}

func TestFeatureFlags(t *testing.T) {
	env := newTestEnv(t, func(c *config.Config) { c.FeatureFlags = "comments_enabled=off" })
	staff := testutil.CreateUser(t, env.db, "staff@example.com", testutil.Staff())

	resp := env.do(t, http.MethodGet, "/api/v1/admin/feature-flags", nil, env.token(t, staff))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decode[struct {
		Raw       map[string]string `json:"raw"`
		Evaluated map[string]bool   `json:"evaluated"`
	}](t, resp)
	assert.Equal(t, "off", body.Raw["comments_enabled"])
	assert.False(t, body.Evaluated["comments_enabled"])
	assert.True(t, body.Evaluated["registration_open"])
}
