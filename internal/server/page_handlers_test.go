package server

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"regexp"
	"testing"
	"time"

	"blango/internal/config"
	"blango/internal/middleware"
	"blango/internal/models"
	"blango/internal/service"
	"blango/internal/testutil"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var csrfInput = regexp.MustCompile(`name="csrf_token" value="([^"]+)"`)

// getPage fetches path and returns the body with the CSRF cookie and token it carried.
func (e *testEnv) getPage(t *testing.T, path string, cookies ...*http.Cookie) (string, *http.Cookie, string) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	for _, c := range cookies {
		req.AddCookie(c)
	}
	resp := e.send(t, req)
	require.Equal(t, http.StatusOK, resp.StatusCode, path)
	body := readBody(t, resp)

	csrfCookie := cookieNamed(resp, "blango_csrf")
	var token string
	if m := csrfInput.FindStringSubmatch(body); m != nil {
		token = m[1]
	}
	return body, csrfCookie, token
}

// login signs a fixture user in through the HTML form and returns the session cookie.
func (e *testEnv) login(t *testing.T, email string) *http.Cookie {
	t.Helper()
	return e.loginWith(t, email, testutil.TestPassword)
}

func (e *testEnv) loginWith(t *testing.T, email, password string) *http.Cookie {
	t.Helper()
	_, csrfCookie, token := e.getPage(t, "/accounts/login/")
	require.NotNil(t, csrfCookie)
	require.NotEmpty(t, token)

	resp := e.form(t, "/accounts/login/", url.Values{
		"csrf_token": {token},
		"email":      {email},
		"password":   {password},
		"next":       {"/accounts/profile/"},
	}, csrfCookie)
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, "/accounts/profile/", resp.Header.Get(fiber.HeaderLocation))

	session := cookieNamed(resp, middleware.SessionCookie)
	require.NotNil(t, session)
	assert.True(t, session.HttpOnly)
	return session
}

func TestIndexPage(t *testing.T) {
	env := newTestEnv(t)
	ann := testutil.CreateUser(t, env.db, "ann@example.com")
	testutil.CreatePost(t, env.db, ann, "visible")
	testutil.CreatePost(t, env.db, ann, "secret-draft", testutil.PublishedAt(nil))
	require.NoError(t, env.db.Create(&models.Tag{Value: "golang"}).Error)

	body, _, _ := env.getPage(t, "/")
	assert.Contains(t, body, "Title visible")
	assert.NotContains(t, body, "Title secret-draft")
	assert.Contains(t, body, `<span class="badge bg-secondary">golang</span>`)
}

func TestIndexPageCacheKeepsCSRFTokensPerVisitor(t *testing.T) {
	env := newTestEnv(t, func(c *config.Config) {
		c.CacheBackend = middleware.CacheBackendRedis
		c.PageCacheTTL = time.Minute
	})

	first := env.send(t, httptest.NewRequest(http.MethodGet, "/", nil))
	second := env.send(t, httptest.NewRequest(http.MethodGet, "/", nil))
	a, b := cookieNamed(first, "blango_csrf"), cookieNamed(second, "blango_csrf")
	require.NotNil(t, a)
	require.NotNil(t, b)
	assert.NotEqual(t, a.Value, b.Value)
	assert.NotEqual(t, "hit", second.Header.Get("X-Cache"))

	// A visitor holding a token is cached under its own key.
	withCookie := func() *http.Response {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.AddCookie(a)
		return env.send(t, req)
	}
	assert.Equal(t, "miss", withCookie().Header.Get("X-Cache"))
	again := withCookie()
	assert.Equal(t, "hit", again.Header.Get("X-Cache"))
	if replayed := cookieNamed(again, "blango_csrf"); replayed != nil {
		assert.Equal(t, a.Value, replayed.Value)
	}
}

func TestIndexHidesDraftsEvenFromAuthor(t *testing.T) {
	env := newTestEnv(t)
	ann := testutil.CreateUser(t, env.db, "ann@example.com")
	testutil.CreatePost(t, env.db, ann, "secret-draft", testutil.PublishedAt(nil))
	session := env.login(t, "ann@example.com")

	body, _, _ := env.getPage(t, "/", session)
	assert.NotContains(t, body, "Title secret-draft")
}

func TestPostDetailPage(t *testing.T) {
	env := newTestEnv(t)
	ann := testutil.CreateUser(t, env.db, "ann@example.com")
	post := testutil.CreatePost(t, env.db, ann, "hello")
	testutil.CreatePost(t, env.db, ann, "hidden", testutil.PublishedAt(nil))
	require.NoError(t, env.db.Create(&models.Comment{
		CreatorID:  ann.ID,
		Content:    "nice post",
		ObjectType: models.CommentTargetPost,
		ObjectID:   post.ID,
	}).Error)

	body, _, _ := env.getPage(t, "/post/hello/")
	assert.Contains(t, body, "Title hello")
	assert.Contains(t, body, "nice post")

	resp := env.send(t, httptest.NewRequest(http.MethodGet, "/post/hidden/", nil))
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestLoginAndProfile(t *testing.T) {
	env := newTestEnv(t)
	testutil.CreateUser(t, env.db, "ann@example.com", testutil.Named("Ann", "Lee"))

	resp := env.send(t, httptest.NewRequest(http.MethodGet, "/accounts/profile/", nil))
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Contains(t, resp.Header.Get(fiber.HeaderLocation), "/accounts/login/?next=")

	session := env.login(t, "ann@example.com")
	body, csrfCookie, token := env.getPage(t, "/accounts/profile/", session)
	assert.Contains(t, body, "ann@example.com")

	resp = env.form(t, "/accounts/profile/", url.Values{
		"csrf_token": {token},
		"first_name": {"Annie"},
		"last_name":  {"Lee"},
		"bio":        {"Writes about Go."},
	}, session, csrfCookie)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, readBody(t, resp), "Profile updated.")

	var user models.User
	require.NoError(t, env.db.Preload("Profile").Where("email = ?", "ann@example.com").First(&user).Error)
	assert.Equal(t, "Annie", user.FirstName)
	require.NotNil(t, user.Profile)
	assert.Equal(t, "Writes about Go.", user.Profile.Bio)
}

func TestLoginFailureRerendersForm(t *testing.T) {
	env := newTestEnv(t)
	testutil.CreateUser(t, env.db, "ann@example.com")
	_, csrfCookie, token := env.getPage(t, "/accounts/login/")

	resp := env.form(t, "/accounts/login/", url.Values{
		"csrf_token": {token},
		"email":      {"ann@example.com"},
		"password":   {"wrong"},
	}, csrfCookie)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, readBody(t, resp), service.MsgBadCredentials)
	assert.Nil(t, cookieNamed(resp, middleware.SessionCookie))
}

func TestLoginIgnoresOffsiteNext(t *testing.T) {
	env := newTestEnv(t)
	testutil.CreateUser(t, env.db, "ann@example.com")
	_, csrfCookie, token := env.getPage(t, "/accounts/login/")

	resp := env.form(t, "/accounts/login/", url.Values{
		"csrf_token": {token},
		"email":      {"ann@example.com"},
		"password":   {testutil.TestPassword},
		"next":       {"//evil.example/"},
	}, csrfCookie)
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, "/", resp.Header.Get(fiber.HeaderLocation))
}

func TestFormsRequireCSRFToken(t *testing.T) {
	env := newTestEnv(t)
	testutil.CreateUser(t, env.db, "ann@example.com")

	resp := env.form(t, "/accounts/login/", url.Values{
		"email":    {"ann@example.com"},
		"password": {testutil.TestPassword},
	})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	_, csrfCookie, _ := env.getPage(t, "/accounts/login/")
	resp = env.form(t, "/accounts/login/", url.Values{
		"csrf_token": {"forged"},
		"email":      {"ann@example.com"},
		"password":   {testutil.TestPassword},
	}, csrfCookie)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestLogoutRevokesSession(t *testing.T) {
	env := newTestEnv(t)
	testutil.CreateUser(t, env.db, "ann@example.com")
	session := env.login(t, "ann@example.com")
	_, csrfCookie, token := env.getPage(t, "/", session)

	resp := env.form(t, "/accounts/logout/", url.Values{"csrf_token": {token}}, session, csrfCookie)
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)

	req := httptest.NewRequest(http.MethodGet, "/accounts/profile/", nil)
	req.AddCookie(session)
	resp = env.send(t, req)
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
}

func TestCommentFromPostPage(t *testing.T) {
	env := newTestEnv(t)
	ann := testutil.CreateUser(t, env.db, "ann@example.com")
	testutil.CreatePost(t, env.db, ann, "hello")

	// Anonymous visitors get no comment form, only the cookie.
	_, csrfCookie, _ := env.getPage(t, "/post/hello/")
	require.NotNil(t, csrfCookie)
	resp := env.form(t, "/post/hello/", url.Values{"csrf_token": {csrfCookie.Value}, "content": {"hi"}}, csrfCookie)
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Contains(t, resp.Header.Get(fiber.HeaderLocation), "/accounts/login/")

	session := env.login(t, "ann@example.com")
	_, csrfCookie, token := env.getPage(t, "/post/hello/", session)

	resp = env.form(t, "/post/hello/", url.Values{"csrf_token": {token}, "content": {"  "}}, session, csrfCookie)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = env.form(t, "/post/hello/", url.Values{"csrf_token": {token}, "content": {"Great read"}}, session, csrfCookie)
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, "/post/hello/", resp.Header.Get(fiber.HeaderLocation))

	body, _, _ := env.getPage(t, "/post/hello/", session)
	assert.Contains(t, body, "Great read")
}

func TestCommentFromPostPageWhenDisabled(t *testing.T) {
	env := newTestEnv(t, func(c *config.Config) { c.FeatureFlags = "comments_enabled=off" })
	ann := testutil.CreateUser(t, env.db, "ann@example.com")
	testutil.CreatePost(t, env.db, ann, "hello")
	session := env.login(t, "ann@example.com")
	_, csrfCookie, token := env.getPage(t, "/post/hello/", session)

	resp := env.form(t, "/post/hello/", url.Values{"csrf_token": {token}, "content": {"hi"}}, session, csrfCookie)
	require.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Contains(t, readBody(t, resp), service.MsgCommentsDisabled)
}

func TestRegisterThroughPages(t *testing.T) {
	env := newTestEnv(t)
	_, csrfCookie, token := env.getPage(t, "/accounts/register/")

	resp := env.form(t, "/accounts/register/", url.Values{
		"csrf_token": {token},
		"email":      {"new@example.com"},
		"password1":  {"a-long-enough-password"},
		"password2":  {"something-else-entirely"},
	}, csrfCookie)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, readBody(t, resp), "match")

	resp = env.form(t, "/accounts/register/", url.Values{
		"csrf_token": {token},
		"email":      {"new@example.com"},
		"password1":  {"a-long-enough-password"},
		"password2":  {"a-long-enough-password"},
	}, csrfCookie)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, readBody(t, resp), "new@example.com")

	m := activationLink.FindStringSubmatch(env.mailer.last(t).Body)
	require.Len(t, m, 2)

	resp = env.send(t, httptest.NewRequest(http.MethodGet, "/accounts/activate/"+m[1]+"/", nil))
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, "/accounts/login/?activated=1", resp.Header.Get(fiber.HeaderLocation))

	resp = env.send(t, httptest.NewRequest(http.MethodGet, "/accounts/activate/"+m[1]+"/", nil))
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	env.loginWith(t, "new@example.com", "a-long-enough-password")
}
