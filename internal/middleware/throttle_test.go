package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"blango/internal/config"

	"github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newThrottleRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return rdb, mr
}

func TestCheckRateLimitFixedWindow(t *testing.T) {
	rdb, mr := newThrottleRedis(t)
	scope := Scope{Name: "test", Rate: config.Rate{Limit: 2, Window: time.Minute}}
	now := time.Date(2026, 1, 1, 10, 0, 15, 0, time.UTC)

	for i := 0; i < 2; i++ {
		d, err := CheckRateLimit(context.Background(), rdb, scope, "ip:1.2.3.4", now)
		require.NoError(t, err)
		assert.True(t, d.Allowed)
	}

	d, err := CheckRateLimit(context.Background(), rdb, scope, "ip:1.2.3.4", now)
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, 45*time.Second, d.Wait)

	// The next window starts a fresh count.
	d, err = CheckRateLimit(context.Background(), rdb, scope, "ip:1.2.3.4", now.Add(time.Minute))
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.Equal(t, int64(1), d.Count)

	keys := mr.Keys()
	require.NotEmpty(t, keys)
	assert.Greater(t, mr.TTL(keys[0]), time.Duration(0))
}

func TestCheckRateLimitNilClient(t *testing.T) {
	_, err := CheckRateLimit(context.Background(), nil, Scope{Name: "x", Rate: config.Rate{Limit: 1, Window: time.Second}}, "a", time.Now())
	assert.Error(t, err)
}

func TestNewThrottlePolicy(t *testing.T) {
	cfg := &config.Config{
		ThrottleEnabled:       true,
		ThrottleAnonSustained: "500/day",
		ThrottleAnonBurst:     "10/minute",
		ThrottleUserSustained: "5000/day",
		ThrottleUserBurst:     "100/minute",
	}
	policy, err := NewThrottlePolicy(cfg)
	require.NoError(t, err)
	assert.True(t, policy.Enabled)
	require.Len(t, policy.Anon, 2)
	assert.Equal(t, ScopeAnonBurst, policy.Anon[0].Name)
	assert.Equal(t, 10, policy.Anon[0].Rate.Limit)
	assert.Equal(t, 24*time.Hour, policy.User[1].Rate.Window)

	cfg.ThrottleUserBurst = "lots"
	_, err = NewThrottlePolicy(cfg)
	assert.Error(t, err)
}

func TestThrottleMiddleware(t *testing.T) {
	rdb, _ := newThrottleRedis(t)
	tokens := NewTokens(testSecret, time.Hour, rdb)
	fixed := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)

	policy := ThrottlePolicy{
		Enabled: true,
		Anon:    []Scope{{Name: ScopeAnonBurst, Rate: config.Rate{Limit: 2, Window: time.Minute}}},
		User:    []Scope{{Name: ScopeUserBurst, Rate: config.Rate{Limit: 3, Window: time.Minute}}},
		Now:     func() time.Time { return fixed },
	}

	app := fiber.New()
	app.Use(OptionalAuth(tokens))
	app.Use(Throttle(rdb, policy))
	app.Get("/", func(c *fiber.Ctx) error { return c.SendString("ok") })

	get := func(auth string) *http.Response {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if auth != "" {
			req.Header.Set("Authorization", "Bearer "+auth)
		}
		resp, err := app.Test(req)
		require.NoError(t, err)
		return resp
	}

	assert.Equal(t, http.StatusOK, get("").StatusCode)
	assert.Equal(t, http.StatusOK, get("").StatusCode)
	blocked := get("")
	assert.Equal(t, http.StatusTooManyRequests, blocked.StatusCode)
	assert.Equal(t, "60", blocked.Header.Get("Retry-After"))

	// Authenticated callers have their own bucket.
	raw, _, err := tokens.Issue(42)
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		assert.Equal(t, http.StatusOK, get(raw).StatusCode)
	}
	assert.Equal(t, http.StatusTooManyRequests, get(raw).StatusCode)
}

func TestThrottleExtraScope(t *testing.T) {
	rdb, _ := newThrottleRedis(t)
	policy := ThrottlePolicy{Enabled: true}

	app := fiber.New()
	app.Post("/token-auth", Throttle(rdb, policy, Scope{Name: ScopeTokenAuth, Rate: config.Rate{Limit: 1, Window: time.Hour}}),
		func(c *fiber.Ctx) error { return c.SendString("ok") })

	resp, err := app.Test(httptest.NewRequest(http.MethodPost, "/token-auth", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest(http.MethodPost, "/token-auth", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
}

func TestThrottleFailsOpen(t *testing.T) {
	rdb, mr := newThrottleRedis(t)
	mr.Close()

	policy := ThrottlePolicy{
		Enabled: true,
		Anon:    []Scope{{Name: ScopeAnonBurst, Rate: config.Rate{Limit: 1, Window: time.Minute}}},
	}
	app := fiber.New()
	app.Use(Throttle(rdb, policy))
	app.Get("/", func(c *fiber.Ctx) error { return c.SendString("ok") })

	for i := 0; i < 3; i++ {
		resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/", nil))
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	}
}

func TestThrottleDisabled(t *testing.T) {
	app := fiber.New()
	app.Use(Throttle(nil, ThrottlePolicy{Enabled: false}))
	app.Get("/", func(c *fiber.Ctx) error { return c.SendString("ok") })

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
