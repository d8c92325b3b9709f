package middleware

import (
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"slices"
	"strings"
	"time"

	"blango/internal/observability"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cache"
)

// Response cache backends.
const (
	CacheBackendRedis  = "redis"
	CacheBackendMemory = "memory"
	CacheBackendNone   = "none"
)

// CacheOptions configures one cached route group.
type CacheOptions struct {
	// Route labels metrics, e.g. "posts" or "tags".
	Route   string
	TTL     time.Duration
	Backend string
	// Storage is used for the redis backend; nil falls back to process memory.
	Storage fiber.Storage
}

// ResponseCache stores whole GET responses for TTL. Entries vary on the
// Authorization and Cookie headers so one caller never sees another's view.
// Entries are not invalidated on writes and expire by TTL only. A response
// that sets a cookie for a request that carried none is never stored, since
// its cache key is shared by every anonymous caller.
func ResponseCache(opts CacheOptions) fiber.Handler {
	if opts.Backend == CacheBackendNone || opts.TTL <= 0 {
		return func(c *fiber.Ctx) error { return c.Next() }
	}

	cfg := cache.Config{
		Expiration:           opts.TTL,
		CacheHeader:          "X-Cache",
		StoreResponseHeaders: true,
		KeyGenerator:         responseCacheKey,
		Next:                 setsCookieForAnonymous,
		ExpirationGenerator: func(c *fiber.Ctx, cfg *cache.Config) time.Duration {
			// Errors are kept for the shortest possible window.
			if c.Response().StatusCode() != fiber.StatusOK {
				return time.Second
			}
			return cfg.Expiration
		},
	}
	if opts.Backend == CacheBackendRedis && opts.Storage != nil {
		cfg.Storage = opts.Storage
	}
	handler := cache.New(cfg)

	return func(c *fiber.Ctx) error {
		err := handler(c)
		c.Append(fiber.HeaderVary, fiber.HeaderAuthorization, fiber.HeaderCookie)
		if result := c.GetRespHeader("X-Cache"); result != "" {
			observability.ResponseCacheResults.WithLabelValues(opts.Route, result).Inc()
		}
		return err
	}
}

// setsCookieForAnonymous runs after the handler; fiber's cache skips storing
// when it returns true.
func setsCookieForAnonymous(c *fiber.Ctx) bool {
	if c.Get(fiber.HeaderCookie) != "" {
		return false
	}
	sets := false
	c.Response().Header.VisitAllCookie(func(_, _ []byte) { sets = true })
	return sets
}

// responseCacheKey is the path with its query parameters sorted, plus a hash
// of the credentials the response may depend on.
func responseCacheKey(c *fiber.Ctx) string {
	args := c.Context().QueryArgs()
	pairs := make([]string, 0, args.Len())
	args.VisitAll(func(k, v []byte) {
		pairs = append(pairs, url.QueryEscape(string(k))+"="+url.QueryEscape(string(v)))
	})
	slices.Sort(pairs)

	h := sha256.New()
	h.Write([]byte(c.Get(fiber.HeaderAuthorization)))
	h.Write([]byte{0})
	h.Write([]byte(c.Get(fiber.HeaderCookie)))
	return c.Path() + "?" + strings.Join(pairs, "&") + "|" + hex.EncodeToString(h.Sum(nil)[:16])
}
