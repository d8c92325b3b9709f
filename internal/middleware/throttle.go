package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"blango/internal/config"
	"blango/internal/models"
	"blango/internal/observability"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
)

// Throttle scope names.
const (
	ScopeAnonSustained = "anon_sustained"
	ScopeAnonBurst     = "anon_burst"
	ScopeUserSustained = "user_sustained"
	ScopeUserBurst     = "user_burst"
	ScopeTokenAuth     = "token_auth"
)

// Scope is a named quota bucket.
type Scope struct {
	Name string
	Rate config.Rate
}

// ThrottlePolicy selects scopes by caller class. Anonymous callers are counted
// by IP, authenticated callers by user ID.
type ThrottlePolicy struct {
	Enabled bool
	Anon    []Scope
	User    []Scope
	Now     func() time.Time
}

// NewThrottlePolicy builds the default anon/user sustained and burst scopes from config.
func NewThrottlePolicy(cfg *config.Config) (ThrottlePolicy, error) {
	rates := map[string]string{
		ScopeAnonSustained: cfg.ThrottleAnonSustained,
		ScopeAnonBurst:     cfg.ThrottleAnonBurst,
		ScopeUserSustained: cfg.ThrottleUserSustained,
		ScopeUserBurst:     cfg.ThrottleUserBurst,
	}
	parsed := make(map[string]config.Rate, len(rates))
	for name, raw := range rates {
		r, err := config.ParseRate(raw)
		if err != nil {
			return ThrottlePolicy{}, fmt.Errorf("throttle scope %s: %w", name, err)
		}
		parsed[name] = r
	}
	return ThrottlePolicy{
		Enabled: cfg.ThrottleEnabled,
		Anon: []Scope{
			{Name: ScopeAnonBurst, Rate: parsed[ScopeAnonBurst]},
			{Name: ScopeAnonSustained, Rate: parsed[ScopeAnonSustained]},
		},
		User: []Scope{
			{Name: ScopeUserBurst, Rate: parsed[ScopeUserBurst]},
			{Name: ScopeUserSustained, Rate: parsed[ScopeUserSustained]},
		},
	}, nil
}

// Decision is the outcome of counting one request against one scope.
type Decision struct {
	Allowed bool
	Count   int64
	Wait    time.Duration
}

// CheckRateLimit counts a hit for ident in the fixed window containing now.
func CheckRateLimit(ctx context.Context, rdb *redis.Client, scope Scope, ident string, now time.Time) (Decision, error) {
	if rdb == nil {
		return Decision{}, fmt.Errorf("redis client is nil")
	}
	window := scope.Rate.Window
	idx := now.UnixNano() / int64(window)
	key := fmt.Sprintf("throttle:%s:%s:%d", scope.Name, ident, idx)

	cnt, err := rdb.Incr(ctx, key).Result()
	if err != nil {
		return Decision{}, err
	}
	if cnt == 1 {
		rdb.Expire(ctx, key, window)
	}

	windowEnd := time.Unix(0, (idx+1)*int64(window))
	return Decision{
		Allowed: cnt <= int64(scope.Rate.Limit),
		Count:   cnt,
		Wait:    windowEnd.Sub(now),
	}, nil
}

// Throttle enforces the caller-class scopes from policy plus any extra
// endpoint scopes. Extra scopes count every caller by IP. Redis failures fail open.
func Throttle(rdb *redis.Client, policy ThrottlePolicy, extra ...Scope) fiber.Handler {
	now := policy.Now
	if now == nil {
		now = time.Now
	}
	return func(c *fiber.Ctx) error {
		if !policy.Enabled || c.Method() == fiber.MethodOptions {
			return c.Next()
		}

		type bucket struct {
			scope Scope
			ident string
		}
		var buckets []bucket
		if userID, ok := CurrentUserID(c); ok {
			for _, s := range policy.User {
				buckets = append(buckets, bucket{s, "user:" + strconv.FormatUint(uint64(userID), 10)})
			}
		} else {
			for _, s := range policy.Anon {
				buckets = append(buckets, bucket{s, "ip:" + c.IP()})
			}
		}
		for _, s := range extra {
			buckets = append(buckets, bucket{s, "ip:" + c.IP()})
		}

		at := now()
		var longest time.Duration
		var blocked string
		for _, b := range buckets {
			d, err := CheckRateLimit(c.UserContext(), rdb, b.scope, b.ident, at)
			if err != nil {
				Logger.WarnContext(c.UserContext(), "throttle store unavailable, allowing request",
					slog.String("scope", b.scope.Name), slog.String("error", err.Error()))
				return c.Next()
			}
			if !d.Allowed && d.Wait > longest {
				longest = d.Wait
				blocked = b.scope.Name
			}
		}

		if blocked != "" {
			observability.ThrottledRequests.WithLabelValues(blocked).Inc()
			secs := int(longest.Round(time.Second) / time.Second)
			if secs < 1 {
				secs = 1
			}
			c.Set(fiber.HeaderRetryAfter, strconv.Itoa(secs))
			return models.RespondWithError(c, models.NewThrottledError(longest))
		}
		return c.Next()
	}
}
