// Package middleware provides authentication, throttling, caching and logging middleware for the application.
package middleware

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"blango/internal/models"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	// LocalUserID is the fiber.Locals key holding the authenticated user's ID.
	LocalUserID = "userID"
	// SessionCookie carries the same JWT as the Authorization header for HTML pages.
	SessionCookie = "blango_session"

	TokenIssuer   = "blango-api"
	TokenAudience = "blango-client"
)

var errInvalidToken = errors.New("invalid or expired token")

// Tokens signs and verifies API/session JWTs and tracks revoked token IDs.
type Tokens struct {
	secret []byte
	ttl    time.Duration
	rdb    *redis.Client
}

// NewTokens returns a token helper. rdb may be nil, in which case revocation is a no-op.
func NewTokens(secret string, ttl time.Duration, rdb *redis.Client) *Tokens {
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}
	return &Tokens{secret: []byte(secret), ttl: ttl, rdb: rdb}
}

// Issue creates a signed token for userID.
func (t *Tokens) Issue(userID uint) (string, time.Time, error) {
	now := time.Now()
	exp := now.Add(t.ttl)
	claims := jwt.RegisteredClaims{
		Subject:   strconv.FormatUint(uint64(userID), 10),
		Issuer:    TokenIssuer,
		Audience:  jwt.ClaimStrings{TokenAudience},
		ExpiresAt: jwt.NewNumericDate(exp),
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now),
		ID:        uuid.NewString(),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, exp, nil
}

// Verify parses raw and returns the user ID it was issued for.
func (t *Tokens) Verify(ctx context.Context, raw string) (uint, *jwt.RegisteredClaims, error) {
	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errInvalidToken
		}
		return t.secret, nil
	},
		jwt.WithIssuer(TokenIssuer),
		jwt.WithAudience(TokenAudience),
		jwt.WithExpirationRequired(),
	)
	if err != nil || !token.Valid {
		return 0, nil, errInvalidToken
	}

	userID, err := strconv.ParseUint(claims.Subject, 10, 32)
	if err != nil || userID == 0 {
		return 0, nil, errInvalidToken
	}

	if claims.ID != "" && t.rdb != nil {
		revoked, err := t.rdb.Exists(ctx, revokedKey(claims.ID)).Result()
		if err == nil && revoked > 0 {
			return 0, nil, errInvalidToken
		}
	}
	return uint(userID), claims, nil
}

// Revoke blacklists the token's jti until it would have expired anyway.
func (t *Tokens) Revoke(ctx context.Context, raw string) error {
	_, claims, err := t.Verify(ctx, raw)
	if err != nil || t.rdb == nil || claims.ID == "" {
		return nil
	}
	ttl := time.Until(claims.ExpiresAt.Time)
	if ttl <= 0 {
		return nil
	}
	return t.rdb.Set(ctx, revokedKey(claims.ID), 1, ttl).Err()
}

func revokedKey(jti string) string {
	return "blacklist:" + jti
}

// headerToken accepts both "Bearer <jwt>" and the "Token <jwt>" scheme used by token-auth clients.
func headerToken(c *fiber.Ctx) (string, bool) {
	authHeader := c.Get(fiber.HeaderAuthorization)
	if authHeader == "" {
		return "", false
	}
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 {
		return "", true
	}
	switch strings.ToLower(parts[0]) {
	case "bearer", "token":
		return strings.TrimSpace(parts[1]), true
	}
	return "", true
}

// OptionalAuth resolves the caller from the Authorization header or the session
// cookie. A malformed or expired header token is rejected with 401; a stale
// cookie is ignored so anonymous pages keep working.
func OptionalAuth(tokens *Tokens) fiber.Handler {
	return func(c *fiber.Ctx) error {
		raw, fromHeader := headerToken(c)
		if fromHeader {
			userID, _, err := tokens.Verify(c.UserContext(), raw)
			if err != nil {
				return models.RespondWithError(c, &models.AppError{
					Code:    models.CodeNotAuthenticated,
					Message: "Invalid or expired token.",
				})
			}
			setUser(c, userID)
			return c.Next()
		}

		if cookie := c.Cookies(SessionCookie); cookie != "" {
			if userID, _, err := tokens.Verify(c.UserContext(), cookie); err == nil {
				setUser(c, userID)
			}
		}
		return c.Next()
	}
}

func setUser(c *fiber.Ctx, userID uint) {
	c.Locals(LocalUserID, userID)
	c.SetUserContext(context.WithValue(c.UserContext(), UserIDKey, userID))
}

// AuthRequired rejects anonymous callers. It must run after OptionalAuth.
func AuthRequired() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if _, ok := CurrentUserID(c); !ok {
			return models.RespondWithError(c, models.NewNotAuthenticatedError())
		}
		return c.Next()
	}
}

// CurrentUserID returns the authenticated user's ID, if any.
func CurrentUserID(c *fiber.Ctx) (uint, bool) {
	id, ok := c.Locals(LocalUserID).(uint)
	return id, ok && id != 0
}

// RawToken returns the token the caller authenticated with, header first.
func RawToken(c *fiber.Ctx) string {
	if raw, ok := headerToken(c); ok {
		return raw
	}
	return c.Cookies(SessionCookie)
}
