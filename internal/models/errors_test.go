package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusFor(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"validation", NewValidationError("bad"), fiber.StatusBadRequest},
		{"field", NewFieldError("slug", "taken"), fiber.StatusBadRequest},
		{"not authenticated", NewNotAuthenticatedError(), fiber.StatusUnauthorized},
		{"forbidden", NewForbiddenError(""), fiber.StatusForbidden},
		{"not found", NewNotFoundError("Post", 3), fiber.StatusNotFound},
		{"protected", NewProtectedError("has posts"), fiber.StatusConflict},
		{"throttled", NewThrottledError(time.Second), fiber.StatusTooManyRequests},
		{"internal", NewInternalError(errors.New("boom")), fiber.StatusInternalServerError},
		{"wrapped", fmt.Errorf("ctx: %w", NewNotFoundError("Tag", 1)), fiber.StatusNotFound},
		{"fiber", fiber.NewError(fiber.StatusMethodNotAllowed, "nope"), fiber.StatusMethodNotAllowed},
		{"plain", errors.New("plain"), fiber.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, StatusFor(tt.err))
		})
	}
}

func TestFieldErrors(t *testing.T) {
	fe := FieldErrors{}
	assert.NoError(t, fe.Err())

	fe.Add("title", "This field is required.")
	fe.Add("slug", "post with this slug already exists.")

	err := fe.Err()
	require.Error(t, err)
	var appErr *AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, CodeValidation, appErr.Code)
	assert.Len(t, appErr.Fields, 2)
	assert.Equal(t, "slug: post with this slug already exists.", appErr.Message)
}

func TestRespondWithError(t *testing.T) {
	app := fiber.New()
	app.Get("/unauth", func(c *fiber.Ctx) error {
		return RespondWithError(c, NewNotAuthenticatedError())
	})
	app.Get("/internal", func(c *fiber.Ctx) error {
		return RespondWithError(c, NewInternalError(errors.New("secret dsn")))
	})

	resp, err := app.Test(httptest.NewRequest("GET", "/unauth", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("WWW-Authenticate"), "Bearer")

	resp, err = app.Test(httptest.NewRequest("GET", "/internal", nil))
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	var out ErrorResponse
	require.NoError(t, json.Unmarshal(body, &out))
	assert.Equal(t, CodeInternal, out.Code)
	assert.NotContains(t, string(body), "secret dsn")
}

func TestParsePPOI(t *testing.T) {
	x, y, err := ParsePPOI("0.25x0.75")
	require.NoError(t, err)
	assert.Equal(t, 0.25, x)
	assert.Equal(t, 0.75, y)

	x, y, err = ParsePPOI("1,0")
	require.NoError(t, err)
	assert.Equal(t, 1.0, x)
	assert.Equal(t, 0.0, y)

	_, _, err = ParsePPOI("1.5x0.2")
	assert.Error(t, err)
	_, _, err = ParsePPOI("middle")
	assert.Error(t, err)

	_, _, err = ParsePPOI("NaN,0.5")
	assert.Error(t, err)
	_, _, err = ParsePPOI("0.5x+Inf")
	assert.Error(t, err)

	assert.Equal(t, "0.25x0.75", FormatPPOI(0.25, 0.75))
	assert.Equal(t, "1x0", FormatPPOI(1, 0))
	assert.Equal(t, "0.1235x0.9999", FormatPPOI(0.123456789, 0.99991))
}

func TestNormalizeEmail(t *testing.T) {
	assert.Equal(t, "alice@example.com", NormalizeEmail("  Alice@Example.COM "))
}

func TestUserDisplayName(t *testing.T) {
	u := &User{Email: "a@b.co"}
	assert.Equal(t, "a@b.co", u.DisplayName())
	u.FirstName = "Ada"
	u.LastName = "Lovelace"
	assert.Equal(t, "Ada Lovelace", u.DisplayName())
}

func TestNewSuperuserFlags(t *testing.T) {
	u := NewSuperuser("Root@Blango.dev", "hash")
	assert.True(t, u.IsActive)
	assert.True(t, u.IsStaff)
	assert.True(t, u.IsSuperuser)
	assert.Equal(t, "root@blango.dev", u.Email)
}
