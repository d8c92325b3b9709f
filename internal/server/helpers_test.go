package server

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSafeNext(t *testing.T) {
	tests := map[string]string{
		"":                     "/",
		"/accounts/profile/":   "/accounts/profile/",
		"/post/hello/?page=2":  "/post/hello/?page=2",
		"https://evil.example": "/",
		"//evil.example/":      "/",
		"/\\evil.example":      "/",
	}
	for in, want := range tests {
		assert.Equal(t, want, safeNext(in), in)
	}
}

func TestIsAPIPath(t *testing.T) {
	assert.True(t, isAPIPath("/api/v1/posts/"))
	assert.True(t, isAPIPath("/health/live"))
	assert.True(t, isAPIPath("/metrics"))
	assert.False(t, isAPIPath("/"))
	assert.False(t, isAPIPath("/post/hello/"))
	assert.False(t, isAPIPath("/accounts/login/"))
}
