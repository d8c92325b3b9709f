package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	return &Config{
		Env:                   "development",
		Port:                  "8000",
		JWTSecret:             "secure-secret-at-least-32-chars-long",
		DBPassword:            "secure-password",
		DBSSLMode:             "disable",
		AccountActivationDays: 7,
		CacheBackend:          "redis",
		PostsCacheTTL:         120 * time.Second,
		TagsCacheTTL:          300 * time.Second,
		UsersCacheTTL:         300 * time.Second,
		PageCacheTTL:          300 * time.Second,
		ThrottleAnonSustained: "500/day",
		ThrottleAnonBurst:     "10/minute",
		ThrottleUserSustained: "5000/day",
		ThrottleUserBurst:     "100/minute",
		ThrottleTokenAuth:     "20/minute",
		PageSize:              100,
		MediaBackend:          "local",
		EmailBackend:          "console",
	}
}

func TestConfig_ValidateSSLMode(t *testing.T) {
	tests := []struct {
		name        string
		env         string
		sslMode     string
		expectError bool
	}{
		{"Production with empty SSL mode", "production", "", true},
		{"Production with disable SSL mode", "production", "disable", true},
		{"Production with require SSL mode", "production", "require", false},
		{"Prod with verify-full SSL mode", "prod", "verify-full", false},
		{"Development with disable SSL mode", "development", "disable", false},
		{"Test with empty SSL mode", "test", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := validConfig()
			c.Env = tt.env
			c.DBSSLMode = tt.sslMode

			err := c.Validate()
			if tt.expectError {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestConfig_ValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"zero activation days", func(c *Config) { c.AccountActivationDays = 0 }},
		{"unknown cache backend", func(c *Config) { c.CacheBackend = "memcached" }},
		{"non-positive ttl", func(c *Config) { c.PostsCacheTTL = 0 }},
		{"bad throttle rate", func(c *Config) { c.ThrottleAnonBurst = "ten/minute" }},
		{"unknown media backend", func(c *Config) { c.MediaBackend = "s3" }},
		{"minio without bucket", func(c *Config) { c.MediaBackend = "minio"; c.MinioEndpoint = "x:9000" }},
		{"page size too big", func(c *Config) { c.PageSize = 500 }},
		{"bad time zone", func(c *Config) { c.TimeZone = "Mars/Olympus" }},
		{"default secret in production", func(c *Config) {
			c.Env = "production"
			c.DBSSLMode = "require"
			c.JWTSecret = defaultJWTSecret
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := validConfig()
			tt.mutate(c)
			assert.Error(t, c.Validate())
		})
	}
}

func TestParseRate(t *testing.T) {
	tests := []struct {
		raw    string
		limit  int
		window time.Duration
		ok     bool
	}{
		{"500/day", 500, 24 * time.Hour, true},
		{"10/minute", 10, time.Minute, true},
		{"5/s", 5, time.Second, true},
		{"3/hour", 3, time.Hour, true},
		{"10", 0, 0, false},
		{"0/minute", 0, 0, false},
		{"5/fortnight", 0, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			r, err := ParseRate(tt.raw)
			if !tt.ok {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.limit, r.Limit)
			assert.Equal(t, tt.window, r.Window)
		})
	}
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	defer viper.Reset()
	t.Setenv("APP_ENV", "test")
	t.Setenv("DB_SSLMODE", "  DISABLE  ")
	t.Setenv("ACCOUNT_ACTIVATION_DAYS", "3")
	t.Setenv("CACHE_BACKEND", "Memory")
	t.Setenv("POSTS_CACHE_TTL", "150s")

	c, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "disable", c.DBSSLMode)
	assert.Equal(t, 3, c.AccountActivationDays)
	assert.Equal(t, "memory", c.CacheBackend)
	assert.Equal(t, 150*time.Second, c.PostsCacheTTL)
	assert.Equal(t, 24*time.Hour, c.CleanupInterval)
	assert.Equal(t, "/media/", c.MediaURL)
}

func TestLocationFallsBackToUTC(t *testing.T) {
	c := &Config{}
	assert.Equal(t, time.UTC, c.Location())
	c.TimeZone = "Europe/Berlin"
	assert.Equal(t, "Europe/Berlin", c.Location().String())
}
