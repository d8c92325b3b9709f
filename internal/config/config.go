// Package config provides application configuration loading and management.
package config

import (
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const defaultJWTSecret = "your-secret-key-change-in-production"

// Config holds application configuration values loaded from file or environment variables.
type Config struct {
	Env      string `mapstructure:"APP_ENV"`
	Port     string `mapstructure:"PORT"`
	BaseURL  string `mapstructure:"BASE_URL"`
	TimeZone string `mapstructure:"TIME_ZONE"`

	JWTSecret string        `mapstructure:"JWT_SECRET"`
	JWTTTL    time.Duration `mapstructure:"JWT_TTL"`

	DBHost                        string `mapstructure:"DB_HOST"`
	DBPort                        string `mapstructure:"DB_PORT"`
	DBUser                        string `mapstructure:"DB_USER"`
	DBPassword                    string `mapstructure:"DB_PASSWORD"`
	DBName                        string `mapstructure:"DB_NAME"`
	DBSSLMode                     string `mapstructure:"DB_SSLMODE"`
	DBSchemaMode                  string `mapstructure:"DB_SCHEMA_MODE"`
	DBAutoMigrateAllowDestructive bool   `mapstructure:"DB_AUTOMIGRATE_ALLOW_DESTRUCTIVE"`
	DBMaxOpenConns                int    `mapstructure:"DB_MAX_OPEN_CONNS"`
	DBMaxIdleConns                int    `mapstructure:"DB_MAX_IDLE_CONNS"`
	DBConnMaxLifetimeMinutes      int    `mapstructure:"DB_CONN_MAX_LIFETIME_MINUTES"`

	RedisURL       string `mapstructure:"REDIS_URL"`
	AllowedOrigins string `mapstructure:"ALLOWED_ORIGINS"`
	FeatureFlags   string `mapstructure:"FEATURE_FLAGS"`

	AccountActivationDays int           `mapstructure:"ACCOUNT_ACTIVATION_DAYS"`
	CleanupInterval       time.Duration `mapstructure:"CLEANUP_INTERVAL"`

	CacheBackend  string        `mapstructure:"CACHE_BACKEND"`
	PostsCacheTTL time.Duration `mapstructure:"POSTS_CACHE_TTL"`
	TagsCacheTTL  time.Duration `mapstructure:"TAGS_CACHE_TTL"`
	UsersCacheTTL time.Duration `mapstructure:"USERS_CACHE_TTL"`
	PageCacheTTL  time.Duration `mapstructure:"PAGE_CACHE_TTL"`

	ThrottleEnabled       bool   `mapstructure:"THROTTLE_ENABLED"`
	ThrottleAnonSustained string `mapstructure:"THROTTLE_ANON_SUSTAINED"`
	ThrottleAnonBurst     string `mapstructure:"THROTTLE_ANON_BURST"`
	ThrottleUserSustained string `mapstructure:"THROTTLE_USER_SUSTAINED"`
	ThrottleUserBurst     string `mapstructure:"THROTTLE_USER_BURST"`
	ThrottleTokenAuth     string `mapstructure:"THROTTLE_TOKEN_AUTH"`

	PageSize int `mapstructure:"PAGE_SIZE"`

	MediaBackend         string `mapstructure:"MEDIA_BACKEND"`
	MediaRoot            string `mapstructure:"MEDIA_ROOT"`
	MediaURL             string `mapstructure:"MEDIA_URL"`
	ImageMaxUploadSizeMB int    `mapstructure:"IMAGE_MAX_UPLOAD_SIZE_MB"`
	MinioEndpoint        string `mapstructure:"MINIO_ENDPOINT"`
	MinioAccessKey       string `mapstructure:"MINIO_ACCESS_KEY"`
	MinioSecretKey       string `mapstructure:"MINIO_SECRET_KEY"`
	MinioBucket          string `mapstructure:"MINIO_BUCKET"`
	MinioUseSSL          bool   `mapstructure:"MINIO_USE_SSL"`

	EmailBackend     string `mapstructure:"EMAIL_BACKEND"`
	SMTPHost         string `mapstructure:"SMTP_HOST"`
	SMTPPort         int    `mapstructure:"SMTP_PORT"`
	SMTPUsername     string `mapstructure:"SMTP_USERNAME"`
	SMTPPassword     string `mapstructure:"SMTP_PASSWORD"`
	DefaultFromEmail string `mapstructure:"DEFAULT_FROM_EMAIL"`

	TracingEnabled     bool    `mapstructure:"TRACING_ENABLED"`
	TracingExporter    string  `mapstructure:"TRACING_EXPORTER"`
	OTLPEndpoint       string  `mapstructure:"OTLP_ENDPOINT"`
	TracingSampleRatio float64 `mapstructure:"TRACING_SAMPLE_RATIO"`

	LogLevel  string `mapstructure:"LOG_LEVEL"`
	LogFormat string `mapstructure:"LOG_FORMAT"`

	DevBootstrapRoot bool   `mapstructure:"DEV_BOOTSTRAP_ROOT"`
	DevRootEmail     string `mapstructure:"DEV_ROOT_EMAIL"`
	DevRootPassword  string `mapstructure:"DEV_ROOT_PASSWORD"`
	DevSeedDemo      bool   `mapstructure:"DEV_SEED_DEMO"`
}

// LoadConfig loads application configuration from file and environment variables.
func LoadConfig() (*Config, error) {
	// A local .env is optional; real environment variables still win.
	_ = godotenv.Load()

	viper.AddConfigPath(".")
	viper.AddConfigPath("..")
	viper.AddConfigPath("../..")
	viper.SetConfigName("config")
	viper.SetConfigType("yml")
	viper.AutomaticEnv()

	// The base file is optional.
	_ = viper.ReadInConfig()

	env := viper.GetString("APP_ENV")
	if env == "" {
		env = "development"
	}

	if env != "development" && env != "test" {
		viper.SetConfigName("config." + env)
		if err := viper.MergeInConfig(); err != nil {
			return nil, fmt.Errorf("required profile-specific config 'config.%s.yml' not found: %w", env, err)
		}
		log.Printf("Loaded profile-specific configuration: config.%s.yml", env)
	}

	setDefaults()

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config into struct: %w", err)
	}
	config.normalize()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

func setDefaults() {
	viper.SetDefault("APP_ENV", "development")
	viper.SetDefault("PORT", "8000")
	viper.SetDefault("BASE_URL", "http://localhost:8000")
	viper.SetDefault("TIME_ZONE", "UTC")

	viper.SetDefault("JWT_SECRET", defaultJWTSecret)
	viper.SetDefault("JWT_TTL", "168h")

	viper.SetDefault("DB_HOST", "localhost")
	viper.SetDefault("DB_PORT", "5432")
	viper.SetDefault("DB_USER", "blango")
	viper.SetDefault("DB_PASSWORD", "password")
	viper.SetDefault("DB_NAME", "blango")
	viper.SetDefault("DB_SSLMODE", "disable")
	viper.SetDefault("DB_SCHEMA_MODE", "hybrid")
	viper.SetDefault("DB_AUTOMIGRATE_ALLOW_DESTRUCTIVE", false)
	viper.SetDefault("DB_MAX_OPEN_CONNS", 25)
	viper.SetDefault("DB_MAX_IDLE_CONNS", 5)
	viper.SetDefault("DB_CONN_MAX_LIFETIME_MINUTES", 5)

	viper.SetDefault("REDIS_URL", "localhost:6379")
	viper.SetDefault("ALLOWED_ORIGINS", "http://localhost:8000,http://127.0.0.1:8000")
	viper.SetDefault("FEATURE_FLAGS", "registration_open=on,comments_enabled=on")

	viper.SetDefault("ACCOUNT_ACTIVATION_DAYS", 7)
	viper.SetDefault("CLEANUP_INTERVAL", "24h")

	viper.SetDefault("CACHE_BACKEND", "redis")
	viper.SetDefault("POSTS_CACHE_TTL", "120s")
	viper.SetDefault("TAGS_CACHE_TTL", "300s")
	viper.SetDefault("USERS_CACHE_TTL", "300s")
	viper.SetDefault("PAGE_CACHE_TTL", "300s")

	viper.SetDefault("THROTTLE_ENABLED", true)
	viper.SetDefault("THROTTLE_ANON_SUSTAINED", "500/day")
	viper.SetDefault("THROTTLE_ANON_BURST", "10/minute")
	viper.SetDefault("THROTTLE_USER_SUSTAINED", "5000/day")
	viper.SetDefault("THROTTLE_USER_BURST", "100/minute")
	viper.SetDefault("THROTTLE_TOKEN_AUTH", "20/minute")

	viper.SetDefault("PAGE_SIZE", 100)

	viper.SetDefault("MEDIA_BACKEND", "local")
	viper.SetDefault("MEDIA_ROOT", "media")
	viper.SetDefault("MEDIA_URL", "/media/")
	viper.SetDefault("IMAGE_MAX_UPLOAD_SIZE_MB", 10)
	viper.SetDefault("MINIO_ENDPOINT", "localhost:9000")
	viper.SetDefault("MINIO_ACCESS_KEY", "")
	viper.SetDefault("MINIO_SECRET_KEY", "")
	viper.SetDefault("MINIO_BUCKET", "blango-media")
	viper.SetDefault("MINIO_USE_SSL", false)

	viper.SetDefault("EMAIL_BACKEND", "console")
	viper.SetDefault("SMTP_HOST", "localhost")
	viper.SetDefault("SMTP_PORT", 25)
	viper.SetDefault("SMTP_USERNAME", "")
	viper.SetDefault("SMTP_PASSWORD", "")
	viper.SetDefault("DEFAULT_FROM_EMAIL", "no-reply@blango.local")

	viper.SetDefault("TRACING_ENABLED", false)
	viper.SetDefault("TRACING_EXPORTER", "stdout")
	viper.SetDefault("OTLP_ENDPOINT", "localhost:4318")
	viper.SetDefault("TRACING_SAMPLE_RATIO", 1.0)

	viper.SetDefault("LOG_LEVEL", "info")
	viper.SetDefault("LOG_FORMAT", "text")

	viper.SetDefault("DEV_BOOTSTRAP_ROOT", false)
	viper.SetDefault("DEV_ROOT_EMAIL", "root@blango.local")
	viper.SetDefault("DEV_ROOT_PASSWORD", "")
	viper.SetDefault("DEV_SEED_DEMO", false)
}

func (c *Config) normalize() {
	c.Env = strings.ToLower(strings.TrimSpace(c.Env))
	c.DBSSLMode = strings.ToLower(strings.TrimSpace(c.DBSSLMode))
	c.CacheBackend = strings.ToLower(strings.TrimSpace(c.CacheBackend))
	c.MediaBackend = strings.ToLower(strings.TrimSpace(c.MediaBackend))
	c.EmailBackend = strings.ToLower(strings.TrimSpace(c.EmailBackend))
	c.BaseURL = strings.TrimRight(strings.TrimSpace(c.BaseURL), "/")
	if c.MediaURL != "" && !strings.HasSuffix(c.MediaURL, "/") {
		c.MediaURL += "/"
	}
}

// IsProduction reports whether the config targets a production deployment.
func (c *Config) IsProduction() bool {
	return c.Env == "production" || c.Env == "prod"
}

// Location returns the zone used for calendar-day filtering.
func (c *Config) Location() *time.Location {
	if c.TimeZone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(c.TimeZone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Validate ensures that required configuration values are present and meet security standards.
func (c *Config) Validate() error {
	if c.Port == "" {
		return errors.New("PORT is required")
	}
	if c.JWTSecret == "" {
		return errors.New("JWT_SECRET is required")
	}
	if c.AccountActivationDays <= 0 {
		return errors.New("ACCOUNT_ACTIVATION_DAYS must be positive")
	}
	if c.TimeZone != "" {
		if _, err := time.LoadLocation(c.TimeZone); err != nil {
			return fmt.Errorf("TIME_ZONE %q: %w", c.TimeZone, err)
		}
	}

	switch c.CacheBackend {
	case "redis", "memory", "none":
	default:
		return fmt.Errorf("CACHE_BACKEND must be redis, memory or none, got %q", c.CacheBackend)
	}
	for name, ttl := range map[string]time.Duration{
		"POSTS_CACHE_TTL": c.PostsCacheTTL,
		"TAGS_CACHE_TTL":  c.TagsCacheTTL,
		"USERS_CACHE_TTL": c.UsersCacheTTL,
		"PAGE_CACHE_TTL":  c.PageCacheTTL,
	} {
		if ttl <= 0 {
			return fmt.Errorf("%s must be positive", name)
		}
	}

	for name, raw := range map[string]string{
		"THROTTLE_ANON_SUSTAINED": c.ThrottleAnonSustained,
		"THROTTLE_ANON_BURST":     c.ThrottleAnonBurst,
		"THROTTLE_USER_SUSTAINED": c.ThrottleUserSustained,
		"THROTTLE_USER_BURST":     c.ThrottleUserBurst,
		"THROTTLE_TOKEN_AUTH":     c.ThrottleTokenAuth,
	} {
		if _, err := ParseRate(raw); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}

	switch c.MediaBackend {
	case "local":
	case "minio":
		if c.MinioEndpoint == "" || c.MinioBucket == "" {
			return errors.New("MINIO_ENDPOINT and MINIO_BUCKET are required when MEDIA_BACKEND=minio")
		}
	default:
		return fmt.Errorf("MEDIA_BACKEND must be local or minio, got %q", c.MediaBackend)
	}

	switch c.EmailBackend {
	case "console", "smtp":
	default:
		return fmt.Errorf("EMAIL_BACKEND must be console or smtp, got %q", c.EmailBackend)
	}

	if c.PageSize <= 0 || c.PageSize > 100 {
		return errors.New("PAGE_SIZE must be between 1 and 100")
	}

	// Strict checks for production
	if c.IsProduction() {
		if c.JWTSecret == defaultJWTSecret {
			return errors.New("JWT_SECRET must be changed from the default value in production")
		}
		if len(c.JWTSecret) < 32 {
			return errors.New("JWT_SECRET must be at least 32 characters in production")
		}
		if c.DBPassword == "password" || c.DBPassword == "" {
			return errors.New("a strong DB_PASSWORD is required in production")
		}
		if c.DBSSLMode == "disable" || c.DBSSLMode == "" {
			return errors.New("DB_SSLMODE must enable TLS in production")
		}
		if c.AllowedOrigins == "*" {
			log.Println("WARNING: ALLOWED_ORIGINS is set to '*' in production. This is insecure.")
		}
	} else if len(c.JWTSecret) < 32 {
		log.Println("WARNING: JWT_SECRET is shorter than 32 characters. Consider using a stronger secret for production.")
	}

	return nil
}

// Rate is a request quota over a fixed window, e.g. "100/minute".
type Rate struct {
	Limit  int
	Window time.Duration
}

// ParseRate parses "N/second|minute|hour|day". Only the first letter of the
// period is significant, so "10/min" and "10/m" are accepted too.
func ParseRate(raw string) (Rate, error) {
	parts := strings.SplitN(strings.TrimSpace(raw), "/", 2)
	if len(parts) != 2 {
		return Rate{}, fmt.Errorf("rate %q must look like 100/minute", raw)
	}
	n, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil || n <= 0 {
		return Rate{}, fmt.Errorf("rate %q has an invalid request count", raw)
	}
	period := strings.ToLower(strings.TrimSpace(parts[1]))
	if period == "" {
		return Rate{}, fmt.Errorf("rate %q has no period", raw)
	}
	var window time.Duration
	switch period[0] {
	case 's':
		window = time.Second
	case 'm':
		window = time.Minute
	case 'h':
		window = time.Hour
	case 'd':
		window = 24 * time.Hour
	default:
		return Rate{}, fmt.Errorf("rate %q has unknown period %q", raw, period)
	}
	return Rate{Limit: n, Window: window}, nil
}
