// Package bootstrap wires the database and Redis for the command-line entry points.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"blango/internal/cache"
	"blango/internal/config"
	"blango/internal/database"
	"blango/internal/middleware"
	"blango/internal/models"
	"blango/internal/seed"

	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// Options control runtime initialization behavior.
type Options struct {
	// SeedDemo fills an empty database with generated posts.
	SeedDemo bool
}

// InitRuntime connects to the database and Redis, ensures the development
// root account and optionally seeds demo data. The Redis client is nil when
// Redis is unreachable.
func InitRuntime(ctx context.Context, cfg *config.Config, opts Options) (*gorm.DB, *redis.Client, error) {
	db, err := database.Connect(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("database connection failed: %w", err)
	}

	cache.InitRedis(cfg.RedisURL)
	rdb := cache.GetClient()

	if err := EnsureDevRoot(ctx, cfg, db); err != nil {
		return nil, nil, fmt.Errorf("bootstrap development root: %w", err)
	}

	if opts.SeedDemo {
		if err := seedIfEmpty(ctx, db); err != nil {
			return nil, nil, fmt.Errorf("seed demo data: %w", err)
		}
	}
	return db, rdb, nil
}

func seedIfEmpty(ctx context.Context, db *gorm.DB) error {
	var posts int64
	if err := db.WithContext(ctx).Model(&models.Post{}).Count(&posts).Error; err != nil {
		return err
	}
	if posts > 0 {
		return nil
	}
	s, err := seed.NewSeeder(db, seed.DefaultOptions(), middleware.Logger)
	if err != nil {
		return err
	}
	_, err = s.Run(ctx)
	return err
}

// EnsureDevRoot creates or promotes the DEV_ROOT_EMAIL superuser. It only acts
// in development with DEV_BOOTSTRAP_ROOT enabled.
func EnsureDevRoot(ctx context.Context, cfg *config.Config, db *gorm.DB) error {
	if cfg == nil || db == nil {
		return nil
	}
	if !strings.EqualFold(cfg.Env, "development") || !cfg.DevBootstrapRoot {
		return nil
	}

	email := models.NormalizeEmail(cfg.DevRootEmail)
	if email == "" {
		email = "root@blango.local"
	}
	if cfg.DevRootPassword == "" {
		return errors.New("DEV_ROOT_PASSWORD must be set when DEV_BOOTSTRAP_ROOT is enabled")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(cfg.DevRootPassword), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash root password: %w", err)
	}

	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var root models.User
		findErr := tx.Where("email = ?", email).First(&root).Error
		switch {
		case errors.Is(findErr, gorm.ErrRecordNotFound):
			root := models.NewSuperuser(email, string(hash))
			if err := tx.Omit("Profile").Create(root).Error; err != nil {
				return err
			}
			return tx.Create(&models.AuthorProfile{UserID: root.ID}).Error
		case findErr != nil:
			return findErr
		default:
			return tx.Model(&root).Updates(map[string]any{
				"is_active":    true,
				"is_staff":     true,
				"is_superuser": true,
			}).Error
		}
	})
	if err != nil {
		return err
	}

	middleware.Logger.Info("development root ensured", slog.String("email", email))
	return nil
}
