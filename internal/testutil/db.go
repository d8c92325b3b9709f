package testutil

import (
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"blango/internal/database"
	"blango/internal/models"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var dbSeq atomic.Int64

// NewSQLiteDB opens a private in-memory SQLite database with foreign keys on
// and the full schema migrated.
func NewSQLiteDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:blango_test_%d?mode=memory&cache=shared&_foreign_keys=on", dbSeq.Add(1))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:  logger.Default.LogMode(logger.Silent),
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(database.PersistentModels()...))
	return db
}

// TestPassword is the plaintext password of every user made by CreateUser.
const TestPassword = "correct-horse-battery"

var passwordHash = func() string {
	h, err := bcrypt.GenerateFromPassword([]byte(TestPassword), bcrypt.MinCost)
	if err != nil {
		panic(err)
	}
	return string(h)
}()

// UserOption customises a fixture user.
type UserOption func(*models.User)

// Staff marks the fixture user as staff.
func Staff() UserOption {
	return func(u *models.User) { u.IsStaff = true }
}

// Inactive leaves the fixture user unactivated, joined at joined.
func Inactive(joined time.Time) UserOption {
	return func(u *models.User) {
		u.IsActive = false
		u.DateJoined = joined
	}
}

// Named sets first and last name.
func Named(first, last string) UserOption {
	return func(u *models.User) {
		u.FirstName = first
		u.LastName = last
	}
}

// CreateUser inserts an active user with TestPassword.
func CreateUser(t *testing.T, db *gorm.DB, email string, opts ...UserOption) *models.User {
	t.Helper()
	u := &models.User{
		Email:      models.NormalizeEmail(email),
		Password:   passwordHash,
		IsActive:   true,
		DateJoined: time.Now().UTC(),
	}
	for _, opt := range opts {
		opt(u)
	}
	require.NoError(t, db.Create(u).Error)
	return u
}

// PostOption customises a fixture post.
type PostOption func(*models.Post)

// PublishedAt sets the publish time; nil makes a draft.
func PublishedAt(at *time.Time) PostOption {
	return func(p *models.Post) { p.PublishedAt = at }
}

// WithTags attaches already stored tags.
func WithTags(tags ...models.Tag) PostOption {
	return func(p *models.Post) { p.Tags = tags }
}

// CreatePost inserts a post by author, published an hour ago unless overridden.
func CreatePost(t *testing.T, db *gorm.DB, author *models.User, slug string, opts ...PostOption) *models.Post {
	t.Helper()
	published := time.Now().UTC().Add(-time.Hour)
	p := &models.Post{
		AuthorID:    author.ID,
		Title:       "Title " + slug,
		Slug:        slug,
		Summary:     "Summary of " + slug,
		Content:     "Content of " + slug,
		PPOI:        models.DefaultPPOI,
		PublishedAt: &published,
	}
	for _, opt := range opts {
		opt(p)
	}
	require.NoError(t, db.Omit("Tags.*").Create(p).Error)
	return p
}

// Ptr returns a pointer to t.
func Ptr(t time.Time) *time.Time {
	return &t
}
