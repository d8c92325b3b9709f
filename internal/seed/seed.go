package seed

import (
	"context"
	"fmt"
	"log/slog"

	"blango/internal/models"

	"gorm.io/gorm"
)

// Options configures a seeding run.
type Options struct {
	Users       int
	Posts       int
	MaxTags     int
	MaxComments int
	// MaxDays bounds how far back join and publish dates are spread.
	MaxDays int
	// DraftRatio is the share of posts left unpublished, between 0 and 1.
	DraftRatio float64
	// FastHash hashes the demo password with the minimum bcrypt cost.
	FastHash bool
	// RandSeed makes the generated content reproducible; 0 picks a random seed.
	RandSeed int64
}

// DefaultOptions returns a small but varied data set.
func DefaultOptions() Options {
	return Options{
		Users:       10,
		Posts:       40,
		MaxTags:     3,
		MaxComments: 4,
		MaxDays:     90,
		DraftRatio:  0.1,
	}
}

// Topics are the tag values generated posts draw from.
var Topics = []string{
	"go", "python", "django", "databases", "devops", "testing", "security",
	"frontend", "career", "open-source", "performance", "tutorial",
}

// Summary counts what a run created.
type Summary struct {
	Users    int `json:"users" yaml:"users"`
	Tags     int `json:"tags" yaml:"tags"`
	Posts    int `json:"posts" yaml:"posts"`
	Comments int `json:"comments" yaml:"comments"`
}

// Seeder fills a database with demo content.
type Seeder struct {
	db      *gorm.DB
	opts    Options
	factory *Factory
	logger  *slog.Logger
}

// NewSeeder creates a Seeder. A nil logger uses slog.Default.
func NewSeeder(db *gorm.DB, opts Options, logger *slog.Logger) (*Seeder, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.MaxDays <= 0 {
		opts.MaxDays = 90
	}
	factory, err := NewFactory(db, opts)
	if err != nil {
		return nil, err
	}
	return &Seeder{db: db, opts: opts, factory: factory, logger: logger}, nil
}

// Factory exposes the underlying entity factory.
func (s *Seeder) Factory() *Factory {
	return s.factory
}

// blogTables lists tables in delete order.
var blogTables = []string{"comments", "post_tags", "posts", "tags", "author_profiles", "users"}

// ClearAll removes every blog row. Schema migration bookkeeping is kept.
func (s *Seeder) ClearAll(ctx context.Context) error {
	db := s.db.WithContext(ctx)
	if db.Dialector.Name() == "postgres" {
		sql := "TRUNCATE TABLE comments, post_tags, posts, tags, author_profiles, users RESTART IDENTITY CASCADE"
		if err := db.Exec(sql).Error; err != nil {
			return fmt.Errorf("truncate blog tables: %w", err)
		}
		return nil
	}
	return db.Transaction(func(tx *gorm.DB) error {
		for _, table := range blogTables {
			if err := tx.Exec("DELETE FROM " + table).Error; err != nil {
				return fmt.Errorf("clear %s: %w", table, err)
			}
		}
		return nil
	})
}

// Run generates users, tags, posts and comments.
func (s *Seeder) Run(ctx context.Context) (Summary, error) {
	var sum Summary
	f := s.factory

	users := make([]*models.User, 0, s.opts.Users)
	for range s.opts.Users {
		u, err := f.CreateUser(ctx)
		if err != nil {
			return sum, err
		}
		users = append(users, u)
	}
	sum.Users = len(users)
	if len(users) == 0 {
		return sum, nil
	}

	tags := make([]models.Tag, 0, len(Topics))
	for _, topic := range Topics {
		tag, err := f.Tag(ctx, topic)
		if err != nil {
			return sum, err
		}
		tags = append(tags, *tag)
	}
	sum.Tags = len(tags)

	for range s.opts.Posts {
		author := users[f.faker.Number(0, len(users)-1)]
		post, err := f.CreatePost(ctx, author, s.pickTags(tags))
		if err != nil {
			return sum, err
		}
		sum.Posts++

		n, err := s.comment(ctx, users, models.CommentTargetPost, post.ID)
		sum.Comments += n
		if err != nil {
			return sum, err
		}
	}

	// A few profile comments so the user comment endpoints have data.
	for _, u := range users[:min(3, len(users))] {
		n, err := s.comment(ctx, users, models.CommentTargetUser, u.ID)
		sum.Comments += n
		if err != nil {
			return sum, err
		}
	}

	s.logger.InfoContext(ctx, "seed complete",
		slog.Int("users", sum.Users),
		slog.Int("tags", sum.Tags),
		slog.Int("posts", sum.Posts),
		slog.Int("comments", sum.Comments),
	)
	return sum, nil
}

func (s *Seeder) pickTags(tags []models.Tag) []models.Tag {
	if s.opts.MaxTags <= 0 || len(tags) == 0 {
		return nil
	}
	n := s.factory.faker.Number(0, min(s.opts.MaxTags, len(tags)))
	picked := make([]models.Tag, 0, n)
	seen := make(map[uint]bool, n)
	for len(picked) < n {
		tag := tags[s.factory.faker.Number(0, len(tags)-1)]
		if seen[tag.ID] {
			continue
		}
		seen[tag.ID] = true
		picked = append(picked, tag)
	}
	return picked
}

func (s *Seeder) comment(ctx context.Context, users []*models.User, kind string, objectID uint) (int, error) {
	if s.opts.MaxComments <= 0 {
		return 0, nil
	}
	n := s.factory.faker.Number(0, s.opts.MaxComments)
	for i := range n {
		creator := users[s.factory.faker.Number(0, len(users)-1)]
		if _, err := s.factory.CreateComment(ctx, creator, kind, objectID); err != nil {
			return i, err
		}
	}
	return n, nil
}
