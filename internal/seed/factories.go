// Package seed creates demo blog data for development databases and tests.
package seed

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"blango/internal/models"
	"blango/internal/serializers"

	"github.com/brianvoe/gofakeit/v6"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// DemoPassword is the password of every generated account.
const DemoPassword = "blango-demo-password"

// Factory builds blog entities with fake content and persists them.
type Factory struct {
	db    *gorm.DB
	opts  Options
	faker *gofakeit.Faker
	hash  string
	seq   int
}

// NewFactory creates a Factory bound to db. The demo password is hashed once.
func NewFactory(db *gorm.DB, opts Options) (*Factory, error) {
	cost := bcrypt.DefaultCost
	if opts.FastHash {
		cost = bcrypt.MinCost
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(DemoPassword), cost)
	if err != nil {
		return nil, fmt.Errorf("hash demo password: %w", err)
	}
	return &Factory{
		db:    db,
		opts:  opts,
		faker: gofakeit.New(opts.RandSeed),
		hash:  string(hash),
	}, nil
}

func (f *Factory) next() int {
	f.seq++
	return f.seq
}

// pastTime picks a moment within the last MaxDays days.
func (f *Factory) pastTime() time.Time {
	now := time.Now().UTC()
	return f.faker.DateRange(now.AddDate(0, 0, -f.opts.MaxDays), now).UTC()
}

func truncate(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	return strings.TrimSpace(string([]rune(s)[:limit]))
}

// BuildUser returns an active account with a unique address. Nothing is stored.
func (f *Factory) BuildUser(overrides ...func(*models.User)) *models.User {
	first, last := f.faker.FirstName(), f.faker.LastName()
	email := fmt.Sprintf("%s.%s%d@%s", first, last, f.next(), f.faker.DomainName())
	u := &models.User{
		Email:      models.NormalizeEmail(email),
		Password:   f.hash,
		FirstName:  first,
		LastName:   last,
		IsActive:   true,
		DateJoined: f.pastTime(),
	}
	for _, o := range overrides {
		o(u)
	}
	return u
}

// CreateUser stores a generated user together with an author profile.
func (f *Factory) CreateUser(ctx context.Context, overrides ...func(*models.User)) (*models.User, error) {
	u := f.BuildUser(overrides...)
	err := f.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit("Profile").Create(u).Error; err != nil {
			return err
		}
		profile := &models.AuthorProfile{UserID: u.ID, Bio: f.faker.Sentence(12)}
		if err := tx.Create(profile).Error; err != nil {
			return err
		}
		u.Profile = profile
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("create user %s: %w", u.Email, err)
	}
	return u, nil
}

// Tag fetches or creates the tag with value.
func (f *Factory) Tag(ctx context.Context, value string) (*models.Tag, error) {
	tag := models.Tag{Value: models.NormalizeTag(value)}
	err := f.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "value"}}, DoNothing: true}).
		Create(&tag).Error
	if err != nil {
		return nil, fmt.Errorf("create tag %q: %w", value, err)
	}
	if tag.ID == 0 {
		if err := f.db.WithContext(ctx).Where("value = ?", tag.Value).First(&tag).Error; err != nil {
			return nil, fmt.Errorf("load tag %q: %w", value, err)
		}
	}
	return &tag, nil
}

// BuildPost returns a post by author with a unique slug. A DraftRatio share of
// posts is left unpublished.
func (f *Factory) BuildPost(author *models.User, overrides ...func(*models.Post)) *models.Post {
	title := truncate(strings.TrimSuffix(f.faker.Sentence(f.faker.Number(3, 8)), "."), 90)
	p := &models.Post{
		AuthorID: author.ID,
		Title:    title,
		Slug:     fmt.Sprintf("%s-%d", serializers.DeriveSlug(title), f.next()),
		Summary:  truncate(f.faker.Sentence(20), 500),
		Content:  f.faker.Paragraph(f.faker.Number(2, 5), 4, 12, "\n\n"),
		PPOI:     models.DefaultPPOI,
	}
	if f.faker.Float64Range(0, 1) >= f.opts.DraftRatio {
		published := f.pastTime()
		p.PublishedAt = &published
	}
	for _, o := range overrides {
		o(p)
	}
	return p
}

// CreatePost stores a generated post carrying tags.
func (f *Factory) CreatePost(ctx context.Context, author *models.User, tags []models.Tag, overrides ...func(*models.Post)) (*models.Post, error) {
	p := f.BuildPost(author, overrides...)
	p.Tags = tags
	if err := f.db.WithContext(ctx).Omit("Tags.*", "Author", "Comments").Create(p).Error; err != nil {
		return nil, fmt.Errorf("create post %s: %w", p.Slug, err)
	}
	return p, nil
}

// CreateComment attaches a generated comment by creator to the object of kind
// models.CommentTargetPost or models.CommentTargetUser.
func (f *Factory) CreateComment(ctx context.Context, creator *models.User, kind string, objectID uint) (*models.Comment, error) {
	c := &models.Comment{
		CreatorID:  creator.ID,
		Content:    f.faker.Sentence(f.faker.Number(5, 25)),
		ObjectType: kind,
		ObjectID:   objectID,
	}
	if err := f.db.WithContext(ctx).Omit("Creator").Create(c).Error; err != nil {
		return nil, fmt.Errorf("create comment: %w", err)
	}
	return c, nil
}
