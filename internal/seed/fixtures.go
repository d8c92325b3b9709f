package seed

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"blango/internal/models"
	"blango/internal/serializers"

	"golang.org/x/crypto/bcrypt"
	"gopkg.in/yaml.v3"
	"gorm.io/gorm"
)

// Fixture is a hand-written data set loaded from YAML, e.g.
//
//	users:
//	  - email: ann@example.com
//	    password: s3cret-pass
//	    staff: true
//	posts:
//	  - author: ann@example.com
//	    title: Hello
//	    summary: First post
//	    content: ...
//	    published_at: 2024-05-01T09:00:00Z
//	    tags: [go]
type Fixture struct {
	Users []FixtureUser `yaml:"users"`
	Tags  []string      `yaml:"tags"`
	Posts []FixturePost `yaml:"posts"`
}

type FixtureUser struct {
	Email     string `yaml:"email"`
	Password  string `yaml:"password"`
	FirstName string `yaml:"first_name"`
	LastName  string `yaml:"last_name"`
	Bio       string `yaml:"bio"`
	Staff     bool   `yaml:"staff"`
	Superuser bool   `yaml:"superuser"`
	Inactive  bool   `yaml:"inactive"`
}

type FixturePost struct {
	Author      string     `yaml:"author"`
	Title       string     `yaml:"title"`
	Slug        string     `yaml:"slug"`
	Summary     string     `yaml:"summary"`
	Content     string     `yaml:"content"`
	PublishedAt *time.Time `yaml:"published_at"`
	Tags        []string   `yaml:"tags"`
	Comments    []struct {
		Creator string `yaml:"creator"`
		Content string `yaml:"content"`
	} `yaml:"comments"`
}

// ParseFixture decodes YAML, rejecting unknown keys.
func ParseFixture(r io.Reader) (*Fixture, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	var f Fixture
	if err := dec.Decode(&f); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse fixture: %w", err)
	}
	return &f, nil
}

// ApplyFixture stores the fixture in one transaction. Users and tags that
// already exist are reused; posts are matched by slug and skipped when present.
func (s *Seeder) ApplyFixture(ctx context.Context, fx *Fixture) (Summary, error) {
	var sum Summary
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		sum = Summary{}
		users := map[string]*models.User{}
		for _, fu := range fx.Users {
			u, created, err := fixtureUser(tx, fu)
			if err != nil {
				return err
			}
			users[u.Email] = u
			if created {
				sum.Users++
			}
		}

		lookupUser := func(email string) (*models.User, error) {
			email = models.NormalizeEmail(email)
			if u, ok := users[email]; ok {
				return u, nil
			}
			var u models.User
			if err := tx.Where("email = ?", email).First(&u).Error; err != nil {
				return nil, fmt.Errorf("fixture user %q: %w", email, err)
			}
			users[email] = &u
			return &u, nil
		}

		tags := map[string]models.Tag{}
		tagFor := func(value string) (models.Tag, error) {
			value = models.NormalizeTag(value)
			if t, ok := tags[value]; ok {
				return t, nil
			}
			var t models.Tag
			err := tx.Where("value = ?", value).First(&t).Error
			switch {
			case errors.Is(err, gorm.ErrRecordNotFound):
				t = models.Tag{Value: value}
				if err := tx.Omit("Posts").Create(&t).Error; err != nil {
					return t, fmt.Errorf("fixture tag %q: %w", value, err)
				}
				sum.Tags++
			case err != nil:
				return t, fmt.Errorf("fixture tag %q: %w", value, err)
			}
			tags[value] = t
			return t, nil
		}
		for _, v := range fx.Tags {
			if _, err := tagFor(v); err != nil {
				return err
			}
		}

		for _, fp := range fx.Posts {
			author, err := lookupUser(fp.Author)
			if err != nil {
				return err
			}
			slug := fp.Slug
			if slug == "" {
				slug = serializers.DeriveSlug(fp.Title)
			}
			var existing int64
			if err := tx.Model(&models.Post{}).Where("slug = ?", slug).Count(&existing).Error; err != nil {
				return err
			}
			if existing > 0 {
				continue
			}

			post := &models.Post{
				AuthorID:    author.ID,
				Title:       fp.Title,
				Slug:        slug,
				Summary:     fp.Summary,
				Content:     fp.Content,
				PPOI:        models.DefaultPPOI,
				PublishedAt: fp.PublishedAt,
			}
			for _, v := range fp.Tags {
				t, err := tagFor(v)
				if err != nil {
					return err
				}
				post.Tags = append(post.Tags, t)
			}
			if err := tx.Omit("Tags.*", "Author", "Comments").Create(post).Error; err != nil {
				return fmt.Errorf("fixture post %q: %w", slug, err)
			}
			sum.Posts++

			for _, fc := range fp.Comments {
				creator, err := lookupUser(fc.Creator)
				if err != nil {
					return err
				}
				c := &models.Comment{
					CreatorID:  creator.ID,
					Content:    strings.TrimSpace(fc.Content),
					ObjectType: models.CommentTargetPost,
					ObjectID:   post.ID,
				}
				if err := tx.Omit("Creator").Create(c).Error; err != nil {
					return fmt.Errorf("fixture comment on %q: %w", slug, err)
				}
				sum.Comments++
			}
		}
		return nil
	})
	return sum, err
}

func fixtureUser(tx *gorm.DB, fu FixtureUser) (*models.User, bool, error) {
	email := models.NormalizeEmail(fu.Email)
	var u models.User
	err := tx.Where("email = ?", email).First(&u).Error
	if err == nil {
		return &u, false, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, err
	}

	password := fu.Password
	if password == "" {
		password = DemoPassword
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, false, fmt.Errorf("hash password for %s: %w", email, err)
	}
	u = models.User{
		Email:       email,
		Password:    string(hash),
		FirstName:   fu.FirstName,
		LastName:    fu.LastName,
		IsActive:    !fu.Inactive,
		IsStaff:     fu.Staff || fu.Superuser,
		IsSuperuser: fu.Superuser,
		DateJoined:  time.Now().UTC(),
	}
	if err := tx.Omit("Profile").Create(&u).Error; err != nil {
		return nil, false, fmt.Errorf("fixture user %s: %w", email, err)
	}
	if err := tx.Create(&models.AuthorProfile{UserID: u.ID, Bio: fu.Bio}).Error; err != nil {
		return nil, false, err
	}
	return &u, true, nil
}
