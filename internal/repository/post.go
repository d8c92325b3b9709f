package repository

import (
	"context"
	"errors"
	"time"

	"blango/internal/cache"
	"blango/internal/filters"
	"blango/internal/models"
	"blango/internal/observability"

	sq "github.com/Masterminds/squirrel"
	"go.opentelemetry.io/otel/attribute"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// MsgSlugTaken is the field error for a duplicate slug.
const MsgSlugTaken = "post with this slug already exists."

// RecentPostsTTL bounds how stale the "recent posts" sidebar may be.
const RecentPostsTTL = time.Minute

// PostQuery describes one page of a post listing.
type PostQuery struct {
	Viewer   filters.Viewer
	Now      time.Time
	Extra    []sq.Sqlizer
	Filter   filters.PostFilter
	Ordering string
	Page     filters.Page
}

// PostRepository defines the interface for post data operations
type PostRepository interface {
	List(ctx context.Context, q PostQuery) ([]models.Post, int64, error)
	GetByID(ctx context.Context, id uint) (*models.Post, error)
	GetBySlug(ctx context.Context, slug string) (*models.Post, error)
	SlugExists(ctx context.Context, slug string, excludeID uint) (bool, error)
	Create(ctx context.Context, post *models.Post) error
	Update(ctx context.Context, post *models.Post) error
	UpdateHeroImage(ctx context.Context, id uint, key, ppoi string) error
	Delete(ctx context.Context, id uint) error
	Recent(ctx context.Context, excludeID uint, limit int, now time.Time) ([]models.Post, error)
}

type postRepository struct {
	db *gorm.DB
}

// NewPostRepository creates a new post repository
func NewPostRepository(db *gorm.DB) PostRepository {
	return &postRepository{db: db}
}

func (r *postRepository) withDetails(db *gorm.DB) *gorm.DB {
	return db.
		Preload("Author").
		Preload("Tags", func(db *gorm.DB) *gorm.DB { return db.Order("tags.value ASC") }).
		Preload("Comments", func(db *gorm.DB) *gorm.DB { return db.Order("comments.created_at ASC, comments.id ASC") }).
		Preload("Comments.Creator")
}

// List applies visibility, extra conditions (time windows), field filters,
// ordering and pagination, returning the page and the total match count.
func (r *postRepository) List(ctx context.Context, q PostQuery) ([]models.Post, int64, error) {
	ctx, end := observability.StartSpan(ctx, "repository.posts.list",
		attribute.Int("page", q.Page.Number), attribute.Int("page_size", q.Page.Size))
	var err error
	defer func() { end(err) }()

	conds := []sq.Sqlizer{filters.Visibility(q.Viewer, q.Now)}
	conds = append(conds, q.Extra...)
	conds = append(conds, q.Filter.Conditions()...)

	base, err := filters.Apply(r.db.WithContext(ctx).Model(&models.Post{}), conds...)
	if err != nil {
		return nil, 0, models.NewInternalError(err)
	}

	var total int64
	if err = base.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, 0, models.NewInternalError(err)
	}

	ordering := q.Ordering
	if ordering == "" {
		ordering = filters.DefaultOrdering
	}
	var posts []models.Post
	err = base.Session(&gorm.Session{}).
		Preload("Author").
		Preload("Tags", func(db *gorm.DB) *gorm.DB { return db.Order("tags.value ASC") }).
		Order(ordering).
		Limit(q.Page.Size).
		Offset(q.Page.Offset()).
		Find(&posts).Error
	if err != nil {
		return nil, 0, models.NewInternalError(err)
	}
	return posts, total, nil
}

func (r *postRepository) GetByID(ctx context.Context, id uint) (*models.Post, error) {
	var post models.Post
	if err := r.withDetails(r.db.WithContext(ctx)).First(&post, id).Error; err != nil {
		return nil, notFoundOr(err, "Post", id)
	}
	return &post, nil
}

func (r *postRepository) GetBySlug(ctx context.Context, slug string) (*models.Post, error) {
	var post models.Post
	if err := r.withDetails(r.db.WithContext(ctx)).Where("slug = ?", slug).First(&post).Error; err != nil {
		return nil, notFoundOr(err, "Post", slug)
	}
	return &post, nil
}

func (r *postRepository) SlugExists(ctx context.Context, slug string, excludeID uint) (bool, error) {
	var n int64
	q := r.db.WithContext(ctx).Model(&models.Post{}).Where("slug = ?", slug)
	if excludeID != 0 {
		q = q.Where("id <> ?", excludeID)
	}
	if err := q.Count(&n).Error; err != nil {
		return false, models.NewInternalError(err)
	}
	return n > 0, nil
}

// Create inserts the post and links post.Tags, which must already be stored.
func (r *postRepository) Create(ctx context.Context, post *models.Post) error {
	if post.PPOI == "" {
		post.PPOI = models.DefaultPPOI
	}
	err := r.db.WithContext(ctx).Omit("Author", "Comments", "Tags.*").Create(post).Error
	if err != nil {
		if isUniqueConstraintError(err) {
			return models.NewFieldError("slug", MsgSlugTaken)
		}
		return models.NewInternalError(err)
	}
	cache.InvalidatePosts(ctx)
	return nil
}

// Update saves scalar columns and replaces the tag set with post.Tags.
func (r *postRepository) Update(ctx context.Context, post *models.Post) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit(clause.Associations).Save(post).Error; err != nil {
			return err
		}
		return replaceTags(tx, post.ID, post.Tags)
	})
	if err != nil {
		if isUniqueConstraintError(err) {
			return models.NewFieldError("slug", MsgSlugTaken)
		}
		return models.NewInternalError(err)
	}
	cache.InvalidatePosts(ctx)
	return nil
}

func replaceTags(tx *gorm.DB, postID uint, tags []models.Tag) error {
	if err := tx.Exec("DELETE FROM post_tags WHERE post_id = ?", postID).Error; err != nil {
		return err
	}
	for _, t := range tags {
		if err := tx.Exec("INSERT INTO post_tags (post_id, tag_id) VALUES (?, ?)", postID, t.ID).Error; err != nil {
			return err
		}
	}
	return nil
}

func (r *postRepository) UpdateHeroImage(ctx context.Context, id uint, key, ppoi string) error {
	res := r.db.WithContext(ctx).Model(&models.Post{}).Where("id = ?", id).
		Updates(map[string]interface{}{"hero_image": key, "ppoi": ppoi})
	if res.Error != nil {
		return models.NewInternalError(res.Error)
	}
	if res.RowsAffected == 0 {
		return models.NewNotFoundError("Post", id)
	}
	return nil
}

// Delete removes the post with its comments and tag links.
func (r *postRepository) Delete(ctx context.Context, id uint) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("object_type = ? AND object_id = ?", models.CommentTargetPost, id).
			Delete(&models.Comment{}).Error; err != nil {
			return err
		}
		if err := tx.Exec("DELETE FROM post_tags WHERE post_id = ?", id).Error; err != nil {
			return err
		}
		res := tx.Delete(&models.Post{}, id)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.NewNotFoundError("Post", id)
		}
		return models.NewInternalError(err)
	}
	cache.InvalidatePosts(ctx)
	return nil
}

// Recent returns the newest published posts other than excludeID.
func (r *postRepository) Recent(ctx context.Context, excludeID uint, limit int, now time.Time) ([]models.Post, error) {
	var posts []models.Post
	err := cache.Aside(ctx, cache.RecentPostsKey(excludeID, limit), &posts, RecentPostsTTL, func() error {
		return r.db.WithContext(ctx).
			Where("published_at <= ? AND id <> ?", now.UTC(), excludeID).
			Order("published_at DESC, id DESC").
			Limit(limit).
			Find(&posts).Error
	})
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	return posts, nil
}
