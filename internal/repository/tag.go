package repository

import (
	"context"
	"errors"
	"time"

	"blango/internal/cache"
	"blango/internal/filters"
	"blango/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// MsgTagTaken is the field error for a duplicate tag value.
const MsgTagTaken = "tag with this value already exists."

// TagListTTL bounds how stale the cached alphabetical tag list may be.
const TagListTTL = 5 * time.Minute

// TagRepository stores lowercase tag values.
type TagRepository interface {
	List(ctx context.Context, page filters.Page) ([]models.Tag, int64, error)
	All(ctx context.Context) ([]models.Tag, error)
	GetByID(ctx context.Context, id uint) (*models.Tag, error)
	GetOrCreate(ctx context.Context, value string) (*models.Tag, error)
	Resolve(ctx context.Context, values []string) ([]models.Tag, error)
	Create(ctx context.Context, tag *models.Tag) error
	Update(ctx context.Context, tag *models.Tag) error
	Delete(ctx context.Context, id uint) error
}

type tagRepository struct {
	db *gorm.DB
}

// NewTagRepository returns a TagRepository backed by db.
func NewTagRepository(db *gorm.DB) TagRepository {
	return &tagRepository{db: db}
}

func (r *tagRepository) List(ctx context.Context, page filters.Page) ([]models.Tag, int64, error) {
	var total int64
	if err := r.db.WithContext(ctx).Model(&models.Tag{}).Count(&total).Error; err != nil {
		return nil, 0, models.NewInternalError(err)
	}
	var tags []models.Tag
	if err := r.db.WithContext(ctx).
		Order("value ASC").
		Limit(page.Size).
		Offset(page.Offset()).
		Find(&tags).Error; err != nil {
		return nil, 0, models.NewInternalError(err)
	}
	return tags, total, nil
}

// All returns every tag alphabetically, served from Redis when possible.
func (r *tagRepository) All(ctx context.Context) ([]models.Tag, error) {
	var tags []models.Tag
	err := cache.Aside(ctx, cache.TagListKey(), &tags, TagListTTL, func() error {
		return r.db.WithContext(ctx).Order("value ASC").Find(&tags).Error
	})
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	return tags, nil
}

func (r *tagRepository) GetByID(ctx context.Context, id uint) (*models.Tag, error) {
	var tag models.Tag
	if err := r.db.WithContext(ctx).First(&tag, id).Error; err != nil {
		return nil, notFoundOr(err, "Tag", id)
	}
	return &tag, nil
}

// GetOrCreate lowercases value so "Go" and "go" resolve to the same row.
func (r *tagRepository) GetOrCreate(ctx context.Context, value string) (*models.Tag, error) {
	value = models.NormalizeTag(value)
	if value == "" {
		return nil, models.NewFieldError("value", "This field may not be blank.")
	}
	db := r.db.WithContext(ctx)
	res := db.Clauses(clause.OnConflict{DoNothing: true}).Omit("Posts").Create(&models.Tag{Value: value})
	if res.Error != nil {
		return nil, models.NewInternalError(res.Error)
	}
	if res.RowsAffected > 0 {
		cache.InvalidateTags(ctx)
	}
	var tag models.Tag
	if err := db.Where("value = ?", value).First(&tag).Error; err != nil {
		return nil, models.NewInternalError(err)
	}
	return &tag, nil
}

// Resolve maps raw values to stored tags, creating missing ones. Duplicates
// after normalisation collapse to one tag; input order is kept.
func (r *tagRepository) Resolve(ctx context.Context, values []string) ([]models.Tag, error) {
	seen := make(map[string]struct{}, len(values))
	out := make([]models.Tag, 0, len(values))
	for _, v := range values {
		norm := models.NormalizeTag(v)
		if norm == "" {
			continue
		}
		if _, dup := seen[norm]; dup {
			continue
		}
		seen[norm] = struct{}{}
		tag, err := r.GetOrCreate(ctx, norm)
		if err != nil {
			return nil, err
		}
		out = append(out, *tag)
	}
	return out, nil
}

func (r *tagRepository) Create(ctx context.Context, tag *models.Tag) error {
	tag.Value = models.NormalizeTag(tag.Value)
	if err := r.db.WithContext(ctx).Omit("Posts").Create(tag).Error; err != nil {
		if isUniqueConstraintError(err) {
			return models.NewFieldError("value", MsgTagTaken)
		}
		return models.NewInternalError(err)
	}
	cache.InvalidateTags(ctx)
	return nil
}

func (r *tagRepository) Update(ctx context.Context, tag *models.Tag) error {
	tag.Value = models.NormalizeTag(tag.Value)
	res := r.db.WithContext(ctx).Model(&models.Tag{}).Where("id = ?", tag.ID).Update("value", tag.Value)
	if res.Error != nil {
		if isUniqueConstraintError(res.Error) {
			return models.NewFieldError("value", MsgTagTaken)
		}
		return models.NewInternalError(res.Error)
	}
	if res.RowsAffected == 0 {
		return models.NewNotFoundError("Tag", tag.ID)
	}
	cache.InvalidateTags(ctx)
	return nil
}

// Delete detaches the tag from every post before removing it.
func (r *tagRepository) Delete(ctx context.Context, id uint) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec("DELETE FROM post_tags WHERE tag_id = ?", id).Error; err != nil {
			return err
		}
		res := tx.Delete(&models.Tag{}, id)
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
			return models.NewNotFoundError("Tag", id)
		}
		return models.NewInternalError(err)
	}
	cache.InvalidateTags(ctx)
	return nil
}
