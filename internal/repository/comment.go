package repository

import (
	"context"

	"blango/internal/filters"
	"blango/internal/models"

	"gorm.io/gorm"
)

// CommentRepository defines interface for comment operations
type CommentRepository interface {
	Create(ctx context.Context, comment *models.Comment) error
	GetByID(ctx context.Context, id uint) (*models.Comment, error)
	ListForObject(ctx context.Context, objectType string, objectID uint) ([]models.Comment, error)
	PageForObject(ctx context.Context, objectType string, objectID uint, page filters.Page) ([]models.Comment, int64, error)
	List(ctx context.Context, page filters.Page) ([]models.Comment, int64, error)
	Delete(ctx context.Context, id uint) error
}

type commentRepository struct {
	db *gorm.DB
}

// NewCommentRepository creates a new CommentRepository
func NewCommentRepository(db *gorm.DB) CommentRepository {
	return &commentRepository{db: db}
}

// Create checks that the polymorphic target exists before inserting.
func (r *commentRepository) Create(ctx context.Context, comment *models.Comment) error {
	if !models.ValidCommentTarget(comment.ObjectType) {
		return models.NewFieldError("object_type", "Comments can only be attached to posts or users.")
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var n int64
		if err := tx.Table(comment.ObjectType).Where("id = ?", comment.ObjectID).Count(&n).Error; err != nil {
			return models.NewInternalError(err)
		}
		if n == 0 {
			return models.NewNotFoundError(targetResource(comment.ObjectType), comment.ObjectID)
		}
		if err := tx.Omit("Creator").Create(comment).Error; err != nil {
			return models.NewInternalError(err)
		}
		return tx.Preload("Creator").First(comment, comment.ID).Error
	})
}

func targetResource(objectType string) string {
	if objectType == models.CommentTargetUser {
		return "User"
	}
	return "Post"
}

func (r *commentRepository) GetByID(ctx context.Context, id uint) (*models.Comment, error) {
	var comment models.Comment
	if err := r.db.WithContext(ctx).Preload("Creator").First(&comment, id).Error; err != nil {
		return nil, notFoundOr(err, "Comment", id)
	}
	return &comment, nil
}

// ListForObject returns a target's comments oldest first.
func (r *commentRepository) ListForObject(ctx context.Context, objectType string, objectID uint) ([]models.Comment, error) {
	var comments []models.Comment
	err := r.db.WithContext(ctx).
		Preload("Creator").
		Where("object_type = ? AND object_id = ?", objectType, objectID).
		Order("created_at ASC, id ASC").
		Find(&comments).Error
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	return comments, nil
}

// PageForObject is ListForObject one page at a time, with the target's total.
func (r *commentRepository) PageForObject(ctx context.Context, objectType string, objectID uint, page filters.Page) ([]models.Comment, int64, error) {
	scope := r.db.WithContext(ctx).Model(&models.Comment{}).
		Where("object_type = ? AND object_id = ?", objectType, objectID)
	var total int64
	if err := scope.Count(&total).Error; err != nil {
		return nil, 0, models.NewInternalError(err)
	}
	var comments []models.Comment
	err := r.db.WithContext(ctx).
		Preload("Creator").
		Where("object_type = ? AND object_id = ?", objectType, objectID).
		Order("created_at ASC, id ASC").
		Limit(page.Size).
		Offset(page.Offset()).
		Find(&comments).Error
	if err != nil {
		return nil, 0, models.NewInternalError(err)
	}
	return comments, total, nil
}

// List pages through every comment newest first, for moderation.
func (r *commentRepository) List(ctx context.Context, page filters.Page) ([]models.Comment, int64, error) {
	var total int64
	if err := r.db.WithContext(ctx).Model(&models.Comment{}).Count(&total).Error; err != nil {
		return nil, 0, models.NewInternalError(err)
	}
	var comments []models.Comment
	err := r.db.WithContext(ctx).
		Preload("Creator").
		Order("created_at DESC, id DESC").
		Limit(page.Size).
		Offset(page.Offset()).
		Find(&comments).Error
	if err != nil {
		return nil, 0, models.NewInternalError(err)
	}
	return comments, total, nil
}

func (r *commentRepository) Delete(ctx context.Context, id uint) error {
	res := r.db.WithContext(ctx).Delete(&models.Comment{}, id)
	if res.Error != nil {
		return models.NewInternalError(res.Error)
	}
	if res.RowsAffected == 0 {
		return models.NewNotFoundError("Comment", id)
	}
	return nil
}
