package repository

import (
	"context"
	"errors"
	"time"

	"blango/internal/filters"
	"blango/internal/models"

	"gorm.io/gorm"
)

// Field error messages shared with the serializers.
const (
	MsgEmailTaken   = "user with this email address already exists."
	MsgUserHasPosts = "Cannot delete user because they are referenced by posts."
)

// UserRepository defines persistence operations for users.
type UserRepository interface {
	GetByID(ctx context.Context, id uint) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	Create(ctx context.Context, user *models.User) error
	Update(ctx context.Context, user *models.User) error
	Delete(ctx context.Context, id uint) error
	List(ctx context.Context, page filters.Page) ([]models.User, int64, error)
	ListInactiveJoinedBefore(ctx context.Context, cutoff time.Time) ([]models.User, error)
	CountPosts(ctx context.Context, id uint) (int64, error)
	TouchLastLogin(ctx context.Context, id uint, at time.Time) error
}

type userRepository struct {
	db *gorm.DB
}

// NewUserRepository returns a new UserRepository implementation.
func NewUserRepository(db *gorm.DB) UserRepository {
	return &userRepository{db: db}
}

func (r *userRepository) GetByID(ctx context.Context, id uint) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).Preload("Profile").First(&user, id).Error; err != nil {
		return nil, notFoundOr(err, "User", id)
	}
	return &user, nil
}

// GetByEmail matches case-insensitively; stored addresses are already lowercase.
func (r *userRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	normalized := models.NormalizeEmail(email)
	if err := r.db.WithContext(ctx).Preload("Profile").Where("email = ?", normalized).First(&user).Error; err != nil {
		return nil, notFoundOr(err, "User", normalized)
	}
	return &user, nil
}

func (r *userRepository) Create(ctx context.Context, user *models.User) error {
	user.Email = models.NormalizeEmail(user.Email)
	if user.DateJoined.IsZero() {
		user.DateJoined = time.Now().UTC()
	}
	if err := r.db.WithContext(ctx).Omit("Profile").Create(user).Error; err != nil {
		if isUniqueConstraintError(err) {
			return models.NewFieldError("email", MsgEmailTaken)
		}
		return models.NewInternalError(err)
	}
	return nil
}

// Update writes every column, including false booleans.
func (r *userRepository) Update(ctx context.Context, user *models.User) error {
	user.Email = models.NormalizeEmail(user.Email)
	if err := r.db.WithContext(ctx).Omit("Profile").Save(user).Error; err != nil {
		if isUniqueConstraintError(err) {
			return models.NewFieldError("email", MsgEmailTaken)
		}
		return models.NewInternalError(err)
	}
	return nil
}

// Delete refuses while the user authors posts. Otherwise it removes the user's
// comments, comments about the user and the profile in the same transaction.
func (r *userRepository) Delete(ctx context.Context, id uint) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var user models.User
		if err := tx.Select("id").First(&user, id).Error; err != nil {
			return notFoundOr(err, "User", id)
		}

		var posts int64
		if err := tx.Model(&models.Post{}).Where("author_id = ?", id).Count(&posts).Error; err != nil {
			return models.NewInternalError(err)
		}
		if posts > 0 {
			return models.NewProtectedError(MsgUserHasPosts)
		}

		steps := []*gorm.DB{
			tx.Where("creator_id = ?", id).Delete(&models.Comment{}),
			tx.Where("object_type = ? AND object_id = ?", models.CommentTargetUser, id).Delete(&models.Comment{}),
			tx.Where("user_id = ?", id).Delete(&models.AuthorProfile{}),
			tx.Delete(&models.User{}, id),
		}
		for _, step := range steps {
			if step.Error != nil {
				return models.NewInternalError(step.Error)
			}
		}
		return nil
	})
}

func (r *userRepository) List(ctx context.Context, page filters.Page) ([]models.User, int64, error) {
	var total int64
	if err := r.db.WithContext(ctx).Model(&models.User{}).Count(&total).Error; err != nil {
		return nil, 0, models.NewInternalError(err)
	}
	var users []models.User
	if err := r.db.WithContext(ctx).
		Order("email ASC").
		Limit(page.Size).
		Offset(page.Offset()).
		Find(&users).Error; err != nil {
		return nil, 0, models.NewInternalError(err)
	}
	return users, total, nil
}

func (r *userRepository) ListInactiveJoinedBefore(ctx context.Context, cutoff time.Time) ([]models.User, error) {
	var users []models.User
	if err := r.db.WithContext(ctx).
		Where("is_active = ? AND date_joined < ?", false, cutoff.UTC()).
		Order("id ASC").
		Find(&users).Error; err != nil {
		return nil, models.NewInternalError(err)
	}
	return users, nil
}

func (r *userRepository) CountPosts(ctx context.Context, id uint) (int64, error) {
	var n int64
	if err := r.db.WithContext(ctx).Model(&models.Post{}).Where("author_id = ?", id).Count(&n).Error; err != nil {
		return 0, models.NewInternalError(err)
	}
	return n, nil
}

func (r *userRepository) TouchLastLogin(ctx context.Context, id uint, at time.Time) error {
	res := r.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", id).Update("last_login", at.UTC())
	if res.Error != nil {
		return models.NewInternalError(res.Error)
	}
	if res.RowsAffected == 0 {
		return models.NewNotFoundError("User", id)
	}
	return nil
}

// ProfileRepository stores author biographies.
type ProfileRepository interface {
	GetOrCreate(ctx context.Context, userID uint) (*models.AuthorProfile, error)
	Update(ctx context.Context, profile *models.AuthorProfile) error
}

type profileRepository struct {
	db *gorm.DB
}

// NewProfileRepository returns a ProfileRepository backed by db.
func NewProfileRepository(db *gorm.DB) ProfileRepository {
	return &profileRepository{db: db}
}

func (r *profileRepository) GetOrCreate(ctx context.Context, userID uint) (*models.AuthorProfile, error) {
	var profile models.AuthorProfile
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&profile).Error
	if err == nil {
		return &profile, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, models.NewInternalError(err)
	}
	profile = models.AuthorProfile{UserID: userID}
	if err := r.db.WithContext(ctx).Create(&profile).Error; err != nil {
		if isUniqueConstraintError(err) {
			// Lost a race with a concurrent create.
			if err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&profile).Error; err != nil {
				return nil, models.NewInternalError(err)
			}
			return &profile, nil
		}
		return nil, models.NewInternalError(err)
	}
	return &profile, nil
}

func (r *profileRepository) Update(ctx context.Context, profile *models.AuthorProfile) error {
	if err := r.db.WithContext(ctx).Omit("User").Save(profile).Error; err != nil {
		return models.NewInternalError(err)
	}
	return nil
}
