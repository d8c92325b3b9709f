package service

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"blango/internal/featureflags"
	"blango/internal/filters"
	"blango/internal/models"
	"blango/internal/permissions"
	"blango/internal/repository"
)

const (
	maxCommentLen       = 10000
	MsgCommentsDisabled = "Comments are currently disabled."
)

type CommentService struct {
	commentRepo repository.CommentRepository
	userRepo    repository.UserRepository
	posts       *PostService
	flags       *featureflags.Manager
	feed        CommentPublisher
}

func NewCommentService(
	commentRepo repository.CommentRepository,
	userRepo repository.UserRepository,
	posts *PostService,
	flags *featureflags.Manager,
	feed CommentPublisher,
) *CommentService {
	return &CommentService{
		commentRepo: commentRepo,
		userRepo:    userRepo,
		posts:       posts,
		flags:       flags,
		feed:        feed,
	}
}

func (s *CommentService) validate(actor permissions.Requester, content string) (string, error) {
	if !actor.Authenticated() {
		return "", models.NewNotAuthenticatedError()
	}
	if !s.flags.Enabled(featureflags.CommentsEnabled, actor.ID) {
		return "", models.NewForbiddenError(MsgCommentsDisabled)
	}
	content = strings.TrimSpace(content)
	if content == "" {
		return "", models.NewFieldError("content", "This field may not be blank.")
	}
	if utf8.RuneCountInString(content) > maxCommentLen {
		return "", models.NewFieldError("content", fmt.Sprintf("Ensure this field has no more than %d characters.", maxCommentLen))
	}
	return content, nil
}

// ListForPost returns the comments on a post the actor can see.
func (s *CommentService) ListForPost(ctx context.Context, actor permissions.Requester, postID uint) ([]models.Comment, error) {
	if _, err := s.posts.Get(ctx, actor, postID); err != nil {
		return nil, err
	}
	return s.commentRepo.ListForObject(ctx, models.CommentTargetPost, postID)
}

// CreateOnPost adds a comment to a visible post and publishes it to live subscribers.
func (s *CommentService) CreateOnPost(ctx context.Context, actor permissions.Requester, postID uint, content string) (*models.Comment, error) {
	content, err := s.validate(actor, content)
	if err != nil {
		return nil, err
	}
	if _, err := s.posts.Get(ctx, actor, postID); err != nil {
		return nil, err
	}
	comment := &models.Comment{
		CreatorID:  actor.ID,
		Content:    content,
		ObjectType: models.CommentTargetPost,
		ObjectID:   postID,
	}
	if err := s.commentRepo.Create(ctx, comment); err != nil {
		return nil, err
	}
	if s.feed != nil {
		s.feed.PublishComment(ctx, postID, comment)
	}
	return comment, nil
}

// ListForUser returns one page of the comments attached to the user with
// email, oldest first.
func (s *CommentService) ListForUser(ctx context.Context, email string, page filters.Page) ([]models.Comment, int64, error) {
	user, err := s.userRepo.GetByEmail(ctx, email)
	if err != nil {
		return nil, 0, err
	}
	comments, total, err := s.commentRepo.PageForObject(ctx, models.CommentTargetUser, user.ID, page)
	if err != nil {
		return nil, 0, err
	}
	if page.Beyond(total) {
		return nil, 0, models.NewNotFoundMessage("Invalid page.")
	}
	return comments, total, nil
}

// CreateOnUser attaches a comment to a user.
func (s *CommentService) CreateOnUser(ctx context.Context, actor permissions.Requester, email, content string) (*models.Comment, error) {
	content, err := s.validate(actor, content)
	if err != nil {
		return nil, err
	}
	user, err := s.userRepo.GetByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	comment := &models.Comment{
		CreatorID:  actor.ID,
		Content:    content,
		ObjectType: models.CommentTargetUser,
		ObjectID:   user.ID,
	}
	if err := s.commentRepo.Create(ctx, comment); err != nil {
		return nil, err
	}
	return comment, nil
}

// List pages through all comments for moderation.
func (s *CommentService) List(ctx context.Context, page filters.Page) ([]models.Comment, int64, error) {
	comments, total, err := s.commentRepo.List(ctx, page)
	if err != nil {
		return nil, 0, err
	}
	if page.Beyond(total) {
		return nil, 0, models.NewNotFoundMessage("Invalid page.")
	}
	return comments, total, nil
}

func (s *CommentService) Delete(ctx context.Context, id uint) error {
	return s.commentRepo.Delete(ctx, id)
}
