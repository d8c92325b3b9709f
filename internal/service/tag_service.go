package service

import (
	"context"
	"net/http"

	"blango/internal/filters"
	"blango/internal/models"
	"blango/internal/permissions"
	"blango/internal/repository"
	"blango/internal/serializers"
)

type TagService struct {
	tagRepo repository.TagRepository
}

func NewTagService(tagRepo repository.TagRepository) *TagService {
	return &TagService{tagRepo: tagRepo}
}

func (s *TagService) List(ctx context.Context, page filters.Page) ([]models.Tag, int64, error) {
	tags, total, err := s.tagRepo.List(ctx, page)
	if err != nil {
		return nil, 0, err
	}
	if page.Beyond(total) {
		return nil, 0, models.NewNotFoundMessage("Invalid page.")
	}
	return tags, total, nil
}

// All returns every tag, for the sidebar.
func (s *TagService) All(ctx context.Context) ([]models.Tag, error) {
	return s.tagRepo.All(ctx)
}

func (s *TagService) Get(ctx context.Context, id uint) (*models.Tag, error) {
	return s.tagRepo.GetByID(ctx, id)
}

func (s *TagService) Create(ctx context.Context, actor permissions.Requester, in serializers.TagInput) (*models.Tag, error) {
	actor.Method = http.MethodPost
	if err := permissions.Check(permissions.IsAuthenticatedOrReadOnly, actor, nil); err != nil {
		return nil, err
	}
	if err := in.Validate(); err != nil {
		return nil, err
	}
	tag := &models.Tag{Value: in.Value}
	if err := s.tagRepo.Create(ctx, tag); err != nil {
		return nil, err
	}
	return tag, nil
}

func (s *TagService) Update(ctx context.Context, actor permissions.Requester, id uint, in serializers.TagInput) (*models.Tag, error) {
	actor.Method = http.MethodPut
	if err := permissions.Check(permissions.IsAuthenticatedOrReadOnly, actor, nil); err != nil {
		return nil, err
	}
	tag, err := s.tagRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := in.Validate(); err != nil {
		return nil, err
	}
	tag.Value = in.Value
	if err := s.tagRepo.Update(ctx, tag); err != nil {
		return nil, err
	}
	return tag, nil
}

func (s *TagService) Delete(ctx context.Context, actor permissions.Requester, id uint) error {
	actor.Method = http.MethodDelete
	if err := permissions.Check(permissions.IsAuthenticatedOrReadOnly, actor, nil); err != nil {
		return err
	}
	return s.tagRepo.Delete(ctx, id)
}
