package server

import (
	"blango/internal/models"
	"blango/internal/serializers"
	"blango/internal/service"

	"github.com/gofiber/fiber/v2"
)

// ListTags handles GET /api/v1/tags/
// @Summary List tags
// @Tags tags
// @Produce json
// @Param page query int false "Page number"
// @Success 200 {object} serializers.Page[serializers.Tag]
// @Failure 404 {object} models.ErrorResponse
// @Router /tags/ [get]
func (s *Server) ListTags(c *fiber.Ctx) error {
	page, err := s.parsePage(c)
	if err != nil {
		return models.RespondWithError(c, err)
	}
	tags, total, err := s.tagService.List(c.UserContext(), page)
	if err != nil {
		return models.RespondWithError(c, err)
	}
	return c.JSON(serializers.Paginate(serializers.NewTags(tags), total, page, requestURL(c)))
}

// GetTag handles GET /api/v1/tags/:id
// @Summary Get a tag
// @Tags tags
// @Produce json
// @Param id path int true "Tag ID"
// @Success 200 {object} serializers.Tag
// @Failure 404 {object} models.ErrorResponse
// @Router /tags/{id} [get]
func (s *Server) GetTag(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return models.RespondWithError(c, err)
	}
	tag, err := s.tagService.Get(c.UserContext(), id)
	if err != nil {
		return models.RespondWithError(c, err)
	}
	return c.JSON(serializers.NewTags([]models.Tag{*tag})[0])
}

// CreateTag handles POST /api/v1/tags/
// @Summary Create a tag
// @Description Values are stored lower-cased; an existing value is rejected.
// @Tags tags
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body serializers.TagInput true "Tag"
// @Success 201 {object} serializers.Tag
// @Failure 400 {object} models.ErrorResponse
// @Failure 401 {object} models.ErrorResponse
// @Router /tags/ [post]
func (s *Server) CreateTag(c *fiber.Ctx) error {
	var in serializers.TagInput
	if err := parseJSON(c, &in); err != nil {
		return models.RespondWithError(c, err)
	}
	tag, err := s.tagService.Create(c.UserContext(), requester(c), in)
	if err != nil {
		return models.RespondWithError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(serializers.NewTags([]models.Tag{*tag})[0])
}

// UpdateTag handles PUT and PATCH /api/v1/tags/:id
// @Summary Rename a tag
// @Tags tags
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "Tag ID"
// @Param request body serializers.TagInput true "Tag"
// @Success 200 {object} serializers.Tag
// @Failure 400 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Router /tags/{id} [put]
func (s *Server) UpdateTag(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return models.RespondWithError(c, err)
	}
	var in serializers.TagInput
	if err := parseJSON(c, &in); err != nil {
		return models.RespondWithError(c, err)
	}
	tag, err := s.tagService.Update(c.UserContext(), requester(c), id, in)
	if err != nil {
		return models.RespondWithError(c, err)
	}
	return c.JSON(serializers.NewTags([]models.Tag{*tag})[0])
}

// DeleteTag handles DELETE /api/v1/tags/:id
// @Summary Delete a tag
// @Tags tags
// @Security BearerAuth
// @Param id path int true "Tag ID"
// @Success 204
// @Failure 404 {object} models.ErrorResponse
// @Router /tags/{id} [delete]
func (s *Server) DeleteTag(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return models.RespondWithError(c, err)
	}
	if err := s.tagService.Delete(c.UserContext(), requester(c), id); err != nil {
		return models.RespondWithError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// ListTagPosts handles GET /api/v1/tags/:id/posts/
// @Summary List the posts carrying a tag
// @Tags tags
// @Produce json
// @Param id path int true "Tag ID"
// @Success 200 {object} serializers.Page[serializers.Post]
// @Failure 404 {object} models.ErrorResponse
// @Router /tags/{id}/posts/ [get]
func (s *Server) ListTagPosts(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return models.RespondWithError(c, err)
	}
	return s.listPosts(c, service.ListPostsInput{TagID: id})
}
