package server

import (
	"blango/internal/models"
	"blango/internal/serializers"

	"github.com/gofiber/fiber/v2"
)

// GetUser handles GET /api/v1/users/:email
// @Summary Get a user by email
// @Tags users
// @Produce json
// @Param email path string true "Email address"
// @Success 200 {object} serializers.User
// @Failure 404 {object} models.ErrorResponse
// @Router /users/{email} [get]
func (s *Server) GetUser(c *fiber.Ctx) error {
	user, err := s.userService.GetByEmail(c.UserContext(), models.NormalizeEmail(c.Params("email")))
	if err != nil {
		return models.RespondWithError(c, err)
	}
	return c.JSON(serializers.NewUser(user))
}

// ListUserComments handles GET /api/v1/users/:email/comments
// @Summary List comments attached to a user
// @Tags users
// @Produce json
// @Param email path string true "Email address"
// @Param page query int false "Page number"
// @Success 200 {object} serializers.Page[serializers.Comment]
// @Failure 404 {object} models.ErrorResponse
// @Router /users/{email}/comments [get]
func (s *Server) ListUserComments(c *fiber.Ctx) error {
	page, err := s.parsePage(c)
	if err != nil {
		return models.RespondWithError(c, err)
	}
	comments, total, err := s.commentService.ListForUser(c.UserContext(), c.Params("email"), page)
	if err != nil {
		return models.RespondWithError(c, err)
	}
	return c.JSON(serializers.Paginate(serializers.NewComments(comments), total, page, requestURL(c)))
}

// CreateUserComment handles POST /api/v1/users/:email/comments
// @Summary Comment on a user
// @Tags users
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param email path string true "Email address"
// @Param request body serializers.CommentInput true "Comment"
// @Success 201 {object} serializers.Comment
// @Failure 400 {object} models.ErrorResponse
// @Failure 401 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Router /users/{email}/comments [post]
func (s *Server) CreateUserComment(c *fiber.Ctx) error {
	var in serializers.CommentInput
	if err := parseJSON(c, &in); err != nil {
		return models.RespondWithError(c, err)
	}
	comment, err := s.commentService.CreateOnUser(c.UserContext(), requester(c), c.Params("email"), in.Content)
	if err != nil {
		return models.RespondWithError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(serializers.NewComment(comment))
}
