package server

import (
	"context"
	"log/slog"

	"blango/internal/models"
	"blango/internal/observability"
	"blango/internal/permissions"
	"blango/internal/serializers"

	"github.com/gofiber/fiber/v2"
)

// AdminUser is the staff view of an account.
type AdminUser struct {
	ID          uint   `json:"id"`
	Email       string `json:"email"`
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	IsActive    bool   `json:"is_active"`
	IsStaff     bool   `json:"is_staff"`
	IsSuperuser bool   `json:"is_superuser"`
	DateJoined  string `json:"date_joined"`
}

func newAdminUser(u *models.User) AdminUser {
	return AdminUser{
		ID:          u.ID,
		Email:       u.Email,
		FirstName:   u.FirstName,
		LastName:    u.LastName,
		IsActive:    u.IsActive,
		IsStaff:     u.IsStaff,
		IsSuperuser: u.IsSuperuser,
		DateJoined:  u.DateJoined.UTC().Format("2006-01-02T15:04:05Z"),
	}
}

// AdminListUsers handles GET /api/v1/admin/users
// @Summary List accounts
// @Tags admin
// @Produce json
// @Security BearerAuth
// @Param page query int false "Page number"
// @Success 200 {object} serializers.Page[AdminUser]
// @Failure 403 {object} models.ErrorResponse
// @Router /admin/users [get]
func (s *Server) AdminListUsers(c *fiber.Ctx) error {
	page, err := s.parsePage(c)
	if err != nil {
		return models.RespondWithError(c, err)
	}
	users, total, err := s.userService.List(c.UserContext(), page)
	if err != nil {
		return models.RespondWithError(c, err)
	}
	if page.Beyond(total) {
		return models.RespondWithError(c, models.NewNotFoundMessage("Invalid page."))
	}
	out := make([]AdminUser, 0, len(users))
	for i := range users {
		out = append(out, newAdminUser(&users[i]))
	}
	return c.JSON(serializers.Paginate(out, total, page, requestURL(c)))
}

// PromoteUser handles POST /api/v1/admin/users/:id/promote
// @Summary Grant staff status
// @Tags admin
// @Produce json
// @Security BearerAuth
// @Param id path int true "User ID"
// @Success 200 {object} AdminUser
// @Failure 403 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Router /admin/users/{id}/promote [post]
func (s *Server) PromoteUser(c *fiber.Ctx) error {
	return s.setStaff(c, true)
}

// DemoteUser handles POST /api/v1/admin/users/:id/demote
// @Summary Revoke staff status
// @Tags admin
// @Produce json
// @Security BearerAuth
// @Param id path int true "User ID"
// @Success 200 {object} AdminUser
// @Failure 403 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Router /admin/users/{id}/demote [post]
func (s *Server) DemoteUser(c *fiber.Ctx) error {
	return s.setStaff(c, false)
}

func (s *Server) setStaff(c *fiber.Ctx, staff bool) error {
	if err := permissions.Check(permissions.IsSuperuser, requester(c), nil); err != nil {
		return models.RespondWithError(c, err)
	}
	id, err := parseID(c, "id")
	if err != nil {
		return models.RespondWithError(c, err)
	}
	user, err := s.userService.SetStaff(c.UserContext(), id, staff)
	if err != nil {
		return models.RespondWithError(c, err)
	}
	s.logger.InfoContext(c.UserContext(), "staff status changed",
		slog.Uint64("target_user_id", uint64(user.ID)),
		slog.Bool("is_staff", user.IsStaff),
	)
	return c.JSON(newAdminUser(user))
}

// AdminDeleteUser handles DELETE /api/v1/admin/users/:id
// @Summary Delete an account
// @Description Fails with 409 while the user still authors posts.
// @Tags admin
// @Security BearerAuth
// @Param id path int true "User ID"
// @Success 204
// @Failure 404 {object} models.ErrorResponse
// @Failure 409 {object} models.ErrorResponse
// @Router /admin/users/{id} [delete]
func (s *Server) AdminDeleteUser(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return models.RespondWithError(c, err)
	}
	if err := s.userService.Delete(c.UserContext(), id); err != nil {
		return models.RespondWithError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// AdminListComments handles GET /api/v1/admin/comments
// @Summary List all comments
// @Tags admin
// @Produce json
// @Security BearerAuth
// @Param page query int false "Page number"
// @Success 200 {object} serializers.Page[serializers.Comment]
// @Router /admin/comments [get]
func (s *Server) AdminListComments(c *fiber.Ctx) error {
	page, err := s.parsePage(c)
	if err != nil {
		return models.RespondWithError(c, err)
	}
	comments, total, err := s.commentService.List(c.UserContext(), page)
	if err != nil {
		return models.RespondWithError(c, err)
	}
	return c.JSON(serializers.Paginate(serializers.NewComments(comments), total, page, requestURL(c)))
}

// AdminDeleteComment handles DELETE /api/v1/admin/comments/:id
// @Summary Delete a comment
// @Tags admin
// @Security BearerAuth
// @Param id path int true "Comment ID"
// @Success 204
// @Failure 404 {object} models.ErrorResponse
// @Router /admin/comments/{id} [delete]
func (s *Server) AdminDeleteComment(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return models.RespondWithError(c, err)
	}
	if err := s.commentService.Delete(c.UserContext(), id); err != nil {
		return models.RespondWithError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// RunCleanup handles POST /api/v1/admin/cleanup
// @Summary Delete expired inactive accounts
// @Tags admin
// @Produce json
// @Security BearerAuth
// @Success 200 {object} object{deleted=int}
// @Router /admin/cleanup [post]
func (s *Server) RunCleanup(c *fiber.Ctx) error {
	var result map[string]any
	job := observability.NewJobLogger(s.logger, "cleanup_inactive_users")
	err := job.Run(c.UserContext(), func(ctx context.Context) (map[string]any, error) {
		var err error
		result, err = s.cleanupInactive(ctx)
		return result, err
	})
	if err != nil {
		return models.RespondWithError(c, err)
	}
	return c.JSON(result)
}
