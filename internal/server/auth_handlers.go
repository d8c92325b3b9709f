package server

import (
	"time"

	"blango/internal/models"
	"blango/internal/serializers"
	"blango/internal/service"

	"github.com/gofiber/fiber/v2"
)

type credentials struct {
	Email    string `json:"email" form:"email"`
	Password string `json:"password" form:"password"`
}

// ObtainToken handles POST /api/v1/token-auth/
// @Summary Obtain an API token
// @Description Exchange the email and password of an active account for a token.
// @Tags auth
// @Accept json
// @Produce json
// @Param request body object{email=string,password=string} true "Credentials"
// @Success 200 {object} object{token=string,expires_at=string}
// @Failure 400 {object} models.ErrorResponse
// @Failure 429 {object} models.ErrorResponse
// @Router /token-auth/ [post]
func (s *Server) ObtainToken(c *fiber.Ctx) error {
	var req credentials
	if err := parseJSON(c, &req); err != nil {
		return models.RespondWithError(c, err)
	}

	user, err := s.userService.Authenticate(c.UserContext(), req.Email, req.Password)
	if err != nil {
		return models.RespondWithError(c, err)
	}

	token, exp, err := s.tokens.Issue(user.ID)
	if err != nil {
		return models.RespondWithError(c, models.NewInternalError(err))
	}
	return c.JSON(fiber.Map{
		"token":      token,
		"expires_at": exp.UTC().Format(time.RFC3339),
	})
}

// RegisterAPI handles POST /api/v1/auth/register
// @Summary Register an account
// @Description Creates an inactive account and mails its activation link.
// @Tags auth
// @Accept json
// @Produce json
// @Param request body service.RegisterInput true "Registration"
// @Success 201 {object} serializers.User
// @Failure 400 {object} models.ErrorResponse
// @Failure 403 {object} models.ErrorResponse
// @Router /auth/register [post]
func (s *Server) RegisterAPI(c *fiber.Ctx) error {
	var req service.RegisterInput
	if err := parseJSON(c, &req); err != nil {
		return models.RespondWithError(c, err)
	}

	user, err := s.userService.Register(c.UserContext(), req)
	if err != nil {
		return models.RespondWithError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(serializers.NewUser(user))
}

// ActivateAPI handles POST /api/v1/auth/activate/:key
// @Summary Activate an account
// @Tags auth
// @Produce json
// @Param key path string true "Activation key"
// @Success 200 {object} serializers.User
// @Failure 400 {object} models.ErrorResponse
// @Router /auth/activate/{key} [post]
func (s *Server) ActivateAPI(c *fiber.Ctx) error {
	user, err := s.userService.Activate(c.UserContext(), c.Params("key"))
	if err != nil {
		return models.RespondWithError(c, err)
	}
	return c.JSON(serializers.NewUser(user))
}
