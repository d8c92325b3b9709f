package server

import (
	"net/url"
	"strings"

	"blango/internal/filters"
	"blango/internal/middleware"
	"blango/internal/models"
	"blango/internal/permissions"
	"blango/internal/serializers"

	"github.com/gofiber/fiber/v2"
)

const localUser = "user"

// loadUser resolves the authenticated user ID set by OptionalAuth into a
// *models.User. A token for a deleted or deactivated account is rejected.
func (s *Server) loadUser() fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID, ok := middleware.CurrentUserID(c)
		if !ok {
			return c.Next()
		}
		user, err := s.userService.GetByID(c.UserContext(), userID)
		if err != nil || !user.IsActive {
			if err != nil && !models.IsCode(err, models.CodeNotFound) {
				return err
			}
			c.Locals(middleware.LocalUserID, nil)
			if c.Get(fiber.HeaderAuthorization) != "" {
				return models.RespondWithError(c, models.NewNotAuthenticatedError())
			}
			return c.Next()
		}
		c.Locals(localUser, user)
		return c.Next()
	}
}

// currentUser returns the signed-in user, or nil for anonymous callers.
func currentUser(c *fiber.Ctx) *models.User {
	u, _ := c.Locals(localUser).(*models.User)
	return u
}

// requester describes the caller for permission checks.
func requester(c *fiber.Ctx) permissions.Requester {
	r := permissions.Requester{Method: c.Method()}
	if u := currentUser(c); u != nil {
		r.ID = u.ID
		r.IsStaff = u.IsStaff
		r.IsSuperuser = u.IsSuperuser
	}
	return r
}

// StaffRequired rejects callers without is_staff. It must run after loadUser.
func StaffRequired() fiber.Handler {
	return func(c *fiber.Ctx) error {
		u := currentUser(c)
		if u == nil {
			return models.RespondWithError(c, models.NewNotAuthenticatedError())
		}
		if !u.IsStaff {
			return models.RespondWithError(c, models.NewForbiddenError(""))
		}
		return c.Next()
	}
}

// parseID reads a positive integer route parameter. Anything else is a 404,
// matching how an unknown primary key behaves.
func parseID(c *fiber.Ctx, param string) (uint, error) {
	id, err := c.ParamsInt(param)
	if err != nil || id <= 0 {
		return 0, models.NewNotFoundMessage("Not found.")
	}
	return uint(id), nil
}

// queryValues returns the raw query string as url.Values.
func queryValues(c *fiber.Ctx) url.Values {
	values, _ := url.ParseQuery(string(c.Request().URI().QueryString()))
	return values
}

func (s *Server) parsePage(c *fiber.Ctx) (filters.Page, error) {
	return filters.ParsePage(queryValues(c), s.config.PageSize)
}

// requestURL is the absolute URL of the current request, used for
// pagination links.
func requestURL(c *fiber.Ctx) *url.URL {
	u, err := url.Parse(c.BaseURL() + c.OriginalURL())
	if err != nil {
		return &url.URL{Path: c.Path()}
	}
	return u
}

// links builds hyperlinks against the host the client used.
func (s *Server) links(c *fiber.Ctx) serializers.Links {
	return serializers.Links{BaseURL: c.BaseURL(), Media: s.media}
}

// parseJSON decodes the request body, reporting malformed input the same way
// as any other validation failure.
func parseJSON(c *fiber.Ctx, dest any) error {
	if len(c.Body()) == 0 {
		return nil
	}
	if err := c.BodyParser(dest); err != nil {
		return models.NewValidationError("JSON parse error - " + err.Error())
	}
	return nil
}

// isAPIPath reports whether path is served as JSON rather than HTML.
func isAPIPath(path string) bool {
	return strings.HasPrefix(path, "/api/") || strings.HasPrefix(path, "/health") || path == "/metrics"
}
