package server

import (
	"errors"
	"net/url"
	"strings"
	"time"

	"blango/internal/cache"
	"blango/internal/middleware"
	"blango/internal/models"
	"blango/internal/service"
	"blango/internal/web"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/csrf"
)

const (
	csrfField      = "csrf_token"
	csrfContextKey = "csrf"
	loginPath      = "/accounts/login/"
)

func (s *Server) setupPageRoutes(app *fiber.App) {
	protect := s.csrfProtection()

	app.Get("/", s.responseCache("index", s.config.PageCacheTTL), protect, s.IndexPage)
	app.Get("/post/:slug", protect, s.PostDetailPage)
	app.Post("/post/:slug", protect, s.PostCommentPage)

	accounts := app.Group("/accounts", protect)
	accounts.Get("/register", s.RegisterPage)
	accounts.Post("/register", s.RegisterSubmit)
	accounts.Get("/activate/:key", s.ActivatePage)
	accounts.Get("/login", s.LoginPage)
	accounts.Post("/login", s.LoginSubmit)
	accounts.Post("/logout", s.LogoutSubmit)
	accounts.Get("/profile", s.ProfilePage)
	accounts.Post("/profile", s.ProfileSubmit)
}

// csrfProtection guards the HTML forms with a double-submit token. Tokens
// live in Redis when available so any instance can validate them.
func (s *Server) csrfProtection() fiber.Handler {
	cfg := csrf.Config{
		KeyLookup:      "form:" + csrfField,
		CookieName:     "blango_csrf",
		CookieSameSite: "Lax",
		CookieSecure:   s.config.IsProduction(),
		CookieHTTPOnly: true,
		Expiration:     2 * time.Hour,
		ContextKey:     csrfContextKey,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			return c.Status(fiber.StatusForbidden).SendString("CSRF verification failed. Request aborted.")
		},
	}
	if s.redis != nil {
		cfg.Storage = cache.NewStorage(s.redis, "csrf:")
	}
	return csrf.New(cfg)
}

// page fills the fields every template needs.
func (s *Server) page(c *fiber.Ctx, title string) web.Page {
	token, _ := c.Locals(csrfContextKey).(string)
	return web.Page{
		Title:     title,
		User:      currentUser(c),
		CSRFToken: token,
		Form:      map[string]string{},
	}
}

// renderFormError re-renders name with the validation messages of err, or
// returns err when it is not a validation failure.
func (s *Server) renderFormError(c *fiber.Ctx, name string, p web.Page, err error, rename map[string]string) error {
	var appErr *models.AppError
	if !errors.As(err, &appErr) || appErr.Code != models.CodeValidation {
		return err
	}
	p.Errors = map[string][]string{}
	for field, msgs := range appErr.Fields {
		if to, ok := rename[field]; ok {
			field = to
		}
		p.Errors[field] = append(p.Errors[field], msgs...)
	}
	return c.Status(fiber.StatusBadRequest).Render(name, p)
}

// redirectToLogin sends an anonymous visitor to the login form, returning
// them to the current page afterwards.
func redirectToLogin(c *fiber.Ctx) error {
	return c.Redirect(loginPath+"?next="+url.QueryEscape(c.OriginalURL()), fiber.StatusSeeOther)
}

// safeNext only follows local paths after login.
func safeNext(next string) string {
	if !strings.HasPrefix(next, "/") || strings.HasPrefix(next, "//") || strings.HasPrefix(next, "/\\") {
		return "/"
	}
	return next
}

// IndexPage renders the published posts.
func (s *Server) IndexPage(c *fiber.Ctx) error {
	page, err := s.parsePage(c)
	if err != nil {
		return err
	}
	posts, _, err := s.postService.List(c.UserContext(), service.ListPostsInput{
		Actor:         requester(c),
		Page:          page,
		PublishedOnly: true,
	})
	if err != nil {
		return err
	}
	p := s.page(c, "")
	p.Posts = posts
	return c.Render("index", p)
}

// PostDetailPage renders one post by slug with its comments.
func (s *Server) PostDetailPage(c *fiber.Ctx) error {
	post, err := s.postService.GetBySlug(c.UserContext(), requester(c), c.Params("slug"))
	if err != nil {
		return err
	}
	p := s.page(c, post.Title)
	p.Post = post
	p.Comments = post.Comments
	return c.Render("post_detail", p)
}

// PostCommentPage adds a comment from the post page form.
func (s *Server) PostCommentPage(c *fiber.Ctx) error {
	if currentUser(c) == nil {
		return redirectToLogin(c)
	}
	ctx := c.UserContext()
	post, err := s.postService.GetBySlug(ctx, requester(c), c.Params("slug"))
	if err != nil {
		return err
	}

	content := c.FormValue("content")
	if _, err := s.commentService.CreateOnPost(ctx, requester(c), post.ID, content); err != nil {
		p := s.page(c, post.Title)
		p.Post = post
		p.Comments = post.Comments
		p.Form["content"] = content
		if models.IsCode(err, models.CodeForbidden) {
			p.Message = service.MsgCommentsDisabled
			return c.Status(fiber.StatusForbidden).Render("post_detail", p)
		}
		return s.renderFormError(c, "post_detail", p, err, nil)
	}
	return c.Redirect("/post/"+post.Slug+"/", fiber.StatusSeeOther)
}

// RegisterPage shows the registration form.
func (s *Server) RegisterPage(c *fiber.Ctx) error {
	return c.Render("register", s.page(c, "Register"))
}

// RegisterSubmit creates an inactive account and shows the "check your email" page.
func (s *Server) RegisterSubmit(c *fiber.Ctx) error {
	email := strings.TrimSpace(c.FormValue("email"))
	p := s.page(c, "Register")
	p.Form["email"] = email

	password := c.FormValue("password1")
	if password != c.FormValue("password2") {
		p.Errors = map[string][]string{"password2": {"The two password fields didn't match."}}
		return c.Status(fiber.StatusBadRequest).Render("register", p)
	}

	_, err := s.userService.Register(c.UserContext(), service.RegisterInput{Email: email, Password: password})
	if err != nil {
		if models.IsCode(err, models.CodeForbidden) {
			p.Message = service.MsgRegistrationClosed
			return c.Status(fiber.StatusForbidden).Render("register", p)
		}
		return s.renderFormError(c, "register", p, err, map[string]string{"password": "password1"})
	}
	done := s.page(c, "Registration complete")
	done.Form["email"] = models.NormalizeEmail(email)
	return c.Render("registration_complete", done)
}

// ActivatePage activates the account named by the link's key.
func (s *Server) ActivatePage(c *fiber.Ctx) error {
	if _, err := s.userService.Activate(c.UserContext(), c.Params("key")); err != nil {
		return s.renderFormError(c, "activation_failed", s.page(c, "Activation failed"), err,
			map[string]string{models.NonFieldErrors: "activation_key"})
	}
	return c.Redirect(loginPath+"?activated=1", fiber.StatusSeeOther)
}

// LoginPage shows the login form.
func (s *Server) LoginPage(c *fiber.Ctx) error {
	p := s.page(c, "Log in")
	p.Form["next"] = c.Query("next")
	if c.Query("activated") != "" {
		p.Message = "Your account is now active. You can log in."
	}
	return c.Render("login", p)
}

// LoginSubmit checks credentials and stores the session token in a cookie.
func (s *Server) LoginSubmit(c *fiber.Ctx) error {
	email := c.FormValue("email")
	next := c.FormValue("next")

	user, err := s.userService.Authenticate(c.UserContext(), email, c.FormValue("password"))
	if err != nil {
		p := s.page(c, "Log in")
		p.Form["email"] = email
		p.Form["next"] = next
		return s.renderFormError(c, "login", p, err, nil)
	}

	token, exp, err := s.tokens.Issue(user.ID)
	if err != nil {
		return err
	}
	c.Cookie(&fiber.Cookie{
		Name:     middleware.SessionCookie,
		Value:    token,
		Path:     "/",
		Expires:  exp,
		HTTPOnly: true,
		Secure:   s.config.IsProduction(),
		SameSite: fiber.CookieSameSiteLaxMode,
	})
	return c.Redirect(safeNext(next), fiber.StatusSeeOther)
}

// LogoutSubmit revokes the session token and clears the cookie.
func (s *Server) LogoutSubmit(c *fiber.Ctx) error {
	if raw := c.Cookies(middleware.SessionCookie); raw != "" {
		if err := s.tokens.Revoke(c.UserContext(), raw); err != nil {
			return err
		}
	}
	c.ClearCookie(middleware.SessionCookie)
	return c.Redirect("/", fiber.StatusSeeOther)
}

// ProfilePage shows the signed-in user's names and biography.
func (s *Server) ProfilePage(c *fiber.Ctx) error {
	u := currentUser(c)
	if u == nil {
		return redirectToLogin(c)
	}
	user, err := s.userService.Profile(c.UserContext(), u.ID)
	if err != nil {
		return err
	}
	return c.Render("profile", s.profilePage(c, user))
}

func (s *Server) profilePage(c *fiber.Ctx, user *models.User) web.Page {
	p := s.page(c, "Profile")
	p.User = user
	p.Form["first_name"] = user.FirstName
	p.Form["last_name"] = user.LastName
	if user.Profile != nil {
		p.Form["bio"] = user.Profile.Bio
	}
	return p
}

// ProfileSubmit saves the profile form.
func (s *Server) ProfileSubmit(c *fiber.Ctx) error {
	u := currentUser(c)
	if u == nil {
		return redirectToLogin(c)
	}
	first, last, bio := c.FormValue("first_name"), c.FormValue("last_name"), c.FormValue("bio")
	user, err := s.userService.UpdateProfile(c.UserContext(), service.UpdateProfileInput{
		UserID:    u.ID,
		FirstName: &first,
		LastName:  &last,
		Bio:       &bio,
	})
	if err != nil {
		p := s.page(c, "Profile")
		p.Form["first_name"], p.Form["last_name"], p.Form["bio"] = first, last, bio
		return s.renderFormError(c, "profile", p, err, nil)
	}

	p := s.profilePage(c, user)
	p.Message = "Profile updated."
	return c.Render("profile", p)
}
