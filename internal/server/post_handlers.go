package server

import (
	"blango/internal/filters"
	"blango/internal/models"
	"blango/internal/serializers"
	"blango/internal/service"

	"github.com/gofiber/fiber/v2"
)

// listPosts runs a listing with the query-string filters, ordering and page
// applied on top of in.
func (s *Server) listPosts(c *fiber.Ctx, in service.ListPostsInput) error {
	values := queryValues(c)
	page, err := s.parsePage(c)
	if err != nil {
		return models.RespondWithError(c, err)
	}
	filter, err := filters.ParsePostFilter(values, s.config.Location())
	if err != nil {
		return models.RespondWithError(c, err)
	}

	in.Actor = requester(c)
	in.Filter = filter
	in.Ordering = values.Get("ordering")
	in.Page = page

	posts, total, err := s.postService.List(c.UserContext(), in)
	if err != nil {
		return models.RespondWithError(c, err)
	}
	return c.JSON(serializers.Paginate(s.links(c).NewPosts(posts), total, page, requestURL(c)))
}

// ListPosts handles GET /api/v1/posts/
// @Summary List posts
// @Description Anonymous callers see published posts; signed-in callers also see their own drafts; staff see everything.
// @Tags posts
// @Produce json
// @Param page query int false "Page number"
// @Param author query int false "Author id"
// @Param author_email query string false "Author email"
// @Param tags query string false "Comma-separated tag values"
// @Param summary query string false "Summary contains"
// @Param content query string false "Content contains"
// @Param published_from query string false "YYYY-MM-DD"
// @Param published_to query string false "YYYY-MM-DD"
// @Param ordering query string false "published_at, author, title or slug; prefix - to reverse"
// @Success 200 {object} serializers.Page[serializers.Post]
// @Failure 400 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Router /posts/ [get]
func (s *Server) ListPosts(c *fiber.Ctx) error {
	return s.listPosts(c, service.ListPostsInput{})
}

// ListPostsByTime handles GET /api/v1/posts/by-time/:period/
// @Summary List posts in a time window
// @Tags posts
// @Produce json
// @Param period path string true "new, today or week"
// @Success 200 {object} serializers.Page[serializers.Post]
// @Failure 404 {object} models.ErrorResponse
// @Router /posts/by-time/{period}/ [get]
func (s *Server) ListPostsByTime(c *fiber.Ctx) error {
	return s.listPosts(c, service.ListPostsInput{Period: c.Params("period")})
}

// ListMyPosts handles GET /api/v1/posts/mine/
// @Summary List the caller's posts
// @Tags posts
// @Produce json
// @Security BearerAuth
// @Success 200 {object} serializers.Page[serializers.Post]
// @Failure 401 {object} models.ErrorResponse
// @Router /posts/mine/ [get]
func (s *Server) ListMyPosts(c *fiber.Ctx) error {
	return s.listPosts(c, service.ListPostsInput{Mine: true})
}

// GetPost handles GET /api/v1/posts/:id
// @Summary Get a post with its comments
// @Tags posts
// @Produce json
// @Param id path int true "Post ID"
// @Success 200 {object} serializers.PostDetail
// @Failure 404 {object} models.ErrorResponse
// @Router /posts/{id} [get]
func (s *Server) GetPost(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return models.RespondWithError(c, err)
	}
	post, err := s.postService.Get(c.UserContext(), requester(c), id)
	if err != nil {
		return models.RespondWithError(c, err)
	}
	return c.JSON(s.links(c).NewPostDetail(post))
}

// CreatePost handles POST /api/v1/posts/
// @Summary Create a post
// @Description Tags are created on first use. Comment entries are added with the caller as creator.
// @Tags posts
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body serializers.PostInput true "Post"
// @Success 201 {object} serializers.PostDetail
// @Failure 400 {object} models.ErrorResponse
// @Failure 401 {object} models.ErrorResponse
// @Router /posts/ [post]
func (s *Server) CreatePost(c *fiber.Ctx) error {
	var in serializers.PostInput
	if err := parseJSON(c, &in); err != nil {
		return models.RespondWithError(c, err)
	}
	post, err := s.postService.Create(c.UserContext(), requester(c), &in)
	if err != nil {
		return models.RespondWithError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(s.links(c).NewPostDetail(post))
}

// UpdatePost handles PUT /api/v1/posts/:id
// @Summary Replace a post
// @Tags posts
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "Post ID"
// @Param request body serializers.PostInput true "Post"
// @Success 200 {object} serializers.PostDetail
// @Failure 400 {object} models.ErrorResponse
// @Failure 403 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Router /posts/{id} [put]
func (s *Server) UpdatePost(c *fiber.Ctx) error {
	return s.updatePost(c, false)
}

// PartialUpdatePost handles PATCH /api/v1/posts/:id
// @Summary Update some fields of a post
// @Tags posts
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "Post ID"
// @Param request body serializers.PostInput true "Fields to change"
// @Success 200 {object} serializers.PostDetail
// @Failure 400 {object} models.ErrorResponse
// @Failure 403 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Router /posts/{id} [patch]
func (s *Server) PartialUpdatePost(c *fiber.Ctx) error {
	return s.updatePost(c, true)
}

func (s *Server) updatePost(c *fiber.Ctx, partial bool) error {
	id, err := parseID(c, "id")
	if err != nil {
		return models.RespondWithError(c, err)
	}
	var in serializers.PostInput
	if err := parseJSON(c, &in); err != nil {
		return models.RespondWithError(c, err)
	}
	post, err := s.postService.Update(c.UserContext(), requester(c), id, &in, partial)
	if err != nil {
		return models.RespondWithError(c, err)
	}
	return c.JSON(s.links(c).NewPostDetail(post))
}

// DeletePost handles DELETE /api/v1/posts/:id
// @Summary Delete a post
// @Tags posts
// @Security BearerAuth
// @Param id path int true "Post ID"
// @Success 204
// @Failure 403 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Router /posts/{id} [delete]
func (s *Server) DeletePost(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return models.RespondWithError(c, err)
	}
	if err := s.postService.Delete(c.UserContext(), requester(c), id); err != nil {
		return models.RespondWithError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}
