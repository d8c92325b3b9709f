package server

import (
	"io"
	"strings"

	"blango/internal/models"
	"blango/internal/service"

	"github.com/gofiber/fiber/v2"
)

// UploadHeroImage handles PUT /api/v1/posts/:id/hero-image
// @Summary Upload a post's hero image
// @Description Stores full size, thumbnail and square crop WebP renditions. The square crop is centred on ppoi.
// @Tags posts
// @Accept multipart/form-data
// @Produce json
// @Security BearerAuth
// @Param id path int true "Post ID"
// @Param image formData file true "Image (JPEG, PNG, GIF or WebP)"
// @Param ppoi formData string false "Primary point of interest, e.g. 0.5x0.5"
// @Success 200 {object} serializers.PostDetail
// @Failure 400 {object} models.ErrorResponse
// @Failure 403 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Router /posts/{id}/hero-image [put]
func (s *Server) UploadHeroImage(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return models.RespondWithError(c, err)
	}

	file, err := c.FormFile("image")
	if err != nil {
		return models.RespondWithError(c, models.NewFieldError("image", "No file was submitted."))
	}
	src, err := file.Open()
	if err != nil {
		return models.RespondWithError(c, models.NewFieldError("image", "Unable to read uploaded file."))
	}
	defer func() { _ = src.Close() }()

	content, err := io.ReadAll(src)
	if err != nil {
		return models.RespondWithError(c, models.NewFieldError("image", "Unable to read uploaded file."))
	}

	var ppoi *string
	if raw := strings.TrimSpace(c.FormValue("ppoi")); raw != "" {
		ppoi = &raw
	}

	post, err := s.postService.SetHeroImage(c.UserContext(), requester(c), id, service.UploadImageInput{
		Filename:    file.Filename,
		ContentType: file.Header.Get(fiber.HeaderContentType),
		Content:     content,
	}, ppoi)
	if err != nil {
		return models.RespondWithError(c, err)
	}
	return c.JSON(s.links(c).NewPostDetail(post))
}
