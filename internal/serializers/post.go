package serializers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"blango/internal/media"
	"blango/internal/models"
	"blango/internal/validation"

	"github.com/gosimple/slug"
)

// Shared field error messages.
const (
	MsgRequired = "This field is required."
	MsgNotNull  = "This field may not be null."
	MsgBlank    = "This field may not be blank."
	MsgPPOI     = "Enter two numbers between 0 and 1 separated by 'x' or ','."
)

func maxLength(n int) string {
	return fmt.Sprintf("Ensure this field has no more than %d characters.", n)
}

// HeroImage links the renditions of a hero image.
type HeroImage struct {
	FullSize   string `json:"full_size"`
	Thumbnail  string `json:"thumbnail"`
	SquareCrop string `json:"square_crop"`
}

// Post is the list representation of a post.
type Post struct {
	ID          uint       `json:"id"`
	Author      string     `json:"author"`
	Title       string     `json:"title"`
	Slug        string     `json:"slug"`
	Summary     string     `json:"summary"`
	Content     string     `json:"content"`
	PublishedAt *time.Time `json:"published_at"`
	CreatedAt   time.Time  `json:"created_at"`
	ModifiedAt  time.Time  `json:"modified_at"`
	Tags        []string   `json:"tags"`
	HeroImage   *HeroImage `json:"hero_image"`
	PPOI        string     `json:"ppoi"`
}

// PostDetail adds the comment thread to Post.
type PostDetail struct {
	Post
	Comments []Comment `json:"comments"`
}

// NewPost serializes p. Author and Tags must be preloaded.
func (l Links) NewPost(p *models.Post) Post {
	out := Post{
		ID:          p.ID,
		Author:      l.UserURL(p.Author.Email),
		Title:       p.Title,
		Slug:        p.Slug,
		Summary:     p.Summary,
		Content:     p.Content,
		PublishedAt: p.PublishedAt,
		CreatedAt:   p.CreatedAt,
		ModifiedAt:  p.UpdatedAt,
		Tags:        p.TagValues(),
		PPOI:        p.PPOI,
	}
	if out.PPOI == "" {
		out.PPOI = models.DefaultPPOI
	}
	if p.HeroImage != "" {
		out.HeroImage = &HeroImage{
			FullSize:   l.mediaURL(media.RenditionKey(p.HeroImage, media.RenditionFull)),
			Thumbnail:  l.mediaURL(media.RenditionKey(p.HeroImage, media.RenditionThumbnail)),
			SquareCrop: l.mediaURL(media.RenditionKey(p.HeroImage, media.RenditionSquareCrop)),
		}
	}
	return out
}

// NewPosts serializes a page of posts.
func (l Links) NewPosts(posts []models.Post) []Post {
	out := make([]Post, 0, len(posts))
	for i := range posts {
		out = append(out, l.NewPost(&posts[i]))
	}
	return out
}

// NewPostDetail serializes p with its comments.
func (l Links) NewPostDetail(p *models.Post) PostDetail {
	return PostDetail{Post: l.NewPost(p), Comments: NewComments(p.Comments)}
}

// OptionalTime distinguishes an omitted timestamp from an explicit null.
type OptionalTime struct {
	Set   bool
	Value *time.Time
}

func (o *OptionalTime) UnmarshalJSON(data []byte) error {
	o.Set = true
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		o.Value = nil
		return nil
	}
	var t time.Time
	if err := json.Unmarshal(data, &t); err != nil {
		return err
	}
	t = t.UTC()
	o.Value = &t
	return nil
}

// PostInput is a create or update payload. Nil fields were omitted.
type PostInput struct {
	Author      *string         `json:"author"`
	Title       *string         `json:"title"`
	Slug        *string         `json:"slug"`
	Summary     *string         `json:"summary"`
	Content     *string         `json:"content"`
	PublishedAt OptionalTime    `json:"published_at"`
	Tags        *[]string       `json:"tags"`
	PPOI        *string         `json:"ppoi"`
	Comments    *[]CommentInput `json:"comments"`
}

// Validate checks field rules. When partial is false every required field must
// be present. A missing slug is derived from the title on create.
func (in *PostInput) Validate(partial, creating bool) error {
	errs := models.FieldErrors{}

	text := func(field string, v *string, limit int) {
		if v == nil {
			if !partial {
				errs.Add(field, MsgRequired)
			}
			return
		}
		switch {
		case strings.TrimSpace(*v) == "":
			errs.Add(field, MsgBlank)
		case limit > 0 && utf8.RuneCountInString(*v) > limit:
			errs.Add(field, maxLength(limit))
		}
	}
	text("title", in.Title, 100)
	text("summary", in.Summary, 500)
	text("content", in.Content, 0)

	if in.Slug == nil && creating && in.Title != nil {
		derived := DeriveSlug(*in.Title)
		in.Slug = &derived
	}
	if in.Slug == nil {
		if !partial {
			errs.Add("slug", MsgRequired)
		}
	} else if err := validation.ValidateSlug(*in.Slug); err != nil {
		errs.Add("slug", err.Error())
	}

	if in.PPOI != nil {
		if _, _, err := models.ParsePPOI(*in.PPOI); err != nil {
			errs.Add("ppoi", MsgPPOI)
		}
	}
	if in.Tags != nil {
		for _, v := range *in.Tags {
			if models.NormalizeTag(v) == "" {
				errs.Add("tags", MsgBlank)
				break
			}
		}
	}
	if in.Comments != nil {
		for i, c := range *in.Comments {
			if c.ID == nil && strings.TrimSpace(c.Content) == "" {
				errs.Add(fmt.Sprintf("comments[%d].content", i), MsgBlank)
			}
		}
	}
	return errs.Err()
}

// Apply copies the validated scalar fields onto p. Author, tags and comments
// need lookups and are resolved by the caller.
func (in *PostInput) Apply(p *models.Post) {
	if in.Title != nil {
		p.Title = strings.TrimSpace(*in.Title)
	}
	if in.Slug != nil {
		p.Slug = *in.Slug
	}
	if in.Summary != nil {
		p.Summary = *in.Summary
	}
	if in.Content != nil {
		p.Content = *in.Content
	}
	if in.PublishedAt.Set {
		p.PublishedAt = in.PublishedAt.Value
	}
	if in.PPOI != nil {
		x, y, _ := models.ParsePPOI(*in.PPOI)
		p.PPOI = models.FormatPPOI(x, y)
	}
	if p.PPOI == "" {
		p.PPOI = models.DefaultPPOI
	}
}

// DeriveSlug turns a title into a slug, truncated to the column width.
func DeriveSlug(title string) string {
	s := slug.Make(title)
	if len(s) > validation.SlugMaxLength {
		s = strings.TrimRight(s[:validation.SlugMaxLength], "-")
	}
	return s
}

// AuthorEmail extracts the email from an author hyperlink or bare email.
// Hyperlinks must point at a users endpoint.
func AuthorEmail(ref string) (string, bool) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", false
	}
	if !strings.Contains(ref, "/") {
		return ref, strings.Contains(ref, "@")
	}
	u, err := url.Parse(ref)
	if err != nil {
		return "", false
	}
	path := strings.TrimSuffix(u.Path, "/")
	const marker = "/api/v1/users/"
	idx := strings.LastIndex(path, marker)
	if idx < 0 {
		return "", false
	}
	email, err := url.PathUnescape(path[idx+len(marker):])
	if err != nil || email == "" || strings.Contains(email, "/") {
		return "", false
	}
	return email, true
}
