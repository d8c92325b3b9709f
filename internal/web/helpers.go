package web

import (
	"html/template"
	"strings"

	"blango/internal/media"
	"blango/internal/models"
)

// RecentPostsTitle heads the recent posts sidebar.
const RecentPostsTitle = "Recent posts"

// PostList is what the _post_list partial renders.
type PostList struct {
	Title string
	Posts []models.Post
}

// Helpers carries the data sources template functions need.
type Helpers struct {
	// Recent returns the latest published posts except excludeID.
	Recent func(excludeID uint) ([]models.Post, error)
	// Tags returns every tag alphabetically.
	Tags func() ([]models.Tag, error)
	// MediaURL turns a media store key into a public URL.
	MediaURL func(key string) string
}

// FuncMap exposes the helpers under their template names.
func (h Helpers) FuncMap() template.FuncMap {
	return template.FuncMap{
		"author_details": AuthorDetails,
		"row":            Row,
		"endrow":         EndRow,
		"col":            Col,
		"endcol":         EndCol,
		"recent_posts":   h.RecentPosts,
		"tag_list":       TagList,
		"all_tags":       h.AllTags,
		"hero_url":       h.HeroURL,
	}
}

// AuthorDetails renders "me" for the current user, otherwise the author's
// name (or email) linked with mailto when an email exists.
func AuthorDetails(author models.User, current *models.User) template.HTML {
	if author.ID == 0 {
		return ""
	}
	if current != nil && current.ID == author.ID {
		return "<strong>me</strong>"
	}

	name := author.Email
	if author.FirstName != "" && author.LastName != "" {
		name = author.FirstName + " " + author.LastName
	}
	escaped := template.HTMLEscapeString(name)
	if author.Email == "" {
		return template.HTML(escaped)
	}
	return template.HTML(`<a href="mailto:` + template.HTMLEscapeString(author.Email) + `">` + escaped + `</a>`)
}

// Row opens a bootstrap row with optional extra classes.
func Row(extra ...string) template.HTML {
	return openDiv("row", extra)
}

func EndRow() template.HTML { return "</div>" }

// Col opens a bootstrap column with optional extra classes.
func Col(extra ...string) template.HTML {
	return openDiv("col", extra)
}

func EndCol() template.HTML { return "</div>" }

func openDiv(class string, extra []string) template.HTML {
	classes := strings.TrimSpace(class + " " + strings.Join(extra, " "))
	return template.HTML(`<div class="` + template.HTMLEscapeString(classes) + `">`)
}

// RecentPosts backs the recent_posts template function.
func (h Helpers) RecentPosts(post *models.Post) (PostList, error) {
	list := PostList{Title: RecentPostsTitle}
	if h.Recent == nil {
		return list, nil
	}
	var exclude uint
	if post != nil {
		exclude = post.ID
	}
	posts, err := h.Recent(exclude)
	if err != nil {
		return list, err
	}
	list.Posts = posts
	return list, nil
}

// TagList joins tag values for display.
func TagList(tags []models.Tag) string {
	values := make([]string, 0, len(tags))
	for _, t := range tags {
		values = append(values, t.Value)
	}
	return strings.Join(values, ", ")
}

// AllTags backs the tag sidebar. Without a data source it is empty.
func (h Helpers) AllTags() ([]models.Tag, error) {
	if h.Tags == nil {
		return nil, nil
	}
	return h.Tags()
}

// HeroURL returns the URL of one rendition of a hero image, or "" when the
// post has none.
func (h Helpers) HeroURL(base, rendition string) string {
	if base == "" {
		return ""
	}
	key := media.RenditionKey(base, rendition)
	if h.MediaURL == nil {
		return "/media/" + key
	}
	return h.MediaURL(key)
}
