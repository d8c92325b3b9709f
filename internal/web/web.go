// Package web renders the server-side HTML pages.
package web

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"io"
	"io/fs"
	"strings"

	"blango/internal/models"
)

//go:embed templates/*.html
var templateFS embed.FS

const (
	layoutFile   = "templates/base.html"
	partialsGlob = "templates/_*.html"
)

// Page is the data every template receives. Page-specific fields are left
// zero by handlers that do not need them.
type Page struct {
	Title     string
	User      *models.User
	CSRFToken string
	Message   string

	Posts    []models.Post
	Post     *models.Post
	Comments []models.Comment

	// Form echoes submitted values back after a validation error.
	Form   map[string]string
	Errors map[string][]string
}

// FieldErrors returns the messages for field, used by the form templates.
func (p Page) FieldErrors(field string) []string {
	return p.Errors[field]
}

// Value returns the echoed form value for field.
func (p Page) Value(field string) string {
	return p.Form[field]
}

// Renderer holds one parsed template set per page, each combined with the
// layout and the shared partials. It satisfies fiber.Views.
type Renderer struct {
	helpers Helpers
	pages   map[string]*template.Template
}

// NewRenderer parses the embedded templates.
func NewRenderer(helpers Helpers) (*Renderer, error) {
	r := &Renderer{helpers: helpers}
	if err := r.Load(); err != nil {
		return nil, err
	}
	return r, nil
}

// Load parses every page template. Called once by NewRenderer and by Fiber.
func (r *Renderer) Load() error {
	pageFiles, err := fs.Glob(templateFS, "templates/*.html")
	if err != nil {
		return fmt.Errorf("list templates: %w", err)
	}
	partials, err := fs.Glob(templateFS, partialsGlob)
	if err != nil {
		return fmt.Errorf("list partials: %w", err)
	}

	pages := make(map[string]*template.Template)
	for _, file := range pageFiles {
		base := strings.TrimPrefix(file, "templates/")
		if file == layoutFile || strings.HasPrefix(base, "_") {
			continue
		}
		files := append([]string{layoutFile}, partials...)
		files = append(files, file)
		tpl, err := template.New("base.html").Funcs(r.helpers.FuncMap()).ParseFS(templateFS, files...)
		if err != nil {
			return fmt.Errorf("parse %s: %w", file, err)
		}
		pages[strings.TrimSuffix(base, ".html")] = tpl
	}
	r.pages = pages
	return nil
}

// Render executes page name into w. Layout arguments are ignored because
// every page shares base.html.
func (r *Renderer) Render(w io.Writer, name string, data any, _ ...string) error {
	tpl, ok := r.pages[name]
	if !ok {
		return fmt.Errorf("unknown page %q", name)
	}
	// Render into a buffer so a failing template never sends a half page.
	var buf bytes.Buffer
	if err := tpl.ExecuteTemplate(&buf, "base.html", data); err != nil {
		return fmt.Errorf("render %s: %w", name, err)
	}
	_, err := buf.WriteTo(w)
	return err
}

// Pages lists the names Render accepts.
func (r *Renderer) Pages() []string {
	out := make([]string, 0, len(r.pages))
	for name := range r.pages {
		out = append(out, name)
	}
	return out
}
