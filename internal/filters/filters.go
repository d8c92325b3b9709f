// Package filters builds the WHERE and ORDER BY fragments used to list posts.
// Conditions are composed with squirrel and handed to GORM as plain SQL with
// "?" placeholders, so the same fragments run on Postgres and SQLite.
package filters

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"blango/internal/models"

	sq "github.com/Masterminds/squirrel"
	"gorm.io/gorm"
)

const (
	colPublishedAt = "posts.published_at"
	colAuthorID    = "posts.author_id"
)

// Viewer is the caller a listing is rendered for. The zero value is anonymous.
type Viewer struct {
	ID      uint
	IsStaff bool
}

// Anonymous reports whether the viewer is not signed in.
func (v Viewer) Anonymous() bool {
	return v.ID == 0
}

// Visibility restricts posts to what viewer may read at now. Staff see
// everything, so the result is nil for them.
func Visibility(viewer Viewer, now time.Time) sq.Sqlizer {
	published := sq.LtOrEq{colPublishedAt: now.UTC()}
	switch {
	case viewer.IsStaff:
		return nil
	case viewer.Anonymous():
		return published
	default:
		return sq.Or{published, sq.Eq{colAuthorID: viewer.ID}}
	}
}

// Published matches posts whose publish time has passed, regardless of viewer.
func Published(now time.Time) sq.Sqlizer {
	return sq.LtOrEq{colPublishedAt: now.UTC()}
}

// Window time-window names accepted by /posts/by-time/:period/.
const (
	WindowNew   = "new"
	WindowToday = "today"
	WindowWeek  = "week"
)

// Window resolves a named publish-time window relative to now. "today" is the
// calendar day containing now in loc.
func Window(name string, now time.Time, loc *time.Location) (sq.Sqlizer, error) {
	if loc == nil {
		loc = time.UTC
	}
	switch name {
	case WindowNew:
		return sq.GtOrEq{colPublishedAt: now.Add(-time.Hour).UTC()}, nil
	case WindowToday:
		local := now.In(loc)
		start := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
		end := start.AddDate(0, 0, 1)
		return sq.And{
			sq.GtOrEq{colPublishedAt: start.UTC()},
			sq.Lt{colPublishedAt: end.UTC()},
		}, nil
	case WindowWeek:
		return sq.GtOrEq{colPublishedAt: now.AddDate(0, 0, -7).UTC()}, nil
	}
	return nil, models.NewNotFoundMessage(fmt.Sprintf(
		"Time period %s is not valid, should be '%s', '%s' or '%s'", name, WindowNew, WindowToday, WindowWeek))
}

// PostFilter holds the field filters accepted on post listings.
type PostFilter struct {
	AuthorID      uint
	AuthorEmail   string
	Tags          []string
	Summary       string
	Content       string
	PublishedFrom *time.Time
	// PublishedTo is exclusive: the day after the requested inclusive date.
	PublishedTo *time.Time
}

// ParsePostFilter reads filter parameters from a query string. Dates are
// YYYY-MM-DD in loc, and both bounds are inclusive.
func ParsePostFilter(values url.Values, loc *time.Location) (PostFilter, error) {
	if loc == nil {
		loc = time.UTC
	}
	var f PostFilter
	fields := models.FieldErrors{}

	if raw := strings.TrimSpace(values.Get("author")); raw != "" {
		id, err := strconv.ParseUint(raw, 10, 32)
		if err != nil || id == 0 {
			fields.Add("author", "Select a valid choice. That choice is not one of the available choices.")
		} else {
			f.AuthorID = uint(id)
		}
	}
	f.AuthorEmail = strings.TrimSpace(values.Get("author_email"))
	f.Summary = strings.TrimSpace(values.Get("summary"))
	f.Content = strings.TrimSpace(values.Get("content"))
	for _, t := range values["tags"] {
		for _, part := range strings.Split(t, ",") {
			if part = strings.TrimSpace(part); part != "" {
				f.Tags = append(f.Tags, part)
			}
		}
	}

	parseDate := func(key string) *time.Time {
		raw := strings.TrimSpace(values.Get(key))
		if raw == "" {
			return nil
		}
		d, err := time.ParseInLocation("2006-01-02", raw, loc)
		if err != nil {
			fields.Add(key, "Enter a valid date.")
			return nil
		}
		return &d
	}
	f.PublishedFrom = parseDate("published_from")
	if to := parseDate("published_to"); to != nil {
		next := to.AddDate(0, 0, 1)
		f.PublishedTo = &next
	}

	if err := fields.Err(); err != nil {
		return PostFilter{}, err
	}
	return f, nil
}

func icontains(col, needle string) sq.Sqlizer {
	return sq.Like{"LOWER(" + col + ")": "%" + strings.ToLower(needle) + "%"}
}

// Conditions compiles the filter into squirrel conditions.
func (f PostFilter) Conditions() []sq.Sqlizer {
	var conds []sq.Sqlizer
	if f.AuthorID != 0 {
		conds = append(conds, sq.Eq{colAuthorID: f.AuthorID})
	}
	if f.AuthorEmail != "" {
		sub, args, _ := sq.Select("users.id").From("users").Where(icontains("users.email", f.AuthorEmail)).ToSql()
		conds = append(conds, sq.Expr(colAuthorID+" IN ("+sub+")", args...))
	}
	if f.Summary != "" {
		conds = append(conds, icontains("posts.summary", f.Summary))
	}
	if f.Content != "" {
		conds = append(conds, icontains("posts.content", f.Content))
	}
	if len(f.Tags) > 0 {
		var ids []uint64
		var values []string
		for _, t := range f.Tags {
			if id, err := strconv.ParseUint(t, 10, 64); err == nil {
				ids = append(ids, id)
				continue
			}
			values = append(values, models.NormalizeTag(t))
		}
		match := sq.Or{}
		if len(ids) > 0 {
			match = append(match, sq.Eq{"tags.id": ids})
		}
		if len(values) > 0 {
			match = append(match, sq.Eq{"tags.value": values})
		}
		sub, args, _ := sq.Select("post_tags.post_id").
			From("post_tags").
			Join("tags ON tags.id = post_tags.tag_id").
			Where(match).
			ToSql()
		conds = append(conds, sq.Expr("posts.id IN ("+sub+")", args...))
	}
	if f.PublishedFrom != nil {
		conds = append(conds, sq.GtOrEq{colPublishedAt: f.PublishedFrom.UTC()})
	}
	if f.PublishedTo != nil {
		conds = append(conds, sq.Lt{colPublishedAt: f.PublishedTo.UTC()})
	}
	return conds
}

var orderingColumns = map[string]string{
	"published_at": colPublishedAt,
	"author":       colAuthorID,
	"title":        "posts.title",
	"slug":         "posts.slug",
}

// DefaultOrdering lists newest posts first.
const DefaultOrdering = "posts.published_at DESC, posts.id"

// Ordering turns "?ordering=-published_at,title" into an ORDER BY clause.
// Unknown fields are dropped; an empty result yields DefaultOrdering.
func Ordering(raw string) string {
	var parts []string
	for _, field := range strings.Split(raw, ",") {
		field = strings.TrimSpace(field)
		dir := "ASC"
		if strings.HasPrefix(field, "-") {
			dir = "DESC"
			field = field[1:]
		}
		col, ok := orderingColumns[field]
		if !ok {
			continue
		}
		parts = append(parts, col+" "+dir)
	}
	if len(parts) == 0 {
		return DefaultOrdering
	}
	return strings.Join(append(parts, "posts.id"), ", ")
}

// Apply adds every non-nil condition to db as a WHERE clause.
func Apply(db *gorm.DB, conds ...sq.Sqlizer) (*gorm.DB, error) {
	for _, c := range conds {
		if c == nil {
			continue
		}
		sql, args, err := c.ToSql()
		if err != nil {
			return nil, fmt.Errorf("build filter: %w", err)
		}
		if sql == "" {
			continue
		}
		db = db.Where(sql, args...)
	}
	return db, nil
}
