package models

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// DefaultPPOI centres crops on the middle of the hero image.
const DefaultPPOI = "0.5x0.5"

// Post is a blog entry. A nil PublishedAt marks a draft.
type Post struct {
	ID          uint       `gorm:"primaryKey" json:"id"`
	AuthorID    uint       `gorm:"not null;index" json:"author_id"`
	Author      User       `gorm:"foreignKey:AuthorID;constraint:OnDelete:RESTRICT" json:"-"`
	Title       string     `gorm:"size:100;not null" json:"title"`
	Slug        string     `gorm:"size:100;uniqueIndex;not null" json:"slug"`
	Summary     string     `gorm:"size:500;not null" json:"summary"`
	Content     string     `gorm:"type:text;not null" json:"content"`
	HeroImage   string     `gorm:"size:255" json:"hero_image"`
	PPOI        string     `gorm:"column:ppoi;size:20;not null;default:0.5x0.5" json:"ppoi"`
	PublishedAt *time.Time `gorm:"index" json:"published_at"`
	Tags        []Tag      `gorm:"many2many:post_tags;" json:"tags"`
	Comments    []Comment  `gorm:"polymorphic:Object;polymorphicValue:posts" json:"comments,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"modified_at"`
}

// OwnerID returns the author, which object-level permission rules compare against.
func (p *Post) OwnerID() uint {
	return p.AuthorID
}

// IsPublished reports whether the post is visible to anonymous readers at now.
func (p *Post) IsPublished(now time.Time) bool {
	return p.PublishedAt != nil && !p.PublishedAt.After(now)
}

// TagValues returns the tag values in stored order.
func (p *Post) TagValues() []string {
	out := make([]string, 0, len(p.Tags))
	for _, t := range p.Tags {
		out = append(out, t.Value)
	}
	return out
}

// ParsePPOI accepts "0.3x0.7" or "0.3,0.7" and returns coordinates in [0,1].
func ParsePPOI(raw string) (float64, float64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0.5, 0.5, nil
	}
	sep := "x"
	if strings.Contains(raw, ",") {
		sep = ","
	}
	parts := strings.Split(raw, sep)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("ppoi %q must look like 0.5x0.5", raw)
	}
	x, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return 0, 0, fmt.Errorf("ppoi x: %w", err)
	}
	y, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return 0, 0, fmt.Errorf("ppoi y: %w", err)
	}
	if !inUnit(x) || !inUnit(y) {
		return 0, 0, fmt.Errorf("ppoi %q out of range [0,1]", raw)
	}
	return x, y, nil
}

func inUnit(v float64) bool {
	return !math.IsNaN(v) && v >= 0 && v <= 1
}

// FormatPPOI renders coordinates in the stored "XxY" form with at most four
// decimals, so the result always fits the 20 character column.
func FormatPPOI(x, y float64) string {
	return formatCoord(x) + "x" + formatCoord(y)
}

func formatCoord(v float64) string {
	s := strconv.FormatFloat(v, 'f', 4, 64)
	s = strings.TrimRight(s, "0")
	return strings.TrimSuffix(s, ".")
}

// Tag is a lowercase label shared by many posts.
type Tag struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Value     string    `gorm:"size:100;uniqueIndex;not null" json:"value"`
	Posts     []Post    `gorm:"many2many:post_tags;" json:"-"`
	CreatedAt time.Time `json:"-"`
}

// NormalizeTag lowercases and trims a tag value.
func NormalizeTag(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}
