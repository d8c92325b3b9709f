// Package serializers converts models to API representations and validates
// incoming payloads.
package serializers

import (
	"net/url"
	"strings"
	"time"

	"blango/internal/media"
	"blango/internal/models"
)

// MsgInvalidHyperlink is the field error for an author reference that resolves to nobody.
const MsgInvalidHyperlink = "Invalid hyperlink - Object does not exist."

// Links renders absolute URLs for hyperlinked fields.
type Links struct {
	BaseURL string
	Media   media.Store
}

// UserURL is the hyperlink identifying a user by email.
func (l Links) UserURL(email string) string {
	return strings.TrimRight(l.BaseURL, "/") + "/api/v1/users/" + url.PathEscape(email)
}

func (l Links) mediaURL(key string) string {
	if l.Media == nil {
		return "/media/" + key
	}
	return l.Media.URL(key)
}

// User is the public user representation.
type User struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
}

// NewUser serializes u.
func NewUser(u *models.User) User {
	return User{FirstName: u.FirstName, LastName: u.LastName, Email: u.Email}
}

// Tag is the tag representation.
type Tag struct {
	ID    uint   `json:"id"`
	Value string `json:"value"`
}

// NewTags serializes tags in order.
func NewTags(tags []models.Tag) []Tag {
	out := make([]Tag, 0, len(tags))
	for _, t := range tags {
		out = append(out, Tag{ID: t.ID, Value: t.Value})
	}
	return out
}

// TagInput is the writable part of a tag.
type TagInput struct {
	Value string `json:"value"`
}

// Validate checks the tag value.
func (in TagInput) Validate() error {
	errs := models.FieldErrors{}
	value := models.NormalizeTag(in.Value)
	switch {
	case value == "":
		errs.Add("value", MsgRequired)
	case len([]rune(value)) > 100:
		errs.Add("value", maxLength(100))
	}
	return errs.Err()
}

// Comment is the comment representation with the creator inlined.
type Comment struct {
	ID         uint      `json:"id"`
	Creator    User      `json:"creator"`
	Content    string    `json:"content"`
	CreatedAt  time.Time `json:"created_at"`
	ModifiedAt time.Time `json:"modified_at"`
}

// NewComment serializes c. Creator must be preloaded.
func NewComment(c *models.Comment) Comment {
	return Comment{
		ID:         c.ID,
		Creator:    NewUser(&c.Creator),
		Content:    c.Content,
		CreatedAt:  c.CreatedAt,
		ModifiedAt: c.UpdatedAt,
	}
}

// NewComments serializes comments in order.
func NewComments(comments []models.Comment) []Comment {
	out := make([]Comment, 0, len(comments))
	for i := range comments {
		out = append(out, NewComment(&comments[i]))
	}
	return out
}

// CommentInput is one entry of a comment write. Entries with an ID refer to
// existing comments.
type CommentInput struct {
	ID      *uint  `json:"id,omitempty"`
	Content string `json:"content"`
}
