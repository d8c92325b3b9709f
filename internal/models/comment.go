package models

import "time"

// Comment target kinds. They match the table names of the objects a comment may
// be attached to.
const (
	CommentTargetPost = "posts"
	CommentTargetUser = "users"
)

// Comment is free text attached to exactly one post or user.
type Comment struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	CreatorID  uint      `gorm:"not null;index" json:"creator_id"`
	Creator    User      `gorm:"foreignKey:CreatorID;constraint:OnDelete:CASCADE" json:"creator"`
	Content    string    `gorm:"type:text;not null" json:"content"`
	ObjectType string    `gorm:"size:20;not null;index:idx_comments_object" json:"object_type"`
	ObjectID   uint      `gorm:"not null;index:idx_comments_object" json:"object_id"`
	CreatedAt  time.Time `gorm:"index" json:"created_at"`
	UpdatedAt  time.Time `json:"modified_at"`
}

// OwnerID returns the creator of the comment.
func (c *Comment) OwnerID() uint {
	return c.CreatorID
}

// ValidCommentTarget reports whether kind names an object comments can attach to.
func ValidCommentTarget(kind string) bool {
	return kind == CommentTargetPost || kind == CommentTargetUser
}
