// Package models contains data structures for the application's domain models.
package models

import (
	"strings"
	"time"
)

// User is an account keyed by email address rather than a username.
type User struct {
	ID          uint           `gorm:"primaryKey" json:"id"`
	Email       string         `gorm:"size:254;uniqueIndex;not null" json:"email"`
	Password    string         `gorm:"not null" json:"-"`
	FirstName   string         `gorm:"size:150" json:"first_name"`
	LastName    string         `gorm:"size:150" json:"last_name"`
	IsActive    bool           `gorm:"not null;default:false;index" json:"is_active"`
	IsStaff     bool           `gorm:"not null;default:false" json:"is_staff"`
	IsSuperuser bool           `gorm:"not null;default:false" json:"is_superuser"`
	DateJoined  time.Time      `gorm:"not null;index" json:"date_joined"`
	LastLogin   *time.Time     `json:"last_login,omitempty"`
	Profile     *AuthorProfile `gorm:"foreignKey:UserID" json:"profile,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// NormalizeEmail trims the address and lowercases it so that lookups and the
// unique index treat addresses case-insensitively.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// FullName returns "First Last" with surrounding space trimmed.
func (u *User) FullName() string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

// DisplayName falls back to the email address when no name is set.
func (u *User) DisplayName() string {
	if name := u.FullName(); name != "" {
		return name
	}
	return u.Email
}

// OwnerID lets a user be checked by object-level permission rules.
func (u *User) OwnerID() uint {
	return u.ID
}

// ActivationDeadline is the moment after which an inactive account is swept.
func (u *User) ActivationDeadline(retentionDays int) time.Time {
	return u.DateJoined.Add(time.Duration(retentionDays) * 24 * time.Hour)
}

// NewSuperuser builds an active account with both staff and superuser flags set.
func NewSuperuser(email, passwordHash string) *User {
	return &User{
		Email:       NormalizeEmail(email),
		Password:    passwordHash,
		IsActive:    true,
		IsStaff:     true,
		IsSuperuser: true,
		DateJoined:  time.Now().UTC(),
	}
}

// AuthorProfile extends a user with a biography. It is removed with the user.
type AuthorProfile struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UserID    uint      `gorm:"uniqueIndex;not null" json:"user_id"`
	User      *User     `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"-"`
	Bio       string    `gorm:"type:text" json:"bio"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
