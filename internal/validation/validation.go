// Package validation holds input rules shared by the API and HTML forms.
package validation

import (
	"errors"
	"net/mail"
	"regexp"
	"strings"
	"unicode"
)

const (
	PasswordMinLength = 8
	PasswordMaxLength = 128
	EmailMaxLength    = 254
	SlugMaxLength     = 100
)

var (
	slugRegex = regexp.MustCompile(`^[-a-zA-Z0-9_]+$`)

	// A short list of passwords that appear at the top of every breach corpus.
	commonPasswords = map[string]struct{}{
		"password": {}, "password1": {}, "password123": {}, "12345678": {}, "123456789": {},
		"1234567890": {}, "qwerty123": {}, "qwertyuiop": {}, "iloveyou": {}, "sunshine": {},
		"princess": {}, "football": {}, "baseball": {}, "welcome1": {}, "admin123": {},
		"letmein1": {}, "trustno1": {}, "superman": {}, "starwars": {}, "passw0rd": {},
		"abc12345": {}, "11111111": {}, "00000000": {}, "monkey123": {}, "dragon123": {},
	}
)

// ValidateEmail checks a bare address such as "a@example.com".
func ValidateEmail(email string) error {
	email = strings.TrimSpace(email)
	if email == "" {
		return errors.New("This field may not be blank.")
	}
	if len(email) > EmailMaxLength {
		return errors.New("Ensure this field has no more than 254 characters.")
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email || addr.Name != "" {
		return errors.New("Enter a valid email address.")
	}
	at := strings.LastIndex(email, "@")
	domain := email[at+1:]
	if strings.HasSuffix(domain, ".") || !strings.Contains(domain, ".") || strings.Contains(domain, "..") {
		return errors.New("Enter a valid email address.")
	}
	return nil
}

// ValidatePassword applies length, common-password, all-numeric and
// similarity checks. email may be empty.
func ValidatePassword(password, email string) error {
	n := len([]rune(password))
	if n < PasswordMinLength {
		return errors.New("This password is too short. It must contain at least 8 characters.")
	}
	if n > PasswordMaxLength {
		return errors.New("This password is too long.")
	}
	if _, common := commonPasswords[strings.ToLower(password)]; common {
		return errors.New("This password is too common.")
	}
	allDigits := true
	for _, r := range password {
		if !unicode.IsDigit(r) {
			allDigits = false
			break
		}
	}
	if allDigits {
		return errors.New("This password is entirely numeric.")
	}
	if local, _, ok := strings.Cut(strings.ToLower(email), "@"); ok && len(local) >= 3 {
		if strings.Contains(strings.ToLower(password), local) {
			return errors.New("The password is too similar to the email address.")
		}
	}
	return nil
}

// ValidateSlug accepts letters, numbers, underscores and hyphens.
func ValidateSlug(slug string) error {
	if slug == "" {
		return errors.New("This field may not be blank.")
	}
	if len(slug) > SlugMaxLength {
		return errors.New("Ensure this field has no more than 100 characters.")
	}
	if !slugRegex.MatchString(slug) {
		return errors.New("Enter a valid \"slug\" consisting of letters, numbers, underscores or hyphens.")
	}
	return nil
}
