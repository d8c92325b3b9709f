package models

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/gofiber/fiber/v2"
)

// Error codes carried by AppError and returned to clients in the "code" field.
const (
	CodeValidation       = "VALIDATION_ERROR"
	CodeNotAuthenticated = "NOT_AUTHENTICATED"
	CodeForbidden        = "FORBIDDEN"
	CodeNotFound         = "NOT_FOUND"
	CodeProtected        = "PROTECTED"
	CodeConflict         = "CONFLICT"
	CodeThrottled        = "THROTTLED"
	CodeInternal         = "INTERNAL_ERROR"
)

// NonFieldErrors is the key used for validation messages not tied to one field.
const NonFieldErrors = "non_field_errors"

// ErrorResponse represents a standardized API error response
type ErrorResponse struct {
	Error  string              `json:"error"`
	Code   string              `json:"code,omitempty"`
	Fields map[string][]string `json:"fields,omitempty"`
}

// AppError represents a custom application error
type AppError struct {
	Code    string
	Message string
	Fields  map[string][]string
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// NewNotFoundError reports a missing record by resource name and key.
func NewNotFoundError(resource string, id interface{}) *AppError {
	return &AppError{
		Code:    CodeNotFound,
		Message: fmt.Sprintf("%s with ID %v not found", resource, id),
	}
}

// NewNotFoundMessage reports a missing resource with a caller-supplied message.
func NewNotFoundMessage(message string) *AppError {
	return &AppError{Code: CodeNotFound, Message: message}
}

func NewValidationError(message string) *AppError {
	return &AppError{
		Code:    CodeValidation,
		Message: message,
		Fields:  map[string][]string{NonFieldErrors: {message}},
	}
}

// NewFieldError is a validation error attached to a single input field.
func NewFieldError(field, message string) *AppError {
	return &AppError{
		Code:    CodeValidation,
		Message: message,
		Fields:  map[string][]string{field: {message}},
	}
}

func NewNotAuthenticatedError() *AppError {
	return &AppError{
		Code:    CodeNotAuthenticated,
		Message: "Authentication credentials were not provided.",
	}
}

func NewForbiddenError(message string) *AppError {
	if message == "" {
		message = "You do not have permission to perform this action."
	}
	return &AppError{Code: CodeForbidden, Message: message}
}

func NewProtectedError(message string) *AppError {
	return &AppError{Code: CodeProtected, Message: message}
}

func NewConflictError(message string) *AppError {
	return &AppError{Code: CodeConflict, Message: message}
}

func NewThrottledError(wait time.Duration) *AppError {
	secs := int(wait.Round(time.Second) / time.Second)
	if secs < 1 {
		secs = 1
	}
	return &AppError{
		Code:    CodeThrottled,
		Message: fmt.Sprintf("Request was throttled. Expected available in %d seconds.", secs),
	}
}

func NewInternalError(err error) *AppError {
	return &AppError{
		Code:    CodeInternal,
		Message: "Internal server error",
		Err:     err,
	}
}

// FieldErrors accumulates per-field validation messages.
type FieldErrors map[string][]string

// Add records msg against field.
func (f FieldErrors) Add(field, msg string) {
	f[field] = append(f[field], msg)
}

// Merge copies every message from other into f.
func (f FieldErrors) Merge(other map[string][]string) {
	for field, msgs := range other {
		f[field] = append(f[field], msgs...)
	}
}

// Err returns nil when nothing was recorded, otherwise a VALIDATION_ERROR.
func (f FieldErrors) Err() error {
	if len(f) == 0 {
		return nil
	}
	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return &AppError{
		Code:    CodeValidation,
		Message: fmt.Sprintf("%s: %s", keys[0], f[keys[0]][0]),
		Fields:  map[string][]string(f),
	}
}

// StatusFor maps an error to its HTTP status code.
func StatusFor(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		switch appErr.Code {
		case CodeValidation:
			return fiber.StatusBadRequest
		case CodeNotAuthenticated:
			return fiber.StatusUnauthorized
		case CodeForbidden:
			return fiber.StatusForbidden
		case CodeNotFound:
			return fiber.StatusNotFound
		case CodeProtected, CodeConflict:
			return fiber.StatusConflict
		case CodeThrottled:
			return fiber.StatusTooManyRequests
		}
		return fiber.StatusInternalServerError
	}
	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		return fiberErr.Code
	}
	return fiber.StatusInternalServerError
}

// IsCode reports whether err is an AppError with the given code.
func IsCode(err error, code string) bool {
	var appErr *AppError
	return errors.As(err, &appErr) && appErr.Code == code
}

// RespondWithError writes the standardized JSON error body with the status
// derived from the error.
func RespondWithError(c *fiber.Ctx, err error) error {
	status := StatusFor(err)
	var response ErrorResponse

	var appErr *AppError
	var fiberErr *fiber.Error
	switch {
	case errors.As(err, &appErr):
		response = ErrorResponse{
			Error:  appErr.Message,
			Code:   appErr.Code,
			Fields: appErr.Fields,
		}
		if appErr.Code == CodeNotAuthenticated {
			c.Set(fiber.HeaderWWWAuthenticate, `Bearer realm="api"`)
		}
	case errors.As(err, &fiberErr):
		response = ErrorResponse{Error: fiberErr.Message}
	default:
		response = ErrorResponse{Error: "Internal server error", Code: CodeInternal}
	}

	return c.Status(status).JSON(response)
}
