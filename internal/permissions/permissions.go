// Package permissions implements endpoint and object level access rules.
package permissions

import (
	"net/http"

	"blango/internal/models"
)

// Requester is the caller of an operation. A zero ID means anonymous.
type Requester struct {
	ID          uint
	IsStaff     bool
	IsSuperuser bool
	Method      string
}

// Authenticated reports whether the requester is signed in.
func (r Requester) Authenticated() bool {
	return r.ID != 0
}

// SafeMethod reports whether the request only reads.
func (r Requester) SafeMethod() bool {
	switch r.Method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return true
	}
	return false
}

// Owned is anything with an owning user.
type Owned interface {
	OwnerID() uint
}

// Rule decides access at the endpoint and at the object level.
type Rule interface {
	HasPermission(r Requester) bool
	HasObjectPermission(r Requester, obj Owned) bool
}

type authorModifyOrReadOnly struct{}

// AuthorModifyOrReadOnly lets anyone read and only the owner write.
var AuthorModifyOrReadOnly Rule = authorModifyOrReadOnly{}

func (authorModifyOrReadOnly) HasPermission(r Requester) bool {
	return r.SafeMethod() || r.Authenticated()
}

func (authorModifyOrReadOnly) HasObjectPermission(r Requester, obj Owned) bool {
	if r.SafeMethod() {
		return true
	}
	return r.Authenticated() && obj != nil && r.ID == obj.OwnerID()
}

type isAdminUserForObject struct{}

// IsAdminUserForObject admits staff for every method.
var IsAdminUserForObject Rule = isAdminUserForObject{}

func (isAdminUserForObject) HasPermission(r Requester) bool {
	return r.Authenticated() && r.IsStaff
}

func (isAdminUserForObject) HasObjectPermission(r Requester, _ Owned) bool {
	return r.Authenticated() && r.IsStaff
}

type isAuthenticatedOrReadOnly struct{}

// IsAuthenticatedOrReadOnly lets anyone read and any signed-in user write.
var IsAuthenticatedOrReadOnly Rule = isAuthenticatedOrReadOnly{}

func (isAuthenticatedOrReadOnly) HasPermission(r Requester) bool {
	return r.SafeMethod() || r.Authenticated()
}

func (isAuthenticatedOrReadOnly) HasObjectPermission(r Requester, _ Owned) bool {
	return r.SafeMethod() || r.Authenticated()
}

type isAuthenticated struct{}

// IsAuthenticated requires a signed-in user for every method.
var IsAuthenticated Rule = isAuthenticated{}

func (isAuthenticated) HasPermission(r Requester) bool                { return r.Authenticated() }
func (isAuthenticated) HasObjectPermission(r Requester, _ Owned) bool { return r.Authenticated() }

// IsAdminUser is the endpoint rule for staff-only routes.
var IsAdminUser = IsAdminUserForObject

type isSuperuser struct{}

// IsSuperuser admits superusers only.
var IsSuperuser Rule = isSuperuser{}

func (isSuperuser) HasPermission(r Requester) bool { return r.Authenticated() && r.IsSuperuser }
func (isSuperuser) HasObjectPermission(r Requester, _ Owned) bool {
	return r.Authenticated() && r.IsSuperuser
}

type anyOf []Rule

// Any passes when at least one rule passes, at both levels.
func Any(rules ...Rule) Rule {
	return anyOf(rules)
}

func (a anyOf) HasPermission(r Requester) bool {
	for _, rule := range a {
		if rule.HasPermission(r) {
			return true
		}
	}
	return false
}

func (a anyOf) HasObjectPermission(r Requester, obj Owned) bool {
	for _, rule := range a {
		if rule.HasObjectPermission(r, obj) {
			return true
		}
	}
	return false
}

// PostRule governs post endpoints: authors edit their own posts, staff edit all.
var PostRule = Any(AuthorModifyOrReadOnly, IsAdminUserForObject)

// Check evaluates rule for r and, when obj is non-nil, at the object level.
// Anonymous callers get NOT_AUTHENTICATED, signed-in ones FORBIDDEN.
func Check(rule Rule, r Requester, obj Owned) error {
	allowed := rule.HasPermission(r)
	if allowed && obj != nil {
		allowed = rule.HasObjectPermission(r, obj)
	}
	if allowed {
		return nil
	}
	if !r.Authenticated() {
		return models.NewNotAuthenticatedError()
	}
	return models.NewForbiddenError("")
}
