package auth

import (
	"sort"
	"time"

	"github.com/google/uuid"
)

// SecurityContext describes who is calling and what they may do. It is
// either anonymous or fully authenticated, use Anonymous or Authenticated
// to build one. The zero value is anonymous.
type SecurityContext struct {
	userID          uuid.UUID
	username        string
	email           string
	permissions     map[string]struct{}
	authenticated   bool
	authenticatedAt time.Time
	ipAddress       string
	userAgent       string
}

// Anonymous returns an unauthenticated context
func Anonymous() SecurityContext {
	return SecurityContext{}
}

// Authenticated returns a context bound to user
func Authenticated(user User, permissions []string, ipAddress, userAgent string) SecurityContext {
	set := make(map[string]struct{}, len(permissions))
	for _, p := range permissions {
		if p == "" {
			continue
		}
		set[p] = struct{}{}
	}

	return SecurityContext{
		userID:          user.ID,
		username:        user.Username,
		email:           user.Email,
		permissions:     set,
		authenticated:   true,
		authenticatedAt: truncate(time.Now()),
		ipAddress:       ipAddress,
		userAgent:       userAgent,
	}
}

func (s SecurityContext) IsAuthenticated() bool { return s.authenticated }

func (s SecurityContext) UserID() uuid.UUID { return s.userID }

func (s SecurityContext) Username() string { return s.username }

func (s SecurityContext) Email() string { return s.email }

func (s SecurityContext) AuthenticatedAt() time.Time { return s.authenticatedAt }

func (s SecurityContext) IPAddress() string { return s.ipAddress }

func (s SecurityContext) UserAgent() string { return s.userAgent }

// Permissions returns a sorted copy of the permission set
func (s SecurityContext) Permissions() []string {
	out := make([]string, 0, len(s.permissions))
	for p := range s.permissions {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// CurrentUserID returns the user id and whether the context is authenticated
func (s SecurityContext) CurrentUserID() (uuid.UUID, bool) {
	if !s.authenticated {
		return uuid.Nil, false
	}
	return s.userID, true
}

func (s SecurityContext) HasPermission(permission string) bool {
	if !s.authenticated {
		return false
	}
	_, ok := s.permissions[permission]
	return ok
}

func (s SecurityContext) HasAnyPermission(permissions ...string) bool {
	for _, p := range permissions {
		if s.HasPermission(p) {
			return true
		}
	}
	return false
}

// HasAllPermissions is false for an anonymous context even with no arguments
func (s SecurityContext) HasAllPermissions(permissions ...string) bool {
	if !s.authenticated {
		return false
	}
	for _, p := range permissions {
		if !s.HasPermission(p) {
			return false
		}
	}
	return true
}

// IsOwner reports whether the caller owns the resource
func (s SecurityContext) IsOwner(resourceOwnerID uuid.UUID) bool {
	return s.authenticated && resourceOwnerID != uuid.Nil && s.userID == resourceOwnerID
}

// CanAccess is the owner-or-admin check
func (s SecurityContext) CanAccess(resourceOwnerID uuid.UUID, adminPermissions ...string) bool {
	return s.IsOwner(resourceOwnerID) || s.HasAnyPermission(adminPermissions...)
}
