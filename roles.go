package auth

import (
	"context"
	"sort"
	"strings"

	"github.com/google/uuid"
)

// Link management permissions
const (
	PermissionCreateLink       = "CREATE_LINK"
	PermissionCreateCollection = "CREATE_COLLECTION"
	PermissionReadOwnLinks     = "READ_OWN_LINKS"
	PermissionReadAllLinks     = "READ_ALL_LINKS"
	PermissionUpdateOwnLinks   = "UPDATE_OWN_LINKS"
	PermissionUpdateAllLinks   = "UPDATE_ALL_LINKS"
	PermissionDeleteOwnLinks   = "DELETE_OWN_LINKS"
	PermissionDeleteAllLinks   = "DELETE_ALL_LINKS"
)

// User management permissions
const (
	PermissionManageUsers = "MANAGE_USERS"
	PermissionViewUsers   = "VIEW_USERS"
	PermissionManageRoles = "MANAGE_ROLES"
)

// System permissions
const (
	PermissionAdminAccess  = "ADMIN_ACCESS"
	PermissionSystemConfig = "SYSTEM_CONFIG"
)

// UserRole names a set of permissions
type UserRole string

const (
	RoleUser      UserRole = "USER"
	RoleModerator UserRole = "MODERATOR"
	RoleAdmin     UserRole = "ADMIN"
)

// DefaultRole is assumed for users without any role assignment
const DefaultRole = RoleUser

var rolePermissions = map[UserRole][]string{
	RoleUser: {
		PermissionCreateLink,
		PermissionCreateCollection,
		PermissionReadOwnLinks,
		PermissionUpdateOwnLinks,
		PermissionDeleteOwnLinks,
	},
	RoleModerator: {
		PermissionCreateLink,
		PermissionCreateCollection,
		PermissionReadOwnLinks,
		PermissionUpdateOwnLinks,
		PermissionDeleteOwnLinks,
		PermissionReadAllLinks,
		PermissionUpdateAllLinks,
		PermissionDeleteAllLinks,
		PermissionViewUsers,
	},
	RoleAdmin: {
		PermissionCreateLink,
		PermissionCreateCollection,
		PermissionReadOwnLinks,
		PermissionUpdateOwnLinks,
		PermissionDeleteOwnLinks,
		PermissionReadAllLinks,
		PermissionUpdateAllLinks,
		PermissionDeleteAllLinks,
		PermissionViewUsers,
		PermissionManageUsers,
		PermissionManageRoles,
		PermissionAdminAccess,
		PermissionSystemConfig,
	},
}

// ParseUserRole parses a role name ignoring case
func ParseUserRole(value string) (UserRole, bool) {
	role := UserRole(strings.ToUpper(strings.TrimSpace(value)))
	return role, role.IsValid()
}

// IsValid checks if the role is one of the predefined roles
func (r UserRole) IsValid() bool {
	_, ok := rolePermissions[r]
	return ok
}

// Permissions returns a copy of the role's permissions
func (r UserRole) Permissions() []string {
	perms := rolePermissions[r]
	out := make([]string, len(perms))
	copy(out, perms)
	return out
}

// PermissionsForRoles merges the permissions of every valid role, sorted and
// without duplicates.
func PermissionsForRoles(roles ...UserRole) []string {
	set := map[string]struct{}{}
	for _, r := range roles {
		for _, p := range rolePermissions[r] {
			set[p] = struct{}{}
		}
	}

	out := make([]string, 0, len(set))
	for p := range set {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// StaticPermissionSource grants the same roles to every user unless an
// override is registered for a specific user.
type StaticPermissionSource struct {
	defaults  []UserRole
	overrides map[uuid.UUID][]UserRole
}

var _ PermissionSource = (*StaticPermissionSource)(nil)

// NewStaticPermissionSource grants roles to everyone, DefaultRole when none given
func NewStaticPermissionSource(roles ...UserRole) *StaticPermissionSource {
	if len(roles) == 0 {
		roles = []UserRole{DefaultRole}
	}
	return &StaticPermissionSource{
		defaults:  roles,
		overrides: map[uuid.UUID][]UserRole{},
	}
}

// WithUserRoles overrides the roles of a single user
func (s *StaticPermissionSource) WithUserRoles(userID uuid.UUID, roles ...UserRole) *StaticPermissionSource {
	s.overrides[userID] = roles
	return s
}

func (s *StaticPermissionSource) GetUserPermissions(_ context.Context, userID uuid.UUID) ([]string, error) {
	if roles, ok := s.overrides[userID]; ok {
		return PermissionsForRoles(roles...), nil
	}
	return PermissionsForRoles(s.defaults...), nil
}
