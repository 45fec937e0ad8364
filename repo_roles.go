package auth

import (
	"context"
	"time"

	"github.com/goliatone/go-errors"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// UserRoleAssignment grants a role to a user
type UserRoleAssignment struct {
	bun.BaseModel `bun:"table:user_roles,alias:url"`
	UserID        uuid.UUID `bun:"user_id,pk,type:uuid" json:"user_id"`
	Role          UserRole  `bun:"role,pk" json:"role"`
	CreatedAt     time.Time `bun:"created_at,notnull" json:"created_at"`
}

// RolePermissionSource resolves permissions from the user_roles table.
// Users without assignments get DefaultRole.
type RolePermissionSource struct {
	db  *bun.DB
	now func() time.Time
}

var _ PermissionSource = (*RolePermissionSource)(nil)

func NewRolePermissionSource(db *bun.DB) *RolePermissionSource {
	return &RolePermissionSource{db: db, now: time.Now}
}

func (s *RolePermissionSource) GetUserPermissions(ctx context.Context, userID uuid.UUID) ([]string, error) {
	roles, err := s.FindRoles(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(roles) == 0 {
		roles = []UserRole{DefaultRole}
	}
	return PermissionsForRoles(roles...), nil
}

// FindRoles lists the valid roles assigned to a user
func (s *RolePermissionSource) FindRoles(ctx context.Context, userID uuid.UUID) ([]UserRole, error) {
	var records []UserRoleAssignment
	err := s.db.NewSelect().
		Model(&records).
		Where("?TableAlias.user_id = ?", userID).
		Order("role ASC").
		Scan(ctx)
	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to query user roles")
	}

	roles := make([]UserRole, 0, len(records))
	for _, r := range records {
		if r.Role.IsValid() {
			roles = append(roles, r.Role)
		}
	}
	return roles, nil
}

// AssignRole grants a role, assigning an already granted role is a no-op
func (s *RolePermissionSource) AssignRole(ctx context.Context, userID uuid.UUID, role UserRole) error {
	if !role.IsValid() {
		return errors.New("unknown role: "+string(role), errors.CategoryBadInput).
			WithTextCode(TextCodeValidation).
			WithCode(errors.CodeBadRequest)
	}

	record := &UserRoleAssignment{
		UserID:    userID,
		Role:      role,
		CreatedAt: truncate(s.now()),
	}

	_, err := s.db.NewInsert().
		Model(record).
		On("CONFLICT DO NOTHING").
		Exec(ctx)
	if err != nil {
		return errors.Wrap(err, errors.CategoryInternal, "failed to assign role")
	}
	return nil
}

// RemoveRole revokes a role, reports false when it was not assigned
func (s *RolePermissionSource) RemoveRole(ctx context.Context, userID uuid.UUID, role UserRole) (bool, error) {
	res, err := s.db.NewDelete().
		Model((*UserRoleAssignment)(nil)).
		Where("user_id = ?", userID).
		Where("role = ?", role).
		Exec(ctx)
	n, err := countAffected(res, err, "failed to remove role")
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
