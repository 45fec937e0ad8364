package auth

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// AuthorizationService builds per request security contexts and enforces
// permission and ownership checks on them.
type AuthorizationService struct {
	codec       TokenCodec
	users       UserStore
	permissions PermissionSource
	logger      Logger
	metrics     *Metrics
}

func NewAuthorizationService(codec TokenCodec, users UserStore, permissions PermissionSource) *AuthorizationService {
	return &AuthorizationService{
		codec:       codec,
		users:       users,
		permissions: permissions,
		logger:      defLogger{},
	}
}

func (s *AuthorizationService) WithLogger(logger Logger) *AuthorizationService {
	s.logger = normalizeLogger(logger)
	return s
}

func (s *AuthorizationService) WithMetrics(m *Metrics) *AuthorizationService {
	s.metrics = m
	return s
}

// CreateSecurityContext resolves a bearer access token into a
// SecurityContext. It never fails: every problem, including store errors and
// panics in collaborators, yields an anonymous context.
func (s *AuthorizationService) CreateSecurityContext(ctx context.Context, bearerToken, ipAddress, userAgent string) (sc SecurityContext) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("security context construction panicked", "panic", fmt.Sprint(r))
			sc = Anonymous()
		}
		s.metrics.RecordSecurityContext(sc.IsAuthenticated())
	}()

	token := strings.TrimSpace(bearerToken)
	if token == "" {
		return Anonymous()
	}

	claims, err := s.codec.Validate(token)
	if err != nil || claims == nil {
		s.logger.Debug("bearer token rejected", "error", err)
		return Anonymous()
	}

	// refresh tokens must not be accepted as bearer credentials
	if !claims.IsAccess() {
		s.logger.Debug("bearer token rejected", "reason", "not an access token")
		return Anonymous()
	}

	userID, err := claims.UserUUID()
	if err != nil {
		s.logger.Debug("bearer token rejected", "reason", "malformed subject")
		return Anonymous()
	}

	user, err := s.users.FindByID(ctx, userID)
	if err != nil || user == nil {
		s.logger.Debug("bearer token rejected", "reason", "user lookup", "user_id", userID, "error", err)
		return Anonymous()
	}

	if !user.IsActive {
		s.logger.Debug("bearer token rejected", "reason", "inactive user", "user_id", userID)
		return Anonymous()
	}

	perms, err := s.permissions.GetUserPermissions(ctx, user.ID)
	if err != nil {
		s.logger.Warn("permission lookup failed", "user_id", user.ID, "error", err)
		return Anonymous()
	}

	return Authenticated(*user, perms, ipAddress, userAgent)
}

// RequireAuthentication fails with ErrUnauthorized on an anonymous context
func (s *AuthorizationService) RequireAuthentication(sc SecurityContext) error {
	return RequireAuthentication(sc)
}

// RequirePermission requires authentication and the exact permission
func (s *AuthorizationService) RequirePermission(sc SecurityContext, permission string) error {
	return RequirePermission(sc, permission)
}

// RequireAnyPermission requires authentication and at least one permission
func (s *AuthorizationService) RequireAnyPermission(sc SecurityContext, permissions ...string) error {
	return RequireAnyPermission(sc, permissions...)
}

// RequireResourceAccess requires authentication and either ownership of the
// resource or one of the admin permissions.
func (s *AuthorizationService) RequireResourceAccess(sc SecurityContext, resourceOwnerID uuid.UUID, adminPermissions ...string) error {
	return RequireResourceAccess(sc, resourceOwnerID, adminPermissions...)
}

// ExtractUserIDFromToken reads the subject of a token without validating it.
// Only use the result for audit correlation, never for access decisions.
func (s *AuthorizationService) ExtractUserIDFromToken(token string) (string, bool) {
	if strings.TrimSpace(token) == "" {
		return "", false
	}
	return s.codec.ExtractUserID(token)
}

func RequireAuthentication(sc SecurityContext) error {
	if !sc.IsAuthenticated() {
		return ErrUnauthorized
	}
	return nil
}

func RequirePermission(sc SecurityContext, permission string) error {
	if err := RequireAuthentication(sc); err != nil {
		return err
	}
	if !sc.HasPermission(permission) {
		return ErrInsufficientPermissions
	}
	return nil
}

func RequireAnyPermission(sc SecurityContext, permissions ...string) error {
	if err := RequireAuthentication(sc); err != nil {
		return err
	}
	if !sc.HasAnyPermission(permissions...) {
		return ErrInsufficientPermissions
	}
	return nil
}

func RequireResourceAccess(sc SecurityContext, resourceOwnerID uuid.UUID, adminPermissions ...string) error {
	if err := RequireAuthentication(sc); err != nil {
		return err
	}
	if !sc.CanAccess(resourceOwnerID, adminPermissions...) {
		return ErrInsufficientPermissions
	}
	return nil
}
