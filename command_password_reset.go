package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"strings"
	"time"

	"github.com/goliatone/go-errors"
)

// DefaultPasswordResetTTL bounds how long a reset token can be redeemed
const DefaultPasswordResetTTL = time.Hour

const resetTokenBytes = 32

// PasswordResetTicket is returned when a reset was requested for a known
// active user. Deliver Token out of band, never in the API response.
type PasswordResetTicket struct {
	UserID    string
	Email     string
	Token     string
	ExpiresAt time.Time
}

// PasswordResetService issues single use PASSWORD_RESET tokens and redeems
// them for a new password.
type PasswordResetService struct {
	users     UserStore
	passwords PasswordUpdater
	hasher    PasswordHasher
	tokens    TokenStore
	events    EventSink
	logger    Logger
	now       func() time.Time
	ttl       time.Duration
}

func NewPasswordResetService(users UserStore, passwords PasswordUpdater, hasher PasswordHasher, tokens TokenStore) *PasswordResetService {
	return &PasswordResetService{
		users:     users,
		passwords: passwords,
		hasher:    hasher,
		tokens:    tokens,
		events:    noopEventSink{},
		logger:    defLogger{},
		now:       time.Now,
		ttl:       DefaultPasswordResetTTL,
	}
}

func (s *PasswordResetService) WithLogger(logger Logger) *PasswordResetService {
	s.logger = normalizeLogger(logger)
	return s
}

func (s *PasswordResetService) WithEventSink(sink EventSink) *PasswordResetService {
	s.events = normalizeEventSink(sink)
	return s
}

func (s *PasswordResetService) WithClock(now func() time.Time) *PasswordResetService {
	if now != nil {
		s.now = now
	}
	return s
}

func (s *PasswordResetService) WithTTL(ttl time.Duration) *PasswordResetService {
	if ttl > 0 {
		s.ttl = ttl
	}
	return s
}

// RequestPasswordReset issues a reset token for the account behind email.
// Unknown and inactive accounts yield a nil ticket and no error so callers
// answer both cases the same way.
func (s *PasswordResetService) RequestPasswordReset(ctx context.Context, email, ipAddress, userAgent string) (*PasswordResetTicket, error) {
	select {
	case <-ctx.Done():
		return nil, errors.Wrap(ctx.Err(), errors.CategoryOperation, "context cancelled during password reset request")
	default:
	}

	email = NormalizeIdentifier(email)
	if email == "" {
		return nil, nil
	}

	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			s.logger.Debug("password reset skipped", "reason", "unknown email")
			return nil, nil
		}
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to retrieve user for password reset")
	}

	if !user.IsActive {
		s.logger.Debug("password reset skipped", "reason", "inactive user", "user_id", user.ID)
		return nil, nil
	}

	// only the latest reset token is redeemable
	if _, err := s.tokens.RevokeForUserAndType(ctx, user.ID, TokenTypePasswordReset); err != nil {
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to revoke previous reset tokens")
	}

	value, err := newOpaqueToken()
	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to generate reset token")
	}

	now := truncate(s.now())
	expiresAt := now.Add(s.ttl)
	saved, err := s.tokens.Save(ctx, NewAuthToken(user.ID, TokenTypePasswordReset, value,
		WithTokenCreatedAt(now),
		WithTokenExpiresAt(expiresAt),
		WithTokenClient(ipAddress, userAgent),
	))
	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to create password reset token")
	}

	s.logger.Info("password reset requested", "user_id", user.ID)

	publishAsync(ctx, s.events, s.logger, PasswordResetRequestedEvent{
		UserID:    user.ID,
		Email:     user.Email,
		TokenID:   saved.ID,
		Token:     value,
		ExpiresAt: expiresAt,
		Timestamp: now,
	})

	return &PasswordResetTicket{
		UserID:    user.ID.String(),
		Email:     user.Email,
		Token:     value,
		ExpiresAt: expiresAt,
	}, nil
}

// FinalizePasswordReset redeems a reset token. On success the password is
// replaced and every outstanding token of the user is revoked.
func (s *PasswordResetService) FinalizePasswordReset(ctx context.Context, token, newPassword string) error {
	select {
	case <-ctx.Done():
		return errors.Wrap(ctx.Err(), errors.CategoryOperation, "context cancelled during password reset finalization")
	default:
	}

	token = strings.TrimSpace(token)
	if token == "" {
		return ErrTokenInvalid
	}

	stored, err := s.tokens.FindByToken(ctx, token)
	if err != nil {
		if errors.Is(err, ErrTokenNotFound) {
			return ErrTokenInvalid
		}
		return errors.Wrap(err, errors.CategoryInternal, "failed to retrieve password reset token")
	}

	now := s.now()
	if stored.TokenType != TokenTypePasswordReset || !stored.IsValidAt(now) {
		return ErrTokenInvalid
	}

	if strings.TrimSpace(newPassword) == "" {
		return ErrNoEmptyString
	}
	if !s.hasher.IsPasswordStrong(newPassword) {
		return ErrWeakPassword
	}

	user, err := s.users.FindByID(ctx, stored.UserID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return ErrTokenInvalid
		}
		return errors.Wrap(err, errors.CategoryInternal, "failed to retrieve user for password reset")
	}
	if !user.IsActive {
		return ErrUserInactive
	}

	claimed, err := s.tokens.TryMarkUsed(ctx, stored.ID)
	if err != nil {
		return errors.Wrap(err, errors.CategoryInternal, "failed to claim password reset token")
	}
	if !claimed {
		return ErrTokenInvalid
	}

	hash, err := s.hasher.HashPassword(newPassword)
	if err != nil {
		return errors.Wrap(err, errors.CategoryInternal, "failed to hash password")
	}

	if err := s.passwords.UpdatePassword(ctx, user.ID, hash.Hash, hash.Salt); err != nil {
		return errors.Wrap(err, errors.CategoryInternal, "failed to update user password")
	}

	revoked, err := s.tokens.RevokeAllForUser(ctx, user.ID)
	if err != nil {
		s.logger.Warn("failed to revoke tokens after password reset", "user_id", user.ID, "error", err)
	}

	s.logger.Info("password reset completed", "user_id", user.ID, "revoked", revoked)

	publishAsync(ctx, s.events, s.logger, PasswordResetCompletedEvent{
		UserID:    user.ID,
		Revoked:   revoked,
		Timestamp: truncate(now),
	})

	return nil
}

func newOpaqueToken() (string, error) {
	buf := make([]byte, resetTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
