package auth

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

const (
	DefaultAccessTokenTTL     = 15 * time.Minute
	DefaultRefreshTokenTTL    = 7 * 24 * time.Hour
	DefaultRememberMeTokenTTL = 30 * 24 * time.Hour

	decoyPassword = "linklift-decoy-Passw0rd!"
)

// LoginRequest holds the input of Authenticate
type LoginRequest struct {
	Identifier string
	Password   string
	IPAddress  string
	UserAgent  string
	RememberMe bool
}

// RefreshRequest holds the input of RefreshToken
type RefreshRequest struct {
	RefreshToken string
	IPAddress    string
	UserAgent    string
}

// AuthenticationResult is returned by a successful login or refresh. Expiry
// durations are in seconds.
type AuthenticationResult struct {
	UserID                uuid.UUID `json:"user_id"`
	Username              string    `json:"username"`
	Email                 string    `json:"email"`
	FirstName             string    `json:"first_name,omitempty"`
	LastName              string    `json:"last_name,omitempty"`
	AccessToken           string    `json:"access_token"`
	RefreshToken          string    `json:"refresh_token"`
	AccessTokenExpiresIn  int64     `json:"access_token_expires_in"`
	RefreshTokenExpiresIn int64     `json:"refresh_token_expires_in"`
}

// AuthenticationService turns credentials into token pairs and rotates
// refresh tokens. It is the only component that issues tokens.
type AuthenticationService struct {
	users         UserStore
	hasher        PasswordHasher
	codec         TokenCodec
	tokens        TokenStore
	events        EventSink
	logger        Logger
	metrics       *Metrics
	now           func() time.Time
	accessTTL     time.Duration
	refreshTTL    time.Duration
	rememberMeTTL time.Duration

	decoyOnce sync.Once
	decoy     PasswordHash
}

// NewAuthenticationService returns a service using the default token lifetimes
func NewAuthenticationService(users UserStore, hasher PasswordHasher, codec TokenCodec, tokens TokenStore) *AuthenticationService {
	return &AuthenticationService{
		users:         users,
		hasher:        hasher,
		codec:         codec,
		tokens:        tokens,
		events:        noopEventSink{},
		logger:        defLogger{},
		now:           time.Now,
		accessTTL:     DefaultAccessTokenTTL,
		refreshTTL:    DefaultRefreshTokenTTL,
		rememberMeTTL: DefaultRememberMeTokenTTL,
	}
}

func (s *AuthenticationService) WithLogger(logger Logger) *AuthenticationService {
	s.logger = normalizeLogger(logger)
	return s
}

// WithEventSink configures where domain events are published
func (s *AuthenticationService) WithEventSink(sink EventSink) *AuthenticationService {
	s.events = normalizeEventSink(sink)
	return s
}

func (s *AuthenticationService) WithMetrics(m *Metrics) *AuthenticationService {
	s.metrics = m
	return s
}

func (s *AuthenticationService) WithClock(now func() time.Time) *AuthenticationService {
	if now != nil {
		s.now = now
	}
	return s
}

// WithTokenTTLs overrides token lifetimes, zero values keep the current setting
func (s *AuthenticationService) WithTokenTTLs(access, refresh, rememberMe time.Duration) *AuthenticationService {
	if access > 0 {
		s.accessTTL = access
	}
	if refresh > 0 {
		s.refreshTTL = refresh
	}
	if rememberMe > 0 {
		s.rememberMeTTL = rememberMe
	}
	return s
}

// WithConfig applies the token lifetimes from cfg
func (s *AuthenticationService) WithConfig(cfg Config) *AuthenticationService {
	if cfg == nil {
		return s
	}
	return s.WithTokenTTLs(cfg.GetAccessTokenTTL(), cfg.GetRefreshTokenTTL(), cfg.GetRememberMeTokenTTL())
}

// Authenticate verifies credentials and issues a token pair. Unknown users
// and wrong passwords both fail with ErrInvalidCredentials.
func (s *AuthenticationService) Authenticate(ctx context.Context, req LoginRequest) (result *AuthenticationResult, err error) {
	defer func() { s.metrics.RecordLogin(outcomeFor(err)) }()

	identifier := NormalizeIdentifier(req.Identifier)
	if identifier == "" || req.Password == "" {
		return nil, ErrInvalidCredentials
	}

	user, err := s.findForLogin(ctx, identifier)
	if err != nil && !errors.Is(err, ErrUserNotFound) {
		s.logger.Error("login user lookup failed", "error", err)
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to load user")
	}
	if err != nil || user == nil {
		s.verifyDecoy(req.Password)
		s.logger.Debug("login rejected", "reason", "unknown identifier")
		return nil, ErrInvalidCredentials
	}

	if !s.hasher.VerifyPassword(req.Password, user.PasswordHash, user.Salt) {
		s.logger.Debug("login rejected", "reason", "password mismatch", "user_id", user.ID)
		return nil, ErrInvalidCredentials
	}

	if !user.IsActive {
		s.logger.Info("login rejected for inactive user", "user_id", user.ID)
		return nil, ErrUserInactive
	}

	now := truncate(s.now())
	if err := s.users.UpdateLastLogin(ctx, user.ID, now); err != nil {
		s.logger.Error("login failed to record last login", "user_id", user.ID, "error", err)
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to update last login")
	}
	updated := user.WithLastLogin(now)

	result, err = s.issueTokens(ctx, &updated, now, req.RememberMe, req.IPAddress, req.UserAgent)
	if err != nil {
		return nil, err
	}

	s.logger.Info("user authenticated", "user_id", user.ID, "remember_me", req.RememberMe)
	publishAsync(ctx, s.events, s.logger, UserAuthenticatedEvent{
		UserID:    user.ID,
		Username:  user.Username,
		IPAddress: req.IPAddress,
		UserAgent: req.UserAgent,
		Timestamp: now,
	})

	return result, nil
}

// RefreshToken exchanges a refresh token for a new pair. The presented token
// is consumed, so a second exchange with the same value fails with
// ErrTokenInvalid. Rotated tokens always get the default refresh lifetime.
func (s *AuthenticationService) RefreshToken(ctx context.Context, req RefreshRequest) (result *AuthenticationResult, err error) {
	defer func() { s.metrics.RecordRefresh(outcomeFor(err)) }()

	if strings.TrimSpace(req.RefreshToken) == "" {
		return nil, ErrTokenInvalid
	}

	claims, err := s.codec.Validate(req.RefreshToken)
	if err != nil || claims == nil {
		s.logger.Debug("refresh rejected", "reason", "jwt validation", "error", err)
		return nil, ErrTokenInvalid
	}

	stored, err := s.tokens.FindByToken(ctx, req.RefreshToken)
	if err != nil {
		if errors.Is(err, ErrTokenNotFound) {
			s.logger.Debug("refresh rejected", "reason", "unknown token")
			return nil, ErrTokenInvalid
		}
		s.logger.Error("refresh token lookup failed", "error", err)
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to load refresh token")
	}

	if stored == nil || stored.TokenType != TokenTypeRefresh || !stored.IsValidAt(s.now()) {
		s.logger.Debug("refresh rejected", "reason", "token not usable")
		return nil, ErrTokenInvalid
	}

	if claims.UserID() != stored.UserID.String() {
		s.logger.Warn("refresh rejected, subject does not match stored owner", "token_id", stored.ID)
		return nil, ErrTokenInvalid
	}

	user, err := s.users.FindByID(ctx, stored.UserID)
	if err != nil && !errors.Is(err, ErrUserNotFound) {
		s.logger.Error("refresh user lookup failed", "user_id", stored.UserID, "error", err)
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to load user")
	}
	if err != nil || user == nil {
		s.logger.Debug("refresh rejected", "reason", "unknown user", "user_id", stored.UserID)
		return nil, ErrTokenInvalid
	}

	if !user.IsActive {
		return nil, ErrUserInactive
	}

	claimed, err := s.tokens.TryMarkUsed(ctx, stored.ID)
	if err != nil {
		s.logger.Error("refresh failed to consume token", "token_id", stored.ID, "error", err)
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to consume refresh token")
	}
	if !claimed {
		s.logger.Warn("refresh token already consumed", "token_id", stored.ID, "user_id", user.ID)
		return nil, ErrTokenInvalid
	}

	now := truncate(s.now())
	result, err = s.issueTokens(ctx, user, now, false, req.IPAddress, req.UserAgent)
	if err != nil {
		return nil, err
	}

	publishAsync(ctx, s.events, s.logger, TokenRefreshedEvent{
		UserID:    user.ID,
		Username:  user.Username,
		TokenID:   stored.ID,
		IPAddress: req.IPAddress,
		UserAgent: req.UserAgent,
		Timestamp: now,
	})

	return result, nil
}

// Logout revokes a refresh token. Unknown, used or already revoked tokens
// are ignored.
func (s *AuthenticationService) Logout(ctx context.Context, refreshToken string) error {
	if strings.TrimSpace(refreshToken) == "" {
		return nil
	}

	stored, err := s.tokens.FindByToken(ctx, refreshToken)
	if err != nil {
		if errors.Is(err, ErrTokenNotFound) {
			return nil
		}
		return errors.Wrap(err, errors.CategoryInternal, "failed to load refresh token")
	}

	if stored == nil || !stored.IsValidAt(s.now()) {
		return nil
	}

	if err := s.tokens.MarkRevoked(ctx, stored.ID); err != nil {
		return errors.Wrap(err, errors.CategoryInternal, "failed to revoke refresh token")
	}

	s.logger.Info("user logged out", "user_id", stored.UserID, "token_id", stored.ID)
	publishAsync(ctx, s.events, s.logger, UserLoggedOutEvent{
		UserID:    stored.UserID,
		TokenID:   stored.ID,
		Timestamp: truncate(s.now()),
	})

	return nil
}

// RevokeAllTokens revokes every persisted token of the user and returns how
// many were affected. Access tokens already issued stay valid until they expire.
func (s *AuthenticationService) RevokeAllTokens(ctx context.Context, userID uuid.UUID) (int64, error) {
	if userID == uuid.Nil {
		return 0, errors.New("user id is required", errors.CategoryBadInput).
			WithCode(errors.CodeBadRequest)
	}

	count, err := s.tokens.RevokeAllForUser(ctx, userID)
	if err != nil {
		return 0, errors.Wrap(err, errors.CategoryInternal, "failed to revoke tokens")
	}

	s.logger.Info("revoked user tokens", "user_id", userID, "count", count)
	publishAsync(ctx, s.events, s.logger, TokensRevokedEvent{
		UserID:    userID,
		Count:     count,
		Timestamp: truncate(s.now()),
	})

	return count, nil
}

// verifyDecoy runs one password comparison against a throwaway hash so a
// login for an unknown identifier costs as much as a wrong password.
func (s *AuthenticationService) verifyDecoy(password string) {
	s.decoyOnce.Do(func() {
		decoy, err := s.hasher.HashPassword(decoyPassword)
		if err != nil {
			s.logger.Warn("failed to prepare decoy password hash", "error", err)
			return
		}
		s.decoy = decoy
	})
	_ = s.hasher.VerifyPassword(password, s.decoy.Hash, s.decoy.Salt)
}

func (s *AuthenticationService) findForLogin(ctx context.Context, identifier string) (*User, error) {
	if IsEmailIdentifier(identifier) {
		return s.users.FindByEmail(ctx, identifier)
	}
	return s.users.FindByUsername(ctx, identifier)
}

func (s *AuthenticationService) issueTokens(ctx context.Context, user *User, now time.Time, rememberMe bool, ipAddress, userAgent string) (*AuthenticationResult, error) {
	refreshTTL := s.refreshTTL
	if rememberMe {
		refreshTTL = s.rememberMeTTL
	}

	accessExpiry := now.Add(s.accessTTL)
	refreshExpiry := now.Add(refreshTTL)

	accessToken, err := s.codec.GenerateAccessToken(user, accessExpiry)
	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to generate access token")
	}

	refreshToken, err := s.codec.GenerateRefreshToken(user, refreshExpiry)
	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to generate refresh token")
	}

	stored := NewAuthToken(user.ID, TokenTypeRefresh, refreshToken,
		WithTokenCreatedAt(now),
		WithTokenExpiresAt(refreshExpiry),
		WithTokenClient(ipAddress, userAgent),
	)

	if _, err := s.tokens.Save(ctx, stored); err != nil {
		s.logger.Error("failed to persist refresh token", "user_id", user.ID, "error", err)
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to persist refresh token")
	}

	return &AuthenticationResult{
		UserID:                user.ID,
		Username:              user.Username,
		Email:                 user.Email,
		FirstName:             user.FirstName,
		LastName:              user.LastName,
		AccessToken:           accessToken,
		RefreshToken:          refreshToken,
		AccessTokenExpiresIn:  int64(s.accessTTL / time.Second),
		RefreshTokenExpiresIn: int64(refreshTTL / time.Second),
	}, nil
}

// NormalizeIdentifier trims and lower-cases a login identifier
func NormalizeIdentifier(identifier string) string {
	return strings.ToLower(strings.TrimSpace(identifier))
}

// IsEmailIdentifier reports whether a login identifier should be treated as an email
func IsEmailIdentifier(identifier string) bool {
	return strings.Contains(identifier, "@")
}
