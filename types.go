package auth

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Logger is the logging contract used across the package. Args are
// alternating key/value pairs.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Config holds auth options
type Config interface {
	GetSigningKey() string
	GetIssuer() string
	GetAccessTokenTTL() time.Duration
	GetRefreshTokenTTL() time.Duration
	GetRememberMeTokenTTL() time.Duration
	GetBcryptCost() int
	GetUsedTokenRetention() time.Duration
}

// UserStore gives access to the externally owned user records. Finders
// return ErrUserNotFound on a miss.
type UserStore interface {
	FindByUsername(ctx context.Context, username string) (*User, error)
	FindByEmail(ctx context.Context, email string) (*User, error)
	FindByID(ctx context.Context, id uuid.UUID) (*User, error)
	UpdateLastLogin(ctx context.Context, id uuid.UUID, at time.Time) error
	Create(ctx context.Context, user *User) (*User, error)
	ExistsByUsername(ctx context.Context, username string) (bool, error)
	ExistsByEmail(ctx context.Context, email string) (bool, error)
}

// PasswordHash is the output of PasswordHasher.HashPassword
type PasswordHash struct {
	Hash string
	Salt string
}

// PasswordHasher hashes and verifies salted passwords
type PasswordHasher interface {
	HashPassword(plain string) (PasswordHash, error)
	VerifyPassword(plain, hash, salt string) bool
	IsPasswordStrong(plain string) bool
}

// TokenCodec signs and verifies JWTs
type TokenCodec interface {
	GenerateAccessToken(user *User, expiresAt time.Time) (string, error)
	GenerateRefreshToken(user *User, expiresAt time.Time) (string, error)
	Validate(token string) (*TokenClaims, error)
	// ExtractUserID reads the subject without verifying the signature
	ExtractUserID(token string) (string, bool)
	TokenExpiration(token string) (time.Time, bool)
}

// TokenStore persists AuthTokens. TryMarkUsed must be atomic: it returns true
// only for the single caller that moved the token from unused to used.
type TokenStore interface {
	Save(ctx context.Context, token AuthToken) (AuthToken, error)
	FindByToken(ctx context.Context, token string) (*AuthToken, error)
	TryMarkUsed(ctx context.Context, id uuid.UUID) (bool, error)
	MarkRevoked(ctx context.Context, id uuid.UUID) error
	RevokeAllForUser(ctx context.Context, userID uuid.UUID) (int64, error)
	RevokeForUserAndType(ctx context.Context, userID uuid.UUID, tokenType TokenType) (int64, error)
	FindAllForUser(ctx context.Context, userID uuid.UUID) ([]AuthToken, error)
	FindValidForUserAndType(ctx context.Context, userID uuid.UUID, tokenType TokenType) ([]AuthToken, error)
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
	DeleteUsedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// PasswordUpdater replaces stored credentials
type PasswordUpdater interface {
	UpdatePassword(ctx context.Context, id uuid.UUID, hash, salt string) error
}

// PermissionSource resolves the current permissions of a user
type PermissionSource interface {
	GetUserPermissions(ctx context.Context, userID uuid.UUID) ([]string, error)
}
