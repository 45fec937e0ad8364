package auth

import (
	"context"
	"strings"
	"time"

	"github.com/goliatone/go-errors"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// TokenType identifies what a persisted AuthToken is used for
type TokenType string

const (
	TokenTypeSession           TokenType = "SESSION"
	TokenTypeRefresh           TokenType = "REFRESH"
	TokenTypePasswordReset     TokenType = "PASSWORD_RESET"
	TokenTypeEmailVerification TokenType = "EMAIL_VERIFICATION"
)

// ParseTokenType parses a token type ignoring case
func ParseTokenType(value string) (TokenType, error) {
	switch TokenType(strings.ToUpper(strings.TrimSpace(value))) {
	case TokenTypeSession:
		return TokenTypeSession, nil
	case TokenTypeRefresh:
		return TokenTypeRefresh, nil
	case TokenTypePasswordReset:
		return TokenTypePasswordReset, nil
	case TokenTypeEmailVerification:
		return TokenTypeEmailVerification, nil
	default:
		return "", errors.New("unknown token type", errors.CategoryBadInput).
			WithMetadata(map[string]any{"token_type": value})
	}
}

func (t TokenType) String() string {
	return string(t)
}

// truncate normalizes timestamps to whole seconds in UTC so values survive a
// storage round trip unchanged.
func truncate(t time.Time) time.Time {
	return t.UTC().Truncate(time.Second)
}

func truncatePtr(t *time.Time) *time.Time {
	if t == nil || t.IsZero() {
		return nil
	}
	v := truncate(*t)
	return &v
}

// User is the user model. Only the credential fields, the active flag and
// LastLoginAt are touched by the authentication flows.
type User struct {
	bun.BaseModel `bun:"table:users,alias:usr"`
	ID            uuid.UUID  `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	Username      string     `bun:"username,notnull,unique" json:"username,omitempty"`
	Email         string     `bun:"email,notnull,unique" json:"email,omitempty"`
	PasswordHash  string     `bun:"password_hash" json:"-"`
	Salt          string     `bun:"salt" json:"-"`
	FirstName     string     `bun:"first_name" json:"first_name,omitempty"`
	LastName      string     `bun:"last_name" json:"last_name,omitempty"`
	IsActive      bool       `bun:"is_active,notnull" json:"is_active"`
	LastLoginAt   *time.Time `bun:"last_login_at,nullzero" json:"last_login_at,omitempty"`
	CreatedAt     time.Time  `bun:"created_at,notnull" json:"created_at"`
	UpdatedAt     *time.Time `bun:"updated_at,nullzero" json:"updated_at,omitempty"`
}

var _ bun.AfterScanRowHook = (*User)(nil)

// AfterScanRow normalizes timestamps loaded from storage
func (u *User) AfterScanRow(context.Context) error {
	u.normalize()
	return nil
}

func (u *User) normalize() {
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now()
	}
	u.CreatedAt = truncate(u.CreatedAt)
	u.UpdatedAt = truncatePtr(u.UpdatedAt)
	u.LastLoginAt = truncatePtr(u.LastLoginAt)
}

// WithLastLogin returns a copy of the user with LastLoginAt set to at
func (u User) WithLastLogin(at time.Time) User {
	now := truncate(time.Now())
	last := truncate(at)
	u.LastLoginAt = &last
	u.UpdatedAt = &now
	return u
}

// WithActiveStatus returns a copy of the user with the active flag set
func (u User) WithActiveStatus(active bool) User {
	now := truncate(time.Now())
	u.IsActive = active
	u.UpdatedAt = &now
	return u
}

// WithPassword returns a copy of the user with new credentials
func (u User) WithPassword(hash, salt string) User {
	now := truncate(time.Now())
	u.PasswordHash = hash
	u.Salt = salt
	u.UpdatedAt = &now
	return u
}

// ToPublic strips the credential fields
func (u User) ToPublic() User {
	u.PasswordHash = ""
	u.Salt = ""
	return u
}

// FullName combines first and last name, falling back to the username
func (u User) FullName() string {
	first := strings.TrimSpace(u.FirstName)
	last := strings.TrimSpace(u.LastName)
	switch {
	case first == "" && last == "":
		return u.Username
	case first == "":
		return last
	case last == "":
		return first
	default:
		return first + " " + last
	}
}

// AuthToken is a persisted token. Values are immutable: the Mark* methods
// return new instances.
type AuthToken struct {
	bun.BaseModel `bun:"table:auth_tokens,alias:atk"`
	ID            uuid.UUID  `bun:"id,pk,type:uuid" json:"id"`
	Token         string     `bun:"token,notnull,unique" json:"-"`
	TokenType     TokenType  `bun:"token_type,notnull" json:"token_type"`
	UserID        uuid.UUID  `bun:"user_id,notnull,type:uuid" json:"user_id"`
	CreatedAt     time.Time  `bun:"created_at,notnull" json:"created_at"`
	ExpiresAt     *time.Time `bun:"expires_at,nullzero" json:"expires_at,omitempty"`
	UsedAt        *time.Time `bun:"used_at,nullzero" json:"used_at,omitempty"`
	IsRevoked     bool       `bun:"is_revoked,notnull" json:"is_revoked"`
	IPAddress     string     `bun:"ip_address" json:"ip_address,omitempty"`
	UserAgent     string     `bun:"user_agent" json:"user_agent,omitempty"`
}

var _ bun.AfterScanRowHook = (*AuthToken)(nil)

// AuthTokenOption customizes NewAuthToken
type AuthTokenOption func(*AuthToken)

// WithTokenID sets the token id, a random UUID is used otherwise
func WithTokenID(id uuid.UUID) AuthTokenOption {
	return func(t *AuthToken) {
		t.ID = id
	}
}

// WithTokenCreatedAt overrides the creation time
func WithTokenCreatedAt(at time.Time) AuthTokenOption {
	return func(t *AuthToken) {
		t.CreatedAt = at
	}
}

// WithTokenExpiresAt sets the expiration time
func WithTokenExpiresAt(at time.Time) AuthTokenOption {
	return func(t *AuthToken) {
		t.ExpiresAt = &at
	}
}

// WithTokenUsedAt sets the consumption time
func WithTokenUsedAt(at time.Time) AuthTokenOption {
	return func(t *AuthToken) {
		t.UsedAt = &at
	}
}

// WithTokenRevoked marks the token as revoked
func WithTokenRevoked(revoked bool) AuthTokenOption {
	return func(t *AuthToken) {
		t.IsRevoked = revoked
	}
}

// WithTokenClient records audit metadata about the requesting client
func WithTokenClient(ipAddress, userAgent string) AuthTokenOption {
	return func(t *AuthToken) {
		t.IPAddress = ipAddress
		t.UserAgent = userAgent
	}
}

// NewAuthToken builds a token with all timestamps truncated to whole seconds
func NewAuthToken(userID uuid.UUID, tokenType TokenType, token string, opts ...AuthTokenOption) AuthToken {
	t := AuthToken{
		Token:     token,
		TokenType: tokenType,
		UserID:    userID,
	}

	for _, opt := range opts {
		if opt != nil {
			opt(&t)
		}
	}

	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}

	t.normalize()
	return t
}

// AfterScanRow normalizes timestamps loaded from storage
func (t *AuthToken) AfterScanRow(context.Context) error {
	t.normalize()
	return nil
}

func (t *AuthToken) normalize() {
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now()
	}
	t.CreatedAt = truncate(t.CreatedAt)
	t.ExpiresAt = truncatePtr(t.ExpiresAt)
	t.UsedAt = truncatePtr(t.UsedAt)
}

// IsValid reports whether the token is unrevoked, unused and not expired
func (t AuthToken) IsValid() bool {
	return t.IsValidAt(time.Now())
}

// IsValidAt is IsValid evaluated at the given instant
func (t AuthToken) IsValidAt(now time.Time) bool {
	if t.IsRevoked || t.UsedAt != nil {
		return false
	}
	return t.ExpiresAt == nil || now.Before(*t.ExpiresAt)
}

// IsExpired reports whether the token has an expiry in the past. A revoked or
// used token that has not expired is neither valid nor expired.
func (t AuthToken) IsExpired() bool {
	return t.IsExpiredAt(time.Now())
}

// IsExpiredAt is IsExpired evaluated at the given instant
func (t AuthToken) IsExpiredAt(now time.Time) bool {
	return t.ExpiresAt != nil && now.After(*t.ExpiresAt)
}

// MarkAsUsed returns a copy consumed now
func (t AuthToken) MarkAsUsed() AuthToken {
	used := truncate(time.Now())
	t.UsedAt = &used
	return t
}

// MarkAsRevoked returns a revoked copy
func (t AuthToken) MarkAsRevoked() AuthToken {
	t.IsRevoked = true
	return t
}

// SecondsUntilExpiration returns nil for tokens without expiry and zero once expired
func (t AuthToken) SecondsUntilExpiration() *int64 {
	if t.ExpiresAt == nil {
		return nil
	}
	remaining := int64(time.Until(*t.ExpiresAt) / time.Second)
	if remaining < 0 {
		remaining = 0
	}
	return &remaining
}
