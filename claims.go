package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Values of the token_type claim
const (
	ClaimTokenTypeAccess  = "access"
	ClaimTokenTypeRefresh = "refresh"
)

// TokenClaims are the claims carried by access and refresh JWTs
type TokenClaims struct {
	jwt.RegisteredClaims
	Username  string `json:"username,omitempty"`
	Email     string `json:"email,omitempty"`
	FirstName string `json:"firstName,omitempty"`
	LastName  string `json:"lastName,omitempty"`
	TokenType string `json:"token_type,omitempty"`
	// Metadata holds extension claims set by a ClaimsDecorator
	Metadata map[string]any `json:"metadata,omitempty"`
}

// UserID returns the subject claim
func (c *TokenClaims) UserID() string {
	return c.Subject
}

// UserUUID parses the subject claim
func (c *TokenClaims) UserUUID() (uuid.UUID, error) {
	return uuid.Parse(c.Subject)
}

// IsAccess reports whether the token was minted as an access token
func (c *TokenClaims) IsAccess() bool {
	return c.TokenType == ClaimTokenTypeAccess
}

// IsRefresh reports whether the token was minted as a refresh token
func (c *TokenClaims) IsRefresh() bool {
	return c.TokenType == ClaimTokenTypeRefresh
}

// Expires returns the expiration time
func (c *TokenClaims) Expires() time.Time {
	if c.RegisteredClaims.ExpiresAt != nil {
		return c.RegisteredClaims.ExpiresAt.Time
	}
	return time.Time{}
}

// IssuedAt returns the issued at time
func (c *TokenClaims) IssuedAt() time.Time {
	if c.RegisteredClaims.IssuedAt != nil {
		return c.RegisteredClaims.IssuedAt.Time
	}
	return time.Time{}
}

func ensureTokenID(claims *jwt.RegisteredClaims) {
	if claims.ID == "" {
		claims.ID = uuid.NewString()
	}
}
