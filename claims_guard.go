package auth

import (
	"fmt"
	"slices"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

type immutableClaimsSnapshot struct {
	subject   string
	issuer    string
	tokenID   string
	tokenType string
	username  string
	email     string
	audience  []string
	issuedAt  *time.Time
	expiresAt *time.Time
}

func captureImmutableClaims(claims *TokenClaims) immutableClaimsSnapshot {
	return immutableClaimsSnapshot{
		subject:   claims.Subject,
		issuer:    claims.Issuer,
		tokenID:   claims.ID,
		tokenType: claims.TokenType,
		username:  claims.Username,
		email:     claims.Email,
		audience:  slices.Clone([]string(claims.Audience)),
		issuedAt:  numericDate(claims.RegisteredClaims.IssuedAt),
		expiresAt: numericDate(claims.RegisteredClaims.ExpiresAt),
	}
}

func (snap immutableClaimsSnapshot) validate(claims *TokenClaims) error {
	switch {
	case claims.Subject != snap.subject:
		return immutableClaimViolation("sub")
	case claims.Issuer != snap.issuer:
		return immutableClaimViolation("iss")
	case claims.ID != snap.tokenID:
		return immutableClaimViolation("jti")
	case claims.TokenType != snap.tokenType:
		return immutableClaimViolation("token_type")
	case claims.Username != snap.username:
		return immutableClaimViolation("username")
	case claims.Email != snap.email:
		return immutableClaimViolation("email")
	case !slices.Equal([]string(claims.Audience), snap.audience):
		return immutableClaimViolation("aud")
	case !sameDate(numericDate(claims.RegisteredClaims.IssuedAt), snap.issuedAt):
		return immutableClaimViolation("iat")
	case !sameDate(numericDate(claims.RegisteredClaims.ExpiresAt), snap.expiresAt):
		return immutableClaimViolation("exp")
	}
	return nil
}

func numericDate(date *jwt.NumericDate) *time.Time {
	if date == nil {
		return nil
	}
	t := date.Time
	return &t
}

func sameDate(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}

func immutableClaimViolation(field string) error {
	clone := ErrImmutableClaimMutation.Clone()
	if clone == nil {
		return ErrImmutableClaimMutation
	}
	clone.Message = fmt.Sprintf("immutable claim mutated: %s", field)
	clone.Source = ErrImmutableClaimMutation
	return clone.WithMetadata(map[string]any{"claim": field})
}
