package auth

import (
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/goliatone/go-errors"
)

// DefaultIssuer is the iss claim used when none is configured
const DefaultIssuer = "linklift"

// TokenService is the HS256 TokenCodec
type TokenService struct {
	signingKey []byte
	issuer     string
	audience   jwt.ClaimStrings
	logger     Logger
	decorator  ClaimsDecorator
	now        func() time.Time
}

var _ TokenCodec = (*TokenService)(nil)

// NewTokenService creates a new TokenService instance
func NewTokenService(signingKey []byte, issuer string, audience jwt.ClaimStrings, logger Logger) *TokenService {
	if issuer == "" {
		issuer = DefaultIssuer
	}
	return &TokenService{
		signingKey: signingKey,
		issuer:     issuer,
		audience:   audience,
		logger:     normalizeLogger(logger),
		decorator:  noopClaimsDecorator{},
		now:        time.Now,
	}
}

// NewTokenServiceFromConfig builds a TokenService from Config
func NewTokenServiceFromConfig(cfg Config, logger Logger) *TokenService {
	return NewTokenService([]byte(cfg.GetSigningKey()), cfg.GetIssuer(), nil, logger)
}

// WithClock overrides the issued-at clock
func (ts *TokenService) WithClock(now func() time.Time) *TokenService {
	if now != nil {
		ts.now = now
	}
	return ts
}

// WithClaimsDecorator installs a decorator run on every access token
func (ts *TokenService) WithClaimsDecorator(decorator ClaimsDecorator) *TokenService {
	ts.decorator = normalizeClaimsDecorator(decorator)
	return ts
}

// GenerateAccessToken mints a stateless access token
func (ts *TokenService) GenerateAccessToken(user *User, expiresAt time.Time) (string, error) {
	if user == nil {
		return "", errors.New("user must not be nil", errors.CategoryInternal)
	}

	claims := ts.baseClaims(user, expiresAt)
	claims.Email = user.Email
	claims.FirstName = user.FirstName
	claims.LastName = user.LastName
	claims.TokenType = ClaimTokenTypeAccess

	snapshot := captureImmutableClaims(claims)
	if err := ts.decorator.Decorate(user, claims); err != nil {
		ts.logger.Error("claims decorator failed", "user_id", user.ID, "error", err)
		return "", err
	}
	if err := snapshot.validate(claims); err != nil {
		ts.logger.Error("claims decorator mutated immutable claims", "user_id", user.ID, "error", err)
		return "", err
	}

	return ts.SignClaims(claims)
}

// GenerateRefreshToken mints a refresh token. It carries no email or profile claims.
func (ts *TokenService) GenerateRefreshToken(user *User, expiresAt time.Time) (string, error) {
	if user == nil {
		return "", errors.New("user must not be nil", errors.CategoryInternal)
	}

	claims := ts.baseClaims(user, expiresAt)
	claims.TokenType = ClaimTokenTypeRefresh

	return ts.SignClaims(claims)
}

func (ts *TokenService) baseClaims(user *User, expiresAt time.Time) *TokenClaims {
	claims := &TokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    ts.issuer,
			Subject:   user.ID.String(),
			Audience:  ts.audience,
			IssuedAt:  jwt.NewNumericDate(ts.now()),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		Username: user.Username,
	}

	ensureTokenID(&claims.RegisteredClaims)
	return claims
}

// SignClaims signs arbitrary claims using the configured signing key.
func (ts *TokenService) SignClaims(claims *TokenClaims) (string, error) {
	if claims == nil {
		return "", errors.New("claims must not be nil", errors.CategoryInternal)
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	signedString, err := token.SignedString(ts.signingKey)
	if err != nil {
		return "", errors.Wrap(err, errors.CategoryInternal, "failed to sign JWT")
	}

	return signedString, nil
}

// Validate checks signature, issuer and expiry and returns the claims
func (ts *TokenService) Validate(tokenString string) (*TokenClaims, error) {
	if strings.TrimSpace(tokenString) == "" {
		return nil, ErrTokenMalformed
	}

	parserOptions := []jwt.ParserOption{
		jwt.WithIssuer(ts.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(ts.now),
	}
	if len(ts.audience) > 0 {
		parserOptions = append(parserOptions, jwt.WithAudience(ts.audience...))
	}

	token, err := jwt.ParseWithClaims(tokenString, &TokenClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			ts.logger.Warn("token service rejected unexpected signing method", "alg", t.Header["alg"])
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return ts.signingKey, nil
	}, parserOptions...)

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		ts.logger.Debug("token service validation failed", "error", err)
		return nil, ErrTokenMalformed
	}

	claims, ok := token.Claims.(*TokenClaims)
	if !ok || !token.Valid || claims.Subject == "" {
		return nil, ErrTokenMalformed
	}

	return claims, nil
}

// ExtractUserID returns the subject without verifying the token. The result
// must never be used for an authorization decision.
func (ts *TokenService) ExtractUserID(tokenString string) (string, bool) {
	claims, ok := ts.decodeUnverified(tokenString)
	if !ok || claims.Subject == "" {
		return "", false
	}
	return claims.Subject, true
}

// TokenExpiration returns the exp claim without verifying the token
func (ts *TokenService) TokenExpiration(tokenString string) (time.Time, bool) {
	claims, ok := ts.decodeUnverified(tokenString)
	if !ok || claims.ExpiresAt == nil {
		return time.Time{}, false
	}
	return claims.ExpiresAt.Time, true
}

func (ts *TokenService) decodeUnverified(tokenString string) (*TokenClaims, bool) {
	if strings.TrimSpace(tokenString) == "" {
		return nil, false
	}

	claims := &TokenClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(tokenString, claims); err != nil {
		return nil, false
	}
	return claims, true
}
