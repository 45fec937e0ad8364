package auth

import (
	"strings"

	"github.com/goliatone/go-errors"
)

const (
	TextCodeInvalidCreds            = "INVALID_CREDENTIALS"
	TextCodeUserInactive            = "USER_INACTIVE"
	TextCodeTokenInvalid            = "TOKEN_INVALID"
	TextCodeUnauthorized            = "UNAUTHORIZED_ACCESS"
	TextCodeInsufficientPermissions = "INSUFFICIENT_PERMISSIONS"
	TextCodeUserNotFound            = "USER_NOT_FOUND"
	TextCodeTokenNotFound           = "TOKEN_NOT_FOUND"
	TextCodeTokenExpired            = "TOKEN_EXPIRED"
	TextCodeTokenMalformed          = "TOKEN_MALFORMED"
	TextCodeUserAlreadyExists       = "USER_ALREADY_EXISTS"
	TextCodeWeakPassword            = "WEAK_PASSWORD"
	TextCodeEmptyPassword           = "EMPTY_PASSWORD"
	TextCodeValidation              = "VALIDATION_ERROR"
)

// ErrInvalidCredentials is returned for both unknown identifiers and wrong
// passwords, callers must not be able to tell them apart.
var ErrInvalidCredentials = errors.New("invalid username or password", errors.CategoryAuth).
	WithTextCode(TextCodeInvalidCreds).
	WithCode(errors.CodeUnauthorized)

// ErrUserInactive is returned when the credentials are valid but the account is deactivated.
var ErrUserInactive = errors.New("user account is inactive", errors.CategoryAuth).
	WithTextCode(TextCodeUserInactive).
	WithCode(errors.CodeForbidden)

// ErrTokenInvalid covers every refresh failure: bad signature, expired, unknown,
// used, revoked or wrong type.
var ErrTokenInvalid = errors.New("invalid authentication token", errors.CategoryAuth).
	WithTextCode(TextCodeTokenInvalid).
	WithCode(errors.CodeUnauthorized)

// ErrUnauthorized is returned by guards invoked on an anonymous context.
var ErrUnauthorized = errors.New("unauthorized access", errors.CategoryAuth).
	WithTextCode(TextCodeUnauthorized).
	WithCode(errors.CodeUnauthorized)

// ErrInsufficientPermissions is returned by guards when an authenticated caller
// lacks the required permission or ownership.
var ErrInsufficientPermissions = errors.New("insufficient permissions", errors.CategoryAuthz).
	WithTextCode(TextCodeInsufficientPermissions).
	WithCode(errors.CodeForbidden)

// ErrUserNotFound is returned by user stores on a miss.
var ErrUserNotFound = errors.New("user not found", errors.CategoryNotFound).
	WithTextCode(TextCodeUserNotFound).
	WithCode(errors.CodeNotFound)

// ErrUserAlreadyExists is returned on registration when username or email is taken.
var ErrUserAlreadyExists = errors.New("user already exists", errors.CategoryConflict).
	WithTextCode(TextCodeUserAlreadyExists).
	WithCode(errors.CodeConflict)

// ErrWeakPassword is returned when a password does not meet strength requirements.
var ErrWeakPassword = errors.New("password does not meet security requirements", errors.CategoryValidation).
	WithTextCode(TextCodeWeakPassword).
	WithCode(errors.CodeBadRequest)

// ErrNoEmptyString is returned when hashing an empty password.
var ErrNoEmptyString = errors.New("password must not be empty", errors.CategoryValidation).
	WithTextCode(TextCodeEmptyPassword).
	WithCode(errors.CodeBadRequest)

// ErrTokenExpired is returned by the token codec for a well formed token past its exp claim.
var ErrTokenExpired = errors.New("token is expired", errors.CategoryAuth).
	WithTextCode(TextCodeTokenExpired).
	WithCode(errors.CodeUnauthorized)

// ErrTokenMalformed is returned by the token codec for anything it cannot verify.
var ErrTokenMalformed = errors.New("token is malformed", errors.CategoryAuth).
	WithTextCode(TextCodeTokenMalformed).
	WithCode(errors.CodeUnauthorized)

// IsTokenExpiredError will check for expired tokens
func IsTokenExpiredError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrTokenExpired) {
		return true
	}
	return strings.Contains(err.Error(), "token is expired")
}

// IsMalformedError will check for error message
func IsMalformedError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrTokenMalformed) {
		return true
	}
	return strings.Contains(err.Error(), "token is malformed") ||
		strings.Contains(err.Error(), "missing or malformed JWT")
}

// IsAuthenticationFailure reports whether err is one of the security outcomes
// produced by this package, as opposed to an infrastructure failure.
func IsAuthenticationFailure(err error) bool {
	switch {
	case errors.Is(err, ErrInvalidCredentials),
		errors.Is(err, ErrUserInactive),
		errors.Is(err, ErrTokenInvalid),
		errors.Is(err, ErrUnauthorized),
		errors.Is(err, ErrInsufficientPermissions):
		return true
	default:
		return false
	}
}

// ErrTokenNotFound is returned by token stores on a miss.
var ErrTokenNotFound = errors.New("token not found", errors.CategoryNotFound).
	WithTextCode(TextCodeTokenNotFound).
	WithCode(errors.CodeNotFound)

// ErrImmutableClaimMutation is returned when a ClaimsDecorator changed a
// registered or identity claim.
var ErrImmutableClaimMutation = errors.New("immutable claim mutated", errors.CategoryInternal).
	WithTextCode("IMMUTABLE_CLAIM_MUTATION")
