package auth

// ClaimsDecorator can add extension claims to an access token before it is
// signed. Registered and identity claims must be left untouched, the token
// service rejects the token otherwise.
type ClaimsDecorator interface {
	Decorate(user *User, claims *TokenClaims) error
}

// ClaimsDecoratorFunc adapts a function into a ClaimsDecorator.
type ClaimsDecoratorFunc func(user *User, claims *TokenClaims) error

func (f ClaimsDecoratorFunc) Decorate(user *User, claims *TokenClaims) error {
	if f == nil {
		return nil
	}
	return f(user, claims)
}

type noopClaimsDecorator struct{}

func (noopClaimsDecorator) Decorate(*User, *TokenClaims) error {
	return nil
}

func normalizeClaimsDecorator(d ClaimsDecorator) ClaimsDecorator {
	if d == nil {
		return noopClaimsDecorator{}
	}
	return d
}
