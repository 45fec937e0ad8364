// Package jwtware resolves bearer tokens on incoming go-router requests into
// an auth.SecurityContext stored in the request locals and context.
package jwtware

import (
	"context"
	"errors"
	"strings"

	"github.com/goliatone/go-router"

	auth "github.com/linklift/go-auth"
)

const (
	HeaderForwardedFor = "X-Forwarded-For"
	HeaderRealIP       = "X-Real-IP"
	HeaderUserAgent    = "User-Agent"

	DefaultContextKey = "security"
)

var (
	defaultTokenLookup       = "header:" + router.HeaderAuthorization
	ErrJWTMissingOrMalformed = errors.New("missing or malformed JWT")
)

// SecurityContextFactory builds a SecurityContext from a raw bearer token.
// auth.AuthorizationService implements it.
type SecurityContextFactory interface {
	CreateSecurityContext(ctx context.Context, bearerToken, ipAddress, userAgent string) auth.SecurityContext
}

type Config struct {
	// Filter skips the middleware when it returns true
	Filter func(router.Context) bool
	// Factory is required
	Factory SecurityContextFactory
	// ContextKey is the locals key holding the SecurityContext
	ContextKey string
	// TokenLookup is a comma separated list of sources, for example
	// "header:Authorization,cookie:jwt,query:access_token,param:token"
	TokenLookup string
	AuthScheme  string
	// TrustProxyHeaders reads the client IP from X-Forwarded-For and
	// X-Real-IP. Enable it only behind a proxy that overwrites them.
	TrustProxyHeaders bool
	ErrorHandler      router.ErrorHandler
	Logger            auth.Logger
}

// New returns middleware that attaches a SecurityContext to every request.
// It never rejects: requests without a usable token continue anonymous.
func New(config ...Config) router.MiddlewareFunc {
	cfg := GetDefaultConfig(config...)
	extractors := cfg.getExtractors()

	return func(hf router.HandlerFunc) router.HandlerFunc {
		return func(ctx router.Context) error {
			if cfg.Filter != nil && cfg.Filter(ctx) {
				return hf(ctx)
			}

			sc := auth.Anonymous()
			if raw, err := ExtractRawToken(ctx, extractors); err == nil && raw != "" {
				sc = cfg.Factory.CreateSecurityContext(
					ctx.Context(),
					raw,
					ClientIP(ctx, cfg.TrustProxyHeaders),
					ctx.GetString(HeaderUserAgent, ""),
				)
				if !sc.IsAuthenticated() {
					cfg.Logger.Debug("request continues anonymous", "path", ctx.Path())
				}
			}

			ctx.Locals(cfg.ContextKey, sc)
			ctx.SetContext(auth.WithSecurityContext(ctx.Context(), sc))

			return hf(ctx)
		}
	}
}

// SecurityContextFrom returns the SecurityContext attached by New, looking in
// the locals first and the standard context second. Missing means anonymous.
func SecurityContextFrom(ctx router.Context, contextKey ...string) auth.SecurityContext {
	key := DefaultContextKey
	if len(contextKey) > 0 && contextKey[0] != "" {
		key = contextKey[0]
	}

	if sc, ok := ctx.Locals(key).(auth.SecurityContext); ok {
		return sc
	}
	return auth.CurrentSecurityContext(ctx.Context())
}

// RequireAuthentication rejects anonymous requests with 401
func RequireAuthentication(config ...Config) router.MiddlewareFunc {
	return guard(GetErrorConfig(config...), auth.RequireAuthentication)
}

// RequirePermission rejects anonymous requests with 401 and requests
// lacking the permission with 403.
func RequirePermission(permission string, config ...Config) router.MiddlewareFunc {
	return guard(GetErrorConfig(config...), func(sc auth.SecurityContext) error {
		return auth.RequirePermission(sc, permission)
	})
}

// RequireAnyPermission is RequirePermission for a set of alternatives
func RequireAnyPermission(permissions []string, config ...Config) router.MiddlewareFunc {
	return guard(GetErrorConfig(config...), func(sc auth.SecurityContext) error {
		return auth.RequireAnyPermission(sc, permissions...)
	})
}

func guard(cfg Config, check func(auth.SecurityContext) error) router.MiddlewareFunc {
	return func(next router.HandlerFunc) router.HandlerFunc {
		return func(ctx router.Context) error {
			if cfg.Filter != nil && cfg.Filter(ctx) {
				return next(ctx)
			}
			if err := check(SecurityContextFrom(ctx, cfg.ContextKey)); err != nil {
				return cfg.ErrorHandler(ctx, err)
			}
			return next(ctx)
		}
	}
}

// GetDefaultConfig fills defaults and panics when no factory is configured
func GetDefaultConfig(config ...Config) Config {
	cfg := GetErrorConfig(config...)

	if cfg.Factory == nil {
		panic("AUTH: JWT middleware configuration: Factory is required.")
	}

	if cfg.TokenLookup == "" {
		cfg.TokenLookup = defaultTokenLookup
	}

	if cfg.AuthScheme == "" {
		cfg.AuthScheme = "Bearer"
	}

	return cfg
}

// GetErrorConfig fills the defaults needed by the guard middleware
func GetErrorConfig(config ...Config) (cfg Config) {
	if len(config) > 0 {
		cfg = config[0]
	}

	if cfg.ContextKey == "" {
		cfg.ContextKey = DefaultContextKey
	}

	if cfg.ErrorHandler == nil {
		cfg.ErrorHandler = DefaultErrorHandler
	}

	if cfg.Logger == nil {
		cfg.Logger = auth.NopLogger()
	}

	return cfg
}

// StatusFor maps guard errors to HTTP status codes
func StatusFor(err error) int {
	switch {
	case errors.Is(err, auth.ErrUnauthorized), errors.Is(err, ErrJWTMissingOrMalformed):
		return router.StatusUnauthorized
	case errors.Is(err, auth.ErrInsufficientPermissions):
		return router.StatusForbidden
	default:
		return router.StatusInternalServerError
	}
}

// DefaultErrorHandler responds with a JSON body holding the error message
// and text code.
func DefaultErrorHandler(c router.Context, err error) error {
	status := StatusFor(err)
	body := map[string]string{"error": "internal server error"}

	switch {
	case errors.Is(err, auth.ErrUnauthorized):
		body["error"] = auth.ErrUnauthorized.Message
		body["code"] = auth.ErrUnauthorized.TextCode
	case errors.Is(err, auth.ErrInsufficientPermissions):
		body["error"] = auth.ErrInsufficientPermissions.Message
		body["code"] = auth.ErrInsufficientPermissions.TextCode
	case errors.Is(err, ErrJWTMissingOrMalformed):
		body["error"] = ErrJWTMissingOrMalformed.Error()
	}

	if status == router.StatusUnauthorized {
		c.SetHeader("WWW-Authenticate", `Bearer realm="linklift"`)
	}
	return c.JSON(status, body)
}

// ClientIP returns the caller address. With trustProxy the first
// X-Forwarded-For entry wins, then X-Real-IP, then the peer address.
func ClientIP(c router.Context, trustProxy bool) string {
	if trustProxy {
		if fwd := c.GetString(HeaderForwardedFor, ""); fwd != "" {
			first, _, _ := strings.Cut(fwd, ",")
			if ip := strings.TrimSpace(first); ip != "" {
				return ip
			}
		}
		if ip := strings.TrimSpace(c.GetString(HeaderRealIP, "")); ip != "" {
			return ip
		}
	}
	return c.IP()
}

func ExtractRawToken(ctx router.Context, extractors []JWTExtractor) (string, error) {
	var raw string
	err := ErrJWTMissingOrMalformed

	for _, extractor := range extractors {
		raw, err = extractor(ctx)
		if raw != "" && err == nil {
			break
		}
	}

	return raw, err
}

func (cfg *Config) getExtractors() []JWTExtractor {
	return GetExtractors(cfg.TokenLookup, cfg.AuthScheme)
}

func GetExtractors(tokenLookup string, authSchemes ...string) []JWTExtractor {
	extractors := make([]JWTExtractor, 0)

	authScheme := "Bearer"
	if len(authSchemes) > 0 && strings.TrimSpace(authSchemes[0]) != "" {
		authScheme = strings.TrimSpace(authSchemes[0])
	}

	// header:Authorization,cookie:jwt,query:access_token,param:token
	for _, rootPart := range strings.Split(tokenLookup, ",") {
		source, name, ok := strings.Cut(strings.TrimSpace(rootPart), ":")
		if !ok {
			continue
		}
		source = strings.TrimSpace(source)
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}

		switch source {
		case "header":
			extractors = append(extractors, jwtFromHeader(name, authScheme))
		case "query":
			extractors = append(extractors, jwtFromQuery(name))
		case "param":
			extractors = append(extractors, jwtFromParam(name))
		case "cookie":
			extractors = append(extractors, jwtFromCookie(name))
		}
	}

	return extractors
}

type JWTExtractor func(c router.Context) (string, error)

// jwtFromHeader returns a function that extracts token from the request header.
func jwtFromHeader(header string, authScheme string) JWTExtractor {
	return func(c router.Context) (string, error) {
		a := c.GetString(header, "")
		l := len(authScheme)
		if len(a) > l+1 && strings.EqualFold(a[:l], authScheme) && a[l] == ' ' {
			if token := strings.TrimSpace(a[l:]); token != "" {
				return token, nil
			}
		}
		return "", ErrJWTMissingOrMalformed
	}
}

// jwtFromQuery returns a function that extracts token from the query string.
func jwtFromQuery(param string) JWTExtractor {
	return func(c router.Context) (string, error) {
		token := c.Query(param, "")
		if token == "" {
			return "", ErrJWTMissingOrMalformed
		}
		return token, nil
	}
}

// jwtFromParam returns a function that extracts token from the url param string.
func jwtFromParam(param string) JWTExtractor {
	return func(c router.Context) (string, error) {
		token := c.Param(param)
		if token == "" {
			return "", ErrJWTMissingOrMalformed
		}
		return token, nil
	}
}

// jwtFromCookie returns a function that extracts token from the named cookie.
func jwtFromCookie(name string) JWTExtractor {
	return func(c router.Context) (string, error) {
		token := c.Cookies(name)
		if token == "" {
			return "", ErrJWTMissingOrMalformed
		}
		return token, nil
	}
}
