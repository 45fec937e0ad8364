package auth

import (
	"context"
)

var securityCtxKey = &contextKey{"security-context"}

type contextKey struct {
	name string
}

// WithSecurityContext stores the SecurityContext in the given context
func WithSecurityContext(ctx context.Context, sc SecurityContext) context.Context {
	return context.WithValue(ctx, securityCtxKey, sc)
}

// SecurityContextFrom returns the SecurityContext stored in ctx. A context
// without one yields an anonymous SecurityContext and false.
func SecurityContextFrom(ctx context.Context) (SecurityContext, bool) {
	if ctx == nil {
		return Anonymous(), false
	}
	sc, ok := ctx.Value(securityCtxKey).(SecurityContext)
	if !ok {
		return Anonymous(), false
	}
	return sc, true
}

// CurrentSecurityContext is SecurityContextFrom without the presence flag
func CurrentSecurityContext(ctx context.Context) SecurityContext {
	sc, _ := SecurityContextFrom(ctx)
	return sc
}

// Can checks a permission against the SecurityContext stored in ctx
func Can(ctx context.Context, permission string) bool {
	return CurrentSecurityContext(ctx).HasPermission(permission)
}
