package jwtware_test

import (
	"context"
	"testing"

	"github.com/goliatone/go-router"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	auth "github.com/linklift/go-auth"
	"github.com/linklift/go-auth/middleware/jwtware"
)

type mockFactory struct {
	mock.Mock
}

func (m *mockFactory) CreateSecurityContext(ctx context.Context, token, ip, ua string) auth.SecurityContext {
	args := m.Called(token, ip, ua)
	return args.Get(0).(auth.SecurityContext)
}

func member() auth.SecurityContext {
	return auth.Authenticated(auth.User{ID: uuid.New(), Username: "alice"}, auth.RoleUser.Permissions(), "", "")
}

// capture records the security context seen by the final handler
func capture(seen *auth.SecurityContext, called *bool) router.HandlerFunc {
	return func(ctx router.Context) error {
		*called = true
		*seen = jwtware.SecurityContextFrom(ctx)
		return nil
	}
}

func TestNew_HeaderToken(t *testing.T) {
	factory := &mockFactory{}
	sc := member()
	factory.On("CreateSecurityContext", "abc.def.ghi", "192.0.2.1", "test-agent").Return(sc)

	var seen auth.SecurityContext
	var called bool
	handler := jwtware.New(jwtware.Config{Factory: factory})(capture(&seen, &called))

	ctx := newContext(map[string]string{
		"Authorization": "Bearer abc.def.ghi",
		"User-Agent":    "test-agent",
	})

	require.NoError(t, handler(ctx))

	require.True(t, called)
	assert.True(t, seen.IsAuthenticated())
	assert.Equal(t, sc.UserID(), seen.UserID())
	assert.Equal(t, sc, ctx.LocalsMock[jwtware.DefaultContextKey])
	factory.AssertExpectations(t)
}

func TestNew_ProxyHeadersIgnoredByDefault(t *testing.T) {
	factory := &mockFactory{}
	factory.On("CreateSecurityContext", "abc.def.ghi", "192.0.2.1", mock.Anything).Return(member())

	var seen auth.SecurityContext
	var called bool
	handler := jwtware.New(jwtware.Config{Factory: factory})(capture(&seen, &called))

	ctx := newContext(map[string]string{
		"Authorization":   "Bearer abc.def.ghi",
		"X-Forwarded-For": "203.0.113.7",
		"X-Real-IP":       "203.0.113.8",
	})

	require.NoError(t, handler(ctx))
	factory.AssertExpectations(t)
	ctx.AssertNotCalled(t, "GetString", "X-Forwarded-For", "")
}

func TestNew_TrustProxyHeaders(t *testing.T) {
	factory := &mockFactory{}
	factory.On("CreateSecurityContext", "abc.def.ghi", "203.0.113.7", mock.Anything).Return(member())

	var seen auth.SecurityContext
	var called bool
	handler := jwtware.New(jwtware.Config{
		Factory:           factory,
		TrustProxyHeaders: true,
	})(capture(&seen, &called))

	ctx := newContext(map[string]string{
		"Authorization":   "Bearer abc.def.ghi",
		"X-Forwarded-For": "203.0.113.7, 10.0.0.1",
	})

	require.NoError(t, handler(ctx))
	factory.AssertExpectations(t)
}

func TestNew_MissingTokenContinuesAnonymous(t *testing.T) {
	factory := &mockFactory{}

	cases := map[string]string{
		"no header":    "",
		"wrong scheme": "Basic dXNlcjpwYXNz",
		"empty bearer": "Bearer ",
	}

	for name, header := range cases {
		t.Run(name, func(t *testing.T) {
			var seen auth.SecurityContext
			var called bool
			handler := jwtware.New(jwtware.Config{Factory: factory})(capture(&seen, &called))

			ctx := newContext(map[string]string{"Authorization": header})
			require.NoError(t, handler(ctx))

			assert.True(t, called)
			assert.False(t, seen.IsAuthenticated())
		})
	}

	factory.AssertNotCalled(t, "CreateSecurityContext", mock.Anything, mock.Anything, mock.Anything)
}

func TestNew_InvalidTokenIsNotRejected(t *testing.T) {
	factory := &mockFactory{}
	factory.On("CreateSecurityContext", "junk", "192.0.2.1", mock.Anything).Return(auth.Anonymous())

	var seen auth.SecurityContext
	var called bool
	handler := jwtware.New(jwtware.Config{Factory: factory})(capture(&seen, &called))

	ctx := newContext(map[string]string{"Authorization": "Bearer junk"})
	require.NoError(t, handler(ctx))

	assert.True(t, called)
	assert.False(t, seen.IsAuthenticated())
}

func TestNew_QueryParamAndCookieLookup(t *testing.T) {
	factory := &mockFactory{}
	factory.On("CreateSecurityContext", "from-query", mock.Anything, mock.Anything).Return(member())
	factory.On("CreateSecurityContext", "from-param", mock.Anything, mock.Anything).Return(member())
	factory.On("CreateSecurityContext", "from-cookie", mock.Anything, mock.Anything).Return(member())

	cfg := jwtware.Config{
		Factory:     factory,
		TokenLookup: "header:Authorization,query:access_token,param:token,cookie:jwt",
	}

	var seen auth.SecurityContext
	var called bool
	handler := jwtware.New(cfg)(capture(&seen, &called))

	ctx := newContext(nil)
	ctx.QueriesM["access_token"] = "from-query"
	require.NoError(t, handler(ctx))
	assert.True(t, seen.IsAuthenticated())

	ctx = newContext(nil)
	ctx.ParamsM["token"] = "from-param"
	require.NoError(t, handler(ctx))
	assert.True(t, seen.IsAuthenticated())

	ctx = newContext(nil)
	ctx.CookiesM["jwt"] = "from-cookie"
	require.NoError(t, handler(ctx))
	assert.True(t, seen.IsAuthenticated())

	factory.AssertExpectations(t)
}

func TestNew_Filter(t *testing.T) {
	factory := &mockFactory{}
	cfg := jwtware.Config{
		Factory: factory,
		Filter:  func(ctx router.Context) bool { return ctx.Path() == "/health" },
	}

	called := false
	handler := jwtware.New(cfg)(func(ctx router.Context) error {
		called = true
		return nil
	})

	ctx := router.NewMockContext()
	ctx.On("Path").Return("/health")

	require.NoError(t, handler(ctx))
	assert.True(t, called)
	assert.Nil(t, ctx.LocalsMock[jwtware.DefaultContextKey])
	factory.AssertNotCalled(t, "CreateSecurityContext", mock.Anything, mock.Anything, mock.Anything)
}

func TestNew_RequiresFactory(t *testing.T) {
	assert.Panics(t, func() { jwtware.New() })
}

func TestClientIP(t *testing.T) {
	ctx := newContext(nil)
	assert.Equal(t, "192.0.2.1", jwtware.ClientIP(ctx, true))

	ctx = newContext(map[string]string{"X-Real-IP": "198.51.100.9"})
	assert.Equal(t, "198.51.100.9", jwtware.ClientIP(ctx, true))

	ctx = newContext(map[string]string{
		"X-Real-IP":       "198.51.100.9",
		"X-Forwarded-For": " 203.0.113.1 , 10.0.0.2",
	})
	assert.Equal(t, "203.0.113.1", jwtware.ClientIP(ctx, true))
	assert.Equal(t, "192.0.2.1", jwtware.ClientIP(ctx, false))
}

func TestGuards(t *testing.T) {
	ok := func(ctx router.Context) error { return nil }

	user := member()
	anon := auth.Anonymous()

	t.Run("require authentication", func(t *testing.T) {
		mw := jwtware.RequireAuthentication()

		ctx := withSecurity(user)
		require.NoError(t, mw(ok)(ctx))
		ctx.AssertNotCalled(t, "JSON", mock.Anything, mock.Anything)

		ctx = withSecurity(anon)
		body := expectJSON(ctx, router.StatusUnauthorized)
		require.NoError(t, mw(ok)(ctx))
		assert.Equal(t, auth.TextCodeUnauthorized, (*body)["code"])
		ctx.AssertCalled(t, "SetHeader", "WWW-Authenticate", `Bearer realm="linklift"`)
	})

	t.Run("require authentication without middleware", func(t *testing.T) {
		ctx := router.NewMockContext()
		ctx.On("Context").Return(context.Background())
		body := expectJSON(ctx, router.StatusUnauthorized)

		require.NoError(t, jwtware.RequireAuthentication()(ok)(ctx))
		assert.Equal(t, auth.TextCodeUnauthorized, (*body)["code"])
	})

	t.Run("require permission", func(t *testing.T) {
		mw := jwtware.RequirePermission(auth.PermissionCreateLink)
		require.NoError(t, mw(ok)(withSecurity(user)))

		ctx := withSecurity(anon)
		expectJSON(ctx, router.StatusUnauthorized)
		require.NoError(t, mw(ok)(ctx))

		ctx = withSecurity(user)
		body := expectJSON(ctx, router.StatusForbidden)
		require.NoError(t, jwtware.RequirePermission(auth.PermissionAdminAccess)(ok)(ctx))
		assert.Equal(t, auth.TextCodeInsufficientPermissions, (*body)["code"])
		ctx.AssertNotCalled(t, "SetHeader", mock.Anything, mock.Anything)
	})

	t.Run("require any permission", func(t *testing.T) {
		mw := jwtware.RequireAnyPermission([]string{auth.PermissionAdminAccess, auth.PermissionCreateLink})
		require.NoError(t, mw(ok)(withSecurity(user)))
	})

	t.Run("custom error handler", func(t *testing.T) {
		mw := jwtware.RequireAuthentication(jwtware.Config{
			ErrorHandler: func(ctx router.Context, err error) error {
				return err
			},
		})
		err := mw(ok)(withSecurity(anon))
		assert.ErrorIs(t, err, auth.ErrUnauthorized)
	})
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, router.StatusUnauthorized, jwtware.StatusFor(auth.ErrUnauthorized))
	assert.Equal(t, router.StatusUnauthorized, jwtware.StatusFor(jwtware.ErrJWTMissingOrMalformed))
	assert.Equal(t, router.StatusForbidden, jwtware.StatusFor(auth.ErrInsufficientPermissions))
	assert.Equal(t, router.StatusInternalServerError, jwtware.StatusFor(context.Canceled))
}

func TestEndToEndWithAuthorizationService(t *testing.T) {
	key := []byte("test-signing-key-with-at-least-32-bytes!")
	codec := auth.NewTokenService(key, "linklift", nil, nil)
	user := &auth.User{ID: uuid.New(), Username: "alice", Email: "alice@example.com", IsActive: true}

	users := &staticUsers{user: user}
	svc := auth.NewAuthorizationService(codec, users, auth.NewStaticPermissionSource())

	token, err := codec.GenerateAccessToken(user, timeNowPlusHour())
	require.NoError(t, err)

	var username string
	chain := jwtware.New(jwtware.Config{Factory: svc})(
		jwtware.RequirePermission(auth.PermissionCreateLink)(
			func(ctx router.Context) error {
				username = jwtware.SecurityContextFrom(ctx).Username()
				return nil
			},
		),
	)

	ctx := newContext(map[string]string{"Authorization": "Bearer " + token})
	require.NoError(t, chain(ctx))
	assert.Equal(t, "alice", username)

	username = ""
	ctx = newContext(nil)
	expectJSON(ctx, router.StatusUnauthorized)
	require.NoError(t, chain(ctx))
	assert.Empty(t, username)
}
