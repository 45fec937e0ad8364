package jwtware_test

import (
	"context"
	"time"

	"github.com/goliatone/go-router"
	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	auth "github.com/linklift/go-auth"
	"github.com/linklift/go-auth/middleware/jwtware"
)

func timeNowPlusHour() time.Time {
	return time.Now().Add(time.Hour)
}

// newContext returns a mock request from 192.0.2.1 carrying the given headers
func newContext(headers map[string]string) *router.MockContext {
	ctx := router.NewMockContext()
	for _, h := range []string{
		router.HeaderAuthorization,
		jwtware.HeaderUserAgent,
		jwtware.HeaderForwardedFor,
		jwtware.HeaderRealIP,
	} {
		ctx.On("GetString", h, "").Return(headers[h]).Maybe()
	}
	ctx.On("IP").Return("192.0.2.1").Maybe()
	ctx.On("Path").Return("/links").Maybe()
	ctx.On("Context").Return(context.Background()).Maybe()
	ctx.On("SetContext", mock.Anything).Return().Maybe()
	ctx.On("Locals", jwtware.DefaultContextKey, mock.Anything).Return(nil).Maybe()
	return ctx
}

// withSecurity returns a mock request already carrying sc in its locals
func withSecurity(sc auth.SecurityContext) *router.MockContext {
	ctx := router.NewMockContext()
	ctx.LocalsMock[jwtware.DefaultContextKey] = sc
	return ctx
}

// expectJSON captures the body of the JSON response written with status
func expectJSON(ctx *router.MockContext, status int) *map[string]string {
	body := map[string]string{}
	ctx.On("SetHeader", mock.Anything, mock.Anything).Return(ctx).Maybe()
	ctx.On("JSON", status, mock.Anything).Run(func(args mock.Arguments) {
		body = args.Get(1).(map[string]string)
	}).Return(nil).Once()
	return &body
}

// staticUsers serves a single user and fails every other call
type staticUsers struct {
	user *auth.User
}

func (s *staticUsers) FindByUsername(context.Context, string) (*auth.User, error) {
	return nil, auth.ErrUserNotFound
}

func (s *staticUsers) FindByEmail(context.Context, string) (*auth.User, error) {
	return nil, auth.ErrUserNotFound
}

func (s *staticUsers) FindByID(_ context.Context, id uuid.UUID) (*auth.User, error) {
	if s.user != nil && s.user.ID == id {
		return s.user, nil
	}
	return nil, auth.ErrUserNotFound
}

func (s *staticUsers) UpdateLastLogin(context.Context, uuid.UUID, time.Time) error {
	return nil
}

func (s *staticUsers) Create(_ context.Context, u *auth.User) (*auth.User, error) {
	return u, nil
}

func (s *staticUsers) ExistsByUsername(context.Context, string) (bool, error) {
	return false, nil
}

func (s *staticUsers) ExistsByEmail(context.Context, string) (bool, error) {
	return false, nil
}
