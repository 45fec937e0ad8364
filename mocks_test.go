package auth_test

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/linklift/go-auth"
	"github.com/stretchr/testify/mock"
)

// MockUserStore implements auth.UserStore
type MockUserStore struct {
	mock.Mock
}

func (m *MockUserStore) FindByUsername(ctx context.Context, username string) (*auth.User, error) {
	args := m.Called(ctx, username)
	if u := args.Get(0); u != nil {
		return u.(*auth.User), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockUserStore) FindByEmail(ctx context.Context, email string) (*auth.User, error) {
	args := m.Called(ctx, email)
	if u := args.Get(0); u != nil {
		return u.(*auth.User), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockUserStore) FindByID(ctx context.Context, id uuid.UUID) (*auth.User, error) {
	args := m.Called(ctx, id)
	if u := args.Get(0); u != nil {
		return u.(*auth.User), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockUserStore) UpdateLastLogin(ctx context.Context, id uuid.UUID, at time.Time) error {
	args := m.Called(ctx, id, at)
	return args.Error(0)
}

func (m *MockUserStore) Create(ctx context.Context, user *auth.User) (*auth.User, error) {
	args := m.Called(ctx, user)
	if u := args.Get(0); u != nil {
		return u.(*auth.User), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockUserStore) ExistsByUsername(ctx context.Context, username string) (bool, error) {
	args := m.Called(ctx, username)
	return args.Bool(0), args.Error(1)
}

func (m *MockUserStore) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	args := m.Called(ctx, email)
	return args.Bool(0), args.Error(1)
}

// MockPasswordHasher implements auth.PasswordHasher
type MockPasswordHasher struct {
	mock.Mock
}

func (m *MockPasswordHasher) HashPassword(plain string) (auth.PasswordHash, error) {
	args := m.Called(plain)
	return args.Get(0).(auth.PasswordHash), args.Error(1)
}

func (m *MockPasswordHasher) VerifyPassword(plain, hash, salt string) bool {
	args := m.Called(plain, hash, salt)
	return args.Bool(0)
}

func (m *MockPasswordHasher) IsPasswordStrong(plain string) bool {
	args := m.Called(plain)
	return args.Bool(0)
}

// MockTokenCodec implements auth.TokenCodec
type MockTokenCodec struct {
	mock.Mock
}

func (m *MockTokenCodec) GenerateAccessToken(user *auth.User, expiresAt time.Time) (string, error) {
	args := m.Called(user, expiresAt)
	return args.String(0), args.Error(1)
}

func (m *MockTokenCodec) GenerateRefreshToken(user *auth.User, expiresAt time.Time) (string, error) {
	args := m.Called(user, expiresAt)
	return args.String(0), args.Error(1)
}

func (m *MockTokenCodec) Validate(token string) (*auth.TokenClaims, error) {
	args := m.Called(token)
	if c := args.Get(0); c != nil {
		return c.(*auth.TokenClaims), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockTokenCodec) ExtractUserID(token string) (string, bool) {
	args := m.Called(token)
	return args.String(0), args.Bool(1)
}

func (m *MockTokenCodec) TokenExpiration(token string) (time.Time, bool) {
	args := m.Called(token)
	return args.Get(0).(time.Time), args.Bool(1)
}

// MockTokenStore implements auth.TokenStore
type MockTokenStore struct {
	mock.Mock
}

func (m *MockTokenStore) Save(ctx context.Context, token auth.AuthToken) (auth.AuthToken, error) {
	args := m.Called(ctx, token)
	return args.Get(0).(auth.AuthToken), args.Error(1)
}

func (m *MockTokenStore) FindByToken(ctx context.Context, token string) (*auth.AuthToken, error) {
	args := m.Called(ctx, token)
	if t := args.Get(0); t != nil {
		return t.(*auth.AuthToken), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockTokenStore) TryMarkUsed(ctx context.Context, id uuid.UUID) (bool, error) {
	args := m.Called(ctx, id)
	return args.Bool(0), args.Error(1)
}

func (m *MockTokenStore) MarkRevoked(ctx context.Context, id uuid.UUID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockTokenStore) RevokeAllForUser(ctx context.Context, userID uuid.UUID) (int64, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockTokenStore) RevokeForUserAndType(ctx context.Context, userID uuid.UUID, tokenType auth.TokenType) (int64, error) {
	args := m.Called(ctx, userID, tokenType)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockTokenStore) FindAllForUser(ctx context.Context, userID uuid.UUID) ([]auth.AuthToken, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).([]auth.AuthToken), args.Error(1)
}

func (m *MockTokenStore) FindValidForUserAndType(ctx context.Context, userID uuid.UUID, tokenType auth.TokenType) ([]auth.AuthToken, error) {
	args := m.Called(ctx, userID, tokenType)
	return args.Get(0).([]auth.AuthToken), args.Error(1)
}

func (m *MockTokenStore) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	args := m.Called(ctx, before)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockTokenStore) DeleteUsedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	args := m.Called(ctx, cutoff)
	return args.Get(0).(int64), args.Error(1)
}

// MockPermissionSource implements auth.PermissionSource
type MockPermissionSource struct {
	mock.Mock
}

func (m *MockPermissionSource) GetUserPermissions(ctx context.Context, userID uuid.UUID) ([]string, error) {
	args := m.Called(ctx, userID)
	if p := args.Get(0); p != nil {
		return p.([]string), args.Error(1)
	}
	return nil, args.Error(1)
}

// recordingSink collects published events and lets tests wait for them
type recordingSink struct {
	mu     sync.Mutex
	events []auth.Event
	ch     chan auth.Event
	err    error
}

func newRecordingSink() *recordingSink {
	return &recordingSink{ch: make(chan auth.Event, 16)}
}

func (s *recordingSink) Publish(_ context.Context, event auth.Event) error {
	s.mu.Lock()
	s.events = append(s.events, event)
	s.mu.Unlock()
	s.ch <- event
	return s.err
}

func (s *recordingSink) wait(timeout time.Duration) (auth.Event, bool) {
	select {
	case e := <-s.ch:
		return e, true
	case <-time.After(timeout):
		return nil, false
	}
}

// MockPasswordUpdater implements auth.PasswordUpdater
type MockPasswordUpdater struct {
	mock.Mock
}

func (m *MockPasswordUpdater) UpdatePassword(ctx context.Context, id uuid.UUID, hash, salt string) error {
	args := m.Called(ctx, id, hash, salt)
	return args.Error(0)
}
