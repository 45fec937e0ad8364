package auth_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/linklift/go-auth"
	"github.com/linklift/go-auth/persistence"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
)

func newTestDB(t *testing.T) *bun.DB {
	t.Helper()
	db, err := persistence.OpenAndMigrate(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func seedUser(t *testing.T, users auth.UserStore, username string) *auth.User {
	t.Helper()
	user, err := users.Create(context.Background(), &auth.User{
		Username:     username,
		Email:        username + "@example.com",
		PasswordHash: "hash",
		Salt:         "salt",
		IsActive:     true,
	})
	require.NoError(t, err)
	return user
}

func TestUsersRepository(t *testing.T) {
	ctx := context.Background()
	repo := auth.NewUsersRepository(newTestDB(t))

	created, err := repo.Create(ctx, &auth.User{
		Username:     "  Alice ",
		Email:        "Alice@Example.com",
		PasswordHash: "hash",
		Salt:         "salt",
		FirstName:    "Alice",
		IsActive:     true,
	})
	require.NoError(t, err)
	require.NotEqual(t, uuid.Nil, created.ID)
	assert.Equal(t, "alice", created.Username)
	assert.Equal(t, "alice@example.com", created.Email)

	t.Run("find by username", func(t *testing.T) {
		found, err := repo.FindByUsername(ctx, "ALICE")
		require.NoError(t, err)
		assert.Equal(t, created.ID, found.ID)
		assert.Equal(t, "hash", found.PasswordHash)
		assert.Equal(t, "salt", found.Salt)
		assert.True(t, found.IsActive)
	})

	t.Run("find by email", func(t *testing.T) {
		found, err := repo.FindByEmail(ctx, "alice@example.com")
		require.NoError(t, err)
		assert.Equal(t, created.ID, found.ID)
	})

	t.Run("find by id", func(t *testing.T) {
		found, err := repo.FindByID(ctx, created.ID)
		require.NoError(t, err)
		assert.Equal(t, "alice", found.Username)
	})

	t.Run("get by identifier", func(t *testing.T) {
		for _, identifier := range []string{created.ID.String(), "alice@example.com", "alice"} {
			found, err := repo.GetByIdentifier(ctx, identifier)
			require.NoError(t, err, identifier)
			assert.Equal(t, created.ID, found.ID)
		}
	})

	t.Run("misses map to ErrUserNotFound", func(t *testing.T) {
		_, err := repo.FindByUsername(ctx, "bob")
		assert.ErrorIs(t, err, auth.ErrUserNotFound)
		_, err = repo.FindByEmail(ctx, "bob@example.com")
		assert.ErrorIs(t, err, auth.ErrUserNotFound)
		_, err = repo.FindByID(ctx, uuid.New())
		assert.ErrorIs(t, err, auth.ErrUserNotFound)
		_, err = repo.FindByID(ctx, uuid.Nil)
		assert.ErrorIs(t, err, auth.ErrUserNotFound)
	})

	t.Run("exists", func(t *testing.T) {
		ok, err := repo.ExistsByUsername(ctx, "Alice")
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = repo.ExistsByEmail(ctx, "nobody@example.com")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("update last login", func(t *testing.T) {
		at := time.Date(2024, 3, 1, 12, 30, 15, 500, time.UTC)
		require.NoError(t, repo.UpdateLastLogin(ctx, created.ID, at))

		found, err := repo.FindByID(ctx, created.ID)
		require.NoError(t, err)
		require.NotNil(t, found.LastLoginAt)
		assert.True(t, found.LastLoginAt.Equal(at.Truncate(time.Second)))

		assert.ErrorIs(t, repo.UpdateLastLogin(ctx, uuid.New(), at), auth.ErrUserNotFound)
	})

	t.Run("set active", func(t *testing.T) {
		require.NoError(t, repo.SetActive(ctx, created.ID, false))
		found, err := repo.FindByID(ctx, created.ID)
		require.NoError(t, err)
		assert.False(t, found.IsActive)
	})

	t.Run("duplicate username is rejected by the store", func(t *testing.T) {
		_, err := repo.Create(ctx, &auth.User{Username: "alice", Email: "other@example.com", IsActive: true})
		assert.ErrorIs(t, err, auth.ErrUserAlreadyExists)
	})
}

type tokenRepoFixture struct {
	repo  auth.Tokens
	users auth.Users
	now   time.Time
	user  *auth.User
}

func newTokenRepoFixture(t *testing.T) *tokenRepoFixture {
	db := newTestDB(t)
	f := &tokenRepoFixture{
		users: auth.NewUsersRepository(db),
		now:   time.Now().UTC().Truncate(time.Second),
	}
	f.repo = auth.NewTokensRepository(db, auth.WithTokensClock(func() time.Time { return f.now }))
	f.user = seedUser(t, f.users, "alice")
	return f
}

func (f *tokenRepoFixture) save(t *testing.T, value string, tokenType auth.TokenType, opts ...auth.AuthTokenOption) auth.AuthToken {
	t.Helper()
	opts = append([]auth.AuthTokenOption{auth.WithTokenCreatedAt(f.now)}, opts...)
	saved, err := f.repo.Save(context.Background(), auth.NewAuthToken(f.user.ID, tokenType, value, opts...))
	require.NoError(t, err)
	return saved
}

func TestTokensRepository_SaveAndFind(t *testing.T) {
	ctx := context.Background()
	f := newTokenRepoFixture(t)

	expires := f.now.Add(time.Hour)
	saved := f.save(t, "refresh-1", auth.TokenTypeRefresh,
		auth.WithTokenExpiresAt(expires),
		auth.WithTokenClient("10.0.0.1", "agent"),
	)

	found, err := f.repo.FindByToken(ctx, "refresh-1")
	require.NoError(t, err)
	assert.Equal(t, saved.ID, found.ID)
	assert.Equal(t, auth.TokenTypeRefresh, found.TokenType)
	assert.Equal(t, f.user.ID, found.UserID)
	require.NotNil(t, found.ExpiresAt)
	assert.True(t, found.ExpiresAt.Equal(expires))
	assert.Nil(t, found.UsedAt)
	assert.False(t, found.IsRevoked)
	assert.Equal(t, "10.0.0.1", found.IPAddress)
	assert.Equal(t, "agent", found.UserAgent)

	_, err = f.repo.FindByToken(ctx, "missing")
	assert.ErrorIs(t, err, auth.ErrTokenNotFound)
}

func TestTokensRepository_TryMarkUsed(t *testing.T) {
	ctx := context.Background()
	f := newTokenRepoFixture(t)

	valid := f.save(t, "valid", auth.TokenTypeRefresh, auth.WithTokenExpiresAt(f.now.Add(time.Hour)))
	expired := f.save(t, "expired", auth.TokenTypeRefresh, auth.WithTokenExpiresAt(f.now.Add(-time.Minute)))
	revoked := f.save(t, "revoked", auth.TokenTypeRefresh, auth.WithTokenExpiresAt(f.now.Add(time.Hour)))
	forever := f.save(t, "forever", auth.TokenTypeRefresh)
	require.NoError(t, f.repo.MarkRevoked(ctx, revoked.ID))

	ok, err := f.repo.TryMarkUsed(ctx, valid.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = f.repo.TryMarkUsed(ctx, valid.ID)
	require.NoError(t, err)
	assert.False(t, ok, "second claim must lose")

	for _, tok := range []auth.AuthToken{expired, revoked} {
		ok, err = f.repo.TryMarkUsed(ctx, tok.ID)
		require.NoError(t, err)
		assert.False(t, ok, tok.Token)
	}

	ok, err = f.repo.TryMarkUsed(ctx, forever.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	found, err := f.repo.FindByToken(ctx, "valid")
	require.NoError(t, err)
	require.NotNil(t, found.UsedAt)
	assert.True(t, found.UsedAt.Equal(f.now))
	assert.False(t, found.IsValidAt(f.now))
}

func TestTokensRepository_TryMarkUsedConcurrent(t *testing.T) {
	ctx := context.Background()
	f := newTokenRepoFixture(t)
	tok := f.save(t, "contended", auth.TokenTypeRefresh, auth.WithTokenExpiresAt(f.now.Add(time.Hour)))

	const workers = 16
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := f.repo.TryMarkUsed(ctx, tok.ID)
			if err == nil && ok {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, wins)
}

func TestTokensRepository_Revocation(t *testing.T) {
	ctx := context.Background()
	f := newTokenRepoFixture(t)
	other := seedUser(t, f.users, "bob")

	f.save(t, "r1", auth.TokenTypeRefresh, auth.WithTokenExpiresAt(f.now.Add(time.Hour)))
	f.save(t, "r2", auth.TokenTypeRefresh, auth.WithTokenExpiresAt(f.now.Add(time.Hour)))
	f.save(t, "reset", auth.TokenTypePasswordReset, auth.WithTokenExpiresAt(f.now.Add(time.Hour)))
	_, err := f.repo.Save(ctx, auth.NewAuthToken(other.ID, auth.TokenTypeRefresh, "bob-1",
		auth.WithTokenCreatedAt(f.now), auth.WithTokenExpiresAt(f.now.Add(time.Hour))))
	require.NoError(t, err)

	n, err := f.repo.RevokeForUserAndType(ctx, f.user.ID, auth.TokenTypePasswordReset)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	valid, err := f.repo.FindValidForUserAndType(ctx, f.user.ID, auth.TokenTypeRefresh)
	require.NoError(t, err)
	assert.Len(t, valid, 2)

	n, err = f.repo.RevokeAllForUser(ctx, f.user.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n, "already revoked tokens are not counted")

	all, err := f.repo.FindAllForUser(ctx, f.user.ID)
	require.NoError(t, err)
	assert.Len(t, all, 3)
	for _, tok := range all {
		assert.True(t, tok.IsRevoked, tok.Token)
	}

	valid, err = f.repo.FindValidForUserAndType(ctx, f.user.ID, auth.TokenTypeRefresh)
	require.NoError(t, err)
	assert.Empty(t, valid)

	bobs, err := f.repo.FindValidForUserAndType(ctx, other.ID, auth.TokenTypeRefresh)
	require.NoError(t, err)
	assert.Len(t, bobs, 1)

	assert.ErrorIs(t, f.repo.MarkRevoked(ctx, uuid.New()), auth.ErrTokenNotFound)
}

func TestTokensRepository_Cleanup(t *testing.T) {
	ctx := context.Background()
	f := newTokenRepoFixture(t)

	f.save(t, "expired", auth.TokenTypeRefresh, auth.WithTokenExpiresAt(f.now.Add(-time.Hour)))
	f.save(t, "live", auth.TokenTypeRefresh, auth.WithTokenExpiresAt(f.now.Add(time.Hour)))
	f.save(t, "old-used", auth.TokenTypeRefresh,
		auth.WithTokenExpiresAt(f.now.Add(time.Hour)),
		auth.WithTokenUsedAt(f.now.Add(-48*time.Hour)))
	f.save(t, "recent-used", auth.TokenTypeRefresh,
		auth.WithTokenExpiresAt(f.now.Add(time.Hour)),
		auth.WithTokenUsedAt(f.now.Add(-time.Minute)))

	n, err := f.repo.DeleteExpired(ctx, f.now)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = f.repo.DeleteUsedBefore(ctx, f.now.Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	all, err := f.repo.FindAllForUser(ctx, f.user.ID)
	require.NoError(t, err)
	values := make([]string, 0, len(all))
	for _, tok := range all {
		values = append(values, tok.Token)
	}
	assert.ElementsMatch(t, []string{"live", "recent-used"}, values)
}

func TestRolePermissionSource(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	users := auth.NewUsersRepository(db)
	roles := auth.NewRolePermissionSource(db)
	user := seedUser(t, users, "alice")

	perms, err := roles.GetUserPermissions(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, auth.PermissionsForRoles(auth.DefaultRole), perms)

	require.NoError(t, roles.AssignRole(ctx, user.ID, auth.RoleModerator))
	require.NoError(t, roles.AssignRole(ctx, user.ID, auth.RoleModerator))

	assigned, err := roles.FindRoles(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, []auth.UserRole{auth.RoleModerator}, assigned)

	perms, err = roles.GetUserPermissions(ctx, user.ID)
	require.NoError(t, err)
	assert.Contains(t, perms, auth.PermissionReadAllLinks)
	assert.NotContains(t, perms, auth.PermissionAdminAccess)

	assert.Error(t, roles.AssignRole(ctx, user.ID, auth.UserRole("ROOT")))

	removed, err := roles.RemoveRole(ctx, user.ID, auth.RoleModerator)
	require.NoError(t, err)
	assert.True(t, removed)

	removed, err = roles.RemoveRole(ctx, user.ID, auth.RoleModerator)
	require.NoError(t, err)
	assert.False(t, removed)
}

func TestRepositoryManager(t *testing.T) {
	db := newTestDB(t)
	m := auth.NewRepositoryManager(db)

	require.NoError(t, m.Validate())
	assert.NotPanics(t, m.MustValidate)
	assert.NotNil(t, m.Users())
	assert.NotNil(t, m.Tokens())
	assert.NotNil(t, m.Roles())

	ctx := context.Background()
	err := m.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		user, err := m.Users().CreateTx(ctx, tx, &auth.User{Username: "carol", Email: "carol@example.com", IsActive: true})
		if err != nil {
			return err
		}
		_, err = m.Tokens().SaveTx(ctx, tx, auth.NewAuthToken(user.ID, auth.TokenTypeRefresh, "carol-1"))
		return err
	})
	require.NoError(t, err)

	found, err := m.Tokens().FindByToken(ctx, "carol-1")
	require.NoError(t, err)
	assert.Equal(t, auth.TokenTypeRefresh, found.TokenType)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	assert.ErrorIs(t, m.RunInTx(cancelled, nil, func(context.Context, bun.Tx) error { return nil }), context.Canceled)
}
