package auth

import (
	"context"
	"time"

	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Tokens is the bun backed TokenStore
type Tokens interface {
	TokenStore

	SaveTx(ctx context.Context, tx bun.IDB, token AuthToken) (AuthToken, error)
	TryMarkUsedTx(ctx context.Context, tx bun.IDB, id uuid.UUID) (bool, error)
	RevokeAllForUserTx(ctx context.Context, tx bun.IDB, userID uuid.UUID) (int64, error)
}

type tokens struct {
	repository.Repository[*AuthToken]
	db  *bun.DB
	now func() time.Time
}

var _ Tokens = (*tokens)(nil)

// TokensOption customizes the token repository
type TokensOption func(*tokens)

// WithTokensClock overrides the clock used to decide if a token is still usable
func WithTokensClock(now func() time.Time) TokensOption {
	return func(r *tokens) {
		if now != nil {
			r.now = now
		}
	}
}

func NewTokensRepository(db *bun.DB, opts ...TokensOption) Tokens {
	repo := repository.NewRepository[*AuthToken](db, repository.ModelHandlers[*AuthToken]{
		NewRecord: func() *AuthToken { return &AuthToken{} },
		GetID: func(t *AuthToken) uuid.UUID {
			if t == nil {
				return uuid.Nil
			}
			return t.ID
		},
		SetID: func(t *AuthToken, id uuid.UUID) {
			if t != nil {
				t.ID = id
			}
		},
		GetIdentifier: func() string {
			return "token"
		},
	})

	r := &tokens{
		Repository: repo,
		db:         db,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *tokens) Save(ctx context.Context, token AuthToken) (AuthToken, error) {
	return r.SaveTx(ctx, r.db, token)
}

func (r *tokens) SaveTx(ctx context.Context, tx bun.IDB, token AuthToken) (AuthToken, error) {
	record := token
	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = r.now()
	}
	record.CreatedAt = truncate(record.CreatedAt)
	record.ExpiresAt = truncatePtr(record.ExpiresAt)
	record.UsedAt = truncatePtr(record.UsedAt)

	saved, err := r.Repository.CreateTx(ctx, tx, &record)
	if err != nil {
		return AuthToken{}, errors.Wrap(err, errors.CategoryInternal, "failed to save token")
	}
	return *saved, nil
}

func (r *tokens) FindByToken(ctx context.Context, value string) (*AuthToken, error) {
	record := &AuthToken{}
	err := r.db.NewSelect().
		Model(record).
		Where("?TableAlias.token = ?", value).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if isRecordNotFound(err) {
			return nil, ErrTokenNotFound
		}
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to query token")
	}
	return record, nil
}

func (r *tokens) TryMarkUsed(ctx context.Context, id uuid.UUID) (bool, error) {
	return r.TryMarkUsedTx(ctx, r.db, id)
}

// TryMarkUsedTx stamps used_at only if the token is still unused, not revoked
// and not expired. Exactly one concurrent caller observes true.
func (r *tokens) TryMarkUsedTx(ctx context.Context, tx bun.IDB, id uuid.UUID) (bool, error) {
	now := truncate(r.now())
	res, err := tx.NewUpdate().
		Model((*AuthToken)(nil)).
		Set("used_at = ?", now).
		Where("id = ?", id).
		Where("used_at IS NULL").
		Where("is_revoked = ?", false).
		WhereGroup(" AND ", func(q *bun.UpdateQuery) *bun.UpdateQuery {
			return q.Where("expires_at IS NULL").WhereOr("expires_at > ?", now)
		}).
		Exec(ctx)

	n, err := countAffected(res, err, "failed to mark token used")
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (r *tokens) MarkRevoked(ctx context.Context, id uuid.UUID) error {
	res, err := r.db.NewUpdate().
		Model((*AuthToken)(nil)).
		Set("is_revoked = ?", true).
		Where("id = ?", id).
		Exec(ctx)
	return affectedOrNotFound(res, err, ErrTokenNotFound)
}

func (r *tokens) RevokeAllForUser(ctx context.Context, userID uuid.UUID) (int64, error) {
	return r.RevokeAllForUserTx(ctx, r.db, userID)
}

func (r *tokens) RevokeAllForUserTx(ctx context.Context, tx bun.IDB, userID uuid.UUID) (int64, error) {
	res, err := tx.NewUpdate().
		Model((*AuthToken)(nil)).
		Set("is_revoked = ?", true).
		Where("user_id = ?", userID).
		Where("is_revoked = ?", false).
		Exec(ctx)
	return countAffected(res, err, "failed to revoke tokens")
}

func (r *tokens) RevokeForUserAndType(ctx context.Context, userID uuid.UUID, tokenType TokenType) (int64, error) {
	res, err := r.db.NewUpdate().
		Model((*AuthToken)(nil)).
		Set("is_revoked = ?", true).
		Where("user_id = ?", userID).
		Where("token_type = ?", tokenType).
		Where("is_revoked = ?", false).
		Exec(ctx)
	return countAffected(res, err, "failed to revoke tokens")
}

func (r *tokens) FindAllForUser(ctx context.Context, userID uuid.UUID) ([]AuthToken, error) {
	var records []AuthToken
	err := r.db.NewSelect().
		Model(&records).
		Where("?TableAlias.user_id = ?", userID).
		Order("created_at DESC").
		Scan(ctx)
	if err != nil && !isRecordNotFound(err) {
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to query tokens")
	}
	return records, nil
}

// FindValidForUserAndType lists tokens of the given type that are unused,
// not revoked and not expired.
func (r *tokens) FindValidForUserAndType(ctx context.Context, userID uuid.UUID, tokenType TokenType) ([]AuthToken, error) {
	now := truncate(r.now())

	var records []AuthToken
	err := r.db.NewSelect().
		Model(&records).
		Where("?TableAlias.user_id = ?", userID).
		Where("?TableAlias.token_type = ?", tokenType).
		Where("?TableAlias.used_at IS NULL").
		Where("?TableAlias.is_revoked = ?", false).
		WhereGroup(" AND ", func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.Where("?TableAlias.expires_at IS NULL").WhereOr("?TableAlias.expires_at > ?", now)
		}).
		Order("created_at DESC").
		Scan(ctx)
	if err != nil && !isRecordNotFound(err) {
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to query tokens")
	}
	return records, nil
}

func (r *tokens) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	res, err := r.db.NewDelete().
		Model((*AuthToken)(nil)).
		Where("expires_at IS NOT NULL").
		Where("expires_at < ?", truncate(before)).
		Exec(ctx)
	return countAffected(res, err, "failed to delete expired tokens")
}

func (r *tokens) DeleteUsedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.NewDelete().
		Model((*AuthToken)(nil)).
		Where("used_at IS NOT NULL").
		Where("used_at < ?", truncate(cutoff)).
		Exec(ctx)
	return countAffected(res, err, "failed to delete used tokens")
}
