package persistence

import (
	"context"

	"github.com/goliatone/go-errors"
	auth "github.com/linklift/go-auth"
	"github.com/uptrace/bun"
)

// Models lists the tables owned by the auth module in creation order
func Models() []any {
	return []any{
		(*auth.User)(nil),
		(*auth.AuthToken)(nil),
		(*auth.UserRoleAssignment)(nil),
	}
}

type index struct {
	model   any
	name    string
	columns []string
}

var indexes = []index{
	{model: (*auth.AuthToken)(nil), name: "idx_auth_tokens_user_id", columns: []string{"user_id"}},
	{model: (*auth.AuthToken)(nil), name: "idx_auth_tokens_user_type", columns: []string{"user_id", "token_type"}},
	{model: (*auth.AuthToken)(nil), name: "idx_auth_tokens_expires_at", columns: []string{"expires_at"}},
	{model: (*auth.UserRoleAssignment)(nil), name: "idx_user_roles_user_id", columns: []string{"user_id"}},
}

// Migrate creates the auth tables and their indexes when missing. It is safe
// to run on every start.
func Migrate(ctx context.Context, db bun.IDB) error {
	for _, model := range Models() {
		_, err := db.NewCreateTable().
			Model(model).
			IfNotExists().
			Exec(ctx)
		if err != nil {
			return errors.Wrap(err, errors.CategoryInternal, "failed to create table")
		}
	}

	for _, idx := range indexes {
		_, err := db.NewCreateIndex().
			Model(idx.model).
			Index(idx.name).
			Column(idx.columns...).
			IfNotExists().
			Exec(ctx)
		if err != nil {
			return errors.Wrap(err, errors.CategoryInternal, "failed to create index "+idx.name)
		}
	}

	return nil
}

// OpenAndMigrate opens the database and brings the schema up to date
func OpenAndMigrate(ctx context.Context, dsn string) (*bun.DB, error) {
	db, err := Open(ctx, dsn)
	if err != nil {
		return nil, err
	}
	if err := Migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}
