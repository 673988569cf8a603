// Package pg implements the credential store on PostgreSQL through the
// shared db executor.
package pg

import (
	"context"

	"bookshelf.org/internal/auth"
	"bookshelf.org/internal/db"
)

// Store is the PostgreSQL credential repository. Every method is a single
// parameterized statement; there is no business logic here.
type Store struct {
	ex *db.Executor
}

var _ auth.Store = (*Store)(nil)

// New binds a Store to pool. Statements acquire a pooled connection each.
func New(pool *db.Pool) *Store {
	return &Store{ex: pool.Executor()}
}

// WithinTx runs fn against a Store bound to one transaction.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx auth.Store) error) error {
	if s.ex.InTx() {
		return fn(ctx, s)
	}
	return s.ex.Pool().WithTx(ctx, func(ctx context.Context, ex *db.Executor) error {
		return fn(ctx, &Store{ex: ex})
	})
}

func scanUser(sc db.Scanner) (auth.User, error) {
	var u auth.User
	err := sc.Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash)
	return u, err
}

func scanID(sc db.Scanner) (int64, error) {
	var id int64
	err := sc.Scan(&id)
	return id, err
}

func scanBool(sc db.Scanner) (bool, error) {
	var b bool
	err := sc.Scan(&b)
	return b, err
}
