package pg

import (
	"context"
	"errors"

	"bookshelf.org/internal/apperr"
	"bookshelf.org/internal/auth"
	"bookshelf.org/internal/db"
)

func (s *Store) CreateUser(ctx context.Context, username, email, passwordHash string) (int64, error) {
	id, found, err := db.SelectOne(ctx, s.ex, scanID, `
		insert into users (username, email, password)
		values ($1, $2, $3)
		returning id
	`, username, email, db.Secret(passwordHash))
	if err != nil {
		return 0, err
	}
	if !found {
		return 0, apperr.Internalf(errors.New("insert returned no id"), "create user")
	}
	return id, nil
}

func (s *Store) GetUserID(ctx context.Context, username string) (int64, bool, error) {
	return db.SelectOne(ctx, s.ex, scanID, `
		select id
		from users
		where username = $1
	`, username)
}

func (s *Store) GetUserByUsername(ctx context.Context, username string) (auth.User, bool, error) {
	return db.SelectOne(ctx, s.ex, scanUser, `
		select id, username, email, password
		from users
		where username = $1
	`, username)
}

func (s *Store) GetUserByID(ctx context.Context, id int64) (auth.User, bool, error) {
	return db.SelectOne(ctx, s.ex, scanUser, `
		select id, username, email, password
		from users
		where id = $1
	`, id)
}

func (s *Store) UsernameExists(ctx context.Context, username string) (bool, error) {
	exists, _, err := db.SelectOne(ctx, s.ex, scanBool, `
		select exists(select 1 from users where username = $1)
	`, username)
	return exists, err
}

func (s *Store) EmailExists(ctx context.Context, email string) (bool, error) {
	exists, _, err := db.SelectOne(ctx, s.ex, scanBool, `
		select exists(select 1 from users where email = $1)
	`, email)
	return exists, err
}
