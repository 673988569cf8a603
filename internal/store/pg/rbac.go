package pg

import (
	"context"
	"database/sql"

	"bookshelf.org/internal/db"
)

func (s *Store) GetRoleID(ctx context.Context, roleName string) (int64, bool, error) {
	return db.SelectOne(ctx, s.ex, scanID, `
		select id
		from roles
		where name = $1
	`, roleName)
}

func (s *Store) CreateUserRole(ctx context.Context, userID, roleID int64) error {
	_, err := s.ex.Exec(ctx, `
		insert into user_roles (user_id, role_id)
		values ($1, $2)
	`, userID, roleID)
	return err
}

// GetUserRoles lists role names linked to userID. The left joins yield one
// null row for a user without roles, which is skipped.
func (s *Store) GetUserRoles(ctx context.Context, userID int64) ([]string, error) {
	names, err := db.Select(ctx, s.ex, func(sc db.Scanner) (sql.NullString, error) {
		var name sql.NullString
		err := sc.Scan(&name)
		return name, err
	}, `
		select r.name
		from users u
		left join user_roles ur on ur.user_id = u.id
		left join roles r on r.id = ur.role_id
		where u.id = $1
		order by r.name
	`, userID)
	if err != nil {
		return nil, err
	}
	roles := make([]string, 0, len(names))
	for _, n := range names {
		if n.Valid {
			roles = append(roles, n.String)
		}
	}
	return roles, nil
}
