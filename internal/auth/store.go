package auth

import "context"

// Store is the credential persistence the service depends on. Lookups report
// absence with found=false rather than an error.
type Store interface {
	CreateUser(ctx context.Context, username, email, passwordHash string) (int64, error)
	CreateUserRole(ctx context.Context, userID, roleID int64) error
	GetUserID(ctx context.Context, username string) (id int64, found bool, err error)
	GetRoleID(ctx context.Context, roleName string) (id int64, found bool, err error)
	GetUserByUsername(ctx context.Context, username string) (u User, found bool, err error)
	GetUserByID(ctx context.Context, id int64) (u User, found bool, err error)
	GetUserRoles(ctx context.Context, userID int64) ([]string, error)
	UsernameExists(ctx context.Context, username string) (bool, error)
	EmailExists(ctx context.Context, email string) (bool, error)

	// WithinTx runs fn against a Store bound to one transaction. fn's error
	// rolls back everything it wrote.
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Store) error) error
}
