package auth

// User is an account row. PasswordHash is only ever a bcrypt hash and is
// never serialised.
type User struct {
	ID           int64  `json:"id"`
	Username     string `json:"username"`
	Email        string `json:"email"`
	PasswordHash string `json:"-"`
}

// Role is an entry of the role catalog.
type Role struct {
	ID   int64
	Name string
}

// SignupRequest carries the fields accepted at account creation.
type SignupRequest struct {
	Username string
	Email    string
	Password string
	Roles    []string
}

// LoginResult is what a successful login yields.
type LoginResult struct {
	User        User
	Roles       []string
	AccessToken string
}
