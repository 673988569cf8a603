package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"bookshelf.org/internal/apperr"
)

const (
	defaultRoleName = "user"
	maxUsernameLen  = 64
	maxEmailLen     = 254
)

// Service implements signup, login and token handling on top of a Store.
type Service struct {
	store Store
	log   *slog.Logger
	now   func() time.Time

	tokenSecret []byte
	issuer      string
	tokenTTL    time.Duration
	bcryptCost  int
	defaultRole string

	dummyOnce sync.Once
	dummyHash string
}

// ServiceOption configures Service behavior.
type ServiceOption func(*Service) error

// WithTokenSecret sets the HS256 signing secret used by Authenticate and CurrentUser.
func WithTokenSecret(secret string) ServiceOption {
	return func(s *Service) error {
		secret = strings.TrimSpace(secret)
		if secret == "" {
			return errors.New("auth: token secret is empty")
		}
		s.tokenSecret = []byte(secret)
		return nil
	}
}

// WithIssuer overrides the token issuer claim.
func WithIssuer(issuer string) ServiceOption {
	return func(s *Service) error {
		if issuer = strings.TrimSpace(issuer); issuer != "" {
			s.issuer = issuer
		}
		return nil
	}
}

// WithTokenTTL configures access token lifetime.
func WithTokenTTL(ttl time.Duration) ServiceOption {
	return func(s *Service) error {
		if ttl > 0 {
			s.tokenTTL = ttl
		}
		return nil
	}
}

// WithBcryptCost sets the work factor for new password hashes.
func WithBcryptCost(cost int) ServiceOption {
	return func(s *Service) error {
		if cost == 0 {
			return nil
		}
		if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
			return fmt.Errorf("auth: bcrypt cost %d out of range", cost)
		}
		s.bcryptCost = cost
		return nil
	}
}

// WithDefaultRole names the role assigned when a signup lists none.
func WithDefaultRole(name string) ServiceOption {
	return func(s *Service) error {
		if name = strings.TrimSpace(strings.ToLower(name)); name != "" {
			s.defaultRole = name
		}
		return nil
	}
}

// WithClock overrides time source (useful for tests).
func WithClock(fn func() time.Time) ServiceOption {
	return func(s *Service) error {
		if fn != nil {
			s.now = fn
		}
		return nil
	}
}

// WithLogger sets the service logger.
func WithLogger(l *slog.Logger) ServiceOption {
	return func(s *Service) error {
		if l != nil {
			s.log = l
		}
		return nil
	}
}

// NewService builds a Service. A store is required.
func NewService(store Store, opts ...ServiceOption) (*Service, error) {
	if store == nil {
		return nil, errors.New("auth: store is required")
	}
	s := &Service{
		store:       store,
		log:         slog.Default(),
		now:         time.Now,
		issuer:      defaultIssuer,
		tokenTTL:    defaultTokenTTL,
		bcryptCost:  bcrypt.DefaultCost,
		defaultRole: defaultRoleName,
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	s.log = s.log.With("component", "auth")
	return s, nil
}

// CreateUser hashes password and stores a new user. It does not check for
// duplicates; the store's rejection is returned as is.
func (s *Service) CreateUser(ctx context.Context, username, email, password string) error {
	normalized, err := normalizeEmail(email)
	if err != nil {
		return err
	}
	hash, err := HashPassword(password, s.bcryptCost)
	if err != nil {
		return err
	}
	if _, err := s.store.CreateUser(ctx, strings.TrimSpace(username), normalized, hash); err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

// AssignRoles links username to every named role in one transaction. If any
// role cannot be resolved or linked, no link is kept.
func (s *Service) AssignRoles(ctx context.Context, username string, roleNames []string) error {
	return s.store.WithinTx(ctx, func(ctx context.Context, tx Store) error {
		return assignRoles(ctx, tx, strings.TrimSpace(username), normalizeRoles(roleNames))
	})
}

func assignRoles(ctx context.Context, st Store, username string, roleNames []string) error {
	userID, found, err := st.GetUserID(ctx, username)
	if err != nil {
		return fmt.Errorf("resolve user: %w", err)
	}
	if !found {
		return apperr.Internalf(ErrUserMissing, "assign roles to %q", username)
	}
	for _, name := range roleNames {
		roleID, found, err := st.GetRoleID(ctx, name)
		if err != nil {
			return fmt.Errorf("resolve role %q: %w", name, err)
		}
		if !found {
			return &apperr.Error{Kind: apperr.Validation, Msg: fmt.Sprintf("role %q does not exist", name), Err: ErrRoleNotFound}
		}
		if err := st.CreateUserRole(ctx, userID, roleID); err != nil {
			return fmt.Errorf("link role %q: %w", name, err)
		}
	}
	return nil
}

// GetUserByUsername returns the full user row including the hash.
func (s *Service) GetUserByUsername(ctx context.Context, username string) (User, error) {
	u, found, err := s.store.GetUserByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		return User{}, err
	}
	if !found {
		return User{}, ErrUserNotFound
	}
	return u, nil
}

// ValidatePassword reports whether plaintext matches storedHash.
func (s *Service) ValidatePassword(plaintext, storedHash string) bool {
	return VerifyPassword(storedHash, plaintext)
}

// SignToken issues an access token for userID signed with secret.
func (s *Service) SignToken(userID int64, secret string) (string, error) {
	return signToken(userID, []byte(secret), s.issuer, s.tokenTTL, s.now())
}

// ParseToken verifies signature, issuer and expiry of token.
func (s *Service) ParseToken(token, secret string) (Claims, error) {
	return parseToken(token, []byte(secret), s.issuer, s.now)
}

// GetUserRoles returns the role names linked to userID.
func (s *Service) GetUserRoles(ctx context.Context, userID int64) ([]string, error) {
	return s.store.GetUserRoles(ctx, userID)
}

// CheckSignup rejects malformed requests, taken usernames or emails, and
// unknown roles before anything is written.
func (s *Service) CheckSignup(ctx context.Context, req SignupRequest) error {
	username := strings.TrimSpace(req.Username)
	switch {
	case username == "":
		return apperr.Validationf("username is required")
	case len(username) > maxUsernameLen:
		return apperr.Validationf("username must be at most %d characters", maxUsernameLen)
	case req.Password == "":
		return apperr.Validationf("password is required")
	case len(req.Password) > maxPasswordBytes:
		return apperr.Validationf("password must be at most %d bytes", maxPasswordBytes)
	}
	email, err := normalizeEmail(req.Email)
	if err != nil {
		return err
	}

	taken, err := s.store.UsernameExists(ctx, username)
	if err != nil {
		return err
	}
	if taken {
		return ErrUsernameTaken
	}
	taken, err = s.store.EmailExists(ctx, email)
	if err != nil {
		return err
	}
	if taken {
		return ErrEmailTaken
	}

	for _, name := range normalizeRoles(req.Roles) {
		_, found, err := s.store.GetRoleID(ctx, name)
		if err != nil {
			return err
		}
		if !found {
			return &apperr.Error{Kind: apperr.Validation, Msg: fmt.Sprintf("role %q does not exist", name), Err: ErrRoleNotFound}
		}
	}
	return nil
}

// Register creates the user and links its roles in a single transaction, so
// a failed role link never leaves a user without roles. An empty role list
// gets the default role.
func (s *Service) Register(ctx context.Context, req SignupRequest) error {
	hash, err := HashPassword(req.Password, s.bcryptCost)
	if err != nil {
		if apperr.Is(err, apperr.Internal) {
			s.log.ErrorContext(ctx, "hash password failed", "error", err)
		}
		return err
	}
	username := strings.TrimSpace(req.Username)
	email, err := normalizeEmail(req.Email)
	if err != nil {
		return err
	}
	roles := normalizeRoles(req.Roles)
	if len(roles) == 0 {
		roles = []string{s.defaultRole}
	}

	err = s.store.WithinTx(ctx, func(ctx context.Context, tx Store) error {
		if _, err := tx.CreateUser(ctx, username, email, hash); err != nil {
			return fmt.Errorf("create user: %w", err)
		}
		return assignRoles(ctx, tx, username, roles)
	})
	if err != nil {
		return err
	}
	s.log.InfoContext(ctx, "user registered", "username", username, "roles", roles)
	return nil
}

// Authenticate runs the login sequence: fetch user, verify password, sign a
// token, load roles. Unknown users and wrong passwords fail identically.
func (s *Service) Authenticate(ctx context.Context, username, password string) (LoginResult, error) {
	u, found, err := s.store.GetUserByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		return LoginResult{}, fmt.Errorf("fetch user: %w", err)
	}
	if !found {
		// spend the same bcrypt work as a real comparison
		s.ValidatePassword(password, s.dummy())
		return LoginResult{}, ErrInvalidCredentials
	}
	if !s.ValidatePassword(password, u.PasswordHash) {
		return LoginResult{}, ErrInvalidCredentials
	}

	token, err := s.SignToken(u.ID, string(s.tokenSecret))
	if err != nil {
		s.log.ErrorContext(ctx, "issue token failed", "user_id", u.ID, "error", err)
		return LoginResult{}, apperr.Internalf(err, "issue token")
	}
	roles, err := s.store.GetUserRoles(ctx, u.ID)
	if err != nil {
		return LoginResult{}, fmt.Errorf("load roles: %w", err)
	}
	return LoginResult{User: u, Roles: roles, AccessToken: token}, nil
}

// CurrentUser resolves the user and roles behind an access token.
func (s *Service) CurrentUser(ctx context.Context, token string) (User, []string, error) {
	claims, err := s.ParseToken(token, string(s.tokenSecret))
	if err != nil {
		return User{}, nil, err
	}
	id, err := claims.UserID()
	if err != nil {
		return User{}, nil, ErrInvalidToken
	}
	u, found, err := s.store.GetUserByID(ctx, id)
	if err != nil {
		return User{}, nil, err
	}
	if !found {
		// a valid token for a deleted account
		return User{}, nil, ErrInvalidToken
	}
	roles, err := s.store.GetUserRoles(ctx, id)
	if err != nil {
		return User{}, nil, err
	}
	return u, roles, nil
}

func (s *Service) dummy() string {
	s.dummyOnce.Do(func() {
		h, err := bcrypt.GenerateFromPassword([]byte("bookshelf-timing-equalizer"), s.bcryptCost)
		if err == nil {
			s.dummyHash = string(h)
		}
	})
	return s.dummyHash
}

// normalizeEmail accepts a bare address only and returns it trimmed and
// lower-cased, so that case and display-name variants share one identity.
func normalizeEmail(raw string) (string, error) {
	email := strings.TrimSpace(raw)
	switch {
	case email == "":
		return "", apperr.Validationf("email is required")
	case len(email) > maxEmailLen:
		return "", apperr.Validationf("email must be at most %d characters", maxEmailLen)
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Name != "" || addr.Address != email {
		return "", apperr.Validationf("email is not valid")
	}
	return strings.ToLower(addr.Address), nil
}

func normalizeRoles(roles []string) []string {
	if len(roles) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(roles))
	var normalized []string
	for _, role := range roles {
		role = strings.TrimSpace(strings.ToLower(role))
		if role == "" {
			continue
		}
		if _, ok := seen[role]; ok {
			continue
		}
		seen[role] = struct{}{}
		normalized = append(normalized, role)
	}
	return normalized
}
