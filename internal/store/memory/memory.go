// Package memory is an in-process credential store used by API tests and by
// the api binary's -store=memory mode. Transactions work on a copy of the
// state that is only published when the callback succeeds.
package memory

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"

	"bookshelf.org/internal/apperr"
	"bookshelf.org/internal/auth"
)

// DefaultRoles is the catalog seeded by New when no roles are given.
var DefaultRoles = []string{"user", "moderator", "admin"}

var errDuplicate = errors.New("memory: duplicate value")

// Store implements auth.Store.
type Store struct {
	mu    *sync.Mutex
	state *state
	inTx  bool
}

var _ auth.Store = (*Store)(nil)

type state struct {
	nextUserID int64
	users      map[int64]auth.User
	roles      map[string]int64
	links      map[[2]int64]struct{}
}

// New returns a Store seeded with roles (DefaultRoles when empty).
func New(roles ...string) *Store {
	if len(roles) == 0 {
		roles = DefaultRoles
	}
	st := &state{
		users: make(map[int64]auth.User),
		roles: make(map[string]int64, len(roles)),
		links: make(map[[2]int64]struct{}),
	}
	for i, r := range roles {
		st.roles[strings.ToLower(r)] = int64(i + 1)
	}
	return &Store{mu: &sync.Mutex{}, state: st}
}

func (s *state) clone() *state {
	c := &state{
		nextUserID: s.nextUserID,
		users:      make(map[int64]auth.User, len(s.users)),
		roles:      make(map[string]int64, len(s.roles)),
		links:      make(map[[2]int64]struct{}, len(s.links)),
	}
	for k, v := range s.users {
		c.users[k] = v
	}
	for k, v := range s.roles {
		c.roles[k] = v
	}
	for k := range s.links {
		c.links[k] = struct{}{}
	}
	return c
}

// lock is a no-op inside a transaction, which already holds the mutex.
func (s *Store) lock() func() {
	if s.inTx {
		return func() {}
	}
	s.mu.Lock()
	return s.mu.Unlock
}

func (s *Store) CreateUser(_ context.Context, username, email, passwordHash string) (int64, error) {
	defer s.lock()()
	for _, u := range s.state.users {
		if u.Username == username || u.Email == email {
			return 0, apperr.New(apperr.Validation, "duplicate value", errDuplicate)
		}
	}
	s.state.nextUserID++
	id := s.state.nextUserID
	s.state.users[id] = auth.User{ID: id, Username: username, Email: email, PasswordHash: passwordHash}
	return id, nil
}

func (s *Store) CreateUserRole(_ context.Context, userID, roleID int64) error {
	defer s.lock()()
	if _, ok := s.state.users[userID]; !ok {
		return apperr.New(apperr.Validation, "referenced record does not exist", nil)
	}
	key := [2]int64{userID, roleID}
	if _, ok := s.state.links[key]; ok {
		return apperr.New(apperr.Validation, "duplicate value", errDuplicate)
	}
	s.state.links[key] = struct{}{}
	return nil
}

func (s *Store) GetUserID(_ context.Context, username string) (int64, bool, error) {
	defer s.lock()()
	u, ok := s.findByUsername(username)
	return u.ID, ok, nil
}

func (s *Store) GetRoleID(_ context.Context, roleName string) (int64, bool, error) {
	defer s.lock()()
	id, ok := s.state.roles[roleName]
	return id, ok, nil
}

func (s *Store) GetUserByUsername(_ context.Context, username string) (auth.User, bool, error) {
	defer s.lock()()
	u, ok := s.findByUsername(username)
	return u, ok, nil
}

func (s *Store) GetUserByID(_ context.Context, id int64) (auth.User, bool, error) {
	defer s.lock()()
	u, ok := s.state.users[id]
	return u, ok, nil
}

func (s *Store) GetUserRoles(_ context.Context, userID int64) ([]string, error) {
	defer s.lock()()
	names := make([]string, 0)
	for name, roleID := range s.state.roles {
		if _, ok := s.state.links[[2]int64{userID, roleID}]; ok {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names, nil
}

func (s *Store) UsernameExists(_ context.Context, username string) (bool, error) {
	defer s.lock()()
	_, ok := s.findByUsername(username)
	return ok, nil
}

func (s *Store) EmailExists(_ context.Context, email string) (bool, error) {
	defer s.lock()()
	for _, u := range s.state.users {
		if u.Email == email {
			return true, nil
		}
	}
	return false, nil
}

// WithinTx serialises transactions; fn sees its own writes, and they are
// discarded if fn fails.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx auth.Store) error) error {
	if s.inTx {
		return fn(ctx, s)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &Store{mu: s.mu, state: s.state.clone(), inTx: true}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	s.state = tx.state
	return nil
}

// LinkCount reports how many user/role links exist.
func (s *Store) LinkCount() int {
	defer s.lock()()
	return len(s.state.links)
}

func (s *Store) findByUsername(username string) (auth.User, bool) {
	for _, u := range s.state.users {
		if u.Username == username {
			return u, true
		}
	}
	return auth.User{}, false
}
