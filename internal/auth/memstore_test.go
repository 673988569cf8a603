package auth

import (
	"context"
	"errors"
	"sort"

	"bookshelf.org/internal/apperr"
)

// memStore is an in-memory Store whose WithinTx works on a copy of the state
// and only publishes it when fn succeeds.
type memStore struct {
	state *memState
	// failLinkRole makes CreateUserRole fail for that role id.
	failLinkRole int64
}

type memState struct {
	nextUserID int64
	users      map[int64]User
	roles      map[string]int64
	links      map[[2]int64]struct{}
}

func newMemStore(roles ...string) *memStore {
	st := &memState{
		users: make(map[int64]User),
		roles: make(map[string]int64),
		links: make(map[[2]int64]struct{}),
	}
	for i, r := range roles {
		st.roles[r] = int64(i + 1)
	}
	return &memStore{state: st}
}

func (s *memState) clone() *memState {
	c := &memState{
		nextUserID: s.nextUserID,
		users:      make(map[int64]User, len(s.users)),
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

func (m *memStore) CreateUser(_ context.Context, username, email, passwordHash string) (int64, error) {
	for _, u := range m.state.users {
		if u.Username == username || u.Email == email {
			return 0, apperr.New(apperr.Validation, "duplicate value", errors.New("unique violation"))
		}
	}
	m.state.nextUserID++
	id := m.state.nextUserID
	m.state.users[id] = User{ID: id, Username: username, Email: email, PasswordHash: passwordHash}
	return id, nil
}

func (m *memStore) CreateUserRole(_ context.Context, userID, roleID int64) error {
	if m.failLinkRole != 0 && roleID == m.failLinkRole {
		return apperr.Connectivityf(errors.New("connection reset"), "store unavailable")
	}
	m.state.links[[2]int64{userID, roleID}] = struct{}{}
	return nil
}

func (m *memStore) GetUserID(_ context.Context, username string) (int64, bool, error) {
	for id, u := range m.state.users {
		if u.Username == username {
			return id, true, nil
		}
	}
	return 0, false, nil
}

func (m *memStore) GetRoleID(_ context.Context, roleName string) (int64, bool, error) {
	id, ok := m.state.roles[roleName]
	return id, ok, nil
}

func (m *memStore) GetUserByUsername(_ context.Context, username string) (User, bool, error) {
	for _, u := range m.state.users {
		if u.Username == username {
			return u, true, nil
		}
	}
	return User{}, false, nil
}

func (m *memStore) GetUserByID(_ context.Context, id int64) (User, bool, error) {
	u, ok := m.state.users[id]
	return u, ok, nil
}

func (m *memStore) GetUserRoles(_ context.Context, userID int64) ([]string, error) {
	names := make([]string, 0)
	for name, roleID := range m.state.roles {
		if _, ok := m.state.links[[2]int64{userID, roleID}]; ok {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names, nil
}

func (m *memStore) UsernameExists(ctx context.Context, username string) (bool, error) {
	_, found, err := m.GetUserID(ctx, username)
	return found, err
}

func (m *memStore) EmailExists(_ context.Context, email string) (bool, error) {
	for _, u := range m.state.users {
		if u.Email == email {
			return true, nil
		}
	}
	return false, nil
}

func (m *memStore) WithinTx(ctx context.Context, fn func(ctx context.Context, tx Store) error) error {
	tx := &memStore{state: m.state.clone(), failLinkRole: m.failLinkRole}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	m.state = tx.state
	return nil
}

func (m *memStore) linkCount() int { return len(m.state.links) }
