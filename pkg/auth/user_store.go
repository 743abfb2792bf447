package auth

import (
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// UserStore manages account records in memory. Serialize/Load round-trip
// the whole store through the passwd-like line format.
type UserStore struct {
	mu    sync.RWMutex
	users map[string]*User // username -> user
}

// NewUserStore creates an empty user store
func NewUserStore() *UserStore {
	return &UserStore{
		users: make(map[string]*User),
	}
}

// CreateUser creates a user with a bcrypt credential
func (s *UserStore) CreateUser(username, password string, flags ...string) (*User, error) {
	user, err := NewUser(username, password, flags...)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.users[username]; exists {
		return nil, fmt.Errorf("%w: %s", ErrUserExists, username)
	}
	s.users[username] = user
	return user, nil
}

// GetUser retrieves a user by username
func (s *UserStore) GetUser(username string) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, exists := s.users[username]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrUserNotFound, username)
	}
	return user, nil
}

// DeleteUser removes a user by username
func (s *UserStore) DeleteUser(username string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.users[username]; !exists {
		return fmt.Errorf("%w: %s", ErrUserNotFound, username)
	}
	delete(s.users, username)
	return nil
}

// Authenticate checks a username/password pair
func (s *UserStore) Authenticate(username, password string) (*User, error) {
	user, err := s.GetUser(username)
	if err != nil {
		// Same error for unknown user and wrong password
		return nil, ErrInvalidCredentials
	}
	if !user.Credential.Matches(password) {
		return nil, ErrInvalidCredentials
	}
	return user, nil
}

// ListUsers returns all users ordered by username
func (s *UserStore) ListUsers() []*User {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*User, 0, len(s.users))
	for _, user := range s.users {
		out = append(out, user)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Username < out[j].Username
	})
	return out
}

// Serialize renders the whole store in the line format
func (s *UserStore) Serialize() []byte {
	return SerializeUsers(s.ListUsers())
}

// Load replaces the store's contents with the deserialized records
func (s *UserStore) Load(data []byte) error {
	users, err := DeserializeUsers(data)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.users = make(map[string]*User, len(users))
	for _, user := range users {
		s.users[user.Username] = user
	}
	return nil
}

// NewUserWithCredential creates a user around an existing credential,
// used when rehydrating serialized records
func NewUserWithCredential(username string, cred Credential, flags ...string) (*User, error) {
	if err := validateUsername(username); err != nil {
		return nil, err
	}
	return &User{
		ID:         uuid.New().String(),
		Username:   username,
		Credential: cred,
		Flags:      flags,
	}, nil
}
