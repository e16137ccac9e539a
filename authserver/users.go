package authserver

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"
)

var (
	// ErrDuplicateEmail is returned when creating a user whose email is taken
	ErrDuplicateEmail = errors.New("email already exists")

	// ErrUserNotFound is returned when no user has the given email
	ErrUserNotFound = errors.New("user not found")
)

// User is an account known to the dev auth server
type User struct {
	Email        string
	PasswordHash string
	CreatedAt    time.Time
}

// UserStore persists accounts
type UserStore interface {
	CreateUser(ctx context.Context, user User) error
	FindUserByEmail(ctx context.Context, email string) (*User, error)
}

// NormalizeEmail is the form emails are stored and looked up in
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// MemoryUserStore keeps users in a map. Used by tests and by default.
type MemoryUserStore struct {
	mu    sync.RWMutex
	users map[string]User
}

var _ UserStore = (*MemoryUserStore)(nil)

func NewMemoryUserStore() *MemoryUserStore {
	return &MemoryUserStore{users: make(map[string]User)}
}

func (m *MemoryUserStore) CreateUser(ctx context.Context, user User) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := NormalizeEmail(user.Email)
	if _, exists := m.users[key]; exists {
		return ErrDuplicateEmail
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now()
	}
	m.users[key] = user
	return nil
}

func (m *MemoryUserStore) FindUserByEmail(ctx context.Context, email string) (*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	user, exists := m.users[NormalizeEmail(email)]
	if !exists {
		return nil, ErrUserNotFound
	}
	return &user, nil
}
