package authkit

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/zenith-platform/authkit/role"
)

// Account is a platform member as the auth core sees it. Profile fields
// beyond what authentication needs live elsewhere. Accounts are never
// hard-deleted; a removed member is carried with Active false and refused
// at login.
type Account struct {
	ID           string
	Email        string
	Name         string
	PasswordHash string
	Role         role.Role
	Active       bool
	CreatedAt    time.Time
}

// AccountStore persists accounts. Implementations must be safe for
// concurrent use.
type AccountStore interface {
	// FindByEmail returns nil, nil when no account matches. Lookup is
	// case-insensitive on the email.
	FindByEmail(ctx context.Context, email string) (*Account, error)
	// FindByID returns nil, nil when the account does not exist.
	FindByID(ctx context.Context, id string) (*Account, error)
	Create(ctx context.Context, a *Account) error
	UpdatePasswordHash(ctx context.Context, id, hash string) error
	// SetActive flips the soft-delete flag. Unknown ids are a no-op.
	SetActive(ctx context.Context, id string, active bool) error
}

// MemoryAccountStore is an AccountStore kept in memory, for tests and local
// development.
type MemoryAccountStore struct {
	mu   sync.Mutex
	rows map[string]Account // keyed by id
}

// NewMemoryAccountStore returns an empty MemoryAccountStore.
func NewMemoryAccountStore() *MemoryAccountStore {
	return &MemoryAccountStore{rows: make(map[string]Account)}
}

func (m *MemoryAccountStore) FindByEmail(_ context.Context, email string) (*Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	needle := strings.ToLower(email)
	for _, row := range m.rows {
		if strings.ToLower(row.Email) == needle {
			out := row
			return &out, nil
		}
	}
	return nil, nil
}

func (m *MemoryAccountStore) FindByID(_ context.Context, id string) (*Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[id]
	if !ok {
		return nil, nil
	}
	out := row
	return &out, nil
}

func (m *MemoryAccountStore) Create(_ context.Context, a *Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows[a.ID] = *a
	return nil
}

func (m *MemoryAccountStore) UpdatePasswordHash(_ context.Context, id, hash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if row, ok := m.rows[id]; ok {
		row.PasswordHash = hash
		m.rows[id] = row
	}
	return nil
}

func (m *MemoryAccountStore) SetActive(_ context.Context, id string, active bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if row, ok := m.rows[id]; ok {
		row.Active = active
		m.rows[id] = row
	}
	return nil
}
