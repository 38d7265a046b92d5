package device

import (
	"context"
	"sort"
	"sync"
	"time"
)

// TrustLevel is how far a trusted device's trust extends.
type TrustLevel string

const (
	// TrustLoginOnly skips the second factor at login and nothing else.
	TrustLoginOnly TrustLevel = "login_only"
	// TrustFullAccess additionally clears step-up checks on sensitive
	// operations.
	TrustFullAccess TrustLevel = "full_access"
)

// Valid reports whether the level is one of the defined values.
func (l TrustLevel) Valid() bool {
	return l == TrustLoginOnly || l == TrustFullAccess
}

// Device is one remembered browser or client.
type Device struct {
	ID        string     `json:"id"`
	AccountID string     `json:"account_id"`
	Name      string     `json:"name,omitempty"`
	UserAgent string     `json:"user_agent,omitempty"`
	IPAddress string     `json:"ip_address,omitempty"`
	Trust     TrustLevel `json:"trust_level"`
	CreatedAt time.Time  `json:"created_at"`
	LastUsed  time.Time  `json:"last_used"`
	ExpiresAt time.Time  `json:"expires_at"`
}

// Store persists trusted devices. Implementations must be safe for
// concurrent use.
type Store interface {
	Insert(ctx context.Context, d *Device) error
	// Get returns nil, nil when the device does not exist.
	Get(ctx context.Context, id string) (*Device, error)
	Touch(ctx context.Context, id string, at time.Time) error
	// Delete is idempotent.
	Delete(ctx context.Context, id string) error
	// DeleteByAccount removes every device for the account and returns
	// how many were removed.
	DeleteByAccount(ctx context.Context, accountID string) (int, error)
	// ListByAccount returns the account's devices, most recently used
	// first.
	ListByAccount(ctx context.Context, accountID string) ([]*Device, error)
}

// MemoryStore is a Store kept in memory, for tests and local development.
type MemoryStore struct {
	mu   sync.Mutex
	rows map[string]Device
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{rows: make(map[string]Device)}
}

func (m *MemoryStore) Insert(_ context.Context, d *Device) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows[d.ID] = *d
	return nil
}

func (m *MemoryStore) Get(_ context.Context, id string) (*Device, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[id]
	if !ok {
		return nil, nil
	}
	out := row
	return &out, nil
}

func (m *MemoryStore) Touch(_ context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if row, ok := m.rows[id]; ok {
		row.LastUsed = at
		m.rows[id] = row
	}
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.rows, id)
	return nil
}

func (m *MemoryStore) DeleteByAccount(_ context.Context, accountID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for id, row := range m.rows {
		if row.AccountID == accountID {
			delete(m.rows, id)
			n++
		}
	}
	return n, nil
}

func (m *MemoryStore) ListByAccount(_ context.Context, accountID string) ([]*Device, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Device
	for _, row := range m.rows {
		if row.AccountID != accountID {
			continue
		}
		copied := row
		out = append(out, &copied)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].LastUsed.After(out[j].LastUsed)
	})
	return out, nil
}
