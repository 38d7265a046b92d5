package twofactor

import (
	"context"
	"sync"
	"time"
)

// Status is the lifecycle state of an account's second factor.
type Status string

const (
	// StatusDisabled means no second factor is configured.
	StatusDisabled Status = "disabled"
	// StatusPending means a secret was provisioned but never confirmed
	// with a valid code. Pending setups expire.
	StatusPending Status = "pending"
	// StatusActive means the second factor is enforced at login.
	StatusActive Status = "active"
)

// Record is everything persisted for one account's second factor. Only
// hashes are stored: the TOTP secret is the single secret-material field,
// and it is required by the algorithm itself.
type Record struct {
	AccountID     string
	Status        Status
	Secret        string // base32 TOTP secret
	PendingSince  time.Time
	RecoveryCodes []string // sha256 hex digests, removed as consumed
	EmailOTPHash  string   // sha256 hex digest, empty when none pending
	EmailOTPSent  time.Time
	UpdatedAt     time.Time
}

// Store persists second-factor records. Implementations must be safe for
// concurrent use.
type Store interface {
	// Get returns nil, nil when the account has no record.
	Get(ctx context.Context, accountID string) (*Record, error)
	Put(ctx context.Context, rec *Record) error
	// Delete is idempotent.
	Delete(ctx context.Context, accountID string) error
}

// MemoryStore is a Store kept in memory, for tests and local development.
type MemoryStore struct {
	mu   sync.Mutex
	rows map[string]Record
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{rows: make(map[string]Record)}
}

func (m *MemoryStore) Get(_ context.Context, accountID string) (*Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[accountID]
	if !ok {
		return nil, nil
	}
	out := row
	out.RecoveryCodes = append([]string(nil), row.RecoveryCodes...)
	return &out, nil
}

func (m *MemoryStore) Put(_ context.Context, rec *Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	row := *rec
	row.RecoveryCodes = append([]string(nil), rec.RecoveryCodes...)
	m.rows[rec.AccountID] = row
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, accountID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.rows, accountID)
	return nil
}
