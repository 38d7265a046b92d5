package session

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Table is the durable tier. It is the source of truth: the in-process map
// may be dropped at any time and rebuilt from here. Implementations must be
// safe for concurrent use.
type Table interface {
	Insert(ctx context.Context, s *Session) error
	// Get returns nil, nil when the session does not exist.
	Get(ctx context.Context, id string) (*Session, error)
	Touch(ctx context.Context, id string, at time.Time) error
	// Delete is idempotent.
	Delete(ctx context.Context, id string) error
	// ListByAccount returns live sessions ordered by last activity,
	// most recent first.
	ListByAccount(ctx context.Context, accountID string) ([]*Session, error)
	// DeleteInactiveSince removes every session whose last activity is
	// older than the cutoff and returns how many were removed.
	DeleteInactiveSince(ctx context.Context, cutoff time.Time) (int, error)
}

// MemoryTable is a Table kept entirely in memory. It backs tests and local
// development; production uses PGTable.
type MemoryTable struct {
	mu   sync.Mutex
	rows map[string]Session
}

// NewMemoryTable returns an empty MemoryTable.
func NewMemoryTable() *MemoryTable {
	return &MemoryTable{rows: make(map[string]Session)}
}

func (m *MemoryTable) Insert(_ context.Context, s *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows[s.ID] = *s
	return nil
}

func (m *MemoryTable) Get(_ context.Context, id string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[id]
	if !ok {
		return nil, nil
	}
	out := row
	return &out, nil
}

func (m *MemoryTable) Touch(_ context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if row, ok := m.rows[id]; ok {
		row.LastActivity = at
		m.rows[id] = row
	}
	return nil
}

func (m *MemoryTable) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.rows, id)
	return nil
}

func (m *MemoryTable) ListByAccount(_ context.Context, accountID string) ([]*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	var out []*Session
	for _, row := range m.rows {
		if row.AccountID != accountID || now.After(row.ExpiresAt) {
			continue
		}
		copied := row
		out = append(out, &copied)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].LastActivity.After(out[j].LastActivity)
	})
	return out, nil
}

func (m *MemoryTable) DeleteInactiveSince(_ context.Context, cutoff time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for id, row := range m.rows {
		if row.LastActivity.Before(cutoff) {
			delete(m.rows, id)
			n++
		}
	}
	return n, nil
}
