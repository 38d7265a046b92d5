package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PGTable implements Table over the sessions table. Schema:
//
//	CREATE TABLE sessions (
//	    id               UUID PRIMARY KEY,
//	    account_id       UUID NOT NULL,
//	    user_agent       TEXT,
//	    ip_address       TEXT,
//	    created_at       TIMESTAMPTZ NOT NULL,
//	    last_activity_at TIMESTAMPTZ NOT NULL,
//	    expires_at       TIMESTAMPTZ NOT NULL
//	);
//	CREATE INDEX sessions_account_idx ON sessions (account_id, last_activity_at DESC);
type PGTable struct {
	db *pgxpool.Pool
}

// NewPGTable wraps an existing pool; migration is owned elsewhere.
func NewPGTable(db *pgxpool.Pool) *PGTable {
	return &PGTable{db: db}
}

func (t *PGTable) Insert(ctx context.Context, s *Session) error {
	_, err := t.db.Exec(ctx, `
		INSERT INTO sessions (id, account_id, user_agent, ip_address, created_at, last_activity_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		s.ID, s.AccountID, s.UserAgent, s.IPAddress, s.CreatedAt, s.LastActivity, s.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

func (t *PGTable) Get(ctx context.Context, id string) (*Session, error) {
	s := &Session{}
	err := t.db.QueryRow(ctx, `
		SELECT id, account_id, user_agent, ip_address, created_at, last_activity_at, expires_at
		FROM sessions WHERE id = $1`, id,
	).Scan(&s.ID, &s.AccountID, &s.UserAgent, &s.IPAddress, &s.CreatedAt, &s.LastActivity, &s.ExpiresAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get session: %w", err)
	}
	return s, nil
}

func (t *PGTable) Touch(ctx context.Context, id string, at time.Time) error {
	_, err := t.db.Exec(ctx,
		`UPDATE sessions SET last_activity_at = $2 WHERE id = $1`, id, at)
	if err != nil {
		return fmt.Errorf("touch session: %w", err)
	}
	return nil
}

func (t *PGTable) Delete(ctx context.Context, id string) error {
	_, err := t.db.Exec(ctx, `DELETE FROM sessions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

func (t *PGTable) ListByAccount(ctx context.Context, accountID string) ([]*Session, error) {
	rows, err := t.db.Query(ctx, `
		SELECT id, account_id, user_agent, ip_address, created_at, last_activity_at, expires_at
		FROM sessions
		WHERE account_id = $1 AND expires_at > now()
		ORDER BY last_activity_at DESC`, accountID)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var out []*Session
	for rows.Next() {
		s := &Session{}
		if err := rows.Scan(&s.ID, &s.AccountID, &s.UserAgent, &s.IPAddress,
			&s.CreatedAt, &s.LastActivity, &s.ExpiresAt); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (t *PGTable) DeleteInactiveSince(ctx context.Context, cutoff time.Time) (int, error) {
	tag, err := t.db.Exec(ctx,
		`DELETE FROM sessions WHERE last_activity_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("sweep sessions: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

var _ Table = (*PGTable)(nil)
