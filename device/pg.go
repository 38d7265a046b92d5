package device

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PGStore is the production Store over PostgreSQL.
//
// Expected schema:
//
//	CREATE TABLE trusted_devices (
//	    id           TEXT PRIMARY KEY,
//	    account_id   TEXT NOT NULL,
//	    name         TEXT NOT NULL DEFAULT '',
//	    user_agent   TEXT NOT NULL DEFAULT '',
//	    ip_address   TEXT NOT NULL DEFAULT '',
//	    trust_level  TEXT NOT NULL,
//	    created_at   TIMESTAMPTZ NOT NULL,
//	    last_used_at TIMESTAMPTZ NOT NULL,
//	    expires_at   TIMESTAMPTZ NOT NULL
//	);
//	CREATE INDEX trusted_devices_account_idx ON trusted_devices (account_id);
type PGStore struct {
	pool *pgxpool.Pool
}

var _ Store = (*PGStore)(nil)

// NewPGStore wraps the connection pool.
func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

func (s *PGStore) Insert(ctx context.Context, d *Device) error {
	const q = `
		INSERT INTO trusted_devices (id, account_id, name, user_agent,
		                             ip_address, trust_level, created_at,
		                             last_used_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err := s.pool.Exec(ctx, q, d.ID, d.AccountID, d.Name, d.UserAgent,
		d.IPAddress, d.Trust, d.CreatedAt, d.LastUsed, d.ExpiresAt)
	if err != nil {
		return fmt.Errorf("insert trusted device: %w", err)
	}
	return nil
}

func (s *PGStore) Get(ctx context.Context, id string) (*Device, error) {
	const q = `
		SELECT id, account_id, name, user_agent, ip_address, trust_level,
		       created_at, last_used_at, expires_at
		FROM trusted_devices
		WHERE id = $1`

	d := &Device{}
	err := s.pool.QueryRow(ctx, q, id).Scan(
		&d.ID, &d.AccountID, &d.Name, &d.UserAgent, &d.IPAddress,
		&d.Trust, &d.CreatedAt, &d.LastUsed, &d.ExpiresAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get trusted device: %w", err)
	}
	return d, nil
}

func (s *PGStore) Touch(ctx context.Context, id string, at time.Time) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE trusted_devices SET last_used_at = $2 WHERE id = $1`, id, at)
	if err != nil {
		return fmt.Errorf("touch trusted device: %w", err)
	}
	return nil
}

func (s *PGStore) Delete(ctx context.Context, id string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM trusted_devices WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete trusted device: %w", err)
	}
	return nil
}

func (s *PGStore) DeleteByAccount(ctx context.Context, accountID string) (int, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM trusted_devices WHERE account_id = $1`, accountID)
	if err != nil {
		return 0, fmt.Errorf("delete account devices: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func (s *PGStore) ListByAccount(ctx context.Context, accountID string) ([]*Device, error) {
	const q = `
		SELECT id, account_id, name, user_agent, ip_address, trust_level,
		       created_at, last_used_at, expires_at
		FROM trusted_devices
		WHERE account_id = $1
		ORDER BY last_used_at DESC`

	rows, err := s.pool.Query(ctx, q, accountID)
	if err != nil {
		return nil, fmt.Errorf("list trusted devices: %w", err)
	}
	defer rows.Close()

	var out []*Device
	for rows.Next() {
		d := &Device{}
		if err := rows.Scan(&d.ID, &d.AccountID, &d.Name, &d.UserAgent,
			&d.IPAddress, &d.Trust, &d.CreatedAt, &d.LastUsed,
			&d.ExpiresAt); err != nil {
			return nil, fmt.Errorf("scan trusted device: %w", err)
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list trusted devices: %w", err)
	}
	return out, nil
}
