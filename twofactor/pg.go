package twofactor

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PGStore is the production Store over PostgreSQL.
//
// Expected schema:
//
//	CREATE TABLE two_factor (
//	    account_id        TEXT PRIMARY KEY,
//	    status            TEXT NOT NULL,
//	    secret            TEXT NOT NULL DEFAULT '',
//	    pending_since     TIMESTAMPTZ,
//	    recovery_codes    TEXT[] NOT NULL DEFAULT '{}',
//	    email_otp_hash    TEXT NOT NULL DEFAULT '',
//	    email_otp_sent_at TIMESTAMPTZ,
//	    updated_at        TIMESTAMPTZ NOT NULL
//	);
type PGStore struct {
	pool *pgxpool.Pool
}

var _ Store = (*PGStore)(nil)

// NewPGStore wraps the connection pool.
func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

func (s *PGStore) Get(ctx context.Context, accountID string) (*Record, error) {
	const q = `
		SELECT account_id, status, secret, pending_since, recovery_codes,
		       email_otp_hash, email_otp_sent_at, updated_at
		FROM two_factor
		WHERE account_id = $1`

	rec := &Record{}
	err := s.pool.QueryRow(ctx, q, accountID).Scan(
		&rec.AccountID, &rec.Status, &rec.Secret, &rec.PendingSince,
		&rec.RecoveryCodes, &rec.EmailOTPHash, &rec.EmailOTPSent,
		&rec.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get two-factor record: %w", err)
	}
	return rec, nil
}

func (s *PGStore) Put(ctx context.Context, rec *Record) error {
	const q = `
		INSERT INTO two_factor (account_id, status, secret, pending_since,
		                        recovery_codes, email_otp_hash,
		                        email_otp_sent_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (account_id) DO UPDATE SET
		    status            = EXCLUDED.status,
		    secret            = EXCLUDED.secret,
		    pending_since     = EXCLUDED.pending_since,
		    recovery_codes    = EXCLUDED.recovery_codes,
		    email_otp_hash    = EXCLUDED.email_otp_hash,
		    email_otp_sent_at = EXCLUDED.email_otp_sent_at,
		    updated_at        = EXCLUDED.updated_at`

	_, err := s.pool.Exec(ctx, q, rec.AccountID, rec.Status, rec.Secret,
		rec.PendingSince, rec.RecoveryCodes, rec.EmailOTPHash,
		rec.EmailOTPSent, rec.UpdatedAt)
	if err != nil {
		return fmt.Errorf("put two-factor record: %w", err)
	}
	return nil
}

func (s *PGStore) Delete(ctx context.Context, accountID string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM two_factor WHERE account_id = $1`, accountID)
	if err != nil {
		return fmt.Errorf("delete two-factor record: %w", err)
	}
	return nil
}
