package authkit

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PGAccountStore is the production AccountStore over PostgreSQL.
//
// Expected schema:
//
//	CREATE TABLE accounts (
//	    id            TEXT PRIMARY KEY,
//	    email         TEXT NOT NULL,
//	    name          TEXT NOT NULL DEFAULT '',
//	    password_hash TEXT NOT NULL,
//	    role          TEXT NOT NULL,
//	    active        BOOLEAN NOT NULL DEFAULT TRUE,
//	    created_at    TIMESTAMPTZ NOT NULL
//	);
//	CREATE UNIQUE INDEX accounts_email_idx ON accounts (LOWER(email));
type PGAccountStore struct {
	pool *pgxpool.Pool
}

var _ AccountStore = (*PGAccountStore)(nil)

// NewPGAccountStore wraps the connection pool.
func NewPGAccountStore(pool *pgxpool.Pool) *PGAccountStore {
	return &PGAccountStore{pool: pool}
}

const accountColumns = `id, email, name, password_hash, role, active, created_at`

func (s *PGAccountStore) FindByEmail(ctx context.Context, email string) (*Account, error) {
	q := `SELECT ` + accountColumns + ` FROM accounts WHERE LOWER(email) = LOWER($1)`
	return s.scanOne(s.pool.QueryRow(ctx, q, email))
}

func (s *PGAccountStore) FindByID(ctx context.Context, id string) (*Account, error) {
	q := `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1`
	return s.scanOne(s.pool.QueryRow(ctx, q, id))
}

func (s *PGAccountStore) scanOne(row pgx.Row) (*Account, error) {
	a := &Account{}
	err := row.Scan(&a.ID, &a.Email, &a.Name, &a.PasswordHash, &a.Role, &a.Active, &a.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan account: %w", err)
	}
	return a, nil
}

func (s *PGAccountStore) Create(ctx context.Context, a *Account) error {
	const q = `
		INSERT INTO accounts (id, email, name, password_hash, role, active, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := s.pool.Exec(ctx, q, a.ID, a.Email, a.Name, a.PasswordHash,
		a.Role, a.Active, a.CreatedAt)
	if err != nil {
		return fmt.Errorf("create account: %w", err)
	}
	return nil
}

func (s *PGAccountStore) UpdatePasswordHash(ctx context.Context, id, hash string) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE accounts SET password_hash = $2 WHERE id = $1`, id, hash)
	if err != nil {
		return fmt.Errorf("update password hash: %w", err)
	}
	return nil
}

func (s *PGAccountStore) SetActive(ctx context.Context, id string, active bool) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE accounts SET active = $2 WHERE id = $1`, id, active)
	if err != nil {
		return fmt.Errorf("set account active: %w", err)
	}
	return nil
}
