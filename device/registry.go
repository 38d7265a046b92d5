// Package device remembers browsers a member has chosen to trust, so the
// second factor is skipped on machines they have already proven.
package device

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// TrustTTL is how long a device stays trusted after registration.
const TrustTTL = 30 * 24 * time.Hour

// Registry issues and verifies device trust against a Store.
type Registry struct {
	store Store
	log   *zap.Logger
	now   func() time.Time
}

// NewRegistry builds a Registry; log may be nil.
func NewRegistry(store Store, log *zap.Logger) *Registry {
	if log == nil {
		log = zap.NewNop()
	}
	return &Registry{store: store, log: log, now: time.Now}
}

// Register trusts the current device for the account and returns it. The id
// is a digest over the account, the client signature and fresh randomness,
// so it is unguessable and never collides across accounts.
func (r *Registry) Register(ctx context.Context, accountID, userAgent, ip, name string, trust TrustLevel) (*Device, error) {
	if !trust.Valid() {
		return nil, fmt.Errorf("device: unknown trust level %q", trust)
	}

	nonce := make([]byte, 16)
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("device: generate id: %w", err)
	}
	now := r.now()
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%s|%x|%d",
		accountID, userAgent, nonce, now.UnixNano())))

	d := &Device{
		ID:        hex.EncodeToString(sum[:]),
		AccountID: accountID,
		Name:      name,
		UserAgent: userAgent,
		IPAddress: ip,
		Trust:     trust,
		CreatedAt: now,
		LastUsed:  now,
		ExpiresAt: now.Add(TrustTTL),
	}
	if err := r.store.Insert(ctx, d); err != nil {
		return nil, fmt.Errorf("device: register: %w", err)
	}

	r.log.Info("device trusted",
		zap.String("account_id", accountID),
		zap.String("trust_level", string(trust)))
	return d, nil
}

// Verify resolves a device id presented by the client. It returns nil when
// the device is unknown, expired or belongs to another account; expired
// records are deleted on the spot. A live hit advances last use.
func (r *Registry) Verify(ctx context.Context, id, accountID string) (*Device, error) {
	if id == "" {
		return nil, nil
	}
	d, err := r.store.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("device: verify: %w", err)
	}
	if d == nil || d.AccountID != accountID {
		return nil, nil
	}

	now := r.now()
	if now.After(d.ExpiresAt) {
		if err := r.store.Delete(ctx, id); err != nil {
			return nil, fmt.Errorf("device: drop expired: %w", err)
		}
		return nil, nil
	}

	if err := r.store.Touch(ctx, id, now); err != nil {
		return nil, fmt.Errorf("device: touch: %w", err)
	}
	d.LastUsed = now
	return d, nil
}

// Revoke withdraws trust from one device.
func (r *Registry) Revoke(ctx context.Context, id string) error {
	if err := r.store.Delete(ctx, id); err != nil {
		return fmt.Errorf("device: revoke: %w", err)
	}
	return nil
}

// RevokeAll withdraws trust from every device the account has registered
// and returns how many there were.
func (r *Registry) RevokeAll(ctx context.Context, accountID string) (int, error) {
	n, err := r.store.DeleteByAccount(ctx, accountID)
	if err != nil {
		return 0, fmt.Errorf("device: revoke all: %w", err)
	}
	if n > 0 {
		r.log.Info("device trust revoked",
			zap.String("account_id", accountID), zap.Int("count", n))
	}
	return n, nil
}

// List returns the account's trusted devices, most recently used first.
func (r *Registry) List(ctx context.Context, accountID string) ([]*Device, error) {
	devices, err := r.store.ListByAccount(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("device: list: %w", err)
	}
	return devices, nil
}
