package authkit

import (
	"context"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/zenith-platform/authkit/role"
)

// Register creates an account and logs it straight in. New members start as
// students; elevated roles are assigned administratively, never at signup.
func (e *Engine) Register(ctx context.Context, email, name, plaintext string, rememberMe bool, dev RequestDevice) (*LoginResult, error) {
	if err := e.rateGate(ctx, "register", email); err != nil {
		return nil, err
	}

	email = strings.TrimSpace(email)
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, ErrInvalidCredentials
	}

	existing, err := e.accounts.FindByEmail(ctx, email)
	if err != nil {
		return nil, e.infra(ctx, "find account", err)
	}
	if existing != nil {
		return nil, ErrAccountExists
	}

	hash, err := e.hasher.Hash(plaintext)
	if err != nil {
		return nil, ErrInvalidCredentials
	}

	acct := &Account{
		ID:           uuid.NewString(),
		Email:        email,
		Name:         strings.TrimSpace(name),
		PasswordHash: hash,
		Role:         role.Student,
		Active:       true,
		CreatedAt:    time.Now(),
	}
	if err := e.accounts.Create(ctx, acct); err != nil {
		return nil, e.infra(ctx, "create account", err)
	}

	e.emit(ctx, SecurityEvent{
		EventType: EventRegistered,
		AccountID: acct.ID,
		Success:   true,
	})

	return e.finishLogin(ctx, acct, rememberMe, dev, EventLogin)
}

// ChangePassword rotates the account's credential after verifying the
// current one. Every other session of the account is revoked; the caller's
// own session, named by keepSessionID, survives.
func (e *Engine) ChangePassword(ctx context.Context, accountID, keepSessionID, current, next string) error {
	if err := e.rateGate(ctx, "change_password", accountID); err != nil {
		return err
	}

	acct, err := e.accounts.FindByID(ctx, accountID)
	if err != nil {
		return e.infra(ctx, "find account", err)
	}
	if acct == nil || !acct.Active || !e.hasher.Verify(current, acct.PasswordHash) {
		e.emit(ctx, SecurityEvent{
			EventType: EventLoginFailed,
			AccountID: accountID,
			Metadata:  map[string]string{"reason": "password_change"},
		})
		return ErrInvalidCredentials
	}

	hash, err := e.hasher.Hash(next)
	if err != nil {
		return ErrInvalidCredentials
	}
	if err := e.accounts.UpdatePasswordHash(ctx, accountID, hash); err != nil {
		return e.infra(ctx, "update password hash", err)
	}
	if _, err := e.RevokeOtherSessions(ctx, accountID, keepSessionID); err != nil {
		return err
	}

	e.emit(ctx, SecurityEvent{
		EventType: EventPasswordChanged,
		AccountID: accountID,
		SessionID: keepSessionID,
		Success:   true,
	})
	return nil
}

// DeactivateAccount soft-deletes the account: the row stays, logins are
// refused and every live session and trusted device is torn down.
func (e *Engine) DeactivateAccount(ctx context.Context, accountID string) error {
	acct, err := e.accounts.FindByID(ctx, accountID)
	if err != nil {
		return e.infra(ctx, "find account", err)
	}
	if acct == nil {
		return ErrInvalidCredentials
	}

	if err := e.accounts.SetActive(ctx, accountID, false); err != nil {
		return e.infra(ctx, "deactivate account", err)
	}
	if _, err := e.sessions.DestroyAll(ctx, accountID); err != nil {
		return e.infra(ctx, "destroy sessions", err)
	}
	if e.devices != nil {
		if _, err := e.devices.RevokeAll(ctx, accountID); err != nil {
			return e.infra(ctx, "revoke devices", err)
		}
	}

	e.emit(ctx, SecurityEvent{
		EventType: EventDeactivated,
		AccountID: accountID,
		Success:   true,
	})
	return nil
}

// ReactivateAccount reopens a deactivated account. Sessions and device
// trust are not restored; the member logs in fresh.
func (e *Engine) ReactivateAccount(ctx context.Context, accountID string) error {
	acct, err := e.accounts.FindByID(ctx, accountID)
	if err != nil {
		return e.infra(ctx, "find account", err)
	}
	if acct == nil {
		return ErrInvalidCredentials
	}

	if err := e.accounts.SetActive(ctx, accountID, true); err != nil {
		return e.infra(ctx, "reactivate account", err)
	}
	e.emit(ctx, SecurityEvent{
		EventType: EventReactivated,
		AccountID: accountID,
		Success:   true,
	})
	return nil
}
