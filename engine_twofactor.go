package authkit

import (
	"context"
	"errors"

	"github.com/zenith-platform/authkit/twofactor"
)

// BeginTwoFactorSetup provisions a TOTP secret for the account and returns
// the enrollment material. Confirmation must follow within the setup
// window or the secret is discarded.
func (e *Engine) BeginTwoFactorSetup(ctx context.Context, accountID string) (*twofactor.Setup, error) {
	if e.second == nil {
		return nil, ErrInvalidSecondFactor
	}
	acct, err := e.accounts.FindByID(ctx, accountID)
	if err != nil {
		return nil, e.infra(ctx, "find account", err)
	}
	if acct == nil {
		return nil, ErrInvalidCredentials
	}

	setup, err := e.second.BeginSetup(ctx, accountID, acct.Email)
	if err != nil {
		if errors.Is(err, twofactor.ErrAlreadyActive) {
			return nil, ErrInvalidSecondFactor
		}
		return nil, e.infra(ctx, "begin two-factor setup", err)
	}
	return setup, nil
}

// ConfirmTwoFactorSetup activates the second factor with the first valid
// code and returns the recovery codes, shown to the member exactly once.
func (e *Engine) ConfirmTwoFactorSetup(ctx context.Context, accountID, code string) ([]string, error) {
	if e.second == nil {
		return nil, ErrInvalidSecondFactor
	}
	codes, err := e.second.ConfirmSetup(ctx, accountID, code)
	if err != nil {
		switch {
		case errors.Is(err, twofactor.ErrInvalidCode),
			errors.Is(err, twofactor.ErrNotPending),
			errors.Is(err, twofactor.ErrSetupExpired):
			e.metrics.SecondFactorFails.Inc()
			e.emit(ctx, SecurityEvent{
				EventType: EventSecondFactorFailed,
				AccountID: accountID,
				Metadata:  map[string]string{"stage": "setup"},
			})
			return nil, ErrInvalidSecondFactor
		}
		return nil, e.infra(ctx, "confirm two-factor setup", err)
	}

	e.emit(ctx, SecurityEvent{
		EventType: EventTwoFactorEnabled,
		AccountID: accountID,
		Success:   true,
	})
	return codes, nil
}

// DisableTwoFactor removes the account's second factor and withdraws trust
// from all its devices; trust only existed to skip that factor.
func (e *Engine) DisableTwoFactor(ctx context.Context, accountID string) error {
	if e.second == nil {
		return nil
	}
	if err := e.second.Disable(ctx, accountID); err != nil {
		return e.infra(ctx, "disable two-factor", err)
	}
	if e.devices != nil {
		if _, err := e.devices.RevokeAll(ctx, accountID); err != nil {
			return e.infra(ctx, "revoke devices", err)
		}
	}
	e.emit(ctx, SecurityEvent{
		EventType: EventTwoFactorDisabled,
		AccountID: accountID,
		Success:   true,
	})
	return nil
}

// TwoFactorStatus reports the account's second-factor state for settings
// screens.
func (e *Engine) TwoFactorStatus(ctx context.Context, accountID string) (twofactor.State, error) {
	if e.second == nil {
		return twofactor.State{Status: twofactor.StatusDisabled}, nil
	}
	state, err := e.second.Status(ctx, accountID)
	if err != nil {
		return twofactor.State{}, e.infra(ctx, "two-factor status", err)
	}
	return state, nil
}
