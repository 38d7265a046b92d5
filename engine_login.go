package authkit

import (
	"context"

	"go.uber.org/zap"

	"github.com/zenith-platform/authkit/device"
	"github.com/zenith-platform/authkit/twofactor"
)

// Login authenticates the account by email and password. When the account
// has an active second factor and the presenting device is not trusted,
// Login returns ErrSecondFactorRequired together with a result carrying
// the challenge (AccountID and MethodHint, no tokens); the caller then
// finishes with CompleteSecondFactor.
func (e *Engine) Login(ctx context.Context, email, plaintext string, rememberMe bool, dev RequestDevice) (*LoginResult, error) {
	if err := e.rateGate(ctx, "login", email); err != nil {
		return nil, err
	}

	acct, err := e.accounts.FindByEmail(ctx, email)
	if err != nil {
		return nil, e.infra(ctx, "find account", err)
	}
	if acct == nil || !e.hasher.Verify(plaintext, acct.PasswordHash) {
		// Same failure surface whether the account exists or not.
		e.metrics.Logins.WithLabelValues("invalid_credentials").Inc()
		e.emit(ctx, SecurityEvent{
			EventType: EventLoginFailed,
			Metadata:  map[string]string{"reason": "credentials"},
		})
		return nil, ErrInvalidCredentials
	}
	if !acct.Active {
		// Deactivated accounts fail exactly like bad credentials; only
		// the event stream records the real reason.
		e.metrics.Logins.WithLabelValues("invalid_credentials").Inc()
		e.emit(ctx, SecurityEvent{
			EventType: EventLoginFailed,
			AccountID: acct.ID,
			Metadata:  map[string]string{"reason": "deactivated"},
		})
		return nil, ErrInvalidCredentials
	}

	e.maybeRehash(ctx, acct, plaintext)

	required, err := e.secondFactorRequired(ctx, acct.ID, dev)
	if err != nil {
		return nil, err
	}
	if required {
		e.metrics.Logins.WithLabelValues("second_factor_required").Inc()
		return &LoginResult{
			AccountID:            acct.ID,
			SecondFactorRequired: true,
			MethodHint:           MethodApp,
		}, ErrSecondFactorRequired
	}

	return e.finishLogin(ctx, acct, rememberMe, dev, EventLogin)
}

// maybeRehash upgrades a hash written at a weaker cost than the current
// one, using the plaintext already in hand. Failures are logged and
// swallowed; the login stands either way.
func (e *Engine) maybeRehash(ctx context.Context, acct *Account, plaintext string) {
	if !e.hasher.NeedsRehash(acct.PasswordHash) {
		return
	}
	hash, err := e.hasher.Hash(plaintext)
	if err != nil {
		return
	}
	if err := e.accounts.UpdatePasswordHash(ctx, acct.ID, hash); err != nil {
		e.log.Warn("password hash upgrade failed",
			zap.String("account_id", acct.ID), zap.Error(err))
		return
	}
	acct.PasswordHash = hash
}

// secondFactorRequired reports whether the login must be stepped up: the
// account has an active second factor and the presented device id does not
// resolve to a live trusted device.
func (e *Engine) secondFactorRequired(ctx context.Context, accountID string, dev RequestDevice) (bool, error) {
	if e.second == nil {
		return false, nil
	}
	state, err := e.second.Status(ctx, accountID)
	if err != nil {
		return false, e.infra(ctx, "two-factor status", err)
	}
	if state.Status != twofactor.StatusActive {
		return false, nil
	}

	if e.devices != nil && dev.DeviceID != "" {
		trusted, err := e.devices.Verify(ctx, dev.DeviceID, accountID)
		if err != nil {
			return false, e.infra(ctx, "verify device", err)
		}
		if trusted != nil {
			return false, nil
		}
		e.emit(ctx, SecurityEvent{
			EventType: EventDeviceExpired,
			AccountID: accountID,
			Metadata:  map[string]string{"device_id": dev.DeviceID},
		})
	}
	return true, nil
}

// CompleteSecondFactor finishes a stepped-up login. The method is an
// explicit tag; a code is only ever checked against the verifier the caller
// named. On success the login tail runs exactly as in Login, optionally
// trusting the device first.
func (e *Engine) CompleteSecondFactor(ctx context.Context, accountID string, method SecondFactorMethod, code string, trustDevice, rememberMe bool, dev RequestDevice) (*LoginResult, error) {
	if err := e.rateGate(ctx, "second_factor", accountID); err != nil {
		return nil, err
	}

	acct, err := e.accounts.FindByID(ctx, accountID)
	if err != nil {
		return nil, e.infra(ctx, "find account", err)
	}
	if acct == nil || e.second == nil {
		return nil, ErrInvalidSecondFactor
	}
	if !acct.Active {
		return nil, ErrInvalidCredentials
	}

	var ok bool
	switch method {
	case MethodApp:
		ok, err = e.second.VerifyTOTP(ctx, accountID, code)
	case MethodEmail:
		ok, err = e.second.VerifyEmailOTP(ctx, accountID, code)
	case MethodRecovery:
		ok, err = e.second.ConsumeRecoveryCode(ctx, accountID, code)
	default:
		return nil, ErrInvalidSecondFactor
	}
	if err != nil {
		return nil, e.infra(ctx, "verify second factor", err)
	}
	if !ok {
		e.metrics.SecondFactorFails.Inc()
		eventType := EventSecondFactorFailed
		if method == MethodRecovery {
			// A failed recovery code is indistinguishable from a
			// replay of a spent one; record it as a reuse attempt.
			eventType = EventRecoveryCodeReuse
		}
		e.emit(ctx, SecurityEvent{
			EventType: eventType,
			AccountID: accountID,
			Metadata:  map[string]string{"method": string(method)},
		})
		return nil, ErrInvalidSecondFactor
	}
	if method == MethodRecovery {
		e.emit(ctx, SecurityEvent{
			EventType: EventRecoveryCodeUsed,
			AccountID: accountID,
			Success:   true,
		})
	}

	trustedID := ""
	if trustDevice && e.devices != nil {
		d, err := e.devices.Register(ctx, accountID, dev.UserAgent, dev.IP, "", device.TrustLoginOnly)
		if err != nil {
			// Trust is a convenience; the login itself stands.
			e.log.Warn("device trust registration failed", zap.Error(err))
		} else {
			trustedID = d.ID
			e.metrics.DevicesTrusted.Inc()
			e.emit(ctx, SecurityEvent{
				EventType: EventDeviceTrusted,
				AccountID: accountID,
				Success:   true,
				Metadata:  map[string]string{"trust_level": string(d.Trust)},
			})
		}
	}

	result, err := e.finishLogin(ctx, acct, rememberMe, dev, EventLogin)
	if err != nil {
		return nil, err
	}
	result.TrustedDeviceID = trustedID
	return result, nil
}

// RequestEmailCode sends a one-time email code for a pending stepped-up
// login. The account's address is resolved server-side; callers never pick
// the destination.
func (e *Engine) RequestEmailCode(ctx context.Context, accountID string) error {
	if err := e.rateGate(ctx, "email_code", accountID); err != nil {
		return err
	}
	if e.second == nil {
		return ErrInvalidSecondFactor
	}
	acct, err := e.accounts.FindByID(ctx, accountID)
	if err != nil {
		return e.infra(ctx, "find account", err)
	}
	if acct == nil {
		return ErrInvalidSecondFactor
	}
	if err := e.second.SendEmailOTP(ctx, accountID, acct.Email); err != nil {
		return e.infra(ctx, "send email code", err)
	}
	return nil
}
