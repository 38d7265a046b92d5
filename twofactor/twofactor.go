// Package twofactor implements the second authentication factor: app-based
// TOTP with recovery codes, plus a one-time email code fallback.
package twofactor

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
	"go.uber.org/zap"
)

const (
	// Issuer labels provisioned secrets in authenticator apps.
	Issuer = "Zenith Platform"

	// SetupWindow is how long a provisioned secret may sit unconfirmed
	// before confirmation is refused.
	SetupWindow = 15 * time.Minute

	// RecoveryCodeCount codes are issued on activation, each usable once.
	RecoveryCodeCount = 10

	// EmailOTPTTL bounds the email fallback code.
	EmailOTPTTL = 10 * time.Minute

	totpPeriod = 30
	totpSkew   = 1
)

var (
	// ErrAlreadyActive is returned when setup is begun for an account
	// whose second factor is already confirmed.
	ErrAlreadyActive = errors.New("twofactor: already active")
	// ErrNotPending is returned when confirmation is attempted without a
	// provisioned secret.
	ErrNotPending = errors.New("twofactor: no pending setup")
	// ErrSetupExpired is returned when the pending secret outlived the
	// setup window. Setup must be started over.
	ErrSetupExpired = errors.New("twofactor: setup window expired")
	// ErrInvalidCode is returned by ConfirmSetup for a wrong code; the
	// setup stays pending.
	ErrInvalidCode = errors.New("twofactor: invalid code")
	// ErrNotActive is returned by operations that require a confirmed
	// second factor.
	ErrNotActive = errors.New("twofactor: not active")
)

// Mailer delivers one-time codes out of band.
type Mailer interface {
	SendOTP(ctx context.Context, accountID, email, code string) error
}

// Setup is what BeginSetup hands back for the enrollment screen. The secret
// and URI are shown once and never stored in this form again.
type Setup struct {
	Secret string
	URI    string
}

// Engine drives the second-factor lifecycle against a Store.
type Engine struct {
	store  Store
	mailer Mailer
	log    *zap.Logger
	now    func() time.Time
}

// NewEngine builds an Engine. mailer may be nil if the email fallback is
// unused; log may be nil.
func NewEngine(store Store, mailer Mailer, log *zap.Logger) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine{store: store, mailer: mailer, log: log, now: time.Now}
}

// BeginSetup provisions a fresh TOTP secret and moves the account to
// pending. Restarting an unconfirmed setup replaces the previous secret.
func (e *Engine) BeginSetup(ctx context.Context, accountID, accountEmail string) (*Setup, error) {
	rec, err := e.store.Get(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if rec != nil && rec.Status == StatusActive {
		return nil, ErrAlreadyActive
	}

	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      Issuer,
		AccountName: accountEmail,
		Period:      totpPeriod,
		Digits:      otp.DigitsSix,
	})
	if err != nil {
		return nil, fmt.Errorf("generate totp secret: %w", err)
	}

	now := e.now()
	next := &Record{
		AccountID:    accountID,
		Status:       StatusPending,
		Secret:       key.Secret(),
		PendingSince: now,
		UpdatedAt:    now,
	}
	if err := e.store.Put(ctx, next); err != nil {
		return nil, err
	}

	e.log.Info("two-factor setup started", zap.String("account_id", accountID))
	return &Setup{Secret: key.Secret(), URI: key.URL()}, nil
}

// ConfirmSetup verifies the first code against the pending secret. On
// success the account goes active and the recovery codes are returned in
// plaintext, the only time they ever are. A wrong code leaves the setup
// pending.
func (e *Engine) ConfirmSetup(ctx context.Context, accountID, code string) ([]string, error) {
	rec, err := e.store.Get(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if rec == nil || rec.Status != StatusPending {
		return nil, ErrNotPending
	}
	if e.now().Sub(rec.PendingSince) > SetupWindow {
		if err := e.store.Delete(ctx, accountID); err != nil {
			return nil, err
		}
		return nil, ErrSetupExpired
	}
	if !e.validateTOTP(rec.Secret, code) {
		return nil, ErrInvalidCode
	}

	plain, hashes, err := generateRecoveryCodes(RecoveryCodeCount)
	if err != nil {
		return nil, err
	}

	rec.Status = StatusActive
	rec.PendingSince = time.Time{}
	rec.RecoveryCodes = hashes
	rec.UpdatedAt = e.now()
	if err := e.store.Put(ctx, rec); err != nil {
		return nil, err
	}

	e.log.Info("two-factor activated", zap.String("account_id", accountID))
	return plain, nil
}

// VerifyTOTP checks an authenticator code for an active account. The result
// is a bare boolean; callers learn nothing about why a code failed.
func (e *Engine) VerifyTOTP(ctx context.Context, accountID, code string) (bool, error) {
	rec, err := e.store.Get(ctx, accountID)
	if err != nil {
		return false, err
	}
	if rec == nil || rec.Status != StatusActive {
		return false, nil
	}
	return e.validateTOTP(rec.Secret, code), nil
}

// ConsumeRecoveryCode burns one recovery code. Each code works exactly once.
func (e *Engine) ConsumeRecoveryCode(ctx context.Context, accountID, code string) (bool, error) {
	rec, err := e.store.Get(ctx, accountID)
	if err != nil {
		return false, err
	}
	if rec == nil || rec.Status != StatusActive {
		return false, nil
	}

	digest := hashCode(code)
	for i, stored := range rec.RecoveryCodes {
		if subtle.ConstantTimeCompare([]byte(stored), []byte(digest)) == 1 {
			rec.RecoveryCodes = append(rec.RecoveryCodes[:i], rec.RecoveryCodes[i+1:]...)
			rec.UpdatedAt = e.now()
			if err := e.store.Put(ctx, rec); err != nil {
				return false, err
			}
			e.log.Info("recovery code consumed",
				zap.String("account_id", accountID),
				zap.Int("remaining", len(rec.RecoveryCodes)))
			return true, nil
		}
	}
	return false, nil
}

// SendEmailOTP generates a fallback code, stores only its hash and mails the
// plaintext. A new code replaces any outstanding one.
func (e *Engine) SendEmailOTP(ctx context.Context, accountID, email string) error {
	if e.mailer == nil {
		return errors.New("twofactor: no mailer configured")
	}
	rec, err := e.store.Get(ctx, accountID)
	if err != nil {
		return err
	}
	if rec == nil || rec.Status != StatusActive {
		return ErrNotActive
	}

	code, err := numericCode(6)
	if err != nil {
		return err
	}
	rec.EmailOTPHash = hashCode(code)
	rec.EmailOTPSent = e.now()
	rec.UpdatedAt = rec.EmailOTPSent
	if err := e.store.Put(ctx, rec); err != nil {
		return err
	}
	if err := e.mailer.SendOTP(ctx, accountID, email, code); err != nil {
		return fmt.Errorf("send email otp: %w", err)
	}
	return nil
}

// VerifyEmailOTP checks the outstanding email code. A correct code is
// cleared so it cannot be replayed; a wrong one is kept so the user may
// retry until it expires.
func (e *Engine) VerifyEmailOTP(ctx context.Context, accountID, code string) (bool, error) {
	rec, err := e.store.Get(ctx, accountID)
	if err != nil {
		return false, err
	}
	if rec == nil || rec.EmailOTPHash == "" {
		return false, nil
	}
	if e.now().Sub(rec.EmailOTPSent) > EmailOTPTTL {
		return false, nil
	}
	if subtle.ConstantTimeCompare([]byte(rec.EmailOTPHash), []byte(hashCode(code))) != 1 {
		return false, nil
	}

	rec.EmailOTPHash = ""
	rec.EmailOTPSent = time.Time{}
	rec.UpdatedAt = e.now()
	if err := e.store.Put(ctx, rec); err != nil {
		return false, err
	}
	return true, nil
}

// Disable clears the second factor entirely: secret, recovery codes and any
// outstanding email code, in one write.
func (e *Engine) Disable(ctx context.Context, accountID string) error {
	if err := e.store.Delete(ctx, accountID); err != nil {
		return err
	}
	e.log.Info("two-factor disabled", zap.String("account_id", accountID))
	return nil
}

// State summarizes an account's second factor for settings screens.
type State struct {
	Status            Status
	RecoveryCodesLeft int
}

// Status reports the account's current second-factor state.
func (e *Engine) Status(ctx context.Context, accountID string) (State, error) {
	rec, err := e.store.Get(ctx, accountID)
	if err != nil {
		return State{}, err
	}
	if rec == nil {
		return State{Status: StatusDisabled}, nil
	}
	return State{Status: rec.Status, RecoveryCodesLeft: len(rec.RecoveryCodes)}, nil
}

func (e *Engine) validateTOTP(secret, code string) bool {
	ok, err := totp.ValidateCustom(code, secret, e.now(), totp.ValidateOpts{
		Period:    totpPeriod,
		Skew:      totpSkew,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	return err == nil && ok
}

func hashCode(code string) string {
	sum := sha256.Sum256([]byte(code))
	return hex.EncodeToString(sum[:])
}

func generateRecoveryCodes(n int) (plain, hashes []string, err error) {
	plain = make([]string, 0, n)
	hashes = make([]string, 0, n)
	for i := 0; i < n; i++ {
		buf := make([]byte, 6)
		if _, err := rand.Read(buf); err != nil {
			return nil, nil, fmt.Errorf("generate recovery code: %w", err)
		}
		code := hex.EncodeToString(buf)
		plain = append(plain, code)
		hashes = append(hashes, hashCode(code))
	}
	return plain, hashes, nil
}

func numericCode(digits int) (string, error) {
	max := big.NewInt(1)
	for i := 0; i < digits; i++ {
		max.Mul(max, big.NewInt(10))
	}
	n, err := rand.Int(rand.Reader, max)
	if err != nil {
		return "", fmt.Errorf("generate otp: %w", err)
	}
	return fmt.Sprintf("%0*d", digits, n), nil
}
