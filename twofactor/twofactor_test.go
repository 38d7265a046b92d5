package twofactor

import (
	"context"
	"testing"
	"time"

	"github.com/pquerna/otp/totp"
)

type captureMailer struct {
	lastCode string
	sent     int
}

func (m *captureMailer) SendOTP(_ context.Context, _, _, code string) error {
	m.lastCode = code
	m.sent++
	return nil
}

func newTestEngine(t *testing.T) (*Engine, *captureMailer) {
	t.Helper()
	mailer := &captureMailer{}
	return NewEngine(NewMemoryStore(), mailer, nil), mailer
}

func codeFor(t *testing.T, secret string, at time.Time) string {
	t.Helper()
	code, err := totp.GenerateCode(secret, at)
	if err != nil {
		t.Fatalf("GenerateCode: %v", err)
	}
	return code
}

func activate(t *testing.T, eng *Engine, accountID string) (secret string, recovery []string) {
	t.Helper()
	ctx := context.Background()
	setup, err := eng.BeginSetup(ctx, accountID, accountID+"@zenith.test")
	if err != nil {
		t.Fatalf("BeginSetup: %v", err)
	}
	codes, err := eng.ConfirmSetup(ctx, accountID, codeFor(t, setup.Secret, eng.now()))
	if err != nil {
		t.Fatalf("ConfirmSetup: %v", err)
	}
	return setup.Secret, codes
}

func TestSetupAndConfirm(t *testing.T) {
	ctx := context.Background()
	eng, _ := newTestEngine(t)

	setup, err := eng.BeginSetup(ctx, "acct-1", "a@zenith.test")
	if err != nil {
		t.Fatalf("BeginSetup: %v", err)
	}
	if setup.Secret == "" || setup.URI == "" {
		t.Fatal("expected a secret and a provisioning URI")
	}

	state, err := eng.Status(ctx, "acct-1")
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if state.Status != StatusPending {
		t.Fatalf("expected pending after setup, got %s", state.Status)
	}

	codes, err := eng.ConfirmSetup(ctx, "acct-1", codeFor(t, setup.Secret, time.Now()))
	if err != nil {
		t.Fatalf("ConfirmSetup: %v", err)
	}
	if len(codes) != RecoveryCodeCount {
		t.Fatalf("expected %d recovery codes, got %d", RecoveryCodeCount, len(codes))
	}

	state, err = eng.Status(ctx, "acct-1")
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if state.Status != StatusActive {
		t.Fatalf("expected active after confirm, got %s", state.Status)
	}
	if state.RecoveryCodesLeft != RecoveryCodeCount {
		t.Fatalf("expected %d codes left, got %d", RecoveryCodeCount, state.RecoveryCodesLeft)
	}
}

func TestConfirmWrongCodeStaysPending(t *testing.T) {
	ctx := context.Background()
	eng, _ := newTestEngine(t)

	if _, err := eng.BeginSetup(ctx, "acct-1", "a@zenith.test"); err != nil {
		t.Fatalf("BeginSetup: %v", err)
	}

	if _, err := eng.ConfirmSetup(ctx, "acct-1", "000000"); err != ErrInvalidCode {
		t.Fatalf("expected ErrInvalidCode, got %v", err)
	}

	state, err := eng.Status(ctx, "acct-1")
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if state.Status != StatusPending {
		t.Fatalf("wrong code must leave setup pending, got %s", state.Status)
	}
}

func TestConfirmAfterSetupWindow(t *testing.T) {
	ctx := context.Background()
	eng, _ := newTestEngine(t)

	setup, err := eng.BeginSetup(ctx, "acct-1", "a@zenith.test")
	if err != nil {
		t.Fatalf("BeginSetup: %v", err)
	}

	base := time.Now()
	eng.now = func() time.Time { return base.Add(SetupWindow + time.Minute) }

	if _, err := eng.ConfirmSetup(ctx, "acct-1", codeFor(t, setup.Secret, eng.now())); err != ErrSetupExpired {
		t.Fatalf("expected ErrSetupExpired, got %v", err)
	}

	state, err := eng.Status(ctx, "acct-1")
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if state.Status != StatusDisabled {
		t.Fatalf("expired setup must be cleared, got %s", state.Status)
	}
}

func TestBeginSetupWhenActive(t *testing.T) {
	ctx := context.Background()
	eng, _ := newTestEngine(t)
	activate(t, eng, "acct-1")

	if _, err := eng.BeginSetup(ctx, "acct-1", "a@zenith.test"); err != ErrAlreadyActive {
		t.Fatalf("expected ErrAlreadyActive, got %v", err)
	}
}

func TestVerifyTOTPWithSkew(t *testing.T) {
	ctx := context.Background()
	eng, _ := newTestEngine(t)
	secret, _ := activate(t, eng, "acct-1")

	// One period behind still verifies; two periods behind does not.
	prev := codeFor(t, secret, time.Now().Add(-30*time.Second))
	ok, err := eng.VerifyTOTP(ctx, "acct-1", prev)
	if err != nil {
		t.Fatalf("VerifyTOTP: %v", err)
	}
	if !ok {
		t.Fatal("code from the previous period must verify")
	}

	stale := codeFor(t, secret, time.Now().Add(-90*time.Second))
	ok, err = eng.VerifyTOTP(ctx, "acct-1", stale)
	if err != nil {
		t.Fatalf("VerifyTOTP: %v", err)
	}
	if ok {
		t.Fatal("code two periods old must not verify")
	}
}

func TestVerifyTOTPWhenNotActive(t *testing.T) {
	ctx := context.Background()
	eng, _ := newTestEngine(t)

	ok, err := eng.VerifyTOTP(ctx, "acct-1", "123456")
	if err != nil {
		t.Fatalf("VerifyTOTP: %v", err)
	}
	if ok {
		t.Fatal("no record must never verify")
	}
}

func TestRecoveryCodeSingleUse(t *testing.T) {
	ctx := context.Background()
	eng, _ := newTestEngine(t)
	_, codes := activate(t, eng, "acct-1")

	ok, err := eng.ConsumeRecoveryCode(ctx, "acct-1", codes[0])
	if err != nil {
		t.Fatalf("ConsumeRecoveryCode: %v", err)
	}
	if !ok {
		t.Fatal("fresh recovery code must be accepted")
	}

	ok, err = eng.ConsumeRecoveryCode(ctx, "acct-1", codes[0])
	if err != nil {
		t.Fatalf("ConsumeRecoveryCode: %v", err)
	}
	if ok {
		t.Fatal("a recovery code must not work twice")
	}

	state, err := eng.Status(ctx, "acct-1")
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if state.RecoveryCodesLeft != RecoveryCodeCount-1 {
		t.Fatalf("expected %d codes left, got %d", RecoveryCodeCount-1, state.RecoveryCodesLeft)
	}
}

func TestEmailOTPLifecycle(t *testing.T) {
	ctx := context.Background()
	eng, mailer := newTestEngine(t)
	activate(t, eng, "acct-1")

	if err := eng.SendEmailOTP(ctx, "acct-1", "a@zenith.test"); err != nil {
		t.Fatalf("SendEmailOTP: %v", err)
	}
	if mailer.sent != 1 || len(mailer.lastCode) != 6 {
		t.Fatalf("expected one 6-digit code, sent=%d code=%q", mailer.sent, mailer.lastCode)
	}

	// A wrong guess keeps the code valid.
	wrong := "000000"
	if mailer.lastCode == wrong {
		wrong = "111111"
	}
	ok, err := eng.VerifyEmailOTP(ctx, "acct-1", wrong)
	if err != nil {
		t.Fatalf("VerifyEmailOTP: %v", err)
	}
	if ok {
		t.Fatal("wrong code must be rejected")
	}

	ok, err = eng.VerifyEmailOTP(ctx, "acct-1", mailer.lastCode)
	if err != nil {
		t.Fatalf("VerifyEmailOTP: %v", err)
	}
	if !ok {
		t.Fatal("correct code must verify after a failed attempt")
	}

	// A used code cannot be replayed.
	ok, err = eng.VerifyEmailOTP(ctx, "acct-1", mailer.lastCode)
	if err != nil {
		t.Fatalf("VerifyEmailOTP: %v", err)
	}
	if ok {
		t.Fatal("used code must not verify again")
	}
}

func TestEmailOTPExpiry(t *testing.T) {
	ctx := context.Background()
	eng, mailer := newTestEngine(t)
	activate(t, eng, "acct-1")

	if err := eng.SendEmailOTP(ctx, "acct-1", "a@zenith.test"); err != nil {
		t.Fatalf("SendEmailOTP: %v", err)
	}

	base := time.Now()
	eng.now = func() time.Time { return base.Add(EmailOTPTTL + time.Minute) }

	ok, err := eng.VerifyEmailOTP(ctx, "acct-1", mailer.lastCode)
	if err != nil {
		t.Fatalf("VerifyEmailOTP: %v", err)
	}
	if ok {
		t.Fatal("expired code must not verify")
	}
}

func TestDisableClearsEverything(t *testing.T) {
	ctx := context.Background()
	eng, _ := newTestEngine(t)
	secret, codes := activate(t, eng, "acct-1")

	if err := eng.Disable(ctx, "acct-1"); err != nil {
		t.Fatalf("Disable: %v", err)
	}

	state, err := eng.Status(ctx, "acct-1")
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if state.Status != StatusDisabled {
		t.Fatalf("expected disabled, got %s", state.Status)
	}

	ok, err := eng.VerifyTOTP(ctx, "acct-1", codeFor(t, secret, time.Now()))
	if err != nil {
		t.Fatalf("VerifyTOTP: %v", err)
	}
	if ok {
		t.Fatal("codes must stop verifying after disable")
	}

	ok, err = eng.ConsumeRecoveryCode(ctx, "acct-1", codes[0])
	if err != nil {
		t.Fatalf("ConsumeRecoveryCode: %v", err)
	}
	if ok {
		t.Fatal("recovery codes must stop working after disable")
	}
}
