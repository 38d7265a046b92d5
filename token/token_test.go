package token

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func testService(t *testing.T) *Service {
	t.Helper()
	svc, err := NewService(Config{
		AccessSecret:  []byte("access-secret-for-tests-0123456789"),
		RefreshSecret: []byte("refresh-secret-for-tests-9876543210"),
	})
	if err != nil {
		t.Fatalf("NewService failed: %v", err)
	}
	return svc
}

func TestNewServiceRejectsSharedSecret(t *testing.T) {
	_, err := NewService(Config{
		AccessSecret:  []byte("same"),
		RefreshSecret: []byte("same"),
	})
	if err == nil {
		t.Fatal("expected shared secret to be rejected")
	}
	if _, err := NewService(Config{}); err == nil {
		t.Fatal("expected missing secrets to be rejected")
	}
}

func TestAccessRoundTrip(t *testing.T) {
	svc := testService(t)

	tok, err := svc.IssueAccess("acct-1", "sess-1", "student", false)
	if err != nil {
		t.Fatalf("IssueAccess failed: %v", err)
	}
	claims, err := svc.Verify(tok)
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if claims.AccountID != "acct-1" || claims.SessionID != "sess-1" || claims.Role != "student" {
		t.Fatalf("claims did not round-trip: %+v", claims)
	}
	ttl := time.Until(claims.ExpiresAt.Time)
	if ttl < 23*time.Hour || ttl > 25*time.Hour {
		t.Fatalf("expected ~24h ttl, got %v", ttl)
	}
}

func TestRememberMeExtendsExpiry(t *testing.T) {
	svc := testService(t)

	tok, err := svc.IssueAccess("acct-1", "sess-1", "student", true)
	if err != nil {
		t.Fatalf("IssueAccess failed: %v", err)
	}
	claims, err := svc.Verify(tok)
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if time.Until(claims.ExpiresAt.Time) < 6*24*time.Hour {
		t.Fatal("rememberMe token should live close to 7 days")
	}
}

func TestRefreshTokenRejectedOnAccessPath(t *testing.T) {
	svc := testService(t)

	refresh, err := svc.IssueRefresh("acct-1", "sess-1")
	if err != nil {
		t.Fatalf("IssueRefresh failed: %v", err)
	}
	if _, err := svc.Verify(refresh); err == nil {
		t.Fatal("refresh token must not verify as access token")
	}

	claims, err := svc.VerifyRefresh(refresh)
	if err != nil {
		t.Fatalf("VerifyRefresh failed: %v", err)
	}
	if claims.Type != "refresh" || claims.SessionID != "sess-1" {
		t.Fatalf("unexpected refresh claims: %+v", claims)
	}
}

func TestAccessTokenRejectedOnRefreshPath(t *testing.T) {
	svc := testService(t)

	access, err := svc.IssueAccess("acct-1", "sess-1", "student", false)
	if err != nil {
		t.Fatalf("IssueAccess failed: %v", err)
	}
	if _, err := svc.VerifyRefresh(access); err == nil {
		t.Fatal("access token must not verify as refresh token")
	}
}

func TestMalformedRejectedBeforeCrypto(t *testing.T) {
	svc := testService(t)

	for _, bad := range []string{"", "null", "undefined", "one.segment", "a.b.c.d"} {
		if _, err := svc.Verify(bad); !errors.Is(err, ErrMalformed) {
			t.Errorf("Verify(%q) = %v, want ErrMalformed", bad, err)
		}
	}
}

func TestExpiredIsDistinguished(t *testing.T) {
	svc := testService(t)

	claims := Claims{
		AccountID: "acct-1",
		SessionID: "sess-1",
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    Issuer,
			Audience:  jwt.ClaimStrings{AccessAudience},
			IssuedAt:  jwt.NewNumericDate(time.Now().Add(-2 * time.Hour)),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
		},
	}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).
		SignedString([]byte("access-secret-for-tests-0123456789"))
	if err != nil {
		t.Fatalf("sign failed: %v", err)
	}
	if _, err := svc.Verify(tok); !errors.Is(err, ErrExpired) {
		t.Fatalf("expected ErrExpired, got %v", err)
	}
}

func TestTamperedSignatureRejected(t *testing.T) {
	svc := testService(t)

	tok, err := svc.IssueAccess("acct-1", "sess-1", "student", false)
	if err != nil {
		t.Fatalf("IssueAccess failed: %v", err)
	}
	parts := strings.Split(tok, ".")
	tampered := parts[0] + "." + parts[1] + "." + "AAAA" + parts[2][4:]
	if _, err := svc.Verify(tampered); !errors.Is(err, ErrSignature) {
		t.Fatalf("expected ErrSignature, got %v", err)
	}
}

func TestPreviousSecretStillVerifies(t *testing.T) {
	oldSvc := testService(t)
	tok, err := oldSvc.IssueAccess("acct-1", "sess-1", "student", false)
	if err != nil {
		t.Fatalf("IssueAccess failed: %v", err)
	}

	rotated, err := NewService(Config{
		AccessSecret:         []byte("new-access-secret-after-rotation"),
		RefreshSecret:        []byte("new-refresh-secret-after-rotation"),
		PreviousAccessSecret: []byte("access-secret-for-tests-0123456789"),
	})
	if err != nil {
		t.Fatalf("NewService failed: %v", err)
	}
	claims, err := rotated.Verify(tok)
	if err != nil {
		t.Fatalf("token signed with previous secret should verify: %v", err)
	}
	if claims.AccountID != "acct-1" {
		t.Fatalf("unexpected claims: %+v", claims)
	}
}
