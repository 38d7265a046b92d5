package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestLimiter(t *testing.T) (*Limiter, *miniredis.Miniredis, func()) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis run failed: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return New(rdb, nil), mr, func() {
		_ = rdb.Close()
		mr.Close()
	}
}

func TestCheckAllowsExactlyLimit(t *testing.T) {
	l, _, done := newTestLimiter(t)
	defer done()

	p := Policy{Name: "auth", Limit: 5, Window: 15 * time.Minute}
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		res := l.Check(ctx, p, "user-1", "login")
		if !res.Allowed {
			t.Fatalf("request %d should be allowed", i+1)
		}
		if res.Remaining != 5-(i+1) {
			t.Fatalf("request %d: remaining = %d, want %d", i+1, res.Remaining, 5-(i+1))
		}
	}

	res := l.Check(ctx, p, "user-1", "login")
	if res.Allowed {
		t.Fatal("6th request should be rejected")
	}
	if res.RetryAfter <= 0 {
		t.Fatalf("rejected request must carry RetryAfter > 0, got %d", res.RetryAfter)
	}
	if res.Remaining != 0 {
		t.Fatalf("rejected request remaining = %d, want 0", res.Remaining)
	}
}

func TestWindowResetReadmits(t *testing.T) {
	l, mr, done := newTestLimiter(t)
	defer done()

	p := Policy{Name: "auth", Limit: 2, Window: time.Minute}
	ctx := context.Background()

	l.Check(ctx, p, "user-1", "login")
	l.Check(ctx, p, "user-1", "login")
	if res := l.Check(ctx, p, "user-1", "login"); res.Allowed {
		t.Fatal("over-limit request should be rejected")
	}

	mr.FastForward(time.Minute + time.Second)

	if res := l.Check(ctx, p, "user-1", "login"); !res.Allowed {
		t.Fatal("request after window elapsed should be allowed")
	}
}

func TestPoliciesAreIndependentKeyspaces(t *testing.T) {
	l, _, done := newTestLimiter(t)
	defer done()

	ctx := context.Background()
	auth := Policy{Name: "auth", Limit: 1, Window: time.Minute}
	chat := Policy{Name: "chat", Limit: 1, Window: time.Minute}

	l.Check(ctx, auth, "user-1", "send")
	if res := l.Check(ctx, auth, "user-1", "send"); res.Allowed {
		t.Fatal("auth keyspace should be exhausted")
	}
	if res := l.Check(ctx, chat, "user-1", "send"); !res.Allowed {
		t.Fatal("chat keyspace must not share counters with auth")
	}
	if res := l.Check(ctx, auth, "user-2", "send"); !res.Allowed {
		t.Fatal("identities must not share counters")
	}
}

func TestResetClearsCounter(t *testing.T) {
	l, _, done := newTestLimiter(t)
	defer done()

	ctx := context.Background()
	p := Policy{Name: "auth", Limit: 1, Window: time.Minute}

	l.Check(ctx, p, "user-1", "login")
	if res := l.Check(ctx, p, "user-1", "login"); res.Allowed {
		t.Fatal("should be exhausted")
	}
	if err := l.Reset(ctx, p, "user-1", "login"); err != nil {
		t.Fatalf("reset failed: %v", err)
	}
	if res := l.Check(ctx, p, "user-1", "login"); !res.Allowed {
		t.Fatal("counter should be cleared after reset")
	}
}

func TestFailsOpenWhenStoreUnreachable(t *testing.T) {
	l, mr, done := newTestLimiter(t)
	defer done()
	mr.Close() // simulate outage

	degraded := 0
	l.OnDegraded(func() { degraded++ })

	res := l.Check(context.Background(), Auth, "user-1", "login")
	if !res.Allowed {
		t.Fatal("limiter must fail open on store outage")
	}
	if !res.Degraded {
		t.Fatal("fail-open result must be marked degraded")
	}
	if degraded != 1 {
		t.Fatalf("degraded hook called %d times, want 1", degraded)
	}
}
