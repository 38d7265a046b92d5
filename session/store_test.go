package session

import (
	"context"
	"sync"
	"testing"
	"time"
)

func newTestStore(t *testing.T, cfg Config) (*Store, *MemoryTable) {
	t.Helper()
	table := NewMemoryTable()
	return NewStore(table, nil, nil, cfg), table
}

func TestCreateAndValidate(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t, Config{})

	sess, err := store.Create(ctx, "acct-1", DeviceDescriptor{UserAgent: "ua", IPAddress: "10.0.0.1"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if sess.ID == "" {
		t.Fatal("expected a session id")
	}

	got, err := store.Validate(ctx, sess.ID)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if got == nil {
		t.Fatal("expected a live session")
	}
	if got.AccountID != "acct-1" || got.UserAgent != "ua" {
		t.Fatalf("unexpected session: %+v", got)
	}
}

func TestValidateUnknownID(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t, Config{})

	got, err := store.Validate(ctx, "no-such-session")
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if got != nil {
		t.Fatalf("expected nil for unknown id, got %+v", got)
	}
}

func TestValidateColdStartFromDurable(t *testing.T) {
	ctx := context.Background()
	table := NewMemoryTable()
	warm := NewStore(table, nil, nil, Config{})

	sess, err := warm.Create(ctx, "acct-1", DeviceDescriptor{})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	// A second store over the same table models a restarted process with
	// an empty map.
	cold := NewStore(table, nil, nil, Config{})
	got, err := cold.Validate(ctx, sess.ID)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if got == nil || got.ID != sess.ID {
		t.Fatalf("expected session rebuilt from durable tier, got %+v", got)
	}
}

func TestSessionCap(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t, Config{MaxSessions: 5})

	var ids []string
	for i := 0; i < 8; i++ {
		sess, err := store.Create(ctx, "acct-1", DeviceDescriptor{})
		if err != nil {
			t.Fatalf("Create %d: %v", i, err)
		}
		ids = append(ids, sess.ID)
		time.Sleep(2 * time.Millisecond) // distinct activity ordering
	}

	live, err := store.ListByAccount(ctx, "acct-1")
	if err != nil {
		t.Fatalf("ListByAccount: %v", err)
	}
	if len(live) != 5 {
		t.Fatalf("expected exactly 5 live sessions, got %d", len(live))
	}

	// The newest session always survives its own creation's enforcement.
	newest := ids[len(ids)-1]
	found := false
	for _, sess := range live {
		if sess.ID == newest {
			found = true
		}
	}
	if !found {
		t.Fatal("most recent session was evicted")
	}

	// The oldest ones must be gone from every tier.
	got, err := store.Validate(ctx, ids[0])
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if got != nil {
		t.Fatal("expected oldest session to be evicted")
	}
}

func TestSessionCapConcurrentLogins(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t, Config{MaxSessions: 5})

	for i := 0; i < 5; i++ {
		if _, err := store.Create(ctx, "acct-1", DeviceDescriptor{}); err != nil {
			t.Fatalf("Create: %v", err)
		}
	}

	var wg sync.WaitGroup
	errs := make(chan error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := store.Create(ctx, "acct-1", DeviceDescriptor{}); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("concurrent Create: %v", err)
	}

	live, err := store.ListByAccount(ctx, "acct-1")
	if err != nil {
		t.Fatalf("ListByAccount: %v", err)
	}
	if len(live) != 5 {
		t.Fatalf("expected exactly 5 live sessions after concurrent logins, got %d", len(live))
	}
}

func TestCapIsPerAccount(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t, Config{MaxSessions: 2})

	for i := 0; i < 3; i++ {
		if _, err := store.Create(ctx, "acct-a", DeviceDescriptor{}); err != nil {
			t.Fatalf("Create: %v", err)
		}
		if _, err := store.Create(ctx, "acct-b", DeviceDescriptor{}); err != nil {
			t.Fatalf("Create: %v", err)
		}
	}

	for _, acct := range []string{"acct-a", "acct-b"} {
		live, err := store.ListByAccount(ctx, acct)
		if err != nil {
			t.Fatalf("ListByAccount(%s): %v", acct, err)
		}
		if len(live) != 2 {
			t.Fatalf("account %s: expected 2 live sessions, got %d", acct, len(live))
		}
	}
}

func TestHardExpiryRejected(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t, Config{TTL: 30 * time.Millisecond})

	sess, err := store.Create(ctx, "acct-1", DeviceDescriptor{})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	time.Sleep(50 * time.Millisecond)

	got, err := store.Validate(ctx, sess.ID)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if got != nil {
		t.Fatal("expected expired session to be rejected")
	}

	// Rejection also removed it from the durable tier.
	live, err := store.ListByAccount(ctx, "acct-1")
	if err != nil {
		t.Fatalf("ListByAccount: %v", err)
	}
	if len(live) != 0 {
		t.Fatalf("expected expired session to be deleted, got %d", len(live))
	}
}

func TestSlidingExpiryFromDurable(t *testing.T) {
	ctx := context.Background()
	table := NewMemoryTable()
	first := NewStore(table, nil, nil, Config{})

	sess, err := first.Create(ctx, "acct-1", DeviceDescriptor{})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	// Age the durable record past the sliding window, then read through a
	// cold store so the lookup goes to the durable tier.
	if err := table.Touch(ctx, sess.ID, time.Now().Add(-8*24*time.Hour)); err != nil {
		t.Fatalf("Touch: %v", err)
	}
	cold := NewStore(table, nil, nil, Config{})
	got, err := cold.Validate(ctx, sess.ID)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if got != nil {
		t.Fatal("expected inactive session to be rejected")
	}
}

func TestValidateTouchesActivity(t *testing.T) {
	ctx := context.Background()
	store, table := newTestStore(t, Config{})

	sess, err := store.Create(ctx, "acct-1", DeviceDescriptor{})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	time.Sleep(5 * time.Millisecond)
	if _, err := store.Validate(ctx, sess.ID); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	row, err := table.Get(ctx, sess.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !row.LastActivity.After(sess.LastActivity) {
		t.Fatal("expected durable last activity to advance on validate")
	}
}

func TestDestroyIdempotent(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t, Config{})

	sess, err := store.Create(ctx, "acct-1", DeviceDescriptor{})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if err := store.Destroy(ctx, sess.ID); err != nil {
		t.Fatalf("Destroy: %v", err)
	}
	if err := store.Destroy(ctx, sess.ID); err != nil {
		t.Fatalf("second Destroy: %v", err)
	}

	got, err := store.Validate(ctx, sess.ID)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if got != nil {
		t.Fatal("expected destroyed session to be gone")
	}
}

func TestDestroyAll(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t, Config{})

	for i := 0; i < 3; i++ {
		if _, err := store.Create(ctx, "acct-1", DeviceDescriptor{}); err != nil {
			t.Fatalf("Create: %v", err)
		}
	}
	keep, err := store.Create(ctx, "acct-2", DeviceDescriptor{})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	n, err := store.DestroyAll(ctx, "acct-1")
	if err != nil {
		t.Fatalf("DestroyAll: %v", err)
	}
	if n != 3 {
		t.Fatalf("expected 3 destroyed, got %d", n)
	}

	got, err := store.Validate(ctx, keep.ID)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if got == nil {
		t.Fatal("other account's session must survive")
	}
}

func TestSweepRemovesInactive(t *testing.T) {
	ctx := context.Background()
	table := NewMemoryTable()
	first := NewStore(table, nil, nil, Config{})

	stale1, _ := first.Create(ctx, "acct-1", DeviceDescriptor{})
	stale2, _ := first.Create(ctx, "acct-1", DeviceDescriptor{})
	fresh, _ := first.Create(ctx, "acct-2", DeviceDescriptor{})

	for _, id := range []string{stale1.ID, stale2.ID} {
		if err := table.Touch(ctx, id, time.Now().Add(-8*24*time.Hour)); err != nil {
			t.Fatalf("Touch: %v", err)
		}
	}

	cold := NewStore(table, nil, nil, Config{})
	removed, err := cold.Sweep(ctx)
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if removed != 2 {
		t.Fatalf("expected 2 swept, got %d", removed)
	}

	got, err := cold.Validate(ctx, fresh.ID)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if got == nil {
		t.Fatal("fresh session must survive the sweep")
	}
	got, err = cold.Validate(ctx, stale1.ID)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if got != nil {
		t.Fatal("stale session must be gone after the sweep")
	}
}
