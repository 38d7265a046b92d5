// Package ratelimit enforces fixed-window request budgets per
// (identity, action) pair, backed by a shared TTL-capable key-value store.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Policy names an independent keyspace with its own budget.
type Policy struct {
	Name   string
	Limit  int
	Window time.Duration
}

// The platform's standing policies. API's limit may be overridden from
// configuration; the others are fixed.
var (
	Auth   = Policy{Name: "auth", Limit: 5, Window: 15 * time.Minute}
	API    = Policy{Name: "api", Limit: 100, Window: 15 * time.Minute}
	Chat   = Policy{Name: "chat", Limit: 30, Window: time.Minute}
	Upload = Policy{Name: "upload", Limit: 10, Window: time.Hour}
)

// Result reports the outcome of a single Check.
type Result struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
	// RetryAfter is ceil(ResetAt-now) in seconds, zero when allowed.
	RetryAfter int
	// Degraded is set when the store was unreachable and the limiter
	// failed open.
	Degraded bool
}

// Limiter counts requests in the shared store. Increments use the store's
// native INCR so concurrent bursts never undercount. When the store is
// unreachable the limiter fails open: availability wins over enforcement,
// but every such decision is logged.
type Limiter struct {
	rdb      redis.UniversalClient
	log      *zap.Logger
	degraded func() // optional metrics hook
}

// New creates a Limiter. log may be nil.
func New(rdb redis.UniversalClient, log *zap.Logger) *Limiter {
	if log == nil {
		log = zap.NewNop()
	}
	return &Limiter{rdb: rdb, log: log}
}

// OnDegraded registers a hook invoked once per fail-open decision.
func (l *Limiter) OnDegraded(fn func()) { l.degraded = fn }

func key(p Policy, identity, action string) string {
	return fmt.Sprintf("ratelimit:%s:%s:%s", p.Name, identity, action)
}

// Check records one request against the policy's window and reports whether
// it is allowed. The first request in a window creates the counter with
// TTL = window; the window never slides.
func (l *Limiter) Check(ctx context.Context, p Policy, identity, action string) Result {
	k := key(p, identity, action)
	now := time.Now()

	count, err := l.rdb.Incr(ctx, k).Result()
	if err != nil {
		return l.failOpen(p, k, err)
	}
	if count == 1 {
		if err := l.rdb.Expire(ctx, k, p.Window).Err(); err != nil {
			return l.failOpen(p, k, err)
		}
	}

	ttl, err := l.rdb.PTTL(ctx, k).Result()
	if err != nil || ttl <= 0 {
		// A missing TTL means the key predates its EXPIRE (crash between
		// INCR and EXPIRE). Reset the window rather than trap the key
		// forever.
		if err == nil {
			_ = l.rdb.Expire(ctx, k, p.Window).Err()
			ttl = p.Window
		} else {
			return l.failOpen(p, k, err)
		}
	}
	resetAt := now.Add(ttl)

	if count > int64(p.Limit) {
		retry := int((ttl + time.Second - 1) / time.Second)
		return Result{
			Allowed:    false,
			Limit:      p.Limit,
			Remaining:  0,
			ResetAt:    resetAt,
			RetryAfter: retry,
		}
	}

	return Result{
		Allowed:   true,
		Limit:     p.Limit,
		Remaining: p.Limit - int(count),
		ResetAt:   resetAt,
	}
}

// Reset clears the counter for (identity, action), e.g. after a successful
// login so earlier failures stop counting against the user.
func (l *Limiter) Reset(ctx context.Context, p Policy, identity, action string) error {
	return l.rdb.Del(ctx, key(p, identity, action)).Err()
}

func (l *Limiter) failOpen(p Policy, k string, err error) Result {
	l.log.Warn("rate limiter store unreachable, failing open",
		zap.String("policy", p.Name),
		zap.String("key", k),
		zap.Error(err),
	)
	if l.degraded != nil {
		l.degraded()
	}
	return Result{
		Allowed:   true,
		Limit:     p.Limit,
		Remaining: p.Limit,
		ResetAt:   time.Now().Add(p.Window),
		Degraded:  true,
	}
}
