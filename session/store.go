// Package session tracks active logins in two tiers: a sharded in-process
// map for the fast path and a durable table as the source of truth. Every
// mutation writes durable-then-cache, so a crash between the two leaves
// correct state for the next load.
package session

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	// DefaultTTL is both the hard lifetime and the sliding-inactivity
	// window for a session.
	DefaultTTL = 7 * 24 * time.Hour
	// DefaultMaxSessions caps live sessions per account.
	DefaultMaxSessions = 5
	// DefaultSweepInterval is how often the background sweep runs.
	DefaultSweepInterval = time.Hour

	// queryTimeout bounds every durable call; the store fails closed
	// rather than hang a request on slow infrastructure.
	queryTimeout = 3 * time.Second

	shardCount = 64
)

// Config tunes the store. Zero values take the defaults above.
type Config struct {
	TTL           time.Duration
	MaxSessions   int
	SweepInterval time.Duration
}

type mapShard struct {
	mu       sync.Mutex
	sessions map[string]*Session
}

// accountShard serializes all mutations for the accounts hashed into it,
// so Create and EnforceCap can never interleave for one account.
type accountShard struct {
	mu    sync.Mutex
	index map[string]map[string]struct{} // account id -> session ids
}

// Store is the two-tier session store.
type Store struct {
	table    Table
	cache    *warmCache
	log      *zap.Logger
	cfg      Config
	shards   [shardCount]mapShard
	accounts [shardCount]accountShard
	sweeping atomic.Bool

	onEvict func(int)
	onSweep func(int)
}

// NewStore builds a Store over the durable table. rdb is the optional warm
// cache tier and may be nil; log may be nil.
func NewStore(table Table, rdb redis.UniversalClient, log *zap.Logger, cfg Config) *Store {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.MaxSessions <= 0 {
		cfg.MaxSessions = DefaultMaxSessions
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = DefaultSweepInterval
	}
	if log == nil {
		log = zap.NewNop()
	}
	s := &Store{table: table, log: log, cfg: cfg}
	if rdb != nil {
		s.cache = &warmCache{rdb: rdb}
	}
	for i := range s.shards {
		s.shards[i].sessions = make(map[string]*Session)
	}
	for i := range s.accounts {
		s.accounts[i].index = make(map[string]map[string]struct{})
	}
	return s
}

// OnEvicted registers a hook receiving the number of sessions destroyed by
// each capacity enforcement.
func (s *Store) OnEvicted(fn func(int)) { s.onEvict = fn }

// OnSwept registers a hook receiving the number of sessions removed by each
// sweep pass.
func (s *Store) OnSwept(fn func(int)) { s.onSweep = fn }

func shardIndex(key string) int {
	// FNV-1a, inlined; key distribution not adversarial.
	h := uint32(2166136261)
	for i := 0; i < len(key); i++ {
		h ^= uint32(key[i])
		h *= 16777619
	}
	return int(h % shardCount)
}

func (s *Store) shard(id string) *mapShard       { return &s.shards[shardIndex(id)] }
func (s *Store) account(id string) *accountShard { return &s.accounts[shardIndex(id)] }

func (s *Store) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, queryTimeout)
}

// Create opens a session for the account, writes it durably, caches it and
// enforces the per-account cap. The account bucket stays locked across the
// whole operation so two concurrent logins cannot overshoot the cap.
func (s *Store) Create(ctx context.Context, accountID string, dev DeviceDescriptor) (*Session, error) {
	now := time.Now()
	sess := &Session{
		ID:           uuid.NewString(),
		AccountID:    accountID,
		UserAgent:    dev.UserAgent,
		IPAddress:    dev.IPAddress,
		CreatedAt:    now,
		LastActivity: now,
		ExpiresAt:    now.Add(s.cfg.TTL),
	}

	acct := s.account(accountID)
	acct.mu.Lock()
	defer acct.mu.Unlock()

	dctx, cancel := s.withTimeout(ctx)
	err := s.table.Insert(dctx, sess)
	cancel()
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}

	s.cache.put(ctx, sess, s.cfg.TTL)
	s.putMap(sess)
	s.indexAddLocked(acct, accountID, sess.ID)

	if err := s.enforceCapLocked(ctx, acct, accountID, s.cfg.MaxSessions); err != nil {
		// The new session is valid either way; eviction failures only
		// mean stale sessions linger until the sweep.
		s.log.Warn("session cap enforcement failed",
			zap.String("account_id", accountID), zap.Error(err))
	}

	return sess.clone(), nil
}

// Validate resolves a session id to a live session, or nil. The in-process
// map is consulted first, then the warm cache, then the durable table. A
// hit older than the sliding window is destroyed, not returned. Live hits
// get their last activity touched in both tiers.
func (s *Store) Validate(ctx context.Context, id string) (*Session, error) {
	if id == "" {
		return nil, nil
	}
	now := time.Now()

	sh := s.shard(id)
	sh.mu.Lock()
	cached, ok := sh.sessions[id]
	if ok {
		snapshot := cached.clone()
		sh.mu.Unlock()
		if snapshot.expired(now, s.cfg.TTL) {
			_ = s.Destroy(ctx, id)
			return nil, nil
		}
		return s.touch(ctx, snapshot, now)
	}
	sh.mu.Unlock()

	if warm := s.cache.get(ctx, id); warm != nil && !warm.expired(now, s.cfg.TTL) {
		s.putMap(warm)
		s.indexAdd(warm.AccountID, warm.ID)
		return s.touch(ctx, warm.clone(), now)
	}

	dctx, cancel := s.withTimeout(ctx)
	stored, err := s.table.Get(dctx, id)
	cancel()
	if err != nil {
		return nil, fmt.Errorf("validate session: %w", err)
	}
	if stored == nil {
		return nil, nil
	}
	if stored.expired(now, s.cfg.TTL) {
		_ = s.Destroy(ctx, id)
		return nil, nil
	}

	s.putMap(stored)
	s.indexAdd(stored.AccountID, stored.ID)
	return s.touch(ctx, stored.clone(), now)
}

// touch advances last activity, durable tier first.
func (s *Store) touch(ctx context.Context, sess *Session, now time.Time) (*Session, error) {
	dctx, cancel := s.withTimeout(ctx)
	err := s.table.Touch(dctx, sess.ID, now)
	cancel()
	if err != nil {
		return nil, fmt.Errorf("touch session: %w", err)
	}
	sess.LastActivity = now

	sh := s.shard(sess.ID)
	sh.mu.Lock()
	if cached, ok := sh.sessions[sess.ID]; ok {
		cached.LastActivity = now
	}
	sh.mu.Unlock()

	s.cache.put(ctx, sess, s.cfg.TTL)
	return sess, nil
}

// Destroy removes the session from every tier. Unknown ids are a no-op.
func (s *Store) Destroy(ctx context.Context, id string) error {
	accountID := ""
	sh := s.shard(id)
	sh.mu.Lock()
	if cached, ok := sh.sessions[id]; ok {
		accountID = cached.AccountID
	}
	sh.mu.Unlock()

	dctx, cancel := s.withTimeout(ctx)
	err := s.table.Delete(dctx, id)
	cancel()
	if err != nil {
		return fmt.Errorf("destroy session: %w", err)
	}

	s.cache.del(ctx, id)

	sh.mu.Lock()
	delete(sh.sessions, id)
	sh.mu.Unlock()

	if accountID != "" {
		s.indexRemove(accountID, id)
	}
	return nil
}

// DestroyAll removes every live session for the account.
func (s *Store) DestroyAll(ctx context.Context, accountID string) (int, error) {
	sessions, err := s.ListByAccount(ctx, accountID)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, sess := range sessions {
		if err := s.Destroy(ctx, sess.ID); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

// ListByAccount returns the account's live sessions, most recently active
// first, straight from the durable tier.
func (s *Store) ListByAccount(ctx context.Context, accountID string) ([]*Session, error) {
	dctx, cancel := s.withTimeout(ctx)
	defer cancel()
	sessions, err := s.table.ListByAccount(dctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	return sessions, nil
}

// EnforceCap destroys the account's least recently active sessions beyond n.
func (s *Store) EnforceCap(ctx context.Context, accountID string, n int) error {
	acct := s.account(accountID)
	acct.mu.Lock()
	defer acct.mu.Unlock()
	return s.enforceCapLocked(ctx, acct, accountID, n)
}

func (s *Store) enforceCapLocked(ctx context.Context, acct *accountShard, accountID string, n int) error {
	dctx, cancel := s.withTimeout(ctx)
	sessions, err := s.table.ListByAccount(dctx, accountID)
	cancel()
	if err != nil {
		return fmt.Errorf("enforce cap: %w", err)
	}
	if len(sessions) <= n {
		return nil
	}

	evicted := 0
	for _, victim := range sessions[n:] { // already sorted most recent first
		dctx, cancel := s.withTimeout(ctx)
		err := s.table.Delete(dctx, victim.ID)
		cancel()
		if err != nil {
			return fmt.Errorf("enforce cap: %w", err)
		}
		s.cache.del(ctx, victim.ID)

		sh := s.shard(victim.ID)
		sh.mu.Lock()
		delete(sh.sessions, victim.ID)
		sh.mu.Unlock()

		if ids, ok := acct.index[accountID]; ok {
			delete(ids, victim.ID)
		}
		evicted++
	}
	if evicted > 0 {
		s.log.Info("evicted sessions over cap",
			zap.String("account_id", accountID), zap.Int("count", evicted))
		if s.onEvict != nil {
			s.onEvict(evicted)
		}
	}
	return nil
}

// Sweep removes every session in both tiers whose last activity exceeds the
// sliding window. Overlapping runs are skipped: the sweep mutates the same
// index the foreground path uses.
func (s *Store) Sweep(ctx context.Context) (int, error) {
	if !s.sweeping.CompareAndSwap(false, true) {
		return 0, nil
	}
	defer s.sweeping.Store(false)

	cutoff := time.Now().Add(-s.cfg.TTL)

	dctx, cancel := s.withTimeout(ctx)
	removed, err := s.table.DeleteInactiveSince(dctx, cutoff)
	cancel()
	if err != nil {
		return 0, fmt.Errorf("sweep: %w", err)
	}

	now := time.Now()
	for i := range s.shards {
		sh := &s.shards[i]
		var stale []*Session
		sh.mu.Lock()
		for id, sess := range sh.sessions {
			if sess.expired(now, s.cfg.TTL) {
				stale = append(stale, sess)
				delete(sh.sessions, id)
			}
		}
		sh.mu.Unlock()
		for _, sess := range stale {
			s.cache.del(ctx, sess.ID)
			s.indexRemove(sess.AccountID, sess.ID)
		}
	}

	if removed > 0 {
		s.log.Info("session sweep complete", zap.Int("removed", removed))
	}
	if s.onSweep != nil {
		s.onSweep(removed)
	}
	return removed, nil
}

// StartSweeper runs Sweep on the configured interval until ctx is done.
func (s *Store) StartSweeper(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(s.cfg.SweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := s.Sweep(ctx); err != nil {
					s.log.Error("session sweep failed", zap.Error(err))
				}
			}
		}
	}()
}

func (s *Store) putMap(sess *Session) {
	sh := s.shard(sess.ID)
	sh.mu.Lock()
	sh.sessions[sess.ID] = sess.clone()
	sh.mu.Unlock()
}

func (s *Store) indexAdd(accountID, id string) {
	acct := s.account(accountID)
	acct.mu.Lock()
	s.indexAddLocked(acct, accountID, id)
	acct.mu.Unlock()
}

func (s *Store) indexAddLocked(acct *accountShard, accountID, id string) {
	ids, ok := acct.index[accountID]
	if !ok {
		ids = make(map[string]struct{})
		acct.index[accountID] = ids
	}
	ids[id] = struct{}{}
}

func (s *Store) indexRemove(accountID, id string) {
	acct := s.account(accountID)
	acct.mu.Lock()
	if ids, ok := acct.index[accountID]; ok {
		delete(ids, id)
		if len(ids) == 0 {
			delete(acct.index, accountID)
		}
	}
	acct.mu.Unlock()
}

func (s *Session) clone() *Session {
	out := *s
	return &out
}
