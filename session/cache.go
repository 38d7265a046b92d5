package session

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
)

// warmCache keeps session blobs in the shared key-value store so a process
// that lost its in-process map (restart, eviction) can usually avoid the
// durable round trip. Strictly best-effort: every error degrades to a
// durable read.
type warmCache struct {
	rdb redis.UniversalClient
}

func warmKey(id string) string { return "session:" + id }

func (c *warmCache) get(ctx context.Context, id string) *Session {
	if c == nil || c.rdb == nil {
		return nil
	}
	data, err := c.rdb.Get(ctx, warmKey(id)).Bytes()
	if err != nil {
		return nil
	}
	s := &Session{}
	if err := json.Unmarshal(data, s); err != nil {
		return nil
	}
	return s
}

func (c *warmCache) put(ctx context.Context, s *Session, ttl time.Duration) {
	if c == nil || c.rdb == nil || ttl <= 0 {
		return
	}
	data, err := json.Marshal(s)
	if err != nil {
		return
	}
	_ = c.rdb.Set(ctx, warmKey(s.ID), data, ttl).Err()
}

func (c *warmCache) del(ctx context.Context, id string) {
	if c == nil || c.rdb == nil {
		return
	}
	_ = c.rdb.Del(ctx, warmKey(id)).Err()
}
