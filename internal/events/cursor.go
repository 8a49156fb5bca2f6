package events

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync/atomic"

	"github.com/redis/go-redis/v9"
)

// RedisCursor persists the relay position under a single key.
type RedisCursor struct {
	rdb *redis.Client
	key string
}

func NewRedisCursor(rdb *redis.Client, key string) *RedisCursor {
	return &RedisCursor{rdb: rdb, key: key}
}

func (c *RedisCursor) Load(ctx context.Context) (uint64, error) {
	raw, err := c.rdb.Get(ctx, c.key).Result()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	seq, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("corrupt cursor %q: %w", raw, err)
	}
	return seq, nil
}

func (c *RedisCursor) Save(ctx context.Context, seq uint64) error {
	return c.rdb.Set(ctx, c.key, strconv.FormatUint(seq, 10), 0).Err()
}

// MemoryCursor keeps the position in process; used without Redis.
type MemoryCursor struct {
	seq atomic.Uint64
}

func (c *MemoryCursor) Load(context.Context) (uint64, error) { return c.seq.Load(), nil }

func (c *MemoryCursor) Save(_ context.Context, seq uint64) error {
	c.seq.Store(seq)
	return nil
}
