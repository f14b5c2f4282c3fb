package redis

import (
	"context"
	"errors"

	goredis "github.com/go-redis/redis/v8"

	"charting-terminalv1/internal/model"
)

const kvPrefix = "terminal:kv:"

// KV implements model.KV on Redis strings without expiry.
type KV struct {
	rdb     goredis.Cmdable
	Breaker *CircuitBreaker
}

// NewKV creates a KV on c.
func NewKV(c *Client) *KV {
	return &KV{rdb: c.rdb, Breaker: c.breaker("redis-kv")}
}

func (k *KV) Get(ctx context.Context, key string) ([]byte, error) {
	var raw []byte
	err := k.Breaker.Execute(func() error {
		var err error
		raw, err = k.rdb.Get(ctx, kvPrefix+key).Bytes()
		return err
	}, goredis.Nil)
	if errors.Is(err, goredis.Nil) {
		return nil, model.ErrNotFound
	}
	return raw, err
}

func (k *KV) Set(ctx context.Context, key string, value []byte) error {
	return k.Breaker.Execute(func() error {
		return k.rdb.Set(ctx, kvPrefix+key, value, 0).Err()
	})
}

func (k *KV) Delete(ctx context.Context, key string) error {
	return k.Breaker.Execute(func() error {
		return k.rdb.Del(ctx, kvPrefix+key).Err()
	})
}

var _ model.KV = (*KV)(nil)
