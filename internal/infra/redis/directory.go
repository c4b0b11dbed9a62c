package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"quiz-match-service/internal/domain"
)

// DefaultTimeout bounds every Directory round-trip; past it the caller treats
// the Directory as unavailable rather than hanging a gameplay event.
const DefaultTimeout = 3 * time.Second

// Directory implements app.Directory on Redis. All records carry a TTL so
// abandoned matches self-expire without an explicit sweep.
type Directory struct {
	client  *redis.Client
	timeout time.Duration
}

func NewDirectory(client *redis.Client, timeout time.Duration) *Directory {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Directory{client: client, timeout: timeout}
}

func (d *Directory) Put(ctx context.Context, key, value string, ttl time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()
	if err := d.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return unavailable("put", key, err)
	}
	return nil
}

func (d *Directory) Get(ctx context.Context, key string) (string, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()
	value, err := d.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, unavailable("get", key, err)
	}
	return value, true, nil
}

func (d *Directory) Del(ctx context.Context, key string) error {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()
	if err := d.client.Del(ctx, key).Err(); err != nil {
		return unavailable("del", key, err)
	}
	return nil
}

func unavailable(op, key string, err error) error {
	return fmt.Errorf("%w: %s %s: %v", domain.ErrDirectoryUnavailable, op, key, err)
}
