package goauth

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

var ErrCodeNotFound = errors.New("code not found or expired")

// CodeStore keeps one-time verification and reset tokens with a TTL.
type CodeStore interface {
	Save(ctx context.Context, key, value string, ttl time.Duration) error
	// Take returns the value and deletes the key, so a code works once.
	Take(ctx context.Context, key string) (string, error)
}

type RedisCodes struct {
	rdb *redis.Client
}

func NewRedisCodes(rdb *redis.Client) *RedisCodes {
	return &RedisCodes{rdb: rdb}
}

func (c *RedisCodes) Save(ctx context.Context, key, value string, ttl time.Duration) error {
	return c.rdb.Set(ctx, key, value, ttl).Err()
}

func (c *RedisCodes) Take(ctx context.Context, key string) (string, error) {
	val, err := c.rdb.GetDel(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrCodeNotFound
	}
	return val, err
}
