package cache

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
)

var _ fiber.Storage = (*Storage)(nil)

// Storage adapts a Redis client to fiber.Storage for the response cache.
// Read and write failures are swallowed so an unreachable Redis behaves like
// an empty cache.
type Storage struct {
	rdb     *redis.Client
	prefix  string
	timeout time.Duration
}

// NewStorage namespaces every key under prefix.
func NewStorage(rdb *redis.Client, prefix string) *Storage {
	return &Storage{rdb: rdb, prefix: prefix, timeout: 500 * time.Millisecond}
}

func (s *Storage) ctx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), s.timeout)
}

func (s *Storage) Get(key string) ([]byte, error) {
	if s.rdb == nil || key == "" {
		return nil, nil
	}
	ctx, cancel := s.ctx()
	defer cancel()
	val, err := s.rdb.Get(ctx, s.prefix+key).Bytes()
	if err != nil {
		return nil, nil
	}
	return val, nil
}

func (s *Storage) Set(key string, val []byte, exp time.Duration) error {
	if s.rdb == nil || key == "" || len(val) == 0 {
		return nil
	}
	ctx, cancel := s.ctx()
	defer cancel()
	_ = s.rdb.Set(ctx, s.prefix+key, val, exp).Err()
	return nil
}

func (s *Storage) Delete(key string) error {
	if s.rdb == nil || key == "" {
		return nil
	}
	ctx, cancel := s.ctx()
	defer cancel()
	_ = s.rdb.Del(ctx, s.prefix+key).Err()
	return nil
}

// Reset deletes every key under the prefix.
func (s *Storage) Reset() error {
	if s.rdb == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	iter := s.rdb.Scan(ctx, 0, s.prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		s.rdb.Del(ctx, iter.Val())
	}
	if err := iter.Err(); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return nil
}

// Close is a no-op; the client is owned by the caller.
func (s *Storage) Close() error {
	return nil
}
