package history

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Store keeps per-key record lists in Redis, newest first.
type Store struct {
	rdb    *redis.Client
	prefix string
}

type Options struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
}

func NewStore(opts Options) *Store {
	rdb := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	return &Store{rdb: rdb, prefix: opts.Prefix}
}

func (s *Store) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

func (s *Store) Close() error {
	return s.rdb.Close()
}

// SlowLogKey is the list key holding one cluster's slow-log history.
func (s *Store) SlowLogKey(clusterName string) string {
	return fmt.Sprintf("%s.cluster.%s.slowLog", s.prefix, clusterName)
}

func (s *Store) Prepend(ctx context.Context, key string, record []byte) error {
	return s.rdb.LPush(ctx, key, record).Err()
}

// Trim keeps the first maxCount entries of the list.
func (s *Store) Trim(ctx context.Context, key string, maxCount int64) error {
	if maxCount <= 0 {
		return s.rdb.Del(ctx, key).Err()
	}
	return s.rdb.LTrim(ctx, key, 0, maxCount-1).Err()
}

// Range returns up to limit raw entries starting at offset, and the list length.
func (s *Store) Range(ctx context.Context, key string, offset, limit int64) ([]string, int64, error) {
	total, err := s.rdb.LLen(ctx, key).Result()
	if err != nil {
		return nil, 0, err
	}
	if limit <= 0 || offset >= total {
		return nil, total, nil
	}
	items, err := s.rdb.LRange(ctx, key, offset, offset+limit-1).Result()
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}
