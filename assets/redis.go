package assets

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/redis/go-redis/v9"
)

const redisPrefix = "assets:"

// RedisStore keeps entries under "assets:<cache>:<sha256 of url>".
type RedisStore struct {
	rdb *redis.Client
}

// NewRedisStore connects to redisURL and checks the connection.
func NewRedisStore(ctx context.Context, redisURL string) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("assets: invalid redis url: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("assets: redis unreachable: %w", err)
	}
	return &RedisStore{rdb: rdb}, nil
}

// NewRedisStoreFromClient wraps an existing client.
func NewRedisStoreFromClient(rdb *redis.Client) *RedisStore {
	return &RedisStore{rdb: rdb}
}

func redisKey(cache, url string) string {
	return redisPrefix + cache + ":" + entryKey(url)
}

func (s *RedisStore) Get(ctx context.Context, cache, url string) (*Entry, error) {
	data, err := s.rdb.Get(ctx, redisKey(cache, url)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrMiss
	}
	if err != nil {
		return nil, fmt.Errorf("assets: redis get: %w", err)
	}
	var e Entry
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("assets: decode entry %s: %w", url, err)
	}
	return &e, nil
}

// Put writes every entry in one MULTI/EXEC transaction.
func (s *RedisStore) Put(ctx context.Context, cache string, entries ...Entry) error {
	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, e := range entries {
			data, err := json.Marshal(e)
			if err != nil {
				return err
			}
			pipe.Set(ctx, redisKey(cache, e.URL), data, 0)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("assets: redis put: %w", err)
	}
	return nil
}

func (s *RedisStore) Caches(ctx context.Context) ([]string, error) {
	seen := map[string]struct{}{}
	iter := s.rdb.Scan(ctx, 0, redisPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		rest := strings.TrimPrefix(iter.Val(), redisPrefix)
		if i := strings.LastIndex(rest, ":"); i > 0 {
			seen[rest[:i]] = struct{}{}
		}
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("assets: redis scan: %w", err)
	}
	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (s *RedisStore) Delete(ctx context.Context, cache string) error {
	iter := s.rdb.Scan(ctx, 0, redisPrefix+cache+":*", 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("assets: redis scan: %w", err)
	}
	for start := 0; start < len(keys); start += 100 {
		end := min(start+100, len(keys))
		if err := s.rdb.Del(ctx, keys[start:end]...).Err(); err != nil {
			return fmt.Errorf("assets: redis delete: %w", err)
		}
	}
	return nil
}

// Close closes the redis client.
func (s *RedisStore) Close() error {
	return s.rdb.Close()
}
