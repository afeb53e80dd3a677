package archive

import (
	"context"
	"fmt"
	"time"

	"github.com/couchcryptid/spc-outlook-etl/internal/domain"
	"github.com/redis/go-redis/v9"
)

const (
	fieldData      = "data"
	fieldVariant   = "variant"
	fieldFetchedAt = "fetched_at"
)

// RedisStore keeps each archive in a hash under
// spc-outlook:archive:<date>:<day>:<type>. A zero ttl keeps entries forever.
type RedisStore struct {
	client redis.UniversalClient
	ttl    time.Duration
}

// NewRedisStore creates a store on an existing client.
func NewRedisStore(client redis.UniversalClient, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl}
}

// RedisKey returns the hash key for an archive.
func RedisKey(key domain.ArchiveKey) string {
	return fmt.Sprintf("spc-outlook:archive:%s:%d:%s", key.DateString(), key.Day, key.Type)
}

// Get reads a stored archive.
func (s *RedisStore) Get(ctx context.Context, key domain.ArchiveKey) (domain.Archive, error) {
	fields, err := s.client.HGetAll(ctx, RedisKey(key)).Result()
	if err != nil {
		return domain.Archive{}, fmt.Errorf("redis get %s: %w", key, err)
	}
	data, ok := fields[fieldData]
	if !ok || data == "" {
		return domain.Archive{}, ErrNotFound
	}

	a := domain.Archive{Key: key, Data: []byte(data), Variant: fields[fieldVariant]}
	if ts := fields[fieldFetchedAt]; ts != "" {
		if a.FetchedAt, err = time.Parse(time.RFC3339Nano, ts); err != nil {
			return domain.Archive{}, fmt.Errorf("redis get %s: bad %s: %w", key, fieldFetchedAt, err)
		}
	}
	return a, nil
}

// Put writes the archive hash and refreshes its TTL in one transaction.
func (s *RedisStore) Put(ctx context.Context, a domain.Archive) error {
	k := RedisKey(a.Key)
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, k)
		pipe.HSet(ctx, k,
			fieldData, a.Data,
			fieldVariant, a.Variant,
			fieldFetchedAt, a.FetchedAt.UTC().Format(time.RFC3339Nano),
		)
		if s.ttl > 0 {
			pipe.Expire(ctx, k, s.ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis put %s: %w", a.Key, err)
	}
	return nil
}

// Ping checks connectivity.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
