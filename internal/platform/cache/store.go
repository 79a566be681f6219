package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrMiss is returned when a key is absent or expired.
var ErrMiss = errors.New("platform/cache: miss")

// Store keeps short-lived JSON documents in Redis.
type Store struct {
	client *redis.Client
	prefix string
}

// NewStore builds a Store whose keys are prefixed with prefix.
func NewStore(client *redis.Client, prefix string) *Store {
	return &Store{client: client, prefix: prefix}
}

func (s *Store) key(id string) string {
	return s.prefix + ":" + id
}

// Put serialises value under id for ttl.
func (s *Store) Put(ctx context.Context, id string, value any, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, s.key(id), raw, ttl).Err()
}

// Get decodes the document stored under id into dest.
func (s *Store) Get(ctx context.Context, id string, dest any) error {
	raw, err := s.client.Get(ctx, s.key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return ErrMiss
	}
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, dest)
}

// Delete removes the document.
func (s *Store) Delete(ctx context.Context, id string) error {
	return s.client.Del(ctx, s.key(id)).Err()
}

// Prefix returns the key prefix, used by maintenance jobs to scan sessions.
func (s *Store) Prefix() string {
	return s.prefix
}

// Scan lists stored ids.
func (s *Store) Scan(ctx context.Context) ([]string, error) {
	var (
		cursor uint64
		ids    []string
	)
	for {
		keys, next, err := s.client.Scan(ctx, cursor, s.prefix+":*", 200).Result()
		if err != nil {
			return nil, err
		}
		for _, k := range keys {
			ids = append(ids, k[len(s.prefix)+1:])
		}
		if next == 0 {
			return ids, nil
		}
		cursor = next
	}
}
