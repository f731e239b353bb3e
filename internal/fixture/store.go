package fixture

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// ErrNotFound is returned when a document key has no value.
var ErrNotFound = errors.New("fixture: not found")

// Store keeps all fixture state in Redis as JSON documents and raw byte
// blobs. Suites embed miniredis; a real Redis works the same way.
type Store struct {
	rdb    *redis.Client
	logger *zap.Logger
}

// NewStore connects to Redis at addr and verifies the connection.
func NewStore(addr string, db int, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	rdb := redis.NewClient(&redis.Options{
		Addr: addr,
		DB:   db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("fixture: connecting to redis: %w", err)
	}

	logger.Debug("Fixture store connected", zap.String("addr", addr), zap.Int("db", db))
	return &Store{rdb: rdb, logger: logger}, nil
}

// Close releases the Redis connection.
func (s *Store) Close() error {
	return s.rdb.Close()
}

// Flush clears all fixture state. Used between acceptance specs.
func (s *Store) Flush(ctx context.Context) error {
	return s.rdb.FlushDB(ctx).Err()
}

// PutJSON stores a document under key.
func (s *Store) PutJSON(ctx context.Context, key string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("fixture: encoding %s: %w", key, err)
	}
	return s.rdb.Set(ctx, key, data, 0).Err()
}

// GetJSON loads a document from key into out.
func (s *Store) GetJSON(ctx context.Context, key string, out interface{}) error {
	data, err := s.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("fixture: reading %s: %w", key, err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("fixture: decoding %s: %w", key, err)
	}
	return nil
}

// Delete removes keys.
func (s *Store) Delete(ctx context.Context, keys ...string) error {
	return s.rdb.Del(ctx, keys...).Err()
}

// SetString stores a plain string value.
func (s *Store) SetString(ctx context.Context, key, value string) error {
	return s.rdb.Set(ctx, key, value, 0).Err()
}

// GetString loads a plain string value.
func (s *Store) GetString(ctx context.Context, key string) (string, error) {
	val, err := s.rdb.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("fixture: reading %s: %w", key, err)
	}
	return val, nil
}

// AppendBytes appends raw bytes to a blob key, returning the new length.
func (s *Store) AppendBytes(ctx context.Context, key string, data []byte) (int64, error) {
	n, err := s.rdb.Append(ctx, key, string(data)).Result()
	if err != nil {
		return 0, fmt.Errorf("fixture: appending to %s: %w", key, err)
	}
	return n, nil
}

// GetBytes loads a raw blob. A missing key returns an empty slice.
func (s *Store) GetBytes(ctx context.Context, key string) ([]byte, error) {
	data, err := s.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("fixture: reading %s: %w", key, err)
	}
	return data, nil
}

// AddToSet records membership, used for folder/item listings.
func (s *Store) AddToSet(ctx context.Context, key, member string) error {
	return s.rdb.SAdd(ctx, key, member).Err()
}

// SetMembers lists a membership set.
func (s *Store) SetMembers(ctx context.Context, key string) ([]string, error) {
	members, err := s.rdb.SMembers(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("fixture: listing %s: %w", key, err)
	}
	return members, nil
}
