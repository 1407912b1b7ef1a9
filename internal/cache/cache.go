package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/mr1hm/go-guardian/internal/config"
	"github.com/mr1hm/go-guardian/internal/models"
)

var ErrCacheMiss = errors.New("cache miss")

// KVStore is the subset of redis the status cache needs.
type KVStore interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value string, ttl time.Duration) error
}

func NewRedisClient(cfg config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
}

type RedisKVStore struct {
	client *redis.Client
}

func NewRedisKVStore(client *redis.Client) *RedisKVStore {
	return &RedisKVStore{client: client}
}

func (r *RedisKVStore) Get(ctx context.Context, key string) (string, error) {
	val, err := r.client.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", ErrCacheMiss
		}
		return "", err
	}
	return val, nil
}

func (r *RedisKVStore) Set(ctx context.Context, key string, value string, ttl time.Duration) error {
	return r.client.Set(ctx, key, value, ttl).Err()
}

// MemoryKVStore is a process-local KVStore used when no redis is configured.
type MemoryKVStore struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time
}

type memoryEntry struct {
	value   string
	expires time.Time
}

func NewMemoryKVStore() *MemoryKVStore {
	return &MemoryKVStore{
		entries: make(map[string]memoryEntry),
		now:     time.Now,
	}
}

func (m *MemoryKVStore) Get(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[key]
	if !ok {
		return "", ErrCacheMiss
	}
	if !e.expires.IsZero() && !m.now().Before(e.expires) {
		delete(m.entries, key)
		return "", ErrCacheMiss
	}
	return e.value, nil
}

func (m *MemoryKVStore) Set(_ context.Context, key string, value string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	e := memoryEntry{value: value}
	if ttl > 0 {
		e.expires = m.now().Add(ttl)
	}
	m.entries[key] = e
	return nil
}

const statusKeyPrefix = "guardian:status:"

// StatusStore keeps the latest monitor snapshot per user.
type StatusStore struct {
	kv  KVStore
	ttl time.Duration
}

func NewStatusStore(kv KVStore, ttl time.Duration) *StatusStore {
	return &StatusStore{kv: kv, ttl: ttl}
}

func StatusKey(userID string) string {
	return statusKeyPrefix + userID
}

func (s *StatusStore) Save(ctx context.Context, st models.Status) error {
	data, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("error encoding status: %w", err)
	}
	if err := s.kv.Set(ctx, StatusKey(st.UserID), string(data), s.ttl); err != nil {
		return fmt.Errorf("error saving status for %s: %w", st.UserID, err)
	}
	return nil
}

func (s *StatusStore) Load(ctx context.Context, userID string) (*models.Status, error) {
	raw, err := s.kv.Get(ctx, StatusKey(userID))
	if err != nil {
		return nil, err
	}

	var st models.Status
	if err := json.Unmarshal([]byte(raw), &st); err != nil {
		return nil, fmt.Errorf("error decoding status for %s: %w", userID, err)
	}
	return &st, nil
}
