package client

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrNoPointer is returned when no active workspace is remembered.
var ErrNoPointer = errors.New("no active workspace pointer")

// PointerStore persists the "last viewed workspace" pointer across restarts.
// It is cleared on access revocation and on sign-out.
type PointerStore interface {
	ActiveWorkspace(ctx context.Context) (string, error)
	SetActiveWorkspace(ctx context.Context, workspaceID string) error
	Clear(ctx context.Context) error
}

// RedisPointerStore keeps the pointer in Redis, keyed per user.
type RedisPointerStore struct {
	client *redis.Client
	key    string
}

func NewRedisPointerStore(redisURL, userID string) (*RedisPointerStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return &RedisPointerStore{
		client: client,
		key:    "active_workspace:" + userID,
	}, nil
}

// NewRedisPointerStoreWithClient creates a store from an existing client.
func NewRedisPointerStoreWithClient(client *redis.Client, userID string) *RedisPointerStore {
	return &RedisPointerStore{client: client, key: "active_workspace:" + userID}
}

func (s *RedisPointerStore) ActiveWorkspace(ctx context.Context) (string, error) {
	value, err := s.client.Get(ctx, s.key).Result()
	if err == redis.Nil {
		return "", ErrNoPointer
	}
	if err != nil {
		return "", fmt.Errorf("read active workspace: %w", err)
	}
	return value, nil
}

func (s *RedisPointerStore) SetActiveWorkspace(ctx context.Context, workspaceID string) error {
	if err := s.client.Set(ctx, s.key, workspaceID, 0).Err(); err != nil {
		return fmt.Errorf("save active workspace: %w", err)
	}
	return nil
}

func (s *RedisPointerStore) Clear(ctx context.Context) error {
	if err := s.client.Del(ctx, s.key).Err(); err != nil {
		return fmt.Errorf("clear active workspace: %w", err)
	}
	return nil
}

func (s *RedisPointerStore) Close() error {
	return s.client.Close()
}

// MemoryPointerStore is an in-process PointerStore for tests and clients that
// have no Redis available.
type MemoryPointerStore struct {
	mu    sync.Mutex
	value string
	set   bool
}

func NewMemoryPointerStore() *MemoryPointerStore {
	return &MemoryPointerStore{}
}

func (s *MemoryPointerStore) ActiveWorkspace(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.set {
		return "", ErrNoPointer
	}
	return s.value, nil
}

func (s *MemoryPointerStore) SetActiveWorkspace(ctx context.Context, workspaceID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.value = workspaceID
	s.set = true
	return nil
}

func (s *MemoryPointerStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.value = ""
	s.set = false
	return nil
}
