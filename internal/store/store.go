// Package store persists the current workflow state under a single durable
// key per page, so a fresh engine instance can resume a run after a page
// navigation destroyed all in-memory state.
package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/redis/go-redis/v9"

	"github.com/crosslister/postflow/api/schemas"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// ErrNotFound means no state has been persisted for the key.
var ErrNotFound = errors.New("no persisted state")

// StateStore is the durable WorkflowState surface. Exactly one state is
// current per key; Save overwrites unconditionally.
type StateStore interface {
	Save(ctx context.Context, pageKey string, state schemas.WorkflowState) error
	Load(ctx context.Context, pageKey string) (schemas.WorkflowState, error)
	Clear(ctx context.Context, pageKey string) error
}

func redisKey(pageKey string) string {
	return "postflow:state:" + pageKey
}

// RedisStore persists states in redis with a TTL, the backend for
// multi-process deployments.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStore wraps an existing client. A zero ttl means no expiry.
func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl}
}

func (s *RedisStore) Save(ctx context.Context, pageKey string, state schemas.WorkflowState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal workflow state: %w", err)
	}
	if err := s.client.Set(ctx, redisKey(pageKey), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("persist workflow state: %w", err)
	}
	return nil
}

func (s *RedisStore) Load(ctx context.Context, pageKey string) (schemas.WorkflowState, error) {
	var state schemas.WorkflowState
	data, err := s.client.Get(ctx, redisKey(pageKey)).Bytes()
	if errors.Is(err, redis.Nil) {
		return state, ErrNotFound
	}
	if err != nil {
		return state, fmt.Errorf("load workflow state: %w", err)
	}
	if err := json.Unmarshal(data, &state); err != nil {
		return state, fmt.Errorf("unmarshal workflow state: %w", err)
	}
	return state, nil
}

func (s *RedisStore) Clear(ctx context.Context, pageKey string) error {
	if err := s.client.Del(ctx, redisKey(pageKey)).Err(); err != nil {
		return fmt.Errorf("clear workflow state: %w", err)
	}
	return nil
}

// MemoryStore keeps states in-process, for single-shot CLI runs and tests.
type MemoryStore struct {
	mu     sync.RWMutex
	states map[string]schemas.WorkflowState
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{states: make(map[string]schemas.WorkflowState)}
}

func (s *MemoryStore) Save(_ context.Context, pageKey string, state schemas.WorkflowState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[pageKey] = state
	return nil
}

func (s *MemoryStore) Load(_ context.Context, pageKey string) (schemas.WorkflowState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	state, ok := s.states[pageKey]
	if !ok {
		return schemas.WorkflowState{}, ErrNotFound
	}
	return state, nil
}

func (s *MemoryStore) Clear(_ context.Context, pageKey string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.states, pageKey)
	return nil
}
