package tasks

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/getevo/evo/v2/lib/log"
	"github.com/iesreza/assistant-backend/apps/redis"
)

const (
	stateKeyPrefix = "chat:task:"
	claimKeyPrefix = "chat:task:msg:"
	stateTTL       = 1 * time.Hour
)

// NewStateStore returns the Redis-backed store when Redis is configured,
// otherwise an in-process store. The in-process store only serves
// single-instance deployments, states are lost on restart - the poller's
// database fallback covers that.
func NewStateStore() StateStore {
	if redis.Client != nil {
		return &RedisStateStore{}
	}
	log.Warning("Redis unavailable, using in-process task state store")
	return NewMemoryStateStore()
}

// RedisStateStore keeps task states in Redis so any instance can answer
// status polls.
type RedisStateStore struct{}

func (s *RedisStateStore) Save(state State) error {
	state.UpdatedAt = time.Now()
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to marshal task state: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return redis.Client.Set(ctx, stateKeyPrefix+state.TaskID, data, stateTTL).Err()
}

func (s *RedisStateStore) Load(taskID string) (*State, bool) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	data, err := redis.Client.Get(ctx, stateKeyPrefix+taskID).Bytes()
	if err != nil {
		return nil, false
	}

	var state State
	if err := json.Unmarshal(data, &state); err != nil {
		log.Warning("Corrupt task state for %s: %v", taskID, err)
		return nil, false
	}
	return &state, true
}

func (s *RedisStateStore) ClaimMessage(messageID uint, taskID string, ttl time.Duration) (string, bool) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	key := fmt.Sprintf("%s%d", claimKeyPrefix, messageID)
	ok, err := redis.Client.SetNX(ctx, key, taskID, ttl).Result()
	if err != nil {
		// On Redis failure the claim is granted, duplicate suppression is
		// best effort.
		log.Warning("Failed to claim message %d: %v", messageID, err)
		return taskID, true
	}
	if ok {
		return taskID, true
	}

	existing, err := redis.Client.Get(ctx, key).Result()
	if err != nil || existing == "" {
		return taskID, true
	}
	return existing, false
}

// MemoryStateStore is the single-process fallback state store
type MemoryStateStore struct {
	mu     sync.RWMutex
	states map[string]State
	claims map[uint]claim
}

type claim struct {
	taskID  string
	expires time.Time
}

func NewMemoryStateStore() *MemoryStateStore {
	return &MemoryStateStore{
		states: map[string]State{},
		claims: map[uint]claim{},
	}
}

func (s *MemoryStateStore) Save(state State) error {
	state.UpdatedAt = time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[state.TaskID] = state
	return nil
}

func (s *MemoryStateStore) Load(taskID string) (*State, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	state, ok := s.states[taskID]
	if !ok {
		return nil, false
	}
	return &state, true
}

func (s *MemoryStateStore) ClaimMessage(messageID uint, taskID string, ttl time.Duration) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.claims[messageID]; ok && time.Now().Before(existing.expires) {
		return existing.taskID, false
	}
	s.claims[messageID] = claim{taskID: taskID, expires: time.Now().Add(ttl)}
	return taskID, true
}
