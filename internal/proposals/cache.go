package proposals

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultTTL is how long a pending proposal survives without activity.
const DefaultTTL = time.Hour

// redisKeyPrefix namespaces proposal records in a shared Redis instance.
const redisKeyPrefix = "proposal:"

// Cache stores at most one [State] per session with a bounded lifetime.
//
// Get returns the zero (Idle) state when the session has no record or the record has
// expired; absence is never an error. Get-then-Put is not transactional, which is
// acceptable because each session drives its own chat turns sequentially.
type Cache interface {
	Get(ctx context.Context, sessionID string) (State, error)
	Put(ctx context.Context, sessionID string, state State, ttl time.Duration) error
}

type memoryEntry struct {
	state    State
	deadline time.Time
}

// MemoryCache is the in-process [Cache] backend, suitable for single-instance deploys.
type MemoryCache struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time
}

// NewMemoryCache creates an empty in-process proposal cache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{
		entries: make(map[string]memoryEntry),
		now:     time.Now,
	}
}

// Get returns the session's state, treating a past-deadline entry as absent and
// dropping it.
func (c *MemoryCache) Get(_ context.Context, sessionID string) (State, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[sessionID]
	if !ok {
		return State{}, nil
	}

	if c.now().After(entry.deadline) {
		delete(c.entries, sessionID)
		return State{}, nil
	}

	return entry.state, nil
}

// Put stores the session's state, replacing any previous record and resetting its deadline.
func (c *MemoryCache) Put(_ context.Context, sessionID string, state State, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[sessionID] = memoryEntry{
		state:    state,
		deadline: c.now().Add(ttl),
	}

	return nil
}

// RedisCache is the Redis-backed [Cache] backend, for deploys where proposals must
// survive process restarts or be shared across instances. Records are JSON values with
// native key expiry.
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache creates a proposal cache backed by the given Redis client.
func NewRedisCache(client *redis.Client) *RedisCache {
	return &RedisCache{client: client}
}

// Get returns the session's state; a missing key reads as the Idle state.
func (c *RedisCache) Get(ctx context.Context, sessionID string) (State, error) {
	data, err := c.client.Get(ctx, redisKeyPrefix+sessionID).Bytes()
	if errors.Is(err, redis.Nil) {
		return State{}, nil
	}
	if err != nil {
		return State{}, fmt.Errorf("failed to read proposal state: %w", err)
	}

	var state State
	if err := json.Unmarshal(data, &state); err != nil {
		return State{}, fmt.Errorf("failed to decode proposal state: %w", err)
	}

	return state, nil
}

// Put stores the session's state with the TTL applied as native key expiry.
func (c *RedisCache) Put(ctx context.Context, sessionID string, state State, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to encode proposal state: %w", err)
	}

	if err := c.client.Set(ctx, redisKeyPrefix+sessionID, data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to write proposal state: %w", err)
	}

	return nil
}
