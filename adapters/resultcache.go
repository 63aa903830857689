package adapters

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/ciris-ai/ciris-core/core"
)

// resultCache is where a Tool implementation parks an async execution's
// outcome under its correlation id until GetToolResult collects it.
// Adapted from the teacher's namespaced TTL key-value store: same
// buildKey/TTL shape, narrowed to one value type (ToolResult) instead
// of an arbitrary interface{}, since that is the only thing this build
// ever stores in it.
type resultCache interface {
	put(ctx context.Context, correlationID string, result ToolResult, ttl time.Duration) error
	wait(ctx context.Context, correlationID string, timeout time.Duration) (ToolResult, error)
}

// inMemoryResultCache backs tests and the CLI/--mock-llm adapters: a
// mutex-guarded map with lazy expiry, mirroring the teacher's
// InMemoryStore.
type inMemoryResultCache struct {
	mu      sync.Mutex
	entries map[string]cachedResult
	ready   map[string]chan struct{}
}

type cachedResult struct {
	result ToolResult
	expiry time.Time
}

func newInMemoryResultCache() *inMemoryResultCache {
	return &inMemoryResultCache{
		entries: make(map[string]cachedResult),
		ready:   make(map[string]chan struct{}),
	}
}

func (c *inMemoryResultCache) put(_ context.Context, correlationID string, result ToolResult, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if ttl <= 0 {
		ttl = time.Hour
	}
	c.entries[correlationID] = cachedResult{result: result, expiry: time.Now().Add(ttl)}
	if ch, ok := c.ready[correlationID]; ok {
		close(ch)
		delete(c.ready, correlationID)
	}
	return nil
}

func (c *inMemoryResultCache) waitChan(correlationID string) chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	if entry, ok := c.entries[correlationID]; ok && time.Now().Before(entry.expiry) {
		done := make(chan struct{})
		close(done)
		return done
	}
	ch, ok := c.ready[correlationID]
	if !ok {
		ch = make(chan struct{})
		c.ready[correlationID] = ch
	}
	return ch
}

func (c *inMemoryResultCache) wait(ctx context.Context, correlationID string, timeout time.Duration) (ToolResult, error) {
	ch := c.waitChan(correlationID)
	select {
	case <-ch:
	case <-time.After(timeout):
		return ToolResult{}, core.NewError("adapters.resultCache.wait", "tool", core.ErrTimeout).WithID(correlationID)
	case <-ctx.Done():
		return ToolResult{}, ctx.Err()
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[correlationID]
	if !ok {
		return ToolResult{}, core.NewError("adapters.resultCache.wait", "tool", core.ErrServiceNotFound).WithID(correlationID)
	}
	return entry.result, nil
}

// redisResultCache is the production backing, grounded on the
// teacher's RedisMemory: connect-with-ping-check, namespaced keys,
// JSON-marshaled values, per-call TTL.
type redisResultCache struct {
	client    *redis.Client
	namespace string
}

func newRedisResultCache(redisURL, namespace string) (*redisResultCache, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, core.NewError("adapters.newRedisResultCache", "configuration", err)
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, core.NewError("adapters.newRedisResultCache", "connection", err)
	}

	if namespace == "" {
		namespace = "tool_results"
	}
	return &redisResultCache{client: client, namespace: namespace}, nil
}

func (c *redisResultCache) key(correlationID string) string {
	return fmt.Sprintf("%s:%s", c.namespace, correlationID)
}

func (c *redisResultCache) put(ctx context.Context, correlationID string, result ToolResult, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = time.Hour
	}
	data, err := json.Marshal(result)
	if err != nil {
		return core.NewError("adapters.redisResultCache.put", "serialization", err)
	}
	if err := c.client.Set(ctx, c.key(correlationID), data, ttl).Err(); err != nil {
		return core.NewError("adapters.redisResultCache.put", "persistence", err)
	}
	return nil
}

// wait polls rather than blocks: Redis has no native wait-for-key, so
// this follows the teacher's connect-with-retry cadence applied to
// polling instead of connecting.
func (c *redisResultCache) wait(ctx context.Context, correlationID string, timeout time.Duration) (ToolResult, error) {
	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for {
		data, err := c.client.Get(ctx, c.key(correlationID)).Result()
		if err == nil {
			var result ToolResult
			if jsonErr := json.Unmarshal([]byte(data), &result); jsonErr != nil {
				return ToolResult{}, core.NewError("adapters.redisResultCache.wait", "serialization", jsonErr)
			}
			return result, nil
		}
		if err != redis.Nil {
			return ToolResult{}, core.NewError("adapters.redisResultCache.wait", "persistence", err)
		}
		if time.Now().After(deadline) {
			return ToolResult{}, core.NewError("adapters.redisResultCache.wait", "tool", core.ErrTimeout).WithID(correlationID)
		}
		select {
		case <-ticker.C:
		case <-ctx.Done():
			return ToolResult{}, ctx.Err()
		}
	}
}

func (c *redisResultCache) Close() error {
	return c.client.Close()
}
