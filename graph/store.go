package graph

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ciris-ai/ciris-core/core"
	"github.com/go-redis/redis/v8"
)

// Store is C2's persistence contract: memorize (upsert), recall (get),
// search (scan by type/scope with an attribute predicate), and forget
// (tombstone by id). All methods are safe for concurrent use.
type Store interface {
	Memorize(ctx context.Context, n *Node) error
	Recall(ctx context.Context, id string, scope Scope) (*Node, error)
	Search(ctx context.Context, nodeType string, scope Scope, filter func(*Node) bool) ([]*Node, error)
	Forget(ctx context.Context, id string, scope Scope) error
}

func storeKey(id string, scope Scope) string { return string(scope) + "\x00" + id }

// InMemoryStore backs tests and the --mock-llm / no-persistence CLI modes.
// Grounded on core's in-process registry locking idiom: a single RWMutex
// guarding plain maps, snapshot-on-read so callers never hold the lock.
type InMemoryStore struct {
	mu    sync.RWMutex
	nodes map[string]*Node
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{nodes: make(map[string]*Node)}
}

func (s *InMemoryStore) Memorize(_ context.Context, n *Node) error {
	if n == nil || n.ID == "" {
		return core.NewError("graph.Memorize", "validation", fmt.Errorf("node must have an id"))
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	key := storeKey(n.ID, n.Scope)
	if existing, ok := s.nodes[key]; ok {
		if nodesEqual(existing, n) {
			return nil // no-op on identical value, mirrors config service semantics
		}
		n.Version = existing.Version + 1
	}
	n.UpdatedAt = time.Now().UTC()
	cp := *n
	s.nodes[key] = &cp
	return nil
}

func (s *InMemoryStore) Recall(_ context.Context, id string, scope Scope) (*Node, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n, ok := s.nodes[storeKey(id, scope)]
	if !ok {
		return nil, core.NewError("graph.Recall", "not_found", core.ErrServiceNotFound).WithID(id)
	}
	cp := *n
	return &cp, nil
}

func (s *InMemoryStore) Search(_ context.Context, nodeType string, scope Scope, filter func(*Node) bool) ([]*Node, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*Node
	for _, n := range s.nodes {
		if nodeType != "" && n.Type != nodeType {
			continue
		}
		if scope != "" && n.Scope != scope {
			continue
		}
		if filter != nil && !filter(n) {
			continue
		}
		cp := *n
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.Before(out[j].UpdatedAt) })
	return out, nil
}

func (s *InMemoryStore) Forget(_ context.Context, id string, scope Scope) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.nodes, storeKey(id, scope))
	return nil
}

func nodesEqual(a, b *Node) bool {
	if a.Type != b.Type || a.Scope != b.Scope {
		return false
	}
	aj, _ := json.Marshal(a.Attributes)
	bj, _ := json.Marshal(b.Attributes)
	return string(aj) == string(bj)
}

// RedisStore persists nodes in Redis, one JSON string key per (scope, id) plus a
// per-type set for Search, following the same TxPipeline/namespace pattern
// as core.RedisProviderDirectory.
type RedisStore struct {
	client    *redis.Client
	namespace string
	logger    core.Logger
}

func NewRedisStore(redisURL, namespace string, logger core.Logger) (*RedisStore, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, core.NewError("graph.NewRedisStore", "configuration", core.ErrInvalidConfiguration)
	}
	opt.PoolSize = 10
	opt.MinIdleConns = 2
	opt.MaxRetries = 3
	opt.DialTimeout = 5 * time.Second
	opt.ReadTimeout = 5 * time.Second
	opt.WriteTimeout = 5 * time.Second
	client := redis.NewClient(opt)

	var pingErr error
	for i := 0; i < 3; i++ {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		pingErr = client.Ping(ctx).Err()
		cancel()
		if pingErr == nil {
			break
		}
		time.Sleep(time.Duration(i+1) * 200 * time.Millisecond)
	}
	if pingErr != nil {
		return nil, core.NewError("graph.NewRedisStore", "registry", fmt.Errorf("connect to redis: %w", pingErr))
	}

	if namespace == "" {
		namespace = "ciris"
	}
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	return &RedisStore{client: client, namespace: namespace, logger: logger}, nil
}

func (s *RedisStore) nodeKey(id string, scope Scope) string {
	return fmt.Sprintf("%s:graph:%s:%s", s.namespace, scope, id)
}

func (s *RedisStore) typeKey(nodeType string, scope Scope) string {
	return fmt.Sprintf("%s:graph-type:%s:%s", s.namespace, scope, nodeType)
}

func (s *RedisStore) Memorize(ctx context.Context, n *Node) error {
	if n == nil || n.ID == "" {
		return core.NewError("graph.Memorize", "validation", fmt.Errorf("node must have an id"))
	}

	existing, err := s.Recall(ctx, n.ID, n.Scope)
	if err == nil && nodesEqual(existing, n) {
		return nil
	}
	if err == nil {
		n.Version = existing.Version + 1
	}
	n.UpdatedAt = time.Now().UTC()

	data, err := json.Marshal(n)
	if err != nil {
		return core.NewError("graph.Memorize", "registry", err)
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, s.nodeKey(n.ID, n.Scope), data, 0)
	pipe.SAdd(ctx, s.typeKey(n.Type, n.Scope), n.ID)
	if _, err := pipe.Exec(ctx); err != nil {
		s.logger.Error("failed to memorize node", map[string]interface{}{"id": n.ID, "error": err.Error()})
		return core.NewError("graph.Memorize", "registry", fmt.Errorf("%w", core.ErrPersistenceFailure))
	}
	return nil
}

func (s *RedisStore) Recall(ctx context.Context, id string, scope Scope) (*Node, error) {
	data, err := s.client.Get(ctx, s.nodeKey(id, scope)).Result()
	if err == redis.Nil {
		return nil, core.NewError("graph.Recall", "not_found", core.ErrServiceNotFound).WithID(id)
	}
	if err != nil {
		return nil, core.NewError("graph.Recall", "registry", err)
	}
	var n Node
	if err := json.Unmarshal([]byte(data), &n); err != nil {
		return nil, core.NewError("graph.Recall", "registry", err)
	}
	return &n, nil
}

func (s *RedisStore) Search(ctx context.Context, nodeType string, scope Scope, filter func(*Node) bool) ([]*Node, error) {
	ids, err := s.client.SMembers(ctx, s.typeKey(nodeType, scope)).Result()
	if err != nil {
		return nil, core.NewError("graph.Search", "registry", err)
	}

	out := make([]*Node, 0, len(ids))
	for _, id := range ids {
		n, err := s.Recall(ctx, id, scope)
		if err != nil {
			continue // tombstoned between SMEMBERS and GET
		}
		if filter != nil && !filter(n) {
			continue
		}
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.Before(out[j].UpdatedAt) })
	return out, nil
}

func (s *RedisStore) Forget(ctx context.Context, id string, scope Scope) error {
	n, err := s.Recall(ctx, id, scope)
	if err != nil {
		return nil // already gone
	}
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, s.nodeKey(id, scope))
	pipe.SRem(ctx, s.typeKey(n.Type, scope), id)
	_, err = pipe.Exec(ctx)
	return err
}

// Close releases the underlying Redis connection pool.
func (s *RedisStore) Close() error { return s.client.Close() }
