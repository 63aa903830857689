// Package config implements C3: the Config Service. Every configuration
// value lives as a graph.ConfigNode, version-chained through
// PreviousVersion, so a configuration's full history is recoverable by
// walking the graph store rather than a side table.
package config

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/ciris-ai/ciris-core/core"
	"github.com/ciris-ai/ciris-core/graph"
)

// Value re-exports graph.Value so callers never need to import graph
// directly just to construct a config value.
type Value = graph.Value

var (
	StringValue = graph.StringValue
	IntValue    = graph.IntValue
	FloatValue  = graph.FloatValue
	BoolValue   = graph.BoolValue
	ListValue   = graph.ListValue
	DictValue   = graph.DictValue
)

// Service is the agent-facing config API: Get/Set/List backed by a
// graph.Store, plus a notification hook so a change to a key such as
// agent_mode (config is the single source of truth for operating mode)
// can be observed without polling.
type Service struct {
	store  graph.Store
	logger core.Logger

	mu        sync.RWMutex
	listeners []func(key string, old, new Value)
}

func NewService(store graph.Store, logger core.Logger) *Service {
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	return &Service{store: store, logger: logger}
}

func nodeID(key string) string { return "config:" + key }

func archivedNodeID(key string, version int) string {
	return fmt.Sprintf("config:%s@v%d", key, version)
}

func getKeyAttr(n *graph.Node) string {
	k, _ := n.Attributes["key"].(string)
	return k
}

// Get returns the current value for key, or ErrServiceNotFound if unset.
func (s *Service) Get(ctx context.Context, key string) (Value, error) {
	n, err := s.store.Recall(ctx, nodeID(key), graph.ScopeLocal)
	if err != nil {
		return Value{}, err
	}
	typed, err := graph.FromNode(n)
	if err != nil {
		return Value{}, err
	}
	cfg, ok := typed.(*graph.ConfigNode)
	if !ok {
		return Value{}, core.NewError("config.Get", "registry", fmt.Errorf("node %q is not a config node", key))
	}
	return cfg.Value, nil
}

// GetOrDefault returns the stored value, or def if the key is unset.
func (s *Service) GetOrDefault(ctx context.Context, key string, def Value) Value {
	v, err := s.Get(ctx, key)
	if err != nil {
		return def
	}
	return v
}

// Set writes a new value for key. A Set with a value equal to the current
// one is a no-op (graph.Value.Equal short-circuits before any write), so
// PreviousVersion only advances on an actual change. Before overwriting,
// the prior node is archived under a version-suffixed id so the full
// history chain stays walkable. updatedBy identifies the actor making the
// change (operator, handler name, "wakeup").
func (s *Service) Set(ctx context.Context, key string, value Value, updatedBy string) error {
	var previousVersion string
	var oldValue Value
	existing, err := s.store.Recall(ctx, nodeID(key), graph.ScopeLocal)
	hadExisting := err == nil
	if hadExisting {
		if typed, terr := graph.FromNode(existing); terr == nil {
			if cfg, ok := typed.(*graph.ConfigNode); ok {
				oldValue = cfg.Value
				if cfg.Value.Equal(value) {
					return nil
				}
			}
		}
		archived := *existing
		archived.ID = archivedNodeID(key, existing.Version)
		if err := s.store.Memorize(ctx, &archived); err != nil {
			return err
		}
		previousVersion = archived.ID
	}

	cfg := &graph.ConfigNode{
		Key:             key,
		Value:           value,
		PreviousVersion: previousVersion,
		UpdatedBy:       updatedBy,
	}
	n := cfg.ToNode()
	n.ID = nodeID(key)
	if hadExisting {
		n.Version = existing.Version + 1
	}

	if err := s.store.Memorize(ctx, n); err != nil {
		return err
	}

	s.logger.Info("config updated", map[string]interface{}{"key": key, "updated_by": updatedBy})
	s.notify(key, oldValue, value)
	return nil
}

// List returns every config key currently set whose key starts with
// prefix. An empty prefix matches every key, returning the full
// current config map.
func (s *Service) List(ctx context.Context, prefix string) (map[string]Value, error) {
	nodes, err := s.store.Search(ctx, "config", graph.ScopeLocal, nil)
	if err != nil {
		return nil, err
	}
	out := make(map[string]Value, len(nodes))
	for _, n := range nodes {
		if n.ID != nodeID(getKeyAttr(n)) {
			continue // archived (version-suffixed) snapshot, not the live value
		}
		typed, err := graph.FromNode(n)
		if err != nil {
			continue
		}
		cfg, ok := typed.(*graph.ConfigNode)
		if !ok {
			continue
		}
		if prefix != "" && !strings.HasPrefix(cfg.Key, prefix) {
			continue
		}
		out[cfg.Key] = cfg.Value
	}
	return out, nil
}

// OnChange registers a listener invoked synchronously after every
// successful Set that actually changed the value. The agent processor
// registers no listener; it reads agent_mode through GetOrDefault.
func (s *Service) OnChange(fn func(key string, old, new Value)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

func (s *Service) notify(key string, old, new Value) {
	s.mu.RLock()
	listeners := make([]func(string, Value, Value), len(s.listeners))
	copy(listeners, s.listeners)
	s.mu.RUnlock()
	for _, fn := range listeners {
		fn(key, old, new)
	}
}

// AgentModeKey is the well-known config key the processor watches as the
// single source of truth for which cognitive states are reachable (see
// the agent_mode Open Question resolution).
const AgentModeKey = "agent_mode"
