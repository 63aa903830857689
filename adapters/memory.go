package adapters

import (
	"context"

	"github.com/ciris-ai/ciris-core/core"
	"github.com/ciris-ai/ciris-core/graph"
)

// GraphMemory implements Memory directly over the graph store (C2),
// grounded on graph/store.go's Memorize/Recall/Search/Forget contract
// -- the capability and the component share the same four verbs, so
// this is a thin reshaping rather than a new store.
type GraphMemory struct {
	store graph.Store
}

func NewGraphMemory(store graph.Store) *GraphMemory {
	return &GraphMemory{store: store}
}

func (m *GraphMemory) Memorize(ctx context.Context, node MemoryNode) error {
	return m.store.Memorize(ctx, &graph.Node{
		ID:         node.ID,
		Type:       node.Type,
		Scope:      graph.Scope(node.Scope),
		Attributes: node.Attributes,
	})
}

func (m *GraphMemory) Recall(ctx context.Context, id, scope string) (MemoryNode, error) {
	n, err := m.store.Recall(ctx, id, graph.Scope(scope))
	if err != nil {
		return MemoryNode{}, core.NewError("adapters.GraphMemory.Recall", "memory", err).WithID(id)
	}
	return fromGraphNode(n), nil
}

func (m *GraphMemory) Search(ctx context.Context, nodeType, scope string, predicate func(MemoryNode) bool) ([]MemoryNode, error) {
	nodes, err := m.store.Search(ctx, nodeType, graph.Scope(scope), func(n *graph.Node) bool {
		if predicate == nil {
			return true
		}
		return predicate(fromGraphNode(n))
	})
	if err != nil {
		return nil, core.NewError("adapters.GraphMemory.Search", "memory", err)
	}
	out := make([]MemoryNode, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, fromGraphNode(n))
	}
	return out, nil
}

func (m *GraphMemory) Forget(ctx context.Context, id, scope string) error {
	return m.store.Forget(ctx, id, graph.Scope(scope))
}

func fromGraphNode(n *graph.Node) MemoryNode {
	return MemoryNode{ID: n.ID, Type: n.Type, Scope: string(n.Scope), Attributes: n.Attributes}
}
