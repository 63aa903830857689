package graph

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigNode_RoundTrip(t *testing.T) {
	c := &ConfigNode{Key: "max_active_tasks", Value: IntValue(10), UpdatedBy: "operator"}
	n := c.ToNode()

	got, err := FromNode(n)
	require.NoError(t, err)

	back, ok := got.(*ConfigNode)
	require.True(t, ok)
	assert.Equal(t, c.Key, back.Key)
	assert.True(t, c.Value.Equal(back.Value))
	assert.Equal(t, c.UpdatedBy, back.UpdatedBy)
}

func TestIncidentNode_RoundTrip(t *testing.T) {
	i := &IncidentNode{
		Severity:        SeverityHigh,
		Status:          IncidentOpen,
		Description:     "redis dial timeout",
		SourceComponent: "taskstore",
		CorrelationID:   "corr-1",
		OccurredAt:      time.Now().UTC().Truncate(time.Second),
	}
	n := i.ToNode()

	got, err := FromNode(n)
	require.NoError(t, err)
	back := got.(*IncidentNode)

	assert.Equal(t, i.Severity, back.Severity)
	assert.Equal(t, i.Description, back.Description)
	assert.Equal(t, i.OccurredAt, back.OccurredAt)
}

func TestFromNode_UnknownClassFallsBackToGeneric(t *testing.T) {
	n := NewNode("x", "mystery", ScopeLocal, map[string]interface{}{NodeClassKey: "NotRegistered"}, "someone")

	got, err := FromNode(n)
	require.NoError(t, err)
	assert.Equal(t, n, got.ToNode())
}

func TestInMemoryStore_MemorizeIsNoOpOnIdenticalValue(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()

	c := &ConfigNode{Key: "k", Value: StringValue("v"), UpdatedBy: "a"}
	require.NoError(t, s.Memorize(ctx, c.ToNode()))

	recalled, err := s.Recall(ctx, c.ToNode().ID, ScopeLocal)
	require.NoError(t, err)
	assert.Equal(t, 1, recalled.Version)

	// same id, same attributes -> re-memorizing must not bump version.
	dup := &ConfigNode{Key: "k", Value: StringValue("v"), UpdatedBy: "a"}
	dupNode := dup.ToNode()
	dupNode.ID = recalled.ID
	require.NoError(t, s.Memorize(ctx, dupNode))

	recalled2, err := s.Recall(ctx, recalled.ID, ScopeLocal)
	require.NoError(t, err)
	assert.Equal(t, 1, recalled2.Version)
}

func TestInMemoryStore_MemorizeBumpsVersionOnChange(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()

	n := NewNode("cfg-1", "config", ScopeLocal, map[string]interface{}{"v": "a"}, "op")
	require.NoError(t, s.Memorize(ctx, n))

	changed := NewNode("cfg-1", "config", ScopeLocal, map[string]interface{}{"v": "b"}, "op")
	require.NoError(t, s.Memorize(ctx, changed))

	got, err := s.Recall(ctx, "cfg-1", ScopeLocal)
	require.NoError(t, err)
	assert.Equal(t, 2, got.Version)
}

func TestInMemoryStore_SearchFiltersByTypeScopeAndPredicate(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()

	open := &IncidentNode{Status: IncidentOpen, SourceComponent: "a"}
	resolved := &IncidentNode{Status: IncidentResolved, SourceComponent: "b"}
	require.NoError(t, s.Memorize(ctx, open.ToNode()))
	require.NoError(t, s.Memorize(ctx, resolved.ToNode()))

	results, err := s.Search(ctx, "incident", ScopeLocal, func(n *Node) bool {
		return n.Attributes["status"] == string(IncidentOpen)
	})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "a", results[0].Attributes["source_component"])
}

func TestInMemoryStore_ForgetRemovesNode(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()

	n := NewNode("x", "incident", ScopeLocal, nil, "op")
	require.NoError(t, s.Memorize(ctx, n))
	require.NoError(t, s.Forget(ctx, "x", ScopeLocal))

	_, err := s.Recall(ctx, "x", ScopeLocal)
	assert.Error(t, err)
}

func TestNewNode_DropsReservedAttributeKeys(t *testing.T) {
	n := NewNode("x", "config", ScopeLocal, map[string]interface{}{
		"id": "hijack", "version": 99, "safe": "kept",
	}, "op")
	assert.NotContains(t, n.Attributes, "id")
	assert.NotContains(t, n.Attributes, "version")
	assert.Equal(t, "kept", n.Attributes["safe"])
	assert.Equal(t, "x", n.ID)
	assert.Equal(t, 1, n.Version)
}
