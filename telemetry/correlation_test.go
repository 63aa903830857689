package telemetry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCorrelationLog_StartCompleteRoundTrip(t *testing.T) {
	log := NewCorrelationLog()
	c := log.Start(context.Background(), Correlation{
		Type:        CorrelationServiceInteraction,
		ServiceName: "llm",
		HandlerName: "speak",
	})
	require.Equal(t, CorrelationPending, c.Status)

	log.Complete(c.ID, map[string]interface{}{"ok": true})

	got, ok := log.Get(c.ID)
	require.True(t, ok)
	assert.Equal(t, CorrelationCompleted, got.Status)
	assert.False(t, got.EndedAt.IsZero())
}

func TestCorrelationLog_Fail(t *testing.T) {
	log := NewCorrelationLog()
	c := log.Start(context.Background(), Correlation{Type: CorrelationTraceSpan})
	log.Fail(c.ID, errors.New("boom"))

	got, ok := log.Get(c.ID)
	require.True(t, ok)
	assert.Equal(t, CorrelationFailed, got.Status)
	assert.Equal(t, "boom", got.Response["error"])
}

func TestCorrelationLog_ByParentBuildsTree(t *testing.T) {
	log := NewCorrelationLog()
	root := log.Start(context.Background(), Correlation{Type: CorrelationTraceSpan})
	child1 := log.Start(context.Background(), Correlation{Type: CorrelationServiceInteraction, ParentID: root.ID})
	child2 := log.Start(context.Background(), Correlation{Type: CorrelationMetric, ParentID: root.ID})

	children := log.ByParent(root.ID)
	require.Len(t, children, 2)
	ids := []string{children[0].ID, children[1].ID}
	assert.Contains(t, ids, child1.ID)
	assert.Contains(t, ids, child2.ID)
}

func TestCorrelationLog_SinceFiltersByStartTime(t *testing.T) {
	log := NewCorrelationLog()
	cutoff := time.Now().UTC()
	log.Start(context.Background(), Correlation{Type: CorrelationLogLine, StartedAt: cutoff.Add(-time.Hour)})
	recent := log.Start(context.Background(), Correlation{Type: CorrelationLogLine, StartedAt: cutoff.Add(time.Minute)})

	got := log.Since(cutoff)
	require.Len(t, got, 1)
	assert.Equal(t, recent.ID, got[0].ID)
}
