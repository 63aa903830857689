package processor

import (
	"context"
	"testing"
	"time"

	"github.com/ciris-ai/ciris-core/graph"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDreamProcessor_AdvancesOnePhasePerRound(t *testing.T) {
	p := NewDreamProcessor(DreamHooks{}, time.Millisecond, time.Hour, nil)
	require.NoError(t, p.Initialize(context.Background()))

	res, err := p.Process(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, PhaseEntering, res.DreamPhase)
	assert.False(t, res.DreamDone)

	res, err = p.Process(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, PhaseConsolidating, res.DreamPhase)
}

func TestDreamProcessor_HoldsAtExitingUntilMinDuration(t *testing.T) {
	p := NewDreamProcessor(DreamHooks{}, time.Hour, 2*time.Hour, nil)
	require.NoError(t, p.Initialize(context.Background()))

	var last = StateResult{}
	var err error
	for i, phase := range dreamPhaseOrder {
		last, err = p.Process(context.Background(), i+1)
		require.NoError(t, err)
		if phase == PhaseExiting {
			break
		}
	}
	assert.Equal(t, PhaseExiting, last.DreamPhase)
	assert.False(t, last.DreamDone, "min duration not yet reached, should hold")
}

func TestDreamProcessor_ForceExitsAtMaxDuration(t *testing.T) {
	p := NewDreamProcessor(DreamHooks{}, 0, time.Millisecond, nil)
	require.NoError(t, p.Initialize(context.Background()))
	time.Sleep(5 * time.Millisecond)

	res, err := p.Process(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, PhaseExiting, res.DreamPhase)
	assert.True(t, res.DreamDone)
}

func TestDreamProcessor_InvokesAnalyzeHookDuringAnalyzing(t *testing.T) {
	var called bool
	hooks := DreamHooks{
		Analyze: func(ctx context.Context, now time.Time) error {
			called = true
			return nil
		},
	}
	p := NewDreamProcessor(hooks, time.Millisecond, time.Hour, nil)
	require.NoError(t, p.Initialize(context.Background()))

	for i, phase := range dreamPhaseOrder {
		_, err := p.Process(context.Background(), i+1)
		require.NoError(t, err)
		if phase == PhaseAnalyzing {
			break
		}
	}
	assert.True(t, called)
}

func TestScheduleDreamAndDueDream(t *testing.T) {
	store := graph.NewInMemoryStore()
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, ScheduleDream(ctx, store, now.Add(-time.Minute), time.Minute))
	due, err := DueDream(ctx, store, now)
	require.NoError(t, err)
	assert.True(t, due)
}

func TestDueDream_FalseWhenNotYetScheduled(t *testing.T) {
	store := graph.NewInMemoryStore()
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, ScheduleDream(ctx, store, now.Add(time.Hour), time.Minute))
	due, err := DueDream(ctx, store, now)
	require.NoError(t, err)
	assert.False(t, due)
}
