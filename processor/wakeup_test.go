package processor

import (
	"context"
	"testing"

	"github.com/ciris-ai/ciris-core/dma"
	"github.com/ciris-ai/ciris-core/taskstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWakeupProcessor_CompletesAllStepsOnSpeak(t *testing.T) {
	store := taskstore.NewInMemoryStore()
	run := func(ctx context.Context, th *taskstore.Thought) (dma.ActionType, error) {
		return dma.ActionSpeak, nil
	}
	p := NewWakeupProcessor(store, run, "home", nil)
	require.NoError(t, p.Initialize(context.Background()))

	res, err := p.Process(context.Background(), 1)
	require.NoError(t, err)
	assert.True(t, res.WakeupComplete)
	assert.False(t, res.WakeupFailed)
	assert.Equal(t, len(wakeupSteps), res.ThoughtsProcessed)
}

func TestWakeupProcessor_InvalidActionFailsStepAndRoot(t *testing.T) {
	store := taskstore.NewInMemoryStore()
	run := func(ctx context.Context, th *taskstore.Thought) (dma.ActionType, error) {
		return dma.ActionTool, nil // not SPEAK or PONDER
	}
	p := NewWakeupProcessor(store, run, "home", nil)
	require.NoError(t, p.Initialize(context.Background()))

	res, err := p.Process(context.Background(), 1)
	require.NoError(t, err)
	assert.True(t, res.WakeupFailed)

	root, err := store.GetTask(context.Background(), p.rootTaskID)
	require.NoError(t, err)
	assert.Equal(t, taskstore.TaskFailed, root.Status)
}

func TestWakeupProcessor_PonderLeavesStepActiveForRetry(t *testing.T) {
	store := taskstore.NewInMemoryStore()
	calls := 0
	run := func(ctx context.Context, th *taskstore.Thought) (dma.ActionType, error) {
		calls++
		if calls < 2 {
			return dma.ActionPonder, nil
		}
		return dma.ActionSpeak, nil
	}
	p := NewWakeupProcessor(store, run, "home", nil)
	require.NoError(t, p.Initialize(context.Background()))

	res1, err := p.Process(context.Background(), 1)
	require.NoError(t, err)
	assert.False(t, res1.WakeupComplete)

	// subsequent rounds eventually complete once every step speaks.
	for i := 0; i < len(wakeupSteps)*2; i++ {
		res, err := p.Process(context.Background(), i+2)
		require.NoError(t, err)
		if res.WakeupComplete {
			return
		}
	}
	t.Fatal("wakeup never completed")
}
