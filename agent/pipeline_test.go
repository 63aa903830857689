package agent

import (
	"context"
	"errors"
	"testing"

	"github.com/ciris-ai/ciris-core/conscience"
	"github.com/ciris-ai/ciris-core/dispatch"
	"github.com/ciris-ai/ciris-core/dma"
	"github.com/ciris-ai/ciris-core/taskstore"
	"github.com/ciris-ai/ciris-core/telemetry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func selectSpeak(ctx context.Context, in dma.Input, e dma.EthicalDMAResult, cs dma.CSDMAResult, ds dma.DSDMAResult) (dma.ActionSelectionDMAResult, error) {
	return dma.ActionSelectionDMAResult{SelectedAction: dma.ActionSpeak}, nil
}

func TestPipeline_HappyPathDispatchesAndCompletesCorrelation(t *testing.T) {
	store := taskstore.NewInMemoryStore()
	taskID, err := store.InsertTask(context.Background(), &taskstore.Task{})
	require.NoError(t, err)
	thoughtID, err := store.InsertThought(context.Background(), &taskstore.Thought{TaskID: taskID, Content: "hi"})
	require.NoError(t, err)
	thought, err := store.GetThought(context.Background(), thoughtID)
	require.NoError(t, err)

	orch := &dma.Orchestrator{Select: selectSpeak}
	d := dispatch.New(store, nil, nil, nil)
	var handled bool
	d.Register(dma.ActionSpeak, dispatch.HandlerFunc(func(ctx context.Context, result dma.ActionSelectionDMAResult, th *taskstore.Thought) (bool, error) {
		handled = true
		return false, nil
	}))
	corr := telemetry.NewCorrelationLog()

	p := NewPipeline(orch, conscience.Checks{}, d, corr, nil)
	action, err := p.Run(context.Background(), thought)
	require.NoError(t, err)
	assert.Equal(t, dma.ActionSpeak, action)
	assert.True(t, handled)

	c, ok := corr.Get(correlationID(taskID, thoughtID))
	require.True(t, ok)
	assert.Equal(t, telemetry.CorrelationCompleted, c.Status)
	assert.Equal(t, true, c.Response["success"])
}

func TestPipeline_DMAFailureForcesPonderThenDefer(t *testing.T) {
	store := taskstore.NewInMemoryStore()
	taskID, err := store.InsertTask(context.Background(), &taskstore.Task{})
	require.NoError(t, err)

	failingEthical := func(ctx context.Context, in dma.Input) (dma.EthicalDMAResult, error) {
		return dma.EthicalDMAResult{}, errors.New("ethical dma raised")
	}
	orch := &dma.Orchestrator{Ethical: failingEthical, Select: selectSpeak}
	p := NewPipeline(orch, conscience.Checks{}, nil, nil, nil)

	for i, want := range []dma.ActionType{dma.ActionPonder, dma.ActionPonder, dma.ActionDefer} {
		thoughtID, err := store.InsertThought(context.Background(), &taskstore.Thought{TaskID: taskID, Content: "x"})
		require.NoError(t, err)
		thought, err := store.GetThought(context.Background(), thoughtID)
		require.NoError(t, err)

		action, err := p.Run(context.Background(), thought)
		require.NoError(t, err)
		assert.Equalf(t, want, action, "round %d", i+1)
	}
}

func TestPipeline_ConscienceVetoRewritesToPonder(t *testing.T) {
	store := taskstore.NewInMemoryStore()
	taskID, err := store.InsertTask(context.Background(), &taskstore.Task{})
	require.NoError(t, err)
	thoughtID, err := store.InsertThought(context.Background(), &taskstore.Thought{TaskID: taskID, Content: "x"})
	require.NoError(t, err)
	thought, err := store.GetThought(context.Background(), thoughtID)
	require.NoError(t, err)

	orch := &dma.Orchestrator{Select: selectSpeak}
	checks := conscience.Checks{
		Entropy: func(ctx context.Context, action dma.ActionSelectionDMAResult) (conscience.EntropyResult, error) {
			return conscience.EntropyResult{Score: 0.95, Threshold: 0.5}, nil
		},
	}
	p := NewPipeline(orch, checks, nil, nil, nil)

	action, err := p.Run(context.Background(), thought)
	require.NoError(t, err)
	assert.Equal(t, dma.ActionPonder, action)
}
