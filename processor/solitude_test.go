package processor

import (
	"context"
	"testing"

	"github.com/ciris-ai/ciris-core/dma"
	"github.com/ciris-ai/ciris-core/taskstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSolitudeProcessor_TagsStateAndInvokesExitHint(t *testing.T) {
	store := taskstore.NewInMemoryStore()
	run := func(ctx context.Context, th *taskstore.Thought) (dma.ActionType, error) {
		return dma.ActionSpeak, nil
	}

	var hintCalled bool
	hint := func(ctx context.Context, res StateResult) bool {
		hintCalled = true
		return true
	}
	p := NewSolitudeProcessor(store, run, nil, WorkConfig{}, nil, hint)

	res, err := p.Process(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, StateSolitude, res.State)
	assert.True(t, hintCalled)
	assert.True(t, res.ShouldExitSolitude)
}

func TestSolitudeProcessor_NoHintNeverExits(t *testing.T) {
	store := taskstore.NewInMemoryStore()
	run := func(ctx context.Context, th *taskstore.Thought) (dma.ActionType, error) {
		return dma.ActionSpeak, nil
	}
	p := NewSolitudeProcessor(store, run, nil, WorkConfig{}, nil, nil)

	res, err := p.Process(context.Background(), 1)
	require.NoError(t, err)
	assert.False(t, res.ShouldExitSolitude)
}
