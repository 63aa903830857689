package agent

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ciris-ai/ciris-core/config"
	"github.com/ciris-ai/ciris-core/dma"
	"github.com/ciris-ai/ciris-core/graph"
	"github.com/ciris-ai/ciris-core/internal/apptime"
	"github.com/ciris-ai/ciris-core/processor"
	"github.com/ciris-ai/ciris-core/taskstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func alwaysSpeak(ctx context.Context, th *taskstore.Thought) (dma.ActionType, error) {
	return dma.ActionSpeak, nil
}

func TestProcessor_HappyPathWakeupThenWork(t *testing.T) {
	store := taskstore.NewInMemoryStore()
	gstore := graph.NewInMemoryStore()
	p := New(store, gstore, nil, nil)
	p.SetClock(apptime.NewFake(time.Unix(0, 0)))

	p.Register(processor.NewWakeupProcessor(store, alwaysSpeak, "home", nil))
	p.Register(processor.NewWorkProcessor(store, alwaysSpeak, nil, processor.WorkConfig{}, nil))

	err := p.Start(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, processor.StateWork, p.State())
}

func TestProcessor_WakeupFailureEndsInShutdown(t *testing.T) {
	store := taskstore.NewInMemoryStore()
	p := New(store, nil, nil, nil)
	p.SetClock(apptime.NewFake(time.Unix(0, 0)))

	invalid := func(ctx context.Context, th *taskstore.Thought) (dma.ActionType, error) {
		return dma.ActionTool, nil
	}
	p.Register(processor.NewWakeupProcessor(store, invalid, "home", nil))
	p.Register(processor.NewWorkProcessor(store, alwaysSpeak, nil, processor.WorkConfig{}, nil))

	err := p.Start(context.Background(), 5)
	require.NoError(t, err)
	assert.Equal(t, processor.StateShutdown, p.State())
}

func TestProcessor_ConsecutiveFailuresRequestShutdown(t *testing.T) {
	store := taskstore.NewInMemoryStore()
	p := New(store, nil, nil, nil)
	p.SetClock(apptime.NewFake(time.Unix(0, 0)))
	p.SetMaxConsecutiveFailures(3)

	p.Register(processor.NewWakeupProcessor(store, alwaysSpeak, "home", nil))
	failing := &failingProcessor{states: []processor.State{processor.StateWork}}
	p.Register(failing)

	err := p.Start(context.Background(), 100)
	require.NoError(t, err)
	assert.Equal(t, processor.StateShutdown, p.State())
	assert.GreaterOrEqual(t, failing.calls, 3)
}

func TestProcessor_SolitudeExitHintReturnsToWork(t *testing.T) {
	store := taskstore.NewInMemoryStore()
	p := New(store, nil, nil, nil)
	p.SetClock(apptime.NewFake(time.Unix(0, 0)))

	p.Register(processor.NewWorkProcessor(store, alwaysSpeak, nil, processor.WorkConfig{}, nil))
	hint := func(ctx context.Context, res processor.StateResult) bool { return true }
	p.Register(processor.NewSolitudeProcessor(store, alwaysSpeak, nil, processor.WorkConfig{}, nil, hint))

	require.NoError(t, p.transitionTo(context.Background(), processor.StateSolitude))
	require.NoError(t, p.mainLoop(context.Background(), p.Round()+1))
	assert.Equal(t, processor.StateWork, p.State())
}

func TestProcessor_ModeWorkOnlySuppressesDream(t *testing.T) {
	store := taskstore.NewInMemoryStore()
	gstore := graph.NewInMemoryStore()
	cfg := config.NewService(gstore, nil)
	require.NoError(t, cfg.Set(context.Background(), config.AgentModeKey, config.StringValue(ModeWorkOnly), "test"))

	p := New(store, gstore, cfg, nil)
	p.SetClock(apptime.NewFake(time.Unix(0, 0)))
	require.NoError(t, processor.ScheduleDream(context.Background(), gstore, time.Unix(0, 0).Add(-time.Minute), time.Minute))

	assert.False(t, p.dreamDue(context.Background()))
}

type failingProcessor struct {
	states []processor.State
	calls  int
}

func (f *failingProcessor) SupportedStates() []processor.State { return f.states }
func (f *failingProcessor) CanProcess(s processor.State) bool {
	for _, st := range f.states {
		if st == s {
			return true
		}
	}
	return false
}
func (f *failingProcessor) Initialize(context.Context) error { return nil }
func (f *failingProcessor) Process(ctx context.Context, round int) (processor.StateResult, error) {
	f.calls++
	return processor.StateResult{}, errors.New("boom")
}
func (f *failingProcessor) Cleanup(context.Context) error { return nil }
