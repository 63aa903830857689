package agent

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/ciris-ai/ciris-core/config"
	"github.com/ciris-ai/ciris-core/core"
	"github.com/ciris-ai/ciris-core/graph"
	"github.com/ciris-ai/ciris-core/internal/apptime"
	"github.com/ciris-ai/ciris-core/processor"
	"github.com/ciris-ai/ciris-core/taskstore"
)

// ModeNormal allows every cognitive-state transition. ModeWorkOnly
// confines the agent to WORK (and SHUTDOWN on request), suppressing
// PLAY/SOLITUDE/DREAM transitions -- the agent_mode Open Question's
// single source of truth, read from config.Service.
const (
	ModeNormal   = "normal"
	ModeWorkOnly = "work_only"
)

// FirstDreamDelay is how far out the agent processor schedules the
// first dream after a successful wakeup, per the start() lifecycle.
const FirstDreamDelay = 6 * time.Hour

// DefaultShutdownWait bounds how long cleanup waits for the current state
// processor's Cleanup call during shutdown.
const DefaultShutdownWait = 10 * time.Second

// Processor is C11: it owns the round counter, the cancellable stop
// event, and the state-processor map. It never runs two rounds
// concurrently and serializes every state transition through its own
// loop, per the spec's ownership rule.
type Processor struct {
	store      taskstore.Store
	graphStore graph.Store
	config     *config.Service
	logger     core.Logger

	mu         sync.Mutex
	processors map[processor.State]processor.StateProcessor
	current    processor.State
	round      int
	stopCh     chan struct{}
	stopOnce   sync.Once

	maxConsecutiveFailures int
	consecutiveFailures    int

	stateDelay       func(s processor.State) time.Duration
	dreamDeferWindow time.Duration
	preloadTasks     []taskstore.Task

	clock   apptime.Source
	onRound func(round int, res processor.StateResult)
}

func New(store taskstore.Store, graphStore graph.Store, cfg *config.Service, logger core.Logger) *Processor {
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	return &Processor{
		store:                  store,
		graphStore:             graphStore,
		config:                 cfg,
		logger:                 logger,
		processors:             make(map[processor.State]processor.StateProcessor),
		current:                processor.StateShutdown,
		stopCh:                 make(chan struct{}),
		maxConsecutiveFailures: 5,
		dreamDeferWindow:       time.Hour,
		stateDelay:             func(processor.State) time.Duration { return 0 },
		clock:                  apptime.Real{},
	}
}

// SetClock overrides the time source, used by tests to avoid real
// sleeps during the consecutive-failure backoff.
func (p *Processor) SetClock(c apptime.Source) {
	if c != nil {
		p.clock = c
	}
}

// Register wires a concrete state processor for every state it
// supports, overwriting any previous registration for those states.
func (p *Processor) Register(sp processor.StateProcessor) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, s := range sp.SupportedStates() {
		p.processors[s] = sp
	}
}

// SetStateDelay installs the per-state inter-round delay policy.
func (p *Processor) SetStateDelay(fn func(s processor.State) time.Duration) {
	if fn != nil {
		p.stateDelay = fn
	}
}

// SetMaxConsecutiveFailures overrides the default of 5.
func (p *Processor) SetMaxConsecutiveFailures(n int) {
	if n > 0 {
		p.maxConsecutiveFailures = n
	}
}

// SetPreloadTasks supplies tasks the processor inserts into the store
// right after a successful wakeup, before entering the main loop.
func (p *Processor) SetPreloadTasks(tasks []taskstore.Task) {
	p.preloadTasks = tasks
}

// OnRound installs an observer invoked after every round completes,
// useful for operator-visible logging or metrics without coupling this
// package to a specific telemetry backend.
func (p *Processor) OnRound(fn func(round int, res processor.StateResult)) {
	p.onRound = fn
}

// State returns the current cognitive state.
func (p *Processor) State() processor.State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current
}

// Round returns the current round number.
func (p *Processor) Round() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.round
}

// Stop sets the cancellable stop event. The current round finishes,
// then Start's loop exits after cleaning up.
func (p *Processor) Stop() {
	p.stopOnce.Do(func() { close(p.stopCh) })
}

func (p *Processor) stopRequested() bool {
	select {
	case <-p.stopCh:
		return true
	default:
		return false
	}
}

func (p *Processor) transitionTo(ctx context.Context, s processor.State) error {
	p.mu.Lock()
	from := p.current
	p.current = s
	p.mu.Unlock()
	if from == s {
		return nil
	}
	if sp, ok := p.processors[s]; ok {
		return sp.Initialize(ctx)
	}
	return nil
}

// Start runs the full lifecycle: SHUTDOWN->WAKEUP, wakeup rounds until
// complete or failed, then WORK with preload tasks and a scheduled
// first dream, then the main loop until numRounds is reached (0 means
// run until Stop is called) or the stop event fires.
func (p *Processor) Start(ctx context.Context, numRounds int) error {
	if err := p.transitionTo(ctx, processor.StateWakeup); err != nil {
		return err
	}

	wakeupOK, err := p.runWakeup(ctx)
	if err != nil {
		return err
	}
	if !wakeupOK {
		return p.transitionTo(ctx, processor.StateShutdown)
	}

	if err := p.transitionTo(ctx, processor.StateWork); err != nil {
		return err
	}
	p.loadPreloadTasks(ctx)
	if p.graphStore != nil {
		_ = processor.ScheduleDream(ctx, p.graphStore, p.clock.Now().UTC().Add(FirstDreamDelay), p.dreamDeferWindow)
	}

	return p.mainLoop(ctx, numRounds)
}

func (p *Processor) runWakeup(ctx context.Context) (bool, error) {
	wp, ok := p.processors[processor.StateWakeup]
	if !ok {
		return false, core.NewError("agent.Start", "state", core.ErrNotInitialized)
	}
	for {
		if p.stopRequested() {
			return false, nil
		}
		p.mu.Lock()
		p.round++
		round := p.round
		p.mu.Unlock()

		res, err := wp.Process(ctx, round)
		if p.onRound != nil {
			p.onRound(round, res)
		}
		if err != nil {
			return false, nil
		}
		if res.WakeupFailed {
			return false, nil
		}
		if res.WakeupComplete {
			return true, nil
		}
	}
}

func (p *Processor) loadPreloadTasks(ctx context.Context) {
	for _, t := range p.preloadTasks {
		task := t
		if task.Status == "" {
			task.Status = taskstore.TaskPending
		}
		if _, err := p.store.InsertTask(ctx, &task); err != nil {
			p.logger.Warn("preload task insert failed", map[string]interface{}{"error": err.Error()})
		}
	}
}

// mainLoop increments the round counter, checks shutdown/dream
// triggers, delegates to the current state processor, applies its
// delay, handles the resulting transition, and backs off on
// consecutive per-round failures.
func (p *Processor) mainLoop(ctx context.Context, numRounds int) error {
	for {
		if p.stopRequested() {
			return p.cleanup(ctx)
		}
		if numRounds > 0 && p.Round() >= numRounds {
			return p.cleanup(ctx)
		}

		current := p.State()
		if current == processor.StateShutdown {
			return p.cleanup(ctx)
		}

		sp, ok := p.processors[current]
		if !ok {
			p.logger.Error("no processor registered for state", map[string]interface{}{"state": string(current)})
			return p.cleanup(ctx)
		}

		if current == processor.StateWork && p.dreamDue(ctx) {
			if err := p.transitionTo(ctx, processor.StateDream); err != nil {
				p.logger.Warn("dream transition failed", map[string]interface{}{"error": err.Error()})
			}
			continue
		}

		p.mu.Lock()
		p.round++
		round := p.round
		p.mu.Unlock()

		res, err := sp.Process(ctx, round)
		if p.onRound != nil {
			p.onRound(round, res)
		}
		if err != nil {
			if p.handleFailure(ctx) {
				return p.cleanup(ctx)
			}
			continue
		}
		p.consecutiveFailures = 0

		p.applyTransition(ctx, current, res)

		if d := p.stateDelay(current); d > 0 {
			select {
			case <-p.clock.After(d):
			case <-p.stopCh:
				return p.cleanup(ctx)
			}
		}
	}
}

// handleFailure applies the consecutive-failure backoff and reports
// whether global shutdown has now been requested.
func (p *Processor) handleFailure(ctx context.Context) bool {
	p.consecutiveFailures++
	n := p.consecutiveFailures
	if n >= p.maxConsecutiveFailures {
		p.logger.Error("consecutive round failures reached limit, requesting shutdown", map[string]interface{}{"count": n})
		_ = p.transitionTo(ctx, processor.StateShutdown)
		return true
	}
	backoff := time.Duration(math.Min(float64(5*n), 60)) * time.Second
	select {
	case <-p.clock.After(backoff):
	case <-p.stopCh:
	}
	return false
}

// applyTransition decides the next state from the current state's
// result alone; agent_mode is read from config.Service by dreamDue, not
// here.
func (p *Processor) applyTransition(ctx context.Context, current processor.State, res processor.StateResult) {
	switch current {
	case processor.StateSolitude:
		if res.ShouldExitSolitude {
			_ = p.transitionTo(ctx, processor.StateWork)
		}
	case processor.StateDream:
		if res.DreamDone {
			_ = p.transitionTo(ctx, processor.StateWork)
		}
	case processor.StateShutdown:
		// terminal: ignore any reported result.
	}
	if current != processor.StateShutdown && res.ShutdownReady {
		_ = p.transitionTo(ctx, processor.StateShutdown)
	}
}

func (p *Processor) modeAllowsDigression(ctx context.Context) bool {
	if p.config == nil {
		return true
	}
	mode := p.config.GetOrDefault(ctx, config.AgentModeKey, config.StringValue(ModeNormal))
	return mode.Str != ModeWorkOnly
}

func (p *Processor) dreamDue(ctx context.Context) bool {
	if p.graphStore == nil || !p.modeAllowsDigression(ctx) {
		return false
	}
	due, err := processor.DueDream(ctx, p.graphStore, p.clock.Now().UTC())
	if err != nil {
		return false
	}
	return due
}

func (p *Processor) cleanup(ctx context.Context) error {
	p.mu.Lock()
	sp := p.processors[p.current]
	p.mu.Unlock()
	if sp == nil {
		return nil
	}
	done := make(chan error, 1)
	go func() { done <- sp.Cleanup(ctx) }()
	select {
	case err := <-done:
		return err
	case <-time.After(DefaultShutdownWait):
		return core.NewError("agent.cleanup", "state", core.ErrTimeout)
	}
}
