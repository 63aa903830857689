package processor

import (
	"context"
	"sync"
	"time"

	"github.com/ciris-ai/ciris-core/core"
	"github.com/ciris-ai/ciris-core/taskstore"
)

// WorkConfig bounds the work processor's per-round load (max_active_tasks,
// max_active_thoughts, batch_size). cmd/ciris builds it from the agent
// profile; it is fixed for the processor's lifetime.
type WorkConfig struct {
	MaxActiveTasks    int
	MaxActiveThoughts int
	BatchSize         int
}

func (c WorkConfig) withDefaults() WorkConfig {
	if c.MaxActiveTasks <= 0 {
		c.MaxActiveTasks = 10
	}
	if c.MaxActiveThoughts <= 0 {
		c.MaxActiveThoughts = 50
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 5
	}
	return c
}

// SeedThought generates the initial thought for a task that has none
// yet, e.g. "consider task description". A returned thought without an
// ID is inserted into the store by the work processor; one that already
// has an ID is taken as persisted by the seed itself.
type SeedThought func(ctx context.Context, task *taskstore.Task) (*taskstore.Thought, error)

// WorkProcessor runs the four-phase work round: activate pending tasks,
// seed thoughts for tasks that need one, populate the processing queue,
// and process a batch concurrently through the caller-supplied pipeline.
type WorkProcessor struct {
	baseProcessor
	store      taskstore.Store
	runThought ThoughtRunner
	seed       SeedThought
	config     WorkConfig
	logger     core.Logger
	state      State
}

// NewWorkProcessor builds a processor for the WORK state. Use
// NewPlayProcessor or NewSolitudeProcessor to reuse the same pipeline
// under a different state/task-selection policy.
func NewWorkProcessor(store taskstore.Store, runThought ThoughtRunner, seed SeedThought, cfg WorkConfig, logger core.Logger) *WorkProcessor {
	return newWorkProcessor(StateWork, store, runThought, seed, cfg, logger)
}

// NewPlayProcessor reuses the work pipeline for the PLAY state, the
// spec's "same pipeline, different task-selection policy" phrasing --
// policy differences are expressed by the caller's seed/store wiring.
func NewPlayProcessor(store taskstore.Store, runThought ThoughtRunner, seed SeedThought, cfg WorkConfig, logger core.Logger) *WorkProcessor {
	return newWorkProcessor(StatePlay, store, runThought, seed, cfg, logger)
}

func newWorkProcessor(state State, store taskstore.Store, runThought ThoughtRunner, seed SeedThought, cfg WorkConfig, logger core.Logger) *WorkProcessor {
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	return &WorkProcessor{
		baseProcessor: baseProcessor{states: []State{state}},
		store:         store,
		runThought:    runThought,
		seed:          seed,
		config:        cfg.withDefaults(),
		logger:        logger,
		state:         state,
	}
}

func (p *WorkProcessor) Initialize(context.Context) error { return nil }
func (p *WorkProcessor) Cleanup(context.Context) error    { return nil }

// Process executes one work round for the given state (WORK, PLAY, or
// SOLITUDE all share this pipeline; task-selection policy differences
// are expressed through the caller's SeedThought/store wiring).
func (p *WorkProcessor) Process(ctx context.Context, round int) (StateResult, error) {
	start := time.Now()
	res := StateResult{State: p.state}

	// Phase 1: activate PENDING tasks up to MaxActiveTasks.
	active, err := p.store.ListTasksByStatus(ctx, taskstore.TaskActive)
	if err != nil {
		return res, err
	}
	if slots := p.config.MaxActiveTasks - len(active); slots > 0 {
		pending, err := p.store.ListTasksByStatus(ctx, taskstore.TaskPending)
		if err != nil {
			return res, err
		}
		for i := 0; i < slots && i < len(pending); i++ {
			if err := p.store.SetTaskStatus(ctx, pending[i].ID, taskstore.TaskActive); err != nil {
				res.Errors++
			}
		}
	}

	// Phase 2: seed a thought for any active task that has none.
	if p.seed != nil {
		active, err = p.store.ListTasksByStatus(ctx, taskstore.TaskActive)
		if err != nil {
			return res, err
		}
		for _, task := range active {
			pending, err := p.store.PendingThoughtsForActiveTasks(ctx)
			if err != nil {
				res.Errors++
				continue
			}
			if hasThoughtForTask(pending, task.ID) {
				continue
			}
			th, err := p.seed(ctx, task)
			if err != nil {
				res.Errors++
				continue
			}
			if th != nil && th.ID == "" {
				if _, err := p.store.InsertThought(ctx, th); err != nil {
					res.Errors++
				}
			}
		}
	}

	// Phase 3: populate the processing queue up to MaxActiveThoughts.
	pending, err := p.store.PendingThoughtsForActiveTasks(ctx)
	if err != nil {
		return res, err
	}
	if len(pending) > p.config.MaxActiveThoughts {
		pending = pending[:p.config.MaxActiveThoughts]
	}

	// Phase 4: process a batch cooperatively; errors in one thought
	// never affect siblings.
	batchSize := p.config.BatchSize
	if batchSize > len(pending) {
		batchSize = len(pending)
	}
	batch := pending[:batchSize]

	var (
		wg          sync.WaitGroup
		mu          sync.Mutex
		processed   int
		errs        int
	)
	for _, th := range batch {
		if err := p.store.SetThoughtStatus(ctx, th.ID, taskstore.ThoughtProcessing); err != nil {
			mu.Lock()
			errs++
			mu.Unlock()
			continue
		}
		wg.Add(1)
		go func(th *taskstore.Thought) {
			defer wg.Done()
			_, err := p.runThought(ctx, th)
			mu.Lock()
			processed++
			if err != nil {
				errs++
				_ = p.store.SetThoughtStatus(ctx, th.ID, taskstore.ThoughtFailed)
			} else {
				_ = p.store.SetThoughtStatus(ctx, th.ID, taskstore.ThoughtCompleted)
			}
			mu.Unlock()
		}(th)
	}
	wg.Wait()

	res.ThoughtsProcessed = processed
	res.Errors = errs
	res.Duration = time.Since(start)
	return res, nil
}

func hasThoughtForTask(thoughts []*taskstore.Thought, taskID string) bool {
	for _, th := range thoughts {
		if th.TaskID == taskID {
			return true
		}
	}
	return false
}
