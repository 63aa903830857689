package processor

import (
	"context"
	"time"

	"github.com/ciris-ai/ciris-core/core"
	"github.com/ciris-ai/ciris-core/taskstore"
)

// ShutdownRoundCap bounds how many rounds shutdown waits for its
// thought to complete before declaring itself ready anyway, the
// implementation-defined cap the spec allows.
const ShutdownRoundCap = 10

// ShutdownTaskID names the single task created for graceful shutdown.
const ShutdownTaskID = "SHUTDOWN_ROOT"

// ShutdownProcessor is terminal: once entered, pending non-shutdown
// thoughts are not processed, and the process exits once shutdown_ready
// or the round cap is reached.
type ShutdownProcessor struct {
	baseProcessor
	store      taskstore.Store
	runThought ThoughtRunner
	logger     core.Logger

	taskID    string
	thoughtID string
	startRound int
}

func NewShutdownProcessor(store taskstore.Store, runThought ThoughtRunner, logger core.Logger) *ShutdownProcessor {
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	return &ShutdownProcessor{
		baseProcessor: baseProcessor{states: []State{StateShutdown}},
		store:         store,
		runThought:    runThought,
		logger:        logger,
	}
}

func (p *ShutdownProcessor) Initialize(ctx context.Context) error {
	id, err := p.store.InsertTask(ctx, &taskstore.Task{
		ID:          ShutdownTaskID,
		Description: "graceful shutdown",
		Status:      taskstore.TaskActive,
		Priority:    1000,
	})
	if err != nil {
		return err
	}
	p.taskID = id

	thoughtID, err := p.store.InsertThought(ctx, &taskstore.Thought{TaskID: id, Content: "shutdown"})
	if err != nil {
		return err
	}
	p.thoughtID = thoughtID
	return nil
}

func (p *ShutdownProcessor) Process(ctx context.Context, round int) (StateResult, error) {
	start := time.Now()
	res := StateResult{State: StateShutdown}
	if p.startRound == 0 {
		p.startRound = round
	}

	thought, err := p.store.GetThought(ctx, p.thoughtID)
	if err != nil {
		res.Errors++
		res.ShutdownReady = true
		res.Duration = time.Since(start)
		return res, nil
	}

	if thought.Status == taskstore.ThoughtPending {
		_, err := p.runThought(ctx, thought)
		res.ThoughtsProcessed = 1
		if err != nil {
			res.Errors++
			_ = p.store.SetThoughtStatus(ctx, thought.ID, taskstore.ThoughtFailed)
		} else {
			_ = p.store.SetThoughtStatus(ctx, thought.ID, taskstore.ThoughtCompleted)
		}
	}

	thought, err = p.store.GetThought(ctx, p.thoughtID)
	if err == nil && (thought.Status == taskstore.ThoughtCompleted || thought.Status == taskstore.ThoughtFailed) {
		res.ShutdownReady = true
		_ = p.store.SetTaskStatus(ctx, p.taskID, taskstore.TaskCompleted)
	} else if round-p.startRound >= ShutdownRoundCap {
		res.ShutdownReady = true
		_ = p.store.SetTaskStatus(ctx, p.taskID, taskstore.TaskFailed)
	}

	res.Duration = time.Since(start)
	return res, nil
}

func (p *ShutdownProcessor) Cleanup(context.Context) error { return nil }
