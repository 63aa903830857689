package processor

import (
	"context"
	"time"

	"github.com/ciris-ai/ciris-core/core"
	"github.com/ciris-ai/ciris-core/dma"
	"github.com/ciris-ai/ciris-core/taskstore"
)

// wakeupSteps is the fixed ordered sequence of identity-affirmation
// steps, each a child task of WakeupRootTaskID.
var wakeupSteps = []string{
	"VERIFY_IDENTITY",
	"VALIDATE_INTEGRITY",
	"EVALUATE_RESILIENCE",
	"ACCEPT_INCOMPLETENESS",
	"EXPRESS_GRATITUDE",
}

// WakeupRootTaskID names the root task every step task is parented to.
const WakeupRootTaskID = "WAKEUP_ROOT"

// ThoughtRunner executes the full C7->C8->C9 pipeline for a single
// thought and reports the action ultimately selected, so the wakeup
// processor can enforce its SPEAK/PONDER-only rule without depending
// directly on the dma/conscience/dispatch packages' wiring.
type ThoughtRunner func(ctx context.Context, thought *taskstore.Thought) (dma.ActionType, error)

// WakeupProcessor drives the five-step identity-affirmation sequence.
type WakeupProcessor struct {
	baseProcessor
	store       taskstore.Store
	runThought  ThoughtRunner
	homeChannel string
	logger      core.Logger

	rootTaskID string
	stepTaskID map[string]string
}

func NewWakeupProcessor(store taskstore.Store, runThought ThoughtRunner, homeChannel string, logger core.Logger) *WakeupProcessor {
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	return &WakeupProcessor{
		baseProcessor: baseProcessor{states: []State{StateWakeup}},
		store:         store,
		runThought:    runThought,
		homeChannel:   homeChannel,
		logger:        logger,
		stepTaskID:    make(map[string]string),
	}
}

// Initialize creates the root task and the five step tasks if they do
// not already exist (idempotent across restarts within the same store).
func (p *WakeupProcessor) Initialize(ctx context.Context) error {
	rootID, err := p.store.InsertTask(ctx, &taskstore.Task{
		ID:          WakeupRootTaskID,
		Description: "wakeup identity affirmation",
		Status:      taskstore.TaskActive,
		Priority:    100,
	})
	if err != nil {
		return err
	}
	p.rootTaskID = rootID

	for _, step := range wakeupSteps {
		id, err := p.store.InsertTask(ctx, &taskstore.Task{
			ID:           "WAKEUP_" + step,
			ParentTaskID: rootID,
			Description:  step,
			Status:       taskstore.TaskActive,
			Priority:     50,
		})
		if err != nil {
			return err
		}
		p.stepTaskID[step] = id
	}
	return nil
}

// Process runs one round: seeds a thought for every step lacking one,
// advances any PENDING seeded thought through the pipeline, and reports
// whether the whole sequence is now complete or failed. Completion is
// always derived from step-task statuses, never cached, so a restart
// mid-wakeup recomputes the same answer.
func (p *WakeupProcessor) Process(ctx context.Context, round int) (StateResult, error) {
	start := time.Now()
	res := StateResult{State: StateWakeup}

	for _, step := range wakeupSteps {
		taskID := p.stepTaskID[step]
		task, err := p.store.GetTask(ctx, taskID)
		if err != nil {
			res.Errors++
			continue
		}
		if task.Status != taskstore.TaskActive {
			continue
		}

		pending, err := p.pendingOrProcessing(ctx, taskID)
		if err != nil {
			res.Errors++
			continue
		}
		if pending == nil {
			thoughtID, err := p.store.InsertThought(ctx, &taskstore.Thought{
				TaskID:  taskID,
				Content: step,
			})
			if err != nil {
				res.Errors++
				continue
			}
			pending, err = p.store.GetThought(ctx, thoughtID)
			if err != nil {
				res.Errors++
				continue
			}
		}

		action, err := p.runThought(ctx, pending)
		res.ThoughtsProcessed++
		if err != nil {
			res.Errors++
			p.failStep(ctx, taskID, pending.ID)
			continue
		}
		if action != dma.ActionSpeak && action != dma.ActionPonder {
			p.failStep(ctx, taskID, pending.ID)
			continue
		}
		if action == dma.ActionSpeak {
			_ = p.store.SetThoughtStatus(ctx, pending.ID, taskstore.ThoughtCompleted)
			_ = p.store.SetTaskStatus(ctx, taskID, taskstore.TaskCompleted)
		}
		// PONDER leaves the step ACTIVE; next round re-runs its pending
		// thought, or seeds a new one if none is pending or processing.
	}

	res.WakeupComplete, res.WakeupFailed = p.evaluateCompletion(ctx)
	if res.WakeupFailed {
		_ = p.store.SetTaskStatus(ctx, p.rootTaskID, taskstore.TaskFailed)
	} else if res.WakeupComplete {
		_ = p.store.SetTaskStatus(ctx, p.rootTaskID, taskstore.TaskCompleted)
	}

	res.Duration = time.Since(start)
	return res, nil
}

func (p *WakeupProcessor) failStep(ctx context.Context, taskID, thoughtID string) {
	_ = p.store.SetThoughtStatus(ctx, thoughtID, taskstore.ThoughtFailed)
	_ = p.store.SetTaskStatus(ctx, taskID, taskstore.TaskFailed)
}

func (p *WakeupProcessor) pendingOrProcessing(ctx context.Context, taskID string) (*taskstore.Thought, error) {
	recent, err := p.store.RecentThoughts(ctx, 0)
	if err != nil {
		return nil, err
	}
	for _, th := range recent {
		if th.TaskID == taskID && (th.Status == taskstore.ThoughtPending || th.Status == taskstore.ThoughtProcessing) {
			return th, nil
		}
	}
	return nil, nil
}

// evaluateCompletion derives completion/failure purely from the step
// tasks' current statuses (resolves the spec's wakeup-completion Open
// Question: never cache a separate boolean).
func (p *WakeupProcessor) evaluateCompletion(ctx context.Context) (complete bool, failed bool) {
	complete = true
	for _, step := range wakeupSteps {
		task, err := p.store.GetTask(ctx, p.stepTaskID[step])
		if err != nil {
			complete = false
			continue
		}
		switch task.Status {
		case taskstore.TaskFailed:
			return false, true
		case taskstore.TaskCompleted:
			// step done
		default:
			complete = false
		}
	}
	return complete, false
}

func (p *WakeupProcessor) Cleanup(context.Context) error { return nil }
