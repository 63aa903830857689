// Package agent implements C11: the Agent Processor, the top-level
// scheduler owning the round counter, the cognitive state machine, and
// the glue that wires C7 (DMA) through C8 (conscience) into C9
// (dispatch) for every thought any state processor hands it.
package agent

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ciris-ai/ciris-core/conscience"
	"github.com/ciris-ai/ciris-core/core"
	"github.com/ciris-ai/ciris-core/dispatch"
	"github.com/ciris-ai/ciris-core/dma"
	"github.com/ciris-ai/ciris-core/taskstore"
	"github.com/ciris-ai/ciris-core/telemetry"
)

// maxForcedPonders caps how many consecutive DMA-failure PONDERs a task
// absorbs before the pipeline escalates to a forced DEFER instead.
const maxForcedPonders = 2

// Pipeline implements processor.ThoughtRunner by composing the
// orchestrator, conscience checks, and dispatcher that the spec's
// end-to-end ordering requires for one thought: DMA fan-out ->
// conscience -> action selection -> dispatch -> correlation close.
type Pipeline struct {
	Orchestrator *dma.Orchestrator
	Checks       conscience.Checks
	Dispatcher   *dispatch.Dispatcher
	Correlations *telemetry.CorrelationLog
	Logger       core.Logger

	mu     sync.Mutex
	forced map[string]int // taskID -> consecutive forced-ponder count
}

func NewPipeline(orchestrator *dma.Orchestrator, checks conscience.Checks, dispatcher *dispatch.Dispatcher, correlations *telemetry.CorrelationLog, logger core.Logger) *Pipeline {
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	return &Pipeline{
		Orchestrator: orchestrator,
		Checks:       checks,
		Dispatcher:   dispatcher,
		Correlations: correlations,
		Logger:       logger,
		forced:       make(map[string]int),
	}
}

// correlationID roots every processed thought's trace span at
// task_<task_id>_<thought_id>, as the spec names it.
func correlationID(taskID, thoughtID string) string {
	return fmt.Sprintf("task_%s_%s", taskID, thoughtID)
}

// Run executes the full pipeline for one thought and reports the action
// ultimately selected. A returned error means the thought should be
// marked FAILED by the caller; a DMA failure is not such an error -- it
// is absorbed into a forced PONDER (or, after two in a row for the same
// task, a forced DEFER) so the caller still marks the thought COMPLETED
// with that forced action as its one final action.
func (p *Pipeline) Run(ctx context.Context, thought *taskstore.Thought) (dma.ActionType, error) {
	start := time.Now()
	id := correlationID(thought.TaskID, thought.ID)
	if p.Correlations != nil {
		p.Correlations.Start(ctx, telemetry.Correlation{
			ID:          id,
			ParentID:    thought.TaskID,
			Type:        telemetry.CorrelationTraceSpan,
			ServiceName: "agent_processor",
			HandlerName: "pipeline",
		})
	}

	in := dma.Input{ThoughtID: thought.ID, TaskID: thought.TaskID, Content: thought.Content}

	result, err := p.Orchestrator.Run(ctx, in)
	if err != nil {
		action := p.forcedAction(thought.TaskID)
		forced := dma.ActionSelectionDMAResult{
			SelectedAction: action,
			Rationale:      "dma evaluation failed: forcing " + string(action),
		}
		if p.Dispatcher != nil {
			_ = p.Dispatcher.Dispatch(ctx, forced, thought)
		}
		p.close(id, start, false, "dma_failure", action)
		return action, nil
	}
	p.resetForced(thought.TaskID)

	outcome, err := conscience.Run(ctx, p.Checks, result.Action)
	if err != nil {
		p.close(id, start, false, "conscience_failure", "")
		return "", core.NewError("agent.Pipeline.Run", "conscience", err).WithID(thought.ID)
	}

	if p.Dispatcher != nil {
		if err := p.Dispatcher.Dispatch(ctx, outcome.Action, thought); err != nil {
			p.close(id, start, false, "dispatch_failure", outcome.Action.SelectedAction)
			return outcome.Action.SelectedAction, err
		}
	}

	p.close(id, start, true, "", outcome.Action.SelectedAction)
	return outcome.Action.SelectedAction, nil
}

func (p *Pipeline) close(id string, start time.Time, success bool, errType string, action dma.ActionType) {
	if p.Correlations == nil {
		return
	}
	resp := map[string]interface{}{
		"success":            success,
		"execution_time_ms":  time.Since(start).Milliseconds(),
		"action":             string(action),
	}
	if errType != "" {
		resp["error_type"] = errType
	}
	p.Correlations.Complete(id, resp)
}

func (p *Pipeline) forcedAction(taskID string) dma.ActionType {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.forced[taskID]++
	if p.forced[taskID] > maxForcedPonders {
		p.forced[taskID] = 0
		return dma.ActionDefer
	}
	return dma.ActionPonder
}

func (p *Pipeline) resetForced(taskID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.forced, taskID)
}
