// Package handlers implements the six action handlers the dispatcher
// (C9) invokes: one per dma.ActionType. Each is a thin adapter call plus
// the taskstore bookkeeping the spec's end-to-end semantics require --
// PONDER spawns a follow-up thought on the same task, DEFER hands the
// thought to the WiseAuthority and marks the task deferred, REJECT
// records the task's terminal failure, and NOOP changes nothing.
package handlers

import (
	"context"
	"fmt"
	"time"

	"github.com/ciris-ai/ciris-core/adapters"
	"github.com/ciris-ai/ciris-core/core"
	"github.com/ciris-ai/ciris-core/dispatch"
	"github.com/ciris-ai/ciris-core/dma"
	"github.com/ciris-ai/ciris-core/taskstore"
	"github.com/ciris-ai/ciris-core/telemetry"
)

// RegisterAll wires every handler into d, pulling capability providers
// from registry at call time (never cached at registration time) so a
// provider that recovers after a circuit-open window is picked up
// without restarting the dispatcher.
func RegisterAll(d *dispatch.Dispatcher, registry *core.ServiceRegistry, store taskstore.Store, logger core.Logger) {
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	d.Register(dma.ActionSpeak, &speakHandler{registry: registry, logger: logger})
	d.Register(dma.ActionTool, &toolHandler{registry: registry, logger: logger})
	d.Register(dma.ActionPonder, &ponderHandler{store: store, logger: logger})
	d.Register(dma.ActionDefer, &deferHandler{registry: registry, store: store, logger: logger})
	d.Register(dma.ActionReject, &rejectHandler{store: store, logger: logger})
	d.Register(dma.ActionNoop, &noopHandler{})
}

func communication(registry *core.ServiceRegistry, handler string) (adapters.Communication, error) {
	p, err := registry.GetService(core.CapabilityRequest{Handler: handler, ServiceType: adapters.ServiceCommunication})
	if err != nil {
		return nil, err
	}
	comm, ok := p.Instance.(adapters.Communication)
	if !ok {
		return nil, core.NewError("handlers.communication", "registry", fmt.Errorf("provider %q is not a Communication capability", p.Name))
	}
	return comm, nil
}

type speakHandler struct {
	registry *core.ServiceRegistry
	logger   core.Logger
}

func (h *speakHandler) Handle(ctx context.Context, result dma.ActionSelectionDMAResult, thought *taskstore.Thought) (bool, error) {
	telemetry.Counter("handler.speak.dispatched")
	comm, err := communication(h.registry, "speak")
	if err != nil {
		telemetry.RecordError("handler.speak.failed", "communication_unavailable")
		return false, err
	}
	content, _ := result.Parameters["content"].(string)
	if content == "" {
		content = result.Rationale
	}
	if err := comm.SendMessage(ctx, comm.GetDefaultChannel(), content); err != nil {
		telemetry.RecordError("handler.speak.failed", "send_message")
		return false, err
	}
	telemetry.RecordSuccess("handler.speak.completed")
	return false, nil
}

type toolHandler struct {
	registry *core.ServiceRegistry
	logger   core.Logger
}

func (h *toolHandler) Handle(ctx context.Context, result dma.ActionSelectionDMAResult, thought *taskstore.Thought) (bool, error) {
	telemetry.Counter("handler.tool.dispatched")
	p, err := h.registry.GetService(core.CapabilityRequest{Handler: "tool", ServiceType: adapters.ServiceTool})
	if err != nil {
		return false, err
	}
	tool, ok := p.Instance.(adapters.Tool)
	if !ok {
		return false, core.NewError("handlers.toolHandler.Handle", "registry", fmt.Errorf("provider %q is not a Tool capability", p.Name))
	}
	name, _ := result.Parameters["tool"].(string)
	if name == "" {
		return false, core.NewError("handlers.toolHandler.Handle", "validation", fmt.Errorf("tool action missing tool name"))
	}
	_, err = tool.ExecuteTool(ctx, name, result.Parameters)
	return false, err
}

// ponderHandler spawns the follow-up thought the PONDER action requires:
// the task stays active, a new pending thought with this one as parent
// carries reasoning into the next round.
type ponderHandler struct {
	store  taskstore.Store
	logger core.Logger
}

func (h *ponderHandler) Handle(ctx context.Context, result dma.ActionSelectionDMAResult, thought *taskstore.Thought) (bool, error) {
	defer telemetry.Duration("handler.ponder.duration_ms", time.Now())
	if err := h.store.SetThoughtStatus(ctx, thought.ID, taskstore.ThoughtCompleted); err != nil {
		return false, err
	}
	follow := &taskstore.Thought{
		TaskID:      thought.TaskID,
		ParentID:    thought.ID,
		Content:     "reconsidering: " + result.Rationale,
		RoundNumber: thought.RoundNumber + 1,
	}
	if _, err := h.store.InsertThought(ctx, follow); err != nil {
		return false, err
	}
	return true, nil
}

// deferHandler routes the thought to the WiseAuthority and marks the
// parent task deferred so no further thoughts are seeded for it until
// an operator (or policy) acts on the deferral.
type deferHandler struct {
	registry *core.ServiceRegistry
	store    taskstore.Store
	logger   core.Logger
}

func (h *deferHandler) Handle(ctx context.Context, result dma.ActionSelectionDMAResult, thought *taskstore.Thought) (bool, error) {
	telemetry.Counter("handler.defer.dispatched")
	p, err := h.registry.GetService(core.CapabilityRequest{Handler: "defer", ServiceType: adapters.ServiceWiseAuthority})
	if err != nil {
		return false, err
	}
	wa, ok := p.Instance.(adapters.WiseAuthority)
	if !ok {
		return false, core.NewError("handlers.deferHandler.Handle", "registry", fmt.Errorf("provider %q is not a WiseAuthority capability", p.Name))
	}
	if err := wa.SendDeferral(ctx, thought.ID, result.Rationale); err != nil {
		return false, err
	}
	if err := h.store.SetTaskStatus(ctx, thought.TaskID, taskstore.TaskDeferred); err != nil {
		return false, err
	}
	return false, h.store.SetThoughtStatus(ctx, thought.ID, taskstore.ThoughtCompleted)
}

type rejectHandler struct {
	store  taskstore.Store
	logger core.Logger
}

func (h *rejectHandler) Handle(ctx context.Context, result dma.ActionSelectionDMAResult, thought *taskstore.Thought) (bool, error) {
	telemetry.Counter("handler.reject.dispatched")
	if err := h.store.SetTaskStatus(ctx, thought.TaskID, taskstore.TaskFailed); err != nil {
		return false, err
	}
	return false, h.store.SetThoughtStatus(ctx, thought.ID, taskstore.ThoughtCompleted)
}

type noopHandler struct{}

func (h *noopHandler) Handle(ctx context.Context, result dma.ActionSelectionDMAResult, thought *taskstore.Thought) (bool, error) {
	return false, nil
}
