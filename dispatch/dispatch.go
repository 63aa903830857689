// Package dispatch implements C9: the Action Dispatcher. It owns the
// action_type -> handler map and the five-step dispatch sequence the
// spec requires, including the wait-for-registry-ready gate that lets
// the dispatcher treat a not-yet-ready capability as "retry next round"
// rather than a thought failure.
package dispatch

import (
	"context"
	"time"

	"github.com/ciris-ai/ciris-core/core"
	"github.com/ciris-ai/ciris-core/dma"
	"github.com/ciris-ai/ciris-core/taskstore"
)

// Handler executes a selected action against the thought that produced
// it. HandledFollowUp lets a handler report that it already spawned a
// follow-up thought and therefore the dispatcher must not additionally
// mark the original thought FAILED on a subsequent error from the same
// action (the "already handled" check, spec Open Question 2).
type Handler interface {
	Handle(ctx context.Context, result dma.ActionSelectionDMAResult, thought *taskstore.Thought) (HandledFollowUp bool, err error)
}

// HandlerFunc adapts a plain function to Handler.
type HandlerFunc func(ctx context.Context, result dma.ActionSelectionDMAResult, thought *taskstore.Thought) (bool, error)

func (f HandlerFunc) Handle(ctx context.Context, result dma.ActionSelectionDMAResult, thought *taskstore.Thought) (bool, error) {
	return f(ctx, result, thought)
}

// Filter may veto dispatch for a given action without failing the
// thought -- e.g. a maintenance-mode filter suppressing SPEAK actions.
// Matches the teacher's capability-filter idiom (core.Provider.Covers)
// generalized to a predicate over the action itself.
type Filter func(ctx context.Context, action dma.ActionSelectionDMAResult) bool

// RegistryReadyWaiter is the subset of core.ServiceRegistry the
// dispatcher depends on, so tests can substitute a fake without pulling
// in the whole registry.
type RegistryReadyWaiter interface {
	WaitReady(ctx context.Context, requiredTypes []string, timeout time.Duration) error
}

// Dispatcher holds the action_type -> handler map and executes the
// five-step sequence from spec 4.7.
type Dispatcher struct {
	handlers map[dma.ActionType]Handler
	store    taskstore.Store
	registry RegistryReadyWaiter
	metrics  core.MetricsRegistry
	logger   core.Logger

	Filter         Filter
	RequiredTypes  []string
	ReadyTimeout   time.Duration
}

func New(store taskstore.Store, registry RegistryReadyWaiter, metrics core.MetricsRegistry, logger core.Logger) *Dispatcher {
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	return &Dispatcher{
		handlers:     make(map[dma.ActionType]Handler),
		store:        store,
		registry:     registry,
		metrics:      metrics,
		logger:       logger,
		ReadyTimeout: 5 * time.Second,
	}
}

// Register wires a handler for an action type, overwriting any previous
// registration -- last writer wins.
func (d *Dispatcher) Register(action dma.ActionType, h Handler) {
	d.handlers[action] = h
}

func (d *Dispatcher) emit(name string, labels ...string) {
	if d.metrics == nil {
		return
	}
	d.metrics.Counter(name, labels...)
}

// Dispatch runs the five-step sequence. It never returns an error for
// thought-level failures -- those are recorded as thought status
// transitions -- only for caller-programming errors (nil thought).
func (d *Dispatcher) Dispatch(ctx context.Context, result dma.ActionSelectionDMAResult, thought *taskstore.Thought) error {
	if thought == nil {
		return core.NewError("dispatch.Dispatch", "validation", core.ErrNoHandler)
	}
	action := result.SelectedAction

	// Step 1: optional filter veto, not a failure.
	if d.Filter != nil && d.Filter(ctx, result) {
		d.logger.Info("dispatch filtered", map[string]interface{}{"thought_id": thought.ID, "action": string(action)})
		return nil
	}

	// Step 2: no handler registered.
	handler, ok := d.handlers[action]
	if !ok {
		d.emit("dispatch_no_handler_total", "action", string(action))
		return d.fail(ctx, thought, "no_handler")
	}

	// Step 3: wait for the registry, timing out without failing the thought.
	if d.registry != nil && len(d.RequiredTypes) > 0 {
		if err := d.registry.WaitReady(ctx, d.RequiredTypes, d.readyTimeout()); err != nil {
			d.logger.Warn("dispatch aborted waiting for registry", map[string]interface{}{
				"thought_id": thought.ID, "action": string(action),
			})
			return nil // a later round retries
		}
	}

	// Step 4: hot-path metrics before invocation.
	d.emit("handler_invoked_"+string(action), "action", string(action))
	d.emit("handler_invoked_total", "action", string(action))

	// Step 5: invoke, never swallowing the outcome.
	handledFollowUp, err := handler.Handle(ctx, result, thought)
	if err != nil {
		d.emit("handler_error_"+string(action), "action", string(action))
		d.emit("handler_error_total", "action", string(action))
		if handledFollowUp {
			// already handled: a follow-up thought exists, do not also fail this one.
			return nil
		}
		return d.fail(ctx, thought, err.Error())
	}

	d.emit("handler_completed_"+string(action), "action", string(action))
	d.emit("handler_completed_total", "action", string(action))
	return nil
}

func (d *Dispatcher) readyTimeout() time.Duration {
	if d.ReadyTimeout > 0 {
		return d.ReadyTimeout
	}
	return 5 * time.Second
}

func (d *Dispatcher) fail(ctx context.Context, thought *taskstore.Thought, reason string) error {
	d.logger.Warn("thought failed", map[string]interface{}{"thought_id": thought.ID, "reason": reason})
	return d.store.SetThoughtStatus(ctx, thought.ID, taskstore.ThoughtFailed)
}
