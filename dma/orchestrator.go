package dma

import (
	"context"
	"sync"
	"time"

	"github.com/ciris-ai/ciris-core/core"
)

// Orchestrator wires the four evaluators together the way the pipeline
// is specified: Ethical, CS, and DS run concurrently under a shared
// deadline, then Action Selection consumes all three results.
type Orchestrator struct {
	Ethical  EthicalEvaluator
	CS       CSEvaluator
	DS       DSEvaluator
	Select   ActionSelector
	Deadline time.Duration
	Logger   core.Logger
}

// Result is the orchestrator's full output for one thought: either a
// completed ActionSelectionDMAResult or a DMA failure error the caller
// (agent.Pipeline) converts into forced PONDER/DEFER per the
// consecutive-failure policy.
type Result struct {
	Ethical EthicalDMAResult
	CS      CSDMAResult
	DS      DSDMAResult
	Action  ActionSelectionDMAResult
}

func (o *Orchestrator) deadline() time.Duration {
	if o.Deadline > 0 {
		return o.Deadline
	}
	return 10 * time.Second
}

func (o *Orchestrator) logger() core.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return &core.NoOpLogger{}
}

// Run executes one full pipeline pass for a thought. Returns a wrapped
// core.ErrDMAFailure (or core.ErrDMATimeout) if Ethical, CS, or DS fails
// or exceeds the shared deadline; Action Selection itself is not subject
// to the shared deadline since it has already received all required
// inputs by the time it runs.
func (o *Orchestrator) Run(ctx context.Context, in Input) (Result, error) {
	dctx, cancel := context.WithTimeout(ctx, o.deadline())
	defer cancel()

	var (
		wg               sync.WaitGroup
		ethical          EthicalDMAResult
		cs               CSDMAResult
		ds               DSDMAResult
		ethicalErr, csErr, dsErr error
	)

	wg.Add(3)
	go func() {
		defer wg.Done()
		ethical, ethicalErr = runEthical(dctx, o.Ethical, in)
	}()
	go func() {
		defer wg.Done()
		cs, csErr = runCS(dctx, o.CS, in)
	}()
	go func() {
		defer wg.Done()
		ds, dsErr = runDS(dctx, o.DS, in)
	}()
	wg.Wait()

	if err := firstDMAError(dctx, ethicalErr, csErr, dsErr); err != nil {
		o.logger().Warn("dma evaluator failed", map[string]interface{}{
			"thought_id": in.ThoughtID, "error": err.Error(),
		})
		return Result{}, err
	}

	action, err := o.Select(ctx, in, ethical, cs, ds)
	if err != nil {
		return Result{}, core.NewError("dma.Run", "dma", core.ErrDMAFailure).WithID(in.ThoughtID)
	}

	return Result{Ethical: ethical, CS: cs, DS: ds, Action: action}, nil
}

func runEthical(ctx context.Context, fn EthicalEvaluator, in Input) (EthicalDMAResult, error) {
	if fn == nil {
		return EthicalDMAResult{Decision: EthicalProceed}, nil
	}
	return fn(ctx, in)
}

func runCS(ctx context.Context, fn CSEvaluator, in Input) (CSDMAResult, error) {
	if fn == nil {
		return CSDMAResult{Plausibility: 1}, nil
	}
	return fn(ctx, in)
}

func runDS(ctx context.Context, fn DSEvaluator, in Input) (DSDMAResult, error) {
	if fn == nil {
		return DSDMAResult{Alignment: 1}, nil
	}
	return fn(ctx, in)
}

func firstDMAError(ctx context.Context, errs ...error) error {
	if ctx.Err() != nil {
		return core.NewError("dma.Run", "dma", core.ErrDMATimeout)
	}
	for _, err := range errs {
		if err != nil {
			return core.NewError("dma.Run", "dma", core.ErrDMAFailure)
		}
	}
	return nil
}
