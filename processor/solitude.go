package processor

import (
	"context"

	"github.com/ciris-ai/ciris-core/core"
	"github.com/ciris-ai/ciris-core/taskstore"
)

// ExitHint inspects a completed work-pipeline round and reports whether
// solitude should end early, e.g. because new high-priority tasks
// arrived. Left nil, solitude only ends via the agent processor's normal
// state-transition triggers.
type ExitHint func(ctx context.Context, res StateResult) bool

// SolitudeProcessor reuses WorkProcessor's pipeline unchanged and adds
// the should_exit_solitude inspection the spec calls for.
type SolitudeProcessor struct {
	*WorkProcessor
	exitHint ExitHint
}

func NewSolitudeProcessor(store taskstore.Store, runThought ThoughtRunner, seed SeedThought, cfg WorkConfig, logger core.Logger, exitHint ExitHint) *SolitudeProcessor {
	return &SolitudeProcessor{
		WorkProcessor: newWorkProcessor(StateSolitude, store, runThought, seed, cfg, logger),
		exitHint:      exitHint,
	}
}

func (p *SolitudeProcessor) Process(ctx context.Context, round int) (StateResult, error) {
	res, err := p.WorkProcessor.Process(ctx, round)
	if err != nil {
		return res, err
	}
	res.State = StateSolitude
	if p.exitHint != nil {
		res.ShouldExitSolitude = p.exitHint(ctx, res)
	}
	return res, nil
}
