// Package conscience implements C8: four sequential checks run against
// an action selection before it reaches the dispatcher. The first
// non-proceed verdict short-circuits the remaining checks and rewrites
// the action to PONDER or DEFER, carrying the original selection as an
// attachment so nothing is silently dropped.
package conscience

import (
	"context"

	"github.com/ciris-ai/ciris-core/dma"
)

// Verdict is the common proceed/ponder/defer/abort vocabulary every
// check's recommendation collapses to, even though each check's native
// decision enum differs (spec 4.6: Optimization Veto uses
// proceed/abort/defer, Epistemic Humility uses proceed/ponder/defer).
type Verdict string

const (
	VerdictProceed Verdict = "proceed"
	VerdictPonder  Verdict = "ponder"
	VerdictDefer   Verdict = "defer"
	VerdictAbort   Verdict = "abort"
)

// EntropyResult is check 1's raw output.
type EntropyResult struct {
	Score     float64
	Threshold float64
}

func (r EntropyResult) verdict() Verdict {
	if r.Score > r.Threshold {
		return VerdictPonder
	}
	return VerdictProceed
}

// CoherenceResult is check 2's raw output.
type CoherenceResult struct {
	Score     float64
	Threshold float64
}

func (r CoherenceResult) verdict() Verdict {
	if r.Score < r.Threshold {
		return VerdictPonder
	}
	return VerdictProceed
}

// OptimizationVetoResult is check 3's raw output.
type OptimizationVetoResult struct {
	Decision          Verdict // proceed, abort, or defer
	EntropyReduction  float64
	AffectedValues    []string
	Confidence        float64
}

func (r OptimizationVetoResult) verdict() Verdict { return r.Decision }

// EpistemicHumilityResult is check 4's raw output.
type EpistemicHumilityResult struct {
	CertaintyLevel    float64
	Uncertainties     []string
	RecommendedAction Verdict // proceed, ponder, or defer
}

func (r EpistemicHumilityResult) verdict() Verdict { return r.RecommendedAction }

// Checks bundles the four evaluator functions. Any left nil defaults to
// an always-proceed stub, matching the DMA orchestrator's default
// evaluator convention.
type Checks struct {
	Entropy           func(ctx context.Context, action dma.ActionSelectionDMAResult) (EntropyResult, error)
	Coherence         func(ctx context.Context, action dma.ActionSelectionDMAResult) (CoherenceResult, error)
	OptimizationVeto  func(ctx context.Context, action dma.ActionSelectionDMAResult) (OptimizationVetoResult, error)
	EpistemicHumility func(ctx context.Context, action dma.ActionSelectionDMAResult) (EpistemicHumilityResult, error)
}

// Outcome is the engine's result: the (possibly rewritten) action and
// every check's raw output, attached for downstream handlers to log.
type Outcome struct {
	Action            dma.ActionSelectionDMAResult
	Verdict           Verdict
	Entropy           *EntropyResult
	Coherence         *CoherenceResult
	OptimizationVeto  *OptimizationVetoResult
	EpistemicHumility *EpistemicHumilityResult
}

// Run executes the four checks in spec order against action, stopping at
// the first non-proceed verdict. A non-proceed verdict never discards
// the original action: PONDER and DEFER outcomes carry it under
// Action.Attachment.
func Run(ctx context.Context, checks Checks, action dma.ActionSelectionDMAResult) (Outcome, error) {
	out := Outcome{Action: action, Verdict: VerdictProceed}

	entropy, err := runEntropy(ctx, checks.Entropy, action)
	if err != nil {
		return out, err
	}
	out.Entropy = &entropy
	if v := entropy.verdict(); v != VerdictProceed {
		return rewrite(out, v), nil
	}

	coherence, err := runCoherence(ctx, checks.Coherence, action)
	if err != nil {
		return out, err
	}
	out.Coherence = &coherence
	if v := coherence.verdict(); v != VerdictProceed {
		return rewrite(out, v), nil
	}

	veto, err := runVeto(ctx, checks.OptimizationVeto, action)
	if err != nil {
		return out, err
	}
	out.OptimizationVeto = &veto
	if v := veto.verdict(); v != VerdictProceed {
		return rewrite(out, v), nil
	}

	humility, err := runHumility(ctx, checks.EpistemicHumility, action)
	if err != nil {
		return out, err
	}
	out.EpistemicHumility = &humility
	if v := humility.verdict(); v != VerdictProceed {
		return rewrite(out, v), nil
	}

	return out, nil
}

func runEntropy(ctx context.Context, fn func(context.Context, dma.ActionSelectionDMAResult) (EntropyResult, error), action dma.ActionSelectionDMAResult) (EntropyResult, error) {
	if fn == nil {
		return EntropyResult{Score: 0, Threshold: 1}, nil
	}
	return fn(ctx, action)
}

func runCoherence(ctx context.Context, fn func(context.Context, dma.ActionSelectionDMAResult) (CoherenceResult, error), action dma.ActionSelectionDMAResult) (CoherenceResult, error) {
	if fn == nil {
		return CoherenceResult{Score: 1, Threshold: 0}, nil
	}
	return fn(ctx, action)
}

func runVeto(ctx context.Context, fn func(context.Context, dma.ActionSelectionDMAResult) (OptimizationVetoResult, error), action dma.ActionSelectionDMAResult) (OptimizationVetoResult, error) {
	if fn == nil {
		return OptimizationVetoResult{Decision: VerdictProceed}, nil
	}
	return fn(ctx, action)
}

func runHumility(ctx context.Context, fn func(context.Context, dma.ActionSelectionDMAResult) (EpistemicHumilityResult, error), action dma.ActionSelectionDMAResult) (EpistemicHumilityResult, error) {
	if fn == nil {
		return EpistemicHumilityResult{RecommendedAction: VerdictProceed}, nil
	}
	return fn(ctx, action)
}

// rewrite converts a non-proceed verdict into the dispatched action:
// ABORT and PONDER verdicts become a PONDER action, DEFER becomes a
// DEFER action, always preserving the original under Attachment.
func rewrite(out Outcome, v Verdict) Outcome {
	original := out.Action
	rewritten := dma.ActionSelectionDMAResult{
		Parameters: original.Parameters,
		Rationale:  original.Rationale,
		Attachment: &original,
	}
	switch v {
	case VerdictDefer:
		rewritten.SelectedAction = dma.ActionDefer
	default: // ponder or abort
		rewritten.SelectedAction = dma.ActionPonder
	}
	out.Action = rewritten
	out.Verdict = v
	return out
}
