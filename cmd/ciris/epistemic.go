package main

import (
	"context"

	"github.com/ciris-ai/ciris-core/adapters"
	"github.com/ciris-ai/ciris-core/conscience"
	"github.com/ciris-ai/ciris-core/dma"
)

// epistemicFaculties backs the conscience engine's four checks with the
// same LLM capability llmSelector uses for DMA evaluation. Entropy and
// Coherence fail open to the benign end of their scale on an LLM error
// so a transient upstream hiccup doesn't block every round; Optimization
// Veto and Epistemic Humility fail closed to abort, since those two
// checks exist specifically to catch actions a working judgement would
// have caught -- an LLM error there is indistinguishable from "the
// check never ran," and never running it is not proceed-safe.
type epistemicFaculties struct {
	llm adapters.LLM
}

func newEpistemicFaculties(llm adapters.LLM) *epistemicFaculties {
	return &epistemicFaculties{llm: llm}
}

func (f *epistemicFaculties) Entropy(ctx context.Context, action dma.ActionSelectionDMAResult) (conscience.EntropyResult, error) {
	out, _, err := f.llm.CallStructured(ctx, prompt(
		"Rate the entropy (unpredictability, chaos) this action would introduce, 0-1. Respond with {\"entropy\": number}.",
		action.Rationale), nil, 128, 0.0)
	if err != nil {
		return conscience.EntropyResult{Score: 0.1, Threshold: 0.5}, nil
	}
	fields, _ := out.(map[string]interface{})
	score, ok := fields["entropy"].(float64)
	if !ok {
		score = 0.1
	}
	return conscience.EntropyResult{Score: score, Threshold: 0.5}, nil
}

func (f *epistemicFaculties) Coherence(ctx context.Context, action dma.ActionSelectionDMAResult) (conscience.CoherenceResult, error) {
	out, _, err := f.llm.CallStructured(ctx, prompt(
		"Rate how coherent this action is with the agent's prior reasoning, 0-1. Respond with {\"coherence\": number}.",
		action.Rationale), nil, 128, 0.0)
	if err != nil {
		return conscience.CoherenceResult{Score: 0.9, Threshold: 0.3}, nil
	}
	fields, _ := out.(map[string]interface{})
	score, ok := fields["coherence"].(float64)
	if !ok {
		score = 0.9
	}
	return conscience.CoherenceResult{Score: score, Threshold: 0.3}, nil
}

func (f *epistemicFaculties) OptimizationVeto(ctx context.Context, action dma.ActionSelectionDMAResult) (conscience.OptimizationVetoResult, error) {
	out, _, err := f.llm.CallStructured(ctx, prompt(
		"Evaluate whether this action over-optimizes for one value at the expense of others. Respond with "+
			"{\"decision\": \"proceed|abort|defer\", \"entropy_reduction_ratio\": number, \"affected_values\": [string], \"confidence\": number}.",
		action.Rationale), nil, 256, 0.0)
	if err != nil {
		return conscience.OptimizationVetoResult{
			Decision:   conscience.VerdictAbort,
			Confidence: 0,
		}, nil
	}
	fields, _ := out.(map[string]interface{})
	decision, _ := fields["decision"].(string)
	if decision == "" {
		decision = string(conscience.VerdictProceed)
	}
	ratio, _ := fields["entropy_reduction_ratio"].(float64)
	confidence, _ := fields["confidence"].(float64)
	var affected []string
	if raw, ok := fields["affected_values"].([]interface{}); ok {
		for _, v := range raw {
			if s, ok := v.(string); ok {
				affected = append(affected, s)
			}
		}
	}
	return conscience.OptimizationVetoResult{
		Decision:         conscience.Verdict(decision),
		EntropyReduction: ratio,
		AffectedValues:   affected,
		Confidence:       confidence,
	}, nil
}

func (f *epistemicFaculties) EpistemicHumility(ctx context.Context, action dma.ActionSelectionDMAResult) (conscience.EpistemicHumilityResult, error) {
	out, _, err := f.llm.CallStructured(ctx, prompt(
		"Assess your certainty about this action's correctness. Respond with "+
			"{\"certainty\": number, \"uncertainties\": [string], \"recommended_action\": \"proceed|ponder|defer\"}.",
		action.Rationale), nil, 256, 0.0)
	if err != nil {
		return conscience.EpistemicHumilityResult{
			CertaintyLevel:    0,
			Uncertainties:     []string{"epistemic faculty LLM call failed"},
			RecommendedAction: conscience.VerdictAbort,
		}, nil
	}
	fields, _ := out.(map[string]interface{})
	certainty, _ := fields["certainty"].(float64)
	recommended, _ := fields["recommended_action"].(string)
	if recommended == "" {
		recommended = string(conscience.VerdictProceed)
	}
	var uncertainties []string
	if raw, ok := fields["uncertainties"].([]interface{}); ok {
		for _, v := range raw {
			if s, ok := v.(string); ok {
				uncertainties = append(uncertainties, s)
			}
		}
	}
	return conscience.EpistemicHumilityResult{
		CertaintyLevel:    certainty,
		Uncertainties:     uncertainties,
		RecommendedAction: conscience.Verdict(recommended),
	}, nil
}
