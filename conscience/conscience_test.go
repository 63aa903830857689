package conscience

import (
	"context"
	"testing"

	"github.com/ciris-ai/ciris-core/dma"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func speakAction() dma.ActionSelectionDMAResult {
	return dma.ActionSelectionDMAResult{SelectedAction: dma.ActionSpeak, Rationale: "greet"}
}

func TestRun_AllProceedLeavesActionUnchanged(t *testing.T) {
	out, err := Run(context.Background(), Checks{}, speakAction())
	require.NoError(t, err)
	assert.Equal(t, VerdictProceed, out.Verdict)
	assert.Equal(t, dma.ActionSpeak, out.Action.SelectedAction)
	assert.Nil(t, out.Action.Attachment)
}

func TestRun_EntropyFailureShortCircuitsAndRewritesToPonder(t *testing.T) {
	checks := Checks{
		Entropy: func(ctx context.Context, a dma.ActionSelectionDMAResult) (EntropyResult, error) {
			return EntropyResult{Score: 0.9, Threshold: 0.5}, nil
		},
		Coherence: func(ctx context.Context, a dma.ActionSelectionDMAResult) (CoherenceResult, error) {
			t.Fatal("coherence must not run after entropy fails")
			return CoherenceResult{}, nil
		},
	}

	out, err := Run(context.Background(), checks, speakAction())
	require.NoError(t, err)
	assert.Equal(t, VerdictPonder, out.Verdict)
	assert.Equal(t, dma.ActionPonder, out.Action.SelectedAction)
	require.NotNil(t, out.Action.Attachment)
	assert.Equal(t, dma.ActionSpeak, out.Action.Attachment.SelectedAction)
}

func TestRun_OptimizationVetoDeferRewrites(t *testing.T) {
	checks := Checks{
		OptimizationVeto: func(ctx context.Context, a dma.ActionSelectionDMAResult) (OptimizationVetoResult, error) {
			return OptimizationVetoResult{Decision: VerdictDefer}, nil
		},
	}
	out, err := Run(context.Background(), checks, speakAction())
	require.NoError(t, err)
	assert.Equal(t, dma.ActionDefer, out.Action.SelectedAction)
}

func TestRun_EpistemicHumilityRunsLast(t *testing.T) {
	var order []string
	checks := Checks{
		Entropy: func(ctx context.Context, a dma.ActionSelectionDMAResult) (EntropyResult, error) {
			order = append(order, "entropy")
			return EntropyResult{Score: 0, Threshold: 1}, nil
		},
		Coherence: func(ctx context.Context, a dma.ActionSelectionDMAResult) (CoherenceResult, error) {
			order = append(order, "coherence")
			return CoherenceResult{Score: 1, Threshold: 0}, nil
		},
		OptimizationVeto: func(ctx context.Context, a dma.ActionSelectionDMAResult) (OptimizationVetoResult, error) {
			order = append(order, "veto")
			return OptimizationVetoResult{Decision: VerdictProceed}, nil
		},
		EpistemicHumility: func(ctx context.Context, a dma.ActionSelectionDMAResult) (EpistemicHumilityResult, error) {
			order = append(order, "humility")
			return EpistemicHumilityResult{RecommendedAction: VerdictProceed}, nil
		},
	}
	_, err := Run(context.Background(), checks, speakAction())
	require.NoError(t, err)
	assert.Equal(t, []string{"entropy", "coherence", "veto", "humility"}, order)
}
