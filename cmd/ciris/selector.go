package main

import (
	"context"
	"fmt"

	"github.com/ciris-ai/ciris-core/adapters"
	"github.com/ciris-ai/ciris-core/dma"
	"github.com/ciris-ai/ciris-core/taskstore"
)

// llmSelector wraps one LLM capability into the three DMA evaluators
// plus the action selector, so the CLI wiring gives the orchestrator a
// real (if minimal) model-backed pipeline instead of the package's
// always-proceed nil defaults. Every call degrades to the safe default
// on a schema mismatch rather than failing the round -- a thought that
// can't be reasoned about this round is better PONDERed than crashed.
type llmSelector struct {
	llm adapters.LLM
}

func newLLMSelector(llm adapters.LLM) *llmSelector {
	return &llmSelector{llm: llm}
}

func prompt(role, content string) []adapters.ChatMessage {
	return []adapters.ChatMessage{
		{Role: "system", Content: role},
		{Role: "user", Content: content},
	}
}

func (s *llmSelector) Ethical(ctx context.Context, in dma.Input) (dma.EthicalDMAResult, error) {
	out, _, err := s.llm.CallStructured(ctx, prompt("Evaluate this thought for ethical alignment. Respond with a JSON object: {\"decision\": \"proceed|defer|abort\", \"reasoning\": string}.", in.Content), nil, 256, 0.2)
	if err != nil {
		return dma.EthicalDMAResult{}, err
	}
	fields, _ := out.(map[string]interface{})
	decision, _ := fields["decision"].(string)
	if decision == "" {
		decision = string(dma.EthicalProceed)
	}
	reasoning, _ := fields["reasoning"].(string)
	return dma.EthicalDMAResult{Decision: dma.EthicalDecision(decision), Reasoning: reasoning}, nil
}

func (s *llmSelector) CommonSense(ctx context.Context, in dma.Input) (dma.CSDMAResult, error) {
	out, _, err := s.llm.CallStructured(ctx, prompt("Rate how plausible this thought is on a 0-1 scale. Respond with {\"plausibility\": number, \"reasoning\": string}.", in.Content), nil, 256, 0.2)
	if err != nil {
		return dma.CSDMAResult{}, err
	}
	fields, _ := out.(map[string]interface{})
	plausibility, ok := fields["plausibility"].(float64)
	if !ok {
		plausibility = 1
	}
	reasoning, _ := fields["reasoning"].(string)
	return dma.CSDMAResult{Plausibility: plausibility, Reasoning: reasoning}, nil
}

func (s *llmSelector) Domain(ctx context.Context, in dma.Input) (dma.DSDMAResult, error) {
	out, _, err := s.llm.CallStructured(ctx, prompt("Rate how well this thought aligns with the agent's operating domain on a 0-1 scale. Respond with {\"alignment\": number, \"reasoning\": string}.", in.Content), nil, 256, 0.2)
	if err != nil {
		return dma.DSDMAResult{}, err
	}
	fields, _ := out.(map[string]interface{})
	alignment, ok := fields["alignment"].(float64)
	if !ok {
		alignment = 1
	}
	reasoning, _ := fields["reasoning"].(string)
	return dma.DSDMAResult{Alignment: alignment, Reasoning: reasoning}, nil
}

func (s *llmSelector) Select(ctx context.Context, in dma.Input, ethical dma.EthicalDMAResult, cs dma.CSDMAResult, ds dma.DSDMAResult) (dma.ActionSelectionDMAResult, error) {
	if ethical.Decision == dma.EthicalDefer {
		return dma.ActionSelectionDMAResult{SelectedAction: dma.ActionDefer, Rationale: ethical.Reasoning}, nil
	}
	if ethical.Decision == dma.EthicalAbort {
		return dma.ActionSelectionDMAResult{SelectedAction: dma.ActionReject, Rationale: ethical.Reasoning}, nil
	}
	out, _, err := s.llm.CallStructured(ctx, prompt("Choose the single best action for this thought: speak, tool, ponder, defer, reject, or noop. Respond with {\"action\": string, \"content\": string, \"rationale\": string}.", in.Content), nil, 256, 0.2)
	if err != nil {
		return dma.ActionSelectionDMAResult{}, err
	}
	fields, _ := out.(map[string]interface{})
	action, _ := fields["action"].(string)
	if action == "" {
		action = string(dma.ActionSpeak)
	}
	content, _ := fields["content"].(string)
	rationale, _ := fields["rationale"].(string)
	return dma.ActionSelectionDMAResult{
		SelectedAction: dma.ActionType(action),
		Parameters:     map[string]interface{}{"content": content},
		Rationale:      rationale,
	}, nil
}

// seedThought produces a task's first thought from its description,
// the minimal analogue of the teacher's single-shot task handling.
func seedThought(ctx context.Context, task *taskstore.Task) (*taskstore.Thought, error) {
	if task.Description == "" {
		return nil, fmt.Errorf("task %s has no description to seed a thought from", task.ID)
	}
	return &taskstore.Thought{TaskID: task.ID, Content: task.Description}, nil
}
