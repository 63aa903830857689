// Package dma implements C7: the Decision-Making Adviser pipeline. Each
// evaluator is a pure function from (thought, context) to a typed
// result; the orchestrator fans the first three out concurrently under a
// shared deadline and feeds their results into action selection.
package dma

import "context"

// EthicalDecision is the Ethical DMA's verdict.
type EthicalDecision string

const (
	EthicalProceed EthicalDecision = "proceed"
	EthicalDefer   EthicalDecision = "defer"
	EthicalAbort   EthicalDecision = "abort"
)

// EthicalDMAResult is produced by the Ethical evaluator.
type EthicalDMAResult struct {
	Alignment map[string]float64
	Decision  EthicalDecision
	Reasoning string
}

// CSDMAResult is produced by the common-sense evaluator.
type CSDMAResult struct {
	Plausibility float64
	Flags        []string
	Reasoning    string
}

// DSDMAResult is produced by the domain-specific evaluator, which is
// swapped per agent profile through the Orchestrator.DS function; it is
// not looked up in the service registry.
type DSDMAResult struct {
	Domain    string
	Alignment float64
	Flags     []string
	Reasoning string
}

// ActionType enumerates what an Action Selection DMA may choose.
type ActionType string

const (
	ActionSpeak  ActionType = "speak"
	ActionTool   ActionType = "tool"
	ActionPonder ActionType = "ponder"
	ActionDefer  ActionType = "defer"
	ActionReject ActionType = "reject"
	ActionNoop   ActionType = "noop"
)

// ActionSelectionDMAResult is the pipeline's final output for one
// thought: the action to take, its parameters, and the rationale. A
// conscience check may rewrite SelectedAction and attach the original
// under Attachment.
type ActionSelectionDMAResult struct {
	SelectedAction ActionType
	Parameters     map[string]interface{}
	Rationale      string
	Attachment     *ActionSelectionDMAResult
}

// Input is the shared context every evaluator reads: the thought's
// content plus whatever the profile/task supplies.
type Input struct {
	ThoughtID   string
	TaskID      string
	Content     string
	ProfileName string
	Extra       map[string]interface{}
}

// EthicalEvaluator, CSEvaluator, DSEvaluator, and ActionSelector are the
// four pure-function evaluator contracts the orchestrator drives.
type EthicalEvaluator func(ctx context.Context, in Input) (EthicalDMAResult, error)
type CSEvaluator func(ctx context.Context, in Input) (CSDMAResult, error)
type DSEvaluator func(ctx context.Context, in Input) (DSDMAResult, error)
type ActionSelector func(ctx context.Context, in Input, ethical EthicalDMAResult, cs CSDMAResult, ds DSDMAResult) (ActionSelectionDMAResult, error)
