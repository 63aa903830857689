// Package adapters implements the capability surface an operator front
// end (Discord, a terminal, or an HTTP API) gives the agent core: typed
// providers the dispatcher's handlers call through the Service Registry
// (C1) rather than against a concrete implementation. Every capability
// here mirrors a teacher provider registration -- a name, a service
// type, a priority, and an Instance the handler type-asserts back out.
package adapters

import (
	"context"
	"time"
)

// Service type strings used as core.CapabilityRequest.ServiceType. A
// handler asks the registry for one of these; it never imports this
// package's concrete structs.
const (
	ServiceCommunication = "communication"
	ServiceTool          = "tool"
	ServiceWiseAuthority  = "wise_authority"
	ServiceLLM           = "llm"
	ServiceMemory        = "memory"
	ServiceAudit         = "audit"
)

// Communication lets a handler post to and read from a channel without
// knowing whether that channel is a Discord guild, a terminal, or an
// HTTP long-poll queue.
type Communication interface {
	SendMessage(ctx context.Context, channel, content string) error
	FetchMessages(ctx context.Context, channel string, limit int) ([]Message, error)
	GetDefaultChannel() string
}

// Message is one inbound or outbound communication record.
type Message struct {
	ID        string
	Channel   string
	Author    string
	Content   string
	Timestamp time.Time
}

// Tool executes a named side-effecting operation and reports its result
// asynchronously: ExecuteTool kicks the work off and returns a
// correlation id, GetToolResult blocks (up to timeout) for the outcome.
type Tool interface {
	ExecuteTool(ctx context.Context, name string, params map[string]interface{}) (correlationID string, err error)
	GetAvailableTools(ctx context.Context) ([]ToolDescriptor, error)
	GetToolResult(ctx context.Context, correlationID string, timeout time.Duration) (ToolResult, error)
	ValidateParameters(name string, params map[string]interface{}) error
}

// ToolDescriptor advertises a callable tool and its parameter schema.
type ToolDescriptor struct {
	Name        string
	Description string
	Parameters  map[string]string // param name -> type hint
}

// ToolResult is what GetToolResult eventually returns for a correlation id.
type ToolResult struct {
	CorrelationID string
	Success       bool
	Output        interface{}
	Error         string
}

// WiseAuthority is the human (or policy) escalation path: a DEFER
// action's destination, and the source of guidance a handler may
// consult before acting.
type WiseAuthority interface {
	FetchGuidance(ctx context.Context, request string) (string, error)
	SendDeferral(ctx context.Context, thoughtID, reason string) error
}

// LLM is the sole model-calling capability: every DMA evaluator and
// handler that needs a completion goes through call_structured, never a
// raw chat call, so resource usage is always attributed.
type LLM interface {
	CallStructured(ctx context.Context, messages []ChatMessage, responseSchema interface{}, maxTokens int, temperature float64) (result interface{}, usage ResourceUsage, err error)
}

// ChatMessage is one turn in a CallStructured conversation.
type ChatMessage struct {
	Role    string
	Content string
}

// ResourceUsage reports what a CallStructured invocation cost.
type ResourceUsage struct {
	PromptTokens     int
	CompletionTokens int
	Model            string
	LatencyMS        int64
}

// Memory is the capability-facing name for the graph store's
// memorize/recall/search/forget contract (C2), reshaped so a handler
// depends on this narrow interface instead of graph.Store directly.
type Memory interface {
	Memorize(ctx context.Context, node MemoryNode) error
	Recall(ctx context.Context, id, scope string) (MemoryNode, error)
	Search(ctx context.Context, nodeType, scope string, predicate func(MemoryNode) bool) ([]MemoryNode, error)
	Forget(ctx context.Context, id, scope string) error
}

// MemoryNode is the capability-level view of a graph.Node: attributes
// as a plain map so this package never imports the graph package's
// typed Value wrapper.
type MemoryNode struct {
	ID         string
	Type       string
	Scope      string
	Attributes map[string]interface{}
}

// Audit records a single accountable event -- a DEFER, a handler
// failure, a configuration change -- independent of the incident log,
// which captures operational severity rather than accountability.
type Audit interface {
	LogEvent(ctx context.Context, entry AuditEntry) error
}

// AuditEntry is one accountable event.
type AuditEntry struct {
	ID        string
	Actor     string
	Action    string
	ThoughtID string
	TaskID    string
	Detail    map[string]interface{}
	Timestamp time.Time
}
