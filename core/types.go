package core

import "time"

// Priority orders providers within a capability: higher-priority
// providers are preferred by GetService, ties broken by registration order.
type Priority int

const (
	PriorityLow Priority = iota
	PriorityNormal
	PriorityHigh
	PriorityCritical
)

func (p Priority) String() string {
	switch p {
	case PriorityCritical:
		return "critical"
	case PriorityHigh:
		return "high"
	case PriorityNormal:
		return "normal"
	case PriorityLow:
		return "low"
	default:
		return "unknown"
	}
}

// CapabilityRequest names what a caller needs from a provider: either an
// explicit (handler, serviceType) pair, or just a serviceType for the
// global fallback lookup.
type CapabilityRequest struct {
	Handler     string
	ServiceType string
}

// Provider is an entry in the Service Registry: a named capability
// instance with a priority, a declared capability set, a circuit breaker
// guarding it, and caller-supplied metadata.
type Provider struct {
	Name         string
	ServiceType  string
	Instance     interface{}
	Priority     Priority
	Capabilities map[string]bool
	Metadata     map[string]interface{}
	Breaker      CircuitBreaker

	registeredAt time.Time
	order        int
}

// Covers reports whether this provider declares the given capability.
// A provider with no declared capabilities covers everything of its type
// (the common case: a single-purpose adapter needs no capability filter).
func (p *Provider) Covers(capability string) bool {
	if capability == "" || len(p.Capabilities) == 0 {
		return true
	}
	return p.Capabilities[capability]
}

// available reports whether the provider's breaker currently allows calls.
// A provider with no breaker is always available.
func (p *Provider) available() bool {
	if p.Breaker == nil {
		return true
	}
	return p.Breaker.GetState() != "open"
}
