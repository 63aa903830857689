package core

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// ServiceRegistry is C1: a priority-ordered lookup of capability providers
// with circuit breakers. It maps (handler, serviceType) to an ordered list
// of providers, plus a global serviceType -> providers map used as a
// fallback when no handler-specific registration exists.
//
// Provider lists are mutated only by RegisterProvider/UnregisterProvider;
// GetService iterates a defensive snapshot so concurrent registration
// changes never race a lookup in progress.
type ServiceRegistry struct {
	mu sync.RWMutex

	// keyed by "<handler>\x00<serviceType>"
	byHandler map[string][]*Provider
	// keyed by serviceType alone, the global fallback list
	byType map[string][]*Provider

	logger Logger
	seq    int
}

// NewServiceRegistry builds an empty registry.
func NewServiceRegistry(logger Logger) *ServiceRegistry {
	if logger == nil {
		logger = &NoOpLogger{}
	}
	return &ServiceRegistry{
		byHandler: make(map[string][]*Provider),
		byType:    make(map[string][]*Provider),
		logger:    logger,
	}
}

func handlerKey(handler, serviceType string) string {
	return handler + "\x00" + serviceType
}

// RegisterProvider adds a provider for a service type, optionally scoped
// to a specific handler. A provider registered with handler == "" is only
// reachable through the global fallback.
func (r *ServiceRegistry) RegisterProvider(handler string, p *Provider) error {
	if p == nil || p.Name == "" || p.ServiceType == "" {
		return NewError("registry.RegisterProvider", "registry", fmt.Errorf("provider must have a name and service type"))
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.seq++
	p.order = r.seq
	p.registeredAt = time.Now()

	if handler != "" {
		key := handlerKey(handler, p.ServiceType)
		for _, existing := range r.byHandler[key] {
			if existing.Name == p.Name {
				return NewError("registry.RegisterProvider", "registry", ErrAlreadyRegistered).WithID(p.Name)
			}
		}
		r.byHandler[key] = append(r.byHandler[key], p)
	}

	for _, existing := range r.byType[p.ServiceType] {
		if existing.Name == p.Name {
			r.logger.Info("provider registered for handler only, already present globally", map[string]interface{}{
				"provider": p.Name, "service_type": p.ServiceType,
			})
			return nil
		}
	}
	r.byType[p.ServiceType] = append(r.byType[p.ServiceType], p)

	r.logger.Info("provider registered", map[string]interface{}{
		"provider": p.Name, "handler": handler, "service_type": p.ServiceType, "priority": p.Priority.String(),
	})
	return nil
}

// UnregisterProvider removes a provider by name from every list it appears
// in. Callers holding a prior GetService result must tolerate this: the
// registry owns provider registrations, lookups are weak references.
func (r *ServiceRegistry) UnregisterProvider(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for key, list := range r.byHandler {
		r.byHandler[key] = removeByName(list, name)
	}
	for key, list := range r.byType {
		r.byType[key] = removeByName(list, name)
	}
	r.logger.Info("provider unregistered", map[string]interface{}{"provider": name})
}

func removeByName(list []*Provider, name string) []*Provider {
	out := list[:0:0]
	for _, p := range list {
		if p.Name != name {
			out = append(out, p)
		}
	}
	return out
}

// GetService returns the first provider for (handler, serviceType) whose
// circuit is not open, trying the handler-scoped providers in priority
// order first and then falling back to the global serviceType list in
// priority order. Ties are broken by registration order. Provider
// Capabilities are not consulted; Covers is not called by the lookup.
// Returns ErrProviderNotFound if every candidate is
// open or missing (spec 4.1 "Returns none if all candidates are OPEN or missing").
func (r *ServiceRegistry) GetService(req CapabilityRequest) (*Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	byPriority := func(list []*Provider) []*Provider {
		sort.SliceStable(list, func(i, j int) bool {
			if list[i].Priority != list[j].Priority {
				return list[i].Priority > list[j].Priority
			}
			return list[i].order < list[j].order
		})
		return list
	}

	candidates := make([]*Provider, 0, 4)
	if req.Handler != "" {
		candidates = append(candidates, byPriority(snapshot(r.byHandler[handlerKey(req.Handler, req.ServiceType)]))...)
	}
	candidates = append(candidates, byPriority(snapshot(r.byType[req.ServiceType]))...)

	for _, p := range candidates {
		if p.available() {
			return p, nil
		}
	}
	return nil, NewError("registry.GetService", "registry", ErrProviderNotFound).WithID(req.ServiceType)
}

func snapshot(list []*Provider) []*Provider {
	out := make([]*Provider, len(list))
	copy(out, list)
	return out
}

// WaitReady blocks until every required service type has at least one
// provider in a non-open breaker state, or the timeout elapses. Callers
// that must not run before the registry is ready (handlers, dispatcher)
// call this before first use.
func (r *ServiceRegistry) WaitReady(ctx context.Context, requiredTypes []string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()

	for {
		if r.isReady(requiredTypes) {
			return nil
		}
		if time.Now().After(deadline) {
			return NewError("registry.WaitReady", "registry", ErrNotReady)
		}
		select {
		case <-ctx.Done():
			return NewError("registry.WaitReady", "registry", ctx.Err())
		case <-ticker.C:
		}
	}
}

func (r *ServiceRegistry) isReady(requiredTypes []string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, t := range requiredTypes {
		ok := false
		for _, p := range r.byType[t] {
			if p.available() {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	return true
}

// Snapshot returns every registered provider, for diagnostics and tests.
func (r *ServiceRegistry) Snapshot() []*Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()
	seen := make(map[string]*Provider)
	for _, list := range r.byType {
		for _, p := range list {
			seen[p.Name] = p
		}
	}
	out := make([]*Provider, 0, len(seen))
	for _, p := range seen {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].order < out[j].order })
	return out
}
