package adapters

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ciris-ai/ciris-core/core"
)

// ToolRegistry is the compile-time Tool capability: a fixed name ->
// executor map (no dynamic plugin loading, matching this build's
// single-process adapter model) backed by a resultCache for the
// execute/collect split the capability interface requires.
type ToolRegistry struct {
	executors map[string]ToolExecutor
	schemas   map[string]ToolDescriptor
	cache     resultCache
	ttl       time.Duration
	logger    core.Logger
}

// ToolExecutor runs a tool synchronously; ToolRegistry.ExecuteTool runs
// it on a goroutine and parks the result under a fresh correlation id.
type ToolExecutor func(ctx context.Context, params map[string]interface{}) (interface{}, error)

// NewToolRegistry builds an in-memory-backed registry, suitable for the
// CLI adapter and tests.
func NewToolRegistry(logger core.Logger) *ToolRegistry {
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	return &ToolRegistry{
		executors: make(map[string]ToolExecutor),
		schemas:   make(map[string]ToolDescriptor),
		cache:     newInMemoryResultCache(),
		ttl:       10 * time.Minute,
		logger:    logger,
	}
}

// UseRedisCache switches the result backing to Redis, for deployments
// where ExecuteTool and GetToolResult may run in different processes.
func (r *ToolRegistry) UseRedisCache(redisURL, namespace string) error {
	c, err := newRedisResultCache(redisURL, namespace)
	if err != nil {
		return err
	}
	r.cache = c
	return nil
}

// Register wires an executor under name with the parameter schema a
// ValidateParameters call checks against.
func (r *ToolRegistry) Register(desc ToolDescriptor, exec ToolExecutor) {
	r.schemas[desc.Name] = desc
	r.executors[desc.Name] = exec
}

func (r *ToolRegistry) ExecuteTool(ctx context.Context, name string, params map[string]interface{}) (string, error) {
	exec, ok := r.executors[name]
	if !ok {
		return "", core.NewError("adapters.ToolRegistry.ExecuteTool", "tool", core.ErrProviderNotFound).WithID(name)
	}
	if err := r.ValidateParameters(name, params); err != nil {
		return "", err
	}

	correlationID := uuid.NewString()
	go func() {
		runCtx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		output, err := exec(runCtx, params)
		result := ToolResult{CorrelationID: correlationID, Success: err == nil, Output: output}
		if err != nil {
			result.Error = err.Error()
			r.logger.Warn("tool execution failed", map[string]interface{}{"tool": name, "correlation_id": correlationID, "error": err.Error()})
		}
		if putErr := r.cache.put(context.Background(), correlationID, result, r.ttl); putErr != nil {
			r.logger.Error("tool result persistence failed", map[string]interface{}{"tool": name, "error": putErr.Error()})
		}
	}()
	return correlationID, nil
}

func (r *ToolRegistry) GetAvailableTools(ctx context.Context) ([]ToolDescriptor, error) {
	out := make([]ToolDescriptor, 0, len(r.schemas))
	for _, d := range r.schemas {
		out = append(out, d)
	}
	return out, nil
}

func (r *ToolRegistry) GetToolResult(ctx context.Context, correlationID string, timeout time.Duration) (ToolResult, error) {
	return r.cache.wait(ctx, correlationID, timeout)
}

func (r *ToolRegistry) ValidateParameters(name string, params map[string]interface{}) error {
	desc, ok := r.schemas[name]
	if !ok {
		return core.NewError("adapters.ToolRegistry.ValidateParameters", "tool", core.ErrProviderNotFound).WithID(name)
	}
	for key := range desc.Parameters {
		if _, present := params[key]; !present {
			return core.NewError("adapters.ToolRegistry.ValidateParameters", "validation", fmt.Errorf("missing required parameter %q for tool %q", key, name))
		}
	}
	return nil
}
