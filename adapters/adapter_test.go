package adapters

import (
	"context"
	"testing"

	"github.com/ciris-ai/ciris-core/core"
	"github.com/ciris-ai/ciris-core/graph"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_CLIBundleRegistersAgainstServiceRegistry(t *testing.T) {
	store := graph.NewInMemoryStore()
	b, err := New(Config{Kind: AdapterCLI, MemoryStore: store, MockLLM: true})
	require.NoError(t, err)

	registry := core.NewServiceRegistry(nil)
	require.NoError(t, RegisterAll(registry, b))

	_, err = registry.GetService(core.CapabilityRequest{ServiceType: ServiceCommunication})
	assert.NoError(t, err)
	_, err = registry.GetService(core.CapabilityRequest{ServiceType: ServiceLLM})
	assert.NoError(t, err)
	_, err = registry.GetService(core.CapabilityRequest{ServiceType: ServiceMemory})
	assert.NoError(t, err)
}

func TestNew_DiscordBundleFailsClosedWithoutCredentials(t *testing.T) {
	_, err := New(Config{Kind: AdapterDiscord})
	assert.Error(t, err)
}

func TestNew_UnknownKindRejected(t *testing.T) {
	_, err := New(Config{Kind: Kind("carrier-pigeon")})
	assert.Error(t, err)
}

func TestMockLLM_CallStructuredUsesRespondHook(t *testing.T) {
	llm := &MockLLM{Respond: func(messages []ChatMessage) (interface{}, error) {
		return map[string]interface{}{"action": "speak"}, nil
	}}
	result, usage, err := llm.CallStructured(context.Background(), []ChatMessage{{Role: "user", Content: "hi"}}, nil, 100, 0.2)
	require.NoError(t, err)
	assert.Equal(t, "speak", result.(map[string]interface{})["action"])
	assert.Equal(t, "mock", usage.Model)
}
