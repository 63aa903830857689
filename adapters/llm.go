package adapters

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ciris-ai/ciris-core/core"
	"github.com/ciris-ai/ciris-core/resilience"
)

// MockLLM backs --mock-llm and tests: it never leaves the process,
// returning whatever Respond computes from the prompt so DMA pipeline
// tests stay deterministic.
type MockLLM struct {
	Respond func(messages []ChatMessage) (interface{}, error)
}

func (m *MockLLM) CallStructured(ctx context.Context, messages []ChatMessage, responseSchema interface{}, maxTokens int, temperature float64) (interface{}, ResourceUsage, error) {
	if m.Respond == nil {
		return map[string]interface{}{}, ResourceUsage{Model: "mock"}, nil
	}
	result, err := m.Respond(messages)
	if err != nil {
		return nil, ResourceUsage{}, err
	}
	return result, ResourceUsage{Model: "mock", PromptTokens: len(messages)}, nil
}

// HTTPLLM calls an OpenAI-compatible chat completions endpoint, with
// every call wrapped in the resilience package's retry and circuit
// breaker, mirroring how a teacher capability caller protects a
// flaky upstream rather than letting one slow provider stall a round.
type HTTPLLM struct {
	BaseURL string
	APIKey  string
	Model   string
	Client  *http.Client

	breaker *resilience.CircuitBreaker
	retry   *resilience.RetryConfig
	logger  core.Logger
}

// NewHTTPLLM builds a caller with the teacher's default circuit breaker
// and retry policy, tuned for a single upstream model endpoint.
func NewHTTPLLM(baseURL, apiKey, model string, client *http.Client, logger core.Logger) *HTTPLLM {
	if client == nil {
		client = http.DefaultClient
	}
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	cfg := resilience.DefaultConfig()
	cfg.Name = "llm_" + model
	cfg.Logger = logger
	cb, err := resilience.NewCircuitBreaker(cfg)
	if err != nil {
		cb, _ = resilience.NewCircuitBreaker(nil)
	}
	return &HTTPLLM{
		BaseURL: baseURL,
		APIKey:  apiKey,
		Model:   model,
		Client:  client,
		breaker: cb,
		retry:   resilience.DefaultRetryConfig(),
		logger:  logger,
	}
}

type chatCompletionRequest struct {
	Model       string        `json:"model"`
	Messages    []ChatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float64       `json:"temperature,omitempty"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message ChatMessage `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

func (h *HTTPLLM) CallStructured(ctx context.Context, messages []ChatMessage, responseSchema interface{}, maxTokens int, temperature float64) (interface{}, ResourceUsage, error) {
	var parsed map[string]interface{}
	var usage ResourceUsage
	start := time.Now()

	err := resilience.RetryWithCircuitBreaker(ctx, h.retry, h.breaker, func() error {
		body, err := json.Marshal(chatCompletionRequest{Model: h.Model, Messages: messages, MaxTokens: maxTokens, Temperature: temperature})
		if err != nil {
			return core.NewError("adapters.HTTPLLM.CallStructured", "serialization", err)
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.BaseURL+"/chat/completions", bytes.NewReader(body))
		if err != nil {
			return core.NewError("adapters.HTTPLLM.CallStructured", "request", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+h.APIKey)

		resp, err := h.Client.Do(req)
		if err != nil {
			return core.NewError("adapters.HTTPLLM.CallStructured", "connection", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 500 {
			return core.NewError("adapters.HTTPLLM.CallStructured", "upstream", fmt.Errorf("llm upstream returned %d", resp.StatusCode))
		}
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return core.NewError("adapters.HTTPLLM.CallStructured", "read", err)
		}
		if resp.StatusCode != http.StatusOK {
			return core.NewError("adapters.HTTPLLM.CallStructured", "validation", fmt.Errorf("llm returned %d: %s", resp.StatusCode, data))
		}

		var out chatCompletionResponse
		if err := json.Unmarshal(data, &out); err != nil {
			return core.NewError("adapters.HTTPLLM.CallStructured", "serialization", err)
		}
		if len(out.Choices) == 0 {
			return core.NewError("adapters.HTTPLLM.CallStructured", "validation", fmt.Errorf("llm returned no choices"))
		}
		if err := json.Unmarshal([]byte(out.Choices[0].Message.Content), &parsed); err != nil {
			return core.NewError("adapters.HTTPLLM.CallStructured", "validation", fmt.Errorf("response did not match schema: %w", err))
		}
		usage = ResourceUsage{
			PromptTokens:     out.Usage.PromptTokens,
			CompletionTokens: out.Usage.CompletionTokens,
			Model:            h.Model,
			LatencyMS:        time.Since(start).Milliseconds(),
		}
		return nil
	})
	if err != nil {
		return nil, ResourceUsage{}, err
	}
	return parsed, usage, nil
}
