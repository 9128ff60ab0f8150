package agent

import (
	"context"
	"fmt"
	"net/http"
	"strings"
)

// Provider names.
const (
	ProviderGemini    = "gemini"
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
)

// LLMProvider is the interface for LLM API providers
type LLMProvider interface {
	// Call makes a single request to the LLM
	Call(ctx context.Context, request LLMRequest) (*LLMResponse, error)

	// Provider returns the provider name
	Provider() string
}

// LLMRequest represents a request to an LLM
type LLMRequest struct {
	Model        string
	Messages     []AgentMessage
	Tools        []ToolSpec
	Temperature  float64
	MaxTokens    int
	SystemPrompt string
	// APIKey overrides the provider's own credential for this call. The
	// orchestrator sets it from the key pool.
	APIKey string
}

// LLMResponse represents a response from an LLM
type LLMResponse struct {
	Content   string
	ToolCalls []ToolCall
	Usage     *TokenUsage
}

// Empty reports whether the response carries neither text nor tool calls.
func (r *LLMResponse) Empty() bool {
	return r == nil || (strings.TrimSpace(r.Content) == "" && len(r.ToolCalls) == 0)
}

// ProviderConfig carries what a provider needs to be built.
type ProviderConfig struct {
	Name       string
	APIKey     string
	BaseURL    string
	HTTPClient *http.Client
}

// NewProvider builds a provider by name.
func NewProvider(cfg ProviderConfig) (LLMProvider, error) {
	switch cfg.Name {
	case ProviderGemini:
		return NewGeminiProvider(GeminiOptions{APIKey: cfg.APIKey, HTTPClient: cfg.HTTPClient}), nil
	case ProviderOpenAI:
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("openai: api key is required")
		}
		return NewOpenAIProvider(OpenAIOptions{APIKey: cfg.APIKey, BaseURL: cfg.BaseURL, HTTPClient: cfg.HTTPClient}), nil
	case ProviderAnthropic:
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("anthropic: api key is required")
		}
		return NewAnthropicProvider(AnthropicOptions{APIKey: cfg.APIKey, HTTPClient: cfg.HTTPClient}), nil
	default:
		return nil, fmt.Errorf("unsupported provider: %s", cfg.Name)
	}
}

// schemaParts splits a JSON schema object into properties and required.
func schemaParts(schema map[string]interface{}) (map[string]interface{}, []string) {
	props, _ := schema["properties"].(map[string]interface{})
	if props == nil {
		props = map[string]interface{}{}
	}
	var required []string
	switch r := schema["required"].(type) {
	case []string:
		required = append(required, r...)
	case []interface{}:
		for _, v := range r {
			if s, ok := v.(string); ok {
				required = append(required, s)
			}
		}
	}
	return props, required
}
