package agent

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"google.golang.org/genai"
)

// GeminiOptions configures a GeminiProvider.
type GeminiOptions struct {
	// APIKey is used when a request carries no key of its own.
	APIKey     string
	HTTPClient *http.Client
}

// GeminiProvider implements LLMProvider for the Gemini API. Clients are built
// lazily per API key so rotated keys reuse their connection.
type GeminiProvider struct {
	defaultKey string
	httpClient *http.Client

	mu      sync.Mutex
	clients map[string]*genai.Client
}

// NewGeminiProvider creates a new Gemini provider
func NewGeminiProvider(opts GeminiOptions) *GeminiProvider {
	return &GeminiProvider{
		defaultKey: opts.APIKey,
		httpClient: opts.HTTPClient,
		clients:    make(map[string]*genai.Client),
	}
}

// Provider returns the provider name
func (p *GeminiProvider) Provider() string {
	return ProviderGemini
}

func (p *GeminiProvider) clientFor(ctx context.Context, key string) (*genai.Client, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if c, ok := p.clients[key]; ok {
		return c, nil
	}
	c, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:     key,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: p.httpClient,
	})
	if err != nil {
		return nil, fmt.Errorf("gemini: create client: %w", err)
	}
	p.clients[key] = c
	return c, nil
}

// Call makes an API call to Gemini
func (p *GeminiProvider) Call(ctx context.Context, request LLMRequest) (*LLMResponse, error) {
	key := request.APIKey
	if key == "" {
		key = p.defaultKey
	}
	if key == "" {
		return nil, errors.New("gemini: api key is required")
	}

	client, err := p.clientFor(ctx, key)
	if err != nil {
		return nil, err
	}

	config := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(float32(request.Temperature)),
	}
	if request.MaxTokens > 0 {
		config.MaxOutputTokens = int32(request.MaxTokens)
	}
	if request.SystemPrompt != "" {
		config.SystemInstruction = genai.NewContentFromText(request.SystemPrompt, genai.RoleUser)
	}
	if len(request.Tools) > 0 {
		decls := make([]*genai.FunctionDeclaration, 0, len(request.Tools))
		for _, tool := range request.Tools {
			decls = append(decls, &genai.FunctionDeclaration{
				Name:                 tool.Name,
				Description:          tool.Description,
				ParametersJsonSchema: tool.Parameters,
			})
		}
		config.Tools = []*genai.Tool{{FunctionDeclarations: decls}}
	}

	resp, err := client.Models.GenerateContent(ctx, request.Model, geminiContents(request.Messages), config)
	if err != nil {
		return nil, err
	}

	out := &LLMResponse{Content: resp.Text()}
	for _, fc := range resp.FunctionCalls() {
		out.ToolCalls = append(out.ToolCalls, ToolCall{
			ID:         fc.ID,
			Name:       fc.Name,
			Parameters: fc.Args,
		})
	}
	if resp.UsageMetadata != nil {
		out.Usage = &TokenUsage{
			InputTokens:  int(resp.UsageMetadata.PromptTokenCount),
			OutputTokens: int(resp.UsageMetadata.CandidatesTokenCount),
		}
	}
	return out, nil
}

// geminiContents converts the conversation. Consecutive tool results are
// grouped into one user turn, which the API requires after a function call.
func geminiContents(msgs []AgentMessage) []*genai.Content {
	var contents []*genai.Content
	var pending []*genai.Part

	flush := func() {
		if len(pending) > 0 {
			contents = append(contents, genai.NewContentFromParts(pending, genai.RoleUser))
			pending = nil
		}
	}

	for _, msg := range msgs {
		if msg.Role == RoleTool {
			part := genai.NewPartFromFunctionResponse(msg.ToolName, map[string]any{"output": msg.Content})
			part.FunctionResponse.ID = msg.ToolCallID
			pending = append(pending, part)
			continue
		}
		flush()

		switch msg.Role {
		case RoleUser:
			contents = append(contents, genai.NewContentFromText(msg.Content, genai.RoleUser))
		case RoleAssistant:
			var parts []*genai.Part
			if msg.Content != "" {
				parts = append(parts, genai.NewPartFromText(msg.Content))
			}
			for _, tc := range msg.ToolCalls {
				parts = append(parts, &genai.Part{FunctionCall: &genai.FunctionCall{
					ID:   tc.ID,
					Name: tc.Name,
					Args: tc.Parameters,
				}})
			}
			if len(parts) > 0 {
				contents = append(contents, genai.NewContentFromParts(parts, genai.RoleModel))
			}
		}
	}
	flush()
	return contents
}
