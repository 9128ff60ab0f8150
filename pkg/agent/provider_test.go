package agent

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"
)

func TestNewProvider(t *testing.T) {
	p, err := NewProvider(ProviderConfig{Name: ProviderGemini, APIKey: "k"})
	require.NoError(t, err)
	assert.Equal(t, ProviderGemini, p.Provider())

	p, err = NewProvider(ProviderConfig{Name: ProviderOpenAI, APIKey: "k", BaseURL: "https://proxy.example/v1"})
	require.NoError(t, err)
	assert.Equal(t, ProviderOpenAI, p.Provider())

	p, err = NewProvider(ProviderConfig{Name: ProviderAnthropic, APIKey: "k"})
	require.NoError(t, err)
	assert.Equal(t, ProviderAnthropic, p.Provider())

	_, err = NewProvider(ProviderConfig{Name: ProviderOpenAI})
	assert.Error(t, err)

	_, err = NewProvider(ProviderConfig{Name: "cohere", APIKey: "k"})
	assert.Error(t, err)
}

func TestSchemaParts(t *testing.T) {
	props, required := schemaParts(map[string]interface{}{
		"type":       "object",
		"properties": map[string]interface{}{"url": map[string]interface{}{"type": "string"}},
		"required":   []interface{}{"url", 7},
	})
	assert.Contains(t, props, "url")
	assert.Equal(t, []string{"url"}, required)

	props, required = schemaParts(map[string]interface{}{"required": []string{"a"}})
	assert.Empty(t, props)
	assert.Equal(t, []string{"a"}, required)
}

func TestGeminiContentsGroupsToolResults(t *testing.T) {
	msgs := []AgentMessage{
		{Role: RoleUser, Content: "start"},
		{Role: RoleAssistant, ToolCalls: []ToolCall{
			{ID: "a", Name: "get_rendered_html", Parameters: map[string]interface{}{"url": "u"}},
			{ID: "b", Name: "extract_context"},
		}},
		{Role: RoleTool, ToolCallID: "a", ToolName: "get_rendered_html", Content: "<html>"},
		{Role: RoleTool, ToolCallID: "b", ToolName: "extract_context", Content: "{}"},
		{Role: RoleAssistant, Content: "done"},
	}

	contents := geminiContents(msgs)
	require.Len(t, contents, 4)

	assert.Equal(t, string(genai.RoleUser), string(contents[0].Role))
	assert.Equal(t, string(genai.RoleModel), string(contents[1].Role))
	require.Len(t, contents[1].Parts, 2)
	assert.Equal(t, "get_rendered_html", contents[1].Parts[0].FunctionCall.Name)

	require.Len(t, contents[2].Parts, 2)
	assert.Equal(t, "a", contents[2].Parts[0].FunctionResponse.ID)
	assert.Equal(t, "extract_context", contents[2].Parts[1].FunctionResponse.Name)
	assert.Equal(t, "<html>", contents[2].Parts[0].FunctionResponse.Response["output"])

	assert.Equal(t, "done", contents[3].Parts[0].Text)
}

func TestOpenAIMessages(t *testing.T) {
	msgs, err := openAIMessages(LLMRequest{
		SystemPrompt: "sys",
		Messages: []AgentMessage{
			{Role: RoleUser, Content: "hi"},
			{Role: RoleAssistant, ToolCalls: []ToolCall{{ID: "1", Name: "run_code", Parameters: map[string]interface{}{"code": "print(1)"}}}},
			{Role: RoleTool, ToolCallID: "1", Content: "1"},
			{Role: "system", Content: "ignored"},
		},
	})
	require.NoError(t, err)
	assert.Len(t, msgs, 4)
}

func TestAnthropicMessagesSkipsEmptyAssistant(t *testing.T) {
	out := anthropicMessages([]AgentMessage{
		{Role: RoleUser, Content: "hi"},
		{Role: RoleAssistant},
		{Role: RoleTool, ToolCallID: "x", Content: "r"},
	})
	assert.Len(t, out, 2)
}
