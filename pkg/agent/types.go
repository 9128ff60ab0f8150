package agent

import "strings"

// Message roles used in AgentMessage.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// EndMarker is the assistant reply that ends a conversation.
const EndMarker = "END"

// ToolCall represents a tool invocation requested by the model
type ToolCall struct {
	ID         string                 `json:"id"`
	Name       string                 `json:"name"`
	Parameters map[string]interface{} `json:"parameters"`
}

// ToolSpec describes a tool offered to the model. Parameters is a JSON schema
// object with "type", "properties" and optionally "required".
type ToolSpec struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	Parameters  map[string]interface{} `json:"parameters"`
}

// TokenUsage tracks token consumption
type TokenUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// AgentMessage represents a message in the conversation
type AgentMessage struct {
	Role       string     `json:"role"`
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	// ToolName is set on tool results; Gemini matches responses by name.
	ToolName string `json:"tool_name,omitempty"`
}

// Submission is the outcome of an answer posted to the quiz server.
type Submission struct {
	URL     string `json:"url"`
	Correct bool   `json:"correct"`
	NextURL string `json:"next_url,omitempty"`
	Reason  string `json:"reason,omitempty"`
}

// ToolOutcome is what the runner receives back from a tool call.
type ToolOutcome struct {
	Content string
	// Submission is set only by tools that post answers.
	Submission *Submission
}

// IsEnd reports whether content is the END marker.
func IsEnd(content string) bool {
	return strings.EqualFold(strings.TrimSpace(content), EndMarker)
}
