package tools

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/harun/hybridsolver/pkg/agent"
	"github.com/harun/hybridsolver/pkg/httpclient"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRegistry(t *testing.T, opts ...func(*RegistryOptions)) *Registry {
	t.Helper()
	o := RegistryOptions{Logger: zerolog.Nop()}
	for _, fn := range opts {
		fn(&o)
	}
	return NewRegistry(o)
}

func echoTool() Definition {
	return Definition{
		Name:        "echo",
		Description: "Echo the message",
		Parameters: []Parameter{
			{Name: "message", Type: "string", Description: "Message to echo", Required: true},
			{Name: "count", Type: "integer", Description: "Repetitions"},
		},
		Handler: func(ctx context.Context, params map[string]interface{}) (interface{}, error) {
			return params["message"], nil
		},
	}
}

func decodeError(t *testing.T, content string) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal([]byte(content), &resp), content)
	assert.False(t, resp.Success)
	return resp
}

func TestRegisterValidation(t *testing.T) {
	noop := func(ctx context.Context, params map[string]interface{}) (interface{}, error) { return nil, nil }

	tests := []struct {
		name string
		def  Definition
	}{
		{"empty name", Definition{Description: "d", Handler: noop}},
		{"empty description", Definition{Name: "x", Handler: noop}},
		{"nil handler", Definition{Name: "x", Description: "d"}},
		{"bad param type", Definition{Name: "x", Description: "d", Handler: noop,
			Parameters: []Parameter{{Name: "p", Type: "date", Description: "p"}}}},
		{"param without description", Definition{Name: "x", Description: "d", Handler: noop,
			Parameters: []Parameter{{Name: "p", Type: "string"}}}},
	}

	reg := newTestRegistry(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, reg.Register(tt.def))
		})
	}
	assert.Empty(t, reg.Names())
}

func TestSpecsCarrySchema(t *testing.T) {
	reg := newTestRegistry(t)
	require.NoError(t, reg.Register(echoTool()))
	require.NoError(t, reg.Register(Definition{
		Name:        "add",
		Description: "Install",
		Parameters:  []Parameter{{Name: "deps", Type: "array", Description: "Packages", Required: true}},
		Handler:     echoTool().Handler,
	}))

	specs := reg.Specs()
	require.Len(t, specs, 2)
	assert.Equal(t, "add", specs[0].Name)
	assert.Equal(t, "echo", specs[1].Name)

	schema := specs[1].Parameters
	assert.Equal(t, "object", schema["type"])
	assert.Equal(t, []interface{}{"message"}, schema["required"])
	props := schema["properties"].(map[string]interface{})
	assert.Contains(t, props, "count")

	arr := specs[0].Parameters["properties"].(map[string]interface{})["deps"].(map[string]interface{})
	assert.Equal(t, map[string]interface{}{"type": "string"}, arr["items"])
}

func TestExecuteSuccess(t *testing.T) {
	reg := newTestRegistry(t)
	require.NoError(t, reg.Register(echoTool()))

	out := reg.Execute(context.Background(), agent.ToolCall{
		Name:       "echo",
		Parameters: map[string]interface{}{"message": "hi"},
	})
	assert.Equal(t, "hi", out.Content)
	assert.Nil(t, out.Submission)
}

func TestExecuteEncodesStructuredResults(t *testing.T) {
	reg := newTestRegistry(t)
	require.NoError(t, reg.Register(Definition{
		Name:        "info",
		Description: "Info",
		Handler: func(ctx context.Context, params map[string]interface{}) (interface{}, error) {
			return map[string]int{"n": 3}, nil
		},
	}))

	out := reg.Execute(context.Background(), agent.ToolCall{Name: "info"})
	assert.JSONEq(t, `{"n":3}`, out.Content)
}

func TestExecuteUnknownTool(t *testing.T) {
	reg := newTestRegistry(t)
	require.NoError(t, reg.Register(echoTool()))

	out := reg.Execute(context.Background(), agent.ToolCall{Name: "missing"})
	resp := decodeError(t, out.Content)
	assert.Equal(t, "tool_not_found", resp.ErrorType)
	assert.Contains(t, resp.Suggestion, "echo")
}

func TestExecuteInvalidParameters(t *testing.T) {
	reg := newTestRegistry(t)
	require.NoError(t, reg.Register(echoTool()))

	tests := []struct {
		name   string
		params map[string]interface{}
	}{
		{"missing required", map[string]interface{}{}},
		{"wrong type", map[string]interface{}{"message": 42}},
		{"nil params", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := reg.Execute(context.Background(), agent.ToolCall{Name: "echo", Parameters: tt.params})
			resp := decodeError(t, out.Content)
			assert.Equal(t, "invalid_parameters", resp.ErrorType)
			assert.True(t, resp.Retryable)
		})
	}
}

func TestExecuteHandlerError(t *testing.T) {
	reg := newTestRegistry(t)
	require.NoError(t, reg.Register(Definition{
		Name:        "submit",
		Description: "Submit",
		Handler: func(ctx context.Context, params map[string]interface{}) (interface{}, error) {
			return nil, &httpclient.StatusError{Method: "POST", URL: "http://x/submit", StatusCode: 403}
		},
	}))

	out := reg.Execute(context.Background(), agent.ToolCall{Name: "submit"})
	resp := decodeError(t, out.Content)
	assert.Equal(t, "authentication_error", resp.ErrorType)
	assert.Equal(t, 403, resp.HTTPStatus)
	assert.False(t, resp.Retryable)
	assert.Equal(t, "submit", resp.Context)
}

func TestExecuteTimeout(t *testing.T) {
	reg := newTestRegistry(t)
	release := make(chan struct{})
	defer close(release)
	require.NoError(t, reg.Register(Definition{
		Name:        "slow",
		Description: "Slow",
		Timeout:     50 * time.Millisecond,
		Handler: func(ctx context.Context, params map[string]interface{}) (interface{}, error) {
			select {
			case <-release:
			case <-time.After(5 * time.Second):
			}
			return "late", nil
		},
	}))

	start := time.Now()
	out := reg.Execute(context.Background(), agent.ToolCall{Name: "slow"})
	assert.Less(t, time.Since(start), 2*time.Second)

	resp := decodeError(t, out.Content)
	assert.Equal(t, "timeout", resp.ErrorType)
}

func TestExecuteRecoversPanics(t *testing.T) {
	reg := newTestRegistry(t)
	require.NoError(t, reg.Register(Definition{
		Name:        "boom",
		Description: "Panics",
		Handler: func(ctx context.Context, params map[string]interface{}) (interface{}, error) {
			panic("kaput")
		},
	}))

	out := reg.Execute(context.Background(), agent.ToolCall{Name: "boom"})
	resp := decodeError(t, out.Content)
	assert.Contains(t, resp.Error, "kaput")
}

func TestExecuteTruncatesOutput(t *testing.T) {
	reg := newTestRegistry(t, func(o *RegistryOptions) { o.OutputLimit = 10 })
	require.NoError(t, reg.Register(echoTool()))

	out := reg.Execute(context.Background(), agent.ToolCall{
		Name:       "echo",
		Parameters: map[string]interface{}{"message": strings.Repeat("x", 50)},
	})
	assert.Equal(t, strings.Repeat("x", 10)+truncationMarker, out.Content)
}

type submitted struct{ sub agent.Submission }

func (s submitted) Submission() *agent.Submission { return &s.sub }

func TestExecutePropagatesSubmission(t *testing.T) {
	reg := newTestRegistry(t)
	require.NoError(t, reg.Register(Definition{
		Name:        "post",
		Description: "Post",
		Handler: func(ctx context.Context, params map[string]interface{}) (interface{}, error) {
			return submitted{sub: agent.Submission{URL: "q1", Correct: true, NextURL: "q2"}}, nil
		},
	}))

	out := reg.Execute(context.Background(), agent.ToolCall{Name: "post"})
	require.NotNil(t, out.Submission)
	assert.Equal(t, "q2", out.Submission.NextURL)
	assert.True(t, out.Submission.Correct)
}

func TestExecuteHonoursCallerCancellation(t *testing.T) {
	reg := newTestRegistry(t)
	require.NoError(t, reg.Register(Definition{
		Name:        "wait",
		Description: "Waits",
		Handler: func(ctx context.Context, params map[string]interface{}) (interface{}, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		},
	}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	out := reg.Execute(ctx, agent.ToolCall{Name: "wait"})
	resp := decodeError(t, out.Content)
	assert.Contains(t, resp.Error, context.Canceled.Error())
}
