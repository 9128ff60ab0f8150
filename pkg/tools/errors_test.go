package tools

import (
	"errors"
	"fmt"
	"testing"

	"github.com/harun/hybridsolver/pkg/httpclient"
	"github.com/stretchr/testify/assert"
)

func TestErrorType(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{&httpclient.StatusError{StatusCode: 404}, "endpoint_not_found"},
		{&httpclient.StatusError{StatusCode: 401}, "authentication_error"},
		{fmt.Errorf("wrapped: %w", &httpclient.StatusError{StatusCode: 403}), "authentication_error"},
		{&httpclient.StatusError{StatusCode: 429}, "rate_limit"},
		{&httpclient.StatusError{StatusCode: 504}, "timeout"},
		{&httpclient.StatusError{StatusCode: 500}, "http_error"},
		{errors.New("dial tcp: connection refused"), "network_error"},
		{errors.New("invalid character '<' looking for beginning of JSON value"), "json_parse_error"},
		{errors.New("request timeout"), "timeout"},
		{errors.New("name 'x' is not defined"), "name_error"},
		{errors.New("something odd"), "unknown_error"},
	}

	for _, tt := range tests {
		t.Run(tt.want+"/"+tt.err.Error(), func(t *testing.T) {
			assert.Equal(t, tt.want, ErrorType(tt.err))
		})
	}
	assert.Empty(t, ErrorType(nil))
}

func TestNewErrorResponse(t *testing.T) {
	resp := NewErrorResponse(&httpclient.StatusError{StatusCode: 401}, "post_request")
	assert.False(t, resp.Success)
	assert.False(t, resp.Retryable)
	assert.Equal(t, 401, resp.HTTPStatus)
	assert.Equal(t, httpclient.Suggestion(401), resp.Suggestion)
	assert.Equal(t, "post_request", resp.Context)

	resp = NewErrorResponse(&httpclient.StatusError{StatusCode: 404, Suggestion: "look elsewhere"}, "")
	assert.True(t, resp.Retryable)
	assert.Equal(t, "look elsewhere", resp.Suggestion)

	resp = NewErrorResponse(errors.New("connection reset"), "")
	assert.True(t, resp.Retryable)
	assert.Zero(t, resp.HTTPStatus)
	assert.Equal(t, DefaultSuggestion("network_error"), resp.Suggestion)
}

func TestDefaultSuggestionFallback(t *testing.T) {
	assert.Equal(t, "Analyze the error and try a different approach.", DefaultSuggestion("weird"))
}

func TestAnalyzeCodeError(t *testing.T) {
	tests := []struct {
		name       string
		stderr     string
		wantType   string
		wantMsg    string
		wantLine   int
		suggestion string
	}{
		{
			name:       "missing module",
			stderr:     "Traceback (most recent call last):\n  File \"runner.py\", line 1, in <module>\n    import pandas\nModuleNotFoundError: No module named 'pandas'",
			wantType:   "import_error",
			wantMsg:    "Missing module: pandas",
			wantLine:   1,
			suggestion: "Use add_dependencies to install 'pandas'.",
		},
		{
			name:       "submodule",
			stderr:     "ModuleNotFoundError: No module named 'sklearn.linear_model'",
			wantType:   "import_error",
			wantMsg:    "Missing module: sklearn",
			suggestion: "Use add_dependencies to install 'sklearn'.",
		},
		{
			name:     "syntax",
			stderr:   "  File \"runner.py\", line 4\n    if x\n        ^\nSyntaxError: expected ':'",
			wantType: "syntax_error",
			wantMsg:  "SyntaxError: expected ':'",
			wantLine: 4,
		},
		{
			name:       "name",
			stderr:     "  File \"runner.py\", line 7, in <module>\nNameError: name 'total' is not defined",
			wantType:   "name_error",
			wantMsg:    "Undefined name: total",
			wantLine:   7,
			suggestion: "Define 'total' before use.",
		},
		{
			name:     "key",
			stderr:   "KeyError: 'price'",
			wantType: "key_error",
			wantMsg:  "Missing key: price",
		},
		{
			name:     "file",
			stderr:   "FileNotFoundError: [Errno 2] No such file or directory: 'data.csv'",
			wantType: "file_not_found",
			wantMsg:  "FileNotFoundError: [Errno 2] No such file or directory: 'data.csv'",
		},
		{
			name:     "runtime",
			stderr:   "ZeroDivisionError: division by zero",
			wantType: "runtime_error",
			wantMsg:  "ZeroDivisionError: division by zero",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := AnalyzeCodeError(tt.stderr)
			assert.Equal(t, tt.wantType, got.Type)
			assert.Equal(t, tt.wantMsg, got.Message)
			assert.Equal(t, tt.wantLine, got.Line)
			if tt.suggestion != "" {
				assert.Equal(t, tt.suggestion, got.Suggestion)
			}
			assert.NotEmpty(t, got.Suggestion)
		})
	}
}
