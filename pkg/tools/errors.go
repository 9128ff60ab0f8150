package tools

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/harun/hybridsolver/pkg/httpclient"
)

// ErrorResponse is the structured failure a tool returns to the model.
type ErrorResponse struct {
	Success    bool   `json:"success"`
	Error      string `json:"error"`
	ErrorType  string `json:"error_type"`
	Suggestion string `json:"suggestion"`
	Retryable  bool   `json:"retryable"`
	Context    string `json:"context,omitempty"`
	HTTPStatus int    `json:"http_status,omitempty"`
}

var defaultSuggestions = map[string]string{
	"endpoint_not_found":   "Use extract_context to locate the correct submit URL.",
	"authentication_error": "Verify email and secret credentials.",
	"rate_limit":           "Wait before retrying.",
	"timeout":              "Retry the request after a short delay.",
	"network_error":        "Check network connectivity and retry.",
	"json_parse_error":     "Inspect API response format before parsing.",
	"import_error":         "Use add_dependencies to install the missing package.",
	"syntax_error":         "Fix Python syntax errors.",
	"name_error":           "Ensure all variables and functions are defined.",
}

// DefaultSuggestion returns the remedy for an error type.
func DefaultSuggestion(errorType string) string {
	if s, ok := defaultSuggestions[errorType]; ok {
		return s
	}
	return "Analyze the error and try a different approach."
}

// ErrorType classifies err for the model. Typed HTTP failures are classified
// by status; everything else by its message.
func ErrorType(err error) string {
	if err == nil {
		return ""
	}

	var statusErr *httpclient.StatusError
	if errors.As(err, &statusErr) {
		switch {
		case statusErr.StatusCode == 404:
			return "endpoint_not_found"
		case statusErr.StatusCode == 401 || statusErr.StatusCode == 403:
			return "authentication_error"
		case statusErr.StatusCode == 429:
			return "rate_limit"
		case statusErr.StatusCode == 408 || statusErr.StatusCode == 504:
			return "timeout"
		default:
			return "http_error"
		}
	}
	if httpclient.IsTimeout(err) {
		return "timeout"
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "404"):
		return "endpoint_not_found"
	case strings.Contains(msg, "401"), strings.Contains(msg, "403"):
		return "authentication_error"
	case strings.Contains(msg, "429"), strings.Contains(msg, "rate"):
		return "rate_limit"
	case strings.Contains(msg, "timeout"):
		return "timeout"
	case strings.Contains(msg, "connection"), strings.Contains(msg, "network"):
		return "network_error"
	case strings.Contains(msg, "json"):
		return "json_parse_error"
	case strings.Contains(msg, "import"):
		return "import_error"
	case strings.Contains(msg, "syntax"):
		return "syntax_error"
	case strings.Contains(msg, "not defined"):
		return "name_error"
	}
	return "unknown_error"
}

// NewErrorResponse builds a retryable ErrorResponse for err. A StatusError
// contributes its status and suggestion; 401 and 403 are not retryable.
func NewErrorResponse(err error, context string) ErrorResponse {
	errorType := ErrorType(err)
	resp := ErrorResponse{
		Error:      err.Error(),
		ErrorType:  errorType,
		Suggestion: DefaultSuggestion(errorType),
		Retryable:  true,
		Context:    context,
	}

	var statusErr *httpclient.StatusError
	if errors.As(err, &statusErr) {
		resp.HTTPStatus = statusErr.StatusCode
		if statusErr.Suggestion != "" {
			resp.Suggestion = statusErr.Suggestion
		} else {
			resp.Suggestion = httpclient.Suggestion(statusErr.StatusCode)
		}
		resp.Retryable = statusErr.StatusCode != 401 && statusErr.StatusCode != 403
	}
	return resp
}

// CodeErrorAnalysis describes why a script failed.
type CodeErrorAnalysis struct {
	Type       string `json:"type"`
	Message    string `json:"message,omitempty"`
	Line       int    `json:"line,omitempty"`
	Suggestion string `json:"suggestion"`
}

var (
	reMissingModule = regexp.MustCompile(`no module named ['"]?([\w.]+)`)
	reUndefinedName = regexp.MustCompile(`name ['"]?(\w+)['"]? is not defined`)
	reMissingKey    = regexp.MustCompile(`keyerror:? ['"]?([^'"\n]+)`)
	reLineNumber    = regexp.MustCompile(`line (\d+)`)
)

// AnalyzeCodeError inspects a Python traceback.
func AnalyzeCodeError(stderr string) CodeErrorAnalysis {
	info := CodeErrorAnalysis{
		Type:       "runtime_error",
		Suggestion: "Inspect the error and fix the code logic.",
	}
	lower := strings.ToLower(stderr)

	switch {
	case strings.Contains(lower, "importerror"), strings.Contains(lower, "modulenotfounderror"):
		info.Type = "import_error"
		info.Suggestion = "Use add_dependencies to install missing packages."
		if m := reMissingModule.FindStringSubmatch(lower); m != nil {
			module := strings.SplitN(m[1], ".", 2)[0]
			info.Message = "Missing module: " + module
			info.Suggestion = fmt.Sprintf("Use add_dependencies to install '%s'.", module)
		}
	case strings.Contains(lower, "syntaxerror"):
		info.Type = "syntax_error"
		info.Suggestion = "Fix Python syntax (colons, brackets, quotes)."
	case strings.Contains(lower, "nameerror"):
		info.Type = "name_error"
		if m := reUndefinedName.FindStringSubmatch(stderr); m != nil {
			info.Message = "Undefined name: " + m[1]
			info.Suggestion = fmt.Sprintf("Define '%s' before use.", m[1])
		}
	case strings.Contains(lower, "typeerror"):
		info.Type = "type_error"
		info.Suggestion = "Check variable types used in operations."
	case strings.Contains(lower, "keyerror"):
		info.Type = "key_error"
		if m := reMissingKey.FindStringSubmatch(lower); m != nil {
			info.Message = "Missing key: " + m[1]
			info.Suggestion = "Inspect dictionary keys before accessing."
		}
	case strings.Contains(lower, "filenotfounderror"):
		info.Type = "file_not_found"
		info.Suggestion = "Ensure the file exists or download it first."
	}

	// Tracebacks list the innermost frame last.
	if all := reLineNumber.FindAllStringSubmatch(stderr, -1); len(all) > 0 {
		info.Line, _ = strconv.Atoi(all[len(all)-1][1])
	}

	if info.Message == "" {
		lines := strings.Split(strings.TrimSpace(stderr), "\n")
		last := strings.TrimSpace(lines[len(lines)-1])
		if len(last) > 200 {
			last = last[:200]
		}
		info.Message = last
	}
	return info
}
