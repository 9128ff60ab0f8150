package agent

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/harun/hybridsolver/pkg/httpclient"
	"github.com/openai/openai-go"
	"google.golang.org/genai"
)

// ErrorKind classifies a provider failure.
type ErrorKind string

const (
	KindQuotaExceeded       ErrorKind = "quota_exceeded"
	KindNetwork             ErrorKind = "network"
	KindTimeout             ErrorKind = "timeout"
	KindApplicationRejected ErrorKind = "application_rejected"
	KindEmptyResponse       ErrorKind = "empty_response"
	KindUnknown             ErrorKind = "unknown"
)

// ErrEmptyResponse is returned when a provider answers with neither text nor
// tool calls.
var ErrEmptyResponse = errors.New("empty LLM response")

// DefaultQuotaIndicators are matched against error text when no typed error
// identifies a quota failure.
var DefaultQuotaIndicators = []string{"RESOURCE_EXHAUSTED", "429", "quota", "rate limit"}

// ProviderError wraps a provider failure with its classification.
type ProviderError struct {
	Provider string
	Kind     ErrorKind
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Provider, e.Kind, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// Classifier maps provider errors to kinds.
type Classifier interface {
	Classify(err error) ErrorKind
}

// ClassifierFunc adapts a function to Classifier.
type ClassifierFunc func(err error) ErrorKind

// Classify implements Classifier.
func (f ClassifierFunc) Classify(err error) ErrorKind { return f(err) }

// DefaultClassifier inspects typed SDK errors first and falls back to
// matching Indicators against the error text.
type DefaultClassifier struct {
	Indicators []string
}

// NewDefaultClassifier returns a classifier using DefaultQuotaIndicators plus
// any extra indicators.
func NewDefaultClassifier(extra ...string) *DefaultClassifier {
	ind := append([]string(nil), DefaultQuotaIndicators...)
	for _, e := range extra {
		if e = strings.TrimSpace(e); e != "" {
			ind = append(ind, e)
		}
	}
	return &DefaultClassifier{Indicators: ind}
}

// Classify implements Classifier.
func (c *DefaultClassifier) Classify(err error) ErrorKind {
	if err == nil {
		return ""
	}

	var perr *ProviderError
	if errors.As(err, &perr) && perr.Kind != "" {
		return perr.Kind
	}
	if errors.Is(err, ErrEmptyResponse) {
		return KindEmptyResponse
	}

	if code, status, ok := statusOf(err); ok {
		if code == http.StatusTooManyRequests || status == "RESOURCE_EXHAUSTED" {
			return KindQuotaExceeded
		}
		switch {
		case code == http.StatusRequestTimeout || code == http.StatusGatewayTimeout:
			return KindTimeout
		case code >= 500:
			return KindNetwork
		case code >= 400:
			return KindApplicationRejected
		}
	}

	if errors.Is(err, context.DeadlineExceeded) || httpclient.IsTimeout(err) {
		return KindTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) || httpclient.IsTransient(err) {
		return KindNetwork
	}

	msg := strings.ToLower(err.Error())
	for _, ind := range c.Indicators {
		if ind != "" && strings.Contains(msg, strings.ToLower(ind)) {
			return KindQuotaExceeded
		}
	}
	return KindUnknown
}

// statusOf extracts an HTTP status from the SDK error types we know about.
func statusOf(err error) (int, string, bool) {
	var gErr genai.APIError
	if errors.As(err, &gErr) {
		return gErr.Code, gErr.Status, true
	}
	var gErrPtr *genai.APIError
	if errors.As(err, &gErrPtr) && gErrPtr != nil {
		return gErrPtr.Code, gErrPtr.Status, true
	}
	var oErr *openai.Error
	if errors.As(err, &oErr) {
		return oErr.StatusCode, "", true
	}
	var aErr *anthropic.Error
	if errors.As(err, &aErr) {
		return aErr.StatusCode, "", true
	}
	var sErr *httpclient.StatusError
	if errors.As(err, &sErr) {
		return sErr.StatusCode, "", true
	}
	return 0, "", false
}
