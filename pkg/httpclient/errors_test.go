package httpclient

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/url"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
)

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"canceled", context.Canceled, false},
		{"deadline", context.DeadlineExceeded, true},
		{"eof", io.ErrUnexpectedEOF, true},
		{"reset", fmt.Errorf("read: %w", syscall.ECONNRESET), true},
		{"net timeout", timeoutErr{}, true},
		{"dial refused", &net.OpError{Op: "dial", Err: syscall.ECONNREFUSED}, true},
		{"url wrapping refused", &url.Error{Op: "Get", URL: "x", Err: &net.OpError{Op: "dial", Err: syscall.ECONNREFUSED}}, true},
		{"url wrapping scheme error", &url.Error{Op: "Get", URL: "x", Err: errors.New("unsupported protocol scheme")}, false},
		{"status error", &StatusError{StatusCode: 500}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsTransient(tt.err))
		})
	}
}

func TestIsTimeout(t *testing.T) {
	assert.True(t, IsTimeout(timeoutErr{}))
	assert.True(t, IsTimeout(fmt.Errorf("wrap: %w", context.DeadlineExceeded)))
	assert.False(t, IsTimeout(errors.New("nope")))
}

func TestSuggestion(t *testing.T) {
	assert.Contains(t, Suggestion(404), "extract_context")
	assert.Contains(t, Suggestion(429), "30 seconds")
	assert.Contains(t, Suggestion(599), "Server error")
	assert.Contains(t, Suggestion(418), "Client error")
}

func TestStatusErrorRetryable(t *testing.T) {
	assert.False(t, (&StatusError{StatusCode: 401}).Retryable())
	assert.False(t, (&StatusError{StatusCode: 403}).Retryable())
	assert.False(t, (&StatusError{StatusCode: 400}).Retryable())
	assert.True(t, (&StatusError{StatusCode: 429}).Retryable())
	assert.True(t, (&StatusError{StatusCode: 502}).Retryable())
}
