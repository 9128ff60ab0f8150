package httpclient

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/url"
	"syscall"
)

// ErrClosed is returned for requests issued after Close.
var ErrClosed = errors.New("httpclient: client closed")

var statusSuggestions = map[int]string{
	400: "Bad request. The payload must include email, secret, url and answer fields.",
	401: "Authentication failed. Check the email and secret.",
	403: "Forbidden. The secret may be wrong or the resource is restricted.",
	404: "Endpoint not found. Re-read the page with extract_context to find the right URL.",
	405: "Method not allowed. Check whether the endpoint expects GET or POST.",
	408: "Request timed out. Retry the request.",
	429: "Rate limited. Wait about 30 seconds before retrying.",
	500: "Server error. The server may be temporarily down.",
	502: "Bad gateway. Retry after about 10 seconds.",
	503: "Service unavailable. Retry after about 30 seconds.",
	504: "Gateway timeout. The upstream server took too long.",
}

// Suggestion returns a remedy for an HTTP status, or a generic hint.
func Suggestion(status int) string {
	if s, ok := statusSuggestions[status]; ok {
		return s
	}
	switch {
	case status >= 500:
		return "Server error. Retry later."
	case status >= 400:
		return "Client error. Check the request URL and payload."
	default:
		return "Unexpected status code."
	}
}

// StatusError reports a completed request whose status was not 2xx.
// It is never retried by the client.
type StatusError struct {
	Method     string
	URL        string
	StatusCode int
	Body       string
	Suggestion string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: status %d", e.Method, e.URL, e.StatusCode)
}

// Retryable reports whether a caller could sensibly retry later.
// 401 and 403 will not succeed without a configuration change.
func (e *StatusError) Retryable() bool {
	switch e.StatusCode {
	case 401, 403:
		return false
	case 408, 429:
		return true
	}
	return e.StatusCode >= 500
}

// IsTransient reports whether err is a network or timeout failure worth
// retrying. Caller cancellation is never transient.
func IsTransient(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}

	var uerr *url.Error
	if errors.As(err, &uerr) {
		err = uerr.Err
	}

	if errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.EPIPE) {
		return true
	}

	var nerr net.Error
	return errors.As(err, &nerr)
}

// IsTimeout reports whether err is a timeout.
func IsTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var nerr net.Error
	return errors.As(err, &nerr) && nerr.Timeout()
}
