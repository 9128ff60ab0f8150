package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/harun/hybridsolver/internal/observability"
	"github.com/harun/hybridsolver/internal/tracing"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
)

const maxBodyBytes = 64 << 20

// Options configures the shared client.
type Options struct {
	Timeout         time.Duration
	MaxConns        int
	MaxIdleConns    int
	IdleConnTimeout time.Duration

	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Multiplier     float64

	UserAgent string
	// Transport replaces the pooled transport; tests inject failures here.
	Transport http.RoundTripper
	Logger    zerolog.Logger
}

// DefaultOptions returns the production pool and retry settings.
func DefaultOptions() Options {
	return Options{
		Timeout:         30 * time.Second,
		MaxConns:        100,
		MaxIdleConns:    20,
		IdleConnTimeout: 30 * time.Second,
		MaxAttempts:     3,
		InitialBackoff:  2 * time.Second,
		MaxBackoff:      10 * time.Second,
		Multiplier:      2,
		UserAgent:       "hybridsolver/1.0",
	}
}

// Response is a fully read HTTP response.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// JSON decodes the body into v.
func (r *Response) JSON(v any) error {
	return json.Unmarshal(r.Body, v)
}

// ContentType returns the Content-Type header.
func (r *Response) ContentType() string {
	return r.Header.Get("Content-Type")
}

// Client is a connection-pooled HTTP client that retries transport failures
// with exponential backoff. Non-2xx responses are returned as *StatusError
// after a single attempt.
type Client struct {
	hc     *http.Client
	opts   Options
	closed atomic.Bool
	logger zerolog.Logger
}

// New builds a client; zero option fields take DefaultOptions values.
func New(opts Options) *Client {
	def := DefaultOptions()
	if opts.Timeout <= 0 {
		opts.Timeout = def.Timeout
	}
	if opts.MaxConns <= 0 {
		opts.MaxConns = def.MaxConns
	}
	if opts.MaxIdleConns <= 0 {
		opts.MaxIdleConns = def.MaxIdleConns
	}
	if opts.IdleConnTimeout <= 0 {
		opts.IdleConnTimeout = def.IdleConnTimeout
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = def.MaxAttempts
	}
	if opts.InitialBackoff <= 0 {
		opts.InitialBackoff = def.InitialBackoff
	}
	if opts.MaxBackoff < opts.InitialBackoff {
		opts.MaxBackoff = def.MaxBackoff
		if opts.MaxBackoff < opts.InitialBackoff {
			opts.MaxBackoff = opts.InitialBackoff
		}
	}
	if opts.Multiplier <= 1 {
		opts.Multiplier = def.Multiplier
	}
	if opts.UserAgent == "" {
		opts.UserAgent = def.UserAgent
	}

	transport := opts.Transport
	if transport == nil {
		transport = &http.Transport{
			Proxy:               http.ProxyFromEnvironment,
			MaxConnsPerHost:     opts.MaxConns,
			MaxIdleConns:        opts.MaxIdleConns,
			MaxIdleConnsPerHost: opts.MaxIdleConns,
			IdleConnTimeout:     opts.IdleConnTimeout,
			ForceAttemptHTTP2:   true,
			TLSHandshakeTimeout: 10 * time.Second,
		}
	}
	observability.EnsureRegistered()

	return &Client{
		hc:     &http.Client{Transport: transport, Timeout: opts.Timeout},
		opts:   opts,
		logger: opts.Logger.With().Str("component", "httpclient").Logger(),
	}
}

// HTTPClient exposes the pooled client for SDKs that accept one.
func (c *Client) HTTPClient() *http.Client {
	return c.hc
}

// GetWithRetry performs a GET.
func (c *Client) GetWithRetry(ctx context.Context, url string) (*Response, error) {
	return c.Do(ctx, http.MethodGet, url, nil, nil)
}

// PostWithRetry POSTs body encoded as JSON.
func (c *Client) PostWithRetry(ctx context.Context, url string, body any, header http.Header) (*Response, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encode request body: %w", err)
	}
	h := http.Header{}
	for k, v := range header {
		h[k] = append([]string(nil), v...)
	}
	if h.Get("Content-Type") == "" {
		h.Set("Content-Type", "application/json")
	}
	return c.Do(ctx, http.MethodPost, url, payload, h)
}

func (c *Client) newBackOff(ctx context.Context) backoff.BackOffContext {
	expo := backoff.NewExponentialBackOff()
	expo.InitialInterval = c.opts.InitialBackoff
	expo.MaxInterval = c.opts.MaxBackoff
	expo.Multiplier = c.opts.Multiplier
	expo.RandomizationFactor = 0
	expo.MaxElapsedTime = 0
	expo.Reset()

	if c.opts.MaxAttempts <= 1 {
		return backoff.WithContext(&backoff.StopBackOff{}, ctx)
	}
	return backoff.WithContext(backoff.WithMaxRetries(expo, uint64(c.opts.MaxAttempts-1)), ctx)
}

// Do sends the request, retrying transport failures up to MaxAttempts times.
func (c *Client) Do(ctx context.Context, method, url string, body []byte, header http.Header) (*Response, error) {
	if c.closed.Load() {
		return nil, ErrClosed
	}

	ctx, span := tracing.StartSpan(ctx, "httpclient.do",
		attribute.String("http.method", method),
		attribute.String("http.url", url),
	)
	defer span.End()
	logger := tracing.LoggerFromContext(ctx, c.logger)

	start := time.Now()
	attempts := 0
	var resp *Response

	op := func() error {
		attempts++
		if c.closed.Load() {
			return backoff.Permanent(ErrClosed)
		}
		if err := ctx.Err(); err != nil {
			return backoff.Permanent(err)
		}

		r, err := c.once(ctx, method, url, body, header)
		if err != nil {
			if IsTransient(err) && ctx.Err() == nil {
				observability.RecordHTTPAttempt(method, "transport")
				return err
			}
			observability.RecordHTTPAttempt(method, "error")
			return backoff.Permanent(err)
		}

		if r.StatusCode < 200 || r.StatusCode >= 300 {
			observability.RecordHTTPAttempt(method, "status")
			snippet := r.Body
			if len(snippet) > 512 {
				snippet = snippet[:512]
			}
			return backoff.Permanent(&StatusError{
				Method:     method,
				URL:        url,
				StatusCode: r.StatusCode,
				Body:       string(snippet),
				Suggestion: Suggestion(r.StatusCode),
			})
		}

		observability.RecordHTTPAttempt(method, "ok")
		resp = r
		return nil
	}

	notify := func(err error, wait time.Duration) {
		observability.RecordHTTPRetry()
		logger.Warn().
			Err(err).
			Str("method", method).
			Str("url", url).
			Int("attempt", attempts).
			Dur("backoff", wait).
			Msg("Transient HTTP failure, retrying")
	}

	err := backoff.RetryNotify(op, c.newBackOff(ctx), notify)
	observability.RecordHTTPRequest(method, time.Since(start))
	span.SetAttributes(attribute.Int("http.attempts", attempts))

	if err != nil {
		tracing.RecordError(span, err)
		logger.Debug().Err(err).Str("method", method).Str("url", url).Int("attempts", attempts).Msg("HTTP request failed")
		return nil, err
	}
	return resp, nil
}

func (c *Client) once(ctx context.Context, method, url string, body []byte, header http.Header) (*Response, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, err
	}
	for k, v := range header {
		req.Header[k] = v
	}
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", c.opts.UserAgent)
	}

	res, err := c.hc.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	data, err := io.ReadAll(io.LimitReader(res.Body, maxBodyBytes))
	if err != nil {
		return nil, err
	}
	return &Response{StatusCode: res.StatusCode, Header: res.Header, Body: data}, nil
}

// Close releases pooled connections. It is safe to call more than once.
func (c *Client) Close() error {
	if c.closed.Swap(true) {
		return nil
	}
	c.hc.CloseIdleConnections()
	c.logger.Debug().Msg("HTTP client closed")
	return nil
}
