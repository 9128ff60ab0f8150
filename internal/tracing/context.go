package tracing

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ContextKey is the type for context keys
type ContextKey string

const (
	// TraceIDKey is the context key for trace ID
	TraceIDKey ContextKey = "trace_id"
	// RunIDKey is the context key for a solver run
	RunIDKey ContextKey = "run_id"
	// JobIDKey is the context key for the job accepted by the HTTP front end
	JobIDKey ContextKey = "job_id"
	// QuestionURLKey is the context key for the question being solved
	QuestionURLKey ContextKey = "question_url"
)

// TraceContext holds tracing information
type TraceContext struct {
	TraceID     string
	RunID       string
	JobID       string
	QuestionURL string
}

// NewTraceID generates a new trace ID
func NewTraceID() string {
	return uuid.New().String()
}

// NewRunID generates a new run ID
func NewRunID() string {
	return uuid.New().String()
}

func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, TraceIDKey, traceID)
}

func WithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, RunIDKey, runID)
}

func WithJobID(ctx context.Context, jobID string) context.Context {
	return context.WithValue(ctx, JobIDKey, jobID)
}

func WithQuestionURL(ctx context.Context, url string) context.Context {
	return context.WithValue(ctx, QuestionURLKey, url)
}

func stringValue(ctx context.Context, key ContextKey) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(key).(string); ok {
		return v
	}
	return ""
}

// GetTraceID retrieves the trace ID from the context
func GetTraceID(ctx context.Context) string { return stringValue(ctx, TraceIDKey) }

// GetRunID retrieves the run ID from the context
func GetRunID(ctx context.Context) string { return stringValue(ctx, RunIDKey) }

// GetJobID retrieves the job ID from the context
func GetJobID(ctx context.Context) string { return stringValue(ctx, JobIDKey) }

// GetQuestionURL retrieves the question URL from the context
func GetQuestionURL(ctx context.Context) string { return stringValue(ctx, QuestionURLKey) }

// FromContext extracts all tracing information from the context
func FromContext(ctx context.Context) *TraceContext {
	return &TraceContext{
		TraceID:     GetTraceID(ctx),
		RunID:       GetRunID(ctx),
		JobID:       GetJobID(ctx),
		QuestionURL: GetQuestionURL(ctx),
	}
}

// NewRunContext starts a solver run: a fresh run ID and, if missing, a trace ID.
func NewRunContext(ctx context.Context) context.Context {
	if GetTraceID(ctx) == "" {
		ctx = WithTraceID(ctx, NewTraceID())
	}
	return WithRunID(ctx, NewRunID())
}

// LoggerFromContext creates a logger with tracing context from the given context
func LoggerFromContext(ctx context.Context, logger zerolog.Logger) zerolog.Logger {
	tc := FromContext(ctx)

	c := logger.With()
	if tc.TraceID != "" {
		c = c.Str("trace_id", tc.TraceID)
	}
	if tc.RunID != "" {
		c = c.Str("run_id", tc.RunID)
	}
	if tc.JobID != "" {
		c = c.Str("job_id", tc.JobID)
	}
	if tc.QuestionURL != "" {
		c = c.Str("question_url", tc.QuestionURL)
	}
	return c.Logger()
}
