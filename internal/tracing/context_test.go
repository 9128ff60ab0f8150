package tracing

import (
	"bytes"
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestNewIDsAreUnique(t *testing.T) {
	assert.NotEqual(t, NewTraceID(), NewTraceID())
	assert.NotEqual(t, NewRunID(), NewRunID())
}

func TestContextRoundTrip(t *testing.T) {
	ctx := context.Background()
	ctx = WithTraceID(ctx, "trace-1")
	ctx = WithRunID(ctx, "run-1")
	ctx = WithJobID(ctx, "job-1")
	ctx = WithQuestionURL(ctx, "https://quiz.example/q1")

	tc := FromContext(ctx)
	assert.Equal(t, "trace-1", tc.TraceID)
	assert.Equal(t, "run-1", tc.RunID)
	assert.Equal(t, "job-1", tc.JobID)
	assert.Equal(t, "https://quiz.example/q1", tc.QuestionURL)
}

func TestGettersOnEmptyContext(t *testing.T) {
	assert.Empty(t, GetTraceID(context.Background()))
	assert.Empty(t, GetRunID(nil)) //nolint:staticcheck
}

func TestNewRunContextKeepsTrace(t *testing.T) {
	ctx := WithTraceID(context.Background(), "keep-me")
	ctx = NewRunContext(ctx)

	assert.Equal(t, "keep-me", GetTraceID(ctx))
	assert.NotEmpty(t, GetRunID(ctx))

	fresh := NewRunContext(context.Background())
	assert.NotEmpty(t, GetTraceID(fresh))
}

func TestLoggerFromContext(t *testing.T) {
	var buf bytes.Buffer
	base := zerolog.New(&buf)

	ctx := WithRunID(WithTraceID(context.Background(), "t-9"), "r-9")
	logger := LoggerFromContext(ctx, base)
	logger.Info().Msg("hello")

	out := buf.String()
	assert.Contains(t, out, `"trace_id":"t-9"`)
	assert.Contains(t, out, `"run_id":"r-9"`)
	assert.NotContains(t, out, "job_id")
}
