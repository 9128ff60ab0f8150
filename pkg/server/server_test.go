package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/harun/hybridsolver/pkg/session"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeRunner struct {
	mu      sync.Mutex
	urls    []string
	release chan struct{}
	summary session.Summary
	err     error
	panicV  any
}

func newFakeRunner() *fakeRunner {
	return &fakeRunner{release: make(chan struct{})}
}

func (f *fakeRunner) Run(ctx context.Context, url string) (session.Summary, error) {
	f.mu.Lock()
	f.urls = append(f.urls, url)
	f.mu.Unlock()

	if f.panicV != nil {
		panic(f.panicV)
	}
	select {
	case <-f.release:
		return f.summary, f.err
	case <-ctx.Done():
		return f.summary, ctx.Err()
	}
}

func (f *fakeRunner) calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.urls...)
}

func newTestServer(t *testing.T, runner QuizRunner) *Server {
	t.Helper()
	srv, err := New(Options{
		Email:  "student@example.com",
		Secret: "s3cret",
		Logger: zerolog.Nop(),
	}, runner)
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Stop(ctx)
	})
	return srv
}

func post(t *testing.T, h http.Handler, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func waitFinished(t *testing.T, srv *Server) *RunReport {
	t.Helper()
	var report *RunReport
	require.Eventually(t, func() bool {
		report = srv.Report()
		return report != nil && !report.Running
	}, 2*time.Second, 10*time.Millisecond)
	return report
}

func TestNewValidation(t *testing.T) {
	_, err := New(Options{Secret: "x"}, nil)
	assert.Error(t, err)

	_, err = New(Options{}, newFakeRunner())
	assert.Error(t, err)
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t, newFakeRunner())

	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	body := decode(t, rec)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "student@example.com", body["email"])
	assert.Equal(t, defaultVersion, body["version"])
	assert.Equal(t, false, body["running"])
}

func TestQuizRejectsBadRequests(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		status int
		detail string
	}{
		{"invalid json", `{"url":`, http.StatusBadRequest, "Invalid JSON"},
		{"missing url", `{"secret":"s3cret"}`, http.StatusBadRequest, "Missing 'url' or 'secret'"},
		{"missing secret", `{"url":"https://q.example/1"}`, http.StatusBadRequest, "Missing 'url' or 'secret'"},
		{"wrong secret", `{"url":"https://q.example/1","secret":"nope"}`, http.StatusForbidden, "Invalid secret"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runner := newFakeRunner()
			srv := newTestServer(t, runner)

			rec := post(t, srv.Router(), "/quiz", tt.body)
			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, tt.detail, decode(t, rec)["detail"])
			assert.Empty(t, runner.calls())
			assert.Nil(t, srv.Report())
		})
	}
}

func TestQuizAcceptsAndRuns(t *testing.T) {
	runner := newFakeRunner()
	runner.summary = session.Summary{Correct: 2, Wrong: 1, Total: 3}
	srv := newTestServer(t, runner)
	h := srv.Router()

	rec := post(t, h, "/quiz", `{"url":"https://q.example/1","secret":"s3cret"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "accepted", body["status"])
	assert.Equal(t, "Quiz solving started", body["message"])
	jobID, _ := body["job_id"].(string)
	assert.NotEmpty(t, jobID)

	report := srv.Report()
	require.NotNil(t, report)
	assert.True(t, report.Running)
	assert.Equal(t, jobID, report.JobID)

	close(runner.release)
	report = waitFinished(t, srv)
	assert.Equal(t, []string{"https://q.example/1"}, runner.calls())
	require.NotNil(t, report.Summary)
	assert.Equal(t, 2, report.Summary.Correct)
	assert.Empty(t, report.Error)
	assert.NotNil(t, report.FinishedAt)

	sum := httptest.NewRecorder()
	h.ServeHTTP(sum, httptest.NewRequest(http.MethodGet, "/summary", nil))
	require.Equal(t, http.StatusOK, sum.Code)
	assert.Equal(t, jobID, decode(t, sum)["job_id"])
}

func TestSolveAlias(t *testing.T) {
	runner := newFakeRunner()
	close(runner.release)
	srv := newTestServer(t, runner)

	rec := post(t, srv.Router(), "/solve", `{"url":"https://q.example/1","secret":"s3cret"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	waitFinished(t, srv)
}

func TestQuizConflictWhileRunning(t *testing.T) {
	runner := newFakeRunner()
	srv := newTestServer(t, runner)
	h := srv.Router()

	rec := post(t, h, "/quiz", `{"url":"https://q.example/1","secret":"s3cret"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = post(t, h, "/quiz", `{"url":"https://q.example/2","secret":"s3cret"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)

	close(runner.release)
	waitFinished(t, srv)

	rec = post(t, h, "/quiz", `{"url":"https://q.example/3","secret":"s3cret"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	waitFinished(t, srv)
	assert.Equal(t, []string{"https://q.example/1", "https://q.example/3"}, runner.calls())
}

func TestRunErrorIsReported(t *testing.T) {
	runner := newFakeRunner()
	runner.err = errors.New("all providers failed")
	close(runner.release)
	srv := newTestServer(t, runner)

	post(t, srv.Router(), "/quiz", `{"url":"https://q.example/1","secret":"s3cret"}`)
	report := waitFinished(t, srv)
	assert.Equal(t, "all providers failed", report.Error)
}

func TestRunPanicIsReported(t *testing.T) {
	runner := newFakeRunner()
	runner.panicV = "boom"
	srv := newTestServer(t, runner)

	post(t, srv.Router(), "/quiz", `{"url":"https://q.example/1","secret":"s3cret"}`)
	report := waitFinished(t, srv)
	assert.Contains(t, report.Error, "boom")
}

func TestSummaryBeforeAnyRun(t *testing.T) {
	srv := newTestServer(t, newFakeRunner())

	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/summary", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCORSPreflight(t *testing.T) {
	srv := newTestServer(t, newFakeRunner())

	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodOptions, "/quiz", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestMetricsEndpoint(t *testing.T) {
	srv := newTestServer(t, newFakeRunner())

	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestStopCancelsRun(t *testing.T) {
	runner := newFakeRunner()
	srv, err := New(Options{Secret: "s3cret", Logger: zerolog.Nop()}, runner)
	require.NoError(t, err)

	post(t, srv.Router(), "/quiz", `{"url":"https://q.example/1","secret":"s3cret"}`)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, srv.Stop(ctx))

	report := srv.Report()
	require.NotNil(t, report)
	assert.False(t, report.Running)
	assert.Contains(t, report.Error, context.Canceled.Error())

	rec := post(t, srv.Router(), "/quiz", `{"url":"https://q.example/2","secret":"s3cret"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestStartAndStop(t *testing.T) {
	srv, err := New(Options{Host: "127.0.0.1", Secret: "s3cret", Logger: zerolog.Nop()}, newFakeRunner())
	require.NoError(t, err)
	srv.opts.Port = 0 // ephemeral

	require.NoError(t, srv.Start())
	addr := srv.Addr()
	require.NotEmpty(t, addr)

	client := &http.Client{Transport: &http.Transport{DisableKeepAlives: true}}
	resp, err := client.Get("http://" + addr + "/healthz")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, srv.Stop(ctx))
}
