package server

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/harun/hybridsolver/internal/observability"
	"github.com/harun/hybridsolver/internal/tracing"
	"github.com/harun/hybridsolver/pkg/session"
	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog"
)

const (
	defaultHost    = "0.0.0.0"
	defaultPort    = 8000
	defaultVersion = "hybrid-v1.0"
	maxBodyBytes   = 1 << 20
)

// QuizRunner solves a quiz chain starting at url.
type QuizRunner interface {
	Run(ctx context.Context, url string) (session.Summary, error)
}

// Options configures the server.
type Options struct {
	Host    string
	Port    int
	Email   string
	Secret  string
	Version string
	// RunTimeout bounds one background run. Zero means no limit.
	RunTimeout time.Duration
	Logger     zerolog.Logger
}

// RunReport describes the current or most recent run.
type RunReport struct {
	JobID      string           `json:"job_id"`
	URL        string           `json:"url"`
	Running    bool             `json:"running"`
	StartedAt  time.Time        `json:"started_at"`
	FinishedAt *time.Time       `json:"finished_at,omitempty"`
	Summary    *session.Summary `json:"summary,omitempty"`
	Error      string           `json:"error,omitempty"`
}

type quizRequest struct {
	URL    string `json:"url"`
	Secret string `json:"secret"`
}

type errorBody struct {
	Detail string `json:"detail"`
}

// Server accepts quiz requests over HTTP and runs one quiz chain at a time
// in the background.
type Server struct {
	opts      Options
	runner    QuizRunner
	server    *http.Server
	listener  net.Listener
	startTime time.Time
	logger    zerolog.Logger

	// runCtx is the parent of every background run; Stop cancels it.
	runCtx    context.Context
	cancelRun context.CancelFunc
	runs      sync.WaitGroup

	mu     sync.RWMutex
	report *RunReport
}

// New creates a server. The runner and secret are required.
func New(opts Options, runner QuizRunner) (*Server, error) {
	if runner == nil {
		return nil, errors.New("server: quiz runner is required")
	}
	if opts.Secret == "" {
		return nil, errors.New("server: secret is required")
	}
	if opts.Host == "" {
		opts.Host = defaultHost
	}
	if opts.Port == 0 {
		opts.Port = defaultPort
	}
	if opts.Version == "" {
		opts.Version = defaultVersion
	}
	observability.EnsureRegistered()

	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		opts:      opts,
		runner:    runner,
		startTime: time.Now(),
		logger:    opts.Logger.With().Str("component", "server").Logger(),
		runCtx:    ctx,
		cancelRun: cancel,
	}, nil
}

// Router returns the HTTP handler.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.requestLogger)
	r.Use(cors)

	r.Get("/healthz", s.handleHealth)
	r.Post("/quiz", s.handleQuiz)
	r.Post("/solve", s.handleQuiz)
	r.Get("/summary", s.handleSummary)
	r.Method(http.MethodGet, "/metrics", observability.MetricsHandler())
	return r
}

// Start binds the listener and serves in the background.
func (s *Server) Start() error {
	addr := net.JoinHostPort(s.opts.Host, fmt.Sprint(s.opts.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	s.listener = ln
	s.server = &http.Server{
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.logger.Info().Str("addr", ln.Addr().String()).Msg("Starting quiz server")
	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error().Err(err).Msg("Quiz server error")
		}
	}()
	return nil
}

// Addr returns the bound address once started.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Stop shuts the HTTP server down, cancels any running quiz and waits for it
// to return or ctx to end.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info().Msg("Shutting down quiz server")

	var err error
	if s.server != nil {
		if shutdownErr := s.server.Shutdown(ctx); shutdownErr != nil {
			err = fmt.Errorf("failed to shutdown server: %w", shutdownErr)
		}
	}
	s.cancelRun()

	done := make(chan struct{})
	go func() {
		s.runs.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		s.logger.Warn().Msg("Shutdown timeout reached with a run still active")
		if err == nil {
			err = ctx.Err()
		}
	}

	s.logger.Info().Msg("Quiz server stopped")
	return err
}

// Report returns a copy of the current or last run report, or nil.
func (s *Server) Report() *RunReport {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.report == nil {
		return nil
	}
	r := *s.report
	return &r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":         "ok",
		"uptime_seconds": int(time.Since(s.startTime).Seconds()),
		"email":          s.opts.Email,
		"version":        s.opts.Version,
		"running":        s.running(),
	})
}

func (s *Server) handleQuiz(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Detail: "Invalid JSON"})
		return
	}

	var req quizRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Detail: "Invalid JSON"})
		return
	}
	if req.URL == "" || req.Secret == "" {
		writeJSON(w, http.StatusBadRequest, errorBody{Detail: "Missing 'url' or 'secret'"})
		return
	}
	if subtle.ConstantTimeCompare([]byte(req.Secret), []byte(s.opts.Secret)) != 1 {
		s.logger.Warn().Str("remote", r.RemoteAddr).Msg("Rejected quiz with invalid secret")
		writeJSON(w, http.StatusForbidden, errorBody{Detail: "Invalid secret"})
		return
	}

	jobID, err := s.startRun(req.URL)
	if err != nil {
		writeJSON(w, http.StatusConflict, errorBody{Detail: err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "accepted",
		"message": "Quiz solving started",
		"job_id":  jobID,
	})
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	report := s.Report()
	if report == nil {
		writeJSON(w, http.StatusNotFound, errorBody{Detail: "No quiz has been run"})
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) running() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.report != nil && s.report.Running
}

// startRun launches a background run unless one is active.
func (s *Server) startRun(url string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.report != nil && s.report.Running {
		return "", fmt.Errorf("quiz %s is already running", s.report.JobID)
	}
	if s.runCtx.Err() != nil {
		return "", errors.New("server is shutting down")
	}

	jobID, err := gonanoid.New()
	if err != nil {
		return "", fmt.Errorf("generate job id: %w", err)
	}

	s.report = &RunReport{JobID: jobID, URL: url, Running: true, StartedAt: time.Now()}
	s.runs.Add(1)
	go s.run(jobID, url)

	s.logger.Info().Str("job_id", jobID).Str("url", url).Msg("Accepted quiz")
	return jobID, nil
}

func (s *Server) run(jobID, url string) {
	defer s.runs.Done()

	ctx := tracing.WithJobID(s.runCtx, jobID)
	if s.opts.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.RunTimeout)
		defer cancel()
	}
	logger := tracing.LoggerFromContext(ctx, s.logger)

	summary, err := s.safeRun(ctx, url)

	finished := time.Now()
	s.mu.Lock()
	if s.report != nil && s.report.JobID == jobID {
		s.report.Running = false
		s.report.FinishedAt = &finished
		s.report.Summary = &summary
		if err != nil {
			s.report.Error = err.Error()
		}
	}
	s.mu.Unlock()

	if err != nil {
		logger.Error().Err(err).Str("url", url).Msg("Quiz run failed")
		return
	}
	logger.Info().
		Int("correct", summary.Correct).
		Int("wrong", summary.Wrong).
		Msg("Quiz run finished")
}

func (s *Server) safeRun(ctx context.Context, url string) (summary session.Summary, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("quiz run panicked: %v", p)
		}
	}()
	return s.runner.Run(ctx, url)
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		if r.URL.Path == "/metrics" || r.URL.Path == "/healthz" {
			return
		}
		s.logger.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("duration", time.Since(start)).
			Msg("HTTP request")
	})
}

func cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, value any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(value)
}
