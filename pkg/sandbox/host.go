package sandbox

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// waitDelay bounds how long Execute waits for grandchildren holding the
// output pipes after the direct child was killed.
const waitDelay = 2 * time.Second

const fallbackPath = "/usr/local/bin:/usr/bin:/bin"

// HostSandbox runs commands directly on the host, confined to allowed
// directories, with a minimal environment and a hard timeout.
type HostSandbox struct {
	config  Config
	workDir string
	running bool
	mu      sync.RWMutex
}

// NewHostSandbox creates a new host-based sandbox
func NewHostSandbox(config Config) (*HostSandbox, error) {
	if err := ValidateConfig(config); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if config.Timeout == 0 {
		config.Timeout = DefaultTimeout
	}

	workDir, err := filepath.Abs(config.WorkDir)
	if err != nil {
		return nil, fmt.Errorf("resolve work dir: %w", err)
	}

	return &HostSandbox{config: config, workDir: workDir}, nil
}

// Start creates the working directory and marks the sandbox running.
func (h *HostSandbox) Start(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.running {
		return ErrSandboxAlreadyRunning
	}
	if err := os.MkdirAll(h.workDir, 0o755); err != nil {
		return fmt.Errorf("create work dir: %w", err)
	}

	log.Info().Str("work_dir", h.workDir).Dur("timeout", h.config.Timeout).Msg("Starting host sandbox")
	h.running = true
	return nil
}

// Stop marks the sandbox stopped. Files in the working directory are kept.
func (h *HostSandbox) Stop(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.running {
		return ErrSandboxNotRunning
	}

	log.Info().Msg("Stopping host sandbox")
	h.running = false
	return nil
}

// IsRunning returns whether the sandbox is running
func (h *HostSandbox) IsRunning() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.running
}

// GetConfig returns the sandbox configuration
func (h *HostSandbox) GetConfig() Config {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.config
}

// WorkDir returns the absolute working directory.
func (h *HostSandbox) WorkDir() string {
	return h.workDir
}

// Execute runs a command in the sandbox. A command killed at the deadline
// returns its partial output with ExitCode -1, TimedOut set, and
// ErrExecutionTimeout. A non-zero exit is not an error.
func (h *HostSandbox) Execute(ctx context.Context, req ExecuteRequest) (ExecuteResult, error) {
	h.mu.RLock()
	running := h.running
	cfg := h.config
	h.mu.RUnlock()
	if !running {
		return ExecuteResult{}, ErrSandboxNotRunning
	}
	if req.Command == "" {
		return ExecuteResult{}, ErrEmptyCommand
	}

	dir := req.WorkingDir
	if dir == "" {
		dir = h.workDir
	}
	if err := h.checkFilesystemAccess(dir); err != nil {
		return ExecuteResult{}, err
	}

	timeout := req.Timeout
	if timeout <= 0 {
		timeout = cfg.Timeout
	}
	execCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(execCtx, req.Command, req.Args...)
	cmd.Dir = dir
	cmd.Env = h.buildEnvironment(req.Env)
	cmd.WaitDelay = waitDelay

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if len(req.Stdin) > 0 {
		cmd.Stdin = bytes.NewReader(req.Stdin)
	}

	start := time.Now()
	err := cmd.Run()
	duration := time.Since(start)

	result := ExecuteResult{Duration: duration}
	result.Stdout, result.Truncated = limit(stdout.Bytes(), cfg.OutputLimit)
	var truncErr bool
	result.Stderr, truncErr = limit(stderr.Bytes(), cfg.OutputLimit)
	result.Truncated = result.Truncated || truncErr

	if errors.Is(execCtx.Err(), context.DeadlineExceeded) {
		result.ExitCode = -1
		result.TimedOut = true
		log.Warn().Str("command", req.Command).Dur("timeout", timeout).Msg("Command timed out in sandbox")
		return result, ErrExecutionTimeout
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		result.ExitCode = -1
		return result, ctxErr
	}

	if err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			return result, fmt.Errorf("run %s: %w", req.Command, err)
		}
		result.ExitCode = exitErr.ExitCode()
	}

	log.Debug().
		Str("command", req.Command).
		Strs("args", req.Args).
		Int("exit_code", result.ExitCode).
		Dur("duration", duration).
		Msg("Command executed in sandbox")

	return result, nil
}

// checkFilesystemAccess allows the work dir and AllowedPaths and their
// subdirectories, unless the path falls under a denied path.
func (h *HostSandbox) checkFilesystemAccess(path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrFilesystemAccessDenied, path)
	}

	for _, denied := range h.config.DeniedPaths {
		if within(abs, denied) {
			return fmt.Errorf("%w: %s", ErrFilesystemAccessDenied, path)
		}
	}

	if within(abs, h.workDir) {
		return nil
	}
	for _, allowed := range h.config.AllowedPaths {
		if within(abs, allowed) {
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrFilesystemAccessDenied, path)
}

func within(path, root string) bool {
	root, err := filepath.Abs(root)
	if err != nil {
		return false
	}
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}

// buildEnvironment copies PassEnv variables from the host and adds env.
func (h *HostSandbox) buildEnvironment(env map[string]string) []string {
	var result []string
	hasPath := false
	for _, name := range h.config.PassEnv {
		if v, ok := os.LookupEnv(name); ok {
			result = append(result, name+"="+v)
			if name == "PATH" {
				hasPath = true
			}
		}
	}
	if !hasPath {
		result = append(result, "PATH="+fallbackPath)
	}

	for key, value := range env {
		result = append(result, key+"="+value)
	}
	return result
}

func limit(b []byte, n int) ([]byte, bool) {
	if n <= 0 || len(b) <= n {
		return b, false
	}
	return b[:n], true
}
