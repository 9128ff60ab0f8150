package sandbox

import (
	"context"
	"time"
)

// DefaultTimeout bounds a single execution when neither the request nor the
// config sets one.
const DefaultTimeout = 90 * time.Second

// Config defines sandbox configuration
type Config struct {
	// WorkDir is the default working directory and is always allowed.
	WorkDir string `json:"work_dir"`

	// Timeout limits execution time
	Timeout time.Duration `json:"timeout"`

	// AllowedPaths lists extra directories commands may run in.
	AllowedPaths []string `json:"allowed_paths"`

	// DeniedPaths lists directories commands may never run in.
	DeniedPaths []string `json:"denied_paths"`

	// PassEnv names host environment variables copied into the child.
	PassEnv []string `json:"pass_env"`

	// OutputLimit caps captured stdout and stderr, in bytes. Zero is unlimited.
	OutputLimit int `json:"output_limit"`
}

// ExecuteRequest represents a sandbox execution request
type ExecuteRequest struct {
	Command    string            `json:"command"`
	Args       []string          `json:"args"`
	Env        map[string]string `json:"env"`
	WorkingDir string            `json:"working_dir"`
	Stdin      []byte            `json:"stdin"`
	Timeout    time.Duration     `json:"timeout"`
}

// ExecuteResult represents a sandbox execution result
type ExecuteResult struct {
	Stdout   []byte        `json:"stdout"`
	Stderr   []byte        `json:"stderr"`
	ExitCode int           `json:"exit_code"`
	Duration time.Duration `json:"duration"`
	// TimedOut is set when the process was killed at the deadline; ExitCode
	// is -1 in that case.
	TimedOut bool `json:"timed_out"`
	// Truncated is set when output exceeded OutputLimit.
	Truncated bool `json:"truncated"`
}

// Sandbox defines the interface for sandboxed execution
type Sandbox interface {
	Execute(ctx context.Context, req ExecuteRequest) (ExecuteResult, error)
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	IsRunning() bool
	GetConfig() Config
}

// DefaultConfig returns a default sandbox configuration
func DefaultConfig() Config {
	return Config{
		WorkDir:     "hybrid_llm_files",
		Timeout:     DefaultTimeout,
		DeniedPaths: []string{"/etc", "/sys", "/proc"},
		PassEnv:     []string{"PATH", "HOME", "LANG", "UV_CACHE_DIR", "UV_PYTHON", "VIRTUAL_ENV"},
		OutputLimit: 1 << 20,
	}
}

// ValidateConfig validates a sandbox configuration
func ValidateConfig(cfg Config) error {
	if cfg.WorkDir == "" {
		return ErrWorkDirRequired
	}
	if cfg.Timeout < 0 {
		return ErrInvalidTimeout
	}
	if cfg.OutputLimit < 0 {
		return ErrInvalidOutputLimit
	}
	return nil
}
