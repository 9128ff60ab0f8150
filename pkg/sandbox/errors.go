package sandbox

import "errors"

var (
	// ErrWorkDirRequired is returned when the config has no working directory
	ErrWorkDirRequired = errors.New("sandbox work dir is required")

	// ErrInvalidTimeout is returned when the timeout is invalid
	ErrInvalidTimeout = errors.New("invalid timeout (must be >= 0)")

	// ErrInvalidOutputLimit is returned when the output limit is negative
	ErrInvalidOutputLimit = errors.New("invalid output limit (must be >= 0)")

	// ErrSandboxNotRunning is returned when the sandbox is not running
	ErrSandboxNotRunning = errors.New("sandbox is not running")

	// ErrSandboxAlreadyRunning is returned when the sandbox is already running
	ErrSandboxAlreadyRunning = errors.New("sandbox is already running")

	// ErrExecutionTimeout is returned when execution times out
	ErrExecutionTimeout = errors.New("execution timed out")

	// ErrFilesystemAccessDenied is returned when filesystem access is denied
	ErrFilesystemAccessDenied = errors.New("filesystem access denied")

	// ErrEmptyCommand is returned when a request names no command
	ErrEmptyCommand = errors.New("command is required")
)
