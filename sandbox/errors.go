package sandbox

import (
	"errors"
	"fmt"
	"time"
)

// ConfigurationError reports invalid input detected before any process or
// container exists: bad file paths, missing required configuration,
// non-positive limits, an unsupported language/backend combination, or a
// missing command.
type ConfigurationError struct {
	Field string
	Err   error
}

func (e *ConfigurationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("configuration: %s: %s", e.Field, e.Err)
	}
	return fmt.Sprintf("configuration: %s", e.Err)
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

func configErrorf(field, format string, args ...any) *ConfigurationError {
	return &ConfigurationError{Field: field, Err: fmt.Errorf(format, args...)}
}

// CompilationError reports a failed host-side compile stage. It carries the
// compiler's captured output; execution was never attempted.
type CompilationError struct {
	Cmd    []string
	Stdout string
	Stderr string
	Err    error
}

func (e *CompilationError) Error() string {
	return fmt.Sprintf("compilation failed: %s", e.Err)
}

func (e *CompilationError) Unwrap() error { return e.Err }

// TimeoutError reports that an execution exceeded its wall-clock budget. It
// carries the configured and actual durations plus whatever output had been
// captured before termination.
type TimeoutError struct {
	Configured time.Duration
	Elapsed    time.Duration
	Stdout     string
	Stderr     string
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("execution timed out after %s (limit %s)", e.Elapsed, e.Configured)
}

// RuntimeError reports an infrastructure failure: spawn failure, image pull
// failure, container creation/attach failure, or daemon communication
// failure. It carries the attempted command and best-effort captured output.
type RuntimeError struct {
	Op     string
	Cmd    []string
	Stdout string
	Stderr string
	Err    error
}

func (e *RuntimeError) Error() string {
	if e.Op != "" {
		return fmt.Sprintf("runtime: %s: %s", e.Op, e.Err)
	}
	return fmt.Sprintf("runtime: %s", e.Err)
}

func (e *RuntimeError) Unwrap() error { return e.Err }

// MemoryLimitError reports a distinctly detected memory-ceiling violation.
// Only the container backend synthesizes it, from the daemon's OOM-killed
// flag; the process backend surfaces the raw exit code or signal instead,
// since RLIMIT_AS violations are not reliably distinguishable from ordinary
// crashes.
type MemoryLimitError struct {
	LimitMB int64
	Stdout  string
	Stderr  string
}

func (e *MemoryLimitError) Error() string {
	return fmt.Sprintf("memory limit exceeded (%d MB)", e.LimitMB)
}

// IsTimeout reports whether err is (or wraps) a TimeoutError.
func IsTimeout(err error) bool {
	var te *TimeoutError
	return errors.As(err, &te)
}

// IsCompilation reports whether err is (or wraps) a CompilationError.
func IsCompilation(err error) bool {
	var ce *CompilationError
	return errors.As(err, &ce)
}

// IsConfiguration reports whether err is (or wraps) a ConfigurationError.
func IsConfiguration(err error) bool {
	var ce *ConfigurationError
	return errors.As(err, &ce)
}

// IsMemoryLimit reports whether err is (or wraps) a MemoryLimitError.
func IsMemoryLimit(err error) bool {
	var me *MemoryLimitError
	return errors.As(err, &me)
}
