package sandbox

import (
	"os"
	"time"
)

// Language identifies a supported source language.
type Language string

const (
	LangJavaScript Language = "javascript"
	LangTypeScript Language = "typescript"
	LangPython     Language = "python"
)

// Backend identifies where prepared commands run.
type Backend string

const (
	BackendProcess   Backend = "process"
	BackendContainer Backend = "container"
)

// EngineOptions holds per-language toolchain overrides. Empty fields fall
// back to the host defaults ("node", "python3", "tsc").
type EngineOptions struct {
	NodePath   string `yaml:"node_path"`
	PythonPath string `yaml:"python_path"`
	TscPath    string `yaml:"tsc_path"`
}

// Config describes an execution environment. Language and Backend are
// required; the rest defaults to unlimited/empty.
type Config struct {
	Language Language
	Backend  Backend

	// Timeout is the default wall-clock budget per Execute call. Zero means
	// no limit.
	Timeout time.Duration

	// MemoryMB is the default memory ceiling. Zero means unlimited. On the
	// process backend it maps to an interpreter heap flag (JavaScript) or an
	// RLIMIT_AS ceiling applied by the limiter helper (Python, unix only);
	// on the container backend it maps to the container memory limit.
	MemoryMB int64

	// ProcessLimit caps the number of processes the executed code may hold.
	// Only honored by the Python process engine on unix hosts and by the
	// container pids limit.
	ProcessLimit int64

	// Env is merged over the sanitized host allowlist and forwarded into
	// every spawned process or container.
	Env map[string]string

	Engine EngineOptions

	// Policy configures container isolation. Required (with a non-empty
	// Image) when Backend is BackendContainer, ignored otherwise.
	Policy *SecurityPolicy
}

// ExecOptions overrides environment defaults for a single Execute call.
// Timeout, MemoryMB and Env are each independently overridable; the zero
// value of a field means "inherit".
type ExecOptions struct {
	Timeout  time.Duration
	MemoryMB *int64
	Env      map[string]string

	// Stdin is written to the child once and the stream is closed. There is
	// no interactive input.
	Stdin string

	// Engine overrides the environment's toolchain paths for this call.
	Engine *EngineOptions

	// Preserve keeps the container around after a run for diagnosis instead
	// of force-removing it. Container backend only.
	Preserve bool
}

// Result is the outcome of a completed execution. A graceful exit sets
// ExitCode and leaves Signal empty; a forced termination sets Signal and may
// leave ExitCode nil.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode *int
	Signal   string
	Duration time.Duration
}

// execSettings is the merged, fully resolved view of Config + ExecOptions
// consumed by engines and executors during one Execute call.
type execSettings struct {
	timeout      time.Duration
	memoryMB     int64
	processLimit int64
	env          map[string]string
	stdin        string
	engine       EngineOptions
	preserve     bool
	uid          *int64
	gid          *int64
}

func (c *Config) merge(opts *ExecOptions) execSettings {
	s := execSettings{
		timeout:      c.Timeout,
		memoryMB:     c.MemoryMB,
		processLimit: c.ProcessLimit,
		engine:       c.Engine,
		env:          sanitizedEnv(c.Env),
	}
	if c.Policy != nil {
		s.uid = c.Policy.UID
		s.gid = c.Policy.GID
	}
	if opts == nil {
		return s
	}
	if opts.Timeout > 0 {
		s.timeout = opts.Timeout
	}
	if opts.MemoryMB != nil {
		s.memoryMB = *opts.MemoryMB
	}
	for k, v := range opts.Env {
		s.env[k] = v
	}
	if opts.Engine != nil {
		if opts.Engine.NodePath != "" {
			s.engine.NodePath = opts.Engine.NodePath
		}
		if opts.Engine.PythonPath != "" {
			s.engine.PythonPath = opts.Engine.PythonPath
		}
		if opts.Engine.TscPath != "" {
			s.engine.TscPath = opts.Engine.TscPath
		}
	}
	s.stdin = opts.Stdin
	s.preserve = opts.Preserve
	return s
}

// hostEnvAllowlist names the only host variables forwarded into spawned
// processes and containers. Everything else in the host environment stays
// on the host.
var hostEnvAllowlist = []string{
	"PATH", "HOME", "USER",
	"LANG", "LC_ALL",
	"TMPDIR", "TEMP", "TMP",
}

// sanitizedEnv builds the effective environment map: the host allowlist
// first, then caller-supplied overrides on top.
func sanitizedEnv(overrides map[string]string) map[string]string {
	env := make(map[string]string, len(hostEnvAllowlist)+len(overrides))
	for _, key := range hostEnvAllowlist {
		if v, ok := os.LookupEnv(key); ok {
			env[key] = v
		}
	}
	for k, v := range overrides {
		env[k] = v
	}
	return env
}

// flattenEnv serializes an environment map as KEY=VALUE entries.
func flattenEnv(env map[string]string) []string {
	out := make([]string, 0, len(env))
	for k, v := range env {
		out = append(out, k+"="+v)
	}
	return out
}
