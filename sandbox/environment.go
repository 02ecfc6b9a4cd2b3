package sandbox

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/codes"

	"stonebox/monitor"
)

// Environment is an isolated, disposable execution context. It exclusively
// owns a host scratch directory that staged files are written into and that
// executions run against. Environments are not safe for concurrent Execute
// calls on the same instance; concurrent executions belong in separate
// Environments.
type Environment struct {
	id        string
	workspace string
	cfg       Config
	logger    zerolog.Logger
	deleted   bool
}

// NewEnvironment validates cfg and allocates a uniquely named workspace
// under the host's symlink-resolved temp root. The resolved root avoids
// bind-mount path ambiguity when the workspace is later mounted into a
// container.
func NewEnvironment(cfg Config) (*Environment, error) {
	if _, err := engineFor(cfg.Language, cfg.Backend); err != nil {
		return nil, err
	}
	if cfg.Timeout < 0 {
		return nil, configErrorf("timeout", "must be positive, got %s", cfg.Timeout)
	}
	if cfg.MemoryMB < 0 {
		return nil, configErrorf("memory_mb", "must be positive, got %d", cfg.MemoryMB)
	}
	if cfg.ProcessLimit < 0 {
		return nil, configErrorf("process_limit", "must be positive, got %d", cfg.ProcessLimit)
	}
	if cfg.Backend == BackendContainer {
		if cfg.Policy == nil || cfg.Policy.Image == "" {
			return nil, configErrorf("policy.image", "container backend requires an image")
		}
		if err := cfg.Policy.validate(); err != nil {
			return nil, err
		}
	}

	root, err := filepath.EvalSymlinks(os.TempDir())
	if err != nil {
		return nil, fmt.Errorf("resolving temp root: %w", err)
	}

	id := uuid.NewString()
	workspace := filepath.Join(root, "stonebox-"+id)
	if err := os.Mkdir(workspace, 0o755); err != nil {
		return nil, fmt.Errorf("creating workspace: %w", err)
	}

	logger := log.With().
		Str("env_id", id).
		Str("language", string(cfg.Language)).
		Str("backend", string(cfg.Backend)).
		Logger()
	logger.Debug().Str("workspace", workspace).Msg("environment created")

	return &Environment{
		id:        id,
		workspace: workspace,
		cfg:       cfg,
		logger:    logger,
	}, nil
}

// ID returns the environment's unique identity.
func (e *Environment) ID() string { return e.id }

// Workspace returns the host scratch directory owned by this environment.
func (e *Environment) Workspace() string { return e.workspace }

// AddFile stages content at the given workspace-relative path. Parent
// directories are created as needed. The file is written with execute bits
// set so staged scripts can be invoked directly. Absolute paths and paths
// escaping the workspace are rejected with ConfigurationError before
// anything is written.
func (e *Environment) AddFile(relPath string, content []byte) error {
	clean, err := normalizeRelPath(relPath)
	if err != nil {
		return err
	}

	dst := filepath.Join(e.workspace, clean)
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("creating parent directories: %w", err)
	}
	if err := os.WriteFile(dst, content, 0o755); err != nil { // #nosec G306 -- staged scripts must be executable
		return fmt.Errorf("writing %s: %w", clean, err)
	}
	return nil
}

// normalizeRelPath cleans a staged path and rejects anything absolute or
// traversing above the workspace.
func normalizeRelPath(p string) (string, error) {
	if p == "" {
		return "", configErrorf("path", "empty path")
	}
	if filepath.IsAbs(p) || strings.HasPrefix(filepath.ToSlash(p), "/") {
		return "", configErrorf("path", "absolute path not allowed: %s", p)
	}
	clean := filepath.Clean(filepath.FromSlash(p))
	if clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", configErrorf("path", "path escapes workspace: %s", p)
	}
	if clean == "." {
		return "", configErrorf("path", "path resolves to workspace root: %s", p)
	}
	return clean, nil
}

// Execute runs command with args in this environment. Per-call opts override
// the environment defaults; timeout, memory ceiling and environment
// variables are each independently overridable. Compilation, when the
// language requires it, always completes before any run attempt, and a
// failed compile is returned unchanged as *CompilationError without
// starting an executor.
func (e *Environment) Execute(ctx context.Context, command string, args []string, opts *ExecOptions) (*Result, error) {
	if e.deleted {
		return nil, configErrorf("environment", "environment has been deleted")
	}

	ctx, span := monitor.StartSpan(ctx, "sandbox.execute",
		monitor.AttrEnvironmentID.String(e.id),
		monitor.AttrLanguage.String(string(e.cfg.Language)),
		monitor.AttrBackend.String(string(e.cfg.Backend)),
	)
	defer span.End()

	monitor.Default().ActiveExecutions.Inc()
	defer monitor.Default().ActiveExecutions.Dec()

	settings := e.cfg.merge(opts)
	start := time.Now()

	eng, err := engineFor(e.cfg.Language, e.cfg.Backend)
	if err != nil {
		return nil, err
	}

	prepared, err := eng.prepare(ctx, e, command, args, &settings)
	if err != nil {
		var ce *CompilationError
		if errors.As(err, &ce) {
			e.logger.Warn().Err(err).Msg("compilation failed")
			monitor.Default().ObserveExecution(string(e.cfg.Language), "compile_error", time.Since(start))
			span.SetStatus(codes.Error, "compilation failed")
			return nil, err
		}
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	var result *Result
	switch e.cfg.Backend {
	case BackendProcess:
		result, err = runProcess(ctx, prepared, &settings)
	case BackendContainer:
		result, err = runContainer(ctx, e, prepared, &settings)
	default:
		return nil, configErrorf("backend", "unsupported backend: %s", e.cfg.Backend)
	}

	elapsed := time.Since(start)
	switch {
	case err == nil:
		e.logger.Info().
			Int("exit_code", derefExit(result.ExitCode)).
			Dur("duration", elapsed).
			Msg("execution completed")
		span.SetAttributes(monitor.AttrExitCode.Int(derefExit(result.ExitCode)))
		monitor.Default().ObserveExecution(string(e.cfg.Language), "ok", elapsed)
	case IsTimeout(err):
		e.logger.Warn().Dur("duration", elapsed).Msg("execution timed out")
		monitor.Default().ObserveExecution(string(e.cfg.Language), "timeout", elapsed)
		span.SetStatus(codes.Error, "timeout")
	default:
		e.logger.Error().Err(err).Msg("execution failed")
		monitor.Default().ObserveExecution(string(e.cfg.Language), "error", elapsed)
		span.SetStatus(codes.Error, err.Error())
	}
	return result, err
}

// Delete recursively and forcibly removes the workspace. Safe to call more
// than once; removal failures are logged, never returned — cleanup must not
// mask a primary result.
func (e *Environment) Delete() {
	e.deleted = true
	if err := os.RemoveAll(e.workspace); err != nil {
		e.logger.Error().Err(err).Str("workspace", e.workspace).Msg("workspace removal failed")
		return
	}
	e.logger.Debug().Msg("environment deleted")
}

func derefExit(code *int) int {
	if code == nil {
		return -1
	}
	return *code
}
