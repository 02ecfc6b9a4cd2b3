package sandbox

import (
	"context"
	"encoding/json"
	"path"
	"runtime"
	"strconv"
)

func resolvePython(settings *execSettings) string {
	if settings.engine.PythonPath != "" {
		return settings.engine.PythonPath
	}
	return "python3"
}

// pyProcessEngine runs Python with a host interpreter. When a memory or
// process-count ceiling is configured on a unix-like host, the prepared
// command targets the resource-limiting helper instead of the interpreter
// directly; the helper applies the rlimits to itself and execs the real
// command line so the ceilings bind transitively. On Windows, limits are a
// documented no-op and the interpreter is invoked directly.
type pyProcessEngine struct{}

func (pyProcessEngine) prepare(_ context.Context, env *Environment, command string, args []string, settings *execSettings) (*PreparedCommand, error) {
	if command == "" {
		return nil, configErrorf("command", "process backend requires a script path")
	}
	interpreter := resolvePython(settings)

	wantLimits := settings.memoryMB > 0 || settings.processLimit > 0
	if !wantLimits || runtime.GOOS == "windows" {
		return &PreparedCommand{
			Mode: ExplicitCommand,
			Path: interpreter,
			Args: append([]string{command}, args...),
			Env:  settings.env,
			Dir:  env.workspace,
		}, nil
	}

	limiter, err := stageLimiter(env)
	if err != nil {
		return nil, err
	}

	argv := append([]string{interpreter, command}, args...)
	encoded, err := json.Marshal(argv)
	if err != nil {
		return nil, configErrorf("command", "encoding command line: %v", err)
	}

	limiterEnv := make(map[string]string, len(settings.env)+3)
	for k, v := range settings.env {
		limiterEnv[k] = v
	}
	limiterEnv[limiterExecArgsVar] = string(encoded)
	if settings.memoryMB > 0 {
		limiterEnv[limiterMemoryVar] = strconv.FormatInt(settings.memoryMB, 10)
	}
	if settings.processLimit > 0 {
		limiterEnv[limiterProcessVar] = strconv.FormatInt(settings.processLimit, 10)
	}

	return &PreparedCommand{
		Mode: ExplicitCommand,
		Path: interpreter,
		Args: []string{limiter},
		Env:  limiterEnv,
		Dir:  env.workspace,
	}, nil
}

// pyContainerEngine resolves the interpreter the same way but never uses the
// limiter: the container's cgroup-level memory and pid controls substitute
// for process-level rlimits.
type pyContainerEngine struct{}

func (pyContainerEngine) prepare(_ context.Context, _ *Environment, command string, args []string, settings *execSettings) (*PreparedCommand, error) {
	if command == "" {
		return &PreparedCommand{
			Mode: ImageDefaultCommand,
			Args: args,
			Env:  settings.env,
			Dir:  containerWorkdir,
		}, nil
	}
	return &PreparedCommand{
		Mode: ExplicitCommand,
		Path: resolvePython(settings),
		Args: append([]string{path.Join(containerWorkdir, path.Clean(command))}, args...),
		Env:  settings.env,
		Dir:  containerWorkdir,
	}, nil
}
