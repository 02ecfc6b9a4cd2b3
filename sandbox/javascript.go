package sandbox

import (
	"context"
	"fmt"
	"path"
)

// containerWorkdir is the fixed in-container mount point for the workspace.
const containerWorkdir = "/workspace"

// nodeMemoryArgs sizes the V8 old-space heap to the configured ceiling.
// Grown past this the process aborts with a heap allocation failure.
func nodeMemoryArgs(memoryMB int64) []string {
	if memoryMB <= 0 {
		return nil
	}
	return []string{fmt.Sprintf("--max-old-space-size=%d", memoryMB)}
}

func resolveNode(settings *execSettings) string {
	if settings.engine.NodePath != "" {
		return settings.engine.NodePath
	}
	return "node"
}

// jsProcessEngine runs JavaScript with a host Node.js interpreter.
type jsProcessEngine struct{}

func (jsProcessEngine) prepare(_ context.Context, env *Environment, command string, args []string, settings *execSettings) (*PreparedCommand, error) {
	if command == "" {
		return nil, configErrorf("command", "process backend requires a script path")
	}
	nodeArgs := nodeMemoryArgs(settings.memoryMB)
	nodeArgs = append(nodeArgs, command)
	nodeArgs = append(nodeArgs, args...)
	return &PreparedCommand{
		Mode: ExplicitCommand,
		Path: resolveNode(settings),
		Args: nodeArgs,
		Env:  settings.env,
		Dir:  env.workspace,
	}, nil
}

// jsContainerEngine shapes the same command line as the process variant but
// resolves the script against the in-container filesystem. An empty command
// falls back to the image's built-in entrypoint.
type jsContainerEngine struct{}

func (jsContainerEngine) prepare(_ context.Context, _ *Environment, command string, args []string, settings *execSettings) (*PreparedCommand, error) {
	if command == "" {
		return &PreparedCommand{
			Mode: ImageDefaultCommand,
			Args: args,
			Env:  settings.env,
			Dir:  containerWorkdir,
		}, nil
	}
	nodeArgs := nodeMemoryArgs(settings.memoryMB)
	nodeArgs = append(nodeArgs, path.Join(containerWorkdir, path.Clean(command)))
	nodeArgs = append(nodeArgs, args...)
	return &PreparedCommand{
		Mode: ExplicitCommand,
		Path: resolveNode(settings),
		Args: nodeArgs,
		Env:  settings.env,
		Dir:  containerWorkdir,
	}, nil
}
