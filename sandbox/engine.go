package sandbox

import "context"

// CommandMode says how an executor should interpret a PreparedCommand.
type CommandMode int

const (
	// ExplicitCommand runs Path with Args.
	ExplicitCommand CommandMode = iota

	// ImageDefaultCommand runs the container image's built-in entrypoint
	// with Args appended. Path is empty. Container backend only.
	ImageDefaultCommand
)

// PreparedCommand is a fully resolved command: executable, arguments,
// environment map and working directory. It is produced once per Execute
// call by exactly one engine and consumed once by exactly one executor.
type PreparedCommand struct {
	Mode CommandMode
	Path string
	Args []string
	Env  map[string]string
	Dir  string
}

// argv returns the full command line including the executable, for error
// reporting.
func (p *PreparedCommand) argv() []string {
	if p.Mode == ImageDefaultCommand {
		return p.Args
	}
	return append([]string{p.Path}, p.Args...)
}

// engine turns a (command, args, settings) request into a PreparedCommand,
// performing host-side compilation when the language requires it. A compile
// failure is returned as a *CompilationError and no executor ever runs.
type engine interface {
	prepare(ctx context.Context, env *Environment, command string, args []string, settings *execSettings) (*PreparedCommand, error)
}

// engineFor selects the engine for a (language, backend) pair. The set is
// closed: three languages times two backends.
func engineFor(language Language, backend Backend) (engine, error) {
	switch language {
	case LangJavaScript:
		switch backend {
		case BackendProcess:
			return jsProcessEngine{}, nil
		case BackendContainer:
			return jsContainerEngine{}, nil
		}
	case LangTypeScript:
		switch backend {
		case BackendProcess:
			return tsEngine{delegate: jsProcessEngine{}}, nil
		case BackendContainer:
			return tsEngine{delegate: jsContainerEngine{}}, nil
		}
	case LangPython:
		switch backend {
		case BackendProcess:
			return pyProcessEngine{}, nil
		case BackendContainer:
			return pyContainerEngine{}, nil
		}
	}
	return nil, configErrorf("language", "unsupported language/backend combination: %s/%s", language, backend)
}
