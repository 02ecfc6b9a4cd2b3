package sandbox

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path"
	"path/filepath"
	"strings"

	"github.com/tidwall/jsonc"
)

const tsconfigName = "tsconfig.json"

// defaultTsconfig is synthesized into workspaces that stage no compiler
// configuration of their own: fixed target and module, a dedicated output
// subdirectory, and the workspace itself as root.
const defaultTsconfig = `{
  "compilerOptions": {
    "target": "ES2020",
    "module": "commonjs",
    "rootDir": ".",
    "outDir": "./.stonebox/build"
  }
}
`

// tsEngine compiles TypeScript on the host — even when the run target is a
// container — then delegates the emitted JavaScript to the matching
// JavaScript engine.
type tsEngine struct {
	delegate engine
}

func (t tsEngine) prepare(ctx context.Context, env *Environment, command string, args []string, settings *execSettings) (*PreparedCommand, error) {
	if command == "" {
		return nil, configErrorf("command", "typescript requires a source file to compile")
	}

	outDir, err := ensureTsconfig(env.workspace)
	if err != nil {
		return nil, err
	}

	if err := compileTypeScript(ctx, env.workspace, settings); err != nil {
		return nil, err
	}

	emitted := emittedScriptPath(outDir, command)
	return t.delegate.prepare(ctx, env, emitted, args, settings)
}

// ensureTsconfig writes the default compiler configuration when the
// workspace has none and returns the configured output directory,
// workspace-relative.
func ensureTsconfig(workspace string) (string, error) {
	cfgPath := filepath.Join(workspace, tsconfigName)
	data, err := os.ReadFile(cfgPath) // #nosec G304 -- path is inside the owned workspace
	if os.IsNotExist(err) {
		if werr := os.WriteFile(cfgPath, []byte(defaultTsconfig), 0o644); werr != nil {
			return "", fmt.Errorf("writing default tsconfig: %w", werr)
		}
		data = []byte(defaultTsconfig)
	} else if err != nil {
		return "", fmt.Errorf("reading tsconfig: %w", err)
	}

	// tsconfig.json is JSONC: comments and trailing commas are legal.
	var cfg struct {
		CompilerOptions struct {
			OutDir string `json:"outDir"`
		} `json:"compilerOptions"`
	}
	if err := json.Unmarshal(jsonc.ToJSON(data), &cfg); err != nil {
		return "", configErrorf(tsconfigName, "unparseable compiler configuration: %v", err)
	}
	if cfg.CompilerOptions.OutDir == "" {
		return ".", nil
	}
	return cfg.CompilerOptions.OutDir, nil
}

func resolveTsc(settings *execSettings) string {
	if settings.engine.TscPath != "" {
		return settings.engine.TscPath
	}
	return "tsc"
}

// compileTypeScript invokes the compiler against the workspace project. A
// non-zero compiler exit becomes a CompilationError carrying the captured
// diagnostics; a spawn failure (compiler missing) is a RuntimeError.
func compileTypeScript(ctx context.Context, workspace string, settings *execSettings) error {
	tsc := resolveTsc(settings)
	cmd := exec.CommandContext(ctx, tsc, "-p", ".") // #nosec G204 -- compiler path from validated configuration
	cmd.Dir = workspace
	cmd.Env = flattenEnv(settings.env)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if err == nil {
		return nil
	}
	if _, ok := err.(*exec.ExitError); ok {
		return &CompilationError{
			Cmd:    []string{tsc, "-p", "."},
			Stdout: stdout.String(),
			Stderr: stderr.String(),
			Err:    err,
		}
	}
	return &RuntimeError{
		Op:  "compile",
		Cmd: []string{tsc, "-p", "."},
		Err: err,
	}
}

// emittedScriptPath computes where the compiler placed the output for a
// given source: the .ts suffix is replaced with .js and the path is
// relocated under the output directory, mirroring the source layout.
func emittedScriptPath(outDir, source string) string {
	rel := strings.TrimSuffix(filepath.ToSlash(source), ".ts") + ".js"
	return path.Join(filepath.ToSlash(outDir), rel)
}
