package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"stonebox/config"
	"stonebox/sandbox"
)

var (
	configPath string
	language   string
	backend    string
	timeout    time.Duration
	memoryMB   int64
	pidsLimit  int64
	image      string
	network    string
	mountMode  string
	envVars    []string
	extraFiles []string
	stdinData  string
	preserve   bool
	verbose    bool
)

// childExitCode is propagated as the CLI's own exit status once all deferred
// cleanup (workspace deletion included) has run; exiting inside runRun would
// skip the defers and leak the workspace.
var childExitCode int

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnixMs
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	root := &cobra.Command{
		Use:   "stonebox",
		Short: "Run code in a disposable, isolated execution environment",
	}
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Debug logging")

	runCmd := &cobra.Command{
		Use:   "run FILE [ARGS...]",
		Short: "Stage FILE into a fresh environment and execute it",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runRun,
	}
	runCmd.Flags().StringVar(&configPath, "config", "", "YAML config with environment defaults")
	runCmd.Flags().StringVarP(&language, "language", "l", "", "Language (auto-detected from extension)")
	runCmd.Flags().StringVar(&backend, "backend", "", "Backend: process or container")
	runCmd.Flags().DurationVar(&timeout, "timeout", 0, "Execution timeout (e.g. 10s)")
	runCmd.Flags().Int64Var(&memoryMB, "memory", 0, "Memory ceiling in MB")
	runCmd.Flags().Int64Var(&pidsLimit, "pids", 0, "Process-count ceiling")
	runCmd.Flags().StringVar(&image, "image", "", "Container image (container backend)")
	runCmd.Flags().StringVar(&network, "network", "", "Container network mode (default none)")
	runCmd.Flags().StringVar(&mountMode, "mount-mode", "", "Workspace mount mode: rw or ro")
	runCmd.Flags().StringArrayVarP(&envVars, "env", "e", nil, "Environment variable KEY=VALUE (repeatable)")
	runCmd.Flags().StringArrayVar(&extraFiles, "add", nil, "Additional file to stage (repeatable)")
	runCmd.Flags().StringVar(&stdinData, "stdin", "", "Standard input content (process backend)")
	runCmd.Flags().BoolVar(&preserve, "preserve", false, "Keep the container after the run for diagnosis")
	root.AddCommand(runCmd)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
	os.Exit(childExitCode)
}

func runRun(cmd *cobra.Command, args []string) error {
	cmd.SilenceUsage = true
	if !verbose {
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	}

	cfg, err := buildConfig(args[0])
	if err != nil {
		return err
	}

	env, err := sandbox.NewEnvironment(cfg)
	if err != nil {
		return err
	}
	defer env.Delete()

	entry := filepath.Base(args[0])
	if err := stageFile(env, args[0], entry); err != nil {
		return err
	}
	for _, extra := range extraFiles {
		if err := stageFile(env, extra, extra); err != nil {
			return err
		}
	}

	opts := &sandbox.ExecOptions{
		Stdin:    stdinData,
		Preserve: preserve,
	}
	result, err := env.Execute(context.Background(), entry, args[1:], opts)
	if err != nil {
		return reportFailure(err)
	}

	printResult(result)
	if result.ExitCode != nil {
		childExitCode = *result.ExitCode
	}
	return nil
}

func buildConfig(file string) (sandbox.Config, error) {
	base := config.DefaultConfig()
	if configPath != "" {
		loaded, err := config.Load(configPath)
		if err != nil {
			return sandbox.Config{}, err
		}
		base = loaded
	}
	cfg := base.Sandbox()

	if language == "" {
		language = detectLanguage(file)
		if language == "" {
			return sandbox.Config{}, fmt.Errorf("cannot detect language for %q, use --language", file)
		}
	}
	cfg.Language = sandbox.Language(language)

	if backend != "" {
		cfg.Backend = sandbox.Backend(backend)
	}
	if timeout > 0 {
		cfg.Timeout = timeout
	}
	if memoryMB > 0 {
		cfg.MemoryMB = memoryMB
	}
	if pidsLimit > 0 {
		cfg.ProcessLimit = pidsLimit
	}
	for _, kv := range envVars {
		k, v, ok := strings.Cut(kv, "=")
		if !ok {
			return sandbox.Config{}, fmt.Errorf("env var must be KEY=VALUE, got %q", kv)
		}
		if cfg.Env == nil {
			cfg.Env = map[string]string{}
		}
		cfg.Env[k] = v
	}

	if cfg.Backend == sandbox.BackendContainer {
		if cfg.Policy == nil {
			cfg.Policy = &sandbox.SecurityPolicy{}
		}
		if image != "" {
			cfg.Policy.Image = image
		}
		if network != "" {
			cfg.Policy.NetworkMode = network
		}
		if mountMode != "" {
			cfg.Policy.WorkspaceMount = sandbox.MountMode(mountMode)
		}
		if pidsLimit > 0 {
			cfg.Policy.PidsLimit = &pidsLimit
		}
	}
	return cfg, nil
}

func stageFile(env *sandbox.Environment, src, dst string) error {
	data, err := os.ReadFile(src) // #nosec G304 -- user-named input file
	if err != nil {
		return fmt.Errorf("reading %s: %w", src, err)
	}
	return env.AddFile(dst, data)
}

func detectLanguage(file string) string {
	switch filepath.Ext(file) {
	case ".js", ".mjs", ".cjs":
		return string(sandbox.LangJavaScript)
	case ".ts":
		return string(sandbox.LangTypeScript)
	case ".py":
		return string(sandbox.LangPython)
	}
	return ""
}

func printResult(result *sandbox.Result) {
	out := map[string]any{
		"stdout":      result.Stdout,
		"stderr":      result.Stderr,
		"duration_ms": result.Duration.Milliseconds(),
	}
	if result.ExitCode != nil {
		out["exit_code"] = *result.ExitCode
	}
	if result.Signal != "" {
		out["signal"] = result.Signal
	}
	formatted, _ := json.MarshalIndent(out, "", "  ")
	fmt.Println(string(formatted))
}

// reportFailure prints typed failures in a useful form and keeps the
// caller's error flow for cobra.
func reportFailure(err error) error {
	var ce *sandbox.CompilationError
	if errors.As(err, &ce) {
		fmt.Fprint(os.Stderr, ce.Stdout)
		fmt.Fprint(os.Stderr, ce.Stderr)
		return err
	}
	var te *sandbox.TimeoutError
	if errors.As(err, &te) {
		fmt.Fprint(os.Stderr, te.Stderr)
		return err
	}
	return err
}
