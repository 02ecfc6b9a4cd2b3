package sandbox

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"strings"
	"time"
)

// killGracePeriod bounds how long a soft interrupt may go unanswered before
// the process is forcibly killed.
const killGracePeriod = 500 * time.Millisecond

// runProcess spawns a prepared command as a host child process with piped
// streams, racing it against the effective timeout. Escalation is soft
// interrupt first, hard kill after the grace period.
func runProcess(ctx context.Context, prepared *PreparedCommand, settings *execSettings) (*Result, error) {
	if prepared.Mode != ExplicitCommand {
		return nil, configErrorf("command", "process backend requires an explicit command")
	}

	execCtx := ctx
	if settings.timeout > 0 {
		var cancel context.CancelFunc
		execCtx, cancel = context.WithTimeout(ctx, settings.timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(execCtx, prepared.Path, prepared.Args...) // #nosec G204 -- command prepared by an engine, not raw input
	cmd.Dir = prepared.Dir
	cmd.Env = flattenEnv(prepared.Env)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if settings.stdin != "" {
		// Written once, then the pipe is closed. No interactive input.
		cmd.Stdin = strings.NewReader(settings.stdin)
	}

	cmd.Cancel = func() error { return interruptProcess(cmd) }
	cmd.WaitDelay = killGracePeriod

	if settings.uid != nil {
		if err := setCredential(cmd, *settings.uid, settings.gid); err != nil {
			return nil, &RuntimeError{Op: "spawn", Cmd: prepared.argv(), Err: err}
		}
	}

	start := time.Now()
	err := cmd.Run()
	elapsed := time.Since(start)

	if err != nil {
		// A deadline observed after a fully successful run must not turn
		// the result into a timeout, so the check only applies to failures.
		if execCtx.Err() == context.DeadlineExceeded {
			return nil, &TimeoutError{
				Configured: settings.timeout,
				Elapsed:    elapsed,
				Stdout:     stdout.String(),
				Stderr:     stderr.String(),
			}
		}
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			// Spawn-level failure: interpreter missing, permission denied,
			// credential not applicable.
			return nil, &RuntimeError{Op: "spawn", Cmd: prepared.argv(), Err: err}
		}
	}

	code, signal := exitStatus(cmd.ProcessState)
	result := &Result{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Signal:   signal,
		Duration: elapsed,
	}
	if signal == "" {
		result.ExitCode = &code
	}
	return result, nil
}
