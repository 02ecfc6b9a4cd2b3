//go:build unix

package sandbox

import (
	"context"
	"errors"
	"testing"
	"time"
)

func shCommand(script string) *PreparedCommand {
	return &PreparedCommand{
		Mode: ExplicitCommand,
		Path: "/bin/sh",
		Args: []string{"-c", script},
		Env:  map[string]string{"PATH": "/usr/bin:/bin"},
	}
}

func TestRunProcess_CapturesStreamsAndExitCode(t *testing.T) {
	prepared := shCommand(`printf out; printf err >&2; exit 3`)
	prepared.Dir = t.TempDir()

	res, err := runProcess(context.Background(), prepared, &execSettings{})
	if err != nil {
		t.Fatalf("runProcess() error = %v", err)
	}
	if res.Stdout != "out" || res.Stderr != "err" {
		t.Errorf("streams = (%q, %q), want (out, err)", res.Stdout, res.Stderr)
	}
	if res.ExitCode == nil || *res.ExitCode != 3 {
		t.Errorf("ExitCode = %v, want 3", res.ExitCode)
	}
	if res.Signal != "" {
		t.Errorf("Signal = %q, want empty", res.Signal)
	}
	if res.Duration <= 0 {
		t.Error("Duration not recorded")
	}
}

func TestRunProcess_StdinWrittenOnce(t *testing.T) {
	prepared := shCommand("cat")
	prepared.Dir = t.TempDir()

	res, err := runProcess(context.Background(), prepared, &execSettings{stdin: "hello stdin"})
	if err != nil {
		t.Fatalf("runProcess() error = %v", err)
	}
	if res.Stdout != "hello stdin" {
		t.Errorf("Stdout = %q, want %q", res.Stdout, "hello stdin")
	}
	if res.ExitCode == nil || *res.ExitCode != 0 {
		t.Errorf("ExitCode = %v, want 0", res.ExitCode)
	}
}

func TestRunProcess_TimeoutEscalates(t *testing.T) {
	// The child ignores the soft interrupt so the kill escalation has to
	// finish it.
	prepared := shCommand(`trap '' TERM; printf partial; sleep 30`)
	prepared.Dir = t.TempDir()

	settings := &execSettings{timeout: 100 * time.Millisecond}
	start := time.Now()
	_, err := runProcess(context.Background(), prepared, settings)
	elapsed := time.Since(start)

	var toErr *TimeoutError
	if !errors.As(err, &toErr) {
		t.Fatalf("runProcess() error = %v, want *TimeoutError", err)
	}
	if toErr.Configured != settings.timeout {
		t.Errorf("Configured = %v, want %v", toErr.Configured, settings.timeout)
	}
	if toErr.Elapsed < settings.timeout {
		t.Errorf("Elapsed = %v, want >= %v", toErr.Elapsed, settings.timeout)
	}
	if toErr.Stdout != "partial" {
		t.Errorf("Stdout = %q, want partial output preserved", toErr.Stdout)
	}
	// Soft interrupt ignored, so the grace period must elapse before the
	// hard kill lands. Generous upper bound to avoid flaking on slow CI.
	if elapsed > settings.timeout+killGracePeriod+5*time.Second {
		t.Errorf("escalation took %v, kill did not land", elapsed)
	}
}

func TestRunProcess_SuccessUnderTimeoutIsNeverTimeout(t *testing.T) {
	prepared := shCommand("exit 0")
	prepared.Dir = t.TempDir()

	// A configured timeout on a successful run must yield a Result; only a
	// failed run may be classified by the expired deadline.
	res, err := runProcess(context.Background(), prepared, &execSettings{timeout: 5 * time.Second})
	if err != nil {
		t.Fatalf("runProcess() error = %v", err)
	}
	if res.ExitCode == nil || *res.ExitCode != 0 {
		t.Errorf("ExitCode = %v, want 0", res.ExitCode)
	}
}

func TestRunProcess_CleanExitAfterDeadlineIsTimeout(t *testing.T) {
	// The child answers the soft interrupt by exiting 0. The run still
	// exceeded its budget and must be reported as a timeout, not success.
	prepared := shCommand(`trap 'exit 0' TERM; sleep 30 >/dev/null 2>&1 & wait`)
	prepared.Dir = t.TempDir()

	_, err := runProcess(context.Background(), prepared, &execSettings{timeout: 100 * time.Millisecond})
	var toErr *TimeoutError
	if !errors.As(err, &toErr) {
		t.Fatalf("runProcess() error = %v, want *TimeoutError", err)
	}
}

func TestRunProcess_SignalExit(t *testing.T) {
	prepared := shCommand("kill -KILL $$")
	prepared.Dir = t.TempDir()

	res, err := runProcess(context.Background(), prepared, &execSettings{})
	if err != nil {
		t.Fatalf("runProcess() error = %v", err)
	}
	if res.Signal != "SIGKILL" {
		t.Errorf("Signal = %q, want SIGKILL", res.Signal)
	}
	if res.ExitCode != nil {
		t.Errorf("ExitCode = %v, want nil on signal exit", res.ExitCode)
	}
}

func TestRunProcess_SpawnFailure(t *testing.T) {
	prepared := &PreparedCommand{
		Mode: ExplicitCommand,
		Path: "/nonexistent/interpreter",
		Args: []string{"main.py"},
		Dir:  t.TempDir(),
	}

	_, err := runProcess(context.Background(), prepared, &execSettings{})
	var rtErr *RuntimeError
	if !errors.As(err, &rtErr) {
		t.Fatalf("runProcess() error = %v, want *RuntimeError", err)
	}
	if rtErr.Op != "spawn" {
		t.Errorf("Op = %q, want spawn", rtErr.Op)
	}
}

func TestRunProcess_RejectsImageDefaultMode(t *testing.T) {
	prepared := &PreparedCommand{Mode: ImageDefaultCommand, Dir: t.TempDir()}
	_, err := runProcess(context.Background(), prepared, &execSettings{})
	if !IsConfiguration(err) {
		t.Fatalf("runProcess() error = %v, want configuration error", err)
	}
}
