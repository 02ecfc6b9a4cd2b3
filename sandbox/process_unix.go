//go:build unix

package sandbox

import (
	"os"
	"os/exec"
	"syscall"

	"golang.org/x/sys/unix"
)

// interruptProcess delivers the soft stage of timeout escalation. The hard
// kill follows via exec.Cmd.WaitDelay if the process ignores it.
func interruptProcess(cmd *exec.Cmd) error {
	if cmd.Process == nil {
		return nil
	}
	return cmd.Process.Signal(syscall.SIGTERM)
}

// setCredential arranges for the child to run under the given identity.
// Insufficient privilege surfaces as a spawn error, not silently.
func setCredential(cmd *exec.Cmd, uid int64, gid *int64) error {
	cred := &syscall.Credential{Uid: uint32(uid)} // #nosec G115 -- validated non-negative
	if gid != nil {
		cred.Gid = uint32(*gid) // #nosec G115
	}
	if cmd.SysProcAttr == nil {
		cmd.SysProcAttr = &syscall.SysProcAttr{}
	}
	cmd.SysProcAttr.Credential = cred
	return nil
}

// exitStatus splits a wait status into (exit code, signal name). A graceful
// exit yields the code and an empty signal; a signal death yields the
// uppercase signal name ("SIGKILL") and no meaningful code.
func exitStatus(state *os.ProcessState) (int, string) {
	if state == nil {
		return -1, ""
	}
	if ws, ok := state.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
		return -1, unix.SignalName(ws.Signal())
	}
	return state.ExitCode(), ""
}
