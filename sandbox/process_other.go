//go:build !unix

package sandbox

import (
	"fmt"
	"os"
	"os/exec"
)

// interruptProcess has no soft stage off unix: signals other than Kill are
// not implemented, so escalation goes straight to the hard kill.
func interruptProcess(cmd *exec.Cmd) error {
	if cmd.Process == nil {
		return nil
	}
	return cmd.Process.Kill()
}

func setCredential(_ *exec.Cmd, uid int64, _ *int64) error {
	return fmt.Errorf("uid/gid override (uid %d) is not supported on this platform", uid)
}

func exitStatus(state *os.ProcessState) (int, string) {
	if state == nil {
		return -1, ""
	}
	return state.ExitCode(), ""
}
