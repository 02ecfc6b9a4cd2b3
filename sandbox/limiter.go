package sandbox

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
)

// Environment variables the limiter helper reads. The helper unsets them
// before handing off so user code never observes them.
const (
	limiterExecArgsVar = "STONEBOX_EXEC_ARGS"       // JSON argv of the real command
	limiterMemoryVar   = "STONEBOX_MEMORY_LIMIT_MB" // RLIMIT_AS ceiling
	limiterProcessVar  = "STONEBOX_PROCESS_LIMIT"   // RLIMIT_NPROC ceiling
)

// limiterRelPath is where the helper is staged, workspace-relative. It lives
// under a dot directory alongside other stonebox-internal artifacts so it
// stays out of the user's way.
const limiterRelPath = ".stonebox/unix_limiter.py"

//go:embed unix_limiter.py
var limiterScript []byte

// stageLimiter writes the embedded limiter helper into the workspace and
// returns its workspace-relative path. Staging is idempotent within one
// environment.
func stageLimiter(env *Environment) (string, error) {
	dst := filepath.Join(env.workspace, filepath.FromSlash(limiterRelPath))
	if _, err := os.Stat(dst); err == nil {
		return limiterRelPath, nil
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return "", fmt.Errorf("staging limiter: %w", err)
	}
	if err := os.WriteFile(dst, limiterScript, 0o755); err != nil { // #nosec G306 -- helper must be executable
		return "", fmt.Errorf("staging limiter: %w", err)
	}
	return limiterRelPath, nil
}
