package sandbox

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func newTestEnv(t *testing.T, cfg Config) *Environment {
	t.Helper()
	env, err := NewEnvironment(cfg)
	if err != nil {
		t.Fatalf("NewEnvironment() error = %v", err)
	}
	t.Cleanup(env.Delete)
	return env
}

func TestNewEnvironment_Validation(t *testing.T) {
	pids := int64(-1)
	tests := []struct {
		name string
		cfg  Config
	}{
		{"unsupported language", Config{Language: "ruby", Backend: BackendProcess}},
		{"unsupported backend", Config{Language: LangPython, Backend: "vm"}},
		{"negative memory", Config{Language: LangPython, Backend: BackendProcess, MemoryMB: -1}},
		{"negative process limit", Config{Language: LangPython, Backend: BackendProcess, ProcessLimit: -5}},
		{"negative timeout", Config{Language: LangPython, Backend: BackendProcess, Timeout: -1}},
		{"container without policy", Config{Language: LangPython, Backend: BackendContainer}},
		{"container without image", Config{Language: LangPython, Backend: BackendContainer, Policy: &SecurityPolicy{}}},
		{
			"bad pull policy",
			Config{Language: LangPython, Backend: BackendContainer,
				Policy: &SecurityPolicy{Image: "python:3.12-slim", PullPolicy: "Sometimes"}},
		},
		{
			"bad mount mode",
			Config{Language: LangPython, Backend: BackendContainer,
				Policy: &SecurityPolicy{Image: "python:3.12-slim", WorkspaceMount: "rx"}},
		},
		{
			"non-positive pids limit",
			Config{Language: LangPython, Backend: BackendContainer,
				Policy: &SecurityPolicy{Image: "python:3.12-slim", PidsLimit: &pids}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewEnvironment(tt.cfg)
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if !IsConfiguration(err) {
				t.Errorf("error = %v, want ConfigurationError", err)
			}
		})
	}
}

func TestNewEnvironment_WorkspaceUnderResolvedTempRoot(t *testing.T) {
	env := newTestEnv(t, Config{Language: LangPython, Backend: BackendProcess})

	root, err := filepath.EvalSymlinks(os.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(env.Workspace(), root+string(filepath.Separator)) {
		t.Errorf("workspace %q not under resolved temp root %q", env.Workspace(), root)
	}
	info, err := os.Stat(env.Workspace())
	if err != nil || !info.IsDir() {
		t.Errorf("workspace not created: %v", err)
	}
}

func TestAddFile_StagesContent(t *testing.T) {
	env := newTestEnv(t, Config{Language: LangJavaScript, Backend: BackendProcess})

	tests := []struct {
		name string
		path string
	}{
		{"plain", "main.js"},
		{"nested", "src/lib/util.js"},
		{"dot segment", "./scripts/run.js"},
		{"inner traversal that stays inside", "src/../main2.js"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			content := []byte("console.log('" + tt.name + "')")
			if err := env.AddFile(tt.path, content); err != nil {
				t.Fatalf("AddFile(%q) error = %v", tt.path, err)
			}
			clean := filepath.Clean(filepath.FromSlash(tt.path))
			got, err := os.ReadFile(filepath.Join(env.Workspace(), clean))
			if err != nil {
				t.Fatalf("staged file unreadable: %v", err)
			}
			if string(got) != string(content) {
				t.Errorf("content = %q, want %q", got, content)
			}
		})
	}
}

func TestAddFile_SetsExecuteBits(t *testing.T) {
	env := newTestEnv(t, Config{Language: LangPython, Backend: BackendProcess})
	if err := env.AddFile("run.py", []byte("print('hi')")); err != nil {
		t.Fatal(err)
	}
	info, err := os.Stat(filepath.Join(env.Workspace(), "run.py"))
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm()&0o100 == 0 {
		t.Errorf("mode = %v, want owner execute bit set", info.Mode())
	}
}

func TestAddFile_RejectsUnsafePaths(t *testing.T) {
	env := newTestEnv(t, Config{Language: LangPython, Backend: BackendProcess})

	tests := []struct {
		name string
		path string
	}{
		{"absolute", "/etc/passwd"},
		{"parent traversal", "../outside.py"},
		{"deep traversal", "a/../../outside.py"},
		{"bare parent", ".."},
		{"empty", ""},
		{"workspace root", "."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := env.AddFile(tt.path, []byte("x"))
			if err == nil {
				t.Fatalf("AddFile(%q) succeeded, want ConfigurationError", tt.path)
			}
			if !IsConfiguration(err) {
				t.Errorf("error = %v, want ConfigurationError", err)
			}
		})
	}

	// Nothing may have been written outside the workspace.
	if _, err := os.Stat(filepath.Join(filepath.Dir(env.Workspace()), "outside.py")); !os.IsNotExist(err) {
		t.Error("traversal path was written outside the workspace")
	}
}

func TestDelete_Idempotent(t *testing.T) {
	env, err := NewEnvironment(Config{Language: LangPython, Backend: BackendProcess})
	if err != nil {
		t.Fatal(err)
	}
	ws := env.Workspace()

	env.Delete()
	if _, err := os.Stat(ws); !os.IsNotExist(err) {
		t.Errorf("workspace still present after Delete: %v", err)
	}
	env.Delete() // must not panic or error
}

func TestExecute_AfterDelete(t *testing.T) {
	env, err := NewEnvironment(Config{Language: LangPython, Backend: BackendProcess})
	if err != nil {
		t.Fatal(err)
	}
	env.Delete()

	_, err = env.Execute(context.Background(), "main.py", nil, nil)
	if !IsConfiguration(err) {
		t.Errorf("Execute after Delete = %v, want ConfigurationError", err)
	}
}
