package sandbox

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
)

func TestEmittedScriptPath(t *testing.T) {
	tests := []struct {
		outDir string
		source string
		want   string
	}{
		{".stonebox/build", "main.ts", ".stonebox/build/main.js"},
		{".stonebox/build", "src/app.ts", ".stonebox/build/src/app.js"},
		{"dist", "main.ts", "dist/main.js"},
		{"./dist", "main.ts", "dist/main.js"},
		{".", "main.ts", "main.js"},
		{".", "src/deep/mod.ts", "src/deep/mod.js"},
	}
	for _, tt := range tests {
		if got := emittedScriptPath(tt.outDir, tt.source); got != tt.want {
			t.Errorf("emittedScriptPath(%q, %q) = %q, want %q", tt.outDir, tt.source, got, tt.want)
		}
	}
}

func TestEnsureTsconfig_SynthesizesDefault(t *testing.T) {
	ws := t.TempDir()
	outDir, err := ensureTsconfig(ws)
	if err != nil {
		t.Fatalf("ensureTsconfig() error = %v", err)
	}
	if outDir != "./.stonebox/build" {
		t.Errorf("outDir = %q, want default", outDir)
	}
	data, err := os.ReadFile(filepath.Join(ws, tsconfigName))
	if err != nil {
		t.Fatalf("default tsconfig not written: %v", err)
	}
	for _, key := range []string{`"target"`, `"module"`, `"rootDir"`, `"outDir"`} {
		if !strings.Contains(string(data), key) {
			t.Errorf("default tsconfig missing %s", key)
		}
	}
}

func TestEnsureTsconfig_HonorsExisting(t *testing.T) {
	ws := t.TempDir()
	// tsconfig.json is JSONC: comments and trailing commas must parse.
	existing := `{
  // build straight into the workspace
  "compilerOptions": {
    "target": "ES2022",
    "outDir": "build/js", // relocated output
  },
}`
	if err := os.WriteFile(filepath.Join(ws, tsconfigName), []byte(existing), 0o644); err != nil {
		t.Fatal(err)
	}

	outDir, err := ensureTsconfig(ws)
	if err != nil {
		t.Fatalf("ensureTsconfig() error = %v", err)
	}
	if outDir != "build/js" {
		t.Errorf("outDir = %q, want build/js", outDir)
	}

	data, _ := os.ReadFile(filepath.Join(ws, tsconfigName))
	if string(data) != existing {
		t.Error("user tsconfig was overwritten")
	}
}

func TestEnsureTsconfig_NoOutDirMeansWorkspaceRoot(t *testing.T) {
	ws := t.TempDir()
	if err := os.WriteFile(filepath.Join(ws, tsconfigName), []byte(`{"compilerOptions":{}}`), 0o644); err != nil {
		t.Fatal(err)
	}
	outDir, err := ensureTsconfig(ws)
	if err != nil {
		t.Fatal(err)
	}
	if outDir != "." {
		t.Errorf("outDir = %q, want .", outDir)
	}
}

// fakeTsc writes a stand-in compiler script and returns its path.
func fakeTsc(t *testing.T, script string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell stub compiler requires unix")
	}
	path := filepath.Join(t.TempDir(), "tsc")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+script), 0o755); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestCompileTypeScript_FailureCarriesDiagnostics(t *testing.T) {
	tsc := fakeTsc(t, `echo "main.ts(1,5): error TS2322: Type 'string' is not assignable to type 'number'." >&2
exit 2`)
	ws := t.TempDir()
	settings := execSettings{engine: EngineOptions{TscPath: tsc}, env: map[string]string{}}

	err := compileTypeScript(context.Background(), ws, &settings)
	var ce *CompilationError
	if !errors.As(err, &ce) {
		t.Fatalf("error = %v, want CompilationError", err)
	}
	if !strings.Contains(ce.Stderr, "TS2322") {
		t.Errorf("Stderr = %q, want compiler diagnostics", ce.Stderr)
	}
}

func TestCompileTypeScript_MissingCompilerIsRuntimeError(t *testing.T) {
	ws := t.TempDir()
	settings := execSettings{
		engine: EngineOptions{TscPath: filepath.Join(ws, "no-such-tsc")},
		env:    map[string]string{},
	}
	err := compileTypeScript(context.Background(), ws, &settings)
	var re *RuntimeError
	if !errors.As(err, &re) {
		t.Fatalf("error = %v, want RuntimeError", err)
	}
}

func TestTSEngine_CompileFailureNeverPreparesRun(t *testing.T) {
	tsc := fakeTsc(t, "exit 1")
	env := newTestEnv(t, Config{Language: LangTypeScript, Backend: BackendProcess})

	settings := execSettings{engine: EngineOptions{TscPath: tsc}, env: map[string]string{}}
	eng := tsEngine{delegate: jsProcessEngine{}}
	_, err := eng.prepare(context.Background(), env, "main.ts", nil, &settings)
	if !IsCompilation(err) {
		t.Fatalf("error = %v, want CompilationError", err)
	}
}

func TestTSEngine_DelegatesEmittedScript(t *testing.T) {
	tsc := fakeTsc(t, "exit 0")
	env := newTestEnv(t, Config{Language: LangTypeScript, Backend: BackendContainer,
		Policy: &SecurityPolicy{Image: "node:20-slim"}})

	settings := execSettings{engine: EngineOptions{TscPath: tsc}, env: map[string]string{}}
	eng := tsEngine{delegate: jsContainerEngine{}}
	prepared, err := eng.prepare(context.Background(), env, "src/main.ts", []string{"arg"}, &settings)
	if err != nil {
		t.Fatalf("prepare() error = %v", err)
	}
	want := "/workspace/.stonebox/build/src/main.js"
	if len(prepared.Args) == 0 || prepared.Args[0] != want {
		t.Errorf("Args = %v, want first arg %q", prepared.Args, want)
	}
}

func TestTSEngine_MissingCommand(t *testing.T) {
	env := newTestEnv(t, Config{Language: LangTypeScript, Backend: BackendProcess})
	eng := tsEngine{delegate: jsProcessEngine{}}
	_, err := eng.prepare(context.Background(), env, "", nil, &execSettings{})
	if !IsConfiguration(err) {
		t.Errorf("prepare(\"\") = %v, want ConfigurationError", err)
	}
}
