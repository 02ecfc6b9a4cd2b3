// Package sandbox creates disposable, isolated execution contexts for
// JavaScript, TypeScript and Python code.
//
// An Environment owns a host scratch workspace that files are staged into.
// Each Execute call prepares a fully resolved command for the configured
// language — compiling TypeScript host-side first — and runs it either as a
// host child process or inside a container with a configurable security
// policy, returning captured output, exit status and timing.
//
// The process backend is not a true security sandbox: it offers no
// kernel-level confinement. Genuine isolation is delegated entirely to the
// container backend and the host's container runtime.
package sandbox
