package api

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"
)

// StagedFile pairs a source file path with the name it is staged under in
// the task's work dir.
type StagedFile struct {
	Source string
	Name   string
}

// Binding is one bound input port of a concrete invocation.
type Binding struct {
	Spec  InputSpec
	Value any

	// Files holds the staged file list for file-classified ports. A scalar
	// item stages one file; a collection item stages one per element.
	Files []StagedFile
}

// TaskInvocation is one concrete firing of a process: every input port bound
// to a value, the script fully substituted, and a cache fingerprint computed
// from both.
type TaskInvocation struct {
	ID      string
	Process string

	// Index is the 0-based ordinal of this invocation within its process,
	// counted over repeater-expanded invocations.
	Index int

	Bindings []Binding
	WorkDir  string
	Script   string

	Fingerprint string

	// Scope is the deferred-evaluation binding context used for script
	// substitution, parametric file names, and val output extraction.
	Scope *TaskScope

	Directives Directives
	Native     NativeFunc
}

// TaskScope is the variable scope of a single invocation. Bound input values
// land here before substitution; native bodies may read them, set additional
// variables, and write to the captured stdout.
type TaskScope struct {
	mu     sync.Mutex
	vars   map[string]any
	stdout bytes.Buffer
}

// NewTaskScope creates an empty scope.
func NewTaskScope() *TaskScope {
	return &TaskScope{vars: make(map[string]any)}
}

// SetVar binds name to value in the scope.
func (s *TaskScope) SetVar(name string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.vars[name] = value
}

// Var returns the value bound to name.
func (s *TaskScope) Var(name string) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.vars[name]
	return v, ok
}

// Lookup resolves name to its textual representation, for use with template
// expansion. Unknown names resolve to "".
func (s *TaskScope) Lookup(name string) string {
	v, ok := s.Var(name)
	if !ok {
		return ""
	}
	return fmt.Sprint(v)
}

// Stdout returns the writer native bodies use for captured standard output.
func (s *TaskScope) Stdout() io.Writer {
	return &lockedWriter{s: s}
}

// CapturedStdout returns everything written to Stdout so far.
func (s *TaskScope) CapturedStdout() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stdout.String()
}

type lockedWriter struct {
	s *TaskScope
}

func (w *lockedWriter) Write(p []byte) (int, error) {
	w.s.mu.Lock()
	defer w.s.mu.Unlock()
	return w.s.stdout.Write(p)
}

// ExecContext is everything an executor needs to run one task.
type ExecContext struct {
	InvocationID string
	Process      string
	WorkDir      string

	// Script is the fully substituted shell script; empty when Native is set.
	Script string
	Native NativeFunc
	Scope  *TaskScope

	// Env holds env-classified input bindings.
	Env map[string]string

	// Stdin, when non-empty, is fed to the task's standard input.
	Stdin string

	// Files are staged into WorkDir before the task starts.
	Files []StagedFile
}

// TaskResult is the outcome an executor reports for one task.
type TaskResult struct {
	ExitStatus int
	Stdout     string
	Stderr     string
}

// TaskHandle identifies a submitted task within its executor.
type TaskHandle interface {
	// InvocationID returns the ID of the invocation this handle tracks.
	InvocationID() string
}

// Executor is the narrow contract the engine requires from an execution
// backend. Local, grid-scheduler and cloud backends are interchangeable
// implementations; the engine never assumes a specific one.
type Executor interface {
	// Submit stages and starts the task described by ec. It returns promptly;
	// completion is observed through Await.
	Submit(ctx context.Context, ec *ExecContext) (TaskHandle, error)

	// Await blocks until the task finishes or ctx is cancelled.
	Await(ctx context.Context, h TaskHandle) (*TaskResult, error)

	// Cancel requests termination of an in-flight task. It is idempotent.
	Cancel(h TaskHandle) error
}
