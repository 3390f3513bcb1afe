// Package engine implements task scheduling and dispatch: it drives one
// trigger loop per process definition, short-circuits invocations through
// the cache layers, submits the rest to an executor, enforces the
// error/exit-status policy, and republishes outputs downstream.
package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/petrijr/flume/internal/binder"
	"github.com/petrijr/flume/internal/cache"
	"github.com/petrijr/flume/internal/executor"
	"github.com/petrijr/flume/pkg/api"
)

// ChannelResolver resolves channel names against the pipeline registry.
type ChannelResolver = binder.ChannelResolver

// channelResolver is the package-local alias used by helpers.
type channelResolver = ChannelResolver

// Config describes how to construct an Engine.
type Config struct {
	Resolver  ChannelResolver
	Executors map[string]api.Executor
	Store     cache.Store
	Observer  api.Observer

	// WorkRoot is the directory under which per-invocation work dirs are
	// created.
	WorkRoot string

	// EchoOut receives task stdout for processes with the echo directive.
	EchoOut io.Writer
}

// Engine schedules and dispatches task invocations.
type Engine struct {
	resolver  ChannelResolver
	executors map[string]api.Executor
	store     cache.Store
	observer  api.Observer
	workRoot  string
	echoOut   io.Writer
}

// New creates an Engine. Zero-value config fields get working defaults:
// a NoopObserver, an in-memory cache store, os.Stdout echo, and a work root
// under the system temp dir.
func New(cfg Config) *Engine {
	e := &Engine{
		resolver:  cfg.Resolver,
		executors: cfg.Executors,
		store:     cfg.Store,
		observer:  cfg.Observer,
		workRoot:  cfg.WorkRoot,
		echoOut:   cfg.EchoOut,
	}
	if e.observer == nil {
		e.observer = api.NoopObserver{}
	}
	if e.store == nil {
		e.store = cache.NewMemoryStore()
	}
	if e.echoOut == nil {
		e.echoOut = os.Stdout
	}
	if e.workRoot == "" {
		e.workRoot = filepath.Join(os.TempDir(), "flume-work")
	}
	return e
}

// RunProcess runs one process definition to completion: the trigger loop
// fires invocations, each dispatched concurrently, except for share-bearing
// processes whose invocations execute strictly one at a time. It returns
// when every invocation has finished and the process's output channels have
// been closed, or with the first fatal error.
func (e *Engine) RunProcess(ctx context.Context, def *api.ProcessDefinition) error {
	if err := def.Validate(); err != nil {
		return err
	}

	share := newShareManager(def)
	g, gctx := errgroup.WithContext(ctx)

	b := binder.New(def, e.resolver)
	fired, bindErr := b.Run(gctx, func(ctx context.Context, inv *api.TaskInvocation) error {
		if share != nil {
			// Share-bearing processes are serialized: run inline under the
			// manager's mutual exclusion.
			return share.run(inv, func() error {
				return e.runInvocation(ctx, def, inv)
			})
		}
		g.Go(func() error {
			return e.runInvocation(gctx, def, inv)
		})
		return nil
	})

	if err := errors.Join(bindErr, g.Wait()); err != nil {
		return err
	}

	if share != nil {
		share.finish(e.resolver)
	}
	e.closeOutputs(def)
	e.observer.OnProcessDone(ctx, def.Name, fired)
	return nil
}

// closeOutputs closes every output channel owned by def, letting downstream
// trigger loops terminate.
func (e *Engine) closeOutputs(def *api.ProcessDefinition) {
	for _, spec := range def.Outputs {
		outputChannel(spec, e.resolver).Close()
	}
}

// runInvocation takes one invocation through the full lifecycle: fingerprint,
// cache lookup, storeDir lookup, dispatch, error policy, output binding, and
// cache/storeDir population.
func (e *Engine) runInvocation(ctx context.Context, def *api.ProcessDefinition, inv *api.TaskInvocation) error {
	dirs := inv.Directives.Normalized()

	// Share-bearing invocations are never fingerprinted: a cache hit would
	// replay recorded outputs without applying the slot mutation.
	fp := ""
	if len(def.Shares) == 0 {
		var err error
		fp, err = cache.Fingerprint(inv)
		if err != nil {
			return err
		}
	}
	inv.Fingerprint = fp
	inv.WorkDir = filepath.Join(e.workRoot, inv.ID[:2], inv.ID)

	if fp != "" {
		entry, err := e.store.Lookup(ctx, fp)
		switch {
		case err == nil:
			e.observer.OnCacheHit(ctx, inv, "cache")
			publishOutputs(def, e.resolver, entry.Outputs)
			return nil
		case !errors.Is(err, cache.ErrEntryNotFound):
			return err
		}
	}

	var sd *cache.StoreDir
	if dirs.StoreDir != "" {
		sd = cache.NewStoreDir(dirs.StoreDir)
		matches, hit, err := sd.Lookup(filePatterns(def, inv))
		if err != nil {
			return err
		}
		if hit {
			e.observer.OnCacheHit(ctx, inv, "storeDir")
			publishOutputs(def, e.resolver, outputsFromDir(def, inv, matches))
			return nil
		}
	}

	start := time.Now()
	e.observer.OnTaskStart(ctx, inv)

	res, err := e.dispatch(ctx, inv, dirs)
	if err != nil {
		e.observer.OnTaskCompleted(ctx, inv, err, time.Since(start))
		return err
	}

	if dirs.Echo && res.Stdout != "" {
		fmt.Fprint(e.echoOut, res.Stdout)
	}

	if !dirs.ExitValid(res.ExitStatus) {
		execErr := &api.ExecError{
			Process:      def.Name,
			InvocationID: inv.ID,
			WorkDir:      inv.WorkDir,
			ExitStatus:   res.ExitStatus,
			Stdout:       tail(res.Stdout),
			Stderr:       tail(res.Stderr),
		}
		e.observer.OnTaskCompleted(ctx, inv, execErr, time.Since(start))
		if dirs.ErrorStrategy == api.StrategyIgnore {
			// Absorbed: the invocation is abandoned and its outputs are
			// never produced. No retry.
			return nil
		}
		return execErr
	}

	outputs, err := extractOutputs(def, inv, res.Stdout)
	if err != nil {
		// Staging errors fail the invocation regardless of exit status and
		// of the error strategy.
		e.observer.OnTaskCompleted(ctx, inv, err, time.Since(start))
		return err
	}

	publishOutputs(def, e.resolver, outputs)

	if fp != "" {
		entry := &cache.Entry{
			Fingerprint: fp,
			Process:     def.Name,
			Script:      inv.Script,
			Inputs:      describeInputs(inv),
			Outputs:     outputs,
			ExitStatus:  res.ExitStatus,
			Stdout:      res.Stdout,
		}
		if err := e.store.Insert(ctx, entry); err != nil {
			return err
		}
	}
	if sd != nil {
		if err := sd.Save(producedFiles(outputs)); err != nil {
			return err
		}
	}

	e.observer.OnTaskCompleted(ctx, inv, nil, time.Since(start))
	return nil
}

// dispatch runs the task body: native callables execute in-process on the
// calling goroutine; scripts go to the executor named by the directive.
func (e *Engine) dispatch(ctx context.Context, inv *api.TaskInvocation, dirs api.Directives) (*api.TaskResult, error) {
	ec := buildExecContext(inv)

	if inv.Native != nil {
		// Native bodies still get a work dir with staged inputs so that
		// file outputs behave identically.
		if err := executor.Stage(ec); err != nil {
			return nil, err
		}
		res := &api.TaskResult{}
		if err := inv.Native(ctx, inv.Scope); err != nil {
			res.ExitStatus = 1
			res.Stderr = err.Error()
		}
		res.Stdout = inv.Scope.CapturedStdout()
		return res, nil
	}

	backend, ok := e.executors[dirs.Executor]
	if !ok {
		return nil, fmt.Errorf("process %s: unknown executor %q", inv.Process, dirs.Executor)
	}

	h, err := backend.Submit(ctx, ec)
	if err != nil {
		return nil, err
	}
	res, err := backend.Await(ctx, h)
	if err != nil {
		if ctx.Err() != nil {
			_ = backend.Cancel(h)
		}
		return nil, err
	}
	return res, nil
}

func buildExecContext(inv *api.TaskInvocation) *api.ExecContext {
	ec := &api.ExecContext{
		InvocationID: inv.ID,
		Process:      inv.Process,
		WorkDir:      inv.WorkDir,
		Script:       inv.Script,
		Native:       inv.Native,
		Scope:        inv.Scope,
		Env:          make(map[string]string),
	}
	for _, b := range inv.Bindings {
		switch b.Spec.Class {
		case api.EnvClass:
			ec.Env[b.Spec.Name] = fmt.Sprint(b.Value)
		case api.StdinClass:
			ec.Stdin = fmt.Sprint(b.Value)
		case api.FileClass:
			ec.Files = append(ec.Files, b.Files...)
		}
	}
	return ec
}

func describeInputs(inv *api.TaskInvocation) []cache.InputDescriptor {
	descr := make([]cache.InputDescriptor, len(inv.Bindings))
	for i, b := range inv.Bindings {
		descr[i] = cache.InputDescriptor{
			Name:  b.Spec.Name,
			Class: string(b.Spec.Class),
			Repr:  fmt.Sprint(b.Value),
		}
	}
	return descr
}

// producedFiles flattens every file path recorded in outputs, including
// files nested in set outputs.
func producedFiles(outputs []cache.OutputValue) []string {
	var files []string
	for _, o := range outputs {
		files = append(files, o.Files...)
	}
	return files
}

const tailBytes = 4096

// tail truncates captured output to its last tailBytes for failure reports.
func tail(s string) string {
	if len(s) <= tailBytes {
		return s
	}
	return s[len(s)-tailBytes:]
}
