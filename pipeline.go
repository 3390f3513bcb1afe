package flume

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/petrijr/flume/internal/cache"
	"github.com/petrijr/flume/internal/config"
	"github.com/petrijr/flume/internal/engine"
	"github.com/petrijr/flume/internal/executor"
	"github.com/petrijr/flume/pkg/api"
)

// Pipeline owns the channel registry and the set of registered process
// definitions, and supervises one trigger loop per process when run.
//
// Typical usage:
//
//	p := flume.NewPipeline()
//	p.Source("samples", "s1", "s2", "s3")
//
//	flume.NewProc("align").
//	    Val("samples", nil).
//	    OutFile("bam", "*.bam", nil).
//	    Script("bwa mem ref.fa ${samples} > ${samples}.bam").
//	    MustRegister(p)
//
//	if err := p.Run(ctx); err != nil {
//	    log.Fatal(err)
//	}
type Pipeline struct {
	mu       sync.Mutex
	channels map[string]*Channel
	defs     []*ProcessDefinition

	executors map[string]Executor
	store     cache.Store
	observer  Observer
	notifier  Notifier
	profile   *config.Profile
	workRoot  string
	echoOut   io.Writer

	localConcurrency int
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithObserver sets the pipeline observer. Combine several with
// NewCompositeObserver.
func WithObserver(obs Observer) Option {
	return func(p *Pipeline) { p.observer = obs }
}

// WithCacheStore replaces the default in-memory cache store, e.g. with a
// store from NewSQLiteCacheStore.
func WithCacheStore(store CacheStore) Option {
	return func(p *Pipeline) { p.store = store }
}

// WithExecutor registers a named execution backend. The "local" name
// replaces the built-in local executor.
func WithExecutor(name string, exec Executor) Option {
	return func(p *Pipeline) { p.executors[name] = exec }
}

// WithNotifier sets the notification collaborator. The pipeline sends one
// notification on completion and one on fatal abort; delivery failures are
// never fatal.
func WithNotifier(n Notifier) Option {
	return func(p *Pipeline) { p.notifier = n }
}

// WithProfile applies a directive profile to every registered process at
// Run time.
func WithProfile(profile *Profile) Option {
	return func(p *Pipeline) { p.profile = profile }
}

// WithWorkRoot sets the directory under which per-invocation work dirs are
// created. Defaults to a "flume-work" dir under the system temp dir.
func WithWorkRoot(dir string) Option {
	return func(p *Pipeline) { p.workRoot = dir }
}

// WithStdout sets the writer receiving echoed task output. Defaults to
// os.Stdout.
func WithStdout(w io.Writer) Option {
	return func(p *Pipeline) { p.echoOut = w }
}

// WithLocalConcurrency bounds the built-in local executor's worker pool.
// Defaults to 4.
func WithLocalConcurrency(n int) Option {
	return func(p *Pipeline) { p.localConcurrency = n }
}

// NewPipeline creates an empty pipeline.
func NewPipeline(opts ...Option) *Pipeline {
	p := &Pipeline{
		channels:         make(map[string]*Channel),
		executors:        make(map[string]Executor),
		localConcurrency: 4,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Channel returns the named channel, creating it lazily on first reference.
// This is the explicit registry behind implicit channel binding: an input or
// output port without an explicit channel resolves here by name.
func (p *Pipeline) Channel(name string) *Channel {
	p.mu.Lock()
	defer p.mu.Unlock()
	ch, ok := p.channels[name]
	if !ok {
		ch = api.NamedChannel(name)
		p.channels[name] = ch
	}
	return ch
}

// Source registers a named channel pre-loaded with the given values and
// closed, for fixed input collections.
func (p *Pipeline) Source(name string, values ...any) *Channel {
	ch := p.Channel(name)
	for _, v := range values {
		ch.Send(v)
	}
	ch.Close()
	return ch
}

// Register adds a process definition to the pipeline.
func (p *Pipeline) Register(def *ProcessDefinition) error {
	if err := def.Validate(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, existing := range p.defs {
		if existing.Name == def.Name {
			return fmt.Errorf("process already registered: %s", def.Name)
		}
	}
	p.defs = append(p.defs, def)
	return nil
}

// Run executes the pipeline: every process's trigger loop runs concurrently
// until its driving channels are exhausted. Run returns once all processes
// have completed, or with the first fatal error, in which case all in-flight
// work is cancelled and every registry channel is closed to unblock waiting
// consumers.
func (p *Pipeline) Run(ctx context.Context) error {
	p.mu.Lock()
	defs := make([]*ProcessDefinition, len(p.defs))
	copy(defs, p.defs)
	p.mu.Unlock()

	if len(defs) == 0 {
		return fmt.Errorf("flume: pipeline has no registered processes")
	}

	if p.profile != nil {
		for _, def := range defs {
			p.profile.Apply(def)
		}
	}

	obs := p.observer
	if obs == nil {
		obs = api.NoopObserver{}
	}

	execs := make(map[string]Executor, len(p.executors)+1)
	for name, ex := range p.executors {
		execs[name] = ex
	}
	if _, ok := execs[api.DefaultExecutor]; !ok {
		local := executor.NewLocal(p.localConcurrency)
		defer local.Close()
		execs[api.DefaultExecutor] = local
	}

	eng := engine.New(engine.Config{
		Resolver:  p,
		Executors: execs,
		Store:     p.store,
		Observer:  obs,
		WorkRoot:  p.workRoot,
		EchoOut:   p.echoOut,
	})

	obs.OnPipelineStart(ctx)

	g, gctx := errgroup.WithContext(ctx)
	for _, def := range defs {
		def := def
		g.Go(func() error {
			return eng.RunProcess(gctx, def)
		})
	}

	if err := g.Wait(); err != nil {
		// Unblock any consumer still waiting on a channel that will never
		// be fed.
		p.closeAll()
		obs.OnPipelineFailed(ctx, err)
		p.notify(ctx, "pipeline failed", failureBody(err))
		return err
	}

	obs.OnPipelineCompleted(ctx)
	p.notify(ctx, "pipeline completed", "All processes completed.")
	return nil
}

func (p *Pipeline) closeAll() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, ch := range p.channels {
		ch.Close()
	}
}

func (p *Pipeline) notify(ctx context.Context, subject, body string) {
	if p.notifier == nil {
		return
	}
	err := p.notifier.SendNotification(ctx, Notification{
		Subject: subject,
		Body:    body,
	})
	if err != nil {
		// Transport errors are reported but never fatal to the engine.
		fmt.Fprintf(os.Stderr, "flume: notification failed: %v\n", err)
	}
}

func failureBody(err error) string {
	if execErr, ok := api.IsExecError(err); ok {
		return fmt.Sprintf("Process %s failed (invocation %s, exit status %d).\nWork dir: %s\n\nstdout:\n%s\nstderr:\n%s\n",
			execErr.Process, execErr.InvocationID, execErr.ExitStatus, execErr.WorkDir, execErr.Stdout, execErr.Stderr)
	}
	return err.Error()
}
