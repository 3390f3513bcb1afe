package api

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"
)

// Observer receives callbacks from the dataflow engine for logging and
// metrics.
//
// Implementations should be fast and non-blocking; heavy work should be done
// asynchronously so as not to delay task dispatch.
type Observer interface {
	// OnPipelineStart is called once when Pipeline.Run begins, before any
	// process loop is started.
	OnPipelineStart(ctx context.Context)

	// OnPipelineCompleted is called when every process loop has finished
	// without a fatal error.
	OnPipelineCompleted(ctx context.Context)

	// OnPipelineFailed is called when the pipeline aborts.
	OnPipelineFailed(ctx context.Context, err error)

	// OnProcessDone is called when a process's trigger loop terminates;
	// fired is the number of invocations it produced.
	OnProcessDone(ctx context.Context, process string, fired int)

	// OnTaskStart is called before an invocation is dispatched to its
	// executor (and before a native body runs).
	OnTaskStart(ctx context.Context, inv *TaskInvocation)

	// OnTaskCompleted is called after an invocation finishes, for both
	// successes and failures (err != nil).
	OnTaskCompleted(ctx context.Context, inv *TaskInvocation, err error, duration time.Duration)

	// OnCacheHit is called when an invocation is short-circuited without
	// executing; source is "cache" for a fingerprint hit and "storeDir" for
	// a permanent-store hit.
	OnCacheHit(ctx context.Context, inv *TaskInvocation, source string)
}

// NoopObserver is an Observer that does nothing.
// It is used as the default when no observer is configured.
type NoopObserver struct{}

func (NoopObserver) OnPipelineStart(ctx context.Context)                      {}
func (NoopObserver) OnPipelineCompleted(ctx context.Context)                  {}
func (NoopObserver) OnPipelineFailed(ctx context.Context, err error)          {}
func (NoopObserver) OnProcessDone(ctx context.Context, process string, n int) {}
func (NoopObserver) OnTaskStart(ctx context.Context, inv *TaskInvocation)     {}
func (NoopObserver) OnCacheHit(ctx context.Context, inv *TaskInvocation, source string) {
}
func (NoopObserver) OnTaskCompleted(ctx context.Context, inv *TaskInvocation, err error, d time.Duration) {
}

// CompositeObserver fans out events to multiple observers.
type CompositeObserver struct {
	observers []Observer
}

// NewCompositeObserver creates an Observer that forwards events to each
// non-nil observer in obs.
func NewCompositeObserver(obs ...Observer) Observer {
	filtered := make([]Observer, 0, len(obs))
	for _, o := range obs {
		if o != nil {
			filtered = append(filtered, o)
		}
	}
	if len(filtered) == 0 {
		return NoopObserver{}
	}
	if len(filtered) == 1 {
		return filtered[0]
	}
	return &CompositeObserver{observers: filtered}
}

func (c *CompositeObserver) OnPipelineStart(ctx context.Context) {
	for _, o := range c.observers {
		o.OnPipelineStart(ctx)
	}
}

func (c *CompositeObserver) OnPipelineCompleted(ctx context.Context) {
	for _, o := range c.observers {
		o.OnPipelineCompleted(ctx)
	}
}

func (c *CompositeObserver) OnPipelineFailed(ctx context.Context, err error) {
	for _, o := range c.observers {
		o.OnPipelineFailed(ctx, err)
	}
}

func (c *CompositeObserver) OnProcessDone(ctx context.Context, process string, n int) {
	for _, o := range c.observers {
		o.OnProcessDone(ctx, process, n)
	}
}

func (c *CompositeObserver) OnTaskStart(ctx context.Context, inv *TaskInvocation) {
	for _, o := range c.observers {
		o.OnTaskStart(ctx, inv)
	}
}

func (c *CompositeObserver) OnTaskCompleted(ctx context.Context, inv *TaskInvocation, err error, d time.Duration) {
	for _, o := range c.observers {
		o.OnTaskCompleted(ctx, inv, err, d)
	}
}

func (c *CompositeObserver) OnCacheHit(ctx context.Context, inv *TaskInvocation, source string) {
	for _, o := range c.observers {
		o.OnCacheHit(ctx, inv, source)
	}
}

// LoggingObserver writes structured logs using log/slog.
type LoggingObserver struct {
	Logger *slog.Logger
}

// NewLoggingObserver creates an Observer that logs pipeline / task lifecycle
// events using the provided slog.Logger. If logger is nil, slog.Default()
// is used.
func NewLoggingObserver(logger *slog.Logger) Observer {
	if logger == nil {
		logger = slog.Default()
	}
	return &LoggingObserver{Logger: logger}
}

func (o *LoggingObserver) OnPipelineStart(ctx context.Context) {
	o.Logger.InfoContext(ctx, "pipeline_start")
}

func (o *LoggingObserver) OnPipelineCompleted(ctx context.Context) {
	o.Logger.InfoContext(ctx, "pipeline_completed")
}

func (o *LoggingObserver) OnPipelineFailed(ctx context.Context, err error) {
	o.Logger.ErrorContext(ctx, "pipeline_failed",
		slog.Any("error", err),
	)
}

func (o *LoggingObserver) OnProcessDone(ctx context.Context, process string, n int) {
	o.Logger.InfoContext(ctx, "process_done",
		slog.String("process", process),
		slog.Int("invocations", n),
	)
}

func (o *LoggingObserver) OnTaskStart(ctx context.Context, inv *TaskInvocation) {
	o.Logger.DebugContext(ctx, "task_start",
		slog.String("process", inv.Process),
		slog.String("invocation_id", inv.ID),
		slog.Int("index", inv.Index),
		slog.String("fingerprint", inv.Fingerprint),
	)
}

func (o *LoggingObserver) OnTaskCompleted(ctx context.Context, inv *TaskInvocation, err error, d time.Duration) {
	level := slog.LevelDebug
	if err != nil {
		level = slog.LevelError
	}
	o.Logger.Log(ctx, level, "task_completed",
		slog.String("process", inv.Process),
		slog.String("invocation_id", inv.ID),
		slog.Int("index", inv.Index),
		slog.Duration("duration", d),
		slog.Any("error", err),
	)
}

func (o *LoggingObserver) OnCacheHit(ctx context.Context, inv *TaskInvocation, source string) {
	o.Logger.InfoContext(ctx, "cache_hit",
		slog.String("process", inv.Process),
		slog.String("invocation_id", inv.ID),
		slog.String("source", source),
		slog.String("fingerprint", inv.Fingerprint),
	)
}

// BasicMetrics collects simple counters and aggregate task durations.
// It implements Observer, and can be combined with LoggingObserver via
// NewCompositeObserver.
type BasicMetrics struct {
	NoopObserver

	tasksStarted      atomic.Int64
	tasksCompleted    atomic.Int64
	tasksFailed       atomic.Int64
	cacheHits         atomic.Int64
	totalTaskDuration atomic.Int64 // nanoseconds
}

// BasicMetricsSnapshot is an immutable snapshot of BasicMetrics.
type BasicMetricsSnapshot struct {
	TasksStarted   int64
	TasksCompleted int64
	TasksFailed    int64
	CacheHits      int64

	AvgTaskDuration time.Duration
}

func (m *BasicMetrics) OnTaskStart(ctx context.Context, inv *TaskInvocation) {
	m.tasksStarted.Add(1)
}

func (m *BasicMetrics) OnCacheHit(ctx context.Context, inv *TaskInvocation, source string) {
	m.cacheHits.Add(1)
}

func (m *BasicMetrics) OnTaskCompleted(ctx context.Context, inv *TaskInvocation, err error, d time.Duration) {
	if err != nil {
		m.tasksFailed.Add(1)
		return
	}
	// Only count successful tasks for average duration.
	m.tasksCompleted.Add(1)
	m.totalTaskDuration.Add(d.Nanoseconds())
}

// Snapshot returns a snapshot of the current metrics.
func (m *BasicMetrics) Snapshot() BasicMetricsSnapshot {
	completed := m.tasksCompleted.Load()
	totalNs := m.totalTaskDuration.Load()

	var avg time.Duration
	if completed > 0 {
		avg = time.Duration(totalNs / completed)
	}

	return BasicMetricsSnapshot{
		TasksStarted:    m.tasksStarted.Load(),
		TasksCompleted:  completed,
		TasksFailed:     m.tasksFailed.Load(),
		CacheHits:       m.cacheHits.Load(),
		AvgTaskDuration: avg,
	}
}
