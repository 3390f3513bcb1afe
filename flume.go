package flume

import (
	"database/sql"

	"github.com/petrijr/flume/internal/cache"
	"github.com/petrijr/flume/internal/config"
	"github.com/petrijr/flume/pkg/api"
)

// Re-export key types so users don't need to dig into pkg/api.

type (
	Channel              = api.Channel
	ProcessDefinition    = api.ProcessDefinition
	InputSpec            = api.InputSpec
	OutputSpec           = api.OutputSpec
	ShareSpec            = api.ShareSpec
	Directives           = api.Directives
	CacheMode            = api.CacheMode
	ErrorStrategy        = api.ErrorStrategy
	TaskInvocation       = api.TaskInvocation
	TaskScope            = api.TaskScope
	TaskResult           = api.TaskResult
	NativeFunc           = api.NativeFunc
	Executor             = api.Executor
	ExecContext          = api.ExecContext
	StagedFile           = api.StagedFile
	Binding              = api.Binding
	Notifier             = api.Notifier
	Notification         = api.Notification
	Observer             = api.Observer
	LoggingObserver      = api.LoggingObserver
	BasicMetrics         = api.BasicMetrics
	BasicMetricsSnapshot = api.BasicMetricsSnapshot
	CompositeObserver    = api.CompositeObserver
	NoopObserver         = api.NoopObserver

	BindingError = api.BindingError
	StagingError = api.StagingError
	ExecError    = api.ExecError

	// Profile holds directive overrides loaded from YAML, applied to
	// registered processes at Run time.
	Profile = config.Profile

	// CacheStore persists task results across runs.
	CacheStore = cache.Store
)

// Re-export construction helpers.

var (
	NewChannel           = api.NewChannel
	NamedChannel         = api.NamedChannel
	ChannelOf            = api.ChannelOf
	NewLoggingObserver   = api.NewLoggingObserver
	NewCompositeObserver = api.NewCompositeObserver
	IsExecError          = api.IsExecError
	LoadProfile          = config.Load
	ParseProfile         = config.Parse
)

// Re-export directive values for convenience.

const (
	CacheOff      = api.CacheOff
	CacheStandard = api.CacheStandard
	CacheDeep     = api.CacheDeep

	StrategyTerminate = api.StrategyTerminate
	StrategyIgnore    = api.StrategyIgnore

	DefaultExecutor = api.DefaultExecutor
)

// ErrEndOfStream is returned by Channel.Next once a channel is closed and
// fully drained.
var ErrEndOfStream = api.ErrEndOfStream

// Cache store constructors
// These wrap the internal/cache package so external callers never need to
// import internal packages.

// NewMemoryCacheStore returns a CacheStore that keeps entries in process
// memory. It is the default when no store is configured.
func NewMemoryCacheStore() CacheStore {
	return cache.NewMemoryStore()
}

// NewSQLiteCacheStore returns a CacheStore that persists entries in a
// SQLite database, so cached results survive across runs.
func NewSQLiteCacheStore(db *sql.DB) (CacheStore, error) {
	return cache.NewSQLiteStore(db)
}
