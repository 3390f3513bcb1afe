// Package api contains the core building blocks used by the flume pipeline
// engine. It provides the low-level primitives for declaring processes,
// connecting them with channels, and observing engine behavior.
//
// Most users interact with the higher-level flume package, which re-exports
// selected types and helpers from this package. The api package is intended
// for advanced use cases, custom integrations, or contributors extending the
// engine itself.
//
// # Concepts
//
// The api package centers around a small set of concepts:
//
//   - Channels
//   - Process definitions
//   - Task invocations
//   - Executors
//   - Observability
//
// # Channels
//
// A Channel is an unbounded FIFO queue connecting process ports. Producers
// send items without blocking; consumers receive them in order with Next, or
// drain a closed channel with Collect. A closed, drained channel yields
// ErrEndOfStream, which is how termination propagates through a pipeline.
//
// # Process Definitions
//
// A ProcessDefinition describes one processing step: its classified input
// ports (val, env, file, stdin, set, each), output ports (val, file, stdout,
// set), optional share slots, a script or native body, and directives.
// Definitions are immutable once constructed and validated before a pipeline
// runs them.
//
// # Task Invocations
//
// A TaskInvocation is one concrete firing of a process: every port bound to
// a value, the script substituted, and a fingerprint computed for caching.
// Its TaskScope carries the bound variables; native bodies read and extend
// the scope directly.
//
// # Executors
//
// The Executor interface is the narrow contract between the engine and an
// execution backend: Submit a prepared task, Await its result, Cancel it.
// The engine never assumes a specific backend, so local pools and remote
// schedulers are interchangeable.
//
// # Observability
//
// The Observer interface reports pipeline, task and cache lifecycle events.
// Ready-made implementations cover structured logging (LoggingObserver),
// in-memory counters (BasicMetrics), and fan-out (CompositeObserver).
//
// # Usage
//
// Most applications should start from the flume package, using Pipeline and
// ProcBuilder. The api package is useful when you need lower-level access or
// when contributing changes to the core engine.
package api
