// Package flume provides a lightweight, embeddable dataflow pipeline engine
// for Go.
//
// Flume is built for data-heavy batch work: scientific pipelines, media
// transcoding chains, ETL jobs. Processing steps are connected by typed
// channels, fire automatically as their inputs become ready, and run
// concurrently with result caching. It runs fully in Go and integrates
// cleanly into existing codebases.
//
// # Core Concepts
//
// The Flume programming model is intentionally small and idiomatic:
//
//  1. Pipeline
//  2. Channel
//  3. ProcBuilder
//  4. Executor
//  5. Cache
//
// # Pipeline
//
// A Pipeline owns the channel registry and the registered processes. Run
// starts one trigger loop per process; each loop fires an invocation every
// time all of the process's input channels have an item ready, and stops when
// any of them is exhausted. A single failing invocation terminates the whole
// pipeline unless the process declares otherwise.
//
// # Channel
//
// Channels are unbounded FIFO queues connecting process ports. Ports may
// reference a channel explicitly, or implicitly by name against the
// pipeline's registry. Each process owning an output port closes its
// channels when the process completes, which in turn ends the processes
// downstream.
//
// # ProcBuilder
//
// ProcBuilder provides the ergonomic, declarative API used to define
// processes. A process declares classified input ports (val, env, file,
// stdin, set, each), output ports (val, file, stdout, set), optional shared
// state, and a body:
//
//	flume.NewProc("align").
//	    Val("sample", samples).
//	    FileIn("reads", "${sample}.fq", reads).
//	    OutFile("bam", "*.bam", nil).
//	    Script("bwa mem ref.fa ${reads} > ${sample}.bam").
//	    MustRegister(p)
//
// Script bodies are templates over the bound input names, executed by an
// executor in an isolated per-invocation work dir with file inputs staged
// in. Native bodies are plain Go functions running in-process.
//
// # Executor
//
// An Executor runs prepared tasks. The built-in local executor runs scripts
// under /bin/sh with a bounded worker pool; processes can be routed to other
// registered backends with the executor directive.
//
// # Cache
//
// Every invocation is fingerprinted over its script and bindings. When a
// cache store holds a previous result for the same fingerprint, execution is
// skipped and the recorded outputs are re-emitted. The storeDir directive
// additionally keeps outputs in a permanent directory that short-circuits
// execution across runs. Stores are pluggable: in-memory by default, SQLite
// for durability.
//
// For examples, see the /examples directory or the project README.
package flume
