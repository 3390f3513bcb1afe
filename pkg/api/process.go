package api

import (
	"context"
	"errors"
	"fmt"
)

// Classifier is the semantic tag governing how a bound item is exposed to
// the task body.
type Classifier string

const (
	// ValClass binds a scalar value into the script scope.
	ValClass Classifier = "val"
	// EnvClass binds a value as an environment variable of the task.
	EnvClass Classifier = "env"
	// FileClass stages the bound item into the work dir under a target name.
	FileClass Classifier = "file"
	// StdinClass feeds the bound item to the task's standard input.
	StdinClass Classifier = "stdin"
	// SetClass destructures a composite item into declared sub-ports.
	SetClass Classifier = "set"
	// EachClass marks a repeater: the channel's full content is drained once
	// and cross-multiplied against every natural firing.
	EachClass Classifier = "each"
	// StdoutClass is an output-only classifier capturing the task's stdout.
	StdoutClass Classifier = "stdout"
)

// CacheMode selects how file inputs contribute to the cache fingerprint.
type CacheMode string

const (
	// CacheOff disables fingerprinting and forces execution.
	CacheOff CacheMode = "false"
	// CacheStandard fingerprints files by name, size and mtime. Default.
	CacheStandard CacheMode = "true"
	// CacheDeep fingerprints files by full content digest.
	CacheDeep CacheMode = "deep"
)

// ErrorStrategy governs the response to a task whose exit status is not in
// the valid set.
type ErrorStrategy string

const (
	// StrategyTerminate aborts the whole pipeline. Default.
	StrategyTerminate ErrorStrategy = "terminate"
	// StrategyIgnore records the failure and abandons the invocation; its
	// outputs are never produced.
	StrategyIgnore ErrorStrategy = "ignore"
)

// DefaultExecutor is the executor name used when the directive is empty.
const DefaultExecutor = "local"

// Directives is the per-process configuration surface. Zero values mean
// "use the default"; Normalized resolves them.
type Directives struct {
	Cache           CacheMode     `yaml:"cache"`
	Echo            bool          `yaml:"echo"`
	ErrorStrategy   ErrorStrategy `yaml:"errorStrategy"`
	Executor        string        `yaml:"executor"`
	StoreDir        string        `yaml:"storeDir"`
	ValidExitStatus []int         `yaml:"validExitStatus"`
}

// Normalized returns a copy with every empty field replaced by its default:
// cache true, errorStrategy terminate, executor local, validExitStatus {0}.
func (d Directives) Normalized() Directives {
	if d.Cache == "" {
		d.Cache = CacheStandard
	}
	if d.ErrorStrategy == "" {
		d.ErrorStrategy = StrategyTerminate
	}
	if d.Executor == "" {
		d.Executor = DefaultExecutor
	}
	if len(d.ValidExitStatus) == 0 {
		d.ValidExitStatus = []int{0}
	}
	return d
}

// ExitValid reports whether status is an accepted exit status.
func (d Directives) ExitValid(status int) bool {
	for _, s := range d.Normalized().ValidExitStatus {
		if s == status {
			return true
		}
	}
	return false
}

// InputSpec declares one input port of a process.
type InputSpec struct {
	Class Classifier

	// Name is the substitution name in the script scope. Empty for stdin.
	Name string

	// Target is the staged file name pattern for file-classified ports.
	// It may contain * and ? wildcard runs, and may reference other bound
	// input values of the same invocation ("${sample}.fq"). Empty keeps the
	// original base name.
	Target string

	// Source is the explicit source channel. When nil the binder resolves
	// SourceName (or, if that is also empty, Name) against the pipeline's
	// channel registry.
	Source     *Channel
	SourceName string

	// Parts holds the sub-ports of a set-classified input, destructured
	// positionally from the composite item.
	Parts []InputSpec
}

// OutputSpec declares one output port of a process.
type OutputSpec struct {
	Class Classifier

	// Name is the scope variable read for val outputs, and the substitution
	// name in general.
	Name string

	// Pattern is the file name pattern matched against produced files for
	// file outputs. Wildcards expand against existing files.
	Pattern string

	// Dest is the explicit destination channel; when nil the binder resolves
	// DestName (or Name) against the registry.
	Dest     *Channel
	DestName string

	Parts []OutputSpec
}

// ShareSpec declares one share slot: mutable state carried across the
// invocations of a single process definition.
type ShareSpec struct {
	Name string

	// Init is the slot's initial value; nil is permitted.
	Init any

	// Dest, if declared, receives the slot's final value exactly once after
	// the last invocation, after which the channel is closed.
	Dest     *Channel
	DestName string
}

// NativeFunc is an in-process task body. It runs on the calling goroutine
// rather than being dispatched to an executor, but follows the same
// success/output-binding contract: a nil return maps to exit status 0, any
// error to exit status 1. The scope gives access to bound inputs and lets
// the body set variables and write captured stdout.
type NativeFunc func(ctx context.Context, scope *TaskScope) error

// ProcessDefinition is the immutable description of a process. It is created
// once at pipeline build time and never mutated afterwards.
type ProcessDefinition struct {
	Name    string
	Inputs  []InputSpec
	Outputs []OutputSpec
	Shares  []ShareSpec

	// Script is a template over named slots ("$name" / "${name}") resolved
	// against the invocation's bindings immediately before staging. Exactly
	// one of Script and Native must be set.
	Script string
	Native NativeFunc

	Directives Directives
}

// Validate checks the structural invariants of a definition.
func (d *ProcessDefinition) Validate() error {
	if d.Name == "" {
		return errors.New("process name is required")
	}
	if (d.Script == "") == (d.Native == nil) {
		return fmt.Errorf("process %s: exactly one of script and native body is required", d.Name)
	}
	if d.Native != nil && d.Directives.Normalized().Executor != DefaultExecutor {
		return fmt.Errorf("process %s: native bodies run only on the %s executor", d.Name, DefaultExecutor)
	}
	stdin := 0
	for _, in := range d.Inputs {
		switch in.Class {
		case StdinClass:
			stdin++
			// A stdin port has no name, so it cannot bind implicitly.
			if in.Source == nil && in.SourceName == "" {
				return fmt.Errorf("process %s: stdin input requires an explicit source channel", d.Name)
			}
		case StdoutClass:
			return fmt.Errorf("process %s: stdout is not an input classifier", d.Name)
		case SetClass:
			if len(in.Parts) == 0 {
				return fmt.Errorf("process %s: set input %s has no components", d.Name, in.Name)
			}
			for _, p := range in.Parts {
				if p.Class == SetClass || p.Class == EachClass || p.Class == StdinClass {
					return fmt.Errorf("process %s: set input %s: %s component not allowed", d.Name, in.Name, p.Class)
				}
			}
		}
		if in.Class != StdinClass && in.Name == "" {
			return fmt.Errorf("process %s: %s input requires a name", d.Name, in.Class)
		}
	}
	if stdin > 1 {
		return fmt.Errorf("process %s: at most one stdin input is allowed", d.Name)
	}
	for _, out := range d.Outputs {
		switch out.Class {
		case ValClass, StdoutClass:
		case FileClass:
			if out.Pattern == "" {
				return fmt.Errorf("process %s: file output %s requires a pattern", d.Name, out.Name)
			}
		case SetClass:
			if len(out.Parts) == 0 {
				return fmt.Errorf("process %s: set output %s has no components", d.Name, out.Name)
			}
		default:
			return fmt.Errorf("process %s: %s is not an output classifier", d.Name, out.Class)
		}
	}
	return nil
}
