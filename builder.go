package flume

import (
	"fmt"

	"github.com/petrijr/flume/pkg/api"
)

// ProcBuilder provides a fluent API for defining processes:
//
//	flume.NewProc("trim").
//	    FileIn("reads", "${sample}.fq", reads).
//	    Val("sample", samples).
//	    OutFile("trimmed", "*.trimmed.fq", nil).
//	    Script("trim_galore ${reads}").
//	    MustRegister(p)
//
// A nil channel on a port means the port binds implicitly, by name, against
// the pipeline's channel registry at run time.
type ProcBuilder struct {
	def api.ProcessDefinition
}

// NewProc creates a new process builder with the given name.
func NewProc(name string) *ProcBuilder {
	if name == "" {
		panic("flume: process name must not be empty")
	}
	return &ProcBuilder{def: api.ProcessDefinition{Name: name}}
}

// Name returns the process name.
func (b *ProcBuilder) Name() string {
	return b.def.Name
}

// Val declares a scalar input available in the script scope as ${name}.
func (b *ProcBuilder) Val(name string, src *Channel) *ProcBuilder {
	b.def.Inputs = append(b.def.Inputs, api.InputSpec{
		Class: api.ValClass, Name: name, Source: src,
	})
	return b
}

// Env declares an input exposed to the task as an environment variable.
func (b *ProcBuilder) Env(name string, src *Channel) *ProcBuilder {
	b.def.Inputs = append(b.def.Inputs, api.InputSpec{
		Class: api.EnvClass, Name: name, Source: src,
	})
	return b
}

// FileIn declares a file input staged into the work dir. Target is the
// staged name pattern; empty keeps the original base name. It may reference
// other bound values of the same invocation ("${sample}.fq").
func (b *ProcBuilder) FileIn(name, target string, src *Channel) *ProcBuilder {
	b.def.Inputs = append(b.def.Inputs, api.InputSpec{
		Class: api.FileClass, Name: name, Target: target, Source: src,
	})
	return b
}

// Stdin declares the input fed to the task's standard input. At most one
// stdin port is allowed per process, and it needs an explicit source
// channel: a stdin port has no name to bind implicitly.
func (b *ProcBuilder) Stdin(src *Channel) *ProcBuilder {
	b.def.Inputs = append(b.def.Inputs, api.InputSpec{
		Class: api.StdinClass, Source: src,
	})
	return b
}

// Each declares a repeater: the channel's full content is drained once and
// cross-multiplied against every natural firing of the process.
func (b *ProcBuilder) Each(name string, src *Channel) *ProcBuilder {
	b.def.Inputs = append(b.def.Inputs, api.InputSpec{
		Class: api.EachClass, Name: name, Source: src,
	})
	return b
}

// Set declares a composite input destructured positionally into parts. Build
// the parts with ValPart, EnvPart and FilePart.
func (b *ProcBuilder) Set(name string, src *Channel, parts ...InputSpec) *ProcBuilder {
	if len(parts) == 0 {
		panic(fmt.Sprintf("flume: set input %q has no components", name))
	}
	b.def.Inputs = append(b.def.Inputs, api.InputSpec{
		Class: api.SetClass, Name: name, Source: src, Parts: parts,
	})
	return b
}

// ValPart builds a scalar component of a set input.
func ValPart(name string) InputSpec {
	return api.InputSpec{Class: api.ValClass, Name: name}
}

// EnvPart builds an environment-variable component of a set input.
func EnvPart(name string) InputSpec {
	return api.InputSpec{Class: api.EnvClass, Name: name}
}

// FilePart builds a file component of a set input.
func FilePart(name, target string) InputSpec {
	return api.InputSpec{Class: api.FileClass, Name: name, Target: target}
}

// OutVal declares a scalar output read from the scope variable of the same
// name after the task completes.
func (b *ProcBuilder) OutVal(name string, dest *Channel) *ProcBuilder {
	b.def.Outputs = append(b.def.Outputs, api.OutputSpec{
		Class: api.ValClass, Name: name, Dest: dest,
	})
	return b
}

// OutFile declares a file output matched against the work dir with pattern.
// A pattern matching no produced files fails the invocation.
func (b *ProcBuilder) OutFile(name, pattern string, dest *Channel) *ProcBuilder {
	b.def.Outputs = append(b.def.Outputs, api.OutputSpec{
		Class: api.FileClass, Name: name, Pattern: pattern, Dest: dest,
	})
	return b
}

// OutStdout declares an output carrying the task's captured standard output.
func (b *ProcBuilder) OutStdout(name string, dest *Channel) *ProcBuilder {
	b.def.Outputs = append(b.def.Outputs, api.OutputSpec{
		Class: api.StdoutClass, Name: name, Dest: dest,
	})
	return b
}

// OutSet declares a composite output assembled from parts and sent as a
// single item. Build the parts with OutValPart and OutFilePart.
func (b *ProcBuilder) OutSet(name string, dest *Channel, parts ...OutputSpec) *ProcBuilder {
	if len(parts) == 0 {
		panic(fmt.Sprintf("flume: set output %q has no components", name))
	}
	b.def.Outputs = append(b.def.Outputs, api.OutputSpec{
		Class: api.SetClass, Name: name, Dest: dest, Parts: parts,
	})
	return b
}

// OutValPart builds a scalar component of a set output.
func OutValPart(name string) OutputSpec {
	return api.OutputSpec{Class: api.ValClass, Name: name}
}

// OutFilePart builds a file component of a set output.
func OutFilePart(name, pattern string) OutputSpec {
	return api.OutputSpec{Class: api.FileClass, Name: name, Pattern: pattern}
}

// Share declares a mutable slot carried across invocations of this process.
// The slot's final value is emitted once after the last invocation, to dest
// when non-nil and to the registry channel of the same name otherwise.
func (b *ProcBuilder) Share(name string, init any, dest *Channel) *ProcBuilder {
	b.def.Shares = append(b.def.Shares, api.ShareSpec{
		Name: name, Init: init, Dest: dest, DestName: name,
	})
	return b
}

// Script sets the shell script body. The script is a template over the bound
// input names ("$name" / "${name}") resolved per invocation.
func (b *ProcBuilder) Script(script string) *ProcBuilder {
	b.def.Script = script
	return b
}

// Native sets an in-process task body instead of a script. Native bodies run
// on the engine's goroutine and always use the local executor.
func (b *ProcBuilder) Native(fn NativeFunc) *ProcBuilder {
	b.def.Native = fn
	return b
}

// Cache sets the cache mode directive.
func (b *ProcBuilder) Cache(mode CacheMode) *ProcBuilder {
	b.def.Directives.Cache = mode
	return b
}

// Echo makes the task's stdout stream to the pipeline's stdout writer in
// addition to being captured.
func (b *ProcBuilder) Echo() *ProcBuilder {
	b.def.Directives.Echo = true
	return b
}

// OnError sets the error strategy directive.
func (b *ProcBuilder) OnError(strategy ErrorStrategy) *ProcBuilder {
	b.def.Directives.ErrorStrategy = strategy
	return b
}

// Executor routes this process's tasks to the named execution backend.
func (b *ProcBuilder) Executor(name string) *ProcBuilder {
	b.def.Directives.Executor = name
	return b
}

// StoreDir sets the permanent output directory. Completed outputs are copied
// there, and later runs matching the declared patterns skip execution.
func (b *ProcBuilder) StoreDir(dir string) *ProcBuilder {
	b.def.Directives.StoreDir = dir
	return b
}

// ValidExit replaces the set of exit statuses treated as success.
func (b *ProcBuilder) ValidExit(statuses ...int) *ProcBuilder {
	b.def.Directives.ValidExitStatus = statuses
	return b
}

// Definition returns the underlying ProcessDefinition.
// Typically used when interacting with lower-level APIs.
func (b *ProcBuilder) Definition() *ProcessDefinition {
	def := b.def
	return &def
}

// Register validates the definition and adds it to the pipeline.
func (b *ProcBuilder) Register(p *Pipeline) error {
	return p.Register(b.Definition())
}

// MustRegister is Register, panicking on error. Intended for pipeline
// construction code where a bad definition is a programming mistake.
func (b *ProcBuilder) MustRegister(p *Pipeline) {
	if err := b.Register(p); err != nil {
		panic(fmt.Sprintf("flume: %v", err))
	}
}
