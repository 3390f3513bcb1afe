// Package binder implements the dataflow trigger of the engine: it watches
// the input channels of one process definition and materializes task
// invocations whenever a complete binding set is available.
package binder

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"

	"github.com/petrijr/flume/internal/staging"
	"github.com/petrijr/flume/pkg/api"
)

// ChannelResolver resolves a channel name against the pipeline's registry,
// creating the channel lazily on first reference.
type ChannelResolver interface {
	Channel(name string) *api.Channel
}

// EmitFunc receives each materialized invocation, in generation order.
type EmitFunc func(ctx context.Context, inv *api.TaskInvocation) error

// Binder runs the matching loop of one process definition.
type Binder struct {
	def      *api.ProcessDefinition
	resolver ChannelResolver
}

// New creates a Binder for def.
func New(def *api.ProcessDefinition, resolver ChannelResolver) *Binder {
	return &Binder{def: def, resolver: resolver}
}

// Run drains the repeater channels, then performs a synchronized zip across
// the non-repeater input channels. Each natural firing is expanded into the
// cartesian product of the repeater collections, first-declared repeater
// varying slowest, and emit is called once per expanded invocation.
//
// Run returns the number of invocations emitted. It terminates cleanly once
// any non-repeater channel is exhausted, and with an error if emit fails,
// the context is cancelled, or a binding is malformed.
func (b *Binder) Run(ctx context.Context, emit EmitFunc) (int, error) {
	// Repeater collections are fully materialized before any firing begins.
	// This is a documented precondition: a repeater channel must be closed
	// by its producer or the binder will wait here forever.
	repeaters, err := b.drainRepeaters(ctx)
	if err != nil {
		return 0, err
	}

	var drivers []api.InputSpec
	for _, in := range b.def.Inputs {
		if in.Class != api.EachClass {
			drivers = append(drivers, in)
		}
	}

	fired := 0
	for {
		bound, ok, err := b.nextDriverSet(ctx, drivers)
		if err != nil {
			return fired, err
		}
		if !ok {
			return fired, nil
		}

		n, err := b.expand(ctx, bound, repeaters, fired, emit)
		fired += n
		if err != nil {
			return fired, err
		}

		// A process with no driving ports fires its expansion exactly once.
		if len(drivers) == 0 {
			return fired, nil
		}
	}
}

// drainRepeaters collects the full content of every each-classified channel,
// in declaration order.
func (b *Binder) drainRepeaters(ctx context.Context) ([]repeater, error) {
	var reps []repeater
	for _, in := range b.def.Inputs {
		if in.Class != api.EachClass {
			continue
		}
		items, err := b.source(in.Name, in.Source, in.SourceName).Collect(ctx)
		if err != nil {
			return nil, fmt.Errorf("process %s: draining repeater %s: %w", b.def.Name, in.Name, err)
		}
		reps = append(reps, repeater{spec: in, items: items})
	}
	return reps, nil
}

type repeater struct {
	spec  api.InputSpec
	items []any
}

// nextDriverSet consumes one item from every non-repeater port. It returns
// ok=false once any port's channel is exhausted, which terminates the
// process.
func (b *Binder) nextDriverSet(ctx context.Context, drivers []api.InputSpec) ([]api.Binding, bool, error) {
	bound := make([]api.Binding, 0, len(drivers))
	for _, spec := range drivers {
		item, err := b.source(spec.Name, spec.Source, spec.SourceName).Next(ctx)
		if errors.Is(err, api.ErrEndOfStream) {
			return nil, false, nil
		}
		if err != nil {
			return nil, false, err
		}

		if spec.Class == api.SetClass {
			parts, err := destructure(b.def.Name, spec, item)
			if err != nil {
				return nil, false, err
			}
			bound = append(bound, parts...)
			continue
		}
		bound = append(bound, api.Binding{Spec: spec, Value: item})
	}
	return bound, true, nil
}

// destructure splits a composite item positionally into a set's sub-ports.
func destructure(process string, spec api.InputSpec, item any) ([]api.Binding, error) {
	tuple, ok := item.([]any)
	if !ok {
		return nil, api.NewBindingError(process, spec.Name, "set expects a composite item, got %T", item)
	}
	if len(tuple) != len(spec.Parts) {
		return nil, api.NewBindingError(process, spec.Name,
			"set expects %d components, got %d", len(spec.Parts), len(tuple))
	}
	bound := make([]api.Binding, len(tuple))
	for i, part := range spec.Parts {
		bound[i] = api.Binding{Spec: part, Value: tuple[i]}
	}
	return bound, nil
}

// expand emits one invocation per combination of the repeater collections.
// Combinations are enumerated in lexicographic order of the declared
// repeater order: the first-declared repeater varies slowest.
func (b *Binder) expand(ctx context.Context, driverBound []api.Binding, reps []repeater, base int, emit EmitFunc) (int, error) {
	if len(reps) == 0 {
		inv, err := b.materialize(driverBound, base)
		if err != nil {
			return 0, err
		}
		return 1, emit(ctx, inv)
	}

	idx := make([]int, len(reps))
	for _, r := range reps {
		if len(r.items) == 0 {
			// An empty repeater collection yields an empty product.
			return 0, nil
		}
	}

	fired := 0
	for {
		combined := make([]api.Binding, 0, len(driverBound)+len(reps))
		combined = append(combined, driverBound...)
		for i, r := range reps {
			combined = append(combined, api.Binding{Spec: r.spec, Value: r.items[idx[i]]})
		}

		inv, err := b.materialize(combined, base+fired)
		if err != nil {
			return fired, err
		}
		fired++
		if err := emit(ctx, inv); err != nil {
			return fired, err
		}

		// Odometer increment, last repeater fastest.
		pos := len(idx) - 1
		for pos >= 0 {
			idx[pos]++
			if idx[pos] < len(reps[pos].items) {
				break
			}
			idx[pos] = 0
			pos--
		}
		if pos < 0 {
			return fired, nil
		}
	}
}

// materialize turns one complete binding set into a TaskInvocation: it
// resolves parametric file target names, computes staged names, builds the
// task scope, and substitutes the script template.
func (b *Binder) materialize(bound []api.Binding, index int) (*api.TaskInvocation, error) {
	scope := api.NewTaskScope()

	// Non-file bindings enter the scope first so that parametric file
	// target names can reference them.
	for _, bd := range bound {
		if bd.Spec.Class == api.FileClass || bd.Spec.Class == api.StdinClass {
			continue
		}
		scope.SetVar(bd.Spec.Name, bd.Value)
	}

	for i := range bound {
		bd := &bound[i]
		if bd.Spec.Class != api.FileClass {
			continue
		}

		originals := fileList(bd.Value)
		if len(originals) == 0 {
			return nil, api.NewBindingError(b.def.Name, bd.Spec.Name, "file port bound to empty item")
		}

		target := os.Expand(bd.Spec.Target, scope.Lookup)
		names, err := staging.Resolve(target, originals)
		if err != nil {
			return nil, api.NewBindingError(b.def.Name, bd.Spec.Name, "%v", err)
		}

		bd.Files = make([]api.StagedFile, len(originals))
		for j, src := range originals {
			bd.Files[j] = api.StagedFile{Source: src, Name: names[j]}
		}
		scope.SetVar(bd.Spec.Name, strings.Join(names, " "))
	}

	// Share-bearing processes are substituted later, once the share manager
	// has seeded the slot values into the scope.
	script := ""
	if b.def.Native == nil && len(b.def.Shares) == 0 {
		script = os.Expand(b.def.Script, scope.Lookup)
	}

	return &api.TaskInvocation{
		ID:         uuid.NewString(),
		Process:    b.def.Name,
		Index:      index,
		Bindings:   bound,
		Script:     script,
		Scope:      scope,
		Directives: b.def.Directives,
		Native:     b.def.Native,
	}, nil
}

func (b *Binder) source(portName string, explicit *api.Channel, sourceName string) *api.Channel {
	if explicit != nil {
		return explicit
	}
	name := sourceName
	if name == "" {
		// An input whose name matches a channel in scope binds to it
		// implicitly.
		name = portName
	}
	return b.resolver.Channel(name)
}

// fileList normalizes a file port's bound item into a list of source paths.
func fileList(v any) []string {
	switch t := v.(type) {
	case string:
		return []string{t}
	case []string:
		return t
	case []any:
		out := make([]string, 0, len(t))
		for _, e := range t {
			out = append(out, fmt.Sprint(e))
		}
		return out
	default:
		if v == nil {
			return nil
		}
		return []string{fmt.Sprint(v)}
	}
}
