package engine

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/petrijr/flume/internal/cache"
	"github.com/petrijr/flume/pkg/api"
)

// extractOutputs reads every declared output of a finished invocation:
// val from the task scope, file by matching the declared pattern against
// files actually produced in the work dir, stdout from the captured output,
// and set as a composite of its components.
func extractOutputs(def *api.ProcessDefinition, inv *api.TaskInvocation, stdout string) ([]cache.OutputValue, error) {
	out := make([]cache.OutputValue, 0, len(def.Outputs))
	for _, spec := range def.Outputs {
		v, err := extractOne(def, inv, spec, stdout)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func extractOne(def *api.ProcessDefinition, inv *api.TaskInvocation, spec api.OutputSpec, stdout string) (cache.OutputValue, error) {
	v := cache.OutputValue{Name: spec.Name, Class: string(spec.Class)}

	switch spec.Class {
	case api.ValClass:
		val, ok := inv.Scope.Var(spec.Name)
		if !ok {
			return v, api.NewBindingError(def.Name, spec.Name, "val output not bound in task scope")
		}
		v.Value = val

	case api.StdoutClass:
		v.Value = stdout

	case api.FileClass:
		pattern := os.Expand(spec.Pattern, inv.Scope.Lookup)
		matches, err := filepath.Glob(filepath.Join(inv.WorkDir, pattern))
		if err != nil {
			return v, api.NewBindingError(def.Name, spec.Name, "bad output pattern %q: %v", pattern, err)
		}
		if len(matches) == 0 {
			return v, &api.StagingError{Process: def.Name, Pattern: pattern, WorkDir: inv.WorkDir}
		}
		v.Files = matches

	case api.SetClass:
		parts := make([]any, 0, len(spec.Parts))
		for _, p := range spec.Parts {
			pv, err := extractOne(def, inv, p, stdout)
			if err != nil {
				return v, err
			}
			parts = append(parts, outputItem(pv))
		}
		v.Value = parts

	default:
		return v, fmt.Errorf("process %s: %s is not an output classifier", def.Name, spec.Class)
	}
	return v, nil
}

// outputItem converts a recorded output into the item sent downstream: the
// scalar for val/stdout/set, the single path for one matched file, and the
// path list when a pattern matched several.
func outputItem(v cache.OutputValue) any {
	if v.Class == string(api.FileClass) {
		if len(v.Files) == 1 {
			return v.Files[0]
		}
		return v.Files
	}
	return v.Value
}

// publishOutputs sends each recorded output onto its declared channel, in
// declaration order. It is used both after fresh execution and when
// replaying a cache or storeDir hit.
func publishOutputs(def *api.ProcessDefinition, resolver channelResolver, outputs []cache.OutputValue) {
	for i, spec := range def.Outputs {
		if i >= len(outputs) {
			return
		}
		outputChannel(spec, resolver).Send(outputItem(outputs[i]))
	}
}

// filePatterns collects the expanded file output patterns of def, in
// declaration order, descending into set components. The storeDir lookup is
// keyed on these.
func filePatterns(def *api.ProcessDefinition, inv *api.TaskInvocation) []string {
	var patterns []string
	var walk func(specs []api.OutputSpec)
	walk = func(specs []api.OutputSpec) {
		for _, spec := range specs {
			switch spec.Class {
			case api.FileClass:
				patterns = append(patterns, os.Expand(spec.Pattern, inv.Scope.Lookup))
			case api.SetClass:
				walk(spec.Parts)
			}
		}
	}
	walk(def.Outputs)
	return patterns
}

// outputsFromDir binds declared outputs directly from a storeDir hit. File
// outputs take the matched store paths in the same traversal order as
// filePatterns; val outputs read the task scope; stdout outputs are empty
// since no execution happened.
func outputsFromDir(def *api.ProcessDefinition, inv *api.TaskInvocation, matches [][]string) []cache.OutputValue {
	next := 0
	var bindOne func(spec api.OutputSpec) cache.OutputValue
	bindOne = func(spec api.OutputSpec) cache.OutputValue {
		v := cache.OutputValue{Name: spec.Name, Class: string(spec.Class)}
		switch spec.Class {
		case api.FileClass:
			if next < len(matches) {
				v.Files = matches[next]
				next++
			}
		case api.ValClass:
			v.Value, _ = inv.Scope.Var(spec.Name)
		case api.StdoutClass:
			v.Value = ""
		case api.SetClass:
			parts := make([]any, 0, len(spec.Parts))
			for _, p := range spec.Parts {
				parts = append(parts, outputItem(bindOne(p)))
			}
			v.Value = parts
		}
		return v
	}

	out := make([]cache.OutputValue, 0, len(def.Outputs))
	for _, spec := range def.Outputs {
		out = append(out, bindOne(spec))
	}
	return out
}

func outputChannel(spec api.OutputSpec, resolver channelResolver) *api.Channel {
	if spec.Dest != nil {
		return spec.Dest
	}
	name := spec.DestName
	if name == "" {
		// Unnamed destination falls back to the same-named channel.
		name = spec.Name
	}
	return resolver.Channel(name)
}
