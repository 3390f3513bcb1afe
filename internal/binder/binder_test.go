package binder

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/petrijr/flume/pkg/api"
)

// testRegistry is a minimal lazily-inserting channel registry.
type testRegistry struct {
	channels map[string]*api.Channel
}

func newTestRegistry() *testRegistry {
	return &testRegistry{channels: make(map[string]*api.Channel)}
}

func (r *testRegistry) Channel(name string) *api.Channel {
	ch, ok := r.channels[name]
	if !ok {
		ch = api.NamedChannel(name)
		r.channels[name] = ch
	}
	return ch
}

func collect(t *testing.T, b *Binder) []*api.TaskInvocation {
	t.Helper()
	var out []*api.TaskInvocation
	n, err := b.Run(context.Background(), func(ctx context.Context, inv *api.TaskInvocation) error {
		out = append(out, inv)
		return nil
	})
	require.NoError(t, err)
	require.Len(t, out, n)
	return out
}

func scopeVal(t *testing.T, inv *api.TaskInvocation, name string) any {
	t.Helper()
	v, ok := inv.Scope.Var(name)
	require.True(t, ok, "scope var %s missing", name)
	return v
}

func TestRun_ZipAcrossDriverPorts(t *testing.T) {
	def := &api.ProcessDefinition{
		Name: "pair",
		Inputs: []api.InputSpec{
			{Class: api.ValClass, Name: "a", Source: api.ChannelOf(1, 2, 3)},
			{Class: api.ValClass, Name: "b", Source: api.ChannelOf("x", "y", "z")},
		},
		Script: "echo $a $b",
	}

	invs := collect(t, New(def, newTestRegistry()))
	require.Len(t, invs, 3)

	require.Equal(t, "echo 1 x", invs[0].Script)
	require.Equal(t, "echo 2 y", invs[1].Script)
	require.Equal(t, "echo 3 z", invs[2].Script)
}

func TestRun_TerminatesOnShortestChannel(t *testing.T) {
	def := &api.ProcessDefinition{
		Name: "short",
		Inputs: []api.InputSpec{
			{Class: api.ValClass, Name: "a", Source: api.ChannelOf(1, 2, 3, 4)},
			{Class: api.ValClass, Name: "b", Source: api.ChannelOf("x", "y")},
		},
		Script: "echo $a$b",
	}

	invs := collect(t, New(def, newTestRegistry()))
	require.Len(t, invs, 2)
}

func TestRun_RepeaterCartesianOrder(t *testing.T) {
	def := &api.ProcessDefinition{
		Name: "combos",
		Inputs: []api.InputSpec{
			{Class: api.ValClass, Name: "shape", Source: api.ChannelOf("circle")},
			{Class: api.EachClass, Name: "color", Source: api.ChannelOf("red", "blue")},
			{Class: api.EachClass, Name: "size", Source: api.ChannelOf(1, 2)},
		},
		Script: "draw $shape $color $size",
	}

	invs := collect(t, New(def, newTestRegistry()))
	require.Len(t, invs, 4)

	// First-declared repeater varies slowest.
	require.Equal(t, "draw circle red 1", invs[0].Script)
	require.Equal(t, "draw circle red 2", invs[1].Script)
	require.Equal(t, "draw circle blue 1", invs[2].Script)
	require.Equal(t, "draw circle blue 2", invs[3].Script)

	for i, inv := range invs {
		require.Equal(t, i, inv.Index)
	}
}

func TestRun_OnlyRepeatersFiresProductOnce(t *testing.T) {
	def := &api.ProcessDefinition{
		Name: "pure-each",
		Inputs: []api.InputSpec{
			{Class: api.EachClass, Name: "mode", Source: api.ChannelOf("fast", "slow", "exact")},
		},
		Script: "run --$mode",
	}

	invs := collect(t, New(def, newTestRegistry()))
	require.Len(t, invs, 3)
	require.Equal(t, "run --fast", invs[0].Script)
	require.Equal(t, "run --exact", invs[2].Script)
}

func TestRun_EmptyRepeaterYieldsNoInvocations(t *testing.T) {
	def := &api.ProcessDefinition{
		Name: "empty-each",
		Inputs: []api.InputSpec{
			{Class: api.ValClass, Name: "x", Source: api.ChannelOf(1, 2)},
			{Class: api.EachClass, Name: "mode", Source: api.ChannelOf()},
		},
		Script: "echo $x $mode",
	}

	invs := collect(t, New(def, newTestRegistry()))
	require.Empty(t, invs)
}

func TestRun_SetDestructuring(t *testing.T) {
	def := &api.ProcessDefinition{
		Name: "tuple",
		Inputs: []api.InputSpec{
			{
				Class: api.SetClass,
				Name:  "pair",
				Source: api.ChannelOf(
					[]any{"s1", "/data/s1.fq"},
					[]any{"s2", "/data/s2.fq"},
				),
				Parts: []api.InputSpec{
					{Class: api.ValClass, Name: "sample"},
					{Class: api.FileClass, Name: "reads", Target: "input.fq"},
				},
			},
		},
		Script: "align $sample $reads",
	}

	invs := collect(t, New(def, newTestRegistry()))
	require.Len(t, invs, 2)
	require.Equal(t, "align s1 input.fq", invs[0].Script)
	require.Equal(t, "s2", scopeVal(t, invs[1], "sample"))

	var fileBinding *api.Binding
	for i := range invs[0].Bindings {
		if invs[0].Bindings[i].Spec.Class == api.FileClass {
			fileBinding = &invs[0].Bindings[i]
		}
	}
	require.NotNil(t, fileBinding)
	require.Equal(t, []api.StagedFile{{Source: "/data/s1.fq", Name: "input.fq"}}, fileBinding.Files)
}

func TestRun_SetShapeMismatch(t *testing.T) {
	def := &api.ProcessDefinition{
		Name: "tuple",
		Inputs: []api.InputSpec{
			{
				Class:  api.SetClass,
				Name:   "pair",
				Source: api.ChannelOf([]any{"only-one"}),
				Parts: []api.InputSpec{
					{Class: api.ValClass, Name: "a"},
					{Class: api.ValClass, Name: "b"},
				},
			},
		},
		Script: "echo $a $b",
	}

	_, err := New(def, newTestRegistry()).Run(context.Background(), func(ctx context.Context, inv *api.TaskInvocation) error {
		return nil
	})
	require.Error(t, err)

	var be *api.BindingError
	require.ErrorAs(t, err, &be)
	require.Equal(t, "tuple", be.Process)
}

func TestRun_ParametricFileTarget(t *testing.T) {
	def := &api.ProcessDefinition{
		Name: "rename",
		Inputs: []api.InputSpec{
			{Class: api.ValClass, Name: "sample", Source: api.ChannelOf("s42")},
			{Class: api.FileClass, Name: "reads", Target: "${sample}.fq", Source: api.ChannelOf("/data/raw.fq")},
		},
		Script: "head $reads",
	}

	invs := collect(t, New(def, newTestRegistry()))
	require.Len(t, invs, 1)
	require.Equal(t, "head s42.fq", invs[0].Script)
}

func TestRun_FileCollectionStaging(t *testing.T) {
	def := &api.ProcessDefinition{
		Name: "merge",
		Inputs: []api.InputSpec{
			{Class: api.FileClass, Name: "chunks", Target: "seq?.fa",
				Source: api.ChannelOf([]string{"/d/a.fa", "/d/b.fa", "/d/c.fa"})},
		},
		Script: "cat $chunks",
	}

	invs := collect(t, New(def, newTestRegistry()))
	require.Len(t, invs, 1)
	require.Equal(t, "cat seq1.fa seq2.fa seq3.fa", invs[0].Script)
}

func TestRun_ImplicitChannelByName(t *testing.T) {
	reg := newTestRegistry()
	ch := reg.Channel("samples")
	ch.Send("alpha")
	ch.Close()

	def := &api.ProcessDefinition{
		Name: "implicit",
		Inputs: []api.InputSpec{
			// No explicit source: binds to the registry channel of the
			// same name.
			{Class: api.ValClass, Name: "samples"},
		},
		Script: "echo $samples",
	}

	invs := collect(t, New(def, reg))
	require.Len(t, invs, 1)
	require.Equal(t, "echo alpha", invs[0].Script)
}
