package engine

import (
	"os"
	"sync"

	"github.com/petrijr/flume/pkg/api"
)

// shareManager owns the share slots of one share-bearing process definition.
// It serializes invocations: at most one task of the process executes at a
// time, trading parallelism for correctness of the shared mutable state.
type shareManager struct {
	def *api.ProcessDefinition

	mu    sync.Mutex
	slots map[string]any
}

func newShareManager(def *api.ProcessDefinition) *shareManager {
	if len(def.Shares) == 0 {
		return nil
	}
	m := &shareManager{
		def:   def,
		slots: make(map[string]any, len(def.Shares)),
	}
	for _, s := range def.Shares {
		m.slots[s.Name] = s.Init
	}
	return m
}

// run executes fn under the process-wide mutual exclusion. It seeds the
// invocation scope with the current slot values, substitutes the script
// template now that the slots are visible in the scope, and folds any scope
// mutation of a slot name back into the slot afterwards.
func (m *shareManager) run(inv *api.TaskInvocation, fn func() error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for name, v := range m.slots {
		inv.Scope.SetVar(name, v)
	}
	if m.def.Native == nil {
		// The binder leaves share-bearing scripts unsubstituted; the slot
		// values only exist once this invocation holds the lock.
		inv.Script = os.Expand(m.def.Script, inv.Scope.Lookup)
	}

	err := fn()
	if err != nil {
		return err
	}

	for name := range m.slots {
		if v, ok := inv.Scope.Var(name); ok {
			m.slots[name] = v
		}
	}
	return nil
}

// finish emits each slot's final value onto its declared output channel
// exactly once, then closes that channel. Called after the last invocation.
func (m *shareManager) finish(resolver channelResolver) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, s := range m.def.Shares {
		ch := s.Dest
		if ch == nil {
			name := s.DestName
			if name == "" {
				continue
			}
			ch = resolver.Channel(name)
		}
		ch.Send(m.slots[s.Name])
		ch.Close()
	}
}
