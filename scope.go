// scope.go — lexical binding frames and the frame pool.
//
// A Scope is one execution frame: local bindings, positional arguments, the
// implicit receiver, and a parent link used for lookup only — a child
// references its parent, never owns it, and one parent may be shared by many
// children (closures). The parent chain must stay acyclic; constructing a
// cycle explicitly is a fatal construction error, while the pool silently
// falls back to a fresh allocation when reuse would create one.
//
// Pools are per execution (one Runner, one pool) and therefore confined to
// the goroutine driving that execution; independent top-level executions
// never share pooled frames.
package lyng

import "sync/atomic"

// accessKind is the declared access of a delegated binding, reported to the
// delegate's onBind hook.
type accessKind int

const (
	accessRead accessKind = iota
	accessReadWrite
	accessCall
)

func (k accessKind) String() string {
	switch k {
	case accessReadWrite:
		return "readwrite"
	case accessCall:
		return "call"
	}
	return "read"
}

// binding is one name→value record. Mutated only when mutable. A binding
// with deleg set forwards reads/writes/invokes to the delegate object.
type binding struct {
	val     Value
	mutable bool
	deleg   Value
	typeAnn string // declared type, metadata only
}

var frameCounter atomic.Uint64

// Scope is a lexical binding frame.
type Scope struct {
	parent  *Scope
	vars    map[string]*binding
	args    []Value
	recv    Value
	hasRecv bool
	id      uint64
	imports []*ModuleScope

	// captured marks frames referenced by a closure, class or task; they
	// must never return to the pool.
	captured bool
}

// markCaptured pins s and its whole parent chain out of the pool. A closure
// keeps its defining chain alive, so every frame on it is pinned.
func markCaptured(s *Scope) {
	for p := s; p != nil && !p.captured; p = p.parent {
		p.captured = true
	}
}

// NewScope creates a fresh frame under parent (which may be nil for roots).
func NewScope(parent *Scope) *Scope {
	return &Scope{
		parent: parent,
		vars:   map[string]*binding{},
		id:     frameCounter.Add(1),
	}
}

// ID is the frame's monotonically increasing identity.
func (s *Scope) ID() uint64 { return s.id }

// Parent exposes the lookup chain.
func (s *Scope) Parent() *Scope { return s.parent }

// chainContains reports whether target occurs in s's parent chain
// (including s itself).
func chainContains(s, target *Scope) bool {
	for p := s; p != nil; p = p.parent {
		if p == target {
			return true
		}
	}
	return false
}

// Reparent relinks the frame under a new parent. Creating a cycle this way
// is a programming error in the host and fails hard.
func (s *Scope) Reparent(parent *Scope) {
	if parent != nil && chainContains(parent, s) {
		panic("lyng: scope reparenting would create a parent-chain cycle")
	}
	s.parent = parent
}

// Define binds name in this frame, shadowing outer bindings.
func (s *Scope) Define(name string, v Value, mutable bool) {
	s.vars[name] = &binding{val: v, mutable: mutable}
}

// DefineTyped is Define plus the recorded (never enforced) type annotation.
func (s *Scope) DefineTyped(name string, v Value, mutable bool, typeAnn string) {
	s.vars[name] = &binding{val: v, mutable: mutable, typeAnn: typeAnn}
}

// AddImport makes a module scope reachable from lookups through this frame.
func (s *Scope) AddImport(m *ModuleScope) {
	s.imports = append(s.imports, m)
}

// lookupBinding walks the parent chain and, at every frame, the imported
// module scopes (transitively). The nearest hit wins.
func (s *Scope) lookupBinding(name string) (*binding, bool) {
	for p := s; p != nil; p = p.parent {
		if b, ok := p.vars[name]; ok {
			return b, true
		}
		for _, m := range p.imports {
			if b, ok := m.lookupExported(name, map[*ModuleScope]bool{}); ok {
				return b, true
			}
		}
	}
	return nil, false
}

// Get retrieves a visible plain binding. Delegated bindings are resolved by
// the runner, not here; Get reports them as not found for host callers.
func (s *Scope) Get(name string) (Value, bool) {
	b, ok := s.lookupBinding(name)
	if !ok || b.deleg.Data != nil {
		return Value{}, false
	}
	return b.val, true
}

// receiver resolves the innermost implicit receiver.
func (s *Scope) receiver() (Value, bool) {
	for p := s; p != nil; p = p.parent {
		if p.hasRecv {
			return p.recv, true
		}
	}
	return Value{}, false
}

// reset clears the frame for pool reuse. Bindings are dropped so released
// frames never leak values across borrows.
func (s *Scope) reset() {
	for k := range s.vars {
		delete(s.vars, k)
	}
	s.args = nil
	s.recv = Value{}
	s.hasRecv = false
	s.parent = nil
	s.imports = nil
}

// ----- frame pool -----

// scopePool recycles call frames for one execution. It is not safe for
// concurrent use; every Runner owns exactly one.
type scopePool struct {
	free []*Scope

	// counters observable in tests
	borrows uint64
	fresh   uint64
}

// get borrows a frame parented at parent. If the only available frame
// already occurs in parent's chain (possible under recursive or
// self-referential constructs) the pool allocates fresh instead of
// producing a cyclic chain.
func (p *scopePool) get(parent *Scope) *Scope {
	p.borrows++
	for n := len(p.free) - 1; n >= 0; n-- {
		cand := p.free[n]
		if parent != nil && chainContains(parent, cand) {
			continue
		}
		p.free = append(p.free[:n], p.free[n+1:]...)
		cand.parent = parent
		cand.id = frameCounter.Add(1)
		return cand
	}
	p.fresh++
	return NewScope(parent)
}

// put releases a frame back to the pool after clearing its bindings.
// Captured frames are left alone: a closure still sees them.
func (p *scopePool) put(s *Scope) {
	if s == nil || s.captured {
		return
	}
	s.reset()
	p.free = append(p.free, s)
}
