// modules.go — the package registry.
//
// Packages are registered as source text or as native builders and built
// lazily on first import. Registration is idempotent: registering a name
// twice is an error, whatever the variant; AppendSource grows an existing
// source package by another declaration fragment instead. A successful
// build is memoized forever — every importer receives the identical
// *ModuleScope — while a failed build is never cached: the next import
// retries from scratch.
//
// Racing imports of the same package are deduplicated with singleflight so
// the builder runs at most once per attempt, whatever the number of
// concurrent importers. Cycle detection rides on the context: every import
// appends its package name to the chain carried by ctx, and re-entering a
// name already on the chain is a hard error rather than a deadlock.
package lyng

import (
	"context"
	"fmt"
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// BuildFn populates a native package's scope on first import.
type BuildFn func(r *Runner, m *ModuleScope) error

// ModuleScope is the exported face of a built package: its top-level scope
// plus the packages it re-exports (a package importing another exposes the
// latter's symbols to its own importers, transitively).
type ModuleScope struct {
	Name  string
	scope *Scope
}

// Exported lists the package's own top-level symbol names.
func (m *ModuleScope) Exported() []string {
	out := make([]string, 0, len(m.scope.vars))
	for name := range m.scope.vars {
		out = append(out, name)
	}
	return out
}

// Get resolves an exported symbol for host callers.
func (m *ModuleScope) Get(name string) (Value, bool) {
	b, ok := m.lookupExported(name, map[*ModuleScope]bool{})
	if !ok || b.deleg.Data != nil {
		return Value{}, false
	}
	return b.val, true
}

// lookupExported finds name in the package's own scope or, transitively, in
// the packages its top level imported. The seen set breaks cycles between
// mutually importing packages.
func (m *ModuleScope) lookupExported(name string, seen map[*ModuleScope]bool) (*binding, bool) {
	if seen[m] {
		return nil, false
	}
	seen[m] = true
	if b, ok := m.scope.vars[name]; ok {
		return b, true
	}
	for _, dep := range m.scope.imports {
		if b, ok := dep.lookupExported(name, seen); ok {
			return b, true
		}
	}
	return nil, false
}

// modState tracks a registered package through its lifecycle.
type modState int

const (
	modUnloaded modState = iota
	modLoaded
)

type moduleRec struct {
	state modState
	m     *ModuleScope
	srcs  []string // source packages, one entry per declaration fragment
	build BuildFn  // native packages
}

// Registry maps package names to their (lazily built) module scopes.
// Safe for concurrent use.
type Registry struct {
	interp *Interp

	mu    sync.Mutex
	mods  map[string]*moduleRec
	group singleflight.Group
}

func NewRegistry(in *Interp) *Registry {
	return &Registry{interp: in, mods: map[string]*moduleRec{}}
}

// RegisterSource registers a package defined by script source. Registering
// a name twice is an error; use AppendSource to grow a source package by
// further declaration fragments.
func (g *Registry) RegisterSource(name, src string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.mods[name]; ok {
		return errors.Errorf("package %s is already registered", name)
	}
	g.mods[name] = &moduleRec{srcs: []string{src}}
	return nil
}

// AppendSource adds a declaration fragment to a registered source package
// (creating the package when absent). Fragments execute in registration
// order into a single module scope on first import, so later fragments see
// the declarations of earlier ones. A loaded or native package cannot grow.
func (g *Registry) AppendSource(name, src string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	rec, ok := g.mods[name]
	if !ok {
		g.mods[name] = &moduleRec{srcs: []string{src}}
		return nil
	}
	if rec.state == modLoaded {
		return errors.Errorf("package %s is already loaded", name)
	}
	if rec.build != nil {
		return errors.Errorf("package %s is native and cannot take source fragments", name)
	}
	rec.srcs = append(rec.srcs, src)
	return nil
}

// RegisterNative registers a package built by host code on first import.
// Registering a name twice is an error.
func (g *Registry) RegisterNative(name string, build BuildFn) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.mods[name]; ok {
		return errors.Errorf("package %s is already registered", name)
	}
	g.mods[name] = &moduleRec{build: build}
	return nil
}

// importChainKey carries the in-flight import chain through the context.
type importChainKey struct{}

func importChain(ctx context.Context) []string {
	chain, _ := ctx.Value(importChainKey{}).([]string)
	return chain
}

// Import returns the package's module scope, building it on first use.
func (g *Registry) Import(ctx context.Context, name string) (*ModuleScope, error) {
	if err := g.interp.policy.CheckImport(name); err != nil {
		return nil, errors.Wrapf(err, "import of %s denied", name)
	}

	g.mu.Lock()
	rec, ok := g.mods[name]
	if !ok {
		g.mu.Unlock()
		return nil, errors.Errorf("package %s is not registered", name)
	}
	if rec.state == modLoaded {
		m := rec.m
		g.mu.Unlock()
		return m, nil
	}
	g.mu.Unlock()

	for _, n := range importChain(ctx) {
		if n == name {
			return nil, errors.Errorf("circular import of package %s (chain: %v)",
				name, importChain(ctx))
		}
	}

	v, err, _ := g.group.Do(name, func() (any, error) {
		// a racing importer may have completed the build while this call
		// waited for the flight slot
		g.mu.Lock()
		if rec.state == modLoaded {
			m := rec.m
			g.mu.Unlock()
			return m, nil
		}
		g.mu.Unlock()

		m, err := g.build(ctx, name, rec)
		if err != nil {
			// failures are never memoized
			return nil, err
		}
		g.mu.Lock()
		rec.state, rec.m = modLoaded, m
		g.mu.Unlock()
		return m, nil
	})
	if err != nil {
		g.group.Forget(name)
		return nil, err
	}
	return v.(*ModuleScope), nil
}

// build runs a package's builder (native) or executes its source in a fresh
// top-level scope. The import chain grows by name for the duration.
func (g *Registry) build(ctx context.Context, name string, rec *moduleRec) (*ModuleScope, error) {
	chain := append(append([]string(nil), importChain(ctx)...), name)
	ctx = context.WithValue(ctx, importChainKey{}, chain)

	g.interp.log.Debug("building package", zap.String("package", name))

	// snapshot: AppendSource may still grow an unloaded package
	g.mu.Lock()
	srcs := append([]string(nil), rec.srcs...)
	buildFn := rec.build
	g.mu.Unlock()

	sc := NewScope(g.interp.root)
	markCaptured(sc) // package scopes are permanent
	m := &ModuleScope{Name: name, scope: sc}

	if buildFn != nil {
		r := &Runner{interp: g.interp, ctx: ctx, pool: &scopePool{}}
		if err := buildFn(r, m); err != nil {
			return nil, errors.Wrapf(err, "building package %s", name)
		}
		return m, nil
	}

	for i, src := range srcs {
		frag := name
		if len(srcs) > 1 {
			frag = fmt.Sprintf("%s#%d", name, i+1)
		}
		prog, err := Compile(frag, src)
		if err != nil {
			return nil, errors.Wrapf(err, "compiling package %s", frag)
		}
		if _, err := g.interp.Execute(ctx, prog, sc); err != nil {
			return nil, errors.Wrapf(err, "initializing package %s", frag)
		}
	}
	return m, nil
}
