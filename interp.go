// interp.go — the tree-walking interpreter.
//
// PUBLIC
//
// Interp is the embeddable engine: one root scope of builtins, one package
// registry, an optional logger. It is safe to share across goroutines; each
// Execute call drives a private Runner.
//
// Runner is one execution: the context, the scope pool and the call-depth
// guard. Runners are goroutine-confined and never shared.
//
// PRIVATE
//
// Inside a Runner, non-local control flow travels as panics: breakSignal,
// continueSignal, returnSignal and throwSignal unwind to the nearest loop,
// call or try boundary. Anything else escaping eval is a bug and is
// re-panicked. The public boundary (Execute) converts an escaping
// throwSignal into a *ExecError; host callers never see panics.
package lyng

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// ExecError is a fatal runtime diagnostic, carrying the position of the
// failing node and, for script-level exceptions, the thrown value.
type ExecError struct {
	Pos    Pos
	Msg    string
	Thrown Value // the uncaught exception instance, when Kind != KNull
}

// Message returns the human-readable description without the position.
func (e *ExecError) Message() string { return e.Msg }

func (e *ExecError) Error() string {
	return fmt.Sprintf("execution error at %s: %s", e.Pos, e.Msg)
}

// ----- control-flow signals (internal) -----

type breakSignal struct {
	val Value
	pos Pos
}

type continueSignal struct {
	pos Pos
}

type returnSignal struct {
	val Value
}

// throwSignal carries a script-level exception (an Exception instance).
type throwSignal struct {
	val Value
	pos Pos
}

// ----- public engine -----

// Option configures an Interp.
type Option func(*Interp)

// WithLogger injects a structured logger; the default is zap.NewNop().
func WithLogger(l *zap.Logger) Option {
	return func(in *Interp) { in.log = l }
}

// WithPolicy installs the access policy consulted by capability-guarded
// host packages (see policy.go).
func WithPolicy(p AccessPolicy) Option {
	return func(in *Interp) { in.policy = p }
}

// Interp is the embeddable execution engine.
type Interp struct {
	root     *Scope
	registry *Registry
	policy   AccessPolicy
	log      *zap.Logger
}

// NewInterp builds an engine with the builtin root scope and the standard
// packages registered.
func NewInterp(opts ...Option) *Interp {
	in := &Interp{
		policy: AllowAllPolicy{},
		log:    zap.NewNop(),
	}
	for _, o := range opts {
		o(in)
	}
	in.registry = NewRegistry(in)
	in.root = newRootScope()
	registerStdPackages(in)
	return in
}

// Registry exposes the package registry for host registration.
func (in *Interp) Registry() *Registry { return in.registry }

// Logger returns the engine logger.
func (in *Interp) Logger() *zap.Logger { return in.log }

// NewScope creates a fresh host-facing scope under the builtin root,
// suitable for passing to Execute. State accumulated in it survives across
// executions (REPL sessions keep one).
func (in *Interp) NewScope() *Scope { return NewScope(in.root) }

// Eval compiles and executes src in a throwaway scope.
func (in *Interp) Eval(ctx context.Context, name, src string) (Value, error) {
	prog, err := Compile(name, src)
	if err != nil {
		return Value{}, err
	}
	return in.Execute(ctx, prog, in.NewScope())
}

// Execute runs a compiled program in sc. The same Program may be executed
// concurrently in different scopes; the tree is never mutated. Cancellation
// of ctx aborts at the next suspension point with ctx.Err().
func (in *Interp) Execute(ctx context.Context, prog *Program, sc *Scope) (out Value, err error) {
	r := &Runner{interp: in, ctx: ctx, pool: &scopePool{}, src: prog.Src}
	defer func() {
		rec := recover()
		if rec == nil {
			return
		}
		out = Value{}
		err = r.signalToError(rec, prog)
	}()
	return prog.Body.eval(r, sc), nil
}

// ----- runner -----

const maxCallDepth = 4096

// checkEvery is how many loop iterations pass between context polls.
const checkEvery = 64

// Runner drives one execution. It owns the frame pool and the cancellation
// context and is confined to the goroutine that created it.
type Runner struct {
	interp *Interp
	ctx    context.Context
	pool   *scopePool
	src    string

	depth int
	ticks int
}

// Interp returns the engine this runner executes under, for native
// functions that need the registry or logger.
func (r *Runner) Interp() *Interp { return r.interp }

// Context returns the cancellation context of this execution.
func (r *Runner) Context() context.Context { return r.ctx }

// checkCancel polls the context at suspension points (loop back-edges,
// calls). A cancelled context aborts the execution via throwSignal carrying
// a CancellationException.
func (r *Runner) checkCancel(pos Pos) {
	r.ticks++
	if r.ticks%checkEvery != 0 {
		return
	}
	if err := r.ctx.Err(); err != nil {
		panic(&throwSignal{val: r.newException(classCancellation, err.Error()), pos: pos})
	}
}

// throwErr raises a script-level exception of class cls with message msg.
func (r *Runner) throwErr(pos Pos, cls *Class, format string, args ...any) {
	panic(&throwSignal{val: r.newException(cls, fmt.Sprintf(format, args...)), pos: pos})
}

// fail raises an IllegalOperationException, the general runtime fault.
func (r *Runner) fail(pos Pos, format string, args ...any) {
	r.throwErr(pos, classIllegalOperation, format, args...)
}

// newException builds an instance of the given exception class.
func (r *Runner) newException(cls *Class, msg string) Value {
	inst := NewInstance(cls)
	inst.Fields["message"] = StrOf(msg)
	return InstOf(inst)
}

// signalToError converts an escaping panic into the public error surface.
func (r *Runner) signalToError(rec any, prog *Program) error {
	switch s := rec.(type) {
	case *throwSignal:
		msg := exceptionMessage(s.val)
		return &ExecError{Pos: s.pos, Msg: msg, Thrown: s.val}
	case *breakSignal:
		return &ExecError{Pos: s.pos, Msg: "break outside of a loop"}
	case *continueSignal:
		return &ExecError{Pos: s.pos, Msg: "continue outside of a loop"}
	case *returnSignal:
		// top-level return is tolerated: it just ends the program
		return nil
	default:
		panic(rec)
	}
}

// exceptionMessage renders a thrown value for diagnostics.
func exceptionMessage(v Value) string {
	if v.Kind == KInstance {
		inst := v.Data.(*Instance)
		if m, ok := inst.Fields["message"]; ok && m.Kind == KStr {
			return inst.Class.Name + ": " + m.Data.(string)
		}
		return inst.Class.Name
	}
	return v.String()
}

// ----- calls -----

// Call invokes a function value from native code.
func (r *Runner) Call(pos Pos, fn Value, args []Value) Value {
	if fn.Kind != KFn {
		r.fail(pos, "value of type %s is not callable", fn.Kind)
	}
	ca := make([]boundArg, len(args))
	for i, a := range args {
		ca[i] = boundArg{val: a}
	}
	return r.callFn(pos, fn.Data.(*Fn), ca)
}

// boundArg is a call-site argument after evaluation and spread expansion.
type boundArg struct {
	name string
	val  Value
}

// callFn binds arguments to parameters and evaluates the body in a pooled
// frame. Binding order: positional args fill parameters left to right,
// named args bind by name, the variadic parameter absorbs the positional
// surplus, remaining parameters fall back to their default expressions
// (evaluated in the callee frame, left to right).
func (r *Runner) callFn(pos Pos, f *Fn, args []boundArg) Value {
	if f.Native != nil {
		vals := make([]Value, len(args))
		for i, a := range args {
			if a.name != "" {
				r.fail(pos, "native function %s does not accept named arguments", f.Name)
			}
			vals[i] = a.val
		}
		return f.Native(r, f.Recv, vals)
	}

	if r.depth >= maxCallDepth {
		r.fail(pos, "call stack depth limit exceeded")
	}
	r.checkCancel(pos)

	sc := r.pool.get(f.Env)
	sc.recv = f.Recv
	sc.hasRecv = f.HasRecv

	r.bindParams(pos, sc, f, args)

	r.depth++
	defer func() {
		r.depth--
		// a frame unwinding through break/continue/throw must not return to
		// the pool holding bindings referenced by the in-flight exception;
		// reset drops them, so pooling stays safe either way
		if rec := recover(); rec != nil {
			r.pool.put(sc)
			panic(rec)
		}
	}()

	var out Value
	func() {
		defer func() {
			if rec := recover(); rec != nil {
				rs, ok := rec.(*returnSignal)
				if !ok {
					panic(rec)
				}
				out = rs.val
			}
		}()
		// block bodies run directly in the call frame instead of opening
		// a second one
		if blk, ok := f.Decl.Body.(*BlockNode); ok {
			for _, st := range blk.Stmts {
				out = st.eval(r, sc)
			}
			if len(blk.Stmts) == 0 {
				out = Void
			}
			return
		}
		out = f.Decl.Body.eval(r, sc)
	}()
	r.pool.put(sc)
	return out
}

// bindParams implements the argument-binding contract.
func (r *Runner) bindParams(pos Pos, sc *Scope, f *Fn, args []boundArg) {
	params := f.Decl.Params
	name := f.Name
	if name == "" {
		name = "fn"
	}

	var positional []Value
	named := map[string]Value{}
	for _, a := range args {
		if a.name == "" {
			positional = append(positional, a.val)
			continue
		}
		if _, dup := named[a.name]; dup {
			r.fail(pos, "%s: duplicate named argument %q", name, a.name)
		}
		named[a.name] = a.val
	}
	sc.args = positional

	pi := 0
	for idx, prm := range params {
		if prm.Variadic {
			rest := len(params) - idx - 1 // params after the variadic take from the tail
			take := len(positional) - pi - rest
			if take < 0 {
				take = 0
			}
			items := make([]Value, take)
			copy(items, positional[pi:pi+take])
			pi += take
			sc.Define(prm.Name, ListOf(items), false)
			continue
		}
		if v, ok := named[prm.Name]; ok {
			delete(named, prm.Name)
			sc.DefineTyped(prm.Name, v, true, prm.TypeAnn)
			continue
		}
		if pi < len(positional) {
			sc.DefineTyped(prm.Name, positional[pi], true, prm.TypeAnn)
			pi++
			continue
		}
		if prm.Default != nil {
			// defaults are evaluated in the callee frame so earlier
			// parameters are visible
			sc.DefineTyped(prm.Name, prm.Default.eval(r, sc), true, prm.TypeAnn)
			continue
		}
		r.fail(pos, "%s: missing argument for parameter %q", name, prm.Name)
	}
	if pi < len(positional) {
		r.fail(pos, "%s: too many arguments: expected %d, got %d", name, len(params), len(positional))
	}
	for n := range named {
		r.fail(pos, "%s: unknown named argument %q", name, n)
		break
	}
}
