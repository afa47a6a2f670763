// interp_ops.go — node evaluation.
//
// Every Node evaluates to a Value; statements that produce nothing yield
// Void. Conditions are strictly boolean. Loops obey the loop-result law:
// `break expr` makes the loop yield expr, normal completion yields the else
// branch (or void without one).
//
// Operators on user-class instances dispatch through conventional method
// names: plus, minus, mul, div, mod, negate, compareTo, contains, equals.
package lyng

import "strings"

// truth enforces boolean conditions; anything else is a runtime fault.
func truth(r *Runner, pos Pos, v Value) bool {
	if v.Kind != KBool {
		r.fail(pos, "condition must be Bool, got %s", v.Kind)
	}
	return v.Data.(bool)
}

// ----- leaves -----

func (n *LitNode) eval(r *Runner, sc *Scope) Value { return n.Val }

func (n *IdentNode) eval(r *Runner, sc *Scope) Value {
	if b, ok := sc.lookupBinding(n.Name); ok {
		if b.deleg.Data != nil {
			return delegGet(r, n.Pos(), b.deleg, Null, n.Name)
		}
		return b.val
	}
	// bare member access inside methods resolves against the receiver
	if recv, ok := sc.receiver(); ok && recv.Kind == KInstance {
		if v, ok := instanceMember(r, n.Pos(), sc, recv, n.Name); ok {
			return v
		}
	}
	r.throwErr(n.Pos(), classSymbolNotDefined, "symbol %q is not defined", n.Name)
	return Value{}
}

// ----- operators -----

func (n *BinNode) eval(r *Runner, sc *Scope) Value {
	switch n.Op {
	case AND:
		if !truth(r, n.L.Pos(), n.L.eval(r, sc)) {
			return BoolOf(false)
		}
		return BoolOf(truth(r, n.R.Pos(), n.R.eval(r, sc)))
	case OR:
		if truth(r, n.L.Pos(), n.L.eval(r, sc)) {
			return BoolOf(true)
		}
		return BoolOf(truth(r, n.R.Pos(), n.R.eval(r, sc)))
	case NULLCOAL:
		l := n.L.eval(r, sc)
		if l.Kind == KNull {
			return n.R.eval(r, sc)
		}
		return l
	}

	l := n.L.eval(r, sc)
	rv := n.R.eval(r, sc)
	return binOp(r, n.Pos(), n.Op, l, rv)
}

func binOp(r *Runner, pos Pos, op TokenType, l, rv Value) Value {
	switch op {
	case EQ:
		return BoolOf(equalOp(r, pos, l, rv))
	case NEQ:
		return BoolOf(!equalOp(r, pos, l, rv))
	case LT:
		return BoolOf(compareValues(r, pos, l, rv) < 0)
	case LTE:
		return BoolOf(compareValues(r, pos, l, rv) <= 0)
	case GT:
		return BoolOf(compareValues(r, pos, l, rv) > 0)
	case GTE:
		return BoolOf(compareValues(r, pos, l, rv) >= 0)
	case SPACESHIP:
		return IntOf(int64(compareValues(r, pos, l, rv)))
	case KWIN:
		return BoolOf(containsValue(r, pos, rv, l))
	case RANGE, RANGEX:
		if l.Kind != KInt || rv.Kind != KInt {
			r.fail(pos, "range bounds must be Int, got %s..%s", l.Kind, rv.Kind)
		}
		return RangeOf(l.Data.(int64), rv.Data.(int64), op == RANGEX)
	case PLUS:
		return addValues(r, pos, l, rv)
	case MINUS:
		return arith(r, pos, "minus", l, rv,
			func(a, b int64) int64 { return a - b },
			func(a, b float64) float64 { return a - b })
	case STAR:
		return mulValues(r, pos, l, rv)
	case SLASH:
		return divValues(r, pos, l, rv)
	case PERCENT:
		return modValues(r, pos, l, rv)
	}
	r.fail(pos, "unsupported binary operator %s", op)
	return Value{}
}

func (n *UnNode) eval(r *Runner, sc *Scope) Value {
	x := n.X.eval(r, sc)
	switch n.Op {
	case MINUS:
		switch x.Kind {
		case KInt:
			return IntOf(-x.Data.(int64))
		case KReal:
			return RealOf(-x.Data.(float64))
		case KInstance:
			if v, ok := tryOpMethod(r, n.Pos(), "negate", x, nil); ok {
				return v
			}
		}
		r.fail(n.Pos(), "operator '-' is not applicable to %s", x.Kind)
	case NOT:
		if x.Kind != KBool {
			r.fail(n.Pos(), "operator '!' requires Bool, got %s", x.Kind)
		}
		return BoolOf(!x.Data.(bool))
	}
	r.fail(n.Pos(), "unsupported unary operator %s", n.Op)
	return Value{}
}

func (n *IsNode) eval(r *Runner, sc *Scope) Value {
	x := n.X.eval(r, sc)
	cls := resolveClass(r, n.Pos(), sc, n.ClassName)
	return BoolOf(valueIsA(x, cls))
}

// valueIsA tests class membership: instances via the MRO, builtin kinds via
// the synthetic kind classes.
func valueIsA(v Value, cls *Class) bool {
	if v.Kind == KInstance {
		return v.Data.(*Instance).Class.IsSubclassOf(cls)
	}
	if kc, ok := kindClasses[v.Kind]; ok {
		return kc.IsSubclassOf(cls)
	}
	return false
}

// resolveClass looks a class up by (possibly dotted) name in the scope chain.
func resolveClass(r *Runner, pos Pos, sc *Scope, name string) *Class {
	var v Value
	var ok bool
	if i := strings.IndexByte(name, '.'); i >= 0 {
		// module-qualified name
		base, rest := name[:i], name[i+1:]
		mv, found := sc.Get(base)
		if !found || mv.Kind != KModule {
			r.throwErr(pos, classSymbolNotDefined, "symbol %q is not defined", base)
		}
		b, found := mv.Data.(*ModuleScope).lookupExported(rest, map[*ModuleScope]bool{})
		if !found {
			r.throwErr(pos, classSymbolNotDefined, "symbol %q is not defined in %s", rest, base)
		}
		v, ok = b.val, true
	} else {
		v, ok = sc.Get(name)
	}
	if !ok {
		r.throwErr(pos, classSymbolNotDefined, "class %q is not defined", name)
	}
	if v.Kind != KClass {
		r.fail(pos, "%q is not a class", name)
	}
	return v.Data.(*Class)
}

// ----- arithmetic -----

func arith(r *Runner, pos Pos, method string, l, rv Value,
	fi func(a, b int64) int64, ff func(a, b float64) float64) Value {
	switch {
	case l.Kind == KInt && rv.Kind == KInt:
		return IntOf(fi(l.Data.(int64), rv.Data.(int64)))
	case isNumeric(l) && isNumeric(rv):
		return RealOf(ff(toReal(l), toReal(rv)))
	case l.Kind == KInstance:
		if v, ok := tryOpMethod(r, pos, method, l, []Value{rv}); ok {
			return v
		}
	}
	r.fail(pos, "operator %q is not applicable to %s and %s", method, l.Kind, rv.Kind)
	return Value{}
}

func addValues(r *Runner, pos Pos, l, rv Value) Value {
	switch {
	case l.Kind == KStr:
		return StrOf(l.Data.(string) + rv.String())
	case l.Kind == KChar && rv.Kind == KInt:
		return CharOf(l.Data.(rune) + rune(rv.Data.(int64)))
	case l.Kind == KList && rv.Kind == KList:
		xs := l.Data.(*List).Items
		ys := rv.Data.(*List).Items
		out := make([]Value, 0, len(xs)+len(ys))
		out = append(out, xs...)
		out = append(out, ys...)
		return ListOf(out)
	}
	return arith(r, pos, "plus", l, rv,
		func(a, b int64) int64 { return a + b },
		func(a, b float64) float64 { return a + b })
}

func mulValues(r *Runner, pos Pos, l, rv Value) Value {
	if l.Kind == KStr && rv.Kind == KInt {
		return StrOf(strings.Repeat(l.Data.(string), int(rv.Data.(int64))))
	}
	return arith(r, pos, "mul", l, rv,
		func(a, b int64) int64 { return a * b },
		func(a, b float64) float64 { return a * b })
}

func divValues(r *Runner, pos Pos, l, rv Value) Value {
	if l.Kind == KInt && rv.Kind == KInt {
		d := rv.Data.(int64)
		if d == 0 {
			r.fail(pos, "integer division by zero")
		}
		return IntOf(l.Data.(int64) / d)
	}
	return arith(r, pos, "div", l, rv,
		func(a, b int64) int64 { return a / b },
		func(a, b float64) float64 { return a / b })
}

func modValues(r *Runner, pos Pos, l, rv Value) Value {
	if l.Kind == KInt && rv.Kind == KInt {
		d := rv.Data.(int64)
		if d == 0 {
			r.fail(pos, "integer modulo by zero")
		}
		return IntOf(l.Data.(int64) % d)
	}
	if l.Kind == KInstance {
		if v, ok := tryOpMethod(r, pos, "mod", l, []Value{rv}); ok {
			return v
		}
	}
	r.fail(pos, "operator '%%' is not applicable to %s and %s", l.Kind, rv.Kind)
	return Value{}
}

// equalOp is Equal plus the `equals` overload on instances.
func equalOp(r *Runner, pos Pos, l, rv Value) bool {
	if l.Kind == KInstance {
		if v, ok := tryOpMethod(r, pos, "equals", l, []Value{rv}); ok {
			return truth(r, pos, v)
		}
	}
	return Equal(l, rv)
}

// compareValues yields a three-way comparison, dispatching compareTo on
// instances.
func compareValues(r *Runner, pos Pos, l, rv Value) int {
	switch {
	case isNumeric(l) && isNumeric(rv):
		a, b := toReal(l), toReal(rv)
		switch {
		case a < b:
			return -1
		case a > b:
			return 1
		default:
			return 0
		}
	case l.Kind == KStr && rv.Kind == KStr:
		return strings.Compare(l.Data.(string), rv.Data.(string))
	case l.Kind == KChar && rv.Kind == KChar:
		a, b := l.Data.(rune), rv.Data.(rune)
		switch {
		case a < b:
			return -1
		case a > b:
			return 1
		default:
			return 0
		}
	case l.Kind == KInstance:
		if v, ok := tryOpMethod(r, pos, "compareTo", l, []Value{rv}); ok {
			if v.Kind != KInt {
				r.fail(pos, "compareTo must return Int, got %s", v.Kind)
			}
			return int(v.Data.(int64))
		}
	}
	r.fail(pos, "values of %s and %s are not comparable", l.Kind, rv.Kind)
	return 0
}

// containsValue implements `x in container`.
func containsValue(r *Runner, pos Pos, container, item Value) bool {
	switch container.Kind {
	case KList:
		for _, x := range container.Data.(*List).Items {
			if Equal(x, item) {
				return true
			}
		}
		return false
	case KRange:
		rg := container.Data.(*Range)
		switch item.Kind {
		case KInt:
			return rg.Contains(item.Data.(int64))
		case KChar:
			return rg.Contains(int64(item.Data.(rune)))
		}
		return false
	case KMap:
		if item.Kind != KStr {
			return false
		}
		_, ok := container.Data.(*MapObject).Get(item.Data.(string))
		return ok
	case KStr:
		switch item.Kind {
		case KStr:
			return strings.Contains(container.Data.(string), item.Data.(string))
		case KChar:
			return strings.ContainsRune(container.Data.(string), item.Data.(rune))
		}
		return false
	case KInstance:
		if v, ok := tryOpMethod(r, pos, "contains", container, []Value{item}); ok {
			return truth(r, pos, v)
		}
	}
	r.fail(pos, "operator 'in' is not applicable to %s", container.Kind)
	return false
}

// tryOpMethod invokes an operator-overload method if the instance's class
// declares one.
func tryOpMethod(r *Runner, pos Pos, name string, recv Value, args []Value) (Value, bool) {
	inst := recv.Data.(*Instance)
	m, ok := inst.Class.lookup(name)
	if !ok || m.Kind != MemberMethod {
		return Value{}, false
	}
	fn := methodValue(m, recv)
	ba := make([]boundArg, len(args))
	for i, a := range args {
		ba[i] = boundArg{val: a}
	}
	return r.callFn(pos, fn, ba), true
}

// methodValue builds a receiver-bound closure for a class method. Method
// bodies close over the class's declaring scope.
func methodValue(m *ClassMember, recv Value) *Fn {
	return &Fn{
		Name:    m.Owner.Name + "." + m.Name,
		Decl:    m.Fn,
		Env:     m.Owner.declScope,
		Recv:    recv,
		HasRecv: true,
	}
}

// ----- access -----

func (n *CallNode) eval(r *Runner, sc *Scope) Value {
	args := evalArgs(r, sc, n.Args)

	// method calls evaluate the receiver once and dispatch directly
	if m, ok := n.Callee.(*MemberNode); ok {
		obj := m.Obj.eval(r, sc)
		if obj.Kind == KNull && m.NullSafe {
			return Null
		}
		return callMember(r, m.Pos(), sc, obj, m.Name, m.Static, args)
	}

	callee := n.Callee.eval(r, sc)
	switch callee.Kind {
	case KFn:
		return r.callFn(n.Pos(), callee.Data.(*Fn), args)
	case KClass:
		return construct(r, n.Pos(), callee.Data.(*Class), args)
	}
	r.fail(n.Pos(), "value of type %s is not callable", callee.Kind)
	return Value{}
}

func evalArgs(r *Runner, sc *Scope, in []CallArg) []boundArg {
	var out []boundArg
	for _, a := range in {
		v := a.Value.eval(r, sc)
		if a.Spread {
			if v.Kind != KList {
				r.fail(a.Value.Pos(), "spread argument must be List, got %s", v.Kind)
			}
			for _, x := range v.Data.(*List).Items {
				out = append(out, boundArg{val: x})
			}
			continue
		}
		out = append(out, boundArg{name: a.Name, val: v})
	}
	return out
}

// callMember invokes obj.name(args) without materializing a bound closure
// when possible.
func callMember(r *Runner, pos Pos, sc *Scope, obj Value, name string, static bool, args []boundArg) Value {
	if obj.Kind == KInstance && !static {
		inst := obj.Data.(*Instance)
		if m, ok := inst.Class.lookup(name); ok && m.Kind == MemberMethod {
			checkPrivate(r, pos, sc, m, inst)
			return r.callFn(pos, methodValue(m, obj), args)
		}
		if d, ok := inst.delegates[name]; ok {
			return delegInvoke(r, pos, d, obj, name, args)
		}
	}
	v := getMember(r, pos, sc, obj, name, static)
	switch v.Kind {
	case KFn:
		return r.callFn(pos, v.Data.(*Fn), args)
	case KClass:
		return construct(r, pos, v.Data.(*Class), args)
	}
	r.fail(pos, "member %q of %s is not callable", name, obj.Kind)
	return Value{}
}

func (n *MemberNode) eval(r *Runner, sc *Scope) Value {
	obj := n.Obj.eval(r, sc)
	if obj.Kind == KNull && n.NullSafe {
		return Null
	}
	return getMember(r, n.Pos(), sc, obj, n.Name, n.Static)
}

// getMember resolves obj.name (or Class::name with static=true).
func getMember(r *Runner, pos Pos, sc *Scope, obj Value, name string, static bool) Value {
	switch obj.Kind {
	case KInstance:
		if static {
			r.fail(pos, "'::' requires a class, got instance of %s", obj.Data.(*Instance).Class.Name)
		}
		if v, ok := instanceMemberChecked(r, pos, sc, obj, name); ok {
			return v
		}
	case KClass:
		cls := obj.Data.(*Class)
		if v, ok := cls.lookupStatic(name); ok {
			return v
		}
		if name == "name" {
			return StrOf(cls.Name)
		}
		r.throwErr(pos, classSymbolNotDefined, "class %s has no static member %q", cls.Name, name)
	case KModule:
		m := obj.Data.(*ModuleScope)
		if b, ok := m.lookupExported(name, map[*ModuleScope]bool{}); ok {
			if b.deleg.Data != nil {
				return delegGet(r, pos, b.deleg, Null, name)
			}
			return b.val
		}
		r.throwErr(pos, classSymbolNotDefined, "package %s does not export %q", m.Name, name)
	case KMap:
		if v, ok := obj.Data.(*MapObject).Get(name); ok {
			return v
		}
	case KNull:
		r.fail(pos, "cannot access member %q of null", name)
	}
	// builtin kind methods
	if fn, ok := kindMethod(obj.Kind, name); ok {
		return FnOf(&Fn{Name: name, Native: fn, Recv: obj, HasRecv: true})
	}
	r.throwErr(pos, classSymbolNotDefined, "%s has no member %q", obj.Kind, name)
	return Value{}
}

// instanceMemberChecked is instanceMember plus privacy enforcement.
func instanceMemberChecked(r *Runner, pos Pos, sc *Scope, obj Value, name string) (Value, bool) {
	inst := obj.Data.(*Instance)
	if m, ok := inst.Class.lookup(name); ok {
		checkPrivate(r, pos, sc, m, inst)
	}
	return instanceMember(r, pos, sc, obj, name)
}

// instanceMember resolves a member against the instance: declared members
// first (methods bind, properties run, delegated members forward), then the
// raw field table.
func instanceMember(r *Runner, pos Pos, sc *Scope, obj Value, name string) (Value, bool) {
	inst := obj.Data.(*Instance)
	if m, ok := inst.Class.lookup(name); ok {
		switch m.Kind {
		case MemberMethod:
			return FnOf(methodValue(m, obj)), true
		case MemberProperty:
			getter := &Fn{Name: m.Name, Decl: m.Getter, Env: m.Owner.declScope, Recv: obj, HasRecv: true}
			return r.callFn(pos, getter, nil), true
		case MemberDelegated:
			if d, ok := inst.delegates[m.Name]; ok {
				return delegGet(r, pos, d, obj, name), true
			}
		case MemberField:
			if v, ok := inst.Fields[name]; ok {
				return v, true
			}
			return Null, true
		}
	}
	if v, ok := inst.Fields[name]; ok {
		return v, true
	}
	return Value{}, false
}

// checkPrivate rejects access to private members from outside the class.
func checkPrivate(r *Runner, pos Pos, sc *Scope, m *ClassMember, inst *Instance) {
	if !m.Private {
		return
	}
	if recv, ok := sc.receiver(); ok && recv.Kind == KInstance {
		if recv.Data.(*Instance).Class.IsSubclassOf(m.Owner) {
			return
		}
	}
	r.fail(pos, "member %q of class %s is private", m.Name, m.Owner.Name)
}

func (n *IndexNode) eval(r *Runner, sc *Scope) Value {
	obj := n.Obj.eval(r, sc)
	idx := n.Index.eval(r, sc)
	switch obj.Kind {
	case KList:
		xs := obj.Data.(*List).Items
		i := requireIndex(r, n.Pos(), idx, len(xs))
		return xs[i]
	case KStr:
		rs := []rune(obj.Data.(string))
		i := requireIndex(r, n.Pos(), idx, len(rs))
		return CharOf(rs[i])
	case KMap:
		if idx.Kind != KStr {
			r.throwErr(n.Pos(), classIllegalArgument, "map keys are String, got %s", idx.Kind)
		}
		if v, ok := obj.Data.(*MapObject).Get(idx.Data.(string)); ok {
			return v
		}
		return Null
	case KRange:
		rg := obj.Data.(*Range)
		i := requireIndex(r, n.Pos(), idx, int(rg.Len()))
		return IntOf(rg.Lo + int64(i))
	}
	r.fail(n.Pos(), "value of type %s is not indexable", obj.Kind)
	return Value{}
}

// requireIndex validates an Int index against length n; negative indexes
// count from the end.
func requireIndex(r *Runner, pos Pos, idx Value, n int) int {
	if idx.Kind != KInt {
		r.throwErr(pos, classIllegalArgument, "index must be Int, got %s", idx.Kind)
	}
	i := int(idx.Data.(int64))
	if i < 0 {
		i += n
	}
	if i < 0 || i >= n {
		r.throwErr(pos, classIndexOutOfBounds, "index %s out of bounds for length %d", idx, n)
	}
	return i
}

// ----- collections -----

func (n *ListNode) eval(r *Runner, sc *Scope) Value {
	var out []Value
	for i, e := range n.Elems {
		v := e.eval(r, sc)
		if n.Spreads[i] {
			if v.Kind != KList {
				r.fail(e.Pos(), "spread element must be List, got %s", v.Kind)
			}
			out = append(out, v.Data.(*List).Items...)
			continue
		}
		out = append(out, v)
	}
	return ListOf(out)
}

func (n *MapNode) eval(r *Runner, sc *Scope) Value {
	mo := NewMapObject()
	for _, e := range n.Entries {
		k := e.Key.eval(r, sc)
		mo.Set(k.Data.(string), e.Val.eval(r, sc))
	}
	return MapOf(mo)
}

// ----- blocks & declarations -----

func (n *BlockNode) eval(r *Runner, sc *Scope) Value {
	frame := sc
	if n.Scoped {
		frame = r.pool.get(sc)
		defer r.pool.put(frame)
	}
	out := Void
	for _, st := range n.Stmts {
		out = st.eval(r, frame)
	}
	return out
}

func (n *VarDeclNode) eval(r *Runner, sc *Scope) Value {
	if _, exists := sc.vars[n.Name]; exists {
		r.fail(n.Pos(), "symbol %q is already declared in this scope", n.Name)
	}
	if n.Deleg != nil {
		d := n.Deleg.eval(r, sc)
		delegBindHook(r, n.Pos(), d, Null, n.Name, delegAccess(d, n.Mutable))
		sc.vars[n.Name] = &binding{deleg: d, mutable: n.Mutable, typeAnn: n.TypeAnn}
		return Void
	}
	v := Null
	if n.Init != nil {
		v = n.Init.eval(r, sc)
	}
	sc.DefineTyped(n.Name, v, n.Mutable, n.TypeAnn)
	return Void
}

func (n *AssignNode) eval(r *Runner, sc *Scope) Value {
	switch t := n.Target.(type) {
	case *IdentNode:
		b, ok := sc.lookupBinding(t.Name)
		if !ok {
			// bare field assignment inside methods
			if recv, found := sc.receiver(); found && recv.Kind == KInstance {
				if assignInstanceField(r, n, sc, recv, t.Name) {
					return Void
				}
			}
			r.throwErr(n.Pos(), classSymbolNotDefined, "symbol %q is not defined", t.Name)
		}
		if b.deleg.Data != nil {
			if !b.mutable {
				r.fail(n.Pos(), "cannot reassign immutable value %q", t.Name)
			}
			v := n.rhs(r, sc, func() Value { return delegGet(r, n.Pos(), b.deleg, Null, t.Name) })
			delegSet(r, n.Pos(), b.deleg, Null, t.Name, v)
			return Void
		}
		if !b.mutable {
			r.fail(n.Pos(), "cannot reassign immutable value %q", t.Name)
		}
		b.val = n.rhs(r, sc, func() Value { return b.val })
		return Void

	case *MemberNode:
		obj := t.Obj.eval(r, sc)
		if obj.Kind == KNull && t.NullSafe {
			return Void
		}
		setMember(r, n, sc, obj, t.Name)
		return Void

	case *IndexNode:
		obj := t.Obj.eval(r, sc)
		idx := t.Index.eval(r, sc)
		setIndex(r, n, sc, obj, idx)
		return Void
	}
	r.fail(n.Pos(), "invalid assignment target")
	return Value{}
}

// rhs computes the right-hand value, reading the old value only for
// compound assignments.
func (n *AssignNode) rhs(r *Runner, sc *Scope, old func() Value) Value {
	v := n.Value.eval(r, sc)
	if n.Op == ASSIGN {
		return v
	}
	var op TokenType
	switch n.Op {
	case PLUSSET:
		op = PLUS
	case MINUSSET:
		op = MINUS
	case STARSET:
		op = STAR
	case SLASHSET:
		op = SLASH
	case PERCENTSET:
		op = PERCENT
	}
	return binOp(r, n.Pos(), op, old(), v)
}

func setMember(r *Runner, n *AssignNode, sc *Scope, obj Value, name string) {
	switch obj.Kind {
	case KInstance:
		if !assignInstanceField(r, n, sc, obj, name) {
			r.throwErr(n.Pos(), classSymbolNotDefined,
				"class %s has no assignable member %q", obj.Data.(*Instance).Class.Name, name)
		}
	case KMap:
		mo := obj.Data.(*MapObject)
		v := n.rhs(r, sc, func() Value {
			old, _ := mo.Get(name)
			return old
		})
		mo.Set(name, v)
	default:
		r.fail(n.Pos(), "cannot assign member %q on %s", name, obj.Kind)
	}
}

// assignInstanceField writes a declared field, property setter or delegated
// member of recv. Reports false when no such member exists.
func assignInstanceField(r *Runner, n *AssignNode, sc *Scope, recv Value, name string) bool {
	inst := recv.Data.(*Instance)
	m, ok := inst.Class.lookup(name)
	if !ok {
		return false
	}
	checkPrivate(r, n.Pos(), sc, m, inst)
	switch m.Kind {
	case MemberField:
		if !m.Mutable {
			r.fail(n.Pos(), "cannot reassign immutable value %q", name)
		}
		v := n.rhs(r, sc, func() Value { return inst.Fields[name] })
		inst.Fields[name] = v
		return true
	case MemberProperty:
		if m.Setter == nil {
			r.fail(n.Pos(), "property %q has no setter", name)
		}
		v := n.rhs(r, sc, func() Value {
			getter := &Fn{Name: name, Decl: m.Getter, Env: m.Owner.declScope, Recv: recv, HasRecv: true}
			return r.callFn(n.Pos(), getter, nil)
		})
		setter := &Fn{Name: name, Decl: m.Setter, Env: m.Owner.declScope, Recv: recv, HasRecv: true}
		r.callFn(n.Pos(), setter, []boundArg{{val: v}})
		return true
	case MemberDelegated:
		if !m.Mutable {
			r.fail(n.Pos(), "cannot reassign immutable value %q", name)
		}
		d := inst.delegates[name]
		v := n.rhs(r, sc, func() Value { return delegGet(r, n.Pos(), d, recv, name) })
		delegSet(r, n.Pos(), d, recv, name, v)
		return true
	}
	return false
}

func setIndex(r *Runner, n *AssignNode, sc *Scope, obj, idx Value) {
	switch obj.Kind {
	case KList:
		xs := obj.Data.(*List)
		i := requireIndex(r, n.Pos(), idx, len(xs.Items))
		xs.Items[i] = n.rhs(r, sc, func() Value { return xs.Items[i] })
	case KMap:
		if idx.Kind != KStr {
			r.throwErr(n.Pos(), classIllegalArgument, "map keys are String, got %s", idx.Kind)
		}
		mo := obj.Data.(*MapObject)
		k := idx.Data.(string)
		v := n.rhs(r, sc, func() Value {
			old, _ := mo.Get(k)
			return old
		})
		mo.Set(k, v)
	default:
		r.fail(n.Pos(), "value of type %s does not support index assignment", obj.Kind)
	}
}

// ----- branching -----

func (n *IfNode) eval(r *Runner, sc *Scope) Value {
	if truth(r, n.Cond.Pos(), n.Cond.eval(r, sc)) {
		return n.Then.eval(r, sc)
	}
	if n.Else != nil {
		return n.Else.eval(r, sc)
	}
	return Void
}

func (n *WhenNode) eval(r *Runner, sc *Scope) Value {
	subj := n.Subject.eval(r, sc)
	for _, cl := range n.Clauses {
		if cl.Else {
			return cl.Body.eval(r, sc)
		}
		matched := false
		for _, e := range cl.Exprs {
			if equalOp(r, e.Pos(), subj, e.eval(r, sc)) {
				matched = true
				break
			}
		}
		if !matched {
			for _, e := range cl.In {
				if containsValue(r, e.Pos(), e.eval(r, sc), subj) {
					matched = true
					break
				}
			}
		}
		if !matched {
			for _, cn := range cl.Is {
				if valueIsA(subj, resolveClass(r, n.Pos(), sc, cn)) {
					matched = true
					break
				}
			}
		}
		if matched {
			return cl.Body.eval(r, sc)
		}
	}
	return Void
}

// ----- loops -----

// runLoopBody evaluates one iteration. On normal completion val is the
// body's value; a continued iteration yields void; broke=true carries the
// break value (void for a bare break).
func runLoopBody(r *Runner, sc *Scope, body Node) (val Value, broke bool) {
	defer func() {
		rec := recover()
		if rec == nil {
			return
		}
		switch s := rec.(type) {
		case *continueSignal:
			val = Void
		case *breakSignal:
			val, broke = s.val, true
		default:
			panic(rec)
		}
	}()
	return body.eval(r, sc), false
}

// loopResult applies the loop-result law on normal completion: the else
// branch when declared, otherwise the last iteration's value (void when the
// loop never ran).
func loopResult(r *Runner, sc *Scope, elseBody Node, last Value) Value {
	if elseBody != nil {
		return elseBody.eval(r, sc)
	}
	return last
}

func (n *WhileNode) eval(r *Runner, sc *Scope) Value {
	last := Void
	if n.Post { // do-while: body runs before the first condition check
		for {
			r.checkCancel(n.Pos())
			v, broke := runLoopBody(r, sc, n.Body)
			if broke {
				return v
			}
			last = v
			if !truth(r, n.Cond.Pos(), n.Cond.eval(r, sc)) {
				return loopResult(r, sc, n.Else, last)
			}
		}
	}
	for truth(r, n.Cond.Pos(), n.Cond.eval(r, sc)) {
		r.checkCancel(n.Pos())
		v, broke := runLoopBody(r, sc, n.Body)
		if broke {
			return v
		}
		last = v
	}
	return loopResult(r, sc, n.Else, last)
}

func (n *ForNode) eval(r *Runner, sc *Scope) Value {
	iter := n.Iter.eval(r, sc)
	if iter.Kind == KStream {
		// leaving the loop by break, return or throw must not strand the
		// producer in emit
		defer iter.Data.(*Stream).close()
	}
	next := makeIterator(r, n.Iter.Pos(), sc, iter)

	frame := r.pool.get(sc)
	defer r.pool.put(frame)
	frame.Define(n.VarName, Null, false)
	b := frame.vars[n.VarName]

	last := Void
	for {
		r.checkCancel(n.Pos())
		v, ok := next()
		if !ok {
			return loopResult(r, sc, n.Else, last)
		}
		b.val = v
		bv, broke := runLoopBody(r, frame, n.Body)
		if broke {
			return bv
		}
		last = bv
	}
}

// makeIterator builds a pull iterator over any iterable value. Instances
// may implement the iterator protocol: iterator() returning an object with
// hasNext() and next().
func makeIterator(r *Runner, pos Pos, sc *Scope, v Value) func() (Value, bool) {
	switch v.Kind {
	case KList:
		xs := v.Data.(*List).Items
		i := 0
		return func() (Value, bool) {
			if i >= len(xs) {
				return Value{}, false
			}
			x := xs[i]
			i++
			return x, true
		}
	case KRange:
		rg := v.Data.(*Range)
		cur, hi := rg.Lo, rg.Hi
		if !rg.Exclusive {
			hi++
		}
		return func() (Value, bool) {
			if cur >= hi {
				return Value{}, false
			}
			x := IntOf(cur)
			cur++
			return x, true
		}
	case KStr:
		rs := []rune(v.Data.(string))
		i := 0
		return func() (Value, bool) {
			if i >= len(rs) {
				return Value{}, false
			}
			c := CharOf(rs[i])
			i++
			return c, true
		}
	case KMap:
		mo := v.Data.(*MapObject)
		keys := append([]string(nil), mo.Keys...)
		i := 0
		return func() (Value, bool) {
			if i >= len(keys) {
				return Value{}, false
			}
			k := keys[i]
			i++
			return ListOf([]Value{StrOf(k), mo.Entries[k]}), true
		}
	case KStream:
		st := v.Data.(*Stream)
		return func() (Value, bool) { return st.next(r, pos) }
	case KInstance:
		it := callMember(r, pos, sc, v, "iterator", false, nil)
		return func() (Value, bool) {
			has := callMember(r, pos, sc, it, "hasNext", false, nil)
			if !truth(r, pos, has) {
				return Value{}, false
			}
			return callMember(r, pos, sc, it, "next", false, nil), true
		}
	}
	r.fail(pos, "value of type %s is not iterable", v.Kind)
	return nil
}

// ----- non-local flow -----

func (n *BreakNode) eval(r *Runner, sc *Scope) Value {
	v := Void
	if n.Val != nil {
		v = n.Val.eval(r, sc)
	}
	panic(&breakSignal{val: v, pos: n.Pos()})
}

func (n *ContinueNode) eval(r *Runner, sc *Scope) Value {
	panic(&continueSignal{pos: n.Pos()})
}

func (n *ReturnNode) eval(r *Runner, sc *Scope) Value {
	v := Void
	if n.Val != nil {
		v = n.Val.eval(r, sc)
	}
	panic(&returnSignal{val: v})
}

func (n *ThrowNode) eval(r *Runner, sc *Scope) Value {
	v := n.X.eval(r, sc)
	switch v.Kind {
	case KInstance:
		if !v.Data.(*Instance).Class.IsSubclassOf(classException) {
			r.fail(n.Pos(), "thrown instances must derive from Exception")
		}
	case KStr:
		v = r.newException(classException, v.Data.(string))
	default:
		r.fail(n.Pos(), "cannot throw a value of type %s", v.Kind)
	}
	panic(&throwSignal{val: v, pos: n.Pos()})
}

func (n *TryNode) eval(r *Runner, sc *Scope) Value {
	if n.Finally != nil {
		// finally runs on every exit path, including unwinds
		defer n.Finally.eval(r, sc)
	}

	out, sig := n.evalBody(r, sc)
	if sig == nil {
		return out
	}

	for _, cl := range n.Catches {
		if !catchMatches(r, sc, cl, sig.val) {
			continue
		}
		frame := r.pool.get(sc)
		frame.Define(cl.VarName, sig.val, false)
		res := cl.Body.eval(r, frame)
		r.pool.put(frame)
		return res
	}
	panic(sig) // unmatched: keep unwinding
}

func (n *TryNode) evalBody(r *Runner, sc *Scope) (out Value, sig *throwSignal) {
	defer func() {
		rec := recover()
		if rec == nil {
			return
		}
		ts, ok := rec.(*throwSignal)
		if !ok {
			panic(rec) // break/continue/return pass through try bodies
		}
		sig = ts
	}()
	return n.Body.eval(r, sc), nil
}

func catchMatches(r *Runner, sc *Scope, cl CatchClause, thrown Value) bool {
	if len(cl.ClassNames) == 0 {
		return true
	}
	for _, cn := range cl.ClassNames {
		cls := resolveClass(r, Pos{}, sc, cn)
		if valueIsA(thrown, cls) {
			return true
		}
	}
	return false
}

// ----- imports -----

func (n *ImportNode) eval(r *Runner, sc *Scope) Value {
	m, err := r.interp.registry.Import(r.ctx, n.Module)
	if err != nil {
		r.throwErr(n.Pos(), classImport, "%s", err.Error())
	}
	if len(n.Symbols) == 0 {
		sc.AddImport(m)
		return Void
	}
	for _, name := range n.Symbols {
		if err := r.interp.policy.CheckImportSymbol(n.Module, name); err != nil {
			r.throwErr(n.Pos(), classImport, "%s", err.Error())
		}
		b, ok := m.lookupExported(name, map[*ModuleScope]bool{})
		if !ok {
			r.throwErr(n.Pos(), classImport, "package %s does not export %q", n.Module, name)
		}
		sc.vars[name] = b
	}
	return Void
}

// ----- functions, classes, enums -----

func (n *FnNode) eval(r *Runner, sc *Scope) Value {
	markCaptured(sc)
	f := &Fn{Name: n.Decl.Name, Decl: n.Decl, Env: sc}
	v := FnOf(f)
	if n.Declare {
		if _, exists := sc.vars[n.Decl.Name]; exists {
			r.fail(n.Pos(), "symbol %q is already declared in this scope", n.Decl.Name)
		}
		sc.Define(n.Decl.Name, v, false)
	}
	return v
}

func (n *ClassNode) eval(r *Runner, sc *Scope) Value {
	d := n.Decl
	markCaptured(sc)

	cls := &Class{
		Name:       d.Name,
		CtorParams: d.CtorParams,
		Members:    map[string]*ClassMember{},
		Statics:    map[string]Value{},
		declScope:  sc,
	}
	for _, bn := range d.BaseNames {
		cls.Bases = append(cls.Bases, resolveClass(r, n.Pos(), sc, bn))
	}

	// constructor-header fields come first in declaration order
	for _, prm := range d.CtorParams {
		if prm.Field == FieldNone {
			continue
		}
		cls.Fields = append(cls.Fields, FieldSpec{
			Name:     prm.Name,
			Mutable:  prm.Field == FieldVar,
			FromCtor: true,
		})
		cls.Members[prm.Name] = &ClassMember{
			Kind: MemberField, Name: prm.Name,
			Mutable: prm.Field == FieldVar, Owner: cls,
		}
	}

	for i := range d.Members {
		md := &d.Members[i]
		if md.Static {
			switch md.Kind {
			case MemberMethod:
				cls.Statics[md.Name] = FnOf(&Fn{Name: d.Name + "." + md.Name, Decl: md.Fn, Env: sc})
			case MemberField:
				v := Null
				if md.Init != nil {
					v = md.Init.eval(r, sc)
				}
				cls.Statics[md.Name] = v
			default:
				r.fail(md.Where, "class %s: member %q cannot be static", d.Name, md.Name)
			}
			continue
		}
		if _, dup := cls.Members[md.Name]; dup {
			r.fail(md.Where, "class %s: member %q is declared twice", d.Name, md.Name)
		}
		cls.Members[md.Name] = &ClassMember{
			Kind: md.Kind, Name: md.Name, Fn: md.Fn,
			Getter: md.Getter, Setter: md.Setter,
			Init: md.Init, Deleg: md.Deleg,
			Mutable: md.Mutable, Override: md.Override,
			Private: md.Private, Transient: md.Transient,
			Owner: cls,
		}
		if md.Kind == MemberField {
			cls.Fields = append(cls.Fields, FieldSpec{
				Name: md.Name, Mutable: md.Mutable,
				Transient: md.Transient, Init: md.Init,
			})
		}
	}

	mro, err := linearizeC3(cls)
	if err != nil {
		r.fail(n.Pos(), "%s", err.Error())
	}
	cls.mro = mro
	if err := validateOverrides(cls); err != nil {
		r.fail(n.Pos(), "%s", err.Error())
	}

	v := ClassOf(cls)
	if _, exists := sc.vars[d.Name]; exists {
		r.fail(n.Pos(), "symbol %q is already declared in this scope", d.Name)
	}
	sc.Define(d.Name, v, false)
	return v
}

// construct instantiates cls: bind ctor params, materialize header fields,
// run field initializers root-first along the reversed MRO, bind member
// delegates, then the init() method when declared.
func construct(r *Runner, pos Pos, cls *Class, args []boundArg) Value {
	if cls.native {
		// native classes take an optional message argument
		msg := ""
		if len(args) == 1 && args[0].val.Kind == KStr {
			msg = args[0].val.Data.(string)
		}
		return r.newException(cls, msg)
	}

	inst := NewInstance(cls)
	recv := InstOf(inst)

	ctorFn := &Fn{
		Name: cls.Name,
		Decl: &FnDecl{Name: cls.Name, Params: cls.CtorParams},
		Env:  cls.declScope,
	}
	ctor := r.pool.get(cls.declScope)
	r.bindParams(pos, ctor, ctorFn, args)
	for _, prm := range cls.CtorParams {
		if prm.Field == FieldNone {
			continue
		}
		v, _ := ctor.Get(prm.Name)
		inst.Fields[prm.Name] = v
	}
	r.pool.put(ctor)

	// field initializers and delegates see the instance as receiver
	initFrame := r.pool.get(cls.declScope)
	initFrame.recv = recv
	initFrame.hasRecv = true
	mro := cls.MRO()
	for i := len(mro) - 1; i >= 0; i-- {
		for _, m := range mro[i].Members {
			switch m.Kind {
			case MemberField:
				if m.Init != nil {
					inst.Fields[m.Name] = m.Init.eval(r, initFrame)
				} else if _, ok := inst.Fields[m.Name]; !ok {
					inst.Fields[m.Name] = Null
				}
			case MemberDelegated:
				if _, ok := inst.delegates[m.Name]; ok {
					continue
				}
				d := m.Deleg.eval(r, initFrame)
				delegBindHook(r, pos, d, recv, m.Name, delegAccess(d, m.Mutable))
				if inst.delegates == nil {
					inst.delegates = map[string]Value{}
				}
				inst.delegates[m.Name] = d
			}
		}
	}
	r.pool.put(initFrame)

	if m, ok := cls.lookup("init"); ok && m.Kind == MemberMethod {
		r.callFn(pos, methodValue(m, recv), nil)
	}
	return recv
}

func (n *EnumNode) eval(r *Runner, sc *Scope) Value {
	cls := newNativeClass(n.Name, classAny)
	cls.native = false
	cls.Fields = []FieldSpec{{Name: "name"}, {Name: "ordinal"}}
	cls.declScope = sc
	markCaptured(sc)

	var values []Value
	for i, entry := range n.Entries {
		inst := NewInstance(cls)
		inst.Fields["name"] = StrOf(entry)
		inst.Fields["ordinal"] = IntOf(int64(i))
		v := InstOf(inst)
		cls.Statics[entry] = v
		values = append(values, v)
	}
	cls.Statics["values"] = ListOf(values)

	v := ClassOf(cls)
	if _, exists := sc.vars[n.Name]; exists {
		r.fail(n.Pos(), "symbol %q is already declared in this scope", n.Name)
	}
	sc.Define(n.Name, v, false)
	return v
}

// ----- delegation protocol -----
//
// A delegate is any object exposing getValue(recv, name) and
// setValue(recv, name, v); invoke(recv, name, args) optionally handles calls
// through the delegate, and onBind(recv, name, access) runs once at binding
// time and may veto by throwing. recv is the delegating instance, null for
// scope- and package-level bindings. access names the declared access kind:
// "read" for val, "readwrite" for var, "call" when the delegate itself
// implements invocation.

// delegAccess derives the declared access kind of a delegated binding from
// its mutability and the delegate's capabilities.
func delegAccess(d Value, mutable bool) accessKind {
	if hasMethod(d, "invoke") {
		return accessCall
	}
	if mutable {
		return accessReadWrite
	}
	return accessRead
}

func delegBindHook(r *Runner, pos Pos, d, recv Value, name string, access accessKind) {
	if hasMethod(d, "onBind") {
		r.Call(pos, mustMember(r, pos, d, "onBind"),
			[]Value{recv, StrOf(name), StrOf(access.String())})
	}
}

func delegGet(r *Runner, pos Pos, d, recv Value, name string) Value {
	return r.Call(pos, mustMember(r, pos, d, "getValue"), []Value{recv, StrOf(name)})
}

func delegSet(r *Runner, pos Pos, d, recv Value, name string, v Value) {
	r.Call(pos, mustMember(r, pos, d, "setValue"), []Value{recv, StrOf(name), v})
}

func delegInvoke(r *Runner, pos Pos, d, recv Value, name string, args []boundArg) Value {
	if hasMethod(d, "invoke") {
		vals := make([]Value, len(args))
		for i, a := range args {
			vals[i] = a.val
		}
		return r.Call(pos, mustMember(r, pos, d, "invoke"),
			[]Value{recv, StrOf(name), ListOf(vals)})
	}
	target := delegGet(r, pos, d, recv, name)
	if target.Kind != KFn {
		r.fail(pos, "delegated member %q is not callable", name)
	}
	return r.callFn(pos, target.Data.(*Fn), args)
}

func hasMethod(v Value, name string) bool {
	if v.Kind != KInstance {
		return false
	}
	m, ok := v.Data.(*Instance).Class.lookup(name)
	return ok && m.Kind == MemberMethod
}

func mustMember(r *Runner, pos Pos, v Value, name string) Value {
	if v.Kind != KInstance {
		r.fail(pos, "delegate must be a class instance, got %s", v.Kind)
	}
	m, ok := v.Data.(*Instance).Class.lookup(name)
	if !ok || m.Kind != MemberMethod {
		r.fail(pos, "delegate class %s does not implement %q", v.Data.(*Instance).Class.Name, name)
	}
	return FnOf(methodValue(m, v))
}
