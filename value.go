// value.go — the runtime value model.
//
// Value is a tagged carrier over a small closed set of runtime kinds; user
// classes (KInstance) are the open extension point. Values are cheap to copy;
// compound payloads (*List, *MapObject, *Instance, ...) are shared by
// reference, which is also how closures observe mutation of captured
// bindings.
package lyng

import (
	"fmt"
	"hash/fnv"
	"math"
	"sort"
	"strconv"
	"strings"
)

// Kind enumerates all runtime kinds a Value may hold.
type Kind int

const (
	KNull     Kind = iota // null (no payload)
	KVoid                 // unit value of statements and empty loops
	KBool                 // bool
	KInt                  // int64
	KReal                 // float64
	KChar                 // rune
	KStr                  // string
	KList                 // *List
	KMap                  // *MapObject (ordered)
	KRange                // *Range
	KFn                   // *Fn (closure, native or bound method)
	KClass                // *Class
	KInstance             // *Instance
	KTask                 // *Task (future-like handle)
	KStream               // *Stream (lazy cooperative sequence)
	KModule               // *ModuleScope
)

var kindNames = map[Kind]string{
	KNull: "Null", KVoid: "Void", KBool: "Bool", KInt: "Int", KReal: "Real",
	KChar: "Char", KStr: "String", KList: "List", KMap: "Map", KRange: "Range",
	KFn: "Fn", KClass: "Class", KInstance: "Instance", KTask: "Task",
	KStream: "Stream", KModule: "Module",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Value is the universal runtime carrier.
type Value struct {
	Kind Kind
	Data any
}

// Singletons for the payload-free kinds.
var (
	Null = Value{Kind: KNull}
	Void = Value{Kind: KVoid}
)

// Constructors.
func BoolOf(b bool) Value      { return Value{Kind: KBool, Data: b} }
func IntOf(n int64) Value      { return Value{Kind: KInt, Data: n} }
func RealOf(f float64) Value   { return Value{Kind: KReal, Data: f} }
func CharOf(r rune) Value      { return Value{Kind: KChar, Data: r} }
func StrOf(s string) Value     { return Value{Kind: KStr, Data: s} }
func ListOf(xs []Value) Value  { return Value{Kind: KList, Data: &List{Items: xs}} }
func FnOf(f *Fn) Value         { return Value{Kind: KFn, Data: f} }
func ClassOf(c *Class) Value   { return Value{Kind: KClass, Data: c} }
func InstOf(i *Instance) Value { return Value{Kind: KInstance, Data: i} }

// List is a mutable value sequence.
type List struct {
	Items []Value
}

// MapObject is an ordered string-keyed map preserving insertion order.
type MapObject struct {
	Entries map[string]Value
	Keys    []string
}

func NewMapObject() *MapObject {
	return &MapObject{Entries: map[string]Value{}}
}

func (m *MapObject) Set(k string, v Value) {
	if _, ok := m.Entries[k]; !ok {
		m.Keys = append(m.Keys, k)
	}
	m.Entries[k] = v
}

func (m *MapObject) Get(k string) (Value, bool) {
	v, ok := m.Entries[k]
	return v, ok
}

func (m *MapObject) Delete(k string) bool {
	if _, ok := m.Entries[k]; !ok {
		return false
	}
	delete(m.Entries, k)
	for i, key := range m.Keys {
		if key == k {
			m.Keys = append(m.Keys[:i], m.Keys[i+1:]...)
			break
		}
	}
	return true
}

func MapOf(m *MapObject) Value { return Value{Kind: KMap, Data: m} }

// Range is an integer interval, inclusive or end-exclusive.
type Range struct {
	Lo, Hi    int64
	Exclusive bool
}

func RangeOf(lo, hi int64, exclusive bool) Value {
	return Value{Kind: KRange, Data: &Range{Lo: lo, Hi: hi, Exclusive: exclusive}}
}

// Len is the number of elements the range yields in iteration.
func (r *Range) Len() int64 {
	n := r.Hi - r.Lo
	if !r.Exclusive {
		n++
	}
	if n < 0 {
		return 0
	}
	return n
}

// Contains reports integer containment.
func (r *Range) Contains(n int64) bool {
	if r.Exclusive {
		return n >= r.Lo && n < r.Hi
	}
	return n >= r.Lo && n <= r.Hi
}

// NativeFn is the implementation signature of host-provided functions.
type NativeFn func(r *Runner, recv Value, args []Value) Value

// Fn is a function value: a user closure, a registered native, or a method
// bound to its receiver at access time.
type Fn struct {
	Name   string
	Decl   *FnDecl // nil for natives
	Env    *Scope  // captured lexical scope (user functions)
	Native NativeFn

	Recv    Value // bound receiver, when HasRecv
	HasRecv bool
}

// Bind returns a copy of f with recv attached as implicit receiver.
func (f *Fn) Bind(recv Value) *Fn {
	nf := *f
	nf.Recv = recv
	nf.HasRecv = true
	return &nf
}

// Arity returns the declared parameter count (natives report -1).
func (f *Fn) Arity() int {
	if f.Decl == nil {
		return -1
	}
	return len(f.Decl.Params)
}

// ----- rendering -----

// String renders a display representation used by the REPL and diagnostics.
func (v Value) String() string {
	switch v.Kind {
	case KNull:
		return "null"
	case KVoid:
		return "void"
	case KBool:
		return strconv.FormatBool(v.Data.(bool))
	case KInt:
		return strconv.FormatInt(v.Data.(int64), 10)
	case KReal:
		f := v.Data.(float64)
		s := strconv.FormatFloat(f, 'g', -1, 64)
		if !strings.ContainsAny(s, ".eE") && !math.IsInf(f, 0) && !math.IsNaN(f) {
			s += ".0"
		}
		return s
	case KChar:
		return string(v.Data.(rune))
	case KStr:
		return v.Data.(string)
	case KList:
		xs := v.Data.(*List).Items
		parts := make([]string, len(xs))
		for i, x := range xs {
			parts[i] = x.Inspect()
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case KMap:
		mo := v.Data.(*MapObject)
		parts := make([]string, 0, len(mo.Keys))
		for _, k := range mo.Keys {
			parts = append(parts, fmt.Sprintf("%q: %s", k, mo.Entries[k].Inspect()))
		}
		return "{" + strings.Join(parts, ", ") + "}"
	case KRange:
		rg := v.Data.(*Range)
		op := ".."
		if rg.Exclusive {
			op = "..<"
		}
		return fmt.Sprintf("%d%s%d", rg.Lo, op, rg.Hi)
	case KFn:
		f := v.Data.(*Fn)
		if f.Name != "" {
			return "fn " + f.Name
		}
		return "fn"
	case KClass:
		return "class " + v.Data.(*Class).Name
	case KInstance:
		return v.Data.(*Instance).display()
	case KTask:
		return "task"
	case KStream:
		return "stream"
	case KModule:
		return "module " + v.Data.(*ModuleScope).Name
	default:
		return "<unknown>"
	}
}

// Inspect is like String but quotes strings and chars, for use inside
// collection rendering.
func (v Value) Inspect() string {
	switch v.Kind {
	case KStr:
		return strconv.Quote(v.Data.(string))
	case KChar:
		return "'" + string(v.Data.(rune)) + "'"
	default:
		return v.String()
	}
}

// ----- equality & hashing -----

// Equal is deep structural equality. Instance comparison requires a matching
// class and compares declared fields, excluding transient ones.
func Equal(a, b Value) bool {
	if a.Kind != b.Kind {
		// Int and Real compare numerically across kinds.
		if isNumeric(a) && isNumeric(b) {
			return toReal(a) == toReal(b)
		}
		return false
	}
	switch a.Kind {
	case KNull, KVoid:
		return true
	case KBool:
		return a.Data.(bool) == b.Data.(bool)
	case KInt:
		return a.Data.(int64) == b.Data.(int64)
	case KReal:
		return a.Data.(float64) == b.Data.(float64)
	case KChar:
		return a.Data.(rune) == b.Data.(rune)
	case KStr:
		return a.Data.(string) == b.Data.(string)
	case KList:
		xs, ys := a.Data.(*List).Items, b.Data.(*List).Items
		if len(xs) != len(ys) {
			return false
		}
		for i := range xs {
			if !Equal(xs[i], ys[i]) {
				return false
			}
		}
		return true
	case KMap:
		am, bm := a.Data.(*MapObject), b.Data.(*MapObject)
		if len(am.Entries) != len(bm.Entries) {
			return false
		}
		for k, av := range am.Entries {
			bv, ok := bm.Entries[k]
			if !ok || !Equal(av, bv) {
				return false
			}
		}
		return true
	case KRange:
		ar, br := a.Data.(*Range), b.Data.(*Range)
		return ar.Lo == br.Lo && ar.Hi == br.Hi && ar.Exclusive == br.Exclusive
	case KInstance:
		return a.Data.(*Instance).equal(b.Data.(*Instance))
	case KClass:
		return a.Data.(*Class) == b.Data.(*Class)
	case KFn:
		return a.Data.(*Fn) == b.Data.(*Fn)
	default:
		return a.Data == b.Data
	}
}

// HashValue computes a structural hash consistent with Equal: transient
// instance fields are excluded and ints hash like equal reals.
func HashValue(v Value) uint64 {
	h := fnv.New64a()
	hashInto(h, v)
	return h.Sum64()
}

type hasher interface {
	Write(p []byte) (int, error)
}

func hashInto(h hasher, v Value) {
	write := func(s string) { _, _ = h.Write([]byte(s)) }
	switch v.Kind {
	case KNull:
		write("null")
	case KVoid:
		write("void")
	case KBool:
		write(strconv.FormatBool(v.Data.(bool)))
	case KInt:
		write(strconv.FormatFloat(float64(v.Data.(int64)), 'g', -1, 64))
	case KReal:
		write(strconv.FormatFloat(v.Data.(float64), 'g', -1, 64))
	case KChar:
		write("c" + string(v.Data.(rune)))
	case KStr:
		write("s" + v.Data.(string))
	case KList:
		write("[")
		for _, x := range v.Data.(*List).Items {
			hashInto(h, x)
			write(",")
		}
	case KMap:
		mo := v.Data.(*MapObject)
		keys := append([]string(nil), mo.Keys...)
		sort.Strings(keys)
		write("{")
		for _, k := range keys {
			write(k + ":")
			hashInto(h, mo.Entries[k])
		}
	case KRange:
		write("r" + v.String())
	case KInstance:
		v.Data.(*Instance).hashInto(h)
	default:
		write(fmt.Sprintf("%p", v.Data))
	}
}

// ----- numeric helpers -----

func isNumeric(v Value) bool { return v.Kind == KInt || v.Kind == KReal }

func toReal(v Value) float64 {
	if v.Kind == KInt {
		return float64(v.Data.(int64))
	}
	return v.Data.(float64)
}
