// builtins.go — the root scope: exception hierarchy, kind classes, global
// functions and the built-in method tables of the primitive kinds.
//
// Everything here is constructed once per process (the class descriptors
// are immutable and shared) or once per Interp (the root scope itself).
package lyng

import (
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
)

// ----- exception hierarchy -----
//
// All throwable values are instances of Exception or a subclass. The
// hierarchy is flat on purpose: two levels cover every runtime fault the
// interpreter itself raises.

var (
	classException        = newNativeClass("Exception")
	classIllegalOperation = newNativeClass("IllegalOperationException", classException)
	classIllegalArgument  = newNativeClass("IllegalArgumentException", classException)
	classIndexOutOfBounds = newNativeClass("IndexOutOfBoundsException", classException)
	classSymbolNotDefined = newNativeClass("SymbolNotDefinedException", classException)
	classClassCast        = newNativeClass("ClassCastException", classException)
	classImport           = newNativeClass("ImportException", classException)
	classCancellation     = newNativeClass("CancellationException", classException)
	classAccessDenied     = newNativeClass("AccessDeniedException", classException)
	classAssertionFailed  = newNativeClass("AssertionFailedException", classException)
)

var exceptionClasses = []*Class{
	classException, classIllegalOperation, classIllegalArgument,
	classIndexOutOfBounds, classSymbolNotDefined, classClassCast,
	classImport, classCancellation, classAccessDenied, classAssertionFailed,
}

// ----- kind classes -----
//
// Builtin kinds appear as classes so `x is Int` and when-is clauses work
// uniformly. Any is the common root.

var classAny = newNativeClass("Any")

var kindClasses = map[Kind]*Class{
	KNull:     newNativeClass("Null", classAny),
	KVoid:     newNativeClass("Void", classAny),
	KBool:     newNativeClass("Bool", classAny),
	KInt:      newNativeClass("Int", classAny),
	KReal:     newNativeClass("Real", classAny),
	KChar:     newNativeClass("Char", classAny),
	KStr:      newNativeClass("String", classAny),
	KList:     newNativeClass("List", classAny),
	KMap:      newNativeClass("Map", classAny),
	KRange:    newNativeClass("Range", classAny),
	KFn:       newNativeClass("Fn", classAny),
	KClass:    newNativeClass("ClassType", classAny),
	KTask:     newNativeClass("Task", classAny),
	KStream:   newNativeClass("Stream", classAny),
	KModule:   newNativeClass("Module", classAny),
	KInstance: classAny,
}

// ----- native argument helpers -----

func nativePos() Pos { return Pos{} }

func needArgs(r *Runner, name string, args []Value, n int) {
	if len(args) != n {
		r.throwErr(nativePos(), classIllegalArgument,
			"%s expects %d argument(s), got %d", name, n, len(args))
	}
}

func argInt(r *Runner, name string, args []Value, i int) int64 {
	if args[i].Kind != KInt {
		r.throwErr(nativePos(), classIllegalArgument,
			"%s: argument %d must be Int, got %s", name, i+1, args[i].Kind)
	}
	return args[i].Data.(int64)
}

func argStr(r *Runner, name string, args []Value, i int) string {
	if args[i].Kind != KStr {
		r.throwErr(nativePos(), classIllegalArgument,
			"%s: argument %d must be String, got %s", name, i+1, args[i].Kind)
	}
	return args[i].Data.(string)
}

func argFn(r *Runner, name string, args []Value, i int) *Fn {
	if args[i].Kind != KFn {
		r.throwErr(nativePos(), classIllegalArgument,
			"%s: argument %d must be Fn, got %s", name, i+1, args[i].Kind)
	}
	return args[i].Data.(*Fn)
}

func argReal(r *Runner, name string, args []Value, i int) float64 {
	if !isNumeric(args[i]) {
		r.throwErr(nativePos(), classIllegalArgument,
			"%s: argument %d must be a number, got %s", name, i+1, args[i].Kind)
	}
	return toReal(args[i])
}

// ----- root scope -----

func newRootScope() *Scope {
	sc := NewScope(nil)
	for _, c := range exceptionClasses {
		sc.Define(c.Name, ClassOf(c), false)
	}
	sc.Define("Any", ClassOf(classAny), false)
	for k, c := range kindClasses {
		if k == KInstance {
			continue
		}
		sc.Define(c.Name, ClassOf(c), false)
	}

	def := func(name string, fn NativeFn) {
		sc.Define(name, FnOf(&Fn{Name: name, Native: fn}), false)
	}

	def("println", func(r *Runner, _ Value, args []Value) Value {
		parts := make([]string, len(args))
		for i, a := range args {
			parts[i] = a.String()
		}
		fmt.Fprintln(os.Stdout, strings.Join(parts, " "))
		return Void
	})
	def("print", func(r *Runner, _ Value, args []Value) Value {
		parts := make([]string, len(args))
		for i, a := range args {
			parts[i] = a.String()
		}
		fmt.Fprint(os.Stdout, strings.Join(parts, " "))
		return Void
	})
	def("assert", func(r *Runner, _ Value, args []Value) Value {
		if len(args) == 0 || len(args) > 2 {
			r.throwErr(nativePos(), classIllegalArgument, "assert expects 1 or 2 arguments")
		}
		if args[0].Kind != KBool {
			r.throwErr(nativePos(), classIllegalArgument, "assert condition must be Bool")
		}
		if !args[0].Data.(bool) {
			msg := "assertion failed"
			if len(args) == 2 {
				msg = args[1].String()
			}
			r.throwErr(nativePos(), classAssertionFailed, "%s", msg)
		}
		return Void
	})
	def("typeOf", func(r *Runner, _ Value, args []Value) Value {
		needArgs(r, "typeOf", args, 1)
		v := args[0]
		if v.Kind == KInstance {
			return ClassOf(v.Data.(*Instance).Class)
		}
		return ClassOf(kindClasses[v.Kind])
	})
	def("spawn", func(r *Runner, _ Value, args []Value) Value {
		needArgs(r, "spawn", args, 1)
		return spawnTask(r, argFn(r, "spawn", args, 0))
	})
	def("stream", func(r *Runner, _ Value, args []Value) Value {
		needArgs(r, "stream", args, 1)
		return newStream(r, argFn(r, "stream", args, 0))
	})
	return sc
}

// ----- builtin method tables -----

func kindMethod(k Kind, name string) (NativeFn, bool) {
	if tbl, ok := kindMethods[k]; ok {
		if fn, ok := tbl[name]; ok {
			return fn, true
		}
	}
	if fn, ok := universalMethods[name]; ok {
		return fn, true
	}
	return nil, false
}

var universalMethods = map[string]NativeFn{
	"toString": func(r *Runner, recv Value, args []Value) Value {
		return StrOf(recv.String())
	},
	"inspect": func(r *Runner, recv Value, args []Value) Value {
		return StrOf(recv.Inspect())
	},
	"hash": func(r *Runner, recv Value, args []Value) Value {
		return IntOf(int64(HashValue(recv)))
	},
}

var kindMethods = map[Kind]map[string]NativeFn{
	KStr: {
		"size": func(r *Runner, recv Value, args []Value) Value {
			return IntOf(int64(len([]rune(recv.Data.(string)))))
		},
		"upper": func(r *Runner, recv Value, args []Value) Value {
			return StrOf(strings.ToUpper(recv.Data.(string)))
		},
		"lower": func(r *Runner, recv Value, args []Value) Value {
			return StrOf(strings.ToLower(recv.Data.(string)))
		},
		"trim": func(r *Runner, recv Value, args []Value) Value {
			return StrOf(strings.TrimSpace(recv.Data.(string)))
		},
		"startsWith": func(r *Runner, recv Value, args []Value) Value {
			needArgs(r, "startsWith", args, 1)
			return BoolOf(strings.HasPrefix(recv.Data.(string), argStr(r, "startsWith", args, 0)))
		},
		"endsWith": func(r *Runner, recv Value, args []Value) Value {
			needArgs(r, "endsWith", args, 1)
			return BoolOf(strings.HasSuffix(recv.Data.(string), argStr(r, "endsWith", args, 0)))
		},
		"indexOf": func(r *Runner, recv Value, args []Value) Value {
			needArgs(r, "indexOf", args, 1)
			return IntOf(int64(strings.Index(recv.Data.(string), argStr(r, "indexOf", args, 0))))
		},
		"split": func(r *Runner, recv Value, args []Value) Value {
			needArgs(r, "split", args, 1)
			parts := strings.Split(recv.Data.(string), argStr(r, "split", args, 0))
			out := make([]Value, len(parts))
			for i, p := range parts {
				out[i] = StrOf(p)
			}
			return ListOf(out)
		},
		"substring": func(r *Runner, recv Value, args []Value) Value {
			rs := []rune(recv.Data.(string))
			if len(args) < 1 || len(args) > 2 {
				r.throwErr(nativePos(), classIllegalArgument, "substring expects 1 or 2 arguments")
			}
			from := int(argInt(r, "substring", args, 0))
			to := len(rs)
			if len(args) == 2 {
				to = int(argInt(r, "substring", args, 1))
			}
			if from < 0 || to > len(rs) || from > to {
				r.throwErr(nativePos(), classIndexOutOfBounds,
					"substring bounds %d..%d out of range for length %d", from, to, len(rs))
			}
			return StrOf(string(rs[from:to]))
		},
		"toInt": func(r *Runner, recv Value, args []Value) Value {
			n, err := strconv.ParseInt(strings.TrimSpace(recv.Data.(string)), 10, 64)
			if err != nil {
				r.throwErr(nativePos(), classIllegalArgument, "%q is not an Int", recv.Data.(string))
			}
			return IntOf(n)
		},
		"toReal": func(r *Runner, recv Value, args []Value) Value {
			f, err := strconv.ParseFloat(strings.TrimSpace(recv.Data.(string)), 64)
			if err != nil {
				r.throwErr(nativePos(), classIllegalArgument, "%q is not a Real", recv.Data.(string))
			}
			return RealOf(f)
		},
	},
	KList: {
		"size": func(r *Runner, recv Value, args []Value) Value {
			return IntOf(int64(len(recv.Data.(*List).Items)))
		},
		"isEmpty": func(r *Runner, recv Value, args []Value) Value {
			return BoolOf(len(recv.Data.(*List).Items) == 0)
		},
		"add": func(r *Runner, recv Value, args []Value) Value {
			l := recv.Data.(*List)
			l.Items = append(l.Items, args...)
			return recv
		},
		"removeAt": func(r *Runner, recv Value, args []Value) Value {
			needArgs(r, "removeAt", args, 1)
			l := recv.Data.(*List)
			i := requireIndex(r, nativePos(), args[0], len(l.Items))
			v := l.Items[i]
			l.Items = append(l.Items[:i], l.Items[i+1:]...)
			return v
		},
		"indexOf": func(r *Runner, recv Value, args []Value) Value {
			needArgs(r, "indexOf", args, 1)
			for i, x := range recv.Data.(*List).Items {
				if Equal(x, args[0]) {
					return IntOf(int64(i))
				}
			}
			return IntOf(-1)
		},
		"contains": func(r *Runner, recv Value, args []Value) Value {
			needArgs(r, "contains", args, 1)
			return BoolOf(containsValue(r, nativePos(), recv, args[0]))
		},
		"join": func(r *Runner, recv Value, args []Value) Value {
			needArgs(r, "join", args, 1)
			sep := argStr(r, "join", args, 0)
			items := recv.Data.(*List).Items
			parts := make([]string, len(items))
			for i, x := range items {
				parts[i] = x.String()
			}
			return StrOf(strings.Join(parts, sep))
		},
		"map": func(r *Runner, recv Value, args []Value) Value {
			needArgs(r, "map", args, 1)
			f := argFn(r, "map", args, 0)
			items := recv.Data.(*List).Items
			out := make([]Value, len(items))
			for i, x := range items {
				out[i] = r.callFn(nativePos(), f, []boundArg{{val: x}})
			}
			return ListOf(out)
		},
		"filter": func(r *Runner, recv Value, args []Value) Value {
			needArgs(r, "filter", args, 1)
			f := argFn(r, "filter", args, 0)
			var out []Value
			for _, x := range recv.Data.(*List).Items {
				if truth(r, nativePos(), r.callFn(nativePos(), f, []boundArg{{val: x}})) {
					out = append(out, x)
				}
			}
			return ListOf(out)
		},
		"sorted": func(r *Runner, recv Value, args []Value) Value {
			items := append([]Value(nil), recv.Data.(*List).Items...)
			sortValues(r, items)
			return ListOf(items)
		},
	},
	KMap: {
		"size": func(r *Runner, recv Value, args []Value) Value {
			return IntOf(int64(len(recv.Data.(*MapObject).Entries)))
		},
		"keys": func(r *Runner, recv Value, args []Value) Value {
			mo := recv.Data.(*MapObject)
			out := make([]Value, len(mo.Keys))
			for i, k := range mo.Keys {
				out[i] = StrOf(k)
			}
			return ListOf(out)
		},
		"values": func(r *Runner, recv Value, args []Value) Value {
			mo := recv.Data.(*MapObject)
			out := make([]Value, len(mo.Keys))
			for i, k := range mo.Keys {
				out[i] = mo.Entries[k]
			}
			return ListOf(out)
		},
		"containsKey": func(r *Runner, recv Value, args []Value) Value {
			needArgs(r, "containsKey", args, 1)
			_, ok := recv.Data.(*MapObject).Get(argStr(r, "containsKey", args, 0))
			return BoolOf(ok)
		},
		"remove": func(r *Runner, recv Value, args []Value) Value {
			needArgs(r, "remove", args, 1)
			return BoolOf(recv.Data.(*MapObject).Delete(argStr(r, "remove", args, 0)))
		},
		"getOr": func(r *Runner, recv Value, args []Value) Value {
			needArgs(r, "getOr", args, 2)
			if v, ok := recv.Data.(*MapObject).Get(argStr(r, "getOr", args, 0)); ok {
				return v
			}
			return args[1]
		},
	},
	KInt: {
		"toReal": func(r *Runner, recv Value, args []Value) Value {
			return RealOf(float64(recv.Data.(int64)))
		},
		"toChar": func(r *Runner, recv Value, args []Value) Value {
			return CharOf(rune(recv.Data.(int64)))
		},
		"abs": func(r *Runner, recv Value, args []Value) Value {
			n := recv.Data.(int64)
			if n < 0 {
				n = -n
			}
			return IntOf(n)
		},
	},
	KReal: {
		"toInt": func(r *Runner, recv Value, args []Value) Value {
			return IntOf(int64(recv.Data.(float64)))
		},
		"abs": func(r *Runner, recv Value, args []Value) Value {
			return RealOf(math.Abs(recv.Data.(float64)))
		},
		"isFinite": func(r *Runner, recv Value, args []Value) Value {
			f := recv.Data.(float64)
			return BoolOf(!math.IsInf(f, 0) && !math.IsNaN(f))
		},
	},
	KChar: {
		"code": func(r *Runner, recv Value, args []Value) Value {
			return IntOf(int64(recv.Data.(rune)))
		},
	},
	KRange: {
		"size": func(r *Runner, recv Value, args []Value) Value {
			return IntOf(recv.Data.(*Range).Len())
		},
		"toList": func(r *Runner, recv Value, args []Value) Value {
			rg := recv.Data.(*Range)
			out := make([]Value, 0, rg.Len())
			hi := rg.Hi
			if !rg.Exclusive {
				hi++
			}
			for n := rg.Lo; n < hi; n++ {
				out = append(out, IntOf(n))
			}
			return ListOf(out)
		},
	},
	KTask: {
		"await": func(r *Runner, recv Value, args []Value) Value {
			return recv.Data.(*Task).await(r, nativePos())
		},
		"isDone": func(r *Runner, recv Value, args []Value) Value {
			return BoolOf(recv.Data.(*Task).isDone())
		},
		"cancel": func(r *Runner, recv Value, args []Value) Value {
			recv.Data.(*Task).cancel()
			return Void
		},
	},
	KStream: {
		"toList": func(r *Runner, recv Value, args []Value) Value {
			st := recv.Data.(*Stream)
			var out []Value
			for {
				v, ok := st.next(r, nativePos())
				if !ok {
					return ListOf(out)
				}
				out = append(out, v)
			}
		},
		"take": func(r *Runner, recv Value, args []Value) Value {
			needArgs(r, "take", args, 1)
			n := argInt(r, "take", args, 0)
			st := recv.Data.(*Stream)
			var out []Value
			for int64(len(out)) < n {
				v, ok := st.next(r, nativePos())
				if !ok {
					break
				}
				out = append(out, v)
			}
			st.close()
			return ListOf(out)
		},
		"close": func(r *Runner, recv Value, args []Value) Value {
			recv.Data.(*Stream).close()
			return Void
		},
	},
	KInstance: {
		"lynon": func(r *Runner, recv Value, args []Value) Value {
			data, err := EncodeLynon(recv)
			if err != nil {
				r.fail(nativePos(), "%s", err.Error())
			}
			out := make([]Value, len(data))
			for i, b := range data {
				out[i] = IntOf(int64(b))
			}
			return ListOf(out)
		},
	},
}

// sortValues orders a slice with compareValues; mixed incomparable kinds
// surface the usual comparison fault.
func sortValues(r *Runner, xs []Value) {
	// insertion sort keeps this dependency-free and stable; script lists
	// are small
	for i := 1; i < len(xs); i++ {
		for j := i; j > 0 && compareValues(r, nativePos(), xs[j], xs[j-1]) < 0; j-- {
			xs[j], xs[j-1] = xs[j-1], xs[j]
		}
	}
}

// ----- standard packages -----

// registerStdPackages installs the always-available script packages. The
// capability-guarded host packages live in hostmods.go.
func registerStdPackages(in *Interp) {
	in.registry.RegisterNative("lyng.math", func(r *Runner, m *ModuleScope) error {
		def := func(name string, fn NativeFn) {
			m.scope.Define(name, FnOf(&Fn{Name: name, Native: fn}), false)
		}
		m.scope.Define("pi", RealOf(math.Pi), false)
		m.scope.Define("e", RealOf(math.E), false)
		def("sqrt", func(r *Runner, _ Value, args []Value) Value {
			needArgs(r, "sqrt", args, 1)
			return RealOf(math.Sqrt(argReal(r, "sqrt", args, 0)))
		})
		def("pow", func(r *Runner, _ Value, args []Value) Value {
			needArgs(r, "pow", args, 2)
			return RealOf(math.Pow(argReal(r, "pow", args, 0), argReal(r, "pow", args, 1)))
		})
		def("floor", func(r *Runner, _ Value, args []Value) Value {
			needArgs(r, "floor", args, 1)
			return IntOf(int64(math.Floor(argReal(r, "floor", args, 0))))
		})
		def("ceil", func(r *Runner, _ Value, args []Value) Value {
			needArgs(r, "ceil", args, 1)
			return IntOf(int64(math.Ceil(argReal(r, "ceil", args, 0))))
		})
		def("round", func(r *Runner, _ Value, args []Value) Value {
			needArgs(r, "round", args, 1)
			return IntOf(int64(math.Round(argReal(r, "round", args, 0))))
		})
		def("min", func(r *Runner, _ Value, args []Value) Value {
			needArgs(r, "min", args, 2)
			if compareValues(r, nativePos(), args[0], args[1]) <= 0 {
				return args[0]
			}
			return args[1]
		})
		def("max", func(r *Runner, _ Value, args []Value) Value {
			needArgs(r, "max", args, 2)
			if compareValues(r, nativePos(), args[0], args[1]) >= 0 {
				return args[0]
			}
			return args[1]
		})
		return nil
	})

	in.registry.RegisterNative("lyng.time", func(r *Runner, m *ModuleScope) error {
		installTimePackage(m)
		return nil
	})
}
