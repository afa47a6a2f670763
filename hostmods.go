// hostmods.go — capability-guarded host packages.
//
// lyng.fs and lyng.process expose a deliberately small slice of the host to
// scripts. Every operation consults the engine's AccessPolicy first and
// raises AccessDeniedException on refusal; denials are logged so embedders
// can audit probing scripts.
package lyng

import (
	"os"
	"sort"
	"strings"
)

// RegisterHostPackages installs lyng.fs and lyng.process. They are opt-in:
// embedders that never call this keep scripts fully hermetic regardless of
// policy. Calling it twice on one Interp is an error.
func RegisterHostPackages(in *Interp) error {
	if err := in.registry.RegisterNative("lyng.fs", func(_ *Runner, m *ModuleScope) error {
		installFsPackage(m)
		return nil
	}); err != nil {
		return err
	}
	return in.registry.RegisterNative("lyng.process", func(_ *Runner, m *ModuleScope) error {
		installProcessPackage(m)
		return nil
	})
}

// guard wraps a native with a capability check.
func guard(pkg, op string, fn NativeFn) NativeFn {
	return func(r *Runner, recv Value, args []Value) Value {
		r.requireCapability(pkg, op)
		return fn(r, recv, args)
	}
}

func installFsPackage(m *ModuleScope) {
	const pkg = "lyng.fs"
	def := func(name, op string, fn NativeFn) {
		m.scope.Define(name, FnOf(&Fn{Name: name, Native: guard(pkg, op, fn)}), false)
	}

	def("readText", "read", func(r *Runner, _ Value, args []Value) Value {
		needArgs(r, "readText", args, 1)
		path := argStr(r, "readText", args, 0)
		data, err := os.ReadFile(path)
		if err != nil {
			r.fail(nativePos(), "readText: %s", err.Error())
		}
		return StrOf(string(data))
	})
	def("writeText", "write", func(r *Runner, _ Value, args []Value) Value {
		needArgs(r, "writeText", args, 2)
		path := argStr(r, "writeText", args, 0)
		text := argStr(r, "writeText", args, 1)
		if err := os.WriteFile(path, []byte(text), 0o644); err != nil {
			r.fail(nativePos(), "writeText: %s", err.Error())
		}
		return Void
	})
	def("exists", "read", func(r *Runner, _ Value, args []Value) Value {
		needArgs(r, "exists", args, 1)
		_, err := os.Stat(argStr(r, "exists", args, 0))
		return BoolOf(err == nil)
	})
	def("listDir", "read", func(r *Runner, _ Value, args []Value) Value {
		needArgs(r, "listDir", args, 1)
		entries, err := os.ReadDir(argStr(r, "listDir", args, 0))
		if err != nil {
			r.fail(nativePos(), "listDir: %s", err.Error())
		}
		out := make([]Value, len(entries))
		for i, e := range entries {
			out[i] = StrOf(e.Name())
		}
		return ListOf(out)
	})
	def("remove", "write", func(r *Runner, _ Value, args []Value) Value {
		needArgs(r, "remove", args, 1)
		if err := os.Remove(argStr(r, "remove", args, 0)); err != nil {
			r.fail(nativePos(), "remove: %s", err.Error())
		}
		return Void
	})
}

func installProcessPackage(m *ModuleScope) {
	const pkg = "lyng.process"
	def := func(name, op string, fn NativeFn) {
		m.scope.Define(name, FnOf(&Fn{Name: name, Native: guard(pkg, op, fn)}), false)
	}

	def("env", "env", func(r *Runner, _ Value, args []Value) Value {
		needArgs(r, "env", args, 1)
		if v, ok := os.LookupEnv(argStr(r, "env", args, 0)); ok {
			return StrOf(v)
		}
		return Null
	})
	def("envNames", "env", func(r *Runner, _ Value, args []Value) Value {
		environ := os.Environ()
		names := make([]string, 0, len(environ))
		for _, kv := range environ {
			if i := strings.IndexByte(kv, '='); i > 0 {
				names = append(names, kv[:i])
			}
		}
		sort.Strings(names)
		out := make([]Value, len(names))
		for i, n := range names {
			out[i] = StrOf(n)
		}
		return ListOf(out)
	})
	def("cwd", "env", func(r *Runner, _ Value, args []Value) Value {
		wd, err := os.Getwd()
		if err != nil {
			r.fail(nativePos(), "cwd: %s", err.Error())
		}
		return StrOf(wd)
	})
	def("hostname", "env", func(r *Runner, _ Value, args []Value) Value {
		h, err := os.Hostname()
		if err != nil {
			r.fail(nativePos(), "hostname: %s", err.Error())
		}
		return StrOf(h)
	})
}
