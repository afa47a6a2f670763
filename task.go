// task.go — concurrent execution values.
//
// Task wraps a function running in its own goroutine with its own Runner
// (and therefore its own frame pool — pools are never shared between
// goroutines). Stream is a cooperative generator over a rendezvous channel:
// the producer blocks in emit until a consumer pulls, so generation is as
// lazy as the consumption.
//
// Values captured by the spawned closure are shared with the parent
// execution; coordinating mutation of shared state is the script's
// responsibility, as it is for any closure.
package lyng

import (
	"context"
	"sync"
	"time"
)

// Task is a handle on an asynchronous function invocation.
type Task struct {
	done     chan struct{}
	result   Value
	sig      *throwSignal
	cancelFn context.CancelFunc
	once     sync.Once
}

// spawnTask launches f on its own goroutine under a cancelable child
// context of the caller's.
func spawnTask(r *Runner, f *Fn) Value {
	ctx, cancel := context.WithCancel(r.ctx)
	if f.Env != nil {
		markCaptured(f.Env)
	}
	t := &Task{done: make(chan struct{}), cancelFn: cancel}
	nr := &Runner{interp: r.interp, ctx: ctx, pool: &scopePool{}}
	go func() {
		defer close(t.done)
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if ts, ok := rec.(*throwSignal); ok {
				t.sig = ts
				return
			}
			panic(rec)
		}()
		t.result = nr.callFn(nativePos(), f, nil)
	}()
	return Value{Kind: KTask, Data: t}
}

// await blocks until the task settles or the awaiting execution is
// cancelled. A task that failed rethrows its exception at the await site.
func (t *Task) await(r *Runner, pos Pos) Value {
	select {
	case <-t.done:
		if t.sig != nil {
			panic(&throwSignal{val: t.sig.val, pos: pos})
		}
		return t.result
	case <-r.ctx.Done():
		panic(&throwSignal{val: r.newException(classCancellation, r.ctx.Err().Error()), pos: pos})
	}
}

func (t *Task) isDone() bool {
	select {
	case <-t.done:
		return true
	default:
		return false
	}
}

// cancel requests cooperative cancellation; the task observes it at its
// next suspension point.
func (t *Task) cancel() {
	t.once.Do(t.cancelFn)
}

// ----- streams -----

// Stream is a pull-driven value sequence produced by a generator function.
// A consumer that stops pulling before exhaustion must call close, or the
// producer stays blocked in emit until the execution context ends. For
// loops and take do this automatically; manual next callers own the
// obligation.
type Stream struct {
	ch   chan Value
	done chan struct{}
	stop chan struct{}
	sig  *throwSignal
	once sync.Once
}

// newStream starts the generator f, passing it an emit function. Sends are
// unbuffered, so f advances only as fast as consumers pull.
func newStream(r *Runner, f *Fn) Value {
	if f.Env != nil {
		markCaptured(f.Env)
	}
	st := &Stream{
		ch:   make(chan Value),
		done: make(chan struct{}),
		stop: make(chan struct{}),
	}
	nr := &Runner{interp: r.interp, ctx: r.ctx, pool: &scopePool{}}

	emit := FnOf(&Fn{Name: "emit", Native: func(r *Runner, _ Value, args []Value) Value {
		needArgs(r, "emit", args, 1)
		select {
		case st.ch <- args[0]:
			return Void
		case <-st.stop:
			r.throwErr(nativePos(), classCancellation, "stream closed by consumer")
		case <-r.ctx.Done():
			r.throwErr(nativePos(), classCancellation, "%s", r.ctx.Err().Error())
		}
		return Void
	}})

	go func() {
		defer close(st.done)
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if ts, ok := rec.(*throwSignal); ok {
				// a closed stream terminates silently; real exceptions
				// surface at the consumer's next pull
				if ts.val.Kind == KInstance &&
					ts.val.Data.(*Instance).Class == classCancellation {
					return
				}
				st.sig = ts
				return
			}
			panic(rec)
		}()
		nr.callFn(nativePos(), f, []boundArg{{val: emit}})
	}()
	return Value{Kind: KStream, Data: st}
}

// next pulls one element. ok=false means the stream is exhausted.
func (s *Stream) next(r *Runner, pos Pos) (Value, bool) {
	select {
	case v := <-s.ch:
		return v, true
	case <-s.done:
		if s.sig != nil {
			sig := s.sig
			s.sig = nil // rethrow once
			panic(&throwSignal{val: sig.val, pos: pos})
		}
		return Value{}, false
	case <-r.ctx.Done():
		panic(&throwSignal{val: r.newException(classCancellation, r.ctx.Err().Error()), pos: pos})
	}
}

// close detaches the consumer; a producer blocked in emit unwinds.
func (s *Stream) close() {
	s.once.Do(func() { close(s.stop) })
}

// ----- lyng.time package -----

func installTimePackage(m *ModuleScope) {
	def := func(name string, fn NativeFn) {
		m.scope.Define(name, FnOf(&Fn{Name: name, Native: fn}), false)
	}
	def("now", func(r *Runner, _ Value, args []Value) Value {
		return IntOf(time.Now().UnixMilli())
	})
	def("sleep", func(r *Runner, _ Value, args []Value) Value {
		needArgs(r, "sleep", args, 1)
		ms := argInt(r, "sleep", args, 0)
		select {
		case <-time.After(time.Duration(ms) * time.Millisecond):
			return Void
		case <-r.ctx.Done():
			r.throwErr(nativePos(), classCancellation, "%s", r.ctx.Err().Error())
		}
		return Void
	})
}
