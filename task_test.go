package lyng

import (
	"context"
	"testing"
	"time"
)

func TestSpawnAndAwait(t *testing.T) {
	wantInt(t, evalSrc(t, `
val task = spawn(fn() {
    var sum = 0
    for (i in 1..42) { sum += 1 }
    sum
})
task.await()
`), 42)
}

func TestAwaitIsIdempotent(t *testing.T) {
	wantInt(t, evalSrc(t, `
val task = spawn(fn() { 7 })
task.await() + task.await()
`), 14)
}

func TestTaskExceptionSurfacesAtAwait(t *testing.T) {
	wantStr(t, evalSrc(t, `
val task = spawn(fn() { throw "boom" })
try {
    task.await()
    "not reached"
} catch(e) {
    e.message
}
`), "boom")
}

func TestTaskIsDone(t *testing.T) {
	wantBool(t, evalSrc(t, `
val task = spawn(fn() { 1 })
task.await()
task.isDone()
`), true)
}

func TestTaskCancelStopsWork(t *testing.T) {
	in := NewInterp()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	v, err := in.Eval(ctx, "<t>", `
val task = spawn(fn() {
    while (true) { }
})
task.cancel()
try {
    task.await()
    "not reached"
} catch(e: CancellationException) {
    "cancelled"
}
`)
	if err != nil {
		t.Fatal(err)
	}
	wantStr(t, v, "cancelled")
}

func TestTasksRunConcurrently(t *testing.T) {
	// the generator hands values over a rendezvous channel, so the task
	// terminates only if producer and consumer actually interleave
	wantInt(t, evalSrc(t, `
val s = stream(fn(emit) {
    for (i in 1..3) { emit(i) }
})
val task = spawn(fn() {
    var sum = 0
    for (x in s) { sum += x }
    sum
})
task.await()
`), 6)
}

func TestStreamToList(t *testing.T) {
	wantStr(t, evalSrc(t, `
val s = stream(fn(emit) {
    emit("a")
    emit("b")
    emit("c")
})
s.toList().join(",")
`), "a,b,c")
}

func TestStreamTakeFromInfiniteGenerator(t *testing.T) {
	wantInt(t, evalSrc(t, `
val s = stream(fn(emit) {
    var i = 1
    while (true) {
        emit(i)
        i += 1
    }
})
val got = s.take(3)
got[0] + got[1] + got[2]
`), 6)
}

func TestStreamForLoop(t *testing.T) {
	wantInt(t, evalSrc(t, `
val s = stream(fn(emit) {
    for (i in 1..5) { emit(i * i) }
})
var sum = 0
for (x in s) { sum += x }
sum
`), 55)
}

func TestStreamGeneratorExceptionReachesConsumer(t *testing.T) {
	wantStr(t, evalSrc(t, `
val s = stream(fn(emit) {
    emit(1)
    throw "generator failed"
})
try {
    s.toList()
    "not reached"
} catch(e) {
    e.message
}
`), "generator failed")
}

func TestStreamCloseTerminatesGenerator(t *testing.T) {
	wantStr(t, evalSrc(t, `
val s = stream(fn(emit) {
    while (true) { emit(0) }
})
s.close()
"ok"
`), "ok")
}

func TestBreakingOutOfStreamLoopReleasesGenerator(t *testing.T) {
	in := NewInterp()
	v, err := in.Eval(context.Background(), "<t>", `
val s = stream(fn(emit) {
    var i = 0
    while (true) {
        emit(i)
        i += 1
    }
})
for (x in s) {
    if (x == 2) break
}
s
`)
	if err != nil {
		t.Fatalf("eval: %v", err)
	}
	st := v.Data.(*Stream)
	select {
	case <-st.done:
	case <-time.After(time.Second):
		t.Fatal("generator is still blocked in emit after the loop ended")
	}
}

func TestTaskCancellationViaHostContext(t *testing.T) {
	in := NewInterp()
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		_, err := in.Eval(ctx, "<t>", `
val task = spawn(fn() { while (true) { } })
task.await()
`)
		done <- err
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		wantErrContains(t, err, "CancellationException")
	case <-time.After(5 * time.Second):
		t.Fatal("cancellation did not interrupt the awaiting execution")
	}
}

func TestSleepIsCancelable(t *testing.T) {
	in := NewInterp()
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := in.Eval(ctx, "<t>", `
import lyng.time
sleep(10000)
`)
	if time.Since(start) > 2*time.Second {
		t.Fatal("sleep ignored context cancellation")
	}
	wantErrContains(t, err, "CancellationException")
}
