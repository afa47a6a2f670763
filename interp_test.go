package lyng

import (
	"context"
	"strings"
	"testing"
	"time"
)

// --- helpers ---------------------------------------------------------------

func evalSrc(t *testing.T, src string) Value {
	t.Helper()
	in := NewInterp()
	v, err := in.Eval(context.Background(), "<test>", src)
	if err != nil {
		t.Fatalf("eval error: %v\nsource:\n%s", err, src)
	}
	return v
}

func evalErr(t *testing.T, src string) error {
	t.Helper()
	in := NewInterp()
	_, err := in.Eval(context.Background(), "<test>", src)
	if err == nil {
		t.Fatalf("expected an error, got none\nsource:\n%s", src)
	}
	return err
}

func wantInt(t *testing.T, v Value, n int64) {
	t.Helper()
	if v.Kind != KInt || v.Data.(int64) != n {
		t.Fatalf("want Int %d, got %#v", n, v)
	}
}

func wantReal(t *testing.T, v Value, f float64) {
	t.Helper()
	if v.Kind != KReal || v.Data.(float64) != f {
		t.Fatalf("want Real %g, got %#v", f, v)
	}
}

func wantStr(t *testing.T, v Value, s string) {
	t.Helper()
	if v.Kind != KStr || v.Data.(string) != s {
		t.Fatalf("want String %q, got %#v", s, v)
	}
}

func wantBool(t *testing.T, v Value, b bool) {
	t.Helper()
	if v.Kind != KBool || v.Data.(bool) != b {
		t.Fatalf("want Bool %v, got %#v", b, v)
	}
}

func wantErrContains(t *testing.T, err error, sub string) {
	t.Helper()
	if !strings.Contains(err.Error(), sub) {
		t.Fatalf("error %q does not contain %q", err.Error(), sub)
	}
}

// --- basics ----------------------------------------------------------------

func TestArithmetic(t *testing.T) {
	wantInt(t, evalSrc(t, "1 + 2 * 3"), 7)
	wantInt(t, evalSrc(t, "(1 + 2) * 3"), 9)
	wantInt(t, evalSrc(t, "7 / 2"), 3)
	wantInt(t, evalSrc(t, "7 % 3"), 1)
	wantReal(t, evalSrc(t, "1 + 0.5"), 1.5)
	wantInt(t, evalSrc(t, "-5 + 2"), -3)
}

func TestDivisionByZero(t *testing.T) {
	wantErrContains(t, evalErr(t, "1 / 0"), "division by zero")
}

func TestStringOps(t *testing.T) {
	wantStr(t, evalSrc(t, `"ab" + "cd"`), "abcd")
	wantStr(t, evalSrc(t, `"n=" + 42`), "n=42")
	wantStr(t, evalSrc(t, `"ab" * 3`), "ababab")
	wantInt(t, evalSrc(t, `"héllo".size()`), 5)
	wantBool(t, evalSrc(t, `"lo" in "hello"`), true)
}

func TestValVarAndReassignment(t *testing.T) {
	v := evalSrc(t, "val a = 1\nvar b = 2\nb = b + a\nb")
	wantInt(t, v, 3)

	err := evalErr(t, "val a = 1\na = 2")
	wantErrContains(t, err, "cannot reassign immutable value")
}

func TestCompoundAssignment(t *testing.T) {
	wantInt(t, evalSrc(t, "var x = 10\nx += 5\nx -= 3\nx *= 2\nx"), 24)
}

func TestNewlineSeparatesStatements(t *testing.T) {
	// an operator starting a new line ends the previous statement
	wantInt(t, evalSrc(t, "var b = 2\nb = b + 1\nb"), 3)
	if _, err := Compile("<t>", "val x = 1 val y = 2"); err == nil {
		t.Fatal("two statements on one line without a separator must not parse")
	}
	wantInt(t, evalSrc(t, "val x = 1; val y = 2; x + y"), 3)
}

func TestBooleanConditionsOnly(t *testing.T) {
	wantErrContains(t, evalErr(t, "if (1) 2 else 3"), "condition must be Bool")
}

func TestIfIsAnExpression(t *testing.T) {
	wantInt(t, evalSrc(t, "if (true) 1 else 2"), 1)
	wantInt(t, evalSrc(t, "val x = if (2 > 3) 10 else 20\nx"), 20)
	v := evalSrc(t, "if (false) 1")
	if v.Kind != KVoid {
		t.Fatalf("if without else and false condition must yield void, got %#v", v)
	}
}

func TestElvisAndNullSafe(t *testing.T) {
	wantInt(t, evalSrc(t, "null ?: 5"), 5)
	wantInt(t, evalSrc(t, "3 ?: 5"), 3)
	v := evalSrc(t, "val x = null\nx?.size()")
	if v.Kind != KNull {
		t.Fatalf("null-safe access on null must yield null, got %#v", v)
	}
}

func TestRanges(t *testing.T) {
	wantBool(t, evalSrc(t, "5 in 1..10"), true)
	wantBool(t, evalSrc(t, "10 in 1..<10"), false)
	wantInt(t, evalSrc(t, "(1..10).size()"), 10)
	wantInt(t, evalSrc(t, "(1..<10).size()"), 9)
}

func TestSpaceship(t *testing.T) {
	wantInt(t, evalSrc(t, "1 <=> 2"), -1)
	wantInt(t, evalSrc(t, "2 <=> 2"), 0)
	wantInt(t, evalSrc(t, `"b" <=> "a"`), 1)
}

// --- functions -------------------------------------------------------------

func TestRecursion(t *testing.T) {
	v := evalSrc(t, "fn f(n) { if (n <= 0) 0 else n + f(n - 1) }\nf(5)")
	wantInt(t, v, 15)
}

func TestDefaultAndNamedArguments(t *testing.T) {
	wantInt(t, evalSrc(t, "fn g(a, b = 10) { a + b }\ng(1)"), 11)
	wantInt(t, evalSrc(t, "fn g(a, b = 10) { a + b }\ng(1, b = 2)"), 3)
	wantInt(t, evalSrc(t, "fn g(a, b = a + 1) { a + b }\ng(4)"), 9)
	wantErrContains(t, evalErr(t, "fn g(a) { a }\ng(1, z = 2)"), "unknown named argument")
	wantErrContains(t, evalErr(t, "fn g(a, b) { a }\ng(1)"), "missing argument")
}

func TestVariadicAndSpread(t *testing.T) {
	wantInt(t, evalSrc(t, "fn h(xs...) { xs.size() }\nh(1, 2, 3)"), 3)
	wantInt(t, evalSrc(t, "fn h(xs...) { xs.size() }\nh([1, 2]...)"), 2)
	wantInt(t, evalSrc(t, "fn h(first, rest...) { first + rest.size() }\nh(10, 1, 2)"), 12)
}

func TestClosures(t *testing.T) {
	src := `
fn counter() {
    var n = 0
    fn inc() {
        n = n + 1
        n
    }
    inc
}
val c = counter()
c()
c()
c()
`
	wantInt(t, evalSrc(t, src), 3)
}

func TestAnonymousFunctions(t *testing.T) {
	wantInt(t, evalSrc(t, "val f = fn(x) { x * 2 }\nf(21)"), 42)
	wantInt(t, evalSrc(t, "[1, 2, 3].map(fn(x) { x * x })[2]"), 9)
}

func TestReturn(t *testing.T) {
	wantInt(t, evalSrc(t, "fn f(x) { if (x > 0) { return 1 }\nreturn -1 }\nf(5)"), 1)
}

func TestCallDepthLimit(t *testing.T) {
	wantErrContains(t, evalErr(t, "fn f() { f() }\nf()"), "depth limit")
}

// --- loops -----------------------------------------------------------------

func TestWhileLoopResultLaw(t *testing.T) {
	// break with a value makes the loop yield it
	src := `
var i = 0
while (true) {
    i += 1
    if (i == 7) break i * 10
}
`
	wantInt(t, evalSrc(t, src), 70)

	// normal completion yields the else branch
	wantInt(t, evalSrc(t, "while (false) { 1 } else 42"), 42)

	// without an else, the last iteration's value
	wantInt(t, evalSrc(t, "var i = 0\nwhile (i < 3) { i += 1\ni * 10 }"), 30)
	wantInt(t, evalSrc(t, "for (i in 1..4) { i * i }"), 16)

	// a loop that never runs and has no else yields void
	v := evalSrc(t, "while (false) { 1 }")
	if v.Kind != KVoid {
		t.Fatalf("zero-iteration loop without else must yield void, got %#v", v)
	}
}

func TestDoWhile(t *testing.T) {
	wantInt(t, evalSrc(t, "var i = 0\ndo { i += 1 } while (i < 5)\ni"), 5)
	// body runs at least once
	wantInt(t, evalSrc(t, "var i = 0\ndo { i += 1 } while (false)\ni"), 1)
}

func TestForLoop(t *testing.T) {
	wantInt(t, evalSrc(t, "var s = 0\nfor (i in 1..5) { s += i }\ns"), 15)
	wantInt(t, evalSrc(t, `var s = 0`+"\n"+`for (x in [10, 20, 30]) { s += x }`+"\n"+`s`), 60)
	wantStr(t, evalSrc(t, `var s = ""`+"\n"+`for (c in "abc") { s += c.toString() }`+"\n"+`s`), "abc")
	// for-else, and break skipping it
	wantInt(t, evalSrc(t, "for (i in 1..3) { i } else 99"), 99)
	wantInt(t, evalSrc(t, "for (i in 1..10) { if (i == 4) break i } else 99"), 4)
}

func TestForOverMapYieldsEntries(t *testing.T) {
	src := `
val m = { a: 1, b: 2 }
var s = ""
for (e in m) { s += e[0] }
s
`
	wantStr(t, evalSrc(t, src), "ab")
}

func TestContinue(t *testing.T) {
	src := `
var s = 0
for (i in 1..10) {
    if (i % 2 == 0) continue
    s += i
}
s
`
	wantInt(t, evalSrc(t, src), 25)
}

func TestBreakOutsideLoop(t *testing.T) {
	wantErrContains(t, evalErr(t, "break"), "break outside of a loop")
}

// --- when ------------------------------------------------------------------

func TestWhen(t *testing.T) {
	src := `
fn classify(x) {
    when (x) {
        0, 1 -> "tiny"
        in 2..9 -> "small"
        is String -> "text"
        else -> "big"
    }
}
classify(1) + " " + classify(5) + " " + classify("hi") + " " + classify(100)
`
	wantStr(t, evalSrc(t, src), "tiny small text big")
}

// --- exceptions ------------------------------------------------------------

func TestTryCatch(t *testing.T) {
	src := `
try {
    throw IllegalArgumentException("bad input")
    "unreached"
} catch (e: IllegalArgumentException) {
    e.message
}
`
	wantStr(t, evalSrc(t, src), "bad input")
}

func TestCatchByBaseClass(t *testing.T) {
	src := `
try {
    1 / 0
} catch (e: Exception) {
    "caught"
}
`
	wantStr(t, evalSrc(t, src), "caught")
}

func TestTypedCatchMiss(t *testing.T) {
	err := evalErr(t, `
try {
    throw Exception("boom")
} catch (e: IllegalArgumentException) {
    "wrong"
}
`)
	wantErrContains(t, err, "boom")
}

func TestFinallyAlwaysRuns(t *testing.T) {
	src := `
var log = ""
try {
    try {
        throw Exception("x")
    } finally {
        log += "F"
    }
} catch (e) {
    log += "C"
}
log
`
	wantStr(t, evalSrc(t, src), "FC")
}

func TestThrowString(t *testing.T) {
	wantStr(t, evalSrc(t, `try { throw "plain" } catch (e) { e.message }`), "plain")
}

func TestUncaughtExceptionSurfacesAsError(t *testing.T) {
	err := evalErr(t, `throw Exception("escaped")`)
	ee, ok := err.(*ExecError)
	if !ok {
		t.Fatalf("want *ExecError, got %T", err)
	}
	if ee.Thrown.Kind != KInstance {
		t.Fatalf("ExecError must carry the thrown instance, got %#v", ee.Thrown)
	}
	wantErrContains(t, err, "escaped")
}

// --- collections -----------------------------------------------------------

func TestListOps(t *testing.T) {
	wantInt(t, evalSrc(t, "[1, 2, 3].size()"), 3)
	wantInt(t, evalSrc(t, "[1, 2, 3][1]"), 2)
	wantInt(t, evalSrc(t, "[1, 2, 3][-1]"), 3)
	wantInt(t, evalSrc(t, "val l = [1]\nl.add(2, 3)\nl.size()"), 3)
	wantInt(t, evalSrc(t, "[1, [2, 3]..., 4].size()"), 4)
	wantStr(t, evalSrc(t, `[1, 2].join("-")`), "1-2")
	wantInt(t, evalSrc(t, "[3, 1, 2].sorted()[0]"), 1)
	wantErrContains(t, evalErr(t, "[1][5]"), "out of bounds")
}

func TestMapLiteralAndOps(t *testing.T) {
	wantInt(t, evalSrc(t, `val m = { a: 1, "b c": 2 }`+"\n"+`m["b c"] + m.a`), 3)
	wantInt(t, evalSrc(t, "val m = {:}\nm.size()"), 0)
	wantInt(t, evalSrc(t, `val m = { a: 1 }`+"\n"+`m["z"] = 9`+"\n"+`m["z"]`), 9)
	wantBool(t, evalSrc(t, `"a" in { a: 1 }`), true)
	v := evalSrc(t, `{ a: 1 }["missing"]`)
	if v.Kind != KNull {
		t.Fatalf("missing map key must yield null, got %#v", v)
	}
}

// --- scope pooling ---------------------------------------------------------

func TestPoolingIsTransparentAcrossRuns(t *testing.T) {
	in := NewInterp()
	prog, err := Compile("<t>", "fn f(n) { if (n <= 0) 0 else n + f(n - 1) }\nf(5)")
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 10; i++ {
		v, err := in.Execute(context.Background(), prog, in.NewScope())
		if err != nil {
			t.Fatalf("run %d: %v", i, err)
		}
		wantInt(t, v, 15)
	}
}

func TestPoolReusesFrames(t *testing.T) {
	in := NewInterp()
	prog, err := Compile("<t>", "var s = 0\nvar i = 0\nwhile (i < 50) { i += 1\ns += i }\ns")
	if err != nil {
		t.Fatal(err)
	}
	r := &Runner{interp: in, ctx: context.Background(), pool: &scopePool{}}
	out := prog.Body.eval(r, in.NewScope())
	wantInt(t, out, 1275)
	if r.pool.fresh >= r.pool.borrows {
		t.Fatalf("expected frame reuse: %d fresh of %d borrows", r.pool.fresh, r.pool.borrows)
	}
}

func TestPersistentScopeAcrossExecutions(t *testing.T) {
	in := NewInterp()
	sc := in.NewScope()
	ctx := context.Background()

	p1, _ := Compile("<repl>", "var total = 0")
	if _, err := in.Execute(ctx, p1, sc); err != nil {
		t.Fatal(err)
	}
	p2, _ := Compile("<repl>", "total += 21\ntotal")
	v, err := in.Execute(ctx, p2, sc)
	if err != nil {
		t.Fatal(err)
	}
	wantInt(t, v, 21)
	v, err = in.Execute(ctx, p2, sc)
	if err != nil {
		t.Fatal(err)
	}
	wantInt(t, v, 42)
}

// --- cancellation ----------------------------------------------------------

func TestCancellationStopsLoops(t *testing.T) {
	in := NewInterp()
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := in.Eval(ctx, "<t>", "while (true) { 1 }")
	if err == nil {
		t.Fatal("cancelled execution must fail")
	}
	wantErrContains(t, err, "CancellationException")
}

// --- stdlib packages ---------------------------------------------------------

func TestImportMath(t *testing.T) {
	wantReal(t, evalSrc(t, "import lyng.math\nsqrt(9.0)"), 3.0)
	wantInt(t, evalSrc(t, "import lyng.math { floor }\nfloor(3.9)"), 3)
}

func TestAssertBuiltin(t *testing.T) {
	evalSrc(t, `assert(1 + 1 == 2)`)
	wantErrContains(t, evalErr(t, `assert(false, "must hold")`), "must hold")
}
