package lyng

import "testing"

func TestLenientHarvestsDeclarations(t *testing.T) {
	sum, err := CompileLenient("<t>", `
import lyng.math
val limit = 100
var count = 0
fn scan(items, depth) { items }
class Node(val value, var next)
enum State { IDLE, BUSY }
`)
	if err != nil {
		t.Fatal(err)
	}
	if len(sum.Errors) != 0 {
		t.Fatalf("unexpected diagnostics: %v", sum.Errors)
	}
	want := []struct {
		kind DeclKind
		name string
	}{
		{DeclImport, "lyng.math"},
		{DeclVal, "limit"},
		{DeclVar, "count"},
		{DeclFn, "scan"},
		{DeclClass, "Node"},
		{DeclEnum, "State"},
	}
	if len(sum.Decls) != len(want) {
		t.Fatalf("got %d decls, want %d: %v", len(sum.Decls), len(want), sum.Decls)
	}
	for i, w := range want {
		if sum.Decls[i].Kind != w.kind || sum.Decls[i].Name != w.name {
			t.Errorf("decl %d: got %s %q, want %s %q",
				i, sum.Decls[i].Kind, sum.Decls[i].Name, w.kind, w.name)
		}
	}
}

func TestLenientRecordsParams(t *testing.T) {
	sum, err := CompileLenient("<t>", "fn add(a, b, rest...) { a }")
	if err != nil {
		t.Fatal(err)
	}
	if len(sum.Decls) != 1 {
		t.Fatalf("got %v", sum.Decls)
	}
	got := sum.Decls[0].Params
	if len(got) != 3 || got[0] != "a" || got[1] != "b" || got[2] != "rest" {
		t.Fatalf("params: %v", got)
	}
}

func TestLenientSkipsBrokenStatement(t *testing.T) {
	sum, err := CompileLenient("<t>", `
fn before() { 1 }
val broken = )
fn after() { 3 }
`)
	if err != nil {
		t.Fatal(err)
	}
	if len(sum.Errors) == 0 {
		t.Fatal("expected a diagnostic for the broken statement")
	}
	names := map[string]bool{}
	for _, d := range sum.Decls {
		names[d.Name] = true
	}
	if !names["before"] {
		t.Error("declaration before the error was lost")
	}
	if !names["after"] {
		t.Error("declaration after the error was lost")
	}
}

func TestLenientCollectsMultipleErrors(t *testing.T) {
	sum, err := CompileLenient("<t>", `
val a = *
val b = 1
val c = *
val d = 2
`)
	if err != nil {
		t.Fatal(err)
	}
	if len(sum.Errors) != 2 {
		t.Fatalf("got %d diagnostics (%v), want 2", len(sum.Errors), sum.Errors)
	}
	if sum.Errors[0].Pos.Line != 2 || sum.Errors[1].Pos.Line != 4 {
		t.Fatalf("diagnostic lines: %d, %d", sum.Errors[0].Pos.Line, sum.Errors[1].Pos.Line)
	}
	var names []string
	for _, d := range sum.Decls {
		names = append(names, d.Name)
	}
	if len(names) != 2 || names[0] != "b" || names[1] != "d" {
		t.Fatalf("surviving decls: %v", names)
	}
}

func TestLenientAnonymousFnIsNotADecl(t *testing.T) {
	sum, err := CompileLenient("<t>", "val f = fn(x) { x }")
	if err != nil {
		t.Fatal(err)
	}
	// only the val binding is harvested, not the function value
	if len(sum.Decls) != 1 || sum.Decls[0].Kind != DeclVal || sum.Decls[0].Name != "f" {
		t.Fatalf("got %v", sum.Decls)
	}
}

func TestLenientLexErrorAborts(t *testing.T) {
	_, err := CompileLenient("<t>", "val s = \"open")
	if err == nil {
		t.Fatal("expected lex error to abort")
	}
}

func TestLenientBodyIsExecutable(t *testing.T) {
	sum, err := CompileLenient("<t>", "val x = 40\nval broken = (\nval y = 2")
	if err != nil {
		t.Fatal(err)
	}
	if len(sum.Body) != 2 {
		t.Fatalf("got %d clean statements, want 2", len(sum.Body))
	}
}
