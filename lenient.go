// lenient.go — error-tolerant compilation for tooling.
//
// Editors and the REPL completer need declaration information from sources
// that do not parse cleanly yet. CompileLenient parses statement by
// statement; a statement that fails is recorded as a diagnostic and skipped
// by resyncing to the next statement boundary, so one broken line does not
// hide the declarations after it.
package lyng

// DeclKind classifies one harvested top-level declaration.
type DeclKind int

const (
	DeclFn DeclKind = iota
	DeclClass
	DeclEnum
	DeclVal
	DeclVar
	DeclImport
)

func (k DeclKind) String() string {
	switch k {
	case DeclFn:
		return "fn"
	case DeclClass:
		return "class"
	case DeclEnum:
		return "enum"
	case DeclVal:
		return "val"
	case DeclVar:
		return "var"
	case DeclImport:
		return "import"
	}
	return "?"
}

// Decl is one top-level declaration found by the lenient pass.
type Decl struct {
	Kind   DeclKind
	Name   string   // declared name, or the package name for imports
	Params []string // parameter names of fn/class constructors
	Pos    Pos
}

// DeclSummary is the result of CompileLenient: everything that parsed plus
// the diagnostics for everything that did not.
type DeclSummary struct {
	Decls  []Decl
	Errors []*ParseError
	// Body holds the statements that parsed cleanly, in source order.
	// It is executable, but callers interested in execution should prefer
	// Compile, which refuses broken sources outright.
	Body []Node
}

// CompileLenient parses as much of src as possible, harvesting top-level
// declarations and collecting (never returning) syntax errors. A lex error
// still aborts: without a token stream there is nothing to recover.
func CompileLenient(name, src string) (*DeclSummary, error) {
	toks, err := NewLexer(name, src).Scan()
	if err != nil {
		return nil, err
	}
	p := &parser{toks: toks, file: name}
	sum := &DeclSummary{}
	for !p.check(EOF) {
		if p.match(SEMI) {
			continue
		}
		n, perr := p.tryStatement()
		if perr != nil {
			sum.Errors = append(sum.Errors, perr)
			p.resync()
			continue
		}
		sum.Body = append(sum.Body, n)
		if d, ok := summarize(n); ok {
			sum.Decls = append(sum.Decls, d)
		}
	}
	return sum, nil
}

// tryStatement parses one statement, converting the parser's panic-based
// error signaling back into a return value.
func (p *parser) tryStatement() (n Node, perr *ParseError) {
	defer func() {
		if r := recover(); r != nil {
			pe, ok := r.(*ParseError)
			if !ok {
				panic(r)
			}
			n, perr = nil, pe
		}
	}()
	n = p.statement()
	if !p.check(EOF) {
		p.endStatement()
	}
	return n, nil
}

// resync advances to the next plausible statement start: a token on a new
// line at bracket depth zero, or just past a ';'.
func (p *parser) resync() {
	depth := 0
	for !p.check(EOF) {
		t := p.peek()
		switch t.Type {
		case LPAREN, LSQUARE, LBRACE:
			depth++
		case RPAREN, RSQUARE, RBRACE:
			if depth > 0 {
				depth--
			}
		case SEMI:
			if depth == 0 {
				p.advance()
				return
			}
		}
		if depth == 0 && t.NLOK {
			return
		}
		p.advance()
	}
}

func summarize(n Node) (Decl, bool) {
	switch d := n.(type) {
	case *FnNode:
		if !d.Declare {
			return Decl{}, false
		}
		return Decl{Kind: DeclFn, Name: d.Decl.Name, Params: paramNames(d.Decl.Params), Pos: d.Pos()}, true
	case *ClassNode:
		return Decl{Kind: DeclClass, Name: d.Decl.Name, Params: paramNames(d.Decl.CtorParams), Pos: d.Pos()}, true
	case *EnumNode:
		return Decl{Kind: DeclEnum, Name: d.Name, Params: append([]string(nil), d.Entries...), Pos: d.Pos()}, true
	case *VarDeclNode:
		kind := DeclVal
		if d.Mutable {
			kind = DeclVar
		}
		return Decl{Kind: kind, Name: d.Name, Pos: d.Pos()}, true
	case *ImportNode:
		return Decl{Kind: DeclImport, Name: d.Module, Pos: d.Pos()}, true
	}
	return Decl{}, false
}

func paramNames(ps []Param) []string {
	if len(ps) == 0 {
		return nil
	}
	out := make([]string, len(ps))
	for i, prm := range ps {
		out[i] = prm.Name
	}
	return out
}
