// ast.go — the executable statement tree.
//
// There is no bytecode: nodes are the executable form. Each node implements
// Node and knows how to evaluate itself against a scope (the eval methods
// live in interp.go and interp_ops.go). Nodes own their children — the tree
// is strictly acyclic — carry their source position, are built once by the
// parser and are immutable afterwards. Many scopes may evaluate the same
// node concurrently, so eval must never mutate the node.
package lyng

// Node is one executable unit of a compiled program.
type Node interface {
	Pos() Pos
	eval(r *Runner, sc *Scope) Value
}

// Program is the compiled form of one source unit.
type Program struct {
	Name string // display name of the unit (file path, "<eval>", ...)
	Src  string // original source, kept for caret snippets
	Body *BlockNode
}

type nodeBase struct {
	pos Pos
}

func (n nodeBase) Pos() Pos { return n.pos }

// ----- leaf expressions -----

// LitNode yields a fixed value.
type LitNode struct {
	nodeBase
	Val Value
}

// IdentNode resolves a name against the scope chain.
type IdentNode struct {
	nodeBase
	Name string
}

// ----- operators -----

// BinNode is a binary operator application. && , || , ?: and ranges
// short-circuit / construct in eval; everything else dispatches through the
// operator table (with user-class operator overloading).
type BinNode struct {
	nodeBase
	Op   TokenType
	L, R Node
}

// UnNode is prefix '-' or '!'.
type UnNode struct {
	nodeBase
	Op TokenType
	X  Node
}

// IsNode tests instance-of against a class reachable by name.
type IsNode struct {
	nodeBase
	X         Node
	ClassName string
}

// ----- access -----

// CallArg is one call-site argument; Name is set for named arguments and
// Spread marks `xs...` splats.
type CallArg struct {
	Name   string
	Value  Node
	Spread bool
}

// CallNode invokes a callable.
type CallNode struct {
	nodeBase
	Callee Node
	Args   []CallArg
}

// MemberNode reads obj.name (NullSafe for obj?.name, Static for Class::name).
type MemberNode struct {
	nodeBase
	Obj      Node
	Name     string
	NullSafe bool
	Static   bool
}

// IndexNode reads obj[index].
type IndexNode struct {
	nodeBase
	Obj   Node
	Index Node
}

// ----- collections -----

type ListNode struct {
	nodeBase
	Elems   []Node
	Spreads []bool // parallel to Elems
}

type MapEntry struct {
	Key Node
	Val Node
}

type MapNode struct {
	nodeBase
	Entries []MapEntry
}

// ----- statements (every one of them is an expression) -----

// BlockNode evaluates children in order and yields the last value, or void
// for an empty block. Scoped blocks get a child scope.
type BlockNode struct {
	nodeBase
	Stmts  []Node
	Scoped bool
}

// VarDeclNode declares a binding. Delegate, when non-nil, makes this a
// delegated declaration (val x by expr).
type VarDeclNode struct {
	nodeBase
	Name    string
	Mutable bool
	Init    Node   // nil for delegated or uninitialized declarations
	Deleg   Node   // delegate expression for `by`
	TypeAnn string // declared type, recorded as metadata only
}

// AssignNode writes through an lvalue: identifier, member or index target.
// Op is ASSIGN or one of the compound-assignment tokens.
type AssignNode struct {
	nodeBase
	Target Node
	Op     TokenType
	Value  Node
}

type IfNode struct {
	nodeBase
	Cond Node
	Then Node
	Else Node // optional
}

// WhenClause is one branch of a when expression. For the else branch both
// Exprs and In/Is markers are empty.
type WhenClause struct {
	Exprs []Node // matched by equality
	In    []Node // matched by containment (in range/list)
	Is    []string
	Body  Node
	Else  bool
}

type WhenNode struct {
	nodeBase
	Subject Node
	Clauses []WhenClause
}

// WhileNode covers while (Post=false) and do-while (Post=true) loops, each
// with the optional terminal else block.
type WhileNode struct {
	nodeBase
	Cond Node
	Body Node
	Else Node
	Post bool
}

// ForNode iterates lists, maps, ranges, strings and streams.
type ForNode struct {
	nodeBase
	VarName string
	Iter    Node
	Body    Node
	Else    Node
}

// BreakNode carries an optional break value.
type BreakNode struct {
	nodeBase
	Val Node
}

type ContinueNode struct {
	nodeBase
}

type ReturnNode struct {
	nodeBase
	Val Node // nil returns void
}

type ThrowNode struct {
	nodeBase
	X Node
}

// CatchClause matches thrown values against class names via the MRO; an
// empty ClassNames list catches everything.
type CatchClause struct {
	VarName    string
	ClassNames []string
	Body       Node
}

type TryNode struct {
	nodeBase
	Body    Node
	Catches []CatchClause
	Finally Node
}

// ImportNode makes a registered package's scope reachable from the current
// scope. With Symbols it binds only the named symbols instead.
type ImportNode struct {
	nodeBase
	Module  string
	Symbols []string
}

// ----- declarations -----

type FieldKind int

const (
	FieldNone FieldKind = iota // plain parameter
	FieldVal                   // ctor param declares an immutable field
	FieldVar                   // ctor param declares a mutable field
)

// Param is a declared function or constructor parameter. Default-value
// expressions are evaluated at call time in the callee scope. TypeAnn is
// recorded, never enforced.
type Param struct {
	Name     string
	Default  Node
	Variadic bool
	TypeAnn  string
	Field    FieldKind
}

// FnDecl is the compile-time description of a function body.
type FnDecl struct {
	Name   string
	Params []Param
	Body   Node
	Where  Pos
}

// FnNode evaluates to a closure over the current scope; named declarations
// additionally bind the name.
type FnNode struct {
	nodeBase
	Decl    *FnDecl
	Declare bool
}

type MemberKind int

const (
	MemberMethod MemberKind = iota
	MemberField
	MemberProperty
	MemberDelegated
)

// MemberDecl is one class-body declaration.
type MemberDecl struct {
	Kind      MemberKind
	Name      string
	Mutable   bool
	Override  bool
	Static    bool
	Private   bool
	Transient bool
	Fn        *FnDecl // method body
	Init      Node    // field initializer
	Getter    *FnDecl // property accessors
	Setter    *FnDecl
	Deleg     Node // delegate expression for `by`
	Where     Pos
}

// ClassDecl carries everything needed to build a class descriptor at
// evaluation time: base names resolved against the declaring scope, the
// constructor header (which may declare fields) and the member tables.
type ClassDecl struct {
	Name       string
	BaseNames  []string
	CtorParams []Param
	Members    []MemberDecl
	Where      Pos
}

type ClassNode struct {
	nodeBase
	Decl *ClassDecl
}

// EnumNode declares a class whose instances are the fixed named constants.
type EnumNode struct {
	nodeBase
	Name    string
	Entries []string
}
