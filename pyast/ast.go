// Package pyast provides a closed syntax tree for Python scripts.
//
// Scripts are parsed with tree-sitter and lowered into the node types
// declared here. Every statement implements Stmt and every expression
// implements Expr; both interfaces are sealed, so a type switch over the
// types in this file covers every node a tree can contain.
package pyast

// Span locates a node in the source it was parsed from.
// Lines are 1-based and inclusive; bytes are 0-based and half-open.
type Span struct {
	StartByte int
	EndByte   int
	StartLine int
	EndLine   int
	StartCol  int
}

type Node interface {
	Pos() Span
	node()
}

type Stmt interface {
	Node
	stmtNode()
}

type Expr interface {
	Node
	exprNode()
}

type base struct {
	Span Span
}

func (b *base) Pos() Span { return b.Span }
func (*base) node()       {}

// Ctx is the context a Name, Attribute, Subscript, Starred or container
// appears in.
type Ctx int

const (
	Load Ctx = iota
	Store
	Del
)

func (c Ctx) String() string {
	switch c {
	case Store:
		return "store"
	case Del:
		return "del"
	default:
		return "load"
	}
}

// Module is a parsed script.
type Module struct {
	Source []byte
	Body   []Stmt
}

// ---- statements ----

// Alias is one imported name. Name may be dotted; AsName is empty when
// there is no "as" clause.
type Alias struct {
	Name   string
	AsName string
}

// Bound returns the name the alias introduces into the importing scope.
func (a Alias) Bound() string {
	if a.AsName != "" {
		return a.AsName
	}
	for i := 0; i < len(a.Name); i++ {
		if a.Name[i] == '.' {
			return a.Name[:i]
		}
	}
	return a.Name
}

type Import struct {
	base
	Names []Alias
}

// ImportFrom is "from module import names". Level counts leading dots of
// a relative import.
type ImportFrom struct {
	base
	Module   string
	Level    int
	Names    []Alias
	Wildcard bool
}

type ParamKind int

const (
	ParamPositional ParamKind = iota
	ParamVarArgs
	ParamKeywordOnly
	ParamVarKeywords
)

type Param struct {
	Span       Span
	Name       string
	Kind       ParamKind
	Annotation Expr
	Default    Expr
}

// FunctionDef spans from its first decorator when it has any. TypeParams
// are the names of a def[T, U](...) type parameter list.
type FunctionDef struct {
	base
	Name       string
	Async      bool
	Decorators []Expr
	TypeParams []string
	Params     []Param
	Returns    Expr
	Body       []Stmt
}

type ClassDef struct {
	base
	Name       string
	Decorators []Expr
	TypeParams []string
	Bases      []Expr
	Body       []Stmt
}

// Assign holds every target of a chained assignment, leftmost first.
type Assign struct {
	base
	Targets []Expr
	Value   Expr
}

type AugAssign struct {
	base
	Target Expr
	Op     string
	Value  Expr
}

// AnnAssign is an annotated assignment. Value is nil for a bare
// declaration such as "x: int".
type AnnAssign struct {
	base
	Target     Expr
	Annotation Expr
	Value      Expr
}

type ExprStmt struct {
	base
	Value Expr
}

type Return struct {
	base
	Value Expr
}

type Delete struct {
	base
	Targets []Expr
}

type Raise struct {
	base
	Exc   Expr
	Cause Expr
}

type Assert struct {
	base
	Test Expr
	Msg  Expr
}

// Bare is pass, break or continue.
type Bare struct {
	base
	Keyword string
}

type Global struct {
	base
	Names []string
}

type Nonlocal struct {
	base
	Names []string
}

// If lowers elif chains into nested Ifs held in Orelse.
type If struct {
	base
	Test   Expr
	Body   []Stmt
	Orelse []Stmt
}

type For struct {
	base
	Async  bool
	Target Expr
	Iter   Expr
	Body   []Stmt
	Orelse []Stmt
}

type While struct {
	base
	Test   Expr
	Body   []Stmt
	Orelse []Stmt
}

type ExceptHandler struct {
	Span Span
	Type Expr
	Name string
	Body []Stmt
}

type Try struct {
	base
	Body     []Stmt
	Handlers []ExceptHandler
	Orelse   []Stmt
	Finally  []Stmt
}

type WithItem struct {
	Context Expr
	Target  Expr
}

type With struct {
	base
	Async bool
	Items []WithItem
	Body  []Stmt
}

type MatchCase struct {
	Pattern Expr
	Guard   Expr
	Body    []Stmt
}

type Match struct {
	base
	Subject Expr
	Cases   []MatchCase
}

// OpaqueStmt stands for statement kinds the lowering does not model.
// Identifiers below it survive as Name loads in Exprs.
type OpaqueStmt struct {
	base
	Kind  string
	Exprs []Expr
	Body  []Stmt
}

// ---- expressions ----

type Name struct {
	base
	ID  string
	Ctx Ctx
}

type Attribute struct {
	base
	Value Expr
	Attr  string
	Ctx   Ctx
}

type Subscript struct {
	base
	Value Expr
	Index []Expr
	Ctx   Ctx
}

type Slice struct {
	base
	Lower Expr
	Upper Expr
	Step  Expr
}

// Call arguments are positional expressions, *Starred and *KeywordArg.
type Call struct {
	base
	Func Expr
	Args []Expr
}

type KeywordArg struct {
	base
	Name  string
	Value Expr
}

// Starred is *value, or **value when Double is set.
type Starred struct {
	base
	Value  Expr
	Double bool
	Ctx    Ctx
}

type BinOp struct {
	base
	Left  Expr
	Op    string
	Right Expr
}

type UnaryOp struct {
	base
	Op      string
	Operand Expr
}

type BoolOp struct {
	base
	Op     string
	Values []Expr
}

type Compare struct {
	base
	Left        Expr
	Ops         []string
	Comparators []Expr
}

type IfExp struct {
	base
	Test   Expr
	Body   Expr
	Orelse Expr
}

type Lambda struct {
	base
	Params []Param
	Body   Expr
}

type Tuple struct {
	base
	Elts []Expr
	Ctx  Ctx
}

type List struct {
	base
	Elts []Expr
	Ctx  Ctx
}

type Set struct {
	base
	Elts []Expr
}

// Dict keeps Keys and Values aligned; a nil key marks a **spread.
type Dict struct {
	base
	Keys   []Expr
	Values []Expr
}

type CompKind int

const (
	ListComp CompKind = iota
	SetComp
	DictComp
	GeneratorExp
)

type Comprehension struct {
	Target Expr
	Iter   Expr
	Ifs    []Expr
	Async  bool
}

// Comp is a comprehension or generator expression. Value is only set for
// dict comprehensions, where Elt is the key.
type Comp struct {
	base
	Kind       CompKind
	Elt        Expr
	Value      Expr
	Generators []Comprehension
}

type NamedExpr struct {
	base
	Target *Name
	Value  Expr
}

type Await struct {
	base
	Value Expr
}

type Yield struct {
	base
	Value Expr
	From  bool
}

// Constant is a literal. Kind is the grammar kind (integer, float, string,
// true, false, none, ellipsis) and Raw its source text.
type Constant struct {
	base
	Kind string
	Raw  string
}

// FString is a string literal with interpolated expressions.
type FString struct {
	base
	Raw    string
	Values []Expr
}

type OpaqueExpr struct {
	base
	Kind     string
	Children []Expr
}

func (*Import) stmtNode()      {}
func (*ImportFrom) stmtNode()  {}
func (*FunctionDef) stmtNode() {}
func (*ClassDef) stmtNode()    {}
func (*Assign) stmtNode()      {}
func (*AugAssign) stmtNode()   {}
func (*AnnAssign) stmtNode()   {}
func (*ExprStmt) stmtNode()    {}
func (*Return) stmtNode()      {}
func (*Delete) stmtNode()      {}
func (*Raise) stmtNode()       {}
func (*Assert) stmtNode()      {}
func (*Bare) stmtNode()        {}
func (*Global) stmtNode()      {}
func (*Nonlocal) stmtNode()    {}
func (*If) stmtNode()          {}
func (*For) stmtNode()         {}
func (*While) stmtNode()       {}
func (*Try) stmtNode()         {}
func (*With) stmtNode()        {}
func (*Match) stmtNode()       {}
func (*OpaqueStmt) stmtNode()  {}

func (*Name) exprNode()       {}
func (*Attribute) exprNode()  {}
func (*Subscript) exprNode()  {}
func (*Slice) exprNode()      {}
func (*Call) exprNode()       {}
func (*KeywordArg) exprNode() {}
func (*Starred) exprNode()    {}
func (*BinOp) exprNode()      {}
func (*UnaryOp) exprNode()    {}
func (*BoolOp) exprNode()     {}
func (*Compare) exprNode()    {}
func (*IfExp) exprNode()      {}
func (*Lambda) exprNode()     {}
func (*Tuple) exprNode()      {}
func (*List) exprNode()       {}
func (*Set) exprNode()        {}
func (*Dict) exprNode()       {}
func (*Comp) exprNode()       {}
func (*NamedExpr) exprNode()  {}
func (*Await) exprNode()      {}
func (*Yield) exprNode()      {}
func (*Constant) exprNode()   {}
func (*FString) exprNode()    {}
func (*OpaqueExpr) exprNode() {}
