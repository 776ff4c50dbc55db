package pyast

import (
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
)

// lowerer converts a tree-sitter python tree into pyast nodes.
//
// Grammar node kinds it does not know become OpaqueStmt/OpaqueExpr so no
// identifier below them is lost.
type lowerer struct {
	src []byte
}

func (l *lowerer) span(n *sitter.Node) Span {
	start, end := n.StartPoint(), n.EndPoint()
	return Span{
		StartByte: int(n.StartByte()),
		EndByte:   int(n.EndByte()),
		StartLine: int(start.Row) + 1,
		EndLine:   int(end.Row) + 1,
		StartCol:  int(start.Column),
	}
}

func (l *lowerer) at(n *sitter.Node) base {
	return base{Span: l.span(n)}
}

func (l *lowerer) text(n *sitter.Node) string {
	if n == nil {
		return ""
	}
	return n.Content(l.src)
}

// dotted returns a dotted name with any interior whitespace removed.
func (l *lowerer) dotted(n *sitter.Node) string {
	return strings.Join(strings.Fields(l.text(n)), "")
}

func isExtra(n *sitter.Node) bool {
	t := n.Type()
	return t == "comment" || t == "line_continuation"
}

// named returns the named children of n, comments excluded.
func named(n *sitter.Node) []*sitter.Node {
	if n == nil {
		return nil
	}
	out := make([]*sitter.Node, 0, int(n.NamedChildCount()))
	for i := 0; i < int(n.NamedChildCount()); i++ {
		c := n.NamedChild(i)
		if c == nil || isExtra(c) {
			continue
		}
		out = append(out, c)
	}
	return out
}

func field(n *sitter.Node, name string) *sitter.Node {
	if n == nil {
		return nil
	}
	return n.ChildByFieldName(name)
}

func firstNamed(n *sitter.Node) *sitter.Node {
	if cs := named(n); len(cs) > 0 {
		return cs[0]
	}
	return nil
}

func same(a, b *sitter.Node) bool {
	return a != nil && b != nil &&
		a.StartByte() == b.StartByte() && a.EndByte() == b.EndByte() &&
		a.Type() == b.Type()
}

// hasToken reports whether n has an anonymous child token tok, such as
// "async" or "from".
func hasToken(n *sitter.Node, tok string) bool {
	for i := 0; i < int(n.ChildCount()); i++ {
		c := n.Child(i)
		if c != nil && !c.IsNamed() && c.Type() == tok {
			return true
		}
	}
	return false
}

// ---- statements ----

func (l *lowerer) block(n *sitter.Node) []Stmt {
	var out []Stmt
	for _, c := range named(n) {
		if s := l.stmt(c); s != nil {
			out = append(out, s)
		}
	}
	return out
}

// clauseBody returns the block of an else/finally clause.
func clauseBody(n *sitter.Node) *sitter.Node {
	if b := field(n, "body"); b != nil {
		return b
	}
	for _, c := range named(n) {
		if c.Type() == "block" {
			return c
		}
	}
	return nil
}

func (l *lowerer) stmt(n *sitter.Node) Stmt {
	b := l.at(n)
	switch n.Type() {
	case "import_statement":
		imp := &Import{base: b}
		for _, c := range named(n) {
			if a, ok := l.alias(c); ok {
				imp.Names = append(imp.Names, a)
			}
		}
		return imp

	case "future_import_statement":
		imp := &ImportFrom{base: b, Module: "__future__"}
		for _, c := range named(n) {
			if a, ok := l.alias(c); ok {
				imp.Names = append(imp.Names, a)
			}
		}
		return imp

	case "import_from_statement":
		return l.importFrom(n, b)

	case "function_definition":
		return l.functionDef(n, nil, b)

	case "class_definition":
		return l.classDef(n, nil, b)

	case "decorated_definition":
		var decorators []Expr
		for _, c := range named(n) {
			if c.Type() == "decorator" {
				if e := l.expr(firstNamed(c)); e != nil {
					decorators = append(decorators, e)
				}
			}
		}
		def := field(n, "definition")
		switch {
		case def == nil:
		case def.Type() == "function_definition":
			return l.functionDef(def, decorators, b)
		case def.Type() == "class_definition":
			return l.classDef(def, decorators, b)
		}
		return l.opaqueStmt(n, b)

	case "expression_statement":
		cs := named(n)
		if len(cs) == 1 {
			switch cs[0].Type() {
			case "assignment":
				return l.assignment(cs[0], b)
			case "augmented_assignment":
				return &AugAssign{
					base:   b,
					Target: l.target(field(cs[0], "left"), Store),
					Op:     l.text(field(cs[0], "operator")),
					Value:  l.expr(field(cs[0], "right")),
				}
			}
			return &ExprStmt{base: b, Value: l.expr(cs[0])}
		}
		return &ExprStmt{base: b, Value: &Tuple{base: b, Elts: l.exprList(cs)}}

	case "return_statement":
		return &Return{base: b, Value: l.expr(firstNamed(n))}

	case "delete_statement":
		del := &Delete{base: b}
		for _, c := range named(n) {
			if c.Type() == "expression_list" {
				del.Targets = append(del.Targets, l.targets(named(c), Del)...)
				continue
			}
			del.Targets = append(del.Targets, l.target(c, Del))
		}
		return del

	case "raise_statement":
		cause := field(n, "cause")
		r := &Raise{base: b, Cause: l.expr(cause)}
		for _, c := range named(n) {
			if !same(c, cause) {
				r.Exc = l.expr(c)
				break
			}
		}
		return r

	case "assert_statement":
		a := &Assert{base: b}
		cs := named(n)
		if len(cs) > 0 {
			a.Test = l.expr(cs[0])
		}
		if len(cs) > 1 {
			a.Msg = l.expr(cs[1])
		}
		return a

	case "pass_statement", "break_statement", "continue_statement":
		return &Bare{base: b, Keyword: strings.TrimSuffix(n.Type(), "_statement")}

	case "global_statement":
		return &Global{base: b, Names: l.identifiers(n)}

	case "nonlocal_statement":
		return &Nonlocal{base: b, Names: l.identifiers(n)}

	case "if_statement":
		top := &If{
			base: b,
			Test: l.expr(field(n, "condition")),
			Body: l.block(field(n, "consequence")),
		}
		cur := top
		for _, c := range named(n) {
			switch c.Type() {
			case "elif_clause":
				next := &If{
					base: l.at(c),
					Test: l.expr(field(c, "condition")),
					Body: l.block(field(c, "consequence")),
				}
				cur.Orelse = []Stmt{next}
				cur = next
			case "else_clause":
				cur.Orelse = l.block(clauseBody(c))
			}
		}
		return top

	case "for_statement":
		f := &For{
			base:   b,
			Async:  hasToken(n, "async"),
			Target: l.target(field(n, "left"), Store),
			Iter:   l.expr(field(n, "right")),
			Body:   l.block(field(n, "body")),
		}
		f.Orelse = l.elseOf(n)
		return f

	case "while_statement":
		return &While{
			base:   b,
			Test:   l.expr(field(n, "condition")),
			Body:   l.block(field(n, "body")),
			Orelse: l.elseOf(n),
		}

	case "try_statement":
		t := &Try{base: b, Body: l.block(field(n, "body"))}
		for _, c := range named(n) {
			switch c.Type() {
			case "except_clause", "except_group_clause":
				t.Handlers = append(t.Handlers, l.handler(c))
			case "else_clause":
				t.Orelse = l.block(clauseBody(c))
			case "finally_clause":
				t.Finally = l.block(clauseBody(c))
			}
		}
		return t

	case "with_statement":
		w := &With{base: b, Async: hasToken(n, "async"), Body: l.block(field(n, "body"))}
		for _, c := range named(n) {
			if c.Type() != "with_clause" {
				continue
			}
			for _, it := range named(c) {
				if it.Type() == "with_item" {
					w.Items = append(w.Items, l.withItem(it))
				}
			}
		}
		return w

	case "match_statement":
		return l.match(n, b)
	}
	return l.opaqueStmt(n, b)
}

func (l *lowerer) opaqueStmt(n *sitter.Node, b base) *OpaqueStmt {
	s := &OpaqueStmt{base: b, Kind: n.Type()}
	for _, c := range named(n) {
		if c.Type() == "block" {
			s.Body = append(s.Body, l.block(c)...)
			continue
		}
		s.Exprs = append(s.Exprs, l.expr(c))
	}
	return s
}

func (l *lowerer) elseOf(n *sitter.Node) []Stmt {
	for _, c := range named(n) {
		if c.Type() == "else_clause" {
			return l.block(clauseBody(c))
		}
	}
	return nil
}

func (l *lowerer) identifiers(n *sitter.Node) []string {
	var out []string
	for _, c := range named(n) {
		if c.Type() == "identifier" {
			out = append(out, l.text(c))
		}
	}
	return out
}

func (l *lowerer) alias(n *sitter.Node) (Alias, bool) {
	switch n.Type() {
	case "dotted_name":
		return Alias{Name: l.dotted(n)}, true
	case "aliased_import":
		return Alias{Name: l.dotted(field(n, "name")), AsName: l.text(field(n, "alias"))}, true
	}
	return Alias{}, false
}

func (l *lowerer) importFrom(n *sitter.Node, b base) *ImportFrom {
	imp := &ImportFrom{base: b}
	mod := field(n, "module_name")
	if mod != nil {
		if mod.Type() == "relative_import" {
			for _, c := range named(mod) {
				switch c.Type() {
				case "import_prefix":
					imp.Level = strings.Count(l.text(c), ".")
				case "dotted_name":
					imp.Module = l.dotted(c)
				}
			}
		} else {
			imp.Module = l.dotted(mod)
		}
	}
	for _, c := range named(n) {
		if same(c, mod) {
			continue
		}
		if c.Type() == "wildcard_import" {
			imp.Wildcard = true
			continue
		}
		if a, ok := l.alias(c); ok {
			imp.Names = append(imp.Names, a)
		}
	}
	return imp
}

func (l *lowerer) functionDef(n *sitter.Node, decorators []Expr, b base) *FunctionDef {
	return &FunctionDef{
		base:       b,
		Name:       l.text(field(n, "name")),
		Async:      hasToken(n, "async"),
		Decorators: decorators,
		TypeParams: l.typeParams(field(n, "type_parameters")),
		Params:     l.params(field(n, "parameters")),
		Returns:    l.expr(field(n, "return_type")),
		Body:       l.block(field(n, "body")),
	}
}

func (l *lowerer) classDef(n *sitter.Node, decorators []Expr, b base) *ClassDef {
	cd := &ClassDef{
		base:       b,
		Name:       l.text(field(n, "name")),
		Decorators: decorators,
		TypeParams: l.typeParams(field(n, "type_parameters")),
		Body:       l.block(field(n, "body")),
	}
	if sup := field(n, "superclasses"); sup != nil {
		cd.Bases = l.exprList(named(sup))
	}
	return cd
}

// typeParams returns the names declared by a [T, *Ts, **P] list. Bounds
// and constraints are dropped.
func (l *lowerer) typeParams(n *sitter.Node) []string {
	var out []string
	for _, c := range named(n) {
		if id := firstIdentifier(c); id != nil {
			out = append(out, l.text(id))
		}
	}
	return out
}

func firstIdentifier(n *sitter.Node) *sitter.Node {
	if n.Type() == "identifier" {
		return n
	}
	for _, c := range named(n) {
		if id := firstIdentifier(c); id != nil {
			return id
		}
	}
	return nil
}

func (l *lowerer) assignment(n *sitter.Node, b base) Stmt {
	left, right := field(n, "left"), field(n, "right")
	if typ := field(n, "type"); typ != nil {
		return &AnnAssign{
			base:       b,
			Target:     l.target(left, Store),
			Annotation: l.expr(typ),
			Value:      l.expr(right),
		}
	}
	as := &Assign{base: b, Targets: []Expr{l.target(left, Store)}}
	for right != nil && right.Type() == "assignment" && field(right, "type") == nil {
		as.Targets = append(as.Targets, l.target(field(right, "left"), Store))
		right = field(right, "right")
	}
	as.Value = l.expr(right)
	return as
}

func (l *lowerer) handler(n *sitter.Node) ExceptHandler {
	h := ExceptHandler{Span: l.span(n)}
	var parts []*sitter.Node
	for _, c := range named(n) {
		if c.Type() == "block" {
			h.Body = l.block(c)
			continue
		}
		parts = append(parts, c)
	}
	if len(parts) == 0 {
		return h
	}
	if parts[0].Type() == "as_pattern" {
		h.Type = l.expr(firstNamed(parts[0]))
		if t, ok := l.asTarget(parts[0]).(*Name); ok {
			h.Name = t.ID
		}
		return h
	}
	h.Type = l.expr(parts[0])
	if len(parts) > 1 {
		h.Name = l.text(parts[1])
	}
	return h
}

func (l *lowerer) withItem(n *sitter.Node) WithItem {
	v := field(n, "value")
	if v == nil {
		v = firstNamed(n)
	}
	if v != nil && v.Type() == "as_pattern" {
		return WithItem{Context: l.expr(firstNamed(v)), Target: l.asTarget(v)}
	}
	it := WithItem{Context: l.expr(v)}
	if a := field(n, "alias"); a != nil {
		it.Target = l.target(a, Store)
	}
	return it
}

// asTarget lowers the alias of an as_pattern as a binding target.
func (l *lowerer) asTarget(n *sitter.Node) Expr {
	t := field(n, "alias")
	if t == nil {
		cs := named(n)
		if len(cs) < 2 {
			return nil
		}
		t = cs[len(cs)-1]
	}
	return l.target(t, Store)
}

func (l *lowerer) match(n *sitter.Node, b base) *Match {
	m := &Match{base: b, Subject: l.expr(field(n, "subject"))}
	var visit func(*sitter.Node)
	visit = func(x *sitter.Node) {
		for _, c := range named(x) {
			switch c.Type() {
			case "case_clause":
				m.Cases = append(m.Cases, l.matchCase(c))
			case "block":
				visit(c)
			}
		}
	}
	visit(n)
	return m
}

func (l *lowerer) matchCase(n *sitter.Node) MatchCase {
	var mc MatchCase
	var patterns []Expr
	for _, c := range named(n) {
		switch c.Type() {
		case "case_pattern":
			patterns = append(patterns, l.pattern(c))
		case "if_clause":
			mc.Guard = l.expr(firstNamed(c))
		case "block":
			mc.Body = l.block(c)
		}
	}
	switch len(patterns) {
	case 0:
	case 1:
		mc.Pattern = patterns[0]
	default:
		mc.Pattern = &OpaqueExpr{base: l.at(n), Kind: "case_pattern", Children: patterns}
	}
	return mc
}

// pattern lowers a match pattern. Bare names capture (Store); dotted names
// and class names are value lookups (Load).
func (l *lowerer) pattern(n *sitter.Node) Expr {
	b := l.at(n)
	switch n.Type() {
	case "identifier":
		return &Name{base: b, ID: l.text(n), Ctx: Store}
	case "dotted_name":
		ids := named(n)
		if len(ids) == 1 {
			return &Name{base: b, ID: l.text(ids[0]), Ctx: Store}
		}
		if len(ids) > 1 {
			return &Name{base: l.at(ids[0]), ID: l.text(ids[0]), Ctx: Load}
		}
	case "class_pattern":
		out := &OpaqueExpr{base: b, Kind: n.Type()}
		for i, c := range named(n) {
			if i == 0 && c.Type() == "dotted_name" {
				if id := firstNamed(c); id != nil {
					out.Children = append(out.Children, &Name{base: l.at(id), ID: l.text(id), Ctx: Load})
				}
				continue
			}
			out.Children = append(out.Children, l.pattern(c))
		}
		return out
	case "keyword_pattern":
		out := &OpaqueExpr{base: b, Kind: n.Type()}
		for i, c := range named(n) {
			if i == 0 && c.Type() == "identifier" {
				continue
			}
			out.Children = append(out.Children, l.pattern(c))
		}
		return out
	case "string", "concatenated_string", "integer", "float", "true", "false", "none":
		return l.expr(n)
	}
	out := &OpaqueExpr{base: b, Kind: n.Type()}
	for _, c := range named(n) {
		out.Children = append(out.Children, l.pattern(c))
	}
	return out
}

// ---- parameters ----

func (l *lowerer) params(n *sitter.Node) []Param {
	var out []Param
	kwOnly := false
	for _, c := range named(n) {
		p := Param{Span: l.span(c), Kind: ParamPositional}
		if kwOnly {
			p.Kind = ParamKeywordOnly
		}
		switch c.Type() {
		case "identifier":
			p.Name = l.text(c)
		case "typed_parameter":
			typ := field(c, "type")
			for _, x := range named(c) {
				if same(x, typ) {
					continue
				}
				p.Name, p.Kind = l.paramName(x, p.Kind)
				break
			}
			p.Annotation = l.expr(typ)
		case "default_parameter":
			p.Name, p.Kind = l.paramName(field(c, "name"), p.Kind)
			p.Default = l.expr(field(c, "value"))
		case "typed_default_parameter":
			p.Name, p.Kind = l.paramName(field(c, "name"), p.Kind)
			p.Annotation = l.expr(field(c, "type"))
			p.Default = l.expr(field(c, "value"))
		case "list_splat_pattern", "dictionary_splat_pattern":
			p.Name, p.Kind = l.paramName(c, p.Kind)
		case "keyword_separator":
			kwOnly = true
			continue
		case "positional_separator":
			continue
		default:
			continue
		}
		if p.Kind == ParamVarArgs {
			kwOnly = true
		}
		out = append(out, p)
	}
	return out
}

func (l *lowerer) paramName(n *sitter.Node, kind ParamKind) (string, ParamKind) {
	if n == nil {
		return "", kind
	}
	switch n.Type() {
	case "list_splat_pattern":
		return l.text(firstNamed(n)), ParamVarArgs
	case "dictionary_splat_pattern":
		return l.text(firstNamed(n)), ParamVarKeywords
	}
	return l.text(n), kind
}

// ---- expressions ----

func (l *lowerer) exprList(ns []*sitter.Node) []Expr {
	out := make([]Expr, 0, len(ns))
	for _, n := range ns {
		if e := l.expr(n); e != nil {
			out = append(out, e)
		}
	}
	return out
}

func (l *lowerer) targets(ns []*sitter.Node, ctx Ctx) []Expr {
	out := make([]Expr, 0, len(ns))
	for _, n := range ns {
		if e := l.target(n, ctx); e != nil {
			out = append(out, e)
		}
	}
	return out
}

// target lowers n as the target of an assignment, for loop, with item or
// del statement.
func (l *lowerer) target(n *sitter.Node, ctx Ctx) Expr {
	if n == nil {
		return nil
	}
	b := l.at(n)
	switch n.Type() {
	case "identifier", "keyword_identifier":
		return &Name{base: b, ID: l.text(n), Ctx: ctx}
	case "tuple", "pattern_list", "tuple_pattern", "expression_list":
		return &Tuple{base: b, Elts: l.targets(named(n), ctx), Ctx: ctx}
	case "list", "list_pattern":
		return &List{base: b, Elts: l.targets(named(n), ctx), Ctx: ctx}
	case "parenthesized_expression":
		if cs := named(n); len(cs) == 1 {
			return l.target(cs[0], ctx)
		}
	case "list_splat_pattern", "list_splat":
		return &Starred{base: b, Value: l.target(firstNamed(n), ctx), Ctx: ctx}
	case "attribute":
		return &Attribute{
			base:  b,
			Value: l.expr(field(n, "object")),
			Attr:  l.text(field(n, "attribute")),
			Ctx:   ctx,
		}
	case "subscript":
		if s, ok := l.expr(n).(*Subscript); ok {
			s.Ctx = ctx
			return s
		}
	case "as_pattern_target":
		// the alias keeps the children of the aliased expression
		cs := named(n)
		if len(cs) == 0 {
			return &Name{base: b, ID: l.text(n), Ctx: ctx}
		}
		if len(cs) == 1 {
			return l.target(cs[0], ctx)
		}
		if t := l.text(n); strings.ContainsAny(t, ".[") {
			return &OpaqueExpr{base: b, Kind: n.Type(), Children: l.exprList(cs)}
		}
		return &Tuple{base: b, Elts: l.targets(cs, ctx), Ctx: ctx}
	}
	return l.expr(n)
}

func (l *lowerer) expr(n *sitter.Node) Expr {
	if n == nil {
		return nil
	}
	b := l.at(n)
	switch n.Type() {
	case "identifier", "keyword_identifier":
		return &Name{base: b, ID: l.text(n), Ctx: Load}

	case "attribute":
		return &Attribute{
			base:  b,
			Value: l.expr(field(n, "object")),
			Attr:  l.text(field(n, "attribute")),
		}

	case "subscript":
		val := field(n, "value")
		s := &Subscript{base: b, Value: l.expr(val)}
		for _, c := range named(n) {
			if !same(c, val) {
				s.Index = append(s.Index, l.expr(c))
			}
		}
		return s

	case "slice":
		s := &Slice{base: b}
		part := 0
		for i := 0; i < int(n.ChildCount()); i++ {
			c := n.Child(i)
			if c == nil || isExtra(c) {
				continue
			}
			if !c.IsNamed() {
				if c.Type() == ":" {
					part++
				}
				continue
			}
			switch part {
			case 0:
				s.Lower = l.expr(c)
			case 1:
				s.Upper = l.expr(c)
			default:
				s.Step = l.expr(c)
			}
		}
		return s

	case "call":
		c := &Call{base: b, Func: l.expr(field(n, "function"))}
		if args := field(n, "arguments"); args != nil {
			if args.Type() == "argument_list" {
				c.Args = l.exprList(named(args))
			} else {
				c.Args = []Expr{l.expr(args)}
			}
		}
		return c

	case "keyword_argument":
		return &KeywordArg{base: b, Name: l.text(field(n, "name")), Value: l.expr(field(n, "value"))}

	case "list_splat", "list_splat_pattern", "parenthesized_list_splat":
		return &Starred{base: b, Value: l.expr(firstNamed(n))}

	case "dictionary_splat", "dictionary_splat_pattern":
		return &Starred{base: b, Value: l.expr(firstNamed(n)), Double: true}

	case "binary_operator":
		return &BinOp{
			base:  b,
			Left:  l.expr(field(n, "left")),
			Op:    l.text(field(n, "operator")),
			Right: l.expr(field(n, "right")),
		}

	case "unary_operator":
		return &UnaryOp{base: b, Op: l.text(field(n, "operator")), Operand: l.expr(field(n, "argument"))}

	case "not_operator":
		return &UnaryOp{base: b, Op: "not", Operand: l.expr(field(n, "argument"))}

	case "boolean_operator":
		op := &BoolOp{base: b, Op: l.text(field(n, "operator"))}
		for _, side := range []string{"left", "right"} {
			if e := l.expr(field(n, side)); e != nil {
				op.Values = append(op.Values, e)
			}
		}
		return op

	case "comparison_operator":
		cmp := &Compare{base: b}
		for i := 0; i < int(n.ChildCount()); i++ {
			c := n.Child(i)
			if c == nil || isExtra(c) {
				continue
			}
			if !c.IsNamed() {
				cmp.Ops = append(cmp.Ops, c.Type())
				continue
			}
			if cmp.Left == nil {
				cmp.Left = l.expr(c)
				continue
			}
			cmp.Comparators = append(cmp.Comparators, l.expr(c))
		}
		return cmp

	case "conditional_expression":
		cs := named(n)
		if len(cs) != 3 {
			break
		}
		return &IfExp{base: b, Body: l.expr(cs[0]), Test: l.expr(cs[1]), Orelse: l.expr(cs[2])}

	case "lambda":
		return &Lambda{base: b, Params: l.params(field(n, "parameters")), Body: l.expr(field(n, "body"))}

	case "await":
		return &Await{base: b, Value: l.expr(firstNamed(n))}

	case "yield":
		return &Yield{base: b, Value: l.expr(firstNamed(n)), From: hasToken(n, "from")}

	case "parenthesized_expression", "type":
		if cs := named(n); len(cs) == 1 {
			return l.expr(cs[0])
		}

	case "generic_type":
		// List[str] in an annotation: identifier then type_parameter
		s := &Subscript{base: b}
		for _, c := range named(n) {
			if c.Type() == "type_parameter" {
				s.Index = append(s.Index, l.exprList(named(c))...)
				continue
			}
			if s.Value == nil {
				s.Value = l.expr(c)
			}
		}
		return s

	case "tuple", "expression_list", "pattern_list", "tuple_pattern":
		return &Tuple{base: b, Elts: l.exprList(named(n))}

	case "list", "list_pattern":
		return &List{base: b, Elts: l.exprList(named(n))}

	case "set":
		return &Set{base: b, Elts: l.exprList(named(n))}

	case "dictionary":
		d := &Dict{base: b}
		for _, c := range named(n) {
			if c.Type() == "pair" {
				d.Keys = append(d.Keys, l.expr(field(c, "key")))
				d.Values = append(d.Values, l.expr(field(c, "value")))
				continue
			}
			d.Keys = append(d.Keys, nil)
			d.Values = append(d.Values, l.expr(c))
		}
		return d

	case "list_comprehension":
		return l.comp(n, ListComp)
	case "set_comprehension":
		return l.comp(n, SetComp)
	case "dictionary_comprehension":
		return l.comp(n, DictComp)
	case "generator_expression":
		return l.comp(n, GeneratorExp)

	case "named_expression":
		ne := &NamedExpr{base: b, Value: l.expr(field(n, "value"))}
		if id := field(n, "name"); id != nil {
			ne.Target = &Name{base: l.at(id), ID: l.text(id), Ctx: Store}
		}
		return ne

	case "string":
		return l.str(n, b, []*sitter.Node{n})

	case "concatenated_string":
		return l.str(n, b, named(n))

	case "integer", "float", "true", "false", "none", "ellipsis":
		return &Constant{base: b, Kind: n.Type(), Raw: l.text(n)}
	}
	return &OpaqueExpr{base: b, Kind: n.Type(), Children: l.exprList(named(n))}
}

func (l *lowerer) comp(n *sitter.Node, kind CompKind) *Comp {
	c := &Comp{base: l.at(n), Kind: kind}
	body := field(n, "body")
	if kind == DictComp && body != nil && body.Type() == "pair" {
		c.Elt = l.expr(field(body, "key"))
		c.Value = l.expr(field(body, "value"))
	} else {
		c.Elt = l.expr(body)
	}
	for _, x := range named(n) {
		if same(x, body) {
			continue
		}
		switch x.Type() {
		case "for_in_clause":
			left := field(x, "left")
			g := Comprehension{Target: l.target(left, Store), Async: hasToken(x, "async")}
			var iters []Expr
			for _, y := range named(x) {
				if !same(y, left) {
					iters = append(iters, l.expr(y))
				}
			}
			switch len(iters) {
			case 0:
			case 1:
				g.Iter = iters[0]
			default:
				g.Iter = &Tuple{base: l.at(x), Elts: iters}
			}
			c.Generators = append(c.Generators, g)
		case "if_clause":
			if len(c.Generators) == 0 {
				continue
			}
			g := &c.Generators[len(c.Generators)-1]
			if e := l.expr(firstNamed(x)); e != nil {
				g.Ifs = append(g.Ifs, e)
			}
		}
	}
	return c
}

// str lowers one string literal, or the parts of a concatenated one.
// Literals with interpolations become FString.
func (l *lowerer) str(n *sitter.Node, b base, parts []*sitter.Node) Expr {
	var values []Expr
	for _, p := range parts {
		values = l.interpolations(p, values)
	}
	if len(values) == 0 {
		return &Constant{base: b, Kind: "string", Raw: l.text(n)}
	}
	return &FString{base: b, Raw: l.text(n), Values: values}
}

func (l *lowerer) interpolations(n *sitter.Node, out []Expr) []Expr {
	for _, c := range named(n) {
		switch c.Type() {
		case "interpolation", "format_expression":
			e := field(c, "expression")
			if e == nil {
				for _, x := range named(c) {
					if t := x.Type(); t != "type_conversion" && t != "format_specifier" {
						e = x
						break
					}
				}
			}
			if v := l.expr(e); v != nil {
				out = append(out, v)
			}
			for _, x := range named(c) {
				if x.Type() == "format_specifier" {
					out = l.interpolations(x, out)
				}
			}
		case "string_content", "format_specifier":
			out = l.interpolations(c, out)
		}
	}
	return out
}
