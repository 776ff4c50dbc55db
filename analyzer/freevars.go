package analyzer

import (
	"sort"

	"github.com/don7panic/script-partitioner/pyast"
)

// FreeVar is a name a declaration depends on from outside itself. Line is
// the first line it is referenced on.
type FreeVar struct {
	Name string
	Line int
}

// Analyzer computes free variables for the declarations of one script.
// Results are memoized per declaration; an Analyzer must not be shared
// between goroutines.
type Analyzer struct {
	script  *Script
	imports map[string]bool
	memo    map[*Declaration][]FreeVar
}

func NewAnalyzer(s *Script) *Analyzer {
	return &Analyzer{
		script:  s,
		imports: s.ImportNames(),
		memo:    map[*Declaration][]FreeVar{},
	}
}

// FreeVariables returns the free variables of d sorted by name.
//
// Every function, lambda, comprehension and class body is its own scope.
// Names bound in a scope are local to it unless declared global or
// nonlocal there. Free names of a nested scope are resolved against the
// enclosing scope, except that a class body does not enclose its methods.
// Decorators, defaults, annotations and bases belong to the enclosing
// scope, except that the type parameters of a generic def or class are
// visible to its annotations, bases and body. Import-bound names and builtins are never free.
func (a *Analyzer) FreeVariables(d *Declaration) []FreeVar {
	if fv, ok := a.memo[d]; ok {
		return fv
	}
	root := newScope(scopeFunction, nil, nil)
	w := &walker{}
	w.stmt(root, d.Stmt)

	var out []FreeVar
	for name, r := range root.free() {
		if a.imports[name] || IsBuiltin(name) {
			continue
		}
		out = append(out, FreeVar{Name: name, Line: r.line})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	a.memo[d] = out
	return out
}

// FreeNames is FreeVariables without line numbers.
func (a *Analyzer) FreeNames(d *Declaration) []string {
	fv := a.FreeVariables(d)
	out := make([]string, len(fv))
	for i, v := range fv {
		out[i] = v.Name
	}
	return out
}

type scopeKind int

const (
	scopeFunction scopeKind = iota
	scopeClass
	scopeLambda
	scopeComprehension
)

type ref struct {
	line int
	// global marks a name declared global in the scope that referenced it;
	// enclosing scopes cannot resolve it.
	global bool
}

type scope struct {
	kind      scopeKind
	parent    *scope
	locals    map[string]bool
	globals   map[string]bool
	nonlocals map[string]bool
	refs      map[string]int
	children  []map[string]ref
}

func newScope(kind scopeKind, parent *scope, body []pyast.Stmt) *scope {
	s := &scope{
		kind:      kind,
		parent:    parent,
		locals:    map[string]bool{},
		globals:   map[string]bool{},
		nonlocals: map[string]bool{},
		refs:      map[string]int{},
	}
	// global and nonlocal apply to the whole scope wherever they appear
	for _, st := range body {
		pyast.Walk(st, func(n pyast.Node) bool {
			switch n := n.(type) {
			case *pyast.FunctionDef, *pyast.ClassDef, *pyast.Lambda, *pyast.Comp:
				return false
			case *pyast.Global:
				for _, name := range n.Names {
					s.globals[name] = true
				}
			case *pyast.Nonlocal:
				for _, name := range n.Names {
					s.nonlocals[name] = true
				}
			}
			return true
		})
	}
	return s
}

func (s *scope) ref(name string, line int) {
	if prev, ok := s.refs[name]; !ok || line < prev {
		s.refs[name] = line
	}
}

func (s *scope) bind(name string) {
	if s.globals[name] || s.nonlocals[name] {
		return
	}
	s.locals[name] = true
}

// free returns the names of s, and of the scopes nested in it, that s does
// not resolve.
func (s *scope) free() map[string]ref {
	out := map[string]ref{}
	add := func(name string, r ref) {
		if prev, ok := out[name]; ok && prev.line <= r.line {
			r.line = prev.line
		}
		out[name] = r
	}
	for name, line := range s.refs {
		switch {
		case s.globals[name]:
			add(name, ref{line: line, global: true})
		case !s.locals[name]:
			add(name, ref{line: line})
		}
	}
	for _, child := range s.children {
		for name, r := range child {
			if r.global || s.globals[name] {
				add(name, ref{line: r.line, global: true})
				continue
			}
			if s.kind != scopeClass && s.locals[name] {
				continue
			}
			add(name, r)
		}
	}
	return out
}

func (s *scope) close() {
	if s.parent != nil {
		s.parent.children = append(s.parent.children, s.free())
	}
}

// nearestNonComprehension is where an assignment expression binds.
func (s *scope) nearestNonComprehension() *scope {
	for s.kind == scopeComprehension && s.parent != nil {
		s = s.parent
	}
	return s
}

type walker struct{}

func (w *walker) stmts(s *scope, body []pyast.Stmt) {
	for _, st := range body {
		w.stmt(s, st)
	}
}

func (w *walker) stmt(s *scope, st pyast.Stmt) {
	switch st := st.(type) {
	case *pyast.Import:
		for _, a := range st.Names {
			s.bind(a.Bound())
		}
	case *pyast.ImportFrom:
		for _, a := range st.Names {
			if a.AsName != "" {
				s.bind(a.AsName)
			} else {
				s.bind(a.Name)
			}
		}
	case *pyast.FunctionDef:
		s.bind(st.Name)
		w.exprs(s, st.Decorators)
		for _, p := range st.Params {
			w.expr(s, p.Default)
		}
		outer := typeParamScope(s, st.TypeParams)
		for _, p := range st.Params {
			w.expr(outer, p.Annotation)
		}
		w.expr(outer, st.Returns)
		inner := newScope(scopeFunction, outer, st.Body)
		bindParams(inner, st.Params)
		w.stmts(inner, st.Body)
		inner.close()
		if outer != s {
			outer.close()
		}
	case *pyast.ClassDef:
		s.bind(st.Name)
		w.exprs(s, st.Decorators)
		outer := typeParamScope(s, st.TypeParams)
		w.exprs(outer, st.Bases)
		inner := newScope(scopeClass, outer, st.Body)
		w.stmts(inner, st.Body)
		inner.close()
		if outer != s {
			outer.close()
		}
	case *pyast.Assign:
		w.exprs(s, st.Targets)
		w.expr(s, st.Value)
	case *pyast.AugAssign:
		w.expr(s, st.Target)
		w.expr(s, st.Value)
	case *pyast.AnnAssign:
		w.expr(s, st.Target)
		w.expr(s, st.Annotation)
		w.expr(s, st.Value)
	case *pyast.ExprStmt:
		w.expr(s, st.Value)
	case *pyast.Return:
		w.expr(s, st.Value)
	case *pyast.Delete:
		w.exprs(s, st.Targets)
	case *pyast.Raise:
		w.expr(s, st.Exc)
		w.expr(s, st.Cause)
	case *pyast.Assert:
		w.expr(s, st.Test)
		w.expr(s, st.Msg)
	case *pyast.Bare, *pyast.Global, *pyast.Nonlocal:
	case *pyast.If:
		w.expr(s, st.Test)
		w.stmts(s, st.Body)
		w.stmts(s, st.Orelse)
	case *pyast.For:
		w.expr(s, st.Target)
		w.expr(s, st.Iter)
		w.stmts(s, st.Body)
		w.stmts(s, st.Orelse)
	case *pyast.While:
		w.expr(s, st.Test)
		w.stmts(s, st.Body)
		w.stmts(s, st.Orelse)
	case *pyast.Try:
		w.stmts(s, st.Body)
		for _, h := range st.Handlers {
			w.expr(s, h.Type)
			if h.Name != "" {
				s.ref(h.Name, h.Span.StartLine)
				s.bind(h.Name)
			}
			w.stmts(s, h.Body)
		}
		w.stmts(s, st.Orelse)
		w.stmts(s, st.Finally)
	case *pyast.With:
		for _, it := range st.Items {
			w.expr(s, it.Context)
			w.expr(s, it.Target)
		}
		w.stmts(s, st.Body)
	case *pyast.Match:
		w.expr(s, st.Subject)
		for _, mc := range st.Cases {
			w.expr(s, mc.Pattern)
			w.expr(s, mc.Guard)
			w.stmts(s, mc.Body)
		}
	case *pyast.OpaqueStmt:
		w.exprs(s, st.Exprs)
		w.stmts(s, st.Body)
	}
}

func (w *walker) exprs(s *scope, es []pyast.Expr) {
	for _, e := range es {
		w.expr(s, e)
	}
}

func (w *walker) expr(s *scope, e pyast.Expr) {
	switch e := e.(type) {
	case nil:
	case *pyast.Name:
		s.ref(e.ID, e.Pos().StartLine)
		if e.Ctx != pyast.Load {
			s.bind(e.ID)
		}
	case *pyast.Lambda:
		w.paramExprs(s, e.Params)
		inner := newScope(scopeLambda, s, nil)
		bindParams(inner, e.Params)
		w.expr(inner, e.Body)
		inner.close()
	case *pyast.Comp:
		// the first iterable is evaluated in the enclosing scope
		if len(e.Generators) > 0 {
			w.expr(s, e.Generators[0].Iter)
		}
		inner := newScope(scopeComprehension, s, nil)
		for i, g := range e.Generators {
			w.expr(inner, g.Target)
			if i > 0 {
				w.expr(inner, g.Iter)
			}
			w.exprs(inner, g.Ifs)
		}
		w.expr(inner, e.Elt)
		w.expr(inner, e.Value)
		inner.close()
	case *pyast.NamedExpr:
		w.expr(s, e.Value)
		if e.Target != nil {
			s.ref(e.Target.ID, e.Target.Pos().StartLine)
			s.nearestNonComprehension().bind(e.Target.ID)
		}
	default:
		for _, c := range pyast.Children(e) {
			w.expr(s, c.(pyast.Expr))
		}
	}
}

func (w *walker) paramExprs(s *scope, params []pyast.Param) {
	for _, p := range params {
		w.expr(s, p.Annotation)
		w.expr(s, p.Default)
	}
}

// typeParamScope returns the scope that binds the type parameters of a
// generic def or class, or s itself when there are none. Annotations and
// bases are evaluated in it.
func typeParamScope(s *scope, names []string) *scope {
	if len(names) == 0 {
		return s
	}
	ts := newScope(scopeFunction, s, nil)
	for _, name := range names {
		ts.bind(name)
	}
	return ts
}

func bindParams(s *scope, params []pyast.Param) {
	for _, p := range params {
		if p.Name != "" {
			s.bind(p.Name)
		}
	}
}
