package pyast

import "fmt"

// Walk visits n and its descendants depth-first in source order. When fn
// returns false the children of that node are skipped.
func Walk(n Node, fn func(Node) bool) {
	if n == nil || !fn(n) {
		return
	}
	for _, c := range Children(n) {
		Walk(c, fn)
	}
}

// WalkStmts walks every statement of body.
func WalkStmts(body []Stmt, fn func(Node) bool) {
	for _, s := range body {
		Walk(s, fn)
	}
}

// Children returns the direct child nodes of n in source order.
// Parameters contribute their annotations and defaults, handlers and
// cases contribute their expressions and bodies.
func Children(n Node) []Node {
	var out []Node
	switch n := n.(type) {
	case *Import, *ImportFrom, *Bare, *Global, *Nonlocal, *Name, *Constant:
	case *FunctionDef:
		out = appendExprs(out, n.Decorators...)
		out = appendParams(out, n.Params)
		out = appendExprs(out, n.Returns)
		out = appendStmts(out, n.Body)
	case *ClassDef:
		out = appendExprs(out, n.Decorators...)
		out = appendExprs(out, n.Bases...)
		out = appendStmts(out, n.Body)
	case *Assign:
		out = appendExprs(out, n.Targets...)
		out = appendExprs(out, n.Value)
	case *AugAssign:
		out = appendExprs(out, n.Target, n.Value)
	case *AnnAssign:
		out = appendExprs(out, n.Target, n.Annotation, n.Value)
	case *ExprStmt:
		out = appendExprs(out, n.Value)
	case *Return:
		out = appendExprs(out, n.Value)
	case *Delete:
		out = appendExprs(out, n.Targets...)
	case *Raise:
		out = appendExprs(out, n.Exc, n.Cause)
	case *Assert:
		out = appendExprs(out, n.Test, n.Msg)
	case *If:
		out = appendExprs(out, n.Test)
		out = appendStmts(out, n.Body)
		out = appendStmts(out, n.Orelse)
	case *For:
		out = appendExprs(out, n.Target, n.Iter)
		out = appendStmts(out, n.Body)
		out = appendStmts(out, n.Orelse)
	case *While:
		out = appendExprs(out, n.Test)
		out = appendStmts(out, n.Body)
		out = appendStmts(out, n.Orelse)
	case *Try:
		out = appendStmts(out, n.Body)
		for _, h := range n.Handlers {
			out = appendExprs(out, h.Type)
			out = appendStmts(out, h.Body)
		}
		out = appendStmts(out, n.Orelse)
		out = appendStmts(out, n.Finally)
	case *With:
		for _, it := range n.Items {
			out = appendExprs(out, it.Context, it.Target)
		}
		out = appendStmts(out, n.Body)
	case *Match:
		out = appendExprs(out, n.Subject)
		for _, c := range n.Cases {
			out = appendExprs(out, c.Pattern, c.Guard)
			out = appendStmts(out, c.Body)
		}
	case *OpaqueStmt:
		out = appendExprs(out, n.Exprs...)
		out = appendStmts(out, n.Body)
	case *Attribute:
		out = appendExprs(out, n.Value)
	case *Subscript:
		out = appendExprs(out, n.Value)
		out = appendExprs(out, n.Index...)
	case *Slice:
		out = appendExprs(out, n.Lower, n.Upper, n.Step)
	case *Call:
		out = appendExprs(out, n.Func)
		out = appendExprs(out, n.Args...)
	case *KeywordArg:
		out = appendExprs(out, n.Value)
	case *Starred:
		out = appendExprs(out, n.Value)
	case *BinOp:
		out = appendExprs(out, n.Left, n.Right)
	case *UnaryOp:
		out = appendExprs(out, n.Operand)
	case *BoolOp:
		out = appendExprs(out, n.Values...)
	case *Compare:
		out = appendExprs(out, n.Left)
		out = appendExprs(out, n.Comparators...)
	case *IfExp:
		out = appendExprs(out, n.Body, n.Test, n.Orelse)
	case *Lambda:
		out = appendParams(out, n.Params)
		out = appendExprs(out, n.Body)
	case *Tuple:
		out = appendExprs(out, n.Elts...)
	case *List:
		out = appendExprs(out, n.Elts...)
	case *Set:
		out = appendExprs(out, n.Elts...)
	case *Dict:
		for i := range n.Values {
			out = appendExprs(out, n.Keys[i], n.Values[i])
		}
	case *Comp:
		out = appendExprs(out, n.Elt, n.Value)
		for _, g := range n.Generators {
			out = appendExprs(out, g.Target, g.Iter)
			out = appendExprs(out, g.Ifs...)
		}
	case *NamedExpr:
		if n.Target != nil {
			out = append(out, n.Target)
		}
		out = appendExprs(out, n.Value)
	case *Await:
		out = appendExprs(out, n.Value)
	case *Yield:
		out = appendExprs(out, n.Value)
	case *FString:
		out = appendExprs(out, n.Values...)
	case *OpaqueExpr:
		out = appendExprs(out, n.Children...)
	default:
		panic(fmt.Sprintf("pyast: unexpected node %T", n))
	}
	return out
}

func appendExprs(out []Node, es ...Expr) []Node {
	for _, e := range es {
		if e != nil {
			out = append(out, e)
		}
	}
	return out
}

func appendStmts(out []Node, ss []Stmt) []Node {
	for _, s := range ss {
		out = append(out, s)
	}
	return out
}

func appendParams(out []Node, ps []Param) []Node {
	for _, p := range ps {
		out = appendExprs(out, p.Annotation, p.Default)
	}
	return out
}
