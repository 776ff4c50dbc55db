// Package analyzer collects the module-level declarations of a Python
// script and computes the free variables of each declaration.
package analyzer

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/don7panic/script-partitioner/pyast"
)

// ErrDuplicateDeclaration is returned by Script.CheckDuplicates when a
// function or class name is defined more than once at module level.
var ErrDuplicateDeclaration = errors.New("analyzer: duplicate top-level declaration")

type Kind int

const (
	KindFunction Kind = iota
	KindClass
)

func (k Kind) String() string {
	if k == KindClass {
		return "class"
	}
	return "function"
}

// Declaration is a module-level function or class definition.
type Declaration struct {
	Name   string
	Kind   Kind
	Stmt   pyast.Stmt
	Params []pyast.Param
	// Order is the position of the definition among all collected
	// definitions, in source order.
	Order int
}

// ImportBinding is one name introduced by an import statement. RootLibrary
// is empty for relative and __future__ imports.
type ImportBinding struct {
	BoundName   string
	RootLibrary string
	Stmt        pyast.Stmt
}

// ConstructorBinding records "Variable = Constructor(...)" at module level.
type ConstructorBinding struct {
	Variable    string
	Constructor string
}

// Script is everything Collect learns about a module. It is not modified
// after Collect returns.
type Script struct {
	Module       *pyast.Module
	Declarations map[string]*Declaration
	Imports      []ImportBinding
	ImportStmts  []pyast.Stmt
	Constructors map[string]ConstructorBinding
	// ModuleNames holds every name bound at module level, including names
	// declared global inside functions.
	ModuleNames map[string]bool
	// Shadowed holds definitions replaced by a later one of the same name.
	Shadowed []*Declaration
	Wildcard bool
}

// Collect walks the module statements once. It descends into module-level
// compound statements but never into function or class bodies.
func Collect(mod *pyast.Module) *Script {
	c := &collector{s: &Script{
		Module:       mod,
		Declarations: map[string]*Declaration{},
		Constructors: map[string]ConstructorBinding{},
		ModuleNames:  map[string]bool{},
	}}
	c.stmts(mod.Body)

	pyast.WalkStmts(mod.Body, func(n pyast.Node) bool {
		if g, ok := n.(*pyast.Global); ok {
			for _, name := range g.Names {
				c.s.ModuleNames[name] = true
			}
		}
		return true
	})
	return c.s
}

type collector struct {
	s     *Script
	order int
}

func (c *collector) stmts(body []pyast.Stmt) {
	for _, st := range body {
		c.stmt(st)
	}
}

func (c *collector) stmt(st pyast.Stmt) {
	switch st := st.(type) {
	case *pyast.Import:
		c.s.ImportStmts = append(c.s.ImportStmts, st)
		for _, a := range st.Names {
			c.importName(a.Bound(), rootOf(a.Name), st)
		}
	case *pyast.ImportFrom:
		c.s.ImportStmts = append(c.s.ImportStmts, st)
		root := ""
		if st.Level == 0 && st.Module != "__future__" {
			root = rootOf(st.Module)
		}
		if st.Wildcard {
			c.s.Wildcard = true
			c.s.Imports = append(c.s.Imports, ImportBinding{BoundName: "*", RootLibrary: root, Stmt: st})
		}
		for _, a := range st.Names {
			name := a.AsName
			if name == "" {
				name = a.Name
			}
			c.importName(name, root, st)
		}
	case *pyast.FunctionDef:
		c.declare(&Declaration{Name: st.Name, Kind: KindFunction, Stmt: st, Params: st.Params})
	case *pyast.ClassDef:
		c.declare(&Declaration{Name: st.Name, Kind: KindClass, Stmt: st})
	case *pyast.Assign:
		for _, t := range st.Targets {
			c.bind(t, st.Value)
		}
	case *pyast.AnnAssign:
		if st.Value == nil {
			c.bindNames(st.Target)
			return
		}
		c.bind(st.Target, st.Value)
	case *pyast.AugAssign:
		c.bindNames(st.Target)
	case *pyast.For:
		c.bindNames(st.Target)
		c.stmts(st.Body)
		c.stmts(st.Orelse)
	case *pyast.While:
		c.stmts(st.Body)
		c.stmts(st.Orelse)
	case *pyast.If:
		c.stmts(st.Body)
		c.stmts(st.Orelse)
	case *pyast.Try:
		c.stmts(st.Body)
		for _, h := range st.Handlers {
			if h.Name != "" {
				c.s.ModuleNames[h.Name] = true
			}
			c.stmts(h.Body)
		}
		c.stmts(st.Orelse)
		c.stmts(st.Finally)
	case *pyast.With:
		for _, it := range st.Items {
			c.bindNames(it.Target)
		}
		c.stmts(st.Body)
	case *pyast.Match:
		for _, mc := range st.Cases {
			c.bindNames(mc.Pattern)
			c.stmts(mc.Body)
		}
	case *pyast.OpaqueStmt:
		c.stmts(st.Body)
	}
}

func (c *collector) importName(name, root string, st pyast.Stmt) {
	c.s.Imports = append(c.s.Imports, ImportBinding{BoundName: name, RootLibrary: root, Stmt: st})
	c.s.ModuleNames[name] = true
}

func (c *collector) declare(d *Declaration) {
	d.Order = c.order
	c.order++
	if prev, ok := c.s.Declarations[d.Name]; ok {
		c.s.Shadowed = append(c.s.Shadowed, prev)
	}
	c.s.Declarations[d.Name] = d
	c.s.ModuleNames[d.Name] = true
}

// bind records target = value. A direct call of a bare name records a
// constructor binding. Any other value, as in m = m.fit(), keeps the last
// recorded one.
func (c *collector) bind(target, value pyast.Expr) {
	switch t := target.(type) {
	case *pyast.Name:
		c.s.ModuleNames[t.ID] = true
		if callee := bareCallee(value); callee != "" {
			c.s.Constructors[t.ID] = ConstructorBinding{Variable: t.ID, Constructor: callee}
		}
	case *pyast.Tuple, *pyast.List:
		targets, values := elements(target), elements(value)
		if values == nil || len(targets) != len(values) {
			c.bindNames(target)
			return
		}
		for i := range targets {
			c.bind(targets[i], values[i])
		}
	default:
		c.bindNames(target)
	}
}

func (c *collector) bindNames(target pyast.Expr) {
	for _, name := range TargetNames(target) {
		c.s.ModuleNames[name] = true
	}
}

func elements(e pyast.Expr) []pyast.Expr {
	switch e := e.(type) {
	case *pyast.Tuple:
		return e.Elts
	case *pyast.List:
		return e.Elts
	}
	return nil
}

func bareCallee(e pyast.Expr) string {
	call, ok := e.(*pyast.Call)
	if !ok {
		return ""
	}
	if fn, ok := call.Func.(*pyast.Name); ok {
		return fn.ID
	}
	return ""
}

// TargetNames returns the names a binding target stores to, in order.
// Attribute and subscript targets bind nothing.
func TargetNames(target pyast.Expr) []string {
	var out []string
	if target == nil {
		return out
	}
	pyast.Walk(target, func(n pyast.Node) bool {
		switch n := n.(type) {
		case *pyast.Name:
			if n.Ctx != pyast.Load {
				out = append(out, n.ID)
			}
		case *pyast.Attribute, *pyast.Subscript:
			return false
		}
		return true
	})
	return out
}

func rootOf(module string) string {
	if i := strings.IndexByte(module, '.'); i >= 0 {
		return module[:i]
	}
	return module
}

// Lookup returns the winning declaration for name.
func (s *Script) Lookup(name string) (*Declaration, bool) {
	d, ok := s.Declarations[name]
	return d, ok
}

// ImportNames returns the set of names bound by module-level imports.
func (s *Script) ImportNames() map[string]bool {
	out := make(map[string]bool, len(s.Imports))
	for _, b := range s.Imports {
		out[b.BoundName] = true
	}
	return out
}

// Libraries returns the sorted root libraries of every absolute import.
func (s *Script) Libraries() []string {
	seen := map[string]bool{}
	out := []string{}
	for _, b := range s.Imports {
		if b.RootLibrary == "" || seen[b.RootLibrary] {
			continue
		}
		seen[b.RootLibrary] = true
		out = append(out, b.RootLibrary)
	}
	sort.Strings(out)
	return out
}

// Ordered returns the winning declarations in source order.
func (s *Script) Ordered() []*Declaration {
	out := make([]*Declaration, 0, len(s.Declarations))
	for _, d := range s.Declarations {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Order < out[j].Order })
	return out
}

// CheckDuplicates fails when any declaration was shadowed.
func (s *Script) CheckDuplicates() error {
	if len(s.Shadowed) == 0 {
		return nil
	}
	seen := map[string]bool{}
	var names []string
	for _, d := range s.Shadowed {
		if !seen[d.Name] {
			seen[d.Name] = true
			names = append(names, d.Name)
		}
	}
	sort.Strings(names)
	return fmt.Errorf("%w: %s", ErrDuplicateDeclaration, strings.Join(names, ", "))
}
