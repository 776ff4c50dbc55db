package partitioner

import (
	"sort"

	"github.com/don7panic/script-partitioner/analyzer"
	"github.com/don7panic/script-partitioner/models"
)

// closure is the set of declarations to re-embed and of variables to
// serialize. The two never share a name.
type closure struct {
	inlined  map[string]bool
	external map[string]bool
	deps     []models.Dependency
	seen     map[models.Dependency]bool
}

// computeClosure follows free variables from entry. Free names that are
// declarations are inlined; any other free name is external, and an
// external built by a local class constructor pulls the class in as well.
func computeClosure(s *analyzer.Script, entry string) *closure {
	an := analyzer.NewAnalyzer(s)
	cl := &closure{
		inlined:  map[string]bool{},
		external: map[string]bool{},
		seen:     map[models.Dependency]bool{},
	}

	stack := []string{entry}
	for len(stack) > 0 {
		name := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if cl.inlined[name] {
			continue
		}
		cl.inlined[name] = true

		d, _ := s.Lookup(name)
		for _, fv := range an.FreeVariables(d) {
			if _, ok := s.Lookup(fv.Name); ok {
				cl.edge(name, fv.Name, models.DependencyInline, fv.Line)
				stack = append(stack, fv.Name)
				continue
			}

			cl.external[fv.Name] = true
			cl.edge(name, fv.Name, models.DependencyExternal, fv.Line)
			cb, ok := s.Constructors[fv.Name]
			if !ok {
				continue
			}
			if cd, ok := s.Lookup(cb.Constructor); ok && cd.Kind == analyzer.KindClass {
				cl.edge(fv.Name, cb.Constructor, models.DependencyConstructor, 0)
				stack = append(stack, cb.Constructor)
			}
		}
	}
	return cl
}

func (cl *closure) edge(from, to, kind string, line int) {
	d := models.Dependency{From: from, To: to, Kind: kind, Line: line}
	if cl.seen[d] {
		return
	}
	cl.seen[d] = true
	cl.deps = append(cl.deps, d)
}

func (cl *closure) inlinedNames() []string {
	return sortedKeys(cl.inlined)
}

func (cl *closure) externalNames() []string {
	return sortedKeys(cl.external)
}

func sortedKeys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
