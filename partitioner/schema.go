package partitioner

import (
	"strings"

	"github.com/don7panic/script-partitioner/models"
	"github.com/don7panic/script-partitioner/pyast"
)

const unknownType = "Unknown Type"

// inputSchema maps each named parameter of the entry point to the type
// written in its annotation. Only bare names and bare-name generics such
// as List[str] or Dict[str, int] are understood.
func inputSchema(params []pyast.Param) models.InputSchema {
	schema := models.InputSchema{}
	for _, p := range params {
		if p.Kind == pyast.ParamVarArgs || p.Kind == pyast.ParamVarKeywords {
			continue
		}
		schema = append(schema, models.SchemaField{Name: p.Name, Type: typeName(p.Annotation)})
	}
	return schema
}

func typeName(e pyast.Expr) string {
	switch e := e.(type) {
	case *pyast.Name:
		return e.ID
	case *pyast.Subscript:
		outer, ok := e.Value.(*pyast.Name)
		if !ok {
			return unknownType
		}
		var args []pyast.Expr
		for _, idx := range e.Index {
			if t, ok := idx.(*pyast.Tuple); ok {
				args = append(args, t.Elts...)
				continue
			}
			args = append(args, idx)
		}
		if len(args) == 0 {
			return unknownType
		}
		var b strings.Builder
		b.WriteString(outer.ID)
		for _, a := range args {
			n, ok := a.(*pyast.Name)
			if !ok {
				return unknownType
			}
			b.WriteString("[" + n.ID + "]")
		}
		return b.String()
	}
	return unknownType
}
