package pyast

import (
	"context"
	"errors"
	"fmt"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/python"
)

// ErrSyntax is returned when the script does not parse as Python.
var ErrSyntax = errors.New("pyast: invalid syntax")

// Parse parses src as a Python module.
//
// A fresh tree-sitter parser is created for each call, so Parse is safe for
// concurrent use. The returned Module keeps a reference to src.
func Parse(ctx context.Context, src []byte) (*Module, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("parse canceled before start: %w", err)
	}

	parser := sitter.NewParser()
	parser.SetLanguage(python.GetLanguage())

	tree, err := parser.ParseCtx(ctx, nil, src)
	if err != nil {
		return nil, fmt.Errorf("tree-sitter parse failed: %w", err)
	}
	defer tree.Close()

	root := tree.RootNode()
	if root.HasError() {
		if bad := firstError(root); bad != nil {
			return nil, fmt.Errorf(
				"%w: line %d: unexpected %q", ErrSyntax,
				int(bad.StartPoint().Row)+1, snippet(bad.Content(src)),
			)
		}
		return nil, ErrSyntax
	}

	l := &lowerer{src: src}
	return &Module{Source: src, Body: l.block(root)}, nil
}

func firstError(n *sitter.Node) *sitter.Node {
	if n.Type() == "ERROR" || n.IsMissing() {
		return n
	}
	for i := 0; i < int(n.ChildCount()); i++ {
		c := n.Child(i)
		if c == nil || !c.HasError() && !c.IsMissing() {
			continue
		}
		if bad := firstError(c); bad != nil {
			return bad
		}
	}
	return nil
}

func snippet(s string) string {
	const max = 40
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' {
			s = s[:i]
			break
		}
	}
	if len(s) > max {
		return s[:max] + "..."
	}
	return s
}
