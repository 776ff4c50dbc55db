package partitioner

import (
	"context"
	"sort"

	"github.com/don7panic/script-partitioner/pyast"
)

// loopLines parses the training script and returns every line covered by
// a module-level for or while loop. A loop covers the lines up to the next
// module-level statement; the last statement covers up to the highest line
// any node in it starts on.
func loopLines(ctx context.Context, training []byte) ([]int, error) {
	mod, err := pyast.Parse(ctx, training)
	if err != nil {
		return nil, err
	}

	lines := map[int]bool{}
	for i, st := range mod.Body {
		switch st.(type) {
		case *pyast.For, *pyast.While:
		default:
			continue
		}
		start := st.Pos().StartLine
		end := 0
		if i < len(mod.Body)-1 {
			end = mod.Body[i+1].Pos().StartLine
		} else {
			last := start
			pyast.Walk(st, func(n pyast.Node) bool {
				if l := n.Pos().StartLine; l > last {
					last = l
				}
				return true
			})
			end = last + 1
		}
		for l := start; l < end; l++ {
			lines[l] = true
		}
	}

	out := make([]int, 0, len(lines))
	for l := range lines {
		out = append(out, l)
	}
	sort.Ints(out)
	return out, nil
}
