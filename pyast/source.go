package pyast

import "strings"

// Segment returns the source text of n with its indentation removed, so a
// nested definition can be re-emitted at module level. Lines inside
// multi-line string literals are kept byte for byte.
func Segment(src []byte, n Node) string {
	sp := n.Pos()
	text := strings.TrimRight(string(src[sp.StartByte:sp.EndByte]), " \t\r\n")
	if sp.StartCol == 0 || sp.StartLine == sp.EndLine {
		return text
	}

	verbatim := map[int]bool{}
	Walk(n, func(x Node) bool {
		var p Span
		switch x := x.(type) {
		case *Constant:
			if x.Kind != "string" {
				return true
			}
			p = x.Pos()
		case *FString:
			p = x.Pos()
		default:
			return true
		}
		for line := p.StartLine + 1; line <= p.EndLine; line++ {
			verbatim[line] = true
		}
		return true
	})

	lines := strings.Split(text, "\n")
	for i := 1; i < len(lines); i++ {
		if verbatim[sp.StartLine+i] {
			continue
		}
		lines[i] = trimIndent(lines[i], sp.StartCol)
	}
	return strings.Join(lines, "\n")
}

// trimIndent removes up to width leading spaces or tabs.
func trimIndent(line string, width int) string {
	i := 0
	for i < width && i < len(line) && (line[i] == ' ' || line[i] == '\t') {
		i++
	}
	return line[i:]
}

// Indent prefixes every non-empty line of text with prefix.
func Indent(text, prefix string) string {
	if prefix == "" {
		return text
	}
	lines := strings.Split(text, "\n")
	for i, l := range lines {
		if strings.TrimSpace(l) != "" {
			lines[i] = prefix + l
		}
	}
	return strings.Join(lines, "\n")
}

// LineStart returns the offset of the first byte of the line holding off.
func LineStart(src []byte, off int) int {
	for off > 0 && src[off-1] != '\n' {
		off--
	}
	return off
}

// Leading returns the whitespace that opens the line holding off.
func Leading(src []byte, off int) string {
	start := LineStart(src, off)
	end := start
	for end < len(src) && (src[end] == ' ' || src[end] == '\t') {
		end++
	}
	return string(src[start:end])
}
