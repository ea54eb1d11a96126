package rewrite

import "strings"

// physLine is one physical source line annotated with the logical-line state
// the scanner was in when the line began.
type physLine struct {
	num    int    // 1-based line number
	text   string // without the trailing newline
	indent int    // width of leading whitespace
	start  bool   // begins a logical line
	blank  bool   // start line holding only whitespace and/or a comment
}

// content returns the line without its indentation.
func (l physLine) content() string {
	return l.text[l.indent:]
}

// scanLines splits src into physical lines and marks which of them begin a
// logical line. Brackets, string literals (including triple-quoted ones that
// span lines), comments and backslash continuations are honoured.
func scanLines(src string) []physLine {
	raw := strings.Split(src, "\n")
	lines := make([]physLine, 0, len(raw))

	depth := 0
	triple := ""
	continued := false

	for i, text := range raw {
		text = strings.TrimSuffix(text, "\r")
		l := physLine{
			num:    i + 1,
			text:   text,
			indent: indentWidth(text),
			start:  depth == 0 && triple == "" && !continued,
		}
		if l.start {
			rest := strings.TrimSpace(text)
			l.blank = rest == "" || strings.HasPrefix(rest, "#")
		}
		lines = append(lines, l)

		depth, triple, continued = scanState(text, depth, triple)
	}
	return lines
}

// scanState advances the bracket depth and open triple-quote across one line
// and reports whether the line ends in a backslash continuation.
func scanState(s string, depth int, triple string) (int, string, bool) {
	last := byte(0)
	i := 0
	for i < len(s) {
		if triple != "" {
			if strings.HasPrefix(s[i:], triple) {
				triple = ""
				i += 3
				continue
			}
			if s[i] == '\\' {
				i += 2
				continue
			}
			i++
			continue
		}

		c := s[i]
		switch c {
		case '#':
			return depth, triple, false
		case '"', '\'':
			q := strings.Repeat(string(c), 3)
			if strings.HasPrefix(s[i:], q) {
				triple = q
				i += 3
				continue
			}
			i = skipString(s, i)
			last = c
			continue
		case '(', '[', '{':
			depth++
		case ')', ']', '}':
			if depth > 0 {
				depth--
			}
		}
		if c != ' ' && c != '\t' {
			last = c
		}
		i++
	}
	return depth, triple, triple == "" && last == '\\'
}

// skipString returns the index just past the single-quoted string literal
// starting at s[i]. An unterminated literal runs to the end of the line.
func skipString(s string, i int) int {
	q := s[i]
	i++
	for i < len(s) {
		switch s[i] {
		case '\\':
			i += 2
			continue
		case q:
			return i + 1
		}
		i++
	}
	return len(s)
}

func indentWidth(s string) int {
	n := 0
	for n < len(s) && (s[n] == ' ' || s[n] == '\t') {
		n++
	}
	return n
}

// splitTopLevel splits s at the first occurrence of sep outside brackets and
// string literals. An "=" that is part of "==" is not a separator.
func splitTopLevel(s string, sep byte) (before, after string, found bool) {
	depth := 0
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch c {
		case '"', '\'':
			i = skipString(s, i) - 1
		case '(', '[', '{':
			depth++
		case ')', ']', '}':
			if depth > 0 {
				depth--
			}
		case '#':
			return s, "", false
		default:
			if c != sep || depth != 0 {
				continue
			}
			if sep == '=' {
				if i+1 < len(s) && s[i+1] == '=' {
					i++
					continue
				}
				if i > 0 && strings.IndexByte("=!<>", s[i-1]) >= 0 {
					continue
				}
			}
			return s[:i], s[i+1:], true
		}
	}
	return s, "", false
}

// cutComment separates a trailing "#" comment that lies outside string literals.
func cutComment(s string) (code, comment string) {
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '"', '\'':
			i = skipString(s, i) - 1
		case '#':
			return s[:i], s[i:]
		}
	}
	return s, ""
}
