// Package format prints Starlark syntax trees back to source text.
package format

import (
	"strings"

	"go.starlark.net/syntax"
)

const indentWidth = 4

// printer accumulates source text. Indentation is emitted lazily by the
// first write on each line.
type printer struct {
	buf   strings.Builder
	depth int
	bol   bool
}

func newPrinter() *printer { return &printer{bol: true} }

// String returns the output with exactly one trailing newline.
func (p *printer) String() string {
	return strings.TrimRight(p.buf.String(), "\n") + "\n"
}

func (p *printer) write(s string) {
	if s == "" {
		return
	}
	if p.bol && s[0] != '\n' {
		p.buf.WriteString(strings.Repeat(" ", p.depth*indentWidth))
	}
	p.buf.WriteString(s)
	p.bol = false
}

func (p *printer) writeln() {
	p.buf.WriteByte('\n')
	p.bol = true
}

func (p *printer) space() { p.write(" ") }

func (p *printer) indent() { p.depth++ }

func (p *printer) dedent() { p.depth = max(p.depth-1, 0) }

// blankLine ends the current line and leaves exactly one empty line after
// it. Nothing is emitted at the start of the output.
func (p *printer) blankLine() {
	if !p.bol {
		p.writeln()
	}
	out := p.buf.String()
	if out != "" && !strings.HasSuffix(out, "\n\n") {
		p.writeln()
	}
}

// formatComments prints each comment on a line of its own.
func (p *printer) formatComments(comments []syntax.Comment) {
	for _, c := range comments {
		p.write(c.Text)
		p.writeln()
	}
}

func (p *printer) formatTrailingComments(comments []syntax.Comment) {
	for _, c := range comments {
		p.write("  " + c.Text)
	}
}
