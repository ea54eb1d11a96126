package format

import (
	"go.starlark.net/syntax"
)

// Format prints a parsed (or rewritten) Starlark file. Comments are kept when
// the file was parsed with syntax.RetainComments.
func Format(f *syntax.File) string {
	p := newPrinter()
	p.formatFile(f)
	return p.String()
}

// Expr prints a single expression.
func Expr(e syntax.Expr) string {
	p := newPrinter()
	p.formatExpr(e)
	return p.buf.String()
}
