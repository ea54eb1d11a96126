package lsp

import (
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/tliron/glsp"
	protocol "github.com/tliron/glsp/protocol_3_16"
	"go.starlark.net/syntax"

	"github.com/leapstack-labs/scopestar/internal/rewrite"
	"github.com/leapstack-labs/scopestar/internal/visibility"
)

// Diagnostic codes.
const (
	CodeTransformation = "transformation"
	CodeSyntax         = "syntax"
	CodePrivateAccess  = "private-access"
)

const diagnosticSource = "scopestar"

func newDiagnostic(rng protocol.Range, severity protocol.DiagnosticSeverity, code, msg string) protocol.Diagnostic {
	return protocol.Diagnostic{
		Range:    rng,
		Severity: &severity,
		Code:     &protocol.IntegerOrString{Value: code},
		Source:   ptrTo(diagnosticSource),
		Message:  msg,
	}
}

// publishDiagnostics rewrites the document and publishes what it found.
func (s *Server) publishDiagnostics(ctx *glsp.Context, uri string) {
	doc := s.documents.Get(uri)
	if doc == nil {
		return
	}

	diagnostics, unit := s.analyze(doc)
	if unit != nil {
		s.documents.SetUnit(uri, doc.Version, unit)
	}
	if diagnostics == nil {
		diagnostics = []protocol.Diagnostic{}
	}

	ctx.Notify(protocol.ServerTextDocumentPublishDiagnostics, protocol.PublishDiagnosticsParams{
		URI:         uri,
		Diagnostics: diagnostics,
	})
}

// analyze checks one document. Modules that do not load the feature module
// are plain Starlark and only get syntax diagnostics. The returned unit is
// nil unless the document rewrote cleanly.
func (s *Server) analyze(doc *Document) ([]protocol.Diagnostic, *rewrite.Unit) {
	filename := filepath.Base(URIToPath(doc.URI))
	src := []byte(doc.Content)

	if !rewrite.Requested(src) {
		return s.plainDiagnostics(doc, filename), nil
	}

	unit, err := rewrite.Rewrite(filename, src, s.options)
	if err != nil {
		return transformationDiagnostics(doc, err), nil
	}
	return privateAccessDiagnostics(doc, unit), unit
}

func (s *Server) plainDiagnostics(doc *Document, filename string) []protocol.Diagnostic {
	opts := s.options.Dialect
	_, err := opts.Parse(filename, doc.Content, 0)
	if err == nil {
		return nil
	}

	var serr syntax.Error
	if !errors.As(err, &serr) {
		return []protocol.Diagnostic{newDiagnostic(protocol.Range{}, protocol.DiagnosticSeverityError, CodeSyntax, err.Error())}
	}

	msg := serr.Msg
	line := doc.Line(int(serr.Pos.Line) - 1)
	if strings.HasPrefix(strings.TrimSpace(line), "class ") {
		msg = fmt.Sprintf("%s; classes need load(%q, %q)", msg, rewrite.FeatureModule, rewrite.FeatureSymbol)
	}
	return []protocol.Diagnostic{
		newDiagnostic(doc.wordRange(serr.Pos.Line, serr.Pos.Col), protocol.DiagnosticSeverityError, CodeSyntax, msg),
	}
}

// transformationDiagnostics converts a rewrite failure to diagnostics, one
// per transformation error.
func transformationDiagnostics(doc *Document, err error) []protocol.Diagnostic {
	var errs []*rewrite.TransformationError
	var list rewrite.ErrorList
	var single *rewrite.TransformationError
	switch {
	case errors.As(err, &list):
		errs = list
	case errors.As(err, &single):
		errs = []*rewrite.TransformationError{single}
	default:
		return []protocol.Diagnostic{newDiagnostic(protocol.Range{}, protocol.DiagnosticSeverityError, CodeTransformation, err.Error())}
	}

	diagnostics := make([]protocol.Diagnostic, 0, len(errs))
	for _, e := range errs {
		diagnostics = append(diagnostics, newDiagnostic(
			doc.wordRange(e.Line, e.Col), protocol.DiagnosticSeverityError, CodeTransformation, transformationMessage(e)))
	}
	return diagnostics
}

func transformationMessage(e *rewrite.TransformationError) string {
	switch {
	case e.Class != "" && e.Member != "":
		return e.Class + "." + e.Member + ": " + e.Msg
	case e.Class != "":
		return e.Class + ": " + e.Msg
	case e.Member != "":
		return e.Member + ": " + e.Msg
	}
	return e.Msg
}

// privateAccessDiagnostics warns about attribute accesses outside any class
// body that name a member every class of the module declares private. The
// runtime check is authoritative; this only catches the obvious cases.
func privateAccessDiagnostics(doc *Document, unit *rewrite.Unit) []protocol.Diagnostic {
	private := privateNames(unit)
	if len(private) == 0 {
		return nil
	}

	var diagnostics []protocol.Diagnostic
	for _, stmt := range unit.File.Stmts {
		if def, ok := stmt.(*syntax.DefStmt); ok {
			if _, isClass := unit.Class(def.Name.Name); isClass {
				continue
			}
		}
		syntax.Walk(stmt, func(n syntax.Node) bool {
			dot, ok := n.(*syntax.DotExpr)
			if !ok {
				return true
			}
			if owners, ok := private[dot.Name.Name]; ok {
				start := dot.Name.NamePos
				diagnostics = append(diagnostics, newDiagnostic(
					doc.wordRange(start.Line, start.Col), protocol.DiagnosticSeverityWarning, CodePrivateAccess,
					fmt.Sprintf("%s is private to %s", dot.Name.Name, strings.Join(owners, ", "))))
			}
			return true
		})
	}
	return diagnostics
}

// privateNames maps each member or method name that is private in every
// class declaring it to those classes.
func privateNames(unit *rewrite.Unit) map[string][]string {
	owners := make(map[string][]string)
	public := make(map[string]bool)
	for _, c := range unit.Classes {
		b := c.Boundary()
		for _, name := range b.Private() {
			owners[name] = append(owners[name], c.Name)
		}
		for _, m := range c.Members {
			if b.Access(m.Name) == visibility.Public {
				public[m.Name] = true
			}
		}
		for _, m := range c.Methods {
			if m.Kind == rewrite.MethodOrdinary && b.Access(m.Name) == visibility.Public {
				public[m.Name] = true
			}
		}
	}
	for name, classes := range owners {
		if public[name] {
			delete(owners, name)
			continue
		}
		sort.Strings(classes)
	}
	return owners
}

// wordRange returns the range of the identifier starting at a 1-based line
// and column, or the whole line when the column is unknown.
func (d *Document) wordRange(line, col int32) protocol.Range {
	if line <= 0 {
		return protocol.Range{}
	}
	l := int(line) - 1
	text := d.Line(l)
	if col <= 0 {
		return lineRange(l, 0, len(text))
	}
	start := min(int(col)-1, len(text))
	end := start
	for end < len(text) && isWordChar(text[end]) {
		end++
	}
	if end == start && end < len(text) {
		end++
	}
	return lineRange(l, start, end)
}

// nameRange returns the range of the first occurrence of name as a whole
// word on a 1-based line, falling back to the word at col.
func (d *Document) nameRange(line, col int32, name string) protocol.Range {
	if line > 0 {
		l := int(line) - 1
		text := d.Line(l)
		for from := 0; from < len(text); {
			i := strings.Index(text[from:], name)
			if i < 0 {
				break
			}
			start, end := from+i, from+i+len(name)
			if (start == 0 || !isWordChar(text[start-1])) && (end == len(text) || !isWordChar(text[end])) {
				return lineRange(l, start, end)
			}
			from = end
		}
	}
	return d.wordRange(line, col)
}
