package lsp

import (
	"fmt"
	"sort"
	"strings"

	protocol "github.com/tliron/glsp/protocol_3_16"

	"github.com/leapstack-labs/scopestar/internal/rewrite"
	"github.com/leapstack-labs/scopestar/internal/visibility"
)

// getCompletions returns completion items for the given position.
//
// After "this." inside a class body every member and method of that class is
// offered. After any other "x." only the public members of the module's
// classes are. Elsewhere the class names are offered, plus the visibility
// markers inside a class body.
func (s *Server) getCompletions(params protocol.TextDocumentPositionParams) []protocol.CompletionItem {
	doc := s.documents.Get(params.TextDocument.URI)
	if doc == nil {
		return nil
	}

	line := doc.Line(int(params.Position.Line))
	col := min(int(params.Position.Character), len(line))
	prefix := identifierBefore(line, col)
	receiver, dotted := receiverBefore(line, col-len(prefix))
	class := doc.enclosingClass(int(params.Position.Line))

	var items []protocol.CompletionItem
	unit := doc.Unit
	if unit == nil {
		if !dotted && class == "" && !rewrite.Requested([]byte(doc.Content)) {
			items = append(items, featureLoadItem())
		}
		return filterPrefix(items, prefix)
	}

	switch {
	case dotted && receiver == rewrite.ThisParam && class != "":
		if c, ok := unit.Class(class); ok {
			items = append(items, memberItems(c, false)...)
		}
	case dotted:
		seen := make(map[string]bool)
		for _, c := range unit.Classes {
			for _, item := range memberItems(c, true) {
				if !seen[item.Label] {
					seen[item.Label] = true
					items = append(items, item)
				}
			}
		}
	default:
		for _, c := range unit.Classes {
			items = append(items, completionItem(c.Name, protocol.CompletionItemKindClass, classSignature(c), c.Doc))
		}
		if class != "" {
			for _, marker := range []string{"public", "private"} {
				item := completionItem(marker+"()", protocol.CompletionItemKindKeyword, "visibility marker", "")
				item.InsertText = ptrTo(marker + "()")
				items = append(items, item)
			}
		}
	}

	return filterPrefix(items, prefix)
}

func featureLoadItem() protocol.CompletionItem {
	text := fmt.Sprintf("load(%q, %q)", rewrite.FeatureModule, rewrite.FeatureSymbol)
	item := completionItem("load", protocol.CompletionItemKindSnippet, text,
		"Enable classes with constructors, destructors and private members in this module.")
	item.InsertText = &text
	return item
}

// completionItem builds an item; empty documentation is left out.
func completionItem(label string, kind protocol.CompletionItemKind, detail, doc string) protocol.CompletionItem {
	item := protocol.CompletionItem{Label: label, Kind: &kind, Detail: &detail}
	if doc != "" {
		item.Documentation = doc
	}
	return item
}

// memberItems lists the members and ordinary methods of c. Constructor and
// destructor are never offered: they are not members.
func memberItems(c *rewrite.ClassDescriptor, publicOnly bool) []protocol.CompletionItem {
	b := c.Boundary()
	var items []protocol.CompletionItem
	for _, m := range c.Members {
		access := b.Access(m.Name)
		if publicOnly && access == visibility.Private {
			continue
		}
		detail := access.String()
		if m.Type != "" {
			detail += " " + m.Type
		}
		items = append(items, completionItem(m.Name, protocol.CompletionItemKindField, c.Name+": "+detail, ""))
	}
	for _, m := range c.Methods {
		if m.Kind != rewrite.MethodOrdinary {
			continue
		}
		access := b.Access(m.Name)
		if publicOnly && access == visibility.Private {
			continue
		}
		item := completionItem(m.Name, protocol.CompletionItemKindMethod,
			fmt.Sprintf("%s: %s %s", c.Name, access, formatSignature(m.Name, m.Params)), "")
		item.InsertText = ptrTo(m.Name + "($1)")
		item.InsertTextFormat = ptrTo(protocol.InsertTextFormatSnippet)
		items = append(items, item)
	}
	return items
}

func filterPrefix(items []protocol.CompletionItem, prefix string) []protocol.CompletionItem {
	if prefix == "" {
		return items
	}
	var out []protocol.CompletionItem
	for _, item := range items {
		if strings.HasPrefix(item.Label, prefix) {
			out = append(out, item)
		}
	}
	return out
}

// identifierBefore returns the identifier characters immediately before col.
func identifierBefore(line string, col int) string {
	start := col
	for start > 0 && isWordChar(line[start-1]) {
		start--
	}
	return line[start:col]
}

// receiverBefore reports whether col is preceded by a dot and returns the
// identifier before that dot.
func receiverBefore(line string, col int) (string, bool) {
	if col <= 0 || line[col-1] != '.' {
		return "", false
	}
	return identifierBefore(line, col-1), true
}

// enclosingClass returns the name of the class whose body contains the
// 0-based line, or "" when the line is not in a class body. It works on the
// raw text so it keeps answering while the document does not rewrite.
func (d *Document) enclosingClass(line int) string {
	if line >= d.LineCount() {
		line = d.LineCount() - 1
	}
	for l := line; l >= 0; l-- {
		text := d.Line(l)
		trimmed := strings.TrimSpace(text)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}
		if text[0] == ' ' || text[0] == '\t' {
			continue
		}
		if l == line {
			return ""
		}
		name, ok := strings.CutPrefix(trimmed, "class ")
		if !ok {
			return ""
		}
		name = strings.TrimSpace(name)
		end := 0
		for end < len(name) && isWordChar(name[end]) {
			end++
		}
		return name[:end]
	}
	return ""
}

func formatSignature(name string, args []string) string {
	return fmt.Sprintf("%s(%s)", name, strings.Join(args, ", "))
}

// classSignature renders the constructor call of c.
func classSignature(c *rewrite.ClassDescriptor) string {
	if c.Constructor != "" {
		if m, ok := c.Method(c.Constructor); ok {
			return "class " + formatSignature(c.Name, m.Params)
		}
	}
	return "class " + c.Name + "()"
}

// getHover describes the class or member under the cursor.
func (s *Server) getHover(params protocol.TextDocumentPositionParams) *protocol.Hover {
	doc := s.documents.Get(params.TextDocument.URI)
	if doc == nil || doc.Unit == nil {
		return nil
	}

	word, rng := doc.WordAt(params.Position)
	if word == "" {
		return nil
	}

	var content string
	if c, ok := doc.Unit.Class(word); ok {
		content = classHover(c)
	} else if c, ok := doc.memberOwner(params.Position, rng); ok {
		content = memberHover(c, word)
	}
	if content == "" {
		return nil
	}
	return &protocol.Hover{
		Contents: protocol.MarkupContent{Kind: protocol.MarkupKindMarkdown, Value: content},
		Range:    &rng,
	}
}

func classHover(c *rewrite.ClassDescriptor) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "```\n%s\n```", classSignature(c))
	if c.Doc != "" {
		sb.WriteString("\n\n" + c.Doc)
	}

	var lifecycle []string
	if c.Constructor != "" {
		lifecycle = append(lifecycle, "constructor `"+c.Constructor+"`")
	}
	if c.Destructor != "" {
		lifecycle = append(lifecycle, "destructor `"+c.Destructor+"`")
	}
	if len(lifecycle) > 0 {
		sb.WriteString("\n\n" + strings.Join(lifecycle, ", "))
	}

	if private := c.Boundary().Private(); len(private) > 0 {
		sb.WriteString("\n\nprivate: " + strings.Join(private, ", "))
	}
	return sb.String()
}

func memberHover(c *rewrite.ClassDescriptor, name string) string {
	b := c.Boundary()
	if m, ok := c.Member(name); ok {
		s := fmt.Sprintf("```\n%s.%s", c.Name, m.Name)
		if m.Type != "" {
			s += ": " + m.Type
		}
		if m.HasDefault {
			s += " = " + m.Default
		}
		return s + "\n```\n\n" + b.Access(name).String() + " member"
	}
	if m, ok := c.Method(name); ok {
		s := fmt.Sprintf("```\n%s.%s\n```\n\n", c.Name, formatSignature(m.Name, m.Params))
		switch m.Kind {
		case rewrite.MethodConstructor:
			return s + "constructor"
		case rewrite.MethodDestructor:
			return s + "destructor, runs when the owning scope exits"
		}
		return s + b.Access(name).String() + " method"
	}
	return ""
}

// memberOwner finds the class that declares the member named by the word at
// rng: the enclosing class for "this.x" and for declarations in a class body,
// otherwise the first class of the module declaring the name.
func (d *Document) memberOwner(pos protocol.Position, rng protocol.Range) (*rewrite.ClassDescriptor, bool) {
	word, _ := d.WordAt(pos)
	line := d.Line(int(rng.Start.Line))
	receiver, dotted := receiverBefore(line, int(rng.Start.Character))

	if class := d.enclosingClass(int(pos.Line)); class != "" && (!dotted || receiver == rewrite.ThisParam) {
		if c, ok := d.Unit.Class(class); ok && declares(c, word) {
			return c, true
		}
	}
	if !dotted {
		return nil, false
	}
	classes := append([]*rewrite.ClassDescriptor(nil), d.Unit.Classes...)
	sort.SliceStable(classes, func(i, j int) bool {
		return classes[i].Boundary().Access(word) < classes[j].Boundary().Access(word)
	})
	for _, c := range classes {
		if declares(c, word) {
			return c, true
		}
	}
	return nil, false
}

func declares(c *rewrite.ClassDescriptor, name string) bool {
	if _, ok := c.Member(name); ok {
		return true
	}
	_, ok := c.Method(name)
	return ok
}

// getDefinition returns where the class or member under the cursor is
// declared.
func (s *Server) getDefinition(params protocol.TextDocumentPositionParams) *protocol.Location {
	doc := s.documents.Get(params.TextDocument.URI)
	if doc == nil || doc.Unit == nil {
		return nil
	}

	word, rng := doc.WordAt(params.Position)
	if word == "" {
		return nil
	}

	var pos rewrite.Position
	if c, ok := doc.Unit.Class(word); ok && doc.enclosingClass(int(params.Position.Line)) != word {
		pos = c.Pos
	} else if c, ok := doc.memberOwner(params.Position, rng); ok {
		if m, ok := c.Member(word); ok {
			pos = m.Pos
		} else if m, ok := c.Method(word); ok {
			pos = m.Pos
		}
	}
	if pos.Line <= 0 {
		return nil
	}
	return &protocol.Location{URI: doc.URI, Range: doc.nameRange(pos.Line, pos.Col, word)}
}
