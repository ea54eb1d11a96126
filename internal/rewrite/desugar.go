package rewrite

import (
	"regexp"
	"strings"
)

var (
	classHeaderRE = regexp.MustCompile(`^class\b`)
	classNameRE   = regexp.MustCompile(`^class\s+([A-Za-z_][A-Za-z0-9_]*)\s*(\((.*)\))?\s*(:)?\s*$`)
	memberDeclRE  = regexp.MustCompile(`^([A-Za-z_][A-Za-z0-9_]*)\s*:(.*)$`)
)

// keywords may be followed by a colon without being a member declaration.
var keywords = map[string]bool{
	"and": true, "as": true, "assert": true, "break": true, "class": true,
	"continue": true, "def": true, "del": true, "elif": true, "else": true,
	"except": true, "finally": true, "for": true, "from": true, "global": true,
	"if": true, "import": true, "in": true, "is": true, "lambda": true,
	"load": true, "nonlocal": true, "not": true, "or": true, "pass": true,
	"raise": true, "return": true, "try": true, "while": true, "with": true,
	"yield": true,
}

// classHeader is what desugaring learned about one class block.
type classHeader struct {
	name    string
	line    int
	members map[string]*memberDecl
}

type memberDecl struct {
	typ        string
	hasDefault bool
}

// desugared is the line-preserving output of desugaring.
type desugared struct {
	src     string
	classes map[int]*classHeader // keyed by header line
}

// desugar lowers class headers and member declarations to plain Starlark
// without changing the number or order of lines, so positions in later
// diagnostics still refer to the original source.
func desugar(filename, src string) (*desugared, ErrorList) {
	lines := scanLines(src)
	out := &desugared{classes: make(map[int]*classHeader)}
	var errs ErrorList

	fail := func(l physLine, class, member, msg string) {
		errs = append(errs, &TransformationError{
			File:   filename,
			Line:   int32(l.num),
			Col:    int32(l.indent + 1),
			Class:  class,
			Member: member,
			Msg:    msg,
		})
	}

	var cur *classHeader
	bodyIndent := -1

	for i := range lines {
		l := &lines[i]
		if !l.start || l.blank {
			continue
		}

		if l.indent == 0 && cur != nil {
			if bodyIndent < 0 {
				fail(lines[cur.line-1], cur.name, "", "class body is empty")
			}
			cur, bodyIndent = nil, -1
		}

		content := l.content()
		if classHeaderRE.MatchString(content) {
			if l.indent > 0 {
				name := ""
				if m := classNameRE.FindStringSubmatch(stripComment(content)); m != nil {
					name = m[1]
				}
				fail(*l, name, "", "nested class definitions are not supported")
				continue
			}
			h, msg := parseClassHeader(content)
			if msg != "" {
				fail(*l, h.name, "", msg)
				continue
			}
			h.line = l.num
			cur = h
			out.classes[l.num] = h
			_, comment := cutComment(content)
			l.text = "def " + h.name + "():" + spaced(comment)
			continue
		}

		if cur == nil {
			continue
		}
		if bodyIndent < 0 {
			bodyIndent = l.indent
		}
		if l.indent != bodyIndent {
			continue
		}

		m := memberDeclRE.FindStringSubmatch(content)
		if m == nil || keywords[m[1]] {
			continue
		}
		name, rest := m[1], m[2]
		code, comment := cutComment(rest)
		typ, value, hasValue := splitTopLevel(code, '=')
		typ = strings.TrimSpace(typ)
		value = strings.TrimSpace(value)

		if typ == "" {
			fail(*l, cur.name, name, "member declaration is missing its type annotation")
			continue
		}
		if hasValue && value == "" {
			fail(*l, cur.name, name, "member default value is missing")
			continue
		}
		if _, dup := cur.members[name]; dup {
			fail(*l, cur.name, name, "duplicate member declaration")
			continue
		}
		cur.members[name] = &memberDecl{typ: typ, hasDefault: hasValue}

		if !hasValue {
			value = "None"
		}
		l.text = l.text[:l.indent] + name + " = " + value + spaced(comment)
	}
	if cur != nil && bodyIndent < 0 {
		fail(lines[cur.line-1], cur.name, "", "class body is empty")
	}

	texts := make([]string, len(lines))
	for i, l := range lines {
		texts[i] = l.text
	}
	out.src = strings.Join(texts, "\n")
	return out, errs
}

// parseClassHeader validates "class Name:" and returns the header or a
// diagnostic message.
func parseClassHeader(content string) (*classHeader, string) {
	code, _ := cutComment(content)
	m := classNameRE.FindStringSubmatch(strings.TrimRight(code, " \t"))
	if m == nil {
		return &classHeader{}, "malformed class header"
	}
	h := &classHeader{name: m[1], members: make(map[string]*memberDecl)}
	if strings.TrimSpace(m[3]) != "" {
		return h, "class inheritance is not supported"
	}
	if m[4] == "" {
		return h, "class header is missing ':'"
	}
	return h, ""
}

func stripComment(s string) string {
	code, _ := cutComment(s)
	return strings.TrimRight(code, " \t")
}

func spaced(comment string) string {
	if comment == "" {
		return ""
	}
	return "  " + comment
}

// Requested reports whether the module's top level loads the feature module.
func Requested(src []byte) bool {
	lines := scanLines(string(src))
	for i, l := range lines {
		if !l.start || l.blank || l.indent != 0 {
			continue
		}
		text := l.text
		for j := i + 1; j < len(lines) && !lines[j].start; j++ {
			text += "\n" + lines[j].text
		}
		if loadsFeature(text) {
			return true
		}
	}
	return false
}

var loadFeatureRE = regexp.MustCompile(`^load\s*\(\s*(?:"` + regexp.QuoteMeta(FeatureModule) + `"|'` + regexp.QuoteMeta(FeatureModule) + `')`)

func loadsFeature(line string) bool {
	return loadFeatureRE.MatchString(line)
}
