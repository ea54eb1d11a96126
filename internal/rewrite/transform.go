package rewrite

import (
	"strconv"
	"strings"

	"go.starlark.net/syntax"

	"github.com/leapstack-labs/scopestar/internal/visibility"
	"github.com/leapstack-labs/scopestar/pkg/format"
)

const (
	markerPublic    = "public"
	markerPrivate   = "private"
	markerProtected = "protected"
)

// transformer lowers the class factories and top-level functions of one
// parsed module.
type transformer struct {
	filename string
	prefix   string
	headers  map[int]*classHeader
	classes  map[string]bool

	descriptors []*ClassDescriptor
	functions   []string
	errs        ErrorList
}

func (t *transformer) fail(pos syntax.Position, class, member, msg string) {
	t.errs = append(t.errs, &TransformationError{
		File:   t.filename,
		Line:   pos.Line,
		Col:    pos.Col,
		Class:  class,
		Member: member,
		Msg:    msg,
	})
}

// classHeaderOf returns the class header a top-level def was desugared from.
func (t *transformer) classHeaderOf(def *syntax.DefStmt) *classHeader {
	return t.headers[int(def.Def.Line)]
}

func (t *transformer) file(f *syntax.File) {
	t.classes = make(map[string]bool)
	for _, stmt := range f.Stmts {
		def, ok := stmt.(*syntax.DefStmt)
		if !ok {
			continue
		}
		if h := t.classHeaderOf(def); h != nil {
			if t.classes[h.name] {
				t.fail(def.Def, h.name, "", "duplicate class definition")
			}
			t.classes[h.name] = true
		}
	}

	stmts := make([]syntax.Stmt, 0, len(f.Stmts)*2)
	for _, stmt := range f.Stmts {
		switch s := stmt.(type) {
		case *syntax.DefStmt:
			if h := t.classHeaderOf(s); h != nil {
				stmts = append(stmts, t.class(s, h), classAssign(s.Name.Name, s.Def))
				continue
			}
			t.function(s)
			stmts = append(stmts, s, trackAssign(s.Name.Name, s.Def))
		default:
			t.checkMarkers(stmt, "")
			stmts = append(stmts, stmt)
		}
	}
	f.Stmts = stmts
}

// function validates a top-level function and records it for tracking.
func (t *transformer) function(def *syntax.DefStmt) {
	name := def.Name.Name
	if class, ok := strings.CutPrefix(name, t.prefix); ok && t.classes[class] {
		t.fail(def.Def, class, name, "destructor marker on free function")
	}
	for _, stmt := range def.Body {
		t.checkMarkers(stmt, "")
	}
	t.functions = append(t.functions, name)
}

// class rewrites one class factory in place and returns it.
func (t *transformer) class(def *syntax.DefStmt, h *classHeader) *syntax.DefStmt {
	desc := &ClassDescriptor{
		Name: h.name,
		Pos:  position(def.Def),
	}
	t.descriptors = append(t.descriptors, desc)

	access := visibility.Public
	for _, stmt := range def.Body {
		if marker, _ := markerCall(stmt); marker == markerPublic {
			access = visibility.Private
			desc.HasBoundary = true
			break
		}
	}

	var methods, defaults []syntax.Expr
	var body []syntax.Stmt
	names := make(map[string]bool)

	for i, stmt := range def.Body {
		switch s := stmt.(type) {
		case *syntax.ExprStmt:
			if lit, ok := s.X.(*syntax.Literal); ok && lit.Token == syntax.STRING && i == 0 {
				desc.Doc, _ = lit.Value.(string)
				continue
			}
			marker, call := markerCall(s)
			switch marker {
			case "":
				t.failStmt(s, h.name, "", "unsupported statement in class body")
			case markerProtected:
				t.fail(call.Lparen, h.name, "", "protected() is not supported; use public() or private()")
			default:
				if len(call.Args) > 0 {
					t.fail(call.Lparen, h.name, "", marker+"() takes no arguments")
				}
				desc.HasBoundary = true
				access = visibility.Public
				if marker == markerPrivate {
					access = visibility.Private
				}
			}

		case *syntax.BranchStmt:
			if s.Token != syntax.PASS {
				t.fail(s.TokenPos, h.name, "", "unsupported statement in class body")
			}

		case *syntax.AssignStmt:
			id, ok := s.LHS.(*syntax.Ident)
			if !ok || s.Op != syntax.EQ {
				t.fail(s.OpPos, h.name, "", "unsupported assignment in class body")
				continue
			}
			if names[id.Name] {
				t.fail(id.NamePos, h.name, id.Name, "duplicate member")
				continue
			}
			names[id.Name] = true

			m := &Member{Name: id.Name, Access: access, Pos: position(id.NamePos)}
			if decl, ok := h.members[id.Name]; ok {
				m.Type = decl.typ
				m.HasDefault = decl.hasDefault
			} else {
				m.HasDefault = true
			}
			if m.HasDefault {
				m.Default = format.Expr(s.RHS)
			}
			desc.Members = append(desc.Members, m)
			t.checkMarkers(&syntax.ExprStmt{X: s.RHS}, h.name)
			t.checkDefault(s.RHS, h.name, id.Name, names)
			defaults = append(defaults, &syntax.LambdaExpr{Lambda: id.NamePos, Body: s.RHS})

		case *syntax.DefStmt:
			m := t.method(s, h.name, access)
			if m == nil {
				continue
			}
			if names[m.Name] {
				msg := "duplicate member"
				switch m.Kind {
				case MethodConstructor:
					msg = "multiple constructors"
				case MethodDestructor:
					msg = "multiple destructors"
				}
				t.fail(s.Name.NamePos, h.name, m.Name, msg)
				continue
			}
			names[m.Name] = true

			switch m.Kind {
			case MethodConstructor:
				desc.Constructor = m.Name
			case MethodDestructor:
				desc.Destructor = m.Name
			}
			desc.Methods = append(desc.Methods, m)

			s.Name = &syntax.Ident{NamePos: s.Name.NamePos, Name: h.name + "." + m.Name}
			body = append(body, s)
			methods = append(methods, &syntax.Ident{NamePos: s.Def, Name: s.Name.Name})

		default:
			t.failStmt(s, h.name, "", "unsupported statement in class body")
		}
	}

	pos := def.Def
	body = append(body, &syntax.ReturnStmt{
		Return: pos,
		Result: &syntax.ListExpr{
			Lbrack: pos,
			List: []syntax.Expr{
				&syntax.ListExpr{Lbrack: pos, List: methods, Rbrack: pos},
				&syntax.ListExpr{Lbrack: pos, List: defaults, Rbrack: pos},
			},
			Rbrack: pos,
		},
	})
	def.Body = body
	return def
}

// method validates a method, inserts the receiver parameter and describes it.
func (t *transformer) method(def *syntax.DefStmt, class string, access visibility.Access) *Method {
	name := def.Name.Name
	_, end := def.Span()
	m := &Method{Name: name, Kind: MethodOrdinary, Access: access, Pos: position(def.Def), End: position(end)}

	switch {
	case name == class:
		m.Kind = MethodConstructor
	case name == t.prefix+class:
		m.Kind = MethodDestructor
		if len(def.Params) > 0 {
			t.fail(def.Lparen, class, name, "destructor takes no parameters")
		}
	default:
		if other, ok := strings.CutPrefix(name, t.prefix); ok && t.classes[other] {
			t.fail(def.Def, class, name, "destructor without matching class: "+other+" is declared elsewhere")
			return nil
		}
	}

	for _, p := range def.Params {
		pname := paramName(p)
		if pname == ThisParam {
			t.fail(def.Lparen, class, name, "explicit this parameter; it is supplied implicitly")
			return nil
		}
		m.Params = append(m.Params, pname)
	}
	for _, stmt := range def.Body {
		t.checkMarkers(stmt, class)
	}

	this := &syntax.Ident{NamePos: def.Lparen, Name: ThisParam}
	def.Params = append([]syntax.Expr{this}, def.Params...)
	return m
}

// checkDefault reports identifiers in a member default that name a member
// or method declared above it. Defaults run before the instance exists and
// cannot see the class's own names.
func (t *transformer) checkDefault(expr syntax.Expr, class, member string, names map[string]bool) {
	syntax.Walk(expr, func(n syntax.Node) bool {
		switch n := n.(type) {
		case *syntax.LambdaExpr, *syntax.Comprehension:
			return false
		case *syntax.DotExpr:
			t.checkDefault(n.X, class, member, names)
			return false
		case *syntax.CallExpr:
			t.checkDefault(n.Fn, class, member, names)
			for _, arg := range n.Args {
				if kw, ok := arg.(*syntax.BinaryExpr); ok && kw.Op == syntax.EQ {
					arg = kw.Y
				}
				t.checkDefault(arg, class, member, names)
			}
			return false
		case *syntax.Ident:
			if names[n.Name] {
				t.fail(n.NamePos, class, member, "default refers to member "+n.Name+"; set it in the constructor")
			}
		}
		return true
	})
}

// checkMarkers reports visibility markers found anywhere below stmt.
func (t *transformer) checkMarkers(stmt syntax.Stmt, class string) {
	syntax.Walk(stmt, func(n syntax.Node) bool {
		s, ok := n.(*syntax.ExprStmt)
		if !ok {
			return true
		}
		if marker, call := markerCall(s); marker != "" {
			t.fail(call.Lparen, class, "", "visibility marker "+marker+"() outside class body")
		}
		return true
	})
}

func (t *transformer) failStmt(stmt syntax.Stmt, class, member, msg string) {
	start, _ := stmt.Span()
	t.fail(start, class, member, msg)
}

// markerCall reports whether stmt is a bare call to a visibility marker.
func markerCall(stmt syntax.Stmt) (string, *syntax.CallExpr) {
	s, ok := stmt.(*syntax.ExprStmt)
	if !ok {
		return "", nil
	}
	call, ok := s.X.(*syntax.CallExpr)
	if !ok {
		return "", nil
	}
	id, ok := call.Fn.(*syntax.Ident)
	if !ok {
		return "", nil
	}
	switch id.Name {
	case markerPublic, markerPrivate, markerProtected:
		return id.Name, call
	}
	return "", nil
}

func paramName(p syntax.Expr) string {
	switch p := p.(type) {
	case *syntax.Ident:
		return p.Name
	case *syntax.BinaryExpr:
		if id, ok := p.X.(*syntax.Ident); ok {
			return id.Name
		}
	case *syntax.UnaryExpr:
		if id, ok := p.X.(*syntax.Ident); ok {
			return p.Op.String() + id.Name
		}
		return p.Op.String()
	}
	return ""
}

// classAssign builds `Name = __class__("Name", Name())`.
func classAssign(name string, pos syntax.Position) syntax.Stmt {
	return &syntax.AssignStmt{
		OpPos: pos,
		Op:    syntax.EQ,
		LHS:   &syntax.Ident{NamePos: pos, Name: name},
		RHS: &syntax.CallExpr{
			Fn:     &syntax.Ident{NamePos: pos, Name: ClassBuiltin},
			Lparen: pos,
			Args: []syntax.Expr{
				&syntax.Literal{Token: syntax.STRING, TokenPos: pos, Raw: strconv.Quote(name), Value: name},
				&syntax.CallExpr{
					Fn:     &syntax.Ident{NamePos: pos, Name: name},
					Lparen: pos,
					Rparen: pos,
				},
			},
			Rparen: pos,
		},
	}
}

// trackAssign builds `name = __track__(name)`.
func trackAssign(name string, pos syntax.Position) syntax.Stmt {
	return &syntax.AssignStmt{
		OpPos: pos,
		Op:    syntax.EQ,
		LHS:   &syntax.Ident{NamePos: pos, Name: name},
		RHS: &syntax.CallExpr{
			Fn:     &syntax.Ident{NamePos: pos, Name: TrackBuiltin},
			Lparen: pos,
			Args:   []syntax.Expr{&syntax.Ident{NamePos: pos, Name: name}},
			Rparen: pos,
		},
	}
}

func position(p syntax.Position) Position {
	return Position{Line: p.Line, Col: p.Col}
}
