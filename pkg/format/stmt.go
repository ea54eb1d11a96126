package format

import (
	"go.starlark.net/syntax"
)

func (p *printer) formatFile(f *syntax.File) {
	if f == nil {
		return
	}
	if c := f.Comments(); c != nil {
		p.formatComments(c.Before)
	}
	for i, stmt := range f.Stmts {
		_, isDef := stmt.(*syntax.DefStmt)
		if i > 0 && (isDef || isDefStmt(f.Stmts[i-1])) {
			p.blankLine()
		}
		p.formatStmt(stmt)
	}
	if c := f.Comments(); c != nil {
		p.formatComments(c.After)
	}
}

func isDefStmt(s syntax.Stmt) bool {
	_, ok := s.(*syntax.DefStmt)
	return ok
}

func (p *printer) formatBody(stmts []syntax.Stmt) {
	p.indent()
	for _, stmt := range stmts {
		p.formatStmt(stmt)
	}
	p.dedent()
}

func (p *printer) formatStmt(s syntax.Stmt) {
	c := s.Comments()
	if c != nil {
		p.formatComments(c.Before)
	}

	switch stmt := s.(type) {
	case *syntax.AssignStmt:
		p.formatExpr(stmt.LHS)
		p.write(" " + stmt.Op.String() + " ")
		p.formatExpr(stmt.RHS)
	case *syntax.BranchStmt:
		p.write(stmt.Token.String())
	case *syntax.ExprStmt:
		p.formatExpr(stmt.X)
	case *syntax.ReturnStmt:
		p.write("return")
		if stmt.Result != nil {
			p.space()
			p.formatExpr(stmt.Result)
		}
	case *syntax.LoadStmt:
		p.formatLoadStmt(stmt)
	case *syntax.DefStmt:
		p.write("def " + stmt.Name.Name + "(")
		p.formatExprList(stmt.Params)
		p.write("):")
		p.formatBlock(stmt.Body, c, stmt.Def.Line)
		return
	case *syntax.IfStmt:
		p.formatIfStmt(stmt, "if", c)
		return
	case *syntax.ForStmt:
		p.write("for ")
		p.formatExpr(stmt.Vars)
		p.write(" in ")
		p.formatExpr(stmt.X)
		p.write(":")
		p.formatBlock(stmt.Body, c, stmt.For.Line)
		return
	case *syntax.WhileStmt:
		p.write("while ")
		p.formatExpr(stmt.Cond)
		p.write(":")
		p.formatBlock(stmt.Body, c, stmt.While.Line)
		return
	}

	p.formatSuffix(c)
	p.writeln()
	if c != nil {
		p.formatComments(c.After)
	}
}

func (p *printer) formatSuffix(c *syntax.Comments) {
	if c != nil {
		p.formatTrailingComments(c.Suffix)
	}
}

// formatBlock finishes a compound statement header and prints its body.
// The parser attaches an end-of-line comment on the last body line to the
// compound statement, so only comments on the header line stay inline.
func (p *printer) formatBlock(body []syntax.Stmt, c *syntax.Comments, line int32) {
	var rest []syntax.Comment
	if c != nil {
		for _, sc := range c.Suffix {
			if sc.Start.Line == line {
				p.formatTrailingComments([]syntax.Comment{sc})
				continue
			}
			rest = append(rest, sc)
		}
	}
	p.writeln()
	p.formatBody(body)
	if len(rest) > 0 {
		p.indent()
		p.formatComments(rest)
		p.dedent()
	}
}

// formatIfStmt prints an if statement, folding else-if chains into elif.
func (p *printer) formatIfStmt(stmt *syntax.IfStmt, keyword string, c *syntax.Comments) {
	p.write(keyword + " ")
	p.formatExpr(stmt.Cond)
	p.write(":")
	if len(stmt.False) > 0 {
		p.formatBlock(stmt.True, nil, 0)
	} else {
		p.formatBlock(stmt.True, c, stmt.If.Line)
	}

	if len(stmt.False) == 0 {
		return
	}
	if len(stmt.False) == 1 {
		if elif, ok := stmt.False[0].(*syntax.IfStmt); ok && elif.If == stmt.ElsePos {
			ec := elif.Comments()
			if ec != nil {
				p.formatComments(ec.Before)
			}
			p.formatIfStmt(elif, "elif", ec)
			return
		}
	}
	p.write("else:")
	p.formatBlock(stmt.False, c, stmt.ElsePos.Line)
}

func (p *printer) formatLoadStmt(stmt *syntax.LoadStmt) {
	p.write("load(")
	p.formatExpr(stmt.Module)
	for i := range stmt.From {
		p.write(", ")
		local, name := stmt.From[i].Name, stmt.To[i].Name
		if local == name {
			p.write(quote(name))
			continue
		}
		p.write(local + " = " + quote(name))
	}
	p.write(")")
}
