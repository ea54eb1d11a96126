package format

import (
	"strconv"

	"go.starlark.net/syntax"
)

func (p *printer) formatExpr(e syntax.Expr) {
	if e == nil {
		return
	}

	switch expr := e.(type) {
	case *syntax.Ident:
		p.write(expr.Name)
	case *syntax.Literal:
		p.formatLiteral(expr)
	case *syntax.BinaryExpr:
		p.formatBinaryExpr(expr)
	case *syntax.UnaryExpr:
		p.formatUnaryExpr(expr)
	case *syntax.CallExpr:
		p.formatExpr(expr.Fn)
		p.write("(")
		p.formatExprList(expr.Args)
		p.write(")")
	case *syntax.DotExpr:
		p.formatExpr(expr.X)
		p.write("." + expr.Name.Name)
	case *syntax.IndexExpr:
		p.formatExpr(expr.X)
		p.write("[")
		p.formatExpr(expr.Y)
		p.write("]")
	case *syntax.SliceExpr:
		p.formatSliceExpr(expr)
	case *syntax.ParenExpr:
		p.write("(")
		p.formatExpr(expr.X)
		p.write(")")
	case *syntax.ListExpr:
		p.write("[")
		p.formatExprList(expr.List)
		p.write("]")
	case *syntax.TupleExpr:
		p.formatTupleExpr(expr)
	case *syntax.DictExpr:
		p.write("{")
		p.formatExprList(expr.List)
		p.write("}")
	case *syntax.DictEntry:
		p.formatExpr(expr.Key)
		p.write(": ")
		p.formatExpr(expr.Value)
	case *syntax.CondExpr:
		p.formatExpr(expr.True)
		p.write(" if ")
		p.formatExpr(expr.Cond)
		p.write(" else ")
		p.formatExpr(expr.False)
	case *syntax.LambdaExpr:
		p.write("lambda")
		if len(expr.Params) > 0 {
			p.space()
			p.formatExprList(expr.Params)
		}
		p.write(": ")
		p.formatExpr(expr.Body)
	case *syntax.Comprehension:
		p.formatComprehension(expr)
	}
}

func (p *printer) formatExprList(list []syntax.Expr) {
	for i, e := range list {
		if i > 0 {
			p.write(", ")
		}
		p.formatExpr(e)
	}
}

func (p *printer) formatLiteral(lit *syntax.Literal) {
	if lit.Raw != "" {
		p.write(lit.Raw)
		return
	}
	switch v := lit.Value.(type) {
	case string:
		p.write(quote(v))
	case int64:
		p.write(strconv.FormatInt(v, 10))
	case float64:
		p.write(strconv.FormatFloat(v, 'g', -1, 64))
	default:
		p.write(lit.Token.String())
	}
}

func (p *printer) formatBinaryExpr(expr *syntax.BinaryExpr) {
	p.formatExpr(expr.X)
	// named arguments and parameter defaults
	if expr.Op == syntax.EQ {
		p.write("=")
	} else {
		p.write(" " + expr.Op.String() + " ")
	}
	p.formatExpr(expr.Y)
}

func (p *printer) formatUnaryExpr(expr *syntax.UnaryExpr) {
	p.write(expr.Op.String())
	if expr.Op == syntax.NOT {
		p.space()
	}
	p.formatExpr(expr.X)
}

func (p *printer) formatSliceExpr(expr *syntax.SliceExpr) {
	p.formatExpr(expr.X)
	p.write("[")
	p.formatExpr(expr.Lo)
	p.write(":")
	p.formatExpr(expr.Hi)
	if expr.Step != nil {
		p.write(":")
		p.formatExpr(expr.Step)
	}
	p.write("]")
}

func (p *printer) formatTupleExpr(expr *syntax.TupleExpr) {
	parens := expr.Lparen.IsValid() || len(expr.List) == 0
	if parens {
		p.write("(")
	}
	p.formatExprList(expr.List)
	if len(expr.List) == 1 {
		p.write(",")
	}
	if parens {
		p.write(")")
	}
}

func (p *printer) formatComprehension(expr *syntax.Comprehension) {
	open, closing := "[", "]"
	if expr.Curly {
		open, closing = "{", "}"
	}
	p.write(open)
	p.formatExpr(expr.Body)
	for _, clause := range expr.Clauses {
		switch c := clause.(type) {
		case *syntax.ForClause:
			p.write(" for ")
			p.formatExpr(c.Vars)
			p.write(" in ")
			p.formatExpr(c.X)
		case *syntax.IfClause:
			p.write(" if ")
			p.formatExpr(c.Cond)
		}
	}
	p.write(closing)
}

func quote(s string) string {
	return strconv.Quote(s)
}
