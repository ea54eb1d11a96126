// Package rewrite lowers Starlark modules written in the class dialect into
// plain Starlark that the runtime can execute with lifecycle tracking.
//
// A class block
//
//	class Greeter:
//	    public()
//	    def Greeter(name): ...
//	    def _Greeter(): ...
//
// becomes a factory function whose methods take an explicit this receiver,
// followed by a call to the __class__ builtin that turns the factory result
// into a class value. Every top-level function is wrapped by __track__ so each
// activation owns a scope record. Rewriting is pure: no I/O and no globals.
package rewrite

import (
	"errors"

	"go.starlark.net/syntax"
)

// Unit is a rewritten module ready for compilation.
type Unit struct {
	Filename string
	// Source is the desugared, line-preserving source text.
	Source string
	// File is the transformed syntax tree.
	File *syntax.File
	// Classes describes every class in source order.
	Classes []*ClassDescriptor
	// Functions names the top-level functions wrapped for tracking.
	Functions []string
	// Requested is true when the module loads the feature module.
	Requested bool
	// Options used for the rewrite.
	Options Options
}

// Class returns the descriptor of the named class.
func (u *Unit) Class(name string) (*ClassDescriptor, bool) {
	for _, c := range u.Classes {
		if c.Name == name {
			return c, true
		}
	}
	return nil, false
}

// Transformer rewrites one module source.
type Transformer func(filename string, src []byte) (*Unit, error)

// NewTransformer returns a Transformer bound to opts.
func NewTransformer(opts Options) Transformer {
	return func(filename string, src []byte) (*Unit, error) {
		return Rewrite(filename, src, opts)
	}
}

// Rewrite desugars, parses and transforms src. Malformed lifecycle syntax is
// reported as a *TransformationError (or an ErrorList when there are several).
func Rewrite(filename string, src []byte, opts Options) (*Unit, error) {
	text := string(src)
	unit := &Unit{
		Filename:  filename,
		Requested: Requested(src),
		Options:   opts,
	}

	d, errs := desugar(filename, text)
	if len(errs) > 0 {
		return nil, errs.err()
	}
	unit.Source = d.src

	f, err := opts.FileOptions().Parse(filename, d.src, syntax.RetainComments)
	if err != nil {
		var serr syntax.Error
		if errors.As(err, &serr) {
			return nil, &TransformationError{
				File: filename,
				Line: serr.Pos.Line,
				Col:  serr.Pos.Col,
				Msg:  "syntax error: " + serr.Msg,
			}
		}
		return nil, &TransformationError{File: filename, Msg: err.Error()}
	}

	t := &transformer{
		filename: filename,
		prefix:   opts.prefix(),
		headers:  d.classes,
	}
	t.file(f)
	if len(t.errs) > 0 {
		return nil, t.errs.err()
	}

	unit.File = f
	unit.Classes = t.descriptors
	unit.Functions = t.functions
	return unit, nil
}
