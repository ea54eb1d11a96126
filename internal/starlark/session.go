package starlark

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"go.starlark.net/resolve"
	"go.starlark.net/starlark"
	"go.starlark.net/syntax"
)

// Session evaluates interactive chunks against a persistent set of globals.
// Chunks run as plain Starlark; the class dialect needs a file-backed module.
type Session struct {
	rt   *Runtime
	opts *syntax.FileOptions

	// mu protects globals between chunks
	mu      sync.Mutex
	globals starlark.StringDict
}

// NewSession creates a session on rt. predeclared seeds the globals.
func NewSession(rt *Runtime, opts *syntax.FileOptions, predeclared starlark.StringDict) *Session {
	if opts == nil {
		opts = &syntax.FileOptions{}
	}
	globals := make(starlark.StringDict, len(predeclared))
	for k, v := range predeclared {
		globals[k] = v
	}
	return &Session{rt: rt, opts: opts, globals: globals}
}

// Runtime returns the session's runtime.
func (s *Session) Runtime() *Runtime {
	return s.rt
}

// Options returns the dialect used to parse chunks.
func (s *Session) Options() *syntax.FileOptions {
	return s.opts
}

// ExecChunk executes one parsed chunk.
func (s *Session) ExecChunk(f *syntax.File) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := starlark.ExecREPLChunk(f, s.rt.thread, s.globals); err != nil {
		return newEvalError(InteractiveFile, "", err)
	}
	return nil
}

// Eval executes one parsed chunk. A chunk made of a single expression is
// evaluated and its value returned; any other chunk yields None.
func (s *Session) Eval(f *syntax.File) (starlark.Value, error) {
	if len(f.Stmts) != 1 {
		return starlark.None, s.ExecChunk(f)
	}
	stmt, ok := f.Stmts[0].(*syntax.ExprStmt)
	if !ok {
		return starlark.None, s.ExecChunk(f)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	v, err := starlark.EvalExprOptions(f.Options, s.rt.thread, stmt.X, s.globals)
	if err != nil {
		return nil, newEvalError(InteractiveFile, "", err)
	}
	return v, nil
}

// Exec parses and executes src as one chunk.
func (s *Session) Exec(src string) error {
	f, err := s.opts.Parse(InteractiveFile, src, 0)
	if err != nil {
		return newEvalError(InteractiveFile, src, err)
	}
	return s.ExecChunk(f)
}

// EvalExpr evaluates a single expression against the session globals.
func (s *Session) EvalExpr(expr string) (starlark.Value, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, err := starlark.EvalOptions(s.opts, s.rt.thread, InteractiveFile, expr, s.globals)
	if err != nil {
		return nil, newEvalError(InteractiveFile, expr, err)
	}
	return v, nil
}

// Names returns the sorted names of the session globals.
func (s *Session) Names() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.globals))
	for name := range s.globals {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// EvalError represents an error during interactive evaluation.
type EvalError struct {
	File      string
	Line      int
	Expr      string
	Message   string
	Backtrace string
	Err       error
}

func newEvalError(file, expr string, err error) *EvalError {
	e := &EvalError{File: file, Expr: expr, Message: err.Error(), Err: err}

	var serr syntax.Error
	var rerr resolve.ErrorList
	var eerr *starlark.EvalError
	switch {
	case errors.As(err, &serr):
		e.Line = int(serr.Pos.Line)
		e.Message = serr.Msg
	case errors.As(err, &rerr):
		e.Line = int(rerr[0].Pos.Line)
		e.Message = rerr[0].Msg
	case errors.As(err, &eerr):
		e.Backtrace = eerr.Backtrace()
		for i := 0; i < len(eerr.CallStack) && e.Line == 0; i++ {
			e.Line = int(eerr.CallStack.At(i).Pos.Line)
		}
	}
	return e
}

func (e *EvalError) Error() string {
	switch {
	case e.Line > 0 && e.Expr != "":
		return fmt.Sprintf("%s:%d: error evaluating %q: %s", e.File, e.Line, e.Expr, e.Message)
	case e.Line > 0:
		return fmt.Sprintf("%s:%d: %s", e.File, e.Line, e.Message)
	case e.Expr != "":
		return fmt.Sprintf("%s: error evaluating %q: %s", e.File, e.Expr, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.File, e.Message)
}

func (e *EvalError) Unwrap() error {
	return e.Err
}
