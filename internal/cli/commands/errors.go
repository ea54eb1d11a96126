package commands

import (
	"errors"
	"fmt"
	"strings"

	"go.starlark.net/starlark"

	"github.com/leapstack-labs/scopestar/internal/cli/output"
	"github.com/leapstack-labs/scopestar/internal/loader"
	"github.com/leapstack-labs/scopestar/internal/rewrite"
	"github.com/leapstack-labs/scopestar/internal/scope"
	"github.com/leapstack-labs/scopestar/internal/visibility"
)

// ExitError asks the process to exit with Code. Err, when set, has already
// been reported to the user.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return fmt.Sprintf("exit status %d", e.Code)
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// diagnose turns an error from the rewriter, loader or runtime into a
// diagnostic naming the offending class and member.
func diagnose(err error) output.Diagnostic {
	d := output.Diagnostic{Kind: "error", Message: err.Error()}
	d.File, d.Line = evalPosition(err)

	var (
		terr  *rewrite.TransformationError
		tlist rewrite.ErrorList
		verr  *visibility.AccessViolationError
		lerr  *scope.LifecycleError
		ldErr *loader.LoadError
	)
	switch {
	case errors.As(err, &tlist) && len(tlist) > 0:
		d = diagnoseTransformation(tlist[0])
		if n := len(tlist) - 1; n > 0 {
			d.Hint = fmt.Sprintf("%d more error(s) in this module", n)
		}
	case errors.As(err, &terr):
		d = diagnoseTransformation(terr)
	case errors.As(err, &verr):
		d.Kind = "access violation"
		d.Class = shortClass(verr.Class)
		d.Member = verr.Member
		d.Message = fmt.Sprintf("cannot %s private member %q from outside the methods of %s", verr.Op, verr.Member, d.Class)
		d.Hint = "declare the member after public() or access it through a method"
	case errors.As(err, &lerr):
		d.Kind = "destructor error"
		d.Class = lerr.Subject
		d.Message = fmt.Sprintf("destructor failed while leaving %s: %v", lerr.Scope, lerr.Cause)
		if n := len(lerr.Suppressed); n > 0 {
			d.Hint = fmt.Sprintf("%d later destructor error(s) in the same scope were suppressed", n)
		}
	case errors.Is(err, scope.ErrDestroyed):
		d.Kind = "use after destroy"
		d.Hint = "an instance is destroyed when the scope that created it exits"
	case errors.Is(err, loader.ErrInteractive):
		d.Kind = "load error"
		d.Hint = "put classes in a .star file and load() it from the session"
	case errors.Is(err, loader.ErrCycle), errors.Is(err, loader.ErrNotFound):
		d.Kind = "load error"
	case errors.As(err, &ldErr):
		d.Kind = "load error"
		if d.File == "" {
			d.File = ldErr.File
		}
	}

	var eerr *starlark.EvalError
	if errors.As(err, &eerr) {
		d.Backtrace = eerr.Backtrace()
	}
	return d
}

func diagnoseTransformation(e *rewrite.TransformationError) output.Diagnostic {
	return output.Diagnostic{
		Kind:    "transformation error",
		File:    e.File,
		Line:    int(e.Line),
		Class:   e.Class,
		Member:  e.Member,
		Message: e.Msg,
	}
}

// evalPosition returns the innermost source position recorded by the
// interpreter, if any.
func evalPosition(err error) (string, int) {
	var eerr *starlark.EvalError
	if !errors.As(err, &eerr) {
		return "", 0
	}
	for i := 0; i < len(eerr.CallStack); i++ {
		if pos := eerr.CallStack.At(i).Pos; pos.Line > 0 {
			return pos.Filename(), int(pos.Line)
		}
	}
	return "", 0
}

// shortClass strips the module from a qualified class name.
func shortClass(qualified string) string {
	if i := strings.LastIndex(qualified, ":"); i >= 0 {
		return qualified[i+1:]
	}
	return qualified
}
