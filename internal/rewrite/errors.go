package rewrite

import (
	"fmt"
	"strings"
)

// TransformationError reports malformed lifecycle syntax. It is raised before
// any statement of the offending module runs.
type TransformationError struct {
	File   string
	Line   int32
	Col    int32
	Class  string
	Member string
	Msg    string
}

func (e *TransformationError) Error() string {
	var sb strings.Builder
	sb.WriteString(e.File)
	if e.Line > 0 {
		fmt.Fprintf(&sb, ":%d", e.Line)
		if e.Col > 0 {
			fmt.Fprintf(&sb, ":%d", e.Col)
		}
	}
	sb.WriteString(": ")
	switch {
	case e.Class != "" && e.Member != "":
		fmt.Fprintf(&sb, "%s.%s: ", e.Class, e.Member)
	case e.Class != "":
		fmt.Fprintf(&sb, "%s: ", e.Class)
	case e.Member != "":
		fmt.Fprintf(&sb, "%s: ", e.Member)
	}
	sb.WriteString(e.Msg)
	return sb.String()
}

// ErrorList is a list of transformation errors found in one module.
type ErrorList []*TransformationError

func (l ErrorList) Error() string {
	switch len(l) {
	case 0:
		return "no errors"
	case 1:
		return l[0].Error()
	}
	return fmt.Sprintf("%s (and %d more errors)", l[0], len(l)-1)
}

// Unwrap exposes every error to errors.Is and errors.As.
func (l ErrorList) Unwrap() []error {
	errs := make([]error, len(l))
	for i, e := range l {
		errs[i] = e
	}
	return errs
}

// err returns nil, the single error, or the list itself.
func (l ErrorList) err() error {
	switch len(l) {
	case 0:
		return nil
	case 1:
		return l[0]
	}
	return l
}
