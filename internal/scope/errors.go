package scope

import (
	"errors"
	"fmt"
)

// ErrDestroyed marks use of an instance after its destructor has run.
var ErrDestroyed = errors.New("instance already destroyed")

// LifecycleError reports a destructor failure during a scope sweep.
// Suppressed holds failures observed later in the same sweep; only the
// first one propagates.
type LifecycleError struct {
	Scope      string
	Subject    string
	Cause      error
	Suppressed []*LifecycleError
}

func (e *LifecycleError) Error() string {
	msg := fmt.Sprintf("destructor of %s failed during teardown of %s: %v", e.Subject, e.Scope, e.Cause)
	if n := len(e.Suppressed); n > 0 {
		msg += fmt.Sprintf(" (%d more destructor error(s) suppressed)", n)
	}
	return msg
}

func (e *LifecycleError) Unwrap() error {
	return e.Cause
}
