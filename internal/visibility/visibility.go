// Package visibility enforces two-tier member access (public/private) for
// rewritten classes.
//
// Each class registers a Boundary describing which of its members are
// private. Access from inside the instance's own methods is always allowed;
// any other access to a private member fails with an AccessViolationError.
package visibility

import (
	"fmt"
	"sort"
	"sync"
)

// Access is the visibility of a class member.
type Access int

// Access levels.
const (
	Public Access = iota
	Private
)

func (a Access) String() string {
	switch a {
	case Public:
		return "public"
	case Private:
		return "private"
	default:
		return fmt.Sprintf("Access(%d)", int(a))
	}
}

// MarshalText renders the access level as its name.
func (a Access) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// Op is the kind of member access being checked.
type Op string

// Access operations.
const (
	OpRead  Op = "read"
	OpWrite Op = "write"
	OpCall  Op = "call"
)

// Boundary records the access level of each member of one class.
type Boundary struct {
	// Declared is true when the class body contained a visibility marker.
	Declared bool
	members  map[string]Access
}

// NewBoundary creates an empty boundary. Members not added default to public.
func NewBoundary(declared bool) *Boundary {
	return &Boundary{Declared: declared, members: make(map[string]Access)}
}

// Set records the access level of a member.
func (b *Boundary) Set(member string, a Access) {
	b.members[member] = a
}

// Access returns the access level of a member.
func (b *Boundary) Access(member string) Access {
	if !b.Declared {
		return Public
	}
	if a, ok := b.members[member]; ok {
		return a
	}
	return Public
}

// Private returns the sorted names of private members.
func (b *Boundary) Private() []string {
	var names []string
	for name, a := range b.members {
		if a == Private && b.Declared {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// Enforcer is a registry of class boundaries. It is safe for concurrent use.
type Enforcer struct {
	mu      sync.RWMutex
	classes map[string]*Boundary
}

// NewEnforcer creates an empty enforcer.
func NewEnforcer() *Enforcer {
	return &Enforcer{classes: make(map[string]*Boundary)}
}

// Register associates a boundary with a qualified class name, replacing any
// previous registration.
func (e *Enforcer) Register(class string, b *Boundary) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.classes[class] = b
}

// Boundary returns the registered boundary for class.
func (e *Enforcer) Boundary(class string) (*Boundary, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	b, ok := e.classes[class]
	return b, ok
}

// Classes returns the sorted names of registered classes.
func (e *Enforcer) Classes() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	names := make([]string, 0, len(e.classes))
	for name := range e.classes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Check reports whether member of class may be accessed. Internal access is
// always permitted; unregistered classes have no boundary.
func (e *Enforcer) Check(class, member string, op Op, internal bool) error {
	if internal {
		return nil
	}
	b, ok := e.Boundary(class)
	if !ok {
		return nil
	}
	if b.Access(member) == Private {
		return &AccessViolationError{Class: class, Member: member, Op: op}
	}
	return nil
}

// AccessViolationError reports external access to a private member.
type AccessViolationError struct {
	Class  string
	Member string
	Op     Op
}

func (e *AccessViolationError) Error() string {
	return fmt.Sprintf("access violation: cannot %s private member %q of %s from outside its methods", e.Op, e.Member, e.Class)
}
