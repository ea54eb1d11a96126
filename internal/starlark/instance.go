package starlark

import (
	"fmt"
	"sort"

	"go.starlark.net/starlark"

	"github.com/leapstack-labs/scopestar/internal/scope"
	"github.com/leapstack-labs/scopestar/internal/visibility"
)

type instanceState int

const (
	stateAlive instanceState = iota
	stateDestroyed
)

// Instance is an object created by calling a Class. Member reads and writes
// are checked against the class's visibility boundary.
type Instance struct {
	rt     *Runtime
	class  *Class
	seq    uint64
	scope  string
	state  instanceState
	frozen bool
	fields map[string]starlark.Value
}

var (
	_ starlark.HasSetField = (*Instance)(nil)
	_ scope.Finalizer      = (*Instance)(nil)
)

// Class returns the instance's class.
func (i *Instance) Class() *Class { return i.class }

// Destroyed reports whether the destructor has run.
func (i *Instance) Destroyed() bool { return i.state == stateDestroyed }

// Label identifies the instance in diagnostics, e.g. "Greeter#3".
func (i *Instance) Label() string {
	return fmt.Sprintf("%s#%d", i.class.name, i.seq)
}

func (i *Instance) String() string { return fmt.Sprintf("<%s instance #%d>", i.class.name, i.seq) }
func (i *Instance) Type() string   { return i.class.name }

// Freeze makes the instance and its member values immutable.
func (i *Instance) Freeze() {
	if i.frozen {
		return
	}
	i.frozen = true
	for _, v := range i.fields {
		v.Freeze()
	}
}

func (i *Instance) Truth() starlark.Bool { return starlark.True }

// Hash hashes by identity.
func (i *Instance) Hash() (uint32, error) {
	return uint32(i.seq) ^ uint32(i.seq>>32), nil
}

func (i *Instance) destroyedError(member string) error {
	if member == "" {
		return fmt.Errorf("%s: %w", i.Label(), scope.ErrDestroyed)
	}
	return fmt.Errorf("%s.%s: %w", i.Label(), member, scope.ErrDestroyed)
}

// Attr returns a member value or a bound method.
func (i *Instance) Attr(name string) (starlark.Value, error) {
	if i.state == stateDestroyed {
		return nil, i.destroyedError(name)
	}
	if v, ok := i.fields[name]; ok {
		if err := i.rt.checkAccess(i, name, visibility.OpRead); err != nil {
			return nil, err
		}
		return v, nil
	}
	if fn, ok := i.class.methods[name]; ok {
		if err := i.rt.checkAccess(i, name, visibility.OpRead); err != nil {
			return nil, err
		}
		return &boundMethod{self: i, name: name, fn: fn}, nil
	}
	return nil, nil
}

// AttrNames returns the members and methods visible to the current caller.
func (i *Instance) AttrNames() []string {
	internal := i.rt.internal(i)
	b, _ := i.rt.enforcer.Boundary(i.class.qualified)
	visible := func(name string) bool {
		return internal || b == nil || b.Access(name) == visibility.Public
	}

	names := make([]string, 0, len(i.fields)+len(i.class.methods))
	for name := range i.fields {
		if visible(name) {
			names = append(names, name)
		}
	}
	for name := range i.class.methods {
		if visible(name) {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// SetField assigns a declared member.
func (i *Instance) SetField(name string, val starlark.Value) error {
	if i.state == stateDestroyed {
		return i.destroyedError(name)
	}
	if _, ok := i.fields[name]; !ok {
		if _, isMethod := i.class.methods[name]; isMethod {
			return fmt.Errorf("cannot assign to method %s of %s", name, i.class.name)
		}
		return starlark.NoSuchAttrError(fmt.Sprintf("%s has no member .%s", i.class.name, name))
	}
	if err := i.rt.checkAccess(i, name, visibility.OpWrite); err != nil {
		return err
	}
	if i.frozen {
		return fmt.Errorf("cannot set .%s of frozen %s", name, i.Label())
	}
	i.fields[name] = val
	return nil
}

// Finalize runs the destructor, if any, exactly once.
func (i *Instance) Finalize() error {
	if i.state == stateDestroyed {
		return nil
	}
	rt := i.rt

	var err error
	if dtor := i.class.dtor; dtor != nil {
		_, err = rt.invoke(rt.thread, dtor.Name(), i, dtor, nil, nil)
	}
	i.state = stateDestroyed

	e := Event{
		Kind:     EventDestruct,
		Class:    i.class.name,
		Instance: i.Label(),
		Scope:    i.scope,
		Depth:    rt.tracker.Depth() - 1,
	}
	if err != nil {
		e.Kind = EventDestructError
		e.Err = err
	}
	rt.emit(e)
	return err
}
