package starlark

import (
	"fmt"

	"go.starlark.net/starlark"

	"github.com/leapstack-labs/scopestar/internal/visibility"
)

// boundMethod is a method of a live instance. Calling it opens a scope
// record with the instance as the privileged caller. A private method
// returned out of the class still fails when called from outside.
type boundMethod struct {
	self *Instance
	name string
	fn   *starlark.Function
}

var _ starlark.Callable = (*boundMethod)(nil)

func (m *boundMethod) Name() string { return m.name }
func (m *boundMethod) String() string {
	return fmt.Sprintf("<bound method %s of %s>", m.name, m.self.Label())
}
func (m *boundMethod) Type() string         { return "bound_method" }
func (m *boundMethod) Freeze()              { m.self.Freeze() }
func (m *boundMethod) Truth() starlark.Bool { return starlark.True }
func (m *boundMethod) Hash() (uint32, error) {
	return 0, fmt.Errorf("unhashable type: bound_method")
}

func (m *boundMethod) CallInternal(thread *starlark.Thread, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	if m.self.Destroyed() {
		return nil, m.self.destroyedError(m.name)
	}
	if err := m.self.rt.checkAccess(m.self, m.name, visibility.OpCall); err != nil {
		return nil, err
	}
	return m.self.rt.invoke(thread, m.fn.Name(), m.self, m.fn, args, kwargs)
}

// trackedFunction wraps a top-level function so every call owns a scope
// record. Instances created during the call are destroyed when it returns.
type trackedFunction struct {
	rt *Runtime
	fn *starlark.Function
}

var _ starlark.Callable = (*trackedFunction)(nil)

func (f *trackedFunction) Name() string          { return f.fn.Name() }
func (f *trackedFunction) String() string        { return f.fn.String() }
func (f *trackedFunction) Type() string          { return "function" }
func (f *trackedFunction) Freeze()               { f.fn.Freeze() }
func (f *trackedFunction) Truth() starlark.Bool  { return starlark.True }
func (f *trackedFunction) Hash() (uint32, error) { return f.fn.Hash() }

// Unwrap returns the underlying Starlark function.
func (f *trackedFunction) Unwrap() *starlark.Function { return f.fn }

func (f *trackedFunction) CallInternal(thread *starlark.Thread, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	return f.rt.invoke(thread, f.fn.Name(), nil, f.fn, args, kwargs)
}
