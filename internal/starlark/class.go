package starlark

import (
	"fmt"

	"go.starlark.net/starlark"
	"go.starlark.net/syntax"

	"github.com/leapstack-labs/scopestar/internal/rewrite"
)

// Class is the value bound to a class name after rewriting. Calling it
// creates an Instance.
type Class struct {
	rt        *Runtime
	name      string
	qualified string
	desc      *rewrite.ClassDescriptor

	methods  map[string]*starlark.Function
	ctor     *starlark.Function
	dtor     *starlark.Function
	defaults []*starlark.Function // aligned with desc.Members

	// Source extents of the method bodies, for telling code inside the class
	// from code outside it.
	spans []span
}

type span struct {
	file       string
	start, end rewrite.Position
}

func (s span) contains(p syntax.Position) bool {
	at := rewrite.Position{Line: p.Line, Col: p.Col}
	return p.Filename() == s.file && !before(at, s.start) && !before(s.end, at)
}

func before(a, b rewrite.Position) bool {
	return a.Line < b.Line || (a.Line == b.Line && a.Col < b.Col)
}

// encloses reports whether fn is one of the class's methods or a function
// or lambda written inside one.
func (c *Class) encloses(fn *starlark.Function) bool {
	pos := fn.Position()
	for _, s := range c.spans {
		if s.contains(pos) {
			return true
		}
	}
	return false
}

var (
	_ starlark.Callable = (*Class)(nil)
	_ starlark.HasAttrs = (*Class)(nil)
)

// newClass binds the lists returned by a rewritten class factory to the
// class descriptor.
func newClass(rt *Runtime, module string, desc *rewrite.ClassDescriptor, spec starlark.Value) (*Class, error) {
	methods, defaults, err := unpackFactory(spec)
	if err != nil {
		return nil, fmt.Errorf("class %s: %w", desc.Name, err)
	}
	if len(methods) != len(desc.Methods) || len(defaults) != len(desc.Members) {
		return nil, fmt.Errorf("class %s: factory returned %d methods and %d defaults, want %d and %d",
			desc.Name, len(methods), len(defaults), len(desc.Methods), len(desc.Members))
	}

	c := &Class{
		rt:        rt,
		name:      desc.Name,
		qualified: module + ":" + desc.Name,
		desc:      desc,
		methods:   make(map[string]*starlark.Function, len(methods)),
		defaults:  defaults,
	}
	for i, m := range desc.Methods {
		c.spans = append(c.spans, span{file: methods[i].Position().Filename(), start: m.Pos, end: m.End})
		switch m.Kind {
		case rewrite.MethodConstructor:
			c.ctor = methods[i]
		case rewrite.MethodDestructor:
			c.dtor = methods[i]
		default:
			c.methods[m.Name] = methods[i]
		}
	}
	rt.enforcer.Register(c.qualified, desc.Boundary())
	return c, nil
}

func unpackFactory(spec starlark.Value) (methods, defaults []*starlark.Function, err error) {
	outer, ok := spec.(*starlark.List)
	if !ok || outer.Len() != 2 {
		return nil, nil, fmt.Errorf("malformed class factory result %s", spec.Type())
	}
	if methods, err = functions(outer.Index(0)); err != nil {
		return nil, nil, fmt.Errorf("methods: %w", err)
	}
	if defaults, err = functions(outer.Index(1)); err != nil {
		return nil, nil, fmt.Errorf("defaults: %w", err)
	}
	return methods, defaults, nil
}

func functions(v starlark.Value) ([]*starlark.Function, error) {
	list, ok := v.(*starlark.List)
	if !ok {
		return nil, fmt.Errorf("got %s, want list", v.Type())
	}
	fns := make([]*starlark.Function, list.Len())
	for i := range fns {
		fn, ok := list.Index(i).(*starlark.Function)
		if !ok {
			return nil, fmt.Errorf("element %d is %s, want function", i, list.Index(i).Type())
		}
		fns[i] = fn
	}
	return fns, nil
}

// Name returns the class name.
func (c *Class) Name() string { return c.name }

// Descriptor returns the rewriter's description of the class.
func (c *Class) Descriptor() *rewrite.ClassDescriptor { return c.desc }

func (c *Class) String() string        { return fmt.Sprintf("<class %s>", c.name) }
func (c *Class) Type() string          { return "class" }
func (c *Class) Freeze()               {}
func (c *Class) Truth() starlark.Bool  { return starlark.True }
func (c *Class) Hash() (uint32, error) { return starlark.String(c.qualified).Hash() }

// Attr exposes read-only class metadata.
func (c *Class) Attr(name string) (starlark.Value, error) {
	switch name {
	case "__name__":
		return starlark.String(c.name), nil
	case "__doc__":
		return starlark.String(c.desc.Doc), nil
	}
	return nil, nil
}

// AttrNames lists the class metadata attributes.
func (c *Class) AttrNames() []string {
	return []string{"__doc__", "__name__"}
}

// CallInternal creates an instance: members are initialised from their
// defaults, the constructor runs with the call's arguments, and only then is
// the instance registered with the innermost open scope.
func (c *Class) CallInternal(thread *starlark.Thread, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	rt := c.rt
	if c.ctor == nil && (len(args) > 0 || len(kwargs) > 0) {
		return nil, fmt.Errorf("%s() takes no arguments: class has no constructor", c.name)
	}

	inst := &Instance{
		rt:     rt,
		class:  c,
		seq:    rt.nextSeq(),
		fields: make(map[string]starlark.Value, len(c.desc.Members)),
	}
	for i, m := range c.desc.Members {
		v, err := starlark.Call(thread, c.defaults[i], nil, nil)
		if err != nil {
			return nil, fmt.Errorf("%s: default of member %s: %w", c.name, m.Name, err)
		}
		inst.fields[m.Name] = v
	}

	if c.ctor != nil {
		if _, err := rt.invoke(thread, c.ctor.Name(), inst, c.ctor, args, kwargs); err != nil {
			// The instance was never registered, so nothing will destroy it.
			inst.state = stateDestroyed
			return nil, err
		}
	}

	if !c.desc.HasLifecycle() {
		return inst, nil
	}
	rec, err := rt.tracker.Register(inst)
	if err != nil {
		return nil, fmt.Errorf("construct %s: %w", inst.Label(), err)
	}
	inst.scope = rec.Label
	rt.emit(Event{
		Kind:     EventConstruct,
		Class:    c.name,
		Instance: inst.Label(),
		Scope:    rec.Label,
		Depth:    rec.Depth,
	})
	return inst, nil
}
