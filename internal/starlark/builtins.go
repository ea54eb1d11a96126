package starlark

import (
	"fmt"

	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"

	"github.com/leapstack-labs/scopestar/internal/rewrite"
)

// Predeclared returns the builtins a rewritten module is compiled and
// initialised with. __class__ resolves class names against unit's
// descriptors; __track__ wraps top-level functions in scope tracking.
func (rt *Runtime) Predeclared(unit *rewrite.Unit) starlark.StringDict {
	return starlark.StringDict{
		rewrite.ClassBuiltin: starlark.NewBuiltin(rewrite.ClassBuiltin, rt.classBuiltin(unit)),
		rewrite.TrackBuiltin: starlark.NewBuiltin(rewrite.TrackBuiltin, rt.trackBuiltin),
	}
}

func (rt *Runtime) classBuiltin(unit *rewrite.Unit) func(*starlark.Thread, *starlark.Builtin, starlark.Tuple, []starlark.Tuple) (starlark.Value, error) {
	return func(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		var name string
		var spec starlark.Value
		if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 2, &name, &spec); err != nil {
			return nil, err
		}
		desc, ok := unit.Class(name)
		if !ok {
			return nil, fmt.Errorf("%s: no class %s in %s", b.Name(), name, unit.Filename)
		}
		return newClass(rt, unit.Filename, desc, spec)
	}
}

func (rt *Runtime) trackBuiltin(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var fn *starlark.Function
	if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 1, &fn); err != nil {
		return nil, err
	}
	return &trackedFunction{rt: rt, fn: fn}, nil
}

// FeatureModule returns the members of the feature module loaded by
// `load("cpp", "magic")`.
func (rt *Runtime) FeatureModule() starlark.StringDict {
	magic := starlarkstruct.FromStringDict(starlark.String(rewrite.FeatureSymbol), starlark.StringDict{
		"version":           starlark.String(FeatureVersion),
		"destructor_prefix": starlark.String(rt.cfg.DestructorPrefix),
		"depth": starlark.NewBuiltin("depth", func(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
			if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 0); err != nil {
				return nil, err
			}
			return starlark.MakeInt(rt.Depth()), nil
		}),
		"live": starlark.NewBuiltin("live", func(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
			if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 0); err != nil {
				return nil, err
			}
			labels := rt.Live()
			elems := make([]starlark.Value, len(labels))
			for i, l := range labels {
				elems[i] = starlark.String(l)
			}
			return starlark.NewList(elems), nil
		}),
		"destroyed": starlark.NewBuiltin("destroyed", func(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
			var v starlark.Value
			if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 1, &v); err != nil {
				return nil, err
			}
			inst, ok := v.(*Instance)
			if !ok {
				return nil, fmt.Errorf("%s: got %s, want instance", b.Name(), v.Type())
			}
			return starlark.Bool(inst.Destroyed()), nil
		}),
	})
	return starlark.StringDict{rewrite.FeatureSymbol: magic}
}
