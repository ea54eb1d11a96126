// Package starlark is the runtime for rewritten modules: class and instance
// values, scope-tracked calls, lifecycle events and value conversion.
package starlark

import (
	"fmt"
	"math"

	"go.starlark.net/starlark"
)

// ToGo converts a value returned to the host into plain Go data for JSON or
// YAML output: nil, string, int64, float64, bool, []any or map[string]any.
// Integers that do not fit in int64 and values with no plain form, such as
// functions, become their string representation. Instances and classes
// become their labels; member values are not exposed.
func ToGo(v starlark.Value) (any, error) {
	switch val := v.(type) {
	case nil, starlark.NoneType:
		return nil, nil
	case starlark.String:
		return string(val), nil
	case starlark.Int:
		if i64, ok := val.Int64(); ok {
			return i64, nil
		}
		return val.String(), nil
	case starlark.Float:
		return float64(val), nil
	case starlark.Bool:
		return bool(val), nil
	case *Instance:
		return val.Label(), nil
	case *Class:
		return val.Name(), nil
	case *starlark.Dict:
		result := make(map[string]any, val.Len())
		for _, item := range val.Items() {
			key, ok := starlark.AsString(item[0])
			if !ok {
				key = item[0].String()
			}
			gv, err := ToGo(item[1])
			if err != nil {
				return nil, fmt.Errorf("dict key %s: %w", item[0], err)
			}
			result[key] = gv
		}
		return result, nil
	case starlark.Iterable:
		var result []any
		iter := val.Iterate()
		defer iter.Done()
		var elem starlark.Value
		for i := 0; iter.Next(&elem); i++ {
			gv, err := ToGo(elem)
			if err != nil {
				return nil, fmt.Errorf("%s index %d: %w", val.Type(), i, err)
			}
			result = append(result, gv)
		}
		if result == nil {
			result = []any{}
		}
		return result, nil
	default:
		return val.String(), nil
	}
}

// ExitCode converts the value returned by an entry function to a process
// exit status: None is success, an int is used as is.
func ExitCode(v starlark.Value) (int, error) {
	switch val := v.(type) {
	case nil, starlark.NoneType:
		return 0, nil
	case starlark.Int:
		i64, ok := val.Int64()
		if !ok || i64 < math.MinInt32 || i64 > math.MaxInt32 {
			return 0, fmt.Errorf("exit code %s out of range", val)
		}
		return int(i64), nil
	default:
		return 0, fmt.Errorf("entry function returned %s, want int or None", v.Type())
	}
}
