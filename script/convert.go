package script

import (
	"strings"

	"github.com/risor-io/risor/object"
)

// ConvertRisorValueToGo converts a Risor object to a plain Go value.
func ConvertRisorValueToGo(obj object.Object) any {
	switch o := obj.(type) {
	case *object.String:
		return o.Value()

	case *object.Int:
		return o.Value()

	case *object.Float:
		return o.Value()

	case *object.Bool:
		return o.Value()

	case *object.Time:
		return o.Value()

	case *object.NilType:
		return nil

	case *object.List:
		var result []any
		for _, item := range o.Value() {
			result = append(result, ConvertRisorValueToGo(item))
		}
		return result

	case *object.Map:
		result := make(map[string]any)
		for key, value := range o.Value() {
			result[key] = ConvertRisorValueToGo(value)
		}
		return result

	case *object.Set:
		var result []any
		for _, item := range o.Value() {
			result = append(result, ConvertRisorValueToGo(item))
		}
		return result

	default:
		// Fallback to string representation
		return obj.Inspect()
	}
}

// ConvertRisorValueToBool converts a Risor object to its truthiness. The
// string "false" (any case) is falsy so YAML-sourced predicate results
// behave as operators expect.
func ConvertRisorValueToBool(obj object.Object) bool {
	switch obj := obj.(type) {
	case *object.Bool:
		return obj.Value()

	case *object.Int:
		return obj.Value() != 0

	case *object.Float:
		return obj.Value() != 0.0

	case *object.String:
		val := obj.Value()
		return val != "" && strings.ToLower(val) != "false"

	case *object.List:
		return len(obj.Value()) > 0

	case *object.Map:
		return len(obj.Value()) > 0

	default:
		return obj.IsTruthy()
	}
}

// ConvertValueToBool converts any value to its truthiness. It accepts both
// Risor objects and plain Go values.
func ConvertValueToBool(value any) bool {
	if obj, ok := value.(object.Object); ok {
		return ConvertRisorValueToBool(obj)
	}
	switch v := value.(type) {
	case bool:
		return v
	case int:
		return v != 0
	case int32:
		return v != 0
	case int64:
		return v != 0
	case float32:
		return v != 0.0
	case float64:
		return v != 0.0
	case string:
		return v != "" && strings.ToLower(v) != "false"
	case []any:
		return len(v) > 0
	case map[string]any:
		return len(v) > 0
	case nil:
		return false
	default:
		return value != nil
	}
}
