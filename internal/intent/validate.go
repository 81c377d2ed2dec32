package intent

import (
	"fmt"
	"strconv"
	"strings"
)

// ValidateParameters checks extracted parameters against an intent's
// schema and returns the typed map a handler should receive. Absent
// optional parameters take their schema default, integer and float
// values are coerced from strings, and booleans accept the usual
// truthy spellings. Every violation is collected so the caller can
// report the full list at once; a value that fails only a range or
// choice check is still recorded.
func ValidateParameters(schema Schema, params map[string]any) (map[string]any, []string) {
	validated := make(map[string]any, len(schema.Parameters))
	var errs []string

	for _, spec := range schema.Parameters {
		v, present := params[spec.Name]
		if !present {
			v = spec.Default
		}
		if v == nil {
			if spec.Required {
				errs = append(errs, fmt.Sprintf("required parameter %q is missing", spec.Name))
			}
			continue
		}

		v, err := coerce(spec, v)
		if err != nil {
			errs = append(errs, err.Error())
			continue
		}

		if spec.MinValue != nil || spec.MaxValue != nil {
			if f, ok := toFloat(v); ok {
				if spec.MinValue != nil && f < *spec.MinValue {
					errs = append(errs, fmt.Sprintf("parameter %q below minimum %v", spec.Name, *spec.MinValue))
				}
				if spec.MaxValue != nil && f > *spec.MaxValue {
					errs = append(errs, fmt.Sprintf("parameter %q above maximum %v", spec.Name, *spec.MaxValue))
				}
			}
		}

		if len(spec.Choices) > 0 {
			s, ok := v.(string)
			if !ok || !contains(spec.Choices, s) {
				errs = append(errs, fmt.Sprintf("parameter %q must be one of %v", spec.Name, spec.Choices))
			}
		}

		validated[spec.Name] = v
	}

	return validated, errs
}

// coerce converts a raw extracted value to the schema's declared type.
func coerce(spec ParameterSpec, v any) (any, error) {
	switch spec.Type {
	case "integer":
		switch n := v.(type) {
		case int:
			return n, nil
		case int64:
			return int(n), nil
		case float64:
			return int(n), nil
		case float32:
			return int(n), nil
		case string:
			i, err := strconv.Atoi(strings.TrimSpace(n))
			if err != nil {
				return nil, fmt.Errorf("parameter %q must be an integer", spec.Name)
			}
			return i, nil
		default:
			return nil, fmt.Errorf("parameter %q must be an integer", spec.Name)
		}
	case "float", "number":
		if f, ok := toFloat(v); ok {
			return f, nil
		}
		if s, ok := v.(string); ok {
			f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
			if err == nil {
				return f, nil
			}
		}
		return nil, fmt.Errorf("parameter %q must be a number", spec.Name)
	case "boolean":
		switch b := v.(type) {
		case bool:
			return b, nil
		case string:
			return contains([]string{"true", "1", "yes", "on"}, strings.ToLower(strings.TrimSpace(b))), nil
		default:
			return nil, fmt.Errorf("parameter %q must be a boolean", spec.Name)
		}
	default:
		return v, nil
	}
}

func contains(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	case float32:
		return float64(n), true
	}
	return 0, false
}

// String renders a result for logs.
func (r Result) String() string {
	return fmt.Sprintf("%s (%.2f)", r.Intent, r.Confidence)
}
