package schema

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/cockroachdb/errors"
)

// ErrInvalidArguments is returned when tool arguments do not match the declared schema.
var ErrInvalidArguments = errors.New("invalid arguments")

// ValidationError lists every violation found in the arguments.
type ValidationError struct {
	Issues []string
}

func (e *ValidationError) Error() string {
	return "invalid arguments: " + strings.Join(e.Issues, "; ")
}

// Is allows errors.Is(err, ErrInvalidArguments)
func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalidArguments
}

// Validate checks the arguments against required fields,
// declared primitive property types and enums.
// Arguments not declared by the schema are accepted as is.
func (s *ToolSchema) Validate(args map[string]any) error {
	var issues []string
	for _, name := range s.required {
		if v, ok := args[name]; !ok || v == nil {
			issues = append(issues, fmt.Sprintf("missing required field %q", name))
		}
	}

	for pair := s.properties.Oldest(); pair != nil; pair = pair.Next() {
		name := pair.Key
		value, ok := args[name]
		if !ok {
			continue
		}
		types := expectedTypes(pair.Value)
		if len(types) > 0 && !matchesAny(value, types) {
			issues = append(issues, fmt.Sprintf("field %q: expected %s but got %s", name, strings.Join(types, "|"), typeName(value)))
			continue
		}
		if ps := s.typed[name]; ps != nil && len(ps.Enum) > 0 && !inEnum(value, ps.Enum) {
			issues = append(issues, fmt.Sprintf("field %q: value is not one of the allowed values", name))
		}
	}

	if len(issues) > 0 {
		return &ValidationError{Issues: issues}
	}
	return nil
}

func expectedTypes(raw any) []string {
	if m, ok := raw.(map[string]any); ok {
		switch t := m["type"].(type) {
		case string:
			return []string{t}
		case []any:
			var res []string
			for _, v := range t {
				if s, ok := v.(string); ok {
					res = append(res, s)
				}
			}
			return res
		case []string:
			return t
		}
	}
	return nil
}

func matchesAny(value any, types []string) bool {
	for _, t := range types {
		if matchesType(value, t) {
			return true
		}
	}
	return false
}

func matchesType(value any, expected string) bool {
	switch expected {
	case "string":
		_, ok := value.(string)
		return ok
	case "number":
		return isNumber(value)
	case "integer":
		return isInteger(value)
	case "boolean":
		_, ok := value.(bool)
		return ok
	case "object":
		_, ok := value.(map[string]any)
		return ok
	case "array":
		_, ok := value.([]any)
		return ok
	case "null":
		return value == nil
	}
	// unknown keywords are not enforced
	return true
}

func isNumber(value any) bool {
	switch v := value.(type) {
	case float32, float64:
		return true
	case int, int8, int16, int32, int64:
		return true
	case uint, uint8, uint16, uint32, uint64:
		return true
	case json.Number:
		_, err := v.Float64()
		return err == nil
	}
	return false
}

func isInteger(value any) bool {
	switch v := value.(type) {
	case int, int8, int16, int32, int64:
		return true
	case uint, uint8, uint16, uint32, uint64:
		return true
	case float32:
		return math.Trunc(float64(v)) == float64(v)
	case float64:
		return math.Trunc(v) == v
	case json.Number:
		_, err := v.Int64()
		return err == nil
	}
	return false
}

func inEnum(value any, enum []any) bool {
	vs := fmt.Sprint(value)
	for _, e := range enum {
		if fmt.Sprint(e) == vs {
			return true
		}
	}
	return false
}

func typeName(value any) string {
	switch value.(type) {
	case nil:
		return "null"
	case string:
		return "string"
	case bool:
		return "boolean"
	case map[string]any:
		return "object"
	case []any:
		return "array"
	}
	if isNumber(value) {
		return "number"
	}
	return fmt.Sprintf("%T", value)
}
