package schema

import (
	"fmt"
	"sort"
	"strings"
)

// ValidationError reports every problem found while checking mutation
// input or a selection against a resource definition. Callers detect it
// with errors.As to distinguish bad input from internal failures.
type ValidationError struct {
	Resource string
	Problems []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Resource, strings.Join(e.Problems, "; "))
}

// ValidateCreate checks input for a create mutation: required fields
// must be present and every value must match its declared type. All
// problems are reported at once.
func (r *Resource) ValidateCreate(data map[string]any) error {
	var errs []string
	for _, name := range sortedFieldNames(r.Fields) {
		f := r.Fields[name]
		v, ok := data[name]
		if !ok {
			if f.Required {
				errs = append(errs, fmt.Sprintf("missing required field %q", name))
			}
			continue
		}
		if !matchesType(v, f.Type) {
			errs = append(errs, fmt.Sprintf("field %q: expected %s, got %s", name, f.Type, jsonTypeName(v)))
		}
	}
	for name := range data {
		if !r.HasField(name) {
			if _, isRel := r.Relationships[name]; !isRel {
				errs = append(errs, fmt.Sprintf("unknown field %q", name))
			}
		}
	}
	if len(errs) > 0 {
		sort.Strings(errs)
		return &ValidationError{Resource: r.Name, Problems: errs}
	}
	return nil
}

// ValidateUpdate checks input for an update mutation. Partial input is
// fine; only present fields are type-checked.
func (r *Resource) ValidateUpdate(data map[string]any) error {
	var errs []string
	for name, v := range data {
		f, ok := r.Fields[name]
		if !ok {
			if !r.HasField(name) {
				if _, isRel := r.Relationships[name]; !isRel {
					errs = append(errs, fmt.Sprintf("unknown field %q", name))
				}
			}
			continue
		}
		if v == nil && !f.Required {
			continue
		}
		if !matchesType(v, f.Type) {
			errs = append(errs, fmt.Sprintf("field %q: expected %s, got %s", name, f.Type, jsonTypeName(v)))
		}
	}
	if len(errs) > 0 {
		sort.Strings(errs)
		return &ValidationError{Resource: r.Name, Problems: errs}
	}
	return nil
}

func sortedFieldNames(fields map[string]Field) []string {
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func matchesType(v any, t FieldType) bool {
	if t == TypeAny {
		return true
	}
	switch v.(type) {
	case string:
		return t == TypeString
	case float64, int, int64:
		return t == TypeNumber
	case bool:
		return t == TypeBoolean
	case map[string]any:
		return t == TypeObject
	case []any:
		return t == TypeArray
	case nil:
		return true
	default:
		return false
	}
}

func jsonTypeName(v any) string {
	switch v.(type) {
	case string:
		return "string"
	case float64, int, int64:
		return "number"
	case bool:
		return "boolean"
	case map[string]any:
		return "object"
	case []any:
		return "array"
	case nil:
		return "null"
	default:
		return fmt.Sprintf("%T", v)
	}
}
