package schema

import (
	"encoding/json"
	"fmt"
	"sort"
)

// Node is one entry in a selection set. A leaf field has a nil Select;
// a relationship carries a nested selection applied to each related
// entity.
type Node struct {
	Select Selection
}

// Selection maps selected field names to their nodes. A nil Selection
// means "all declared fields, no relationships".
type Selection map[string]*Node

// ParseSelection decodes a wire-level selection. Two forms are
// accepted: a flat array of field names, or an object whose values are
// true (leaf) or {"select": {...}} (nested). Anything else is an error.
func ParseSelection(raw json.RawMessage) (Selection, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var probe any
	if err := json.Unmarshal(raw, &probe); err != nil {
		return nil, fmt.Errorf("selection: %w", err)
	}
	switch v := probe.(type) {
	case nil:
		return nil, nil
	case []any:
		sel := make(Selection, len(v))
		for _, item := range v {
			name, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("selection: array entries must be field names, got %T", item)
			}
			sel[name] = &Node{}
		}
		return sel, nil
	case map[string]any:
		return parseObjectSelection(v)
	default:
		return nil, fmt.Errorf("selection: expected array or object, got %T", probe)
	}
}

func parseObjectSelection(m map[string]any) (Selection, error) {
	sel := make(Selection, len(m))
	for name, val := range m {
		switch v := val.(type) {
		case bool:
			if !v {
				continue
			}
			sel[name] = &Node{}
		case map[string]any:
			inner, ok := v["select"]
			if !ok || len(v) != 1 {
				return nil, fmt.Errorf("selection: %q must be true or {\"select\": {...}}", name)
			}
			innerMap, ok := inner.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("selection: %q nested select must be an object", name)
			}
			nested, err := parseObjectSelection(innerMap)
			if err != nil {
				return nil, err
			}
			sel[name] = &Node{Select: nested}
		default:
			return nil, fmt.Errorf("selection: %q must be true or {\"select\": {...}}", name)
		}
	}
	return sel, nil
}

// Check validates a selection against a resource definition. Unknown
// field names are rejected; nested selections are checked against the
// relationship's target resource.
func (sel Selection) Check(reg *Registry, r *Resource) error {
	if sel == nil {
		return nil
	}
	for name, node := range sel {
		if rel, ok := r.Relationships[name]; ok {
			target, found := reg.Get(rel.Resource)
			if !found {
				return &ValidationError{Resource: r.Name, Problems: []string{
					fmt.Sprintf("selection: %s.%s targets unknown resource %q", r.Name, name, rel.Resource),
				}}
			}
			if node != nil {
				if err := node.Select.Check(reg, target); err != nil {
					return err
				}
			}
			continue
		}
		if !r.HasField(name) {
			return &ValidationError{Resource: r.Name, Problems: []string{
				fmt.Sprintf("selection: unknown field %q on %s", name, r.Name),
			}}
		}
		if node != nil && node.Select != nil {
			return &ValidationError{Resource: r.Name, Problems: []string{
				fmt.Sprintf("selection: %q on %s is not a relationship", name, r.Name),
			}}
		}
	}
	return nil
}

// Apply prunes an entity to the selected scalar fields. Relationship
// entries are left to the resolver; Apply copies only keys present on
// the entity. A nil selection returns the entity unchanged.
//
// The id is always included, selected or not: item subscription
// channels, diff strategies, and loader cache keys all identify
// entities by id, so dropping it would break update routing for
// callers that selected a narrow field set.
func (sel Selection) Apply(entity map[string]any) map[string]any {
	if sel == nil || entity == nil {
		return entity
	}
	out := make(map[string]any, len(sel))
	if id, ok := entity["id"]; ok {
		out["id"] = id
	}
	for name := range sel {
		if v, ok := entity[name]; ok {
			out[name] = v
		}
	}
	return out
}

// Fields returns the selected names sorted, for deterministic walks.
func (sel Selection) Fields() []string {
	names := make([]string, 0, len(sel))
	for name := range sel {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
