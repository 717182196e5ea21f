// Package store persists resource entities as JSON values in a
// key/value store. Keys follow resource:<name>:<id>; listing a
// resource is a prefix scan.
package store

import (
	"context"
	"errors"
	"sort"
)

// ErrNotFound is returned when no entity exists under the requested id.
var ErrNotFound = errors.New("store: not found")

// ListOptions filter and page a prefix scan. Where matches are
// equality-only against top-level fields. Cursor is the id of the last
// entity already seen; results resume after it in the sorted order and
// it takes precedence over Offset.
type ListOptions struct {
	Where   map[string]any
	OrderBy string
	Desc    bool
	Limit   int
	Offset  int
	Cursor  string
}

// Store is the persistence surface the generated resource APIs run on.
type Store interface {
	Get(ctx context.Context, resource, id string) (map[string]any, error)
	GetMany(ctx context.Context, resource string, ids []string) ([]map[string]any, error)
	List(ctx context.Context, resource string, opts ListOptions) ([]map[string]any, error)
	Put(ctx context.Context, resource, id string, entity map[string]any) error
	Delete(ctx context.Context, resource, id string) error
	Close() error
}

func entityKey(resource, id string) string {
	return "resource:" + resource + ":" + id
}

func resourcePrefix(resource string) string {
	return "resource:" + resource + ":"
}

// filterSortPage applies ListOptions to an already-decoded result set.
// Shared by both backends so they page identically.
func filterSortPage(entities []map[string]any, opts ListOptions) []map[string]any {
	out := entities
	if len(opts.Where) > 0 {
		filtered := make([]map[string]any, 0, len(out))
		for _, e := range out {
			if matchesWhere(e, opts.Where) {
				filtered = append(filtered, e)
			}
		}
		out = filtered
	}
	if opts.OrderBy != "" {
		field, desc := opts.OrderBy, opts.Desc
		sort.SliceStable(out, func(i, j int) bool {
			less := lessValues(out[i][field], out[j][field])
			if desc {
				return !less && !equalValues(out[i][field], out[j][field])
			}
			return less
		})
	}
	if opts.Cursor != "" {
		after := []map[string]any{}
		for i, e := range out {
			if id, _ := e["id"].(string); id == opts.Cursor {
				after = out[i+1:]
				break
			}
		}
		out = after
	} else if opts.Offset > 0 {
		if opts.Offset >= len(out) {
			return []map[string]any{}
		}
		out = out[opts.Offset:]
	}
	if opts.Limit > 0 && opts.Limit < len(out) {
		out = out[:opts.Limit]
	}
	return out
}

func matchesWhere(e map[string]any, where map[string]any) bool {
	for k, want := range where {
		if !equalValues(e[k], want) {
			return false
		}
	}
	return true
}

func equalValues(a, b any) bool {
	if af, aok := asFloat(a); aok {
		if bf, bok := asFloat(b); bok {
			return af == bf
		}
		return false
	}
	return a == b
}

func lessValues(a, b any) bool {
	if af, aok := asFloat(a); aok {
		if bf, bok := asFloat(b); bok {
			return af < bf
		}
	}
	as, aok := a.(string)
	bs, bok := b.(string)
	if aok && bok {
		return as < bs
	}
	return false
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}
