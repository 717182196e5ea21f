package resource

import (
	"context"
	"fmt"

	"github.com/sylphx/lens/pkg/schema"
	"github.com/sylphx/lens/pkg/store"
)

// project shapes one stored entity for output: computed fields are
// derived, the selection prunes scalars, and selected relationships
// are resolved through the shared loaders.
func (s *Service) project(ctx context.Context, def *schema.Resource, entity map[string]any, sel schema.Selection) (map[string]any, error) {
	full := make(map[string]any, len(entity)+len(def.Computed))
	for k, v := range entity {
		full[k] = v
	}
	for name, fn := range def.Computed {
		if sel == nil || sel[name] != nil {
			full[name] = fn(entity)
		}
	}
	out := sel.Apply(full)
	if sel == nil {
		return out, nil
	}
	for _, name := range sel.Fields() {
		rel, ok := def.Relationships[name]
		if !ok {
			continue
		}
		node := sel[name]
		var nested schema.Selection
		if node != nil {
			nested = node.Select
		}
		resolved, err := s.resolveRelationship(ctx, def, entity, name, rel, nested)
		if err != nil {
			return nil, err
		}
		out[name] = resolved
	}
	return out, nil
}

// resolveRelationship fetches the related entity or entities for one
// edge. belongsTo goes through the target loader so sibling lookups in
// the same tick batch; fanout edges are store scans.
func (s *Service) resolveRelationship(ctx context.Context, def *schema.Resource, entity map[string]any, name string, rel schema.Relationship, nested schema.Selection) (any, error) {
	target, ok := s.reg.Get(rel.Resource)
	if !ok {
		return nil, fmt.Errorf("resource: %s.%s targets unknown resource %q", def.Name, name, rel.Resource)
	}
	id, _ := entity["id"].(string)

	switch rel.Kind {
	case schema.BelongsTo:
		fk, _ := entity[rel.ForeignKey].(string)
		if fk == "" {
			return nil, nil
		}
		v, err := s.Loader(rel.Resource).Load(ctx, fk)
		if err != nil {
			return nil, err
		}
		if v == nil {
			return nil, nil
		}
		return s.project(ctx, target, v.(map[string]any), nested)

	case schema.HasOne:
		rows, err := s.store.List(ctx, rel.Resource, store.ListOptions{
			Where: map[string]any{rel.ForeignKey: id},
			Limit: 1,
		})
		if err != nil {
			return nil, err
		}
		if len(rows) == 0 {
			return nil, nil
		}
		return s.project(ctx, target, rows[0], nested)

	case schema.HasMany:
		rows, err := s.store.List(ctx, rel.Resource, store.ListOptions{
			Where:   map[string]any{rel.ForeignKey: id},
			OrderBy: rel.OrderBy,
		})
		if err != nil {
			return nil, err
		}
		return s.projectAll(ctx, target, rows, nested)

	case schema.ManyToMany:
		links, err := s.store.List(ctx, rel.Junction, store.ListOptions{
			Where: map[string]any{rel.SourceKey: id},
		})
		if err != nil {
			return nil, err
		}
		ids := make([]string, 0, len(links))
		for _, link := range links {
			if tid, _ := link[rel.TargetKey].(string); tid != "" {
				ids = append(ids, tid)
			}
		}
		results := s.Loader(rel.Resource).LoadMany(ctx, ids)
		rows := make([]map[string]any, 0, len(results))
		for _, res := range results {
			if res.Err != nil {
				return nil, res.Err
			}
			if res.Value != nil {
				rows = append(rows, res.Value.(map[string]any))
			}
		}
		return s.projectAll(ctx, target, rows, nested)
	}
	return nil, fmt.Errorf("resource: unknown relationship kind %q", rel.Kind)
}

func (s *Service) projectAll(ctx context.Context, def *schema.Resource, rows []map[string]any, sel schema.Selection) ([]map[string]any, error) {
	out := make([]map[string]any, 0, len(rows))
	for _, row := range rows {
		p, err := s.project(ctx, def, row, sel)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}
