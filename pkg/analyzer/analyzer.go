// Package analyzer statically inspects a selection set against the
// schema and reports its traversal cost before any data is fetched.
// The output feeds logging, complexity guards and the batching layer.
package analyzer

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/sylphx/lens/pkg/schema"
)

// Traversal is one relationship edge reached by a selection, with the
// nested traversals below it.
type Traversal struct {
	Field    string
	Kind     schema.RelKind
	Resource string
	Depth    int
	Children []Traversal
}

// Analysis is the static cost profile of one query shape.
type Analysis struct {
	Resource             string
	Depth                int
	Relationships        int
	RelationshipsByDepth map[int][]string
	EstimatedQueries     int
	HasNPlusOne          bool
	Traversals           []Traversal
}

// Analyze walks a selection against the registry. A flat field-only
// selection has depth 0; each relationship level below it adds one.
// Walks are ordered by field name so identical inputs always produce
// identical output.
func Analyze(reg *schema.Registry, r *schema.Resource, sel schema.Selection) (*Analysis, error) {
	a := &Analysis{
		Resource:             r.Name,
		RelationshipsByDepth: make(map[int][]string),
		EstimatedQueries:     1,
	}
	tr, err := walk(reg, r, sel, 0, a)
	if err != nil {
		return nil, err
	}
	a.Traversals = tr
	return a, nil
}

func walk(reg *schema.Registry, r *schema.Resource, sel schema.Selection, depth int, a *Analysis) ([]Traversal, error) {
	if sel == nil {
		return nil, nil
	}
	var out []Traversal
	for _, name := range sel.Fields() {
		rel, ok := r.Relationships[name]
		if !ok {
			if !r.HasField(name) {
				return nil, fmt.Errorf("analyzer: unknown field %q on %s", name, r.Name)
			}
			continue
		}
		target, found := reg.Get(rel.Resource)
		if !found {
			return nil, fmt.Errorf("analyzer: %s.%s targets unknown resource %q", r.Name, name, rel.Resource)
		}
		childDepth := depth + 1
		if childDepth > a.Depth {
			a.Depth = childDepth
		}
		a.Relationships++
		a.EstimatedQueries++
		a.RelationshipsByDepth[childDepth] = append(a.RelationshipsByDepth[childDepth], r.Name+"."+name)
		if rel.Kind.Fanout() {
			a.HasNPlusOne = true
		}
		t := Traversal{Field: name, Kind: rel.Kind, Resource: rel.Resource, Depth: childDepth}
		node := sel[name]
		if node != nil && node.Select != nil {
			children, err := walk(reg, target, node.Select, childDepth, a)
			if err != nil {
				return nil, err
			}
			t.Children = children
		}
		out = append(out, t)
	}
	return out, nil
}

// Complexity scores a query shape. Depth dominates exponentially,
// fanout relationships are weighted heaviest.
func (a *Analysis) Complexity() int {
	fanout := 0
	countFanout(a.Traversals, &fanout)
	return int(math.Pow(2, float64(a.Depth))) + 5*a.Relationships + 10*fanout
}

func countFanout(ts []Traversal, n *int) {
	for _, t := range ts {
		if t.Kind.Fanout() {
			*n++
		}
		countFanout(t.Children, n)
	}
}

// Describe renders a deterministic multi-line summary for log output.
func (a *Analysis) Describe() string {
	var b strings.Builder
	fmt.Fprintf(&b, "query %s\n", a.Resource)
	fmt.Fprintf(&b, "  depth: %d\n", a.Depth)
	fmt.Fprintf(&b, "  relationships: %d\n", a.Relationships)
	depths := make([]int, 0, len(a.RelationshipsByDepth))
	for d := range a.RelationshipsByDepth {
		depths = append(depths, d)
	}
	sort.Ints(depths)
	for _, d := range depths {
		fmt.Fprintf(&b, "    depth %d: %s\n", d, strings.Join(a.RelationshipsByDepth[d], ", "))
	}
	fmt.Fprintf(&b, "  estimated queries: %d\n", a.EstimatedQueries)
	nplus := "no"
	if a.HasNPlusOne {
		nplus = "yes"
	}
	fmt.Fprintf(&b, "  n+1: %s\n", nplus)
	fmt.Fprintf(&b, "  complexity: %d", a.Complexity())
	return b.String()
}
