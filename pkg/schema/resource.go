// Package schema holds declarative resource definitions: field schemas,
// relationships, computed fields and lifecycle hooks. Definitions are
// registered once at startup and read-only afterwards; the API generator
// and the query analyzer consume them for the lifetime of the process.
package schema

import (
	"context"
	"fmt"
)

// FieldType enumerates the JSON-level types a field may declare.
type FieldType string

const (
	TypeString  FieldType = "string"
	TypeNumber  FieldType = "number"
	TypeBoolean FieldType = "boolean"
	TypeObject  FieldType = "object"
	TypeArray   FieldType = "array"
	TypeAny     FieldType = "any"
)

// Field describes one schema field.
type Field struct {
	Type     FieldType
	Required bool
}

// RelKind enumerates relationship variants.
type RelKind string

const (
	HasMany    RelKind = "hasMany"
	BelongsTo  RelKind = "belongsTo"
	HasOne     RelKind = "hasOne"
	ManyToMany RelKind = "manyToMany"
)

// Fanout reports whether traversing this relationship kind from one
// parent row implies a variable-count child fetch, the classic N+1
// shape. belongsTo/hasOne are 1:1 and batch trivially.
func (k RelKind) Fanout() bool { return k == HasMany || k == ManyToMany }

// Relationship is a typed edge to another resource. Declared, never
// mutated; drives both runtime resolution and static analysis.
type Relationship struct {
	Kind     RelKind
	Resource string
	// ForeignKey names the key field: on the target for hasMany/hasOne,
	// on the owning side for belongsTo.
	ForeignKey string
	// Junction fields apply only to manyToMany.
	Junction  string
	SourceKey string
	TargetKey string
	// OrderBy optionally orders hasMany results.
	OrderBy string
}

// ComputedFunc derives a virtual field value from a resolved entity.
type ComputedFunc func(entity map[string]any) any

// Hooks are optional lifecycle callbacks. Before hooks may transform
// their input; any hook error aborts the mutation with no partial
// persistence.
type Hooks struct {
	BeforeCreate func(ctx context.Context, data map[string]any) (map[string]any, error)
	AfterCreate  func(ctx context.Context, entity map[string]any) error
	BeforeUpdate func(ctx context.Context, id string, data map[string]any) (map[string]any, error)
	AfterUpdate  func(ctx context.Context, entity map[string]any) error
	BeforeDelete func(ctx context.Context, id string) error
	AfterDelete  func(ctx context.Context, id string) error
}

// Resource declares one data type's shape and behavior. Immutable once
// registered.
type Resource struct {
	Name          string
	Table         string
	Fields        map[string]Field
	Relationships map[string]Relationship
	Computed      map[string]ComputedFunc
	Hooks         Hooks
}

// HasField reports whether name is a declared or computed field.
func (r *Resource) HasField(name string) bool {
	if _, ok := r.Fields[name]; ok {
		return true
	}
	_, ok := r.Computed[name]
	return ok
}

// Registry is an explicit, ordered collection of resource definitions.
// It is owned by the process-level context and passed where needed;
// there is no ambient global registry.
type Registry struct {
	names  []string
	byName map[string]*Resource
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{byName: make(map[string]*Resource)}
}

// Register inserts a definition. Duplicate names and dangling
// relationship targets are startup errors.
func (reg *Registry) Register(r *Resource) error {
	if r == nil || r.Name == "" {
		return fmt.Errorf("schema: resource must have a name")
	}
	if _, ok := reg.byName[r.Name]; ok {
		return fmt.Errorf("schema: resource %q already registered", r.Name)
	}
	reg.names = append(reg.names, r.Name)
	reg.byName[r.Name] = r
	return nil
}

// Get looks up a definition by name.
func (reg *Registry) Get(name string) (*Resource, bool) {
	r, ok := reg.byName[name]
	return r, ok
}

// Names returns registration order.
func (reg *Registry) Names() []string {
	return append([]string(nil), reg.names...)
}

// Validate checks every registered relationship points at a registered
// resource. Call once after all Register calls.
func (reg *Registry) Validate() error {
	for _, name := range reg.names {
		r := reg.byName[name]
		for relName, rel := range r.Relationships {
			if _, ok := reg.byName[rel.Resource]; !ok {
				return fmt.Errorf("schema: %s.%s references unknown resource %q", name, relName, rel.Resource)
			}
		}
	}
	return nil
}
