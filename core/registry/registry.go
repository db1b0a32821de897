// Package registry manages entity registration and the relationship
// metadata index. It ensures entity and collection names are unclaimed,
// checks schema sanity once at startup, and resolves owning/inverse
// relationship pairs looked up by (entity, field).
package registry

import (
	"fmt"
	"sort"
	"sync"

	"github.com/victorteokw/docmap/core/schema"
)

// Rel describes one direction-resolved relationship: the owning side holds
// the foreign key; the inverse side is a derived query.
type Rel struct {
	// Owner is the entity holding the foreign-key field.
	Owner string

	// OwnerField is the foreign-key field name on the owner.
	OwnerField string

	// Target is the referenced entity.
	Target string

	// InverseField is the derived view field on the target ("" when the
	// target declares none).
	InverseField string

	// OnDelete is the policy applied when the target record is deleted.
	OnDelete schema.DeletePolicy

	// Required reports whether the foreign key is required on the owner.
	Required bool

	// SelfReferential marks parent/children trees (owner == target).
	SelfReferential bool
}

// Registry holds the registered schema for the process lifetime.
type Registry struct {
	mu sync.RWMutex

	entities    map[string]*schema.Entity
	collections map[string]string // collection -> entity
	rels        []Rel
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{
		entities:    make(map[string]*schema.Entity),
		collections: make(map[string]string),
	}
}

// Register derives and registers an entity definition. Returns an error on
// name or collection conflicts, or on an unsound schema.
func (r *Registry) Register(ent *schema.Entity) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	ent.Derive()

	if _, exists := r.entities[ent.Name]; exists {
		return fmt.Errorf("entity %q already registered", ent.Name)
	}
	if owner, exists := r.collections[ent.Collection]; exists {
		return fmt.Errorf("collection %q already claimed by entity %q", ent.Collection, owner)
	}
	if err := check(ent); err != nil {
		return fmt.Errorf("entity %q: %w", ent.Name, err)
	}

	r.entities[ent.Name] = ent
	r.collections[ent.Collection] = ent.Name
	return nil
}

// Finalize resolves cross-entity links after all entities are registered:
// ref targets must exist, inverse fields must point at real foreign keys,
// and the relationship index is built.
func (r *Registry) Finalize() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.rels = r.rels[:0]
	for _, name := range r.sortedNames() {
		ent := r.entities[name]
		for _, f := range ent.Fields {
			for i := range f.Chain {
				d := &f.Chain[i]
				if d.Kind != schema.DirMatch {
					continue
				}
				target, ok := r.entities[d.Target]
				if !ok {
					return fmt.Errorf("entity %q field %q matches against unknown entity %q", ent.Name, f.Name, d.Target)
				}
				// The match query must hit the target's actual collection,
				// which may override the derived name.
				d.Collection = target.Collection
			}
			switch f.Type {
			case schema.TypeRef:
				target, ok := r.entities[f.Target]
				if !ok {
					return fmt.Errorf("entity %q field %q references unknown entity %q", ent.Name, f.Name, f.Target)
				}
				rel := Rel{
					Owner:           ent.Name,
					OwnerField:      f.Name,
					Target:          f.Target,
					OnDelete:        schema.DeleteReject,
					Required:        f.IsRequired(),
					SelfReferential: ent.Name == f.Target,
				}
				if d, ok := f.Directive(schema.DirOnDelete); ok {
					rel.OnDelete = d.Policy
				} else if !rel.Required {
					// An optional foreign key defaults to null-out; a
					// required one must reject.
					rel.OnDelete = schema.DeleteNullOut
				}
				if d, ok := f.Directive(schema.DirBackRef); ok {
					inv, found := target.Field(d.BackRef)
					if !found || inv.Type != schema.TypeInverse {
						return fmt.Errorf("entity %q field %q: back reference %q is not an inverse field of %q",
							ent.Name, f.Name, d.BackRef, f.Target)
					}
					if inv.ForeignField != f.Name || inv.Target != ent.Name {
						return fmt.Errorf("entity %q field %q: inverse %q.%q does not point back at it",
							ent.Name, f.Name, f.Target, d.BackRef)
					}
					rel.InverseField = d.BackRef
				}
				r.rels = append(r.rels, rel)

			case schema.TypeInverse:
				owner, ok := r.entities[f.Target]
				if !ok {
					return fmt.Errorf("entity %q inverse field %q targets unknown entity %q", ent.Name, f.Name, f.Target)
				}
				ff, found := owner.Field(f.ForeignField)
				if !found || ff.Type != schema.TypeRef {
					return fmt.Errorf("entity %q inverse field %q: %q.%q is not a ref field",
						ent.Name, f.Name, f.Target, f.ForeignField)
				}
			}
		}
	}
	return nil
}

// Get returns the entity registered under name.
func (r *Registry) Get(name string) (*schema.Entity, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ent, ok := r.entities[name]
	return ent, ok
}

// ByCollection returns the entity persisted in the named collection.
func (r *Registry) ByCollection(collection string) (*schema.Entity, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	name, ok := r.collections[collection]
	if !ok {
		return nil, false
	}
	return r.entities[name], true
}

// All returns every registered entity, sorted by name.
func (r *Registry) All() []*schema.Entity {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*schema.Entity, 0, len(r.entities))
	for _, name := range r.sortedNames() {
		out = append(out, r.entities[name])
	}
	return out
}

// RelFor looks up the relationship owned by (entity, field).
func (r *Registry) RelFor(entity, field string) (Rel, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, rel := range r.rels {
		if rel.Owner == entity && rel.OwnerField == field {
			return rel, true
		}
	}
	return Rel{}, false
}

// RelsInto returns all relationships whose foreign keys point at the given
// entity. Used when deleting one of its records.
func (r *Registry) RelsInto(entity string) []Rel {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Rel
	for _, rel := range r.rels {
		if rel.Target == entity {
			out = append(out, rel)
		}
	}
	return out
}

func (r *Registry) sortedNames() []string {
	names := make([]string, 0, len(r.entities))
	for name := range r.entities {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// check validates a single entity definition in isolation.
func check(ent *schema.Entity) error {
	seen := make(map[string]bool, len(ent.Fields))
	for _, f := range ent.Fields {
		if f.Name == "" {
			return fmt.Errorf("field with empty name")
		}
		if seen[f.Name] {
			return fmt.Errorf("duplicate field %q", f.Name)
		}
		seen[f.Name] = true

		if f.Type == schema.TypeEnum && len(f.Values) == 0 {
			return fmt.Errorf("enum field %q has no values", f.Name)
		}
		if d, ok := f.Directive(schema.DirLength); ok && (d.Min < 0 || d.Max < d.Min) {
			return fmt.Errorf("field %q has invalid length bounds [%d, %d]", f.Name, d.Min, d.Max)
		}
		if f.Has(schema.DirTemp) && f.Has(schema.DirUnique) {
			return fmt.Errorf("temp field %q cannot be unique", f.Name)
		}
		if f.Type == schema.TypeInverse && len(f.Chain) > 0 {
			return fmt.Errorf("inverse field %q cannot carry directives", f.Name)
		}
	}
	for _, group := range ent.Unique {
		if len(group) < 2 {
			return fmt.Errorf("composite uniqueness group needs at least two fields")
		}
		for _, name := range group {
			f, ok := ent.Field(name)
			if !ok {
				return fmt.Errorf("composite uniqueness group names unknown field %q", name)
			}
			if !f.Persisted() {
				return fmt.Errorf("composite uniqueness group names non-persisted field %q", name)
			}
		}
	}
	return nil
}
