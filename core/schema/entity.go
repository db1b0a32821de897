package schema

import (
	"strings"
	"time"
)

// Entity is a named record type with an ordered set of field specifications,
// persisted in its own collection. The id field is the primary identifier:
// immutable, store-assigned, unique.
type Entity struct {
	// Name is the singular entity name (e.g. "user").
	Name string

	// Collection is the store collection name, derived from Name by
	// convention unless set explicitly.
	Collection string

	// Fields in declaration order, implicit fields included after Derive.
	Fields []*Field

	// Unique lists composite uniqueness groups: each group of field names
	// must be unique together across the collection.
	Unique [][]string

	// CanCreate, CanUpdate and CanDelete are entity-level authorization
	// policies. A nil policy permits the operation.
	CanCreate *Predicate
	CanUpdate *Predicate
	CanDelete *Predicate

	// OwnerField optionally names a foreign-key field holding the owning
	// caller's id. When set, caller-is-target predicates compare against
	// it instead of the record's own id.
	OwnerField string

	// Ops is the set of operations exposed for this entity. Empty means
	// all of create, read, update, delete.
	Ops []Op

	derived bool
}

// Define starts an entity definition.
func Define(name string) *Entity {
	return &Entity{Name: name}
}

// WithFields appends field specifications in order.
func (e *Entity) WithFields(fields ...*Field) *Entity {
	e.Fields = append(e.Fields, fields...)
	return e
}

// InCollection overrides the derived collection name.
func (e *Entity) InCollection(name string) *Entity {
	e.Collection = name
	return e
}

// UniqueTogether declares a composite uniqueness constraint over the given
// fields.
func (e *Entity) UniqueTogether(fields ...string) *Entity {
	e.Unique = append(e.Unique, fields)
	return e
}

// CreatableBy sets the entity-level create policy.
func (e *Entity) CreatableBy(p *Predicate) *Entity { e.CanCreate = p; return e }

// UpdatableBy sets the entity-level update policy.
func (e *Entity) UpdatableBy(p *Predicate) *Entity { e.CanUpdate = p; return e }

// DeletableBy sets the entity-level delete policy.
func (e *Entity) DeletableBy(p *Predicate) *Entity { e.CanDelete = p; return e }

// OwnedThrough marks a foreign-key field as the record's owner link for
// caller-is-target checks.
func (e *Entity) OwnedThrough(field string) *Entity { e.OwnerField = field; return e }

// Enable restricts the exposed operations (e.g. create-only side tables).
func (e *Entity) Enable(ops ...Op) *Entity { e.Ops = ops; return e }

// Allows reports whether the operation is exposed for this entity.
func (e *Entity) Allows(op Op) bool {
	if len(e.Ops) == 0 {
		return true
	}
	for _, o := range e.Ops {
		if o == op {
			return true
		}
	}
	return false
}

// Field returns the specification for the named field.
func (e *Entity) Field(name string) (*Field, bool) {
	for _, f := range e.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return nil, false
}

// AuthIdentityFields returns the fields usable as sign-in identities.
func (e *Entity) AuthIdentityFields() []*Field {
	var out []*Field
	for _, f := range e.Fields {
		if f.Has(DirAuthIdentity) {
			out = append(out, f)
		}
	}
	return out
}

// SecretField returns the salted-hash credential field, if any.
func (e *Entity) SecretField() (*Field, bool) {
	for _, f := range e.Fields {
		if f.Has(DirHashed) {
			return f, true
		}
	}
	return nil, false
}

// UniqueGroups returns every store-enforced uniqueness group: each unique
// field as a one-element group, then the composite groups.
func (e *Entity) UniqueGroups() [][]string {
	var out [][]string
	for _, f := range e.Fields {
		if f.Has(DirUnique) || f.Has(DirAuthIdentity) {
			out = append(out, []string{f.Name})
		}
	}
	out = append(out, e.Unique...)
	return out
}

// Derive applies conventions: collection naming and the implicit id,
// created_at and updated_at fields. Declared fields with those names win, so
// an entity can tune (say) its updated_at debounce. Idempotent.
func (e *Entity) Derive() *Entity {
	if e.derived {
		return e
	}
	e.derived = true

	if e.Collection == "" {
		e.Collection = Pluralize(e.Name)
	}

	// The engine assigns ids during persistence, so the field carries no
	// required directive; it only rejects caller writes.
	if _, ok := e.Field("id"); !ok {
		id := String("id").ReadOnly()
		id.Implicit = true
		e.Fields = append([]*Field{id}, e.Fields...)
	}
	if _, ok := e.Field("created_at"); !ok {
		f := Timestamp("created_at").ReadOnly().OnCreate().Required()
		f.Implicit = true
		e.Fields = append(e.Fields, f)
	}
	if _, ok := e.Field("updated_at"); !ok {
		f := Timestamp("updated_at").ReadOnly().OnCreate().OnUpdate(time.Duration(0)).Required()
		f.Implicit = true
		e.Fields = append(e.Fields, f)
	}

	return e
}

// Pluralize derives a collection name from a singular entity name.
func Pluralize(name string) string {
	switch {
	case strings.HasSuffix(name, "y") && !strings.HasSuffix(name, "ey"):
		return name[:len(name)-1] + "ies"
	case strings.HasSuffix(name, "s"),
		strings.HasSuffix(name, "x"),
		strings.HasSuffix(name, "ch"),
		strings.HasSuffix(name, "sh"):
		return name + "es"
	default:
		return name + "s"
	}
}
