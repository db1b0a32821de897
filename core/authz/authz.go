// Package authz evaluates authorization predicate trees. Evaluation is a
// pure structural recursion over the tree; combinators short-circuit.
package authz

import (
	"github.com/victorteokw/docmap/core/schema"
)

// Context carries everything a predicate can inspect.
type Context struct {
	// Caller is the authenticated identity, nil when unauthenticated.
	Caller *schema.Identity

	// Op is the operation being attempted.
	Op schema.Op

	// TargetEntity and TargetID name the document under the operation.
	// TargetID is empty on create.
	TargetEntity string
	TargetID     string

	// OwnerField optionally names a foreign-key field on the target
	// document; when set, caller-is-target compares against its value in
	// Doc instead of the document id.
	OwnerField string

	// Doc is the target document, nil when not yet persisted.
	Doc map[string]any
}

// Evaluate reports whether the predicate permits the operation. A nil
// predicate permits everything.
func Evaluate(p *schema.Predicate, c Context) bool {
	if p == nil {
		return true
	}
	switch p.Kind {
	case schema.PredCallerIsTarget:
		if c.Caller == nil {
			return false
		}
		if c.OwnerField != "" {
			owner, _ := c.Doc[c.OwnerField].(string)
			return owner != "" && c.Caller.ID == owner
		}
		return c.Caller.Entity == c.TargetEntity && c.Caller.ID == c.TargetID
	case schema.PredCallerTypeIs:
		return c.Caller != nil && c.Caller.Entity == p.TypeName
	case schema.PredOpIs:
		return c.Op == p.Op
	case schema.PredAnyOf:
		for _, kid := range p.Kids {
			if Evaluate(kid, c) {
				return true
			}
		}
		return false
	case schema.PredAllOf:
		for _, kid := range p.Kids {
			if !Evaluate(kid, c) {
				return false
			}
		}
		return true
	case schema.PredNot:
		return len(p.Kids) == 1 && !Evaluate(p.Kids[0], c)
	default:
		return false
	}
}

// FieldWritable reports whether the caller may write the given field.
// Fields without a write gate are writable by anyone the entity-level
// policy already admitted.
func FieldWritable(f *schema.Field, c Context) bool {
	d, ok := f.Directive(schema.DirWriteGate)
	if !ok {
		return true
	}
	return Evaluate(d.Gate, c)
}
