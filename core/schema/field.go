package schema

import (
	"regexp"
	"time"
)

// FieldType represents the declared value type of a field.
type FieldType string

const (
	TypeString    FieldType = "string"
	TypeInt       FieldType = "int"
	TypeFloat     FieldType = "float"
	TypeBool      FieldType = "bool"
	TypeTimestamp FieldType = "timestamp"
	TypeEnum      FieldType = "enum" // Requires Values

	// TypeRef holds the identifier of a record in another collection
	// (the owning side of a relationship).
	TypeRef FieldType = "ref"

	// TypeInverse is a derived view computed by a foreign-key query against
	// the owning collection. Never persisted, never writable.
	TypeInverse FieldType = "inverse"
)

// Field is one field specification: name, declared type, and an ordered
// directive chain governing validation, mutability, and linkage.
type Field struct {
	// Name of the field as it appears in documents.
	Name string

	// Type is the declared value type.
	Type FieldType

	// Nullable permits explicit null (and absence on create without a
	// missing-required fault unless the chain says otherwise).
	Nullable bool

	// Values lists valid values for enum fields.
	Values []string

	// Target names the referenced entity for ref and inverse fields.
	Target string

	// ForeignField names the owning-side foreign-key field for inverse
	// fields.
	ForeignField string

	// Many marks an inverse field as has-many (false means has-one).
	Many bool

	// Chain is the ordered directive chain. Directives execute left to
	// right during validation.
	Chain []Directive

	// Implicit marks convention-derived fields (id, created_at, updated_at).
	Implicit bool
}

// --- constructors -----------------------------------------------------------

// String declares a string field.
func String(name string) *Field { return &Field{Name: name, Type: TypeString} }

// Int declares an integer field.
func Int(name string) *Field { return &Field{Name: name, Type: TypeInt} }

// Float declares a floating-point field.
func Float(name string) *Field { return &Field{Name: name, Type: TypeFloat} }

// Bool declares a boolean field.
func Bool(name string) *Field { return &Field{Name: name, Type: TypeBool} }

// Timestamp declares an RFC3339 timestamp field.
func Timestamp(name string) *Field { return &Field{Name: name, Type: TypeTimestamp} }

// Enum declares an enum field with the given allowed values.
func Enum(name string, values ...string) *Field {
	return &Field{Name: name, Type: TypeEnum, Values: values}
}

// Ref declares the owning side of a relationship: this field holds the
// identifier of a record of the target entity.
func Ref(name, target string) *Field {
	return &Field{Name: name, Type: TypeRef, Target: target}
}

// HasMany declares a derived inverse view: all target records whose
// foreignField equals this record's identifier.
func HasMany(name, target, foreignField string) *Field {
	return &Field{Name: name, Type: TypeInverse, Target: target, ForeignField: foreignField, Many: true}
}

// HasOne declares a derived inverse view holding at most one target record.
func HasOne(name, target, foreignField string) *Field {
	return &Field{Name: name, Type: TypeInverse, Target: target, ForeignField: foreignField, Many: false}
}

// --- chain builders ---------------------------------------------------------

func (f *Field) add(d Directive) *Field {
	f.Chain = append(f.Chain, d)
	return f
}

// Required rejects absent values.
func (f *Field) Required() *Field { return f.add(Directive{Kind: DirRequired}) }

// Optional permits explicit null and absence.
func (f *Field) Optional() *Field {
	f.Nullable = true
	return f
}

// Default supplies v when no value is given on create.
func (f *Field) Default(v any) *Field { return f.add(Directive{Kind: DirDefault, Literal: v}) }

// ReadOnly rejects any caller-supplied value; the field is only ever set
// internally.
func (f *Field) ReadOnly() *Field { return f.add(Directive{Kind: DirReadOnly}) }

// WriteOnce accepts exactly one initial set and rejects updates once a
// non-null value exists.
func (f *Field) WriteOnce() *Field { return f.add(Directive{Kind: DirWriteOnce}) }

// WriteOnly accepts writes but is stripped from all read-side output.
func (f *Field) WriteOnly() *Field { return f.add(Directive{Kind: DirWriteOnly}) }

// Temp marks a transient field: validated, usable by other directives during
// the request, never persisted.
func (f *Field) Temp() *Field { return f.add(Directive{Kind: DirTemp}) }

// Length constrains string length to [min, max].
func (f *Field) Length(min, max int) *Field {
	return f.add(Directive{Kind: DirLength, Min: min, Max: max})
}

// Range constrains a numeric value to [min, max].
func (f *Field) Range(min, max float64) *Field {
	return f.add(Directive{Kind: DirRange, MinVal: min, MaxVal: max})
}

// Pattern requires the value to match the given regular expression.
// The expression must compile; schemas are static, so a bad pattern is a
// programming error.
func (f *Field) Pattern(expr string) *Field {
	return f.add(Directive{Kind: DirPattern, Pattern: regexp.MustCompile(expr)})
}

// Digits requires the value to consist of decimal digits only.
func (f *Field) Digits() *Field { return f.add(Directive{Kind: DirDigits}) }

// Email requires the value to have the shape of an email address. The value
// is lowercased.
func (f *Field) Email() *Field { return f.add(Directive{Kind: DirEmail}) }

// URL requires the value to look like a URL produced by the upload
// collaborator.
func (f *Field) URL() *Field { return f.add(Directive{Kind: DirURL}) }

// Unique requires the value to be unique across the collection. The store's
// unique index is the final authority; the pipeline's pre-write check exists
// to report early.
func (f *Field) Unique() *Field { return f.add(Directive{Kind: DirUnique}) }

// Hashed stores a salted hash of the written value and never returns it.
// The companion check is Engine.CheckSecret. Implies write-only output
// behavior.
func (f *Field) Hashed() *Field { return f.add(Directive{Kind: DirHashed}) }

// GeneratedDigits supplies a random fixed-length digit string on create when
// no value is given.
func (f *Field) GeneratedDigits(n int) *Field {
	return f.add(Directive{Kind: DirGenerated, Digits: n})
}

// OnCreate stamps the field with the current time when the record is
// created.
func (f *Field) OnCreate() *Field { return f.add(Directive{Kind: DirStampOnCreate}) }

// OnUpdate stamps the field with the current time on every update, unless
// less than minInterval has elapsed since the previous stamp. The debounce
// suppresses only the stamp, never the write it rides on.
func (f *Field) OnUpdate(minInterval time.Duration) *Field {
	return f.add(Directive{Kind: DirStampOnUpdate, Interval: minInterval})
}

// MatchesDocument requires the candidate value to equal valueField of the
// target-entity record found by lookupField. The lookup key is taken from
// this record's own lookupField value. Used to check one-time codes held in
// a side collection.
func (f *Field) MatchesDocument(target, lookupField, valueField string) *Field {
	return f.add(Directive{Kind: DirMatch, Target: target, LookupField: lookupField, ValueField: valueField})
}

// AuthIdentity marks the field as a credential identity (e.g. username or
// email): matched case-normalized, unique at write time.
func (f *Field) AuthIdentity() *Field { return f.add(Directive{Kind: DirAuthIdentity}) }

// WritableBy gates updates of this field behind the given predicate. A
// denied gated field fails the whole request.
func (f *Field) WritableBy(p *Predicate) *Field {
	return f.add(Directive{Kind: DirWriteGate, Gate: p})
}

// OnDelete sets the delete policy of the relationship owned by this ref
// field. Without it, deleting the referenced record is rejected while this
// field is required, and nulled out otherwise.
func (f *Field) OnDelete(p DeletePolicy) *Field {
	return f.add(Directive{Kind: DirOnDelete, Policy: p})
}

// BackRef names the derived inverse field on the target entity. Metadata
// only; the inverse field must still be declared on the target.
func (f *Field) BackRef(name string) *Field {
	return f.add(Directive{Kind: DirBackRef, BackRef: name})
}

// --- chain inspection -------------------------------------------------------

// Has reports whether the chain carries a directive of the given kind.
func (f *Field) Has(kind DirectiveKind) bool {
	_, ok := f.Directive(kind)
	return ok
}

// Directive returns the first directive of the given kind in the chain.
func (f *Field) Directive(kind DirectiveKind) (Directive, bool) {
	for _, d := range f.Chain {
		if d.Kind == kind {
			return d, true
		}
	}
	return Directive{}, false
}

// IsRequired reports whether absent values are rejected.
func (f *Field) IsRequired() bool { return f.Has(DirRequired) }

// Hidden reports whether the field is stripped from read-side output.
func (f *Field) Hidden() bool {
	return f.Has(DirWriteOnly) || f.Has(DirHashed) || f.Has(DirTemp)
}

// Persisted reports whether the field is written to the store at all.
func (f *Field) Persisted() bool {
	return f.Type != TypeInverse && !f.Has(DirTemp)
}
