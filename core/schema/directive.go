package schema

import (
	"regexp"
	"time"
)

// DirectiveKind identifies a directive in the closed set.
type DirectiveKind string

const (
	// Mutability
	DirReadOnly  DirectiveKind = "readonly"
	DirWriteOnce DirectiveKind = "writeonce"
	DirWriteOnly DirectiveKind = "writeonly"
	DirTemp      DirectiveKind = "temp"

	// Presence
	DirRequired DirectiveKind = "required"
	DirDefault  DirectiveKind = "default"

	// Shape
	DirLength  DirectiveKind = "length"
	DirRange   DirectiveKind = "range"
	DirPattern DirectiveKind = "pattern"
	DirDigits  DirectiveKind = "digits"
	DirEmail   DirectiveKind = "email"
	DirURL     DirectiveKind = "url"
	DirUnique  DirectiveKind = "unique"

	// Derived value
	DirGenerated     DirectiveKind = "generated"
	DirStampOnCreate DirectiveKind = "stamp_on_create"
	DirStampOnUpdate DirectiveKind = "stamp_on_update"

	// Security
	DirHashed DirectiveKind = "hashed"
	DirMatch  DirectiveKind = "match"

	// Relationship
	DirOnDelete DirectiveKind = "on_delete"
	DirBackRef  DirectiveKind = "back_ref"

	// Authorization
	DirAuthIdentity DirectiveKind = "auth_identity"
	DirWriteGate    DirectiveKind = "write_gate"
)

// DeletePolicy governs what happens to records holding a foreign key to a
// deleted record.
type DeletePolicy string

const (
	// DeleteReject refuses the delete while dependents exist.
	DeleteReject DeletePolicy = "reject"

	// DeleteCascade deletes dependents along with the referenced record.
	DeleteCascade DeletePolicy = "cascade"

	// DeleteNullOut clears the foreign key on dependents.
	DeleteNullOut DeletePolicy = "null_out"
)

// Directive is one rule in a field's chain: a tag plus parameters. Which
// parameters are meaningful depends on Kind; the rest stay zero.
type Directive struct {
	Kind DirectiveKind

	// Length bounds (DirLength).
	Min, Max int

	// Numeric bounds (DirRange).
	MinVal, MaxVal float64

	// Compiled expression (DirPattern).
	Pattern *regexp.Regexp

	// Default value (DirDefault).
	Literal any

	// Digit count for generated codes (DirGenerated).
	Digits int

	// Minimum interval between stamp refreshes (DirStampOnUpdate).
	Interval time.Duration

	// Cross-document match parameters (DirMatch). Collection is resolved
	// from the target entity when the registry finalizes.
	Target, LookupField, ValueField, Collection string

	// Field write gate (DirWriteGate).
	Gate *Predicate

	// Relationship delete policy (DirOnDelete).
	Policy DeletePolicy

	// Inverse field name on the target entity (DirBackRef).
	BackRef string
}
