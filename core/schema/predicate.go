package schema

// Op is the kind of operation a request performs.
type Op string

const (
	OpCreate Op = "create"
	OpRead   Op = "read"
	OpUpdate Op = "update"
	OpDelete Op = "delete"
)

// Identity is the authenticated caller: entity type plus primary identifier.
// A nil *Identity means an unauthenticated caller.
type Identity struct {
	Entity string
	ID     string
}

// PredicateKind tags a node in an authorization predicate tree.
type PredicateKind string

const (
	// PredCallerIsTarget is true when the caller's identity equals the
	// target record (same entity type, same primary identifier).
	PredCallerIsTarget PredicateKind = "caller_is_target"

	// PredCallerTypeIs is true when the caller belongs to the named entity
	// type.
	PredCallerTypeIs PredicateKind = "caller_type_is"

	// PredOpIs is true when the request performs the given operation.
	PredOpIs PredicateKind = "op_is"

	// Combinators.
	PredAnyOf PredicateKind = "any_of"
	PredAllOf PredicateKind = "all_of"
	PredNot   PredicateKind = "not"
)

// Predicate is a node in a boolean predicate tree over caller identity and
// operation facts. Trees are declared with the schema and evaluated by
// structural recursion; evaluation is short-circuiting and side-effect free.
type Predicate struct {
	Kind     PredicateKind
	TypeName string       // PredCallerTypeIs
	Op       Op           // PredOpIs
	Kids     []*Predicate // combinators
}

// CallerIsTarget matches callers operating on their own record.
func CallerIsTarget() *Predicate { return &Predicate{Kind: PredCallerIsTarget} }

// CallerTypeIs matches callers of the named entity type.
func CallerTypeIs(name string) *Predicate {
	return &Predicate{Kind: PredCallerTypeIs, TypeName: name}
}

// OpIs matches the given operation kind.
func OpIs(op Op) *Predicate { return &Predicate{Kind: PredOpIs, Op: op} }

// AnyOf is true if any child predicate is true.
func AnyOf(kids ...*Predicate) *Predicate { return &Predicate{Kind: PredAnyOf, Kids: kids} }

// AllOf is true if every child predicate is true.
func AllOf(kids ...*Predicate) *Predicate { return &Predicate{Kind: PredAllOf, Kids: kids} }

// Not negates its child.
func Not(kid *Predicate) *Predicate { return &Predicate{Kind: PredNot, Kids: []*Predicate{kid}} }
