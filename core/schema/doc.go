// Package schema defines the declarative model for mapped entities: entity
// definitions, field specifications, ordered directive chains, relationship
// declarations, and authorization predicates.
//
// The directive set is closed. A directive is a tagged variant with
// parameters; the validation pipeline interprets chains by sequential
// reduction, never by open-ended dispatch. Schemas are built once at process
// start and are immutable afterwards.
package schema
