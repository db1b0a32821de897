// Package fault defines the machine-readable failure taxonomy for mapper
// operations. Validation and relationship failures are collected per field;
// authorization and reference failures abort with a single fault.
package fault

import (
	"errors"
	"fmt"
	"strings"
)

// Kind identifies the category of a failure.
type Kind string

const (
	KindTypeMismatch       Kind = "type_mismatch"
	KindMissingRequired    Kind = "missing_required"
	KindOutOfRange         Kind = "out_of_range"
	KindPatternMismatch    Kind = "pattern_mismatch"
	KindDuplicateValue     Kind = "duplicate_value"
	KindImmutableRewrite   Kind = "immutable_field_rewrite"
	KindBrokenReference    Kind = "broken_reference"
	KindCyclicRelationship Kind = "cyclic_relationship"
	KindAuthDenied         Kind = "authorization_denied"
	KindAuthMismatch       Kind = "authentication_mismatch"
	KindStoreTimeout       Kind = "store_timeout"
	KindStoreUnavailable   Kind = "store_unavailable"
)

// Retryable reports whether the failure is transient and worth retrying.
func (k Kind) Retryable() bool {
	return k == KindStoreTimeout
}

// Fault is a single failure tied to a field (or to the whole record when
// Field is empty).
type Fault struct {
	Kind    Kind   `json:"kind"`
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
}

func (f Fault) Error() string {
	if f.Field == "" {
		return fmt.Sprintf("%s: %s", f.Kind, f.Message)
	}
	return fmt.Sprintf("%s: %s: %s", f.Kind, f.Field, f.Message)
}

// New creates a fault.
func New(kind Kind, field, format string, args ...any) Fault {
	return Fault{Kind: kind, Field: field, Message: fmt.Sprintf(format, args...)}
}

// List aggregates faults from one request.
type List []Fault

func (l List) Error() string {
	msgs := make([]string, len(l))
	for i, f := range l {
		msgs[i] = f.Error()
	}
	return strings.Join(msgs, "; ")
}

// Add appends a fault to the list.
func (l *List) Add(kind Kind, field, format string, args ...any) {
	*l = append(*l, New(kind, field, format, args...))
}

// Has reports whether any fault of the given kind is present.
func (l List) Has(kind Kind) bool {
	for _, f := range l {
		if f.Kind == kind {
			return true
		}
	}
	return false
}

// Fields returns the names of all offending fields, in order, without
// duplicates.
func (l List) Fields() []string {
	seen := make(map[string]bool, len(l))
	var out []string
	for _, f := range l {
		if f.Field == "" || seen[f.Field] {
			continue
		}
		seen[f.Field] = true
		out = append(out, f.Field)
	}
	return out
}

// AsList extracts a List or single Fault from err. Plain errors are wrapped
// as a single store_unavailable fault so no failure escapes the taxonomy.
func AsList(err error) List {
	if err == nil {
		return nil
	}
	var l List
	if errors.As(err, &l) {
		return l
	}
	var f Fault
	if errors.As(err, &f) {
		return List{f}
	}
	return List{New(KindStoreUnavailable, "", "%s", err.Error())}
}
