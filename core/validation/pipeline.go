// Package validation executes field directive chains against candidate
// values. Directives run left to right; each one rejects the value,
// transforms it, or supplies one when absent. The pipeline never touches the
// store except for uniqueness pre-checks and cross-document matches, both of
// which go through the persistence mediator.
package validation

import (
	"context"
	"fmt"
	"net/mail"
	"net/url"
	"strings"
	"time"

	"github.com/victorteokw/docmap/core/fault"
	"github.com/victorteokw/docmap/core/persist"
	"github.com/victorteokw/docmap/core/schema"
	"github.com/victorteokw/docmap/ports"
)

// TimeLayout is the canonical stored timestamp format.
const TimeLayout = time.RFC3339Nano

// Pipeline validates and normalizes documents against entity schemas.
type Pipeline struct {
	mediator *persist.Mediator
	hasher   ports.Hasher
	clock    ports.Clock
	codes    ports.CodeGenerator
	uploads  ports.Uploader
}

// New creates a validation pipeline. uploads may be nil; the url directive
// then falls back to a parse-only check.
func New(mediator *persist.Mediator, hasher ports.Hasher, clock ports.Clock, codes ports.CodeGenerator, uploads ports.Uploader) *Pipeline {
	return &Pipeline{mediator: mediator, hasher: hasher, clock: clock, codes: codes, uploads: uploads}
}

// Request is one document validation run.
type Request struct {
	// Entity being written.
	Entity *schema.Entity

	// Op is create or update.
	Op schema.Op

	// Input holds the raw caller-supplied field values.
	Input map[string]any

	// Prev is the current persisted document on update, nil on create.
	Prev map[string]any

	// ID is the target identifier on update, empty on create.
	ID string
}

// Result is an accepted, normalized document.
type Result struct {
	// Doc is the full persisted shape: prev overlaid with accepted changes,
	// plus supplied and stamped values.
	Doc map[string]any

	// Temp holds validated transient values, never persisted.
	Temp map[string]any
}

// cell tracks one field's value through its chain.
type cell struct {
	val      any
	present  bool // a value exists after this step
	supplied bool // the caller provided it
}

// Run validates the request and returns the final document, or the collected
// per-field faults.
func (p *Pipeline) Run(ctx context.Context, req Request) (Result, fault.List) {
	var faults fault.List
	now := p.clock.Now().UTC()

	// Unknown fields fail loud.
	for name := range req.Input {
		if _, ok := req.Entity.Field(name); !ok {
			faults.Add(fault.KindTypeMismatch, name, "unknown field")
		}
	}

	doc := make(map[string]any, len(req.Entity.Fields))
	for k, v := range req.Prev {
		doc[k] = v
	}
	temp := make(map[string]any)

	for _, f := range req.Entity.Fields {
		raw, supplied := req.Input[f.Name]

		if f.Type == schema.TypeInverse {
			if supplied {
				faults.Add(fault.KindTypeMismatch, f.Name, "derived field cannot be written")
			}
			continue
		}

		before := len(faults)
		c := cell{val: raw, present: supplied, supplied: supplied}

		// Explicit null: allowed only for nullable, mutable fields, and
		// clears. Mutability holds for every supplied write, null included;
		// otherwise a write-once field could be cleared and set again.
		if supplied && raw == nil {
			if f.Has(schema.DirReadOnly) {
				faults.Add(fault.KindImmutableRewrite, f.Name, "field is read-only")
				continue
			}
			if req.Op == schema.OpUpdate && f.Has(schema.DirWriteOnce) {
				if prev, ok := req.Prev[f.Name]; ok && prev != nil {
					faults.Add(fault.KindImmutableRewrite, f.Name, "field can only be written once")
					continue
				}
			}
			if f.IsRequired() {
				faults.Add(fault.KindMissingRequired, f.Name, "field is required")
				continue
			}
			if !f.Nullable {
				faults.Add(fault.KindTypeMismatch, f.Name, "field is not nullable")
				continue
			}
			doc[f.Name] = nil
			continue
		}

		if supplied {
			coerced, err := coerce(f, raw)
			if err != nil {
				faults.Add(fault.KindTypeMismatch, f.Name, "%s", err.Error())
				continue
			}
			c.val = coerced
			// Identity values are matched case-normalized everywhere, so
			// normalize before any uniqueness probe in the chain runs.
			if f.Has(schema.DirAuthIdentity) {
				if s, ok := c.val.(string); ok {
					c.val = strings.ToLower(strings.TrimSpace(s))
				}
			}
		}

		for _, d := range f.Chain {
			if len(faults) > before {
				break // first fault wins for this field
			}
			p.apply(ctx, req, f, d, &c, &faults, doc, now)
		}
		if len(faults) > before {
			continue
		}

		// Presence after the whole chain had its chance to supply a value.
		// On update an absent field keeps its previous value.
		if !c.present {
			if req.Op == schema.OpCreate && f.IsRequired() {
				faults.Add(fault.KindMissingRequired, f.Name, "field is required")
			}
			continue
		}

		if f.Persisted() {
			doc[f.Name] = c.val
		} else {
			temp[f.Name] = c.val
		}
	}

	if len(faults) > 0 {
		return Result{}, faults
	}

	// Composite uniqueness checks over the assembled document.
	for _, group := range req.Entity.Unique {
		key := make(map[string]any, len(group))
		complete := true
		for _, name := range group {
			v, ok := doc[name]
			if !ok || v == nil {
				complete = false
				break
			}
			key[name] = v
		}
		if !complete {
			continue
		}
		taken, err := p.mediator.ExistsTuple(ctx, req.Entity.Collection, key, req.ID)
		if err != nil {
			faults = append(faults, fault.AsList(err)...)
			continue
		}
		if taken {
			faults.Add(fault.KindDuplicateValue, strings.Join(group, "+"), "values must be unique together")
		}
	}

	if len(faults) > 0 {
		return Result{}, faults
	}
	return Result{Doc: doc, Temp: temp}, nil
}

// apply interprets a single directive against the field's current cell.
func (p *Pipeline) apply(ctx context.Context, req Request, f *schema.Field, d schema.Directive, c *cell, faults *fault.List, doc map[string]any, now time.Time) {
	switch d.Kind {
	case schema.DirReadOnly:
		if c.supplied {
			faults.Add(fault.KindImmutableRewrite, f.Name, "field is read-only")
		}

	case schema.DirWriteOnce:
		if c.supplied && req.Op == schema.OpUpdate {
			if prev, ok := req.Prev[f.Name]; ok && prev != nil {
				faults.Add(fault.KindImmutableRewrite, f.Name, "field can only be written once")
			}
		}

	case schema.DirWriteOnly, schema.DirTemp, schema.DirWriteGate, schema.DirOnDelete, schema.DirBackRef:
		// Read-shaping, authorization and relationship metadata; nothing to
		// do while validating the value itself.

	case schema.DirRequired:
		// Checked after the chain completes, so later directives may still
		// supply a value.

	case schema.DirDefault:
		if !c.present && req.Op == schema.OpCreate {
			c.val = d.Literal
			c.present = true
		}

	case schema.DirGenerated:
		if !c.present && req.Op == schema.OpCreate {
			code, err := p.codes.Digits(d.Digits)
			if err != nil {
				faults.Add(fault.KindStoreUnavailable, f.Name, "generate value: %s", err.Error())
				return
			}
			c.val = code
			c.present = true
		}

	case schema.DirStampOnCreate:
		if req.Op == schema.OpCreate {
			c.val = now.Format(TimeLayout)
			c.present = true
		}

	case schema.DirStampOnUpdate:
		if req.Op != schema.OpUpdate {
			return
		}
		// Debounce suppresses only the stamp refresh, never the write.
		if prev, ok := req.Prev[f.Name].(string); ok {
			if last, err := time.Parse(TimeLayout, prev); err == nil && now.Sub(last) < d.Interval {
				return
			}
		}
		c.val = now.Format(TimeLayout)
		c.present = true

	case schema.DirLength:
		if s, ok := c.val.(string); c.present && ok {
			if len(s) < d.Min || len(s) > d.Max {
				faults.Add(fault.KindOutOfRange, f.Name, "length must be between %d and %d", d.Min, d.Max)
			}
		}

	case schema.DirRange:
		if c.present {
			if n, ok := asFloat(c.val); ok && (n < d.MinVal || n > d.MaxVal) {
				faults.Add(fault.KindOutOfRange, f.Name, "must be between %v and %v", d.MinVal, d.MaxVal)
			}
		}

	case schema.DirPattern:
		if s, ok := c.val.(string); c.present && ok && !d.Pattern.MatchString(s) {
			faults.Add(fault.KindPatternMismatch, f.Name, "does not match required pattern")
		}

	case schema.DirDigits:
		if s, ok := c.val.(string); c.present && ok {
			for _, r := range s {
				if r < '0' || r > '9' {
					faults.Add(fault.KindPatternMismatch, f.Name, "must contain digits only")
					break
				}
			}
		}

	case schema.DirEmail:
		if s, ok := c.val.(string); c.present && ok {
			if _, err := mail.ParseAddress(s); err != nil {
				faults.Add(fault.KindPatternMismatch, f.Name, "invalid email address")
				return
			}
			c.val = strings.ToLower(s)
		}

	case schema.DirURL:
		if s, ok := c.val.(string); c.present && ok {
			if p.uploads != nil {
				if !p.uploads.Owns(s) {
					faults.Add(fault.KindPatternMismatch, f.Name, "not an uploaded file URL")
				}
				return
			}
			if _, err := url.ParseRequestURI(s); err != nil {
				faults.Add(fault.KindPatternMismatch, f.Name, "invalid URL")
			}
		}

	case schema.DirAuthIdentity:
		// The value was already normalized before the chain ran. Identity
		// fields must be unique even without an explicit unique directive;
		// skip when one is present to avoid a double store call.
		if c.present && c.supplied && !f.Has(schema.DirUnique) {
			p.checkUnique(ctx, req, f, c, faults)
		}

	case schema.DirUnique:
		if c.present && c.supplied {
			p.checkUnique(ctx, req, f, c, faults)
		}

	case schema.DirHashed:
		if c.present && c.supplied {
			s, ok := c.val.(string)
			if !ok {
				faults.Add(fault.KindTypeMismatch, f.Name, "must be a string")
				return
			}
			hash, err := p.hasher.Hash(s)
			if err != nil {
				faults.Add(fault.KindStoreUnavailable, f.Name, "hash value: %s", err.Error())
				return
			}
			c.val = string(hash)
		}

	case schema.DirMatch:
		if !c.present || !c.supplied {
			return
		}
		lookup, ok := req.Input[d.LookupField]
		if !ok {
			lookup = req.Prev[d.LookupField]
		}
		if s, isStr := lookup.(string); isStr {
			lookup = strings.ToLower(strings.TrimSpace(s))
		}
		if lookup == nil {
			faults.Add(fault.KindAuthMismatch, f.Name, "no %s to match against", d.LookupField)
			return
		}
		// Collection is set by registry finalization; a chain that never
		// went through a registry falls back to the naming convention.
		coll := d.Collection
		if coll == "" {
			coll = schema.Pluralize(d.Target)
		}
		docs, err := p.mediator.FindByField(ctx, coll, d.LookupField, lookup)
		if err != nil {
			*faults = append(*faults, fault.AsList(err)...)
			return
		}
		if len(docs) == 0 || docs[0][d.ValueField] != c.val {
			faults.Add(fault.KindAuthMismatch, f.Name, "value does not match")
		}

	default:
		// The directive set is closed; an unknown kind is a programming
		// error surfaced loudly rather than ignored.
		faults.Add(fault.KindTypeMismatch, f.Name, "unknown directive %q", d.Kind)
	}
}

func (p *Pipeline) checkUnique(ctx context.Context, req Request, f *schema.Field, c *cell, faults *fault.List) {
	taken, err := p.mediator.Exists(ctx, req.Entity.Collection, f.Name, c.val, req.ID)
	if err != nil {
		*faults = append(*faults, fault.AsList(err)...)
		return
	}
	if taken {
		faults.Add(fault.KindDuplicateValue, f.Name, "value already taken")
	}
}

// coerce strictly converts a raw JSON-decoded value to the field's declared
// type. JSON numbers arrive as float64.
func coerce(f *schema.Field, v any) (any, error) {
	switch f.Type {
	case schema.TypeString, schema.TypeRef:
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("must be a string")
		}
		if f.Type == schema.TypeRef && strings.TrimSpace(s) == "" {
			return nil, fmt.Errorf("reference cannot be empty")
		}
		return s, nil
	case schema.TypeInt:
		switch n := v.(type) {
		case int:
			return int64(n), nil
		case int64:
			return n, nil
		case float64:
			if n != float64(int64(n)) {
				return nil, fmt.Errorf("must be an integer")
			}
			return int64(n), nil
		default:
			return nil, fmt.Errorf("must be an integer")
		}
	case schema.TypeFloat:
		if n, ok := asFloat(v); ok {
			return n, nil
		}
		return nil, fmt.Errorf("must be a number")
	case schema.TypeBool:
		if b, ok := v.(bool); ok {
			return b, nil
		}
		return nil, fmt.Errorf("must be a boolean")
	case schema.TypeTimestamp:
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("must be an RFC3339 timestamp")
		}
		if _, err := time.Parse(time.RFC3339, s); err != nil {
			return nil, fmt.Errorf("must be an RFC3339 timestamp")
		}
		return s, nil
	case schema.TypeEnum:
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("must be a string")
		}
		for _, allowed := range f.Values {
			if s == allowed {
				return s, nil
			}
		}
		return nil, fmt.Errorf("must be one of: %s", strings.Join(f.Values, ", "))
	default:
		return v, nil
	}
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}
