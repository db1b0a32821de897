// Package engine drives the write and read lifecycle for mapped documents.
// Every mutating request walks the same stage sequence: received,
// validating, link resolving, authorizing, persisting. A stage that fails
// moves the request to failed and nothing later runs, so a document that
// fails validation is never authorized and never touches the store.
package engine

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/victorteokw/docmap/core/authz"
	"github.com/victorteokw/docmap/core/fault"
	"github.com/victorteokw/docmap/core/persist"
	"github.com/victorteokw/docmap/core/registry"
	"github.com/victorteokw/docmap/core/relation"
	"github.com/victorteokw/docmap/core/schema"
	"github.com/victorteokw/docmap/core/validation"
	"github.com/victorteokw/docmap/ports"
)

// State names a stage in the request lifecycle.
type State string

const (
	StateReceived      State = "received"
	StateValidating    State = "validating"
	StateLinkResolving State = "link_resolving"
	StateAuthorizing   State = "authorizing"
	StatePersisting    State = "persisting"
	StateCompleted     State = "completed"
	StateFailed        State = "failed"
)

// Observer receives lifecycle events, for metrics. Every OpStarted is
// followed by exactly one ObserveOp with the final outcome.
type Observer interface {
	OpStarted(entity string, op schema.Op)
	ObserveOp(entity string, op schema.Op, outcome State, elapsed time.Duration)
}

// nopObserver is used when no observer is wired.
type nopObserver struct{}

func (nopObserver) OpStarted(string, schema.Op)                       {}
func (nopObserver) ObserveOp(string, schema.Op, State, time.Duration) {}

// Engine orchestrates entity operations over the registered schema.
type Engine struct {
	registry *registry.Registry
	mediator *persist.Mediator
	pipeline *validation.Pipeline
	resolver *relation.Resolver
	idgen    ports.IDGenerator
	hasher   ports.Hasher
	logger   zerolog.Logger
	observer Observer
}

// New wires an engine. observer may be nil.
func New(reg *registry.Registry, med *persist.Mediator, pipe *validation.Pipeline, res *relation.Resolver, idgen ports.IDGenerator, hasher ports.Hasher, logger zerolog.Logger, observer Observer) *Engine {
	if observer == nil {
		observer = nopObserver{}
	}
	return &Engine{
		registry: reg,
		mediator: med,
		pipeline: pipe,
		resolver: res,
		idgen:    idgen,
		hasher:   hasher,
		logger:   logger.With().Str("component", "engine").Logger(),
		observer: observer,
	}
}

// run tracks one request through its stages.
type run struct {
	engine *Engine
	entity *schema.Entity
	op     schema.Op
	state  State
	start  time.Time
	logger zerolog.Logger
}

func (e *Engine) begin(entity *schema.Entity, op schema.Op) *run {
	e.observer.OpStarted(entity.Name, op)
	return &run{
		engine: e,
		entity: entity,
		op:     op,
		state:  StateReceived,
		start:  time.Now(),
		logger: e.logger.With().Str("entity", entity.Name).Str("op", string(op)).Logger(),
	}
}

// enter advances to the next stage, aborting if the caller has gone away.
func (r *run) enter(ctx context.Context, next State) error {
	if err := ctx.Err(); err != nil {
		r.fail()
		return err
	}
	r.state = next
	r.logger.Debug().Str("state", string(next)).Msg("stage")
	return nil
}

func (r *run) fail() {
	r.state = StateFailed
	r.engine.observer.ObserveOp(r.entity.Name, r.op, StateFailed, time.Since(r.start))
}

func (r *run) complete() {
	r.state = StateCompleted
	r.engine.observer.ObserveOp(r.entity.Name, r.op, StateCompleted, time.Since(r.start))
}

func (e *Engine) lookup(name string, op schema.Op) (*schema.Entity, error) {
	ent, ok := e.registry.Get(name)
	if !ok {
		return nil, fault.New(fault.KindBrokenReference, "", "unknown entity %q", name)
	}
	if !ent.Allows(op) {
		return nil, fault.New(fault.KindAuthDenied, "", "%s does not allow %s", name, op)
	}
	return ent, nil
}

// Create validates, resolves, authorizes and persists a new document.
// Returns the read-shaped result.
func (e *Engine) Create(ctx context.Context, entityName string, input map[string]any, caller *schema.Identity) (map[string]any, error) {
	ent, err := e.lookup(entityName, schema.OpCreate)
	if err != nil {
		return nil, err
	}
	r := e.begin(ent, schema.OpCreate)

	if err := r.enter(ctx, StateValidating); err != nil {
		return nil, err
	}
	result, faults := e.pipeline.Run(ctx, validation.Request{
		Entity: ent,
		Op:     schema.OpCreate,
		Input:  input,
	})
	if faults != nil {
		r.fail()
		return nil, faults
	}

	if err := r.enter(ctx, StateLinkResolving); err != nil {
		return nil, err
	}
	if faults := e.resolver.CheckRefs(ctx, ent, result.Doc, ""); faults != nil {
		r.fail()
		return nil, faults
	}

	if err := r.enter(ctx, StateAuthorizing); err != nil {
		return nil, err
	}
	actx := authz.Context{Caller: caller, Op: schema.OpCreate, TargetEntity: ent.Name, OwnerField: ent.OwnerField, Doc: result.Doc}
	if !authz.Evaluate(ent.CanCreate, actx) {
		r.fail()
		return nil, fault.New(fault.KindAuthDenied, "", "not allowed to create %s", ent.Name)
	}
	if faults := e.checkFieldGates(ent, input, actx); faults != nil {
		r.fail()
		return nil, faults
	}

	if err := r.enter(ctx, StatePersisting); err != nil {
		return nil, err
	}
	result.Doc["id"] = e.idgen.New()
	if err := e.mediator.Create(ctx, ent.Collection, result.Doc); err != nil {
		r.fail()
		return nil, err
	}

	r.complete()
	r.logger.Info().Str("id", result.Doc["id"].(string)).Msg("created")
	return Shape(ent, result.Doc), nil
}

// Update applies a partial update to an existing document.
func (e *Engine) Update(ctx context.Context, entityName, id string, input map[string]any, caller *schema.Identity) (map[string]any, error) {
	ent, err := e.lookup(entityName, schema.OpUpdate)
	if err != nil {
		return nil, err
	}
	r := e.begin(ent, schema.OpUpdate)

	prev, err := e.fetch(ctx, ent, id)
	if err != nil {
		r.fail()
		return nil, err
	}

	if err := r.enter(ctx, StateValidating); err != nil {
		return nil, err
	}
	result, faults := e.pipeline.Run(ctx, validation.Request{
		Entity: ent,
		Op:     schema.OpUpdate,
		Input:  input,
		Prev:   prev,
		ID:     id,
	})
	if faults != nil {
		r.fail()
		return nil, faults
	}

	if err := r.enter(ctx, StateLinkResolving); err != nil {
		return nil, err
	}
	if faults := e.resolver.CheckRefs(ctx, ent, result.Doc, id); faults != nil {
		r.fail()
		return nil, faults
	}

	if err := r.enter(ctx, StateAuthorizing); err != nil {
		return nil, err
	}
	actx := authz.Context{Caller: caller, Op: schema.OpUpdate, TargetEntity: ent.Name, TargetID: id, OwnerField: ent.OwnerField, Doc: prev}
	if !authz.Evaluate(ent.CanUpdate, actx) {
		r.fail()
		return nil, fault.New(fault.KindAuthDenied, "", "not allowed to update %s %q", ent.Name, id)
	}
	if faults := e.checkFieldGates(ent, input, actx); faults != nil {
		r.fail()
		return nil, faults
	}

	if err := r.enter(ctx, StatePersisting); err != nil {
		return nil, err
	}
	result.Doc["id"] = id
	if err := e.mediator.Update(ctx, ent.Collection, id, result.Doc); err != nil {
		r.fail()
		return nil, err
	}

	r.complete()
	r.logger.Info().Str("id", id).Msg("updated")
	return Shape(ent, result.Doc), nil
}

// Delete removes a document after applying inbound on-delete policies. The
// whole plan is applied as one batch.
func (e *Engine) Delete(ctx context.Context, entityName, id string, caller *schema.Identity) error {
	ent, err := e.lookup(entityName, schema.OpDelete)
	if err != nil {
		return err
	}
	r := e.begin(ent, schema.OpDelete)

	prev, err := e.fetch(ctx, ent, id)
	if err != nil {
		r.fail()
		return err
	}

	// Deletes authorize before resolving links: dependents are only
	// enumerated for callers allowed to remove the record.
	if err := r.enter(ctx, StateAuthorizing); err != nil {
		return err
	}
	actx := authz.Context{Caller: caller, Op: schema.OpDelete, TargetEntity: ent.Name, TargetID: id, OwnerField: ent.OwnerField, Doc: prev}
	if !authz.Evaluate(ent.CanDelete, actx) {
		r.fail()
		return fault.New(fault.KindAuthDenied, "", "not allowed to delete %s %q", ent.Name, id)
	}

	if err := r.enter(ctx, StateLinkResolving); err != nil {
		return err
	}
	writes, faults := e.resolver.PlanDelete(ctx, ent, id)
	if faults != nil {
		r.fail()
		return faults
	}

	if err := r.enter(ctx, StatePersisting); err != nil {
		return err
	}
	if err := e.mediator.Apply(ctx, writes); err != nil {
		r.fail()
		return err
	}

	r.complete()
	r.logger.Info().Str("id", id).Int("writes", len(writes)).Msg("deleted")
	return nil
}

// Get returns one read-shaped document.
func (e *Engine) Get(ctx context.Context, entityName, id string, caller *schema.Identity) (map[string]any, error) {
	ent, err := e.lookup(entityName, schema.OpRead)
	if err != nil {
		return nil, err
	}
	doc, err := e.fetch(ctx, ent, id)
	if err != nil {
		return nil, err
	}
	return Shape(ent, doc), nil
}

// List returns all documents of an entity, read-shaped.
func (e *Engine) List(ctx context.Context, entityName string, caller *schema.Identity) ([]map[string]any, error) {
	ent, err := e.lookup(entityName, schema.OpRead)
	if err != nil {
		return nil, err
	}
	docs, err := e.mediator.FindAll(ctx, ent.Collection)
	if err != nil {
		return nil, err
	}
	out := make([]map[string]any, len(docs))
	for i, doc := range docs {
		out[i] = Shape(ent, doc)
	}
	return out, nil
}

// Related runs the inverse-side query behind a derived relationship field.
func (e *Engine) Related(ctx context.Context, entityName, id, field string, caller *schema.Identity) ([]map[string]any, error) {
	ent, err := e.lookup(entityName, schema.OpRead)
	if err != nil {
		return nil, err
	}
	f, ok := ent.Field(field)
	if !ok || f.Type != schema.TypeInverse {
		return nil, fault.New(fault.KindBrokenReference, field, "not a relationship view of %s", entityName)
	}
	if _, err := e.fetch(ctx, ent, id); err != nil {
		return nil, err
	}
	docs, err := e.resolver.Related(ctx, f, id)
	if err != nil {
		return nil, err
	}
	owner, _ := e.registry.Get(f.Target)
	out := make([]map[string]any, len(docs))
	for i, doc := range docs {
		out[i] = Shape(owner, doc)
	}
	return out, nil
}

// Authenticate verifies a caller against an entity's identity and secret
// fields. creds must carry exactly one identity field value plus the secret.
func (e *Engine) Authenticate(ctx context.Context, entityName string, creds map[string]any) (*schema.Identity, map[string]any, error) {
	ent, ok := e.registry.Get(entityName)
	if !ok {
		return nil, nil, fault.New(fault.KindBrokenReference, "", "unknown entity %q", entityName)
	}
	secretField, ok := ent.SecretField()
	if !ok || len(ent.AuthIdentityFields()) == 0 {
		return nil, nil, fault.New(fault.KindAuthDenied, "", "%s is not an authenticable entity", entityName)
	}

	var doc map[string]any
	for _, f := range ent.AuthIdentityFields() {
		raw, present := creds[f.Name]
		if !present {
			continue
		}
		value, isStr := raw.(string)
		if !isStr || value == "" {
			return nil, nil, fault.New(fault.KindAuthMismatch, f.Name, "invalid identity value")
		}
		docs, err := e.mediator.FindByField(ctx, ent.Collection, f.Name, normalizeIdentity(value))
		if err != nil {
			return nil, nil, err
		}
		if len(docs) == 1 {
			doc = docs[0]
		}
		break
	}
	if doc == nil {
		return nil, nil, fault.New(fault.KindAuthMismatch, "", "no matching record")
	}

	secret, _ := creds[secretField.Name].(string)
	stored, _ := doc[secretField.Name].(string)
	if secret == "" || !e.hasher.Compare([]byte(stored), secret) {
		return nil, nil, fault.New(fault.KindAuthMismatch, secretField.Name, "secret does not match")
	}

	id, _ := doc["id"].(string)
	return &schema.Identity{Entity: ent.Name, ID: id}, Shape(ent, doc), nil
}

// checkFieldGates rejects supplied fields the caller may not write.
func (e *Engine) checkFieldGates(ent *schema.Entity, input map[string]any, actx authz.Context) fault.List {
	var faults fault.List
	for name := range input {
		f, ok := ent.Field(name)
		if !ok {
			continue
		}
		if !authz.FieldWritable(f, actx) {
			faults.Add(fault.KindAuthDenied, name, "not allowed to write this field")
		}
	}
	if len(faults) > 0 {
		return faults
	}
	return nil
}

// fetch loads a document, mapping absence to a broken-reference fault.
func (e *Engine) fetch(ctx context.Context, ent *schema.Entity, id string) (map[string]any, error) {
	doc, err := e.mediator.FindByID(ctx, ent.Collection, id)
	if err != nil {
		if errors.Is(err, ports.ErrNotFound) {
			return nil, fault.New(fault.KindBrokenReference, "", "%s %q does not exist", ent.Name, id)
		}
		return nil, err
	}
	return doc, nil
}

// Shape projects a stored document into its read form: hidden fields
// (write-only, hashed, temp) are stripped.
func Shape(ent *schema.Entity, doc map[string]any) map[string]any {
	out := make(map[string]any, len(doc))
	for k, v := range doc {
		if f, ok := ent.Field(k); ok && f.Hidden() {
			continue
		}
		out[k] = v
	}
	return out
}

func normalizeIdentity(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
