// Package persist mediates between validated entity documents and the
// document store. Every store call carries an upper-bound timeout; a timed
// out call is retried once transparently before surfacing as a store fault.
// Duplicate-key rejections from the store are translated into the same
// validation fault a pre-write check produces, so races lose cleanly.
package persist

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/victorteokw/docmap/core/fault"
	"github.com/victorteokw/docmap/ports"
)

// DefaultTimeout bounds a single store call when none is configured.
const DefaultTimeout = 5 * time.Second

// Mediator wraps a DocumentStore with timeout, retry and fault translation.
type Mediator struct {
	store   ports.DocumentStore
	timeout time.Duration
	logger  zerolog.Logger
}

// New creates a mediator. A non-positive timeout falls back to
// DefaultTimeout.
func New(store ports.DocumentStore, timeout time.Duration, logger zerolog.Logger) *Mediator {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Mediator{store: store, timeout: timeout, logger: logger}
}

// Store exposes the underlying store for collection setup at bootstrap.
func (m *Mediator) Store() ports.DocumentStore { return m.store }

// call runs op under the configured timeout, retrying once when the store
// times out and the caller has not gone away.
func (m *Mediator) call(ctx context.Context, name string, op func(context.Context) error) error {
	run := func() error {
		callCtx, cancel := context.WithTimeout(ctx, m.timeout)
		defer cancel()
		return op(callCtx)
	}

	err := run()
	if err == nil || !errors.Is(err, context.DeadlineExceeded) {
		return m.translate(name, err)
	}
	if ctx.Err() != nil {
		// The caller disconnected; do not retry on their behalf.
		return ctx.Err()
	}

	m.logger.Warn().Str("op", name).Msg("store call timed out, retrying once")
	if err := run(); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return fault.New(fault.KindStoreUnavailable, "", "store did not answer %s within %s (retried)", name, m.timeout)
		}
		return m.translate(name, err)
	}
	return nil
}

// translate maps store errors to the fault taxonomy. ErrNotFound passes
// through untranslated; callers decide what a missing document means.
func (m *Mediator) translate(name string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ports.ErrNotFound):
		return err
	case errors.Is(err, ports.ErrDuplicate):
		var dup *ports.DuplicateError
		if errors.As(err, &dup) {
			return fault.New(fault.KindDuplicateValue, strings.Join(dup.Fields, "+"),
				"value already taken")
		}
		return fault.New(fault.KindDuplicateValue, "", "value already taken")
	case errors.Is(err, context.DeadlineExceeded):
		return fault.New(fault.KindStoreTimeout, "", "store timed out during %s", name)
	case errors.Is(err, context.Canceled):
		return err
	default:
		m.logger.Error().Err(err).Str("op", name).Msg("store call failed")
		return fault.New(fault.KindStoreUnavailable, "", "store failed during %s", name)
	}
}

// Create inserts a document.
func (m *Mediator) Create(ctx context.Context, collection string, doc map[string]any) error {
	return m.call(ctx, "create", func(c context.Context) error {
		return m.store.Insert(c, collection, doc)
	})
}

// Update replaces a document by identifier.
func (m *Mediator) Update(ctx context.Context, collection, id string, doc map[string]any) error {
	return m.call(ctx, "update", func(c context.Context) error {
		return m.store.Update(c, collection, id, doc)
	})
}

// Delete removes a document by identifier.
func (m *Mediator) Delete(ctx context.Context, collection, id string) error {
	return m.call(ctx, "delete", func(c context.Context) error {
		return m.store.Delete(c, collection, id)
	})
}

// FindByID retrieves one document by identifier.
func (m *Mediator) FindByID(ctx context.Context, collection, id string) (map[string]any, error) {
	var doc map[string]any
	err := m.call(ctx, "find_by_id", func(c context.Context) error {
		var e error
		doc, e = m.store.FindByID(c, collection, id)
		return e
	})
	return doc, err
}

// FindByForeignKey retrieves all documents whose foreign-key field holds the
// given identifier. This backs inverse relationship views; the query is
// always bound to one concrete parent id.
func (m *Mediator) FindByForeignKey(ctx context.Context, collection, field, id string) ([]map[string]any, error) {
	var docs []map[string]any
	err := m.call(ctx, "find_by_foreign_key", func(c context.Context) error {
		var e error
		docs, e = m.store.FindByField(c, collection, field, id)
		return e
	})
	return docs, err
}

// FindByField retrieves all documents whose field equals value.
func (m *Mediator) FindByField(ctx context.Context, collection, field string, value any) ([]map[string]any, error) {
	var docs []map[string]any
	err := m.call(ctx, "find_by_field", func(c context.Context) error {
		var e error
		docs, e = m.store.FindByField(c, collection, field, value)
		return e
	})
	return docs, err
}

// FindAll retrieves every document in a collection.
func (m *Mediator) FindAll(ctx context.Context, collection string) ([]map[string]any, error) {
	var docs []map[string]any
	err := m.call(ctx, "find_all", func(c context.Context) error {
		var e error
		docs, e = m.store.FindAll(c, collection)
		return e
	})
	return docs, err
}

// Exists checks single-field uniqueness ahead of a write.
func (m *Mediator) Exists(ctx context.Context, collection, field string, value any, excludeID string) (bool, error) {
	var found bool
	err := m.call(ctx, "exists", func(c context.Context) error {
		var e error
		found, e = m.store.Exists(c, collection, field, value, excludeID)
		return e
	})
	return found, err
}

// ExistsTuple checks composite-key uniqueness ahead of a write.
func (m *Mediator) ExistsTuple(ctx context.Context, collection string, key map[string]any, excludeID string) (bool, error) {
	var found bool
	err := m.call(ctx, "exists_tuple", func(c context.Context) error {
		var e error
		found, e = m.store.ExistsTuple(c, collection, key, excludeID)
		return e
	})
	return found, err
}

// Apply executes a write batch. Callers order writes owning side first; the
// inverse side is derived and never needs separate recovery.
func (m *Mediator) Apply(ctx context.Context, writes []ports.Write) error {
	return m.call(ctx, "apply", func(c context.Context) error {
		return m.store.Apply(c, writes)
	})
}
