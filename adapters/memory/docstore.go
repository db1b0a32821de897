// Package memory provides an in-memory DocumentStore for tests and
// single-process development. It enforces the same uniqueness contract as
// the durable stores: a write that collides fails, no matter what any
// earlier validation concluded.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/victorteokw/docmap/ports"
)

type collection struct {
	docs   map[string]map[string]any
	unique [][]string
}

// DocStore is a threadsafe in-memory document store.
type DocStore struct {
	mu          sync.RWMutex
	collections map[string]*collection
}

// NewDocStore creates an empty store.
func NewDocStore() *DocStore {
	return &DocStore{collections: make(map[string]*collection)}
}

// Ensure interface compliance.
var _ ports.DocumentStore = (*DocStore)(nil)

// EnsureCollection prepares a collection and registers its uniqueness
// groups. Calling it again replaces the groups but keeps the documents.
func (s *DocStore) EnsureCollection(_ context.Context, spec ports.CollectionSpec) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.collections[spec.Name]
	if !ok {
		c = &collection{docs: make(map[string]map[string]any)}
		s.collections[spec.Name] = c
	}
	c.unique = spec.Unique
	return nil
}

func (s *DocStore) get(name string) (*collection, error) {
	c, ok := s.collections[name]
	if !ok {
		return nil, fmt.Errorf("collection %q: %w", name, ports.ErrNotFound)
	}
	return c, nil
}

// Insert stores a new document.
func (s *DocStore) Insert(_ context.Context, name string, doc map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, err := s.get(name)
	if err != nil {
		return err
	}
	id, _ := doc["id"].(string)
	if id == "" {
		return fmt.Errorf("insert into %q: document has no id", name)
	}
	if _, exists := c.docs[id]; exists {
		return &ports.DuplicateError{Collection: name, Fields: []string{"id"}}
	}
	if dup := c.collides(doc, id); dup != nil {
		return &ports.DuplicateError{Collection: name, Fields: dup}
	}
	c.docs[id] = clone(doc)
	return nil
}

// Update replaces the document with the given id.
func (s *DocStore) Update(_ context.Context, name, id string, doc map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, err := s.get(name)
	if err != nil {
		return err
	}
	if _, exists := c.docs[id]; !exists {
		return ports.ErrNotFound
	}
	if dup := c.collides(doc, id); dup != nil {
		return &ports.DuplicateError{Collection: name, Fields: dup}
	}
	c.docs[id] = clone(doc)
	return nil
}

// Delete removes the document with the given id.
func (s *DocStore) Delete(_ context.Context, name, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, err := s.get(name)
	if err != nil {
		return err
	}
	if _, exists := c.docs[id]; !exists {
		return ports.ErrNotFound
	}
	delete(c.docs, id)
	return nil
}

// FindByID retrieves one document.
func (s *DocStore) FindByID(_ context.Context, name, id string) (map[string]any, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, err := s.get(name)
	if err != nil {
		return nil, err
	}
	doc, exists := c.docs[id]
	if !exists {
		return nil, ports.ErrNotFound
	}
	return clone(doc), nil
}

// FindByField retrieves all documents whose field equals value, ordered by
// id for deterministic output.
func (s *DocStore) FindByField(_ context.Context, name, field string, value any) ([]map[string]any, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, err := s.get(name)
	if err != nil {
		return nil, err
	}
	var out []map[string]any
	for _, doc := range c.docs {
		if equal(doc[field], value) {
			out = append(out, clone(doc))
		}
	}
	sortByID(out)
	return out, nil
}

// FindAll retrieves every document, ordered by id.
func (s *DocStore) FindAll(_ context.Context, name string) ([]map[string]any, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, err := s.get(name)
	if err != nil {
		return nil, err
	}
	out := make([]map[string]any, 0, len(c.docs))
	for _, doc := range c.docs {
		out = append(out, clone(doc))
	}
	sortByID(out)
	return out, nil
}

// Exists checks whether any document other than excludeID holds value in
// field.
func (s *DocStore) Exists(_ context.Context, name, field string, value any, excludeID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, err := s.get(name)
	if err != nil {
		return false, err
	}
	for id, doc := range c.docs {
		if id != excludeID && equal(doc[field], value) {
			return true, nil
		}
	}
	return false, nil
}

// ExistsTuple checks whether any document other than excludeID holds the
// full key tuple.
func (s *DocStore) ExistsTuple(_ context.Context, name string, key map[string]any, excludeID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, err := s.get(name)
	if err != nil {
		return false, err
	}
	for id, doc := range c.docs {
		if id == excludeID {
			continue
		}
		if matchesTuple(doc, key) {
			return true, nil
		}
	}
	return false, nil
}

// Apply executes a batch of writes under one lock: the batch either
// validates fully against current state and applies, or the first failing
// write aborts it untouched.
func (s *DocStore) Apply(_ context.Context, writes []ports.Write) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Dry run against a shadow of the touched collections.
	shadow := make(map[string]map[string]map[string]any)
	for _, w := range writes {
		c, err := s.get(w.Collection)
		if err != nil {
			return err
		}
		docs, ok := shadow[w.Collection]
		if !ok {
			docs = make(map[string]map[string]any, len(c.docs))
			for id, doc := range c.docs {
				docs[id] = doc
			}
			shadow[w.Collection] = docs
		}
		switch w.Op {
		case ports.WriteInsert:
			if _, exists := docs[w.ID]; exists {
				return &ports.DuplicateError{Collection: w.Collection, Fields: []string{"id"}}
			}
			docs[w.ID] = clone(w.Doc)
		case ports.WriteUpdate:
			if _, exists := docs[w.ID]; !exists {
				return ports.ErrNotFound
			}
			docs[w.ID] = clone(w.Doc)
		case ports.WriteDelete:
			if _, exists := docs[w.ID]; !exists {
				return ports.ErrNotFound
			}
			delete(docs, w.ID)
		default:
			return fmt.Errorf("unknown write op %q", w.Op)
		}
	}

	for name, docs := range shadow {
		c := s.collections[name]
		for id, doc := range docs {
			if dup := collidesIn(docs, c.unique, doc, id); dup != nil {
				return &ports.DuplicateError{Collection: name, Fields: dup}
			}
		}
		c.docs = docs
	}
	return nil
}

// Close releases nothing; the store lives on the heap.
func (s *DocStore) Close() error { return nil }

// collides returns the first uniqueness group doc violates against the
// collection, excluding the document with the given id.
func (c *collection) collides(doc map[string]any, excludeID string) []string {
	return collidesIn(c.docs, c.unique, doc, excludeID)
}

func collidesIn(docs map[string]map[string]any, unique [][]string, doc map[string]any, excludeID string) []string {
	for _, group := range unique {
		key := make(map[string]any, len(group))
		complete := true
		for _, f := range group {
			v, ok := doc[f]
			if !ok || v == nil {
				complete = false
				break
			}
			key[f] = v
		}
		if !complete {
			continue
		}
		for id, other := range docs {
			if id == excludeID {
				continue
			}
			if matchesTuple(other, key) {
				return group
			}
		}
	}
	return nil
}

func matchesTuple(doc, key map[string]any) bool {
	for f, v := range key {
		if !equal(doc[f], v) {
			return false
		}
	}
	return true
}

// equal compares stored values loosely enough to survive JSON number
// round-trips.
func equal(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if af, aok := toFloat(a); aok {
		if bf, bok := toFloat(b); bok {
			return af == bf
		}
		return false
	}
	return a == b
}

func toFloat(v any) (float64, bool) {
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

func clone(doc map[string]any) map[string]any {
	out := make(map[string]any, len(doc))
	for k, v := range doc {
		out[k] = v
	}
	return out
}

func sortByID(docs []map[string]any) {
	sort.Slice(docs, func(i, j int) bool {
		a, _ := docs[i]["id"].(string)
		b, _ := docs[j]["id"].(string)
		return strings.Compare(a, b) < 0
	})
}
