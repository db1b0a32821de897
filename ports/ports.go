// Package ports defines interfaces (contracts) between layers.
// These interfaces enable dependency injection and testability.
// Implementations live in adapters/.
package ports

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"
)

// -----------------------------------------------------------------------------
// Infrastructure Ports
// -----------------------------------------------------------------------------

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time
}

// Random abstracts randomness for testability.
type Random interface {
	// Bytes generates n random bytes.
	Bytes(n int) ([]byte, error)
	// String generates a random string of n characters.
	String(n int) (string, error)
}

// IDGenerator generates store-assigned primary identifiers.
type IDGenerator interface {
	New() string
}

// CodeGenerator supplies random fixed-length digit strings for one-time-code
// fields.
type CodeGenerator interface {
	Digits(n int) (string, error)
}

// Hasher provides salted one-way hashing for credential fields.
type Hasher interface {
	// Hash generates a hash (with a fresh per-value salt) from plaintext.
	Hash(plaintext string) ([]byte, error)

	// Compare checks if plaintext matches hash.
	Compare(hash []byte, plaintext string) bool
}

// -----------------------------------------------------------------------------
// Document Store Port
// -----------------------------------------------------------------------------

// ErrNotFound is returned when no document matches.
var ErrNotFound = errors.New("not found")

// ErrDuplicate is the sentinel matched by DuplicateError. The store, not the
// in-process check, is the final authority on uniqueness: a write racing past
// validation must still fail with this error.
var ErrDuplicate = errors.New("duplicate value")

// DuplicateError reports which uniqueness group a write collided on.
type DuplicateError struct {
	Collection string
	Fields     []string
}

func (e *DuplicateError) Error() string {
	return fmt.Sprintf("duplicate value in %s on (%s)", e.Collection, strings.Join(e.Fields, ", "))
}

func (e *DuplicateError) Is(target error) bool { return target == ErrDuplicate }

// CollectionSpec declares a named collection and its uniqueness groups
// (single fields as one-element groups). The store must enforce these
// atomically with the write.
type CollectionSpec struct {
	Name   string
	Unique [][]string
}

// WriteOp identifies the kind of one batched write.
type WriteOp string

const (
	WriteInsert WriteOp = "insert"
	WriteUpdate WriteOp = "update"
	WriteDelete WriteOp = "delete"
)

// Write is one operation in a batch. Doc is the full document for inserts
// and the replacement document for updates.
type Write struct {
	Op         WriteOp
	Collection string
	ID         string
	Doc        map[string]any
}

// DocumentStore is the persistence collaborator: a key-value/document layer
// with one named collection per entity type. Identifiers are assigned by the
// caller before insert and immutable afterwards.
type DocumentStore interface {
	// EnsureCollection prepares a collection and its unique indexes.
	EnsureCollection(ctx context.Context, spec CollectionSpec) error

	// Insert stores a new document. Doc must carry "id".
	Insert(ctx context.Context, collection string, doc map[string]any) error

	// Update replaces the document with the given id.
	Update(ctx context.Context, collection, id string, doc map[string]any) error

	// Delete removes the document with the given id.
	Delete(ctx context.Context, collection, id string) error

	// FindByID retrieves one document by primary identifier.
	FindByID(ctx context.Context, collection, id string) (map[string]any, error)

	// FindByField retrieves all documents whose field equals value. Used for
	// inverse relationship queries; always bound to a concrete value.
	FindByField(ctx context.Context, collection, field string, value any) ([]map[string]any, error)

	// FindAll retrieves every document in a collection.
	FindAll(ctx context.Context, collection string) ([]map[string]any, error)

	// Exists checks whether any document other than excludeID holds value in
	// field.
	Exists(ctx context.Context, collection, field string, value any, excludeID string) (bool, error)

	// ExistsTuple checks whether any document other than excludeID holds the
	// full key tuple.
	ExistsTuple(ctx context.Context, collection string, key map[string]any, excludeID string) (bool, error)

	// Apply executes a batch of writes as the smallest atomic unit the store
	// supports.
	Apply(ctx context.Context, writes []Write) error

	// Close releases the store handle.
	Close() error
}

// -----------------------------------------------------------------------------
// Upload Port
// -----------------------------------------------------------------------------

// Uploader is the upload collaborator: it stores a binary payload under a
// named slot and returns a stable URL.
type Uploader interface {
	// Put stores the payload and returns its URL.
	Put(ctx context.Context, slot string, payload io.Reader) (string, error)

	// Owns reports whether the URL looks like one this collaborator
	// produced. Field validation uses this, never the payload itself.
	Owns(url string) bool
}
