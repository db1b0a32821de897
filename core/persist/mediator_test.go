package persist_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/victorteokw/docmap/core/fault"
	"github.com/victorteokw/docmap/core/persist"
	"github.com/victorteokw/docmap/ports"
)

// flakyStore fails the first n Insert calls with the given error.
type flakyStore struct {
	ports.DocumentStore
	failures int
	err      error
	calls    int
}

func (s *flakyStore) Insert(ctx context.Context, collection string, doc map[string]any) error {
	s.calls++
	if s.calls <= s.failures {
		return s.err
	}
	return nil
}

func (s *flakyStore) FindByID(ctx context.Context, collection, id string) (map[string]any, error) {
	return nil, ports.ErrNotFound
}

func newMediator(store ports.DocumentStore) *persist.Mediator {
	return persist.New(store, 50*time.Millisecond, zerolog.Nop())
}

func TestMediator_Create_RetriesOnceOnTimeout(t *testing.T) {
	store := &flakyStore{failures: 1, err: context.DeadlineExceeded}
	m := newMediator(store)

	if err := m.Create(context.Background(), "users", map[string]any{"id": "u1"}); err != nil {
		t.Fatalf("expected retry to succeed, got %v", err)
	}
	if store.calls != 2 {
		t.Errorf("expected 2 calls, got %d", store.calls)
	}
}

func TestMediator_Create_SecondTimeoutIsUnavailable(t *testing.T) {
	store := &flakyStore{failures: 2, err: context.DeadlineExceeded}
	m := newMediator(store)

	err := m.Create(context.Background(), "users", map[string]any{"id": "u1"})
	if err == nil {
		t.Fatal("expected error")
	}
	faults := fault.AsList(err)
	if len(faults) != 1 || faults[0].Kind != fault.KindStoreUnavailable {
		t.Errorf("expected store_unavailable, got %v", faults)
	}
	if store.calls != 2 {
		t.Errorf("expected exactly 2 calls, got %d", store.calls)
	}
}

func TestMediator_Create_TranslatesDuplicate(t *testing.T) {
	store := &flakyStore{failures: 1, err: &ports.DuplicateError{Collection: "users", Fields: []string{"username"}}}
	m := newMediator(store)

	err := m.Create(context.Background(), "users", map[string]any{"id": "u1"})
	faults := fault.AsList(err)
	if len(faults) != 1 || faults[0].Kind != fault.KindDuplicateValue {
		t.Fatalf("expected duplicate_value, got %v", err)
	}
	if faults[0].Field != "username" {
		t.Errorf("expected field username, got %q", faults[0].Field)
	}
	if store.calls != 1 {
		t.Errorf("duplicate must not be retried, got %d calls", store.calls)
	}
}

func TestMediator_Create_NoRetryAfterCallerGone(t *testing.T) {
	store := &flakyStore{failures: 5, err: context.DeadlineExceeded}
	m := newMediator(store)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := m.Create(ctx, "users", map[string]any{"id": "u1"})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if store.calls != 1 {
		t.Errorf("cancelled caller must not trigger retry, got %d calls", store.calls)
	}
}

func TestMediator_FindByID_NotFoundPassesThrough(t *testing.T) {
	store := &flakyStore{}
	m := newMediator(store)

	_, err := m.FindByID(context.Background(), "users", "missing")
	if !errors.Is(err, ports.ErrNotFound) {
		t.Errorf("expected ErrNotFound passthrough, got %v", err)
	}
}
