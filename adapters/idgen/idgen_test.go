package idgen_test

import (
	"regexp"
	"testing"

	"github.com/victorteokw/docmap/adapters/idgen"
)

func TestUUID_New(t *testing.T) {
	g := idgen.UUID{}

	id := g.New()
	if id == "" {
		t.Error("expected non-empty ID")
	}

	// UUID v4 format: 8-4-4-4-12 hex chars
	uuidRegex := regexp.MustCompile(`^[0-9a-f]{8}-[0-9a-f]{4}-4[0-9a-f]{3}-[89ab][0-9a-f]{3}-[0-9a-f]{12}$`)
	if !uuidRegex.MatchString(id) {
		t.Errorf("ID %s doesn't match UUID v4 format", id)
	}
}

func TestUUID_New_Unique(t *testing.T) {
	g := idgen.UUID{}

	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		id := g.New()
		if seen[id] {
			t.Errorf("duplicate ID generated: %s", id)
		}
		seen[id] = true
	}
}

func TestSequential_New(t *testing.T) {
	g := idgen.NewSequential("rec_")

	for i, want := range []string{"rec_1", "rec_2", "rec_3"} {
		if id := g.New(); id != want {
			t.Errorf("ID %d = %s, want %s", i, id, want)
		}
	}
}

func TestSequential_Reset(t *testing.T) {
	g := idgen.NewSequential("rec_")
	g.New()
	g.New()
	g.Reset()
	if id := g.New(); id != "rec_1" {
		t.Errorf("after reset = %s, want rec_1", id)
	}
}
