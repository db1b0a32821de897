package relation_test

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/victorteokw/docmap/adapters/memory"
	"github.com/victorteokw/docmap/core/fault"
	"github.com/victorteokw/docmap/core/persist"
	"github.com/victorteokw/docmap/core/registry"
	"github.com/victorteokw/docmap/core/relation"
	"github.com/victorteokw/docmap/core/schema"
	"github.com/victorteokw/docmap/ports"
)

// The fixture mirrors the shop shape: categories form a self-referential
// tree, products hang off categories, favorites join users to products.
func newFixture(t *testing.T) (*relation.Resolver, *registry.Registry, *memory.DocStore) {
	t.Helper()
	reg := registry.New()
	entities := []*schema.Entity{
		schema.Define("user").WithFields(
			schema.String("username").Required(),
			schema.HasMany("favorites", "favorite", "user_id"),
		),
		schema.Define("category").WithFields(
			schema.String("name").Required(),
			schema.Ref("parent_id", "category").OnDelete(schema.DeleteNullOut).BackRef("children").Optional(),
			schema.HasMany("children", "category", "parent_id"),
			schema.HasMany("products", "product", "category_id"),
		),
		schema.Define("product").WithFields(
			schema.String("name").Required(),
			schema.Ref("category_id", "category").OnDelete(schema.DeleteNullOut).Optional(),
			schema.HasMany("favorites", "favorite", "product_id"),
		),
		schema.Define("favorite").WithFields(
			schema.Ref("user_id", "user").OnDelete(schema.DeleteCascade).Required(),
			schema.Ref("product_id", "product").OnDelete(schema.DeleteCascade).Required(),
		),
	}
	for _, ent := range entities {
		if err := reg.Register(ent); err != nil {
			t.Fatalf("register %s: %v", ent.Name, err)
		}
	}
	if err := reg.Finalize(); err != nil {
		t.Fatalf("finalize: %v", err)
	}

	store := memory.NewDocStore()
	for _, ent := range reg.All() {
		spec := ports.CollectionSpec{Name: ent.Collection, Unique: ent.UniqueGroups()}
		if err := store.EnsureCollection(context.Background(), spec); err != nil {
			t.Fatalf("ensure %s: %v", ent.Collection, err)
		}
	}
	med := persist.New(store, time.Second, zerolog.Nop())
	return relation.New(med, reg), reg, store
}

func seed(t *testing.T, store *memory.DocStore, collection string, docs ...map[string]any) {
	t.Helper()
	for _, doc := range docs {
		if err := store.Insert(context.Background(), collection, doc); err != nil {
			t.Fatalf("seed %s: %v", collection, err)
		}
	}
}

func entity(t *testing.T, reg *registry.Registry, name string) *schema.Entity {
	t.Helper()
	ent, ok := reg.Get(name)
	if !ok {
		t.Fatalf("entity %s not registered", name)
	}
	return ent
}

func TestResolver_CheckRefs_BrokenReference(t *testing.T) {
	res, reg, store := newFixture(t)
	seed(t, store, "categories", map[string]any{"id": "c1", "name": "mugs"})

	ent := entity(t, reg, "product")
	faults := res.CheckRefs(context.Background(), ent, map[string]any{
		"name": "mug", "category_id": "c1",
	}, "")
	if faults != nil {
		t.Fatalf("valid ref should pass: %v", faults)
	}

	faults = res.CheckRefs(context.Background(), ent, map[string]any{
		"name": "mug", "category_id": "nope",
	}, "")
	if !faults.Has(fault.KindBrokenReference) {
		t.Fatalf("expected broken reference, got %v", faults)
	}
}

func TestResolver_CheckRefs_NilRefSkipped(t *testing.T) {
	res, reg, _ := newFixture(t)

	ent := entity(t, reg, "product")
	faults := res.CheckRefs(context.Background(), ent, map[string]any{
		"name": "mug", "category_id": nil,
	}, "")
	if faults != nil {
		t.Fatalf("nil ref should be skipped: %v", faults)
	}
}

func TestResolver_CheckRefs_SelfCycleRejected(t *testing.T) {
	res, reg, store := newFixture(t)
	// c1 -> c2 -> c3 chain, child pointing up.
	seed(t, store, "categories",
		map[string]any{"id": "c1", "name": "root"},
		map[string]any{"id": "c2", "name": "mid", "parent_id": "c1"},
		map[string]any{"id": "c3", "name": "leaf", "parent_id": "c2"},
	)

	ent := entity(t, reg, "category")

	// Reparenting the root under its own leaf closes a loop.
	faults := res.CheckRefs(context.Background(), ent, map[string]any{
		"name": "root", "parent_id": "c3",
	}, "c1")
	if !faults.Has(fault.KindCyclicRelationship) {
		t.Fatalf("expected cycle fault, got %v", faults)
	}

	// Direct self-reference is the degenerate case.
	faults = res.CheckRefs(context.Background(), ent, map[string]any{
		"name": "root", "parent_id": "c1",
	}, "c1")
	if !faults.Has(fault.KindCyclicRelationship) {
		t.Fatalf("expected self-cycle fault, got %v", faults)
	}

	// Moving the leaf elsewhere in the tree stays acyclic.
	faults = res.CheckRefs(context.Background(), ent, map[string]any{
		"name": "leaf", "parent_id": "c1",
	}, "c3")
	if faults != nil {
		t.Fatalf("legitimate reparent should pass: %v", faults)
	}
}

func TestResolver_Related_QueriesOwningSide(t *testing.T) {
	res, reg, store := newFixture(t)
	seed(t, store, "categories", map[string]any{"id": "c1", "name": "mugs"})
	seed(t, store, "products",
		map[string]any{"id": "p1", "name": "red mug", "category_id": "c1"},
		map[string]any{"id": "p2", "name": "blue mug", "category_id": "c1"},
		map[string]any{"id": "p3", "name": "teapot", "category_id": "c9"},
	)

	ent := entity(t, reg, "category")
	f, ok := ent.Field("products")
	if !ok {
		t.Fatal("category.products missing")
	}
	docs, err := res.Related(context.Background(), f, "c1")
	if err != nil {
		t.Fatalf("related: %v", err)
	}
	if len(docs) != 2 {
		t.Fatalf("expected 2 related products, got %d", len(docs))
	}
}

func TestResolver_PlanDelete_CascadeAndOrdering(t *testing.T) {
	res, reg, store := newFixture(t)
	seed(t, store, "users", map[string]any{"id": "u1", "username": "alice"})
	seed(t, store, "products", map[string]any{"id": "p1", "name": "mug"})
	seed(t, store, "favorites",
		map[string]any{"id": "f1", "user_id": "u1", "product_id": "p1"},
		map[string]any{"id": "f2", "user_id": "u1", "product_id": "p1"},
	)

	ent := entity(t, reg, "user")
	writes, faults := res.PlanDelete(context.Background(), ent, "u1")
	if faults != nil {
		t.Fatalf("unexpected faults: %v", faults)
	}
	if len(writes) != 3 {
		t.Fatalf("expected 3 writes, got %d: %v", len(writes), writes)
	}
	// Dependents go first, the target last.
	last := writes[len(writes)-1]
	if last.Op != ports.WriteDelete || last.Collection != "users" || last.ID != "u1" {
		t.Errorf("target delete must come last, got %+v", last)
	}
	for _, w := range writes[:2] {
		if w.Collection != "favorites" || w.Op != ports.WriteDelete {
			t.Errorf("expected favorite delete before target, got %+v", w)
		}
	}
}

func TestResolver_PlanDelete_NullOut(t *testing.T) {
	res, reg, store := newFixture(t)
	seed(t, store, "categories", map[string]any{"id": "c1", "name": "mugs"})
	seed(t, store, "products", map[string]any{"id": "p1", "name": "mug", "category_id": "c1"})

	ent := entity(t, reg, "category")
	writes, faults := res.PlanDelete(context.Background(), ent, "c1")
	if faults != nil {
		t.Fatalf("unexpected faults: %v", faults)
	}
	if len(writes) != 2 {
		t.Fatalf("expected 2 writes, got %d", len(writes))
	}
	patch := writes[0]
	if patch.Op != ports.WriteUpdate || patch.Collection != "products" || patch.ID != "p1" {
		t.Fatalf("expected product patch first, got %+v", patch)
	}
	if patch.Doc["category_id"] != nil {
		t.Errorf("patch must null the foreign key, got %v", patch.Doc["category_id"])
	}
}

func TestResolver_PlanDelete_Reject(t *testing.T) {
	_, _, store := newFixture(t)

	// A second schema with the product->category policy set to reject.
	rejReg := registry.New()
	cat := schema.Define("category2").InCollection("categories").WithFields(
		schema.String("name").Required(),
		schema.HasMany("products", "product2", "category_id"),
	)
	prod := schema.Define("product2").InCollection("products").WithFields(
		schema.String("name").Required(),
		schema.Ref("category_id", "category2").OnDelete(schema.DeleteReject).Optional(),
	)
	for _, ent := range []*schema.Entity{cat, prod} {
		if err := rejReg.Register(ent); err != nil {
			t.Fatalf("register: %v", err)
		}
	}
	if err := rejReg.Finalize(); err != nil {
		t.Fatalf("finalize: %v", err)
	}

	seed(t, store, "categories", map[string]any{"id": "c1", "name": "mugs"})
	seed(t, store, "products", map[string]any{"id": "p1", "name": "mug", "category_id": "c1"})

	med := persist.New(store, time.Second, zerolog.Nop())
	rejRes := relation.New(med, rejReg)
	writes, faults := rejRes.PlanDelete(context.Background(), entity(t, rejReg, "category2"), "c1")
	if writes != nil {
		t.Errorf("rejected delete must produce no writes, got %v", writes)
	}
	if !faults.Has(fault.KindBrokenReference) {
		t.Fatalf("expected dependent-records fault, got %v", faults)
	}
}

func TestResolver_PlanDelete_SharedDependentOnce(t *testing.T) {
	res, reg, store := newFixture(t)
	seed(t, store, "users", map[string]any{"id": "u1", "username": "alice"})
	seed(t, store, "products", map[string]any{"id": "p1", "name": "mug"})
	seed(t, store, "favorites", map[string]any{"id": "f1", "user_id": "u1", "product_id": "p1"})

	// Deleting the product cascades into the same favorite reachable from
	// the user side; the plan must not list it twice.
	ent := entity(t, reg, "product")
	writes, faults := res.PlanDelete(context.Background(), ent, "p1")
	if faults != nil {
		t.Fatalf("unexpected faults: %v", faults)
	}
	seen := map[string]int{}
	for _, w := range writes {
		seen[w.Collection+"/"+w.ID]++
	}
	for key, n := range seen {
		if n > 1 {
			t.Errorf("write %s planned %d times", key, n)
		}
	}
}
