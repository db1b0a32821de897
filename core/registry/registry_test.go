package registry_test

import (
	"strings"
	"testing"

	"github.com/victorteokw/docmap/core/registry"
	"github.com/victorteokw/docmap/core/schema"
)

func treeEntities() (*schema.Entity, *schema.Entity) {
	category := schema.Define("category").WithFields(
		schema.String("name").Unique().Required(),
		schema.Ref("parent_id", "category").OnDelete(schema.DeleteNullOut).BackRef("children").Optional(),
		schema.HasMany("children", "category", "parent_id"),
	)
	product := schema.Define("product").WithFields(
		schema.String("name").Required(),
		schema.Ref("category_id", "category").Optional(),
	)
	return category, product
}

func TestRegistry_Register_Conflicts(t *testing.T) {
	r := registry.New()
	if err := r.Register(schema.Define("user")); err != nil {
		t.Fatalf("first register failed: %v", err)
	}
	if err := r.Register(schema.Define("user")); err == nil {
		t.Error("duplicate entity name should fail")
	}
	if err := r.Register(schema.Define("users_alias").InCollection("users")); err == nil {
		t.Error("claimed collection should fail")
	}
}

func TestRegistry_Register_RejectsUnsoundSchemas(t *testing.T) {
	cases := []struct {
		name string
		ent  *schema.Entity
		want string
	}{
		{
			"enum without values",
			schema.Define("a").WithFields(schema.Enum("kind")),
			"no values",
		},
		{
			"temp unique",
			schema.Define("b").WithFields(schema.String("code").Temp().Unique()),
			"cannot be unique",
		},
		{
			"composite group too small",
			schema.Define("c").WithFields(schema.String("x")).UniqueTogether("x"),
			"at least two",
		},
		{
			"composite group unknown field",
			schema.Define("d").WithFields(schema.String("x"), schema.String("y")).UniqueTogether("x", "nope"),
			"unknown field",
		},
		{
			"bad length bounds",
			schema.Define("e").WithFields(schema.String("x").Length(5, 2)),
			"length bounds",
		},
	}
	for _, tc := range cases {
		err := registry.New().Register(tc.ent)
		if err == nil {
			t.Errorf("%s: expected error", tc.name)
			continue
		}
		if !strings.Contains(err.Error(), tc.want) {
			t.Errorf("%s: error %q does not mention %q", tc.name, err, tc.want)
		}
	}
}

func TestRegistry_Finalize_UnknownTarget(t *testing.T) {
	r := registry.New()
	ent := schema.Define("product").WithFields(
		schema.Ref("category_id", "category").Optional(),
	)
	if err := r.Register(ent); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := r.Finalize(); err == nil {
		t.Error("ref to unregistered entity should fail finalize")
	}
}

func TestRegistry_Finalize_ResolvesMatchCollection(t *testing.T) {
	r := registry.New()
	codes := schema.Define("authorization_code").
		InCollection("auth_codes").
		WithFields(
			schema.String("email").Email().Optional(),
			schema.String("value").GeneratedDigits(4).ReadOnly().Required(),
		)
	user := schema.Define("user").WithFields(
		schema.String("email").Email().Required(),
		schema.String("auth_code").Temp().
			MatchesDocument("authorization_code", "email", "value").Optional(),
	)
	for _, ent := range []*schema.Entity{codes, user} {
		if err := r.Register(ent); err != nil {
			t.Fatalf("register %s: %v", ent.Name, err)
		}
	}
	if err := r.Finalize(); err != nil {
		t.Fatalf("finalize: %v", err)
	}

	f, ok := user.Field("auth_code")
	if !ok {
		t.Fatal("auth_code field missing")
	}
	d, ok := f.Directive(schema.DirMatch)
	if !ok {
		t.Fatal("match directive missing")
	}
	// The overridden collection name must win over the derived one.
	if d.Collection != "auth_codes" {
		t.Errorf("match collection = %q, want %q", d.Collection, "auth_codes")
	}
}

func TestRegistry_Finalize_MatchTargetMustExist(t *testing.T) {
	r := registry.New()
	ent := schema.Define("user").WithFields(
		schema.String("email").Email().Required(),
		schema.String("auth_code").Temp().
			MatchesDocument("authorization_code", "email", "value").Optional(),
	)
	if err := r.Register(ent); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := r.Finalize(); err == nil {
		t.Error("match against unregistered entity should fail finalize")
	} else if !strings.Contains(err.Error(), "authorization_code") {
		t.Errorf("error should name the missing entity, got %v", err)
	}
}

func TestRegistry_Finalize_BackRefMustMatch(t *testing.T) {
	r := registry.New()
	ent := schema.Define("category").WithFields(
		schema.String("name").Required(),
		schema.Ref("parent_id", "category").BackRef("missing").Optional(),
	)
	if err := r.Register(ent); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := r.Finalize(); err == nil {
		t.Error("back reference to missing inverse field should fail")
	}
}

func TestRegistry_Finalize_BuildsRelIndex(t *testing.T) {
	r := registry.New()
	category, product := treeEntities()
	if err := r.Register(category); err != nil {
		t.Fatalf("register category: %v", err)
	}
	if err := r.Register(product); err != nil {
		t.Fatalf("register product: %v", err)
	}
	if err := r.Finalize(); err != nil {
		t.Fatalf("finalize: %v", err)
	}

	rel, ok := r.RelFor("category", "parent_id")
	if !ok {
		t.Fatal("expected rel for category.parent_id")
	}
	if !rel.SelfReferential {
		t.Error("category parent link should be self-referential")
	}
	if rel.InverseField != "children" {
		t.Errorf("expected inverse field children, got %q", rel.InverseField)
	}
	if rel.OnDelete != schema.DeleteNullOut {
		t.Errorf("expected null_out, got %v", rel.OnDelete)
	}

	into := r.RelsInto("category")
	if len(into) != 2 {
		t.Fatalf("expected 2 inbound rels, got %d", len(into))
	}
}

func TestRegistry_Finalize_DeletePolicyDefaults(t *testing.T) {
	r := registry.New()
	target := schema.Define("user")
	required := schema.Define("favorite").WithFields(
		schema.Ref("user_id", "user").Required(),
	)
	optional := schema.Define("note").WithFields(
		schema.Ref("author_id", "user").Optional(),
	)
	for _, ent := range []*schema.Entity{target, required, optional} {
		if err := r.Register(ent); err != nil {
			t.Fatalf("register: %v", err)
		}
	}
	if err := r.Finalize(); err != nil {
		t.Fatalf("finalize: %v", err)
	}

	rel, _ := r.RelFor("favorite", "user_id")
	if rel.OnDelete != schema.DeleteReject {
		t.Errorf("required fk should default to reject, got %v", rel.OnDelete)
	}
	rel, _ = r.RelFor("note", "author_id")
	if rel.OnDelete != schema.DeleteNullOut {
		t.Errorf("optional fk should default to null_out, got %v", rel.OnDelete)
	}
}

func TestRegistry_ByCollection(t *testing.T) {
	r := registry.New()
	if err := r.Register(schema.Define("category")); err != nil {
		t.Fatalf("register: %v", err)
	}
	ent, ok := r.ByCollection("categories")
	if !ok || ent.Name != "category" {
		t.Errorf("expected category by collection, got %v %v", ent, ok)
	}
	if _, ok := r.ByCollection("nope"); ok {
		t.Error("unknown collection should miss")
	}
}
