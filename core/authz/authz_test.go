package authz_test

import (
	"testing"

	"github.com/victorteokw/docmap/core/authz"
	"github.com/victorteokw/docmap/core/schema"
)

func alice() *schema.Identity {
	return &schema.Identity{Entity: "user", ID: "u1"}
}

func TestEvaluate_NilPolicyPermits(t *testing.T) {
	if !authz.Evaluate(nil, authz.Context{}) {
		t.Error("nil predicate must permit")
	}
}

func TestEvaluate_CallerIsTarget(t *testing.T) {
	p := schema.CallerIsTarget()

	c := authz.Context{Caller: alice(), TargetEntity: "user", TargetID: "u1"}
	if !authz.Evaluate(p, c) {
		t.Error("caller operating on own record should pass")
	}

	c.TargetID = "u2"
	if authz.Evaluate(p, c) {
		t.Error("different target id should fail")
	}

	c = authz.Context{Caller: nil, TargetEntity: "user", TargetID: "u1"}
	if authz.Evaluate(p, c) {
		t.Error("unauthenticated caller should fail")
	}
}

func TestEvaluate_CallerIsTarget_OwnerField(t *testing.T) {
	p := schema.CallerIsTarget()
	c := authz.Context{
		Caller:       alice(),
		TargetEntity: "favorite",
		TargetID:     "f1",
		OwnerField:   "user_id",
		Doc:          map[string]any{"user_id": "u1"},
	}
	if !authz.Evaluate(p, c) {
		t.Error("caller matching owner field should pass")
	}

	c.Doc = map[string]any{"user_id": "u2"}
	if authz.Evaluate(p, c) {
		t.Error("caller not matching owner field should fail")
	}

	c.Doc = nil
	if authz.Evaluate(p, c) {
		t.Error("missing owner value should fail")
	}
}

func TestEvaluate_CallerTypeIs(t *testing.T) {
	p := schema.CallerTypeIs("admin")
	if authz.Evaluate(p, authz.Context{Caller: alice()}) {
		t.Error("user is not admin")
	}
	if !authz.Evaluate(p, authz.Context{Caller: &schema.Identity{Entity: "admin", ID: "a1"}}) {
		t.Error("admin caller should pass")
	}
	if authz.Evaluate(p, authz.Context{}) {
		t.Error("unauthenticated caller should fail")
	}
}

func TestEvaluate_OpIs(t *testing.T) {
	p := schema.OpIs(schema.OpDelete)
	if !authz.Evaluate(p, authz.Context{Op: schema.OpDelete}) {
		t.Error("matching op should pass")
	}
	if authz.Evaluate(p, authz.Context{Op: schema.OpCreate}) {
		t.Error("different op should fail")
	}
}

func TestEvaluate_Combinators(t *testing.T) {
	admin := schema.CallerTypeIs("admin")
	self := schema.CallerIsTarget()

	anyOf := schema.AnyOf(admin, self)
	c := authz.Context{Caller: alice(), TargetEntity: "user", TargetID: "u1"}
	if !authz.Evaluate(anyOf, c) {
		t.Error("any_of with one true branch should pass")
	}

	allOf := schema.AllOf(admin, self)
	if authz.Evaluate(allOf, c) {
		t.Error("all_of with one false branch should fail")
	}

	if !authz.Evaluate(schema.Not(admin), c) {
		t.Error("not(false) should pass")
	}
}

func TestEvaluate_NestedTree(t *testing.T) {
	// Admins may do anything; users may only update themselves.
	p := schema.AnyOf(
		schema.CallerTypeIs("admin"),
		schema.AllOf(schema.CallerIsTarget(), schema.OpIs(schema.OpUpdate)),
	)

	c := authz.Context{Caller: alice(), Op: schema.OpUpdate, TargetEntity: "user", TargetID: "u1"}
	if !authz.Evaluate(p, c) {
		t.Error("self-update should pass")
	}

	c.Op = schema.OpDelete
	if authz.Evaluate(p, c) {
		t.Error("self-delete should fail")
	}
}

func TestFieldWritable(t *testing.T) {
	plain := schema.String("name")
	if !authz.FieldWritable(plain, authz.Context{}) {
		t.Error("ungated field should be writable")
	}

	gated := schema.Enum("status", "active", "suspended").WritableBy(schema.CallerTypeIs("admin"))
	if authz.FieldWritable(gated, authz.Context{Caller: alice()}) {
		t.Error("gated field should reject non-admin")
	}
	if !authz.FieldWritable(gated, authz.Context{Caller: &schema.Identity{Entity: "admin", ID: "a1"}}) {
		t.Error("gated field should admit admin")
	}
}
