// Package demo declares the bundled application schema: an authenticable
// user base with one-time sign-up codes, a small product catalog with a
// category tree, and per-user favorites.
package demo

import (
	"time"

	"github.com/victorteokw/docmap/core/registry"
	"github.com/victorteokw/docmap/core/schema"
)

// CodeStampDebounce suppresses updated_at refreshes on authorization codes
// that are re-requested in rapid succession.
const CodeStampDebounce = 2 * time.Minute

// Register installs all demo entities into the registry and finalizes the
// relationship index.
func Register(reg *registry.Registry) error {
	entities := []*schema.Entity{
		User(),
		Admin(),
		AuthorizationCode(),
		Category(),
		Product(),
		Favorite(),
	}
	for _, ent := range entities {
		if err := reg.Register(ent); err != nil {
			return err
		}
	}
	return reg.Finalize()
}

// User is the public account type. Either username or email signs the user
// in; the auth_code is consumed during sign-up and never stored.
func User() *schema.Entity {
	selfOrAdmin := schema.AnyOf(schema.CallerIsTarget(), schema.CallerTypeIs("admin"))
	return schema.Define("user").
		WithFields(
			schema.String("username").Unique().AuthIdentity().Required(),
			schema.String("email").Email().Unique().AuthIdentity().Optional(),
			schema.String("password").WriteOnly().Length(8, 16).Hashed().Required(),
			schema.Enum("sex", "male", "female").WriteOnce().Optional(),
			schema.Enum("status", "active", "suspended").Default("active").
				WritableBy(schema.CallerTypeIs("admin")),
			schema.String("avatar_url").URL().Optional(),
			schema.String("auth_code").Temp().Digits().
				MatchesDocument("authorization_code", "email", "value").Optional(),
			schema.HasMany("favorites", "favorite", "user_id"),
		).
		UpdatableBy(selfOrAdmin).
		DeletableBy(selfOrAdmin)
}

// Admin is the staff account type. Admins are created by other admins only.
func Admin() *schema.Entity {
	admin := schema.CallerTypeIs("admin")
	return schema.Define("admin").
		WithFields(
			schema.String("username").Unique().AuthIdentity().Required(),
			schema.String("password").WriteOnly().Length(8, 16).Hashed().Required(),
			schema.Enum("sex", "male", "female").WriteOnce().Optional(),
		).
		CreatableBy(admin).
		UpdatableBy(schema.AnyOf(schema.CallerIsTarget(), admin)).
		DeletableBy(admin)
}

// AuthorizationCode issues one-time digit codes against an email or phone
// number. Only creation is exposed; codes are read back by the cross-document
// match during user sign-up. The stamp debounce keeps rapid re-requests from
// touching updated_at.
func AuthorizationCode() *schema.Entity {
	return schema.Define("authorization_code").
		WithFields(
			schema.String("email").Email().Unique().Optional(),
			schema.String("phone_no").Digits().Unique().Optional(),
			schema.String("value").GeneratedDigits(4).ReadOnly().Required(),
			schema.Timestamp("updated_at").ReadOnly().OnCreate().OnUpdate(CodeStampDebounce).Required(),
		).
		Enable(schema.OpCreate)
}

// Category forms a tree: each category may point at a parent, and the
// children view is derived from those parent links.
func Category() *schema.Entity {
	admin := schema.CallerTypeIs("admin")
	return schema.Define("category").
		WithFields(
			schema.String("name").Length(1, 64).Unique().Required(),
			schema.Ref("parent_id", "category").
				OnDelete(schema.DeleteNullOut).BackRef("children").Optional(),
			schema.HasMany("children", "category", "parent_id"),
			schema.HasMany("products", "product", "category_id"),
		).
		CreatableBy(admin).
		UpdatableBy(admin).
		DeletableBy(admin)
}

// Product is a catalog item filed under a category.
func Product() *schema.Entity {
	admin := schema.CallerTypeIs("admin")
	return schema.Define("product").
		WithFields(
			schema.String("name").Length(1, 128).Required(),
			schema.String("description").Length(0, 2048).Optional(),
			schema.Float("price").Range(0, 1_000_000).Required(),
			schema.Int("stock").Range(0, 1_000_000).Default(0),
			schema.Ref("category_id", "category").OnDelete(schema.DeleteNullOut).Optional(),
			schema.HasMany("favorites", "favorite", "product_id"),
		).
		CreatableBy(admin).
		UpdatableBy(admin).
		DeletableBy(admin)
}

// Favorite joins users to products. A user can favorite a product once;
// removing either side removes the favorite. Join rows are never edited,
// only created and deleted, so update is not exposed.
func Favorite() *schema.Entity {
	owner := schema.AnyOf(schema.CallerIsTarget(), schema.CallerTypeIs("admin"))
	return schema.Define("favorite").
		WithFields(
			schema.Ref("user_id", "user").OnDelete(schema.DeleteCascade).Required(),
			schema.Ref("product_id", "product").OnDelete(schema.DeleteCascade).Required(),
		).
		UniqueTogether("user_id", "product_id").
		OwnedThrough("user_id").
		Enable(schema.OpCreate, schema.OpRead, schema.OpDelete).
		CreatableBy(owner).
		DeletableBy(owner)
}
