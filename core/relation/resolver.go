// Package relation resolves document links. Owning sides hold foreign keys;
// inverse sides are computed queries against those keys, so the two
// directions can never disagree.
package relation

import (
	"context"
	"errors"

	"github.com/victorteokw/docmap/core/fault"
	"github.com/victorteokw/docmap/core/persist"
	"github.com/victorteokw/docmap/core/registry"
	"github.com/victorteokw/docmap/core/schema"
	"github.com/victorteokw/docmap/ports"
)

// maxTreeDepth bounds ancestor walks over self-referential trees. A chain
// longer than this means corrupted data rather than a legitimate hierarchy.
const maxTreeDepth = 512

// Resolver checks and traverses relationships.
type Resolver struct {
	mediator *persist.Mediator
	registry *registry.Registry
}

// New creates a resolver over the registered schema.
func New(mediator *persist.Mediator, registry *registry.Registry) *Resolver {
	return &Resolver{mediator: mediator, registry: registry}
}

// CheckRefs verifies every foreign key present in doc points at an existing
// record, and that self-referential links introduce no cycle. id is the
// record being written, empty on create.
func (r *Resolver) CheckRefs(ctx context.Context, ent *schema.Entity, doc map[string]any, id string) fault.List {
	var faults fault.List
	for _, f := range ent.Fields {
		if f.Type != schema.TypeRef {
			continue
		}
		refID, ok := doc[f.Name].(string)
		if !ok || refID == "" {
			continue
		}

		target, known := r.registry.Get(f.Target)
		if !known {
			faults.Add(fault.KindBrokenReference, f.Name, "unknown entity %q", f.Target)
			continue
		}
		if _, err := r.mediator.FindByID(ctx, target.Collection, refID); err != nil {
			if isNotFound(err) {
				faults.Add(fault.KindBrokenReference, f.Name, "referenced %s %q does not exist", f.Target, refID)
				continue
			}
			faults = append(faults, fault.AsList(err)...)
			continue
		}

		if ent.Name == f.Target && id != "" {
			if cyclic, flt := r.wouldCycle(ctx, ent, f.Name, id, refID); flt != nil {
				faults = append(faults, flt...)
			} else if cyclic {
				faults.Add(fault.KindCyclicRelationship, f.Name, "link would create a cycle")
			}
		}
	}
	return faults
}

// wouldCycle walks the ancestor chain from newParent and reports whether it
// reaches id. Linking a record under its own descendant closes a loop.
func (r *Resolver) wouldCycle(ctx context.Context, ent *schema.Entity, field, id, newParent string) (bool, fault.List) {
	cur := newParent
	for depth := 0; cur != ""; depth++ {
		if cur == id {
			return true, nil
		}
		if depth >= maxTreeDepth {
			return true, nil
		}
		doc, err := r.mediator.FindByID(ctx, ent.Collection, cur)
		if err != nil {
			if isNotFound(err) {
				return false, nil
			}
			return false, fault.AsList(err)
		}
		next, _ := doc[field].(string)
		cur = next
	}
	return false, nil
}

// Related runs the inverse-side query for a derived field: all records of
// the owning entity whose foreign key equals id.
func (r *Resolver) Related(ctx context.Context, f *schema.Field, id string) ([]map[string]any, error) {
	owner, ok := r.registry.Get(f.Target)
	if !ok {
		return nil, fault.Fault{Kind: fault.KindBrokenReference, Field: f.Name, Message: "unknown entity"}
	}
	return r.mediator.FindByForeignKey(ctx, owner.Collection, f.ForeignField, id)
}

// PlanDelete computes the full write batch for deleting the given record,
// applying each inbound relationship's on-delete policy. The batch lists
// dependent writes before the target's own delete so the store never holds
// a dangling key mid-batch.
func (r *Resolver) PlanDelete(ctx context.Context, ent *schema.Entity, id string) ([]ports.Write, fault.List) {
	visited := map[string]bool{}
	return r.planDelete(ctx, ent, id, visited)
}

func (r *Resolver) planDelete(ctx context.Context, ent *schema.Entity, id string, visited map[string]bool) ([]ports.Write, fault.List) {
	key := ent.Collection + "/" + id
	if visited[key] {
		return nil, nil
	}
	visited[key] = true

	var writes []ports.Write
	var faults fault.List

	for _, rel := range r.registry.RelsInto(ent.Name) {
		owner, ok := r.registry.Get(rel.Owner)
		if !ok {
			continue
		}
		deps, err := r.mediator.FindByForeignKey(ctx, owner.Collection, rel.OwnerField, id)
		if err != nil {
			return nil, fault.AsList(err)
		}
		if len(deps) == 0 {
			continue
		}

		switch rel.OnDelete {
		case schema.DeleteReject:
			faults.Add(fault.KindBrokenReference, rel.OwnerField,
				"%d dependent %s record(s) exist", len(deps), rel.Owner)

		case schema.DeleteCascade:
			for _, dep := range deps {
				depID, _ := dep["id"].(string)
				if depID == "" {
					continue
				}
				sub, subFaults := r.planDelete(ctx, owner, depID, visited)
				if subFaults != nil {
					faults = append(faults, subFaults...)
					continue
				}
				writes = append(writes, sub...)
			}

		case schema.DeleteNullOut:
			for _, dep := range deps {
				depID, _ := dep["id"].(string)
				if depID == "" {
					continue
				}
				patched := make(map[string]any, len(dep))
				for k, v := range dep {
					patched[k] = v
				}
				patched[rel.OwnerField] = nil
				writes = append(writes, ports.Write{
					Op:         ports.WriteUpdate,
					Collection: owner.Collection,
					ID:         depID,
					Doc:        patched,
				})
			}
		}
	}

	if len(faults) > 0 {
		return nil, faults
	}
	writes = append(writes, ports.Write{
		Op:         ports.WriteDelete,
		Collection: ent.Collection,
		ID:         id,
	})
	return writes, nil
}

func isNotFound(err error) bool {
	return errors.Is(err, ports.ErrNotFound)
}
