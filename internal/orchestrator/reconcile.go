package orchestrator

import (
	"context"
	"fmt"
	"slices"

	"golang.org/x/sync/errgroup"

	"github.com/roach88/schemata/internal/model"
)

// plan is the partition of a desired child list against the previous one,
// keyed by identity.
type plan struct {
	// updates holds the desired content of children present in both
	// lists, in desired order.
	updates []model.Property

	// deletes holds identities present only in the previous list, in
	// previous order.
	deletes []string

	// creates holds desired children without an identity, in desired order.
	creates []model.Property
}

// diff partitions desired against prevIDs.
//
// A desired child whose identity is not in prevIDs fails with
// PROPERTY_NOT_IN_SCHEMA; an identity repeated in desired fails with
// INVALID_VALUE_IN_SCHEMA. diff has no side effects.
func diff(prevIDs []string, desired []model.Property) (plan, error) {
	prev := make(map[string]bool, len(prevIDs))
	for _, id := range prevIDs {
		prev[id] = true
	}

	var p plan
	kept := make(map[string]bool, len(desired))
	for _, d := range desired {
		if d.ID == "" {
			p.creates = append(p.creates, d)
			continue
		}
		if !prev[d.ID] {
			return plan{}, &SchemaError{
				Code:       CodePropertyNotInSchema,
				Message:    fmt.Sprintf("property %q is not in the schema", d.Name),
				PropertyID: d.ID,
			}
		}
		if kept[d.ID] {
			return plan{}, &SchemaError{
				Code:       CodeInvalidValueInSchema,
				Message:    "property listed more than once",
				PropertyID: d.ID,
			}
		}
		kept[d.ID] = true
		p.updates = append(p.updates, d)
	}

	for _, id := range prevIDs {
		if !kept[id] {
			p.deletes = append(p.deletes, id)
		}
	}
	return p, nil
}

// childIDs returns the final child list: retained children in desired
// order, then created children in desired order.
func (p plan) childIDs(createdIDs []string) []string {
	ids := make([]string, 0, len(p.updates)+len(createdIDs))
	for _, u := range p.updates {
		ids = append(ids, u.ID)
	}
	return append(ids, createdIDs...)
}

// written builds the aggregate an update committed from the stored
// document and the children it wrote, without reading the stores.
func (p plan) written(doc model.Schema, created []model.Property) model.Aggregate {
	props := make([]model.Property, 0, len(p.updates)+len(created))
	for _, c := range append(slices.Clone(p.updates), created...) {
		c = c.Clone()
		c.SchemaName = doc.Name
		props = append(props, c)
	}
	return model.Aggregate{Schema: doc, Properties: props}
}

// reconcile applies p to the property store with bounded concurrency and
// records every applied mutation in j. It returns the created children as
// stored (indexed like p.creates) and the first failure; on failure the
// caller compensates j.
//
// Each worker checks the group context before starting, so once one
// operation fails no new ones begin.
func (o *Orchestrator) reconcile(ctx context.Context, p plan, j *journal) ([]model.Property, error) {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.concurrency)

	for _, want := range p.updates {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			snapshot, err := o.props.GetByID(gctx, want.ID)
			if err != nil {
				return fmt.Errorf("snapshot property %s: %w", want.ID, err)
			}
			if _, err := o.props.UpdateByID(gctx, want.ID, want); err != nil {
				return fmt.Errorf("update property %s: %w", want.ID, err)
			}
			j.recordUpdated(snapshot)
			return nil
		})
	}

	for _, id := range p.deletes {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			snapshot, err := o.props.DeleteByID(gctx, id)
			if err != nil {
				return fmt.Errorf("delete property %s: %w", id, err)
			}
			j.recordDeleted(snapshot)
			return nil
		})
	}

	created := make([]model.Property, len(p.creates))
	for i, want := range p.creates {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			stored, err := o.props.Create(gctx, want)
			if err != nil {
				return fmt.Errorf("create property %q: %w", want.Name, err)
			}
			j.recordCreated(stored.ID)
			created[i] = stored
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return created, nil
}
