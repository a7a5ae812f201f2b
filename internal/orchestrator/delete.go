package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"golang.org/x/sync/errgroup"

	"github.com/roach88/schemata/internal/model"
	"github.com/roach88/schemata/internal/notify"
	"github.com/roach88/schemata/internal/store"
)

// DeleteSchema deletes a schema and every property it references, and
// returns the deleted document.
//
// The aggregate is first marked PendingDelete, which hides it from reads.
// If the cascade fails part way the aggregate stays pending and the error
// is returned; calling DeleteSchema again (or PurgePending) resumes it.
//
// Errors: INVALID_ID for a malformed id, NOT_FOUND for an absent one.
func (o *Orchestrator) DeleteSchema(ctx context.Context, id string) (doc model.Schema, err error) {
	ctx, finish := o.begin(ctx, WorkflowDeleteSchema, id)
	defer finish(&err)

	unlock := o.locks.Lock(id)
	defer unlock()

	doc, err = o.load(ctx, id)
	if err != nil {
		return model.Schema{}, err
	}

	if !doc.PendingDelete {
		doc.PendingDelete = true
		doc, err = o.schemas.UpdateByID(ctx, id, doc)
		if err != nil {
			return model.Schema{}, fmt.Errorf("mark schema %s for deletion: %w", id, err)
		}
	} else {
		slog.Info("resuming interrupted schema delete", "schema_id", id)
	}

	if err := o.purge(ctx, doc); err != nil {
		return model.Schema{}, err
	}
	return doc, nil
}

// PurgePending finishes every interrupted schema delete and returns how
// many were completed. Errors from individual schemas are joined; a
// schema that fails stays pending.
func (o *Orchestrator) PurgePending(ctx context.Context) (n int, err error) {
	ctx, finish := o.begin(ctx, WorkflowPurge, "")
	defer finish(&err)

	docs, err := o.schemas.GetAll(ctx)
	if err != nil {
		return 0, fmt.Errorf("list schemas: %w", err)
	}

	var errs []error
	for _, candidate := range docs {
		if !candidate.PendingDelete {
			continue
		}
		if err := o.purgeLocked(ctx, candidate.ID); err != nil {
			errs = append(errs, err)
			continue
		}
		n++
	}
	if n > 0 {
		slog.Info("purged pending schemas", "count", n)
	}
	return n, errors.Join(errs...)
}

// purgeLocked re-reads a pending schema under its lock and purges it.
func (o *Orchestrator) purgeLocked(ctx context.Context, id string) error {
	unlock := o.locks.Lock(id)
	defer unlock()

	doc, err := o.schemas.GetByID(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("load pending schema %s: %w", id, err)
	}
	if !doc.PendingDelete {
		return nil
	}
	return o.purge(ctx, doc)
}

// purge deletes doc's properties (absent ones count as done), then the
// document, then publishes "schema-deleted". Caller holds doc's lock.
func (o *Orchestrator) purge(ctx context.Context, doc model.Schema) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.concurrency)
	for _, pid := range doc.PropertyIDs {
		g.Go(func() error {
			if _, err := o.props.DeleteByID(gctx, pid); err != nil && !errors.Is(err, store.ErrNotFound) {
				return fmt.Errorf("delete property %s: %w", pid, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		slog.Warn("schema purge interrupted; will resume",
			"schema_id", doc.ID,
			"error", err,
		)
		return fmt.Errorf("purge schema %s: %w", doc.ID, err)
	}

	if _, err := o.schemas.DeleteByID(ctx, doc.ID); err != nil && !errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("delete schema %s: %w", doc.ID, err)
	}

	slog.Info("schema deleted",
		"schema_id", doc.ID,
		"schema_name", doc.Name,
		"properties", len(doc.PropertyIDs),
	)
	o.publish(ctx, notify.SchemaDeleted(doc.ID, doc.Name), doc.ID)
	return nil
}

// DeleteProperty removes one property from a schema and returns the
// updated aggregate.
//
// The entity is deleted before the aggregate is written. If the write
// fails the entity is re-created from its snapshot and the call fails
// with INVALID_VALUE_IN_SCHEMA.
//
// Errors before any mutation: INVALID_ID and NOT_FOUND for schemaID,
// PROPERTY_NOT_IN_SCHEMA when propertyID is not in the child list.
func (o *Orchestrator) DeleteProperty(ctx context.Context, schemaID, propertyID string) (agg model.Aggregate, err error) {
	ctx, finish := o.begin(ctx, WorkflowDeleteProperty, schemaID)
	defer finish(&err)

	unlock := o.locks.Lock(schemaID)
	defer unlock()

	doc, err := o.loadLive(ctx, schemaID)
	if err != nil {
		return model.Aggregate{}, err
	}

	idx := slices.Index(doc.PropertyIDs, propertyID)
	if idx < 0 {
		return model.Aggregate{}, &SchemaError{
			Code:       CodePropertyNotInSchema,
			Message:    "property is not in the schema",
			SchemaID:   schemaID,
			PropertyID: propertyID,
		}
	}

	before, err := o.resolve(ctx, doc)
	if err != nil {
		return model.Aggregate{}, err
	}

	j := &journal{}
	deleted, err := o.props.DeleteByID(ctx, propertyID)
	switch {
	case err == nil:
		j.recordDeleted(deleted)
	case errors.Is(err, store.ErrNotFound):
		// Already gone; only the child list needs fixing.
		slog.Warn("property entity already absent", "schema_id", schemaID, "property_id", propertyID)
	default:
		return model.Aggregate{}, fmt.Errorf("delete property %s: %w", propertyID, err)
	}

	next := doc.Clone()
	next.PropertyIDs = slices.Delete(next.PropertyIDs, idx, idx+1)
	next.UpdatedAt = o.now().UTC()
	stored, err := o.schemas.UpdateByID(ctx, schemaID, next)
	if err != nil {
		return model.Aggregate{}, o.abort(ctx, WorkflowDeleteProperty, schemaID,
			fmt.Errorf("persist schema %s: %w", schemaID, err), j)
	}

	slog.Info("property deleted",
		"schema_id", schemaID,
		"property_id", propertyID,
		"property_name", deleted.Name,
	)

	// Built from the pre-delete read so a committed delete never fails on
	// a later read.
	remaining := slices.DeleteFunc(before.Properties, func(p model.Property) bool {
		return p.ID == propertyID
	})
	agg = model.Aggregate{Schema: stored, Properties: remaining}

	o.publish(ctx, notify.PropertyDeleted(propertyID, deleted.Name, doc.Name), schemaID)
	return agg, nil
}
