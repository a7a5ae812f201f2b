package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/roach88/schemata/internal/model"
	"github.com/roach88/schemata/internal/notify"
	"github.com/roach88/schemata/internal/store"
)

// UpdateByID replaces the schema's name and property list with draft and
// returns the reloaded aggregate.
//
// Draft properties with an ID update the existing child of that ID;
// properties without one are created; existing children missing from the
// draft are deleted. A rename is propagated to every remaining property's
// back-reference. Any failure after the first mutation rolls everything
// back and fails with INVALID_VALUE_IN_SCHEMA.
//
// Errors before any mutation:
//   - INVALID_ID, NOT_FOUND: id
//   - INVALID_VALUE_IN_SCHEMA: nil list, empty name, invalid type, or a
//     repeated property ID
//   - DUPLICATE_PROPERTY_NAME, DUPLICATE_SCHEMA_NAME
//   - PROPERTY_NOT_IN_SCHEMA: a draft property ID not in the child list
func (o *Orchestrator) UpdateByID(ctx context.Context, id string, draft model.SchemaDraft) (agg model.Aggregate, err error) {
	ctx, finish := o.begin(ctx, WorkflowUpdate, id)
	defer finish(&err)

	unlock := o.locks.Lock(id)
	defer unlock()

	prev, err := o.loadLive(ctx, id)
	if err != nil {
		return model.Aggregate{}, err
	}

	if draft.Properties == nil {
		return model.Aggregate{}, newError(CodeInvalidValueInSchema, "property list is required")
	}
	name, err := validateSchemaName(draft.Name)
	if err != nil {
		return model.Aggregate{}, err
	}
	// Reconciled properties keep the previous back-reference; a rename is
	// applied afterwards in one UpdatePropertyRef.
	desired, err := validateProperties(draft.Properties, prev.Name)
	if err != nil {
		return model.Aggregate{}, err
	}
	p, err := diff(prev.PropertyIDs, desired)
	if err != nil {
		var se *SchemaError
		if errors.As(err, &se) {
			se.SchemaID = id
		}
		return model.Aggregate{}, err
	}

	renamed := name != prev.Name
	if renamed {
		o.nameMu.Lock()
		defer o.nameMu.Unlock()

		taken, err := o.nameTaken(ctx, name, id)
		if err != nil {
			return model.Aggregate{}, err
		}
		if taken {
			return model.Aggregate{}, &SchemaError{
				Code:     CodeDuplicateSchemaName,
				Message:  fmt.Sprintf("schema name %q is taken", name),
				SchemaID: id,
			}
		}
	}

	prevAgg, err := o.resolve(ctx, prev)
	if err != nil {
		return model.Aggregate{}, err
	}

	j := &journal{}
	created, err := o.reconcile(ctx, p, j)
	if err != nil {
		return model.Aggregate{}, o.abort(ctx, WorkflowUpdate, id, err, j)
	}

	if renamed {
		if _, err := o.props.UpdatePropertyRef(ctx, prev.Name, name); err != nil {
			return model.Aggregate{}, o.abort(ctx, WorkflowUpdate, id,
				fmt.Errorf("propagate rename: %w", err), j)
		}
		j.recordRename(prev.Name, name)
	}

	next := prev.Clone()
	next.Name = name
	createdIDs := make([]string, len(created))
	for i, c := range created {
		createdIDs[i] = c.ID
	}
	next.PropertyIDs = p.childIDs(createdIDs)
	next.UpdatedAt = o.now().UTC()
	stored, err := o.schemas.UpdateByID(ctx, id, next)
	if err != nil {
		if errors.Is(err, store.ErrDuplicateName) {
			err = &SchemaError{Code: CodeDuplicateSchemaName, Message: fmt.Sprintf("schema name %q is taken", name), SchemaID: id, Err: err}
		} else {
			err = fmt.Errorf("persist schema %s: %w", id, err)
		}
		return model.Aggregate{}, o.abort(ctx, WorkflowUpdate, id, err, j)
	}

	slog.Info("schema updated",
		"schema_id", id,
		"schema_name", name,
		"updated", len(p.updates),
		"deleted", len(p.deletes),
		"created", len(p.creates),
		"renamed", renamed,
	)

	agg, err = o.GetByID(ctx, id)
	if err != nil {
		// The update is committed; report what was written.
		slog.Warn("reload after update failed; using written aggregate",
			"schema_id", id,
			"error", err,
		)
		agg = p.written(stored, created)
	}

	o.publish(ctx, notify.SchemaUpdated(agg, prevAgg), id)
	return agg, nil
}
