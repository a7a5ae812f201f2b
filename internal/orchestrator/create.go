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

// Create creates a schema and its properties and returns the committed
// aggregate.
//
// props must not be nil (an empty list is valid). Client-supplied
// property IDs and back-references are ignored. Properties are created
// one at a time, so a failure only has to undo the prefix already
// created. A "schema-created" event is published after commit.
//
// Errors:
//   - INVALID_VALUE_IN_SCHEMA: nil list, empty name or invalid type
//   - DUPLICATE_PROPERTY_NAME: two submitted properties share a name
//   - DUPLICATE_SCHEMA_NAME: the schema name is taken
//   - *InconsistentStateError: the rollback itself failed
//
// Any other store failure is returned wrapped, after the properties
// created so far have been deleted.
func (o *Orchestrator) Create(ctx context.Context, desc model.SchemaDescriptor, props []model.Property) (agg model.Aggregate, err error) {
	ctx, finish := o.begin(ctx, WorkflowCreate, "")
	defer finish(&err)

	if props == nil {
		return model.Aggregate{}, newError(CodeInvalidValueInSchema, "property list is required")
	}
	name, err := validateSchemaName(desc.Name)
	if err != nil {
		return model.Aggregate{}, err
	}
	wanted, err := validateProperties(props, name)
	if err != nil {
		return model.Aggregate{}, err
	}
	for i := range wanted {
		wanted[i].ID = ""
	}

	o.nameMu.Lock()
	defer o.nameMu.Unlock()

	taken, err := o.nameTaken(ctx, name, "")
	if err != nil {
		return model.Aggregate{}, err
	}
	if taken {
		return model.Aggregate{}, newError(CodeDuplicateSchemaName, "schema name %q is taken", name)
	}

	j := &journal{}
	created := make([]model.Property, 0, len(wanted))
	for _, p := range wanted {
		stored, err := o.props.Create(ctx, p)
		if err != nil {
			return model.Aggregate{}, o.reraise(ctx, WorkflowCreate, "",
				fmt.Errorf("create property %q: %w", p.Name, err), j)
		}
		j.recordCreated(stored.ID)
		created = append(created, stored)
	}

	ids := make([]string, len(created))
	for i, p := range created {
		ids[i] = p.ID
	}
	now := o.now().UTC()
	doc, err := o.schemas.Create(ctx, model.Schema{
		Name:        name,
		PropertyIDs: ids,
		CreatedAt:   now,
		UpdatedAt:   now,
	})
	if err != nil {
		if errors.Is(err, store.ErrDuplicateName) {
			err = &SchemaError{Code: CodeDuplicateSchemaName, Message: fmt.Sprintf("schema name %q is taken", name), Err: err}
		} else {
			err = fmt.Errorf("persist schema %q: %w", name, err)
		}
		return model.Aggregate{}, o.reraise(ctx, WorkflowCreate, "", err, j)
	}

	agg = model.Aggregate{Schema: doc, Properties: created}
	slog.Info("schema created",
		"schema_id", doc.ID,
		"schema_name", doc.Name,
		"properties", len(created),
	)

	o.publish(ctx, notify.SchemaCreated(agg), doc.ID)
	return agg, nil
}
