package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/roach88/schemata/internal/model"
	"github.com/roach88/schemata/internal/notify"
	"github.com/roach88/schemata/internal/observability"
	"github.com/roach88/schemata/internal/store"
)

// AggregateStore holds schema documents.
// Implemented by store.SchemaStore and memory.SchemaStore.
type AggregateStore interface {
	Create(ctx context.Context, doc model.Schema) (model.Schema, error)
	GetByID(ctx context.Context, id string) (model.Schema, error)
	GetAll(ctx context.Context) ([]model.Schema, error)
	UpdateByID(ctx context.Context, id string, doc model.Schema) (model.Schema, error)
	DeleteByID(ctx context.Context, id string) (model.Schema, error)
}

// PropertyStore holds property entities.
// Implemented by store.PropertyStore and memory.PropertyStore.
type PropertyStore interface {
	Create(ctx context.Context, p model.Property) (model.Property, error)
	GetByID(ctx context.Context, id string) (model.Property, error)
	UpdateByID(ctx context.Context, id string, p model.Property) (model.Property, error)
	DeleteByID(ctx context.Context, id string) (model.Property, error)
	UpdatePropertyRef(ctx context.Context, oldName, newName string) (int64, error)
	List(ctx context.Context) ([]model.Property, error)
}

// Publisher accepts lifecycle events for asynchronous delivery.
// Implemented by notify.Notifier.
type Publisher interface {
	Publish(ctx context.Context, msg notify.Message) error
}

// DefaultConcurrency bounds the reconcile and purge fan-out.
const DefaultConcurrency = 8

// Workflow names used in logs, metrics and InconsistentStateError.
const (
	WorkflowCreate         = "create"
	WorkflowUpdate         = "update"
	WorkflowDeleteSchema   = "delete-schema"
	WorkflowDeleteProperty = "delete-property"
	WorkflowPurge          = "purge"
)

// Orchestrator runs the schema workflows.
//
// Thread-safety: all methods are safe for concurrent use.
type Orchestrator struct {
	schemas     AggregateStore
	props       PropertyStore
	events      Publisher
	now         func() time.Time
	concurrency int
	tracer      trace.Tracer

	locks  *keyedLock
	nameMu sync.Mutex
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithConcurrency bounds concurrent property operations per workflow.
// Values below 1 are ignored.
func WithConcurrency(n int) Option {
	return func(o *Orchestrator) {
		if n >= 1 {
			o.concurrency = n
		}
	}
}

// WithNow replaces the clock used for CreatedAt/UpdatedAt.
func WithNow(now func() time.Time) Option {
	return func(o *Orchestrator) {
		o.now = now
	}
}

// WithTracer replaces the tracer (default: the global provider's).
func WithTracer(t trace.Tracer) Option {
	return func(o *Orchestrator) {
		o.tracer = t
	}
}

// New creates an Orchestrator over the given collaborators.
func New(schemas AggregateStore, props PropertyStore, events Publisher, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		schemas:     schemas,
		props:       props,
		events:      events,
		now:         time.Now,
		concurrency: DefaultConcurrency,
		tracer:      observability.Tracer("github.com/roach88/schemata/internal/orchestrator"),
		locks:       newKeyedLock(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// GetByID returns the live aggregate with its properties resolved in
// child-list order.
func (o *Orchestrator) GetByID(ctx context.Context, id string) (model.Aggregate, error) {
	doc, err := o.loadLive(ctx, id)
	if err != nil {
		return model.Aggregate{}, err
	}
	return o.resolve(ctx, doc)
}

// GetAll returns every live schema document.
func (o *Orchestrator) GetAll(ctx context.Context) ([]model.Schema, error) {
	docs, err := o.schemas.GetAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("list schemas: %w", err)
	}
	live := make([]model.Schema, 0, len(docs))
	for _, doc := range docs {
		if !doc.PendingDelete {
			live = append(live, doc)
		}
	}
	return live, nil
}

// load fetches a schema document, pending or not, mapping store errors to
// INVALID_ID and NOT_FOUND.
func (o *Orchestrator) load(ctx context.Context, id string) (model.Schema, error) {
	doc, err := o.schemas.GetByID(ctx, id)
	switch {
	case err == nil:
		return doc, nil
	case errors.Is(err, store.ErrInvalidID):
		return model.Schema{}, &SchemaError{Code: CodeInvalidID, Message: "malformed schema id", SchemaID: id, Err: err}
	case errors.Is(err, store.ErrNotFound):
		return model.Schema{}, &SchemaError{Code: CodeNotFound, Message: "schema not found", SchemaID: id, Err: err}
	default:
		return model.Schema{}, fmt.Errorf("load schema %s: %w", id, err)
	}
}

// loadLive is load with pending-delete aggregates reported as NOT_FOUND.
func (o *Orchestrator) loadLive(ctx context.Context, id string) (model.Schema, error) {
	doc, err := o.load(ctx, id)
	if err != nil {
		return model.Schema{}, err
	}
	if doc.PendingDelete {
		return model.Schema{}, &SchemaError{Code: CodeNotFound, Message: "schema not found", SchemaID: id}
	}
	return doc, nil
}

// resolve loads the property entities named by doc's child list. A child
// whose entity is missing is logged and left out; Verify reports it.
func (o *Orchestrator) resolve(ctx context.Context, doc model.Schema) (model.Aggregate, error) {
	agg := model.Aggregate{Schema: doc, Properties: make([]model.Property, 0, len(doc.PropertyIDs))}
	for _, pid := range doc.PropertyIDs {
		p, err := o.props.GetByID(ctx, pid)
		if errors.Is(err, store.ErrNotFound) {
			slog.Warn("schema references missing property",
				"schema_id", doc.ID,
				"property_id", pid,
			)
			continue
		}
		if err != nil {
			return model.Aggregate{}, fmt.Errorf("resolve property %s: %w", pid, err)
		}
		agg.Properties = append(agg.Properties, p)
	}
	return agg, nil
}

// nameTaken reports whether a schema other than exceptID uses name.
// Pending-delete schemas still reserve their name.
// Caller must hold o.nameMu.
func (o *Orchestrator) nameTaken(ctx context.Context, name, exceptID string) (bool, error) {
	docs, err := o.schemas.GetAll(ctx)
	if err != nil {
		return false, fmt.Errorf("check schema name: %w", err)
	}
	for _, doc := range docs {
		if doc.ID != exceptID && doc.Name == name {
			return true, nil
		}
	}
	return false, nil
}

// publish hands msg to the publisher. Failures are logged only: the
// aggregate is already committed.
func (o *Orchestrator) publish(ctx context.Context, msg notify.Message, schemaID string) {
	if err := o.events.Publish(ctx, msg); err != nil {
		observability.RecordDelivery(string(msg.Topic), observability.OutcomeDropped)
		slog.Error("publish failed; aggregate remains committed",
			"topic", string(msg.Topic),
			"schema_id", schemaID,
			"error", err,
		)
	}
}

// validateProperties checks names and types of a submitted property list
// and returns normalized copies carrying schemaName as back-reference.
func validateProperties(props []model.Property, schemaName string) ([]model.Property, error) {
	out := make([]model.Property, len(props))
	for i, p := range props {
		p = p.Clone()
		p.Name = model.NormalizeName(p.Name)
		if p.Name == "" {
			return nil, newError(CodeInvalidValueInSchema, "property %d: name is required", i)
		}
		if err := p.Type.Validate(); err != nil {
			return nil, &SchemaError{
				Code:       CodeInvalidValueInSchema,
				Message:    fmt.Sprintf("property %q: %v", p.Name, err),
				PropertyID: p.ID,
				Err:        err,
			}
		}
		p.SchemaName = schemaName
		out[i] = p
	}
	if dups := model.DuplicatePropertyNames(out); len(dups) > 0 {
		return nil, newError(CodeDuplicatePropertyName, "duplicate property name %q", dups[0])
	}
	return out, nil
}

// validateSchemaName normalizes name and rejects an empty result.
func validateSchemaName(name string) (string, error) {
	name = model.NormalizeName(name)
	if name == "" {
		return "", newError(CodeInvalidValueInSchema, "schema name is required")
	}
	return name, nil
}
