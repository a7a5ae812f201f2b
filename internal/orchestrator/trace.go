package orchestrator

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/roach88/schemata/internal/observability"
)

// begin starts the span and timer for a workflow. The returned finish
// records the outcome from *errp and must be deferred:
//
//	ctx, finish := o.begin(ctx, WorkflowCreate, id)
//	defer finish(&err)
func (o *Orchestrator) begin(ctx context.Context, workflow, schemaID string) (context.Context, func(errp *error)) {
	start := time.Now()
	ctx, span := o.tracer.Start(ctx, "orchestrator."+workflow,
		trace.WithAttributes(
			attribute.String("schemata.workflow", workflow),
			attribute.String("schemata.schema_id", schemaID),
		),
	)

	return ctx, func(errp *error) {
		var err error
		if errp != nil {
			err = *errp
		}
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, string(CodeOf(err)))
		}
		span.End()
		observability.RecordWorkflow(workflow, err, time.Since(start))
	}
}
