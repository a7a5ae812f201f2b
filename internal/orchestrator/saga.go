package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/roach88/schemata/internal/model"
	"github.com/roach88/schemata/internal/observability"
	"github.com/roach88/schemata/internal/store"
)

// journal records the property mutations a workflow has applied so they
// can be compensated. Only successful mutations are recorded.
//
// Thread-safety: safe for concurrent use by reconcile workers.
type journal struct {
	mu      sync.Mutex
	created []string
	updated []model.Property // pre-update snapshots
	deleted []model.Property // pre-delete snapshots
	rename  *rename
}

type rename struct {
	from, to string
}

func (j *journal) recordCreated(id string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.created = append(j.created, id)
}

func (j *journal) recordUpdated(snapshot model.Property) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.updated = append(j.updated, snapshot)
}

func (j *journal) recordDeleted(snapshot model.Property) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.deleted = append(j.deleted, snapshot)
}

func (j *journal) recordRename(from, to string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.rename = &rename{from: from, to: to}
}

func (j *journal) empty() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return len(j.created) == 0 && len(j.updated) == 0 && len(j.deleted) == 0 && j.rename == nil
}

// compensate undoes the journal in reverse of the forward order and
// returns every compensating action that failed. It runs every step even
// after a failure, and ignores ctx cancellation.
func (o *Orchestrator) compensate(ctx context.Context, workflow, schemaID string, j *journal) []error {
	ctx = context.WithoutCancel(ctx)

	j.mu.Lock()
	created := slices.Clone(j.created)
	updated := slices.Clone(j.updated)
	deleted := slices.Clone(j.deleted)
	rn := j.rename
	j.mu.Unlock()

	var failures []error
	fail := func(err error) {
		slog.Error("compensation step failed",
			"workflow", workflow,
			"schema_id", schemaID,
			"error", err,
		)
		failures = append(failures, err)
	}

	// Newest first so a prefix of creates unwinds back to front.
	for i := len(created) - 1; i >= 0; i-- {
		id := created[i]
		slog.Warn("compensating: delete created property", "workflow", workflow, "schema_id", schemaID, "property_id", id)
		if _, err := o.props.DeleteByID(ctx, id); err != nil && !errors.Is(err, store.ErrNotFound) {
			fail(fmt.Errorf("delete created property %s: %w", id, err))
		}
	}

	for _, snap := range updated {
		slog.Warn("compensating: restore updated property", "workflow", workflow, "schema_id", schemaID, "property_id", snap.ID)
		if _, err := o.props.UpdateByID(ctx, snap.ID, snap); err != nil {
			fail(fmt.Errorf("restore property %s: %w", snap.ID, err))
		}
	}

	for _, snap := range deleted {
		slog.Warn("compensating: re-create deleted property", "workflow", workflow, "schema_id", schemaID, "property_id", snap.ID)
		if _, err := o.props.Create(ctx, snap); err != nil && !errors.Is(err, store.ErrDuplicateID) {
			fail(fmt.Errorf("re-create property %s: %w", snap.ID, err))
		}
	}

	if rn != nil {
		slog.Warn("compensating: reverse back-reference rename", "workflow", workflow, "schema_id", schemaID, "from", rn.to, "to", rn.from)
		if _, err := o.props.UpdatePropertyRef(ctx, rn.to, rn.from); err != nil {
			fail(fmt.Errorf("reverse rename %q -> %q: %w", rn.to, rn.from, err))
		}
	}

	return failures
}

// abort compensates j and builds the workflow's error. After a clean
// rollback a *SchemaError cause is returned as is and any other cause is
// masked as INVALID_VALUE_IN_SCHEMA. A failed rollback yields an
// *InconsistentStateError.
func (o *Orchestrator) abort(ctx context.Context, workflow, schemaID string, cause error, j *journal) error {
	var result error = rolledBack(workflow, schemaID, cause)
	var se *SchemaError
	if errors.As(cause, &se) {
		result = cause
	}
	return o.rollback(ctx, workflow, schemaID, cause, result, j)
}

// reraise compensates j and returns cause unchanged after a clean
// rollback. A failed rollback yields an *InconsistentStateError.
func (o *Orchestrator) reraise(ctx context.Context, workflow, schemaID string, cause error, j *journal) error {
	return o.rollback(ctx, workflow, schemaID, cause, cause, j)
}

func (o *Orchestrator) rollback(ctx context.Context, workflow, schemaID string, cause, result error, j *journal) error {
	slog.Warn("workflow failed, compensating",
		"workflow", workflow,
		"schema_id", schemaID,
		"error", cause,
	)
	if j.empty() {
		return result
	}

	failures := o.compensate(ctx, workflow, schemaID, j)
	observability.RecordCompensation(workflow, len(failures) > 0)
	if len(failures) > 0 {
		slog.Error("compensation incomplete; stores may be inconsistent",
			"workflow", workflow,
			"schema_id", schemaID,
			"failures", len(failures),
		)
		return &InconsistentStateError{
			Workflow: workflow,
			SchemaID: schemaID,
			Cause:    result,
			Failures: failures,
		}
	}
	return result
}
