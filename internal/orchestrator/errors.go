package orchestrator

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorCode categorizes workflow errors.
type ErrorCode string

const (
	// CodeInvalidID indicates a malformed identity.
	CodeInvalidID ErrorCode = "INVALID_ID"

	// CodeNotFound indicates a well-formed identity with no live schema.
	CodeNotFound ErrorCode = "NOT_FOUND"

	// CodeDuplicateSchemaName indicates the schema name is taken.
	CodeDuplicateSchemaName ErrorCode = "DUPLICATE_SCHEMA_NAME"

	// CodeDuplicatePropertyName indicates two properties share a name.
	CodeDuplicatePropertyName ErrorCode = "DUPLICATE_PROPERTY_NAME"

	// CodePropertyNotInSchema indicates a property identity that is not
	// in the schema's child list.
	CodePropertyNotInSchema ErrorCode = "PROPERTY_NOT_IN_SCHEMA"

	// CodeInvalidValueInSchema indicates a validation failure, or a
	// mutation failure whose changes were rolled back.
	CodeInvalidValueInSchema ErrorCode = "INVALID_VALUE_IN_SCHEMA"

	// CodeInconsistentState indicates a rollback that did not complete.
	CodeInconsistentState ErrorCode = "INCONSISTENT_STATE"
)

// SchemaError is the error returned by orchestrator workflows.
//
// Match by code with errors.Is against the sentinels below:
//
//	if errors.Is(err, orchestrator.ErrNotFound) { ... }
type SchemaError struct {
	// Code identifies the error category.
	Code ErrorCode

	// Message is a human-readable description.
	Message string

	// SchemaID identifies the affected schema, if any.
	SchemaID string

	// PropertyID identifies the affected property, if any.
	PropertyID string

	// Err is the underlying cause. It is not part of Error() for
	// INVALID_VALUE_IN_SCHEMA after a rollback; callers see the generic
	// message while logs and errors.Is still reach the cause.
	Err error
}

// Error implements the error interface.
func (e *SchemaError) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Code))
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	switch {
	case e.SchemaID != "" && e.PropertyID != "":
		fmt.Fprintf(&b, " (schema=%s, property=%s)", e.SchemaID, e.PropertyID)
	case e.SchemaID != "":
		fmt.Fprintf(&b, " (schema=%s)", e.SchemaID)
	case e.PropertyID != "":
		fmt.Fprintf(&b, " (property=%s)", e.PropertyID)
	}
	return b.String()
}

// Unwrap returns the underlying cause.
func (e *SchemaError) Unwrap() error {
	return e.Err
}

// Is reports whether target is a SchemaError with the same code.
func (e *SchemaError) Is(target error) bool {
	t, ok := target.(*SchemaError)
	return ok && t.Code == e.Code
}

// Sentinels for errors.Is matching by code.
var (
	ErrInvalidID             = &SchemaError{Code: CodeInvalidID}
	ErrNotFound              = &SchemaError{Code: CodeNotFound}
	ErrDuplicateSchemaName   = &SchemaError{Code: CodeDuplicateSchemaName}
	ErrDuplicatePropertyName = &SchemaError{Code: CodeDuplicatePropertyName}
	ErrPropertyNotInSchema   = &SchemaError{Code: CodePropertyNotInSchema}
	ErrInvalidValueInSchema  = &SchemaError{Code: CodeInvalidValueInSchema}

	// ErrInconsistentState matches any *InconsistentStateError.
	ErrInconsistentState = errors.New("inconsistent state")
)

// InconsistentStateError reports a workflow whose compensation sequence
// failed: the stores may disagree until an operator (or `schemata check`)
// intervenes.
type InconsistentStateError struct {
	// Workflow names the failed workflow (create, update, delete-property).
	Workflow string

	// SchemaID identifies the affected schema, if known.
	SchemaID string

	// Cause is the error that triggered compensation.
	Cause error

	// Failures holds every compensating action that failed.
	Failures []error
}

// Error implements the error interface.
func (e *InconsistentStateError) Error() string {
	msg := fmt.Sprintf("%s: %s", CodeInconsistentState, e.Workflow)
	if e.SchemaID != "" {
		msg += fmt.Sprintf(" (schema=%s)", e.SchemaID)
	}
	msg += fmt.Sprintf(": %d compensation(s) failed", len(e.Failures))
	if e.Cause != nil {
		msg += fmt.Sprintf(" after: %v", e.Cause)
	}
	return msg
}

// Unwrap returns the cause and the compensation failures.
func (e *InconsistentStateError) Unwrap() []error {
	errs := make([]error, 0, len(e.Failures)+1)
	if e.Cause != nil {
		errs = append(errs, e.Cause)
	}
	return append(errs, e.Failures...)
}

// Is matches ErrInconsistentState.
func (e *InconsistentStateError) Is(target error) bool {
	return target == ErrInconsistentState
}

// CodeOf returns the code of the first SchemaError or
// InconsistentStateError in err's chain, or "" if there is none.
func CodeOf(err error) ErrorCode {
	var ie *InconsistentStateError
	if errors.As(err, &ie) {
		return CodeInconsistentState
	}
	var se *SchemaError
	if errors.As(err, &se) {
		return se.Code
	}
	return ""
}

// IsInconsistentState returns true if err carries an InconsistentStateError.
// Uses errors.As to handle wrapped errors.
func IsInconsistentState(err error) bool {
	var ie *InconsistentStateError
	return errors.As(err, &ie)
}

func newError(code ErrorCode, format string, args ...any) *SchemaError {
	return &SchemaError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// rolledBack is the masked error returned after a successful compensation.
func rolledBack(workflow, schemaID string, cause error) *SchemaError {
	return &SchemaError{
		Code:     CodeInvalidValueInSchema,
		Message:  workflow + " failed; changes were rolled back",
		SchemaID: schemaID,
		Err:      cause,
	}
}
