package reservo

import (
	"errors"
	"fmt"
)

// Sentinel errors for common error conditions.
// Use errors.Is() to check for these errors.
var (
	// ErrFieldMissing indicates a required field is absent from a StateMap.
	ErrFieldMissing = errors.New("reservo: field missing")

	// ErrFieldType indicates a field holds a value of the wrong kind.
	ErrFieldType = errors.New("reservo: field has wrong type")

	// ErrUnknownCommand indicates a command kind outside the decision table.
	ErrUnknownCommand = errors.New("reservo: unknown command kind")

	// ErrCollaborator indicates a state store or sink call failed.
	ErrCollaborator = errors.New("reservo: collaborator failed")

	// ErrStateRead indicates the state store could not produce a state.
	ErrStateRead = errors.New("reservo: state read failed")

	// ErrNilCollaborator indicates the orchestrator was built without a collaborator.
	ErrNilCollaborator = errors.New("reservo: nil collaborator")

	// ErrCommandAlreadyProcessed indicates a command id was already handled.
	ErrCommandAlreadyProcessed = errors.New("reservo: command already processed")

	// ErrHandlerPanicked indicates the handle chain panicked.
	ErrHandlerPanicked = errors.New("reservo: handler panicked")
)

// FieldError describes a failed typed lookup on a StateMap.
type FieldError struct {
	Field string
	Want  Kind
	Got   Kind
	cause error
}

// Error returns the error message.
func (e *FieldError) Error() string {
	if errors.Is(e.cause, ErrFieldType) {
		return fmt.Sprintf("reservo: field %q must be %s, got %s", e.Field, e.Want, e.Got)
	}
	return fmt.Sprintf("reservo: field %q not found", e.Field)
}

// Is reports whether this error matches the target error.
func (e *FieldError) Is(target error) bool {
	return target == e.cause
}

// Unwrap returns the underlying sentinel.
func (e *FieldError) Unwrap() error {
	return e.cause
}

// NewFieldMissingError creates a FieldError for an absent field.
func NewFieldMissingError(field string) *FieldError {
	return &FieldError{Field: field, cause: ErrFieldMissing}
}

// NewFieldTypeError creates a FieldError for a field of the wrong kind.
func NewFieldTypeError(field string, want, got Kind) *FieldError {
	return &FieldError{Field: field, Want: want, Got: got, cause: ErrFieldType}
}

// CollaboratorError records which collaborator call failed during Handle.
type CollaboratorError struct {
	// Operation is one of "get_state", "publish_event", "publish_failure", "set_state".
	Operation    string
	AggregateKey string
	Cause        error
}

// Error returns the error message.
func (e *CollaboratorError) Error() string {
	return fmt.Sprintf("reservo: %s for aggregate %q failed: %v", e.Operation, e.AggregateKey, e.Cause)
}

// Is reports whether this error matches the target error.
func (e *CollaboratorError) Is(target error) bool {
	return target == ErrCollaborator
}

// Unwrap returns the underlying cause.
func (e *CollaboratorError) Unwrap() error {
	return e.Cause
}

// NewCollaboratorError creates a new CollaboratorError.
func NewCollaboratorError(op, key string, cause error) *CollaboratorError {
	return &CollaboratorError{Operation: op, AggregateKey: key, Cause: cause}
}

// PanicError provides detailed information about a panic in the handle chain.
type PanicError struct {
	CommandKind string
	Value       interface{}
	Stack       string
}

// Error returns the error message.
func (e *PanicError) Error() string {
	return fmt.Sprintf("reservo: handler panicked while processing %q: %v", e.CommandKind, e.Value)
}

// Is reports whether this error matches the target error.
func (e *PanicError) Is(target error) bool {
	return target == ErrHandlerPanicked
}

// Unwrap returns the underlying error for errors.Unwrap().
func (e *PanicError) Unwrap() error {
	return ErrHandlerPanicked
}

// NewPanicError creates a new PanicError.
func NewPanicError(kind string, value interface{}, stack string) *PanicError {
	return &PanicError{CommandKind: kind, Value: value, Stack: stack}
}
