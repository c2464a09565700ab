package reservo

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrorType classifies a Failure so callers can pick a retry policy.
type ErrorType string

const (
	// BusinessError is an expected rule violation. Retrying against the same
	// state yields the same failure.
	BusinessError ErrorType = "BusinessError"

	// TechnicalError is an unexpected collaborator or data fault.
	TechnicalError ErrorType = "TechnicalError"
)

// Result is the outcome of a decision: either Success or *Failure.
type Result interface {
	isResult()
}

// Success carries the events produced by an accepted command.
type Success struct {
	Events []Event `json:"events"`
}

func (Success) isResult() {}

// Failure describes a rejected command.
type Failure struct {
	Input     Command   `json:"input"`
	ErrorType ErrorType `json:"errorType"`
	Errors    StateMap  `json:"errors"`
}

func (*Failure) isResult() {}

// NewBusinessFailure creates a business failure with a single error message.
func NewBusinessFailure(input Command, message string) *Failure {
	return &Failure{Input: input, ErrorType: BusinessError, Errors: ErrorState(message)}
}

// NewTechnicalFailure creates a technical failure carrying errors.
func NewTechnicalFailure(input Command, errs StateMap) *Failure {
	return &Failure{Input: input, ErrorType: TechnicalError, Errors: errs}
}

// technicalFailureFromError converts a Go error into a technical failure.
// Field errors also record the offending field name.
func technicalFailureFromError(input Command, err error) *Failure {
	errs := ErrorState(err.Error())
	var fe *FieldError
	if errors.As(err, &fe) {
		errs = errs.WithString("field", fe.Field)
	}
	return NewTechnicalFailure(input, errs)
}

// Message returns the error marker text, if any.
func (f *Failure) Message() string {
	return f.Errors.ErrorMessage()
}

// IsBusiness reports whether the failure is a business rule violation.
func (f *Failure) IsBusiness() bool { return f.ErrorType == BusinessError }

// IsTechnical reports whether the failure is a technical fault.
func (f *Failure) IsTechnical() bool { return f.ErrorType == TechnicalError }

// Error implements error so a Failure can travel through error-returning APIs.
func (f *Failure) Error() string {
	return fmt.Sprintf("reservo: %s for %s: %s", f.ErrorType, f.Input.Kind, f.Message())
}

// IsSuccess reports whether r is a Success.
func IsSuccess(r Result) bool {
	_, ok := r.(Success)
	return ok
}

// AsSuccess returns r as a Success.
func AsSuccess(r Result) (Success, bool) {
	s, ok := r.(Success)
	return s, ok
}

// AsFailure returns r as a *Failure.
func AsFailure(r Result) (*Failure, bool) {
	f, ok := r.(*Failure)
	return f, ok && f != nil
}

// resultJSON is the tagged JSON form of a Result.
type resultJSON struct {
	Outcome string   `json:"outcome"`
	Events  []Event  `json:"events,omitempty"`
	Failure *Failure `json:"failure,omitempty"`
}

// MarshalResult encodes a Result with an explicit outcome tag.
func MarshalResult(r Result) ([]byte, error) {
	switch v := r.(type) {
	case Success:
		return json.Marshal(resultJSON{Outcome: "success", Events: v.Events})
	case *Failure:
		return json.Marshal(resultJSON{Outcome: "failure", Failure: v})
	default:
		return nil, fmt.Errorf("reservo: cannot marshal result of type %T", r)
	}
}

// UnmarshalResult decodes a Result produced by MarshalResult.
func UnmarshalResult(data []byte) (Result, error) {
	var raw resultJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	switch raw.Outcome {
	case "success":
		return Success{Events: raw.Events}, nil
	case "failure":
		if raw.Failure == nil {
			return nil, fmt.Errorf("reservo: failure result without body")
		}
		return raw.Failure, nil
	default:
		return nil, fmt.Errorf("reservo: unknown result outcome %q", raw.Outcome)
	}
}
