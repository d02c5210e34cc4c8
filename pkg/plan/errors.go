package plan

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a plan error for the retry envelope.
type ErrorKind string

const (
	// KindCompilation indicates the settings registry could not be rendered
	// for the target protocol version. Never retried.
	KindCompilation ErrorKind = "compilation"

	// KindRunFailure indicates the remote market never left its initial
	// created state.
	KindRunFailure ErrorKind = "run_failure"

	// KindTimeout indicates the configured execution timeout elapsed and a
	// stop was issued.
	KindTimeout ErrorKind = "timeout"

	// KindDeprovision indicates a partial failure removing the remote
	// market or scenario.
	KindDeprovision ErrorKind = "deprovision"

	// KindInvalidMarket indicates an illegal operation on a protected or
	// uninitialized market. Never retried.
	KindInvalidMarket ErrorKind = "invalid_market"

	// KindPlan is a general plan-domain failure.
	KindPlan ErrorKind = "plan"
)

// Error is the classified error type for plan-domain failures.
type Error struct {
	Kind    ErrorKind
	Message string

	// Tag and Field identify the offending setting for compilation errors.
	Tag   SettingTag
	Field string

	// ScenarioID and MarketID carry the remote identifiers involved, when
	// known.
	ScenarioID string
	MarketID   string

	Err error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("[%s] %s", e.Kind, e.Message)
	if e.Tag != "" {
		msg += fmt.Sprintf(" (tag=%s", e.Tag)
		if e.Field != "" {
			msg += fmt.Sprintf(", field=%s", e.Field)
		}
		msg += ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Retryable reports whether the outer retry envelope may re-run the plan
// after this error. Compilation errors indicate a caller/version mismatch
// and invalid-market errors indicate a caller mistake; neither can succeed
// on retry.
func (e *Error) Retryable() bool {
	switch e.Kind {
	case KindCompilation, KindInvalidMarket:
		return false
	}
	return true
}

// NewCompilationError builds a non-retryable error naming the setting tag and
// field that failed to render.
func NewCompilationError(tag SettingTag, field, message string) *Error {
	return &Error{Kind: KindCompilation, Tag: tag, Field: field, Message: message}
}

// NewRunFailure builds the error raised when a submitted plan never starts.
func NewRunFailure(message, scenarioID, marketID string) *Error {
	return &Error{Kind: KindRunFailure, Message: message, ScenarioID: scenarioID, MarketID: marketID}
}

// NewTimeoutExceeded builds the error raised when the execution timeout fires.
func NewTimeoutExceeded(message string) *Error {
	return &Error{Kind: KindTimeout, Message: message}
}

// NewDeprovisionError builds the error raised when plan teardown partially
// fails.
func NewDeprovisionError(message string, err error) *Error {
	return &Error{Kind: KindDeprovision, Message: message, Err: err}
}

// NewInvalidMarketError builds the error raised for illegal market
// operations.
func NewInvalidMarketError(message string) *Error {
	return &Error{Kind: KindInvalidMarket, Message: message}
}

// NewPlanError builds a general plan-domain error wrapping err.
func NewPlanError(message string, err error) *Error {
	return &Error{Kind: KindPlan, Message: message, Err: err}
}

// IsKind reports whether err is a plan error of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var pe *Error
	return errors.As(err, &pe) && pe.Kind == kind
}
