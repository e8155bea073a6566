package domain

import (
	"errors"
	"fmt"
)

// Report validation errors.
var (
	ErrMissingIncidentID = errors.New("report is missing incident id")
	ErrScoreOutOfRange   = errors.New("report score outside the 1-5 range")
	ErrEmptyMissedStep   = errors.New("missed step must be a non-empty string")
	ErrMissingSummary    = errors.New("report is missing summary")
)

// ErrIngestInProgress is returned when a second ingestion run is
// attempted against a store that is already being updated.
var ErrIngestInProgress = errors.New("another ingestion run holds the store lock")

// GenerationErrorKind classifies per-incident generation failures.
type GenerationErrorKind string

const (
	// GenerationModelUnavailable marks LLM transport failures and timeouts.
	GenerationModelUnavailable GenerationErrorKind = "MODEL_UNAVAILABLE"
	// GenerationInvalidOutput marks responses that fail schema validation.
	GenerationInvalidOutput GenerationErrorKind = "INVALID_OUTPUT"
)

// GenerationError is fatal for one incident, never for the run. For
// InvalidOutput the raw model text is retained for diagnostics.
type GenerationError struct {
	Kind       GenerationErrorKind
	IncidentID string
	RawOutput  string
	Err        error
}

func (e *GenerationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] incident %s: %v", e.Kind, e.IncidentID, e.Err)
	}
	return fmt.Sprintf("[%s] incident %s", e.Kind, e.IncidentID)
}

func (e *GenerationError) Unwrap() error {
	return e.Err
}

// NewModelUnavailableError wraps an LLM transport or timeout failure.
func NewModelUnavailableError(incidentID string, err error) *GenerationError {
	return &GenerationError{Kind: GenerationModelUnavailable, IncidentID: incidentID, Err: err}
}

// NewInvalidOutputError wraps a schema violation, keeping the raw text.
func NewInvalidOutputError(incidentID, rawOutput string, err error) *GenerationError {
	return &GenerationError{Kind: GenerationInvalidOutput, IncidentID: incidentID, RawOutput: rawOutput, Err: err}
}

// ResourceUnavailableError is fatal for the whole run: a knowledge
// store, the LLM, or the incident source could not be opened. The run
// aborts before the watermark advances, so the same window is retried
// on the next external trigger.
type ResourceUnavailableError struct {
	Resource string
	Err      error
}

func (e *ResourceUnavailableError) Error() string {
	return fmt.Sprintf("resource %s unavailable: %v", e.Resource, e.Err)
}

func (e *ResourceUnavailableError) Unwrap() error {
	return e.Err
}

// DeliveryError is fatal for one incident's report only.
type DeliveryError struct {
	IncidentID string
	Err        error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("delivery failed for incident %s: %v", e.IncidentID, e.Err)
}

func (e *DeliveryError) Unwrap() error {
	return e.Err
}
