package core

import (
	"errors"
	"fmt"
	"slices"
)

// Error kinds. A *JobError always wraps exactly one of these.
var (
	ErrMissingField        = errors.New("missing required field")
	ErrInvalidEnum         = errors.New("invalid value")
	ErrInvalidParameter    = errors.New("invalid parameter")
	ErrUnsupportedLanguage = errors.New("unsupported language")
	ErrInvalidAudio        = errors.New("invalid audio")
	ErrGenerationFailed    = errors.New("generation failed")
	ErrInternal            = errors.New("internal error")
)

var kindNames = map[error]string{
	ErrMissingField:        "missing_field",
	ErrInvalidEnum:         "invalid_enum",
	ErrInvalidParameter:    "invalid_parameter",
	ErrUnsupportedLanguage: "unsupported_language",
	ErrInvalidAudio:        "invalid_audio",
	ErrGenerationFailed:    "generation_failed",
	ErrInternal:            "internal",
}

// JobError is the structured failure of a single job.
type JobError struct {
	Kind    error
	Message string
	// Field names the offending job field, when there is one.
	Field string
	// SupportedLanguages is only set for ErrUnsupportedLanguage.
	SupportedLanguages []string
	cause              error
}

func (e *JobError) Error() string {
	return e.Message
}

// Unwrap exposes both the kind and the underlying cause to errors.Is.
func (e *JobError) Unwrap() []error {
	if e.cause == nil {
		return []error{e.Kind}
	}

	return []error{e.Kind, e.cause}
}

// KindName returns the wire name of the error kind.
func (e *JobError) KindName() string {
	name, ok := kindNames[e.Kind]
	if !ok {
		return kindNames[ErrInternal]
	}

	return name
}

// ToResult converts the error into its wire envelope.
func (e *JobError) ToResult() *ErrorResult {
	return &ErrorResult{
		Error:              e.Message,
		Kind:               e.KindName(),
		SupportedLanguages: slices.Clone(e.SupportedLanguages),
	}
}

// MissingField reports an absent or empty required field.
func MissingField(field string) *JobError {
	return &JobError{
		Kind:    ErrMissingField,
		Message: fmt.Sprintf("Missing required field: '%s'", field),
		Field:   field,
	}
}

// InvalidEnum reports a value outside a field's allowed set.
func InvalidEnum(field, value string, allowed []string) *JobError {
	return &JobError{
		Kind:    ErrInvalidEnum,
		Message: fmt.Sprintf("Invalid %s: '%s'. Must be one of %v", field, value, allowed),
		Field:   field,
	}
}

// InvalidParameter reports a parameter of the wrong type or outside a hard bound.
func InvalidParameter(field, reason string) *JobError {
	return &JobError{
		Kind:    ErrInvalidParameter,
		Message: fmt.Sprintf("Invalid parameter '%s': %s", field, reason),
		Field:   field,
	}
}

// UnsupportedLanguage reports a language outside the backend's set and carries the set.
func UnsupportedLanguage(language string, supported []string) *JobError {
	return &JobError{
		Kind:               ErrUnsupportedLanguage,
		Message:            fmt.Sprintf("Unsupported language: '%s'", language),
		Field:              "language",
		SupportedLanguages: slices.Clone(supported),
	}
}

// InvalidAudio reports a malformed reference-audio payload.
func InvalidAudio(cause error) *JobError {
	return &JobError{
		Kind:    ErrInvalidAudio,
		Message: fmt.Sprintf("Invalid reference audio: %v", cause),
		Field:   "reference_audio",
		cause:   cause,
	}
}

// GenerationFailed reports a failure raised by the model capability.
func GenerationFailed(cause error) *JobError {
	return &JobError{
		Kind:    ErrGenerationFailed,
		Message: fmt.Sprintf("Generation failed: %v", cause),
		cause:   cause,
	}
}

// Internal reports an unanticipated failure without leaking its detail.
func Internal(message string, cause error) *JobError {
	return &JobError{
		Kind:    ErrInternal,
		Message: message,
		cause:   cause,
	}
}

// AsJobError extracts a *JobError from an error chain.
func AsJobError(err error) (*JobError, bool) {
	var jobErr *JobError
	if errors.As(err, &jobErr) {
		return jobErr, true
	}

	return nil, false
}
