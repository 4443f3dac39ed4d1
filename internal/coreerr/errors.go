// Package coreerr defines the error taxonomy the learning core uses to
// decide retry, park, or requeue behavior (see spec §7).
package coreerr

import "fmt"

// InputError marks a malformed strand, unknown kind, or missing required
// field. Never retried; the item is parked immediately.
type InputError struct {
	Reason string
	Cause  error
}

func (e *InputError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("input error: %s: %v", e.Reason, e.Cause)
	}
	return fmt.Sprintf("input error: %s", e.Reason)
}

func (e *InputError) Unwrap() error { return e.Cause }

// NewInput builds an InputError.
func NewInput(reason string, cause error) *InputError {
	return &InputError{Reason: reason, Cause: cause}
}

// TransientError marks a store timeout, LLM timeout, or network blip.
// Retried with jittered exponential backoff up to N attempts.
type TransientError struct {
	Reason string
	Cause  error
}

func (e *TransientError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("transient error: %s: %v", e.Reason, e.Cause)
	}
	return fmt.Sprintf("transient error: %s", e.Reason)
}

func (e *TransientError) Unwrap() error { return e.Cause }

// NewTransient builds a TransientError.
func NewTransient(reason string, cause error) *TransientError {
	return &TransientError{Reason: reason, Cause: cause}
}

// SchemaError marks an LLM response that failed validation against its
// declared schema. Retried up to K times with a hardened prompt, then
// parked alongside a braid_failed strand.
type SchemaError struct {
	TemplateID string
	Reason     string
	Cause      error
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("schema error in %s: %s", e.TemplateID, e.Reason)
}

func (e *SchemaError) Unwrap() error { return e.Cause }

// NewSchema builds a SchemaError.
func NewSchema(templateID, reason string, cause error) *SchemaError {
	return &SchemaError{TemplateID: templateID, Reason: reason, Cause: cause}
}

// ConflictError marks optimistic-concurrency failure on a resonance score
// update. Retried with a fresh read up to K times, then skipped.
type ConflictError struct {
	StrandID string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("version conflict updating strand %s", e.StrandID)
}

// NewConflict builds a ConflictError.
func NewConflict(strandID string) *ConflictError {
	return &ConflictError{StrandID: strandID}
}

// ResourceError marks a full queue or tripped backpressure. No code in
// this module constructs one, and the Coordinator does not limit itself
// to it: Handle returns its InputError and TransientError values to the
// Dispatcher, which retries or parks the item.
type ResourceError struct {
	Reason string
}

func (e *ResourceError) Error() string {
	return fmt.Sprintf("resource exhausted: %s", e.Reason)
}

// NewResource builds a ResourceError.
func NewResource(reason string) *ResourceError {
	return &ResourceError{Reason: reason}
}

// NotFoundError marks a lookup miss against the strand store.
type NotFoundError struct {
	ID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("not found: %s", e.ID)
}

// NewNotFound builds a NotFoundError.
func NewNotFound(id string) *NotFoundError {
	return &NotFoundError{ID: id}
}
