package domain

import "fmt"

// Error types for consistent error handling across the engine.

// ErrValidation indicates a validation error (bad input).
type ErrValidation struct {
	Field   string
	Message string
}

func (e *ErrValidation) Error() string {
	return fmt.Sprintf("validation error on '%s': %s", e.Field, e.Message)
}

// ErrNotFound indicates a resource was not found.
type ErrNotFound struct {
	Resource string
	ID       string
}

func (e *ErrNotFound) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

// ErrStorage indicates a failure of the underlying persistence layer.
// The cause is kept verbatim; callers decide whether to retry.
type ErrStorage struct {
	Op  string
	Err error
}

func (e *ErrStorage) Error() string {
	return fmt.Sprintf("storage error [%s]: %v", e.Op, e.Err)
}

func (e *ErrStorage) Unwrap() error {
	return e.Err
}

// ErrCircuitOpen indicates the circuit breaker in front of the store is open.
type ErrCircuitOpen struct {
	Service string
}

func (e *ErrCircuitOpen) Error() string {
	return fmt.Sprintf("circuit breaker open for service: %s", e.Service)
}

// ErrNoDefaultProfile is returned when an org has no active default profile.
// Callers must fall back to explicit profile selection.
type ErrNoDefaultProfile struct {
	OrgID string
}

func (e *ErrNoDefaultProfile) Error() string {
	return fmt.Sprintf("no active default profile for org %s", e.OrgID)
}

// ErrAmbiguousDefault is returned when more than one active profile of an
// org is flagged as default. The engine never picks a winner.
type ErrAmbiguousDefault struct {
	OrgID string
	Count int
}

func (e *ErrAmbiguousDefault) Error() string {
	return fmt.Sprintf("org %s has %d active default profiles", e.OrgID, e.Count)
}

// ErrInactiveProfile is returned when an inactive profile is resolved for export.
type ErrInactiveProfile struct {
	ID string
}

func (e *ErrInactiveProfile) Error() string {
	return fmt.Sprintf("profile %s is inactive", e.ID)
}

// ErrUnauthorized indicates invalid credentials or token.
type ErrUnauthorized struct {
	Message string
}

func (e *ErrUnauthorized) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return "unauthorized"
}
