package services

import "errors"

// Error kinds surfaced by the udhaar engine. Callers wrap them with
// fmt.Errorf("%w: ...") and test with errors.Is.
var (
	// ErrValidation marks missing or malformed input, rejected before any state change.
	ErrValidation = errors.New("validation error")
	// ErrExternalService marks AI or transcription failures. It never reaches the user.
	ErrExternalService = errors.New("external service error")
	// ErrNotFound marks an unknown pending id, an empty ledger on undo or an unknown customer.
	ErrNotFound = errors.New("not found")
	// ErrConflict marks a second pending confirmation under the reject policy.
	ErrConflict = errors.New("conflict")
	// ErrPersistence marks a storage failure; the inbound message stays unprocessed.
	ErrPersistence = errors.New("persistence error")
)

// NotFoundError carries name suggestions for an unknown customer.
type NotFoundError struct {
	What        string
	Suggestions []string
}

func (e *NotFoundError) Error() string {
	return e.What + " not found"
}

func (e *NotFoundError) Unwrap() error {
	return ErrNotFound
}
