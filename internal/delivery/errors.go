package delivery

import "fmt"

// ValidationError means a photo submission failed its pre-flight checks.
// Nothing is queued; the caller is expected to fix the input and retry.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// PersistenceError means the pending queue itself could not be written.
// This is the last line of defense against data loss, so it is surfaced to
// the caller instead of being logged and swallowed.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("failed to persist %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}
