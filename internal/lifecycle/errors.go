package lifecycle

import "errors"

// Advance failures. Callers distinguish them with errors.Is.
var (
	ErrNotFound        = errors.New("project not found")
	ErrForbidden       = errors.New("insufficient role for the next phase")
	ErrAlreadyTerminal = errors.New("project is already in its final phase")
	ErrConflict        = errors.New("project phase changed during the request")
	ErrUnknownPhase    = errors.New("project status is not a known phase")
)
