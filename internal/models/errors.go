package models

import "errors"

// Error taxonomy shared by the portal client, the repository and the reconciler.
// Producers wrap these with fmt.Errorf("%w: ...") and callers branch with errors.Is.
var (
	// ErrTransport network failure or unexpected HTTP status
	ErrTransport = errors.New("transport error")
	// ErrParse malformed or unexpectedly shaped remote payload
	ErrParse = errors.New("parse error")
	// ErrNotFound the portal confirmed the incident does not exist
	ErrNotFound = errors.New("incident not found")
	// ErrConflict incident_id already stored
	ErrConflict = errors.New("incident already exists")
	// ErrStorage database unavailable or write failed
	ErrStorage = errors.New("storage error")
	// ErrSchemaMissing required tables are not provisioned
	ErrSchemaMissing = errors.New("missing required database tables")
)

// IsRecoverable reports whether a per-incident failure may be skipped without aborting the run.
func IsRecoverable(err error) bool {
	return errors.Is(err, ErrNotFound)
}
