package snapshot

import "context"

// Backend persists and retrieves Snapshots (spec.md §1 Non-goals:
// "the persistence backend... is a caller-provided collaborator, not
// part of the core contract"). This package's Manager is backend-
// agnostic; SQLiteBackend and MySQLBackend are reference
// implementations for tests and demos.
type Backend interface {
	// Save persists snap, keyed by (RunID, Label). Saving with the same
	// (RunID, Label) pair again overwrites the prior entry.
	Save(ctx context.Context, snap Snapshot) error

	// Load retrieves the snapshot saved under (runID, label).
	Load(ctx context.Context, runID, label string) (Snapshot, error)

	// List returns every snapshot saved for runID, ordered oldest first.
	List(ctx context.Context, runID string) ([]Snapshot, error)

	// Delete removes the snapshot saved under (runID, label).
	Delete(ctx context.Context, runID, label string) error
}

// notFoundError is returned by Load when no snapshot matches.
type notFoundError struct{ runID, label string }

func (e *notFoundError) Error() string {
	return "snapshot: no snapshot for run " + e.runID + " label " + e.label
}

// IsNotFound reports whether err is a Backend's "no such snapshot"
// error, regardless of backend implementation.
func IsNotFound(err error) bool {
	_, ok := err.(*notFoundError)
	return ok
}

func newNotFoundError(runID, label string) error { return &notFoundError{runID: runID, label: label} }
