package ports

import (
	"context"

	"github.com/aretw0/rewind/pkg/domain"
)

// Journal persists the lifecycle records produced by a session's undo history.
// Records are append-only; a session exists once a record was appended for it.
type Journal interface {
	// Append stores records for the given session ID, preserving their order.
	Append(ctx context.Context, sessionID string, records ...domain.JournalRecord) error

	// Records returns every record of a session in append order.
	// Returns domain.ErrSessionNotFound if nothing was appended for the session.
	Records(ctx context.Context, sessionID string) ([]domain.JournalRecord, error)

	// Delete removes all records of a session.
	Delete(ctx context.Context, sessionID string) error

	// List returns the IDs of the sessions that have records.
	List(ctx context.Context) ([]string, error)
}
