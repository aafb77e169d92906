package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/aretw0/rewind/pkg/domain"
)

// Journal implements ports.Journal in memory.
// Safe for concurrent use.
type Journal struct {
	data map[string][]domain.JournalRecord
	mu   sync.RWMutex
}

// NewJournal creates a new in-memory journal.
func NewJournal() *Journal {
	return &Journal{
		data: make(map[string][]domain.JournalRecord),
	}
}

// Append stores the records in memory.
func (j *Journal) Append(ctx context.Context, sessionID string, records ...domain.JournalRecord) error {
	if len(records) == 0 {
		return nil
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	j.data[sessionID] = append(j.data[sessionID], records...)
	return nil
}

// Records returns a copy of the session's records.
func (j *Journal) Records(ctx context.Context, sessionID string) ([]domain.JournalRecord, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()

	records, ok := j.data[sessionID]
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	return append([]domain.JournalRecord(nil), records...), nil
}

// Delete removes the session's records.
func (j *Journal) Delete(ctx context.Context, sessionID string) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	delete(j.data, sessionID)
	return nil
}

// List returns the sessions with records, sorted.
func (j *Journal) List(ctx context.Context) ([]string, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()

	sessions := make([]string, 0, len(j.data))
	for id := range j.data {
		sessions = append(sessions, id)
	}
	sort.Strings(sessions)
	return sessions, nil
}
