package ports

import (
	"context"
	"testing"
	"time"

	"github.com/aretw0/rewind/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunJournalContract runs a suite of tests to verify that a Journal implementation
// adheres to the defined interface contract.
func RunJournalContract(t *testing.T, journal Journal) {
	ctx := context.Background()
	sessionID := "contract-test-session-" + time.Now().Format("20060102150405")

	record := func(typ domain.JournalEventType, entry string, depth, current int) domain.JournalRecord {
		return domain.JournalRecord{
			Timestamp:   time.Now().UTC().Truncate(time.Millisecond),
			SessionID:   sessionID,
			Type:        typ,
			Entry:       entry,
			Significant: entry != "",
			Depth:       depth,
			Current:     current,
		}
	}

	t.Run("Append and Read", func(t *testing.T) {
		defer func() { _ = journal.Delete(ctx, sessionID) }()

		first := record(domain.JournalAdded, "Set name", 1, 0)
		second := record(domain.JournalUndid, "Set name", 1, -1)

		require.NoError(t, journal.Append(ctx, sessionID, first))
		require.NoError(t, journal.Append(ctx, sessionID, second))

		records, err := journal.Records(ctx, sessionID)
		require.NoError(t, err)
		require.Len(t, records, 2)
		assert.Equal(t, domain.JournalAdded, records[0].Type)
		assert.Equal(t, domain.JournalUndid, records[1].Type)
		assert.Equal(t, "Set name", records[1].Entry)
		assert.Equal(t, -1, records[1].Current)
		assert.True(t, first.Timestamp.Equal(records[0].Timestamp))
	})

	t.Run("Append Preserves Batch Order", func(t *testing.T) {
		defer func() { _ = journal.Delete(ctx, sessionID) }()

		require.NoError(t, journal.Append(ctx, sessionID,
			record(domain.JournalAdded, "a", 1, 0),
			record(domain.JournalAdded, "b", 2, 1),
			record(domain.JournalCleared, "", 0, -1),
		))

		records, err := journal.Records(ctx, sessionID)
		require.NoError(t, err)
		require.Len(t, records, 3)
		assert.Equal(t, "a", records[0].Entry)
		assert.Equal(t, "b", records[1].Entry)
		assert.Equal(t, domain.JournalCleared, records[2].Type)
	})

	t.Run("Empty Append", func(t *testing.T) {
		require.NoError(t, journal.Append(ctx, "empty-"+sessionID))
		_, err := journal.Records(ctx, "empty-"+sessionID)
		assert.ErrorIs(t, err, domain.ErrSessionNotFound)
	})

	t.Run("Read Non-Existent", func(t *testing.T) {
		_, err := journal.Records(ctx, "non-existent-"+sessionID)
		assert.ErrorIs(t, err, domain.ErrSessionNotFound)
	})

	t.Run("Delete", func(t *testing.T) {
		require.NoError(t, journal.Append(ctx, sessionID, record(domain.JournalAdded, "x", 1, 0)))

		require.NoError(t, journal.Delete(ctx, sessionID), "Delete should not return error")

		_, err := journal.Records(ctx, sessionID)
		assert.ErrorIs(t, err, domain.ErrSessionNotFound, "Records after Delete should return ErrSessionNotFound")
	})

	t.Run("List", func(t *testing.T) {
		id1 := sessionID + "-1"
		id2 := sessionID + "-2"
		_ = journal.Append(ctx, id1, record(domain.JournalAdded, "a", 1, 0))
		_ = journal.Append(ctx, id2, record(domain.JournalAdded, "b", 1, 0))

		defer func() {
			_ = journal.Delete(ctx, id1)
			_ = journal.Delete(ctx, id2)
		}()

		sessions, err := journal.List(ctx)
		require.NoError(t, err)
		assert.Contains(t, sessions, id1)
		assert.Contains(t, sessions, id2)
	})
}
