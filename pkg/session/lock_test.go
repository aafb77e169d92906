package session

import (
	"context"
	"fmt"
	"testing"

	"github.com/aretw0/rewind"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManager_LockLifecycle(t *testing.T) {
	mgr := NewManager(nil)
	ctx := context.Background()
	count := 1000

	for i := 0; i < count; i++ {
		sid := fmt.Sprintf("session-%d", i)
		require.NoError(t, mgr.Open(ctx, sid))
		require.NoError(t, mgr.Close(ctx, sid))
	}

	assert.Empty(t, mgr.locks, "locks must be released once no caller holds them")
	assert.Empty(t, mgr.sessions)
}

func TestManager_PendingDroppedWithoutJournal(t *testing.T) {
	mgr := NewManager(nil)
	ctx := context.Background()

	err := mgr.Do(ctx, "s", func(ctx context.Context, ws *rewind.Workspace) error {
		doc, err := ws.Create("doc", "d")
		if err != nil {
			return err
		}
		return doc.Set("title", "t")
	})
	require.NoError(t, err)
	assert.Empty(t, mgr.sessions["s"].pending)
}
