package ports

import (
	"context"
	"time"
)

// UnlockFunc releases a lock obtained from a DistributedLocker.
type UnlockFunc func(ctx context.Context) error

// DistributedLocker serializes mutations of one session history across processes.
// The session manager takes it around every Undo, Redo and recorded change, so that
// replicas sharing a journal never interleave edits of the same session.
type DistributedLocker interface {
	// Lock blocks until key is held or ctx is done.
	// The lock expires after ttl if the holder never releases it.
	Lock(ctx context.Context, key string, ttl time.Duration) (UnlockFunc, error)
}
