package session

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/aretw0/rewind"
	"github.com/aretw0/rewind/internal/logging"
	"github.com/aretw0/rewind/pkg/domain"
	"github.com/aretw0/rewind/pkg/observability"
	"github.com/aretw0/rewind/pkg/ports"
	"github.com/aretw0/rewind/pkg/undo"
)

// DefaultLockTTL bounds how long a distributed session lock is held.
const DefaultLockTTL = 30 * time.Second

// lockEntry holds the mutex and the reference count.
type lockEntry struct {
	mu   sync.Mutex
	refs int
}

// workspaceEntry is an open session: its workspace and the journal records not flushed yet.
type workspaceEntry struct {
	ws      *rewind.Workspace
	pending []domain.JournalRecord
}

// Manager orchestrates session access, ensuring safe concurrent operations.
// It uses Reference Counting to garbage collect unused locks.
type Manager struct {
	journal ports.Journal // Optional; nil disables journaling

	mu       sync.Mutex                 // Global lock for the maps
	locks    map[string]*lockEntry      // Map of active locks
	sessions map[string]*workspaceEntry // Map of open sessions

	locker        ports.DistributedLocker // Optional distributed locker
	lockTTL       time.Duration
	metrics       *observability.Metrics
	workspaceOpts []rewind.Option
	logger        *slog.Logger // Logger for internal events (like deferred errors)
	now           func() time.Time
}

// Option configures the Manager.
type Option func(*Manager)

// WithLocker enables distributed locking.
func WithLocker(locker ports.DistributedLocker) Option {
	return func(m *Manager) {
		m.locker = locker
	}
}

// WithLockTTL sets the TTL of distributed locks.
func WithLockTTL(ttl time.Duration) Option {
	return func(m *Manager) {
		if ttl > 0 {
			m.lockTTL = ttl
		}
	}
}

// WithLogger configures a logger for the Manager.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

// WithMetrics exports the history activity of every session.
func WithMetrics(metrics *observability.Metrics) Option {
	return func(m *Manager) {
		m.metrics = metrics
	}
}

// WithWorkspaceOptions applies opts to every workspace the Manager opens.
func WithWorkspaceOptions(opts ...rewind.Option) Option {
	return func(m *Manager) {
		m.workspaceOpts = append(m.workspaceOpts, opts...)
	}
}

// NewManager creates a new Session Manager journaling to journal (may be nil).
func NewManager(journal ports.Journal, opts ...Option) *Manager {
	m := &Manager{
		journal:  journal,
		locks:    make(map[string]*lockEntry),
		sessions: make(map[string]*workspaceEntry),
		lockTTL:  DefaultLockTTL,
		logger:   logging.NewNop(), // Default to no-op
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// acquire gets or creates a lock entry and increments its reference count.
// The caller MUST Lock the entry.mu, and then call release(sessionID) after unlocking.
func (m *Manager) acquire(sessionID string) *lockEntry {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, exists := m.locks[sessionID]
	if !exists {
		entry = &lockEntry{}
		m.locks[sessionID] = entry
	}
	entry.refs++
	return entry
}

// release decrements the reference count and deletes the entry if it reaches zero.
func (m *Manager) release(sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, exists := m.locks[sessionID]
	if !exists {
		return
	}

	entry.refs--
	if entry.refs <= 0 {
		delete(m.locks, sessionID)
	}
}

// WithLock executes a function while holding the lock for the session.
func (m *Manager) WithLock(ctx context.Context, sessionID string, fn func(context.Context) error) error {
	entry := m.acquire(sessionID)
	entry.mu.Lock()
	defer func() {
		entry.mu.Unlock()
		m.release(sessionID)
	}()

	if m.locker != nil {
		unlock, err := m.locker.Lock(ctx, sessionID, m.lockTTL)
		if err != nil {
			return fmt.Errorf("failed to acquire distributed lock: %w", err)
		}
		defer func() {
			if err := unlock(ctx); err != nil {
				m.logger.Warn("Failed to release distributed lock (will expire via TTL)",
					"session_id", sessionID,
					"err", err,
				)
			}
		}()
	}

	return fn(ctx)
}

// Open creates the session's workspace if it does not exist yet.
func (m *Manager) Open(ctx context.Context, sessionID string) error {
	return m.Do(ctx, sessionID, func(ctx context.Context, ws *rewind.Workspace) error {
		return nil
	})
}

// Do runs fn against the session's workspace, opening it if needed, while
// holding the session lock. History events produced by fn are journaled afterwards.
func (m *Manager) Do(ctx context.Context, sessionID string, fn func(context.Context, *rewind.Workspace) error) error {
	return m.WithLock(ctx, sessionID, func(ctx context.Context) error {
		entry := m.lookup(sessionID)
		if entry == nil {
			entry = m.create(sessionID)
		}
		err := fn(ctx, entry.ws)
		m.flush(ctx, sessionID, entry)
		return err
	})
}

// View runs fn against an existing session's workspace while holding the session lock.
// Returns domain.ErrSessionNotFound if the session is not open.
func (m *Manager) View(ctx context.Context, sessionID string, fn func(context.Context, *rewind.Workspace) error) error {
	return m.WithLock(ctx, sessionID, func(ctx context.Context) error {
		entry := m.lookup(sessionID)
		if entry == nil {
			return fmt.Errorf("%w: %s", domain.ErrSessionNotFound, sessionID)
		}
		err := fn(ctx, entry.ws)
		m.flush(ctx, sessionID, entry)
		return err
	})
}

// Close disposes the session's workspace. Its journal is kept.
func (m *Manager) Close(ctx context.Context, sessionID string) error {
	return m.WithLock(ctx, sessionID, func(ctx context.Context) error {
		entry := m.lookup(sessionID)
		if entry == nil {
			return fmt.Errorf("%w: %s", domain.ErrSessionNotFound, sessionID)
		}
		err := entry.ws.Close()
		m.flush(ctx, sessionID, entry)

		m.mu.Lock()
		delete(m.sessions, sessionID)
		m.mu.Unlock()

		if m.metrics != nil {
			m.metrics.Forget(sessionID)
		}
		m.logger.Info("session closed", "session_id", sessionID)
		return err
	})
}

// List returns the open sessions, sorted.
func (m *Manager) List(ctx context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// Journal returns the journaled records of a session.
func (m *Manager) Journal(ctx context.Context, sessionID string) ([]domain.JournalRecord, error) {
	if m.journal == nil {
		return nil, fmt.Errorf("%w: journaling is disabled", domain.ErrInvalidState)
	}
	return m.journal.Records(ctx, sessionID)
}

func (m *Manager) lookup(sessionID string) *workspaceEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessions[sessionID]
}

func (m *Manager) create(sessionID string) *workspaceEntry {
	entry := &workspaceEntry{}
	record := undo.ListenerFunc(func(ev undo.Event) {
		entry.pending = append(entry.pending, m.record(sessionID, entry.ws, ev))
	})

	opts := append([]rewind.Option{
		rewind.WithLogger(m.logger.With("session_id", sessionID)),
	}, m.workspaceOpts...)
	opts = append(opts, rewind.WithListener(record))
	entry.ws = rewind.New(opts...)

	if m.metrics != nil {
		history := entry.ws.History()
		history.AddListener(m.metrics.Listener(sessionID, history))
	}

	m.mu.Lock()
	m.sessions[sessionID] = entry
	m.mu.Unlock()

	m.logger.Info("session opened", "session_id", sessionID)
	return entry
}

func (m *Manager) record(sessionID string, ws *rewind.Workspace, ev undo.Event) domain.JournalRecord {
	r := domain.JournalRecord{
		Timestamp: m.now().UTC(),
		SessionID: sessionID,
		Type:      domain.JournalEventType(ev.Kind.String()),
		Depth:     ws.History().Len(),
		Current:   ws.History().Current(),
	}
	if ev.Subject != nil {
		r.Entry = ev.Subject.Name()
		r.Significant = ev.Subject.Significant()
	}
	return r
}

// flush appends the pending records to the journal. Records are kept for the
// next flush when the journal fails.
func (m *Manager) flush(ctx context.Context, sessionID string, entry *workspaceEntry) {
	if len(entry.pending) == 0 {
		return
	}
	if m.journal == nil {
		entry.pending = nil
		return
	}
	if err := m.journal.Append(ctx, sessionID, entry.pending...); err != nil {
		m.logger.Warn("Failed to journal history events",
			"session_id", sessionID,
			"pending", len(entry.pending),
			"err", err,
		)
		return
	}
	entry.pending = nil
}
