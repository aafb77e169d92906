package undo

import (
	"fmt"
	"log/slog"

	"github.com/aretw0/rewind/internal/logging"
	"github.com/aretw0/rewind/pkg/domain"
)

// DefaultLimit is the number of significant entries a Manager retains by default.
const DefaultLimit = 30

// Manager is the command history: an ordered queue of Undoables plus a current
// pointer. Entries at indices 0..current are applied, entries after current were
// undone and can be redone. The queue always reflects insertion order.
//
// Undo and Redo move over groups: a significant entry together with the run of
// insignificant entries recorded right before it (and, for the newest group,
// the insignificant entries recorded after it). Eviction drops the same groups,
// oldest first, once more than Limit significant entries are held.
//
// A Manager is not safe for concurrent use.
type Manager struct {
	queue   []Undoable
	subs    map[Undoable]ListenerID
	current int
	limit   int
	sealed  Undoable

	listeners listeners
	guard     *Guard
	logger    *slog.Logger
	busy      bool
}

// Option configures a Manager.
type Option func(*Manager)

// WithLimit sets the number of significant entries retained. Values below 1 are ignored.
func WithLimit(limit int) Option {
	return func(m *Manager) {
		if limit >= 1 {
			m.limit = limit
		}
	}
}

// WithGuard shares guard with other components (e.g. a Recorder). The Manager
// holds it while replaying entries.
func WithGuard(guard *Guard) Option {
	return func(m *Manager) {
		if guard != nil {
			m.guard = guard
		}
	}
}

// WithLogger configures a logger for the Manager.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

// WithListener registers l at construction time.
func WithListener(l Listener) Option {
	return func(m *Manager) {
		m.listeners.add(l)
	}
}

// NewManager creates an empty history.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		subs:    make(map[Undoable]ListenerID),
		current: -1,
		limit:   DefaultLimit,
		guard:   &Guard{},
		logger:  logging.NewNop(), // Default to no-op
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// AddListener registers l for lifecycle notifications.
func (m *Manager) AddListener(l Listener) ListenerID {
	return m.listeners.add(l)
}

// RemoveListener unregisters the listener registered under id.
func (m *Manager) RemoveListener(id ListenerID) bool {
	return m.listeners.remove(id)
}

// Guard returns the guard held while entries are replayed.
func (m *Manager) Guard() *Guard {
	return m.guard
}

// Replaying reports whether an entry is being undone or redone right now.
func (m *Manager) Replaying() bool {
	return m.guard.Active()
}

// Len returns the number of entries in the queue.
func (m *Manager) Len() int {
	return len(m.queue)
}

// Current returns the index of the last applied entry, or -1.
func (m *Manager) Current() int {
	return m.current
}

// Limit returns the number of significant entries retained.
func (m *Manager) Limit() int {
	return m.limit
}

// Entries returns a snapshot of the queue in insertion order.
func (m *Manager) Entries() []Undoable {
	return append([]Undoable(nil), m.queue...)
}

// NextUndo returns the significant entry the next Undo stops on, or nil.
func (m *Manager) NextUndo() Undoable {
	if i := m.nextUndoIndex(); i >= 0 {
		return m.queue[i]
	}
	return nil
}

// NextRedo returns the significant entry the next Redo stops on, or nil.
func (m *Manager) NextRedo() Undoable {
	if i := m.nextRedoIndex(); i >= 0 {
		return m.queue[i]
	}
	return nil
}

// CanUndo reports whether Undo would succeed.
func (m *Manager) CanUndo() bool {
	return m.nextUndoIndex() >= 0
}

// CanRedo reports whether Redo would succeed.
func (m *Manager) CanRedo() bool {
	return m.nextRedoIndex() >= 0
}

func (m *Manager) nextUndoIndex() int {
	for i := m.current; i >= 0; i-- {
		if m.queue[i].Significant() {
			return i
		}
	}
	return -1
}

func (m *Manager) nextRedoIndex() int {
	for i := m.current + 1; i < len(m.queue); i++ {
		if m.queue[i].Significant() {
			return i
		}
	}
	return -1
}

// Add records u. The redo tail is discarded first, then u is combined with the
// newest entry when possible. Recording a significant entry beyond Limit evicts
// the oldest significant entry and the insignificant entries before it.
func (m *Manager) Add(u Undoable) error {
	if u == nil {
		return fmt.Errorf("add: %w: nil entry", domain.ErrInvalidArgument)
	}
	if u.Disposed() {
		return fmt.Errorf("add %q: %w", u.Name(), ErrDisposed)
	}
	leave, err := m.enter("add")
	if err != nil {
		return err
	}
	defer leave()

	removed := m.dropFrom(m.current + 1)

	if n := len(m.queue); n > 0 && m.queue[n-1] != m.sealed {
		last := m.queue[n-1]
		combined, err := last.Combine(u)
		if err != nil {
			m.fireRemoved(removed)
			return fmt.Errorf("add %q: %w", u.Name(), err)
		}
		if combined != nil {
			m.queue = m.queue[:n-1]
			m.detach(last)
			if combined != last {
				last.Dispose()
				removed = append(removed, last)
			}
			if combined != u {
				u.Dispose()
			}
			u = combined
		}
	}

	m.queue = append(m.queue, u)
	m.attach(u)
	m.current = len(m.queue) - 1

	if u.Significant() {
		for m.significantCount() > m.limit {
			evicted := m.evictOldest()
			if len(evicted) == 0 {
				break
			}
			removed = append(removed, evicted...)
		}
	}

	m.logger.Debug("history entry added",
		"entry", u.Name(),
		"significant", u.Significant(),
		"depth", len(m.queue),
		"evicted", len(removed),
	)

	m.fireRemoved(removed)
	m.listeners.fire(Event{Kind: EventAdded, Subject: u})
	return nil
}

// Undo reverses the newest group: every entry from current backward until a
// significant entry has been undone, followed by the insignificant entries
// recorded directly before it. If the significant entry cannot be redone
// afterwards, it is disposed together with every entry after it.
func (m *Manager) Undo() error {
	return m.undo(false)
}

// UndoAndDispose performs the same walk as Undo, then disposes every undone
// entry along with the redo tail, leaving nothing to redo.
func (m *Manager) UndoAndDispose() error {
	return m.undo(true)
}

func (m *Manager) undo(discard bool) error {
	leave, err := m.enter("undo")
	if err != nil {
		return err
	}
	defer leave()

	if m.nextUndoIndex() < 0 {
		return ErrNothingToUndo
	}

	var target Undoable
	targetIdx := -1
	for m.current >= 0 {
		e := m.queue[m.current]
		if target != nil && e.Significant() {
			break
		}
		if err := m.replay(e, Undoable.Undo); err != nil {
			return err
		}
		if target == nil && e.Significant() {
			target, targetIdx = e, m.current
		}
		m.current--
	}

	var removed []Undoable
	switch {
	case discard:
		removed = m.dropFrom(m.current + 1)
	case !target.CanRedo():
		removed = m.dropFrom(targetIdx)
	}

	m.logger.Debug("history undo",
		"entry", target.Name(),
		"current", m.current,
		"depth", len(m.queue),
		"discarded", len(removed),
	)

	m.listeners.fire(Event{Kind: EventUndid, Subject: target})
	m.fireRemoved(removed)
	return nil
}

// Redo reapplies the next group: every entry after current until a significant
// entry has been redone and, when no significant entry remains ahead, the
// trailing insignificant entries. If the significant entry cannot be undone
// afterwards, the queue is truncated from the start through it.
func (m *Manager) Redo() error {
	leave, err := m.enter("redo")
	if err != nil {
		return err
	}
	defer leave()

	if m.nextRedoIndex() < 0 {
		return ErrNothingToRedo
	}

	var target Undoable
	targetIdx := -1
	for m.current+1 < len(m.queue) {
		if target != nil && m.nextRedoIndex() >= 0 {
			break
		}
		e := m.queue[m.current+1]
		if err := m.replay(e, Undoable.Redo); err != nil {
			return err
		}
		m.current++
		if target == nil && e.Significant() {
			target, targetIdx = e, m.current
		}
	}

	var removed []Undoable
	if !target.CanUndo() {
		removed = m.dropThrough(targetIdx)
	}

	m.logger.Debug("history redo",
		"entry", target.Name(),
		"current", m.current,
		"depth", len(m.queue),
		"discarded", len(removed),
	)

	m.listeners.fire(Event{Kind: EventRedid, Subject: target})
	m.fireRemoved(removed)
	return nil
}

// Clear disposes every entry and empties the history.
func (m *Manager) Clear() error {
	leave, err := m.enter("clear")
	if err != nil {
		return err
	}
	defer leave()

	for _, e := range m.queue {
		m.detach(e)
		e.Dispose()
	}
	m.queue = nil
	m.current = -1
	m.sealed = nil

	m.logger.Debug("history cleared")
	m.listeners.fire(Event{Kind: EventCleared})
	return nil
}

// SetLimit changes the number of significant entries retained. Lowering it
// below the number currently held evicts the oldest groups and fires
// EventLimitReduced.
func (m *Manager) SetLimit(limit int) error {
	if limit < 1 {
		return fmt.Errorf("set limit %d: %w: limit must be at least 1", limit, domain.ErrInvalidArgument)
	}
	leave, err := m.enter("set limit")
	if err != nil {
		return err
	}
	defer leave()

	m.limit = limit

	var removed []Undoable
	for m.significantCount() > m.limit {
		evicted := m.evictOldest()
		if len(evicted) == 0 {
			break
		}
		removed = append(removed, evicted...)
	}
	if len(removed) == 0 {
		return nil
	}

	m.logger.Debug("history limit reduced", "limit", limit, "evicted", len(removed))
	m.fireRemoved(removed)
	m.listeners.fire(Event{Kind: EventLimitReduced})
	return nil
}

func (m *Manager) enter(op string) (leave func(), err error) {
	if m.busy {
		return nil, fmt.Errorf("%s: %w", op, ErrReentrant)
	}
	m.busy = true
	return func() { m.busy = false }, nil
}

// replay runs fn on e with the guard held, so that the mutations it performs are not recorded.
func (m *Manager) replay(e Undoable, fn func(Undoable) error) error {
	return m.guard.Do(func() error {
		return fn(e)
	})
}

func (m *Manager) significantCount() int {
	n := 0
	for _, e := range m.queue {
		if e.Significant() {
			n++
		}
	}
	return n
}

// evictOldest drops the oldest significant entry and every entry before it.
func (m *Manager) evictOldest() []Undoable {
	oldest := -1
	for i, e := range m.queue {
		if e.Significant() {
			oldest = i
			break
		}
	}
	if oldest < 0 {
		return nil
	}
	return m.dropThrough(oldest)
}

// dropFrom disposes and removes the entries at index i and after.
func (m *Manager) dropFrom(i int) []Undoable {
	if i < 0 {
		i = 0
	}
	if i >= len(m.queue) {
		return nil
	}
	dropped := append([]Undoable(nil), m.queue[i:]...)
	m.queue = m.queue[:i]
	if m.current >= len(m.queue) {
		m.current = len(m.queue) - 1
	}
	m.release(dropped)
	return dropped
}

// dropThrough disposes and removes the entries from the start through index i.
func (m *Manager) dropThrough(i int) []Undoable {
	if i < 0 || len(m.queue) == 0 {
		return nil
	}
	if i >= len(m.queue) {
		i = len(m.queue) - 1
	}
	dropped := append([]Undoable(nil), m.queue[:i+1]...)
	m.queue = append([]Undoable(nil), m.queue[i+1:]...)
	m.current -= i + 1
	if m.current < -1 {
		m.current = -1
	}
	m.release(dropped)
	return dropped
}

func (m *Manager) release(entries []Undoable) {
	for _, e := range entries {
		m.detach(e)
		if e == m.sealed {
			m.sealed = nil
		}
		e.Dispose()
	}
}

func (m *Manager) attach(e Undoable) {
	m.subs[e] = e.AddListener(ListenerFunc(m.handleEntryEvent))
}

func (m *Manager) detach(e Undoable) {
	if id, ok := m.subs[e]; ok {
		e.RemoveListener(id)
		delete(m.subs, e)
	}
}

func (m *Manager) fireRemoved(entries []Undoable) {
	for _, e := range entries {
		m.listeners.fire(Event{Kind: EventRemoved, Subject: e})
	}
}

// handleEntryEvent keeps the queue consistent with entries disposed or changed from outside.
func (m *Manager) handleEntryEvent(ev Event) {
	switch ev.Kind {
	case EventDisposed:
		for i, e := range m.queue {
			if e != ev.Subject {
				continue
			}
			delete(m.subs, e)
			m.queue = append(m.queue[:i], m.queue[i+1:]...)
			if i <= m.current {
				m.current--
			}
			if e == m.sealed {
				m.sealed = nil
			}
			m.logger.Debug("history entry disposed externally", "entry", e.Name(), "depth", len(m.queue))
			m.listeners.fire(Event{Kind: EventRemoved, Subject: e})
			return
		}
	case EventChanged:
		m.listeners.fire(Event{Kind: EventChanged, Subject: ev.Subject})
	}
}
