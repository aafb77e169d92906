package undo

// EventKind names a lifecycle notification.
type EventKind int

const (
	// EventAdded is fired by a Manager after an entry was recorded.
	EventAdded EventKind = iota + 1
	// EventRemoved is fired by a Manager after an entry left the queue.
	EventRemoved
	// EventUndid is fired by a Manager once per Undo, naming the significant entry.
	EventUndid
	// EventRedid is fired by a Manager once per Redo, naming the significant entry.
	EventRedid
	// EventCleared is fired by a Manager after Clear.
	EventCleared
	// EventLimitReduced is fired by a Manager when SetLimit evicted entries.
	EventLimitReduced
	// EventChanged is fired when the composition of an entry changed.
	EventChanged
	// EventDisposed is fired by an Undoable exactly once, inside Dispose.
	EventDisposed
)

var eventKindNames = map[EventKind]string{
	EventAdded:        "added",
	EventRemoved:      "removed",
	EventUndid:        "undid",
	EventRedid:        "redid",
	EventCleared:      "cleared",
	EventLimitReduced: "limit_reduced",
	EventChanged:      "changed",
	EventDisposed:     "disposed",
}

func (k EventKind) String() string {
	if name, ok := eventKindNames[k]; ok {
		return name
	}
	return "unknown"
}

// Event is a lifecycle notification. Subject is nil for EventCleared and EventLimitReduced.
type Event struct {
	Kind    EventKind
	Subject Undoable
}

// Listener receives lifecycle notifications.
// A listener must not call mutating Manager operations from inside the callback;
// the Manager rejects them with ErrReentrant.
type Listener interface {
	HandleUndoEvent(ev Event)
}

// ListenerFunc adapts a function to the Listener interface.
type ListenerFunc func(ev Event)

// HandleUndoEvent calls f(ev).
func (f ListenerFunc) HandleUndoEvent(ev Event) {
	f(ev)
}

// ListenerID identifies a registration so that it can be removed.
type ListenerID uint64

type listenerEntry struct {
	id       ListenerID
	listener Listener
}

// listeners is a registration list notified in registration order.
type listeners struct {
	next    ListenerID
	entries []listenerEntry
}

func (l *listeners) add(listener Listener) ListenerID {
	l.next++
	l.entries = append(l.entries, listenerEntry{id: l.next, listener: listener})
	return l.next
}

func (l *listeners) remove(id ListenerID) bool {
	for i, e := range l.entries {
		if e.id == id {
			l.entries = append(l.entries[:i], l.entries[i+1:]...)
			return true
		}
	}
	return false
}

// fire notifies a snapshot of the registrations, so listeners may unregister while being notified.
func (l *listeners) fire(ev Event) {
	if len(l.entries) == 0 {
		return
	}
	snapshot := make([]listenerEntry, len(l.entries))
	copy(snapshot, l.entries)
	for _, e := range snapshot {
		e.listener.HandleUndoEvent(ev)
	}
}
