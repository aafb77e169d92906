package undo

// Undoable is a reversible unit of change held by a Manager.
type Undoable interface {
	// CanUndo reports whether Undo would succeed. Always false once disposed.
	CanUndo() bool
	// CanRedo reports whether Redo would succeed. Always false once disposed.
	CanRedo() bool

	// Undo reverses the change.
	Undo() error
	// Redo reapplies the change.
	Redo() error

	// Dispose renders the entry permanently inert and fires EventDisposed exactly once.
	Dispose()
	// Disposed reports whether Dispose was called.
	Disposed() bool

	// Combine tries to merge other into a single entry.
	// It returns (nil, nil) when the two cannot be combined; that is a normal outcome.
	Combine(other Undoable) (Undoable, error)

	// Significant reports whether the entry is a stopping boundary for undo and redo.
	Significant() bool

	// Name returns a human-readable description.
	Name() string

	AddListener(l Listener) ListenerID
	RemoveListener(id ListenerID) bool
}

// lifecycle holds the disposal and notification state shared by Command and Composite.
type lifecycle struct {
	disposed  bool
	listeners listeners
}

func (l *lifecycle) Disposed() bool {
	return l.disposed
}

func (l *lifecycle) AddListener(listener Listener) ListenerID {
	return l.listeners.add(listener)
}

func (l *lifecycle) RemoveListener(id ListenerID) bool {
	return l.listeners.remove(id)
}

// dispose marks self disposed and notifies listeners. It reports false if self was already disposed.
func (l *lifecycle) dispose(self Undoable) bool {
	if l.disposed {
		return false
	}
	l.disposed = true
	l.listeners.fire(Event{Kind: EventDisposed, Subject: self})
	return true
}
