// Package undo provides the undo/redo engine for property mutations of domain objects.
//
// The engine uses the Command pattern: every mutation observed on a domain object
// becomes a Command that knows how to reverse and reapply itself. Key concepts:
//
// # Undoables
//
// An Undoable is a reversible unit of change. Two implementations exist:
//   - Command: wraps one domain.ChangeEvent.
//   - Composite: an ordered group of Undoables treated as one unit.
//
// # History
//
// The Manager keeps the history as an ordered queue plus a current pointer.
// Entries up to the pointer are applied, entries after it were undone and can
// be redone. Entries are either significant (a stopping boundary for undo and
// redo) or insignificant (incidental intermediate edits):
//
//	history := undo.NewManager(undo.WithLimit(50))
//	recorder := undo.NewRecorder(history, undo.NewFactory(schema))
//	recorder.Attach(store)
//
//	// ... mutate objects ...
//
//	if history.CanUndo() {
//		err := history.Undo()
//	}
//
// Adjacent entries are combined when possible: consecutive sets of the same
// property collapse into one entry, and the two halves of an inverse
// relationship collapse into the to-one side.
//
// # Grouping
//
// Multiple changes can be recorded as a single entry:
//
//	defer recorder.GroupScope("Rename").End()
//
// # Suppression
//
// Replaying a command mutates the object, which emits new change events.
// While the Manager replays an entry its Guard is held and the Recorder drops
// those events. Bulk operations use Recorder.Pause for the same effect.
//
// None of the types in this package are safe for concurrent use.
package undo
