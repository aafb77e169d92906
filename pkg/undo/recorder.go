package undo

import (
	"errors"
	"log/slog"

	"github.com/aretw0/rewind/internal/logging"
	"github.com/aretw0/rewind/pkg/domain"
)

// Recorder turns observed change events into history entries.
//
// Events are dropped while the history replays an entry (its Guard is held) and
// while the recorder is paused, so undo and redo never record themselves and
// bulk operations can opt out of per-field entries.
type Recorder struct {
	history *Manager
	factory *Factory
	paused  Guard

	group      *Collector
	groupLabel string

	detach       []func()
	significance func(domain.ChangeEvent) bool
	logger       *slog.Logger
	err          error
}

// RecorderOption configures a Recorder.
type RecorderOption func(*Recorder)

// WithRecorderLogger configures a logger for the Recorder.
func WithRecorderLogger(logger *slog.Logger) RecorderOption {
	return func(r *Recorder) {
		r.logger = logger
	}
}

// WithSignificance decides the significance of every recorded command, e.g. to
// mark the intermediate values of a drag as insignificant.
func WithSignificance(fn func(domain.ChangeEvent) bool) RecorderOption {
	return func(r *Recorder) {
		r.significance = fn
	}
}

// NewRecorder creates a recorder feeding history with commands built by factory.
func NewRecorder(history *Manager, factory *Factory, opts ...RecorderOption) *Recorder {
	r := &Recorder{
		history: history,
		factory: factory,
		logger:  logging.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Attach starts observing src and returns a function that stops it.
func (r *Recorder) Attach(src domain.ChangeSource) (detach func()) {
	remove := src.AddChangeObserver(r)
	r.detach = append(r.detach, remove)
	return remove
}

// Detach stops observing every source passed to Attach.
func (r *Recorder) Detach() {
	for _, remove := range r.detach {
		remove()
	}
	r.detach = nil
}

// Pause suspends recording until the returned function is called.
// Pauses nest; recording resumes once every pause has been released.
func (r *Recorder) Pause() (resume func()) {
	return r.paused.Acquire()
}

// Recording reports whether an event observed now would be recorded.
func (r *Recorder) Recording() bool {
	return !r.paused.Active() && !r.history.Replaying()
}

// Err returns the last error that prevented an event from being recorded.
func (r *Recorder) Err() error {
	return r.err
}

// ObserveChange records ev, or buffers it while a group is open.
func (r *Recorder) ObserveChange(ev domain.ChangeEvent) {
	if ev.Kind == domain.ChangeDerived || !r.Recording() {
		return
	}
	if r.group != nil {
		r.group.ObserveChange(ev)
		return
	}

	cmd, err := r.factory.NewCommand(ev)
	if err != nil {
		r.fail(ev, err)
		return
	}
	if cmd == nil {
		return
	}
	if r.significance != nil {
		cmd.SetSignificant(r.significance(ev))
	}
	if err := r.history.Add(cmd); err != nil {
		r.fail(ev, err)
	}
}

func (r *Recorder) fail(ev domain.ChangeEvent, err error) {
	r.err = err
	r.logger.Error("change not recorded", "change", ev.String(), "error", err)
}

// BeginGroup starts a group: changes observed until EndGroup are recorded as a single entry.
// Nested calls are ignored.
func (r *Recorder) BeginGroup(label string) {
	if r.group != nil {
		return
	}
	r.group = NewCollector(r.factory)
	r.groupLabel = label
}

// Grouping reports whether a group is open.
func (r *Recorder) Grouping() bool {
	return r.group != nil
}

// EndGroup closes the group and records its changes as one Composite.
// An empty group records nothing.
func (r *Recorder) EndGroup() error {
	if r.group == nil {
		return nil
	}
	comp, err := r.group.Materialize(r.groupLabel)
	r.group = nil
	if err != nil || comp == nil {
		return err
	}
	return r.history.Add(comp)
}

// CancelGroup closes the group without recording it.
// Note: the changes already made still affect the objects.
func (r *Recorder) CancelGroup() {
	if r.group == nil {
		return
	}
	r.group.Reset()
	r.group = nil
}

// Transaction runs fn inside a group. If fn fails or panics, the changes it
// made are reversed and nothing is recorded. Inside an open group, fn simply
// joins it.
func (r *Recorder) Transaction(label string, fn func() error) error {
	if r.group != nil {
		return fn()
	}

	r.BeginGroup(label)
	defer func() {
		if p := recover(); p != nil {
			if r.group != nil {
				if err := r.rollback(); err != nil {
					r.logger.Error("rollback after panic failed", "group", label, "error", err)
				}
			}
			panic(p)
		}
	}()
	if err := fn(); err != nil {
		if rbErr := r.rollback(); rbErr != nil {
			return errors.Join(err, rbErr)
		}
		return err
	}
	return r.EndGroup()
}

// rollback reverses and discards the changes collected by the open group.
func (r *Recorder) rollback() error {
	comp, err := r.group.Materialize(r.groupLabel)
	r.group = nil
	if err != nil || comp == nil {
		return err
	}
	defer comp.Dispose()

	r.logger.Debug("rolling back group", "group", comp.Name(), "entries", comp.Len())
	return r.history.Guard().Do(comp.Undo)
}

// GroupScope provides a convenient way to group changes using defer.
// Usage:
//
//	func rename(r *undo.Recorder, obj domain.Object) {
//	    defer r.GroupScope("Rename").End()
//	    // ... multiple edits ...
//	}
type GroupScope struct {
	recorder *Recorder
	active   bool
}

// GroupScope starts a new group scope.
// Call End() or use with defer to properly close the group.
func (r *Recorder) GroupScope(label string) *GroupScope {
	active := r.group == nil
	r.BeginGroup(label)
	return &GroupScope{recorder: r, active: active}
}

// End ends the group scope.
// Safe to call multiple times; only the first call has effect. A scope opened
// inside another group leaves the outer group open.
func (g *GroupScope) End() error {
	if !g.active {
		return nil
	}
	g.active = false
	return g.recorder.EndGroup()
}

// Cancel cancels the group scope without recording it.
func (g *GroupScope) Cancel() {
	if g.active {
		g.recorder.CancelGroup()
		g.active = false
	}
}
