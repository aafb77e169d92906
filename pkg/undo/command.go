package undo

import (
	"fmt"

	"github.com/aretw0/rewind/pkg/domain"
)

// Command is the Undoable recorded for a single change event.
// It replays the inverse (Undo) or the forward (Redo) action against the
// object that emitted the event.
type Command struct {
	lifecycle

	object   domain.Object
	key      string
	kind     domain.ChangeKind
	relevant any
	newValue any // rewritten by Combine

	significant bool
	applied     bool
	schema      *domain.Schema
}

// Object returns the mutated domain object.
func (c *Command) Object() domain.Object { return c.object }

// Key returns the property key.
func (c *Command) Key() string { return c.key }

// Kind returns the change kind.
func (c *Command) Kind() domain.ChangeKind { return c.kind }

// Relevant returns the value used to reverse the change.
func (c *Command) Relevant() any { return c.relevant }

// NewValue returns the value the change produced.
func (c *Command) NewValue() any { return c.newValue }

// Event returns the change currently described by the command.
func (c *Command) Event() domain.ChangeEvent {
	return domain.ChangeEvent{
		Object:   c.object,
		Key:      c.key,
		Kind:     c.kind,
		Relevant: c.relevant,
		New:      c.newValue,
	}
}

// Significant reports whether the command is a stopping boundary for undo and redo.
func (c *Command) Significant() bool { return c.significant }

// SetSignificant overrides the significance derived from the change kind.
func (c *Command) SetSignificant(significant bool) { c.significant = significant }

// CanUndo reports whether the change is currently applied.
func (c *Command) CanUndo() bool { return !c.disposed && c.applied }

// CanRedo reports whether the change is currently reversed.
func (c *Command) CanRedo() bool { return !c.disposed && !c.applied }

// Undo applies the inverse of the recorded change.
// The caller is responsible for suppressing the change events this emits.
func (c *Command) Undo() error {
	if c.disposed {
		return fmt.Errorf("undo %q: %w", c.Name(), ErrDisposed)
	}
	if !c.applied {
		return fmt.Errorf("undo %q: %w: already undone", c.Name(), domain.ErrInvalidState)
	}
	if err := c.apply(false); err != nil {
		return fmt.Errorf("undo %q on %s: %w", c.Name(), domain.Ref(c.object), err)
	}
	c.applied = false
	return nil
}

// Redo reapplies the recorded change.
func (c *Command) Redo() error {
	if c.disposed {
		return fmt.Errorf("redo %q: %w", c.Name(), ErrDisposed)
	}
	if c.applied {
		return fmt.Errorf("redo %q: %w: already applied", c.Name(), domain.ErrInvalidState)
	}
	if err := c.apply(true); err != nil {
		return fmt.Errorf("redo %q on %s: %w", c.Name(), domain.Ref(c.object), err)
	}
	c.applied = true
	return nil
}

// Dispose renders the command inert.
func (c *Command) Dispose() {
	c.dispose(c)
}

func (c *Command) apply(forward bool) error {
	if override, ok := c.object.(domain.UndoOverride); ok {
		var handled bool
		var err error
		if forward {
			handled, err = override.RedoChange(c.Event())
		} else {
			handled, err = override.UndoChange(c.Event())
		}
		if err != nil || handled {
			return err
		}
	}

	switch {
	case c.kind.Settable():
		if forward {
			return c.object.Set(c.key, c.newValue)
		}
		return c.object.Set(c.key, c.relevant)

	case c.kind == domain.ChangeToOne:
		if forward {
			return c.swap(c.relevant, c.newValue)
		}
		return c.swap(c.newValue, c.relevant)

	case c.kind == domain.ChangeToManyAdd:
		if forward {
			return c.link(c.relevant, true)
		}
		return c.link(c.relevant, false)

	case c.kind == domain.ChangeToManyRemove:
		if forward {
			return c.link(c.relevant, false)
		}
		return c.link(c.relevant, true)

	case c.kind == domain.ChangeToManyReplace:
		if forward {
			return c.replace(c.relevant, c.newValue)
		}
		return c.replace(c.newValue, c.relevant)
	}

	return fmt.Errorf("%w: %s", domain.ErrUnknownChangeKind, c.kind)
}

// swap moves a to-one relationship from one peer to another. Either side may be nil.
func (c *Command) swap(from, to any) error {
	if from != nil {
		if err := c.link(from, false); err != nil {
			return err
		}
	}
	if to != nil {
		return c.link(to, true)
	}
	return nil
}

func (c *Command) link(value any, relate bool) error {
	peer, ok := domain.AsObject(value)
	if !ok {
		return fmt.Errorf("%w: %s.%s expects an object, got %T", domain.ErrInvalidArgument, c.object.Type(), c.key, value)
	}
	if relate {
		return c.object.Relate(c.key, peer)
	}
	return c.object.Unrelate(c.key, peer)
}

// replace unrelates every peer of from, then relates every peer of to.
func (c *Command) replace(from, to any) error {
	current, ok := domain.AsObjects(from)
	if !ok {
		return fmt.Errorf("%w: %s.%s expects a list of objects, got %T", domain.ErrInvalidArgument, c.object.Type(), c.key, from)
	}
	target, ok := domain.AsObjects(to)
	if !ok {
		return fmt.Errorf("%w: %s.%s expects a list of objects, got %T", domain.ErrInvalidArgument, c.object.Type(), c.key, to)
	}
	for _, peer := range current {
		if err := c.object.Unrelate(c.key, peer); err != nil {
			return err
		}
	}
	for _, peer := range target {
		if err := c.object.Relate(c.key, peer); err != nil {
			return err
		}
	}
	return nil
}

// Combine merges other into a single command when both describe the same logical edit:
//   - two sets of the same settable property of the same object: this command keeps
//     its prior value and adopts the latest value of other;
//   - the two halves of an inverse relationship: the to-one side is kept.
//
// Any mismatch returns (nil, nil).
func (c *Command) Combine(other Undoable) (Undoable, error) {
	if c.disposed {
		return nil, fmt.Errorf("combine %q: %w", c.Name(), ErrDisposed)
	}
	o, ok := other.(*Command)
	if !ok || o == c || o.disposed || !c.applied || !o.applied {
		return nil, nil
	}

	if c.kind.Settable() {
		if o.kind != c.kind || o.key != c.key || !domain.SameObject(c.object, o.object) {
			return nil, nil
		}
		c.newValue = o.newValue
		c.significant = c.significant || o.significant
		return c, nil
	}

	if !c.isLink() || !o.isLink() {
		return nil, nil
	}
	if !c.schema.AreInverses(c.object.Type(), c.key, o.object.Type(), o.key) || !inverseHalves(c, o) {
		return nil, nil
	}
	if c.kind != domain.ChangeToOne && o.kind == domain.ChangeToOne {
		return o, nil
	}
	return c, nil
}

// isLink reports whether the command relates or unrelates a single peer.
func (c *Command) isLink() bool {
	switch c.kind {
	case domain.ChangeToOne, domain.ChangeToManyAdd, domain.ChangeToManyRemove:
		return true
	}
	return false
}

// inverseHalves reports whether a and b point at each other the way the two
// sides of one relate or unrelate do.
func inverseHalves(a, b *Command) bool {
	switch {
	case a.kind == domain.ChangeToOne && b.kind == domain.ChangeToOne:
		return (refers(a.newValue, b.object) && refers(b.newValue, a.object)) ||
			(refers(a.relevant, b.object) && refers(b.relevant, a.object))
	case a.kind == domain.ChangeToOne:
		return toOneMatches(a, b)
	case b.kind == domain.ChangeToOne:
		return toOneMatches(b, a)
	}
	return a.kind == b.kind && refers(a.relevant, b.object) && refers(b.relevant, a.object)
}

func toOneMatches(one, many *Command) bool {
	if !refers(many.relevant, one.object) {
		return false
	}
	switch many.kind {
	case domain.ChangeToManyAdd:
		return refers(one.newValue, many.object)
	case domain.ChangeToManyRemove:
		return refers(one.relevant, many.object)
	}
	return false
}

func refers(value any, obj domain.Object) bool {
	peer, ok := domain.AsObject(value)
	return ok && domain.SameObject(peer, obj)
}

// Name describes the change, e.g. "Set title" or "Relate owner".
func (c *Command) Name() string {
	switch c.kind {
	case domain.ChangeToOne:
		if c.newValue == nil {
			return "Unrelate " + c.key
		}
		return "Relate " + c.key
	case domain.ChangeToManyAdd:
		return "Add to " + c.key
	case domain.ChangeToManyRemove:
		return "Remove from " + c.key
	case domain.ChangeToManyReplace:
		return "Replace " + c.key
	}
	return "Set " + c.key
}

func (c *Command) String() string {
	return fmt.Sprintf("%s (%s)", c.Name(), domain.Ref(c.object))
}
