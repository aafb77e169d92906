package undo

import (
	"fmt"

	"github.com/aretw0/rewind/pkg/domain"
)

// Composite groups several Undoables into one history entry.
// Undo runs the children in reverse recording order, Redo in recording order.
// The composite owns its children: disposing it disposes them.
type Composite struct {
	lifecycle

	label    string
	children []Undoable
	subs     map[Undoable]ListenerID
}

// NewComposite groups children, in recording order, into a Composite.
func NewComposite(children ...Undoable) (*Composite, error) {
	if len(children) == 0 {
		return nil, fmt.Errorf("%w: composite requires at least one entry", domain.ErrInvalidArgument)
	}
	c := &Composite{
		children: make([]Undoable, 0, len(children)),
		subs:     make(map[Undoable]ListenerID, len(children)),
	}
	for _, child := range children {
		if child == nil || child.Disposed() {
			return nil, fmt.Errorf("%w: composite entry is nil or disposed", domain.ErrInvalidArgument)
		}
		c.children = append(c.children, child)
	}
	for _, child := range c.children {
		c.subs[child] = child.AddListener(ListenerFunc(c.handleChildEvent))
	}
	return c, nil
}

// SetLabel sets an explicit name, overriding the generated one.
func (c *Composite) SetLabel(label string) {
	c.label = label
}

// Children returns the entries in recording order.
func (c *Composite) Children() []Undoable {
	return append([]Undoable(nil), c.children...)
}

// Len returns the number of children.
func (c *Composite) Len() int {
	return len(c.children)
}

// Name returns the label, the single child's name or "N changes".
func (c *Composite) Name() string {
	if c.label != "" {
		return c.label
	}
	if len(c.children) == 1 {
		return c.children[0].Name()
	}
	return fmt.Sprintf("%d changes", len(c.children))
}

// Significant is true only when every child is significant.
func (c *Composite) Significant() bool {
	return c.all(Undoable.Significant)
}

// CanUndo is true only when every child can be undone.
func (c *Composite) CanUndo() bool {
	return !c.disposed && c.all(Undoable.CanUndo)
}

// CanRedo is true only when every child can be redone.
func (c *Composite) CanRedo() bool {
	return !c.disposed && c.all(Undoable.CanRedo)
}

func (c *Composite) all(pred func(Undoable) bool) bool {
	if len(c.children) == 0 {
		return false
	}
	for _, child := range c.children {
		if !pred(child) {
			return false
		}
	}
	return true
}

// Undo reverses every child, most recently recorded first.
func (c *Composite) Undo() error {
	if c.disposed {
		return fmt.Errorf("undo %q: %w", c.Name(), ErrDisposed)
	}
	for i := len(c.children) - 1; i >= 0; i-- {
		if err := c.children[i].Undo(); err != nil {
			return fmt.Errorf("undo composite %q step %d: %w", c.Name(), i, err)
		}
	}
	return nil
}

// Redo reapplies every child in recording order.
func (c *Composite) Redo() error {
	if c.disposed {
		return fmt.Errorf("redo %q: %w", c.Name(), ErrDisposed)
	}
	for i, child := range c.children {
		if err := child.Redo(); err != nil {
			return fmt.Errorf("redo composite %q step %d: %w", c.Name(), i, err)
		}
	}
	return nil
}

// Inverse permanently reverses the stored order, so that Undo plays the
// children forward and Redo plays them backward.
func (c *Composite) Inverse() {
	for i, j := 0, len(c.children)-1; i < j; i, j = i+1, j-1 {
		c.children[i], c.children[j] = c.children[j], c.children[i]
	}
}

// Combine never merges: composites are terminal units in the history.
func (c *Composite) Combine(other Undoable) (Undoable, error) {
	if c.disposed {
		return nil, fmt.Errorf("combine %q: %w", c.Name(), ErrDisposed)
	}
	return nil, nil
}

// Dispose disposes every child and then the composite itself.
func (c *Composite) Dispose() {
	if c.disposed {
		return
	}
	children := c.children
	c.children = nil
	for _, child := range children {
		child.RemoveListener(c.subs[child])
		child.Dispose()
	}
	c.subs = nil
	c.dispose(c)
}

func (c *Composite) handleChildEvent(ev Event) {
	switch ev.Kind {
	case EventDisposed:
		c.removeChild(ev.Subject)
	case EventChanged:
		c.listeners.fire(Event{Kind: EventChanged, Subject: c})
	}
}

// removeChild drops a child disposed from outside the composite.
func (c *Composite) removeChild(child Undoable) {
	for i, existing := range c.children {
		if existing != child {
			continue
		}
		c.children = append(c.children[:i], c.children[i+1:]...)
		delete(c.subs, child)
		if len(c.children) == 0 {
			c.Dispose()
			return
		}
		c.listeners.fire(Event{Kind: EventChanged, Subject: c})
		return
	}
}

func (c *Composite) String() string {
	return fmt.Sprintf("%s [%d]", c.Name(), len(c.children))
}
