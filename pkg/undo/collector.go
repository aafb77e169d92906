package undo

import (
	"github.com/aretw0/rewind/pkg/domain"
)

// Collector passively accumulates change events over an arbitrary window and
// materializes them into a Composite on demand.
// Derived changes are skipped: they are downstream of other edits and would be counted twice.
type Collector struct {
	factory *Factory
	guard   *Guard
	events  []domain.ChangeEvent
	detach  []func()
}

// CollectorOption configures a Collector.
type CollectorOption func(*Collector)

// WithCollectorGuard makes the collector ignore events while guard is held.
func WithCollectorGuard(guard *Guard) CollectorOption {
	return func(c *Collector) {
		c.guard = guard
	}
}

// NewCollector creates an empty collector building commands with factory.
func NewCollector(factory *Factory, opts ...CollectorOption) *Collector {
	c := &Collector{factory: factory}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Attach registers the collector against src. It may be called for several sources.
func (c *Collector) Attach(src domain.ChangeSource) {
	c.detach = append(c.detach, src.AddChangeObserver(c))
}

// Detach unregisters the collector from every source it was attached to.
func (c *Collector) Detach() {
	for _, remove := range c.detach {
		remove()
	}
	c.detach = nil
}

// ObserveChange buffers ev.
func (c *Collector) ObserveChange(ev domain.ChangeEvent) {
	if ev.Kind == domain.ChangeDerived || c.guard.Active() {
		return
	}
	c.events = append(c.events, ev)
}

// Pending returns the number of buffered events.
func (c *Collector) Pending() int {
	return len(c.events)
}

// Reset drops the buffered events.
func (c *Collector) Reset() {
	c.events = nil
}

// Materialize drains the buffer into a new Composite labeled with label (may be empty).
// It returns (nil, nil) when there is nothing to materialize. The collector stays attached.
func (c *Collector) Materialize(label string) (*Composite, error) {
	if len(c.events) == 0 {
		return nil, nil
	}
	events := c.events
	c.events = nil

	comp, err := c.factory.NewComposite(events...)
	if err != nil {
		return nil, err
	}
	comp.SetLabel(label)
	return comp, nil
}
