package undo

import (
	"fmt"

	"github.com/aretw0/rewind/pkg/domain"
)

// Factory builds Commands and Composites from change events.
// The schema is used to recognize the two halves of an inverse relationship; it may be nil.
type Factory struct {
	schema *domain.Schema
}

// NewFactory creates a factory bound to schema.
func NewFactory(schema *domain.Schema) *Factory {
	return &Factory{schema: schema}
}

// Schema returns the schema commands are bound to.
func (f *Factory) Schema() *domain.Schema {
	return f.schema
}

// NewCommand captures ev in a Command.
// Derived changes are never recorded: NewCommand returns (nil, nil) for them.
func (f *Factory) NewCommand(ev domain.ChangeEvent) (*Command, error) {
	if ev.Object == nil || ev.Key == "" {
		return nil, fmt.Errorf("%w: change event without object or key", domain.ErrInvalidArgument)
	}
	if ev.Kind == domain.ChangeDerived {
		return nil, nil
	}
	if !ev.Kind.Valid() {
		return nil, fmt.Errorf("%w: %s on %s.%s", domain.ErrUnknownChangeKind, ev.Kind, domain.Ref(ev.Object), ev.Key)
	}

	relevant, newValue := ev.Relevant, ev.New
	if ev.Kind == domain.ChangeToManyReplace {
		relevant, newValue = copyList(relevant), copyList(newValue)
	}

	return &Command{
		object:      ev.Object,
		key:         ev.Key,
		kind:        ev.Kind,
		relevant:    relevant,
		newValue:    newValue,
		significant: ev.Kind != domain.ChangeCached,
		applied:     true,
		schema:      f.schema,
	}, nil
}

// NewComposite folds events into a Composite. Before appending a command it is
// combined with the last accumulated one when possible, which yields the
// minimal ordered sequence of non-combinable commands.
func (f *Factory) NewComposite(events ...domain.ChangeEvent) (*Composite, error) {
	var cmds []Undoable
	for _, ev := range events {
		cmd, err := f.NewCommand(ev)
		if err != nil {
			disposeAll(cmds)
			return nil, err
		}
		if cmd == nil {
			continue
		}

		if n := len(cmds); n > 0 {
			combined, err := cmds[n-1].Combine(cmd)
			if err != nil {
				disposeAll(cmds)
				return nil, err
			}
			if combined != nil {
				if combined != cmds[n-1] {
					cmds[n-1].Dispose()
				}
				if combined != Undoable(cmd) {
					cmd.Dispose()
				}
				cmds[n-1] = combined
				continue
			}
		}
		cmds = append(cmds, cmd)
	}
	return NewComposite(cmds...)
}

func copyList(v any) any {
	list, ok := v.([]domain.Object)
	if !ok {
		return v
	}
	return append([]domain.Object(nil), list...)
}

func disposeAll(entries []Undoable) {
	for _, e := range entries {
		e.Dispose()
	}
}
