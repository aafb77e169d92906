package rewind

import (
	"fmt"
	"log/slog"

	"github.com/aretw0/rewind/internal/logging"
	"github.com/aretw0/rewind/pkg/adapters/memory"
	"github.com/aretw0/rewind/pkg/domain"
	"github.com/aretw0/rewind/pkg/undo"
)

// Workspace is the high-level entry point of the library.
// It wires an entity store to a history through a recorder, so that every
// mutation of the store's entities becomes undoable.
type Workspace struct {
	schema   *domain.Schema
	store    *memory.Store
	history  *undo.Manager
	recorder *undo.Recorder
	logger   *slog.Logger

	limit        int
	listeners    []undo.Listener
	significance func(domain.ChangeEvent) bool
}

// Option defines a functional option for configuring the Workspace.
type Option func(*Workspace)

// WithLimit sets the number of significant entries the history retains.
func WithLimit(limit int) Option {
	return func(w *Workspace) {
		w.limit = limit
	}
}

// WithLogger sets a custom structured logger for the workspace.
func WithLogger(logger *slog.Logger) Option {
	return func(w *Workspace) {
		w.logger = logger
	}
}

// WithListener registers a history listener.
func WithListener(l undo.Listener) Option {
	return func(w *Workspace) {
		w.listeners = append(w.listeners, l)
	}
}

// WithSchema uses schema for relationships, property kinds and derived properties.
func WithSchema(schema *domain.Schema) Option {
	return func(w *Workspace) {
		w.schema = schema
	}
}

// WithSignificance decides which recorded changes are undo boundaries.
func WithSignificance(fn func(domain.ChangeEvent) bool) Option {
	return func(w *Workspace) {
		w.significance = fn
	}
}

// New initializes a Workspace.
func New(opts ...Option) *Workspace {
	w := &Workspace{
		limit:  undo.DefaultLimit,
		logger: logging.NewNop(),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.schema == nil {
		w.schema = domain.NewSchema()
	}

	managerOpts := []undo.Option{
		undo.WithLimit(w.limit),
		undo.WithLogger(w.logger),
	}
	for _, l := range w.listeners {
		managerOpts = append(managerOpts, undo.WithListener(l))
	}
	w.history = undo.NewManager(managerOpts...)

	recorderOpts := []undo.RecorderOption{undo.WithRecorderLogger(w.logger)}
	if w.significance != nil {
		recorderOpts = append(recorderOpts, undo.WithSignificance(w.significance))
	}
	w.recorder = undo.NewRecorder(w.history, undo.NewFactory(w.schema), recorderOpts...)

	w.store = memory.NewStore(w.schema)
	w.recorder.Attach(w.store)
	return w
}

// Schema returns the workspace schema.
func (w *Workspace) Schema() *domain.Schema { return w.schema }

// Store returns the entity store.
func (w *Workspace) Store() *memory.Store { return w.store }

// History returns the undo manager.
func (w *Workspace) History() *undo.Manager { return w.history }

// Recorder returns the recorder feeding the history.
func (w *Workspace) Recorder() *undo.Recorder { return w.recorder }

// Create adds a new entity. Creation itself is not recorded.
func (w *Workspace) Create(typ, id string) (*memory.Entity, error) {
	return w.store.Create(typ, id)
}

// Find resolves a "type:id" reference.
func (w *Workspace) Find(ref string) (*memory.Entity, error) {
	return w.store.Find(ref)
}

// Set assigns key on the entity referenced by ref.
func (w *Workspace) Set(ref, key string, value any) error {
	e, err := w.store.Find(ref)
	if err != nil {
		return err
	}
	return e.Set(key, value)
}

// Relate links the entity referenced by ref to peerRef through key.
func (w *Workspace) Relate(ref, key, peerRef string) error {
	e, peer, err := w.pair(ref, peerRef)
	if err != nil {
		return err
	}
	return e.Relate(key, peer)
}

// Unrelate removes the link from ref to peerRef through key.
func (w *Workspace) Unrelate(ref, key, peerRef string) error {
	e, peer, err := w.pair(ref, peerRef)
	if err != nil {
		return err
	}
	return e.Unrelate(key, peer)
}

func (w *Workspace) pair(ref, peerRef string) (*memory.Entity, *memory.Entity, error) {
	e, err := w.store.Find(ref)
	if err != nil {
		return nil, nil, err
	}
	peer, err := w.store.Find(peerRef)
	if err != nil {
		return nil, nil, err
	}
	return e, peer, nil
}

// Undo reverses the newest group of changes.
func (w *Workspace) Undo() error { return w.history.Undo() }

// Redo reapplies the next undone group of changes.
func (w *Workspace) Redo() error { return w.history.Redo() }

// CanUndo reports whether Undo would succeed.
func (w *Workspace) CanUndo() bool { return w.history.CanUndo() }

// CanRedo reports whether Redo would succeed.
func (w *Workspace) CanRedo() bool { return w.history.CanRedo() }

// Transaction records the changes made by fn as one entry, or rolls them back if fn fails.
func (w *Workspace) Transaction(label string, fn func() error) error {
	return w.recorder.Transaction(label, fn)
}

// Group opens a group scope: changes until End are recorded as one entry.
func (w *Workspace) Group(label string) *undo.GroupScope {
	return w.recorder.GroupScope(label)
}

// Untracked runs fn without recording the changes it makes.
func (w *Workspace) Untracked(fn func() error) error {
	resume := w.recorder.Pause()
	defer resume()
	return fn()
}

// Timeline returns a view of the history in insertion order.
func (w *Workspace) Timeline() []domain.HistoryStep {
	return Timeline(w.history)
}

// View summarizes the history of the workspace.
func (w *Workspace) View() domain.HistoryView {
	return domain.HistoryView{
		Limit:   w.history.Limit(),
		Current: w.history.Current(),
		CanUndo: w.history.CanUndo(),
		CanRedo: w.history.CanRedo(),
		Steps:   w.Timeline(),
	}
}

// Timeline renders the entries of history as steps.
func Timeline(history *undo.Manager) []domain.HistoryStep {
	entries := history.Entries()
	current := history.Current()

	steps := make([]domain.HistoryStep, 0, len(entries))
	for i, e := range entries {
		changes := 1
		if c, ok := e.(*undo.Composite); ok {
			changes = c.Len()
		}
		steps = append(steps, domain.HistoryStep{
			Index:       i,
			Name:        e.Name(),
			Significant: e.Significant(),
			Applied:     i <= current,
			Current:     i == current,
			Changes:     changes,
		})
	}
	return steps
}

// Close stops recording and disposes the history.
func (w *Workspace) Close() error {
	w.recorder.Detach()
	if err := w.history.Clear(); err != nil {
		return fmt.Errorf("failed to clear history: %w", err)
	}
	return nil
}
