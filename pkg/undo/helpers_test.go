package undo_test

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/aretw0/rewind/pkg/adapters/memory"
	"github.com/aretw0/rewind/pkg/domain"
	"github.com/aretw0/rewind/pkg/undo"
	"github.com/stretchr/testify/require"
)

// fakeObject is a minimal domain.Object holding plain values.
type fakeObject struct {
	typ    string
	id     string
	values map[string]any
	sets   int
}

func newFake(id string) *fakeObject {
	return &fakeObject{typ: "fake", id: id, values: make(map[string]any)}
}

func (f *fakeObject) ID() string { return f.id }
func (f *fakeObject) Type() string { return f.typ }
func (f *fakeObject) Get(key string) any { return f.values[key] }
func (f *fakeObject) Set(key string, value any) error {
	f.sets++
	f.values[key] = value
	return nil
}

func (f *fakeObject) Relate(key string, peer domain.Object) error {
	return errors.New("fake objects have no relationships")
}

func (f *fakeObject) Unrelate(key string, peer domain.Object) error {
	return errors.New("fake objects have no relationships")
}

// overrideObject handles its own undo and redo for the "managed" key.
type overrideObject struct {
	*fakeObject
	undone []domain.ChangeEvent
	redone []domain.ChangeEvent
}

func (o *overrideObject) UndoChange(ev domain.ChangeEvent) (bool, error) {
	if ev.Key != "managed" {
		return false, nil
	}
	o.undone = append(o.undone, ev)
	return true, nil
}

func (o *overrideObject) RedoChange(ev domain.ChangeEvent) (bool, error) {
	if ev.Key != "managed" {
		return false, nil
	}
	o.redone = append(o.redone, ev)
	return true, nil
}

// mutate sets key on obj and returns the command recording it.
func mutate(t *testing.T, f *undo.Factory, obj *fakeObject, key string, value any, significant bool) *undo.Command {
	t.Helper()
	ev, err := domain.NewChangeEvent(obj, key, domain.ChangeAttribute, obj.values[key], value)
	require.NoError(t, err)
	obj.values[key] = value

	cmd, err := f.NewCommand(ev)
	require.NoError(t, err)
	cmd.SetSignificant(significant)
	return cmd
}

// eventLog collects manager notifications.
type eventLog struct {
	events []undo.Event
}

func (l *eventLog) HandleUndoEvent(ev undo.Event) {
	l.events = append(l.events, ev)
}

func (l *eventLog) kinds() []undo.EventKind {
	out := make([]undo.EventKind, 0, len(l.events))
	for _, ev := range l.events {
		out = append(out, ev.Kind)
	}
	return out
}

func (l *eventLog) count(kind undo.EventKind) int {
	n := 0
	for _, ev := range l.events {
		if ev.Kind == kind {
			n++
		}
	}
	return n
}

func (l *eventLog) reset() {
	l.events = nil
}

func testSchema(t *testing.T) *domain.Schema {
	t.Helper()
	s := domain.NewSchema()
	require.NoError(t, s.DeclareRelationship(domain.Relationship{
		Type: "employee", Key: "dept", Cardinality: domain.ToOne,
		InverseType: "dept", InverseKey: "employees", InverseCardinality: domain.ToMany,
	}))
	require.NoError(t, s.DeclareRelationship(domain.Relationship{
		Type: "person", Key: "spouse", Cardinality: domain.ToOne,
		InverseType: "person", InverseKey: "spouse", InverseCardinality: domain.ToOne,
	}))
	require.NoError(t, s.DeclareRelationship(domain.Relationship{
		Type: "employee", Key: "projects", Cardinality: domain.ToMany,
		InverseType: "project", InverseKey: "members", InverseCardinality: domain.ToMany,
	}))
	require.NoError(t, s.DeclareRelationship(domain.Relationship{
		Type: "dept", Key: "tags", Cardinality: domain.ToMany,
	}))
	require.NoError(t, s.DeclareProperty("employee", "cache", domain.ChangeCached))
	require.NoError(t, s.DeclareProperty("employee", "level", domain.ChangeQualifier))
	return s
}

// fixture wires a store, a manager and a recorder the way an application does.
type fixture struct {
	store    *memory.Store
	history  *undo.Manager
	recorder *undo.Recorder
	log      *eventLog
}

func newFixture(t *testing.T, opts ...undo.Option) *fixture {
	t.Helper()
	schema := testSchema(t)
	log := &eventLog{}
	history := undo.NewManager(append([]undo.Option{undo.WithListener(log)}, opts...)...)
	recorder := undo.NewRecorder(history, undo.NewFactory(schema))

	store := memory.NewStore(schema)
	recorder.Attach(store)
	return &fixture{store: store, history: history, recorder: recorder, log: log}
}

func (f *fixture) create(t *testing.T, typ, id string) *memory.Entity {
	t.Helper()
	e, err := f.store.Create(typ, id)
	require.NoError(t, err)
	return e
}

var relationKeys = []string{"dept", "employees", "spouse", "projects", "members", "tags"}

// snapshot renders the observable state of every entity. To-many lists keep
// their order.
func snapshot(s *memory.Store) map[string]string {
	out := make(map[string]string)
	for _, e := range s.All() {
		for k, v := range e.Attributes() {
			out[e.Ref()+"."+k] = fmt.Sprint(v)
		}
		for _, key := range relationKeys {
			switch v := e.Get(key).(type) {
			case domain.Object:
				out[e.Ref()+"."+key] = domain.Ref(v)
			case []domain.Object:
				if len(v) == 0 {
					continue
				}
				refs := make([]string, 0, len(v))
				for _, peer := range v {
					refs = append(refs, domain.Ref(peer))
				}
				out[e.Ref()+"."+key] = strings.Join(refs, ",")
			}
		}
	}
	return out
}
