package undo_test

import (
	"bytes"
	"errors"
	"log/slog"
	"testing"

	"github.com/aretw0/rewind/internal/logging"
	"github.com/aretw0/rewind/pkg/adapters/memory"
	"github.com/aretw0/rewind/pkg/domain"
	"github.com/aretw0/rewind/pkg/undo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorder_NameScenario(t *testing.T) {
	f := newFixture(t)
	p := f.create(t, "person", "p")
	resume := f.recorder.Pause()
	require.NoError(t, p.Set("name", "A"))
	resume()

	require.NoError(t, p.Set("name", "B"))
	require.Equal(t, 1, f.history.Len())
	cmd := f.history.NextUndo().(*undo.Command)
	assert.Equal(t, "A", cmd.Relevant())
	assert.Equal(t, "B", cmd.NewValue())

	require.NoError(t, p.Set("name", "C"))
	require.Equal(t, 1, f.history.Len())
	assert.Equal(t, "A", cmd.Relevant())
	assert.Equal(t, "C", cmd.NewValue())

	require.NoError(t, f.history.Undo())
	assert.Equal(t, "A", p.Get("name"))
	require.NoError(t, f.history.Redo())
	assert.Equal(t, "C", p.Get("name"))
	assert.Equal(t, 1, f.history.Len(), "replay never records itself")
}

func TestRecorder_InverseRelationshipCollapse(t *testing.T) {
	f := newFixture(t)
	alice := f.create(t, "employee", "alice")
	eng := f.create(t, "dept", "eng")

	require.NoError(t, alice.Relate("dept", eng))
	require.Equal(t, 1, f.history.Len())
	cmd := f.history.NextUndo().(*undo.Command)
	assert.Equal(t, domain.ChangeToOne, cmd.Kind())
	assert.Same(t, alice, cmd.Object())

	require.NoError(t, f.history.Undo())
	assert.Nil(t, alice.Get("dept"))
	assert.Empty(t, eng.Get("employees"))

	require.NoError(t, f.history.Redo())
	assert.Same(t, eng, alice.Get("dept"))
	assert.Equal(t, []domain.Object{alice}, eng.Get("employees"))
}

func TestRecorder_RelateFromToManySide(t *testing.T) {
	f := newFixture(t)
	alice := f.create(t, "employee", "alice")
	eng := f.create(t, "dept", "eng")

	require.NoError(t, eng.Relate("employees", alice))
	require.Equal(t, 1, f.history.Len())
	cmd := f.history.NextUndo().(*undo.Command)
	assert.Equal(t, domain.ChangeToOne, cmd.Kind(), "the to-one side is kept")

	require.NoError(t, f.history.Undo())
	assert.Nil(t, alice.Get("dept"))
	assert.Empty(t, eng.Get("employees"))
}

func TestRecorder_OneToOneCollapse(t *testing.T) {
	f := newFixture(t)
	a := f.create(t, "person", "a")
	b := f.create(t, "person", "b")

	require.NoError(t, a.Relate("spouse", b))
	assert.Equal(t, 1, f.history.Len())

	require.NoError(t, f.history.Undo())
	assert.Nil(t, a.Get("spouse"))
	assert.Nil(t, b.Get("spouse"))
}

func TestRecorder_ManyToManyCollapse(t *testing.T) {
	f := newFixture(t)
	alice := f.create(t, "employee", "alice")
	apollo := f.create(t, "project", "apollo")

	require.NoError(t, alice.Relate("projects", apollo))
	assert.Equal(t, 1, f.history.Len())

	require.NoError(t, f.history.Undo())
	assert.Empty(t, alice.Get("projects"))
	assert.Empty(t, apollo.Get("members"))
}

func TestRecorder_ToManyUndoKeepsOrder(t *testing.T) {
	f := newFixture(t)
	eng := f.create(t, "dept", "eng")
	x := f.create(t, "employee", "x")
	y := f.create(t, "employee", "y")
	w := f.create(t, "employee", "w")
	t1 := f.create(t, "tag", "t1")
	t2 := f.create(t, "tag", "t2")
	t3 := f.create(t, "tag", "t3")

	for _, e := range []*memory.Entity{x, y, w} {
		require.NoError(t, eng.Relate("employees", e))
	}
	for _, tag := range []*memory.Entity{t3, t1, t2} {
		require.NoError(t, eng.Relate("tags", tag))
	}
	staff := []domain.Object{w, x, y}
	tags := []domain.Object{t1, t2, t3}
	assert.Equal(t, staff, eng.Get("employees"))
	assert.Equal(t, tags, eng.Get("tags"))
	before := snapshot(f.store)

	require.NoError(t, eng.Unrelate("employees", y))
	require.NoError(t, eng.Unrelate("tags", t2))
	assert.Equal(t, []domain.Object{w, x}, eng.Get("employees"))

	require.NoError(t, f.history.Undo())
	require.NoError(t, f.history.Undo())
	assert.Equal(t, staff, eng.Get("employees"))
	assert.Equal(t, tags, eng.Get("tags"))
	assert.Equal(t, before, snapshot(f.store))

	require.NoError(t, f.history.Redo())
	require.NoError(t, f.history.Redo())
	assert.Equal(t, []domain.Object{w, x}, eng.Get("employees"))
	assert.Equal(t, []domain.Object{t1, t3}, eng.Get("tags"))
}

func TestRecorder_DerivedFollowsRelationships(t *testing.T) {
	schema := testSchema(t)
	require.NoError(t, schema.DeclareDerived("dept", "headcount", func(obj domain.Object) any {
		staff, _ := obj.Get("employees").([]domain.Object)
		return len(staff)
	}))
	history := undo.NewManager()
	recorder := undo.NewRecorder(history, undo.NewFactory(schema))
	store := memory.NewStore(schema)
	recorder.Attach(store)

	eng, err := store.Create("dept", "eng")
	require.NoError(t, err)
	alice, err := store.Create("employee", "alice")
	require.NoError(t, err)
	bob, err := store.Create("employee", "bob")
	require.NoError(t, err)
	assert.Equal(t, 0, eng.Get("headcount"))

	require.NoError(t, alice.Relate("dept", eng))
	assert.Equal(t, 1, eng.Get("headcount"))
	require.NoError(t, eng.Relate("employees", bob))
	assert.Equal(t, 2, eng.Get("headcount"))
	require.NoError(t, eng.Unrelate("employees", alice))
	assert.Equal(t, 1, eng.Get("headcount"))
	assert.Equal(t, 3, history.Len(), "derived refreshes are never recorded")

	require.NoError(t, history.Undo())
	assert.Equal(t, 2, eng.Get("headcount"))
	require.NoError(t, history.Undo())
	require.NoError(t, history.Undo())
	assert.Equal(t, 0, eng.Get("headcount"))
	require.NoError(t, history.Redo())
	assert.Equal(t, 1, eng.Get("headcount"))
}

func TestRecorder_SkipsDerived(t *testing.T) {
	schema := testSchema(t)
	require.NoError(t, schema.DeclareDerived("employee", "display", func(obj domain.Object) any {
		name, _ := obj.Get("name").(string)
		return "Employee " + name
	}))
	history := undo.NewManager()
	recorder := undo.NewRecorder(history, undo.NewFactory(schema))

	f := &fixture{history: history, recorder: recorder}
	f.store = memory.NewStore(schema)
	recorder.Attach(f.store)

	alice := f.create(t, "employee", "alice")
	require.NoError(t, alice.Set("name", "Alice"))
	assert.Equal(t, 1, history.Len())
	assert.Equal(t, "Employee Alice", alice.Get("display"))

	require.NoError(t, history.Undo())
	assert.Equal(t, "Employee ", alice.Get("display"))
}

func TestRecorder_Pause(t *testing.T) {
	f := newFixture(t)
	alice := f.create(t, "employee", "alice")

	resumeOuter := f.recorder.Pause()
	resumeInner := f.recorder.Pause()
	require.NoError(t, alice.Set("name", "A"))
	resumeInner()
	assert.False(t, f.recorder.Recording())
	require.NoError(t, alice.Set("name", "B"))
	resumeOuter()

	assert.True(t, f.recorder.Recording())
	assert.Zero(t, f.history.Len())

	require.NoError(t, alice.Set("name", "C"))
	assert.Equal(t, 1, f.history.Len())
}

func TestRecorder_Significance(t *testing.T) {
	schema := testSchema(t)
	history := undo.NewManager()
	recorder := undo.NewRecorder(history, undo.NewFactory(schema), undo.WithSignificance(func(ev domain.ChangeEvent) bool {
		return ev.Key != "x"
	}))
	store := memory.NewStore(schema)
	recorder.Attach(store)

	e, err := store.Create("employee", "e")
	require.NoError(t, err)
	require.NoError(t, e.Set("x", 1))
	require.NoError(t, e.Set("name", "n"))
	require.NoError(t, e.Set("x", 2))

	entries := history.Entries()
	require.Len(t, entries, 3)
	assert.False(t, entries[0].Significant())
	assert.True(t, entries[1].Significant())
	assert.False(t, entries[2].Significant())

	require.NoError(t, history.Undo())
	assert.False(t, history.CanUndo())
	assert.Nil(t, e.Get("x"))
}

func TestRecorder_Groups(t *testing.T) {
	f := newFixture(t)
	alice := f.create(t, "employee", "alice")
	eng := f.create(t, "dept", "eng")

	f.recorder.BeginGroup("Onboard")
	f.recorder.BeginGroup("ignored")
	assert.True(t, f.recorder.Grouping())
	require.NoError(t, alice.Set("name", "Alice"))
	require.NoError(t, alice.Relate("dept", eng))
	assert.Zero(t, f.history.Len())
	require.NoError(t, f.recorder.EndGroup())

	require.Equal(t, 1, f.history.Len())
	assert.Equal(t, "Onboard", f.history.NextUndo().Name())

	require.NoError(t, f.history.Undo())
	assert.Nil(t, alice.Get("name"))
	assert.Nil(t, alice.Get("dept"))
	assert.Empty(t, eng.Get("employees"))

	require.NoError(t, f.recorder.EndGroup(), "no open group")
	f.recorder.BeginGroup("empty")
	require.NoError(t, f.recorder.EndGroup())
	assert.Equal(t, 1, f.history.Len(), "empty groups record nothing")
}

func TestRecorder_CancelGroup(t *testing.T) {
	f := newFixture(t)
	alice := f.create(t, "employee", "alice")

	f.recorder.BeginGroup("draft")
	require.NoError(t, alice.Set("name", "Draft"))
	f.recorder.CancelGroup()

	assert.False(t, f.recorder.Grouping())
	assert.Zero(t, f.history.Len())
	assert.Equal(t, "Draft", alice.Get("name"), "cancel keeps the changes")
}

func TestRecorder_GroupScope(t *testing.T) {
	f := newFixture(t)
	alice := f.create(t, "employee", "alice")

	rename := func() error {
		scope := f.recorder.GroupScope("Rename")
		defer scope.End()
		if err := alice.Set("first", "Ada"); err != nil {
			return err
		}
		inner := f.recorder.GroupScope("inner")
		require.NoError(t, alice.Set("last", "Lovelace"))
		require.NoError(t, inner.End())
		assert.True(t, f.recorder.Grouping(), "inner scope leaves the outer group open")
		return nil
	}
	require.NoError(t, rename())

	require.Equal(t, 1, f.history.Len())
	assert.Equal(t, "Rename", f.history.NextUndo().Name())

	scope := f.recorder.GroupScope("cancelled")
	require.NoError(t, alice.Set("first", "Grace"))
	scope.Cancel()
	require.NoError(t, scope.End())
	assert.Equal(t, 1, f.history.Len())
}

func TestRecorder_TransactionRollback(t *testing.T) {
	f := newFixture(t)
	alice := f.create(t, "employee", "alice")
	eng := f.create(t, "dept", "eng")
	require.NoError(t, alice.Set("name", "Alice"))

	boom := errors.New("validation failed")
	err := f.recorder.Transaction("Move", func() error {
		require.NoError(t, alice.Set("name", "Bob"))
		require.NoError(t, alice.Relate("dept", eng))
		return boom
	})
	assert.ErrorIs(t, err, boom)

	assert.Equal(t, "Alice", alice.Get("name"))
	assert.Nil(t, alice.Get("dept"))
	assert.Empty(t, eng.Get("employees"))
	assert.Equal(t, 1, f.history.Len(), "a failed transaction records nothing")
	assert.False(t, f.recorder.Grouping())
}

func TestRecorder_TransactionPanicRollsBack(t *testing.T) {
	f := newFixture(t)
	alice := f.create(t, "employee", "alice")

	assert.PanicsWithValue(t, "boom", func() {
		_ = f.recorder.Transaction("Explode", func() error {
			require.NoError(t, alice.Set("name", "Half"))
			panic("boom")
		})
	})

	assert.False(t, f.recorder.Grouping())
	assert.Nil(t, alice.Get("name"))
	assert.Zero(t, f.history.Len())

	require.NoError(t, alice.Set("name", "Alice"))
	assert.Equal(t, 1, f.history.Len(), "recording resumes outside any group")
}

func TestRecorder_TransactionJoinsOpenGroup(t *testing.T) {
	f := newFixture(t)
	alice := f.create(t, "employee", "alice")

	f.recorder.BeginGroup("outer")
	require.NoError(t, f.recorder.Transaction("inner", func() error {
		return alice.Set("name", "A")
	}))
	assert.True(t, f.recorder.Grouping())
	require.NoError(t, f.recorder.EndGroup())
	assert.Equal(t, "outer", f.history.NextUndo().Name())
}

func TestRecorder_LogsFailures(t *testing.T) {
	var buf bytes.Buffer
	history := undo.NewManager()
	recorder := undo.NewRecorder(history, undo.NewFactory(nil),
		undo.WithRecorderLogger(logging.NewWithWriter(&buf, slog.LevelInfo)))

	recorder.ObserveChange(domain.ChangeEvent{Object: newFake("p"), Key: "x", Kind: domain.ChangeKind(77)})

	assert.ErrorIs(t, recorder.Err(), domain.ErrUnknownChangeKind)
	assert.Contains(t, buf.String(), "change not recorded")
	assert.Contains(t, buf.String(), "err=")
	assert.Zero(t, history.Len())
}

func TestRecorder_Detach(t *testing.T) {
	f := newFixture(t)
	alice := f.create(t, "employee", "alice")

	f.recorder.Detach()
	require.NoError(t, alice.Set("name", "A"))
	assert.Zero(t, f.history.Len())

	detach := f.recorder.Attach(alice)
	require.NoError(t, alice.Set("name", "B"))
	assert.Equal(t, 1, f.history.Len())
	detach()
	require.NoError(t, alice.Set("title", "Dr"))
	assert.Equal(t, 1, f.history.Len())
}
