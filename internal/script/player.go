package script

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"strings"

	"github.com/aretw0/rewind"
	"github.com/aretw0/rewind/internal/logging"
	"github.com/aretw0/rewind/pkg/domain"
	"github.com/aretw0/rewind/pkg/undo"
)

// ErrExpectation is returned when an expect step does not hold.
var ErrExpectation = errors.New("expectation failed")

// Result describes the history after one step.
type Result struct {
	Step    Step
	Depth   int
	Current int
}

// Player plays decoded steps against a workspace.
type Player struct {
	ws          *rewind.Workspace
	logger      *slog.Logger
	observe     func(Result)
	checkpoints map[string]undo.Checkpoint
	group       *undo.GroupScope
}

// Option configures the Player.
type Option func(*Player)

// WithLogger sets the logger for played steps.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Player) {
		p.logger = logger
	}
}

// WithObserver calls fn after every successful step.
func WithObserver(fn func(Result)) Option {
	return func(p *Player) {
		p.observe = fn
	}
}

// NewWorkspace builds a workspace with the script's schema, limit and entities.
// Creating the entities is not recorded.
func (sc *Script) NewWorkspace(opts ...rewind.Option) (*rewind.Workspace, error) {
	schema, err := sc.BuildSchema()
	if err != nil {
		return nil, err
	}
	wsOpts := []rewind.Option{rewind.WithSchema(schema)}
	if sc.Limit > 0 {
		wsOpts = append(wsOpts, rewind.WithLimit(sc.Limit))
	}
	ws := rewind.New(append(wsOpts, opts...)...)

	for _, ref := range sc.Entities {
		typ, id, err := splitRef(ref)
		if err != nil {
			return nil, err
		}
		if _, err := ws.Create(typ, id); err != nil {
			return nil, err
		}
	}
	return ws, nil
}

// NewPlayer creates a player for ws.
func NewPlayer(ws *rewind.Workspace, opts ...Option) *Player {
	p := &Player{
		ws:          ws,
		logger:      logging.NewNop(),
		checkpoints: make(map[string]undo.Checkpoint),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Play runs steps in order and stops at the first failure.
// A group left open by the steps is ended.
func (p *Player) Play(ctx context.Context, steps []Step) ([]Result, error) {
	results := make([]Result, 0, len(steps))
	for _, step := range steps {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		if err := p.apply(step); err != nil {
			p.logger.Error("step failed", "index", step.Index, "step", step.String(), "err", err)
			return results, fmt.Errorf("step %d (%s): %w", step.Index, step, err)
		}
		res := Result{
			Step:    step,
			Depth:   p.ws.History().Len(),
			Current: p.ws.History().Current(),
		}
		p.logger.Debug("step played", "index", step.Index, "step", step.String(), "current", res.Current)
		results = append(results, res)
		if p.observe != nil {
			p.observe(res)
		}
	}
	if p.group != nil {
		if err := p.endGroup(); err != nil {
			return results, err
		}
	}
	return results, nil
}

func (p *Player) apply(step Step) error {
	h := p.ws.History()
	switch step.Op {
	case OpSet:
		return p.ws.Set(step.Ref, step.Key, step.Value)
	case OpRelate:
		return p.ws.Relate(step.Ref, step.Key, step.Peer)
	case OpUnrelate:
		return p.ws.Unrelate(step.Ref, step.Key, step.Peer)
	case OpUndo:
		return repeat(step.Count, p.ws.Undo)
	case OpRedo:
		return repeat(step.Count, p.ws.Redo)
	case OpBegin:
		if p.group != nil {
			return fmt.Errorf("%w: group already open", domain.ErrInvalidState)
		}
		p.group = p.ws.Group(step.Label)
		return nil
	case OpEnd:
		return p.endGroup()
	case OpCancel:
		if p.group == nil {
			return fmt.Errorf("%w: no open group", domain.ErrInvalidState)
		}
		p.group.Cancel()
		p.group = nil
		return nil
	case OpLimit:
		return h.SetLimit(step.Limit)
	case OpClear:
		return h.Clear()
	case OpCheckpoint:
		p.checkpoints[step.Label] = h.Checkpoint()
		return nil
	case OpUndoTo, OpRedoTo:
		cp, ok := p.checkpoints[step.Label]
		if !ok {
			return fmt.Errorf("%w: unknown checkpoint %q", domain.ErrInvalidArgument, step.Label)
		}
		if step.Op == OpUndoTo {
			return h.UndoTo(cp)
		}
		return h.RedoTo(cp)
	case OpExpect:
		return p.expect(step)
	}
	return fmt.Errorf("%w: unknown operation %q", domain.ErrInvalidArgument, step.Op)
}

func (p *Player) endGroup() error {
	if p.group == nil {
		return fmt.Errorf("%w: no open group", domain.ErrInvalidState)
	}
	g := p.group
	p.group = nil
	return g.End()
}

func (p *Player) expect(step Step) error {
	e, err := p.ws.Find(step.Ref)
	if err != nil {
		return err
	}
	got := Comparable(e.Get(step.Key))
	want := Comparable(step.Value)
	if !reflect.DeepEqual(got, want) {
		return fmt.Errorf("%w: %s.%s is %v, want %v", ErrExpectation, step.Ref, step.Key, got, want)
	}
	return nil
}

// Comparable converts peers to their references and lists to []any, so that
// property values can be compared with values written in a script.
func Comparable(v any) any {
	switch x := v.(type) {
	case domain.Object:
		return x.Type() + ":" + x.ID()
	case []domain.Object:
		if len(x) == 0 {
			return nil
		}
		out := make([]any, len(x))
		for i, o := range x {
			out[i] = Comparable(o)
		}
		return out
	case []any:
		if len(x) == 0 {
			return nil
		}
		out := make([]any, len(x))
		for i, o := range x {
			out[i] = Comparable(o)
		}
		return out
	}
	return v
}

func repeat(n int, fn func() error) error {
	for i := 0; i < n; i++ {
		if err := fn(); err != nil {
			return err
		}
	}
	return nil
}

func splitRef(ref string) (string, string, error) {
	typ, id, ok := strings.Cut(ref, ":")
	if ok && typ != "" && id != "" {
		return typ, id, nil
	}
	return "", "", fmt.Errorf("%w: malformed reference %q", domain.ErrInvalidArgument, ref)
}
