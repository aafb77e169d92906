package script

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"reflect"
	"sort"
	"strings"

	"github.com/aretw0/rewind/pkg/domain"
	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"
)

// Operation names accepted in a step.
const (
	OpSet        = "set"
	OpRelate     = "relate"
	OpUnrelate   = "unrelate"
	OpUndo       = "undo"
	OpRedo       = "redo"
	OpBegin      = "begin"
	OpEnd        = "end"
	OpCancel     = "cancel"
	OpLimit      = "limit"
	OpClear      = "clear"
	OpCheckpoint = "checkpoint"
	OpUndoTo     = "undo_to"
	OpRedoTo     = "redo_to"
	OpExpect     = "expect"
)

// shorthand maps an operation to the field a scalar argument fills, e.g. "undo: 2".
var shorthand = map[string]string{
	OpUndo:       "count",
	OpRedo:       "count",
	OpBegin:      "label",
	OpEnd:        "",
	OpCancel:     "",
	OpLimit:      "limit",
	OpClear:      "",
	OpCheckpoint: "label",
	OpUndoTo:     "label",
	OpRedoTo:     "label",
	OpSet:        "",
	OpRelate:     "",
	OpUnrelate:   "",
	OpExpect:     "",
}

// Script is a scripted editing session: a schema, the entities it starts
// with and the steps to play against them.
type Script struct {
	Name     string           `yaml:"name"`
	Limit    int              `yaml:"limit"`
	Schema   SchemaSpec       `yaml:"schema"`
	Entities []string         `yaml:"entities"`
	Steps    []map[string]any `yaml:"steps"`
}

// SchemaSpec declares relationships and property kinds.
// Entries are decoded with mapstructure so cardinalities and kinds may be written by name.
type SchemaSpec struct {
	Relationships []map[string]any `yaml:"relationships"`
	Properties    []map[string]any `yaml:"properties"`
}

// Property declares the change kind of typ.key.
type Property struct {
	Type string            `mapstructure:"type"`
	Key  string            `mapstructure:"key"`
	Kind domain.ChangeKind `mapstructure:"kind"`
}

// Step is one decoded operation.
type Step struct {
	Index int    `mapstructure:"-"`
	Op    string `mapstructure:"-"`

	Ref   string `mapstructure:"ref"`
	Key   string `mapstructure:"key"`
	Peer  string `mapstructure:"peer"`
	Value any    `mapstructure:"value"`
	Count int    `mapstructure:"count"`
	Label string `mapstructure:"label"`
	Limit int    `mapstructure:"limit"`
}

func (s Step) String() string {
	switch s.Op {
	case OpSet:
		return fmt.Sprintf("set %s.%s = %v", s.Ref, s.Key, s.Value)
	case OpRelate, OpUnrelate:
		return fmt.Sprintf("%s %s.%s %s", s.Op, s.Ref, s.Key, s.Peer)
	case OpExpect:
		return fmt.Sprintf("expect %s.%s == %v", s.Ref, s.Key, s.Value)
	case OpUndo, OpRedo:
		return fmt.Sprintf("%s x%d", s.Op, s.Count)
	case OpLimit:
		return fmt.Sprintf("limit %d", s.Limit)
	}
	if s.Label != "" {
		return s.Op + " " + s.Label
	}
	return s.Op
}

// Load parses a YAML script.
func Load(r io.Reader) (*Script, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read script: %w", err)
	}
	var sc Script
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&sc); err != nil {
		if err == io.EOF {
			return &sc, nil
		}
		return nil, fmt.Errorf("failed to parse script: %w", err)
	}
	return &sc, nil
}

// LoadFile parses the YAML script at path.
func LoadFile(path string) (*Script, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open script: %w", err)
	}
	defer f.Close()
	return Load(f)
}

// BuildSchema decodes the schema section.
func (sc *Script) BuildSchema() (*domain.Schema, error) {
	schema := domain.NewSchema()
	for i, raw := range sc.Schema.Relationships {
		var r domain.Relationship
		if err := decode(raw, &r); err != nil {
			return nil, fmt.Errorf("relationship %d: %w", i, err)
		}
		if err := schema.DeclareRelationship(r); err != nil {
			return nil, fmt.Errorf("relationship %d: %w", i, err)
		}
	}
	for i, raw := range sc.Schema.Properties {
		var p Property
		if err := decode(raw, &p); err != nil {
			return nil, fmt.Errorf("property %d: %w", i, err)
		}
		if err := schema.DeclareProperty(p.Type, p.Key, p.Kind); err != nil {
			return nil, fmt.Errorf("property %s.%s: %w", p.Type, p.Key, err)
		}
	}
	return schema, nil
}

// DecodeSteps decodes every step. Each step is a single-key mapping from the
// operation name to its arguments, or to a scalar shorthand.
func (sc *Script) DecodeSteps() ([]Step, error) {
	steps := make([]Step, 0, len(sc.Steps))
	for i, raw := range sc.Steps {
		if len(raw) != 1 {
			return nil, fmt.Errorf("step %d: %w: expected exactly one operation, got %d", i, domain.ErrInvalidArgument, len(raw))
		}
		for op, args := range raw {
			field, known := shorthand[op]
			if !known {
				return nil, fmt.Errorf("step %d: %w: unknown operation %q", i, domain.ErrInvalidArgument, op)
			}
			step := Step{Index: i, Op: op}
			if err := decode(normalize(field, args), &step); err != nil {
				return nil, fmt.Errorf("step %d (%s): %w", i, op, err)
			}
			if (op == OpUndo || op == OpRedo) && step.Count == 0 {
				step.Count = 1
			}
			steps = append(steps, step)
		}
	}
	return steps, nil
}

func normalize(field string, args any) map[string]any {
	switch v := args.(type) {
	case nil:
		return map[string]any{}
	case map[string]any:
		return v
	}
	if field == "" {
		// Scalar given to an operation without shorthand; decoding reports it.
		return map[string]any{"_": args}
	}
	return map[string]any{field: args}
}

func decode(input map[string]any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			cardinalityHook,
			changeKindHook,
		),
		ErrorUnused: true,
		Result:      out,
	})
	if err != nil {
		return err
	}
	return dec.Decode(input)
}

func cardinalityHook(from, to reflect.Type, data any) (any, error) {
	if to != reflect.TypeOf(domain.Cardinality(0)) || from.Kind() != reflect.String {
		return data, nil
	}
	switch strings.ToLower(data.(string)) {
	case "one", "to_one":
		return domain.ToOne, nil
	case "many", "to_many":
		return domain.ToMany, nil
	}
	return nil, fmt.Errorf("%w: unknown cardinality %q", domain.ErrInvalidArgument, data)
}

func changeKindHook(from, to reflect.Type, data any) (any, error) {
	if to != reflect.TypeOf(domain.ChangeKind(0)) || from.Kind() != reflect.String {
		return data, nil
	}
	return domain.ParseChangeKind(data.(string))
}

// Operations lists the accepted operation names.
func Operations() []string {
	ops := make([]string, 0, len(shorthand))
	for op := range shorthand {
		ops = append(ops, op)
	}
	sort.Strings(ops)
	return ops
}
