package validator

import (
	"fmt"
	"strings"

	"github.com/aretw0/rewind/internal/script"
	"github.com/aretw0/rewind/pkg/domain"
)

// ValidateScript checks a script without playing it: the schema and steps
// decode, every reference names a declared entity, relationship keys are
// declared, groups are balanced and checkpoints exist before they are used.
func ValidateScript(sc *script.Script) error {
	schema, err := sc.BuildSchema()
	if err != nil {
		return fmt.Errorf("invalid schema: %w", err)
	}
	steps, err := sc.DecodeSteps()
	if err != nil {
		return fmt.Errorf("invalid steps: %w", err)
	}

	var errors []string

	types := make(map[string]string) // ref -> type
	for _, ref := range sc.Entities {
		typ, id, ok := strings.Cut(ref, ":")
		if !ok || typ == "" || id == "" {
			errors = append(errors, fmt.Sprintf("Malformed entity reference: '%s'", ref))
			continue
		}
		if _, dup := types[ref]; dup {
			errors = append(errors, fmt.Sprintf("Duplicate entity: '%s'", ref))
		}
		types[ref] = typ
	}

	checkRef := func(step script.Step, ref string) bool {
		if _, ok := types[ref]; !ok {
			errors = append(errors, fmt.Sprintf("Step %d (%s): unknown entity '%s'", step.Index, step.Op, ref))
			return false
		}
		return true
	}

	grouping := false
	checkpoints := make(map[string]bool)

	for _, step := range steps {
		switch step.Op {
		case script.OpSet, script.OpExpect:
			checkRef(step, step.Ref)
			if step.Key == "" {
				errors = append(errors, fmt.Sprintf("Step %d (%s): missing key", step.Index, step.Op))
			}
		case script.OpRelate, script.OpUnrelate:
			okRef := checkRef(step, step.Ref)
			okPeer := checkRef(step, step.Peer)
			if !okRef || !okPeer {
				continue
			}
			rel, ok := schema.Relationship(types[step.Ref], step.Key)
			if !ok {
				errors = append(errors, fmt.Sprintf("Step %d (%s): '%s.%s' is not a declared relationship", step.Index, step.Op, types[step.Ref], step.Key))
				continue
			}
			if rel.InverseType != "" && rel.InverseType != types[step.Peer] {
				errors = append(errors, fmt.Sprintf("Step %d (%s): '%s.%s' expects %s, got '%s'", step.Index, step.Op, types[step.Ref], step.Key, rel.InverseType, step.Peer))
			}
		case script.OpBegin:
			if grouping {
				errors = append(errors, fmt.Sprintf("Step %d (begin): group already open", step.Index))
			}
			grouping = true
		case script.OpEnd, script.OpCancel:
			if !grouping {
				errors = append(errors, fmt.Sprintf("Step %d (%s): no open group", step.Index, step.Op))
			}
			grouping = false
		case script.OpLimit:
			if step.Limit < 1 {
				errors = append(errors, fmt.Sprintf("Step %d (limit): limit must be at least 1, got %d", step.Index, step.Limit))
			}
		case script.OpUndo, script.OpRedo:
			if step.Count < 1 {
				errors = append(errors, fmt.Sprintf("Step %d (%s): count must be positive", step.Index, step.Op))
			}
		case script.OpCheckpoint:
			checkpoints[step.Label] = true
		case script.OpUndoTo, script.OpRedoTo:
			if !checkpoints[step.Label] {
				errors = append(errors, fmt.Sprintf("Step %d (%s): checkpoint '%s' is not defined before use", step.Index, step.Op, step.Label))
			}
		}
	}

	if len(errors) > 0 {
		return fmt.Errorf("%w: found %d errors:\n- %s", domain.ErrInvalidArgument, len(errors), strings.Join(errors, "\n- "))
	}

	return nil
}
