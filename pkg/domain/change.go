package domain

import "fmt"

// ChangeKind defines the category of a property mutation.
type ChangeKind int

const (
	// ChangeAttribute is a plain attribute set. Relevant holds the prior value.
	ChangeAttribute ChangeKind = iota + 1
	// ChangeToOne relates or unrelates a to-one relationship. Relevant holds the prior peer.
	ChangeToOne
	// ChangeToManyAdd adds a peer to a to-many relationship. Relevant holds the added peer.
	ChangeToManyAdd
	// ChangeToManyRemove removes a peer from a to-many relationship. Relevant holds the removed peer.
	ChangeToManyRemove
	// ChangeToManyReplace replaces the whole to-many list. Relevant holds the prior list.
	ChangeToManyReplace
	// ChangeDerived reports a recomputed derived property. Never recorded.
	ChangeDerived
	// ChangeCached reports a cached value update. Relevant holds the prior value.
	ChangeCached
	// ChangeQualifier reports a qualifier update. Relevant holds the prior value.
	ChangeQualifier
)

var changeKindNames = map[ChangeKind]string{
	ChangeAttribute:     "attribute",
	ChangeToOne:         "to_one",
	ChangeToManyAdd:     "to_many_add",
	ChangeToManyRemove:  "to_many_remove",
	ChangeToManyReplace: "to_many_replace",
	ChangeDerived:       "derived",
	ChangeCached:        "cached",
	ChangeQualifier:     "qualifier",
}

func (k ChangeKind) String() string {
	if name, ok := changeKindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("ChangeKind(%d)", int(k))
}

// Valid reports whether k belongs to the documented set of kinds.
func (k ChangeKind) Valid() bool {
	_, ok := changeKindNames[k]
	return ok
}

// Settable reports whether the change is replayed with a plain Set.
func (k ChangeKind) Settable() bool {
	return k == ChangeAttribute || k == ChangeCached || k == ChangeQualifier
}

// Relationship reports whether the change relates or unrelates peers.
func (k ChangeKind) Relationship() bool {
	switch k {
	case ChangeToOne, ChangeToManyAdd, ChangeToManyRemove, ChangeToManyReplace:
		return true
	}
	return false
}

// ParseChangeKind converts the textual name of a kind (as produced by String) back to a ChangeKind.
func ParseChangeKind(s string) (ChangeKind, error) {
	for k, name := range changeKindNames {
		if name == s {
			return k, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownChangeKind, s)
}

// ChangeEvent is an immutable record describing one mutation of a domain object.
//
// The meaning of Relevant depends on Kind: the prior value for settable, to-one,
// derived, cached and qualifier changes; the added or removed peer for to-many
// add/remove; the prior full list ([]Object) for to-many replace.
// New holds the value current at construction time.
type ChangeEvent struct {
	Object   Object
	Key      string
	Kind     ChangeKind
	Relevant any
	New      any
}

// NewChangeEvent validates and builds a ChangeEvent.
func NewChangeEvent(obj Object, key string, kind ChangeKind, relevant, newValue any) (ChangeEvent, error) {
	if obj == nil {
		return ChangeEvent{}, fmt.Errorf("%w: change event requires an object", ErrInvalidArgument)
	}
	if key == "" {
		return ChangeEvent{}, fmt.Errorf("%w: change event requires a key", ErrInvalidArgument)
	}
	if !kind.Valid() {
		return ChangeEvent{}, fmt.Errorf("%w: %d", ErrUnknownChangeKind, int(kind))
	}
	return ChangeEvent{
		Object:   obj,
		Key:      key,
		Kind:     kind,
		Relevant: relevant,
		New:      newValue,
	}, nil
}

// String renders the event for logs.
func (e ChangeEvent) String() string {
	return fmt.Sprintf("%s %s.%s", e.Kind, Ref(e.Object), e.Key)
}
