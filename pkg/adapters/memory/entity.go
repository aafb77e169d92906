package memory

import (
	"fmt"
	"reflect"
	"sort"

	"github.com/aretw0/rewind/pkg/domain"
)

// Entity is an in-memory domain object with attributes and relationships.
// It implements domain.Object and domain.ChangeSource.
type Entity struct {
	store *Store
	id    string
	typ   string

	attrs   map[string]any
	derived map[string]any
	toOne   map[string]domain.Object
	toMany  map[string][]domain.Object

	observers observers
}

var _ domain.Object = (*Entity)(nil)

// ID returns the entity identifier.
func (e *Entity) ID() string { return e.id }

// Type returns the entity datatype.
func (e *Entity) Type() string { return e.typ }

// Ref returns the "type:id" reference of the entity.
func (e *Entity) Ref() string { return e.typ + ":" + e.id }

// AddChangeObserver registers o for the changes of this entity only.
func (e *Entity) AddChangeObserver(o domain.ChangeObserver) (remove func()) {
	return e.observers.add(o)
}

// Get returns the value stored under key: an attribute, a derived value, the
// to-one peer (domain.Object) or a copy of the to-many list ([]domain.Object).
func (e *Entity) Get(key string) any {
	if rel, ok := e.relationship(key); ok {
		if rel.Cardinality == domain.ToOne {
			if peer, ok := e.toOne[key]; ok {
				return peer
			}
			return nil
		}
		return append([]domain.Object(nil), e.toMany[key]...)
	}
	if v, ok := e.derived[key]; ok {
		return v
	}
	return e.attrs[key]
}

// Attributes returns a copy of the settable and derived properties.
func (e *Entity) Attributes() map[string]any {
	out := make(map[string]any, len(e.attrs)+len(e.derived))
	for k, v := range e.attrs {
		out[k] = v
	}
	for k, v := range e.derived {
		out[k] = v
	}
	return out
}

// Set assigns a settable property and recomputes the derived properties of the entity.
func (e *Entity) Set(key string, value any) error {
	if key == "" {
		return fmt.Errorf("%w: empty key", domain.ErrInvalidArgument)
	}
	if _, ok := e.relationship(key); ok {
		return fmt.Errorf("%w: %s.%s is a relationship", domain.ErrInvalidArgument, e.typ, key)
	}

	old, existed := e.attrs[key]
	if (existed && reflect.DeepEqual(old, value)) || (!existed && value == nil) {
		return nil
	}
	if value == nil {
		delete(e.attrs, key)
	} else {
		e.attrs[key] = value
	}
	e.emit(key, e.store.schema.PropertyKind(e.typ, key), old, value)
	e.refreshDerived()
	return nil
}

func (e *Entity) refreshDerived() {
	e.store.schema.Derive(e, func(key string, value any) {
		old := e.derived[key]
		if reflect.DeepEqual(old, value) {
			return
		}
		e.derived[key] = value
		e.emit(key, domain.ChangeDerived, old, value)
	})
}

// Relate links peer through key. A to-one key replaces its current peer; a
// to-many key appends peer. The inverse side on peer is updated as well.
func (e *Entity) Relate(key string, peer domain.Object) error {
	rel, err := e.checkRelationship(key, peer)
	if err != nil {
		return err
	}
	e.attach(rel, peer)
	return nil
}

// Unrelate removes the link to peer through key, on both sides.
func (e *Entity) Unrelate(key string, peer domain.Object) error {
	rel, err := e.checkRelationship(key, peer)
	if err != nil {
		return err
	}

	if rel.Cardinality == domain.ToOne {
		if !domain.SameObject(e.toOne[key], peer) {
			return nil
		}
		e.setOne(key, nil)
	} else if !e.removeMany(key, peer) {
		return nil
	}
	e.detachInverse(rel, peer)
	return nil
}

// ReplaceRelated replaces the whole to-many list under key.
// Inverse sides of added and removed peers are updated and report their own
// changes; record the call inside a group to keep it a single history entry.
func (e *Entity) ReplaceRelated(key string, peers []domain.Object) error {
	rel, ok := e.relationship(key)
	if !ok || rel.Cardinality != domain.ToMany {
		return fmt.Errorf("%w: %s.%s is not a to-many relationship", domain.ErrInvalidArgument, e.typ, key)
	}
	for _, peer := range peers {
		if _, err := e.checkRelationship(key, peer); err != nil {
			return err
		}
	}

	old := append([]domain.Object(nil), e.toMany[key]...)
	next := append([]domain.Object(nil), peers...)
	sortPeers(next)
	if sameList(old, next) {
		return nil
	}
	if len(next) == 0 {
		delete(e.toMany, key)
	} else {
		e.toMany[key] = next
	}
	e.emit(key, domain.ChangeToManyReplace, old, append([]domain.Object(nil), next...))
	e.refreshDerived()

	for _, peer := range old {
		if !contains(next, peer) {
			e.detachInverse(rel, peer)
		}
	}
	for _, peer := range next {
		if !contains(old, peer) {
			e.attachInverse(rel, peer)
		}
	}
	return nil
}

func (e *Entity) relationship(key string) (domain.Relationship, bool) {
	return e.store.schema.Relationship(e.typ, key)
}

func (e *Entity) checkRelationship(key string, peer domain.Object) (domain.Relationship, error) {
	rel, ok := e.relationship(key)
	if !ok {
		return rel, fmt.Errorf("%w: %s.%s is not a declared relationship", domain.ErrInvalidArgument, e.typ, key)
	}
	if peer == nil {
		return rel, fmt.Errorf("%w: nil peer for %s.%s", domain.ErrInvalidArgument, e.typ, key)
	}
	if rel.InverseType != "" && peer.Type() != rel.InverseType {
		return rel, fmt.Errorf("%w: %s.%s expects %s, got %s", domain.ErrInvalidArgument, e.typ, key, rel.InverseType, peer.Type())
	}
	return rel, nil
}

// attach links peer on this side, releasing a displaced to-one peer, then updates the inverse side.
func (e *Entity) attach(rel domain.Relationship, peer domain.Object) {
	if rel.Cardinality == domain.ToOne {
		if domain.SameObject(e.toOne[rel.Key], peer) {
			return
		}
		if old := e.setOne(rel.Key, peer); old != nil {
			e.detachInverse(rel, old)
		}
	} else if !e.addMany(rel.Key, peer) {
		return
	}
	e.attachInverse(rel, peer)
}

// attachInverse records e on peer's inverse key. When that key is to-one, the
// peer's previous partner loses its link to peer.
func (e *Entity) attachInverse(rel domain.Relationship, peer domain.Object) {
	other, ok := e.sibling(rel, peer)
	if !ok {
		return
	}
	inv := rel.Reverse()
	if inv.Cardinality == domain.ToMany {
		other.addMany(inv.Key, e)
		return
	}
	if displaced := other.setOne(inv.Key, e); displaced != nil && !domain.SameObject(displaced, e) {
		if d, ok := displaced.(*Entity); ok && d.store == e.store {
			if rel.Cardinality == domain.ToOne {
				if domain.SameObject(d.toOne[rel.Key], other) {
					d.setOne(rel.Key, nil)
				}
			} else {
				d.removeMany(rel.Key, other)
			}
		}
	}
}

// detachInverse removes e from peer's inverse key.
func (e *Entity) detachInverse(rel domain.Relationship, peer domain.Object) {
	other, ok := e.sibling(rel, peer)
	if !ok {
		return
	}
	inv := rel.Reverse()
	if inv.Cardinality == domain.ToOne {
		if domain.SameObject(other.toOne[inv.Key], e) {
			other.setOne(inv.Key, nil)
		}
		return
	}
	other.removeMany(inv.Key, e)
}

// sibling returns peer as an entity of the same store when rel has an inverse to maintain.
func (e *Entity) sibling(rel domain.Relationship, peer domain.Object) (*Entity, bool) {
	if !rel.HasInverse() {
		return nil, false
	}
	other, ok := peer.(*Entity)
	if !ok || other.store != e.store {
		return nil, false
	}
	return other, true
}

// setOne assigns a to-one link and reports the change. It returns the previous peer.
func (e *Entity) setOne(key string, peer domain.Object) domain.Object {
	old := e.toOne[key]
	if peer == nil {
		delete(e.toOne, key)
	} else {
		e.toOne[key] = peer
	}
	var oldValue, newValue any
	if old != nil {
		oldValue = old
	}
	if peer != nil {
		newValue = peer
	}
	e.emit(key, domain.ChangeToOne, oldValue, newValue)
	e.refreshDerived()
	return old
}

// addMany inserts peer at its position in ref order, so that removing and
// re-adding a peer always restores the same list.
func (e *Entity) addMany(key string, peer domain.Object) bool {
	list := e.toMany[key]
	if contains(list, peer) {
		return false
	}
	ref := domain.Ref(peer)
	i := sort.Search(len(list), func(i int) bool { return domain.Ref(list[i]) > ref })
	next := make([]domain.Object, 0, len(list)+1)
	next = append(next, list[:i]...)
	next = append(next, peer)
	next = append(next, list[i:]...)
	e.toMany[key] = next
	e.emit(key, domain.ChangeToManyAdd, peer, e.Get(key))
	e.refreshDerived()
	return true
}

func (e *Entity) removeMany(key string, peer domain.Object) bool {
	list := e.toMany[key]
	for i, existing := range list {
		if !domain.SameObject(existing, peer) {
			continue
		}
		next := append(append([]domain.Object(nil), list[:i]...), list[i+1:]...)
		if len(next) == 0 {
			delete(e.toMany, key)
		} else {
			e.toMany[key] = next
		}
		e.emit(key, domain.ChangeToManyRemove, existing, e.Get(key))
		e.refreshDerived()
		return true
	}
	return false
}

func (e *Entity) emit(key string, kind domain.ChangeKind, relevant, newValue any) {
	ev := domain.ChangeEvent{
		Object:   e,
		Key:      key,
		Kind:     kind,
		Relevant: relevant,
		New:      newValue,
	}
	e.observers.notify(ev)
	e.store.observers.notify(ev)
}

func (e *Entity) String() string {
	return e.Ref()
}

func contains(list []domain.Object, obj domain.Object) bool {
	for _, existing := range list {
		if domain.SameObject(existing, obj) {
			return true
		}
	}
	return false
}

// sortPeers orders a to-many list by ref.
func sortPeers(list []domain.Object) {
	sort.SliceStable(list, func(i, j int) bool { return domain.Ref(list[i]) < domain.Ref(list[j]) })
}

func sameList(a, b []domain.Object) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !domain.SameObject(a[i], b[i]) {
			return false
		}
	}
	return true
}
