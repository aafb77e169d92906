package memory

import (
	"fmt"
	"sort"
	"strings"

	"github.com/aretw0/rewind/pkg/domain"
)

// Store holds in-memory domain objects (Entities) and keeps both sides of
// declared inverse relationships in sync. Every mutation is reported to the
// observers of the entity and of the store.
//
// A Store is not safe for concurrent use; serialize access through a session.
type Store struct {
	schema    *domain.Schema
	entities  map[string]*Entity
	observers observers
}

// NewStore creates an empty store. A nil schema is replaced by an empty one.
func NewStore(schema *domain.Schema) *Store {
	if schema == nil {
		schema = domain.NewSchema()
	}
	return &Store{
		schema:   schema,
		entities: make(map[string]*Entity),
	}
}

// Schema returns the schema the store maintains relationships with.
func (s *Store) Schema() *domain.Schema {
	return s.schema
}

// Create adds a new entity of the given type.
func (s *Store) Create(typ, id string) (*Entity, error) {
	if typ == "" || id == "" {
		return nil, fmt.Errorf("%w: entity requires type and id", domain.ErrInvalidArgument)
	}
	ref := typ + ":" + id
	if _, exists := s.entities[ref]; exists {
		return nil, fmt.Errorf("%w: entity %s already exists", domain.ErrInvalidArgument, ref)
	}
	e := &Entity{
		store:   s,
		id:      id,
		typ:     typ,
		attrs:   make(map[string]any),
		derived: make(map[string]any),
		toOne:   make(map[string]domain.Object),
		toMany:  make(map[string][]domain.Object),
	}
	s.entities[ref] = e
	s.schema.Derive(e, func(key string, value any) {
		e.derived[key] = value
	})
	return e, nil
}

// Get returns the entity identified by type and id.
func (s *Store) Get(typ, id string) (*Entity, error) {
	e, ok := s.entities[typ+":"+id]
	if !ok {
		return nil, fmt.Errorf("%w: %s:%s", domain.ErrObjectNotFound, typ, id)
	}
	return e, nil
}

// Find resolves a "type:id" reference.
func (s *Store) Find(ref string) (*Entity, error) {
	typ, id, ok := strings.Cut(ref, ":")
	if !ok {
		return nil, fmt.Errorf("%w: malformed reference %q", domain.ErrInvalidArgument, ref)
	}
	return s.Get(typ, id)
}

// All returns every entity ordered by reference.
func (s *Store) All() []*Entity {
	refs := make([]string, 0, len(s.entities))
	for ref := range s.entities {
		refs = append(refs, ref)
	}
	sort.Strings(refs)

	result := make([]*Entity, 0, len(refs))
	for _, ref := range refs {
		result = append(result, s.entities[ref])
	}
	return result
}

// AddChangeObserver registers o for the changes of every entity in the store.
func (s *Store) AddChangeObserver(o domain.ChangeObserver) (remove func()) {
	return s.observers.add(o)
}

// observers is a registration list of change observers, notified in registration order.
type observers struct {
	next    int
	entries []observerEntry
}

type observerEntry struct {
	id       int
	observer domain.ChangeObserver
}

func (o *observers) add(observer domain.ChangeObserver) func() {
	o.next++
	id := o.next
	o.entries = append(o.entries, observerEntry{id: id, observer: observer})
	return func() {
		for i, e := range o.entries {
			if e.id == id {
				o.entries = append(o.entries[:i], o.entries[i+1:]...)
				return
			}
		}
	}
}

func (o *observers) notify(ev domain.ChangeEvent) {
	snapshot := append([]observerEntry(nil), o.entries...)
	for _, e := range snapshot {
		e.observer.ObserveChange(ev)
	}
}
