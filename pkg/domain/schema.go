package domain

import (
	"fmt"
	"sync"
)

// Cardinality tells whether a relationship key holds one peer or a list of peers.
type Cardinality int

const (
	ToOne Cardinality = iota + 1
	ToMany
)

// Relationship declares a relationship key on a datatype and its inverse on the peer datatype.
type Relationship struct {
	Type        string      `json:"type" yaml:"type" mapstructure:"type"`
	Key         string      `json:"key" yaml:"key" mapstructure:"key"`
	Cardinality Cardinality `json:"cardinality" yaml:"cardinality" mapstructure:"cardinality"`

	InverseType        string      `json:"inverse_type,omitempty" yaml:"inverse_type,omitempty" mapstructure:"inverse_type"`
	InverseKey         string      `json:"inverse_key,omitempty" yaml:"inverse_key,omitempty" mapstructure:"inverse_key"`
	InverseCardinality Cardinality `json:"inverse_cardinality,omitempty" yaml:"inverse_cardinality,omitempty" mapstructure:"inverse_cardinality"`
}

// HasInverse reports whether an inverse side is declared.
func (r Relationship) HasInverse() bool {
	return r.InverseType != "" && r.InverseKey != ""
}

// Reverse returns the declaration seen from the inverse side.
func (r Relationship) Reverse() Relationship {
	return Relationship{
		Type:               r.InverseType,
		Key:                r.InverseKey,
		Cardinality:        r.InverseCardinality,
		InverseType:        r.Type,
		InverseKey:         r.Key,
		InverseCardinality: r.Cardinality,
	}
}

// DeriveFunc computes a derived property from the current state of an object.
type DeriveFunc func(obj Object) any

type typeKey struct {
	typ string
	key string
}

// Schema holds the metadata the engine and the stores need about datatypes:
// relationship declarations (with inverses), the change kind emitted by each
// settable property and derived properties.
// Safe for concurrent use.
type Schema struct {
	mu            sync.RWMutex
	relationships map[typeKey]Relationship
	kinds         map[typeKey]ChangeKind
	derived       map[string][]derivedProperty
}

type derivedProperty struct {
	key  string
	eval DeriveFunc
}

// NewSchema creates an empty schema.
func NewSchema() *Schema {
	return &Schema{
		relationships: make(map[typeKey]Relationship),
		kinds:         make(map[typeKey]ChangeKind),
		derived:       make(map[string][]derivedProperty),
	}
}

// DeclareRelationship registers r and, when it has one, its inverse side.
func (s *Schema) DeclareRelationship(r Relationship) error {
	if r.Type == "" || r.Key == "" {
		return fmt.Errorf("%w: relationship requires type and key", ErrInvalidArgument)
	}
	if r.Cardinality != ToOne && r.Cardinality != ToMany {
		return fmt.Errorf("%w: relationship %s.%s has no cardinality", ErrInvalidArgument, r.Type, r.Key)
	}
	if r.HasInverse() && r.InverseCardinality != ToOne && r.InverseCardinality != ToMany {
		return fmt.Errorf("%w: inverse %s.%s has no cardinality", ErrInvalidArgument, r.InverseType, r.InverseKey)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.relationships[typeKey{r.Type, r.Key}] = r
	if r.HasInverse() {
		s.relationships[typeKey{r.InverseType, r.InverseKey}] = r.Reverse()
	}
	return nil
}

// Relationship returns the declaration of typ.key.
func (s *Schema) Relationship(typ, key string) (Relationship, bool) {
	if s == nil {
		return Relationship{}, false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.relationships[typeKey{typ, key}]
	return r, ok
}

// AreInverses reports whether typ.key and otherType.otherKey are declared as the
// two sides of the same relationship, in both directions.
func (s *Schema) AreInverses(typ, key, otherType, otherKey string) bool {
	r, ok := s.Relationship(typ, key)
	if !ok || !r.HasInverse() || r.InverseType != otherType || r.InverseKey != otherKey {
		return false
	}
	back, ok := s.Relationship(otherType, otherKey)
	return ok && back.InverseType == typ && back.InverseKey == key
}

// DeclareProperty sets the change kind emitted when typ.key is set.
// Only settable kinds are accepted; undeclared properties are plain attributes.
func (s *Schema) DeclareProperty(typ, key string, kind ChangeKind) error {
	if !kind.Settable() {
		return fmt.Errorf("%w: %s is not a settable kind", ErrInvalidArgument, kind)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.kinds[typeKey{typ, key}] = kind
	return nil
}

// PropertyKind returns the change kind emitted by typ.key.
func (s *Schema) PropertyKind(typ, key string) ChangeKind {
	if s == nil {
		return ChangeAttribute
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if kind, ok := s.kinds[typeKey{typ, key}]; ok {
		return kind
	}
	return ChangeAttribute
}

// DeclareDerived registers a derived property on typ, recomputed by eval.
func (s *Schema) DeclareDerived(typ, key string, eval DeriveFunc) error {
	if typ == "" || key == "" || eval == nil {
		return fmt.Errorf("%w: derived property requires type, key and function", ErrInvalidArgument)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.derived[typ] = append(s.derived[typ], derivedProperty{key: key, eval: eval})
	return nil
}

// Derive evaluates every derived property of obj's type and calls fn with each result.
func (s *Schema) Derive(obj Object, fn func(key string, value any)) {
	if s == nil || obj == nil {
		return
	}
	s.mu.RLock()
	props := append([]derivedProperty(nil), s.derived[obj.Type()]...)
	s.mu.RUnlock()

	for _, p := range props {
		fn(p.key, p.eval(obj))
	}
}
