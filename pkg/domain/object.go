package domain

// Object is the surface a domain object exposes so that recorded changes can be replayed.
// Identity is the pair (Type, ID).
type Object interface {
	ID() string
	Type() string

	// Get returns the current value stored under key (attribute or relationship).
	Get(key string) any

	// Set assigns a settable property.
	Set(key string, value any) error

	// Relate links peer through key. For a to-one key it replaces the current peer;
	// for a to-many key it adds peer to the list.
	Relate(key string, peer Object) error

	// Unrelate removes the link to peer through key.
	Unrelate(key string, peer Object) error
}

// ChangeObserver receives change events from a ChangeSource.
type ChangeObserver interface {
	ObserveChange(ev ChangeEvent)
}

// ChangeObserverFunc adapts a function to the ChangeObserver interface.
type ChangeObserverFunc func(ev ChangeEvent)

// ObserveChange calls f(ev).
func (f ChangeObserverFunc) ObserveChange(ev ChangeEvent) {
	f(ev)
}

// ChangeSource is implemented by anything that emits change events (a single object or a store).
type ChangeSource interface {
	// AddChangeObserver registers o and returns a function that unregisters it.
	AddChangeObserver(o ChangeObserver) (remove func())
}

// UndoOverride is an optional capability of an Object.
// When present it is consulted before the default replay logic. Returning true
// means the action was fully handled; false continues with the default behavior.
type UndoOverride interface {
	UndoChange(ev ChangeEvent) (handled bool, err error)
	RedoChange(ev ChangeEvent) (handled bool, err error)
}

// SameObject reports whether a and b refer to the same domain object.
func SameObject(a, b Object) bool {
	if a == nil || b == nil {
		return false
	}
	return a.Type() == b.Type() && a.ID() == b.ID()
}

// AsObject returns v as an Object when it holds one.
func AsObject(v any) (Object, bool) {
	obj, ok := v.(Object)
	if !ok || obj == nil {
		return nil, false
	}
	return obj, true
}

// AsObjects returns v as a list of objects. A nil value is an empty list.
func AsObjects(v any) ([]Object, bool) {
	switch list := v.(type) {
	case nil:
		return nil, true
	case []Object:
		return list, true
	}
	return nil, false
}

// Ref renders an object identity as "type:id".
func Ref(obj Object) string {
	if obj == nil {
		return "<nil>"
	}
	return obj.Type() + ":" + obj.ID()
}
