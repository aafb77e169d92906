package domain

import "errors"

// ErrInvalidState is returned when an operation is not allowed in the current state,
// e.g. undoing with nothing to undo or using a disposed history entry.
var ErrInvalidState = errors.New("invalid state")

// ErrInvalidArgument is returned when an operation receives an unusable argument,
// e.g. a change event without an object or a composite built from nothing.
var ErrInvalidArgument = errors.New("invalid argument")

// ErrUnknownChangeKind is returned when a change kind is outside the documented set.
// It signals a malformed event producer and is never expected in practice.
var ErrUnknownChangeKind = errors.New("unknown change kind")

// ErrObjectNotFound is returned when an object ID cannot be resolved in a store.
var ErrObjectNotFound = errors.New("object not found")

// ErrSessionNotFound is returned when a session ID cannot be found.
var ErrSessionNotFound = errors.New("session not found")
