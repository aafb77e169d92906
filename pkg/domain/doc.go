/*
Package domain contains the core types shared by the rewind undo engine and its adapters.

It describes what a reversible mutation looks like (ChangeEvent), which capabilities a
domain object must offer so that mutations can be replayed (Object, ChangeSource,
UndoOverride), and the relationship metadata needed to recognize the two halves of an
inverse relationship (Schema). This package is kept pure and free of external
dependencies like I/O or persistence, following Hexagonal Architecture principles.

# Key Entities

  - ChangeEvent: An immutable record of one property mutation.
  - ChangeKind: The category of a mutation (attribute set, to-one relate, to-many add...).
  - Object: The typed get/set/relate/unrelate surface used to replay a change.
  - Schema: Declares inverse relationships, property kinds and derived properties.
  - JournalRecord: A serializable trace of a history lifecycle event.
*/
package domain
