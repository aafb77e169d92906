/*
Package rewind is an undo/redo engine for the property mutations of domain objects.

Every change observed on a domain object (an attribute set, a relationship
relate or unrelate) is captured as a reversible command and appended to a
bounded history. The history can then be walked backward and forward, with
adjacent edits of the same property combined into one entry and the two sides
of an inverse relationship recorded once.

# Concept

The engine is split in layers, following a hexagonal layout:

  - pkg/domain: the contracts (Object, ChangeEvent, Schema) shared by everything else.
  - pkg/undo: the engine itself (Command, Composite, Collector, Manager, Recorder).
  - pkg/adapters: the in-memory entity store, journals (memory, redis) and transports (HTTP, MCP).
  - pkg/session: concurrent access to one Workspace per session.

A Workspace bundles a schema, an entity store, a history and the recorder that
connects them.

# Usage

	ws := rewind.New(rewind.WithLimit(50))

	doc, _ := ws.Create("doc", "readme")
	_ = doc.Set("title", "Draft")
	_ = doc.Set("title", "Final") // combined with the previous set

	_ = ws.Undo() // title is unset again
	_ = ws.Redo() // title is "Final"

Several changes become one entry inside a transaction; a failing transaction
is rolled back:

	err := ws.Transaction("Rename", func() error {
		if err := doc.Set("title", "Guide"); err != nil {
			return err
		}
		return doc.Set("slug", "guide")
	})

None of the Workspace methods are safe for concurrent use; use pkg/session to
share workspaces between goroutines.
*/
package rewind
