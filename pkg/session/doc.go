/*
Package session implements session management for undo workspaces.

Each session owns one rewind.Workspace. Access is serialized per session with a
reference-counted mutex, optionally backed by a distributed lock, and the
lifecycle events of the session's history are flushed to a ports.Journal after
every locked operation.
*/
package session
