package domain

import "time"

// JournalEventType names the history lifecycle event captured in a JournalRecord.
type JournalEventType string

const (
	JournalAdded        JournalEventType = "added"
	JournalRemoved      JournalEventType = "removed"
	JournalUndid        JournalEventType = "undid"
	JournalRedid        JournalEventType = "redid"
	JournalCleared      JournalEventType = "cleared"
	JournalLimitReduced JournalEventType = "limit_reduced"
	JournalChanged      JournalEventType = "changed"
)

// JournalRecord is the serializable trace of one history lifecycle event.
// Records are appended to a ports.Journal so that a session's activity can be audited.
type JournalRecord struct {
	Timestamp   time.Time        `json:"timestamp"`
	SessionID   string           `json:"session_id"`
	Type        JournalEventType `json:"type"`
	Entry       string           `json:"entry,omitempty"` // Name of the history entry, if any
	Significant bool             `json:"significant,omitempty"`
	Depth       int              `json:"depth"`   // Queue length after the event
	Current     int              `json:"current"` // Current pointer after the event
}

// HistoryStep is a read-only view of one history entry, used by reports and transports.
type HistoryStep struct {
	Index       int    `json:"index"`
	Name        string `json:"name"`
	Significant bool   `json:"significant"`
	Applied     bool   `json:"applied"`           // Entry is at or before the current pointer
	Current     bool   `json:"current,omitempty"` // Entry is the current pointer
	Changes     int    `json:"changes"`           // Number of recorded changes the entry groups
}

// HistoryView summarizes the state of a history for transports.
type HistoryView struct {
	Session string        `json:"session,omitempty"`
	Limit   int           `json:"limit"`
	Current int           `json:"current"`
	CanUndo bool          `json:"can_undo"`
	CanRedo bool          `json:"can_redo"`
	Steps   []HistoryStep `json:"steps"`
}
