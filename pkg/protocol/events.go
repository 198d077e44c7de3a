package protocol

import (
	"encoding/json"
	"time"
)

// EventType classifies a state-change event on the bus.
type EventType string

// Known event types. The set is closed; the notification server rejects
// nothing by type, but publishers only emit these.
const (
	EventProjectUpdated EventType = "project.updated"
	EventIssueCreated   EventType = "issue.created"
	EventIssueUpdated   EventType = "issue.updated"
	EventIssueDeleted   EventType = "issue.deleted"
	EventPhaseUpdated   EventType = "phase.updated"
)

// Valid reports whether t is a known event type.
func (t EventType) Valid() bool {
	switch t {
	case EventProjectUpdated, EventIssueCreated, EventIssueUpdated,
		EventIssueDeleted, EventPhaseUpdated:
		return true
	}
	return false
}

// StateChangeEvent is a single state-change notification. Events are
// ephemeral: the bus delivers them to current subscribers and forgets them
// (the runtime DB keeps a short history for display only).
type StateChangeEvent struct {
	Type          EventType       `json:"type"`
	Timestamp     time.Time       `json:"timestamp"`
	ProjectNumber int             `json:"projectNumber"`
	IssueNumber   int             `json:"issueNumber,omitempty"`
	Data          json.RawMessage `json:"data,omitempty"`
}

// --- Notification wire protocol ---
//
// Clients and server exchange JSON text messages over one persistent
// websocket connection.

// Wire message type constants.
const (
	MsgSubscribe = "subscribe" // client -> server
	MsgEvent     = "event"     // server -> client
	MsgError     = "error"     // server -> client; also used for info acks
)

// ClientMessage is a message received from a notification client.
type ClientMessage struct {
	Type           string `json:"type"`
	ProjectNumbers []int  `json:"projectNumbers,omitempty"`
}

// ServerMessage is a message sent to a notification client.
type ServerMessage struct {
	Type    string            `json:"type"`
	Event   *StateChangeEvent `json:"event,omitempty"`
	Message string            `json:"message,omitempty"`
}
