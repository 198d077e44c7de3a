package protocol

import "encoding/json"

// Control directive operations accepted by a running serve process.
const (
	DirectiveScale  = "scale"
	DirectivePause  = "pause"
	DirectiveResume = "resume"
	DirectiveStatus = "status"
)

// Directive is one operator command sent over the control socket as a
// newline-delimited JSON object.
type Directive struct {
	Op      string `json:"op"`
	N       int    `json:"n,omitempty"`       // scale target
	AgentID int    `json:"agentId,omitempty"` // pause/resume target
	All     bool   `json:"all,omitempty"`     // pause/resume the whole pool
}

// Ack is the server's reply to a directive. Status is populated only for
// the status op and holds the orchestrator's snapshot as raw JSON so the
// wire types stay free of higher-level imports.
type Ack struct {
	OK     bool            `json:"ok"`
	Detail string          `json:"detail,omitempty"`
	Status json.RawMessage `json:"status,omitempty"`
}
