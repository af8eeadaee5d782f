package types

// WebSocketMessage is the envelope for every message sent to an
// observer connection.
type WebSocketMessage struct {
	Type    string      `json:"type"`    // "snapshot", "status_update", "agent_removed", "focus_request"
	Payload interface{} `json:"payload"` // The actual data
}

// Message kinds sent to observers.
const (
	MessageSnapshot     = "snapshot"
	MessageStatusUpdate = "status_update"
	MessageAgentRemoved = "agent_removed"
	MessageFocusRequest = "focus_request"
)

// AgentRemovedPayload is sent when a record leaves the registry, on
// any removal path.
type AgentRemovedPayload struct {
	AgentID string `json:"agentId"`
}

// FocusRequestPayload is the enriched rebroadcast of an observer's
// focus request. PID and Cwd are omitted when the agent is unknown.
type FocusRequestPayload struct {
	AgentID string `json:"agentId"`
	PID     int    `json:"pid,omitempty"`
	Cwd     string `json:"cwd,omitempty"`
}
