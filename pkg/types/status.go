package types

// AgentStatus represents the reported activity state of an agent.
type AgentStatus string

const (
	StatusRunning        AgentStatus = "running"
	StatusWaitingForUser AgentStatus = "waiting_for_user"
	StatusIdle           AgentStatus = "idle"
	StatusError          AgentStatus = "error"
)

// Valid reports whether s is one of the known agent statuses.
func (s AgentStatus) Valid() bool {
	switch s {
	case StatusRunning, StatusWaitingForUser, StatusIdle, StatusError:
		return true
	}
	return false
}

// AgentStatusRecord is the registry entry for one live agent session.
type AgentStatusRecord struct {
	AgentID     string      `json:"agentId"`          // Unique key, stable for one session
	Status      AgentStatus `json:"status"`           // Current activity state
	ProjectName string      `json:"projectName"`      // Display label for grouping
	Client      string      `json:"client,omitempty"` // Reporting agent runtime name
	Cwd         string      `json:"cwd,omitempty"`    // Working directory for workspace correlation
	PID         int         `json:"pid,omitempty"`    // OS process id, used for liveness checks
	Label       string      `json:"label,omitempty"`  // User-assigned name, survives status updates
	Timestamp   int64       `json:"timestamp"`        // Epoch ms of the last accepted status mutation
}

// Clone returns a copy of the record so callers can hand it to other
// goroutines without aliasing registry state.
func (r *AgentStatusRecord) Clone() *AgentStatusRecord {
	c := *r
	return &c
}
