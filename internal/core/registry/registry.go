// Package registry owns the in-memory mapping from agent id to its
// current status record.
package registry

import (
	"sync"

	"github.com/agentpulse/agentpulse/pkg/types"
)

// Registry is the source of truth for live agent records. The
// underlying map is never exposed; all access goes through the
// methods below, and every returned record is a copy.
type Registry struct {
	mu      sync.RWMutex
	records map[string]*types.AgentStatusRecord
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{
		records: make(map[string]*types.AgentStatusRecord),
	}
}

// Upsert stores rec keyed by its agent id, overwriting any prior
// record for that key. When labelProvided is false the existing
// record's label carries over; a new agent session often reports
// status without knowing the label a user assigned earlier.
//
// If rec carries a non-empty PID, every other record with the same
// PID is evicted before rec is stored and returned to the caller so
// their removal can be announced ahead of rec's own update. The
// eviction scan and the store happen in one critical section.
func (r *Registry) Upsert(rec *types.AgentStatusRecord, labelProvided bool) []*types.AgentStatusRecord {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.records[rec.AgentID]; ok && !labelProvided {
		rec.Label = existing.Label
	}

	var evicted []*types.AgentStatusRecord
	if rec.PID != 0 {
		for id, other := range r.records {
			if id != rec.AgentID && other.PID == rec.PID {
				delete(r.records, id)
				evicted = append(evicted, other)
			}
		}
	}

	r.records[rec.AgentID] = rec
	return evicted
}

// Remove deletes the record for agentID and returns it. The second
// return value is false if the agent is unknown.
func (r *Registry) Remove(agentID string) (*types.AgentStatusRecord, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.records[agentID]
	if !ok {
		return nil, false
	}
	delete(r.records, agentID)
	return rec, true
}

// Get returns a copy of the record for agentID.
func (r *Registry) Get(agentID string) (*types.AgentStatusRecord, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.records[agentID]
	if !ok {
		return nil, false
	}
	return rec.Clone(), true
}

// List returns copies of all current records in unspecified order.
// The result is never nil so it serializes as an empty JSON array.
func (r *Registry) List() []*types.AgentStatusRecord {
	r.mu.RLock()
	defer r.mu.RUnlock()

	records := make([]*types.AgentStatusRecord, 0, len(r.records))
	for _, rec := range r.records {
		records = append(records, rec.Clone())
	}
	return records
}

// SetLabel updates only the label of an existing record. An empty
// label clears it. The timestamp is left alone: labels are metadata,
// not liveness signals. Returns a copy of the updated record, or
// false if the agent is unknown.
func (r *Registry) SetLabel(agentID, label string) (*types.AgentStatusRecord, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.records[agentID]
	if !ok {
		return nil, false
	}
	rec.Label = label
	return rec.Clone(), true
}

// Len returns the number of live records.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.records)
}
