// Package status coordinates registry mutations with debounce and
// broadcast so every change reaches observers in a consistent order.
package status

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/agentpulse/agentpulse/internal/core/registry"
	"github.com/agentpulse/agentpulse/pkg/types"
)

// ErrNotFound is returned for operations on an unknown agent id.
var ErrNotFound = errors.New("agent not found")

// ErrSuperseded is returned by Evict when the record was mutated
// after the caller observed it, so the eviction no longer applies.
var ErrSuperseded = errors.New("agent superseded by a newer report")

// Announcer receives registry change events for fanout to observers.
type Announcer interface {
	AnnounceStatus(rec *types.AgentStatusRecord)
	AnnounceRemoval(agentID string)
}

// Report is one validated inbound status report.
type Report struct {
	AgentID     string
	Status      types.AgentStatus
	ProjectName string
	Client      string
	Cwd         string
	PID         int
	Label       *string // nil when the report omitted the field
}

// Manager applies reports to the registry and decides when each
// change is announced. Every mutation path goes through the manager's
// mutex, so the eviction-before-store and announce ordering rules
// hold even with concurrent reporters.
type Manager struct {
	mu       sync.Mutex
	registry *registry.Registry
	announce Announcer
	logger   *slog.Logger

	// Debounce state, guarded by mu.
	delay    time.Duration
	timers   map[string]pendingAnnounce
	timerGen uint64
	closed   bool
}

// NewManager creates a manager. Pass nil logger for default.
func NewManager(reg *registry.Registry, announce Announcer, delay time.Duration, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		registry: reg,
		announce: announce,
		logger:   logger.With("component", "status"),
		delay:    delay,
		timers:   make(map[string]pendingAnnounce),
	}
}

// Apply upserts the report into the registry and announces the
// change. Ghost records evicted by a PID collision are announced as
// removals before the new record's own update. A waiting_for_user
// status is held back by the debounce delay instead of being
// announced immediately.
func (m *Manager) Apply(rep Report) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec := &types.AgentStatusRecord{
		AgentID:     rep.AgentID,
		Status:      rep.Status,
		ProjectName: rep.ProjectName,
		Client:      rep.Client,
		Cwd:         rep.Cwd,
		PID:         rep.PID,
		Timestamp:   time.Now().UnixMilli(),
	}
	labelProvided := rep.Label != nil
	if labelProvided {
		rec.Label = *rep.Label
	}

	for _, ghost := range m.registry.Upsert(rec, labelProvided) {
		m.cancelDebounce(ghost.AgentID)
		m.announce.AnnounceRemoval(ghost.AgentID)
		m.logger.Info("evicted ghost agent",
			"agent_id", ghost.AgentID,
			"pid", ghost.PID,
			"replaced_by", rec.AgentID)
	}

	// Any report supersedes a pending announcement for this agent.
	m.cancelDebounce(rec.AgentID)

	if rec.Status == types.StatusWaitingForUser {
		m.scheduleDebounce(rec.AgentID)
		return
	}
	m.announce.AnnounceStatus(rec.Clone())
}

// SetLabel patches only the label of an existing record and announces
// the update immediately, never debounced.
func (m *Manager) SetLabel(agentID, label string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.registry.SetLabel(agentID, label)
	if !ok {
		return ErrNotFound
	}
	m.announce.AnnounceStatus(rec)
	return nil
}

// Remove deletes the record for agentID, cancels any pending
// debounce, and announces the removal.
func (m *Manager) Remove(agentID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.registry.Remove(agentID); !ok {
		return ErrNotFound
	}
	m.cancelDebounce(agentID)
	m.announce.AnnounceRemoval(agentID)
	return nil
}

// Evict removes the record for agentID only if it has not been
// mutated since the caller observed it at seenTimestamp. The reaper
// decides liveness from a snapshot; a report accepted after that
// snapshot refreshes the timestamp and supersedes the eviction.
// Removal semantics otherwise match Remove.
func (m *Manager) Evict(agentID string, seenTimestamp int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.registry.Get(agentID)
	if !ok {
		return ErrNotFound
	}
	if rec.Timestamp != seenTimestamp {
		return ErrSuperseded
	}
	m.registry.Remove(agentID)
	m.cancelDebounce(agentID)
	m.announce.AnnounceRemoval(agentID)
	return nil
}

// Get returns a copy of the record for agentID.
func (m *Manager) Get(agentID string) (*types.AgentStatusRecord, bool) {
	return m.registry.Get(agentID)
}

// List returns copies of all current records.
func (m *Manager) List() []*types.AgentStatusRecord {
	return m.registry.List()
}

// Close cancels all pending debounce timers. Reports applied after
// Close still reach the registry, but no new debounced announcements
// are scheduled.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closed = true
	for id, p := range m.timers {
		p.timer.Stop()
		delete(m.timers, id)
	}
}
