package status

import (
	"time"

	"github.com/agentpulse/agentpulse/pkg/types"
)

// pendingAnnounce is one armed debounce timer. The generation is
// captured by value before the timer is armed and identifies this
// arming to the fire callback; the timer handle itself is only used
// to stop it.
type pendingAnnounce struct {
	timer *time.Timer
	gen   uint64
}

// scheduleDebounce (re)starts the per-agent delay timer. A second
// waiting_for_user report restarts the delay rather than stacking a
// second timer. Must be called with mu held.
func (m *Manager) scheduleDebounce(agentID string) {
	if m.closed {
		return
	}
	if p, ok := m.timers[agentID]; ok {
		p.timer.Stop()
	}
	m.timerGen++
	gen := m.timerGen
	m.timers[agentID] = pendingAnnounce{
		timer: time.AfterFunc(m.delay, func() { m.debounceFired(agentID, gen) }),
		gen:   gen,
	}
}

// cancelDebounce clears any pending timer for agentID. Must be
// called with mu held.
func (m *Manager) cancelDebounce(agentID string) {
	if p, ok := m.timers[agentID]; ok {
		p.timer.Stop()
		delete(m.timers, agentID)
	}
}

// debounceFired runs when a delay timer expires. The generation check
// covers the window where the timer fired but a superseding report
// cancelled or replaced it before this callback got the lock. The
// record is re-read from the registry since fields other than status
// may have changed during the delay, and it is only announced if the
// status is still waiting_for_user.
func (m *Manager) debounceFired(agentID string, gen uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.timers[agentID]
	if !ok || p.gen != gen {
		return
	}
	delete(m.timers, agentID)

	rec, ok := m.registry.Get(agentID)
	if !ok || rec.Status != types.StatusWaitingForUser {
		return
	}
	m.announce.AnnounceStatus(rec)
}
