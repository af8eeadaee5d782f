package status

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentpulse/agentpulse/internal/core/registry"
	"github.com/agentpulse/agentpulse/pkg/types"
)

// recordingAnnouncer captures announced events in order.
type recordingAnnouncer struct {
	mu     sync.Mutex
	events []announced
}

type announced struct {
	kind    string // "status" or "removed"
	agentID string
	status  types.AgentStatus
	label   string
}

func (a *recordingAnnouncer) AnnounceStatus(rec *types.AgentStatusRecord) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.events = append(a.events, announced{kind: "status", agentID: rec.AgentID, status: rec.Status, label: rec.Label})
}

func (a *recordingAnnouncer) AnnounceRemoval(agentID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.events = append(a.events, announced{kind: "removed", agentID: agentID})
}

func (a *recordingAnnouncer) snapshot() []announced {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]announced, len(a.events))
	copy(out, a.events)
	return out
}

func newTestManager(t *testing.T, delay time.Duration) (*Manager, *recordingAnnouncer) {
	t.Helper()
	ann := &recordingAnnouncer{}
	m := NewManager(registry.New(), ann, delay, nil)
	t.Cleanup(m.Close)
	return m, ann
}

func report(agentID string, status types.AgentStatus) Report {
	return Report{AgentID: agentID, Status: status, ProjectName: "proj"}
}

func TestApply_AnnouncesImmediately(t *testing.T) {
	m, ann := newTestManager(t, 3*time.Second)

	m.Apply(report("a1", types.StatusRunning))

	events := ann.snapshot()
	require.Len(t, events, 1)
	assert.Equal(t, "status", events[0].kind)
	assert.Equal(t, types.StatusRunning, events[0].status)

	rec, ok := m.Get("a1")
	require.True(t, ok)
	assert.Equal(t, types.StatusRunning, rec.Status)
	assert.NotZero(t, rec.Timestamp)
}

func TestApply_WaitingForUserIsDebounced(t *testing.T) {
	m, ann := newTestManager(t, 200*time.Millisecond)

	m.Apply(report("a1", types.StatusWaitingForUser))

	// Registry reflects the report immediately even though no event
	// has been announced yet.
	rec, ok := m.Get("a1")
	require.True(t, ok)
	assert.Equal(t, types.StatusWaitingForUser, rec.Status)

	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, ann.snapshot())

	require.Eventually(t, func() bool {
		return len(ann.snapshot()) == 1
	}, time.Second, 10*time.Millisecond)
	assert.Equal(t, types.StatusWaitingForUser, ann.snapshot()[0].status)
}

func TestApply_RunningSupersedesPendingWaiting(t *testing.T) {
	m, ann := newTestManager(t, 100*time.Millisecond)

	m.Apply(report("a1", types.StatusWaitingForUser))
	m.Apply(report("a1", types.StatusRunning))

	// Wait past the debounce window; the superseded waiting update
	// must never surface.
	time.Sleep(250 * time.Millisecond)

	events := ann.snapshot()
	require.Len(t, events, 1)
	assert.Equal(t, types.StatusRunning, events[0].status)
}

func TestApply_RepeatedWaitingRestartsDelay(t *testing.T) {
	m, ann := newTestManager(t, 150*time.Millisecond)

	m.Apply(report("a1", types.StatusWaitingForUser))
	time.Sleep(100 * time.Millisecond)
	m.Apply(report("a1", types.StatusWaitingForUser))

	// The first timer would have fired by now if it had not been
	// restarted.
	time.Sleep(100 * time.Millisecond)
	assert.Empty(t, ann.snapshot())

	require.Eventually(t, func() bool {
		return len(ann.snapshot()) == 1
	}, time.Second, 10*time.Millisecond)
}

func TestApply_DebounceRereadsRecordAtFireTime(t *testing.T) {
	m, ann := newTestManager(t, 100*time.Millisecond)

	m.Apply(report("a1", types.StatusWaitingForUser))
	require.NoError(t, m.SetLabel("a1", "pinned"))

	// First event is the label patch's immediate announce; the second
	// is the debounced waiting_for_user update, which must carry the
	// label applied during the delay.
	require.Eventually(t, func() bool {
		return len(ann.snapshot()) >= 2
	}, time.Second, 10*time.Millisecond)

	fired := ann.snapshot()[1]
	assert.Equal(t, types.StatusWaitingForUser, fired.status)
	assert.Equal(t, "pinned", fired.label)
}

func TestApply_RapidWaitingReportsStillAnnounce(t *testing.T) {
	m, ann := newTestManager(t, time.Microsecond)

	// With a near-zero delay each timer can fire while the next
	// report is being applied; the final waiting_for_user update must
	// still surface and no timer may linger.
	for i := 0; i < 50; i++ {
		m.Apply(report("a1", types.StatusWaitingForUser))
	}

	require.Eventually(t, func() bool {
		return len(ann.snapshot()) >= 1
	}, time.Second, time.Millisecond)
	for _, e := range ann.snapshot() {
		assert.Equal(t, types.StatusWaitingForUser, e.status)
	}

	require.Eventually(t, func() bool {
		m.mu.Lock()
		defer m.mu.Unlock()
		return len(m.timers) == 0
	}, time.Second, time.Millisecond)
}

func TestEvict(t *testing.T) {
	m, ann := newTestManager(t, 3*time.Second)

	m.Apply(report("a1", types.StatusRunning))
	rec, ok := m.Get("a1")
	require.True(t, ok)

	// A mutation after the observation supersedes the eviction.
	assert.ErrorIs(t, m.Evict("a1", rec.Timestamp-1), ErrSuperseded)
	_, ok = m.Get("a1")
	assert.True(t, ok)

	require.NoError(t, m.Evict("a1", rec.Timestamp))
	_, ok = m.Get("a1")
	assert.False(t, ok)

	events := ann.snapshot()
	require.Len(t, events, 2)
	assert.Equal(t, announced{kind: "removed", agentID: "a1"}, events[1])

	assert.ErrorIs(t, m.Evict("a1", rec.Timestamp), ErrNotFound)
}

func TestEvict_CancelsPendingDebounce(t *testing.T) {
	m, ann := newTestManager(t, 100*time.Millisecond)

	m.Apply(report("a1", types.StatusWaitingForUser))
	rec, ok := m.Get("a1")
	require.True(t, ok)
	require.NoError(t, m.Evict("a1", rec.Timestamp))

	time.Sleep(250 * time.Millisecond)

	events := ann.snapshot()
	require.Len(t, events, 1)
	assert.Equal(t, "removed", events[0].kind)
}

func TestApply_GhostRemovalAnnouncedBeforeUpdate(t *testing.T) {
	m, ann := newTestManager(t, 3*time.Second)

	first := report("old", types.StatusRunning)
	first.PID = 777
	m.Apply(first)

	second := report("new", types.StatusRunning)
	second.PID = 777
	m.Apply(second)

	events := ann.snapshot()
	require.Len(t, events, 3)
	assert.Equal(t, announced{kind: "removed", agentID: "old"}, events[1])
	assert.Equal(t, "new", events[2].agentID)
	assert.Equal(t, "status", events[2].kind)

	_, ok := m.Get("old")
	assert.False(t, ok)
}

func TestApply_GhostEvictionCancelsItsDebounce(t *testing.T) {
	m, ann := newTestManager(t, 100*time.Millisecond)

	first := report("old", types.StatusWaitingForUser)
	first.PID = 888
	m.Apply(first)

	second := report("new", types.StatusRunning)
	second.PID = 888
	m.Apply(second)

	time.Sleep(250 * time.Millisecond)

	for _, e := range ann.snapshot() {
		assert.NotEqual(t, types.StatusWaitingForUser, e.status,
			"evicted ghost's debounced update must not surface")
	}
}

func TestSetLabel(t *testing.T) {
	m, ann := newTestManager(t, 3*time.Second)

	m.Apply(report("a1", types.StatusRunning))
	before, _ := m.Get("a1")

	require.NoError(t, m.SetLabel("a1", "my agent"))

	events := ann.snapshot()
	require.Len(t, events, 2)
	assert.Equal(t, "my agent", events[1].label)

	// Label patches do not refresh the liveness timestamp.
	after, _ := m.Get("a1")
	assert.Equal(t, before.Timestamp, after.Timestamp)
	assert.Equal(t, "my agent", after.Label)

	assert.ErrorIs(t, m.SetLabel("unknown", "x"), ErrNotFound)
}

func TestLabel_SurvivesStatusReport(t *testing.T) {
	m, _ := newTestManager(t, 3*time.Second)

	m.Apply(report("a1", types.StatusRunning))
	require.NoError(t, m.SetLabel("a1", "keep me"))

	m.Apply(report("a1", types.StatusIdle))
	rec, _ := m.Get("a1")
	assert.Equal(t, "keep me", rec.Label)

	// A report that explicitly clears the label wins.
	empty := ""
	cleared := report("a1", types.StatusRunning)
	cleared.Label = &empty
	m.Apply(cleared)
	rec, _ = m.Get("a1")
	assert.Empty(t, rec.Label)
}

func TestRemove(t *testing.T) {
	m, ann := newTestManager(t, 3*time.Second)

	m.Apply(report("a1", types.StatusRunning))
	require.NoError(t, m.Remove("a1"))

	events := ann.snapshot()
	require.Len(t, events, 2)
	assert.Equal(t, announced{kind: "removed", agentID: "a1"}, events[1])

	assert.ErrorIs(t, m.Remove("a1"), ErrNotFound)
}

func TestRemove_CancelsPendingDebounce(t *testing.T) {
	m, ann := newTestManager(t, 100*time.Millisecond)

	m.Apply(report("a1", types.StatusWaitingForUser))
	require.NoError(t, m.Remove("a1"))

	time.Sleep(250 * time.Millisecond)

	events := ann.snapshot()
	require.Len(t, events, 1)
	assert.Equal(t, "removed", events[0].kind)
}
