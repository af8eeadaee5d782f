// Package reaper periodically sweeps the registry for records whose
// backing process has died without sending a removal report.
package reaper

import (
	"log/slog"
	"sync"
	"time"

	"github.com/agentpulse/agentpulse/internal/core/status"
)

// Prober checks whether an OS process is still running.
type Prober func(pid int) bool

// Reaper runs a fixed-interval sweep over all registry records. A
// record with a PID is evicted when its process fails the liveness
// probe; a record without one is evicted once its age exceeds the
// fallback timeout. Sweeps run on a single goroutine, so a sweep is
// never triggered while the previous one is still in progress.
type Reaper struct {
	manager    *status.Manager
	probe      Prober
	interval   time.Duration
	staleAfter time.Duration
	logger     *slog.Logger
	stopCh     chan struct{}
	stopOnce   sync.Once
}

// New creates a reaper. Pass nil logger for default.
func New(manager *status.Manager, probe Prober, interval, staleAfter time.Duration, logger *slog.Logger) *Reaper {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reaper{
		manager:    manager,
		probe:      probe,
		interval:   interval,
		staleAfter: staleAfter,
		logger:     logger.With("component", "reaper"),
		stopCh:     make(chan struct{}),
	}
}

// Start begins background sweeping.
func (r *Reaper) Start() {
	go r.loop()
}

// Stop halts background sweeping. Safe to call multiple times.
func (r *Reaper) Stop() {
	r.stopOnce.Do(func() {
		close(r.stopCh)
	})
}

func (r *Reaper) loop() {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.sweep()
		case <-r.stopCh:
			return
		}
	}
}

func (r *Reaper) sweep() {
	now := time.Now().UnixMilli()

	for _, rec := range r.manager.List() {
		var reason string
		switch {
		case rec.PID != 0:
			if r.probe(rec.PID) {
				continue
			}
			reason = "process dead"
		case now-rec.Timestamp > r.staleAfter.Milliseconds():
			reason = "stale"
		default:
			continue
		}

		// The agent may have been removed, or reported again with a
		// live PID, between the snapshot and here; Evict declines in
		// both cases.
		if err := r.manager.Evict(rec.AgentID, rec.Timestamp); err == nil {
			r.logger.Info("reaped agent",
				"agent_id", rec.AgentID,
				"pid", rec.PID,
				"reason", reason)
		}
	}
}
