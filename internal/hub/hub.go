// Package hub fans registry change events out to every connected
// websocket observer.
package hub

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/agentpulse/agentpulse/pkg/types"
)

const (
	// writeWait is the deadline for a single message write.
	writeWait = 10 * time.Second

	// pongWait is how long a connection may go silent before it is
	// considered dead; pings go out at pingPeriod to keep it fed.
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10

	// sendBufferSize is the outbound queue per observer. A full queue
	// drops messages for that observer only; a stalled connection
	// never blocks announcements to others.
	sendBufferSize = 64

	maxInboundBytes = 4096
)

// RecordSource is the registry view the hub needs: the full snapshot
// for new observers and single lookups for focus enrichment.
type RecordSource interface {
	List() []*types.AgentStatusRecord
	Get(agentID string) (*types.AgentStatusRecord, bool)
}

// Hub maintains the set of connected observers. Each new observer
// receives a snapshot of all current records before any other
// message; everything after is an incremental delta against that
// baseline.
type Hub struct {
	mu        sync.RWMutex
	observers map[string]*observer
	source    RecordSource
	logger    *slog.Logger
	closed    bool
}

type observer struct {
	id   string
	conn *websocket.Conn
	send chan []byte
}

// New creates a hub reading snapshots from source. Pass nil logger
// for default.
func New(source RecordSource, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		observers: make(map[string]*observer),
		source:    source,
		logger:    logger.With("component", "hub"),
	}
}

// ServeConn registers conn as an observer and blocks until the
// connection closes. The snapshot is enqueued while the observer set
// is locked, so it always precedes any announcement to this
// connection, and any record stored after the snapshot was taken is
// announced separately.
func (h *Hub) ServeConn(conn *websocket.Conn) {
	obs := &observer{
		id:   uuid.New().String(),
		conn: conn,
		send: make(chan []byte, sendBufferSize),
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		conn.Close()
		return
	}
	snapshot, err := json.Marshal(types.WebSocketMessage{
		Type:    types.MessageSnapshot,
		Payload: h.source.List(),
	})
	if err != nil {
		h.mu.Unlock()
		conn.Close()
		return
	}
	obs.send <- snapshot
	h.observers[obs.id] = obs
	h.mu.Unlock()

	h.logger.Debug("observer connected", "observer", obs.id)

	go obs.writeLoop()
	h.readLoop(obs)
	h.drop(obs)
}

// Announce fans msg out to every connected observer. Sends are
// best-effort: an observer with a full queue misses this message.
func (h *Hub) Announce(msg types.WebSocketMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("failed to marshal message", "type", msg.Type, "error", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, obs := range h.observers {
		select {
		case obs.send <- data:
		default:
			h.logger.Debug("dropped message for slow observer",
				"observer", obs.id,
				"type", msg.Type)
		}
	}
}

// AnnounceStatus broadcasts a full record after an upsert.
func (h *Hub) AnnounceStatus(rec *types.AgentStatusRecord) {
	h.Announce(types.WebSocketMessage{Type: types.MessageStatusUpdate, Payload: rec})
}

// AnnounceRemoval broadcasts that an agent left the registry.
func (h *Hub) AnnounceRemoval(agentID string) {
	h.Announce(types.WebSocketMessage{
		Type:    types.MessageAgentRemoved,
		Payload: types.AgentRemovedPayload{AgentID: agentID},
	})
}

// ObserverCount returns the number of connected observers.
func (h *Hub) ObserverCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.observers)
}

// Close disconnects all observers and rejects new connections.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return
	}
	h.closed = true
	for id, obs := range h.observers {
		close(obs.send)
		delete(h.observers, id)
	}
}

// readLoop consumes inbound messages until the connection fails.
// Anything that is not a well-formed focus request is dropped
// silently; inbound traffic never mutates registry state.
func (h *Hub) readLoop(obs *observer) {
	obs.conn.SetReadLimit(maxInboundBytes)
	obs.conn.SetReadDeadline(time.Now().Add(pongWait))
	obs.conn.SetPongHandler(func(string) error {
		obs.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := obs.conn.ReadMessage()
		if err != nil {
			return
		}
		h.handleInbound(raw)
	}
}

// handleInbound relays an observer's focus request to all observers,
// including the sender, enriched with the agent's pid and cwd when
// the agent is known.
func (h *Hub) handleInbound(raw []byte) {
	var req struct {
		Type    string `json:"type"`
		AgentID string `json:"agentId"`
	}
	if err := json.Unmarshal(raw, &req); err != nil {
		return
	}
	if req.Type != types.MessageFocusRequest || req.AgentID == "" {
		return
	}

	payload := types.FocusRequestPayload{AgentID: req.AgentID}
	if rec, ok := h.source.Get(req.AgentID); ok {
		payload.PID = rec.PID
		payload.Cwd = rec.Cwd
	}
	h.Announce(types.WebSocketMessage{Type: types.MessageFocusRequest, Payload: payload})
}

// drop unregisters the observer and closes its queue, which ends the
// write loop and closes the connection.
func (h *Hub) drop(obs *observer) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.observers[obs.id]; !ok {
		return
	}
	delete(h.observers, obs.id)
	close(obs.send)
	h.logger.Debug("observer disconnected", "observer", obs.id)
}

// writeLoop drains the outbound queue in order. Queue order is send
// order, so the snapshot enqueued at registration goes out first.
func (o *observer) writeLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		o.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-o.send:
			o.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				o.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
				return
			}
			if err := o.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			o.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := o.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
