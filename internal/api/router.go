// Package api provides the HTTP and websocket surface of the daemon.
package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/agentpulse/agentpulse/internal/api/handlers"
	"github.com/agentpulse/agentpulse/internal/core/status"
	"github.com/agentpulse/agentpulse/internal/hub"
)

// Router holds all API dependencies and routes.
type Router struct {
	engine  *gin.Engine
	manager *status.Manager
	hub     *hub.Hub
	version string
	started time.Time

	upgrader websocket.Upgrader
}

// NewRouter creates a new API router.
func NewRouter(manager *status.Manager, h *hub.Hub, version string) *Router {
	r := &Router{
		engine:  gin.Default(),
		manager: manager,
		hub:     h,
		version: version,
		started: time.Now(),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // Observers are local editor UIs
			},
		},
	}

	r.setupRoutes()
	return r
}

// setupRoutes configures all API routes.
func (r *Router) setupRoutes() {
	r.engine.GET("/health", r.health)

	r.engine.POST("/status", r.reportStatus)
	r.engine.GET("/status", r.listStatus)
	r.engine.DELETE("/status/:agentId", r.removeStatus)
	r.engine.PATCH("/status/:agentId/label", r.patchLabel)

	// WebSocket for real-time updates
	r.engine.GET("/ws", r.handleWebSocket)
}

// Handler returns the HTTP handler.
func (r *Router) Handler() http.Handler {
	return r.engine
}

// health reports liveness without touching the registry.
func (r *Router) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"version": r.version,
		"uptime":  int64(time.Since(r.started).Seconds()),
	})
}

// Status handlers

func (r *Router) reportStatus(c *gin.Context) {
	h := handlers.NewStatusHandler(r.manager)
	h.Report(c)
}

func (r *Router) listStatus(c *gin.Context) {
	h := handlers.NewStatusHandler(r.manager)
	h.List(c)
}

func (r *Router) removeStatus(c *gin.Context) {
	h := handlers.NewStatusHandler(r.manager)
	h.Remove(c)
}

func (r *Router) patchLabel(c *gin.Context) {
	h := handlers.NewStatusHandler(r.manager)
	h.PatchLabel(c)
}

// WebSocket handler

func (r *Router) handleWebSocket(c *gin.Context) {
	conn, err := r.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}
	r.hub.ServeConn(conn)
}
