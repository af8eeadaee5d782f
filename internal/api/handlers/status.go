package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/agentpulse/agentpulse/internal/core/status"
	"github.com/agentpulse/agentpulse/pkg/types"
)

// StatusHandler handles agent status reports and queries.
type StatusHandler struct {
	manager *status.Manager
}

// NewStatusHandler creates a new StatusHandler.
func NewStatusHandler(manager *status.Manager) *StatusHandler {
	return &StatusHandler{manager: manager}
}

// statusReport is the POST /status request body. Optional fields are
// pointers so a missing field is distinguishable from a zero value;
// the hook script that produces these reports extracts fields on a
// best-effort basis and routinely omits some.
type statusReport struct {
	AgentID     string  `json:"agentId"`
	Status      string  `json:"status"`
	ProjectName string  `json:"projectName"`
	Client      string  `json:"client"`
	Cwd         string  `json:"cwd"`
	PID         *int    `json:"pid"`
	Label       *string `json:"label"`
}

// Report validates and applies one status report. Rejections name the
// first offending field and leave the registry untouched.
func (h *StatusHandler) Report(c *gin.Context) {
	var req statusReport
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": bindErrorField(err)})
		return
	}

	if req.AgentID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "agentId"})
		return
	}
	st := types.AgentStatus(req.Status)
	if !st.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "status"})
		return
	}
	if req.ProjectName == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "projectName"})
		return
	}

	rep := status.Report{
		AgentID:     req.AgentID,
		Status:      st,
		ProjectName: req.ProjectName,
		Client:      req.Client,
		Cwd:         req.Cwd,
		Label:       req.Label,
	}
	if req.PID != nil {
		rep.PID = *req.PID
	}

	h.manager.Apply(rep)
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// List returns all current records.
func (h *StatusHandler) List(c *gin.Context) {
	c.JSON(http.StatusOK, h.manager.List())
}

// Remove deletes the record for an agent.
func (h *StatusHandler) Remove(c *gin.Context) {
	agentID := c.Param("agentId")

	if err := h.manager.Remove(agentID); err != nil {
		if errors.Is(err, status.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "agent not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// PatchLabel sets or clears an agent's user-assigned label. An empty
// string clears it.
func (h *StatusHandler) PatchLabel(c *gin.Context) {
	agentID := c.Param("agentId")

	var req struct {
		Label *string `json:"label"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.Label == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "label"})
		return
	}

	if err := h.manager.SetLabel(agentID, *req.Label); err != nil {
		if errors.Is(err, status.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "agent not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// bindErrorField extracts the offending field name from a JSON
// decode failure, falling back to "body" when the payload was not
// valid JSON at all.
func bindErrorField(err error) string {
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) && typeErr.Field != "" {
		return typeErr.Field
	}
	return "body"
}
