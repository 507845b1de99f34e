package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/frostdev-ops/pma-display-go/internal/core/override"
	"github.com/frostdev-ops/pma-display-go/internal/core/pages"
	"github.com/frostdev-ops/pma-display-go/internal/core/resolver"
	"github.com/frostdev-ops/pma-display-go/internal/core/rotation"
	"github.com/frostdev-ops/pma-display-go/pkg/utils"
)

// renderRequest is the body of POST /api/v1/render.
type renderRequest struct {
	Page    json.RawMessage        `json:"page" binding:"required"`
	Targets []string               `json:"targets"`
	Scope   map[string]interface{} `json:"scope"`
}

// RenderPage renders one page on the requested targets (all registered
// targets when none are named). Rendering is best-effort per target.
func (h *Handlers) RenderPage(c *gin.Context) {
	var req renderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.SendError(c, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	page, err := pages.ParsePage(req.Page)
	if err != nil {
		utils.SendError(c, http.StatusBadRequest, err.Error())
		return
	}

	results, err := h.engine.RenderOnce(c.Request.Context(), page, resolver.Scope(req.Scope), req.Targets)
	if err != nil {
		utils.SendErrorWithDetails(c, http.StatusBadGateway, err.Error(), results)
		return
	}
	utils.SendSuccess(c, results)
}

// ListDisplays returns the registered display names and their status.
func (h *Handlers) ListDisplays(c *gin.Context) {
	names := h.engine.Targets()
	statuses := make([]interface{}, 0, len(names))
	for _, name := range names {
		if st, err := h.engine.Status(name); err == nil {
			statuses = append(statuses, st)
		}
	}
	utils.SendSuccess(c, statuses)
}

// DisplayStatus returns one display's queue, rotation, and override state.
func (h *Handlers) DisplayStatus(c *gin.Context) {
	st, err := h.engine.Status(c.Param("name"))
	if err != nil {
		utils.SendError(c, http.StatusNotFound, err.Error())
		return
	}
	utils.SendSuccess(c, st)
}

// rotationRequest is the body of POST /api/v1/displays/:name/rotation.
type rotationRequest struct {
	DefaultDurationSeconds float64                `json:"default_duration_seconds"`
	Pages                  []json.RawMessage      `json:"pages" binding:"required"`
	Scope                  map[string]interface{} `json:"scope"`
}

// StartRotation starts or reconfigures page rotation on one display.
func (h *Handlers) StartRotation(c *gin.Context) {
	var req rotationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.SendError(c, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	cfg := rotation.Config{
		Enabled:         true,
		DefaultDuration: time.Duration(req.DefaultDurationSeconds * float64(time.Second)),
		Scope:           resolver.Scope(req.Scope),
	}
	for i, raw := range req.Pages {
		p, err := pages.ParsePage(raw)
		if err != nil {
			utils.SendError(c, http.StatusBadRequest, fmt.Sprintf("pages[%d]: %v", i, err))
			return
		}
		cfg.Pages = append(cfg.Pages, p)
	}

	if err := h.engine.StartRotation(c.Param("name"), cfg); err != nil {
		utils.SendError(c, http.StatusBadRequest, err.Error())
		return
	}
	utils.SendSuccess(c, gin.H{"state": "running", "pages": len(cfg.Pages)})
}

// StopRotation stops page rotation on one display.
func (h *Handlers) StopRotation(c *gin.Context) {
	if err := h.engine.StopRotation(c.Param("name")); err != nil {
		utils.SendError(c, http.StatusNotFound, err.Error())
		return
	}
	utils.SendSuccess(c, gin.H{"state": "stopped"})
}

// overrideRequest is the body of POST /api/v1/displays/:name/override.
type overrideRequest struct {
	Page            json.RawMessage        `json:"page" binding:"required"`
	DurationSeconds float64                `json:"duration_seconds"`
	Scope           map[string]interface{} `json:"scope"`
}

// ShowOverride temporarily replaces the display content, preempting
// rotation for the requested duration. A rotation that was running resumes
// on its own when the override expires.
func (h *Handlers) ShowOverride(c *gin.Context) {
	var req overrideRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.SendError(c, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	page, err := pages.ParsePage(req.Page)
	if err != nil {
		utils.SendError(c, http.StatusBadRequest, err.Error())
		return
	}

	result, err := h.engine.ShowOverride(c.Request.Context(), c.Param("name"), override.Request{
		Page:     page,
		Scope:    resolver.Scope(req.Scope),
		Duration: time.Duration(req.DurationSeconds * float64(time.Second)),
	})
	if err != nil {
		utils.SendError(c, http.StatusBadRequest, err.Error())
		return
	}
	utils.SendSuccess(c, result)
}

// CancelOverride drops the active override without resuming rotation early.
func (h *Handlers) CancelOverride(c *gin.Context) {
	if err := h.engine.CancelOverride(c.Param("name")); err != nil {
		utils.SendError(c, http.StatusNotFound, err.Error())
		return
	}
	utils.SendSuccess(c, gin.H{"state": "idle"})
}
