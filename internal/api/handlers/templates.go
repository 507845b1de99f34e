package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/frostdev-ops/pma-display-go/internal/core/pagestore"
	apperrors "github.com/frostdev-ops/pma-display-go/pkg/errors"
	"github.com/frostdev-ops/pma-display-go/pkg/utils"
)

// ListTemplates returns the stored template names and timestamps.
func (h *Handlers) ListTemplates(c *gin.Context) {
	if h.store == nil {
		utils.SendError(c, http.StatusServiceUnavailable, "template store not configured")
		return
	}
	tpls, err := h.store.List(c.Request.Context())
	if err != nil {
		utils.SendError(c, http.StatusInternalServerError, err.Error())
		return
	}

	type info struct {
		Name      string `json:"name"`
		CreatedAt string `json:"created_at"`
		UpdatedAt string `json:"updated_at"`
	}
	out := make([]info, 0, len(tpls))
	for _, tpl := range tpls {
		out = append(out, info{
			Name:      tpl.Name,
			CreatedAt: tpl.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
			UpdatedAt: tpl.UpdatedAt.Format("2006-01-02T15:04:05Z07:00"),
		})
	}
	utils.SendSuccess(c, out)
}

// GetTemplate returns one stored template definition.
func (h *Handlers) GetTemplate(c *gin.Context) {
	if h.store == nil {
		utils.SendError(c, http.StatusServiceUnavailable, "template store not configured")
		return
	}
	tpl, err := h.store.GetRaw(c.Request.Context(), c.Param("name"))
	if err != nil {
		if errors.Is(err, pagestore.ErrTemplateNotFound) {
			utils.SendAppError(c, apperrors.WithDetails(apperrors.ErrNotFound, err.Error()))
			return
		}
		utils.SendAppError(c, apperrors.WithDetails(apperrors.ErrInternalServer, err.Error()))
		return
	}
	utils.SendSuccess(c, gin.H{
		"name":       tpl.Name,
		"definition": json.RawMessage(tpl.Definition),
	})
}

// SaveTemplate upserts a template under the path name. The body is the raw
// page definition.
func (h *Handlers) SaveTemplate(c *gin.Context) {
	if h.store == nil {
		utils.SendError(c, http.StatusServiceUnavailable, "template store not configured")
		return
	}
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		utils.SendError(c, http.StatusBadRequest, "failed to read request body")
		return
	}
	if err := h.store.Save(c.Request.Context(), c.Param("name"), body); err != nil {
		utils.SendError(c, http.StatusBadRequest, err.Error())
		return
	}
	utils.SendSuccess(c, gin.H{"name": c.Param("name")})
}

// DeleteTemplate removes a stored template.
func (h *Handlers) DeleteTemplate(c *gin.Context) {
	if h.store == nil {
		utils.SendError(c, http.StatusServiceUnavailable, "template store not configured")
		return
	}
	if err := h.store.Delete(c.Request.Context(), c.Param("name")); err != nil {
		if errors.Is(err, pagestore.ErrTemplateNotFound) {
			utils.SendAppError(c, apperrors.WithDetails(apperrors.ErrNotFound, err.Error()))
			return
		}
		utils.SendAppError(c, apperrors.WithDetails(apperrors.ErrInternalServer, err.Error()))
		return
	}
	utils.SendSuccess(c, gin.H{"deleted": c.Param("name")})
}
