package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jroosing/labnet/internal/dispatch"
)

// ListAll godoc
// @Summary Live resources
// @Description Returns the resources of every stateful module with their current state
// @Tags servers
// @Produce json
// @Success 200 {object} dispatch.Envelope
// @Security BasicAuth
// @Router /_servers/list_all [get]
func (h *Handler) ListAll(c *gin.Context) {
	all, err := h.deps.State.ListAll(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusOK, dispatch.Failure(err))
		return
	}
	c.JSON(http.StatusOK, dispatch.Success(gin.H{"servers": all}))
}

// SaveState godoc
// @Summary Save resource states
// @Tags servers
// @Produce json
// @Param name path string true "Save name ([-a-zA-Z0-9_]+)"
// @Success 200 {object} dispatch.Envelope
// @Security BasicAuth
// @Router /_servers/save_state/{name} [get]
func (h *Handler) SaveState(c *gin.Context) {
	snap, err := h.deps.State.Save(c.Request.Context(), c.Param("name"))
	if err != nil {
		c.JSON(http.StatusOK, dispatch.Failure(err))
		return
	}
	c.JSON(http.StatusOK, dispatch.Success(snap))
}

// RestoreState godoc
// @Summary Restore resource states
// @Description Starts or stops resources whose live state differs from the save
// @Tags servers
// @Produce json
// @Param name path string true "Save name ([-a-zA-Z0-9_]+)"
// @Success 200 {object} dispatch.Envelope
// @Security BasicAuth
// @Router /_servers/restore_state/{name} [get]
func (h *Handler) RestoreState(c *gin.Context) {
	rep, err := h.deps.State.Restore(c.Request.Context(), c.Param("name"))
	if err != nil {
		c.JSON(http.StatusOK, dispatch.Failure(err))
		return
	}
	c.JSON(http.StatusOK, dispatch.Success(rep))
}
