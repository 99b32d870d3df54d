package handlers

import (
	"net/http"
	"runtime"

	"github.com/gin-gonic/gin"

	"github.com/jroosing/labnet/internal/api/models"
	"github.com/jroosing/labnet/internal/dispatch"
)

// Health godoc
// @Summary Health check
// @Description Returns server health status
// @Tags system
// @Produce json
// @Success 200 {object} models.StatusResponse
// @Router /health [get]
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, models.StatusResponse{Status: "ok"})
}

// Version godoc
// @Summary Build version
// @Tags system
// @Produce json
// @Success 200 {object} dispatch.Envelope
// @Security BasicAuth
// @Router /_version [get]
func (h *Handler) Version(c *gin.Context) {
	c.JSON(http.StatusOK, dispatch.Success(models.VersionResponse{
		Version:   h.deps.Version,
		GoVersion: runtime.Version(),
	}))
}
