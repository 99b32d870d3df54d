package handlers

import (
	"net/http"
	"runtime"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/load"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/jroosing/labnet/internal/api/models"
	"github.com/jroosing/labnet/internal/dispatch"
	"github.com/jroosing/labnet/internal/errs"
)

const defaultHistoryLimit = 50

// SystemData godoc
// @Summary Host statistics
// @Description Returns memory, CPU and disk usage of the host running labnet
// @Tags system
// @Produce json
// @Success 200 {object} dispatch.Envelope
// @Security BasicAuth
// @Router /_system_data [get]
func (h *Handler) SystemData(c *gin.Context) {
	ctx := c.Request.Context()
	uptime := time.Since(h.startTime)
	resp := models.SystemDataResponse{
		Uptime:        uptime.Round(time.Second).String(),
		UptimeSeconds: int64(uptime.Seconds()),
		StartTime:     h.startTime,
		GoRoutines:    runtime.NumGoroutine(),
	}

	if info, err := host.InfoWithContext(ctx); err == nil {
		resp.Hostname = info.Hostname
	}
	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		resp.Memory = models.MemoryData{
			Total:       vm.Total,
			Used:        vm.Used,
			Available:   vm.Available,
			UsedPercent: vm.UsedPercent,
		}
	} else {
		h.logger.Debug("memory stats unavailable", "err", err)
	}

	resp.CPU.Count = runtime.NumCPU()
	if n, err := cpu.CountsWithContext(ctx, true); err == nil && n > 0 {
		resp.CPU.Count = n
	}
	if pct, err := cpu.PercentWithContext(ctx, 0, false); err == nil && len(pct) > 0 {
		resp.CPU.UsedPercent = pct[0]
	}
	if avg, err := load.AvgWithContext(ctx); err == nil {
		resp.CPU.Load = []float64{avg.Load1, avg.Load5, avg.Load15}
	}

	path := "."
	if h.cfg != nil && h.cfg.Paths.DataDir != "" {
		path = h.cfg.Paths.DataDir
	}
	if du, err := disk.UsageWithContext(ctx, path); err == nil {
		resp.Disk = models.DiskData{
			Path:        path,
			Total:       du.Total,
			Used:        du.Used,
			Free:        du.Free,
			UsedPercent: du.UsedPercent,
		}
	} else {
		h.logger.Debug("disk stats unavailable", "path", path, "err", err)
	}

	c.JSON(http.StatusOK, dispatch.Success(resp))
}

// History godoc
// @Summary Recent calls
// @Description Returns the most recent mutating module calls, newest first
// @Tags system
// @Produce json
// @Param limit query int false "Maximum entries (default 50)"
// @Success 200 {object} dispatch.Envelope
// @Security BasicAuth
// @Router /_history [get]
func (h *Handler) History(c *gin.Context) {
	if h.deps.History == nil {
		c.JSON(http.StatusOK, dispatch.Failure(errs.New(errs.NotFound, "history is not enabled")))
		return
	}
	limit := defaultHistoryLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			c.JSON(http.StatusOK, dispatch.Failure(errs.New(errs.Validation, "'%s' is not a valid 'INTEGER' for limit", raw)))
			return
		}
		limit = n
	}
	entries, err := h.deps.History.Recent(limit)
	if err != nil {
		c.JSON(http.StatusOK, dispatch.Failure(errs.Wrap(errs.Internal, err, "read history")))
		return
	}
	c.JSON(http.StatusOK, dispatch.Success(entries))
}
