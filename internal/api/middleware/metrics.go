package middleware

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/jroosing/labnet/internal/metrics"
)

// Metrics counts requests by method and status and times them by method.
func Metrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		timer := metrics.NewTimer()
		c.Next()
		timer.ObserveDuration(metrics.APIRequestDuration.WithLabelValues(c.Request.Method))
		metrics.APIRequestsTotal.WithLabelValues(c.Request.Method, strconv.Itoa(c.Writer.Status())).Inc()
	}
}
