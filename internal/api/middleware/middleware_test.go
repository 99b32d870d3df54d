// Package middleware_test provides behavior tests for the API middleware package.
package middleware_test

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/jroosing/labnet/internal/api/middleware"
	"github.com/jroosing/labnet/internal/metrics"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// ============================================================================
// SlogRequestLogger Middleware Tests
// ============================================================================

func TestSlogRequestLogger_LogsRequest(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	router := gin.New()
	router.Use(middleware.SlogRequestLogger(logger))
	router.GET("/api/v1/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	out := buf.String()
	assert.Contains(t, out, "api request")
	assert.Contains(t, out, "path=/api/v1/health")
	assert.Contains(t, out, "status=200")
	assert.Contains(t, out, "request_id="+w.Header().Get(middleware.RequestIDHeader))
	assert.Len(t, w.Header().Get(middleware.RequestIDHeader), 36)
}

func TestSlogRequestLogger_ReusesRequestID(t *testing.T) {
	router := gin.New()
	router.Use(middleware.SlogRequestLogger(nil))
	router.GET("/test", func(c *gin.Context) {
		c.String(http.StatusOK, c.GetString("request_id"))
	})

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req.Header.Set(middleware.RequestIDHeader, "abc-123")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, "abc-123", w.Body.String())
	assert.Equal(t, "abc-123", w.Header().Get(middleware.RequestIDHeader))
}

// ============================================================================
// Metrics Middleware Tests
// ============================================================================

func TestMetrics_CountsByStatus(t *testing.T) {
	router := gin.New()
	router.Use(middleware.Metrics())
	router.DELETE("/gone", func(c *gin.Context) {
		c.Status(http.StatusGone)
	})

	c := metrics.APIRequestsTotal.WithLabelValues(http.MethodDelete, "410")
	before := testutil.ToFloat64(c)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/gone", nil))

	assert.Equal(t, http.StatusGone, w.Code)
	assert.Equal(t, before+1, testutil.ToFloat64(c))
}
