package logging_test

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/jroosing/labnet/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// Logger Configuration Tests
// =============================================================================

func TestConfigure_AllLogLevels(t *testing.T) {
	levels := []string{"DEBUG", "INFO", "WARN", "WARNING", "ERROR", "debug", "", "INVALID"}

	for _, level := range levels {
		t.Run(level, func(t *testing.T) {
			logger := logging.Configure(logging.Config{Level: level, Output: &bytes.Buffer{}})
			assert.NotNil(t, logger)
		})
	}
}

func TestConfigure_LevelFilters(t *testing.T) {
	var buf bytes.Buffer
	logger := logging.Configure(logging.Config{Level: "WARN", Output: &buf})

	logger.Info("hidden")
	logger.Warn("shown")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")
}

func TestConfigure_StructuredJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := logging.Configure(logging.Config{
		Level:            "INFO",
		Structured:       true,
		StructuredFormat: "json",
		IncludePID:       true,
		ExtraFields:      map[string]string{"app": "labnet"},
		Output:           &buf,
	})

	logger.Info("started", "port", 5051)

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "started", line["msg"])
	assert.Equal(t, "labnet", line["app"])
	assert.Contains(t, line, "pid")
	assert.EqualValues(t, 5051, line["port"])
}

func TestConfigure_SetsDefault(t *testing.T) {
	logger := logging.Configure(logging.Config{Output: &bytes.Buffer{}})
	assert.Same(t, logger, slog.Default())
}

func TestComponent_AddsAttr(t *testing.T) {
	var buf bytes.Buffer
	base := logging.Configure(logging.Config{Output: &buf})

	logging.Component(base, "allocator").Info("hello")

	assert.Contains(t, buf.String(), "component=allocator")
}
