package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewProductionWritesJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, "production", "info")
	logger.Info("payroll run finished", "processed", 3)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "payroll run finished", entry["msg"])
	assert.EqualValues(t, 3, entry["processed"])
	assert.NotEmpty(t, entry["time"])
}

func TestNewRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, "development", "warn")
	logger.Info("hidden")
	logger.Warn("shown")

	out := buf.String()
	assert.False(t, strings.Contains(out, "hidden"))
	assert.True(t, strings.Contains(out, "shown"))
}
