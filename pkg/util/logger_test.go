package util

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLogger_ProductionWritesJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger("production", &buf, false)

	logger.Debug("hidden")
	logger.Info("job created", "job_id", "abc")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "job created", line["msg"])
	assert.Equal(t, "abc", line["job_id"])
}

func TestNewLogger_DevelopmentIncludesDebug(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger("development", &buf, false)

	logger.Debug("cap reserved", "month_key", "2026-10")

	out := buf.String()
	assert.Contains(t, out, "cap reserved")
	assert.Contains(t, out, "month_key=2026-10")
	assert.NotContains(t, out, "\x1b[")
}
