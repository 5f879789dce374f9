package config

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLogger_Production(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, "production")

	assert.False(t, logger.Enabled(context.Background(), slog.LevelDebug))

	logger.Info("camera online", slog.String("camera_id", "gate"))

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "camera online", entry["msg"])
	assert.Equal(t, "gate", entry["camera_id"])
	assert.Equal(t, "vigia", entry["service"])
}

func TestNewLogger_Development(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, "development")

	assert.True(t, logger.Enabled(context.Background(), slog.LevelDebug))

	logger.Debug("frame skipped")
	assert.Contains(t, buf.String(), "msg=\"frame skipped\"")
	assert.Contains(t, buf.String(), "source=")
}
