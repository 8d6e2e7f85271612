package logging

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWritesJSONToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "relay.log")

	logger, err := New(Config{Level: LevelDebug, Format: FormatJSON, OutputFile: path})
	require.NoError(t, err)

	logger.WithComponent("assembler").WithChannel("COM3").WithTransaction("g-1", "42").Info("closed")
	require.NoError(t, logger.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var line map[string]any
	require.NoError(t, json.Unmarshal([]byte(strings.TrimSpace(string(data))), &line))
	assert.Equal(t, "closed", line["msg"])
	assert.Equal(t, "assembler", line["component"])
	assert.Equal(t, "COM3", line["channel"])
	assert.Equal(t, "g-1", line["guid"])
	assert.Equal(t, "42", line["sequence"])
	assert.True(t, strings.HasSuffix(line["time"].(string), "Z"))
}

func TestLevelFiltering(t *testing.T) {
	path := filepath.Join(t.TempDir(), "relay.log")

	logger, err := New(Config{Level: "WARN", Format: FormatText, OutputFile: path})
	require.NoError(t, err)

	logger.Info("hidden")
	logger.DroppedRecord("meta", "no open buffer")
	require.NoError(t, logger.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "hidden")
	assert.Contains(t, string(data), "no open buffer")
}

func TestGetLoggerFallback(t *testing.T) {
	defaultLogger = nil
	assert.NotNil(t, GetLogger())
	assert.NoError(t, Close())
}
