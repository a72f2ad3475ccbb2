package logging

import (
	"bytes"
	"testing"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNew_JSONRespectsLevel(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log, err := New(Config{Level: "warn", Output: &buf})
	require.NoError(t, err)

	log.Info("hidden")
	log.Warn("source skipped", zap.String("source", "nyse-05"))
	require.NoError(t, log.Sync())

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.Len(t, lines, 1)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(lines[0], &entry))
	assert.Equal(t, "warn", entry["level"])
	assert.Equal(t, "source skipped", entry["msg"])
	assert.Equal(t, "nyse-05", entry["source"])
	assert.Contains(t, entry, "caller")
}

func TestNew_Console(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log, err := New(Config{Level: "debug", Format: "console", Output: &buf})
	require.NoError(t, err)
	log.Debug("parsed", zap.Int("events", 3))
	require.NoError(t, log.Sync())

	assert.Contains(t, buf.String(), "DEBUG")
	assert.Contains(t, buf.String(), "parsed")
}

func TestNew_Invalid(t *testing.T) {
	t.Parallel()

	_, err := New(Config{Level: "loud"})
	assert.Error(t, err)
	_, err = New(Config{Format: "xml"})
	assert.Error(t, err)
}
