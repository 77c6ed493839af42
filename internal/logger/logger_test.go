package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

type logEntry map[string]any

func TestLoggerInfoWithFields(t *testing.T) {
	t.Parallel()

	buf := &bytes.Buffer{}
	log, err := New(Options{Level: "info", Writer: buf, Component: "pipeline"})
	require.NoError(t, err)

	log = log.WithFields(map[string]any{"plugin": "summary", "stage": "cloned"})
	log.Info("clone complete")

	var entry logEntry
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	require.Equal(t, "clone complete", entry["message"])
	require.Equal(t, "summary", entry["plugin"])
	require.Equal(t, "cloned", entry["stage"])
	require.Equal(t, "pipeline", entry["component"])
	require.Equal(t, "info", entry["level"])
}

func TestLoggerDefaultsToWarn(t *testing.T) {
	t.Parallel()

	buf := &bytes.Buffer{}
	log, err := New(Options{Writer: buf})
	require.NoError(t, err)

	log.Info("quiet")
	log.Debug("quieter")
	require.Equal(t, "", strings.TrimSpace(buf.String()))
	require.False(t, log.DebugEnabled())

	log.Warn("loud")
	require.Contains(t, buf.String(), "loud")
}

func TestLoggerDebugEnabled(t *testing.T) {
	t.Parallel()

	log, err := New(Options{Level: "debug", Writer: &bytes.Buffer{}})
	require.NoError(t, err)
	require.True(t, log.DebugEnabled())
}

func TestLoggerErrorIncludesContext(t *testing.T) {
	t.Parallel()

	buf := &bytes.Buffer{}
	log, err := New(Options{Level: "debug", Writer: buf})
	require.NoError(t, err)

	log = log.WithField("source", "https://github.com/lightningd/plugins")
	log.Error(errors.New("boom"), "listing failed")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)

	var entry logEntry
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	require.Equal(t, "listing failed", entry["message"])
	require.Equal(t, "https://github.com/lightningd/plugins", entry["source"])
	require.Equal(t, "boom", entry["error"])
}

func TestLoggerRejectsUnknownLevel(t *testing.T) {
	t.Parallel()

	_, err := New(Options{Level: "chatty"})
	require.Error(t, err)
}

func TestNilLoggerIsSafe(t *testing.T) {
	t.Parallel()

	var log *Logger
	require.NotPanics(t, func() {
		log.Info("x")
		log.Debug("x")
		log.Warn("x")
		log.Error(errors.New("x"), "x")
		require.Nil(t, log.WithField("a", 1))
		require.False(t, log.DebugEnabled())
	})
}
