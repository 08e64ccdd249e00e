package app

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoggerJSONFormatAndLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, &Config{AppEnv: "production", LogFormat: "json", LogLevel: "warn"})

	logger.Info("dropped")
	require.Zero(t, buf.Len())

	logger.Warn("kept")
	var record map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	require.Equal(t, "kept", record["msg"])
	require.Equal(t, "shiftledger", record["service"])
	require.Equal(t, "production", record["env"])
}

func TestLoggerDefaultsToText(t *testing.T) {
	var buf bytes.Buffer
	newLogger(&buf, nil).Info("hello")
	require.Contains(t, buf.String(), "msg=hello")
	require.Contains(t, buf.String(), "env=development")
}
