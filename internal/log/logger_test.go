package log

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWithComponent(t *testing.T) {
	var buf bytes.Buffer
	Configure(Config{Level: "debug", Output: &buf, Service: "test"})

	logger := WithComponent("camera-session")
	logger.Info().Str("stream_id", "s-1").Msg("camera ready")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	require.Equal(t, "test", entry["service"])
	require.Equal(t, "camera-session", entry["component"])
	require.Equal(t, "s-1", entry["stream_id"])
	require.Equal(t, "camera ready", entry["message"])
}

func TestConfigureReplacesBase(t *testing.T) {
	var first, second bytes.Buffer
	Configure(Config{Level: "info", Output: &first, Service: "boot"})
	firstLogger := Base()
	firstLogger.Info().Msg("one")

	Configure(Config{Level: "warn", Output: &second, Service: "kiosk"})
	secondLogger := Base()
	secondLogger.Info().Msg("suppressed")
	secondLogger.Warn().Msg("two")

	require.Contains(t, first.String(), `"service":"boot"`)
	require.NotContains(t, second.String(), "suppressed")
	require.Contains(t, second.String(), `"service":"kiosk"`)
}
