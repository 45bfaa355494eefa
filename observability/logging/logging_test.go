package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSetupEmitsStructuredJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := Setup(Options{Service: "vaultd", Env: "test", Level: "debug", Output: &buf})
	logger.Debug("vault minted", "account", "vlt1xyz")

	var record map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	require.Equal(t, "vaultd", record["service"])
	require.Equal(t, "test", record["env"])
	require.Equal(t, "DEBUG", record["severity"])
	require.Equal(t, "vault minted", record["message"])
	require.Contains(t, record, "timestamp")
}

func TestSetupHonoursLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := Setup(Options{Service: "vaultd", Level: "warn", Output: &buf})
	logger.Info("dropped")
	require.Zero(t, buf.Len())
	require.Equal(t, slog.LevelError, ParseLevel("ERROR"))
	require.Equal(t, slog.LevelInfo, ParseLevel("bogus"))
}

func TestMasking(t *testing.T) {
	require.Equal(t, RedactedValue, MaskValue("secret"))
	require.Equal(t, "", MaskValue(" "))
	require.Equal(t, "vlt1abc", MaskField("account", "vlt1abc").Value.String())
	require.Equal(t, RedactedValue, MaskField("token", "abc").Value.String())
	require.Equal(t, "Bearer "+RedactedValue, MaskAuthorization("Bearer eyJhbGciOi"))
	require.Equal(t, RedactedValue, MaskAuthorization("opaque"))
	require.Contains(t, RedactionAllowlist(), "request_id")
}
