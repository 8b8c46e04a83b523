package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	appCtx "github.com/baechuer/real-time-ressys/services/waitlist-service/internal/pkg/context"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitWithWriter_JSONAndLevel(t *testing.T) {
	t.Setenv("LOG_FORMAT", "json")
	t.Setenv("LOG_LEVEL", "warn")

	var buf bytes.Buffer
	InitWithWriter(&buf)

	Logger.Info().Msg("dropped")
	Logger.Warn().Str("k", "v").Msg("kept")

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.Len(t, lines, 1)

	var m map[string]any
	require.NoError(t, json.Unmarshal(lines[0], &m))
	assert.Equal(t, "kept", m["message"])
	assert.Equal(t, "v", m["k"])
	assert.Equal(t, "warn", m["level"])
}

func TestWithCtx_AddsRequestID(t *testing.T) {
	t.Setenv("LOG_FORMAT", "json")
	t.Setenv("LOG_LEVEL", "debug")

	var buf bytes.Buffer
	InitWithWriter(&buf)

	ctx := appCtx.WithRequestID(context.Background(), "req-123")
	WithCtx(ctx).Info().Msg("hello")

	var m map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &m))
	assert.Equal(t, "req-123", m["request_id"])
}
