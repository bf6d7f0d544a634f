package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	require.Equal(t, zerolog.DebugLevel, parseLevel("debug"))
	require.Equal(t, zerolog.WarnLevel, parseLevel("WARNING"))
	require.Equal(t, zerolog.InfoLevel, parseLevel("bogus"))
}

func TestComponentLoggerWritesJSONFields(t *testing.T) {
	var buf bytes.Buffer
	Init(Config{Level: "debug", Format: "json", Output: &buf})
	t.Cleanup(func() { Init(DefaultConfig()) })

	logger := WithMember("chat", "m-1")
	logger.Info().Msg("bound")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	require.Equal(t, "chat", line["component"])
	require.Equal(t, "m-1", line["member_id"])
	require.Equal(t, "bound", line["message"])
}

func TestFromContext(t *testing.T) {
	var buf bytes.Buffer
	Init(Config{Level: "debug", Format: "json", Output: &buf})
	t.Cleanup(func() { Init(DefaultConfig()) })

	fallback := FromContext(context.Background(), "realtime")
	fallback.Info().Msg("fallback")
	require.Contains(t, buf.String(), `"component":"realtime"`)

	buf.Reset()
	ctx := WithContext(context.Background(), WithMember("chat", "m-2"))
	scoped := FromContext(ctx, "realtime")
	scoped.Info().Msg("scoped")
	require.Contains(t, buf.String(), `"member_id":"m-2"`)
	require.NotContains(t, buf.String(), "realtime")
}
