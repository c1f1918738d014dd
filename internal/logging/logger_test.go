package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warning"))
	assert.Equal(t, slog.LevelError, ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("loud"))
}

func TestNewLogger_JSONFields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(Config{Level: "info", Format: "json", Output: &buf})

	logger.WithRequestID("req-1").WithMutation("createMovies", "Movie").Info("translated", slog.Int("items", 2))

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "translated", entry["msg"])
	assert.Equal(t, "req-1", entry["request_id"])
	assert.Equal(t, "createMovies", entry["mutation"])
	assert.Equal(t, "Movie", entry["node"])
	assert.EqualValues(t, 2, entry["items"])
}

func TestNewLogger_LevelFilter(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(Config{Level: "warn", Output: &buf})
	logger.Info("hidden")
	assert.Empty(t, buf.String())
	logger.Warn("shown")
	assert.Contains(t, buf.String(), "shown")
}

func TestContextHelpers(t *testing.T) {
	ctx := context.Background()
	assert.Empty(t, GetRequestID(ctx))
	assert.NotNil(t, FromContext(ctx).Logger)

	logger := NewLogger(Config{Output: &bytes.Buffer{}})
	ctx = WithLogger(WithRequestIDContext(ctx, "abc"), logger)
	assert.Equal(t, "abc", GetRequestID(ctx))
	assert.Same(t, logger, FromContext(ctx))
}

func TestFanoutWritesToAllHandlers(t *testing.T) {
	var a, b bytes.Buffer
	h := fanout{slog.NewTextHandler(&a, nil), slog.NewTextHandler(&b, nil)}
	slog.New(h).With("k", "v").Info("both")
	assert.Contains(t, a.String(), "k=v")
	assert.Contains(t, b.String(), "both")
}
