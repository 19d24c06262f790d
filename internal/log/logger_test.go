package log

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"":        slog.LevelInfo,
		"debug":   slog.LevelDebug,
		" WARN ":  slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"verbose": slog.LevelInfo,
	}
	for in, want := range tests {
		assert.Equal(t, want, ParseLevel(in), "input %q", in)
	}
}

func TestJSONLoggerAddsComponentOnce(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: slog.LevelDebug, Format: ParseFormat("JSON"), Output: &buf}).WithComponent(ComponentReport)

	logger.InfoContext(context.Background(), "computed", FieldAccount, "Checking")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "computed", line["msg"])
	assert.Equal(t, ComponentReport, line[FieldComponent])
	assert.Equal(t, "Checking", line[FieldAccount])
	assert.Equal(t, 1, bytes.Count(buf.Bytes(), []byte(`"component"`)))
}

func TestLevelFiltersDebug(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: slog.LevelInfo, Output: &buf})

	logger.Debug("hidden")
	assert.Zero(t, buf.Len())

	logger.Warn("shown")
	assert.Contains(t, buf.String(), "shown")
}

func TestStructuredLoggerHTTPEndLevel(t *testing.T) {
	var buf bytes.Buffer
	sl := NewStructuredLogger(New(Config{Level: slog.LevelDebug, Format: FormatJSON, Output: &buf}))
	req := httptest.NewRequest("GET", "/api/ledger?account=X", nil)

	sl.LogHTTPEnd(context.Background(), req, 502, 12, "10.0.0.1", "req_1")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "ERROR", line["level"])
	assert.Equal(t, "/api/ledger", line[FieldPath])
	assert.Equal(t, "account=X", line[FieldQuery])
	assert.EqualValues(t, 502, line[FieldStatusCode])
	assert.Equal(t, "req_1", line[FieldRequestID])
}

func TestStructuredLoggerLogError(t *testing.T) {
	var buf bytes.Buffer
	sl := NewStructuredLogger(New(Config{Format: FormatJSON, Output: &buf}))

	sl.LogError(context.Background(), "fetch failed", errors.New("boom"), ComponentSheets, OpRead, nil)

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "boom", line[FieldError])
	assert.Equal(t, ComponentSheets, line[FieldComponent])
	assert.Equal(t, OpRead, line[FieldOperation])
}

func TestStructuredLoggerLogReportComputed(t *testing.T) {
	var buf bytes.Buffer
	sl := NewStructuredLogger(New(Config{Level: slog.LevelDebug, Format: FormatJSON, Output: &buf}))

	fields := NewFields().WithYear(2024)
	fields[FieldThreshold] = 5.0
	sl.LogReportComputed(context.Background(), "category", "k1", true, 3, fields)

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, OpCompute, line[FieldOperation])
	assert.Equal(t, true, line[FieldCacheHit])
	assert.EqualValues(t, 2024, line[FieldYear])
	assert.EqualValues(t, 5, line[FieldThreshold])

	buf.Reset()
	sl.LogReportComputed(context.Background(), "ledger", "k2", false, 1, nil)
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "k2", line[FieldCacheKey])
}

func TestFromContextFallsBackToDefault(t *testing.T) {
	logger := FromContext(context.Background())
	require.NotNil(t, logger)
	assert.Equal(t, "unknown", logger.Component())
}
