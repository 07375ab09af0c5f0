package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]LogLevel{
		"debug":   LevelDebug,
		"INFO":    LevelInfo,
		"warning": LevelWarn,
		"Error":   LevelError,
		"":        LevelInfo,
		"verbose": LevelInfo,
	}
	for in, want := range tests {
		assert.Equal(t, want, ParseLevel(in), "input %q", in)
	}
}

func TestStdLogger_FiltersBelowLevel(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, LevelWarn, FormatText)

	l.Debug(context.Background(), "debug line")
	l.Info(context.Background(), "info line")
	l.Warn(context.Background(), "warn line")

	out := buf.String()
	assert.NotContains(t, out, "debug line")
	assert.NotContains(t, out, "info line")
	assert.Contains(t, out, "warn line")
}

func TestStdLogger_TextFieldsAreSorted(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, LevelDebug, FormatText)

	l.Info(context.Background(), "Fetched trades", map[string]interface{}{"symbol": "BTCPHP", "count": 3, "attempt": 1})

	out := buf.String()
	a := strings.Index(out, "attempt=1")
	c := strings.Index(out, "count=3")
	s := strings.Index(out, "symbol=BTCPHP")
	require.True(t, a >= 0 && c >= 0 && s >= 0, out)
	assert.True(t, a < c && c < s, "fields out of order: %s", out)
}

func TestStdLogger_JSONError(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, LevelInfo, ParseFormat("JSON"))

	l.Error(context.Background(), errors.New("boom"), "Run failed", map[string]interface{}{"runId": "abc"})

	var rec map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "ERROR", rec["level"])
	assert.Equal(t, "Run failed", rec["msg"])
	assert.Equal(t, "boom", rec["error"])
	assert.Equal(t, "abc", rec["runId"])
}
