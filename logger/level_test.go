package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected Level
		hasErr   bool
	}{
		{input: "debug", expected: DebugLevel},
		{input: "INFO", expected: InfoLevel},
		{input: "", expected: InfoLevel},
		{input: "warning", expected: WarnLevel},
		{input: " error ", expected: ErrorLevel},
		{input: "fatal", expected: FatalLevel},
		{input: "verbose", expected: InfoLevel, hasErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			level, err := ParseLevel(tt.input)
			if tt.hasErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}
			require.Equal(t, tt.expected, level)
		})
	}
}

func TestSlogLogger_JSONOutput(t *testing.T) {
	require := require.New(t)

	var buf bytes.Buffer
	l := NewSlog(InfoLevel, false, WithOutput(&buf), WithConsole(false))

	l.Debug("hidden")
	require.Zero(buf.Len())

	l.With("component", "lwm").Warn("watchdog missed", "elapsed_ms", 41)

	var rec map[string]any
	require.NoError(json.Unmarshal(buf.Bytes(), &rec))
	require.Equal("watchdog missed", rec["msg"])
	require.Equal("WARN", rec["level"])
	require.Equal("lwm", rec["component"])
	require.Contains(rec, "ts")
	require.EqualValues(41, rec["elapsed_ms"])
}

func TestSlogLogger_ChildSharesLevel(t *testing.T) {
	require := require.New(t)

	var buf bytes.Buffer
	parent := NewSlog(ErrorLevel, false, WithOutput(&buf), WithConsole(false))
	child := parent.With("component", "cycle")

	child.Info("dropped")
	require.Zero(buf.Len())

	parent.SetLevel(DebugLevel)
	require.Equal(DebugLevel, child.Level())

	child.Info("kept")
	require.NotZero(buf.Len())
}
