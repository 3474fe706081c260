package logger

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// captureOutput redirects logger output to a buffer for testing.
// Returns the buffer and a cleanup function to restore original output.
func captureOutput() (*bytes.Buffer, func()) {
	buf := new(bytes.Buffer)

	mu.Lock()
	originalOutput := output
	originalColor := useColor
	output = buf
	useColor = false
	mu.Unlock()

	reconfigure()

	cleanup := func() {
		mu.Lock()
		output = originalOutput
		useColor = originalColor
		mu.Unlock()
		reconfigure()
	}

	return buf, cleanup
}

func TestLevelFiltering(t *testing.T) {
	t.Run("DebugLevelShowsAllMessages", func(t *testing.T) {
		buf, cleanup := captureOutput()
		defer cleanup()

		SetLevel("DEBUG")
		defer SetLevel("INFO")

		Debug("debug message")
		Info("info message")
		Warn("warn message")
		Error("error message")

		out := buf.String()
		assert.Contains(t, out, "debug message")
		assert.Contains(t, out, "info message")
		assert.Contains(t, out, "warn message")
		assert.Contains(t, out, "error message")
	})

	t.Run("InfoLevelFiltersDebug", func(t *testing.T) {
		buf, cleanup := captureOutput()
		defer cleanup()

		SetLevel("INFO")

		Debug("debug message")
		Info("info message")

		out := buf.String()
		assert.NotContains(t, out, "debug message")
		assert.Contains(t, out, "info message")
	})
}

func TestErrorLevelFiltersEverythingElse(t *testing.T) {
	buf, cleanup := captureOutput()
	defer cleanup()

	SetLevel("ERROR")
	defer SetLevel("INFO")

	Debug("debug message")
	Info("info message")
	Warn("warn message")
	Error("error message")

	out := buf.String()
	assert.NotContains(t, out, "debug message")
	assert.NotContains(t, out, "info message")
	assert.NotContains(t, out, "warn message")
	assert.Contains(t, out, "error message")
}

func TestInvalidLevelIgnored(t *testing.T) {
	buf, cleanup := captureOutput()
	defer cleanup()

	SetLevel("INFO")
	SetLevel("SHOUTING")

	Info("still here")
	assert.Contains(t, buf.String(), "still here")
}

func TestStructuredFields(t *testing.T) {
	buf, cleanup := captureOutput()
	defer cleanup()

	SetLevel("INFO")
	SetFormat("text")

	Info("mount ready", KeyLocal, "/mnt/data", KeyDurationMs, 12.5)

	out := buf.String()
	assert.Contains(t, out, "mount ready")
	assert.Contains(t, out, "local=/mnt/data")
	assert.Contains(t, out, "duration_ms=12.500")
}

func TestJSONFormat(t *testing.T) {
	buf, cleanup := captureOutput()
	defer cleanup()

	SetFormat("json")
	defer SetFormat("text")

	Info("engine started", KeyPID, 4242)

	line := strings.TrimSpace(buf.String())
	var record map[string]any
	require.NoError(t, json.Unmarshal([]byte(line), &record))
	assert.Equal(t, "engine started", record["msg"])
	assert.Equal(t, float64(4242), record[KeyPID])
}

func TestWithPreBoundFields(t *testing.T) {
	buf, cleanup := captureOutput()
	defer cleanup()

	SetFormat("text")
	l := With(KeyComponent, "supervisor", KeySession, "abc123")
	l.Info("heartbeat ok")

	out := buf.String()
	assert.Contains(t, out, "component=supervisor")
	assert.Contains(t, out, "session_id=abc123")
	assert.Contains(t, out, "heartbeat ok")
}

func TestInitFileOutput(t *testing.T) {
	dir := t.TempDir()
	logFile := filepath.Join(dir, "tether.log")

	require.NoError(t, Init(Config{Level: "INFO", Format: "text", Output: logFile}))
	defer func() {
		// restore test default
		InitWithWriter(os.Stderr, "INFO", "text")
	}()

	Info("written to file")

	data, err := os.ReadFile(logFile)
	require.NoError(t, err)
	assert.Contains(t, string(data), "written to file")
	assert.NotContains(t, string(data), "\033[", "file output must not contain ANSI escapes")
}

func TestInitBadFilePath(t *testing.T) {
	err := Init(Config{Output: "/nonexistent-dir/tether.log"})
	require.Error(t, err)
}
