package logx

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// setupTestLogger redirects log output to a buffer and restores debug config afterwards.
func setupTestLogger(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	SetOutput(&buf)

	debugMutex.RLock()
	saved := *debugConfig
	debugMutex.RUnlock()

	t.Cleanup(func() {
		SetOutput(os.Stderr)
		debugMutex.Lock()
		*debugConfig = saved
		debugMutex.Unlock()
	})
	return &buf
}

func TestLogFormat(t *testing.T) {
	buf := setupTestLogger(t)

	logger := NewLogger("planner")
	logger.Info("Test message with %s", "formatting")

	output := buf.String()
	if !strings.Contains(output, "[planner]") {
		t.Errorf("Expected component in output, got: %s", output)
	}
	if !strings.Contains(output, "INFO") {
		t.Errorf("Expected log level in output, got: %s", output)
	}
	if !strings.Contains(output, "Test message with formatting") {
		t.Errorf("Expected formatted message in output, got: %s", output)
	}
}

func TestDebugDisabledByDefault(t *testing.T) {
	buf := setupTestLogger(t)
	SetDebugConfig(false, false, "")

	NewLogger("coder").Debug("hidden")
	Debug(context.Background(), "coder", "hidden too")

	if buf.Len() != 0 {
		t.Errorf("Expected no output with debug disabled, got: %s", buf.String())
	}
}

func TestDebugDomainFiltering(t *testing.T) {
	buf := setupTestLogger(t)
	SetDebugConfig(true, false, "")
	SetDebugDomains([]string{"sandbox"})

	Debug(context.Background(), "coder", "filtered out")
	Debug(context.Background(), "sandbox", "kept")

	output := buf.String()
	if strings.Contains(output, "filtered out") {
		t.Errorf("Expected coder domain to be filtered, got: %s", output)
	}
	if !strings.Contains(output, "[sandbox] kept") {
		t.Errorf("Expected sandbox debug line, got: %s", output)
	}
}

func TestDebugCarriesRunID(t *testing.T) {
	buf := setupTestLogger(t)
	SetDebugConfig(true, false, "")
	SetDebugDomains(nil)

	ctx := WithRunID(context.Background(), "run-123")
	DebugState(ctx, "graph", "enter", "coder")

	if !strings.Contains(buf.String(), "[run-123]") {
		t.Errorf("Expected run ID in output, got: %s", buf.String())
	}
	if RunID(ctx) != "run-123" {
		t.Errorf("Expected RunID to round trip, got %q", RunID(ctx))
	}
}

func TestDebugFileLogging(t *testing.T) {
	setupTestLogger(t)
	dir := t.TempDir()
	SetDebugConfig(true, true, dir)
	SetDebugDomains(nil)

	Debug(context.Background(), "coder", "to file")

	data, err := os.ReadFile(filepath.Join(dir, "debug.jsonl"))
	if err != nil {
		t.Fatalf("Expected debug file, got error: %v", err)
	}
	if !strings.Contains(string(data), `"message":"to file"`) {
		t.Errorf("Expected JSON entry, got: %s", data)
	}
}

func TestWrap(t *testing.T) {
	setupTestLogger(t)

	if Wrap(nil, "noop") != nil {
		t.Error("Expected nil for nil error")
	}

	base := errors.New("boom")
	err := Wrap(base, "db connect")
	if !errors.Is(err, base) {
		t.Errorf("Expected wrapped error to match base")
	}
	if err.Error() != "db connect: boom" {
		t.Errorf("Unexpected message: %s", err.Error())
	}
}
