package logger

import (
	"bytes"
	"os"
	"strings"
	"testing"
)

func TestLevelGating(t *testing.T) {
	var buf bytes.Buffer
	Setup(&buf)
	defer Setup(os.Stderr)
	defer SetLevel(LevelInfo)

	SetLevel(LevelError)
	Info("hidden %d", 1)
	Debug("hidden %d", 2)
	Error("shown %d", 3)

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("info/debug written at error level: %q", out)
	}
	if !strings.Contains(out, "ERROR: shown 3") {
		t.Errorf("error line missing: %q", out)
	}

	buf.Reset()
	SetLevel(LevelDebug)
	Debug("conn %s", "opened")
	if !strings.Contains(buf.String(), "DEBUG: conn opened") {
		t.Errorf("debug line missing: %q", buf.String())
	}
	if !strings.Contains(buf.String(), "logger_test.go") {
		t.Errorf("caller file not reported: %q", buf.String())
	}
}

func TestEnabled(t *testing.T) {
	defer SetLevel(LevelInfo)

	SetLevel(LevelInfo)
	if !Enabled(LevelError) || !Enabled(LevelInfo) {
		t.Error("error and info should be enabled at info level")
	}
	if Enabled(LevelDebug) {
		t.Error("debug should be disabled at info level")
	}
}
