package logger

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"path/filepath"
	"testing"
)

// SetupがJSON形式でログを出力することを検証する。
func TestSetup_WritesJSON(t *testing.T) {
	var buf bytes.Buffer
	log := Setup(&buf)

	log.Info("test message", slog.String("key", "value"))

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("log output is not valid JSON: %v", err)
	}
	if entry["msg"] != "test message" {
		t.Errorf("msg = %v, want %q", entry["msg"], "test message")
	}
	if entry["key"] != "value" {
		t.Errorf("key = %v, want %q", entry["key"], "value")
	}
}

// DebugレベルがInfo設定で抑制されることを検証する。
func TestSetup_SuppressesDebug(t *testing.T) {
	var buf bytes.Buffer
	log := Setup(&buf)

	log.Debug("should not appear")

	if buf.Len() != 0 {
		t.Errorf("debug log should be suppressed, got: %s", buf.String())
	}
}

func TestSetupDefault_SetsGlobalLogger(t *testing.T) {
	var buf bytes.Buffer
	SetupDefault(&buf)

	slog.Info("global message")

	if buf.Len() == 0 {
		t.Error("expected global logger to write to the provided writer")
	}
}

func TestRotatingWriter_ReturnsWriter(t *testing.T) {
	dir := t.TempDir()
	w := RotatingWriter(filepath.Join(dir, "kintai.log"))
	if w == nil {
		t.Fatal("expected non-nil writer")
	}

	if _, err := w.Write([]byte("line\n")); err != nil {
		t.Fatalf("write failed: %v", err)
	}
}
