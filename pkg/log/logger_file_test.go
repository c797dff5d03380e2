package log

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func decodeEntry(t *testing.T, raw []byte) map[string]any {
	t.Helper()
	var entry map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(raw), &entry); err != nil {
		t.Fatalf("entry is not json: %v (%q)", err, raw)
	}
	return entry
}

func TestCaller_NamesCallSite(t *testing.T) {
	prev := GetLogger()
	t.Cleanup(func() { SetLogger(prev) })

	var buf bytes.Buffer
	logger := NewLogger(LevelInfo)
	logger.SetOutput(&buf)
	logger.SetFormat("json")
	SetLogger(logger)

	logger.Info("from method")
	method := decodeEntry(t, buf.Bytes())
	buf.Reset()

	Info("from package func")
	global := decodeEntry(t, buf.Bytes())

	for name, entry := range map[string]map[string]any{"method": method, "global": global} {
		caller, _ := entry["caller"].(string)
		if !strings.HasPrefix(caller, "logger_file_test.go:") {
			t.Fatalf("%s caller = %q, want logger_file_test.go", name, caller)
		}
	}
}

func TestFileLogger_WritesThroughGlobal(t *testing.T) {
	prev := GetLogger()
	t.Cleanup(func() { SetLogger(prev) })

	logFile := filepath.Join(t.TempDir(), "nested", "app.log")
	fl, err := NewFileLogger(logFile, LevelWarn)
	if err != nil {
		t.Fatalf("NewFileLogger: %v", err)
	}
	fl.SetFormat("json")
	SetLogger(fl.Logger)

	Info("dropped")
	Warn("render %s expired", "r-1")
	if err := fl.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	data, err := os.ReadFile(logFile)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if strings.Contains(string(data), "dropped") {
		t.Fatalf("info entry written at warn level: %q", data)
	}
	entry := decodeEntry(t, data)
	if entry["msg"] != "render r-1 expired" {
		t.Fatalf("msg = %v", entry["msg"])
	}
}

func TestSetLogger_IgnoresNil(t *testing.T) {
	prev := GetLogger()
	SetLogger(nil)
	if GetLogger() != prev {
		t.Fatal("SetLogger(nil) replaced the global logger")
	}
}
