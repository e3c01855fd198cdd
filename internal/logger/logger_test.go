package logger

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	for in, want := range map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	} {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q)=%v, want %v", in, got, want)
		}
	}
}

func TestNewWriterJSON(t *testing.T) {
	var buf bytes.Buffer
	log := NewWriter(&buf, Options{Level: "warn", Format: "json"})
	log.Info("hidden")
	log.Warn("shown", "asset", "a1")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("lines=%d, want 1: %q", len(lines), buf.String())
	}
	var rec map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &rec); err != nil {
		t.Fatal(err)
	}
	if rec["msg"] != "shown" || rec["asset"] != "a1" {
		t.Fatalf("record=%v", rec)
	}
}

func TestNewWriterText(t *testing.T) {
	var buf bytes.Buffer
	NewWriter(&buf, Options{}).Info("hello", "k", "v")
	if !strings.Contains(buf.String(), "msg=hello k=v") {
		t.Fatalf("output=%q", buf.String())
	}
}
