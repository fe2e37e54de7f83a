package logging

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNewManager_DefaultConfig(t *testing.T) {
	mgr, logger := NewManager(DefaultConfig())
	defer mgr.Close() //nolint:errcheck

	if logger == nil {
		t.Fatal("expected non-nil logger")
	}
	if got := mgr.Config().Level; got != "info" {
		t.Errorf("level = %s, want info", got)
	}
	if got := mgr.Config().Format; got != "json" {
		t.Errorf("format = %s, want json", got)
	}
}

func TestManager_LevelSwap(t *testing.T) {
	mgr, logger := NewManager(Config{Level: "info", Format: "json"})
	defer mgr.Close() //nolint:errcheck
	ctx := context.Background()

	if logger.Enabled(ctx, slog.LevelDebug) {
		t.Error("debug should start disabled")
	}

	mgr.Reconfigure(Config{Level: "debug", Format: "json"})
	if !logger.Enabled(ctx, slog.LevelDebug) {
		t.Error("debug should be enabled after reconfigure")
	}

	mgr.Reconfigure(Config{Level: "error", Format: "json"})
	if logger.Enabled(ctx, slog.LevelInfo) {
		t.Error("info should be disabled at error level")
	}
}

func TestManager_DerivedLoggerSurvivesSwap(t *testing.T) {
	dir := t.TempDir()
	first := filepath.Join(dir, "first.log")
	second := filepath.Join(dir, "second.log")

	mgr, logger := NewManager(Config{Level: "info", Format: "json", FilePath: first})
	defer mgr.Close() //nolint:errcheck

	worker := ForComponent(logger, "worker")
	worker.Info("before swap")

	mgr.Reconfigure(Config{Level: "info", Format: "text", FilePath: second})
	worker.Info("after swap")

	data, err := os.ReadFile(second)
	if err != nil {
		t.Fatalf("reading second log: %v", err)
	}
	out := string(data)
	if !strings.Contains(out, "after swap") {
		t.Errorf("second log missing message: %q", out)
	}
	if !strings.Contains(out, "component=worker") {
		t.Errorf("component attribute lost across swap: %q", out)
	}
	if strings.Contains(out, "before swap") {
		t.Errorf("message written before swap leaked into new file")
	}
}

func TestManager_GroupOrdering(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "group.log")

	mgr, logger := NewManager(Config{Level: "info", Format: "text", FilePath: path})
	defer mgr.Close() //nolint:errcheck

	logger.With("outer", 1).WithGroup("req").Info("hello", "inner", 2)

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading log: %v", err)
	}
	out := string(data)
	if !strings.Contains(out, "outer=1") || !strings.Contains(out, "req.inner=2") {
		t.Errorf("unexpected attribute layout: %q", out)
	}
}

func TestDiscard(t *testing.T) {
	l := Discard()
	if l.Enabled(context.Background(), slog.LevelError) {
		t.Error("discard logger should not enable error")
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"error", slog.LevelError},
		{"bogus", slog.LevelInfo},
		{"", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestValidators(t *testing.T) {
	if !ValidLevel("warn") || ValidLevel("trace") {
		t.Error("ValidLevel mismatch")
	}
	if !ValidFormat("text") || ValidFormat("xml") {
		t.Error("ValidFormat mismatch")
	}
}

func TestConfigString(t *testing.T) {
	c := Config{Level: "debug", Format: "text", FilePath: "/tmp/x.log", FileMaxSizeMB: 5, FileMaxFiles: 2, FileMaxAgeDays: 7}
	want := "level=debug format=text file=/tmp/x.log max_size=5MB max_files=2 max_age=7d"
	if got := c.String(); got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}
