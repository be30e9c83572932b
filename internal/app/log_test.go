package app

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestFileHandler_Handle(t *testing.T) {
	ts := time.Date(2024, 6, 15, 14, 30, 45, 0, time.UTC)

	tests := []struct {
		name    string
		runID   string
		level   slog.Level
		message string
		attrs   []slog.Attr
		want    string
	}{
		{
			name:    "basic info message",
			runID:   "run-123",
			level:   slog.LevelInfo,
			message: "history recorded",
			want:    "2024-06-15T14:30:45Z\tINFO\trun-123\thistory recorded\n",
		},
		{
			name:    "debug level",
			runID:   "run-456",
			level:   slog.LevelDebug,
			message: "opening store",
			want:    "2024-06-15T14:30:45Z\tDEBUG\trun-456\topening store\n",
		},
		{
			name:    "with record attrs",
			runID:   "run-789",
			level:   slog.LevelInfo,
			message: "folder deleted",
			attrs:   []slog.Attr{slog.String("id", "f-1"), slog.Int("favorites", 3)},
			want:    "2024-06-15T14:30:45Z\tINFO\trun-789\tfolder deleted\tid=f-1\tfavorites=3\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			h := &fileHandler{w: &buf, runID: tt.runID}

			r := slog.NewRecord(ts, tt.level, tt.message, 0)
			r.AddAttrs(tt.attrs...)

			if err := h.Handle(context.Background(), r); err != nil {
				t.Fatalf("Handle() error = %v", err)
			}
			if got := buf.String(); got != tt.want {
				t.Errorf("Handle() output =\n%q\nwant:\n%q", got, tt.want)
			}
		})
	}
}

func TestFileHandler_WithAttrs(t *testing.T) {
	var buf bytes.Buffer
	h := &fileHandler{w: &buf, runID: "run-1", attrs: []slog.Attr{slog.String("a", "1")}}

	h2 := h.WithAttrs([]slog.Attr{slog.String("component", "badger")}).(*fileHandler)

	if len(h.attrs) != 1 {
		t.Errorf("original handler attrs modified: got %d, want 1", len(h.attrs))
	}

	r := slog.NewRecord(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), slog.LevelInfo, "compaction", 0)
	r.AddAttrs(slog.String("key", "abc"))
	if err := h2.Handle(context.Background(), r); err != nil {
		t.Fatalf("Handle() error = %v", err)
	}

	got := buf.String()
	for _, want := range []string{"a=1", "component=badger", "key=abc"} {
		if !strings.Contains(got, want) {
			t.Errorf("expected %s in output, got: %q", want, got)
		}
	}
}

func TestFileHandler_Enabled(t *testing.T) {
	h := &fileHandler{}
	for _, level := range []slog.Level{slog.LevelDebug, slog.LevelInfo, slog.LevelWarn, slog.LevelError} {
		if !h.Enabled(context.Background(), level) {
			t.Errorf("Enabled(%v) = false, want true", level)
		}
	}
}

func TestFanoutHandler(t *testing.T) {
	var all, warn bytes.Buffer
	h := &fanoutHandler{handlers: []slog.Handler{
		&fileHandler{w: &all, runID: "r"},
		slog.NewTextHandler(&warn, &slog.HandlerOptions{Level: slog.LevelWarn}),
	}}
	logger := slog.New(h).With("component", "test")

	logger.Info("quiet")
	logger.Warn("loud")

	if !strings.Contains(all.String(), "quiet") || !strings.Contains(all.String(), "loud") {
		t.Errorf("file output missing records: %q", all.String())
	}
	if strings.Contains(warn.String(), "quiet") {
		t.Errorf("warn-level handler received info record: %q", warn.String())
	}
	if !strings.Contains(warn.String(), "loud") || !strings.Contains(warn.String(), "component=test") {
		t.Errorf("warn-level handler output = %q", warn.String())
	}
	if !h.Enabled(context.Background(), slog.LevelDebug) {
		t.Error("Enabled(debug) = false, want true while any handler accepts it")
	}
}

func TestLevelFromEnv(t *testing.T) {
	tests := []struct {
		env  string
		want slog.Level
	}{
		{"", slog.LevelWarn},
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"error", slog.LevelError},
		{"verbose", slog.LevelWarn},
	}

	for _, tt := range tests {
		t.Run(tt.env, func(t *testing.T) {
			t.Setenv("LOG_LEVEL", tt.env)
			if got := levelFromEnv(); got != tt.want {
				t.Errorf("levelFromEnv() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNewLogger(t *testing.T) {
	t.Setenv("LOG_LEVEL", "")
	dir := filepath.Join(t.TempDir(), "log")
	var console bytes.Buffer

	logger, f, err := newLogger(dir, "test-run", &console)
	if err != nil {
		t.Fatalf("newLogger() error = %v", err)
	}
	defer f.Close()

	logger.Info("history recorded", "id", "h1")
	logger.Warn("storage failure")

	data, err := os.ReadFile(filepath.Join(dir, "unitprice.log"))
	if err != nil {
		t.Fatalf("reading log file: %v", err)
	}
	if !strings.Contains(string(data), "test-run\thistory recorded\tid=h1") {
		t.Errorf("log file = %q", data)
	}
	if strings.Contains(console.String(), "history recorded") {
		t.Errorf("console shows info record at default level: %q", console.String())
	}
	if !strings.Contains(console.String(), "storage failure") {
		t.Errorf("console missing warning: %q", console.String())
	}
}
