package stratumcore

import (
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    logLevel
		wantErr bool
	}{
		{"debug", logLevelDebug, false},
		{"", logLevelInfo, false},
		{" INFO ", logLevelInfo, false},
		{"warning", logLevelWarn, false},
		{"error", logLevelError, false},
		{"loud", logLevelInfo, true},
	}
	for _, tt := range tests {
		got, err := parseLogLevel(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Fatalf("parseLogLevel(%q) = %v, %v", tt.in, got, err)
		}
	}
}

func TestAppendLogEntry(t *testing.T) {
	evt := logEvent{
		at:    time.Date(2026, 3, 1, 12, 0, 0, 500, time.FixedZone("x", 3600)),
		level: logLevelWarn,
		msg:   "submitblock error",
		attrs: []any{
			"height", 101,
			"error", errors.New("connection refused"),
			"elapsed", 1500 * time.Millisecond,
			"worker", "",
			"dangling",
		},
	}
	got := string(appendLogEntry(nil, evt))
	want := `2026-03-01T11:00:00.0000005Z [WARN] submitblock error height=101 error="connection refused" elapsed=1.5s worker="" dangling` + "\n"
	if got != want {
		t.Fatalf("entry:\n got %q\nwant %q", got, want)
	}
}

func TestLoggerRoutesByLevel(t *testing.T) {
	l := newSimpleLogger()
	l.setLevel(logLevelDebug)
	var pool, errs, debug bytes.Buffer
	l.setOutputs(logOutputs{pool: &pool, errors: &errs, debug: &debug})

	l.Debug("template fetched")
	l.Info("new block", "height", 101)
	l.Error("submitblock rejected")
	l.Stop()
	l.Info("after stop")

	if s := debug.String(); !strings.Contains(s, "[DEBUG] template fetched") || strings.Contains(s, "new block") {
		t.Fatalf("debug output = %q", s)
	}
	if s := pool.String(); !strings.Contains(s, "[INFO] new block height=101") || !strings.Contains(s, "[ERROR] submitblock rejected") || strings.Contains(s, "DEBUG") {
		t.Fatalf("pool output = %q", s)
	}
	if s := errs.String(); strings.Count(s, "\n") != 1 || !strings.Contains(s, "submitblock rejected") {
		t.Fatalf("error output = %q", s)
	}
	if strings.Contains(pool.String(), "after stop") {
		t.Fatalf("entry logged after Stop")
	}
}

func TestLoggerLevelFilter(t *testing.T) {
	l := newSimpleLogger()
	var pool bytes.Buffer
	l.setOutputs(logOutputs{pool: &pool})
	l.setLevel(logLevelWarn)
	l.Info("hidden")
	l.Warn("shown")
	l.Stop()
	if s := pool.String(); strings.Contains(s, "hidden") || !strings.Contains(s, "shown") {
		t.Fatalf("pool output = %q", s)
	}
}

func TestDailyRollingFileWriter(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"pool-2026-01-01.log", "pool-2026-01-09.log", "pool-notes.log", "other-2026-01-01.log"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("old\n"), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	w := newDailyRollingFileWriter(filepath.Join(dir, "pool.log"), 3).(*dailyRollingFileWriter)
	now := time.Date(2026, 1, 10, 23, 0, 0, 0, time.UTC)
	w.now = func() time.Time { return now }

	if _, err := w.Write([]byte("first\n")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	now = now.Add(2 * time.Hour)
	if _, err := w.Write([]byte("second\n")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	read := func(name string) string {
		t.Helper()
		b, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			t.Fatalf("read %s: %v", name, err)
		}
		return string(b)
	}
	if got := read("pool-2026-01-10.log"); got != "first\n" {
		t.Fatalf("day one = %q", got)
	}
	if got := read("pool-2026-01-11.log"); got != "second\n" {
		t.Fatalf("day two = %q", got)
	}
	if _, err := os.Stat(filepath.Join(dir, "pool-2026-01-01.log")); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expired log kept: %v", err)
	}
	for _, kept := range []string{"pool-2026-01-09.log", "pool-notes.log", "other-2026-01-01.log"} {
		read(kept)
	}
}

func TestDailyRollingFileWriterKeepsAllWithZeroRetention(t *testing.T) {
	dir := t.TempDir()
	old := filepath.Join(dir, "debug-2020-01-01.log")
	if err := os.WriteFile(old, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	w := newDailyRollingFileWriter(filepath.Join(dir, "debug.log"), 0)
	if _, err := w.Write([]byte("x\n")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	w.(io.Closer).Close()
	if _, err := os.Stat(old); err != nil {
		t.Fatalf("old log removed with zero retention: %v", err)
	}
	if newDailyRollingFileWriter("", 3) != io.Discard {
		t.Fatalf("empty path should discard")
	}
}
