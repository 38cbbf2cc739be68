package sink

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"towerbot/internal/record"
)

func testRecord(level record.Level, msg string) record.Record {
	return record.Record{
		Time:    time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		Level:   level,
		Logger:  "bot.commands",
		Message: msg,
		Fields:  []record.Field{{Key: "tenant", Value: "42"}, {Key: "attempt", Value: 3}},
	}
}

func TestConsoleFormat(t *testing.T) {
	var buf bytes.Buffer
	c := NewConsole(record.LevelInfo, ConsoleOptions{Out: &buf, NoColor: true})
	if err := c.Write(testRecord(record.LevelNotice, "player linked")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	line := buf.String()
	for _, want := range []string{"NTC", "[bot.commands]", "player linked", "tenant=42", "attempt=3"} {
		if !strings.Contains(line, want) {
			t.Fatalf("console line %q missing %q", line, want)
		}
	}
	if !Accepts(c, record.LevelInfo) || Accepts(c, record.LevelDebug) {
		t.Fatal("console threshold not honored")
	}
}

func readLines(t *testing.T, path string) []map[string]any {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open %s: %v", path, err)
	}
	defer f.Close()
	var out []map[string]any
	s := bufio.NewScanner(f)
	for s.Scan() {
		var m map[string]any
		if err := json.Unmarshal(s.Bytes(), &m); err != nil {
			t.Fatalf("invalid json line %q: %v", s.Text(), err)
		}
		out = append(out, m)
	}
	return out
}

func TestFileWritesJSONLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "app.log")
	f, err := NewFile("file", path, record.LevelInfo, RotationConfig{})
	if err != nil {
		t.Fatalf("NewFile: %v", err)
	}

	r := testRecord(record.LevelError, "sync failed")
	r.Exception = &record.Exception{Type: "*net.OpError", Message: "dial tcp: refused",
		Frames: []record.Frame{{Function: "main.sync", File: "sync.go", Line: 7}}}
	if err := f.Write(r); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := f.Write(r); !errors.Is(err, ErrClosed) {
		t.Fatalf("write after close = %v, want ErrClosed", err)
	}

	lines := readLines(t, path)
	if len(lines) != 1 {
		t.Fatalf("got %d lines, want 1", len(lines))
	}
	m := lines[0]
	if m["level"] != "ERROR" || m["message"] != "sync failed" || m["logger"] != "bot.commands" {
		t.Fatalf("unexpected line %v", m)
	}
	if m["tenant"] != "42" {
		t.Fatalf("tenant field missing: %v", m)
	}
	if m["exception"] != "*net.OpError: dial tcp: refused" {
		t.Fatalf("exception = %v", m["exception"])
	}
	if tb, _ := m["traceback"].(string); !strings.Contains(tb, `File "sync.go", line 7, in main.sync`) {
		t.Fatalf("traceback = %q", tb)
	}
}

func TestRotationDefaults(t *testing.T) {
	w, err := NewRotatingWriter(filepath.Join(t.TempDir(), "x.log"), RotationConfig{})
	if err != nil {
		t.Fatalf("NewRotatingWriter: %v", err)
	}
	if w.MaxSize != DefaultMaxSizeMB || w.MaxBackups != DefaultMaxBackups {
		t.Fatalf("defaults = %d/%d", w.MaxSize, w.MaxBackups)
	}
}

func TestJournalVars(t *testing.T) {
	r := testRecord(record.LevelWarning, "slow query")
	r.Fields = append(r.Fields, record.Field{Key: "db.table-name", Value: "players"}, record.Field{Key: "_hidden", Value: 1}, record.Field{Key: "9lives", Value: 1})
	vars := journalVars(r, "towerbot")
	if vars["SYSLOG_IDENTIFIER"] != "towerbot" || vars["LOGGER"] != "bot.commands" {
		t.Fatalf("unexpected vars %v", vars)
	}
	if vars["DB_TABLE_NAME"] != "players" {
		t.Fatalf("field key not sanitized: %v", vars)
	}
	if vars["HIDDEN"] != "1" {
		t.Fatalf("leading underscore not stripped: %v", vars)
	}
	if _, ok := vars["9LIVES"]; ok {
		t.Fatalf("key starting with a digit must be skipped")
	}
	if record.LevelWarning.Syslog() != 4 || record.LevelEmergency.Syslog() != 0 {
		t.Fatal("unexpected syslog mapping")
	}
}

func TestFallbackThrottles(t *testing.T) {
	var buf bytes.Buffer
	fb := NewFallback(&buf)
	for i := 0; i < 10; i++ {
		fb.Report("webhook", errors.New("connection refused"))
	}
	if n := strings.Count(buf.String(), "\n"); n != 3 {
		t.Fatalf("got %d reports, want 3", n)
	}
	fb.Report("file", errors.New("disk full"))
	if !strings.Contains(buf.String(), `"sink":"file"`) {
		t.Fatalf("per-component throttle missing: %s", buf.String())
	}
}
