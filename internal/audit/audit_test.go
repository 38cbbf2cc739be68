package audit

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"towerbot/internal/record"
	"towerbot/internal/storage"
)

func newTestLogger(t *testing.T, st storage.Store) (*Logger, string) {
	t.Helper()
	dir := t.TempDir()
	n := 0
	l, err := New(Config{
		Enabled: true,
		Dir:     dir,
		Store:   st,
		Now:     func() time.Time { return time.Date(2026, 4, 1, 8, 30, 0, 0, time.UTC) },
		NewID:   func() string { n++; return "id-" + strconv.Itoa(n) },
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = l.Close() })
	return l, filepath.Join(dir, FileName)
}

func readAudit(t *testing.T, path string) []map[string]any {
	t.Helper()
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()
	var out []map[string]any
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var m map[string]any
		if err := json.Unmarshal(sc.Bytes(), &m); err != nil {
			t.Fatalf("bad line %q: %v", sc.Text(), err)
		}
		out = append(out, m)
	}
	return out
}

func ptr(s string) *string { return &s }

func TestLogActionWritesEntry(t *testing.T) {
	l, path := newTestLogger(t, nil)
	l.LogAction(context.Background(), "alice", ptr("42"), "admin_action", "ban on bob",
		WithTarget(TargetAdmin), WithLevel(record.LevelNotice),
		WithMetadata(map[string]any{"channel": "general", "action": "shadowed"}))

	lines := readAudit(t, path)
	if len(lines) != 1 {
		t.Fatalf("got %d lines, want 1", len(lines))
	}
	m := lines[0]
	want := map[string]any{
		"level": "NOTICE", "username": "alice", "guild_id": "42", "action": "admin_action",
		"details": "ban on bob", "target": "admin", "id": "id-1", "channel": "general",
		"meta_action": "shadowed", "message": "admin_action: ban on bob",
	}
	for k, v := range want {
		if m[k] != v {
			t.Errorf("%s = %v, want %v", k, m[k], v)
		}
	}
}

func TestIgnoredTargets(t *testing.T) {
	l, path := newTestLogger(t, nil)
	l.LogAction(context.Background(), "alice", nil, "noop", "x")
	l.LogAction(context.Background(), "alice", nil, "noop", "x", WithTarget("bogus"))
	if lines := readAudit(t, path); len(lines) != 0 {
		t.Fatalf("got %d lines, want none", len(lines))
	}
}

func TestDisabledAndNil(t *testing.T) {
	dir := t.TempDir()
	l, err := New(Config{Enabled: false, Dir: dir})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	l.Command(context.Background(), "alice", nil, "ping", "", true)
	if _, err := os.Stat(filepath.Join(dir, FileName)); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("disabled logger created a file: %v", err)
	}

	var nilLogger *Logger
	nilLogger.Moderation(context.Background(), "alice", nil, "kick", "bob", "")
	if err := nilLogger.Close(); err != nil {
		t.Fatalf("Close on nil: %v", err)
	}
}

func TestWrappers(t *testing.T) {
	l, path := newTestLogger(t, nil)
	ctx := context.Background()
	l.Command(ctx, "u", nil, "setup", "channel=#logs", true)
	l.Command(ctx, "u", ptr("7"), "purge", "", false)
	l.AdminAction(ctx, "u", nil, "reset", "server config")
	l.DataChange(ctx, "u", nil, "player", "delete", "p-9")
	l.Connection(ctx, "u", nil, "sftp", "failed", "auth rejected")
	l.Connection(ctx, "u", nil, "sftp", "connected", "")
	l.Moderation(ctx, "u", nil, "kick", "bob", "spam")

	cases := []struct{ action, details, level, target string }{
		{"command_succeeded", "setup with args: channel=#logs", "INFO", "command"},
		{"command_failed", "purge", "WARNING", "command"},
		{"admin_action", "reset on server config", "INFO", "admin"},
		{"data_change", "delete player p-9", "INFO", "data"},
		{"connection", "sftp failed: auth rejected", "INFO", "connection"},
		{"connection", "sftp connected", "INFO", "connection"},
		{"moderation", "kick bob: spam", "INFO", "moderation"},
	}
	lines := readAudit(t, path)
	if len(lines) != len(cases) {
		t.Fatalf("got %d lines, want %d", len(lines), len(cases))
	}
	for i, tc := range cases {
		m := lines[i]
		if m["action"] != tc.action || m["details"] != tc.details || m["level"] != tc.level || m["target"] != tc.target {
			t.Errorf("line %d = %v, want %+v", i, m, tc)
		}
	}
	if lines[1]["guild_id"] != "7" || lines[0]["guild_id"] != "" {
		t.Errorf("guild ids = %v / %v", lines[0]["guild_id"], lines[1]["guild_id"])
	}
}

func TestStoreMirror(t *testing.T) {
	st, err := storage.Open(storage.Config{Driver: "file", Path: filepath.Join(t.TempDir(), "audit.db")}, zerolog.Nop())
	if err != nil {
		t.Fatalf("storage.Open: %v", err)
	}
	defer st.Close()

	l, _ := newTestLogger(t, st)
	l.DataChange(context.Background(), "u", ptr("1"), "server", "create", "s-1")
	l.LogAction(context.Background(), "u", nil, "x", "y", WithTarget("bogus"))

	got, err := l.Recent(context.Background(), 10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(got) != 1 || got[0].Action != "data_change" || got[0].GuildID != "1" || got[0].ID != "id-1" {
		t.Fatalf("recent = %+v", got)
	}

	noStore, _ := newTestLogger(t, nil)
	if _, err := noStore.Recent(context.Background(), 1); !errors.Is(err, storage.ErrDisabled) {
		t.Fatalf("Recent without store = %v", err)
	}
}
