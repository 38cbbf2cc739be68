package logx

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

type harness struct {
	svc     *Service
	cfg     Config
	console *syncBuffer
	stderr  *syncBuffer
}

func newHarness(t *testing.T, mod func(*Config), opts ...Option) *harness {
	t.Helper()
	h := &harness{console: &syncBuffer{}, stderr: &syncBuffer{}}
	cfg := DefaultConfig()
	cfg.AppName = "testbot"
	cfg.Dir = t.TempDir()
	cfg.Level = LevelDebug
	cfg.ConsoleOut = h.console
	cfg.NoColor = true
	if mod != nil {
		mod(&cfg)
	}
	opts = append([]Option{WithStderr(h.stderr)}, opts...)
	svc, _, err := New(cfg, opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = svc.Close(ctx)
	})
	h.svc = svc
	h.cfg = cfg
	return h
}

func (h *harness) read(t *testing.T, name string) string {
	t.Helper()
	b, err := os.ReadFile(filepath.Join(h.cfg.Dir, name))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("read %s: %v", name, err)
	}
	return string(b)
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestErrorWithContextReachesEverySink(t *testing.T) {
	var (
		mu     sync.Mutex
		bodies []string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		mu.Lock()
		bodies = append(bodies, string(b))
		mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	h := newHarness(t, func(c *Config) {
		c.Webhook = WebhookConfig{Enabled: true, URL: srv.URL}
	})
	log := h.svc.Logger("bot.commands", String("tenant", "42"))

	log.Error("database unreachable")
	log.Info("just chatting")

	waitFor(t, "webhook delivery", func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(bodies) == 1
	})
	mu.Lock()
	body := bodies[0]
	mu.Unlock()
	if !strings.Contains(body, "ERROR: database unreachable tenant=42") {
		t.Fatalf("webhook body = %s", body)
	}

	for _, out := range []struct{ name, text string }{
		{"console", h.console.String()},
		{"main file", h.read(t, "testbot.log")},
		{"error file", h.read(t, "testbot_error.log")},
	} {
		if !strings.Contains(out.text, "database unreachable") || !strings.Contains(out.text, "tenant") ||
			!strings.Contains(out.text, "42") {
			t.Fatalf("%s missing record: %q", out.name, out.text)
		}
	}
	if strings.Contains(h.read(t, "testbot_error.log"), "just chatting") {
		t.Fatal("INFO record reached the error file")
	}
	if !strings.Contains(h.read(t, "testbot.log"), "just chatting") {
		t.Fatal("INFO record missing from main file")
	}
}

func TestThresholdDropsBeforeSinks(t *testing.T) {
	h := newHarness(t, func(c *Config) { c.Level = LevelWarning })
	log := h.svc.Logger("x")
	log.Info("quiet")
	log.Warn("loud")
	if strings.Contains(h.console.String(), "quiet") {
		t.Fatal("record below threshold was written")
	}
	if !strings.Contains(h.console.String(), "loud") {
		t.Fatal("record at threshold missing")
	}
	if log.Enabled(LevelInfo) || !log.Enabled(LevelError) {
		t.Fatal("Enabled disagrees with threshold")
	}
}

func TestApplyTwiceDoesNotDuplicate(t *testing.T) {
	h := newHarness(t, nil)
	log := h.svc.Logger("x")
	for i := 0; i < 2; i++ {
		if err := h.svc.Apply(h.cfg); err != nil {
			t.Fatalf("Apply: %v", err)
		}
	}
	log.Warn("exactly once")

	if n := strings.Count(h.console.String(), "exactly once"); n != 1 {
		t.Fatalf("console copies = %d", n)
	}
	if n := strings.Count(h.read(t, "testbot.log"), "exactly once"); n != 1 {
		t.Fatalf("file copies = %d", n)
	}
}

func TestApplyErrorKeepsPreviousSinks(t *testing.T) {
	h := newHarness(t, nil)
	bad := h.cfg
	bad.Filters.ExtraSuccessPatterns = []string{"("}
	if err := h.svc.Apply(bad); err == nil {
		t.Fatal("expected pattern error")
	}
	h.svc.Logger("x").Warn("still here")
	if !strings.Contains(h.console.String(), "still here") {
		t.Fatal("previous sinks detached after failed Apply")
	}
}

func TestWithDoesNotMutateParent(t *testing.T) {
	h := newHarness(t, nil)
	parent := h.svc.Logger("p")
	_ = parent.With(String("child", "yes"))
	parent.Warn("from parent")
	if strings.Contains(h.console.String(), "child=yes") {
		t.Fatal("child field leaked into parent")
	}
	if got := parent.Named("sub").Name(); got != "p.sub" {
		t.Fatalf("Named = %q", got)
	}
}

func TestSuccessFilterAndRateLimit(t *testing.T) {
	h := newHarness(t, func(c *Config) { c.Filters.RateLimit = 3 })
	log := h.svc.Logger("files")

	log.Info("Found 12 files in directory")
	if strings.Contains(h.console.String(), "Found 12 files") {
		t.Fatal("success message at INFO was not suppressed")
	}
	log.Warn("Found 12 files in directory")
	if !strings.Contains(h.console.String(), "Found 12 files") {
		t.Fatal("success message at WARNING was suppressed")
	}

	for i := 0; i < 5; i++ {
		log.Warn("disk full")
	}
	out := h.console.String()
	if n := strings.Count(out, "disk full"); n != 4 {
		t.Fatalf("admitted %d copies, want 4:\n%s", n, out)
	}
	if !strings.Contains(out, "disk full (rate limited, repeated 4 times)") {
		t.Fatalf("missing rate limit suffix:\n%s", out)
	}
}

func TestRateLimitSurvivesApply(t *testing.T) {
	h := newHarness(t, func(c *Config) { c.Filters.RateLimit = 2 })
	log := h.svc.Logger("x")
	log.Warn("link flapping")
	log.Warn("link flapping")
	if err := h.svc.Apply(h.cfg); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	log.Warn("link flapping")
	log.Warn("link flapping")

	out := h.console.String()
	if n := strings.Count(out, "link flapping"); n != 3 {
		t.Fatalf("admitted %d copies, want 3:\n%s", n, out)
	}
	if !strings.Contains(out, "link flapping (rate limited, repeated 3 times)") {
		t.Fatalf("reload reset the repeat counter:\n%s", out)
	}
}

func TestLogPerformance(t *testing.T) {
	h := newHarness(t, nil)
	log := h.svc.Logger("perf")

	log.LogPerformance("sync", 1500*time.Millisecond, false, "timeout", 0)
	if !strings.Contains(h.console.String(), "Operation 'sync' failed in 1.500s: timeout") {
		t.Fatalf("console = %q", h.console.String())
	}

	// successful operations below WARNING are suppressed by default
	log.LogPerformance("fetch", 20*time.Millisecond, true, "", LevelInfo)
	if strings.Contains(h.console.String(), "Operation 'fetch'") {
		t.Fatal("success filter did not apply")
	}
	log.LogPerformance("fetch", 20*time.Millisecond, true, "", LevelWarning)
	if !strings.Contains(h.console.String(), "Operation 'fetch' succeeded in 0.020s") {
		t.Fatalf("console = %q", h.console.String())
	}
}

func TestTimedRecordsEveryExit(t *testing.T) {
	h := newHarness(t, func(c *Config) { c.Filters.Success = false })
	log := h.svc.Logger("jobs")

	if err := log.Timed("ok", LevelInfo, func() error { return nil }); err != nil {
		t.Fatalf("Timed: %v", err)
	}
	want := errors.New("no route")
	if err := log.Timed("fails", LevelInfo, func() error { return want }); !errors.Is(err, want) {
		t.Fatalf("Timed err = %v", err)
	}

	func() {
		defer func() {
			if p := recover(); p != "kaboom" {
				t.Fatalf("recovered %v, want kaboom", p)
			}
		}()
		_ = log.Timed("boom", LevelInfo, func() error { panic("kaboom") })
	}()

	out := h.console.String()
	for _, s := range []string{
		"Operation 'ok' succeeded in",
		"Operation 'fails' failed in",
		"no route",
		"Operation 'boom' failed in",
		"panic: kaboom",
	} {
		if !strings.Contains(out, s) {
			t.Fatalf("console missing %q:\n%s", s, out)
		}
	}

	timer := log.StartTimer("manual", LevelInfo)
	timer.Stop(nil)
	timer.Stop(errors.New("ignored"))
	if n := strings.Count(h.console.String(), "Operation 'manual'"); n != 1 {
		t.Fatalf("timer emitted %d records", n)
	}
}

func TestExceptionsAreAggregated(t *testing.T) {
	h := newHarness(t, nil)
	log := h.svc.Logger("db")
	err := errors.New("connection reset")
	for i := 0; i < 2; i++ {
		log.Exception("query failed", err)
	}
	sum := h.svc.ErrorSummary()
	if len(sum) != 1 || sum[0].Count != 2 {
		t.Fatalf("summary = %+v", sum)
	}
	if !strings.Contains(sum[0].TracebackPreview, "connection reset") {
		t.Fatalf("preview = %q", sum[0].TracebackPreview)
	}
	if !strings.Contains(h.read(t, "testbot_error.log"), "traceback") {
		t.Fatal("error file lacks traceback")
	}

	if !h.svc.ReportErrors() || !strings.Contains(h.console.String(), "Error digest: 1 distinct errors, 2 occurrences") {
		t.Fatalf("digest missing:\n%s", h.console.String())
	}

	h.svc.ResetErrorCache()
	if len(h.svc.ErrorSummary()) != 0 {
		t.Fatal("cache not cleared")
	}
	if !strings.Contains(h.console.String(), "Error aggregation cache cleared") {
		t.Fatal("reset was not logged")
	}
	if h.svc.ReportErrors() {
		t.Fatal("digest of empty cache")
	}
}

func TestWebhookReceivesErrors(t *testing.T) {
	var (
		mu     sync.Mutex
		bodies []string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		mu.Lock()
		bodies = append(bodies, string(b))
		mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	h := newHarness(t, func(c *Config) {
		c.Webhook = WebhookConfig{Enabled: true, URL: srv.URL}
	})
	events, unsubscribe := h.svc.Events(8)
	defer unsubscribe()

	log := h.svc.Logger("payments")
	log.Warn("card declined")
	log.Error("payment failed")

	waitFor(t, "webhook delivery", func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(bodies) == 1
	})
	mu.Lock()
	body := bodies[0]
	mu.Unlock()
	if !strings.Contains(body, "ERROR: payment failed") || !strings.Contains(body, "Log Entry: ERROR") {
		t.Fatalf("body = %s", body)
	}

	select {
	case ev := <-events:
		if ev.Type != "webhook.delivered" {
			t.Fatalf("event = %s", ev.Type)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("no delivery event")
	}
	st, ok := h.svc.WebhookStats()
	if !ok || st.Delivered != 1 || st.Enqueued != 1 {
		t.Fatalf("stats = %+v, %v", st, ok)
	}
}

func TestAuditThroughService(t *testing.T) {
	h := newHarness(t, nil)
	tenant := "42"
	h.svc.Audit().Command(context.Background(), "alice", &tenant, "ping", "", true)
	out := h.read(t, "audit.log")
	if !strings.Contains(out, `"action":"command_succeeded"`) || !strings.Contains(out, `"guild_id":"42"`) {
		t.Fatalf("audit.log = %q", out)
	}
	if strings.Contains(h.read(t, "testbot.log"), "command_succeeded") {
		t.Fatal("audit entry leaked into the main log")
	}
}

func TestNewConfigErrors(t *testing.T) {
	_, _, err := New(Config{Webhook: WebhookConfig{Enabled: true}, Dir: t.TempDir()}, WithStderr(io.Discard))
	if !errors.Is(err, ErrNoWebhookURL) {
		t.Fatalf("err = %v", err)
	}

	blocker := filepath.Join(t.TempDir(), "file")
	if err := os.WriteFile(blocker, nil, 0o600); err != nil {
		t.Fatal(err)
	}
	_, _, err = New(Config{File: FileConfig{Enabled: true}, Dir: filepath.Join(blocker, "logs")}, WithStderr(io.Discard))
	if err == nil {
		t.Fatal("expected error for uncreatable directory")
	}
}

func TestCloseDetachesSinks(t *testing.T) {
	h := newHarness(t, nil)
	log := h.svc.Logger("x")
	if err := h.svc.Close(context.Background()); err != nil {
		t.Fatalf("Close: %v", err)
	}
	log.Error("after close")
	if strings.Contains(h.console.String(), "after close") {
		t.Fatal("record written after Close")
	}
	if err := h.svc.Apply(h.cfg); !errors.Is(err, ErrClosed) {
		t.Fatalf("Apply after Close = %v", err)
	}
}

func TestZeroLoggerIsNoop(t *testing.T) {
	var l Logger
	l.Error("nothing")
	l.Exception("nothing", errors.New("x"))
	l.LogPerformance("op", time.Second, true, "", 0)
	if err := l.Timed("op", 0, func() error { return nil }); err != nil {
		t.Fatal(err)
	}
	if l.Enabled(LevelEmergency) {
		t.Fatal("zero logger reports enabled")
	}
}

func TestGlobalInit(t *testing.T) {
	_ = Shutdown(context.Background())
	if L("before").Enabled(LevelEmergency) {
		t.Fatal("L before Init is live")
	}

	console := &syncBuffer{}
	cfg := DefaultConfig()
	cfg.Dir = t.TempDir()
	cfg.File.Enabled = false
	cfg.ConsoleOut = console
	cfg.NoColor = true

	s1, err := Init(cfg, WithStderr(io.Discard))
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	s2, err := Init(cfg)
	if err != nil || s1 != s2 || Default() != s1 {
		t.Fatalf("second Init returned %p, %v", s2, err)
	}
	L("global").Warn("hello")
	if n := strings.Count(console.String(), "hello"); n != 1 {
		t.Fatalf("copies = %d", n)
	}
	if err := Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if Default() != nil {
		t.Fatal("Default after Shutdown")
	}
}
