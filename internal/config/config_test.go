package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func envMap(m map[string]string) LookupFunc {
	return func(k string) (string, bool) {
		v, ok := m[k]
		return v, ok
	}
}

func writeFile(t *testing.T, path, body string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func TestParseYAMLOverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeFile(t, path, `
logging:
  level: DEBUG
  console: false
  file:
    max_size_mb: 5
  webhook:
    enabled: true
    url: https://discord.example/api/webhooks/1/abc
  filters:
    extra_success_patterns: ["^heartbeat ok$"]
  errors:
    digest_schedule: "@every 30m"
storage:
  driver: sqlite
  path: ./data/audit.db
`)
	m := NewConfigManager(path)
	m.SetEnv(envMap(nil))
	cfg, err := m.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	lc := cfg.Logging
	if lc.Level != "DEBUG" || BoolOr(lc.Console, true) || lc.AppName != DefaultAppName {
		t.Fatalf("logging = %+v", lc)
	}
	if !BoolOr(lc.File.Enabled, false) || lc.File.MaxSizeMB != 5 {
		t.Fatalf("file defaults lost: %+v", lc.File)
	}
	if !BoolOr(lc.Audit.Enabled, false) || !BoolOr(lc.Filters.Success, false) {
		t.Fatal("default-true flags lost")
	}
	if cfg.Storage == nil || cfg.Storage.Driver != "sqlite" {
		t.Fatalf("storage = %+v", cfg.Storage)
	}
	if m.Get() != cfg {
		t.Fatal("Load did not commit")
	}
}

func TestParseRejectsUnknownFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	writeFile(t, path, `{"logging":{"levle":"INFO"}}`)
	m := NewConfigManager(path)
	m.SetEnv(envMap(nil))
	if _, err := m.Load(); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("err = %v, want ErrInvalidConfig", err)
	}
}

func TestEnvOverrides(t *testing.T) {
	m := NewConfigManager("")
	m.SetEnv(envMap(map[string]string{
		EnvAppName:       "tower",
		EnvLevel:         "warning",
		EnvDir:           "/var/log/tower",
		EnvConsole:       "false",
		EnvWebhook:       "true",
		EnvWebhookURL:    "https://hooks.example/x",
		EnvFilterSuccess: "0",
		EnvAudit:         "",
	}))
	cfg, err := m.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	lc := cfg.Logging
	if lc.AppName != "tower" || lc.Level != "warning" || lc.Dir != "/var/log/tower" {
		t.Fatalf("strings not overridden: %+v", lc)
	}
	if BoolOr(lc.Console, true) || !lc.Webhook.Enabled || BoolOr(lc.Filters.Success, true) {
		t.Fatalf("bools not overridden: %+v", lc)
	}
	if !BoolOr(lc.Audit.Enabled, false) {
		t.Fatal("empty env value must not override")
	}
	if lc.Webhook.URL != "https://hooks.example/x" {
		t.Fatalf("url = %q", lc.Webhook.URL)
	}

	m.SetEnv(envMap(map[string]string{EnvConsole: "maybe"}))
	if _, err := m.Parse(); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("bad bool err = %v", err)
	}
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name string
		mod  func(*Config)
	}{
		{"level", func(c *Config) { c.Logging.Level = "LOUD" }},
		{"webhook without url", func(c *Config) { c.Logging.Webhook.Enabled = true }},
		{"webhook bad scheme", func(c *Config) {
			c.Logging.Webhook.Enabled = true
			c.Logging.Webhook.URL = "ftp://example.com/hook"
		}},
		{"duration", func(c *Config) { c.Logging.Filters.RatePeriod = "soon" }},
		{"negative", func(c *Config) { c.Logging.Webhook.QueueSize = -1 }},
		{"pattern", func(c *Config) { c.Logging.Filters.ExtraSuccessPatterns = []string{"("} }},
		{"schedule", func(c *Config) { c.Logging.Errors.DigestSchedule = "every now and then" }},
		{"storage driver", func(c *Config) { c.Storage = &StorageConfig{Driver: "mongo", Path: "x"} }},
		{"storage path", func(c *Config) { c.Storage = &StorageConfig{Driver: "file"} }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mod(cfg)
			if err := Validate(cfg); !errors.Is(err, ErrInvalidConfig) {
				t.Fatalf("Validate = %v, want ErrInvalidConfig", err)
			}
		})
	}
	if err := Validate(Default()); err != nil {
		t.Fatalf("defaults invalid: %v", err)
	}
}

func TestWebhookURLNotInError(t *testing.T) {
	cfg := Default()
	cfg.Logging.Webhook.Enabled = true
	cfg.Logging.Webhook.URL = "discord.example/secret-token"
	err := Validate(cfg)
	if err == nil {
		t.Fatal("expected error")
	}
	if strings.Contains(err.Error(), "secret-token") {
		t.Fatalf("error leaks url: %v", err)
	}
}

func TestReloadPublishesOnlyChanges(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	writeFile(t, path, `{"logging":{"level":"INFO"}}`)
	m := NewConfigManager(path)
	m.SetEnv(envMap(nil))
	if _, err := m.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	ch := m.Subscribe(1)
	defer m.Unsubscribe(ch)

	ctx := context.Background()
	if published, err := m.Reload(ctx); err != nil || published {
		t.Fatalf("unchanged reload = %v, %v", published, err)
	}

	writeFile(t, path, `{"logging":{"level":"DEBUG"}}`)
	if published, err := m.Reload(ctx); err != nil || !published {
		t.Fatalf("changed reload = %v, %v", published, err)
	}
	select {
	case cfg := <-ch:
		if cfg.Logging.Level != "DEBUG" {
			t.Fatalf("published level %q", cfg.Logging.Level)
		}
	default:
		t.Fatal("nothing published")
	}

	writeFile(t, path, `{"logging":{"level":"NOPE"}}`)
	if _, err := m.Reload(ctx); err == nil {
		t.Fatal("invalid reload accepted")
	}
	if m.Get().Logging.Level != "DEBUG" {
		t.Fatal("invalid config was committed")
	}
}

func TestWatchReloadsOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	writeFile(t, path, `{"logging":{"level":"INFO"}}`)
	m := NewConfigManager(path)
	m.SetEnv(envMap(nil))
	if _, err := m.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	ch := m.Subscribe(1)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() { _ = m.Watch(ctx); close(done) }()
	defer func() { cancel(); <-done }()

	// give the watcher time to register
	time.Sleep(100 * time.Millisecond)
	writeFile(t, path, `{"logging":{"level":"ERROR"}}`)

	select {
	case cfg := <-ch:
		if cfg.Logging.Level != "ERROR" {
			t.Fatalf("level = %q", cfg.Logging.Level)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("no reload observed")
	}
}

func TestSummarizeConfigChange(t *testing.T) {
	a := Default()
	b := Default()
	b.Logging.Webhook.Enabled = true
	b.Logging.Webhook.URL = "https://hooks.example/secret"
	b.Logging.Level = "DEBUG"

	sections, attrs := SummarizeConfigChange(a, b)
	if len(sections) != 2 || sections[0] != "logging" || sections[1] != "logging.webhook" {
		t.Fatalf("sections = %v", sections)
	}
	for _, f := range attrs {
		if s, ok := f.Value.(string); ok && strings.Contains(s, "secret") {
			t.Fatalf("attr %s leaks url", f.Key)
		}
	}
}
