package config

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"towerbot/internal/aggregator"
	"towerbot/internal/record"
)

var ErrInvalidConfig = errors.New("invalid config")

const (
	DefaultAppName = "tower_of_temptation"
	DefaultLevel   = "INFO"
	DefaultDir     = "logs"
)

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Logging: LoggingConfig{
			AppName: DefaultAppName,
			Level:   DefaultLevel,
			Dir:     DefaultDir,
			Console: boolPtr(true),
			File:    LoggingFile{Enabled: boolPtr(true)},
			Filters: LoggingFilters{Success: boolPtr(true)},
			Audit:   LoggingAudit{Enabled: boolPtr(true)},
		},
	}
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidConfig, fmt.Sprintf(format, args...))
}

// Validate reports the first problem found in cfg. Errors wrap
// ErrInvalidConfig.
func Validate(cfg *Config) error {
	if cfg == nil {
		return invalid("config is nil")
	}
	lc := cfg.Logging

	for _, lv := range []struct{ path, v string }{
		{"logging.level", lc.Level},
		{"logging.webhook.min_level", lc.Webhook.MinLevel},
		{"logging.journald.min_level", lc.Journald.MinLevel},
	} {
		if strings.TrimSpace(lv.v) != "" && !record.ValidLevel(lv.v) {
			return invalid("%s: unknown level %q", lv.path, lv.v)
		}
	}

	for _, n := range []struct {
		path string
		v    int
	}{
		{"logging.file.max_size_mb", lc.File.MaxSizeMB},
		{"logging.file.max_backups", lc.File.MaxBackups},
		{"logging.webhook.rate_per_minute", lc.Webhook.RatePerMinute},
		{"logging.webhook.queue_size", lc.Webhook.QueueSize},
		{"logging.filters.rate_limit", lc.Filters.RateLimit},
		{"logging.errors.capacity", lc.Errors.Capacity},
		{"logging.errors.digest_top", lc.Errors.DigestTop},
	} {
		if n.v < 0 {
			return invalid("%s must be >= 0", n.path)
		}
	}

	for _, d := range []struct{ path, v string }{
		{"logging.webhook.timeout", lc.Webhook.Timeout},
		{"logging.webhook.error_backoff", lc.Webhook.ErrorBackoff},
		{"logging.filters.rate_period", lc.Filters.RatePeriod},
		{"logging.errors.ttl", lc.Errors.TTL},
	} {
		if _, err := ParseDurationField(d.path, d.v); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
		}
	}

	if lc.Webhook.Enabled {
		if err := ValidateWebhookURL(lc.Webhook.URL); err != nil {
			return err
		}
	}

	for i, p := range lc.Filters.ExtraSuccessPatterns {
		if _, err := regexp.Compile(p); err != nil {
			return invalid("logging.filters.extra_success_patterns[%d]: %v", i, err)
		}
	}

	if s := strings.TrimSpace(lc.Errors.DigestSchedule); s != "" {
		if _, err := aggregator.ParseSchedule(s); err != nil {
			return invalid("logging.errors.digest_schedule: %v", err)
		}
	}

	if sc := cfg.Storage; sc != nil {
		switch strings.ToLower(strings.TrimSpace(sc.Driver)) {
		case "", "none":
		case "file", "sqlite", "sqlite3":
			if strings.TrimSpace(sc.Path) == "" {
				return invalid("storage.path is required when storage.driver=%s", sc.Driver)
			}
		default:
			return invalid("unknown storage.driver: %s", sc.Driver)
		}
		if _, err := ParseDurationField("storage.busy_timeout", sc.BusyTimeout); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
		}
	}
	return nil
}

// ValidateWebhookURL requires an absolute http(s) URL.
func ValidateWebhookURL(raw string) error {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return invalid("logging.webhook.url is required when the webhook is enabled")
	}
	// The URL carries a token; keep it out of error messages.
	u, err := url.Parse(raw)
	if err != nil {
		return invalid("logging.webhook.url is not a valid URL")
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return invalid("logging.webhook.url must be an absolute http(s) URL")
	}
	return nil
}
