package config

import (
	"reflect"
	"strings"

	logx "towerbot/pkg/logx"
)

// SummarizeConfigChange returns the changed top-level sections and safe
// attributes for logging them. The webhook URL is never included; only
// whether it is set or changed.
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}
	o, n := oldCfg.Logging, newCfg.Logging

	changed := make([]string, 0, 8)
	attrs := make([]logx.Field, 0, 16)

	if o.Level != n.Level || o.AppName != n.AppName || o.Dir != n.Dir ||
		BoolOr(o.Console, true) != BoolOr(n.Console, true) {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", n.Level),
			logx.String("logging.dir", n.Dir),
			logx.Bool("logging.console", BoolOr(n.Console, true)),
		)
	}
	if !reflect.DeepEqual(o.File, n.File) {
		changed = append(changed, "logging.file")
		attrs = append(attrs,
			logx.Bool("logging.file.enabled", BoolOr(n.File.Enabled, true)),
			logx.Int("logging.file.max_size_mb", n.File.MaxSizeMB),
		)
	}
	if !reflect.DeepEqual(o.Webhook, n.Webhook) {
		changed = append(changed, "logging.webhook")
		attrs = append(attrs,
			logx.Bool("logging.webhook.enabled", n.Webhook.Enabled),
			logx.Bool("logging.webhook.url_set", strings.TrimSpace(n.Webhook.URL) != ""),
			logx.Bool("logging.webhook.url_changed", strings.TrimSpace(o.Webhook.URL) != strings.TrimSpace(n.Webhook.URL)),
			logx.Int("logging.webhook.rate_per_minute", n.Webhook.RatePerMinute),
		)
	}
	if !reflect.DeepEqual(o.Journald, n.Journald) {
		changed = append(changed, "logging.journald")
		attrs = append(attrs, logx.Bool("logging.journald.enabled", n.Journald.Enabled))
	}
	if !reflect.DeepEqual(o.Filters, n.Filters) {
		changed = append(changed, "logging.filters")
		attrs = append(attrs,
			logx.Bool("logging.filters.success", BoolOr(n.Filters.Success, true)),
			logx.Int("logging.filters.rate_limit", n.Filters.RateLimit),
			logx.Int("logging.filters.extra_patterns", len(n.Filters.ExtraSuccessPatterns)),
		)
	}
	if !reflect.DeepEqual(o.Errors, n.Errors) {
		changed = append(changed, "logging.errors")
		attrs = append(attrs, logx.String("logging.errors.digest_schedule", n.Errors.DigestSchedule))
	}
	if BoolOr(o.Audit.Enabled, true) != BoolOr(n.Audit.Enabled, true) {
		changed = append(changed, "logging.audit")
		attrs = append(attrs, logx.Bool("logging.audit.enabled", BoolOr(n.Audit.Enabled, true)))
	}
	if !reflect.DeepEqual(oldCfg.Storage, newCfg.Storage) {
		changed = append(changed, "storage")
	}
	return changed, attrs
}
