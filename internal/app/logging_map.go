package app

import (
	"towerbot/internal/config"
	logx "towerbot/pkg/logx"
)

// mapLoggingConfig resolves the file/env config into the facade's typed
// config. Durations are parsed here; empty values keep component defaults.
func mapLoggingConfig(cfg *config.Config) (logx.Config, error) {
	lc := cfg.Logging
	out := logx.Config{
		AppName: lc.AppName,
		Level:   logx.ParseLevel(lc.Level, logx.LevelInfo),
		Dir:     lc.Dir,
		Console: config.BoolOr(lc.Console, true),
		File: logx.FileConfig{
			Enabled:    config.BoolOr(lc.File.Enabled, true),
			MaxSizeMB:  lc.File.MaxSizeMB,
			MaxBackups: lc.File.MaxBackups,
			Compress:   lc.File.Compress,
		},
		Webhook: logx.WebhookConfig{
			Enabled:       lc.Webhook.Enabled,
			URL:           lc.Webhook.URL,
			RatePerMinute: lc.Webhook.RatePerMinute,
			QueueSize:     lc.Webhook.QueueSize,
			MinLevel:      logx.ParseLevel(lc.Webhook.MinLevel, logx.LevelError),
		},
		Journald: logx.JournaldConfig{
			Enabled:  lc.Journald.Enabled,
			MinLevel: logx.ParseLevel(lc.Journald.MinLevel, logx.LevelNotice),
		},
		Filters: logx.FilterConfig{
			Success:              config.BoolOr(lc.Filters.Success, true),
			ExtraSuccessPatterns: lc.Filters.ExtraSuccessPatterns,
			RateLimit:            lc.Filters.RateLimit,
		},
		Errors: logx.ErrorsConfig{
			Capacity:       lc.Errors.Capacity,
			DigestSchedule: lc.Errors.DigestSchedule,
			DigestTop:      lc.Errors.DigestTop,
		},
		Audit: logx.AuditConfig{Enabled: config.BoolOr(lc.Audit.Enabled, true)},
	}

	var err error
	if out.Webhook.Timeout, err = config.ParseDurationField("logging.webhook.timeout", lc.Webhook.Timeout); err != nil {
		return logx.Config{}, err
	}
	if out.Webhook.ErrorBackoff, err = config.ParseDurationField("logging.webhook.error_backoff", lc.Webhook.ErrorBackoff); err != nil {
		return logx.Config{}, err
	}
	if out.Filters.RatePeriod, err = config.ParseDurationField("logging.filters.rate_period", lc.Filters.RatePeriod); err != nil {
		return logx.Config{}, err
	}
	if out.Errors.TTL, err = config.ParseDurationField("logging.errors.ttl", lc.Errors.TTL); err != nil {
		return logx.Config{}, err
	}
	return out, nil
}
