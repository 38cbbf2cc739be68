package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Environment variables that override file values.
const (
	EnvAppName       = "LOG_APP_NAME"
	EnvLevel         = "LOG_LEVEL"
	EnvDir           = "LOG_DIR"
	EnvConsole       = "LOG_CONSOLE"
	EnvFile          = "LOG_FILE"
	EnvWebhook       = "LOG_WEBHOOK"
	EnvWebhookURL    = "LOG_WEBHOOK_URL"
	EnvFilterSuccess = "LOG_FILTER_SUCCESS"
	EnvAudit         = "LOG_AUDIT"
)

// LookupFunc matches os.LookupEnv.
type LookupFunc func(key string) (string, bool)

// ApplyEnv overlays environment overrides onto cfg. A nil lookup reads the
// process environment.
func ApplyEnv(cfg *Config, lookup LookupFunc) error {
	if cfg == nil {
		return nil
	}
	if lookup == nil {
		lookup = os.LookupEnv
	}
	get := func(k string) (string, bool) {
		v, ok := lookup(k)
		v = strings.TrimSpace(v)
		return v, ok && v != ""
	}
	getBool := func(k string) (*bool, error) {
		v, ok := get(k)
		if !ok {
			return nil, nil
		}
		b, err := strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("%w: %s=%q is not a boolean", ErrInvalidConfig, k, v)
		}
		return &b, nil
	}

	lc := &cfg.Logging
	if v, ok := get(EnvAppName); ok {
		lc.AppName = v
	}
	if v, ok := get(EnvLevel); ok {
		lc.Level = v
	}
	if v, ok := get(EnvDir); ok {
		lc.Dir = v
	}
	if v, ok := get(EnvWebhookURL); ok {
		lc.Webhook.URL = v
	}

	for _, b := range []struct {
		key string
		set func(*bool)
	}{
		{EnvConsole, func(p *bool) { lc.Console = p }},
		{EnvFile, func(p *bool) { lc.File.Enabled = p }},
		{EnvWebhook, func(p *bool) { lc.Webhook.Enabled = *p }},
		{EnvFilterSuccess, func(p *bool) { lc.Filters.Success = p }},
		{EnvAudit, func(p *bool) { lc.Audit.Enabled = p }},
	} {
		p, err := getBool(b.key)
		if err != nil {
			return err
		}
		if p != nil {
			b.set(p)
		}
	}
	return nil
}
