package logx

import (
	"io"
	"strings"
	"time"
)

const (
	DefaultAppName = "tower_of_temptation"
	DefaultDir     = "logs"
)

// Config is the resolved logging configuration. Zero durations and sizes
// take the defaults of the component they configure.
type Config struct {
	AppName string
	Level   Level
	Dir     string

	Console    bool
	ConsoleOut io.Writer // default os.Stdout
	NoColor    bool

	File     FileConfig
	Webhook  WebhookConfig
	Journald JournaldConfig
	Filters  FilterConfig
	Errors   ErrorsConfig
	Audit    AuditConfig
}

// FileConfig controls {dir}/{app}.log and {dir}/{app}_error.log.
type FileConfig struct {
	Enabled    bool
	MaxSizeMB  int
	MaxBackups int
	Compress   bool
}

type WebhookConfig struct {
	Enabled       bool
	URL           string
	RatePerMinute int
	QueueSize     int
	MinLevel      Level // default ERROR
	Timeout       time.Duration
	ErrorBackoff  time.Duration
}

type JournaldConfig struct {
	Enabled  bool
	MinLevel Level // default NOTICE
}

type FilterConfig struct {
	Success              bool
	ExtraSuccessPatterns []string
	RateLimit            int
	RatePeriod           time.Duration
}

type ErrorsConfig struct {
	Capacity       int
	TTL            time.Duration
	DigestSchedule string
	DigestTop      int
}

type AuditConfig struct {
	Enabled bool
}

// DefaultConfig enables the console, both log files, the success filter
// and auditing.
func DefaultConfig() Config {
	return Config{
		AppName: DefaultAppName,
		Level:   LevelInfo,
		Dir:     DefaultDir,
		Console: true,
		File:    FileConfig{Enabled: true},
		Filters: FilterConfig{Success: true},
		Audit:   AuditConfig{Enabled: true},
	}
}

func (c Config) withDefaults() Config {
	if strings.TrimSpace(c.AppName) == "" {
		c.AppName = DefaultAppName
	}
	if strings.TrimSpace(c.Dir) == "" {
		c.Dir = DefaultDir
	}
	if c.Level == 0 {
		c.Level = LevelInfo
	}
	if c.Webhook.MinLevel == 0 {
		c.Webhook.MinLevel = LevelError
	}
	if c.Journald.MinLevel == 0 {
		c.Journald.MinLevel = LevelNotice
	}
	return c
}
