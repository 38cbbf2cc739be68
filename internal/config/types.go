package config

// Config is the on-disk configuration (JSON or YAML).
//
// Durations are Go duration strings ("500ms", "10s", "1h"). Booleans that
// default to true are pointers so an omitted key can be told apart from an
// explicit false.
type Config struct {
	Logging LoggingConfig  `json:"logging"`
	Storage *StorageConfig `json:"storage,omitempty"`
}

// LoggingConfig controls the logging pipeline.
//
// Defaults (when fields are omitted/zero):
//   - app_name: "tower_of_temptation"
//   - level: "INFO"
//   - dir: "logs"
//   - console, file.enabled, filters.success, audit.enabled: true
type LoggingConfig struct {
	AppName string `json:"app_name,omitempty"`
	Level   string `json:"level,omitempty"`
	Dir     string `json:"dir,omitempty"`
	Console *bool  `json:"console,omitempty"`

	File     LoggingFile     `json:"file"`
	Webhook  LoggingWebhook  `json:"webhook"`
	Journald LoggingJournald `json:"journald"`
	Filters  LoggingFilters  `json:"filters"`
	Errors   LoggingErrors   `json:"errors"`
	Audit    LoggingAudit    `json:"audit"`
}

type LoggingFile struct {
	Enabled    *bool `json:"enabled,omitempty"`
	MaxSizeMB  int   `json:"max_size_mb,omitempty"`
	MaxBackups int   `json:"max_backups,omitempty"`
	Compress   bool  `json:"compress,omitempty"`
}

// LoggingWebhook forwards severe records to a chat webhook.
// The URL is a secret and is never logged.
type LoggingWebhook struct {
	Enabled       bool   `json:"enabled"`
	URL           string `json:"url,omitempty"`
	RatePerMinute int    `json:"rate_per_minute,omitempty"`
	QueueSize     int    `json:"queue_size,omitempty"`
	MinLevel      string `json:"min_level,omitempty"`
	Timeout       string `json:"timeout,omitempty"`
	ErrorBackoff  string `json:"error_backoff,omitempty"`
}

type LoggingJournald struct {
	Enabled  bool   `json:"enabled"`
	MinLevel string `json:"min_level,omitempty"`
}

type LoggingFilters struct {
	Success              *bool    `json:"success,omitempty"`
	ExtraSuccessPatterns []string `json:"extra_success_patterns,omitempty"`
	RateLimit            int      `json:"rate_limit,omitempty"`
	RatePeriod           string   `json:"rate_period,omitempty"`
}

type LoggingErrors struct {
	Capacity       int    `json:"capacity,omitempty"`
	TTL            string `json:"ttl,omitempty"`
	DigestSchedule string `json:"digest_schedule,omitempty"`
	DigestTop      int    `json:"digest_top,omitempty"`
}

type LoggingAudit struct {
	Enabled *bool `json:"enabled,omitempty"`
}

// StorageConfig controls the optional audit persistence layer.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./data/audit.db" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // sqlite only
}

// BoolOr returns *p, or def when p is nil.
func BoolOr(p *bool, def bool) bool {
	if p == nil {
		return def
	}
	return *p
}

func boolPtr(v bool) *bool { return &v }
