// Package audit records who did what, where, in a dedicated rotating
// audit.log and optionally in a queryable store.
package audit

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	lumberjack "gopkg.in/natefinch/lumberjack.v2"

	"towerbot/internal/record"
	"towerbot/internal/sink"
	"towerbot/internal/storage"
)

const FileName = "audit.log"

// Targets accepted by LogAction. Anything else is ignored.
const (
	TargetCommand    = "command"
	TargetAdmin      = "admin"
	TargetModeration = "moderation"
	TargetData       = "data"
	TargetConnection = "connection"

	// TargetSystem is the default target and is not audited.
	TargetSystem = "system"
)

var allowedTargets = map[string]bool{
	TargetCommand:    true,
	TargetAdmin:      true,
	TargetModeration: true,
	TargetData:       true,
	TargetConnection: true,
}

// AllowedTarget reports whether target is audited.
func AllowedTarget(target string) bool { return allowedTargets[target] }

var reserved = map[string]bool{
	"time": true, "level": true, "message": true, "username": true, "guild_id": true,
	"action": true, "details": true, "target": true, "id": true,
}

// Config configures a Logger.
type Config struct {
	Enabled  bool
	Dir      string
	Rotation sink.RotationConfig

	// Store, when set, receives a copy of every entry.
	Store    storage.Store
	Fallback *sink.Fallback

	Now   func() time.Time
	NewID func() string
}

// Logger writes audit entries. The zero value and a nil *Logger are valid
// and discard everything.
type Logger struct {
	enabled  bool
	zl       zerolog.Logger
	w        *lumberjack.Logger
	store    storage.Store
	fallback *sink.Fallback
	now      func() time.Time
	newID    func() string

	closeOnce sync.Once
}

// New opens {Dir}/audit.log. A disabled config returns a discarding Logger.
func New(cfg Config) (*Logger, error) {
	if !cfg.Enabled {
		return &Logger{}, nil
	}
	w, err := sink.NewRotatingWriter(filepath.Join(cfg.Dir, FileName), cfg.Rotation)
	if err != nil {
		return nil, fmt.Errorf("audit log: %w", err)
	}
	l := &Logger{
		enabled:  true,
		zl:       zerolog.New(w),
		w:        w,
		store:    cfg.Store,
		fallback: cfg.Fallback,
		now:      cfg.Now,
		newID:    cfg.NewID,
	}
	if l.now == nil {
		l.now = time.Now
	}
	if l.newID == nil {
		l.newID = uuid.NewString
	}
	return l, nil
}

func (l *Logger) Enabled() bool { return l != nil && l.enabled }

type options struct {
	level    record.Level
	target   string
	metadata map[string]any
}

type Option func(*options)

func WithLevel(lv record.Level) Option { return func(o *options) { o.level = lv } }

func WithTarget(target string) Option { return func(o *options) { o.target = target } }

// WithMetadata merges extra keys into the entry. Keys that clash with the
// standard fields are written with a "meta_" prefix.
func WithMetadata(md map[string]any) Option { return func(o *options) { o.metadata = md } }

// LogAction records action by username in tenantID (nil for direct
// messages). It does nothing unless auditing is enabled and the target is
// one of the audited targets.
func (l *Logger) LogAction(ctx context.Context, username string, tenantID *string, action, details string, opts ...Option) {
	if !l.Enabled() {
		return
	}
	o := options{level: record.LevelInfo, target: TargetSystem}
	for _, fn := range opts {
		fn(&o)
	}
	if !AllowedTarget(o.target) {
		return
	}

	guild := ""
	if tenantID != nil {
		guild = *tenantID
	}
	e := storage.AuditEntry{
		ID:       l.newID(),
		At:       l.now(),
		Level:    o.level.String(),
		Username: username,
		GuildID:  guild,
		Action:   action,
		Details:  details,
		Target:   o.target,
	}

	ev := l.zl.Log().
		Time("time", e.At).
		Str("level", e.Level).
		Str("username", e.Username).
		Str("guild_id", e.GuildID).
		Str("action", e.Action).
		Str("details", e.Details).
		Str("target", e.Target).
		Str("id", e.ID)
	keys := make([]string, 0, len(o.metadata))
	for k := range o.metadata {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		name := k
		if reserved[k] {
			name = "meta_" + k
		}
		ev.Interface(name, o.metadata[k])
	}
	ev.Msg(action + ": " + details)

	if l.store != nil {
		if len(o.metadata) > 0 {
			e.MetaJSON = metaJSON(o.metadata)
		}
		if ctx == nil {
			ctx = context.Background()
		}
		if err := l.store.AppendAudit(ctx, e); err != nil {
			l.fallback.Report("audit.store", err)
		}
	}
}

// Recent returns the newest persisted entries.
func (l *Logger) Recent(ctx context.Context, limit int) ([]storage.AuditEntry, error) {
	if !l.Enabled() || l.store == nil {
		return nil, storage.ErrDisabled
	}
	return l.store.RecentAudit(ctx, limit)
}

// Close closes audit.log. The store is owned by the caller.
func (l *Logger) Close() error {
	if !l.Enabled() || l.w == nil {
		return nil
	}
	var err error
	l.closeOnce.Do(func() { err = l.w.Close() })
	return err
}
