package audit

import (
	"context"
	"encoding/json"

	"towerbot/internal/record"
)

// Command records a command invocation. Failures are logged at WARNING.
func (l *Logger) Command(ctx context.Context, username string, tenantID *string, command, args string, success bool) {
	action, level := "command_succeeded", record.LevelInfo
	if !success {
		action, level = "command_failed", record.LevelWarning
	}
	details := command
	if args != "" {
		details += " with args: " + args
	}
	l.LogAction(ctx, username, tenantID, action, details, WithLevel(level), WithTarget(TargetCommand))
}

func (l *Logger) AdminAction(ctx context.Context, username string, tenantID *string, action, target string) {
	l.LogAction(ctx, username, tenantID, "admin_action", action+" on "+target, WithTarget(TargetAdmin))
}

// DataChange records op (create, update, delete) on one item of dataType.
func (l *Logger) DataChange(ctx context.Context, username string, tenantID *string, dataType, op, itemID string) {
	l.LogAction(ctx, username, tenantID, "data_change", op+" "+dataType+" "+itemID, WithTarget(TargetData))
}

func (l *Logger) Connection(ctx context.Context, username string, tenantID *string, kind, status, details string) {
	d := kind + " " + status
	if details != "" {
		d += ": " + details
	}
	l.LogAction(ctx, username, tenantID, "connection", d, WithTarget(TargetConnection))
}

// Moderation records a moderator action against subject, e.g. a kick.
func (l *Logger) Moderation(ctx context.Context, username string, tenantID *string, action, subject, reason string) {
	d := action + " " + subject
	if reason != "" {
		d += ": " + reason
	}
	l.LogAction(ctx, username, tenantID, "moderation", d, WithTarget(TargetModeration))
}

func metaJSON(md map[string]any) string {
	b, err := json.Marshal(md)
	if err != nil {
		return ""
	}
	return string(b)
}
