package storage

import (
	"errors"
	"time"
)

var (
	ErrDisabled      = errors.New("storage disabled")
	ErrClosed        = errors.New("storage closed")
	ErrUnknownDriver = errors.New("unknown storage driver")
)

// Config configures storage.
//
// Driver values:
//   - "file": JSON Lines file at Path
//   - "sqlite": SQLite database file at Path
//
// If Driver is empty or "none", storage is disabled.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// AuditEntry is one persisted audit record.
type AuditEntry struct {
	ID       string    `json:"id"`
	At       time.Time `json:"time"`
	Level    string    `json:"level"`
	Username string    `json:"username"`
	GuildID  string    `json:"guild_id"`
	Action   string    `json:"action"`
	Details  string    `json:"details"`
	Target   string    `json:"target"`
	MetaJSON string    `json:"meta,omitempty"`
}
