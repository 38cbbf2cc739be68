package sink

import (
	"errors"
	"fmt"
	"strings"

	"github.com/coreos/go-systemd/v22/journal"

	"towerbot/internal/record"
)

var ErrJournalUnavailable = errors.New("journald socket not available")

// Journald forwards records to the systemd journal with native priorities.
// Structured fields become upper-case journal variables.
type Journald struct {
	level      record.Level
	identifier string
}

// NewJournald fails when the journal socket cannot be reached, so the caller
// can report the misconfiguration once at startup.
func NewJournald(level record.Level, identifier string) (*Journald, error) {
	if !journal.Enabled() {
		return nil, ErrJournalUnavailable
	}
	return &Journald{level: level, identifier: identifier}, nil
}

func (j *Journald) Name() string           { return "journald" }
func (j *Journald) MinLevel() record.Level { return j.level }
func (j *Journald) Close() error           { return nil }

func (j *Journald) Write(r record.Record) error {
	return journal.Send(r.Message, r.Level.Syslog(), journalVars(r, j.identifier))
}

func journalVars(r record.Record, identifier string) map[string]string {
	vars := make(map[string]string, len(r.Fields)+4)
	if identifier != "" {
		vars["SYSLOG_IDENTIFIER"] = identifier
	}
	if r.Logger != "" {
		vars["LOGGER"] = r.Logger
	}
	vars["SEVERITY"] = r.Level.String()
	for _, f := range r.Fields {
		k := journalKey(f.Key)
		if k == "" {
			continue
		}
		vars[k] = fmt.Sprint(f.Value)
	}
	if r.Exception != nil {
		vars["TRACEBACK"] = r.Exception.Traceback()
	}
	return vars
}

// journalKey converts a field name to the journal's [A-Z0-9_] alphabet.
// Names may not start with an underscore (reserved for trusted fields).
func journalKey(k string) string {
	var b strings.Builder
	for _, c := range strings.ToUpper(k) {
		switch {
		case c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '_':
			b.WriteRune(c)
		default:
			b.WriteByte('_')
		}
	}
	s := strings.TrimLeft(b.String(), "_")
	if s == "" || (s[0] >= '0' && s[0] <= '9') {
		return ""
	}
	return s
}
