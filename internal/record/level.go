package record

import (
	"strconv"
	"strings"

	"github.com/coreos/go-systemd/v22/journal"
)

// Level is the severity of a record. Values are spaced so that finer levels
// can sit between the classic ones (NOTICE, ALERT).
type Level int

const (
	LevelTrace     Level = 5
	LevelDebug     Level = 10
	LevelInfo      Level = 20
	LevelNotice    Level = 25
	LevelWarning   Level = 30
	LevelError     Level = 40
	LevelCritical  Level = 50
	LevelAlert     Level = 55
	LevelEmergency Level = 60
)

// Levels lists every named level in ascending order.
var Levels = []Level{
	LevelTrace, LevelDebug, LevelInfo, LevelNotice, LevelWarning,
	LevelError, LevelCritical, LevelAlert, LevelEmergency,
}

func (l Level) String() string {
	switch l {
	case LevelTrace:
		return "TRACE"
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelNotice:
		return "NOTICE"
	case LevelWarning:
		return "WARNING"
	case LevelError:
		return "ERROR"
	case LevelCritical:
		return "CRITICAL"
	case LevelAlert:
		return "ALERT"
	case LevelEmergency:
		return "EMERGENCY"
	default:
		return "LEVEL" + strconv.Itoa(int(l))
	}
}

// Short returns a three letter tag for console output.
func (l Level) Short() string {
	switch {
	case l <= LevelTrace:
		return "TRC"
	case l <= LevelDebug:
		return "DBG"
	case l < LevelNotice:
		return "INF"
	case l < LevelWarning:
		return "NTC"
	case l < LevelError:
		return "WRN"
	case l < LevelCritical:
		return "ERR"
	case l < LevelAlert:
		return "CRT"
	case l < LevelEmergency:
		return "ALR"
	default:
		return "EMG"
	}
}

// Syslog maps the level onto a journald priority.
func (l Level) Syslog() journal.Priority {
	switch {
	case l >= LevelEmergency:
		return journal.PriEmerg
	case l >= LevelAlert:
		return journal.PriAlert
	case l >= LevelCritical:
		return journal.PriCrit
	case l >= LevelError:
		return journal.PriErr
	case l >= LevelWarning:
		return journal.PriWarning
	case l >= LevelNotice:
		return journal.PriNotice
	case l >= LevelInfo:
		return journal.PriInfo
	default:
		return journal.PriDebug
	}
}

// ParseLevel parses a level name. Unknown or empty input yields def.
func ParseLevel(s string, def Level) Level {
	s = strings.ToUpper(strings.TrimSpace(s))
	switch s {
	case "TRACE":
		return LevelTrace
	case "DEBUG":
		return LevelDebug
	case "INFO":
		return LevelInfo
	case "NOTICE":
		return LevelNotice
	case "WARN", "WARNING":
		return LevelWarning
	case "ERROR", "ERR":
		return LevelError
	case "CRITICAL", "CRIT", "FATAL":
		return LevelCritical
	case "ALERT":
		return LevelAlert
	case "EMERGENCY", "EMERG":
		return LevelEmergency
	}
	if n, err := strconv.Atoi(s); err == nil && n > 0 {
		return Level(n)
	}
	return def
}

// ValidLevel reports whether s names a known level.
func ValidLevel(s string) bool {
	return ParseLevel(s, 0) != 0
}
