package logx

import (
	"strings"
	"time"

	"towerbot/internal/record"
)

// Field is one structured key/value pair. Fields are kept in order; when a
// key repeats, later fields win in JSON output.
type Field = record.Field

// Level is a record severity.
type Level = record.Level

const (
	LevelTrace     = record.LevelTrace
	LevelDebug     = record.LevelDebug
	LevelInfo      = record.LevelInfo
	LevelNotice    = record.LevelNotice
	LevelWarning   = record.LevelWarning
	LevelError     = record.LevelError
	LevelCritical  = record.LevelCritical
	LevelAlert     = record.LevelAlert
	LevelEmergency = record.LevelEmergency
)

// ParseLevel parses a level name, returning def when s is empty or unknown.
func ParseLevel(s string, def Level) Level { return record.ParseLevel(s, def) }

func String(k, v string) Field                 { return Field{Key: k, Value: v} }
func Int(k string, v int) Field                { return Field{Key: k, Value: v} }
func Int64(k string, v int64) Field            { return Field{Key: k, Value: v} }
func Uint64(k string, v uint64) Field          { return Field{Key: k, Value: v} }
func Bool(k string, v bool) Field              { return Field{Key: k, Value: v} }
func Float64(k string, v float64) Field        { return Field{Key: k, Value: v} }
func Duration(k string, v time.Duration) Field { return Field{Key: k, Value: v} }
func Time(k string, v time.Time) Field         { return Field{Key: k, Value: v} }
func Any(k string, v any) Field                { return Field{Key: k, Value: v} }

// Err stores err under "err". A nil error yields an empty field that is
// dropped at emission.
func Err(err error) Field {
	if err == nil {
		return Field{}
	}
	return Field{Key: "err", Value: err}
}

func Stack(stack string) Field {
	if strings.TrimSpace(stack) == "" {
		return Field{}
	}
	return Field{Key: "stack", Value: stack}
}

func appendFields(dst []Field, src []Field) []Field {
	for _, f := range src {
		if f.Key == "" {
			continue
		}
		dst = append(dst, f)
	}
	return dst
}
