package sink

import (
	"bytes"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"towerbot/internal/record"
)

const (
	LoggerFieldName    = "logger"
	TracebackFieldName = "traceback"
	ExceptionFieldName = "exception"
)

// encoder renders records as zerolog JSON lines. The level field is written
// by hand since zerolog has no NOTICE/CRITICAL/ALERT/EMERGENCY levels.
type encoder struct {
	mu  sync.Mutex
	buf bytes.Buffer
	zl  zerolog.Logger

	traceback bool
	// loggerAsCaller stores the logger name in the caller slot so the
	// console writer prints it right before the message.
	loggerAsCaller bool
}

func newEncoder(traceback, loggerAsCaller bool) *encoder {
	e := &encoder{traceback: traceback, loggerAsCaller: loggerAsCaller}
	e.zl = zerolog.New(&e.buf)
	return e
}

// Encode returns a newline-terminated JSON line owned by the caller.
func (e *encoder) Encode(r record.Record) []byte {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.buf.Reset()

	ev := e.zl.Log().
		Time(zerolog.TimestampFieldName, r.Time).
		Str(zerolog.LevelFieldName, r.Level.String())
	if r.Logger != "" {
		if e.loggerAsCaller {
			ev.Str(zerolog.CallerFieldName, r.Logger)
		} else {
			ev.Str(LoggerFieldName, r.Logger)
		}
	}
	for _, f := range r.Fields {
		appendField(ev, f)
	}
	if r.Exception != nil {
		ev.Str(ExceptionFieldName, r.Exception.Type+": "+r.Exception.Message)
		if e.traceback {
			ev.Str(TracebackFieldName, r.Exception.Traceback())
		}
	}
	ev.Msg(r.Message)

	return append([]byte(nil), e.buf.Bytes()...)
}

func appendField(ev *zerolog.Event, f record.Field) {
	switch v := f.Value.(type) {
	case string:
		ev.Str(f.Key, v)
	case int:
		ev.Int(f.Key, v)
	case int64:
		ev.Int64(f.Key, v)
	case uint64:
		ev.Uint64(f.Key, v)
	case float64:
		ev.Float64(f.Key, v)
	case bool:
		ev.Bool(f.Key, v)
	case time.Duration:
		ev.Dur(f.Key, v)
	case time.Time:
		ev.Time(f.Key, v)
	case error:
		ev.AnErr(f.Key, v)
	case fmt.Stringer:
		ev.Stringer(f.Key, v)
	default:
		ev.Interface(f.Key, v)
	}
}
