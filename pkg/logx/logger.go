package logx

import (
	"towerbot/internal/record"
)

// Logger is a named handle onto a Service.
//
//   - It stays live across Service.Apply calls.
//   - With returns a derived handle; the parent is never modified.
//   - The zero value discards everything.
type Logger struct {
	svc    *Service
	name   string
	fields []Field
}

// Nop returns a logger that never writes anything.
func Nop() Logger { return Logger{} }

func (l Logger) Name() string { return l.name }

// Named returns a child logger called "<parent>.<name>".
func (l Logger) Named(name string) Logger {
	cp := l
	switch {
	case name == "":
	case l.name == "":
		cp.name = name
	default:
		cp.name = l.name + "." + name
	}
	return cp
}

// With binds fields to every record of the returned logger.
func (l Logger) With(fields ...Field) Logger {
	if len(fields) == 0 {
		return l
	}
	cp := l
	cp.fields = appendFields(append([]Field(nil), l.fields...), fields)
	return cp
}

// Enabled reports whether a record at level would pass the threshold.
func (l Logger) Enabled(level Level) bool {
	return l.svc != nil && l.svc.enabled(level)
}

func (l Logger) Trace(msg string, fields ...Field)  { l.emit(LevelTrace, msg, nil, fields) }
func (l Logger) Debug(msg string, fields ...Field)  { l.emit(LevelDebug, msg, nil, fields) }
func (l Logger) Info(msg string, fields ...Field)   { l.emit(LevelInfo, msg, nil, fields) }
func (l Logger) Notice(msg string, fields ...Field) { l.emit(LevelNotice, msg, nil, fields) }
func (l Logger) Warn(msg string, fields ...Field)   { l.emit(LevelWarning, msg, nil, fields) }
func (l Logger) Error(msg string, fields ...Field)  { l.emit(LevelError, msg, nil, fields) }

func (l Logger) Critical(msg string, fields ...Field) {
	l.emit(LevelCritical, msg, nil, fields)
}

func (l Logger) Alert(msg string, fields ...Field) { l.emit(LevelAlert, msg, nil, fields) }

func (l Logger) Emergency(msg string, fields ...Field) {
	l.emit(LevelEmergency, msg, nil, fields)
}

func (l Logger) Log(level Level, msg string, fields ...Field) { l.emit(level, msg, nil, fields) }

// Exception logs err at ERROR with its type, message and the caller's stack
// attached. Such records feed the error aggregator.
func (l Logger) Exception(msg string, err error, fields ...Field) {
	if !l.Enabled(LevelError) {
		return
	}
	l.emit(LevelError, msg, record.Capture(err, 1), fields)
}

// LogErr is Exception at an arbitrary level.
func (l Logger) LogErr(level Level, msg string, err error, fields ...Field) {
	if !l.Enabled(level) {
		return
	}
	l.emit(level, msg, record.Capture(err, 1), fields)
}

func (l Logger) emit(level Level, msg string, exc *record.Exception, fields []Field) {
	if l.svc == nil {
		return
	}
	var fs []Field
	if n := len(l.fields) + len(fields); n > 0 {
		fs = make([]Field, 0, n)
		fs = append(fs, l.fields...)
		fs = appendFields(fs, fields)
	}
	l.svc.dispatch(record.Record{
		Time:      l.svc.now(),
		Level:     level,
		Logger:    l.name,
		Message:   msg,
		Fields:    fs,
		Exception: exc,
	})
}
