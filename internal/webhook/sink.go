package webhook

import (
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"

	"towerbot/internal/record"
)

// Sink formats records as "LEVEL: message key=value ..." and hands them to
// a Worker.
// Write never blocks on the network.
type Sink struct {
	w      *Worker
	level  record.Level
	closed atomic.Bool
}

// NewSink wraps w. The level defaults to ERROR when zero.
func NewSink(w *Worker, level record.Level) *Sink {
	if level == 0 {
		level = record.LevelError
	}
	return &Sink{w: w, level: level}
}

func (s *Sink) Name() string           { return "webhook" }
func (s *Sink) MinLevel() record.Level { return s.level }
func (s *Sink) Worker() *Worker        { return s.w }

// Write enqueues r. A full queue is not an error.
func (s *Sink) Write(r record.Record) error {
	if s.closed.Load() {
		return ErrStopped
	}
	s.w.Enqueue(Item{
		Message: describe(r),
		Level:   r.Level,
		Time:    r.Time,
	})
	return nil
}

// Close stops the worker, waiting up to DefaultStopTimeout.
func (s *Sink) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	return s.w.Stop(DefaultStopTimeout)
}

// describe renders r the way the console line does, bound fields last.
func describe(r record.Record) string {
	var b strings.Builder
	b.WriteString(r.Level.String())
	b.WriteString(": ")
	b.WriteString(r.Message)
	for _, f := range r.Fields {
		if f.Key == "" {
			continue
		}
		b.WriteByte(' ')
		b.WriteString(f.Key)
		b.WriteByte('=')
		b.WriteString(fieldValue(f.Value))
	}
	return b.String()
}

func fieldValue(v any) string {
	var s string
	switch x := v.(type) {
	case string:
		s = x
	case error:
		s = x.Error()
	case nil:
		return "<nil>"
	default:
		s = fmt.Sprint(x)
	}
	if s == "" || strings.ContainsAny(s, " \t\n\"=") {
		return strconv.Quote(s)
	}
	return s
}
