package logx

import (
	"fmt"
	"sync/atomic"
	"time"
)

// LogPerformance emits "Operation '<op>' succeeded|failed in <s.sss>s" with
// an optional ": details" suffix. A zero level means DEBUG.
func (l Logger) LogPerformance(op string, elapsed time.Duration, success bool, details string, level Level) {
	defer func() { _ = recover() }()
	if level == 0 {
		level = LevelDebug
	}
	if !l.Enabled(level) {
		return
	}
	status := "succeeded"
	if !success {
		status = "failed"
	}
	msg := fmt.Sprintf("Operation '%s' %s in %.3fs", op, status, elapsed.Seconds())
	if details != "" {
		msg += ": " + details
	}
	l.emit(level, msg, nil, []Field{
		String("operation", op),
		Duration("elapsed", elapsed),
		Bool("success", success),
	})
}

// LogPerformance logs through the root logger.
func (s *Service) LogPerformance(op string, elapsed time.Duration, success bool, details string, level Level) {
	s.Logger(s.Config().AppName).LogPerformance(op, elapsed, success, details, level)
}

// Timer measures one operation. Stop emits the performance record; only
// the first call counts.
type Timer struct {
	l     Logger
	op    string
	level Level
	start time.Time
	done  atomic.Bool
}

// StartTimer starts timing op. A zero level means DEBUG.
func (l Logger) StartTimer(op string, level Level) *Timer {
	start := time.Now()
	if l.svc != nil {
		start = l.svc.now()
	}
	return &Timer{l: l, op: op, level: level, start: start}
}

// Stop records the operation as failed when err is non-nil and returns the
// elapsed time.
func (t *Timer) Stop(err error) time.Duration {
	elapsed := t.elapsed()
	if !t.done.CompareAndSwap(false, true) {
		return elapsed
	}
	details := ""
	if err != nil {
		details = err.Error()
	}
	t.l.LogPerformance(t.op, elapsed, err == nil, details, t.level)
	return elapsed
}

func (t *Timer) elapsed() time.Duration {
	if t.l.svc != nil {
		return t.l.svc.now().Sub(t.start)
	}
	return time.Since(t.start)
}

// Timed runs fn and records how long it took. A returned error or a panic
// marks the operation failed; a panic is re-raised after the record is
// written.
func (l Logger) Timed(op string, level Level, fn func() error) (err error) {
	t := l.StartTimer(op, level)
	defer func() {
		if p := recover(); p != nil {
			t.Stop(fmt.Errorf("panic: %v", p))
			panic(p)
		}
	}()
	err = fn()
	t.Stop(err)
	return err
}
