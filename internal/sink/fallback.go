package sink

import (
	"io"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// Fallback is the diagnostics channel of the logging pipeline itself. It
// writes to stderr and throttles each component independently so a broken
// sink cannot flood the terminal.
type Fallback struct {
	zl zerolog.Logger

	mu       sync.Mutex
	throttle map[string]*rate.Sometimes
	first    int
	interval time.Duration
}

// NewFallback writes to w, or stderr when w is nil.
func NewFallback(w io.Writer) *Fallback {
	if w == nil {
		w = os.Stderr
	}
	return &Fallback{
		zl:       zerolog.New(w).With().Timestamp().Str("comp", "logx").Logger(),
		throttle: map[string]*rate.Sometimes{},
		first:    3,
		interval: 10 * time.Second,
	}
}

// Logger exposes the underlying zerolog logger for components that need to
// emit their own diagnostics (supervisor, config watcher).
func (f *Fallback) Logger() zerolog.Logger {
	if f == nil {
		return zerolog.Nop()
	}
	return f.zl
}

// Report records a failure of component.
func (f *Fallback) Report(component string, err error) {
	if f == nil || err == nil {
		return
	}
	f.mu.Lock()
	s := f.throttle[component]
	if s == nil {
		s = &rate.Sometimes{First: f.first, Interval: f.interval}
		f.throttle[component] = s
	}
	f.mu.Unlock()

	s.Do(func() {
		f.zl.Warn().Str("sink", component).Err(err).Msg("logging pipeline failure")
	})
}
