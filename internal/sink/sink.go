// Package sink holds the destinations a dispatched record is written to.
//
// Every sink owns its own minimum level. Write errors are returned to the
// caller (the logging facade), which reports them through a Fallback and
// never to the code that produced the record.
package sink

import (
	"errors"

	"towerbot/internal/record"
)

var ErrClosed = errors.New("sink closed")

// Sink consumes records.
type Sink interface {
	Name() string
	MinLevel() record.Level
	Write(r record.Record) error
	Close() error
}

// Accepts reports whether s wants a record of the given level.
func Accepts(s Sink, level record.Level) bool {
	return s != nil && level >= s.MinLevel()
}

// CloseAll closes every sink, collecting errors.
func CloseAll(sinks []Sink) error {
	var errs []error
	for _, s := range sinks {
		if s == nil {
			continue
		}
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
