// Package record holds the immutable log record passed between the logging
// facade, its filters and its sinks.
package record

import (
	"fmt"
	"time"
)

// Field is one key/value pair of structured context.
type Field struct {
	Key   string
	Value any
}

// Record is a snapshot taken at emission time. Sinks receive it by value and
// must not modify the Fields slice.
type Record struct {
	Time      time.Time
	Level     Level
	Logger    string
	Message   string
	Fields    []Field
	Exception *Exception
}

// WithMessage returns a copy of r carrying msg.
func (r Record) WithMessage(msg string) Record {
	r.Message = msg
	return r
}

// Field returns the last value stored under key.
func (r Record) Field(key string) (any, bool) {
	for i := len(r.Fields) - 1; i >= 0; i-- {
		if r.Fields[i].Key == key {
			return r.Fields[i].Value, true
		}
	}
	return nil, false
}

// FieldMap flattens Fields into a map; later keys win.
func (r Record) FieldMap() map[string]any {
	if len(r.Fields) == 0 {
		return nil
	}
	m := make(map[string]any, len(r.Fields))
	for _, f := range r.Fields {
		m[f.Key] = f.Value
	}
	return m
}

// Text renders "LEVEL: message" followed by key=value pairs.
func (r Record) Text() string {
	s := r.Level.String() + ": " + r.Message
	for _, f := range r.Fields {
		s += fmt.Sprintf(" %s=%v", f.Key, f.Value)
	}
	return s
}
