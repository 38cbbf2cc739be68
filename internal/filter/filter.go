// Package filter implements the admit/suppress predicates that run before a
// record reaches any sink.
package filter

import (
	"fmt"

	"towerbot/internal/record"
)

// Decision is the outcome of evaluating a record.
type Decision int

const (
	Admit Decision = iota
	Suppress
)

func (d Decision) String() string {
	if d == Suppress {
		return "suppress"
	}
	return "admit"
}

// Filter decides whether a record passes. It may return a rewritten copy of
// the record together with Admit.
type Filter interface {
	Name() string
	Evaluate(r record.Record) (record.Record, Decision)
}

// Func adapts a plain function to Filter.
type Func struct {
	ID string
	Fn func(r record.Record) (record.Record, Decision)
}

func (f Func) Name() string { return f.ID }

func (f Func) Evaluate(r record.Record) (record.Record, Decision) { return f.Fn(r) }

// Chain applies filters in order. The first Suppress wins. A filter that
// panics is skipped as if it had admitted the record.
type Chain struct {
	filters []Filter
	onPanic func(name string, err error)
}

// NewChain builds a chain. onPanic may be nil.
func NewChain(onPanic func(name string, err error), filters ...Filter) *Chain {
	fs := make([]Filter, 0, len(filters))
	for _, f := range filters {
		if f != nil {
			fs = append(fs, f)
		}
	}
	return &Chain{filters: fs, onPanic: onPanic}
}

// Len returns the number of filters in the chain.
func (c *Chain) Len() int {
	if c == nil {
		return 0
	}
	return len(c.filters)
}

// Evaluate runs r through every filter and reports whether it survived.
func (c *Chain) Evaluate(r record.Record) (record.Record, bool) {
	if c == nil {
		return r, true
	}
	for _, f := range c.filters {
		out, d := c.safeEvaluate(f, r)
		if d == Suppress {
			return r, false
		}
		r = out
	}
	return r, true
}

func (c *Chain) safeEvaluate(f Filter, r record.Record) (out record.Record, d Decision) {
	defer func() {
		if p := recover(); p != nil {
			if c.onPanic != nil {
				c.onPanic(f.Name(), fmt.Errorf("filter panic: %v", p))
			}
			out, d = r, Admit
		}
	}()
	return f.Evaluate(r)
}
