package aggregator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"towerbot/internal/record"
)

const DefaultDigestTop = 5

var ErrNoSchedule = errors.New("digest schedule is empty")

var scheduleParser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// ParseSchedule validates a digest schedule.
func ParseSchedule(spec string) (cron.Schedule, error) {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return nil, ErrNoSchedule
	}
	sched, err := scheduleParser.Parse(spec)
	if err != nil {
		return nil, fmt.Errorf("digest schedule %q: %w", spec, err)
	}
	return sched, nil
}

// Digest periodically emits the most frequent cached errors as a single
// NOTICE record. It only reads the cache.
type Digest struct {
	cache *Cache
	top   int
	emit  func(record.Record)
	now   func() time.Time

	c *cron.Cron
}

// NewDigest parses spec (five cron fields, optional seconds, or a descriptor
// such as "@every 1h").
func NewDigest(cache *Cache, spec string, top int, emit func(record.Record)) (*Digest, error) {
	if top <= 0 {
		top = DefaultDigestTop
	}
	sched, err := ParseSchedule(spec)
	if err != nil {
		return nil, err
	}
	d := &Digest{cache: cache, top: top, emit: emit, now: time.Now}
	d.c = cron.New(cron.WithParser(scheduleParser))
	d.c.Schedule(sched, cron.FuncJob(func() { d.Report() }))
	return d, nil
}

func (d *Digest) Start() { d.c.Start() }

// Stop halts the schedule and waits for a running report until ctx ends.
func (d *Digest) Stop(ctx context.Context) error {
	done := d.c.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Report emits one digest record now. It reports false when the cache is
// empty and nothing was emitted.
func (d *Digest) Report() bool {
	r, ok := BuildDigest(d.cache.Summary(), d.top, d.now())
	if !ok {
		return false
	}
	d.emit(r)
	return true
}

// BuildDigest renders the top entries of sum as one NOTICE record. It
// reports false for an empty summary.
func BuildDigest(sum []Summary, top int, at time.Time) (record.Record, bool) {
	if len(sum) == 0 {
		return record.Record{}, false
	}
	if top <= 0 {
		top = DefaultDigestTop
	}
	total := 0
	for _, s := range sum {
		total += s.Count
	}
	shown := sum
	if len(shown) > top {
		shown = shown[:top]
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Error digest: %d distinct errors, %d occurrences", len(sum), total)
	for _, s := range shown {
		fmt.Fprintf(&b, "\n  %dx %s (%s)", s.Count, s.Message, s.TracebackPreview)
	}
	return record.Record{
		Time:    at,
		Level:   record.LevelNotice,
		Logger:  "errors.digest",
		Message: b.String(),
		Fields: []record.Field{
			{Key: "distinct", Value: len(sum)},
			{Key: "occurrences", Value: total},
		},
	}, true
}
