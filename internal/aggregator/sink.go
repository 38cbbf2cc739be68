package aggregator

import "towerbot/internal/record"

// Sink feeds ERROR and above records into a Cache.
type Sink struct {
	cache *Cache
	level record.Level
}

func NewSink(c *Cache) *Sink { return &Sink{cache: c, level: record.LevelError} }

func (s *Sink) Name() string           { return "errors" }
func (s *Sink) MinLevel() record.Level { return s.level }
func (s *Sink) Cache() *Cache          { return s.cache }
func (s *Sink) Close() error           { return nil }

func (s *Sink) Write(r record.Record) error {
	s.cache.Record(r)
	return nil
}
