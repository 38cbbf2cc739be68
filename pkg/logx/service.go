package logx

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"towerbot/internal/aggregator"
	"towerbot/internal/audit"
	"towerbot/internal/eventbus"
	"towerbot/internal/filter"
	"towerbot/internal/record"
	"towerbot/internal/runtime/supervisor"
	"towerbot/internal/sink"
	"towerbot/internal/storage"
	"towerbot/internal/webhook"
)

var (
	ErrClosed       = errors.New("logx: service closed")
	ErrNoWebhookURL = errors.New("logx: webhook enabled without a URL")
)

// Option configures a Service at construction.
type Option func(*Service)

// WithStderr redirects the pipeline's own diagnostics (default os.Stderr).
func WithStderr(w io.Writer) Option { return func(s *Service) { s.stderr = w } }

// WithAuditStore mirrors audit entries into st. The store stays owned by
// the caller.
func WithAuditStore(st storage.Store) Option { return func(s *Service) { s.store = st } }

// WithSupervisor runs background work (the webhook worker) under sup.
func WithSupervisor(sup *supervisor.Supervisor) Option { return func(s *Service) { s.sup = sup } }

// WithBus publishes pipeline events on bus instead of a private one.
func WithBus(bus eventbus.Bus) Option { return func(s *Service) { s.bus = bus } }

func WithHTTPClient(c *http.Client) Option { return func(s *Service) { s.client = c } }

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// sinkSet is everything one Apply attaches. It is replaced as a whole.
type sinkSet struct {
	threshold Level
	chain     *filter.Chain
	sinks     []sink.Sink
	webhook   *webhook.Worker
}

// Service is the logging facade.
type Service struct {
	// mu serializes Apply and Close.
	mu  sync.Mutex
	cfg Config

	set    atomic.Pointer[sinkSet]
	audit  atomic.Pointer[audit.Logger]
	digest *aggregator.Digest
	cache  *aggregator.Cache
	// limiter outlives Apply so a reload keeps the repeat counters.
	limiter *filter.RateLimit

	fallback *sink.Fallback
	stderr   io.Writer
	bus      eventbus.Bus
	sup      *supervisor.Supervisor
	ownSup   bool
	store    storage.Store
	client   *http.Client
	now      func() time.Time

	closed atomic.Bool
}

// New builds the service and applies cfg. Configuration errors (an
// uncreatable directory, a webhook without URL, a bad pattern or schedule)
// are returned here and nothing is left running.
func New(cfg Config, opts ...Option) (*Service, Logger, error) {
	s := &Service{now: time.Now}
	for _, o := range opts {
		o(s)
	}
	s.fallback = sink.NewFallback(s.stderr)
	if s.bus == nil {
		s.bus = eventbus.New()
	}
	if s.sup == nil {
		s.sup = supervisor.New(context.Background(), supervisor.WithLogger(s.fallback.Logger()))
		s.ownSup = true
	}
	cfg = cfg.withDefaults()
	s.cache = aggregator.NewCache(cfg.Errors.Capacity, cfg.Errors.TTL, aggregator.WithClock(s.now))
	s.limiter = filter.NewRateLimit(cfg.Filters.RateLimit, cfg.Filters.RatePeriod, filter.WithClock(s.now))

	if err := s.Apply(cfg); err != nil {
		if s.ownSup {
			s.sup.Cancel()
		}
		return nil, Logger{}, err
	}
	root := s.Logger(cfg.AppName)
	root.Info("Logging system initialized: " + cfg.AppName)
	return s, root, nil
}

// Logger returns a handle named name with fields bound to every record.
func (s *Service) Logger(name string, fields ...Field) Logger {
	return Logger{svc: s, name: name}.With(fields...)
}

// Config returns the configuration of the last successful Apply.
func (s *Service) Config() Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg
}

// Apply rebuilds the sink set, filter chain, audit logger and digest from
// cfg. The new set replaces the old one in a single swap and the old sinks
// are closed afterwards, so no record reaches both. On error the previous
// set stays attached.
func (s *Service) Apply(cfg Config) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed.Load() {
		return ErrClosed
	}
	cfg = cfg.withDefaults()

	set, err := s.buildSet(cfg)
	if err != nil {
		return err
	}
	al, err := audit.New(audit.Config{
		Enabled:  cfg.Audit.Enabled,
		Dir:      cfg.Dir,
		Rotation: rotation(cfg.File),
		Store:    s.store,
		Fallback: s.fallback,
		Now:      s.now,
	})
	if err != nil {
		s.closeSet(set)
		return err
	}
	var dg *aggregator.Digest
	if cfg.Errors.DigestSchedule != "" {
		dg, err = aggregator.NewDigest(s.cache, cfg.Errors.DigestSchedule, cfg.Errors.DigestTop, s.dispatch)
		if err != nil {
			s.closeSet(set)
			_ = al.Close()
			return err
		}
	}

	if set.webhook != nil {
		set.webhook.Start(s.sup)
	}
	s.limiter.SetLimits(cfg.Filters.RateLimit, cfg.Filters.RatePeriod)
	old := s.set.Swap(set)
	oldAudit := s.audit.Swap(al)
	s.closeSet(old)
	if oldAudit != nil {
		if err := oldAudit.Close(); err != nil {
			s.fallback.Report("audit", err)
		}
	}

	if s.digest != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = s.digest.Stop(ctx)
		cancel()
	}
	s.digest = dg
	if dg != nil {
		dg.Start()
	}
	s.cfg = cfg
	return nil
}

func rotation(fc FileConfig) sink.RotationConfig {
	return sink.RotationConfig{MaxSizeMB: fc.MaxSizeMB, MaxBackups: fc.MaxBackups, Compress: fc.Compress}
}

func (s *Service) buildSet(cfg Config) (*sinkSet, error) {
	set := &sinkSet{threshold: cfg.Level}

	filters := []filter.Filter{
		s.limiter,
	}
	if cfg.Filters.Success {
		f, err := filter.NewSuccess(cfg.Filters.ExtraSuccessPatterns...)
		if err != nil {
			return nil, err
		}
		filters = append(filters, f)
	}
	set.chain = filter.NewChain(func(name string, err error) {
		s.fallback.Report("filter."+name, err)
	}, filters...)

	if cfg.Console {
		set.sinks = append(set.sinks, sink.NewConsole(cfg.Level, sink.ConsoleOptions{Out: cfg.ConsoleOut, NoColor: cfg.NoColor}))
	}
	if cfg.File.Enabled {
		rc := rotation(cfg.File)
		mainFile, err := sink.NewFile("file", filepath.Join(cfg.Dir, cfg.AppName+".log"), cfg.Level, rc)
		if err != nil {
			s.closeSet(set)
			return nil, err
		}
		set.sinks = append(set.sinks, mainFile)
		errFile, err := sink.NewFile("error_file", filepath.Join(cfg.Dir, cfg.AppName+"_error.log"), LevelError, rc)
		if err != nil {
			s.closeSet(set)
			return nil, err
		}
		set.sinks = append(set.sinks, errFile)
	}
	if cfg.Journald.Enabled {
		j, err := sink.NewJournald(cfg.Journald.MinLevel, cfg.AppName)
		if err != nil {
			// journald is optional; keep the rest of the pipeline
			s.fallback.Report("journald", err)
		} else {
			set.sinks = append(set.sinks, j)
		}
	}
	if cfg.Webhook.Enabled {
		if cfg.Webhook.URL == "" {
			s.closeSet(set)
			return nil, ErrNoWebhookURL
		}
		w := webhook.NewWorker(webhook.Config{
			URL:          cfg.Webhook.URL,
			QueueSize:    cfg.Webhook.QueueSize,
			RateLimit:    cfg.Webhook.RatePerMinute,
			Timeout:      cfg.Webhook.Timeout,
			ErrorBackoff: cfg.Webhook.ErrorBackoff,
			Client:       s.client,
			Fallback:     s.fallback,
			Bus:          s.bus,
		})
		set.webhook = w
		set.sinks = append(set.sinks, webhook.NewSink(w, cfg.Webhook.MinLevel))
	}
	set.sinks = append(set.sinks, aggregator.NewSink(s.cache))
	return set, nil
}

func (s *Service) closeSet(set *sinkSet) {
	if set == nil {
		return
	}
	if err := sink.CloseAll(set.sinks); err != nil {
		s.fallback.Report("close", err)
	}
}

func (s *Service) enabled(level Level) bool {
	set := s.set.Load()
	return set != nil && level >= set.threshold
}

// dispatch runs r through the threshold and the filter chain once, then
// hands the survivor to every sink that accepts its level.
func (s *Service) dispatch(r record.Record) {
	set := s.set.Load()
	if set == nil || r.Level < set.threshold {
		return
	}
	r, ok := set.chain.Evaluate(r)
	if !ok {
		return
	}
	for _, sk := range set.sinks {
		if sink.Accepts(sk, r.Level) {
			s.write(sk, r)
		}
	}
}

func (s *Service) write(sk sink.Sink, r record.Record) {
	defer func() {
		if p := recover(); p != nil {
			s.fallback.Report(sk.Name(), fmt.Errorf("sink panic: %v", p))
		}
	}()
	err := sk.Write(r)
	if err == nil || errors.Is(err, sink.ErrClosed) || errors.Is(err, webhook.ErrStopped) {
		// a record racing an Apply may see the previous, closed set
		return
	}
	s.fallback.Report(sk.Name(), err)
}

// Audit returns the current audit logger. It is never nil.
func (s *Service) Audit() *audit.Logger {
	if al := s.audit.Load(); al != nil {
		return al
	}
	return &audit.Logger{}
}

// ErrorSummary returns the aggregated errors, most frequent first.
func (s *Service) ErrorSummary() []aggregator.Summary { return s.cache.Summary() }

// ResetErrorCache clears the error aggregator.
func (s *Service) ResetErrorCache() {
	s.cache.Reset()
	s.Logger(s.Config().AppName).Info("Error aggregation cache cleared")
}

// ReportErrors emits an error digest now. It reports false when there is
// nothing to report.
func (s *Service) ReportErrors() bool {
	r, ok := aggregator.BuildDigest(s.cache.Summary(), s.Config().Errors.DigestTop, s.now())
	if ok {
		s.dispatch(r)
	}
	return ok
}

// Events subscribes to pipeline events (webhook drops, deliveries,
// failures and rate limiting), optionally only those whose type starts
// with one of prefixes. Call the returned func to unsubscribe.
func (s *Service) Events(buffer int, prefixes ...string) (<-chan eventbus.Event, func()) {
	return s.bus.Subscribe(buffer, prefixes...)
}

// WebhookStats reports the counters of the active webhook worker.
func (s *Service) WebhookStats() (webhook.Stats, bool) {
	set := s.set.Load()
	if set == nil || set.webhook == nil {
		return webhook.Stats{}, false
	}
	return set.webhook.Stats(), true
}

// Close detaches every sink, stops the webhook worker and the digest, and
// closes the log files. It waits for the worker until ctx is done.
func (s *Service) Close(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}

	var errs []error
	if s.digest != nil {
		if err := s.digest.Stop(ctx); err != nil {
			errs = append(errs, fmt.Errorf("digest: %w", err))
		}
		s.digest = nil
	}

	old := s.set.Swap(nil)
	done := make(chan error, 1)
	go func() {
		if old == nil {
			done <- nil
			return
		}
		done <- sink.CloseAll(old.sinks)
	}()
	select {
	case err := <-done:
		if err != nil {
			errs = append(errs, err)
		}
	case <-ctx.Done():
		errs = append(errs, fmt.Errorf("close sinks: %w", ctx.Err()))
	}

	if al := s.audit.Swap(nil); al != nil {
		if err := al.Close(); err != nil {
			errs = append(errs, fmt.Errorf("audit: %w", err))
		}
	}
	if s.ownSup {
		if err := s.sup.Stop(ctx); err != nil {
			errs = append(errs, fmt.Errorf("supervisor: %w", err))
		}
	}
	return errors.Join(errs...)
}
