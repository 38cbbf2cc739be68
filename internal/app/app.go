package app

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"towerbot/internal/config"
	"towerbot/internal/eventbus"
	"towerbot/internal/runtime/supervisor"
	"towerbot/internal/storage"
	logx "towerbot/pkg/logx"
)

// App boots the observability core: config, audit store, logging facade
// and the background loops that keep them in sync.
type App struct {
	cfgPath string

	cfgm *config.ConfigManager
	sup  *supervisor.Supervisor
	// unhook detaches the Start context from the supervisor.
	unhook func() bool

	// diag carries diagnostics of the machinery behind the facade.
	diag zerolog.Logger

	log   logx.Logger
	logs  *logx.Service
	bus   eventbus.Bus
	store storage.Store
}

// Option configures an App.
type Option func(*appOptions)

type appOptions struct {
	stderr io.Writer
	env    config.LookupFunc
	extra  []logx.Option
}

// WithStderr redirects diagnostics (default os.Stderr).
func WithStderr(w io.Writer) Option { return func(o *appOptions) { o.stderr = w } }

// WithEnv replaces the environment lookup used for overrides.
func WithEnv(lookup config.LookupFunc) Option { return func(o *appOptions) { o.env = lookup } }

// WithLogOptions passes extra options to the logging facade.
func WithLogOptions(opts ...logx.Option) Option {
	return func(o *appOptions) { o.extra = append(o.extra, opts...) }
}

func NewApp(cfgPath string, opts ...Option) (*App, error) {
	o := appOptions{stderr: os.Stderr}
	for _, fn := range opts {
		fn(&o)
	}
	diag := zerolog.New(o.stderr).With().Timestamp().Logger()

	cfgm := config.NewConfigManager(cfgPath)
	cfgm.SetLogger(diag.With().Str("comp", "config").Logger())
	if o.env != nil {
		cfgm.SetEnv(o.env)
	}
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}
	logCfg, err := mapLoggingConfig(cfg)
	if err != nil {
		return nil, err
	}

	// Storage (optional)
	var store storage.Store
	if sc, enabled, err := mapStorageConfig(cfg); err != nil {
		return nil, err
	} else if enabled {
		st, err := storage.Open(sc, diag.With().Str("comp", "storage").Logger())
		if err != nil {
			return nil, err
		}
		store = st
	}

	bus := eventbus.New()
	sup := supervisor.New(context.Background(), supervisor.WithLogger(diag.With().Str("comp", "supervisor").Logger()))

	logOpts := []logx.Option{
		logx.WithStderr(o.stderr),
		logx.WithBus(bus),
		logx.WithSupervisor(sup),
	}
	if store != nil {
		logOpts = append(logOpts, logx.WithAuditStore(store))
	}
	logOpts = append(logOpts, o.extra...)
	logs, log, err := logx.New(logCfg, logOpts...)
	if err != nil {
		sup.Cancel()
		if store != nil {
			_ = store.Close()
		}
		return nil, err
	}
	log = log.With(logx.String("comp", "app"))
	if store != nil {
		log.Info("audit storage enabled", logx.String("driver", cfg.Storage.Driver))
	}

	return &App{
		cfgPath: cfgPath,
		cfgm:    cfgm,
		sup:     sup,
		diag:    diag,
		log:     log,
		logs:    logs,
		bus:     bus,
		store:   store,
	}, nil
}

// Logs returns the logging facade.
func (a *App) Logs() *logx.Service { return a.logs }

func (a *App) Config() *config.ConfigManager { return a.cfgm }

// Done is closed when the app supervisor context is cancelled.
func (a *App) Done() <-chan struct{} { return a.sup.Context().Done() }

// Err returns the first fatal error observed by the supervisor.
func (a *App) Err() error { return a.sup.Err() }

// Start launches the config watcher, the reload fan-out and the event log.
// Everything stops when ctx is cancelled or Stop is called.
func (a *App) Start(ctx context.Context) error {
	a.unhook = context.AfterFunc(ctx, a.sup.Cancel)

	// reject configs the facade could not apply before they are committed
	a.cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error {
		_, err := mapLoggingConfig(cfg)
		return err
	})
	a.sup.GoRestart("config.watch", a.cfgm.Watch, supervisor.WithRestartBackoff(time.Second, 30*time.Second))

	events, unsub := a.bus.Subscribe(128)
	a.sup.Go0("eventbus.log", func(c context.Context) {
		defer unsub()
		for {
			select {
			case <-c.Done():
				return
			case e, ok := <-events:
				if !ok {
					return
				}
				a.log.Debug("event", logx.String("type", e.Type), logx.Time("time", e.Time), logx.Any("data", e.Data))
			}
		}
	})

	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		lastApplied := a.cfgm.Get()
		for {
			select {
			case <-c.Done():
				return
			case newCfg, ok := <-sub:
				if !ok {
					return
				}
				// coalesce bursts, keep the newest
			drain:
				for {
					select {
					case newer := <-sub:
						if newer != nil {
							newCfg = newer
						}
					default:
						break drain
					}
				}
				a.applyConfig(lastApplied, newCfg)
				lastApplied = newCfg
			}
		}
	})

	a.log.Info("app started", logx.String("config", a.cfgPath))
	return nil
}

func (a *App) applyConfig(prev, next *config.Config) {
	sections, attrs := config.SummarizeConfigChange(prev, next)
	if len(sections) == 0 {
		a.log.Debug("config reload received, but no effective changes detected")
		return
	}
	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
	a.log.Info("config change summary", fields...)
	for _, s := range sections {
		if s == "storage" {
			a.log.Warn("storage config changed; restart required for changes to take effect")
			break
		}
	}

	logCfg, err := mapLoggingConfig(next)
	if err != nil {
		a.log.Error("logging config rejected", logx.Err(err))
		return
	}
	if err := a.logs.Apply(logCfg); err != nil {
		a.log.Error("logging config apply failed; keeping previous sinks", logx.Err(err))
	}
}

// Stop shuts components down in order, bounding each step so one slow
// component cannot stall the rest.
func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if reason == "" {
		reason = StopUnknown
	}
	a.log.Info("app stopping", logx.String("reason", string(reason)))
	if a.unhook != nil {
		a.unhook()
	}

	var firstErr error
	step := func(name string, max time.Duration, fn func(context.Context) error) {
		start := time.Now()
		stepCtx, cancel := context.WithTimeout(ctx, max)
		defer cancel()

		done := make(chan error, 1)
		go func() {
			defer func() {
				if r := recover(); r != nil {
					done <- fmt.Errorf("panic in stop step %s: %v", name, r)
				}
			}()
			done <- fn(stepCtx)
		}()

		select {
		case err := <-done:
			if err != nil {
				a.diag.Warn().Str("step", name).Err(err).Msg("stop step error")
				if firstErr == nil {
					firstErr = fmt.Errorf("%s: %w", name, err)
				}
				return
			}
			a.diag.Debug().Str("step", name).Dur("took", time.Since(start)).Msg("stop step end")
		case <-stepCtx.Done():
			a.diag.Warn().Str("step", name).Dur("max", max).Err(stepCtx.Err()).Msg("stop step deadline reached (continuing)")
			if firstErr == nil {
				firstErr = fmt.Errorf("%s: %w", name, stepCtx.Err())
			}
		}
	}

	// loops first so no reload races the facade shutdown
	step("supervisor", 2*time.Second, func(c context.Context) error {
		a.sup.Cancel()
		return a.sup.Wait(c)
	})
	step("logging", 6*time.Second, a.logs.Close)
	step("storage", time.Second, func(context.Context) error {
		if a.store == nil {
			return nil
		}
		return a.store.Close()
	})
	return firstErr
}
