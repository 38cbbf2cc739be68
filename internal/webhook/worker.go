package webhook

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"towerbot/internal/eventbus"
	"towerbot/internal/runtime/supervisor"
	"towerbot/internal/sink"
)

const (
	DefaultQueueSize    = 100
	DefaultRateLimit    = 5
	DefaultWindow       = 60 * time.Second
	DefaultTimeout      = 10 * time.Second
	DefaultErrorBackoff = 5 * time.Second
	DefaultStopTimeout  = 5 * time.Second

	// RateLimitNotice is delivered once when the send window fills up.
	RateLimitNotice = "💡 **Rate limit reached, logging paused for 60 seconds**"
)

const (
	EventDropped     = "webhook.dropped"
	EventDelivered   = "webhook.delivered"
	EventFailed      = "webhook.failed"
	EventRateLimited = "webhook.rate_limited"
)

var (
	ErrStopped     = errors.New("webhook worker stopped")
	ErrStopTimeout = errors.New("webhook worker did not stop in time")
)

// State is the delivery loop phase.
type State int32

const (
	StateIdle State = iota
	StateDraining
	StateDelivering
	StatePaused
	StateShutdown
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateDraining:
		return "draining"
	case StateDelivering:
		return "delivering"
	case StatePaused:
		return "paused"
	case StateShutdown:
		return "shutdown"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Stats are monotonically increasing delivery counters.
type Stats struct {
	Enqueued  uint64 `json:"enqueued"`
	Dropped   uint64 `json:"dropped"`
	Delivered uint64 `json:"delivered"`
	Failed    uint64 `json:"failed"`
	Skipped   uint64 `json:"skipped"`
}

// Config configures a Worker. Zero values take the package defaults.
type Config struct {
	URL          string
	QueueSize    int
	RateLimit    int           // deliveries per Window
	Window       time.Duration // trailing send window
	Timeout      time.Duration // per request
	ErrorBackoff time.Duration // pause after a transport error

	// PopTimeout and IdlePoll shape the dequeue loop.
	PopTimeout time.Duration
	IdlePoll   time.Duration

	Client   *http.Client
	Fallback *sink.Fallback
	Bus      eventbus.Bus
}

func (c Config) withDefaults() Config {
	if c.QueueSize <= 0 {
		c.QueueSize = DefaultQueueSize
	}
	if c.RateLimit <= 0 {
		c.RateLimit = DefaultRateLimit
	}
	if c.Window <= 0 {
		c.Window = DefaultWindow
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.ErrorBackoff <= 0 {
		c.ErrorBackoff = DefaultErrorBackoff
	}
	if c.PopTimeout <= 0 {
		c.PopTimeout = time.Second
	}
	if c.IdlePoll <= 0 {
		c.IdlePoll = 100 * time.Millisecond
	}
	if c.Client == nil {
		c.Client = &http.Client{Timeout: c.Timeout}
	}
	return c
}

// Worker delivers queued items to a webhook endpoint from a single
// background loop. Enqueue never blocks; a full queue drops the item.
type Worker struct {
	cfg   Config
	queue chan Item

	state atomic.Int32

	enqueued  atomic.Uint64
	dropped   atomic.Uint64
	delivered atomic.Uint64
	failed    atomic.Uint64
	skipped   atomic.Uint64

	// Owned by the loop goroutine.
	sent     []time.Time
	notified bool

	running   atomic.Bool
	startOnce sync.Once
	stopOnce  sync.Once
	stopCh    chan struct{}
	doneOnce  sync.Once
	done      chan struct{}
	ownSup    *supervisor.Supervisor
}

func NewWorker(cfg Config) *Worker {
	cfg = cfg.withDefaults()
	return &Worker{
		cfg:    cfg,
		queue:  make(chan Item, cfg.QueueSize),
		stopCh: make(chan struct{}),
		done:   make(chan struct{}),
	}
}

// Start launches the delivery loop under sup. A nil sup gets a private
// supervisor. Calling Start more than once has no effect.
func (w *Worker) Start(sup *supervisor.Supervisor) {
	w.startOnce.Do(func() {
		w.running.Store(true)
		if sup == nil {
			sup = supervisor.New(context.Background(), supervisor.WithLogger(w.cfg.Fallback.Logger()))
			w.ownSup = sup
		}
		sup.GoRestart("webhook.worker", w.run, supervisor.WithRestartBackoff(time.Second, 30*time.Second))
	})
}

// Enqueue offers it to the queue and reports whether it was accepted.
func (w *Worker) Enqueue(it Item) bool {
	if w.stopped() {
		w.drop()
		return false
	}
	select {
	case w.queue <- it:
		w.enqueued.Add(1)
		return true
	default:
		w.drop()
		return false
	}
}

func (w *Worker) drop() {
	n := w.dropped.Add(1)
	w.publish(EventDropped, map[string]any{"dropped": n})
}

// Stop signals the loop and waits up to timeout (default 5s) for it to
// exit. On timeout it returns ErrStopTimeout and leaves the loop behind.
func (w *Worker) Stop(timeout time.Duration) error {
	if timeout <= 0 {
		timeout = DefaultStopTimeout
	}
	w.stopOnce.Do(func() { close(w.stopCh) })
	w.startOnce.Do(func() {})
	if !w.running.Load() {
		w.setState(StateShutdown)
		return nil
	}

	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case <-w.done:
	case <-t.C:
		return ErrStopTimeout
	}
	if w.ownSup != nil {
		w.ownSup.Cancel()
	}
	return nil
}

func (w *Worker) State() State { return State(w.state.Load()) }

func (w *Worker) Stats() Stats {
	return Stats{
		Enqueued:  w.enqueued.Load(),
		Dropped:   w.dropped.Load(),
		Delivered: w.delivered.Load(),
		Failed:    w.failed.Load(),
		Skipped:   w.skipped.Load(),
	}
}

// QueueLen is the number of items waiting for delivery.
func (w *Worker) QueueLen() int { return len(w.queue) }

func (w *Worker) stopped() bool {
	select {
	case <-w.stopCh:
		return true
	default:
		return false
	}
}

func (w *Worker) setState(s State) { w.state.Store(int32(s)) }

func (w *Worker) run(ctx context.Context) error {
	for {
		if w.stopped() || ctx.Err() != nil {
			w.shutdown()
			return nil
		}

		w.setState(StateDraining)
		it, ok := w.pop(ctx)
		if !ok {
			w.setState(StateIdle)
			w.sleep(ctx, w.cfg.IdlePoll)
			continue
		}
		w.handle(ctx, it)
	}
}

func (w *Worker) pop(ctx context.Context) (Item, bool) {
	t := time.NewTimer(w.cfg.PopTimeout)
	defer t.Stop()
	select {
	case it := <-w.queue:
		return it, true
	case <-t.C:
	case <-w.stopCh:
	case <-ctx.Done():
	}
	return Item{}, false
}

// sleep waits for d and reports false when interrupted by shutdown.
func (w *Worker) sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-w.stopCh:
	case <-ctx.Done():
	}
	return false
}

func (w *Worker) handle(ctx context.Context, it Item) {
	now := time.Now()
	w.prune(now)

	if len(w.sent) >= w.cfg.RateLimit {
		w.setState(StatePaused)
		w.skipped.Add(1)
		if !w.notified {
			w.notified = true
			w.publish(EventRateLimited, map[string]any{"limit": w.cfg.RateLimit})
			notice := Item{Message: RateLimitNotice, Level: it.Level, Time: it.Time}
			if err := w.deliver(ctx, notice); err != nil {
				w.onTransportError(ctx, err)
			}
		}
		return
	}
	w.notified = false

	w.setState(StateDelivering)
	w.sent = append(w.sent, now)
	if err := w.deliver(ctx, it); err != nil {
		w.onTransportError(ctx, err)
	}
}

// prune drops send timestamps outside the trailing window.
func (w *Worker) prune(now time.Time) {
	keep := w.sent[:0]
	for _, ts := range w.sent {
		if now.Sub(ts) < w.cfg.Window {
			keep = append(keep, ts)
		}
	}
	w.sent = keep
}

// deliver posts it once. An HTTP error status is reported and counted as
// failed; only transport errors are returned.
func (w *Worker) deliver(ctx context.Context, it Item) error {
	body, err := Encode(it)
	if err != nil {
		w.failed.Add(1)
		w.cfg.Fallback.Report("webhook", fmt.Errorf("encode payload: %w", err))
		return nil
	}

	reqCtx, cancel := context.WithTimeout(ctx, w.cfg.Timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, w.cfg.URL, bytes.NewReader(body))
	if err != nil {
		w.failed.Add(1)
		w.cfg.Fallback.Report("webhook", fmt.Errorf("build request: %w", err))
		return nil
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.cfg.Client.Do(req)
	if err != nil {
		err = redactURL(err)
		w.failed.Add(1)
		w.publish(EventFailed, map[string]any{"error": err.Error()})
		return err
	}
	defer resp.Body.Close()
	text, _ := io.ReadAll(io.LimitReader(resp.Body, 512))

	if resp.StatusCode >= 400 {
		w.failed.Add(1)
		w.cfg.Fallback.Report("webhook", fmt.Errorf("webhook status %d: %s", resp.StatusCode, bytes.TrimSpace(text)))
		w.publish(EventFailed, map[string]any{"status": resp.StatusCode})
		return nil
	}
	w.delivered.Add(1)
	w.publish(EventDelivered, map[string]any{"status": resp.StatusCode})
	return nil
}

// redactURL drops the request URL, which carries the webhook token, from
// a transport error.
func redactURL(err error) error {
	var ue *url.Error
	if errors.As(err, &ue) {
		return fmt.Errorf("%s: %w", ue.Op, ue.Err)
	}
	return err
}

func (w *Worker) onTransportError(ctx context.Context, err error) {
	w.cfg.Fallback.Report("webhook", fmt.Errorf("webhook transport: %w", err))
	w.sleep(ctx, w.cfg.ErrorBackoff)
}

func (w *Worker) shutdown() {
	w.setState(StateShutdown)
	w.cfg.Client.CloseIdleConnections()
	w.doneOnce.Do(func() { close(w.done) })
}

func (w *Worker) publish(typ string, data map[string]any) {
	if w.cfg.Bus == nil {
		return
	}
	w.cfg.Bus.Publish(eventbus.Event{Type: typ, Data: data})
}
