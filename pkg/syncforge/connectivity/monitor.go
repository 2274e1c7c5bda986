package connectivity

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/mticknor/syncforge/pkg/syncforge/observability"
)

// Callback is invoked synchronously when the monitor flips online or
// offline. A returned error (or a panic) is logged and never aborts the
// notification loop or the monitor itself.
type Callback func(State) error

// Config configures the Monitor. Zero values get defaults.
type Config struct {
	// CheckInterval is the poll cadence when Start is called without an
	// explicit interval. Default: 30s.
	CheckInterval time.Duration

	// ProbeTimeout bounds each HTTP probe. Default: 5s.
	ProbeTimeout time.Duration

	// DialTimeout bounds the raw reachability dial. Default: 2s.
	DialTimeout time.Duration

	// DialAddress is the endpoint for the reachability dial.
	// Default: "1.1.1.1:53".
	DialAddress string

	// ProbeURLs are tried in order; the first 2xx means online.
	ProbeURLs []string
}

func (c *Config) applyDefaults() {
	if c.CheckInterval <= 0 {
		c.CheckInterval = 30 * time.Second
	}
	if c.ProbeTimeout <= 0 {
		c.ProbeTimeout = 5 * time.Second
	}
	if c.DialTimeout <= 0 {
		c.DialTimeout = 2 * time.Second
	}
	if c.DialAddress == "" {
		c.DialAddress = "1.1.1.1:53"
	}
	if len(c.ProbeURLs) == 0 {
		c.ProbeURLs = []string{
			"https://www.google.com",
			"https://www.cloudflare.com",
			"https://1.1.1.1",
		}
	}
}

// Monitor determines on a fixed cadence whether the device has usable
// network access and how good it is.
//
// Probe failures are never retried within a cycle; the polling interval is
// itself the retry mechanism. Backoff belongs to the outbox layer.
type Monitor struct {
	cfg     Config
	prober  Prober
	logger  *slog.Logger
	metrics observability.MetricsRecorder
	spans   observability.SpanManager

	mu        sync.Mutex
	state     State
	onOnline  []Callback
	onOffline []Callback

	runMu   sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithProber replaces the production prober. Used by tests.
func WithProber(p Prober) Option {
	return func(m *Monitor) { m.prober = p }
}

// WithLogger sets the structured logger. Nil disables logging.
func WithLogger(l *slog.Logger) Option {
	return func(m *Monitor) { m.logger = l }
}

// WithMetrics sets the metrics recorder.
func WithMetrics(r observability.MetricsRecorder) Option {
	return func(m *Monitor) { m.metrics = r }
}

// WithSpanManager sets the span manager.
func WithSpanManager(s observability.SpanManager) Option {
	return func(m *Monitor) { m.spans = s }
}

// NewMonitor creates a Monitor. The initial state is unknown until the
// first probe completes.
func NewMonitor(cfg Config, opts ...Option) *Monitor {
	cfg.applyDefaults()
	m := &Monitor{
		cfg:     cfg,
		metrics: observability.NoopMetrics{},
		spans:   observability.NoopSpanManager{},
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.prober == nil {
		m.prober = NewProber(cfg.DialAddress, cfg.DialTimeout, cfg.ProbeTimeout)
	}
	return m
}

// CheckConnectivity performs the two-stage probe: a raw dial that must
// succeed before the ordered HTTP probes, short-circuiting on first
// success. Every failure is treated as offline for this cycle, never
// propagated.
func (m *Monitor) CheckConnectivity(ctx context.Context) bool {
	dialCtx, cancel := context.WithTimeout(ctx, m.cfg.DialTimeout)
	err := m.prober.Dial(dialCtx)
	cancel()
	if err != nil {
		if m.logger != nil {
			m.logger.Debug("reachability dial failed", slog.String("error", err.Error()))
		}
		return false
	}

	for _, url := range m.cfg.ProbeURLs {
		probeCtx, cancel := context.WithTimeout(ctx, m.cfg.ProbeTimeout)
		_, err := m.prober.Fetch(probeCtx, url)
		cancel()
		if err == nil {
			return true
		}
		if m.logger != nil {
			m.logger.Debug("http probe failed",
				slog.String("url", url),
				slog.String("error", err.Error()),
			)
		}
	}
	return false
}

// AssessQuality buckets the round-trip latency of one timed request.
// Only meaningful when online; a failed timed probe returns QualityPoor,
// not QualityOffline (offline is reserved for CheckConnectivity failures).
func (m *Monitor) AssessQuality(ctx context.Context) Quality {
	probeCtx, cancel := context.WithTimeout(ctx, m.cfg.ProbeTimeout)
	defer cancel()

	latency, err := m.prober.Fetch(probeCtx, m.cfg.ProbeURLs[0])
	if err != nil {
		return QualityPoor
	}
	return bucketLatency(latency)
}

func bucketLatency(latency time.Duration) Quality {
	switch {
	case latency < 100*time.Millisecond:
		return QualityExcellent
	case latency < 300*time.Millisecond:
		return QualityGood
	default:
		return QualityPoor
	}
}

// UpdateStatus runs a full check+quality cycle, stores the result, and on
// an online/offline flip invokes the matching subscribers synchronously in
// registration order before returning.
func (m *Monitor) UpdateStatus(ctx context.Context) (State, bool) {
	ctx, span := m.spans.StartProbeSpan(ctx)
	done := observability.TimedOperation()

	online := m.CheckConnectivity(ctx)

	quality := QualityOffline
	if online {
		quality = m.AssessQuality(ctx)
	}

	m.mu.Lock()
	prev := m.state
	m.state = State{
		Online:        online,
		Quality:       quality,
		LastCheckedAt: time.Now().UTC(),
	}
	state := m.state

	changed := prev.Online != online
	var callbacks []Callback
	direction := "offline"
	if changed {
		if online {
			callbacks = append(callbacks, m.onOnline...)
			direction = "online"
		} else {
			callbacks = append(callbacks, m.onOffline...)
		}
	}
	m.mu.Unlock()

	elapsedMs := done()
	observability.LogProbe(m.logger, online, string(quality), elapsedMs)
	m.metrics.RecordProbe(ctx, online, time.Duration(elapsedMs)*time.Millisecond)

	if changed {
		observability.LogTransition(m.logger, online, len(callbacks))
		m.metrics.RecordTransition(ctx, online)
		for i, cb := range callbacks {
			if err := m.invoke(cb, state); err != nil {
				observability.LogCallbackError(m.logger, direction, i, err)
			}
		}
	}

	m.spans.EndSpanWithError(span, nil)
	return state, changed
}

// invoke runs one callback, converting a panic into an error so a broken
// subscriber cannot take down the monitor.
func (m *Monitor) invoke(cb Callback, state State) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("callback panic: %v", r)
		}
	}()
	return cb(state)
}

// SubscribeOnline registers a callback for offline-to-online transitions.
// Callbacks live for the monitor's lifetime.
func (m *Monitor) SubscribeOnline(cb Callback) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onOnline = append(m.onOnline, cb)
}

// SubscribeOffline registers a callback for online-to-offline transitions.
func (m *Monitor) SubscribeOffline(cb Callback) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onOffline = append(m.onOffline, cb)
}

// State returns a copy of the current connectivity state.
func (m *Monitor) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// IsOnline reports the most recent probe outcome.
func (m *Monitor) IsOnline() bool {
	return m.State().Online
}

// ShouldPreferOfflineMode is the single decision point other components
// consult: true when offline or when the connection quality is poor.
func (m *Monitor) ShouldPreferOfflineMode() bool {
	s := m.State()
	return !s.Online || s.Quality == QualityPoor
}

// Snapshot returns the state plus whether the poll loop is active.
func (m *Monitor) Snapshot() Status {
	s := m.State()
	m.runMu.Lock()
	active := m.running
	m.runMu.Unlock()
	return Status{
		Online:           s.Online,
		Quality:          s.Quality,
		LastCheckedAt:    s.LastCheckedAt,
		MonitoringActive: active,
	}
}

// Start begins the poll loop. An interval <= 0 uses the configured
// CheckInterval. Calling Start while already running is a no-op with a
// logged warning. The first probe runs immediately.
func (m *Monitor) Start(ctx context.Context, interval time.Duration) {
	m.runMu.Lock()
	defer m.runMu.Unlock()

	if m.running {
		if m.logger != nil {
			m.logger.Warn("connectivity monitoring already running")
		}
		return
	}
	if interval <= 0 {
		interval = m.cfg.CheckInterval
	}

	loopCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.done = make(chan struct{})
	m.running = true

	if m.logger != nil {
		m.logger.Info("connectivity monitoring started",
			slog.Duration("interval", interval))
	}

	go m.loop(loopCtx, interval)
}

func (m *Monitor) loop(ctx context.Context, interval time.Duration) {
	defer close(m.done)

	// Initial probe before the first tick.
	m.UpdateStatus(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.UpdateStatus(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// Stop cancels the poll loop and blocks until the in-flight probe, if any,
// finishes. No background work remains after Stop returns. Safe to call
// when not running.
func (m *Monitor) Stop() {
	m.runMu.Lock()
	defer m.runMu.Unlock()

	if !m.running {
		return
	}
	m.cancel()
	<-m.done
	m.running = false

	if m.logger != nil {
		m.logger.Info("connectivity monitoring stopped")
	}
}
