package syncforge

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/mticknor/syncforge/pkg/syncforge/capability"
	"github.com/mticknor/syncforge/pkg/syncforge/config"
	"github.com/mticknor/syncforge/pkg/syncforge/connectivity"
	"github.com/mticknor/syncforge/pkg/syncforge/observability"
	"github.com/mticknor/syncforge/pkg/syncforge/outbox"
)

// Orchestrator owns one Monitor, one outbox Manager, and one Negotiator,
// and wires monitor transitions to both consumers. There are no package
// globals; construct one Orchestrator and pass references.
type Orchestrator struct {
	settings config.Settings

	monitor    *connectivity.Monitor
	manager    *outbox.Manager
	negotiator *capability.Negotiator
	store      outbox.Store

	logger  *slog.Logger
	metrics observability.MetricsRecorder
	spans   observability.SpanManager
	prober  connectivity.Prober

	mu      sync.Mutex
	started bool
	runCtx  context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the structured logger for every component.
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

// WithMetrics sets the metrics recorder for every component.
func WithMetrics(r observability.MetricsRecorder) Option {
	return func(o *Orchestrator) { o.metrics = r }
}

// WithSpanManager sets the span manager for every component.
func WithSpanManager(s observability.SpanManager) Option {
	return func(o *Orchestrator) { o.spans = s }
}

// WithStore overrides the store built from settings. Used by tests and by
// callers with their own persistence.
func WithStore(s outbox.Store) Option {
	return func(o *Orchestrator) { o.store = s }
}

// WithProber overrides the production network prober. Used by tests.
func WithProber(p connectivity.Prober) Option {
	return func(o *Orchestrator) { o.prober = p }
}

// New builds the component triad from settings and wires it together.
// The endpoint is the remote sync collaborator; see package remote for the
// HTTP implementation.
func New(settings config.Settings, endpoint outbox.Endpoint, opts ...Option) (*Orchestrator, error) {
	settings.ApplyDefaults()
	if err := settings.Validate(); err != nil {
		return nil, err
	}

	o := &Orchestrator{
		settings: settings,
		metrics:  observability.NoopMetrics{},
		spans:    observability.NoopSpanManager{},
	}
	for _, opt := range opts {
		opt(o)
	}

	if o.store == nil {
		store, err := buildStore(settings)
		if err != nil {
			return nil, err
		}
		o.store = store
	}

	monitorOpts := []connectivity.Option{
		connectivity.WithLogger(o.logger),
		connectivity.WithMetrics(o.metrics),
		connectivity.WithSpanManager(o.spans),
	}
	if o.prober != nil {
		monitorOpts = append(monitorOpts, connectivity.WithProber(o.prober))
	}
	o.monitor = connectivity.NewMonitor(connectivity.Config{
		CheckInterval: settings.CheckInterval.Std(),
		ProbeTimeout:  settings.ProbeTimeout.Std(),
		DialAddress:   settings.DialAddress,
		ProbeURLs:     settings.ProbeURLs,
	}, monitorOpts...)

	manager, err := outbox.NewManager(outbox.Config{
		FlushInterval:   settings.FlushInterval.Std(),
		BatchSize:       settings.BatchSize,
		MaxRetries:      settings.MaxRetries,
		DeliveryTimeout: settings.DeliveryTimeout.Std(),
	}, o.store, endpoint,
		outbox.WithLogger(o.logger),
		outbox.WithMetrics(o.metrics),
		outbox.WithSpanManager(o.spans),
	)
	if err != nil {
		o.store.Close()
		return nil, err
	}
	o.manager = manager

	// Gate the outbox on monitor transitions and flush promptly on
	// reconnection. Triggering the sync pass here, not in the
	// negotiator, keeps the negotiator side-effect free.
	o.monitor.SubscribeOnline(func(connectivity.State) error {
		o.manager.SetOnlineStatus(true)
		if o.manager.PendingCount() > 0 {
			o.flushAsync()
		}
		return nil
	})
	o.monitor.SubscribeOffline(func(connectivity.State) error {
		o.manager.SetOnlineStatus(false)
		return nil
	})

	o.negotiator = capability.NewNegotiator(o.monitor, o.logger)

	return o, nil
}

func buildStore(settings config.Settings) (outbox.Store, error) {
	switch settings.QueueBackend {
	case config.BackendSQLite:
		return outbox.NewSQLiteStore(settings.QueuePath)
	case config.BackendFile:
		return outbox.NewFileStore(settings.QueuePath)
	default:
		return nil, fmt.Errorf("unknown queue backend %q", settings.QueueBackend)
	}
}

// flushAsync runs one flush pass off the monitor's callback goroutine so a
// slow endpoint cannot stall probe cycles. Tracked for clean shutdown.
func (o *Orchestrator) flushAsync() {
	o.mu.Lock()
	if !o.started {
		o.mu.Unlock()
		return
	}
	ctx := o.runCtx
	o.wg.Add(1)
	o.mu.Unlock()

	go func() {
		defer o.wg.Done()
		if _, err := o.manager.Flush(ctx, false); err != nil && o.logger != nil {
			o.logger.Error("reconnection flush failed", slog.String("error", err.Error()))
		}
	}()
}

// Start begins the monitor poll loop and the outbox flush loop.
// Idempotent: a second Start while running is a no-op.
func (o *Orchestrator) Start(ctx context.Context) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.started {
		if o.logger != nil {
			o.logger.Warn("orchestrator already started")
		}
		return
	}

	runCtx, cancel := context.WithCancel(ctx)
	o.cancel = cancel
	o.runCtx = runCtx
	o.started = true

	o.monitor.Start(runCtx, o.settings.CheckInterval.Std())
	o.manager.StartBackgroundSync(runCtx, o.settings.FlushInterval.Std())
}

// Stop shuts down both loops, waits for in-flight work, and closes the
// store. No background work remains after Stop returns.
func (o *Orchestrator) Stop() error {
	o.mu.Lock()
	if !o.started {
		o.mu.Unlock()
		return o.store.Close()
	}
	o.started = false
	cancel := o.cancel
	o.mu.Unlock()

	o.monitor.Stop()
	o.manager.StopBackgroundSync()
	cancel()
	o.wg.Wait()

	return o.store.Close()
}

// Monitor returns the connectivity monitor.
func (o *Orchestrator) Monitor() *connectivity.Monitor {
	return o.monitor
}

// Outbox returns the durable outbox manager.
func (o *Orchestrator) Outbox() *outbox.Manager {
	return o.manager
}

// Negotiator returns the capability negotiator.
func (o *Orchestrator) Negotiator() *capability.Negotiator {
	return o.negotiator
}
