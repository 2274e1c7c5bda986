package outbox

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	serrors "github.com/mticknor/syncforge/pkg/syncforge/errors"
	"github.com/mticknor/syncforge/pkg/syncforge/observability"
)

// Config configures a Manager. Zero values get defaults.
type Config struct {
	// FlushInterval is the background sync cadence when StartBackgroundSync
	// is called without an explicit interval. Default: 300s.
	FlushInterval time.Duration

	// BatchSize bounds how many deliveries are in flight at once within a
	// flush pass. Default: 100.
	BatchSize int

	// MaxRetries is the per-record retry cap. A record whose delivery has
	// failed MaxRetries times becomes terminally failed. Default: 3.
	MaxRetries int

	// DeliveryTimeout bounds each delivery attempt. Default: 5s.
	DeliveryTimeout time.Duration
}

func (c *Config) applyDefaults() {
	if c.FlushInterval <= 0 {
		c.FlushInterval = 300 * time.Second
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 100
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 3
	}
	if c.DeliveryTimeout <= 0 {
		c.DeliveryTimeout = 5 * time.Second
	}
}

// Flush result statuses.
const (
	FlushSkipped   = "skipped"
	FlushCompleted = "completed"
)

// FlushResult summarizes one flush pass.
type FlushResult struct {
	Status       string `json:"status"`
	Reason       string `json:"reason,omitempty"`
	SyncedCount  int    `json:"synced_count"`
	FailedCount  int    `json:"failed_count"`
	PendingCount int    `json:"pending_count"`
}

// SyncStatus is a read-only aggregate of the queue.
type SyncStatus struct {
	IsOnline        bool           `json:"is_online"`
	TotalPending    int            `json:"total_pending"`
	StatusBreakdown map[Status]int `json:"status_breakdown"`
	OldestPending   *time.Time     `json:"oldest_pending,omitempty"`
}

// Manager accepts records produced while offline (or any time), persists
// them durably, and delivers them once conditions allow.
//
// The queue is a single-writer data structure: Enqueue and Flush serialize
// on one mutex, though deliveries within a flush pass run concurrently up
// to BatchSize in flight. The queue is persisted once after each batch set
// settles, so delivery is at-least-once; the endpoint must tolerate
// duplicates keyed on record ID.
type Manager struct {
	cfg      Config
	store    Store
	endpoint Endpoint
	logger   *slog.Logger
	metrics  observability.MetricsRecorder
	spans    observability.SpanManager

	mu    sync.Mutex
	queue []Record

	online atomic.Bool

	runMu   sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the structured logger. Nil disables logging.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

// WithMetrics sets the metrics recorder.
func WithMetrics(r observability.MetricsRecorder) Option {
	return func(m *Manager) { m.metrics = r }
}

// WithSpanManager sets the span manager.
func WithSpanManager(s observability.SpanManager) Option {
	return func(m *Manager) { m.spans = s }
}

// NewManager creates a Manager and loads the persisted queue from store.
// A load failure is returned rather than silently starting empty: dropping
// the persisted queue would violate the at-least-once guarantee.
func NewManager(cfg Config, store Store, endpoint Endpoint, opts ...Option) (*Manager, error) {
	cfg.applyDefaults()
	m := &Manager{
		cfg:      cfg,
		store:    store,
		endpoint: endpoint,
		metrics:  observability.NoopMetrics{},
		spans:    observability.NoopSpanManager{},
	}
	for _, opt := range opts {
		opt(m)
	}

	snap, err := store.Load()
	if err != nil {
		return nil, &serrors.PersistError{Op: "load", Err: err}
	}
	m.queue = snap.Records

	if m.logger != nil {
		m.logger.Info("outbox initialized",
			slog.Int("pending_records", len(m.queue)),
			slog.Int("max_retries", cfg.MaxRetries),
			slog.Int("batch_size", cfg.BatchSize),
		)
	}
	return m, nil
}

// Enqueue constructs a pending record and synchronously persists the full
// queue snapshot before returning. If the process crashes immediately
// after Enqueue returns, the record is recoverable on restart. Enqueue
// never touches the network.
//
// A persistence failure is rolled back and returned: the record is neither
// queued nor durable, so the caller can safely retry.
func (m *Manager) Enqueue(ctx context.Context, recordType string, payload map[string]any) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec := Record{
		ID:        uuid.New().String(),
		Type:      recordType,
		Payload:   payload,
		CreatedAt: time.Now().UTC(),
		Status:    StatusPending,
	}
	m.queue = append(m.queue, rec)

	if err := m.persistLocked(); err != nil {
		m.queue = m.queue[:len(m.queue)-1]
		observability.LogPersistError(m.logger, "enqueue", err)
		return "", &serrors.PersistError{Op: "enqueue", Err: err}
	}

	observability.LogEnqueue(m.logger, rec.ID, rec.Type, len(m.queue))
	m.metrics.RecordEnqueue(ctx, rec.Type)
	return rec.ID, nil
}

// deliveryOutcome is the settled result of one delivery attempt.
type deliveryOutcome struct {
	index int
	err   error
}

// Flush processes the queue in insertion order. When offline and not
// forced it returns a skipped result without mutating anything. Delivery
// failures never surface as an error; only a persistence failure does.
func (m *Manager) Flush(ctx context.Context, force bool) (FlushResult, error) {
	if !m.online.Load() && !force {
		m.mu.Lock()
		pending := len(m.queue)
		m.mu.Unlock()
		observability.LogFlushSkipped(m.logger, pending)
		return FlushResult{Status: FlushSkipped, Reason: "offline", PendingCount: pending}, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.queue) == 0 {
		return FlushResult{Status: FlushCompleted}, nil
	}

	ctx, span := m.spans.StartFlushSpan(ctx, len(m.queue))
	done := observability.TimedOperation()

	// Records already terminally failed are retained for audit but
	// excluded from delivery.
	eligible := make([]int, 0, len(m.queue))
	for i, rec := range m.queue {
		if rec.Status == StatusFailed || rec.RetryCount >= m.cfg.MaxRetries {
			continue
		}
		eligible = append(eligible, i)
	}

	outcomes := make([]deliveryOutcome, len(eligible))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.cfg.BatchSize)
	for slot, idx := range eligible {
		slot, idx := slot, idx
		rec := m.queue[idx]
		g.Go(func() error {
			outcomes[slot] = deliveryOutcome{index: idx, err: m.deliver(gctx, rec)}
			return nil
		})
	}
	_ = g.Wait() // delivery errors are collected per-record, never returned

	synced := 0
	failed := 0
	now := time.Now().UTC()
	for _, out := range outcomes {
		rec := &m.queue[out.index]
		if out.err == nil {
			rec.Status = StatusCompleted
			synced++
			continue
		}

		failed++
		retryAt := now
		rec.LastRetryAt = &retryAt

		if !serrors.IsRetryable(out.err) {
			// The endpoint rejected the record outright; retrying the
			// same payload cannot succeed.
			rec.Status = StatusFailed
			if m.logger != nil {
				m.logger.Warn("record rejected permanently",
					slog.String("record_id", rec.ID),
					slog.String("error", out.err.Error()),
				)
			}
			continue
		}

		rec.RetryCount++
		observability.LogDeliveryFailure(m.logger, rec.ID, rec.RetryCount, m.cfg.MaxRetries, out.err)
		if rec.RetryCount >= m.cfg.MaxRetries {
			rec.Status = StatusFailed
			observability.LogRecordExhausted(m.logger, rec.ID, m.cfg.MaxRetries)
		}
	}

	// Drop completed records, keep everything else in order.
	kept := m.queue[:0]
	for _, rec := range m.queue {
		if rec.Status != StatusCompleted {
			kept = append(kept, rec)
		}
	}
	m.queue = kept

	result := FlushResult{
		Status:       FlushCompleted,
		SyncedCount:  synced,
		FailedCount:  failed,
		PendingCount: len(m.queue),
	}

	persistErr := m.persistLocked()

	elapsedMs := done()
	observability.LogFlushResult(m.logger, synced, failed, result.PendingCount, elapsedMs)
	m.metrics.RecordFlush(ctx, synced, failed, time.Duration(elapsedMs)*time.Millisecond, len(m.queue))
	m.spans.EndSpanWithError(span, persistErr)

	if persistErr != nil {
		observability.LogPersistError(m.logger, "flush", persistErr)
		return result, &serrors.PersistError{Op: "flush", Err: persistErr}
	}
	return result, nil
}

// deliver attempts one delivery with the configured per-attempt timeout.
func (m *Manager) deliver(ctx context.Context, rec Record) error {
	ctx, cancel := context.WithTimeout(ctx, m.cfg.DeliveryTimeout)
	defer cancel()

	ctx, span := m.spans.StartDeliverySpan(ctx, rec.ID, rec.Type)
	start := time.Now()
	err := m.endpoint.Deliver(ctx, rec)
	m.metrics.RecordDelivery(ctx, err == nil, time.Since(start))
	m.spans.EndSpanWithError(span, err)
	return err
}

// Status returns a read-only aggregate of the queue. No side effects.
func (m *Manager) Status() SyncStatus {
	m.mu.Lock()
	defer m.mu.Unlock()

	breakdown := map[Status]int{
		StatusPending:   0,
		StatusCompleted: 0,
		StatusFailed:    0,
	}
	var oldest *time.Time
	for _, rec := range m.queue {
		breakdown[rec.Status]++
		if rec.Status == StatusPending && oldest == nil {
			t := rec.CreatedAt
			oldest = &t
		}
	}

	return SyncStatus{
		IsOnline:        m.online.Load(),
		TotalPending:    len(m.queue),
		StatusBreakdown: breakdown,
		OldestPending:   oldest,
	}
}

// SetOnlineStatus gates whether background flush passes run. Normally
// driven by connectivity monitor transitions.
func (m *Manager) SetOnlineStatus(online bool) {
	prev := m.online.Swap(online)
	if prev != online && m.logger != nil {
		m.logger.Info("outbox online status changed", slog.Bool("online", online))
	}
}

// IsOnline reports the current gate.
func (m *Manager) IsOnline() bool {
	return m.online.Load()
}

// PendingCount returns the number of records in the active queue.
func (m *Manager) PendingCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.queue)
}

// StartBackgroundSync wraps Flush in a periodic loop. An interval <= 0
// uses the configured FlushInterval. Calling while already running is a
// no-op with a logged warning.
func (m *Manager) StartBackgroundSync(ctx context.Context, interval time.Duration) {
	m.runMu.Lock()
	defer m.runMu.Unlock()

	if m.running {
		if m.logger != nil {
			m.logger.Warn("background sync already running")
		}
		return
	}
	if interval <= 0 {
		interval = m.cfg.FlushInterval
	}

	loopCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.done = make(chan struct{})
	m.running = true

	if m.logger != nil {
		m.logger.Info("background sync started", slog.Duration("interval", interval))
	}

	go m.loop(loopCtx, interval)
}

func (m *Manager) loop(ctx context.Context, interval time.Duration) {
	defer close(m.done)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if m.online.Load() && m.PendingCount() > 0 {
				if _, err := m.Flush(ctx, false); err != nil {
					if m.logger != nil {
						m.logger.Error("background flush failed", slog.String("error", err.Error()))
					}
				}
			}
		case <-ctx.Done():
			return
		}
	}
}

// StopBackgroundSync cancels the loop and blocks until any in-flight flush
// finishes. Safe to call when not running.
func (m *Manager) StopBackgroundSync() {
	m.runMu.Lock()
	defer m.runMu.Unlock()

	if !m.running {
		return
	}
	m.cancel()
	<-m.done
	m.running = false

	if m.logger != nil {
		m.logger.Info("background sync stopped")
	}
}

// persistLocked rewrites the snapshot. Caller holds mu.
func (m *Manager) persistLocked() error {
	return m.store.Save(Snapshot{
		LastUpdated: time.Now().UTC(),
		Records:     m.queue,
	})
}
