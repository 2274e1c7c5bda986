// Package observability provides structured logging, metrics, and tracing
// for the sync core.
//
// Features:
//   - Structured logging via slog (Go stdlib)
//   - Metrics via OpenTelemetry
//   - Tracing via OpenTelemetry
//
// All features are opt-in and have no-op implementations when disabled.
package observability

import (
	"log/slog"
	"time"
)

// LogProbe logs the outcome of one connectivity probe cycle.
func LogProbe(logger *slog.Logger, online bool, quality string, latencyMs float64) {
	if logger == nil {
		return
	}
	logger.Debug("connectivity probe",
		slog.Bool("online", online),
		slog.String("quality", quality),
		slog.Float64("latency_ms", latencyMs),
	)
}

// LogTransition logs an online/offline transition.
func LogTransition(logger *slog.Logger, online bool, subscribers int) {
	if logger == nil {
		return
	}
	if online {
		logger.Info("network status: online", slog.Int("subscribers", subscribers))
	} else {
		logger.Warn("network status: offline", slog.Int("subscribers", subscribers))
	}
}

// LogCallbackError logs a subscriber callback failure (isolated, non-fatal).
func LogCallbackError(logger *slog.Logger, direction string, index int, err error) {
	if logger == nil {
		return
	}
	logger.Error("subscriber callback failed",
		slog.String("direction", direction),
		slog.Int("index", index),
		slog.String("error", err.Error()),
	)
}

// LogEnqueue logs a record entering the outbox.
func LogEnqueue(logger *slog.Logger, recordID, recordType string, queueSize int) {
	if logger == nil {
		return
	}
	logger.Info("record enqueued",
		slog.String("record_id", recordID),
		slog.String("record_type", recordType),
		slog.Int("queue_size", queueSize),
	)
}

// LogFlushSkipped logs a flush pass skipped while offline.
func LogFlushSkipped(logger *slog.Logger, pending int) {
	if logger == nil {
		return
	}
	logger.Warn("flush skipped: offline", slog.Int("pending", pending))
}

// LogFlushResult logs a completed flush pass.
func LogFlushResult(logger *slog.Logger, synced, failed, pending int, durationMs float64) {
	if logger == nil {
		return
	}
	logger.Info("flush completed",
		slog.Int("synced", synced),
		slog.Int("failed", failed),
		slog.Int("pending", pending),
		slog.Float64("duration_ms", durationMs),
	)
}

// LogDeliveryFailure logs one failed delivery attempt.
func LogDeliveryFailure(logger *slog.Logger, recordID string, retryCount, maxRetries int, err error) {
	if logger == nil {
		return
	}
	logger.Warn("delivery failed",
		slog.String("record_id", recordID),
		slog.Int("retry_count", retryCount),
		slog.Int("max_retries", maxRetries),
		slog.String("error", err.Error()),
	)
}

// LogRecordExhausted logs a record reaching its retry cap.
func LogRecordExhausted(logger *slog.Logger, recordID string, maxRetries int) {
	if logger == nil {
		return
	}
	logger.Warn("max retries exceeded, record marked failed",
		slog.String("record_id", recordID),
		slog.Int("max_retries", maxRetries),
	)
}

// LogPersistError logs a queue persistence failure (fatal to durability).
func LogPersistError(logger *slog.Logger, op string, err error) {
	if logger == nil {
		return
	}
	logger.Error("queue persistence failed",
		slog.String("operation", op),
		slog.String("error", err.Error()),
	)
}

// TimedOperation measures the duration of an operation.
// Returns a function that, when called, returns the elapsed time in milliseconds.
//
// Example:
//
//	done := TimedOperation()
//	// ... do work ...
//	durationMs := done()
func TimedOperation() func() float64 {
	start := time.Now()
	return func() float64 {
		return float64(time.Since(start).Milliseconds())
	}
}
