// Package outbox holds an ordered, durably persisted queue of locally
// produced records and delivers them to a remote sync endpoint with
// bounded per-record retry.
package outbox

import (
	"context"
	"time"
)

// Status is the delivery lifecycle of a record.
type Status string

const (
	// StatusPending means the record awaits delivery (including records
	// with prior failed attempts still under the retry cap).
	StatusPending Status = "pending"

	// StatusCompleted means the record was delivered. Completed records
	// are removed from the active queue.
	StatusCompleted Status = "completed"

	// StatusFailed is terminal: the retry cap was reached or the endpoint
	// rejected the record permanently. Retained for audit, never retried.
	StatusFailed Status = "failed"
)

// Record is one locally produced activity record awaiting delivery.
// Type and Payload are opaque to this package; interpretation belongs to
// the remote endpoint.
type Record struct {
	ID          string         `json:"record_id"`
	Type        string         `json:"record_type"`
	Payload     map[string]any `json:"data"`
	CreatedAt   time.Time      `json:"timestamp"`
	Status      Status         `json:"status"`
	RetryCount  int            `json:"retry_count"`
	LastRetryAt *time.Time     `json:"last_retry,omitempty"`
}

// Snapshot is the persisted queue document: the full ordered queue plus
// the time it was last rewritten.
type Snapshot struct {
	LastUpdated time.Time `json:"last_updated"`
	Records     []Record  `json:"records"`
}

// Endpoint is the remote sync collaborator. It must be idempotent keyed on
// Record.ID: this core guarantees at-least-once delivery, so duplicates
// are possible after a crash mid-flush.
type Endpoint interface {
	Deliver(ctx context.Context, rec Record) error
}

// EndpointFunc adapts a function to the Endpoint interface.
type EndpointFunc func(ctx context.Context, rec Record) error

// Deliver implements Endpoint.
func (f EndpointFunc) Deliver(ctx context.Context, rec Record) error {
	return f(ctx, rec)
}
