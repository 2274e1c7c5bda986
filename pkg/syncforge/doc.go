/*
Package syncforge keeps a client application functioning while network
connectivity is absent or degraded, and reconciles locally produced
activity records with a remote service once connectivity returns.

# Overview

The core is a triad wired together by an Orchestrator:

  - connectivity.Monitor probes reachability on a fixed cadence,
    estimates connection quality, and notifies subscribers of
    online/offline transitions.
  - outbox.Manager holds an ordered, durably persisted queue of pending
    records and performs best-effort delivery with bounded per-record
    retry. Delivery is at-least-once; the remote endpoint deduplicates
    on record ID.
  - capability.Negotiator derives a read-only feature-availability
    manifest from the current connectivity state.

Data flows one direction: producers enqueue into the outbox; the monitor
gates flushing and drives the negotiator; the outbox delivers to the
remote sync endpoint.

# Basic Usage

	settings := config.Default()
	endpoint := remote.NewHTTPEndpoint("https://api.example.com", token, 5*time.Second)

	orch, err := syncforge.New(settings, endpoint)
	if err != nil {
	    log.Fatal(err)
	}
	defer orch.Stop()

	orch.Start(context.Background())

	// Producers keep working regardless of connectivity.
	id, err := orch.Outbox().Enqueue(ctx, "practice_answer", map[string]any{
	    "question_id": "math_001",
	    "answer":      "x = 5",
	})

	// The feature layer consults the manifest.
	manifest := orch.Negotiator().Capabilities()

# Durability

Every enqueue synchronously rewrites the queue snapshot through an atomic
temp-file rename (or a SQLite transaction), so a crash immediately after
Enqueue returns never loses the record. A flush persists once after the
whole batch settles: a crash mid-flush reloads the pre-flush snapshot and
redelivers, which is why the endpoint must tolerate duplicates.

# Observability

Structured logging uses slog; metrics and tracing use OpenTelemetry with
no-op fallbacks when disabled. See the observability package.
*/
package syncforge
