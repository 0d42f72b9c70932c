// Package streambus implements the Event Stream Pipeline: a
// log-structured event bus with consumer groups, acknowledgement, retry
// counts, and a dead-letter queue, used between receivers, the router,
// and action modules (spec.md §4.1).
package streambus

import (
	"context"
	"time"
)

// Event is a single stream entry. IDs are monotonically increasing within
// a stream, assigned by the backend.
type Event struct {
	ID         string    `json:"id"`
	Stream     string    `json:"stream"`
	Payload    []byte    `json:"payload"`
	RetryCount int       `json:"retry_count"`
	Timestamp  time.Time `json:"timestamp"`

	// Consumer is the group member currently holding this event, populated
	// by Consume/Pending. Empty for events returned by other operations.
	Consumer string `json:"consumer,omitempty"`
	// IdleFor reports how long the event has sat unacknowledged.
	IdleFor time.Duration `json:"idle_for,omitempty"`
	// DeliveryCount reports how many times this event has been delivered
	// to the group (incremented on reclaim, distinct from RetryCount which
	// the consumer increments explicitly on republish).
	DeliveryCount int64 `json:"delivery_count,omitempty"`
}

// StreamInfo summarizes a stream's current state (spec.md §4.1 stream_info).
type StreamInfo struct {
	Length int64
	Groups []string
	First  string
	Last   string
}

// GroupHealth reports one consumer group's backlog against a stream: how
// many claimed-but-unacknowledged entries it holds (Pending) and how far
// behind the stream's tail it is (Lag, entries never yet delivered to the
// group).
type GroupHealth struct {
	Name    string
	Pending int64
	Lag     int64
}

// StreamHealth is the per-stream-length/per-group-lag accessor
// (SPEC_FULL.md §3 "Stream pipeline" supplement), the Go equivalent of the
// original's `StreamPipeline.health()`.
type StreamHealth struct {
	Length int64
	Groups []GroupHealth
}

// Bus is the Event Stream Pipeline contract. Every operation is scoped by
// stream name and, where relevant, consumer group.
type Bus interface {
	// Publish appends payload to stream, trimming to approximately maxLen,
	// and returns the assigned event ID. When the bus is disabled, Publish
	// is a no-op that returns a synthetic id (spec.md §4.1 tuning knobs).
	Publish(ctx context.Context, stream string, payload []byte, maxLen int64) (string, error)

	// Consume claims up to count new events (never yet delivered to group)
	// for consumer within group, creating the group idempotently if absent.
	// Events already pending in the group are not redelivered by Consume. Blocks up to
	// blockMS waiting for new entries if none are immediately available.
	Consume(ctx context.Context, stream, group, consumer string, count int, blockMS int) ([]Event, error)

	// Ack acknowledges successful processing of id within group.
	Ack(ctx context.Context, stream, group, id string) error

	// Pending lists events claimed by the group (optionally filtered to one
	// consumer) that have not yet been acknowledged.
	Pending(ctx context.Context, stream, group, consumer string) ([]Event, error)

	// MoveToDLQ records a failed event on dlq:<stream> with its failure
	// reason, original id, stream, retry count, and a JSON-encoded payload
	// copy, then acknowledges it on the source stream's group (it will not
	// be redelivered).
	MoveToDLQ(ctx context.Context, stream, group, id, reason string, payload []byte, retryCount int) error

	// Republish re-appends payload to stream with its RetryCount set to
	// retryCount,
	// then acknowledges the original id within group so it is not
	// redelivered alongside its retry.
	Republish(ctx context.Context, stream, group, id string, payload []byte, retryCount int) (string, error)

	// StreamInfo reports length, known consumer groups, and first/last ids.
	StreamInfo(ctx context.Context, stream string) (*StreamInfo, error)

	// Health reports the stream's length alongside each consumer group's
	// pending count and lag, the operational signal an operator polls to
	// tell "backed up" from "caught up" (SPEC_FULL.md §3).
	Health(ctx context.Context, stream string) (*StreamHealth, error)
}

// DLQStream returns the dead-letter stream name for a source stream, per
// spec.md §4.1 ("The DLQ is itself a stream named dlq:<original>").
func DLQStream(stream string) string {
	return "dlq:" + stream
}

// Well-known stream topic names (spec.md §6).
const (
	StreamInbound  = "events:inbound"
	StreamCommands = "events:commands"
	StreamResponses = "events:responses"
)

// ActionStream returns the per-platform action stream name.
func ActionStream(platform string) string {
	return "events:actions:" + platform
}
