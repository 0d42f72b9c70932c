package streambus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisBus implements Bus on top of Redis Streams (XADD/XREADGROUP/XACK/
// XPENDING), the natural backend for a log-structured bus with consumer
// groups (spec.md §4.1).
type RedisBus struct {
	client  redis.UniversalClient
	enabled bool
}

// NewRedisBus wires a Bus against an already-configured Redis client.
// enabled mirrors the STREAM_ENABLED tuning knob: when false, Publish is a
// no-op and Consume always yields empty batches, permitting degraded
// single-node operation without a broker.
func NewRedisBus(client redis.UniversalClient, enabled bool) *RedisBus {
	return &RedisBus{client: client, enabled: enabled}
}

func (b *RedisBus) Publish(ctx context.Context, stream string, payload []byte, maxLen int64) (string, error) {
	if !b.enabled {
		return syntheticID(), nil
	}

	id, err := b.client.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		MaxLen: maxLen,
		Approx: true,
		Values: map[string]any{
			"data":        string(payload),
			"timestamp":   time.Now().Format(time.RFC3339Nano),
			"retry_count": "0",
		},
	}).Result()
	if err != nil {
		return "", fmt.Errorf("streambus: publish to %s: %w", stream, err)
	}
	return id, nil
}

func (b *RedisBus) Consume(ctx context.Context, stream, group, consumer string, count int, blockMS int) ([]Event, error) {
	if !b.enabled {
		return nil, nil
	}

	if err := b.ensureGroup(ctx, stream, group); err != nil {
		return nil, err
	}

	res, err := b.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    group,
		Consumer: consumer,
		Streams:  []string{stream, ">"},
		Count:    int64(count),
		Block:    time.Duration(blockMS) * time.Millisecond,
	}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("streambus: consume %s/%s: %w", stream, group, err)
	}

	var events []Event
	for _, s := range res {
		for _, msg := range s.Messages {
			events = append(events, messageToEvent(stream, consumer, msg))
		}
	}
	return events, nil
}

func (b *RedisBus) Ack(ctx context.Context, stream, group, id string) error {
	if !b.enabled {
		return nil
	}
	if err := b.client.XAck(ctx, stream, group, id).Err(); err != nil {
		return fmt.Errorf("streambus: ack %s/%s/%s: %w", stream, group, id, err)
	}
	return nil
}

func (b *RedisBus) Pending(ctx context.Context, stream, group, consumer string) ([]Event, error) {
	if !b.enabled {
		return nil, nil
	}
	if err := b.ensureGroup(ctx, stream, group); err != nil {
		return nil, err
	}

	args := &redis.XPendingExtArgs{
		Stream: stream,
		Group:  group,
		Start:  "-",
		End:    "+",
		Count:  1000,
	}
	if consumer != "" {
		args.Consumer = consumer
	}

	entries, err := b.client.XPendingExt(ctx, args).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("streambus: pending %s/%s: %w", stream, group, err)
	}

	events := make([]Event, 0, len(entries))
	for _, e := range entries {
		events = append(events, Event{
			ID:            e.ID,
			Stream:        stream,
			Consumer:      e.Consumer,
			IdleFor:       e.Idle,
			DeliveryCount: e.RetryCount,
		})
	}
	return events, nil
}

func (b *RedisBus) MoveToDLQ(ctx context.Context, stream, group, id, reason string, payload []byte, retryCount int) error {
	dlq := DLQStream(stream)
	dlqPayload, err := json.Marshal(map[string]any{
		"original_id":     id,
		"original_stream": stream,
		"failure_reason":  reason,
		"retry_count":     retryCount,
		"timestamp":       time.Now().Format(time.RFC3339Nano),
		"payload":         string(payload),
	})
	if err != nil {
		return fmt.Errorf("streambus: encode dlq payload: %w", err)
	}

	if _, err := b.Publish(ctx, dlq, dlqPayload, 0); err != nil {
		return fmt.Errorf("streambus: publish to %s: %w", dlq, err)
	}

	if group != "" {
		if err := b.Ack(ctx, stream, group, id); err != nil {
			slog.Warn("streambus: failed to ack event moved to dlq", "stream", stream, "id", id, "error", err)
		}
	}
	return nil
}

func (b *RedisBus) Republish(ctx context.Context, stream, group, id string, payload []byte, retryCount int) (string, error) {
	if !b.enabled {
		return syntheticID(), nil
	}

	newID, err := b.client.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		Values: map[string]any{
			"data":        string(payload),
			"timestamp":   time.Now().Format(time.RFC3339Nano),
			"retry_count": strconv.Itoa(retryCount),
		},
	}).Result()
	if err != nil {
		return "", fmt.Errorf("streambus: republish to %s: %w", stream, err)
	}

	if group != "" {
		if err := b.Ack(ctx, stream, group, id); err != nil {
			slog.Warn("streambus: failed to ack original event after republish", "stream", stream, "id", id, "error", err)
		}
	}
	return newID, nil
}

func (b *RedisBus) StreamInfo(ctx context.Context, stream string) (*StreamInfo, error) {
	if !b.enabled {
		return &StreamInfo{}, nil
	}

	info, err := b.client.XInfoStream(ctx, stream).Result()
	if err != nil {
		if isNoSuchKey(err) {
			return &StreamInfo{}, nil
		}
		return nil, fmt.Errorf("streambus: stream_info %s: %w", stream, err)
	}

	groups, err := b.client.XInfoGroups(ctx, stream).Result()
	if err != nil && !isNoSuchKey(err) {
		return nil, fmt.Errorf("streambus: info groups %s: %w", stream, err)
	}

	names := make([]string, 0, len(groups))
	for _, g := range groups {
		names = append(names, g.Name)
	}

	return &StreamInfo{
		Length: info.Length,
		Groups: names,
		First:  info.FirstEntry.ID,
		Last:   info.LastEntry.ID,
	}, nil
}

func (b *RedisBus) Health(ctx context.Context, stream string) (*StreamHealth, error) {
	if !b.enabled {
		return &StreamHealth{}, nil
	}

	info, err := b.client.XInfoStream(ctx, stream).Result()
	if err != nil {
		if isNoSuchKey(err) {
			return &StreamHealth{}, nil
		}
		return nil, fmt.Errorf("streambus: health %s: %w", stream, err)
	}

	groups, err := b.client.XInfoGroups(ctx, stream).Result()
	if err != nil && !isNoSuchKey(err) {
		return nil, fmt.Errorf("streambus: health groups %s: %w", stream, err)
	}

	out := &StreamHealth{Length: info.Length}
	for _, g := range groups {
		out.Groups = append(out.Groups, GroupHealth{
			Name:    g.Name,
			Pending: g.Pending,
			Lag:     g.Lag,
		})
	}
	return out, nil
}

// ensureGroup creates the consumer group starting from the beginning of the
// stream. "BUSYGROUP" (already exists) is treated as success, per spec.md
// §4.1: "Consumer-group creation is idempotent".
func (b *RedisBus) ensureGroup(ctx context.Context, stream, group string) error {
	err := b.client.XGroupCreateMkStream(ctx, stream, group, "0").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("streambus: create group %s/%s: %w", stream, group, err)
	}
	return nil
}

func messageToEvent(stream, consumer string, msg redis.XMessage) Event {
	ev := Event{
		ID:       msg.ID,
		Stream:   stream,
		Consumer: consumer,
	}
	if v, ok := msg.Values["data"].(string); ok {
		ev.Payload = []byte(v)
	}
	if v, ok := msg.Values["timestamp"].(string); ok {
		if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
			ev.Timestamp = t
		}
	}
	if v, ok := msg.Values["retry_count"].(string); ok {
		if n, err := strconv.Atoi(v); err == nil {
			ev.RetryCount = n
		}
	}
	return ev
}

func isNoSuchKey(err error) bool {
	return err != nil && strings.Contains(err.Error(), "no such key")
}

// syntheticID mimics a stream id well enough for disabled-mode callers that
// only need a non-empty identifier, without claiming ordering guarantees.
func syntheticID() string {
	return fmt.Sprintf("%d-0", time.Now().UnixNano())
}
