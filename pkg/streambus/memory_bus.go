package streambus

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MemoryBus is an in-process Bus used by tests and by components that embed
// the router in single-process mode without a Redis deployment. It mirrors
// RedisBus's group-scoped delivery and ack without durability. Its
// MoveToDLQ appends the raw payload to the DLQ stream, without the
// failure-reason envelope RedisBus writes.
type MemoryBus struct {
	mu      sync.Mutex
	seq     int64
	streams map[string][]Event
	pending map[string]map[string]Event // "stream|group" -> id -> event
	groups  map[string]map[string]bool  // stream -> group -> exists
	cursors map[string]int              // "stream|group" -> next unread index
}

// NewMemoryBus constructs an empty MemoryBus.
func NewMemoryBus() *MemoryBus {
	return &MemoryBus{
		streams: make(map[string][]Event),
		pending: make(map[string]map[string]Event),
		groups:  make(map[string]map[string]bool),
	}
}

func pendingKey(stream, group string) string {
	return stream + "|" + group
}

func (b *MemoryBus) Publish(_ context.Context, stream string, payload []byte, maxLen int64) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.seq++
	id := fmt.Sprintf("%d-0", b.seq)
	ev := Event{ID: id, Stream: stream, Payload: payload, Timestamp: time.Now()}
	b.streams[stream] = append(b.streams[stream], ev)

	if maxLen > 0 && int64(len(b.streams[stream])) > maxLen {
		overflow := int64(len(b.streams[stream])) - maxLen
		b.streams[stream] = b.streams[stream][overflow:]
	}
	return id, nil
}

func (b *MemoryBus) Consume(_ context.Context, stream, group, consumer string, count int, _ int) ([]Event, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.ensureGroupLocked(stream, group)
	key := pendingKey(stream, group)
	if b.pending[key] == nil {
		b.pending[key] = make(map[string]Event)
	}

	cursor := b.groupCursor(stream, group)
	var out []Event
	for i := cursor; i < len(b.streams[stream]) && len(out) < count; i++ {
		ev := b.streams[stream][i]
		ev.Consumer = consumer
		b.pending[key][ev.ID] = ev
		out = append(out, ev)
	}
	b.setGroupCursor(stream, group, cursor+len(out))
	return out, nil
}

func (b *MemoryBus) Ack(_ context.Context, stream, group, id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.pending[pendingKey(stream, group)], id)
	return nil
}

func (b *MemoryBus) Pending(_ context.Context, stream, group, consumer string) ([]Event, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	var out []Event
	for _, ev := range b.pending[pendingKey(stream, group)] {
		if consumer == "" || ev.Consumer == consumer {
			out = append(out, ev)
		}
	}
	return out, nil
}

func (b *MemoryBus) MoveToDLQ(ctx context.Context, stream, group, id, reason string, payload []byte, retryCount int) error {
	dlq := DLQStream(stream)
	if _, err := b.Publish(ctx, dlq, payload, 0); err != nil {
		return err
	}
	return b.Ack(ctx, stream, group, id)
}

func (b *MemoryBus) Republish(ctx context.Context, stream, group, id string, payload []byte, retryCount int) (string, error) {
	newID, err := b.Publish(ctx, stream, payload, 0)
	if err != nil {
		return "", err
	}
	if err := b.Ack(ctx, stream, group, id); err != nil {
		return "", err
	}
	b.mu.Lock()
	for i, ev := range b.streams[stream] {
		if ev.ID == newID {
			ev.RetryCount = retryCount
			b.streams[stream][i] = ev
		}
	}
	b.mu.Unlock()
	return newID, nil
}

func (b *MemoryBus) StreamInfo(_ context.Context, stream string) (*StreamInfo, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	events := b.streams[stream]
	info := &StreamInfo{Length: int64(len(events))}
	if len(events) > 0 {
		info.First = events[0].ID
		info.Last = events[len(events)-1].ID
	}
	for g := range b.groups[stream] {
		info.Groups = append(info.Groups, g)
	}
	return info, nil
}

func (b *MemoryBus) Health(_ context.Context, stream string) (*StreamHealth, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	length := int64(len(b.streams[stream]))
	health := &StreamHealth{Length: length}
	for g := range b.groups[stream] {
		key := pendingKey(stream, g)
		lag := length - int64(b.groupCursor(stream, g))
		if lag < 0 {
			lag = 0
		}
		health.Groups = append(health.Groups, GroupHealth{
			Name:    g,
			Pending: int64(len(b.pending[key])),
			Lag:     lag,
		})
	}
	return health, nil
}

func (b *MemoryBus) ensureGroupLocked(stream, group string) {
	if b.groups[stream] == nil {
		b.groups[stream] = make(map[string]bool)
	}
	b.groups[stream][group] = true
}

func (b *MemoryBus) groupCursor(stream, group string) int {
	if b.cursors == nil {
		return 0
	}
	return b.cursors[pendingKey(stream, group)]
}

func (b *MemoryBus) setGroupCursor(stream, group string, v int) {
	if b.cursors == nil {
		b.cursors = make(map[string]int)
	}
	b.cursors[pendingKey(stream, group)] = v
}
