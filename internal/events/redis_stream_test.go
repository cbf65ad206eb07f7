package events

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestStream(t *testing.T) (*RedisStream, context.Context) {
	t.Helper()
	srv := miniredis.RunT(t)
	stream, err := NewRedisStream(RedisStreamConfig{
		Addr:     srv.Addr(),
		Stream:   "test:events",
		Group:    "test-group",
		Consumer: "consumer",
	})
	if err != nil {
		t.Fatalf("new stream: %v", err)
	}
	ctx := context.Background()
	stream.ensureGroup(ctx)
	return stream, ctx
}

func readOne(t *testing.T, s *RedisStream, ctx context.Context, consumer string) redis.XMessage {
	t.Helper()
	streams, err := s.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    s.group,
		Consumer: consumer,
		Streams:  []string{s.stream, ">"},
		Count:    1,
		Block:    0,
	}).Result()
	if err != nil {
		t.Fatalf("readgroup: %v", err)
	}
	if len(streams) != 1 || len(streams[0].Messages) != 1 {
		t.Fatalf("expected one message, got %+v", streams)
	}
	return streams[0].Messages[0]
}

func TestRedisStreamPublishDeliversToGroup(t *testing.T) {
	s, ctx := newTestStream(t)

	err := s.Publish(ctx, Event{
		Type:        RequestCreated,
		BookID:      "book-1",
		RequestID:   "req-1",
		ActorID:     "seeker-1",
		RecipientID: "owner-1",
	})
	if err != nil {
		t.Fatalf("publish: %v", err)
	}

	msg := readOne(t, s, ctx, "consumer-1")
	event, attempts, ok := eventFromValues(msg.Values)
	if !ok {
		t.Fatalf("expected decodable event, got %+v", msg.Values)
	}
	if event.Type != RequestCreated || event.RecipientID != "owner-1" || event.RequestID != "req-1" {
		t.Fatalf("unexpected event: %+v", event)
	}
	if event.ID == "" || event.CreatedAt.IsZero() {
		t.Fatalf("expected publish to stamp id and time, got %+v", event)
	}
	if attempts != 0 {
		t.Fatalf("expected fresh message, attempts=%d", attempts)
	}
}

func TestRedisStreamRequeueAndAck(t *testing.T) {
	s, ctx := newTestStream(t)

	if err := s.Publish(ctx, Event{Type: RequestAccepted, RecipientID: "owner-1"}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	msg := readOne(t, s, ctx, "consumer-1")
	event, _, ok := eventFromValues(msg.Values)
	if !ok {
		t.Fatalf("decode: %+v", msg.Values)
	}

	if err := s.requeueAndAck(ctx, msg.ID, event, 1); err != nil {
		t.Fatalf("requeue and ack: %v", err)
	}
	pending, err := s.client.XPending(ctx, s.stream, s.group).Result()
	if err != nil {
		t.Fatalf("xpending: %v", err)
	}
	if pending.Count != 0 {
		t.Fatalf("expected no pending messages, got %d", pending.Count)
	}

	requeued := readOne(t, s, ctx, "consumer-2")
	again, attempts, ok := eventFromValues(requeued.Values)
	if !ok || again.ID != event.ID {
		t.Fatalf("expected same event requeued, got %+v", requeued.Values)
	}
	if attempts != 1 {
		t.Fatalf("expected attempts=1, got %d", attempts)
	}
}

func TestRedisStreamDropsAfterMaxRetries(t *testing.T) {
	s, ctx := newTestStream(t)
	s.maxRetries = 2

	if err := s.Publish(ctx, Event{Type: RequestRejected, RecipientID: "seeker-1"}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	fail := func(context.Context, Event) error { return context.DeadlineExceeded }

	msg := readOne(t, s, ctx, "consumer-1")
	s.handleMessage(ctx, msg, fail)

	msg = readOne(t, s, ctx, "consumer-1")
	s.handleMessage(ctx, msg, fail)

	length, err := s.client.XLen(ctx, s.stream).Result()
	if err != nil {
		t.Fatalf("xlen: %v", err)
	}
	if length != 0 {
		t.Fatalf("expected exhausted message dropped, stream len=%d", length)
	}
}

func TestEventValuesRoundTrip(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Millisecond)
	original := Event{
		ID:          "evt-1",
		Type:        BookReturned,
		BookID:      "book-1",
		ActorID:     "borrower-1",
		RecipientID: "owner-1",
		CreatedAt:   now,
	}
	decoded, attempts, ok := eventFromValues(eventValues(original, 2))
	if !ok || attempts != 2 {
		t.Fatalf("roundtrip failed, ok=%v attempts=%d", ok, attempts)
	}
	if decoded.ID != original.ID || decoded.Type != original.Type || !decoded.CreatedAt.Equal(now) {
		t.Fatalf("unexpected decoded event: %+v", decoded)
	}

	if _, _, ok := eventFromValues(map[string]any{"attempts": "1"}); ok {
		t.Fatalf("expected missing id/type to be rejected")
	}
}
