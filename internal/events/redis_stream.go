package events

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"shelfshare/internal/util"
)

// RedisStream publishes lifecycle events to a Redis stream and consumes
// them through a consumer group, so delivery survives restarts and can be
// shared across instances.
type RedisStream struct {
	client       *redis.Client
	stream       string
	group        string
	consumerBase string
	maxRetries   int
	block        time.Duration
	claimIdle    time.Duration
	maxLen       int64
	readCount    int64
	once         sync.Once
}

// RedisStreamConfig configures the stream; zero values get defaults.
type RedisStreamConfig struct {
	Addr       string
	Password   string
	Stream     string
	Group      string
	Consumer   string
	MaxRetries int
	Block      time.Duration
	ClaimIdle  time.Duration
	MaxLen     int64
	ReadCount  int64
}

// NewRedisStream builds the stream publisher/consumer.
func NewRedisStream(cfg RedisStreamConfig) (*RedisStream, error) {
	addr := strings.TrimSpace(cfg.Addr)
	if addr == "" {
		return nil, errors.New("redis addr required")
	}
	stream := strings.TrimSpace(cfg.Stream)
	if stream == "" {
		stream = "shelfshare:notifications"
	}
	group := strings.TrimSpace(cfg.Group)
	if group == "" {
		group = "notifiers"
	}
	consumer := strings.TrimSpace(cfg.Consumer)
	if consumer == "" {
		consumer = util.NewID()
	}
	maxRetries := cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}
	block := cfg.Block
	if block <= 0 {
		block = 5 * time.Second
	}
	claimIdle := cfg.ClaimIdle
	if claimIdle <= 0 {
		claimIdle = 30 * time.Second
	}
	maxLen := cfg.MaxLen
	if maxLen <= 0 {
		maxLen = 10000
	}
	readCount := cfg.ReadCount
	if readCount <= 0 {
		readCount = 10
	}
	return &RedisStream{
		client:       redis.NewClient(&redis.Options{Addr: addr, Password: cfg.Password}),
		stream:       stream,
		group:        group,
		consumerBase: consumer,
		maxRetries:   maxRetries,
		block:        block,
		claimIdle:    claimIdle,
		maxLen:       maxLen,
		readCount:    readCount,
	}, nil
}

// Publish appends the event to the stream.
func (s *RedisStream) Publish(ctx context.Context, e Event) error {
	if e.ID == "" {
		e.ID = util.NewID()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	return s.client.XAdd(ctx, &redis.XAddArgs{
		Stream: s.stream,
		MaxLen: s.maxLen,
		Approx: true,
		Values: eventValues(e, 0),
	}).Err()
}

// Start launches consumer goroutines delivering events to handler. Failed
// deliveries are re-queued up to maxRetries, then dropped.
func (s *RedisStream) Start(ctx context.Context, concurrency int, handler func(context.Context, Event) error) {
	if concurrency <= 0 {
		concurrency = 1
	}
	s.ensureGroup(ctx)
	for i := 0; i < concurrency; i++ {
		consumer := fmt.Sprintf("%s-%d", s.consumerBase, i)
		go s.consumeLoop(ctx, consumer, handler)
	}
}

func (s *RedisStream) ensureGroup(ctx context.Context) {
	s.once.Do(func() {
		err := s.client.XGroupCreateMkStream(ctx, s.stream, s.group, "$").Err()
		if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
			// best-effort; errors will surface on consume
		}
	})
}

func (s *RedisStream) consumeLoop(ctx context.Context, consumer string, handler func(context.Context, Event) error) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if msgs, err := s.claimPending(ctx, consumer); err == nil {
			for _, msg := range msgs {
				s.handleMessage(ctx, msg, handler)
			}
		}

		streams, err := s.client.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    s.group,
			Consumer: consumer,
			Streams:  []string{s.stream, ">"},
			Count:    s.readCount,
			Block:    s.block,
		}).Result()
		if err != nil {
			continue
		}
		for _, stream := range streams {
			for _, msg := range stream.Messages {
				s.handleMessage(ctx, msg, handler)
			}
		}
	}
}

func (s *RedisStream) claimPending(ctx context.Context, consumer string) ([]redis.XMessage, error) {
	res, _, err := s.client.XAutoClaim(ctx, &redis.XAutoClaimArgs{
		Stream:   s.stream,
		Group:    s.group,
		Consumer: consumer,
		MinIdle:  s.claimIdle,
		Start:    "0-0",
		Count:    s.readCount,
	}).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (s *RedisStream) handleMessage(ctx context.Context, msg redis.XMessage, handler func(context.Context, Event) error) {
	event, attempts, ok := eventFromValues(msg.Values)
	if !ok {
		s.ackAndDel(ctx, msg.ID)
		return
	}
	if err := handler(ctx, event); err == nil {
		s.ackAndDel(ctx, msg.ID)
		return
	}
	if attempts+1 >= s.maxRetries {
		s.ackAndDel(ctx, msg.ID)
		return
	}
	_ = s.requeueAndAck(ctx, msg.ID, event, attempts+1)
}

func (s *RedisStream) ackAndDel(ctx context.Context, msgID string) {
	_, _ = s.client.XAck(ctx, s.stream, s.group, msgID).Result()
	_, _ = s.client.XDel(ctx, s.stream, msgID).Result()
}

func (s *RedisStream) requeueAndAck(ctx context.Context, msgID string, e Event, attempts int) error {
	pipe := s.client.TxPipeline()
	pipe.XAdd(ctx, &redis.XAddArgs{
		Stream: s.stream,
		MaxLen: s.maxLen,
		Approx: true,
		Values: eventValues(e, attempts),
	})
	pipe.XAck(ctx, s.stream, s.group, msgID)
	pipe.XDel(ctx, s.stream, msgID)
	_, err := pipe.Exec(ctx)
	return err
}

func eventValues(e Event, attempts int) map[string]any {
	return map[string]any{
		"id":           e.ID,
		"type":         string(e.Type),
		"book_id":      e.BookID,
		"request_id":   e.RequestID,
		"actor_id":     e.ActorID,
		"recipient_id": e.RecipientID,
		"created_at":   e.CreatedAt.Format(time.RFC3339Nano),
		"attempts":     strconv.Itoa(attempts),
	}
}

func eventFromValues(values map[string]any) (Event, int, bool) {
	id, _ := values["id"].(string)
	typ, _ := values["type"].(string)
	if id == "" || typ == "" {
		return Event{}, 0, false
	}
	e := Event{ID: id, Type: Type(typ)}
	if v, _ := values["book_id"].(string); v != "" {
		e.BookID = v
	}
	if v, _ := values["request_id"].(string); v != "" {
		e.RequestID = v
	}
	if v, _ := values["actor_id"].(string); v != "" {
		e.ActorID = v
	}
	if v, _ := values["recipient_id"].(string); v != "" {
		e.RecipientID = v
	}
	if v, _ := values["created_at"].(string); v != "" {
		if ts, err := time.Parse(time.RFC3339Nano, v); err == nil {
			e.CreatedAt = ts
		}
	}
	attempts := 0
	if v, _ := values["attempts"].(string); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			attempts = n
		}
	}
	return e, attempts, true
}
