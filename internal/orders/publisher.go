package orders

import (
	"context"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

const outboxBatchSize = 100

type OutboxStore interface {
	GetUnpublishedEvents(ctx context.Context, limit int) ([]*OutboxEvent, error)
	MarkEventPublished(ctx context.Context, id int64) error
}

type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// OutboxPublisher relays outbox rows to Kafka. Rows are marked published only
// after the broker accepted them, so an event can be delivered more than once.
type OutboxPublisher struct {
	tick   time.Duration
	store  OutboxStore
	writer MessageWriter
	log    *zap.Logger
}

func NewOutboxPublisher(store OutboxStore, log *zap.Logger, topic string, brokers ...string) *OutboxPublisher {
	w := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		AllowAutoTopicCreation: true,
	}
	return NewOutboxPublisherWithWriter(store, w, log)
}

func NewOutboxPublisherWithWriter(store OutboxStore, w MessageWriter, log *zap.Logger) *OutboxPublisher {
	return &OutboxPublisher{tick: time.Second, store: store, writer: w, log: log}
}

func (p *OutboxPublisher) Run(ctx context.Context) {
	ticker := time.NewTicker(p.tick)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			p.publishPending(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (p *OutboxPublisher) Close() error {
	return p.writer.Close()
}

// publishPending sends one batch and returns how many events were marked.
func (p *OutboxPublisher) publishPending(ctx context.Context) int {
	events, err := p.store.GetUnpublishedEvents(ctx, outboxBatchSize)
	if err != nil {
		p.log.Error("failed to fetch outbox events", zap.Error(err))
		return 0
	}

	published := 0
	for _, event := range events {
		if err := p.publish(ctx, event); err != nil {
			p.log.Warn("failed to publish event",
				zap.Int64("event_id", event.ID), zap.String("event_type", event.EventType), zap.Error(err))
			// keep per-order ordering: later events wait for the next tick
			return published
		}
		if err := p.store.MarkEventPublished(ctx, event.ID); err != nil {
			p.log.Error("failed to mark event as published", zap.Int64("event_id", event.ID), zap.Error(err))
			return published
		}
		published++
	}
	return published
}

func (p *OutboxPublisher) publish(ctx context.Context, event *OutboxEvent) error {
	msg := kafka.Message{
		Key:   []byte(event.AggregateID),
		Value: event.Payload,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.EventType)},
		},
	}
	return p.writer.WriteMessages(ctx, msg)
}
