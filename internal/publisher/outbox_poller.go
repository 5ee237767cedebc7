package publisher

import (
	"context"
	"log/slog"
	"time"

	"github.com/fjod/go_cart/checkout-pipeline/internal/orders"
	"github.com/segmentio/kafka-go"
)

const outboxBatchSize = 100

type EventStore interface {
	GetUnprocessedEvents(ctx context.Context, limit int) ([]*orders.OutboxEvent, error)
	MarkEventAsProcessed(ctx context.Context, id int64) error
}

// MessageWriter is satisfied by *kafka.Writer.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// OutboxPoller publishes order events written by the order store. Events are
// marked processed only after Kafka accepted them, so delivery is at least
// once.
type OutboxPoller struct {
	eventTick time.Duration
	repo      EventStore
	writer    MessageWriter
	logger    *slog.Logger
}

func NewOutboxPoller(repo EventStore, logger *slog.Logger, topic string, brokers ...string) *OutboxPoller {
	w := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		AllowAutoTopicCreation: true,
		WriteTimeout:           10 * time.Second,
	}
	return &OutboxPoller{eventTick: time.Second, repo: repo, writer: w, logger: logger}
}

func (p *OutboxPoller) Run(ctx context.Context) {
	eventTicker := time.NewTicker(p.eventTick)
	defer eventTicker.Stop()
	for {
		select {
		case <-eventTicker.C:
			p.processUnpublishedEvents(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (p *OutboxPoller) Close() error {
	return p.writer.Close()
}

func (p *OutboxPoller) processUnpublishedEvents(ctx context.Context) int {
	events, err := p.repo.GetUnprocessedEvents(ctx, outboxBatchSize)
	if err != nil {
		p.logger.ErrorContext(ctx, "failed to fetch outbox events", "error", err)
		return 0
	}

	published := 0
	for _, event := range events {
		if err := p.publishToKafka(ctx, event); err != nil {
			p.logger.ErrorContext(ctx, "failed to publish event",
				"event_id", event.ID,
				"event_type", event.EventType,
				"error", err)
			// keep per-order ordering: later events of this batch wait for the next tick
			return published
		}

		if err := p.repo.MarkEventAsProcessed(ctx, event.ID); err != nil {
			p.logger.ErrorContext(ctx, "failed to mark event as processed",
				"event_id", event.ID,
				"error", err)
			continue
		}
		published++
	}
	return published
}

func (p *OutboxPoller) publishToKafka(ctx context.Context, event *orders.OutboxEvent) error {
	msg := kafka.Message{
		Key:   []byte(event.AggregateID), // order id, keeps one order's events on one partition
		Value: event.Payload,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.EventType)},
		},
	}
	return p.writer.WriteMessages(ctx, msg)
}
