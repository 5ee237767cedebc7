package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/fjod/go_cart/checkout-pipeline/internal/orders"
	"github.com/fjod/go_cart/checkout-pipeline/internal/repository"
	"github.com/segmentio/kafka-go"
)

type CartDeleter interface {
	DeleteCart(ctx context.Context, cartID, shopperID string) error
}

// MessageReader is satisfied by *kafka.Reader.
type MessageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

// CartCleaner deletes a cart once an order placed from it has been
// published. Other order events are skipped.
type CartCleaner struct {
	carts  CartDeleter
	reader MessageReader
	logger *slog.Logger
}

func NewCartCleaner(carts CartDeleter, logger *slog.Logger, topic string, brokers ...string) *CartCleaner {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  "checkout-cart-cleaner",
		MaxBytes: 10e6, // 10MB
	})
	return &CartCleaner{carts: carts, reader: reader, logger: logger}
}

func (c *CartCleaner) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		c.processMessage(ctx)
	}
}

func (c *CartCleaner) Close() {
	if err := c.reader.Close(); err != nil {
		c.logger.Error("error closing kafka reader", "error", err)
	}
}

func (c *CartCleaner) processMessage(ctx context.Context) {
	m, err := c.reader.ReadMessage(ctx)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return
		}
		c.logger.ErrorContext(ctx, "error reading message", "error", err)
		return
	}

	if eventType(m) != orders.EventOrderPlaced {
		return
	}

	var event orders.OrderEvent
	if err := json.Unmarshal(m.Value, &event); err != nil {
		c.logger.ErrorContext(ctx, "error parsing message", "offset", m.Offset, "error", err)
		return
	}
	if event.CartID == "" || event.ShopperID == "" {
		c.logger.WarnContext(ctx, "order event without cart or shopper id", "order_id", event.OrderID)
		return
	}

	err = c.carts.DeleteCart(ctx, event.CartID, event.ShopperID)
	if err != nil && !errors.Is(err, repository.ErrCartNotFound) {
		c.logger.ErrorContext(ctx, "failed to delete cart",
			"order_id", event.OrderID,
			"cart_id", event.CartID,
			"error", err)
		return
	}

	c.logger.InfoContext(ctx, "cart cleared after order", "order_id", event.OrderID, "cart_id", event.CartID)
}

func eventType(m kafka.Message) string {
	for _, h := range m.Headers {
		if h.Key == "event_type" {
			return string(h.Value)
		}
	}
	return ""
}
