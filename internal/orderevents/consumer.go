// Package orderevents drops a user's local cart when an order for it is
// placed from another device.
package orderevents

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/fjod/dinecart/internal/domain"
	"github.com/segmentio/kafka-go"
)

const (
	EventOrderPlaced = "order_placed"
	headerEventType  = "event_type"

	readRetryMin = 500 * time.Millisecond
	readRetryMax = 30 * time.Second
)

// OrderPlacedEvent is the payload published on the order-events topic.
type OrderPlacedEvent struct {
	Type         string           `json:"type"`
	OrderID      string           `json:"orderId"`
	UserID       string           `json:"userId"`
	RestaurantID string           `json:"restaurantId"`
	PlacedAt     domain.Timestamp `json:"placedAt"`
}

// Forgetter drops a cart from a user's workspace. It reports false when
// the user has no open workspace.
type Forgetter interface {
	ForgetCart(ctx context.Context, userID, restaurantID string) bool
}

type messageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

type Config struct {
	Brokers []string
	Topic   string
	GroupID string
}

type Consumer struct {
	target Forgetter
	reader messageReader
	log    *slog.Logger

	// backoff after a failed read, doubled up to retryMax
	retryMin time.Duration
	retryMax time.Duration
}

func NewConsumer(target Forgetter, cfg Config, log *slog.Logger) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  cfg.Brokers,
		Topic:    cfg.Topic,
		GroupID:  cfg.GroupID,
		MaxBytes: 1e6, // 1MB
	})
	return &Consumer{target: target, reader: reader, log: log, retryMin: readRetryMin, retryMax: readRetryMax}
}

// Run reads until ctx is cancelled. Read failures back off before the next
// attempt.
func (c *Consumer) Run(ctx context.Context) {
	minWait, maxWait := c.retryMin, c.retryMax
	if minWait <= 0 {
		minWait = readRetryMin
	}
	if maxWait < minWait {
		maxWait = minWait
	}

	wait := minWait
	for {
		if ctx.Err() != nil {
			return
		}
		if c.processMessage(ctx) {
			wait = minWait
			continue
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
		wait = min(wait*2, maxWait)
	}
}

func (c *Consumer) Close() {
	if err := c.reader.Close(); err != nil {
		c.log.Error("error closing kafka reader", "error", err)
	}
}

// processMessage handles one message. It returns false when the read
// itself failed.
func (c *Consumer) processMessage(ctx context.Context) bool {
	m, err := c.reader.ReadMessage(ctx)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return true
		}
		c.log.ErrorContext(ctx, "error reading message", "error", err)
		return false
	}

	if err := c.handle(ctx, m); err != nil {
		c.log.WarnContext(ctx, "order event skipped", "offset", m.Offset, "error", err)
	}
	return true
}

func (c *Consumer) handle(ctx context.Context, m kafka.Message) error {
	var event OrderPlacedEvent
	if err := json.Unmarshal(m.Value, &event); err != nil {
		return fmt.Errorf("parse message: %w", err)
	}
	if event.Type == "" {
		event.Type = header(m, headerEventType)
	}
	if event.Type != EventOrderPlaced {
		return nil
	}
	if event.UserID == "" || event.RestaurantID == "" {
		return fmt.Errorf("order %q: missing userId or restaurantId", event.OrderID)
	}

	if c.target.ForgetCart(ctx, event.UserID, event.RestaurantID) {
		c.log.InfoContext(ctx, "cart dropped after order",
			"order_id", event.OrderID,
			"user_id", event.UserID,
			"restaurant_id", event.RestaurantID,
		)
	}
	return nil
}

func header(m kafka.Message, key string) string {
	for _, h := range m.Headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}
