package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// stockEvent is the part of an order event the invalidator needs.
type stockEvent struct {
	OrderID string `json:"order_id"`
	Items   []struct {
		ProductID string `json:"product_id"`
	} `json:"items"`
}

// Invalidator consumes order events and drops cached stock for every product
// an order touched.
type Invalidator struct {
	cache  StockCache
	reader *kafka.Reader
	log    *zap.Logger
}

func NewInvalidator(cache StockCache, log *zap.Logger, topic string, brokers ...string) *Invalidator {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  "stock-cache-invalidator",
		MaxBytes: 10e6, // 10MB
	})
	return &Invalidator{cache: cache, reader: reader, log: log}
}

func (c *Invalidator) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		c.processMessage(ctx)
	}
}

func (c *Invalidator) Close() {
	if err := c.reader.Close(); err != nil {
		c.log.Warn("error closing kafka reader", zap.Error(err))
	}
}

func (c *Invalidator) processMessage(ctx context.Context) {
	m, err := c.reader.ReadMessage(ctx)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		c.log.Warn("error reading message", zap.Error(err))
		return
	}

	if err := c.handle(ctx, m.Value); err != nil {
		c.log.Warn("failed to invalidate stock", zap.Int64("offset", m.Offset), zap.Error(err))
	}
}

func (c *Invalidator) handle(ctx context.Context, value []byte) error {
	var event stockEvent
	if err := json.Unmarshal(value, &event); err != nil {
		return fmt.Errorf("parse event: %w", err)
	}

	ids := make([]string, 0, len(event.Items))
	seen := make(map[string]struct{}, len(event.Items))
	for _, it := range event.Items {
		if it.ProductID == "" {
			continue
		}
		if _, ok := seen[it.ProductID]; ok {
			continue
		}
		seen[it.ProductID] = struct{}{}
		ids = append(ids, it.ProductID)
	}
	if len(ids) == 0 {
		return nil
	}

	if err := c.cache.Delete(ctx, ids...); err != nil {
		return err
	}
	c.log.Debug("stock cache invalidated", zap.String("order_id", event.OrderID), zap.Strings("product_ids", ids))
	return nil
}
