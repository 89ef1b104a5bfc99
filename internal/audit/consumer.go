package audit

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/avelychko/bookgo/internal/domain"
)

// Store is where consumed audit records end up.
type Store interface {
	Insert(ctx context.Context, rec domain.AuditRecord) error
}

// Consumer drains the audit queue into the store. It owns its broker
// connection so it can re-dial after failures without taking the rest
// of the process down.
type Consumer struct {
	url    string
	store  Store
	logger *slog.Logger
}

func NewConsumer(url string, store Store, logger *slog.Logger) *Consumer {
	return &Consumer{
		url:    url,
		store:  store,
		logger: logger,
	}
}

// Run consumes until ctx is cancelled, reconnecting with backoff after
// broker failures.
func (c *Consumer) Run(ctx context.Context) error {
	backoff := time.Second

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		conn, err := amqp.Dial(c.url)
		if err != nil {
			c.logger.Warn("audit consumer: dial failed", "error", err, "retry_in", backoff)
			if !sleep(ctx, backoff) {
				return ctx.Err()
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}

		backoff = time.Second

		if err := c.consume(ctx, conn); err != nil && ctx.Err() == nil {
			c.logger.Warn("audit consumer: consume loop ended", "error", err)
		}

		_ = conn.Close()

		if ctx.Err() != nil {
			return ctx.Err()
		}

		if !sleep(ctx, 2*time.Second) {
			return ctx.Err()
		}
	}
}

func (c *Consumer) consume(ctx context.Context, conn *amqp.Connection) error {
	ch, err := conn.Channel()
	if err != nil {
		return err
	}

	defer ch.Close()

	if err := ch.Qos(50, 0, false); err != nil {
		c.logger.Warn("audit consumer: set QoS failed", "error", err)
	}

	if _, err := ch.QueueDeclare(queueName, true, false, false, false, nil); err != nil {
		return err
	}

	msgs, err := ch.Consume(queueName, "", false, false, false, false, nil)
	if err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-msgs:
			if !ok {
				return nil
			}
			c.handle(ctx, d)
		}
	}
}

func (c *Consumer) handle(ctx context.Context, d amqp.Delivery) {
	var rec domain.AuditRecord
	if err := json.Unmarshal(d.Body, &rec); err != nil {
		c.logger.Warn("audit consumer: bad payload", "error", err)
		_ = d.Nack(false, false)
		return
	}

	insCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := c.store.Insert(insCtx, rec); err != nil {
		c.logger.Warn("audit consumer: insert failed", "action", rec.Action, "error", err)
		_ = d.Nack(false, true)
		return
	}

	_ = d.Ack(false)
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
