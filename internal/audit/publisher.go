package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/avelychko/bookgo/internal/domain"
)

const queueName = "audit.records"

// Publisher ships audit records to the broker best-effort. Record never
// returns an error and never blocks the caller beyond a short publish
// timeout; a saga outcome must not depend on the audit path.
type Publisher struct {
	mu      sync.Mutex
	ch      *amqp.Channel
	logger  *slog.Logger
	timeout time.Duration
}

func NewPublisher(conn *amqp.Connection, logger *slog.Logger) (*Publisher, error) {
	const op = "audit.NewPublisher"

	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	if _, err := ch.QueueDeclare(
		queueName,
		true,  // durable
		false, // autoDelete
		false, // exclusive
		false, // noWait
		nil,
	); err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return &Publisher{
		ch:      ch,
		logger:  logger,
		timeout: 2 * time.Second,
	}, nil
}

// Record publishes one audit record. The parent context is detached so
// a cancelled request cannot suppress the record of a decided saga.
func (p *Publisher) Record(ctx context.Context, rec domain.AuditRecord) {
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now().UTC()
	}
	if rec.Level == "" {
		rec.Level = domain.AuditLevelInfo
	}

	body, err := json.Marshal(rec)
	if err != nil {
		p.logger.Warn("audit: marshal record", "action", rec.Action, "error", err)
		return
	}

	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.timeout)
	defer cancel()

	pub := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    rec.Timestamp,
		Body:         body,
	}

	p.mu.Lock()
	err = p.ch.PublishWithContext(pubCtx, "", queueName, false, false, pub)
	p.mu.Unlock()

	if err != nil {
		p.logger.Warn("audit: publish failed", "action", rec.Action, "error", err)
	}
}

func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ch.Close()
}
