// Package service holds cross-cutting application services: the audit event
// publisher and the reservation expiry sweeper.
package service

import (
	"context"
	"encoding/json"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"

	"github.com/ivanmru/store-inventory-reservation/internal/queue"
)

// AuditPublisher publishes audit events to the durable audit queue. Publish
// failures are logged and returned, but callers are expected to ignore them:
// audit delivery must never fail the request that triggered it.
type AuditPublisher struct {
	URL string
}

func NewAuditPublisher(url string) *AuditPublisher { return &AuditPublisher{URL: url} }

// Publish sends one audit event. A fresh connection per publish keeps the
// publisher stateless across broker restarts at the cost of some latency,
// which is acceptable at audit volumes.
func (p *AuditPublisher) Publish(ctx context.Context, ev queue.AuditEvent) error {
	if ev.OccurredAt == "" {
		ev.OccurredAt = time.Now().UTC().Format(time.RFC3339)
	}

	conn, err := amqp.Dial(p.URL)
	if err != nil {
		logrus.WithError(err).Warn("audit-publish: dial failed")
		return err
	}
	defer func() { _ = conn.Close() }()

	ch, err := conn.Channel()
	if err != nil {
		logrus.WithError(err).Warn("audit-publish: channel open failed")
		return err
	}
	defer func() { _ = ch.Close() }()

	// Idempotent declare; durable so events survive broker restarts.
	if _, err := ch.QueueDeclare(queue.AuditQueueName, true, false, false, false, nil); err != nil {
		logrus.WithError(err).Warn("audit-publish: queue declare failed")
		return err
	}

	body, err := json.Marshal(ev)
	if err != nil {
		logrus.WithError(err).Warn("audit-publish: marshal failed")
		return err
	}

	pub := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	}
	if err := ch.PublishWithContext(ctx, "", queue.AuditQueueName, false, false, pub); err != nil {
		logrus.WithError(err).Warn("audit-publish: publish failed")
		return err
	}
	return nil
}
