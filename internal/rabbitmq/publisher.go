package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/Checker-Finance/tanium-adapter/internal/metrics"
	"github.com/Checker-Finance/tanium-adapter/pkg/model"
)

const sinkName = "rabbitmq"

// channel is the part of *amqp.Channel the publisher uses.
type channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// Publisher delivers incident envelopes to a durable RabbitMQ queue.
type Publisher struct {
	conn     *amqp.Connection
	channel  channel
	queue    string
	instance string
	logger   *zap.Logger
}

// NewPublisher connects and declares queue.
func NewPublisher(url, queue, instance string, logger *zap.Logger) (*Publisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("failed to declare queue %s: %w", queue, err)
	}

	return &Publisher{
		conn:     conn,
		channel:  ch,
		queue:    queue,
		instance: instance,
		logger:   logger,
	}, nil
}

// PublishIncidents sends one persistent message per incident.
func (p *Publisher) PublishIncidents(ctx context.Context, incidents []model.Incident) error {
	correlationID := uuid.New()
	for _, inc := range incidents {
		env, err := model.NewIncidentEnvelope(inc, p.instance, p.queue, correlationID)
		if err != nil {
			metrics.IncPublishError(sinkName)
			return err
		}
		body, err := json.Marshal(env)
		if err != nil {
			metrics.IncPublishError(sinkName)
			return fmt.Errorf("marshal incident %d: %w", inc.AlertID, err)
		}

		start := time.Now()
		err = p.channel.PublishWithContext(
			ctx,
			"",      // exchange
			p.queue, // routing key
			false,   // mandatory
			false,   // immediate
			amqp.Publishing{
				ContentType:   "application/json",
				DeliveryMode:  amqp.Persistent,
				MessageId:     env.ID.String(),
				CorrelationId: correlationID.String(),
				Type:          env.EventType,
				Timestamp:     env.Timestamp,
				Body:          body,
			},
		)
		metrics.ObserveDuration(metrics.IncidentPublishDuration, start, sinkName)
		if err != nil {
			metrics.IncPublishError(sinkName)
			p.logger.Error("rabbitmq.publish_failed",
				zap.Int64("alert_id", inc.AlertID),
				zap.Error(err))
			return err
		}
	}

	p.logger.Info("rabbitmq.published",
		zap.String("queue", p.queue),
		zap.Int("count", len(incidents)))
	return nil
}

// Close closes the publisher
func (p *Publisher) Close() error {
	if p.channel != nil {
		_ = p.channel.Close()
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}
