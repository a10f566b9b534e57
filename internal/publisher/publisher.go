package publisher

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/Checker-Finance/tanium-adapter/internal/metrics"
	"github.com/Checker-Finance/tanium-adapter/pkg/logger"
	"github.com/Checker-Finance/tanium-adapter/pkg/model"
)

const sinkName = "nats"

// jetStream is the part of nats.JetStreamContext the publisher uses.
type jetStream interface {
	PublishMsg(msg *nats.Msg, opts ...nats.PubOpt) (*nats.PubAck, error)
}

// Publisher delivers incident envelopes to a JetStream subject.
type Publisher struct {
	nc       *nats.Conn
	js       jetStream
	subject  string
	service  string
	instance string
}

// New creates a new Publisher with JetStream enabled.
func New(nc *nats.Conn, subject, service, instance string) (*Publisher, error) {
	js, err := nc.JetStream()
	if err != nil {
		return nil, err
	}
	return &Publisher{
		nc:       nc,
		js:       js,
		subject:  subject,
		service:  service,
		instance: instance,
	}, nil
}

// PublishEnvelope serializes and publishes an event envelope. An empty
// subject uses the publisher default.
func (p *Publisher) PublishEnvelope(ctx context.Context, subject string, env *model.Envelope) error {
	if subject == "" {
		subject = p.subject
	}

	data, err := json.Marshal(env)
	if err != nil {
		logger.S().Errorw("publisher.marshal_failed",
			"subject", subject,
			"event_type", env.EventType,
			"error", err,
		)
		metrics.IncPublishError(sinkName)
		return err
	}

	msg := &nats.Msg{
		Subject: subject,
		Data:    data,
		Header: nats.Header{
			"event_type":     []string{env.EventType},
			"correlation_id": []string{env.CorrelationID.String()},
			"service":        []string{p.service},
			"content_type":   []string{"application/json"},
			"instance":       []string{env.Instance},
		},
	}

	start := time.Now()
	_, err = p.js.PublishMsg(msg, nats.Context(ctx), nats.MsgId(env.ID.String()))
	metrics.ObserveDuration(metrics.IncidentPublishDuration, start, sinkName)

	if err != nil {
		logger.S().Errorw("publisher.publish_failed",
			"subject", subject,
			"event_type", env.EventType,
			"error", err,
		)
		metrics.IncPublishError(sinkName)
		return err
	}

	logger.S().Debugw("publisher.publish_success",
		"subject", subject,
		"event_type", env.EventType,
	)
	return nil
}

// PublishIncidents sends one envelope per incident. The batch shares a
// correlation id; the first failure aborts the rest.
func (p *Publisher) PublishIncidents(ctx context.Context, incidents []model.Incident) error {
	correlationID := uuid.New()
	for _, inc := range incidents {
		env, err := model.NewIncidentEnvelope(inc, p.instance, p.subject, correlationID)
		if err != nil {
			metrics.IncPublishError(sinkName)
			return err
		}
		if err := p.PublishEnvelope(ctx, p.subject, env); err != nil {
			return err
		}
	}
	return nil
}

func (p *Publisher) Close() {
	if p.nc != nil && p.nc.IsConnected() {
		p.nc.Close()
	}
}
