package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/Checker-Finance/tanium-adapter/internal/incidents"
	"github.com/Checker-Finance/tanium-adapter/internal/publisher"
	"github.com/Checker-Finance/tanium-adapter/internal/rabbitmq"
	"github.com/Checker-Finance/tanium-adapter/pkg/config"
)

// sinkHandle is the configured incident sink. Sink is nil for "none".
type sinkHandle struct {
	Sink  incidents.Sink
	nc    *nats.Conn
	close func()
}

func (h *sinkHandle) Close() {
	if h.close != nil {
		h.close()
	}
}

// natsCheck reports the NATS connection state on /health.
type natsCheck struct{ nc *nats.Conn }

func (c natsCheck) HealthCheck(context.Context) error {
	if c.nc == nil || !c.nc.IsConnected() {
		return errors.New("disconnected")
	}
	return nil
}

func openSink(cfg *config.Config, logger *zap.Logger) (*sinkHandle, error) {
	kind, err := sinkKind(cfg)
	if err != nil {
		return nil, err
	}

	switch kind {
	case "nats":
		nc, err := nats.Connect(cfg.NATSURL, nats.Name(cfg.ServiceName))
		if err != nil {
			return nil, fmt.Errorf("failed to connect to NATS: %w", err)
		}
		pub, err := publisher.New(nc, cfg.IncidentSubject, cfg.ServiceName, cfg.Instance)
		if err != nil {
			nc.Close()
			return nil, fmt.Errorf("failed to init publisher: %w", err)
		}
		logger.Info("sink.nats_ready", zap.String("subject", cfg.IncidentSubject))
		return &sinkHandle{
			Sink: pub,
			nc:   nc,
			close: func() {
				if err := nc.Drain(); err != nil {
					logger.Warn("nats.drain_failed", zap.Error(err))
				}
				pub.Close()
			},
		}, nil

	case "rabbitmq":
		pub, err := rabbitmq.NewPublisher(cfg.RabbitMQURL, cfg.RabbitMQQueue, cfg.Instance, logger)
		if err != nil {
			return nil, err
		}
		logger.Info("sink.rabbitmq_ready", zap.String("queue", cfg.RabbitMQQueue))
		return &sinkHandle{
			Sink: pub,
			close: func() {
				if err := pub.Close(); err != nil {
					logger.Warn("rabbitmq.close_failed", zap.Error(err))
				}
			},
		}, nil
	}

	logger.Info("sink.disabled")
	return &sinkHandle{}, nil
}
