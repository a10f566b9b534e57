package jobs

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Checker-Finance/tanium-adapter/pkg/model"
)

// IncidentFetcher is satisfied by *incidents.Fetcher.
type IncidentFetcher interface {
	FetchOnce(ctx context.Context) ([]model.Incident, error)
}

// IncidentPoller runs the incident fetch on a fixed interval.
type IncidentPoller struct {
	logger   *zap.Logger
	fetcher  IncidentFetcher
	interval time.Duration
	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewIncidentPoller constructs a background job that runs periodically.
func NewIncidentPoller(logger *zap.Logger, fetcher IncidentFetcher, interval time.Duration) *IncidentPoller {
	return &IncidentPoller{
		logger:   logger,
		fetcher:  fetcher,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

// Start fetches once immediately, then on every tick until stopped.
func (p *IncidentPoller) Start(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.logger.Info("incident_poller.started", zap.Duration("interval", p.interval))
	p.runOnce(ctx)

	for {
		select {
		case <-ticker.C:
			p.runOnce(ctx)
		case <-p.stopCh:
			p.logger.Info("incident_poller.stopped (manual stop)")
			return
		case <-ctx.Done():
			p.logger.Info("incident_poller.stopped (context canceled)")
			return
		}
	}
}

// Stop halts the poller. Safe to call more than once.
func (p *IncidentPoller) Stop() {
	p.stopOnce.Do(func() { close(p.stopCh) })
}

func (p *IncidentPoller) runOnce(ctx context.Context) {
	start := time.Now()
	incs, err := p.fetcher.FetchOnce(ctx)
	if err != nil {
		// already logged by the fetcher; the next tick retries
		return
	}
	p.logger.Debug("incident_poller.cycle",
		zap.Int("incidents", len(incs)),
		zap.Duration("duration", time.Since(start)))
}
