package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Checker-Finance/tanium-adapter/internal/api"
	"github.com/Checker-Finance/tanium-adapter/internal/commands"
	"github.com/Checker-Finance/tanium-adapter/internal/jobs"
)

func newServeCmd(o *Options) *cobra.Command {
	var noPoll bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve commands over HTTP and poll for incidents",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			cfg := o.Config
			logg := o.Logger

			client, err := o.api(ctx)
			if err != nil {
				return err
			}

			st, err := newStore(cfg, logg)
			if err != nil {
				return fmt.Errorf("failed to init store: %w", err)
			}
			defer st.Close()

			sink, err := openSink(cfg, logg)
			if err != nil {
				return err
			}
			defer sink.Close()

			fetcher, err := newFetcher(client, st, sink.Sink, cfg, logg)
			if err != nil {
				return err
			}

			var poller *jobs.IncidentPoller
			if !noPoll {
				poller = jobs.NewIncidentPoller(logg, fetcher, cfg.FetchInterval)
				go poller.Start(ctx)
			}

			app := fiber.New(fiber.Config{
				ReadTimeout:  cfg.HTTPReadTimeout,
				WriteTimeout: cfg.HTTPWriteTimeout,
				IdleTimeout:  cfg.HTTPIdleTimeout,
				BodyLimit:    cfg.HTTPBodyLimit,
			})
			checks := map[string]api.HealthChecker{"store": st}
			if sink.nc != nil {
				checks["nats"] = natsCheck{nc: sink.nc}
			}
			api.RegisterRoutes(app, &api.Handler{
				Logger:   logg,
				Commands: commands.NewRegistry(client, logg),
				Fetcher:  fetcher,
				Log:      st,
				Instance: cfg.Instance,
			}, checks)

			listenErr := make(chan error, 1)
			go func() {
				logg.Info("http.listening", zap.Int("port", cfg.Port))
				listenErr <- app.Listen(fmt.Sprintf(":%d", cfg.Port))
			}()

			logg.Info("tanium-adapter.running",
				zap.String("instance", cfg.Instance),
				zap.String("sink", cfg.IncidentSink),
				zap.Duration("poll_interval", cfg.FetchInterval),
				zap.Bool("polling", !noPoll))

			select {
			case <-ctx.Done():
			case err := <-listenErr:
				if err != nil {
					return fmt.Errorf("http listen: %w", err)
				}
			}
			logg.Info("shutting down...")

			if poller != nil {
				poller.Stop()
			}
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := app.ShutdownWithContext(shutdownCtx); err != nil {
				logg.Warn("fiber.shutdown_failed", zap.Error(err))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&noPoll, "no-poll", false, "Serve the HTTP API without polling for incidents")
	return cmd
}
