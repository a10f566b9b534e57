package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Checker-Finance/tanium-adapter/internal/incidents"
	"github.com/Checker-Finance/tanium-adapter/internal/rate"
	internalsecrets "github.com/Checker-Finance/tanium-adapter/internal/secrets"
	"github.com/Checker-Finance/tanium-adapter/internal/store"
	"github.com/Checker-Finance/tanium-adapter/internal/tanium"
	"github.com/Checker-Finance/tanium-adapter/pkg/config"
	"github.com/Checker-Finance/tanium-adapter/pkg/secrets"
	"github.com/Checker-Finance/tanium-adapter/pkg/utils"
)

// API is what every subcommand needs from Tanium. *tanium.Client implements it.
type API interface {
	Execute(ctx context.Context, req tanium.Request) (tanium.Outcome, error)
	Login(ctx context.Context) error
}

// Options wires the root command.
type Options struct {
	Config *config.Config
	Logger *zap.Logger
	// NewAPI replaces the Tanium client factory.
	NewAPI func(ctx context.Context) (API, error)
}

func (o *Options) api(ctx context.Context) (API, error) {
	if o.NewAPI != nil {
		return o.NewAPI(ctx)
	}
	client, err := newTaniumClient(ctx, o.Config, o.Logger)
	if err != nil {
		return nil, err
	}
	return client, nil
}

// newTaniumClient builds the client from the environment, or from the
// instance secret when TANIUM_SECRETS_ENABLED is set.
func newTaniumClient(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*tanium.Client, error) {
	baseURL := cfg.TaniumURL
	creds := tanium.Credentials{
		Username: cfg.TaniumUsername,
		Password: cfg.TaniumPassword,
		APIToken: cfg.TaniumAPIToken,
	}

	if cfg.SecretsEnabled {
		provider, err := secrets.NewAWSProvider(ctx, cfg.AWSRegion)
		if err != nil {
			return nil, fmt.Errorf("failed to create AWS Secrets Manager provider: %w", err)
		}
		cache := secrets.NewCache[internalsecrets.TaniumSecret](cfg.CacheTTL)
		if cfg.CacheTTL > 0 {
			go cache.StartCleaner(cfg.CacheTTL, ctx.Done())
		}

		resolver := internalsecrets.NewAWSResolver(logger, cfg.Env, "tanium", provider, cache)
		s, err := resolver.Resolve(ctx, cfg.Instance, internalsecrets.ParseTaniumSecret)
		if err != nil {
			return nil, err
		}
		baseURL = s.URL
		creds = tanium.Credentials{Username: s.Username, Password: s.Password, APIToken: s.APIToken}
	}

	logger.Info("tanium.client_configured",
		zap.String("url", baseURL),
		zap.String("instance", cfg.Instance),
		zap.Bool("api_token", creds.UsesToken()),
		zap.String("password", utils.MaskSecret(creds.Password)))

	return tanium.NewClient(tanium.Options{
		BaseURL:     baseURL,
		Credentials: creds,
		Insecure:    cfg.Insecure,
		UseProxy:    cfg.UseProxy,
		Timeout:     cfg.RequestTimeout,
		Logger:      logger,
		RateManager: rate.NewManager(rate.Config{
			RequestsPerSecond: cfg.RateLimitRPS,
			Burst:             cfg.RateLimitBurst,
			Cooldown:          time.Second,
		}),
	})
}

func newStore(cfg *config.Config, logger *zap.Logger) (*store.HybridStore, error) {
	if cfg.DatabaseURL != "" {
		logger.Info("store.connecting", zap.String("dsn", utils.MaskDSN(cfg.DatabaseURL)))
	}
	return store.NewHybrid(
		store.RedisConfig{Addr: cfg.RedisAddr, DB: cfg.RedisDB, Password: cfg.RedisPass},
		cfg.DatabaseURL,
		store.PGPoolConfig{
			MaxConns:          int32(cfg.PGMaxConns),
			MinConns:          int32(cfg.PGMinConns),
			MaxConnLifetime:   cfg.PGMaxConnLifetime,
			MaxConnIdleTime:   cfg.PGMaxConnIdleTime,
			HealthCheckPeriod: cfg.PGHealthCheckPeriod,
		},
		logger,
	)
}

func newFetcher(api incidents.API, st *store.HybridStore, sink incidents.Sink, cfg *config.Config, logger *zap.Logger) (*incidents.Fetcher, error) {
	firstFetch, err := incidents.ParseFirstFetch(cfg.FirstFetch)
	if err != nil {
		return nil, err
	}
	return incidents.NewFetcher(api, st, sink, st, incidents.Options{
		Instance:   cfg.Instance,
		States:     cfg.FetchAlertStates,
		FirstFetch: firstFetch,
		Max:        cfg.FetchMax,
		Logger:     logger,
	})
}

func sinkKind(cfg *config.Config) (string, error) {
	kind := strings.ToLower(strings.TrimSpace(cfg.IncidentSink))
	switch kind {
	case "", "none":
		return "none", nil
	case "nats", "rabbitmq":
		return kind, nil
	}
	return "", fmt.Errorf("unknown INCIDENT_SINK %q (expected nats, rabbitmq or none)", cfg.IncidentSink)
}
