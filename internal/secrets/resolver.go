package secrets

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	pkgsecrets "github.com/Checker-Finance/tanium-adapter/pkg/secrets"
)

// AWSResolver resolves per-instance configuration from AWS Secrets Manager,
// caching results locally to reduce API calls.
//
// Secret naming convention: {env}/{instance}/{venue}
type AWSResolver[T any] struct {
	logger   *zap.Logger
	env      string
	venue    string
	provider pkgsecrets.Provider
	cache    *pkgsecrets.Cache[T]
}

// NewAWSResolver constructs a resolver for one venue.
func NewAWSResolver[T any](
	logger *zap.Logger,
	env string,
	venue string,
	provider pkgsecrets.Provider,
	cache *pkgsecrets.Cache[T],
) *AWSResolver[T] {
	return &AWSResolver[T]{
		logger:   logger,
		env:      env,
		venue:    venue,
		provider: provider,
		cache:    cache,
	}
}

func (r *AWSResolver[T]) cacheKey(instance string) string {
	return strings.ToLower(instance + "|" + r.venue)
}

// SecretName returns the Secrets Manager key for instance.
func (r *AWSResolver[T]) SecretName(instance string) string {
	return strings.ToLower(fmt.Sprintf("%s/%s/%s", r.env, instance, r.venue))
}

// Resolve fetches or returns the cached T for instance. parse validates the raw map.
func (r *AWSResolver[T]) Resolve(ctx context.Context, instance string, parse func(map[string]string) (T, error)) (T, error) {
	var zero T
	key := r.cacheKey(instance)

	if cfg, ok := r.cache.Get(key); ok {
		return cfg, nil
	}

	name := r.SecretName(instance)
	raw, err := r.provider.GetSecret(ctx, name)
	if err != nil {
		r.logger.Warn("aws.secret_fetch_failed",
			zap.String("key", name),
			zap.Error(err))
		return zero, fmt.Errorf("resolve %s config for %q: %w", r.venue, instance, err)
	}

	cfg, err := parse(raw)
	if err != nil {
		return zero, fmt.Errorf("parse secret %q: %w", name, err)
	}

	r.cache.Put(key, cfg)
	r.logger.Info("aws.instance_config_resolved",
		zap.String("instance", instance),
		zap.String("venue", r.venue))
	return cfg, nil
}

// Invalidate drops the cached value so the next Resolve re-reads the secret.
func (r *AWSResolver[T]) Invalidate(instance string) {
	r.cache.Bust(r.cacheKey(instance))
}

// TaniumSecret is the JSON layout of the connector secret.
type TaniumSecret struct {
	URL      string
	Username string
	Password string
	APIToken string
}

// ParseTaniumSecret reads url, username, password and api_token. Which
// credential variant is in effect is decided by the client, not here.
func ParseTaniumSecret(m map[string]string) (TaniumSecret, error) {
	s := TaniumSecret{
		URL:      strings.TrimSpace(m["url"]),
		Username: m["username"],
		Password: m["password"],
		APIToken: m["api_token"],
	}
	if s.URL == "" {
		return TaniumSecret{}, errors.New("missing url")
	}
	return s, nil
}
