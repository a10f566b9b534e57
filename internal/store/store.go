package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/Checker-Finance/tanium-adapter/pkg/model"
)

// Store keeps the incident fetch cursor and the incident log.
type Store interface {
	LoadCursor(ctx context.Context, instance string) (*model.Cursor, error)
	SaveCursor(ctx context.Context, instance string, cursor model.Cursor) error
	RecordIncidents(ctx context.Context, instance string, incidents []model.Incident) error
	RecentIncidents(ctx context.Context, instance string, limit int) ([]model.Incident, error)
	HealthCheck(ctx context.Context) error
	Close() error
}

// HybridStore keeps the cursor in Redis and the incident log in Postgres.
// Postgres is optional; without it incidents are not logged.
type HybridStore struct {
	redis  *redis.Client
	PG     *pgxpool.Pool
	logger *zap.Logger
}

type PGPoolConfig struct {
	MaxConns          int32
	MinConns          int32
	MaxConnLifetime   time.Duration
	MaxConnIdleTime   time.Duration
	HealthCheckPeriod time.Duration
}

// RedisConfig addresses the cursor cache.
type RedisConfig struct {
	Addr     string
	DB       int
	Password string
}

// NewHybrid creates a Redis-first, Postgres-backed store.
func NewHybrid(rc RedisConfig, pgURL string, pgPoolConfig PGPoolConfig, logger *zap.Logger) (*HybridStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	rdb := redis.NewClient(&redis.Options{
		Addr:     rc.Addr,
		DB:       rc.DB,
		Password: rc.Password,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	var pgPool *pgxpool.Pool
	if pgURL != "" {
		cfg, err := pgxpool.ParseConfig(pgURL)
		if err != nil {
			_ = rdb.Close()
			return nil, fmt.Errorf("invalid pg config: %w", err)
		}
		if pgPoolConfig.MaxConns > 0 {
			cfg.MaxConns = pgPoolConfig.MaxConns
		}
		if pgPoolConfig.MinConns > 0 {
			cfg.MinConns = pgPoolConfig.MinConns
		}
		if pgPoolConfig.MaxConnLifetime > 0 {
			cfg.MaxConnLifetime = pgPoolConfig.MaxConnLifetime
		}
		if pgPoolConfig.MaxConnIdleTime > 0 {
			cfg.MaxConnIdleTime = pgPoolConfig.MaxConnIdleTime
		}
		if pgPoolConfig.HealthCheckPeriod > 0 {
			cfg.HealthCheckPeriod = pgPoolConfig.HealthCheckPeriod
		}
		pgPool, err = pgxpool.NewWithConfig(ctx, cfg)
		if err != nil {
			_ = rdb.Close()
			return nil, fmt.Errorf("failed to connect to postgres: %w", err)
		}
	}

	return &HybridStore{redis: rdb, PG: pgPool, logger: logger}, nil
}

func cursorKey(instance string) string {
	return "tanium:cursor:" + instance
}

// LoadCursor returns nil, nil when no fetch has run for instance yet.
func (s *HybridStore) LoadCursor(ctx context.Context, instance string) (*model.Cursor, error) {
	data, err := s.redis.Get(ctx, cursorKey(instance)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	} else if err != nil {
		return nil, err
	}

	var c model.Cursor
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("corrupt cursor for %s: %w", instance, err)
	}
	return &c, nil
}

// SaveCursor persists the cursor without expiry.
func (s *HybridStore) SaveCursor(ctx context.Context, instance string, cursor model.Cursor) error {
	data, err := json.Marshal(cursor)
	if err != nil {
		return err
	}
	return s.redis.Set(ctx, cursorKey(instance), data, 0).Err()
}

// RecordIncidents appends incidents to edr.tanium_incident. Re-recording an
// alert id is a no-op.
func (s *HybridStore) RecordIncidents(ctx context.Context, instance string, incidents []model.Incident) error {
	if s.PG == nil || len(incidents) == 0 {
		return nil
	}
	tx, err := s.PG.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin incident insert: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	for _, inc := range incidents {
		_, err := tx.Exec(ctx, `
			INSERT INTO edr.tanium_incident (
				instance, alert_id, name, occurred, raw_json, recorded_at
			)
			VALUES ($1, $2, $3, $4, $5, NOW())
			ON CONFLICT (instance, alert_id) DO NOTHING
		`, instance, inc.AlertID, inc.Name, inc.Occurred, []byte(inc.RawJSON))
		if err != nil {
			s.logger.Error("store.pg.insert_incident_failed",
				zap.Int64("alert_id", inc.AlertID),
				zap.Error(err))
			return err
		}
	}
	return tx.Commit(ctx)
}

// RecentIncidents lists the newest logged incidents for instance.
func (s *HybridStore) RecentIncidents(ctx context.Context, instance string, limit int) ([]model.Incident, error) {
	if s.PG == nil {
		return nil, fmt.Errorf("postgres unavailable")
	}
	rows, err := s.PG.Query(ctx, `
		SELECT alert_id, name, occurred, raw_json
		FROM edr.tanium_incident
		WHERE instance = $1
		ORDER BY alert_id DESC
		LIMIT $2;
	`, instance, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []model.Incident
	for rows.Next() {
		var (
			inc model.Incident
			raw []byte
		)
		if err := rows.Scan(&inc.AlertID, &inc.Name, &inc.Occurred, &raw); err != nil {
			return nil, err
		}
		inc.RawJSON = raw
		results = append(results, inc)
	}
	return results, rows.Err()
}

func (s *HybridStore) HealthCheck(ctx context.Context) error {
	if s.redis == nil {
		return fmt.Errorf("redis not initialized")
	}
	if err := s.redis.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}
	if s.PG != nil {
		if err := s.PG.Ping(ctx); err != nil {
			return fmt.Errorf("postgres ping failed: %w", err)
		}
	}
	return nil
}

func (s *HybridStore) Close() error {
	if s.PG != nil {
		s.PG.Close()
	}
	if s.redis != nil {
		return s.redis.Close()
	}
	return nil
}
