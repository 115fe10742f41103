package persistence

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/spec-kit/ticket-bridge/internal/config"
	"github.com/spec-kit/ticket-bridge/internal/syncstate"
)

// Connections holds the backends opened for the selected store.
type Connections struct {
	Postgres *Postgres
	Redis    *Redis
	Store    syncstate.Store
}

// Connect opens only the backend cfg.Store.Backend needs, prepares its
// schema, and builds the store on it.
func Connect(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Connections, error) {
	conns := &Connections{}
	var backends syncstate.Backends

	switch cfg.Store.Backend {
	case "postgres":
		pg, err := NewPostgres(ctx, cfg.Postgres, logger)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		conns.Postgres = pg
		backends.Postgres = pg.Pool
	case "redis":
		rdb, err := NewRedis(ctx, cfg.Redis, logger)
		if err != nil {
			return nil, err
		}
		conns.Redis = rdb
		backends.Redis = rdb.Client
	}

	store, err := syncstate.Open(cfg.Store, backends)
	if err != nil {
		conns.Close()
		return nil, err
	}
	conns.Store = store

	if pgStore, ok := store.(*syncstate.PostgresStore); ok {
		if cfg.Postgres.RunMigrations && cfg.Store.TableName == syncstate.DefaultTableName {
			err = RunMigrations(ctx, conns.Postgres.Pool, cfg.Postgres.MigrationsDir, logger)
		} else {
			err = pgStore.EnsureSchema(ctx)
		}
		if err != nil {
			conns.Close()
			return nil, err
		}
	}

	logger.Info("sync state store ready", zap.String("backend", cfg.Store.Backend))
	return conns, nil
}

// Close releases every open backend.
func (c *Connections) Close() {
	if c == nil {
		return
	}
	if c.Store != nil {
		_ = c.Store.Close()
	}
	c.Postgres.Close()
	c.Redis.Close()
}
