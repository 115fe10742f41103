package syncstate

import (
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/spec-kit/ticket-bridge/internal/config"
)

// Backends carries the connections a store may be built on.
type Backends struct {
	Postgres *pgxpool.Pool
	Redis    *redis.Client
}

// Open returns the store selected by cfg.Backend.
func Open(cfg config.StoreConfig, backends Backends) (Store, error) {
	switch cfg.Backend {
	case "", "memory":
		return NewMemoryStore(), nil
	case "redis":
		if backends.Redis == nil {
			return nil, fmt.Errorf("store backend redis requires a redis client")
		}
		return NewRedisStore(backends.Redis, cfg.KeyPrefix), nil
	case "postgres":
		if backends.Postgres == nil {
			return nil, fmt.Errorf("store backend postgres requires POSTGRES_DSN")
		}
		return NewPostgresStore(backends.Postgres, cfg.TableName), nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
	}
}
