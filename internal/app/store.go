package app

import (
	"context"

	"github.com/go-faster/errors"

	"github.com/xenking/kart/internal/kv"
	"github.com/xenking/kart/internal/storage/memory"
	"github.com/xenking/kart/internal/storage/postgres"
	"github.com/xenking/kart/internal/storage/redis"
	"github.com/xenking/kart/internal/storage/sqlite"
)

// OpenStore connects the backend selected by cfg.Driver. The caller owns
// the returned store and must Close it.
func OpenStore(ctx context.Context, cfg StorageConfig) (kv.Store, error) {
	switch cfg.Driver {
	case DriverMemory, "":
		return memory.New(), nil
	case DriverRedis:
		s, err := redis.Open(ctx, cfg.RedisURL, cfg.Namespace)
		if err != nil {
			return nil, errors.Wrap(err, "open redis")
		}
		return s, nil
	case DriverPostgres:
		s, err := postgres.Open(ctx, cfg.DatabaseURL, cfg.Namespace)
		if err != nil {
			return nil, errors.Wrap(err, "open postgres")
		}
		return s, nil
	case DriverSQLite:
		s, err := sqlite.Open(cfg.SQLitePath, cfg.Namespace)
		if err != nil {
			return nil, errors.Wrap(err, "open sqlite")
		}
		return s, nil
	default:
		return nil, errors.Errorf("unknown storage driver %q", cfg.Driver)
	}
}
