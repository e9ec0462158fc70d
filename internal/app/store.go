package app

import (
	"context"
	"log/slog"

	"jobkeeper/internal/adapter/storage"
	"jobkeeper/internal/adapter/storage/memory"
	"jobkeeper/internal/adapter/storage/mongostore"
	"jobkeeper/internal/adapter/storage/pgstore"
	"jobkeeper/internal/adapter/storage/redisstore"
	"jobkeeper/internal/adapter/storage/sqlitestore"
	"jobkeeper/internal/config"
	"jobkeeper/internal/platform/logger"
	"jobkeeper/internal/platform/pg"
	"jobkeeper/internal/platform/redis"
	"jobkeeper/internal/shared"
)

// openStore opens the backend selected by STORAGE_DRIVER.
func openStore(ctx context.Context, cfg config.Config, log *slog.Logger) (storage.Store, error) {
	log = logger.Component(log, "storage")
	sc := cfg.Storage

	var (
		store storage.Store
		err   error
	)
	switch sc.Driver {
	case config.DriverMemory:
		log.Warn("using in-memory storage, job configs and history are lost on restart")
		store = memory.New()
	case config.DriverSQLite:
		var s *sqlitestore.Store
		if s, err = sqlitestore.Open(ctx, sc.SQLitePath); err == nil {
			store = s
		}
	case config.DriverPostgres:
		if err = pg.WaitForDB(ctx, sc.PostgresDSN, pg.DefaultHealthCheckOptions()); err != nil {
			return nil, err
		}
		var s *pgstore.Store
		if s, err = pgstore.Open(ctx, sc.PostgresDSN); err == nil {
			store = s
		}
	case config.DriverMongo:
		var s *mongostore.Store
		if s, err = mongostore.Open(ctx, sc.MongoURI, sc.MongoDatabase); err == nil {
			store = s
		}
	case config.DriverRedis:
		var s *redisstore.Store
		opts := redis.ClientOptions{Addr: sc.RedisAddr, Password: sc.RedisPassword, DB: sc.RedisDB}
		if s, err = redisstore.Open(ctx, opts, sc.RedisPrefix); err == nil {
			store = s
		}
	default:
		return nil, shared.Validationf("unknown storage driver %q", sc.Driver)
	}
	if err != nil {
		return nil, err
	}

	log.Info("storage opened", "driver", sc.Driver)
	return store, nil
}
