package cmd

import (
	"context"
	"fmt"

	"receipt-ledger/core/config"
	"receipt-ledger/core/database"
	"receipt-ledger/core/ledger"
	"receipt-ledger/core/ledger/gormstore"
	"receipt-ledger/core/ledger/memstore"
	"receipt-ledger/core/lock"
	"receipt-ledger/core/logger"
	"receipt-ledger/core/reconcile"
	"receipt-ledger/core/storage"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// runtime holds the components every command builds from configuration.
type runtime struct {
	cfg     *config.Config
	log     *zap.Logger
	db      *gorm.DB
	store   ledger.Store
	engine  *reconcile.Engine
	archive *storage.Archive
	redis   *redis.Client
}

// bootstrap loads the configuration and wires the ledger store, the engine,
// the optional distributed lock and the optional upload archive.
func bootstrap(ctx context.Context) (*runtime, error) {
	cfg, err := config.LoadConfig(".")
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logg, err := logger.New(&cfg.Log)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	rt := &runtime{cfg: cfg, log: logg}
	if err := rt.openStore(ctx); err != nil {
		return nil, err
	}
	rt.engine = reconcile.NewEngine(rt.store, logg, cfg.Reconcile)

	locker, rdb, err := lock.Connect(cfg.Lock)
	if err != nil {
		rt.Close()
		return nil, err
	}
	if locker != nil {
		rt.redis = rdb
		rt.engine.WithLocker(locker, cfg.Lock.TTL())
		logg.Info("Distributed receipt lock enabled", zap.String("redis", cfg.Lock.RedisAddr))
	}

	if cfg.Storage.Enabled {
		archive, err := storage.Dial(ctx, cfg.Storage)
		if err != nil {
			rt.Close()
			return nil, fmt.Errorf("failed to open upload archive: %w", err)
		}
		rt.archive = archive
		logg.Info("Upload archive enabled", zap.String("bucket", cfg.Storage.Bucket))
	}
	return rt, nil
}

func (rt *runtime) openStore(ctx context.Context) error {
	if rt.cfg.Database.Driver == "memory" {
		rt.log.Warn("Using the in-memory ledger, nothing survives a restart")
		rt.store = memstore.New(rt.cfg.Reconcile.LockWait())
		return nil
	}

	db, err := database.Connect(rt.cfg.Database)
	if err != nil {
		return fmt.Errorf("database connection required: %w", err)
	}
	store := gormstore.New(db)
	if err := store.Migrate(ctx); err != nil {
		if sqlDB, dbErr := db.DB(); dbErr == nil {
			_ = sqlDB.Close()
		}
		return err
	}
	rt.db = db
	rt.store = store
	rt.log.Info("Connected to ledger database", zap.String("driver", rt.cfg.Database.Driver))
	return nil
}

// Close releases connections and flushes the logger.
func (rt *runtime) Close() {
	if rt.redis != nil {
		_ = rt.redis.Close()
	}
	if rt.db != nil {
		if sqlDB, err := rt.db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}
	_ = rt.log.Sync()
}
