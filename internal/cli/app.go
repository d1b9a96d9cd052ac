package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"arbejdsret/internal/config"
	"arbejdsret/internal/redis"
	"arbejdsret/internal/service/ai"
	"arbejdsret/internal/service/assistant"
	"arbejdsret/internal/session"
	"arbejdsret/internal/storage"
	"arbejdsret/internal/worker"
)

// loadStore opens the session store. A failed write of the recovered state
// leaves the sessions usable in memory, so it is logged and startup goes on.
func loadStore(ctx context.Context, adapter storage.Adapter, workspace string, log logrus.FieldLogger) *session.Store {
	store := session.NewStore(adapter, workspace, session.WithLogger(log))
	if err := store.Load(ctx); err != nil {
		log.WithError(err).Warn("sessions loaded but could not be saved")
	}
	return store
}

// app holds everything a command needs, built from config.
type app struct {
	cfg     *config.Config
	store   *session.Store
	pool    *worker.Pool
	service *assistant.Service
	closers []func() error
}

func newApp(ctx context.Context) (*app, error) {
	config.LoadEnv()
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	config.InitLogger(cfg.BasicConfig.LogLevel)

	a := &app{cfg: cfg}
	adapter, err := a.openStorage()
	if err != nil {
		a.Close()
		return nil, err
	}
	config.Logger.WithField("storage", cfg.BasicConfig.Storage).Debug("storage ready")

	a.store = loadStore(ctx, adapter, cfg.BasicConfig.Workspace, config.Logger)

	gw, err := ai.NewGateway(ctx, cfg, ai.WithLogger(config.Logger))
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("init gateway: %w", err)
	}

	a.pool = worker.NewPool(worker.DispatcherConfig{
		MinWorkers:  1,
		MaxWorkers:  cfg.BasicConfig.MaxWorkers,
		QueueSize:   cfg.BasicConfig.QueueSize,
		IdleTimeout: time.Minute,
	})
	a.closers = append(a.closers, func() error {
		a.pool.Close()
		return nil
	})

	a.service = assistant.NewService(gw, a.store,
		assistant.WithRunner(a.pool),
		assistant.WithLogger(config.Logger),
		assistant.WithWorkspace(cfg.BasicConfig.Workspace),
		assistant.WithNewsTTL(a.newsTTL()),
	)
	return a, nil
}

func (a *app) newsTTL() time.Duration {
	return time.Duration(a.cfg.BasicConfig.NewsCacheTTL) * time.Minute
}

// openStorage picks the adapter named by basic_config.storage.
func (a *app) openStorage() (storage.Adapter, error) {
	kind := strings.ToLower(a.cfg.BasicConfig.Storage)
	switch kind {
	case "sqlite", "sqlite3", "mysql":
		if kind != "mysql" {
			if err := ensureSQLiteDir(a.cfg.Databases["sqlite3"].DSN); err != nil {
				return nil, err
			}
		}
		db, err := storage.Open(kind, a.cfg)
		if err != nil {
			return nil, fmt.Errorf("open database: %w", err)
		}
		a.closers = append(a.closers, db.Close)
		if err := storage.Migrate(db, kind); err != nil {
			return nil, fmt.Errorf("migrate database: %w", err)
		}
		return storage.NewSQLAdapter(db, kind), nil
	case "redis":
		client, err := redis.NewRedisClient(a.cfg)
		if err != nil {
			return nil, fmt.Errorf("create redis client: %w", err)
		}
		a.closers = append(a.closers, client.Close)
		return redis.NewAdapter(client, a.cfg.Redis.KeyPrefix), nil
	case "memory":
		return storage.NewMemoryAdapter(), nil
	default:
		return nil, fmt.Errorf("unsupported storage: %s", a.cfg.BasicConfig.Storage)
	}
}

func ensureSQLiteDir(dsn string) error {
	if dsn == "" || dsn == ":memory:" || strings.HasPrefix(dsn, "file:") {
		return nil
	}
	dir := filepath.Dir(dsn)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create database directory: %w", err)
	}
	return nil
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil && !errors.Is(err, context.Canceled) {
			config.Logger.WithError(err).Warn("close resource failed")
		}
	}
	a.closers = nil
}
