package app

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/noah-isme/assessment-archive/internal/service"
	"github.com/noah-isme/assessment-archive/pkg/cache"
	"github.com/noah-isme/assessment-archive/pkg/config"
	"github.com/noah-isme/assessment-archive/pkg/database"
	"github.com/noah-isme/assessment-archive/pkg/storage"
)

// App holds the process wide dependencies shared by the worker and the CLI.
type App struct {
	Cfg      *config.Config
	Log      *zap.Logger
	DB       *sqlx.DB
	Redis    *redis.Client
	Storage  *storage.LocalStorage
	Metrics  *service.MetricsService
	Repos    Repos
	Services Services
}

// New connects to PostgreSQL and Redis and wires repositories and services. Redis is
// optional: without it deduplication falls back to the job table.
func New(ctx context.Context, cfg *config.Config, log *zap.Logger) (*App, error) {
	if log == nil {
		log = zap.NewNop()
	}

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("init postgres: %w", err)
	}
	if cfg.Database.AutoMigrate {
		if err := database.Migrate(db, log); err != nil {
			_ = db.Close()
			return nil, err
		}
	}

	redisClient, err := cache.NewRedis(ctx, cfg.Redis)
	if err != nil {
		log.Sugar().Warnw("redis unavailable, schedule cache disabled", "error", err)
		redisClient = nil
	}

	var store *storage.LocalStorage
	if cfg.Archive.Directory != "" {
		store, err = storage.NewLocalStorage(cfg.Archive.Directory)
		if err != nil {
			_ = db.Close()
			if redisClient != nil {
				_ = redisClient.Close()
			}
			return nil, fmt.Errorf("init archive storage: %w", err)
		}
	} else {
		log.Sugar().Warnw("ARCHIVE_DIRECTORY not set, archive runs will fail")
	}

	metrics := service.NewMetricsService()
	repos := wireRepos(db, redisClient, cfg, log)
	services, err := wireServices(cfg, log, repos, store, metrics)
	if err != nil {
		_ = db.Close()
		if redisClient != nil {
			_ = redisClient.Close()
		}
		return nil, err
	}

	return &App{
		Cfg:      cfg,
		Log:      log,
		DB:       db,
		Redis:    redisClient,
		Storage:  store,
		Metrics:  metrics,
		Repos:    repos,
		Services: services,
	}, nil
}

// Close releases connections.
func (a *App) Close() {
	if a == nil {
		return
	}
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			a.Log.Sugar().Warnw("failed to close redis", "error", err)
		}
	}
	if a.DB != nil {
		if err := a.DB.Close(); err != nil {
			a.Log.Sugar().Warnw("failed to close postgres", "error", err)
		}
	}
}
