package app

import (
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/noah-isme/assessment-archive/internal/repository"
	"github.com/noah-isme/assessment-archive/pkg/config"
)

// Repos groups the persistence adapters.
type Repos struct {
	Settings *repository.ArchiveSettingRepository
	History  *repository.ArchiveHistoryRepository
	Jobs     *repository.ArchiveJobRepository
	LMS      *repository.LMSRepository
	Cache    *repository.CacheRepository
}

func wireRepos(db *sqlx.DB, redisClient *redis.Client, cfg *config.Config, log *zap.Logger) Repos {
	repos := Repos{
		Settings: repository.NewArchiveSettingRepository(db),
		History:  repository.NewArchiveHistoryRepository(db, cfg.LMS.TablePrefix),
		Jobs:     repository.NewArchiveJobRepository(db),
		LMS:      repository.NewLMSRepository(db, cfg.LMS.TablePrefix),
	}
	if redisClient != nil {
		repos.Cache = repository.NewCacheRepository(redisClient, log)
	}
	return repos
}
