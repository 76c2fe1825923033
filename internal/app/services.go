package app

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/noah-isme/assessment-archive/internal/service"
	"github.com/noah-isme/assessment-archive/pkg/config"
	"github.com/noah-isme/assessment-archive/pkg/notary"
	"github.com/noah-isme/assessment-archive/pkg/storage"
)

// Services groups the domain services.
type Services struct {
	Cache     *service.CacheService
	Schedule  *service.ScheduleCache
	Policy    *service.PolicyService
	Scheduler *service.SchedulerService
	Observer  *service.ObserverService
	History   *service.HistoryService
	Coverage  *service.CoverageService
	Admin     *service.AdminScheduleService
	Metadata  *service.MetadataService
	Publisher *service.PublisherService
	Janitor   *service.JanitorService
	Bundles   *service.BundleService
	Tokens    *service.TokenService
	Worker    *service.ArchiveWorker
}

func wireServices(cfg *config.Config, log *zap.Logger, repos Repos, store *storage.LocalStorage, metrics *service.MetricsService) (Services, error) {
	var cacheRepo service.CacheRepository
	if repos.Cache != nil {
		cacheRepo = repos.Cache
	}
	cacheSvc := service.NewCacheService(cacheRepo, metrics, 0, log.Named("cache"), cacheRepo != nil)
	schedule := service.NewScheduleCache(cacheSvc, cfg.Schedule.DedupGrace)

	var methods service.AssessmentMethodProvider
	if cfg.Policy.MethodsEnabled {
		methods = repos.LMS
	}

	policy := service.NewPolicyService(repos.Settings, methods, schedule, repos.History, repos.Jobs, service.PolicyConfig{
		ForceArchive:   cfg.Policy.MethodsArchive,
		ForceNoArchive: cfg.Policy.MethodsDoNotArchive,
	}, log.Named("policy"))
	scheduler := service.NewSchedulerService(policy, schedule, repos.Jobs, metrics, log.Named("scheduler"))
	observer := service.NewObserverService(scheduler, policy, service.ObserverConfig{
		WaitAfterAttempt: cfg.Schedule.WaitAfterAttempt,
		WaitAfterGrading: cfg.Schedule.WaitAfterGrading,
	}, log.Named("observer"))
	history := service.NewHistoryService(repos.History, repos.Jobs, repos.LMS)
	admin := service.NewAdminScheduleService(history, policy, scheduler, log.Named("admin"))
	coverage := service.NewCoverageService(history, policy)

	metadata := service.NewMetadataService(repos.LMS, methods, service.MetadataConfig{
		SiteShortName: cfg.SiteName,
		ProfileFields: cfg.Metadata.ProfileFields,
	}, log.Named("metadata"))

	deps := service.PublisherDeps{
		Metadata: metadata,
		History:  repos.History,
		Cache:    schedule,
		Metrics:  metrics,
		Logger:   log.Named("publisher"),
	}
	if store != nil {
		deps.Storage = store
	}
	if cfg.Snapshot.Command != "" {
		producer, err := service.NewCommandSnapshotProducer(service.CommandSnapshotConfig{
			Command: cfg.Snapshot.Command,
			WorkDir: cfg.Snapshot.WorkDir,
			Timeout: cfg.Snapshot.Timeout,
		}, log.Named("snapshot"))
		if err != nil {
			return Services{}, fmt.Errorf("init snapshot producer: %w", err)
		}
		deps.Snapshots = producer
	}
	if cfg.Notary.URL != "" {
		requester, err := notary.NewRequester(cfg.Notary.Requester, cfg.Notary.OpenSSLPath)
		if err != nil {
			return Services{}, fmt.Errorf("init notary requester: %w", err)
		}
		client := notary.NewClient(notary.Config{
			URL:       cfg.Notary.URL,
			Timeout:   cfg.Notary.Timeout,
			Requester: requester,
			Observer:  metrics,
			Logger:    log.Named("notary"),
		})
		log.Info("time stamping enabled", zap.String("url", client.URL()), zap.String("requester", cfg.Notary.Requester))
		deps.Notary = client
	}
	publisher := service.NewPublisherService(deps)

	signer := storage.NewSignedURLSigner(cfg.Downloads.SignedURLSecret, cfg.Downloads.SignedURLTTL)
	var bundles *service.BundleService
	var janitor *service.JanitorService
	if store != nil {
		bundles = service.NewBundleService(store, signer, cfg.APIPrefix, log.Named("bundles"))
		janitor = service.NewJanitorService(store, repos.History, repos.LMS, metrics, log.Named("janitor"))
	} else {
		bundles = service.NewBundleService(nil, signer, cfg.APIPrefix, log.Named("bundles"))
		janitor = service.NewJanitorService(nil, nil, nil, metrics, log.Named("janitor"))
	}

	tokens := service.NewTokenService(service.TokenConfig{Secret: cfg.JWT.Secret, Expiration: cfg.JWT.Expiration})
	worker := service.NewArchiveWorker(repos.Jobs, repos.LMS, policy, schedule, publisher, log.Named("worker"))

	return Services{
		Cache:     cacheSvc,
		Schedule:  schedule,
		Policy:    policy,
		Scheduler: scheduler,
		Observer:  observer,
		History:   history,
		Coverage:  coverage,
		Admin:     admin,
		Metadata:  metadata,
		Publisher: publisher,
		Janitor:   janitor,
		Bundles:   bundles,
		Tokens:    tokens,
		Worker:    worker,
	}, nil
}
