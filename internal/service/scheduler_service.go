package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/assessment-archive/internal/models"
	appErrors "github.com/noah-isme/assessment-archive/pkg/errors"
)

type archiveJobScheduler interface {
	Create(ctx context.Context, job *models.ArchiveJob) error
	HasPending(ctx context.Context, activityID int64, reason models.ArchiveReason) (bool, error)
}

type policyEvaluator interface {
	IsArchivingEnabled(ctx context.Context, activityID int64) (bool, error)
}

// Schedule decisions recorded in metrics.
const (
	DecisionScheduled  = "scheduled"
	DecisionDisabled   = "disabled"
	DecisionSuppressed = "suppressed"
)

// SchedulerService debounces archive triggers into durable jobs. Within the dedup window only
// the first trigger of an (activity, reason) pair enqueues work.
type SchedulerService struct {
	policy  policyEvaluator
	cache   *ScheduleCache
	jobs    archiveJobScheduler
	metrics *MetricsService
	logger  *zap.Logger
	now     func() time.Time
}

// NewSchedulerService constructs the scheduling layer.
func NewSchedulerService(policy policyEvaluator, cache *ScheduleCache, jobs archiveJobScheduler, metrics *MetricsService, logger *zap.Logger) *SchedulerService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SchedulerService{
		policy:  policy,
		cache:   cache,
		jobs:    jobs,
		metrics: metrics,
		logger:  logger,
		now:     time.Now,
	}
}

// ScheduleArchival is the entry point used by event handlers.
func (s *SchedulerService) ScheduleArchival(ctx context.Context, activityID int64, reason models.ArchiveReason, delay time.Duration) (bool, error) {
	return s.CheckAndSchedule(ctx, activityID, delay, reason)
}

// CheckAndSchedule evaluates the policy once per dedup window and enqueues a job running after
// runAfter when archiving is enabled. It reports whether a job was enqueued.
func (s *SchedulerService) CheckAndSchedule(ctx context.Context, activityID int64, runAfter time.Duration, reason models.ArchiveReason) (bool, error) {
	if runAfter < 0 {
		runAfter = 0
	}

	if s.cache.Enabled() {
		if _, hit, err := s.cache.Status(ctx, activityID, reason); err != nil {
			return false, appErrors.Internal(err, "failed to read schedule cache")
		} else if hit {
			s.metrics.RecordScheduleDecision(DecisionSuppressed)
			return false, nil
		}
	} else {
		pending, err := s.jobs.HasPending(ctx, activityID, reason)
		if err != nil {
			return false, appErrors.Internal(err, "failed to check pending archive jobs")
		}
		if pending {
			s.metrics.RecordScheduleDecision(DecisionSuppressed)
			return false, nil
		}
	}

	enabled, err := s.policy.IsArchivingEnabled(ctx, activityID)
	if err != nil {
		return false, err
	}

	status := models.ScheduleDisabled
	if enabled {
		status = models.ScheduleScheduled
	}
	claimed, err := s.cache.Claim(ctx, activityID, reason, status, runAfter)
	if err != nil {
		return false, appErrors.Internal(err, "failed to write schedule cache")
	}
	if !claimed {
		s.metrics.RecordScheduleDecision(DecisionSuppressed)
		return false, nil
	}

	if !enabled {
		s.metrics.RecordScheduleDecision(DecisionDisabled)
		s.logger.Debug("archiving disabled, trigger ignored",
			zap.Int64("activity_id", activityID),
			zap.String("reason", reason.String()),
		)
		return false, nil
	}

	if err := s.enqueue(ctx, activityID, s.now().Add(runAfter), reason); err != nil {
		if invErr := s.cache.Invalidate(ctx, activityID, &reason); invErr != nil {
			s.logger.Warn("failed to release schedule cache entry", zap.Int64("activity_id", activityID), zap.Error(invErr))
		}
		return false, err
	}
	s.metrics.RecordScheduleDecision(DecisionScheduled)
	return true, nil
}

// ScheduleDirect enqueues a job at runAt without consulting the cache or the policy. A pair that
// already has a queued or running job is skipped.
func (s *SchedulerService) ScheduleDirect(ctx context.Context, activityID int64, runAt time.Time, reason models.ArchiveReason) (bool, error) {
	pending, err := s.jobs.HasPending(ctx, activityID, reason)
	if err != nil {
		return false, appErrors.Internal(err, "failed to check pending archive jobs")
	}
	if pending {
		s.metrics.RecordScheduleDecision(DecisionSuppressed)
		return false, nil
	}
	if err := s.enqueue(ctx, activityID, runAt, reason); err != nil {
		return false, err
	}
	s.metrics.RecordScheduleDecision(DecisionScheduled)
	return true, nil
}

// InvalidateCache clears the dedup entry of one reason, or all of them when reason is nil.
func (s *SchedulerService) InvalidateCache(ctx context.Context, activityID int64, reason *models.ArchiveReason) error {
	if err := s.cache.Invalidate(ctx, activityID, reason); err != nil {
		return appErrors.Internal(err, "failed to invalidate schedule cache")
	}
	return nil
}

func (s *SchedulerService) enqueue(ctx context.Context, activityID int64, runAt time.Time, reason models.ArchiveReason) error {
	job := &models.ArchiveJob{
		ActivityID: activityID,
		Reason:     reason,
		RunAt:      runAt.UTC(),
		Status:     models.ArchiveJobQueued,
	}
	if err := s.jobs.Create(ctx, job); err != nil {
		return appErrors.Internal(err, "failed to enqueue archive job")
	}
	s.logger.Info("archive job scheduled",
		zap.String("job_id", job.ID),
		zap.Int64("activity_id", activityID),
		zap.String("reason", reason.String()),
		zap.Time("run_at", job.RunAt),
	)
	return nil
}
