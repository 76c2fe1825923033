package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/assessment-archive/internal/models"
)

type archivableSource interface {
	ListNeverArchived(ctx context.Context, courseID *int64) ([]models.CourseActivity, error)
	ListArchivable(ctx context.Context, courseID *int64) ([]models.CourseActivity, error)
}

type directScheduler interface {
	ScheduleDirect(ctx context.Context, activityID int64, runAt time.Time, reason models.ArchiveReason) (bool, error)
}

// AdminScheduleOptions controls a bulk scheduling run.
type AdminScheduleOptions struct {
	NeverArchived bool
	Interval      time.Duration
	DryRun        bool
	CourseID      *int64
}

// AdminScheduleResult summarises a bulk scheduling run.
type AdminScheduleResult struct {
	Candidates  []int64
	Scheduled   int
	Skipped     int
	FinalOffset time.Duration
	DryRun      bool
}

// AdminScheduleService queues archival of every enabled activity, spacing runs by an interval.
type AdminScheduleService struct {
	source    archivableSource
	policy    policyEvaluator
	scheduler directScheduler
	logger    *zap.Logger
	now       func() time.Time
}

// NewAdminScheduleService constructs the bulk scheduler.
func NewAdminScheduleService(source archivableSource, policy policyEvaluator, scheduler directScheduler, logger *zap.Logger) *AdminScheduleService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AdminScheduleService{source: source, policy: policy, scheduler: scheduler, logger: logger, now: time.Now}
}

// Candidates lists the activities a run would schedule, in course order.
func (s *AdminScheduleService) Candidates(ctx context.Context, opts AdminScheduleOptions) ([]int64, error) {
	var (
		activities []models.CourseActivity
		err        error
	)
	if opts.NeverArchived {
		activities, err = s.source.ListNeverArchived(ctx, opts.CourseID)
	} else {
		activities, err = s.source.ListArchivable(ctx, opts.CourseID)
	}
	if err != nil {
		return nil, err
	}

	ids := make([]int64, 0, len(activities))
	for _, activity := range activities {
		enabled, err := s.policy.IsArchivingEnabled(ctx, activity.ActivityID)
		if err != nil {
			return nil, err
		}
		if enabled {
			ids = append(ids, activity.ActivityID)
		}
	}
	return ids, nil
}

// Run schedules every candidate. Successive runs are spaced by opts.Interval; pairs that are
// already queued are skipped and do not consume a slot.
func (s *AdminScheduleService) Run(ctx context.Context, opts AdminScheduleOptions) (*AdminScheduleResult, error) {
	if opts.Interval < 0 {
		opts.Interval = 0
	}
	candidates, err := s.Candidates(ctx, opts)
	if err != nil {
		return nil, err
	}
	result := &AdminScheduleResult{Candidates: candidates, DryRun: opts.DryRun}
	if opts.DryRun {
		return result, nil
	}

	runAt := s.now()
	for _, activityID := range candidates {
		scheduled, err := s.scheduler.ScheduleDirect(ctx, activityID, runAt, models.ReasonAdminScript)
		if err != nil {
			return result, err
		}
		if scheduled {
			result.Scheduled++
			runAt = runAt.Add(opts.Interval)
		} else {
			result.Skipped++
		}
	}
	if result.Scheduled > 0 {
		result.FinalOffset = opts.Interval * time.Duration(result.Scheduled-1)
	}
	s.logger.Info("bulk archive scheduling finished",
		zap.Int("scheduled", result.Scheduled),
		zap.Int("skipped", result.Skipped),
		zap.Duration("final_offset", result.FinalOffset),
	)
	return result, nil
}
