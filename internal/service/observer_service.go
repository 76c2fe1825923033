package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/assessment-archive/internal/dto"
	"github.com/noah-isme/assessment-archive/internal/models"
	appErrors "github.com/noah-isme/assessment-archive/pkg/errors"
)

type archivalScheduler interface {
	ScheduleArchival(ctx context.Context, activityID int64, reason models.ArchiveReason, delay time.Duration) (bool, error)
}

type activitySettings interface {
	ForgetActivity(ctx context.Context, activityID int64) error
	RestoreArchivingSetting(ctx context.Context, activityID int64, archive bool) error
}

// ObserverConfig holds the delay applied per trigger. A zero delay disables the trigger.
type ObserverConfig struct {
	WaitAfterAttempt time.Duration
	WaitAfterGrading time.Duration
}

// ObserverService turns LMS events into scheduling calls.
type ObserverService struct {
	scheduler archivalScheduler
	policy    activitySettings
	cfg       ObserverConfig
	logger    *zap.Logger
}

// NewObserverService constructs the event observer.
func NewObserverService(scheduler archivalScheduler, policy activitySettings, cfg ObserverConfig, logger *zap.Logger) *ObserverService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ObserverService{scheduler: scheduler, policy: policy, cfg: cfg, logger: logger}
}

// AttemptSubmitted schedules archival after the configured attempt delay.
func (s *ObserverService) AttemptSubmitted(ctx context.Context, activityID int64) (bool, error) {
	if s.cfg.WaitAfterAttempt <= 0 {
		return false, nil
	}
	return s.scheduler.ScheduleArchival(ctx, activityID, models.ReasonAttemptSubmitted, s.cfg.WaitAfterAttempt)
}

// AttemptGraded schedules archival after the configured grading delay.
func (s *ObserverService) AttemptGraded(ctx context.Context, activityID int64) (bool, error) {
	if s.cfg.WaitAfterGrading <= 0 {
		return false, nil
	}
	return s.scheduler.ScheduleArchival(ctx, activityID, models.ReasonAttemptGraded, s.cfg.WaitAfterGrading)
}

// ArchivingEnabled schedules an immediate run once archiving is switched on.
func (s *ObserverService) ArchivingEnabled(ctx context.Context, activityID int64) (bool, error) {
	return s.scheduler.ScheduleArchival(ctx, activityID, models.ReasonArchivingInitiallyEnabled, 0)
}

// ActivityDeleted removes the settings and history of a deleted activity.
func (s *ObserverService) ActivityDeleted(ctx context.Context, activityID int64) error {
	return s.policy.ForgetActivity(ctx, activityID)
}

// ActivityRestored re-applies the archiving flag of an activity restored from a backup.
// Nothing is scheduled: the next attempt event decides.
func (s *ObserverService) ActivityRestored(ctx context.Context, activityID int64, archive bool) error {
	return s.policy.RestoreArchivingSetting(ctx, activityID, archive)
}

// HandleEvent dispatches an event by name.
func (s *ObserverService) HandleEvent(ctx context.Context, event dto.EventRequest) (bool, error) {
	s.logger.Debug("lms event received", zap.String("event", event.Event), zap.Int64("activity_id", event.ActivityID))
	switch event.Event {
	case dto.EventAttemptSubmitted:
		return s.AttemptSubmitted(ctx, event.ActivityID)
	case dto.EventAttemptGraded:
		return s.AttemptGraded(ctx, event.ActivityID)
	case dto.EventActivityDeleted:
		return false, s.ActivityDeleted(ctx, event.ActivityID)
	case dto.EventActivityRestored:
		if event.Archive == nil {
			return false, appErrors.Clone(appErrors.ErrValidation, "archive flag is required for restored activities")
		}
		return false, s.ActivityRestored(ctx, event.ActivityID, *event.Archive)
	default:
		return false, appErrors.Clone(appErrors.ErrValidation, "unsupported event "+event.Event)
	}
}
