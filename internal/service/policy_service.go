package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/noah-isme/assessment-archive/internal/models"
	appErrors "github.com/noah-isme/assessment-archive/pkg/errors"
)

type archiveSettingStore interface {
	GetByActivity(ctx context.Context, activityID int64) (*models.ArchivingSetting, error)
	Upsert(ctx context.Context, activityID int64, archive bool) error
	Delete(ctx context.Context, activityID int64) error
}

type historyPurger interface {
	DeleteByActivity(ctx context.Context, activityID int64) (int64, error)
}

type queuedJobCanceller interface {
	SkipQueuedForActivity(ctx context.Context, activityID int64, reason string) (int64, error)
}

// AssessmentMethodProvider classifies activities by assessment method. It is optional; without
// it method based resolution is disabled.
type AssessmentMethodProvider interface {
	GetAssessmentMethod(ctx context.Context, activityID int64) (string, bool, error)
}

// Policy decision sources.
const (
	PolicySourceMethodArchive   = "method_archive"
	PolicySourceMethodNoArchive = "method_no_archive"
	PolicySourceSetting         = "setting"
	PolicySourceDefault         = "default"
)

// PolicyDecision explains the effective archiving policy of an activity.
type PolicyDecision struct {
	Enabled  bool
	Source   string
	Method   *string
	Explicit *bool
}

// PolicyConfig lists methods forcing archiving on or off. ForceArchive wins when a method is in both.
type PolicyConfig struct {
	ForceArchive   []string
	ForceNoArchive []string
}

// PolicyService decides whether activities are archived and owns the explicit settings.
type PolicyService struct {
	settings archiveSettingStore
	methods  AssessmentMethodProvider
	cache    *ScheduleCache
	history  historyPurger
	jobs     queuedJobCanceller
	logger   *zap.Logger

	forceArchive   map[string]struct{}
	forceNoArchive map[string]struct{}
}

// NewPolicyService constructs the policy engine. methods, history and jobs may be nil.
func NewPolicyService(settings archiveSettingStore, methods AssessmentMethodProvider, cache *ScheduleCache, history historyPurger, jobs queuedJobCanceller, cfg PolicyConfig, logger *zap.Logger) *PolicyService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PolicyService{
		settings:       settings,
		methods:        methods,
		cache:          cache,
		history:        history,
		jobs:           jobs,
		logger:         logger,
		forceArchive:   toSet(cfg.ForceArchive),
		forceNoArchive: toSet(cfg.ForceNoArchive),
	}
}

// IsArchivingEnabled resolves the effective policy of an activity.
func (s *PolicyService) IsArchivingEnabled(ctx context.Context, activityID int64) (bool, error) {
	decision, err := s.Evaluate(ctx, activityID)
	if err != nil {
		return false, err
	}
	return decision.Enabled, nil
}

// Evaluate resolves the policy: force-archive method, then force-no-archive method, then the
// explicit setting, else disabled.
func (s *PolicyService) Evaluate(ctx context.Context, activityID int64) (*PolicyDecision, error) {
	decision := &PolicyDecision{Source: PolicySourceDefault}

	if s.methods != nil {
		method, ok, err := s.methods.GetAssessmentMethod(ctx, activityID)
		if err != nil {
			return nil, appErrors.Internal(err, "failed to resolve assessment method")
		}
		if ok {
			decision.Method = &method
			if s.forcedArchive(method) {
				decision.Enabled = true
				decision.Source = PolicySourceMethodArchive
			} else if s.forcedNoArchive(method) {
				decision.Source = PolicySourceMethodNoArchive
			}
		}
	}

	setting, err := s.settings.GetByActivity(ctx, activityID)
	switch {
	case err == nil:
		explicit := setting.Archive
		decision.Explicit = &explicit
	case errors.Is(err, sql.ErrNoRows):
	default:
		return nil, appErrors.Internal(err, "failed to load archiving setting")
	}

	if decision.Source == PolicySourceDefault && decision.Explicit != nil {
		decision.Enabled = *decision.Explicit
		decision.Source = PolicySourceSetting
	}
	return decision, nil
}

// SetArchivingEnabled stores an explicit flag. When method is forced by configuration the
// override is removed instead. Every dedup entry of the activity is invalidated. The result
// reports whether the effective policy changed from disabled to enabled.
func (s *PolicyService) SetArchivingEnabled(ctx context.Context, activityID int64, enabled bool, method *string) (bool, error) {
	before, err := s.Evaluate(ctx, activityID)
	if err != nil {
		return false, err
	}

	forced := false
	if s.methods != nil {
		if method == nil {
			method = before.Method
		}
		if method != nil {
			forced = s.forcedArchive(*method) || s.forcedNoArchive(*method)
		}
	}

	if forced {
		if err := s.settings.Delete(ctx, activityID); err != nil {
			return false, appErrors.Internal(err, "failed to remove archiving override")
		}
	} else if err := s.settings.Upsert(ctx, activityID, enabled); err != nil {
		return false, appErrors.Internal(err, "failed to store archiving setting")
	}
	s.invalidate(ctx, activityID)

	after, err := s.Evaluate(ctx, activityID)
	if err != nil {
		return false, err
	}
	s.logger.Info("archiving setting changed",
		zap.Int64("activity_id", activityID),
		zap.Bool("requested", enabled),
		zap.Bool("forced", forced),
		zap.Bool("effective", after.Enabled),
	)
	return !before.Enabled && after.Enabled, nil
}

// ResetArchivingEnabled removes the explicit flag of an activity.
func (s *PolicyService) ResetArchivingEnabled(ctx context.Context, activityID int64) error {
	if err := s.settings.Delete(ctx, activityID); err != nil {
		return appErrors.Internal(err, "failed to reset archiving setting")
	}
	s.invalidate(ctx, activityID)
	return nil
}

// RestoreArchivingSetting re-applies a flag carried by a restored activity backup.
func (s *PolicyService) RestoreArchivingSetting(ctx context.Context, activityID int64, archive bool) error {
	if err := s.settings.Upsert(ctx, activityID, archive); err != nil {
		return appErrors.Internal(err, "failed to restore archiving setting")
	}
	s.invalidate(ctx, activityID)
	return nil
}

// ForgetActivity drops every trace of a deleted activity: its setting, its history and its
// queued jobs.
func (s *PolicyService) ForgetActivity(ctx context.Context, activityID int64) error {
	if err := s.settings.Delete(ctx, activityID); err != nil {
		return appErrors.Internal(err, "failed to delete archiving setting")
	}
	if s.history != nil {
		deleted, err := s.history.DeleteByActivity(ctx, activityID)
		if err != nil {
			return appErrors.Internal(err, "failed to delete archive history")
		}
		s.logger.Info("archive history removed", zap.Int64("activity_id", activityID), zap.Int64("records", deleted))
	}
	if s.jobs != nil {
		if _, err := s.jobs.SkipQueuedForActivity(ctx, activityID, "activity deleted"); err != nil {
			return appErrors.Internal(err, "failed to cancel queued archive jobs")
		}
	}
	s.invalidate(ctx, activityID)
	return nil
}

func (s *PolicyService) invalidate(ctx context.Context, activityID int64) {
	if err := s.cache.Invalidate(ctx, activityID, nil); err != nil {
		s.logger.Warn("failed to invalidate schedule cache", zap.Int64("activity_id", activityID), zap.Error(err))
	}
}

func (s *PolicyService) forcedArchive(method string) bool {
	_, ok := s.forceArchive[strings.TrimSpace(method)]
	return ok
}

func (s *PolicyService) forcedNoArchive(method string) bool {
	_, ok := s.forceNoArchive[strings.TrimSpace(method)]
	return ok
}

func toSet(values []string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v != "" {
			set[v] = struct{}{}
		}
	}
	return set
}
