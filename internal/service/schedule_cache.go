package service

import (
	"context"
	"fmt"
	"time"

	"github.com/noah-isme/assessment-archive/internal/models"
)

const scheduleKeyPrefix = "assessment_archive:scheduled:"

// ScheduleKey returns the dedup cache key of an (activity, reason) pair.
func ScheduleKey(activityID int64, reason models.ArchiveReason) string {
	return fmt.Sprintf("%s%d_%d", scheduleKeyPrefix, activityID, int(reason))
}

// ScheduleCache stores pending scheduling decisions. It is shared by the scheduler, the policy
// engine and the publisher so each can clear entries without depending on the others.
type ScheduleCache struct {
	cache *CacheService
	grace time.Duration
}

// NewScheduleCache wraps cache. Entries live for the job delay plus grace.
func NewScheduleCache(cache *CacheService, grace time.Duration) *ScheduleCache {
	if grace <= 0 {
		grace = time.Hour
	}
	return &ScheduleCache{cache: cache, grace: grace}
}

// Enabled reports whether a backing cache is configured.
func (c *ScheduleCache) Enabled() bool {
	return c != nil && c.cache.Enabled()
}

// Status returns the cached decision for the pair and whether one exists.
func (c *ScheduleCache) Status(ctx context.Context, activityID int64, reason models.ArchiveReason) (models.ScheduleStatus, bool, error) {
	if !c.Enabled() {
		return 0, false, nil
	}
	var status models.ScheduleStatus
	hit, err := c.cache.Get(ctx, ScheduleKey(activityID, reason), &status)
	if err != nil {
		return 0, false, err
	}
	return status, hit, nil
}

// Claim records status unless another decision is already pending. The first caller wins.
func (c *ScheduleCache) Claim(ctx context.Context, activityID int64, reason models.ArchiveReason, status models.ScheduleStatus, runAfter time.Duration) (bool, error) {
	if !c.Enabled() {
		return true, nil
	}
	if runAfter < 0 {
		runAfter = 0
	}
	return c.cache.SetIfAbsent(ctx, ScheduleKey(activityID, reason), status, runAfter+c.grace)
}

// Invalidate clears the entry of one reason, or of every reason when reason is nil.
func (c *ScheduleCache) Invalidate(ctx context.Context, activityID int64, reason *models.ArchiveReason) error {
	if !c.Enabled() {
		return nil
	}
	if reason != nil {
		return c.cache.Delete(ctx, ScheduleKey(activityID, *reason))
	}
	return c.cache.Invalidate(ctx, fmt.Sprintf("%s%d_*", scheduleKeyPrefix, activityID))
}
