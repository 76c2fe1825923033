package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/assessment-archive/internal/models"
	"github.com/noah-isme/assessment-archive/pkg/storage"
)

type sweepableStorage interface {
	Exists(filename string) (bool, error)
	List(dir string) ([]storage.FileInfo, error)
	ListDirs(dir string) ([]string, error)
	CleanupOlderThan(ttl time.Duration, match func(rel string) bool) ([]string, error)
}

type bundleLedger interface {
	ExistsRun(ctx context.Context, activityID int64, reason models.ArchiveReason, createdAt time.Time) (bool, error)
	Create(ctx context.Context, record *models.ArchiveHistoryRecord) error
}

// JanitorService removes leftovers of runs interrupted by a crash: temp files in the archive
// root and bundles whose metadata file was never published. It also restores the ledger row
// of complete bundles whose run died before the history insert.
type JanitorService struct {
	storage sweepableStorage
	ledger  bundleLedger
	lms     activityReader
	metrics *MetricsService
	logger  *zap.Logger
	now     func() time.Time
}

// NewJanitorService constructs the janitor. A nil storage turns Sweep into a no-op; a nil
// ledger or lms disables Reconcile.
func NewJanitorService(storage sweepableStorage, ledger bundleLedger, lms activityReader, metrics *MetricsService, logger *zap.Logger) *JanitorService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &JanitorService{storage: storage, ledger: ledger, lms: lms, metrics: metrics, logger: logger, now: time.Now}
}

// Sweep deletes stale leftovers older than olderThan and returns the removed paths.
func (j *JanitorService) Sweep(ctx context.Context, olderThan time.Duration) ([]string, error) {
	if j.storage == nil {
		return nil, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	removed, err := j.storage.CleanupOlderThan(olderThan, j.isLeftover)
	if err != nil {
		j.logger.Sugar().Errorw("archive sweep failed", "error", err)
		return removed, err
	}
	j.metrics.AddJanitorRemoved(len(removed))
	if len(removed) > 0 {
		j.logger.Sugar().Infow("archive sweep removed leftovers", "count", len(removed), "files", removed)
	}
	return removed, nil
}

// Reconcile records a history row for every complete bundle older than olderThan that has
// none. Bundles of activities that no longer exist are left alone: their rows were dropped
// on purpose. It returns the metadata paths of the restored bundles.
func (j *JanitorService) Reconcile(ctx context.Context, olderThan time.Duration) ([]string, error) {
	if j.storage == nil || j.ledger == nil || j.lms == nil {
		return nil, nil
	}
	courses, err := j.storage.ListDirs("")
	if err != nil {
		return nil, fmt.Errorf("list course directories: %w", err)
	}
	cutoff := j.now().Add(-olderThan)
	restored := make([]string, 0)
	for _, dir := range courses {
		courseID, err := strconv.ParseInt(dir, 10, 64)
		if err != nil {
			continue
		}
		files, err := j.storage.List(dir)
		if err != nil {
			return restored, err
		}
		for _, file := range files {
			if err := ctx.Err(); err != nil {
				return restored, err
			}
			if strings.HasPrefix(file.Name, ".") || filepath.Ext(file.Name) != ExtMetadata || file.ModTime.After(cutoff) {
				continue
			}
			ok, err := j.restore(ctx, courseID, strings.TrimSuffix(file.Name, ExtMetadata))
			if err != nil {
				j.logger.Sugar().Errorw("archive reconcile failed", "file", file.Path, "error", err)
				return restored, err
			}
			if ok {
				restored = append(restored, file.Path)
			}
		}
	}
	if len(restored) > 0 {
		j.logger.Sugar().Warnw("restored missing archive history", "count", len(restored), "files", restored)
	}
	return restored, nil
}

func (j *JanitorService) restore(ctx context.Context, courseID int64, stem string) (bool, error) {
	activityID, reason, at, err := ParseBundleStem(stem)
	if err != nil || !reason.Valid() {
		return false, nil
	}
	at = at.UTC()
	exists, err := j.ledger.ExistsRun(ctx, activityID, reason, at)
	if err != nil || exists {
		return false, err
	}
	activity, err := j.lms.GetActivity(ctx, activityID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("load activity: %w", err)
	}
	if activity.CourseID != courseID {
		return false, nil
	}
	record := &models.ArchiveHistoryRecord{CourseID: courseID, ActivityID: activityID, Reason: reason, CreatedAt: at}
	if err := j.ledger.Create(ctx, record); err != nil {
		return false, err
	}
	return true, nil
}

// Start sweeps and reconciles immediately and then on every interval until ctx is done.
func (j *JanitorService) Start(ctx context.Context, interval, olderThan time.Duration) {
	if j.storage == nil {
		return
	}
	if interval <= 0 {
		interval = time.Hour
	}
	run := func() {
		_, _ = j.Sweep(ctx, olderThan)
		_, _ = j.Reconcile(ctx, olderThan)
	}
	go func() {
		run()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				run()
			case <-ctx.Done():
				return
			}
		}
	}()
}

func (j *JanitorService) isLeftover(rel string) bool {
	dir, name := filepath.Split(rel)
	ext := filepath.Ext(name)
	if ext != ExtSnapshot && ext != ExtMetadata && ext != ExtTimestamp {
		return false
	}
	if dir == "" {
		return strings.HasPrefix(name, ".")
	}
	if ext == ExtMetadata || strings.HasPrefix(name, ".") {
		return false
	}
	complete, err := j.storage.Exists(filepath.Join(dir, strings.TrimSuffix(name, ext)+ExtMetadata))
	if err != nil {
		return false
	}
	return !complete
}
