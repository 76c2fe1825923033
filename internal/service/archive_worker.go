package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/assessment-archive/internal/models"
	"github.com/noah-isme/assessment-archive/internal/repository"
	"github.com/noah-isme/assessment-archive/pkg/jobs"
)

// JobTypeArchive tags archive jobs on the worker queue.
const JobTypeArchive = "archive"

type archiveJobStore interface {
	GetByID(ctx context.Context, id string) (*models.ArchiveJob, error)
	ClaimDue(ctx context.Context, now time.Time, limit int) ([]models.ArchiveJob, error)
	Update(ctx context.Context, id string, params repository.UpdateArchiveJobParams) error
	RequeueStale(ctx context.Context, cutoff time.Time) (int64, error)
}

type jobDispatcher interface {
	Enqueue(job jobs.Job) error
	Free() int
}

type activityReader interface {
	GetCourse(ctx context.Context, courseID int64) (*models.Course, error)
	GetActivity(ctx context.Context, activityID int64) (*models.Activity, error)
}

type bundlePublisher interface {
	Publish(ctx context.Context, export *ArchiveExport) (*models.ArchiveBundle, error)
}

// DispatcherConfig tunes the due job poller.
type DispatcherConfig struct {
	Interval   time.Duration
	Batch      int
	StaleAfter time.Duration
}

// Dispatcher claims due archive jobs and hands them to the worker queue.
type Dispatcher struct {
	repo    archiveJobStore
	queue   jobDispatcher
	metrics *MetricsService
	logger  *zap.Logger
	cfg     DispatcherConfig
	now     func() time.Time

	wg sync.WaitGroup
}

// NewDispatcher constructs a dispatcher.
func NewDispatcher(repo archiveJobStore, queue jobDispatcher, metrics *MetricsService, cfg DispatcherConfig, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 30 * time.Second
	}
	if cfg.Batch <= 0 {
		cfg.Batch = 20
	}
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = 3 * time.Hour
	}
	return &Dispatcher{repo: repo, queue: queue, metrics: metrics, logger: logger, cfg: cfg, now: time.Now}
}

// RecoverStale re-queues jobs left RUNNING by a previous process.
func (d *Dispatcher) RecoverStale(ctx context.Context) {
	requeued, err := d.repo.RequeueStale(ctx, d.now().Add(-d.cfg.StaleAfter))
	if err != nil {
		d.logger.Sugar().Warnw("failed to recover stale archive jobs", "error", err)
		return
	}
	if requeued > 0 {
		d.logger.Sugar().Infow("requeued stale archive jobs", "count", requeued)
	}
}

// Start recovers stale jobs and polls for due jobs until ctx is done.
func (d *Dispatcher) Start(ctx context.Context) {
	d.RecoverStale(ctx)
	ticker := time.NewTicker(d.cfg.Interval)
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer ticker.Stop()
		d.DispatchDue(ctx)
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				d.DispatchDue(ctx)
			}
		}
	}()
}

// Wait blocks until the polling goroutine exits.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

// DispatchDue claims one batch of due jobs and enqueues them. It returns the number enqueued.
// The batch never exceeds the free capacity of the queue.
func (d *Dispatcher) DispatchDue(ctx context.Context) int {
	limit := d.cfg.Batch
	if free := d.queue.Free(); free < limit {
		limit = free
	}
	if limit <= 0 {
		return 0
	}
	claimed, err := d.repo.ClaimDue(ctx, d.now().UTC(), limit)
	if err != nil {
		d.logger.Sugar().Warnw("failed to claim due archive jobs", "error", err)
		return 0
	}
	d.metrics.AddJobsClaimed(len(claimed))

	enqueued := 0
	for i := range claimed {
		job := claimed[i]
		if err := d.queue.Enqueue(jobs.Job{ID: job.ID, Type: JobTypeArchive, Payload: job}); err != nil {
			d.logger.Sugar().Warnw("failed to enqueue archive job", "job_id", job.ID, "error", err)
			queued := models.ArchiveJobQueued
			if updateErr := d.repo.Update(ctx, job.ID, repository.UpdateArchiveJobParams{Status: &queued}); updateErr != nil {
				d.logger.Sugar().Warnw("failed to release archive job", "job_id", job.ID, "error", updateErr)
			}
			continue
		}
		enqueued++
	}
	return enqueued
}

// ArchiveWorker bridges queue jobs to the publisher.
type ArchiveWorker struct {
	repo      archiveJobStore
	lms       activityReader
	policy    policyEvaluator
	cache     *ScheduleCache
	publisher bundlePublisher
	logger    *zap.Logger
}

// NewArchiveWorker constructs a worker.
func NewArchiveWorker(repo archiveJobStore, lms activityReader, policy policyEvaluator, cache *ScheduleCache, publisher bundlePublisher, logger *zap.Logger) *ArchiveWorker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ArchiveWorker{repo: repo, lms: lms, policy: policy, cache: cache, publisher: publisher, logger: logger}
}

// Handle processes a queue job. Failures are recorded on the job row and never re-queued.
// Whatever the outcome, the dedup entry of the job is cleared so a later trigger can run.
func (w *ArchiveWorker) Handle(ctx context.Context, job jobs.Job) error {
	record, err := w.load(ctx, job)
	if err != nil {
		return err
	}
	defer w.release(ctx, record)

	activity, err := w.lms.GetActivity(ctx, record.ActivityID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return w.finish(ctx, record.ID, models.ArchiveJobSkipped, "activity not found")
		}
		return w.fail(ctx, record.ID, fmt.Errorf("load activity: %w", err))
	}
	course, err := w.lms.GetCourse(ctx, activity.CourseID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return w.finish(ctx, record.ID, models.ArchiveJobSkipped, "course not found")
		}
		return w.fail(ctx, record.ID, fmt.Errorf("load course: %w", err))
	}

	enabled, err := w.policy.IsArchivingEnabled(ctx, record.ActivityID)
	if err != nil {
		return w.fail(ctx, record.ID, err)
	}
	if !enabled {
		return w.finish(ctx, record.ID, models.ArchiveJobSkipped, "archiving disabled")
	}

	if _, err := w.publisher.Publish(ctx, &ArchiveExport{Course: course, Activity: activity, Reason: record.Reason}); err != nil {
		return w.fail(ctx, record.ID, err)
	}
	return w.finish(ctx, record.ID, models.ArchiveJobFinished, "")
}

func (w *ArchiveWorker) load(ctx context.Context, job jobs.Job) (*models.ArchiveJob, error) {
	switch payload := job.Payload.(type) {
	case models.ArchiveJob:
		return &payload, nil
	case *models.ArchiveJob:
		if payload != nil {
			return payload, nil
		}
	}
	return w.repo.GetByID(ctx, job.ID)
}

func (w *ArchiveWorker) release(ctx context.Context, record *models.ArchiveJob) {
	reason := record.Reason
	if err := w.cache.Invalidate(ctx, record.ActivityID, &reason); err != nil {
		w.logger.Sugar().Warnw("failed to clear schedule cache", "activity_id", record.ActivityID, "reason", reason.String(), "error", err)
	}
}

func (w *ArchiveWorker) fail(ctx context.Context, id string, cause error) error {
	if err := w.finish(ctx, id, models.ArchiveJobFailed, cause.Error()); err != nil {
		return err
	}
	return cause
}

func (w *ArchiveWorker) finish(ctx context.Context, id string, status models.ArchiveJobStatus, message string) error {
	now := time.Now().UTC()
	params := repository.UpdateArchiveJobParams{Status: &status, FinishedAt: &now}
	if message != "" {
		params.ErrorMessage = &message
	}
	if err := w.repo.Update(ctx, id, params); err != nil {
		w.logger.Sugar().Warnw("failed to update archive job", "job_id", id, "status", status, "error", err)
		return err
	}
	w.logger.Sugar().Infow("archive job done", "job_id", id, "status", status, "message", message)
	return nil
}
