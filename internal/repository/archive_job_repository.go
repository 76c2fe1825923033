package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/oklog/ulid/v2"

	"github.com/noah-isme/assessment-archive/internal/models"
)

const archiveJobColumns = `id, activity_id, reason, run_at, status, error_message, created_at, started_at, finished_at`

// ArchiveJobRepository persists the durable archive job queue.
type ArchiveJobRepository struct {
	db *sqlx.DB
}

// NewArchiveJobRepository constructs the repository.
func NewArchiveJobRepository(db *sqlx.DB) *ArchiveJobRepository {
	return &ArchiveJobRepository{db: db}
}

// Create inserts a queued job with generated defaults.
func (r *ArchiveJobRepository) Create(ctx context.Context, job *models.ArchiveJob) error {
	if job.ID == "" {
		job.ID = ulid.Make().String()
	}
	if job.Status == "" {
		job.Status = models.ArchiveJobQueued
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO assessment_archive_jobs (` + archiveJobColumns + `)
VALUES (:id, :activity_id, :reason, :run_at, :status, :error_message, :created_at, :started_at, :finished_at)`
	if _, err := r.db.NamedExecContext(ctx, query, job); err != nil {
		return fmt.Errorf("create archive job: %w", err)
	}
	return nil
}

// GetByID returns a job row by its identifier.
func (r *ArchiveJobRepository) GetByID(ctx context.Context, id string) (*models.ArchiveJob, error) {
	const query = `SELECT ` + archiveJobColumns + ` FROM assessment_archive_jobs WHERE id = $1`
	var job models.ArchiveJob
	if err := r.db.GetContext(ctx, &job, query, id); err != nil {
		return nil, fmt.Errorf("get archive job: %w", err)
	}
	return &job, nil
}

// HasPending reports whether a queued or running job exists for the pair.
func (r *ArchiveJobRepository) HasPending(ctx context.Context, activityID int64, reason models.ArchiveReason) (bool, error) {
	const query = `SELECT EXISTS (SELECT 1 FROM assessment_archive_jobs
	WHERE activity_id = $1 AND reason = $2 AND status IN ('QUEUED', 'RUNNING'))`
	var exists bool
	if err := r.db.GetContext(ctx, &exists, query, activityID, reason); err != nil {
		return false, fmt.Errorf("check pending archive job: %w", err)
	}
	return exists, nil
}

// ClaimDue marks up to limit due jobs RUNNING and returns them. Concurrent dispatchers never
// claim the same row.
func (r *ArchiveJobRepository) ClaimDue(ctx context.Context, now time.Time, limit int) ([]models.ArchiveJob, error) {
	if limit <= 0 {
		limit = 20
	}
	const query = `UPDATE assessment_archive_jobs SET status = 'RUNNING', started_at = $1
WHERE id IN (
	SELECT id FROM assessment_archive_jobs
	WHERE status = 'QUEUED' AND run_at <= $1
	ORDER BY run_at ASC LIMIT $2
	FOR UPDATE SKIP LOCKED
) AND status = 'QUEUED'
RETURNING ` + archiveJobColumns
	var jobs []models.ArchiveJob
	if err := r.db.SelectContext(ctx, &jobs, query, now, limit); err != nil {
		return nil, fmt.Errorf("claim archive jobs: %w", err)
	}
	return jobs, nil
}

// UpdateArchiveJobParams defines the mutable fields.
type UpdateArchiveJobParams struct {
	Status       *models.ArchiveJobStatus
	ErrorMessage *string
	FinishedAt   *time.Time
}

// Update persists the provided changes for a job row.
func (r *ArchiveJobRepository) Update(ctx context.Context, id string, params UpdateArchiveJobParams) error {
	set := make([]string, 0, 3)
	args := make([]interface{}, 0, 4)
	argPos := 1

	if params.Status != nil {
		set = append(set, fmt.Sprintf("status = $%d", argPos))
		args = append(args, *params.Status)
		argPos++
	}
	if params.ErrorMessage != nil {
		set = append(set, fmt.Sprintf("error_message = $%d", argPos))
		args = append(args, *params.ErrorMessage)
		argPos++
	}
	if params.FinishedAt != nil {
		set = append(set, fmt.Sprintf("finished_at = $%d", argPos))
		args = append(args, *params.FinishedAt)
		argPos++
	}

	if len(set) == 0 {
		return nil
	}

	query := fmt.Sprintf("UPDATE assessment_archive_jobs SET %s WHERE id = $%d", strings.Join(set, ", "), argPos)
	args = append(args, id)

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("update archive job: %w", err)
	}
	return nil
}

// RequeueStale puts RUNNING jobs started before cutoff back in the queue. A crash mid-publish
// leaves no bundle behind, so the job can run again from scratch.
func (r *ArchiveJobRepository) RequeueStale(ctx context.Context, cutoff time.Time) (int64, error) {
	const query = `UPDATE assessment_archive_jobs SET status = 'QUEUED', started_at = NULL
WHERE status = 'RUNNING' AND started_at < $1`
	res, err := r.db.ExecContext(ctx, query, cutoff)
	if err != nil {
		return 0, fmt.Errorf("requeue stale archive jobs: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("check requeue rows: %w", err)
	}
	return affected, nil
}

// SkipQueuedForActivity cancels queued jobs of an activity.
func (r *ArchiveJobRepository) SkipQueuedForActivity(ctx context.Context, activityID int64, reason string) (int64, error) {
	const query = `UPDATE assessment_archive_jobs SET status = 'SKIPPED', error_message = $2, finished_at = $3
WHERE activity_id = $1 AND status = 'QUEUED'`
	res, err := r.db.ExecContext(ctx, query, activityID, reason, time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("skip queued archive jobs: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("check skip rows: %w", err)
	}
	return affected, nil
}

// ListByActivity returns recent jobs of an activity, newest first.
func (r *ArchiveJobRepository) ListByActivity(ctx context.Context, activityID int64, limit int) ([]models.ArchiveJob, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	const query = `SELECT ` + archiveJobColumns + ` FROM assessment_archive_jobs
WHERE activity_id = $1 ORDER BY created_at DESC LIMIT $2`
	var jobs []models.ArchiveJob
	if err := r.db.SelectContext(ctx, &jobs, query, activityID, limit); err != nil {
		return nil, fmt.Errorf("list archive jobs: %w", err)
	}
	return jobs, nil
}
