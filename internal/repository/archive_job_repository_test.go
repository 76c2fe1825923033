package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/assessment-archive/internal/models"
)

var jobColumns = []string{"id", "activity_id", "reason", "run_at", "status", "error_message", "created_at", "started_at", "finished_at"}

func TestArchiveJobRepositoryCreate(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewArchiveJobRepository(db)

	runAt := time.Now().Add(time.Hour).UTC()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO assessment_archive_jobs")).
		WithArgs(sqlmock.AnyArg(), int64(42), models.ReasonAttemptGraded, runAt, "QUEUED", nil, sqlmock.AnyArg(), nil, nil).
		WillReturnResult(sqlmock.NewResult(1, 1))

	job := &models.ArchiveJob{ActivityID: 42, Reason: models.ReasonAttemptGraded, RunAt: runAt}
	require.NoError(t, repo.Create(context.Background(), job))
	require.Len(t, job.ID, 26)
	require.Equal(t, models.ArchiveJobQueued, job.Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestArchiveJobRepositoryClaimDue(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewArchiveJobRepository(db)

	now := time.Now().UTC()
	rows := sqlmock.NewRows(jobColumns).
		AddRow("01HX", 42, 1, now.Add(-time.Minute), "RUNNING", nil, now.Add(-time.Hour), now, nil)
	mock.ExpectQuery(regexp.QuoteMeta("UPDATE assessment_archive_jobs SET status = 'RUNNING', started_at = $1")).
		WithArgs(now, 5).
		WillReturnRows(rows)

	jobs, err := repo.ClaimDue(context.Background(), now, 5)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	require.Equal(t, models.ArchiveJobRunning, jobs[0].Status)
	require.NotNil(t, jobs[0].StartedAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestArchiveJobRepositoryUpdate(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewArchiveJobRepository(db)

	now := time.Now()
	status := models.ArchiveJobFailed
	msg := "snapshot producer returned no content"
	mock.ExpectExec(regexp.QuoteMeta("UPDATE assessment_archive_jobs SET status = $1, error_message = $2, finished_at = $3 WHERE id = $4")).
		WithArgs(status, msg, now, "job-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.Update(context.Background(), "job-1", UpdateArchiveJobParams{Status: &status, ErrorMessage: &msg, FinishedAt: &now})
	require.NoError(t, err)
	require.NoError(t, repo.Update(context.Background(), "job-1", UpdateArchiveJobParams{}))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestArchiveJobRepositoryHasPendingAndRequeue(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewArchiveJobRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("status IN ('QUEUED', 'RUNNING')")).
		WithArgs(int64(42), models.ReasonAdminScript).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))

	pending, err := repo.HasPending(context.Background(), 42, models.ReasonAdminScript)
	require.NoError(t, err)
	require.False(t, pending)

	cutoff := time.Now().Add(-3 * time.Hour)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE assessment_archive_jobs SET status = 'QUEUED', started_at = NULL")).
		WithArgs(cutoff).
		WillReturnResult(sqlmock.NewResult(0, 2))

	requeued, err := repo.RequeueStale(context.Background(), cutoff)
	require.NoError(t, err)
	require.Equal(t, int64(2), requeued)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestArchiveJobRepositorySkipQueuedForActivity(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewArchiveJobRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE assessment_archive_jobs SET status = 'SKIPPED'")).
		WithArgs(int64(42), "activity deleted", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	skipped, err := repo.SkipQueuedForActivity(context.Background(), 42, "activity deleted")
	require.NoError(t, err)
	require.Equal(t, int64(1), skipped)
	require.NoError(t, mock.ExpectationsWereMet())
}
