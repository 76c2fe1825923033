package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/assessment-archive/internal/models"
)

func TestArchiveHistoryRepositoryCreate(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewArchiveHistoryRepository(db, "mdl_")

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO assessment_archive_history")).
		WithArgs(sqlmock.AnyArg(), int64(3), int64(42), models.ReasonAttemptSubmitted, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	record := &models.ArchiveHistoryRecord{CourseID: 3, ActivityID: 42, Reason: models.ReasonAttemptSubmitted}
	require.NoError(t, repo.Create(context.Background(), record))
	require.NotEmpty(t, record.ID)
	require.False(t, record.CreatedAt.IsZero())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestArchiveHistoryRepositoryExistsAndList(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewArchiveHistoryRepository(db, "mdl_")

	mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS (SELECT 1 FROM assessment_archive_history WHERE activity_id = $1)")).
		WithArgs(int64(42)).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	exists, err := repo.ExistsForActivity(context.Background(), 42)
	require.NoError(t, err)
	require.True(t, exists)

	rows := sqlmock.NewRows([]string{"id", "course_id", "activity_id", "reason", "created_at"}).
		AddRow("h-1", 3, 42, 2, time.Now())
	mock.ExpectQuery(regexp.QuoteMeta("FROM assessment_archive_history")).
		WithArgs(int64(42), 100).
		WillReturnRows(rows)

	records, err := repo.ListByActivity(context.Background(), 42, 0)
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Equal(t, models.ReasonAttemptGraded, records[0].Reason)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestArchiveHistoryRepositoryExistsRun(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewArchiveHistoryRepository(db, "mdl_")

	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	mock.ExpectQuery(regexp.QuoteMeta("WHERE activity_id = $1 AND reason = $2 AND created_at = $3")).
		WithArgs(int64(42), models.ReasonAttemptGraded, at).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))

	exists, err := repo.ExistsRun(context.Background(), 42, models.ReasonAttemptGraded, at)
	require.NoError(t, err)
	require.False(t, exists)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestArchiveHistoryRepositoryListNeverArchivedFiltersCourse(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewArchiveHistoryRepository(db, "mdl_")

	rows := sqlmock.NewRows([]string{"cmid", "course", "modname", "section", "sequence", "archive"}).
		AddRow(11, 3, "quiz", 1, "12,11", nil).
		AddRow(12, 3, "assign", 1, "12,11", true)
	mock.ExpectQuery(`FROM mdl_course_modules cm[\s\S]*NOT EXISTS \(SELECT 1 FROM assessment_archive_history h WHERE h.activity_id = cm.id\) AND cm.course = \$2`).
		WithArgs(pq.Array(models.ArchivableModules), int64(3)).
		WillReturnRows(rows)

	course := int64(3)
	activities, err := repo.ListNeverArchived(context.Background(), &course)
	require.NoError(t, err)
	require.Len(t, activities, 2)
	require.Nil(t, activities[0].Archive)
	require.True(t, *activities[1].Archive)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestArchiveHistoryRepositoryDeleteByActivity(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewArchiveHistoryRepository(db, "mdl_")

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM assessment_archive_history WHERE activity_id = $1")).
		WithArgs(int64(42)).
		WillReturnResult(sqlmock.NewResult(0, 2))

	deleted, err := repo.DeleteByActivity(context.Background(), 42)
	require.NoError(t, err)
	require.Equal(t, int64(2), deleted)
	require.NoError(t, mock.ExpectationsWereMet())
}
