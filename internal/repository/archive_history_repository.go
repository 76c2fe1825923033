package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/assessment-archive/internal/models"
)

// ArchiveHistoryRepository stores the append-only history ledger.
type ArchiveHistoryRepository struct {
	db     *sqlx.DB
	prefix string
}

// NewArchiveHistoryRepository constructs the repository. prefix is the LMS table prefix used
// when joining course modules.
func NewArchiveHistoryRepository(db *sqlx.DB, prefix string) *ArchiveHistoryRepository {
	return &ArchiveHistoryRepository{db: db, prefix: prefix}
}

// Create appends a record for a completed archival run.
func (r *ArchiveHistoryRepository) Create(ctx context.Context, record *models.ArchiveHistoryRecord) error {
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO assessment_archive_history (id, course_id, activity_id, reason, created_at)
	VALUES (:id, :course_id, :activity_id, :reason, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, record); err != nil {
		return fmt.Errorf("create archive history: %w", err)
	}
	return nil
}

// ExistsForActivity reports whether any run of the activity was recorded.
func (r *ArchiveHistoryRepository) ExistsForActivity(ctx context.Context, activityID int64) (bool, error) {
	const query = `SELECT EXISTS (SELECT 1 FROM assessment_archive_history WHERE activity_id = $1)`
	var exists bool
	if err := r.db.GetContext(ctx, &exists, query, activityID); err != nil {
		return false, fmt.Errorf("check archive history: %w", err)
	}
	return exists, nil
}

// ExistsRun reports whether the run identified by activity, reason and timestamp was recorded.
func (r *ArchiveHistoryRepository) ExistsRun(ctx context.Context, activityID int64, reason models.ArchiveReason, createdAt time.Time) (bool, error) {
	const query = `SELECT EXISTS (SELECT 1 FROM assessment_archive_history
	WHERE activity_id = $1 AND reason = $2 AND created_at = $3)`
	var exists bool
	if err := r.db.GetContext(ctx, &exists, query, activityID, reason, createdAt.UTC()); err != nil {
		return false, fmt.Errorf("check archive run: %w", err)
	}
	return exists, nil
}

// ListByActivity returns the records of an activity, newest first.
func (r *ArchiveHistoryRepository) ListByActivity(ctx context.Context, activityID int64, limit int) ([]models.ArchiveHistoryRecord, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	const query = `SELECT id, course_id, activity_id, reason, created_at FROM assessment_archive_history
	WHERE activity_id = $1 ORDER BY created_at DESC LIMIT $2`
	var records []models.ArchiveHistoryRecord
	if err := r.db.SelectContext(ctx, &records, query, activityID, limit); err != nil {
		return nil, fmt.Errorf("list archive history: %w", err)
	}
	return records, nil
}

// DeleteByActivity removes the records of a deleted activity.
func (r *ArchiveHistoryRepository) DeleteByActivity(ctx context.Context, activityID int64) (int64, error) {
	const query = `DELETE FROM assessment_archive_history WHERE activity_id = $1`
	res, err := r.db.ExecContext(ctx, query, activityID)
	if err != nil {
		return 0, fmt.Errorf("delete archive history: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("check archive history delete rows: %w", err)
	}
	return affected, nil
}

// ListNeverArchived returns archivable activities without any history record, optionally
// restricted to one course. Rows come sorted by course and section; callers apply the
// in-section sequence order.
func (r *ArchiveHistoryRepository) ListNeverArchived(ctx context.Context, courseID *int64) ([]models.CourseActivity, error) {
	builder := strings.Builder{}
	builder.WriteString(fmt.Sprintf(`SELECT cm.id AS cmid, cm.course AS course, md.name AS modname, cs.section AS section,
       COALESCE(cs.sequence, '') AS sequence, s.archive AS archive
	FROM %[1]scourse_modules cm
	INNER JOIN %[1]smodules md ON md.id = cm.module
	INNER JOIN %[1]scourse_sections cs ON cs.id = cm.section
	LEFT JOIN assessment_archive_settings s ON s.activity_id = cm.id
	WHERE md.name = ANY($1)
	AND NOT EXISTS (SELECT 1 FROM assessment_archive_history h WHERE h.activity_id = cm.id)`, r.prefix))
	args := []interface{}{pq.Array(models.ArchivableModules)}
	if courseID != nil {
		args = append(args, *courseID)
		builder.WriteString(fmt.Sprintf(" AND cm.course = $%d", len(args)))
	}
	builder.WriteString(" ORDER BY cm.course ASC, cs.section ASC, cm.id ASC")

	var activities []models.CourseActivity
	if err := r.db.SelectContext(ctx, &activities, builder.String(), args...); err != nil {
		return nil, fmt.Errorf("list never archived activities: %w", err)
	}
	return activities, nil
}
