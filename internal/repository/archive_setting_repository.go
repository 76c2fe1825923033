package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/assessment-archive/internal/models"
)

// ArchiveSettingRepository persists explicit per-activity archive flags.
type ArchiveSettingRepository struct {
	db *sqlx.DB
}

// NewArchiveSettingRepository constructs the repository.
func NewArchiveSettingRepository(db *sqlx.DB) *ArchiveSettingRepository {
	return &ArchiveSettingRepository{db: db}
}

// GetByActivity returns the stored setting or sql.ErrNoRows when none exists.
func (r *ArchiveSettingRepository) GetByActivity(ctx context.Context, activityID int64) (*models.ArchivingSetting, error) {
	const query = `SELECT activity_id, archive, updated_at FROM assessment_archive_settings WHERE activity_id = $1`
	var setting models.ArchivingSetting
	if err := r.db.GetContext(ctx, &setting, query, activityID); err != nil {
		return nil, err
	}
	return &setting, nil
}

// Upsert creates or updates the flag of an activity.
func (r *ArchiveSettingRepository) Upsert(ctx context.Context, activityID int64, archive bool) error {
	setting := models.ArchivingSetting{ActivityID: activityID, Archive: archive, UpdatedAt: time.Now().UTC()}
	const query = `INSERT INTO assessment_archive_settings (activity_id, archive, updated_at)
		VALUES (:activity_id, :archive, :updated_at)
		ON CONFLICT (activity_id) DO UPDATE
		SET archive = EXCLUDED.archive,
		    updated_at = EXCLUDED.updated_at`
	if _, err := r.db.NamedExecContext(ctx, query, setting); err != nil {
		return fmt.Errorf("upsert archive setting: %w", err)
	}
	return nil
}

// Delete removes the explicit flag so the derived policy applies again.
func (r *ArchiveSettingRepository) Delete(ctx context.Context, activityID int64) error {
	const query = `DELETE FROM assessment_archive_settings WHERE activity_id = $1`
	if _, err := r.db.ExecContext(ctx, query, activityID); err != nil {
		return fmt.Errorf("delete archive setting: %w", err)
	}
	return nil
}
