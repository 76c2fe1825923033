package dto

import (
	"time"

	"github.com/noah-isme/assessment-archive/internal/models"
)

// Event names accepted by POST /events.
const (
	EventAttemptSubmitted = "attempt_submitted"
	EventAttemptGraded    = "attempt_graded"
	EventActivityDeleted  = "activity_deleted"
	EventActivityRestored = "activity_restored"
)

// EventRequest is forwarded by the LMS when an attempt or activity changes.
type EventRequest struct {
	Event      string `json:"event" validate:"required,oneof=attempt_submitted attempt_graded activity_deleted activity_restored"`
	ActivityID int64  `json:"activityId" validate:"required,gt=0"`
	// Archive carries the flag stored in the backup of a restored activity.
	Archive *bool `json:"archive,omitempty" validate:"required_if=Event activity_restored"`
}

// EventResponse reports what the event triggered.
type EventResponse struct {
	Event     string `json:"event"`
	Scheduled bool   `json:"scheduled"`
}

// ArchivingSettingRequest captures PUT /activities/:id/archiving.
type ArchivingSettingRequest struct {
	Enabled *bool   `json:"enabled" validate:"required"`
	Method  *string `json:"method,omitempty" validate:"omitempty,max=100"`
}

// ArchivingStatusResponse describes the effective policy of an activity.
type ArchivingStatusResponse struct {
	ActivityID int64   `json:"activityId"`
	Enabled    bool    `json:"enabled"`
	Source     string  `json:"source"`
	Explicit   *bool   `json:"explicit,omitempty"`
	Method     *string `json:"method,omitempty"`
	Archived   bool    `json:"archived"`
}

// ArchivingUpdateResponse reports the new policy and whether an initial run was scheduled.
type ArchivingUpdateResponse struct {
	ArchivingStatusResponse
	Scheduled bool `json:"scheduled"`
}

// ActivityHistoryResponse lists history records and recent jobs of an activity.
type ActivityHistoryResponse struct {
	ActivityID int64                         `json:"activityId"`
	Records    []models.ArchiveHistoryRecord `json:"records"`
	Jobs       []models.ArchiveJob           `json:"jobs"`
}

// NeverArchivedResponse lists archivable activities without history.
type NeverArchivedResponse struct {
	CourseID   *int64                  `json:"courseId,omitempty"`
	Activities []models.CourseActivity `json:"activities"`
}

// BundleResponse enriches a bundle with signed download URLs per file.
type BundleResponse struct {
	models.ArchiveBundle
	DownloadURLs map[string]string `json:"downloadUrls"`
	ExpiresAt    time.Time         `json:"expiresAt"`
}
