package models

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ArchiveReason records why an archival run was triggered. The numeric code is part of bundle file names.
type ArchiveReason int

const (
	ReasonAttemptSubmitted          ArchiveReason = 1
	ReasonAttemptGraded             ArchiveReason = 2
	ReasonArchivingInitiallyEnabled ArchiveReason = 3
	ReasonAdminScript               ArchiveReason = 4
)

// AllArchiveReasons lists every known reason.
var AllArchiveReasons = []ArchiveReason{
	ReasonAttemptSubmitted,
	ReasonAttemptGraded,
	ReasonArchivingInitiallyEnabled,
	ReasonAdminScript,
}

// String renders the reason the way it appears in bundle metadata.
func (r ArchiveReason) String() string {
	switch r {
	case ReasonAttemptSubmitted:
		return "attempt_submitted"
	case ReasonAttemptGraded:
		return "attempt_graded"
	case ReasonArchivingInitiallyEnabled:
		return "archiving_initially_enabled"
	case ReasonAdminScript:
		return "admin_script"
	default:
		return "unknown"
	}
}

// Valid reports whether r is one of the known reasons.
func (r ArchiveReason) Valid() bool {
	return r >= ReasonAttemptSubmitted && r <= ReasonAdminScript
}

// ParseArchiveReason accepts either the numeric code or the metadata name.
func ParseArchiveReason(raw string) (ArchiveReason, error) {
	raw = strings.TrimSpace(strings.ToLower(raw))
	if code, err := strconv.Atoi(raw); err == nil {
		r := ArchiveReason(code)
		if !r.Valid() {
			return 0, fmt.Errorf("unknown archive reason %d", code)
		}
		return r, nil
	}
	for _, r := range AllArchiveReasons {
		if r.String() == raw {
			return r, nil
		}
	}
	return 0, fmt.Errorf("unknown archive reason %q", raw)
}

// ArchivingSetting is the explicit per-activity archive flag.
type ArchivingSetting struct {
	ActivityID int64     `db:"activity_id" json:"activityId"`
	Archive    bool      `db:"archive" json:"archive"`
	UpdatedAt  time.Time `db:"updated_at" json:"updatedAt"`
}

// ArchiveHistoryRecord is one row of the append-only history ledger.
type ArchiveHistoryRecord struct {
	ID         string        `db:"id" json:"id"`
	CourseID   int64         `db:"course_id" json:"courseId"`
	ActivityID int64         `db:"activity_id" json:"activityId"`
	Reason     ArchiveReason `db:"reason" json:"reason"`
	CreatedAt  time.Time     `db:"created_at" json:"createdAt"`
}

// ScheduleStatus is the value stored in the dedup cache.
type ScheduleStatus int

const (
	ScheduleDisabled  ScheduleStatus = 0
	ScheduleScheduled ScheduleStatus = 2
)

// ArchiveJobStatus captures the durable job lifecycle.
type ArchiveJobStatus string

const (
	ArchiveJobQueued   ArchiveJobStatus = "QUEUED"
	ArchiveJobRunning  ArchiveJobStatus = "RUNNING"
	ArchiveJobFinished ArchiveJobStatus = "FINISHED"
	ArchiveJobFailed   ArchiveJobStatus = "FAILED"
	ArchiveJobSkipped  ArchiveJobStatus = "SKIPPED"
)

// ArchiveJob is a queued archival run for one (activity, reason) pair.
type ArchiveJob struct {
	ID           string           `db:"id" json:"id"`
	ActivityID   int64            `db:"activity_id" json:"activityId"`
	Reason       ArchiveReason    `db:"reason" json:"reason"`
	RunAt        time.Time        `db:"run_at" json:"runAt"`
	Status       ArchiveJobStatus `db:"status" json:"status"`
	ErrorMessage *string          `db:"error_message" json:"errorMessage,omitempty"`
	CreatedAt    time.Time        `db:"created_at" json:"createdAt"`
	StartedAt    *time.Time       `db:"started_at" json:"startedAt,omitempty"`
	FinishedAt   *time.Time       `db:"finished_at" json:"finishedAt,omitempty"`
}

// ArchiveBundle describes one published bundle found on disk.
type ArchiveBundle struct {
	CourseID   int64         `json:"courseId"`
	ActivityID int64         `json:"activityId"`
	Reason     ArchiveReason `json:"reason"`
	Stem       string        `json:"stem"`
	Files      []string      `json:"files"`
	Signed     bool          `json:"signed"`
	CreatedAt  time.Time     `json:"createdAt"`
}
