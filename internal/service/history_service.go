package service

import (
	"context"
	"sort"
	"strconv"
	"strings"

	"github.com/noah-isme/assessment-archive/internal/dto"
	"github.com/noah-isme/assessment-archive/internal/models"
	appErrors "github.com/noah-isme/assessment-archive/pkg/errors"
)

type historyReader interface {
	ExistsForActivity(ctx context.Context, activityID int64) (bool, error)
	ListByActivity(ctx context.Context, activityID int64, limit int) ([]models.ArchiveHistoryRecord, error)
	ListNeverArchived(ctx context.Context, courseID *int64) ([]models.CourseActivity, error)
}

type jobLister interface {
	ListByActivity(ctx context.Context, activityID int64, limit int) ([]models.ArchiveJob, error)
}

type archivableLister interface {
	ListArchivable(ctx context.Context, courseID *int64) ([]models.CourseActivity, error)
}

// HistoryService answers questions about past archival runs.
type HistoryService struct {
	history historyReader
	jobs    jobLister
	lms     archivableLister
}

// NewHistoryService constructs the history service. jobs and lms may be nil.
func NewHistoryService(history historyReader, jobs jobLister, lms archivableLister) *HistoryService {
	return &HistoryService{history: history, jobs: jobs, lms: lms}
}

// HasBeenArchived reports whether at least one bundle was recorded for the activity.
func (s *HistoryService) HasBeenArchived(ctx context.Context, activityID int64) (bool, error) {
	exists, err := s.history.ExistsForActivity(ctx, activityID)
	if err != nil {
		return false, appErrors.Internal(err, "failed to check archive history")
	}
	return exists, nil
}

// ListNeverArchived returns archivable activities without history, in course order.
func (s *HistoryService) ListNeverArchived(ctx context.Context, courseID *int64) ([]models.CourseActivity, error) {
	activities, err := s.history.ListNeverArchived(ctx, courseID)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to list never archived activities")
	}
	SortCourseOrder(activities)
	return activities, nil
}

// ListArchivable returns every archivable activity, in course order.
func (s *HistoryService) ListArchivable(ctx context.Context, courseID *int64) ([]models.CourseActivity, error) {
	if s.lms == nil {
		return nil, appErrors.Clone(appErrors.ErrInternal, "lms reader not configured")
	}
	activities, err := s.lms.ListArchivable(ctx, courseID)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to list archivable activities")
	}
	SortCourseOrder(activities)
	return activities, nil
}

// ListByActivity returns the ledger rows and recent jobs of an activity.
func (s *HistoryService) ListByActivity(ctx context.Context, activityID int64, limit int) (*dto.ActivityHistoryResponse, error) {
	records, err := s.history.ListByActivity(ctx, activityID, limit)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to list archive history")
	}
	resp := &dto.ActivityHistoryResponse{ActivityID: activityID, Records: records}
	if s.jobs != nil {
		jobs, err := s.jobs.ListByActivity(ctx, activityID, limit)
		if err != nil {
			return nil, appErrors.Internal(err, "failed to list archive jobs")
		}
		resp.Jobs = jobs
	}
	if resp.Records == nil {
		resp.Records = []models.ArchiveHistoryRecord{}
	}
	if resp.Jobs == nil {
		resp.Jobs = []models.ArchiveJob{}
	}
	return resp, nil
}

// SortCourseOrder orders activities by course, section and position within the section.
func SortCourseOrder(activities []models.CourseActivity) {
	positions := make(map[int64]int, len(activities))
	for _, a := range activities {
		positions[a.ActivityID] = sequencePosition(a.Sequence, a.ActivityID)
	}
	sort.SliceStable(activities, func(i, j int) bool {
		a, b := activities[i], activities[j]
		if a.CourseID != b.CourseID {
			return a.CourseID < b.CourseID
		}
		if a.Section != b.Section {
			return a.Section < b.Section
		}
		pa, pb := positions[a.ActivityID], positions[b.ActivityID]
		if pa != pb {
			return pa < pb
		}
		return a.ActivityID < b.ActivityID
	})
}

func sequencePosition(sequence string, activityID int64) int {
	for i, part := range strings.Split(sequence, ",") {
		id, err := strconv.ParseInt(strings.TrimSpace(part), 10, 64)
		if err == nil && id == activityID {
			return i
		}
	}
	return int(^uint(0) >> 1)
}
