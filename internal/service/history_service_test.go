package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/assessment-archive/internal/models"
)

func TestSortCourseOrderUsesSectionSequence(t *testing.T) {
	activities := []models.CourseActivity{
		{ActivityID: 30, CourseID: 2, Section: 0, Sequence: "30"},
		{ActivityID: 12, CourseID: 1, Section: 1, Sequence: "15,12,11"},
		{ActivityID: 11, CourseID: 1, Section: 1, Sequence: "15,12,11"},
		{ActivityID: 15, CourseID: 1, Section: 1, Sequence: "15,12,11"},
		{ActivityID: 9, CourseID: 1, Section: 0, Sequence: ""},
	}
	SortCourseOrder(activities)

	ids := make([]int64, 0, len(activities))
	for _, a := range activities {
		ids = append(ids, a.ActivityID)
	}
	require.Equal(t, []int64{9, 15, 12, 11, 30}, ids)
}

func TestHistoryListByActivityIncludesJobs(t *testing.T) {
	ctx := context.Background()
	history := &historyStub{records: []models.ArchiveHistoryRecord{{ID: "h1", ActivityID: 4}}}
	jobs := newJobStoreStub()
	require.NoError(t, jobs.Create(ctx, &models.ArchiveJob{ActivityID: 4, Reason: models.ReasonAttemptGraded}))
	svc := NewHistoryService(history, jobs, nil)

	resp, err := svc.ListByActivity(ctx, 4, 10)
	require.NoError(t, err)
	require.Len(t, resp.Records, 1)
	require.Len(t, resp.Jobs, 1)

	resp, err = svc.ListByActivity(ctx, 5, 10)
	require.NoError(t, err)
	require.NotNil(t, resp.Records)
	require.NotNil(t, resp.Jobs)
	require.Empty(t, resp.Records)
}

func TestListArchivableRequiresReader(t *testing.T) {
	_, err := NewHistoryService(&historyStub{}, nil, nil).ListArchivable(context.Background(), nil)
	require.Error(t, err)
}
