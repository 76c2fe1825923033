package service

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/assessment-archive/internal/models"
	"github.com/noah-isme/assessment-archive/internal/repository"
)

func newTestScheduleCache(t *testing.T) (*ScheduleCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	cache := NewCacheService(repository.NewCacheRepository(client, nil), nil, time.Minute, nil, true)
	return NewScheduleCache(cache, time.Hour), mr
}

func seedScheduleKeys(t *testing.T, mr *miniredis.Miniredis, activityID int64) {
	t.Helper()
	for _, r := range models.AllArchiveReasons {
		require.NoError(t, mr.Set(ScheduleKey(activityID, r), "2"))
	}
}

type settingStoreStub struct {
	mu       sync.Mutex
	settings map[int64]bool
	err      error
	upserts  int
	deletes  int
}

func newSettingStoreStub() *settingStoreStub {
	return &settingStoreStub{settings: make(map[int64]bool)}
}

func (s *settingStoreStub) GetByActivity(ctx context.Context, activityID int64) (*models.ArchivingSetting, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	archive, ok := s.settings[activityID]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &models.ArchivingSetting{ActivityID: activityID, Archive: archive, UpdatedAt: time.Now()}, nil
}

func (s *settingStoreStub) Upsert(ctx context.Context, activityID int64, archive bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.upserts++
	s.settings[activityID] = archive
	return nil
}

func (s *settingStoreStub) Delete(ctx context.Context, activityID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.deletes++
	delete(s.settings, activityID)
	return nil
}

type methodProviderStub map[int64]string

func (m methodProviderStub) GetAssessmentMethod(ctx context.Context, activityID int64) (string, bool, error) {
	method, ok := m[activityID]
	return method, ok, nil
}

type historyStub struct {
	mu         sync.Mutex
	records    []models.ArchiveHistoryRecord
	activities []models.CourseActivity
	createErr  error
}

func (h *historyStub) Create(ctx context.Context, record *models.ArchiveHistoryRecord) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.createErr != nil {
		return h.createErr
	}
	record.ID = fmt.Sprintf("hist-%d", len(h.records)+1)
	h.records = append(h.records, *record)
	return nil
}

func (h *historyStub) ExistsForActivity(ctx context.Context, activityID int64) (bool, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, r := range h.records {
		if r.ActivityID == activityID {
			return true, nil
		}
	}
	return false, nil
}

func (h *historyStub) ExistsRun(ctx context.Context, activityID int64, reason models.ArchiveReason, createdAt time.Time) (bool, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, r := range h.records {
		if r.ActivityID == activityID && r.Reason == reason && r.CreatedAt.Equal(createdAt) {
			return true, nil
		}
	}
	return false, nil
}

func (h *historyStub) ListByActivity(ctx context.Context, activityID int64, limit int) ([]models.ArchiveHistoryRecord, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []models.ArchiveHistoryRecord
	for _, r := range h.records {
		if r.ActivityID == activityID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (h *historyStub) DeleteByActivity(ctx context.Context, activityID int64) (int64, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	kept := h.records[:0]
	var deleted int64
	for _, r := range h.records {
		if r.ActivityID == activityID {
			deleted++
			continue
		}
		kept = append(kept, r)
	}
	h.records = kept
	return deleted, nil
}

func (h *historyStub) ListNeverArchived(ctx context.Context, courseID *int64) ([]models.CourseActivity, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	archived := make(map[int64]bool)
	for _, r := range h.records {
		archived[r.ActivityID] = true
	}
	var out []models.CourseActivity
	for _, a := range h.activities {
		if archived[a.ActivityID] || (courseID != nil && a.CourseID != *courseID) {
			continue
		}
		out = append(out, a)
	}
	return out, nil
}

func (h *historyStub) ListArchivable(ctx context.Context, courseID *int64) ([]models.CourseActivity, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []models.CourseActivity
	for _, a := range h.activities {
		if courseID == nil || a.CourseID == *courseID {
			out = append(out, a)
		}
	}
	return out, nil
}

type jobStoreStub struct {
	mu        sync.Mutex
	jobs      map[string]*models.ArchiveJob
	order     []string
	createErr error
	updates   []repository.UpdateArchiveJobParams
	requeued  int64
}

func newJobStoreStub() *jobStoreStub {
	return &jobStoreStub{jobs: make(map[string]*models.ArchiveJob)}
}

func (s *jobStoreStub) Create(ctx context.Context, job *models.ArchiveJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.createErr != nil {
		return s.createErr
	}
	if job.ID == "" {
		job.ID = fmt.Sprintf("job-%d", len(s.order)+1)
	}
	if job.Status == "" {
		job.Status = models.ArchiveJobQueued
	}
	copy := *job
	s.jobs[job.ID] = &copy
	s.order = append(s.order, job.ID)
	return nil
}

func (s *jobStoreStub) GetByID(ctx context.Context, id string) (*models.ArchiveJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copy := *job
	return &copy, nil
}

func (s *jobStoreStub) HasPending(ctx context.Context, activityID int64, reason models.ArchiveReason) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, job := range s.jobs {
		if job.ActivityID == activityID && job.Reason == reason &&
			(job.Status == models.ArchiveJobQueued || job.Status == models.ArchiveJobRunning) {
			return true, nil
		}
	}
	return false, nil
}

func (s *jobStoreStub) ClaimDue(ctx context.Context, now time.Time, limit int) ([]models.ArchiveJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var claimed []models.ArchiveJob
	for _, id := range s.order {
		job := s.jobs[id]
		if len(claimed) >= limit {
			break
		}
		if job.Status != models.ArchiveJobQueued || job.RunAt.After(now) {
			continue
		}
		job.Status = models.ArchiveJobRunning
		started := now
		job.StartedAt = &started
		claimed = append(claimed, *job)
	}
	return claimed, nil
}

func (s *jobStoreStub) Update(ctx context.Context, id string, params repository.UpdateArchiveJobParams) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return sql.ErrNoRows
	}
	s.updates = append(s.updates, params)
	if params.Status != nil {
		job.Status = *params.Status
	}
	if params.ErrorMessage != nil {
		msg := *params.ErrorMessage
		job.ErrorMessage = &msg
	}
	if params.FinishedAt != nil {
		at := *params.FinishedAt
		job.FinishedAt = &at
	}
	return nil
}

func (s *jobStoreStub) RequeueStale(ctx context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, job := range s.jobs {
		if job.Status == models.ArchiveJobRunning && job.StartedAt != nil && job.StartedAt.Before(cutoff) {
			job.Status = models.ArchiveJobQueued
			job.StartedAt = nil
			n++
		}
	}
	s.requeued += n
	return n, nil
}

func (s *jobStoreStub) SkipQueuedForActivity(ctx context.Context, activityID int64, reason string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, job := range s.jobs {
		if job.ActivityID == activityID && job.Status == models.ArchiveJobQueued {
			job.Status = models.ArchiveJobSkipped
			msg := reason
			job.ErrorMessage = &msg
			n++
		}
	}
	return n, nil
}

func (s *jobStoreStub) ListByActivity(ctx context.Context, activityID int64, limit int) ([]models.ArchiveJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.ArchiveJob
	for _, id := range s.order {
		if job := s.jobs[id]; job.ActivityID == activityID {
			out = append(out, *job)
		}
	}
	return out, nil
}

func (s *jobStoreStub) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.jobs)
}

func (s *jobStoreStub) status(id string) models.ArchiveJobStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.jobs[id].Status
}
