package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/assessment-archive/internal/dto"
	"github.com/noah-isme/assessment-archive/internal/models"
	appErrors "github.com/noah-isme/assessment-archive/pkg/errors"
)

type scheduleCall struct {
	activityID int64
	reason     models.ArchiveReason
	delay      time.Duration
}

type archivalSchedulerStub struct {
	calls []scheduleCall
}

func (s *archivalSchedulerStub) ScheduleArchival(ctx context.Context, activityID int64, reason models.ArchiveReason, delay time.Duration) (bool, error) {
	s.calls = append(s.calls, scheduleCall{activityID, reason, delay})
	return true, nil
}

type forgetterStub struct {
	forgotten []int64
	restored  map[int64]bool
}

func (f *forgetterStub) ForgetActivity(ctx context.Context, activityID int64) error {
	f.forgotten = append(f.forgotten, activityID)
	return nil
}

func (f *forgetterStub) RestoreArchivingSetting(ctx context.Context, activityID int64, archive bool) error {
	if f.restored == nil {
		f.restored = map[int64]bool{}
	}
	f.restored[activityID] = archive
	return nil
}

func TestObserverUsesConfiguredDelays(t *testing.T) {
	ctx := context.Background()
	scheduler := &archivalSchedulerStub{}
	observer := NewObserverService(scheduler, &forgetterStub{}, ObserverConfig{
		WaitAfterAttempt: 12 * time.Hour,
		WaitAfterGrading: 7 * 24 * time.Hour,
	}, nil)

	_, err := observer.HandleEvent(ctx, dto.EventRequest{Event: dto.EventAttemptSubmitted, ActivityID: 1})
	require.NoError(t, err)
	_, err = observer.HandleEvent(ctx, dto.EventRequest{Event: dto.EventAttemptGraded, ActivityID: 1})
	require.NoError(t, err)
	_, err = observer.ArchivingEnabled(ctx, 1)
	require.NoError(t, err)

	require.Equal(t, []scheduleCall{
		{1, models.ReasonAttemptSubmitted, 12 * time.Hour},
		{1, models.ReasonAttemptGraded, 7 * 24 * time.Hour},
		{1, models.ReasonArchivingInitiallyEnabled, 0},
	}, scheduler.calls)
}

func TestObserverZeroWaitDisablesTrigger(t *testing.T) {
	scheduler := &archivalSchedulerStub{}
	observer := NewObserverService(scheduler, &forgetterStub{}, ObserverConfig{WaitAfterGrading: time.Hour}, nil)

	scheduled, err := observer.AttemptSubmitted(context.Background(), 3)
	require.NoError(t, err)
	require.False(t, scheduled)
	require.Empty(t, scheduler.calls)
}

func TestObserverActivityDeleted(t *testing.T) {
	forgetter := &forgetterStub{}
	observer := NewObserverService(&archivalSchedulerStub{}, forgetter, ObserverConfig{}, nil)

	scheduled, err := observer.HandleEvent(context.Background(), dto.EventRequest{Event: dto.EventActivityDeleted, ActivityID: 9})
	require.NoError(t, err)
	require.False(t, scheduled)
	require.Equal(t, []int64{9}, forgetter.forgotten)
}

func TestObserverRejectsUnknownEvent(t *testing.T) {
	observer := NewObserverService(&archivalSchedulerStub{}, &forgetterStub{}, ObserverConfig{}, nil)

	_, err := observer.HandleEvent(context.Background(), dto.EventRequest{Event: "course_viewed", ActivityID: 1})
	require.Error(t, err)
	require.True(t, errors.Is(err, appErrors.ErrValidation))
}

func TestObserverActivityRestored(t *testing.T) {
	ctx := context.Background()
	settings := &forgetterStub{}
	scheduler := &archivalSchedulerStub{}
	observer := NewObserverService(scheduler, settings, ObserverConfig{WaitAfterAttempt: time.Hour}, nil)

	archive := true
	scheduled, err := observer.HandleEvent(ctx, dto.EventRequest{Event: dto.EventActivityRestored, ActivityID: 21, Archive: &archive})
	require.NoError(t, err)
	require.False(t, scheduled)
	require.Equal(t, map[int64]bool{21: true}, settings.restored)
	require.Empty(t, scheduler.calls)

	_, err = observer.HandleEvent(ctx, dto.EventRequest{Event: dto.EventActivityRestored, ActivityID: 22})
	require.True(t, errors.Is(err, appErrors.ErrValidation))
}
