package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/assessment-archive/internal/models"
	appErrors "github.com/noah-isme/assessment-archive/pkg/errors"
)

func newTestPolicy(t *testing.T, methods AssessmentMethodProvider) (*PolicyService, *settingStoreStub, *ScheduleCache) {
	t.Helper()
	cache, _ := newTestScheduleCache(t)
	settings := newSettingStoreStub()
	cfg := PolicyConfig{ForceArchive: []string{"exam", "both"}, ForceNoArchive: []string{"practice", "both"}}
	return NewPolicyService(settings, methods, cache, nil, nil, cfg, nil), settings, cache
}

func TestPolicyPrecedence(t *testing.T) {
	ctx := context.Background()
	methods := methodProviderStub{1: "exam", 2: "practice", 3: "both", 4: "other"}
	policy, settings, _ := newTestPolicy(t, methods)

	settings.settings[1] = false
	settings.settings[2] = true
	settings.settings[4] = true

	cases := []struct {
		activity int64
		want     bool
		source   string
	}{
		{1, true, PolicySourceMethodArchive},
		{2, false, PolicySourceMethodNoArchive},
		{3, true, PolicySourceMethodArchive},
		{4, true, PolicySourceSetting},
		{5, false, PolicySourceDefault},
	}
	for _, tc := range cases {
		decision, err := policy.Evaluate(ctx, tc.activity)
		require.NoError(t, err)
		require.Equal(t, tc.want, decision.Enabled, "activity %d", tc.activity)
		require.Equal(t, tc.source, decision.Source, "activity %d", tc.activity)
	}
}

func TestPolicyIgnoresMethodsWithoutProvider(t *testing.T) {
	policy, settings, _ := newTestPolicy(t, nil)
	settings.settings[1] = true

	enabled, err := policy.IsArchivingEnabled(context.Background(), 1)
	require.NoError(t, err)
	require.True(t, enabled)

	enabled, err = policy.IsArchivingEnabled(context.Background(), 2)
	require.NoError(t, err)
	require.False(t, enabled)
}

func TestPolicySetArchivingEnabledIsIdempotent(t *testing.T) {
	ctx := context.Background()
	policy, settings, _ := newTestPolicy(t, nil)

	flipped, err := policy.SetArchivingEnabled(ctx, 7, true, nil)
	require.NoError(t, err)
	require.True(t, flipped)

	flipped, err = policy.SetArchivingEnabled(ctx, 7, true, nil)
	require.NoError(t, err)
	require.False(t, flipped)

	require.True(t, settings.settings[7])
	enabled, err := policy.IsArchivingEnabled(ctx, 7)
	require.NoError(t, err)
	require.True(t, enabled)

	flipped, err = policy.SetArchivingEnabled(ctx, 7, false, nil)
	require.NoError(t, err)
	require.False(t, flipped)
	enabled, err = policy.IsArchivingEnabled(ctx, 7)
	require.NoError(t, err)
	require.False(t, enabled)
}

func TestPolicyForcedMethodRemovesOverride(t *testing.T) {
	ctx := context.Background()
	policy, settings, _ := newTestPolicy(t, methodProviderStub{9: "practice"})
	settings.settings[9] = true

	flipped, err := policy.SetArchivingEnabled(ctx, 9, true, nil)
	require.NoError(t, err)
	require.False(t, flipped)
	_, exists := settings.settings[9]
	require.False(t, exists)
	require.Equal(t, 1, settings.deletes)
	require.Zero(t, settings.upserts)

	method := "exam"
	flipped, err = policy.SetArchivingEnabled(ctx, 10, false, &method)
	require.NoError(t, err)
	require.False(t, flipped)
	_, exists = settings.settings[10]
	require.False(t, exists)
}

func TestPolicySetInvalidatesEveryReason(t *testing.T) {
	ctx := context.Background()
	cache, mr := newTestScheduleCache(t)
	policy := NewPolicyService(newSettingStoreStub(), nil, cache, nil, nil, PolicyConfig{}, nil)
	seedScheduleKeys(t, mr, 3)
	seedScheduleKeys(t, mr, 4)

	_, err := policy.SetArchivingEnabled(ctx, 3, false, nil)
	require.NoError(t, err)

	for _, r := range models.AllArchiveReasons {
		require.False(t, mr.Exists(ScheduleKey(3, r)))
		require.True(t, mr.Exists(ScheduleKey(4, r)))
	}
}

func TestPolicyForgetActivity(t *testing.T) {
	ctx := context.Background()
	cache, mr := newTestScheduleCache(t)
	settings := newSettingStoreStub()
	history := &historyStub{records: []models.ArchiveHistoryRecord{{ActivityID: 5}, {ActivityID: 6}}}
	jobs := newJobStoreStub()
	require.NoError(t, jobs.Create(ctx, &models.ArchiveJob{ActivityID: 5, Reason: models.ReasonAttemptGraded}))
	settings.settings[5] = true
	seedScheduleKeys(t, mr, 5)

	policy := NewPolicyService(settings, nil, cache, history, jobs, PolicyConfig{}, nil)
	require.NoError(t, policy.ForgetActivity(ctx, 5))

	_, exists := settings.settings[5]
	require.False(t, exists)
	require.Len(t, history.records, 1)
	require.Equal(t, int64(6), history.records[0].ActivityID)
	require.Equal(t, models.ArchiveJobSkipped, jobs.status("job-1"))
	require.False(t, mr.Exists(ScheduleKey(5, models.ReasonAttemptSubmitted)))
}

func TestPolicyRestoreAndReset(t *testing.T) {
	ctx := context.Background()
	policy, settings, _ := newTestPolicy(t, nil)

	require.NoError(t, policy.RestoreArchivingSetting(ctx, 11, true))
	require.True(t, settings.settings[11])

	require.NoError(t, policy.ResetArchivingEnabled(ctx, 11))
	_, exists := settings.settings[11]
	require.False(t, exists)
}

func TestPolicySurfacesStorageFailures(t *testing.T) {
	policy, settings, _ := newTestPolicy(t, nil)
	settings.err = errors.New("db down")

	_, err := policy.IsArchivingEnabled(context.Background(), 1)
	require.Error(t, err)
	require.True(t, errors.Is(err, appErrors.ErrInternal))
}
