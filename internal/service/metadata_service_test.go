package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/assessment-archive/internal/models"
)

func TestBuildMetadataDocument(t *testing.T) {
	lms := newLMSStub()
	methods := methodProviderStub{17: "written_exam"}
	svc := NewMetadataService(lms, methods, MetadataConfig{SiteShortName: "campus", ProfileFields: []string{"matriculation"}}, nil)
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	doc, err := svc.BuildMetadata(context.Background(), &ArchiveExport{
		Course:   lms.courses[3],
		Activity: lms.activities[17],
		Reason:   models.ReasonAttemptGraded,
	}, at)
	require.NoError(t, err)

	raw, err := svc.Encode(doc)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(string(raw), "{\n  \""))

	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &out))
	require.Equal(t, "2026-01-02T03:04:05Z", out["date"])
	require.Equal(t, float64(at.Unix()), out["date_timestamp"])
	require.Equal(t, "campus", out["site_short_name"])
	require.Equal(t, "attempt_graded", out["archive_reason"])
	require.Equal(t, map[string]interface{}{
		"id": float64(3), "name": "Linear Algebra", "short_name": "LA", "idnumber": "LA-2026",
	}, out["course"])
	require.Equal(t, map[string]interface{}{
		"cmid": float64(17), "instanceid": float64(5), "idnumber": "final", "type": "quiz",
		"name": "Final exam", "assessment_method": "written_exam",
	}, out["activity"])

	users := out["users"].([]interface{})
	require.Len(t, users, 2)
	ada := users[0].(map[string]interface{})
	require.Equal(t, "Ada Lovelace", ada["full_name"])
	require.Equal(t, "King", ada["middlename"])
	require.Equal(t, "4711", ada["matriculation"])
	require.NotContains(t, ada, "secret")
	require.NotContains(t, ada, "alternatename")
	require.Equal(t, []interface{}{"Group A", "Group B"}, ada["groups"])

	alan := users[1].(map[string]interface{})
	require.Equal(t, []interface{}{}, alan["groups"])
	require.NotContains(t, alan, "matriculation")
}

func TestBuildMetadataOmitsMethodWithoutProvider(t *testing.T) {
	lms := newLMSStub()
	svc := NewMetadataService(lms, nil, MetadataConfig{}, nil)

	doc, err := svc.BuildMetadata(context.Background(), &ArchiveExport{Course: lms.courses[3], Activity: lms.activities[18]}, time.Now())
	require.NoError(t, err)
	raw, err := svc.Encode(doc)
	require.NoError(t, err)
	require.NotContains(t, string(raw), "assessment_method")
	require.Contains(t, string(raw), `"archive_reason": "unknown"`)
}

func TestMetadataEnrichersRunInOrderAndFailuresAreSkipped(t *testing.T) {
	lms := newLMSStub()
	svc := NewMetadataService(lms, nil, MetadataConfig{}, nil)
	var order []int
	svc.RegisterEnricher(func(ctx context.Context, export *ArchiveExport, doc *models.ArchiveMetadata) error {
		order = append(order, 1)
		doc.Extra = map[string]interface{}{"exam_office": "A-12"}
		return nil
	})
	svc.RegisterEnricher(func(ctx context.Context, export *ArchiveExport, doc *models.ArchiveMetadata) error {
		order = append(order, 2)
		panic("broken enricher")
	})
	svc.RegisterEnricher(func(ctx context.Context, export *ArchiveExport, doc *models.ArchiveMetadata) error {
		order = append(order, 3)
		doc.SiteShortName = "renamed"
		return errors.New("partial failure")
	})

	doc, err := svc.BuildMetadata(context.Background(), &ArchiveExport{Course: lms.courses[3], Activity: lms.activities[17]}, time.Now())
	require.NoError(t, err)
	require.Equal(t, []int{1, 2, 3}, order)

	raw, err := svc.Encode(doc)
	require.NoError(t, err)
	require.Contains(t, string(raw), `"exam_office": "A-12"`)
	require.Contains(t, string(raw), `"site_short_name": "renamed"`)
}
