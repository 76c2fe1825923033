package service

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/noah-isme/assessment-archive/pkg/export"
)

type decisionEvaluator interface {
	Evaluate(ctx context.Context, activityID int64) (*PolicyDecision, error)
}

// Coverage report columns.
const (
	CoverageColumnCourse   = "course"
	CoverageColumnActivity = "activity"
	CoverageColumnType     = "type"
	CoverageColumnSection  = "section"
	CoverageColumnEnabled  = "archiving"
	CoverageColumnSource   = "source"
	CoverageColumnArchived = "archived"
)

// CoverageService reports which archivable activities are enabled and archived.
type CoverageService struct {
	source archivableSource
	policy decisionEvaluator
	now    func() time.Time
}

// NewCoverageService constructs the report builder.
func NewCoverageService(source archivableSource, policy decisionEvaluator) *CoverageService {
	return &CoverageService{source: source, policy: policy, now: time.Now}
}

// Build returns one row per archivable activity, in course order.
func (s *CoverageService) Build(ctx context.Context, courseID *int64) (export.Dataset, error) {
	activities, err := s.source.ListArchivable(ctx, courseID)
	if err != nil {
		return export.Dataset{}, err
	}
	never, err := s.source.ListNeverArchived(ctx, courseID)
	if err != nil {
		return export.Dataset{}, err
	}
	pending := make(map[int64]struct{}, len(never))
	for _, a := range never {
		pending[a.ActivityID] = struct{}{}
	}

	title := "Assessment archive coverage"
	if courseID != nil {
		title = fmt.Sprintf("%s, course %d", title, *courseID)
	}
	data := export.Dataset{
		Title: fmt.Sprintf("%s (%s)", title, s.now().UTC().Format(time.RFC3339)),
		Headers: []string{
			CoverageColumnCourse,
			CoverageColumnActivity,
			CoverageColumnType,
			CoverageColumnSection,
			CoverageColumnEnabled,
			CoverageColumnSource,
			CoverageColumnArchived,
		},
		Rows: make([]map[string]string, 0, len(activities)),
	}
	for _, activity := range activities {
		decision, err := s.policy.Evaluate(ctx, activity.ActivityID)
		if err != nil {
			return export.Dataset{}, err
		}
		_, notArchived := pending[activity.ActivityID]
		data.Rows = append(data.Rows, map[string]string{
			CoverageColumnCourse:   strconv.FormatInt(activity.CourseID, 10),
			CoverageColumnActivity: strconv.FormatInt(activity.ActivityID, 10),
			CoverageColumnType:     activity.ModName,
			CoverageColumnSection:  strconv.Itoa(activity.Section),
			CoverageColumnEnabled:  yesNo(decision.Enabled),
			CoverageColumnSource:   decision.Source,
			CoverageColumnArchived: yesNo(!notArchived),
		})
	}
	return data, nil
}

// Render builds the report and encodes it as format.
func (s *CoverageService) Render(ctx context.Context, courseID *int64, format export.Format) ([]byte, error) {
	renderer, err := export.NewRenderer(format)
	if err != nil {
		return nil, err
	}
	data, err := s.Build(ctx, courseID)
	if err != nil {
		return nil, err
	}
	return renderer.Render(data)
}

func yesNo(v bool) string {
	if v {
		return "yes"
	}
	return "no"
}
