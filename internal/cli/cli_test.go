package cli

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/assessment-archive/internal/models"
	"github.com/noah-isme/assessment-archive/internal/service"
)

func TestFormatClock(t *testing.T) {
	require.Equal(t, "00:00:00", formatClock(0))
	require.Equal(t, "00:02:00", formatClock(2*time.Minute))
	require.Equal(t, "01:01:01", formatClock(time.Hour+time.Minute+time.Second))
	require.Equal(t, "27:00:00", formatClock(27*time.Hour))
}

func TestScheduleReport(t *testing.T) {
	var buf bytes.Buffer
	writeScheduleHeading(&buf, service.AdminScheduleOptions{NeverArchived: true, Interval: time.Minute})
	writeScheduleReport(&buf, &service.AdminScheduleResult{
		Candidates:  []int64{17, 18, 19, 20},
		Scheduled:   3,
		Skipped:     1,
		FinalOffset: 2 * time.Minute,
	})
	require.Equal(t, strings.Join([]string{
		"Scheduling archiving tasks with an interval of 60 seconds...",
		"Skipping activities that have already been archived.",
		"Scheduled 3 archiving task(s). Skipped 1 already scheduled task(s).",
		"Final task scheduled to run in 00:02:00.",
		"",
	}, "\n"), buf.String())
}

func TestScheduleReportDryRunAndEmpty(t *testing.T) {
	var buf bytes.Buffer
	writeScheduleReport(&buf, &service.AdminScheduleResult{Candidates: []int64{17, 18}, DryRun: true})
	require.Contains(t, buf.String(), "Found 2 archiving task(s) to schedule.")
	require.Contains(t, buf.String(), "without the --dry-run option")

	buf.Reset()
	writeScheduleReport(&buf, &service.AdminScheduleResult{})
	require.Equal(t, "No activities to archive.\n", buf.String())

	buf.Reset()
	writeScheduleReport(&buf, &service.AdminScheduleResult{Candidates: []int64{17}, Skipped: 1})
	require.Equal(t, "Scheduled 0 archiving task(s). Skipped 1 already scheduled task(s).\n", buf.String())
}

func TestWriteActivities(t *testing.T) {
	enabled := true
	activities := []models.CourseActivity{
		{CourseID: 3, ActivityID: 17, ModName: "quiz", Section: 1, Archive: &enabled},
		{CourseID: 3, ActivityID: 18, ModName: "assign", Section: 2},
	}

	var buf bytes.Buffer
	require.NoError(t, writeActivities(&buf, activities, false))
	table := buf.String()
	require.Contains(t, table, "ACTIVITY")
	require.Contains(t, table, "quiz")
	require.Contains(t, table, "default")

	buf.Reset()
	require.NoError(t, writeActivities(&buf, activities, true))
	var decoded []models.CourseActivity
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	require.Len(t, decoded, 2)

	buf.Reset()
	require.NoError(t, writeActivities(&buf, nil, true))
	require.Equal(t, "[]\n", buf.String())
}

func TestTokenCommand(t *testing.T) {
	t.Setenv("JWT_SECRET", "cli-secret")
	t.Setenv("LOG_LEVEL", "error")

	root := NewRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"token", "--subject", "moodle", "--role", "SERVICE", "--ttl", "1h"})
	require.NoError(t, root.Execute())

	tokens := service.NewTokenService(service.TokenConfig{Secret: "cli-secret"})
	claims, err := tokens.ValidateToken(strings.TrimSpace(out.String()))
	require.NoError(t, err)
	require.Equal(t, "moodle", claims.UserID)
	require.Equal(t, models.RoleService, claims.Role)
}

func TestTokenCommandRejectsUnknownRole(t *testing.T) {
	t.Setenv("JWT_SECRET", "cli-secret")

	root := NewRootCmd()
	root.SetOut(&bytes.Buffer{})
	root.SetArgs([]string{"token", "--role", "GUEST"})
	require.Error(t, root.Execute())
}

func TestScheduleRejectsNegativeInterval(t *testing.T) {
	root := NewRootCmd()
	root.SetOut(&bytes.Buffer{})
	root.SetArgs([]string{"schedule", "--interval", "-1s"})
	require.ErrorContains(t, root.Execute(), "--interval")
}

func TestReportRejectsUnknownFormat(t *testing.T) {
	root := NewRootCmd()
	root.SetOut(&bytes.Buffer{})
	root.SetArgs([]string{"report", "--format", "xlsx"})
	require.ErrorContains(t, root.Execute(), "unsupported export format")
}
