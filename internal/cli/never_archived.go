package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/noah-isme/assessment-archive/internal/models"
)

func newNeverArchivedCmd() *cobra.Command {
	var (
		courseID int64
		asJSON   bool
	)
	cmd := &cobra.Command{
		Use:   "never-archived",
		Short: "List archivable activities that have no bundle yet",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			var course *int64
			if courseID > 0 {
				course = &courseID
			}
			activities, err := a.Services.History.ListNeverArchived(cmd.Context(), course)
			if err != nil {
				return err
			}
			return writeActivities(cmd.OutOrStdout(), activities, asJSON)
		},
	}
	cmd.Flags().Int64Var(&courseID, "course", 0, "Restrict to one course")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output JSON")
	return cmd
}

func writeActivities(w io.Writer, activities []models.CourseActivity, asJSON bool) error {
	if asJSON {
		if activities == nil {
			activities = []models.CourseActivity{}
		}
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(activities)
	}
	if len(activities) == 0 {
		_, err := fmt.Fprintln(w, "No activities without archive.")
		return err
	}
	tw := tablewriter.NewWriter(w)
	tw.SetHeader([]string{"COURSE", "ACTIVITY", "TYPE", "SECTION", "SETTING"})
	for _, activity := range activities {
		setting := "default"
		if activity.Archive != nil {
			setting = strconv.FormatBool(*activity.Archive)
		}
		tw.Append([]string{
			strconv.FormatInt(activity.CourseID, 10),
			strconv.FormatInt(activity.ActivityID, 10),
			activity.ModName,
			strconv.Itoa(activity.Section),
			setting,
		})
	}
	tw.Render()
	return nil
}
