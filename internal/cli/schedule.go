package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/noah-isme/assessment-archive/internal/service"
)

func newScheduleCmd() *cobra.Command {
	var (
		neverArchived bool
		interval      time.Duration
		dryRun        bool
		courseID      int64
	)
	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Schedule archiving of every enabled activity with an interval between runs",
		Example: "  archivectl schedule --never-archived --interval 60s\n" +
			"  archivectl schedule --course 42 --dry-run",
		RunE: func(cmd *cobra.Command, args []string) error {
			if interval < 0 {
				return fmt.Errorf("--interval must not be negative")
			}
			opts := service.AdminScheduleOptions{NeverArchived: neverArchived, Interval: interval, DryRun: dryRun}
			if courseID > 0 {
				opts.CourseID = &courseID
			}

			a, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			out := cmd.OutOrStdout()
			writeScheduleHeading(out, opts)
			result, err := a.Services.Admin.Run(cmd.Context(), opts)
			if err != nil {
				if result != nil {
					writeScheduleReport(out, result)
				}
				return err
			}
			writeScheduleReport(out, result)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&neverArchived, "never-archived", "n", false, "Only archive activities that have never been archived before")
	cmd.Flags().DurationVarP(&interval, "interval", "i", 60*time.Second, "Interval between archiving runs")
	cmd.Flags().BoolVarP(&dryRun, "dry-run", "d", false, "Only display the number of runs that would be scheduled")
	cmd.Flags().Int64Var(&courseID, "course", 0, "Restrict to one course")
	return cmd
}

func writeScheduleHeading(w io.Writer, opts service.AdminScheduleOptions) {
	fmt.Fprintf(w, "Scheduling archiving tasks with an interval of %d seconds...\n", int64(opts.Interval/time.Second))
	if opts.NeverArchived {
		fmt.Fprintln(w, "Skipping activities that have already been archived.")
	}
}

func writeScheduleReport(w io.Writer, result *service.AdminScheduleResult) {
	if result.DryRun {
		fmt.Fprintf(w, "Found %d archiving task(s) to schedule. Tasks that are already scheduled will be skipped.\n", len(result.Candidates))
		fmt.Fprintln(w, "Repeat this command without the --dry-run option to schedule the tasks.")
		return
	}
	if len(result.Candidates) == 0 {
		fmt.Fprintln(w, "No activities to archive.")
		return
	}
	fmt.Fprintf(w, "Scheduled %d archiving task(s). Skipped %d already scheduled task(s).\n", result.Scheduled, result.Skipped)
	if result.Scheduled > 0 {
		fmt.Fprintf(w, "Final task scheduled to run in %s.\n", formatClock(result.FinalOffset))
	}
}

// formatClock renders d as HH:MM:SS. Hours are not wrapped at 24.
func formatClock(d time.Duration) string {
	total := int64(d / time.Second)
	return fmt.Sprintf("%02d:%02d:%02d", total/3600, (total/60)%60, total%60)
}
