package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/noah-isme/assessment-archive/pkg/export"
)

func newReportCmd() *cobra.Command {
	var (
		courseID int64
		format   string
		output   string
	)
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Write an archive coverage report as CSV or PDF",
		Example: "  archivectl report --format pdf --out coverage.pdf\n" +
			"  archivectl report --course 42",
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := export.ParseFormat(format)
			if err != nil {
				return err
			}
			a, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			var course *int64
			if courseID > 0 {
				course = &courseID
			}
			body, err := a.Services.Coverage.Render(cmd.Context(), course, f)
			if err != nil {
				return err
			}
			if output == "" || output == "-" {
				_, err = cmd.OutOrStdout().Write(body)
				return err
			}
			if err := os.WriteFile(output, body, 0o644); err != nil {
				return fmt.Errorf("write report: %w", err)
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "Wrote %s (%d bytes).\n", output, len(body))
			return nil
		},
	}
	cmd.Flags().Int64Var(&courseID, "course", 0, "Restrict to one course")
	cmd.Flags().StringVar(&format, "format", string(export.FormatCSV), "csv or pdf")
	cmd.Flags().StringVarP(&output, "out", "o", "", "Output file, stdout when empty")
	return cmd
}
