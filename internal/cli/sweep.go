package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/noah-isme/assessment-archive/internal/app"
	"github.com/noah-isme/assessment-archive/internal/service"
	"github.com/noah-isme/assessment-archive/pkg/config"
	"github.com/noah-isme/assessment-archive/pkg/storage"
)

func newSweepCmd() *cobra.Command {
	var (
		olderThan time.Duration
		reconcile bool
	)
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Remove leftovers of interrupted archive runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadConfig()
			if err != nil {
				return err
			}
			defer log.Sync() //nolint:errcheck

			if cfg.Archive.Directory == "" {
				return fmt.Errorf("ARCHIVE_DIRECTORY is not set")
			}
			if olderThan <= 0 {
				olderThan = cfg.Archive.JanitorMaxAge
			}

			janitor, closeFn, err := sweepJanitor(cmd.Context(), cfg, log, reconcile)
			if err != nil {
				return err
			}
			defer closeFn()

			removed, err := janitor.Sweep(cmd.Context(), olderThan)
			for _, path := range removed {
				fmt.Fprintln(cmd.OutOrStdout(), "removed", path)
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %d leftover file(s).\n", len(removed))
			if !reconcile {
				return nil
			}

			restored, err := janitor.Reconcile(cmd.Context(), olderThan)
			for _, path := range restored {
				fmt.Fprintln(cmd.OutOrStdout(), "recorded", path)
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Recorded %d bundle(s) missing from history.\n", len(restored))
			return nil
		},
	}
	cmd.Flags().DurationVar(&olderThan, "older-than", 0, "Minimum age of leftovers, defaults to ARCHIVE_JANITOR_MAX_AGE")
	cmd.Flags().BoolVar(&reconcile, "reconcile", false, "Also record complete bundles missing from history (needs the database)")
	return cmd
}

// sweepJanitor only connects to the database when reconciling.
func sweepJanitor(ctx context.Context, cfg *config.Config, log *zap.Logger, reconcile bool) (*service.JanitorService, func(), error) {
	if reconcile {
		a, err := app.New(ctx, cfg, log)
		if err != nil {
			return nil, nil, err
		}
		return a.Services.Janitor, a.Close, nil
	}
	store, err := storage.NewLocalStorage(cfg.Archive.Directory)
	if err != nil {
		return nil, nil, err
	}
	return service.NewJanitorService(store, nil, nil, nil, log), func() {}, nil
}
