package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/noah-isme/assessment-archive/internal/models"
	"github.com/noah-isme/assessment-archive/internal/service"
)

func newTokenCmd() *cobra.Command {
	var (
		subject string
		role    string
		ttl     time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a bearer token for the LMS event forwarder or an administrator",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadConfig()
			if err != nil {
				return err
			}
			defer log.Sync() //nolint:errcheck

			tokens := service.NewTokenService(service.TokenConfig{Secret: cfg.JWT.Secret, Expiration: cfg.JWT.Expiration})
			token, expiresAt, err := tokens.IssueToken(subject, models.UserRole(role), ttl)
			if err != nil {
				return err
			}
			log.Sugar().Infow("token issued", "subject", subject, "role", role, "expires_at", expiresAt)
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "lms", "Token subject")
	cmd.Flags().StringVar(&role, "role", string(models.RoleService), "Role (SERVICE or ADMIN)")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "Lifetime, defaults to JWT_EXPIRATION")
	return cmd
}
