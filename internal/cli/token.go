package cli

import (
	"fmt"
	"time"

	"avtotest-service/internal/auth"
	"avtotest-service/internal/config"
	"avtotest-service/internal/domain"
	"github.com/spf13/cobra"
)

// NewTokenCmd mints a bearer token signed with the configured secret.
func NewTokenCmd(configPath *string) *cobra.Command {
	var (
		userID string
		role   string
		ttl    time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a bearer token for local testing",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			if !domain.Role(role).Valid() {
				return fmt.Errorf("unknown role %q", role)
			}
			token, err := auth.NewAccessToken(cfg.Auth.JWTSecret, cfg.Auth.Issuer, ttl, auth.Claims{
				UserID: userID,
				Role:   domain.Role(role),
			})
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "user id to put in the token")
	cmd.Flags().StringVar(&role, "role", string(domain.RoleStudent), "role: admin, teacher or student")
	cmd.Flags().DurationVar(&ttl, "ttl", time.Hour, "token lifetime")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}
