package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/nerrad567/whep-gateway/internal/auth"
)

// errNoJWTSecret is returned when an admin token is requested but no
// signing secret is configured.
var errNoJWTSecret = errors.New("security.jwt.secret is not set; admin endpoints are disabled")

// newTokenCommand returns the "token" command, which prints a signed admin
// API token for use as "Authorization: Bearer <token>".
func newTokenCommand(opts *options) *cobra.Command {
	var (
		subject string
		role    string
		ttl     time.Duration
	)

	cmd := &cobra.Command{
		Use:           "token",
		Short:         "Issue an admin API token",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd, opts)
			if err != nil {
				return err
			}
			if cfg.Security.JWT.Secret == "" {
				return errNoJWTSecret
			}

			r, err := auth.ParseRole(role)
			if err != nil {
				return fmt.Errorf("%w: %q", err, role)
			}
			if !cmd.Flags().Changed("ttl") {
				ttl = time.Duration(cfg.Security.JWT.AccessTokenTTL) * time.Minute
			}

			signed, err := auth.GenerateAccessToken(subject, r, cfg.Security.JWT.Secret, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), signed)
			return nil
		},
	}

	cmd.Flags().StringVar(&subject, "subject", "operator", "token subject, recorded in the audit trail")
	cmd.Flags().StringVar(&role, "role", string(auth.RoleAdmin), "role to grant (viewer or admin)")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "token lifetime (default security.jwt.access_token_ttl)")

	return cmd
}
