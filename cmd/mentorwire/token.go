package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/vovakirdan/mentorwire/internal/auth"
	"github.com/vovakirdan/mentorwire/internal/store"
)

func newTokenCmd(opts *rootOptions) *cobra.Command {
	var (
		id   auth.Identity
		role string
		ttl  time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint an HS256 access token for development",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if id.UserID <= 0 {
				return fmt.Errorf("--user-id must be positive")
			}
			id.Role = store.Role(role)
			if id.Role != "" && !id.Role.Valid() {
				return fmt.Errorf("--role must be student or tutor")
			}
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			if cfg.JWTSecret == "" {
				return fmt.Errorf("jwt_secret is empty; set it in config")
			}
			tok, err := auth.GenerateToken(&auth.JWTConfig{
				Secret:   []byte(cfg.JWTSecret),
				Issuer:   cfg.JWTIssuer,
				Audience: cfg.JWTAudience,
				TTL:      ttl,
			}, id)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok)
			return nil
		},
	}

	cmd.Flags().Int64Var(&id.UserID, "user-id", 1, "numeric user id to embed in the token")
	cmd.Flags().StringVar(&id.Username, "username", "dev", "username claim")
	cmd.Flags().StringVar(&id.DisplayName, "name", "", "display name claim")
	cmd.Flags().StringVar(&role, "role", "", "role claim: student or tutor")
	cmd.Flags().DurationVar(&ttl, "ttl", time.Hour, "token lifetime")
	return cmd
}
