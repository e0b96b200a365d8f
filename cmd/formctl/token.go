package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/formularium/formularium-backend/internal/domain"
	"github.com/formularium/formularium-backend/internal/middleware"
)

func tokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Development bearer tokens",
	}
	cmd.AddCommand(tokenIssueCmd())
	return cmd
}

// tokenIssueCmd は JWT_SECRET で署名した開発用トークンを発行する。
func tokenIssueCmd() *cobra.Command {
	var (
		userID string
		caps   []string
		ttl    time.Duration
	)
	cmd := &cobra.Command{
		Use:   "issue",
		Short: "Issue a bearer token for a user",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := loadConfig()
			if cfg.JWTSecret == "" {
				return fmt.Errorf("JWT_SECRET environment variable is required")
			}
			known := domain.NewCapabilitySet(caps...)
			for _, c := range caps {
				if !known.Has(domain.Capability(c)) {
					return fmt.Errorf("unknown capability %q", c)
				}
			}

			token, err := middleware.NewAuthenticator([]byte(cfg.JWTSecret)).IssueToken(userID, known.Names(), ttl)
			if err != nil {
				return fmt.Errorf("issuing token: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "User ID (required)")
	cmd.Flags().StringSliceVar(&caps, "cap", nil, "Capability to grant (repeatable)")
	cmd.Flags().DurationVar(&ttl, "ttl", time.Hour, "Token lifetime")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}
