package main

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hugh/ia-marketing/internal/auth"
	"github.com/spf13/cobra"
)

func newTokenCommand() *cobra.Command {
	var (
		userID string
		email  string
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a development bearer token signed with JWT_SECRET",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := loadConfig()
			if err != nil {
				return err
			}
			if !cfg.Server.IsDevelopment() {
				return fmt.Errorf("token minting is only available with SERVER_ENV=development")
			}

			id := uuid.New()
			if userID != "" {
				if id, err = uuid.Parse(userID); err != nil {
					return fmt.Errorf("invalid user id %q: %w", userID, err)
				}
			}

			token, err := newJWTService(cfg.JWT.Secret, cfg.JWT.Issuer, cfg.JWT.Audience, cfg.JWT.ExpiryHours).GenerateToken(id, email)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&userID, "user-id", "", "Subject user id (random when empty)")
	cmd.Flags().StringVar(&email, "email", "dev@example.com", "Email claim")
	return cmd
}

func newJWTService(secret, issuer, audience string, expiryHours int) *auth.JWTService {
	var opts []auth.Option
	if issuer != "" {
		opts = append(opts, auth.WithIssuer(issuer))
	}
	if audience != "" {
		opts = append(opts, auth.WithAudience(audience))
	}
	if expiryHours <= 0 {
		expiryHours = 24
	}
	return auth.NewJWTService(secret, time.Duration(expiryHours)*time.Hour, opts...)
}
