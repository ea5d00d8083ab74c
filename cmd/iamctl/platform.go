package main

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/hugh/ia-marketing/internal/authz"
	"github.com/hugh/ia-marketing/internal/database/models"
	"github.com/spf13/cobra"
)

func newPlatformCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "platform",
		Short: "Grant or revoke the platform superadmin role",
	}

	var email string
	grant := &cobra.Command{
		Use:   "grant <user-id>",
		Short: "Make a user a platform superadmin",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return setPlatformRole(cmd, args[0], email, models.PlatformRoleSuperadmin)
		},
	}
	grant.Flags().StringVar(&email, "email", "", "Create the profile with this email if it does not exist yet")

	revoke := &cobra.Command{
		Use:   "revoke <user-id>",
		Short: "Remove the platform superadmin role",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return setPlatformRole(cmd, args[0], "", models.PlatformRoleNone)
		},
	}

	cmd.AddCommand(grant, revoke)
	return cmd
}

func setPlatformRole(cmd *cobra.Command, rawID, email string, role models.PlatformRole) error {
	userID, err := uuid.Parse(rawID)
	if err != nil {
		return fmt.Errorf("invalid user id %q: %w", rawID, err)
	}

	e, err := connect()
	if err != nil {
		return err
	}
	defer e.close()

	ctx := context.Background()
	if email != "" {
		if _, err := e.services.Profiles.GetOrCreate(ctx, userID, email); err != nil {
			return err
		}
	}

	profile, err := e.services.Profiles.SetPlatformRole(ctx, nil, userID, role)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s platform_role=%q\n", profile.UserID, profile.PlatformRole)
	return nil
}

// operator resolves --as into a caller that must hold the platform role.
func operator(ctx context.Context, e *env, rawID string) (authz.Caller, error) {
	userID, err := uuid.Parse(rawID)
	if err != nil {
		return authz.Caller{}, fmt.Errorf("invalid --as user id %q: %w", rawID, err)
	}
	profile, err := e.services.Profiles.GetOrCreate(ctx, userID, "")
	if err != nil {
		return authz.Caller{}, err
	}
	caller := authz.Caller{UserID: profile.UserID, Email: profile.Email, PlatformRole: profile.PlatformRole}
	if err := authz.RequirePlatformSuperadmin(caller); err != nil {
		return authz.Caller{}, fmt.Errorf("%s is not a platform superadmin: %w", userID, err)
	}
	return caller, nil
}
