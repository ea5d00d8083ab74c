package main

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/hugh/ia-marketing/internal/authz"
	"github.com/hugh/ia-marketing/internal/database"
	"github.com/hugh/ia-marketing/internal/database/models"
	"github.com/hugh/ia-marketing/internal/organizations"
	"github.com/hugh/ia-marketing/internal/projects"
	"github.com/spf13/cobra"
)

func newSeedCommand() *cobra.Command {
	var (
		email   string
		orgName string
		credits int64
	)
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Create a development superadmin, organization and project",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := connect()
			if err != nil {
				return err
			}
			defer e.close()
			if !e.cfg.Server.IsDevelopment() {
				return fmt.Errorf("seeding is only available with SERVER_ENV=development")
			}

			if err := database.Migrate(e.db, e.log); err != nil {
				return err
			}

			ctx := context.Background()
			svc := e.services

			userID := uuid.New()
			if _, err := svc.Profiles.GetOrCreate(ctx, userID, email); err != nil {
				return err
			}
			admin, err := svc.Profiles.SetPlatformRole(ctx, nil, userID, models.PlatformRoleSuperadmin)
			if err != nil {
				return err
			}
			caller := authz.Caller{UserID: admin.UserID, Email: admin.Email, PlatformRole: admin.PlatformRole}

			org, err := svc.Organizations.Create(ctx, caller, organizations.CreateInput{
				Name:           orgName,
				InitialCredits: credits,
			})
			if err != nil {
				return err
			}
			if _, err := svc.Organizations.AddMember(ctx, caller, org.ID, organizations.MemberRef{UserID: &admin.UserID}, models.RoleAdmin); err != nil {
				return err
			}

			name := "Launch campaign"
			project, err := svc.Projects.Create(ctx, caller, org.ID, projects.Input{Name: &name})
			if err != nil {
				return err
			}

			token, err := newJWTService(e.cfg.JWT.Secret, e.cfg.JWT.Issuer, e.cfg.JWT.Audience, e.cfg.JWT.ExpiryHours).GenerateToken(admin.UserID, admin.Email)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "user:         %s (%s)\n", admin.UserID, admin.Email)
			fmt.Fprintf(out, "organization: %s (%d credits)\n", org.ID, org.Balance)
			fmt.Fprintf(out, "project:      %s\n", project.ID)
			fmt.Fprintf(out, "token:        %s\n", token)
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "admin@example.com", "Superadmin email")
	cmd.Flags().StringVar(&orgName, "org", "Default Organization", "Organization name")
	cmd.Flags().Int64Var(&credits, "credits", 500, "Initial allocation")
	return cmd
}
