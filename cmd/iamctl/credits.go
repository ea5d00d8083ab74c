package main

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/hugh/ia-marketing/internal/database/models"
	"github.com/spf13/cobra"
)

func newCreditsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "credits",
		Short: "Post credit movements",
	}

	var (
		as         string
		amount     int64
		reason     string
		adjustment bool
	)
	allocate := &cobra.Command{
		Use:   "allocate <organization-id>",
		Short: "Allocate credits to an organization, or post a signed adjustment",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			orgID, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid organization id %q: %w", args[0], err)
			}

			e, err := connect()
			if err != nil {
				return err
			}
			defer e.close()

			ctx := context.Background()
			caller, err := operator(ctx, e, as)
			if err != nil {
				return err
			}

			source := models.SourceAllocation
			if adjustment {
				source = models.SourceAdjustment
			}
			entry, err := e.services.Credits.Allocate(ctx, caller, orgID, source, amount, reason)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "posted %s %+d, balance %d\n", entry.Source, entry.Delta, entry.BalanceAfter)
			return nil
		},
	}
	allocate.Flags().StringVar(&as, "as", "", "User id of the platform superadmin posting the entry")
	allocate.Flags().Int64Var(&amount, "amount", 0, "Credits to post; negative only with --adjustment")
	allocate.Flags().StringVar(&reason, "reason", "", "Ledger reason, required for adjustments")
	allocate.Flags().BoolVar(&adjustment, "adjustment", false, "Post a signed adjustment instead of an allocation")
	_ = allocate.MarkFlagRequired("as")
	_ = allocate.MarkFlagRequired("amount")

	cmd.AddCommand(allocate)
	return cmd
}
