package main

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

func newJobsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "Inspect video jobs",
	}

	var olderThan time.Duration
	stuck := &cobra.Command{
		Use:   "stuck",
		Short: "List queued or processing jobs older than a cutoff",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := connect()
			if err != nil {
				return err
			}
			defer e.close()

			jobs, err := e.services.Videos.Stuck(context.Background(), time.Now().Add(-olderThan))
			if err != nil {
				return err
			}
			if len(jobs) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no stuck jobs")
				return nil
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "JOB\tORGANIZATION\tSTATUS\tPROVIDER JOB\tCREATED")
			for _, j := range jobs {
				providerJob := "-"
				if j.ProviderJobID != nil {
					providerJob = *j.ProviderJobID
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", j.ID, j.OrganizationID, j.Status, providerJob, j.CreatedAt.UTC().Format(time.RFC3339))
			}
			return tw.Flush()
		},
	}
	stuck.Flags().DurationVar(&olderThan, "older-than", time.Hour, "Minimum job age")

	cmd.AddCommand(stuck)
	return cmd
}
