package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/shahar-caura/salestalk/internal/review"
)

func newReviewCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "review",
		Short: "Inspect and prune the review queue",
	}
	cmd.AddCommand(newReviewListCmd(a), newReviewResolveCmd(a), newReviewCleanupCmd(a))
	return cmd
}

func newReviewListCmd(a *app) *cobra.Command {
	var status string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List queued classifications",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var filter review.Status
			switch status {
			case "all":
			case string(review.StatusPending), string(review.StatusResolved):
				filter = review.Status(status)
			default:
				return fmt.Errorf("--status must be pending, resolved or all")
			}

			entries, err := a.reviewStore().List(filter)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(entries) == 0 {
				fmt.Fprintln(out, "No review entries.")
				return nil
			}

			fmt.Fprintf(out, "%-36s  %-8s  %-20s  %-4s  %-24s  %s\n", "ID", "STATUS", "CREATED", "LANG", "REASONS", "QUESTION")
			for _, e := range entries {
				fmt.Fprintf(out, "%-36s  %-8s  %-20s  %-4s  %-24s  %s\n",
					e.ID,
					e.Status,
					e.CreatedAt.Format("2006-01-02 15:04:05"),
					e.Language,
					strings.Join(e.Reasons, ","),
					e.Question,
				)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&status, "status", string(review.StatusPending), "pending, resolved or all")
	return cmd
}

func newReviewResolveCmd(a *app) *cobra.Command {
	var note string

	cmd := &cobra.Command{
		Use:   "resolve <id>",
		Short: "Mark an entry as reviewed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.reviewStore().Resolve(args[0], note); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "resolved %s\n", args[0])
			return nil
		},
	}
	cmd.Flags().StringVar(&note, "note", "", "what was done about it")
	return cmd
}

func newReviewCleanupCmd(a *app) *cobra.Command {
	var retention time.Duration

	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Delete resolved entries older than the retention period",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("retention") {
				retention = a.cfg.Review.Retention
			}
			n, err := a.reviewStore().Cleanup(retention)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %d entries\n", n)
			return nil
		},
	}
	cmd.Flags().DurationVar(&retention, "retention", 0, "keep entries touched within this duration (default review.retention)")
	return cmd
}
