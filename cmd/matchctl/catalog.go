// cmd/matchctl/catalog.go
package main

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/javajoker/vendormatch-backend/internal/models"
)

func feedbackCmd() *cobra.Command {
	var kind string

	cmd := &cobra.Command{
		Use:   "feedback [transaction-id] [source-offering-id] [target-offering-id]",
		Short: "Record similarity feedback for a pair of offerings",
		Long: `Record whether a similar offering suggested for a source offering was
useful. Irrelevant and already known feedback exclude the target from later generations for the
same transaction and source.`,
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids := make([]uuid.UUID, len(args))
			for i, arg := range args {
				id, err := uuid.Parse(arg)
				if err != nil {
					return fmt.Errorf("invalid id %q: %w", arg, err)
				}
				ids[i] = id
			}

			feedbackKind := models.FeedbackKind(kind)
			if !feedbackKind.Valid() {
				return fmt.Errorf("invalid feedback kind %q", kind)
			}

			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()

			feedback, err := a.services.Similarity.RecordFeedback(cmd.Context(), ids[0], ids[1], ids[2], feedbackKind)
			if err != nil {
				return err
			}
			return printResult(feedback, fmt.Sprintf("recorded %s feedback %s", feedback.Kind, feedback.ID))
		},
	}

	cmd.Flags().StringVarP(&kind, "kind", "k", string(models.FeedbackIrrelevant), "feedback kind")
	return cmd
}

func dedupCmd() *cobra.Command {
	var actor string

	cmd := &cobra.Command{
		Use:   "dedup",
		Short: "Flag catalog offerings that share a site key",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()

			report, err := a.services.Admin.RunDedupPass(cmd.Context(), actor)
			if err != nil {
				return err
			}
			return printResult(report, fmt.Sprintf("scanned %d offerings, flagged %d duplicates", report.Scanned, report.Duplicates))
		},
	}

	cmd.Flags().StringVar(&actor, "actor", "matchctl", "actor recorded in the audit log")
	return cmd
}
