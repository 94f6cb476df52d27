// cmd/matchctl/batch.go
package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/javajoker/vendormatch-backend/internal/services"
)

var (
	advanceSteps int
	advanceUntil bool
	advanceWait  bool
	advancePause bool
)

func advanceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "advance [job-id]",
		Short: "Process the next pending rows of a batch job",
		Long: `Advance a batch enrichment job one row at a time.

Each step claims the next pending row, extracts an offering from it and
records the outcome on the job counters. A rate limited provider pauses the
job; with --wait the command sleeps for the suggested interval and carries on.

Examples:
  matchctl advance 6f1c... --steps 10
  matchctl advance 6f1c... --until-done --wait
  matchctl advance 6f1c... --pause`,
		Args: cobra.ExactArgs(1),
		RunE: runAdvance,
	}

	cmd.Flags().IntVarP(&advanceSteps, "steps", "n", 1, "number of rows to advance")
	cmd.Flags().BoolVar(&advanceUntil, "until-done", false, "keep advancing until the job completes or pauses")
	cmd.Flags().BoolVar(&advanceWait, "wait", false, "sleep through rate limit pauses instead of stopping")
	cmd.Flags().BoolVar(&advancePause, "pause", false, "pause the job instead of advancing it")

	return cmd
}

func runAdvance(cmd *cobra.Command, args []string) error {
	jobID, err := uuid.Parse(args[0])
	if err != nil {
		return fmt.Errorf("invalid job id: %w", err)
	}

	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if advancePause {
		result, err := a.services.Batches.Advance(ctx, jobID, services.AdvanceOptions{Pause: true})
		if err != nil {
			return err
		}
		return printResult(result, fmt.Sprintf("job %s: %s", jobID, result.Outcome))
	}

	var last *services.AdvanceResult
	for step := 0; advanceUntil || step < advanceSteps; step++ {
		if ctx.Err() != nil {
			break
		}

		result, err := a.services.Batches.Advance(ctx, jobID, services.AdvanceOptions{})
		if err != nil {
			return err
		}
		last = result

		if !jsonOutput {
			fmt.Printf("[%d] %s %s\n", step+1, result.Outcome, progress(result))
		}

		switch result.Outcome {
		case services.AdvanceCompleted:
			return printResult(result, "job completed")
		case services.AdvancePaused:
			if !advanceWait || result.RetryAfter <= 0 {
				return printResult(result, "job paused")
			}
			select {
			case <-ctx.Done():
			case <-time.After(result.RetryAfter):
			}
		}
	}

	if last == nil {
		return nil
	}
	return printResult(last, progress(last))
}

func progress(result *services.AdvanceResult) string {
	if result.Job == nil {
		return ""
	}
	job := result.Job
	return fmt.Sprintf("(%d/%d processed, %d ok, %d errors, %d duplicates)",
		job.ProcessedCount, job.TotalCount, job.SuccessCount, job.ErrorCount, job.DuplicateCount)
}

func resumeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "resume [job-id]",
		Short: "Clear a pause on a batch job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jobID, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid job id: %w", err)
			}

			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()

			job, err := a.services.Batches.Resume(cmd.Context(), jobID)
			if err != nil {
				return err
			}
			return printResult(job, fmt.Sprintf("job %s is %s", job.ID, job.Status))
		},
	}
}
