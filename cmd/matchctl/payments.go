// cmd/matchctl/payments.go
package main

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/javajoker/vendormatch-backend/internal/models"
	"github.com/javajoker/vendormatch-backend/internal/services"
)

func checkPaymentCmd() *cobra.Command {
	var bySession bool

	cmd := &cobra.Command{
		Use:   "check-payment [transaction-id|session-id]",
		Short: "Poll the gateway for approved payments of a transaction",
		Long: `Search the gateway for approved payments carrying the transaction's
external reference and apply each one, exactly as a webhook would.

Use it when a notification was lost. Applying the same payment twice is a no-op.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()

			var result *services.StatusResult
			if bySession {
				result, err = a.services.Payments.CheckStatusBySession(cmd.Context(), args[0])
			} else {
				id, parseErr := uuid.Parse(args[0])
				if parseErr != nil {
					return fmt.Errorf("invalid transaction id: %w", parseErr)
				}
				result, err = a.services.Payments.CheckStatus(cmd.Context(), id)
			}
			if err != nil {
				return err
			}

			t := result.Transaction
			return printResult(statusSummary(t, result.Outcomes), fmt.Sprintf("transaction %s: %s, %d unlocked [%s]",
				t.ID, t.PaymentStatus, len(t.Unlocked), strings.Join(result.Outcomes, ", ")))
		},
	}

	cmd.Flags().BoolVar(&bySession, "session", false, "treat the argument as a session id")
	return cmd
}

func statusSummary(t *models.Transaction, outcomes []string) map[string]interface{} {
	return map[string]interface{}{
		"transaction_id": t.ID,
		"payment_status": t.PaymentStatus,
		"unlocked":       t.Unlocked,
		"outcomes":       outcomes,
	}
}
