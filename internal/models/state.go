// internal/models/state.go
package models

import "fmt"

type PaymentStatus string

const (
	PaymentStatusPending    PaymentStatus = "pending"
	PaymentStatusProcessing PaymentStatus = "processing"
	PaymentStatusPaid       PaymentStatus = "paid"
	PaymentStatusCancelled  PaymentStatus = "cancelled"
)

// PaymentStatusFromGateway maps the gateway vocabulary onto the domain status.
func PaymentStatusFromGateway(status string) PaymentStatus {
	switch status {
	case "approved":
		return PaymentStatusPaid
	case "in_process":
		return PaymentStatusProcessing
	case "rejected":
		return PaymentStatusCancelled
	default:
		return PaymentStatusPending
	}
}

// Transition returns the status after applying next. Paid absorbs every event;
// a cancelled payment can be retried by the client and so may move again.
// changed is false when the write would be a no-op.
func (s PaymentStatus) Transition(next PaymentStatus) (result PaymentStatus, changed bool) {
	if s == PaymentStatusPaid {
		return s, false
	}
	if s == next {
		return s, false
	}
	switch next {
	case PaymentStatusPending, PaymentStatusProcessing, PaymentStatusPaid, PaymentStatusCancelled:
		return next, true
	}
	return s, false
}

type BatchJobStatus string

const (
	BatchJobStatusAwaiting  BatchJobStatus = "awaiting"
	BatchJobStatusRunning   BatchJobStatus = "running"
	BatchJobStatusPaused    BatchJobStatus = "paused"
	BatchJobStatusCompleted BatchJobStatus = "completed"
)

// Transition enforces that completed is terminal.
func (s BatchJobStatus) Transition(next BatchJobStatus) (BatchJobStatus, error) {
	if s == BatchJobStatusCompleted && next != BatchJobStatusCompleted {
		return s, fmt.Errorf("batch job is completed and cannot move to %s", next)
	}
	if next == BatchJobStatusAwaiting && s != BatchJobStatusAwaiting {
		return s, fmt.Errorf("batch job cannot return to %s", next)
	}
	return next, nil
}

type BatchRowStatus string

const (
	BatchRowStatusPending    BatchRowStatus = "pending"
	BatchRowStatusProcessing BatchRowStatus = "processing"
	BatchRowStatusSuccess    BatchRowStatus = "success"
	BatchRowStatusError      BatchRowStatus = "error"
)

// processing -> pending is the rate-limit revert and the manual requeue of a
// stuck row. success and error are terminal.
var batchRowTransitions = map[BatchRowStatus][]BatchRowStatus{
	BatchRowStatusPending:    {BatchRowStatusProcessing},
	BatchRowStatusProcessing: {BatchRowStatusSuccess, BatchRowStatusError, BatchRowStatusPending},
}

// CanTransition reports whether a row may move from s to next.
func (s BatchRowStatus) CanTransition(next BatchRowStatus) bool {
	for _, allowed := range batchRowTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

func (s BatchRowStatus) Transition(next BatchRowStatus) (BatchRowStatus, error) {
	if !s.CanTransition(next) {
		return s, fmt.Errorf("batch row cannot move from %s to %s", s, next)
	}
	return next, nil
}

func (s BatchRowStatus) Terminal() bool {
	return s == BatchRowStatusSuccess || s == BatchRowStatusError
}
