package domain

import "time"

type SagaStep string

const (
	StepBuyerVerification SagaStep = "buyer_verification"
	StepStockValidation   SagaStep = "stock_validation"
	StepPayment           SagaStep = "payment"
	StepStockDebit        SagaStep = "stock_debit"
)

type StepStatus string

const (
	StepPending     StepStatus = "pending"
	StepDone        StepStatus = "done"
	StepCompensated StepStatus = "compensated"
	StepFailed      StepStatus = "failed"
)

// SagaCheckpoint records where an order's saga waits on another party.
type SagaCheckpoint struct {
	OrderID   int64      `json:"order_id"`
	Step      SagaStep   `json:"step"`
	Status    StepStatus `json:"status"`
	Deadline  time.Time  `json:"deadline"`
	Attempts  int        `json:"attempts"`
	Detail    string     `json:"detail,omitempty"`
	UpdatedAt time.Time  `json:"updated_at"`
}

func (c SagaCheckpoint) Overdue(now time.Time) bool {
	return c.Status == StepPending && now.After(c.Deadline)
}

func TimeoutDescription(step SagaStep) string {
	return "The order timed out waiting for " + string(step)
}
