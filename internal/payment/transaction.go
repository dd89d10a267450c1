package payment

import (
	"errors"
	"time"

	"splitpay/internal/common/money"
)

// Status represents the status of a transaction.
type Status string

const (
	StatusPending  Status = "pending"
	StatusSuccess  Status = "success"
	StatusFailed   Status = "failed"
	StatusRefunded Status = "refunded"
	// StatusRefund marks a compensating transaction created by a refund.
	StatusRefund Status = "refund"
)

// Charge is the receipt for a single instrument debit within a transaction.
type Charge struct {
	Ref              int         `json:"ref"`
	Token            string      `json:"token"`
	Amount           money.Money `json:"amount"`
	ResultingBalance money.Money `json:"resulting_balance"`
}

// Transaction records one attempt to collect a total across instruments.
// It is owned by the ledger once appended; status changes go through the
// Mark* transitions only.
type Transaction struct {
	ID      string      `json:"id"`
	Status  Status      `json:"status"`
	Total   money.Money `json:"total"`
	Refs    []int       `json:"refs"`
	Charges []Charge    `json:"charges,omitempty"`

	// Failure diagnostics. For failed transactions Charges holds the debits
	// that were applied and then compensated.
	ErrorCode    string `json:"error_code,omitempty"`
	ErrorMessage string `json:"error_message,omitempty"`

	// Refund back-references.
	RefundOf   string `json:"refund_of,omitempty"`
	RefundedBy string `json:"refunded_by,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// NewTransaction creates a pending transaction.
func NewTransaction(id string, total money.Money, refs []int) *Transaction {
	return &Transaction{
		ID:        id,
		Status:    StatusPending,
		Total:     total,
		Refs:      append([]int(nil), refs...),
		CreatedAt: time.Now().UTC(),
	}
}

// MarkSucceeded transitions pending -> success with the full charge list.
func (t *Transaction) MarkSucceeded(charges []Charge) error {
	if t.Status != StatusPending {
		return errors.New("can only settle pending transactions")
	}
	now := time.Now().UTC()
	t.Status = StatusSuccess
	t.Charges = charges
	t.CompletedAt = &now
	return nil
}

// MarkFailed transitions pending -> failed, retaining the partially applied
// (and since compensated) charges for diagnostics.
func (t *Transaction) MarkFailed(code, message string, compensated []Charge) error {
	if t.Status != StatusPending {
		return errors.New("can only fail pending transactions")
	}
	now := time.Now().UTC()
	t.Status = StatusFailed
	t.ErrorCode = code
	t.ErrorMessage = message
	t.Charges = compensated
	t.CompletedAt = &now
	return nil
}

// MarkRefunded transitions success -> refunded. One-way; a refunded
// transaction can never be refunded again.
func (t *Transaction) MarkRefunded(refundID string) error {
	if t.Status != StatusSuccess {
		return ErrRefundNotAllowed
	}
	t.Status = StatusRefunded
	t.RefundedBy = refundID
	return nil
}

// Clone returns a deep copy so ledger readers never share mutable state
// with the coordinator.
func (t *Transaction) Clone() *Transaction {
	cp := *t
	cp.Refs = append([]int(nil), t.Refs...)
	cp.Charges = append([]Charge(nil), t.Charges...)
	if t.CompletedAt != nil {
		at := *t.CompletedAt
		cp.CompletedAt = &at
	}
	return &cp
}
