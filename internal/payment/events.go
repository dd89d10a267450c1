package payment

import (
	"context"

	"splitpay/internal/common/events"
)

// NATS subjects for transaction outcomes.
const (
	SubjectTransactionSettled  = "payment.transaction.settled"
	SubjectTransactionFailed   = "payment.transaction.failed"
	SubjectTransactionRefunded = "payment.transaction.refunded"
)

// Publisher publishes transaction outcome events. Publishing is best-effort;
// a publish failure never changes a transaction's outcome.
type Publisher interface {
	Publish(ctx context.Context, subject string, event *events.Event) error
}

// NopPublisher discards events. Used when no broker is configured and in
// tests.
type NopPublisher struct{}

// Publish implements Publisher.
func (NopPublisher) Publish(ctx context.Context, subject string, event *events.Event) error {
	return nil
}

// TransactionOutcomeData is the payload for transaction outcome events.
type TransactionOutcomeData struct {
	TransactionID string `json:"transaction_id"`
	Status        Status `json:"status"`
	TotalMinor    int64  `json:"total_minor"`
	Currency      string `json:"currency"`
	ChargeCount   int    `json:"charge_count"`
	ErrorCode     string `json:"error_code,omitempty"`
	RefundOf      string `json:"refund_of,omitempty"`
}

func outcomeEvent(eventType string, tx *Transaction) (*events.Event, error) {
	return events.NewEvent(eventType, "transaction", tx.ID, TransactionOutcomeData{
		TransactionID: tx.ID,
		Status:        tx.Status,
		TotalMinor:    tx.Total.AmountMinor,
		Currency:      string(tx.Total.Currency),
		ChargeCount:   len(tx.Charges),
		ErrorCode:     tx.ErrorCode,
		RefundOf:      tx.RefundOf,
	})
}
