// Package instrument provides the payment instrument capability and the
// stored-value card implementation backing it.
package instrument

import (
	"context"
	"fmt"

	"splitpay/internal/common/money"
)

// Debit failure codes.
const (
	CodeInsufficientFunds = "INSUFFICIENT_FUNDS"
	CodeInstrumentTimeout = "INSTRUMENT_TIMEOUT"
	CodeInstrumentClosed  = "INSTRUMENT_CLOSED"
)

// DebitError describes a failed debit attempt. The instrument is left
// untouched when a debit returns one of these.
type DebitError struct {
	Code    string
	Message string
}

func (e *DebitError) Error() string {
	return fmt.Sprintf("debit failed [%s]: %s", e.Code, e.Message)
}

// DebitReceipt is returned by a successful debit.
type DebitReceipt struct {
	Token            string      `json:"token"`
	ResultingBalance money.Money `json:"resulting_balance"`
}

// Instrument is the capability set the coordinator needs from a stored-value
// source. Implementations must serialize mutations so that concurrent debits
// observe a consistent balance and never drive it negative.
type Instrument interface {
	// Token returns the redacted, stable identifier for receipts and logs.
	Token() string

	// Currency returns the instrument's settlement currency.
	Currency() money.Currency

	// AvailableBalance reports the spendable balance.
	AvailableBalance() money.Money

	// IsUsable reports whether the instrument can be charged, with a
	// human-readable reason when it cannot.
	IsUsable() (bool, string)

	// Debit withdraws the amount, or returns a *DebitError leaving the
	// balance unchanged.
	Debit(ctx context.Context, amount money.Money) (DebitReceipt, error)

	// Credit deposits the amount back. Used for compensation and refunds;
	// crediting has no capacity limit and cannot fail beyond a currency
	// mismatch.
	Credit(ctx context.Context, amount money.Money) error
}
