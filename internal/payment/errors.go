package payment

import (
	"errors"
	"fmt"

	"splitpay/internal/instrument"
)

// Input errors: caller mistakes, reported before anything is touched.
var (
	ErrInvalidAmount          = errors.New("total must be positive")
	ErrInvalidInstrumentCount = errors.New("between 1 and 3 instruments required")
	ErrUnknownInstrument      = errors.New("unknown instrument ref")
	ErrProfileNotFound        = errors.New("profile not found")
	ErrSplitCountMismatch     = errors.New("split count does not match instrument count")
	ErrSplitSumMismatch       = errors.New("split amounts do not sum to the total")
)

// Precondition errors: detected before any debit, no compensation needed.
var ErrInsufficientAggregateFunds = errors.New("aggregate available balance below requested total")

// Postcondition errors.
var (
	ErrTransactionNotFound = errors.New("transaction not found")
	ErrRefundNotAllowed    = errors.New("only successful transactions can be refunded")
)

// UnusableInstrumentError reports a selected instrument that failed
// pre-validation. No instrument has been debited when this is returned.
type UnusableInstrumentError struct {
	Index  int
	Reason string
}

func (e *UnusableInstrumentError) Error() string {
	return fmt.Sprintf("instrument %d is not usable: %s", e.Index, e.Reason)
}

// DebitFailedError reports a debit failure at a plan index. All debits
// applied before the failing index have been compensated by the time this
// surfaces.
type DebitFailedError struct {
	Index int
	Err   error
}

func (e *DebitFailedError) Error() string {
	return fmt.Sprintf("debit failed at instrument %d: %v", e.Index, e.Err)
}

func (e *DebitFailedError) Unwrap() error {
	return e.Err
}

// ErrorCode maps an error to a stable code for ledger records and API
// responses.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrInvalidAmount):
		return "INVALID_AMOUNT"
	case errors.Is(err, ErrInvalidInstrumentCount):
		return "INVALID_INSTRUMENT_COUNT"
	case errors.Is(err, ErrUnknownInstrument):
		return "UNKNOWN_INSTRUMENT"
	case errors.Is(err, ErrProfileNotFound):
		return "PROFILE_NOT_FOUND"
	case errors.Is(err, ErrSplitCountMismatch):
		return "SPLIT_COUNT_MISMATCH"
	case errors.Is(err, ErrSplitSumMismatch):
		return "SPLIT_SUM_MISMATCH"
	case errors.Is(err, ErrInsufficientAggregateFunds):
		return "INSUFFICIENT_AGGREGATE_FUNDS"
	case errors.Is(err, ErrTransactionNotFound):
		return "TRANSACTION_NOT_FOUND"
	case errors.Is(err, ErrRefundNotAllowed):
		return "REFUND_NOT_ALLOWED"
	}

	var unusable *UnusableInstrumentError
	if errors.As(err, &unusable) {
		return "INSTRUMENT_UNUSABLE"
	}

	var debit *instrument.DebitError
	if errors.As(err, &debit) {
		return debit.Code
	}

	var failed *DebitFailedError
	if errors.As(err, &failed) {
		return "DEBIT_FAILED"
	}

	return "INTERNAL_ERROR"
}
