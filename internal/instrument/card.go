package instrument

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"splitpay/internal/common/money"
)

// Card is an in-memory stored-value card. The mutex is held across the
// check-then-debit sequence so two concurrent transactions cannot both read
// a sufficient balance and debit past zero.
type Card struct {
	mu       sync.Mutex
	pan      string
	token    string
	currency money.Currency
	expiry   time.Time // first instant the card is no longer valid
	balance  money.Money
	closed   bool
}

// NewCard creates a stored-value card. The PAN is validated for shape only;
// Luhn and expiry are checked by IsUsable so an invalid card can still be
// registered and rejected at charge time. The token is produced once and is
// the only identifier the card ever exposes.
func NewCard(pan string, expMonth, expYear int, balance money.Money, tok Tokenizer) (*Card, error) {
	if len(pan) < 12 || len(pan) > 19 {
		return nil, fmt.Errorf("card number must be 12-19 digits, got %d", len(pan))
	}
	for _, r := range pan {
		if r < '0' || r > '9' {
			return nil, errors.New("card number must contain only digits")
		}
	}
	if expMonth < 1 || expMonth > 12 {
		return nil, fmt.Errorf("expiry month out of range: %d", expMonth)
	}
	if balance.IsNegative() {
		return nil, errors.New("opening balance cannot be negative")
	}

	// Valid through the end of the expiry month.
	expiry := time.Date(expYear, time.Month(expMonth), 1, 0, 0, 0, 0, time.UTC).AddDate(0, 1, 0)

	return &Card{
		pan:      pan,
		token:    tok.Tokenize(pan),
		currency: balance.Currency,
		expiry:   expiry,
		balance:  balance,
	}, nil
}

// Token returns the redacted identifier.
func (c *Card) Token() string {
	return c.token
}

// Currency returns the card's settlement currency. Immutable, so no lock.
func (c *Card) Currency() money.Currency {
	return c.currency
}

// AvailableBalance reports the current balance.
func (c *Card) AvailableBalance() money.Money {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.balance
}

// IsUsable reports whether the card passes syntactic validation and has not
// expired or been closed.
func (c *Card) IsUsable() (bool, string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return false, "card is closed"
	}
	if !luhnValid(c.pan) {
		return false, "card number fails checksum validation"
	}
	if !time.Now().UTC().Before(c.expiry) {
		return false, "card is expired"
	}
	return true, ""
}

// Debit withdraws the amount under the card's lock.
func (c *Card) Debit(ctx context.Context, amount money.Money) (DebitReceipt, error) {
	if err := ctx.Err(); err != nil {
		return DebitReceipt{}, &DebitError{Code: CodeInstrumentTimeout, Message: err.Error()}
	}
	if amount.Currency != c.currency {
		return DebitReceipt{}, fmt.Errorf("%w: %s vs %s", money.ErrCurrencyMismatch, amount.Currency, c.currency)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return DebitReceipt{}, &DebitError{Code: CodeInstrumentClosed, Message: "card is closed"}
	}
	if amount.GreaterThan(c.balance) {
		return DebitReceipt{}, &DebitError{
			Code:    CodeInsufficientFunds,
			Message: fmt.Sprintf("available %s, requested %s", c.balance, amount),
		}
	}

	c.balance = c.balance.MustSub(amount)
	return DebitReceipt{Token: c.token, ResultingBalance: c.balance}, nil
}

// Credit deposits the amount back onto the card.
func (c *Card) Credit(ctx context.Context, amount money.Money) error {
	if amount.Currency != c.currency {
		return fmt.Errorf("%w: %s vs %s", money.ErrCurrencyMismatch, amount.Currency, c.currency)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.balance = c.balance.MustAdd(amount)
	return nil
}

// Close marks the card closed; further debits fail with INSTRUMENT_CLOSED.
func (c *Card) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
}

// luhnValid runs the Luhn checksum over a digit string.
func luhnValid(pan string) bool {
	var sum int
	double := false
	for i := len(pan) - 1; i >= 0; i-- {
		d := int(pan[i] - '0')
		if double {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
		double = !double
	}
	return sum%10 == 0
}
