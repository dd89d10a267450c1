package instrument_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"splitpay/internal/common/money"
	"splitpay/internal/instrument"
)

const (
	validPAN   = "4111111111111111"
	invalidPAN = "1234567890123456" // fails Luhn
)

func newCard(t *testing.T, pan string, balanceMinor int64) *instrument.Card {
	t.Helper()
	card, err := instrument.NewCard(pan, 12, 2039, money.New(balanceMinor, money.USD), instrument.ULIDTokenizer{})
	require.NoError(t, err)
	return card
}

func TestNewCardRejectsMalformedInput(t *testing.T) {
	tok := instrument.ULIDTokenizer{}

	_, err := instrument.NewCard("411", 12, 2039, money.New(0, money.USD), tok)
	assert.Error(t, err, "too short")

	_, err = instrument.NewCard("41111111111111ab", 12, 2039, money.New(0, money.USD), tok)
	assert.Error(t, err, "non-digits")

	_, err = instrument.NewCard(validPAN, 13, 2039, money.New(0, money.USD), tok)
	assert.Error(t, err, "bad month")

	_, err = instrument.NewCard(validPAN, 12, 2039, money.New(-1, money.USD), tok)
	assert.Error(t, err, "negative balance")
}

func TestCardTokenIsRedacted(t *testing.T) {
	card := newCard(t, validPAN, 1000)
	assert.NotContains(t, card.Token(), validPAN)
	assert.Contains(t, card.Token(), "1111", "token keeps the last four")
}

func TestCardUsability(t *testing.T) {
	t.Run("valid card is usable", func(t *testing.T) {
		usable, reason := newCard(t, validPAN, 1000).IsUsable()
		assert.True(t, usable)
		assert.Empty(t, reason)
	})

	t.Run("luhn failure", func(t *testing.T) {
		usable, reason := newCard(t, invalidPAN, 1000).IsUsable()
		assert.False(t, usable)
		assert.Contains(t, reason, "checksum")
	})

	t.Run("expired card", func(t *testing.T) {
		card, err := instrument.NewCard(validPAN, 1, 2020, money.New(1000, money.USD), instrument.ULIDTokenizer{})
		require.NoError(t, err)
		usable, reason := card.IsUsable()
		assert.False(t, usable)
		assert.Contains(t, reason, "expired")
	})

	t.Run("closed card", func(t *testing.T) {
		card := newCard(t, validPAN, 1000)
		card.Close()
		usable, reason := card.IsUsable()
		assert.False(t, usable)
		assert.Contains(t, reason, "closed")
	})
}

func TestCardDebit(t *testing.T) {
	ctx := context.Background()

	t.Run("successful debit returns receipt", func(t *testing.T) {
		card := newCard(t, validPAN, 50000)
		receipt, err := card.Debit(ctx, money.New(20000, money.USD))
		require.NoError(t, err)
		assert.Equal(t, card.Token(), receipt.Token)
		assert.Equal(t, int64(30000), receipt.ResultingBalance.AmountMinor)
		assert.Equal(t, int64(30000), card.AvailableBalance().AmountMinor)
	})

	t.Run("insufficient funds leaves balance untouched", func(t *testing.T) {
		card := newCard(t, validPAN, 100)
		_, err := card.Debit(ctx, money.New(200, money.USD))

		var debitErr *instrument.DebitError
		require.ErrorAs(t, err, &debitErr)
		assert.Equal(t, instrument.CodeInsufficientFunds, debitErr.Code)
		assert.Equal(t, int64(100), card.AvailableBalance().AmountMinor)
	})

	t.Run("currency mismatch", func(t *testing.T) {
		card := newCard(t, validPAN, 100)
		_, err := card.Debit(ctx, money.New(50, money.EUR))
		assert.ErrorIs(t, err, money.ErrCurrencyMismatch)
	})

	t.Run("canceled context surfaces as timeout", func(t *testing.T) {
		card := newCard(t, validPAN, 100)
		canceled, cancel := context.WithCancel(ctx)
		cancel()

		_, err := card.Debit(canceled, money.New(50, money.USD))
		var debitErr *instrument.DebitError
		require.ErrorAs(t, err, &debitErr)
		assert.Equal(t, instrument.CodeInstrumentTimeout, debitErr.Code)
		assert.Equal(t, int64(100), card.AvailableBalance().AmountMinor)
	})

	t.Run("closed card rejects debits", func(t *testing.T) {
		card := newCard(t, validPAN, 100)
		card.Close()

		_, err := card.Debit(ctx, money.New(50, money.USD))
		var debitErr *instrument.DebitError
		require.ErrorAs(t, err, &debitErr)
		assert.Equal(t, instrument.CodeInstrumentClosed, debitErr.Code)
	})
}

func TestCardCredit(t *testing.T) {
	ctx := context.Background()
	card := newCard(t, validPAN, 100)

	require.NoError(t, card.Credit(ctx, money.New(50, money.USD)))
	assert.Equal(t, int64(150), card.AvailableBalance().AmountMinor)

	err := card.Credit(ctx, money.New(50, money.EUR))
	assert.ErrorIs(t, err, money.ErrCurrencyMismatch)
}

func TestConcurrentDebitsNeverOverdraw(t *testing.T) {
	// 100 goroutines each try to take 10 from a balance of 500: at most 50
	// debits can settle and the balance must never go negative.
	ctx := context.Background()
	card := newCard(t, validPAN, 500)

	var wg sync.WaitGroup
	var mu sync.Mutex
	settled := 0

	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := card.Debit(ctx, money.New(10, money.USD))
			if err == nil {
				mu.Lock()
				settled++
				mu.Unlock()
				return
			}
			var debitErr *instrument.DebitError
			if !errors.As(err, &debitErr) {
				t.Errorf("unexpected error type: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 50, settled)
	assert.Equal(t, int64(0), card.AvailableBalance().AmountMinor)
	assert.False(t, card.AvailableBalance().IsNegative())
}

func TestRegistry(t *testing.T) {
	reg := instrument.NewRegistry()

	ref0 := reg.Register(newCard(t, validPAN, 1000))
	ref1 := reg.Register(newCard(t, "5555555555554444", 2000))
	assert.Equal(t, 0, ref0)
	assert.Equal(t, 1, ref1)
	assert.Equal(t, 2, reg.Len())

	_, ok := reg.Get(ref1)
	assert.True(t, ok)
	_, ok = reg.Get(99)
	assert.False(t, ok)
	_, ok = reg.Get(-1)
	assert.False(t, ok)

	snaps := reg.Snapshots()
	require.Len(t, snaps, 2)
	assert.Equal(t, 0, snaps[0].Ref)
	assert.True(t, snaps[0].Usable)
	assert.NotContains(t, snaps[0].Token, validPAN)
}
