package money_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"splitpay/internal/common/money"
)

func TestParseMajor(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		currency money.Currency
		want     int64
		wantErr  bool
	}{
		{name: "whole dollars", input: "700", currency: money.USD, want: 70000},
		{name: "dollars and cents", input: "123.45", currency: money.USD, want: 12345},
		{name: "single decimal", input: "0.5", currency: money.USD, want: 50},
		{name: "negative", input: "-12.34", currency: money.USD, want: -1234},
		{name: "zero-decimal currency", input: "500", currency: money.JPY, want: 500},
		{name: "too much precision", input: "1.005", currency: money.USD, wantErr: true},
		{name: "precision in JPY", input: "1.5", currency: money.JPY, wantErr: true},
		{name: "garbage", input: "abc", currency: money.USD, wantErr: true},
		{name: "empty", input: "", currency: money.USD, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := money.ParseMajor(tt.input, tt.currency)
			if tt.wantErr {
				assert.ErrorIs(t, err, money.ErrInvalidAmount)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.AmountMinor)
			assert.Equal(t, tt.currency, got.Currency)
		})
	}
}

func TestAddSubCurrencyMismatch(t *testing.T) {
	usd := money.New(100, money.USD)
	eur := money.New(100, money.EUR)

	_, err := usd.Add(eur)
	assert.ErrorIs(t, err, money.ErrCurrencyMismatch)

	_, err = usd.Sub(eur)
	assert.ErrorIs(t, err, money.ErrCurrencyMismatch)
}

func TestMulRatioRoundsHalfAwayFromZero(t *testing.T) {
	// 0.125 * 100 cents = 12.5 -> 13
	assert.Equal(t, int64(13), money.New(100, money.USD).MulRatio(0.125).AmountMinor)
	// negative amounts round away from zero too
	assert.Equal(t, int64(-13), money.New(-100, money.USD).MulRatio(0.125).AmountMinor)
}

func TestAllocateByRatios(t *testing.T) {
	t.Run("exact split leaves no residual", func(t *testing.T) {
		parts := money.New(70000, money.USD).AllocateByRatios([]float64{0.5, 0.3, 0.2})
		assert.Equal(t, int64(35000), parts[0].AmountMinor)
		assert.Equal(t, int64(21000), parts[1].AmountMinor)
		assert.Equal(t, int64(14000), parts[2].AmountMinor)
		assert.Equal(t, int64(70000), money.MustSum(parts...).AmountMinor)
	})

	t.Run("rounding residual lands on first part", func(t *testing.T) {
		third := 1.0 / 3.0
		parts := money.New(10000, money.USD).AllocateByRatios([]float64{third, third, third})
		assert.Equal(t, int64(3334), parts[0].AmountMinor)
		assert.Equal(t, int64(3333), parts[1].AmountMinor)
		assert.Equal(t, int64(3333), parts[2].AmountMinor)
		assert.Equal(t, int64(10000), money.MustSum(parts...).AmountMinor)
	})
}

func TestSumEquals(t *testing.T) {
	total := money.New(70000, money.USD)

	exact := []money.Money{
		money.New(35000, money.USD),
		money.New(25000, money.USD),
		money.New(10000, money.USD),
	}
	assert.True(t, money.SumEquals(exact, total))

	offByOne := []money.Money{
		money.New(35000, money.USD),
		money.New(25000, money.USD),
		money.New(10001, money.USD),
	}
	assert.True(t, money.SumEquals(offByOne, total), "one minor unit is within tolerance")

	offByTwo := []money.Money{
		money.New(35000, money.USD),
		money.New(25000, money.USD),
		money.New(10002, money.USD),
	}
	assert.False(t, money.SumEquals(offByTwo, total))

	mixed := []money.Money{
		money.New(35000, money.USD),
		money.New(35000, money.EUR),
	}
	assert.False(t, money.SumEquals(mixed, total), "currency mismatch never sums")
}

func TestMin(t *testing.T) {
	a := money.New(100, money.USD)
	b := money.New(200, money.USD)
	assert.Equal(t, a, money.Min(a, b))
	assert.Equal(t, a, money.Min(b, a))
}
