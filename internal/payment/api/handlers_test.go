package api_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	commonapi "splitpay/internal/common/api"
	"splitpay/internal/instrument"
	"splitpay/internal/payment"
	"splitpay/internal/payment/api"
)

type envelope struct {
	Data  json.RawMessage  `json:"data"`
	Error *commonapi.Error `json:"error"`
}

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	service := payment.NewService(
		instrument.NewRegistry(),
		payment.NewProfileStore(),
		payment.NewMemoryLedger(),
		payment.NopPublisher{},
		logger,
	)
	return api.NewHandler(service, instrument.ULIDTokenizer{}).Routes()
}

func doJSON(t *testing.T, router http.Handler, method, path string, body any) (*httptest.ResponseRecorder, envelope) {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	var env envelope
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	}
	return rec, env
}

func registerCard(t *testing.T, router http.Handler, pan, balance string) int {
	t.Helper()
	rec, env := doJSON(t, router, http.MethodPost, "/instruments", map[string]any{
		"card_number": pan,
		"exp_month":   12,
		"exp_year":    2039,
		"balance":     balance,
		"currency":    "USD",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var resp api.RegisterInstrumentResponse
	require.NoError(t, json.Unmarshal(env.Data, &resp))
	return resp.Ref
}

func TestRegisterInstrumentEndpoint(t *testing.T) {
	router := newTestRouter(t)

	t.Run("created with redacted token", func(t *testing.T) {
		rec, env := doJSON(t, router, http.MethodPost, "/instruments", map[string]any{
			"card_number": "4111111111111111",
			"exp_month":   12,
			"exp_year":    2039,
			"balance":     "500.00",
			"currency":    "USD",
		})
		require.Equal(t, http.StatusCreated, rec.Code)

		var resp api.RegisterInstrumentResponse
		require.NoError(t, json.Unmarshal(env.Data, &resp))
		assert.NotContains(t, resp.Token, "4111111111111111")
		assert.NotContains(t, rec.Body.String(), "4111111111111111", "PAN never echoed")
	})

	t.Run("missing fields fail validation", func(t *testing.T) {
		rec, env := doJSON(t, router, http.MethodPost, "/instruments", map[string]any{
			"card_number": "4111111111111111",
		})
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
		require.NotNil(t, env.Error)
		assert.Equal(t, commonapi.ErrCodeValidation, env.Error.Code)
	})

	t.Run("unparseable balance", func(t *testing.T) {
		rec, env := doJSON(t, router, http.MethodPost, "/instruments", map[string]any{
			"card_number": "4111111111111111",
			"exp_month":   12,
			"exp_year":    2039,
			"balance":     "lots",
			"currency":    "USD",
		})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		require.NotNil(t, env.Error)
		assert.Equal(t, "INVALID_AMOUNT", env.Error.Code)
	})

	t.Run("list shows snapshots without PANs", func(t *testing.T) {
		rec, _ := doJSON(t, router, http.MethodGet, "/instruments", nil)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.NotContains(t, rec.Body.String(), "4111111111111111")
	})
}

func TestProcessChargeEndpoint(t *testing.T) {
	t.Run("sequential charge settles", func(t *testing.T) {
		router := newTestRouter(t)
		ref0 := registerCard(t, router, "4111111111111111", "500.00")
		ref1 := registerCard(t, router, "5555555555554444", "300.00")

		rec, env := doJSON(t, router, http.MethodPost, "/charges", map[string]any{
			"total":    "700.00",
			"currency": "USD",
			"refs":     []int{ref0, ref1},
		})
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

		var tx payment.Transaction
		require.NoError(t, json.Unmarshal(env.Data, &tx))
		assert.Equal(t, payment.StatusSuccess, tx.Status)
		require.Len(t, tx.Charges, 2)
		assert.Equal(t, int64(50000), tx.Charges[0].Amount.AmountMinor)
		assert.Equal(t, int64(20000), tx.Charges[1].Amount.AmountMinor)
	})

	t.Run("fixed amounts parse as major units", func(t *testing.T) {
		router := newTestRouter(t)
		ref0 := registerCard(t, router, "4111111111111111", "500.00")
		ref1 := registerCard(t, router, "5555555555554444", "300.00")

		rec, env := doJSON(t, router, http.MethodPost, "/charges", map[string]any{
			"total":    "400.00",
			"currency": "USD",
			"refs":     []int{ref0, ref1},
			"amounts":  []string{"250.00", "150.00"},
		})
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

		var tx payment.Transaction
		require.NoError(t, json.Unmarshal(env.Data, &tx))
		assert.Equal(t, int64(25000), tx.Charges[0].Amount.AmountMinor)
	})

	t.Run("aggregate shortfall returns 402 without a record", func(t *testing.T) {
		router := newTestRouter(t)
		ref0 := registerCard(t, router, "4111111111111111", "100.00")

		rec, env := doJSON(t, router, http.MethodPost, "/charges", map[string]any{
			"total":    "150.00",
			"currency": "USD",
			"refs":     []int{ref0},
		})
		assert.Equal(t, http.StatusPaymentRequired, rec.Code)
		require.NotNil(t, env.Error)
		assert.Equal(t, "INSUFFICIENT_AGGREGATE_FUNDS", env.Error.Code)

		rec, env = doJSON(t, router, http.MethodGet, "/charges", nil)
		assert.Equal(t, http.StatusOK, rec.Code)
		var all []payment.Transaction
		if len(env.Data) > 0 {
			require.NoError(t, json.Unmarshal(env.Data, &all))
		}
		assert.Empty(t, all, "rejected charge leaves no record")
	})

	t.Run("mid-plan debit failure returns the failed record", func(t *testing.T) {
		router := newTestRouter(t)
		ref0 := registerCard(t, router, "4111111111111111", "500.00")
		ref1 := registerCard(t, router, "5555555555554444", "300.00")

		rec, env := doJSON(t, router, http.MethodPost, "/charges", map[string]any{
			"total":    "700.00",
			"currency": "USD",
			"refs":     []int{ref0, ref1},
			"amounts":  []string{"300.00", "400.00"},
		})
		assert.Equal(t, http.StatusPaymentRequired, rec.Code)
		require.NotNil(t, env.Error)
		assert.Equal(t, instrument.CodeInsufficientFunds, env.Error.Code)

		var tx payment.Transaction
		require.NoError(t, json.Unmarshal(env.Data, &tx))
		assert.Equal(t, payment.StatusFailed, tx.Status)
	})

	t.Run("unusable instrument returns 422", func(t *testing.T) {
		router := newTestRouter(t)
		ref0 := registerCard(t, router, "1234567890123456", "500.00") // bad checksum

		rec, env := doJSON(t, router, http.MethodPost, "/charges", map[string]any{
			"total":    "100.00",
			"currency": "USD",
			"refs":     []int{ref0},
		})
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
		require.NotNil(t, env.Error)
		assert.Equal(t, "INSTRUMENT_UNUSABLE", env.Error.Code)
	})

	t.Run("unknown ref returns 404", func(t *testing.T) {
		router := newTestRouter(t)

		rec, env := doJSON(t, router, http.MethodPost, "/charges", map[string]any{
			"total":    "100.00",
			"currency": "USD",
			"refs":     []int{9},
		})
		assert.Equal(t, http.StatusNotFound, rec.Code)
		require.NotNil(t, env.Error)
		assert.Equal(t, "UNKNOWN_INSTRUMENT", env.Error.Code)
	})
}

func TestProfileEndpoint(t *testing.T) {
	router := newTestRouter(t)
	ref0 := registerCard(t, router, "4111111111111111", "500.00")
	ref1 := registerCard(t, router, "5555555555554444", "300.00")

	rec, _ := doJSON(t, router, http.MethodPost, "/profiles", map[string]any{
		"name":   "even",
		"refs":   []int{ref0, ref1},
		"ratios": []float64{0.5, 0.5},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec, env := doJSON(t, router, http.MethodPost, "/charges", map[string]any{
		"total":    "200.00",
		"currency": "USD",
		"profile":  "even",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var tx payment.Transaction
	require.NoError(t, json.Unmarshal(env.Data, &tx))
	require.Len(t, tx.Charges, 2)
	assert.Equal(t, int64(10000), tx.Charges[0].Amount.AmountMinor)
	assert.Equal(t, int64(10000), tx.Charges[1].Amount.AmountMinor)

	rec, env = doJSON(t, router, http.MethodPost, "/charges", map[string]any{
		"total":    "100.00",
		"currency": "USD",
		"profile":  "missing",
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, "PROFILE_NOT_FOUND", env.Error.Code)
}

func TestRefundEndpoint(t *testing.T) {
	router := newTestRouter(t)
	ref0 := registerCard(t, router, "4111111111111111", "500.00")

	rec, env := doJSON(t, router, http.MethodPost, "/charges", map[string]any{
		"total":    "100.00",
		"currency": "USD",
		"refs":     []int{ref0},
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	var tx payment.Transaction
	require.NoError(t, json.Unmarshal(env.Data, &tx))

	rec, env = doJSON(t, router, http.MethodPost, fmt.Sprintf("/charges/%s/refund", tx.ID), nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var refund map[string]string
	require.NoError(t, json.Unmarshal(env.Data, &refund))
	assert.NotEmpty(t, refund["refund_transaction_id"])

	rec, env = doJSON(t, router, http.MethodGet, "/charges/"+tx.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var refreshed payment.Transaction
	require.NoError(t, json.Unmarshal(env.Data, &refreshed))
	assert.Equal(t, payment.StatusRefunded, refreshed.Status)

	rec, env = doJSON(t, router, http.MethodPost, fmt.Sprintf("/charges/%s/refund", tx.ID), nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, "REFUND_NOT_ALLOWED", env.Error.Code)

	rec, env = doJSON(t, router, http.MethodPost, "/charges/missing/refund", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, "TRANSACTION_NOT_FOUND", env.Error.Code)
}
