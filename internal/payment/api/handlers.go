// Package api exposes the payment coordinator over HTTP.
package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"splitpay/internal/common/api"
	"splitpay/internal/common/money"
	"splitpay/internal/instrument"
	"splitpay/internal/payment"
)

// Handler handles payment HTTP requests
type Handler struct {
	service   *payment.Service
	tokenizer instrument.Tokenizer
}

// NewHandler creates a new payment handler
func NewHandler(service *payment.Service, tokenizer instrument.Tokenizer) *Handler {
	return &Handler{service: service, tokenizer: tokenizer}
}

// Routes returns the payment routes
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Post("/instruments", h.RegisterInstrument)
	r.Get("/instruments", h.ListInstruments)

	r.Post("/profiles", h.SaveProfile)

	r.Post("/charges", h.ProcessCharge)
	r.Get("/charges", h.ListCharges)
	r.Get("/charges/{id}", h.GetCharge)
	r.Post("/charges/{id}/refund", h.RefundCharge)

	return r
}

// RegisterInstrumentRequest is the API request for registering a card
type RegisterInstrumentRequest struct {
	CardNumber string `json:"card_number" validate:"required,min=12,max=19"`
	ExpMonth   int    `json:"exp_month" validate:"required,gte=1,lte=12"`
	ExpYear    int    `json:"exp_year" validate:"required,gte=2000"`
	Balance    string `json:"balance" validate:"required"`
	Currency   string `json:"currency" validate:"required,len=3"`
}

// RegisterInstrumentResponse carries the ref and redacted token; the card
// number is never echoed back.
type RegisterInstrumentResponse struct {
	Ref   int    `json:"ref"`
	Token string `json:"token"`
}

// RegisterInstrument handles POST /instruments
func (h *Handler) RegisterInstrument(w http.ResponseWriter, r *http.Request) {
	var req RegisterInstrumentRequest
	if err := api.DecodeAndValidate(r, &req); err != nil {
		api.ValidationError(w, err)
		return
	}

	balance, err := money.ParseMajor(req.Balance, money.Currency(req.Currency))
	if err != nil {
		api.WriteError(w, http.StatusBadRequest, "INVALID_AMOUNT", err.Error())
		return
	}

	card, err := instrument.NewCard(req.CardNumber, req.ExpMonth, req.ExpYear, balance, h.tokenizer)
	if err != nil {
		api.BadRequest(w, err.Error())
		return
	}

	ref := h.service.RegisterInstrument(card)
	api.WriteData(w, http.StatusCreated, RegisterInstrumentResponse{Ref: ref, Token: card.Token()})
}

// ListInstruments handles GET /instruments
func (h *Handler) ListInstruments(w http.ResponseWriter, r *http.Request) {
	api.WriteData(w, http.StatusOK, h.service.Instruments())
}

// SaveProfileRequest is the API request for saving a payment profile
type SaveProfileRequest struct {
	Name   string    `json:"name" validate:"required,max=100"`
	Refs   []int     `json:"refs" validate:"required,min=1,max=3"`
	Ratios []float64 `json:"ratios,omitempty"`
}

// SaveProfile handles POST /profiles
func (h *Handler) SaveProfile(w http.ResponseWriter, r *http.Request) {
	var req SaveProfileRequest
	if err := api.DecodeAndValidate(r, &req); err != nil {
		api.ValidationError(w, err)
		return
	}

	err := h.service.SaveProfile(payment.Profile{
		Name:   req.Name,
		Refs:   req.Refs,
		Ratios: req.Ratios,
	})
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	api.WriteData(w, http.StatusCreated, map[string]string{"name": req.Name})
}

// ProcessChargeRequest is the API request for processing a charge
type ProcessChargeRequest struct {
	Total    string   `json:"total" validate:"required"`
	Currency string   `json:"currency" validate:"required,len=3"`
	Refs     []int    `json:"refs,omitempty"`
	Amounts  []string `json:"amounts,omitempty"`
	Profile  string   `json:"profile,omitempty"`
}

// ProcessCharge handles POST /charges
func (h *Handler) ProcessCharge(w http.ResponseWriter, r *http.Request) {
	var req ProcessChargeRequest
	if err := api.DecodeAndValidate(r, &req); err != nil {
		api.ValidationError(w, err)
		return
	}

	currency := money.Currency(req.Currency)
	total, err := money.ParseMajor(req.Total, currency)
	if err != nil {
		api.WriteError(w, http.StatusBadRequest, "INVALID_AMOUNT", err.Error())
		return
	}

	var amounts []money.Money
	for _, a := range req.Amounts {
		m, err := money.ParseMajor(a, currency)
		if err != nil {
			api.WriteError(w, http.StatusBadRequest, "INVALID_AMOUNT", err.Error())
			return
		}
		amounts = append(amounts, m)
	}

	tx, err := h.service.Process(r.Context(), payment.ProcessRequest{
		Total:       total,
		Refs:        req.Refs,
		Amounts:     amounts,
		ProfileName: req.Profile,
	})
	if err != nil {
		// Execution failures carry the recorded transaction for diagnostics.
		var debitErr *payment.DebitFailedError
		if errors.As(err, &debitErr) && tx != nil {
			api.WriteJSON(w, http.StatusPaymentRequired, api.Response[*payment.Transaction]{
				Data:  tx,
				Error: &api.Error{Code: payment.ErrorCode(err), Message: err.Error()},
			})
			return
		}
		h.writeServiceError(w, err)
		return
	}

	api.WriteData(w, http.StatusCreated, tx)
}

// ListCharges handles GET /charges
func (h *Handler) ListCharges(w http.ResponseWriter, r *http.Request) {
	transactions, err := h.service.ListTransactions(r.Context())
	if err != nil {
		api.InternalError(w, "failed to list transactions")
		return
	}
	api.WriteData(w, http.StatusOK, transactions)
}

// GetCharge handles GET /charges/{id}
func (h *Handler) GetCharge(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		api.BadRequest(w, "transaction ID required")
		return
	}

	tx, err := h.service.GetTransaction(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	api.WriteData(w, http.StatusOK, tx)
}

// RefundCharge handles POST /charges/{id}/refund
func (h *Handler) RefundCharge(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		api.BadRequest(w, "transaction ID required")
		return
	}

	refundID, err := h.service.Refund(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	api.WriteData(w, http.StatusCreated, map[string]string{"refund_transaction_id": refundID})
}

// writeServiceError maps coordinator errors onto HTTP statuses.
func (h *Handler) writeServiceError(w http.ResponseWriter, err error) {
	code := payment.ErrorCode(err)

	var status int
	switch {
	case errors.Is(err, payment.ErrTransactionNotFound),
		errors.Is(err, payment.ErrProfileNotFound),
		errors.Is(err, payment.ErrUnknownInstrument):
		status = http.StatusNotFound
	case errors.Is(err, payment.ErrRefundNotAllowed):
		status = http.StatusConflict
	case errors.Is(err, payment.ErrInsufficientAggregateFunds):
		status = http.StatusPaymentRequired
	case errors.Is(err, payment.ErrInvalidAmount),
		errors.Is(err, payment.ErrInvalidInstrumentCount),
		errors.Is(err, payment.ErrSplitCountMismatch),
		errors.Is(err, payment.ErrSplitSumMismatch),
		errors.Is(err, money.ErrInvalidAmount),
		errors.Is(err, money.ErrCurrencyMismatch):
		status = http.StatusBadRequest
	default:
		var unusable *payment.UnusableInstrumentError
		if errors.As(err, &unusable) {
			status = http.StatusUnprocessableEntity
		} else {
			status = http.StatusInternalServerError
		}
	}

	api.WriteError(w, status, code, err.Error())
}
