package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/suuupra/upi-switch/internal/api/httpx"
	"github.com/suuupra/upi-switch/internal/api/validate"
	"github.com/suuupra/upi-switch/internal/models"
	"github.com/suuupra/upi-switch/internal/services"
)

type TransactionHandlers struct {
	Switch *services.SwitchService
}

// Process accepts a payment instruction and returns the orchestrator's
// response. The HTTP status mirrors the error code; the body always carries
// the full typed response.
func (h *TransactionHandlers) Process(w http.ResponseWriter, r *http.Request) {
	var req models.TransactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "bad_request", "invalid request body", nil)
		return
	}

	var errs validate.Errs
	if e := validate.Required("transaction_id", req.TransactionID); e != nil {
		errs = append(errs, *e)
	}
	if e := validate.Required("payer_vpa", req.PayerVPA); e != nil {
		errs = append(errs, *e)
	}
	if e := validate.Required("payee_vpa", req.PayeeVPA); e != nil {
		errs = append(errs, *e)
	}
	if e := validate.MinInt("amount_paisa", req.AmountPaisa, 1); e != nil {
		errs = append(errs, *e)
	}
	if len(errs) > 0 {
		httpx.WriteError(w, http.StatusBadRequest, "bad_request", errs.Error(), errs)
		return
	}

	resp := h.Switch.ProcessTransaction(r.Context(), &req)
	httpx.WriteJSON(w, statusFor(resp), resp)
}

func statusFor(resp *models.TransactionResponse) int {
	switch resp.ErrorCode {
	case "":
		return http.StatusOK
	case models.ErrCodeValidation:
		return http.StatusBadRequest
	case models.ErrCodeVPAResolution:
		return http.StatusNotFound
	case models.ErrCodeBankUnavailable:
		return http.StatusServiceUnavailable
	case models.ErrCodeProcessing:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func (h *TransactionHandlers) Get(w http.ResponseWriter, r *http.Request) {
	txn, err := h.Switch.GetTransaction(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httpx.WriteError(w, http.StatusNotFound, "not_found", "transaction not found", nil)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, txn)
}

func (h *TransactionHandlers) GetByRRN(w http.ResponseWriter, r *http.Request) {
	txn, err := h.Switch.GetTransactionByRRN(r.Context(), chi.URLParam(r, "rrn"))
	if err != nil {
		httpx.WriteError(w, http.StatusNotFound, "not_found", "transaction not found", nil)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, txn)
}

func (h *TransactionHandlers) List(w http.ResponseWriter, r *http.Request) {
	vpa := r.URL.Query().Get("vpa")
	status := r.URL.Query().Get("status")
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}

	var txns []*models.Transaction
	var err error
	switch {
	case vpa != "":
		txns, err = h.Switch.ListTransactionsByVPA(r.Context(), vpa, limit)
	case status != "":
		txns, err = h.Switch.ListTransactionsByStatus(r.Context(), models.TransactionStatus(status), limit)
	default:
		httpx.WriteError(w, http.StatusBadRequest, "bad_request", "vpa or status query parameter required", nil)
		return
	}
	if err != nil {
		httpx.WriteError(w, http.StatusInternalServerError, "internal_error", err.Error(), nil)
		return
	}
	if txns == nil {
		txns = []*models.Transaction{}
	}
	httpx.WriteJSON(w, http.StatusOK, txns)
}
