package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/suuupra/upi-switch/internal/api/httpx"
	"github.com/suuupra/upi-switch/internal/models"
	"github.com/suuupra/upi-switch/internal/services"
)

type DirectoryHandlers struct {
	VPAs  *services.VPAService
	Banks *services.BankService
}

func (h *DirectoryHandlers) ResolveVPA(w http.ResponseWriter, r *http.Request) {
	mapping, err := h.VPAs.Resolve(r.Context(), chi.URLParam(r, "vpa"))
	if errors.Is(err, models.ErrVPANotFound) {
		httpx.WriteError(w, http.StatusNotFound, "not_found", "vpa not registered", nil)
		return
	}
	if err != nil {
		httpx.WriteError(w, http.StatusInternalServerError, "internal_error", err.Error(), nil)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, mapping)
}

func (h *DirectoryHandlers) ListBanks(w http.ResponseWriter, r *http.Request) {
	banks, err := h.Banks.ListActive(r.Context())
	if err != nil {
		httpx.WriteError(w, http.StatusInternalServerError, "internal_error", err.Error(), nil)
		return
	}
	if banks == nil {
		banks = []*models.Bank{}
	}
	httpx.WriteJSON(w, http.StatusOK, banks)
}

// UpdateBankStatus is the external health monitor's write path.
func (h *DirectoryHandlers) UpdateBankStatus(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Status models.BankStatus `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Status == "" {
		httpx.WriteError(w, http.StatusBadRequest, "bad_request", "status required", nil)
		return
	}

	code := chi.URLParam(r, "code")
	if err := h.Banks.UpdateStatus(r.Context(), code, req.Status); err != nil {
		if errors.Is(err, models.ErrBankNotFound) {
			httpx.WriteError(w, http.StatusNotFound, "not_found", "bank not registered", nil)
			return
		}
		httpx.WriteError(w, http.StatusInternalServerError, "internal_error", err.Error(), nil)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]string{"bank_code": code, "status": string(req.Status)})
}

func (h *DirectoryHandlers) BankHeartbeat(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")
	if err := h.Banks.RecordHeartbeat(r.Context(), code, time.Now()); err != nil {
		httpx.WriteError(w, http.StatusInternalServerError, "internal_error", err.Error(), nil)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
