package order_api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/nbd-wtf/go-nostr"

	"ln-ticketing/internal/logger"
	"ln-ticketing/internal/models"
	"ln-ticketing/internal/order"
	orderdb "ln-ticketing/internal/order/db"
	"ln-ticketing/internal/utils"
	"ln-ticketing/internal/zap"
)

type Handler struct {
	Service *order.OrderService
	Logger  *logger.Logger
}

func NewHandler(service *order.OrderService, log *logger.Logger) *Handler {
	return &Handler{Service: service, Logger: log}
}

// RequestTicket handles POST /api/ticket/request.
func (h *Handler) RequestTicket(w http.ResponseWriter, r *http.Request) {
	var req models.OrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	resp, err := h.Service.RequestTicket(r.Context(), req)
	if err != nil {
		switch {
		case errors.Is(err, order.ErrValidation):
			utils.WriteError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, order.ErrSoldOut):
			utils.WriteError(w, http.StatusConflict, err.Error())
		default:
			h.Logger.Error("API", fmt.Sprintf("ticket request failed: %v", err))
			utils.WriteError(w, http.StatusInternalServerError, "failed to create order")
		}
		return
	}

	utils.WriteJSON(w, http.StatusOK, resp)
}

// ClaimOrder handles POST /api/ticket/claim: a client hands over the zap
// receipt it saw on a relay before our own listener did.
func (h *Handler) ClaimOrder(w http.ResponseWriter, r *http.Request) {
	var req models.OrderClaimRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	var receipt nostr.Event
	if err := json.Unmarshal(req.ZapReceipt, &receipt); err != nil {
		utils.WriteError(w, http.StatusBadRequest, "malformed zap receipt")
		return
	}

	err := h.Service.SettleFromZapReceipt(r.Context(), receipt, req.Code)
	if err != nil {
		switch {
		case errors.Is(err, orderdb.ErrOrderNotFound):
			utils.WriteError(w, http.StatusNotFound, "order not found")
		case errors.Is(err, zap.ErrInvalidReceipt),
			errors.Is(err, zap.ErrInvalidEmitter),
			errors.Is(err, zap.ErrInvalidRequest):
			utils.WriteError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, order.ErrEmailDelivery):
			utils.WriteError(w, http.StatusInternalServerError, "order settled but ticket email failed")
		default:
			h.Logger.Error("API", fmt.Sprintf("claim failed: %v", err))
			utils.WriteError(w, http.StatusInternalServerError, "failed to claim order")
		}
		return
	}

	utils.WriteJSON(w, http.StatusOK, map[string]bool{"claimed": true})
}

// VerifyOrder handles POST /api/ticket/verify: the client polls until its
// invoice is settled. An unsettled invoice is 202, not an error.
func (h *Handler) VerifyOrder(w http.ResponseWriter, r *http.Request) {
	var req models.OrderVerifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.EventReferenceID == "" {
		utils.WriteError(w, http.StatusBadRequest, "event_reference_id is required")
		return
	}

	settled, err := h.Service.VerifyAndSettle(r.Context(), req.EventReferenceID, req.Code)
	if err != nil {
		switch {
		case errors.Is(err, orderdb.ErrOrderNotFound):
			utils.WriteError(w, http.StatusNotFound, "order not found")
		case errors.Is(err, order.ErrEmailDelivery):
			utils.WriteError(w, http.StatusInternalServerError, "order settled but ticket email failed")
		default:
			h.Logger.Error("API", fmt.Sprintf("verify failed: %v", err))
			utils.WriteError(w, http.StatusInternalServerError, "failed to verify order")
		}
		return
	}

	if !settled {
		utils.WriteJSON(w, http.StatusAccepted, map[string]bool{"settled": false})
		return
	}
	utils.WriteJSON(w, http.StatusOK, map[string]bool{"settled": true})
}
