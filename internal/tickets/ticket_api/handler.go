package ticket_api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"ln-ticketing/internal/logger"
	"ln-ticketing/internal/models"
	ticketdb "ln-ticketing/internal/tickets/db"
	"ln-ticketing/internal/tickets/service"
	"ln-ticketing/internal/utils"
)

type Handler struct {
	Service *service.TicketService
	Logger  *logger.Logger
}

func NewHandler(svc *service.TicketService, log *logger.Logger) *Handler {
	return &Handler{Service: svc, Logger: log}
}

type checkInRequest struct {
	TicketID string `json:"ticket_id"`
}

// CheckinTicket handles POST /api/ticket/checkin.
func (h *Handler) CheckinTicket(w http.ResponseWriter, r *http.Request) {
	var req checkInRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	resp, err := h.Service.CheckIn(r.Context(), req.TicketID)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrValidation):
			utils.WriteError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, ticketdb.ErrTicketNotFound):
			utils.WriteError(w, http.StatusNotFound, "ticket not found")
		default:
			h.Logger.Error("API", fmt.Sprintf("check-in failed: %v", err))
			utils.WriteError(w, http.StatusInternalServerError, "failed to check in ticket")
		}
		return
	}

	utils.WriteJSON(w, http.StatusOK, resp)
}

// GetTicket handles GET /api/ticket?ticketId=.
func (h *Handler) GetTicket(w http.ResponseWriter, r *http.Request) {
	ticket, err := h.Service.GetTicket(r.Context(), r.URL.Query().Get("ticketId"))
	if err != nil {
		switch {
		case errors.Is(err, service.ErrValidation):
			utils.WriteError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, ticketdb.ErrTicketNotFound):
			utils.WriteError(w, http.StatusNotFound, "ticket not found")
		default:
			h.Logger.Error("API", fmt.Sprintf("ticket lookup failed: %v", err))
			utils.WriteError(w, http.StatusInternalServerError, "failed to fetch ticket")
		}
		return
	}

	utils.WriteJSON(w, http.StatusOK, ticket)
}

// GetTicketCount handles GET /api/ticket/count. The count feeds the public
// price display, so it is served uncached and cross-origin.
func (h *Handler) GetTicketCount(w http.ResponseWriter, r *http.Request) {
	count, err := h.Service.CountByType(r.Context(), r.URL.Query().Get("type"))
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("ticket count failed: %v", err))
		utils.WriteError(w, http.StatusInternalServerError, "failed to count tickets")
		return
	}

	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	utils.WriteJSON(w, http.StatusOK, map[string]int{"totalTickets": count})
}

// ListTickets handles GET /api/ticket/all.
func (h *Handler) ListTickets(w http.ResponseWriter, r *http.Request) {
	tickets, err := h.Service.ListAll(r.Context())
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("ticket listing failed: %v", err))
		utils.WriteError(w, http.StatusInternalServerError, "failed to list tickets")
		return
	}
	utils.WriteJSON(w, http.StatusOK, tickets)
}

// CreateInvite handles POST /api/ticket/invite.
func (h *Handler) CreateInvite(w http.ResponseWriter, r *http.Request) {
	var req models.InviteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	results, err := h.Service.Invite(r.Context(), req)
	if err != nil {
		if errors.Is(err, service.ErrValidation) {
			utils.WriteError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.Logger.Error("API", fmt.Sprintf("invite failed: %v", err))
		utils.WriteError(w, http.StatusInternalServerError, "failed to create invites")
		return
	}

	utils.WriteJSON(w, http.StatusOK, results)
}
