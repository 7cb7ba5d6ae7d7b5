package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/pocketbase/pocketbase"
	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"

	"ticketgate/internal/services"
	"ticketgate/internal/status"
	"ticketgate/models"
)

type ValidationHandler struct {
	app     *pocketbase.PocketBase
	tickets *services.TicketService
	audit   *services.AuditService
}

func NewValidationHandler(app *pocketbase.PocketBase, tickets *services.TicketService, audit *services.AuditService) *ValidationHandler {
	return &ValidationHandler{
		app:     app,
		tickets: tickets,
		audit:   audit,
	}
}

type scanRequest struct {
	Code    string `json:"code"`
	Channel string `json:"channel"`
}

// Scan - Validate a scanned code. Read-only: a valid result does not
// consume the ticket; gates confirm via Consume afterwards.
func (h *ValidationHandler) Scan(e *core.RequestEvent) error {
	if e.Auth == nil {
		return apis.NewUnauthorizedError("Unauthorized", nil)
	}

	var req scanRequest
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}
	if req.Code == "" {
		return apis.NewBadRequestError("Missing code", nil)
	}

	result, err := h.tickets.Validate(
		e.Request.Context(),
		req.Code,
		e.Auth.Id,
		models.ParseChannel(req.Channel),
	)
	if err != nil {
		slog.Error("h.tickets.Validate()", "validator", e.Auth.Id, "error", err)
		return apis.NewInternalServerError("Validation failed", err)
	}

	return e.JSON(http.StatusOK, result)
}

// Consume - Mark a validated ticket as used by the calling validator.
func (h *ValidationHandler) Consume(e *core.RequestEvent) error {
	if e.Auth == nil {
		return apis.NewUnauthorizedError("Unauthorized", nil)
	}

	ticket, err := h.tickets.MarkUsed(e.Request.Context(), e.Request.PathValue("ticketId"), e.Auth.Id)
	if err != nil {
		switch {
		case errors.Is(err, status.ErrTicketNotFound):
			return apis.NewNotFoundError("Ticket not found", nil)
		case errors.Is(err, status.ErrTicketNotActive):
			// Not eligible: already used, cancelled or expired. The
			// original used_at is never re-stamped.
			return apis.NewNotFoundError("Ticket is not eligible for admission", nil)
		default:
			slog.Error("h.tickets.MarkUsed()", "validator", e.Auth.Id, "error", err)
			return apis.NewInternalServerError("Failed to consume ticket", err)
		}
	}

	return e.JSON(http.StatusOK, ticket)
}

// Attempts - Audit trail for a ticket (staff only, for dispute
// resolution at the gate)
func (h *ValidationHandler) Attempts(e *core.RequestEvent) error {
	ticket, err := h.tickets.Get(e.Request.PathValue("ticketId"))
	if err != nil {
		if errors.Is(err, status.ErrTicketNotFound) {
			return apis.NewNotFoundError("Ticket not found", nil)
		}
		return apis.NewInternalServerError("Failed to load ticket", err)
	}

	attempts, err := h.audit.ListForTicket(ticket.ID)
	if err != nil {
		return apis.NewInternalServerError("Failed to list attempts", err)
	}

	return e.JSON(http.StatusOK, attempts)
}
