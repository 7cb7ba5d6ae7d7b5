package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/pocketbase/pocketbase"
	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"
	"github.com/shopspring/decimal"

	"ticketgate/internal/services"
	"ticketgate/internal/status"
	"ticketgate/models"
)

type TicketHandler struct {
	app     *pocketbase.PocketBase
	tickets *services.TicketService
	qr      *services.QRService
	notify  *services.NotificationService
}

func NewTicketHandler(app *pocketbase.PocketBase, tickets *services.TicketService, qr *services.QRService, notify *services.NotificationService) *TicketHandler {
	return &TicketHandler{
		app:     app,
		tickets: tickets,
		qr:      qr,
		notify:  notify,
	}
}

type issueRequest struct {
	EventID  string          `json:"event_id"`
	OrderRef string          `json:"order_ref"`
	Tier     string          `json:"tier"`
	Attendee struct {
		Name  string `json:"name"`
		Email string `json:"email"`
		Phone string `json:"phone"`
	} `json:"attendee"`
	Price    decimal.Decimal `json:"price"`
	Currency string          `json:"currency"`
}

// Issue - Purchase confirmation: reserve capacity, create the ticket and
// email the rendered code to the attendee.
func (h *TicketHandler) Issue(e *core.RequestEvent) error {
	if e.Auth == nil {
		return apis.NewUnauthorizedError("Unauthorized", nil)
	}

	var req issueRequest
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}
	if req.EventID == "" || req.OrderRef == "" {
		return apis.NewBadRequestError("Missing event or order reference", nil)
	}
	if req.Attendee.Name == "" || req.Attendee.Email == "" {
		return apis.NewBadRequestError("Missing attendee name or email", nil)
	}

	tier, err := models.ParseTier(req.Tier)
	if err != nil {
		return apis.NewBadRequestError("Unknown ticket tier", err)
	}

	ticket, err := h.tickets.Issue(e.Request.Context(), services.IssueParams{
		EventID:       req.EventID,
		UserID:        e.Auth.Id,
		OrderRef:      req.OrderRef,
		Tier:          tier,
		AttendeeName:  req.Attendee.Name,
		AttendeeEmail: req.Attendee.Email,
		AttendeePhone: req.Attendee.Phone,
		Price:         req.Price,
		Currency:      req.Currency,
	})
	if err != nil {
		switch {
		case errors.Is(err, status.ErrTierExhausted):
			return apis.NewApiError(http.StatusConflict, "Tier is sold out", nil)
		case errors.Is(err, status.ErrTierNotFound):
			return apis.NewNotFoundError("No such tier for this event", nil)
		case errors.Is(err, status.ErrTierInactive):
			return apis.NewBadRequestError("Tier is not on sale", nil)
		default:
			slog.Error("h.tickets.Issue()", "event", req.EventID, "tier", req.Tier, "error", err)
			return apis.NewInternalServerError("Failed to issue ticket", err)
		}
	}

	go h.dispatchTicketEmail(ticket)

	return e.JSON(http.StatusOK, ticket)
}

// MyTickets - The authenticated user's own tickets
func (h *TicketHandler) MyTickets(e *core.RequestEvent) error {
	if e.Auth == nil {
		return apis.NewUnauthorizedError("Unauthorized", nil)
	}

	tickets, err := h.tickets.ListForUser(e.Auth.Id)
	if err != nil {
		return apis.NewInternalServerError("Failed to list tickets", err)
	}

	return e.JSON(http.StatusOK, tickets)
}

// EventTickets - All tickets for an event (staff only, bound via
// RequireSuperuserAuth on the route)
func (h *TicketHandler) EventTickets(e *core.RequestEvent) error {
	eventID := e.Request.PathValue("eventId")
	if eventID == "" {
		return apis.NewBadRequestError("Missing event id", nil)
	}

	tickets, err := h.tickets.ListForEvent(eventID)
	if err != nil {
		return apis.NewInternalServerError("Failed to list tickets", err)
	}

	return e.JSON(http.StatusOK, tickets)
}

// TicketQR - Rendered code image for a ticket; owner or staff only. The
// response is the opaque rendered artifact, never the payload itself.
// Each fetch re-encodes a fresh payload so the code's freshness window
// counts from now, not from purchase.
func (h *TicketHandler) TicketQR(e *core.RequestEvent) error {
	if e.Auth == nil {
		return apis.NewUnauthorizedError("Unauthorized", nil)
	}

	ticket, err := h.tickets.Get(e.Request.PathValue("ticketId"))
	if err != nil {
		if errors.Is(err, status.ErrTicketNotFound) {
			return apis.NewNotFoundError("Ticket not found", nil)
		}
		return apis.NewInternalServerError("Failed to load ticket", err)
	}

	if ticket.UserID != e.Auth.Id && !e.Auth.IsSuperuser() {
		return apis.NewForbiddenError("Access denied", nil)
	}

	encoded, err := h.tickets.FreshPayload(ticket)
	if err != nil {
		return apis.NewInternalServerError("Failed to render code", err)
	}

	png, err := h.qr.RenderPNG(encoded)
	if err != nil {
		return apis.NewInternalServerError("Failed to render code", err)
	}

	return e.Blob(http.StatusOK, "image/png", png)
}

// Cancel - Refund path: active -> cancelled (staff only)
func (h *TicketHandler) Cancel(e *core.RequestEvent) error {
	ticket, err := h.tickets.Cancel(e.Request.Context(), e.Request.PathValue("ticketId"))
	if err != nil {
		switch {
		case errors.Is(err, status.ErrTicketNotFound):
			return apis.NewNotFoundError("Ticket not found", nil)
		case errors.Is(err, status.ErrTicketNotActive):
			return apis.NewBadRequestError("Ticket is not active", nil)
		default:
			return apis.NewInternalServerError("Failed to cancel ticket", err)
		}
	}

	return e.JSON(http.StatusOK, ticket)
}

// dispatchTicketEmail renders the code and sends the ticket email outside
// the request cycle. Failures only log; the purchase already succeeded.
func (h *TicketHandler) dispatchTicketEmail(ticket *models.Ticket) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	png, err := h.qr.RenderPNG(ticket.Payload)
	if err != nil {
		slog.Error("render ticket code for email", "ticket", ticket.ID, "error", err)
		return
	}

	info := services.EventInfo{Name: "your event"}
	if event, err := h.app.FindRecordById("events", ticket.EventID); err == nil {
		info = services.EventInfo{
			Name:     event.GetString("name"),
			Venue:    event.GetString("venue"),
			StartsAt: event.GetDateTime("starts_at").Time(),
		}
	}

	if err := h.notify.SendTicket(ctx, ticket, info, png); err != nil {
		slog.Error("send ticket email", "ticket", ticket.ID, "error", err)
	}
}
