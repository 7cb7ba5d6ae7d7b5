package handlers

import (
	"net/http"

	"github.com/pocketbase/pocketbase"
	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"

	"ticketgate/internal/services"
)

type TierHandler struct {
	app       *pocketbase.PocketBase
	inventory *services.InventoryService
}

func NewTierHandler(app *pocketbase.PocketBase, inventory *services.InventoryService) *TierHandler {
	return &TierHandler{
		app:       app,
		inventory: inventory,
	}
}

// ListTiers - Active tiers for an event with remaining capacity
func (h *TierHandler) ListTiers(e *core.RequestEvent) error {
	eventID := e.Request.PathValue("eventId")
	if eventID == "" {
		return apis.NewBadRequestError("Missing event id", nil)
	}

	allocations, err := h.inventory.ListAllocations(eventID)
	if err != nil {
		return apis.NewInternalServerError("Failed to list tiers", err)
	}

	result := make([]map[string]any, 0, len(allocations))
	for _, allocation := range allocations {
		result = append(result, map[string]any{
			"tier":      allocation.Tier,
			"price":     allocation.Price,
			"currency":  allocation.Currency,
			"remaining": allocation.Remaining(),
		})
	}

	return e.JSON(http.StatusOK, result)
}
