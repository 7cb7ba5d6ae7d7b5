package services

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/pocketbase/dbx"
	"github.com/pocketbase/pocketbase/core"

	"ticketgate/internal/status"
	"ticketgate/models"
)

// InventoryService owns the per-(event, tier) capacity counters. Reserve
// is always called on the transaction app owned by the ticket service so
// the counter increment and the ticket insert commit or roll back as one
// unit.
type InventoryService struct {
	app core.App
}

func NewInventoryService(app core.App) *InventoryService {
	return &InventoryService{app: app}
}

func (s *InventoryService) GetAllocation(eventID string, tier models.TicketTier) (*models.TierAllocation, error) {
	record, err := s.findAllocation(s.app, eventID, tier)
	if err != nil {
		return nil, err
	}
	return models.AllocationFromRecord(record), nil
}

// ListAllocations returns the active tiers for an event with their
// current sold counts, for display before a purchaser commits to a tier.
func (s *InventoryService) ListAllocations(eventID string) ([]*models.TierAllocation, error) {
	records, err := s.app.FindRecordsByFilter(
		"tier_allocations",
		"event = {:event} && active = true",
		"price",
		0,
		0,
		dbx.Params{"event": eventID},
	)
	if err != nil {
		return nil, fmt.Errorf("inventory: list allocations: %w", err)
	}

	allocations := make([]*models.TierAllocation, 0, len(records))
	for _, record := range records {
		allocations = append(allocations, models.AllocationFromRecord(record))
	}

	return allocations, nil
}

// Reserve takes one seat from the allocation, or reports exactly why it
// could not. The capacity check-and-increment is a single conditional
// UPDATE, so two concurrent reservations can never both take the last
// seat: one of them affects zero rows and gets ErrTierExhausted.
func (s *InventoryService) Reserve(txApp core.App, eventID string, tier models.TicketTier) (*models.TierAllocation, error) {
	record, err := s.findAllocation(txApp, eventID, tier)
	if err != nil {
		return nil, err
	}
	if !record.GetBool("active") {
		return nil, status.ErrTierInactive
	}

	res, err := txApp.DB().NewQuery(
		"UPDATE tier_allocations SET sold = sold + 1 WHERE id = {:id} AND active = 1 AND sold < max",
	).Bind(dbx.Params{"id": record.Id}).Execute()
	if err != nil {
		return nil, fmt.Errorf("inventory: reserve: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("inventory: reserve: %w", err)
	}
	if affected == 0 {
		// The allocation existed and was active a moment ago, so losing
		// the conditional update means capacity ran out underneath us.
		return nil, status.ErrTierExhausted
	}

	allocation := models.AllocationFromRecord(record)
	allocation.Sold++

	return allocation, nil
}

func (s *InventoryService) findAllocation(app core.App, eventID string, tier models.TicketTier) (*core.Record, error) {
	record, err := app.FindFirstRecordByFilter(
		"tier_allocations",
		"event = {:event} && tier = {:tier}",
		dbx.Params{"event": eventID, "tier": string(tier)},
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, status.ErrTierNotFound
		}
		return nil, fmt.Errorf("inventory: find allocation: %w", err)
	}
	return record, nil
}
