package services

import (
	"fmt"
	"log/slog"

	"github.com/pocketbase/dbx"
	"github.com/pocketbase/pocketbase/core"

	"ticketgate/models"
)

// AuditService is the append-only record of every validation attempt,
// including rejected ones. It deliberately exposes no update or delete —
// the trail's evidentiary value depends on records never changing after
// creation.
type AuditService struct {
	app core.App
}

func NewAuditService(app core.App) *AuditService {
	return &AuditService{app: app}
}

// Record appends one attempt. Failures are logged and swallowed: the
// audit write must never change the outcome the validator already got.
func (s *AuditService) Record(ticketRef string, channel models.ValidationChannel, validator string, result models.ValidationStatus, notes string) {
	collection, err := s.app.FindCollectionByNameOrId("validation_attempts")
	if err != nil {
		slog.Error("audit: find collection", "error", err)
		return
	}

	record := core.NewRecord(collection)
	record.Set("ticket_ref", ticketRef)
	record.Set("channel", string(channel))
	record.Set("validator", validator)
	record.Set("result", string(result))
	record.Set("notes", notes)

	if err := s.app.Save(record); err != nil {
		slog.Error("audit: save attempt",
			"ticket_ref", ticketRef,
			"result", string(result),
			"error", err,
		)
	}
}

// ListForTicket returns a ticket's attempts, newest first, for staff
// dispute resolution.
func (s *AuditService) ListForTicket(ticketRef string) ([]*models.ValidationAttempt, error) {
	records, err := s.app.FindRecordsByFilter(
		"validation_attempts",
		"ticket_ref = {:ref}",
		"-created",
		0,
		0,
		dbx.Params{"ref": ticketRef},
	)
	if err != nil {
		return nil, fmt.Errorf("audit: list attempts: %w", err)
	}

	attempts := make([]*models.ValidationAttempt, 0, len(records))
	for _, record := range records {
		attempts = append(attempts, models.AttemptFromRecord(record))
	}

	return attempts, nil
}
