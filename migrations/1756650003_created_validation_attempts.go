package migrations

import (
	"github.com/pocketbase/pocketbase/core"
	m "github.com/pocketbase/pocketbase/migrations"
)

// validation_attempts is append-only: no service code updates or deletes
// rows, and no API rules expose writes. ticket_ref is plain text rather
// than a relation so attempts survive even if a ticket row is ever
// removed by an operator.
func init() {
	m.Register(func(app core.App) error {
		collection := core.NewBaseCollection("validation_attempts")

		collection.Fields.Add(
			&core.TextField{
				Name: "ticket_ref",
			},
			&core.SelectField{
				Name:      "channel",
				Required:  true,
				MaxSelect: 1,
				Values:    []string{"scan", "manual", "api"},
			},
			&core.TextField{
				Name:     "validator",
				Required: true,
			},
			&core.SelectField{
				Name:      "result",
				Required:  true,
				MaxSelect: 1,
				Values:    []string{"valid", "invalid", "not_found", "already_used", "cancelled", "expired"},
			},
			&core.TextField{
				Name: "notes",
			},
			&core.AutodateField{
				Name:     "created",
				OnCreate: true,
			},
		)

		collection.AddIndex("idx_validation_attempts_ticket_ref", false, "ticket_ref", "")

		return app.Save(collection)
	}, func(app core.App) error {
		collection, err := app.FindCollectionByNameOrId("validation_attempts")
		if err != nil {
			return err
		}

		return app.Delete(collection)
	})
}
