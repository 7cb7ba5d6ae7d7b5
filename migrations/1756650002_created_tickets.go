package migrations

import (
	"github.com/pocketbase/pocketbase/core"
	m "github.com/pocketbase/pocketbase/migrations"
	"github.com/pocketbase/pocketbase/tools/types"
)

func init() {
	m.Register(func(app core.App) error {
		events, err := app.FindCollectionByNameOrId("events")
		if err != nil {
			return err
		}

		users, err := app.FindCollectionByNameOrId("users")
		if err != nil {
			return err
		}

		collection := core.NewBaseCollection("tickets")

		collection.Fields.Add(
			&core.TextField{
				Name:     "ticket_uid",
				Required: true,
			},
			&core.RelationField{
				Name:         "event",
				Required:     true,
				CollectionId: events.Id,
				MaxSelect:    1,
			},
			&core.RelationField{
				Name:         "user",
				Required:     true,
				CollectionId: users.Id,
				MaxSelect:    1,
			},
			&core.TextField{
				Name:     "order_ref",
				Required: true,
			},
			&core.SelectField{
				Name:      "tier",
				Required:  true,
				MaxSelect: 1,
				Values:    []string{"early_bird", "second_phase", "last_phase", "vip"},
			},
			&core.NumberField{
				Name: "price",
				Min:  types.Pointer(0.0),
			},
			&core.TextField{
				Name: "currency",
				Max:  3,
			},
			&core.TextField{
				Name:     "attendee_name",
				Required: true,
			},
			&core.EmailField{
				Name:     "attendee_email",
				Required: true,
			},
			&core.TextField{
				Name: "attendee_phone",
			},
			&core.TextField{
				Name:     "payload",
				Required: true,
			},
			&core.SelectField{
				Name:      "status",
				Required:  true,
				MaxSelect: 1,
				Values:    []string{"active", "used", "cancelled", "expired"},
			},
			&core.DateField{
				Name: "used_at",
			},
			&core.TextField{
				Name: "used_by",
			},
			&core.DateField{
				Name: "expires_at",
			},
			&core.AutodateField{
				Name:     "created",
				OnCreate: true,
			},
			&core.AutodateField{
				Name:     "updated",
				OnCreate: true,
				OnUpdate: true,
			},
		)

		collection.AddIndex("idx_tickets_ticket_uid", true, "ticket_uid", "")
		collection.AddIndex("idx_tickets_event", false, "event", "")
		collection.AddIndex("idx_tickets_user", false, "user", "")

		return app.Save(collection)
	}, func(app core.App) error {
		collection, err := app.FindCollectionByNameOrId("tickets")
		if err != nil {
			return err
		}

		return app.Delete(collection)
	})
}
