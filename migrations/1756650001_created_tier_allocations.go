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

		collection := core.NewBaseCollection("tier_allocations")

		collection.Fields.Add(
			&core.RelationField{
				Name:         "event",
				Required:     true,
				CollectionId: events.Id,
				MaxSelect:    1,
			},
			&core.SelectField{
				Name:      "tier",
				Required:  true,
				MaxSelect: 1,
				Values:    []string{"early_bird", "second_phase", "last_phase", "vip"},
			},
			&core.NumberField{
				Name:     "max",
				Required: true,
				OnlyInt:  true,
				Min:      types.Pointer(1.0),
			},
			&core.NumberField{
				Name:    "sold",
				OnlyInt: true,
				Min:     types.Pointer(0.0),
			},
			&core.NumberField{
				Name:     "price",
				Required: true,
				Min:      types.Pointer(0.0),
			},
			&core.TextField{
				Name: "currency",
				Max:  3,
			},
			&core.BoolField{
				Name: "active",
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

		// One allocation per (event, tier); the sold counter is a single
		// contended row per pair.
		collection.AddIndex("idx_tier_allocations_event_tier", true, "event, tier", "")

		return app.Save(collection)
	}, func(app core.App) error {
		collection, err := app.FindCollectionByNameOrId("tier_allocations")
		if err != nil {
			return err
		}

		return app.Delete(collection)
	})
}
