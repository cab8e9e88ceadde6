package migrations

import (
	"github.com/pocketbase/pocketbase/core"
	m "github.com/pocketbase/pocketbase/migrations"
)

func init() {
	m.Register(func(app core.App) error {
		raffles, err := app.FindCollectionByNameOrId("raffles")
		if err != nil {
			return err
		}
		orders, err := app.FindCollectionByNameOrId("orders")
		if err != nil {
			return err
		}

		collection := core.NewBaseCollection("tickets")

		collection.Fields.Add(
			&core.RelationField{Name: "raffle", CollectionId: raffles.Id, MaxSelect: 1, Required: true, CascadeDelete: true},
			&core.NumberField{Name: "number", OnlyInt: true},
			&core.SelectField{
				Name:      "status",
				Values:    []string{"AVAILABLE", "RESERVED", "SOLD"},
				MaxSelect: 1,
				Required:  true,
			},
			&core.RelationField{Name: "order", CollectionId: orders.Id, MaxSelect: 1},
			&core.DateField{Name: "reserved_until"},
			&core.AutodateField{Name: "created", OnCreate: true},
			&core.AutodateField{Name: "updated", OnCreate: true, OnUpdate: true},
		)

		collection.AddIndex("idx_tickets_raffle_number", true, "raffle, number", "")
		collection.AddIndex("idx_tickets_raffle_status", false, "raffle, status", "")
		collection.AddIndex("idx_tickets_expiry", false, "reserved_until", "status = 'RESERVED'")

		return app.Save(collection)
	}, func(app core.App) error {
		collection, err := app.FindCollectionByNameOrId("tickets")
		if err != nil {
			return err
		}
		return app.Delete(collection)
	})
}
