package migrations

import (
	"github.com/pocketbase/pocketbase/core"
	m "github.com/pocketbase/pocketbase/migrations"
)

func init() {
	m.Register(func(app core.App) error {
		collection := core.NewBaseCollection("raffles")

		collection.Fields.Add(
			&core.TextField{Name: "name", Required: true},
			&core.TextField{Name: "description"},
			&core.TextField{Name: "ticket_price", Required: true},
			&core.SelectField{Name: "currency", Values: []string{"LAK", "USD", "THB"}, MaxSelect: 1, Required: true},
			&core.NumberField{Name: "min_number", OnlyInt: true},
			&core.NumberField{Name: "max_number", OnlyInt: true},
			&core.SelectField{Name: "status", Values: []string{"draft", "active", "closed", "drawn"}, MaxSelect: 1, Required: true},
			&core.AutodateField{Name: "created", OnCreate: true},
			&core.AutodateField{Name: "updated", OnCreate: true, OnUpdate: true},
		)

		collection.AddIndex("idx_raffles_status", false, "status", "")

		return app.Save(collection)
	}, func(app core.App) error {
		collection, err := app.FindCollectionByNameOrId("raffles")
		if err != nil {
			return err
		}
		return app.Delete(collection)
	})
}
