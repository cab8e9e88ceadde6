package migrations

import (
	"github.com/pocketbase/pocketbase/core"
	m "github.com/pocketbase/pocketbase/migrations"
)

// Draw support: raffles gained a draw date and the winning number.
func init() {
	m.Register(func(app core.App) error {
		collection, err := app.FindCollectionByNameOrId("raffles")
		if err != nil {
			return err
		}

		collection.Fields.Add(
			&core.DateField{Name: "draw_date"},
			&core.NumberField{Name: "winner_number", OnlyInt: true},
			&core.DateField{Name: "drawn_at"},
		)

		return app.Save(collection)
	}, func(app core.App) error {
		collection, err := app.FindCollectionByNameOrId("raffles")
		if err != nil {
			return err
		}

		collection.Fields.RemoveByName("draw_date")
		collection.Fields.RemoveByName("winner_number")
		collection.Fields.RemoveByName("drawn_at")

		return app.Save(collection)
	})
}
