package migrations

import (
	"github.com/pocketbase/pocketbase/core"
	m "github.com/pocketbase/pocketbase/migrations"
)

func init() {
	m.Register(func(app core.App) error {
		collection := core.NewBaseCollection("contacts")

		collection.Fields.Add(
			&core.TextField{Name: "phone", Required: true},
			&core.TextField{Name: "display_name"},
			&core.SelectField{
				Name: "state",
				Values: []string{
					"MENU",
					"CHOOSE_MODE",
					"ASK_QTY",
					"ASK_PICK_NUMBERS",
					"CONFIRM_RESERVATION",
					"WAIT_PROOF",
					"DONE",
				},
				MaxSelect: 1,
			},
			&core.JSONField{Name: "context"},
			&core.DateField{Name: "last_interaction_at"},
			&core.AutodateField{Name: "created", OnCreate: true},
			&core.AutodateField{Name: "updated", OnCreate: true, OnUpdate: true},
		)

		collection.AddIndex("idx_contacts_phone", true, "phone", "")

		return app.Save(collection)
	}, func(app core.App) error {
		collection, err := app.FindCollectionByNameOrId("contacts")
		if err != nil {
			return err
		}
		return app.Delete(collection)
	})
}
