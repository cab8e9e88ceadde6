package migrations

import (
	"github.com/pocketbase/pocketbase/core"
	m "github.com/pocketbase/pocketbase/migrations"
)

func init() {
	m.Register(func(app core.App) error {
		contacts, err := app.FindCollectionByNameOrId("contacts")
		if err != nil {
			return err
		}

		collection := core.NewBaseCollection("inbound_events")

		collection.Fields.Add(
			&core.TextField{Name: "provider_message_id", Required: true},
			&core.RelationField{Name: "contact", CollectionId: contacts.Id, MaxSelect: 1},
			&core.SelectField{
				Name:      "kind",
				Values:    []string{"text", "number_selection", "image", "other"},
				MaxSelect: 1,
			},
			&core.JSONField{Name: "payload"},
			&core.BoolField{Name: "processed"},
			&core.JSONField{Name: "outcome"},
			&core.TextField{Name: "correlation_id"},
			&core.DateField{Name: "processed_at"},
			&core.AutodateField{Name: "created", OnCreate: true},
			&core.AutodateField{Name: "updated", OnCreate: true, OnUpdate: true},
		)

		// The dedup guarantee hangs off this index.
		collection.AddIndex("idx_inbound_events_provider_message_id", true, "provider_message_id", "")
		collection.AddIndex("idx_inbound_events_created", false, "created", "")

		return app.Save(collection)
	}, func(app core.App) error {
		collection, err := app.FindCollectionByNameOrId("inbound_events")
		if err != nil {
			return err
		}
		return app.Delete(collection)
	})
}
