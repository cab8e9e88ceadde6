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
		contacts, err := app.FindCollectionByNameOrId("contacts")
		if err != nil {
			return err
		}

		collection := core.NewBaseCollection("orders")

		collection.Fields.Add(
			&core.TextField{Name: "code", Required: true},
			&core.RelationField{Name: "raffle", CollectionId: raffles.Id, MaxSelect: 1, Required: true},
			&core.RelationField{Name: "contact", CollectionId: contacts.Id, MaxSelect: 1, Required: true},
			&core.NumberField{Name: "quantity", OnlyInt: true, Required: true},
			&core.TextField{Name: "unit_price", Required: true},
			&core.TextField{Name: "total_amount", Required: true},
			&core.SelectField{
				Name:      "status",
				Values:    []string{"DRAFT", "PENDING_PAYMENT", "PAID", "CANCELLED", "EXPIRED"},
				MaxSelect: 1,
				Required:  true,
			},
			&core.TextField{Name: "proof_reference"},
			&core.DateField{Name: "expires_at"},
			&core.DateField{Name: "paid_at"},
			&core.TextField{Name: "cancel_reason"},
			&core.AutodateField{Name: "created", OnCreate: true},
			&core.AutodateField{Name: "updated", OnCreate: true, OnUpdate: true},
		)

		collection.AddIndex("idx_orders_code", true, "code", "")
		collection.AddIndex("idx_orders_status", false, "status", "")
		collection.AddIndex("idx_orders_contact_status", false, "contact, status", "")

		return app.Save(collection)
	}, func(app core.App) error {
		collection, err := app.FindCollectionByNameOrId("orders")
		if err != nil {
			return err
		}
		return app.Delete(collection)
	})
}
