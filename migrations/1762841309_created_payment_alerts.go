package migrations

import (
	"github.com/pocketbase/pocketbase/core"
	m "github.com/pocketbase/pocketbase/migrations"
)

func init() {
	m.Register(func(app core.App) error {
		orders, err := app.FindCollectionByNameOrId("orders")
		if err != nil {
			return err
		}

		collection := core.NewBaseCollection("payment_alerts")

		collection.Fields.Add(
			&core.TextField{Name: "ref_id", Required: true},
			&core.TextField{Name: "payer"},
			&core.TextField{Name: "account_number"},
			&core.TextField{Name: "memo"},
			&core.TextField{Name: "amount"},
			&core.TextField{Name: "currency"},
			&core.DateField{Name: "received_at"},
			&core.RelationField{Name: "matched_order", CollectionId: orders.Id, MaxSelect: 1},
			&core.JSONField{Name: "raw"},
			&core.AutodateField{Name: "created", OnCreate: true},
			&core.AutodateField{Name: "updated", OnCreate: true, OnUpdate: true},
		)

		collection.AddIndex("idx_payment_alerts_ref_id", true, "ref_id", "")

		return app.Save(collection)
	}, func(app core.App) error {
		collection, err := app.FindCollectionByNameOrId("payment_alerts")
		if err != nil {
			return err
		}
		return app.Delete(collection)
	})
}
