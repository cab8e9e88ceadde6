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
		tickets, err := app.FindCollectionByNameOrId("tickets")
		if err != nil {
			return err
		}

		collection := core.NewBaseCollection("order_tickets")

		collection.Fields.Add(
			&core.RelationField{Name: "order", CollectionId: orders.Id, MaxSelect: 1, Required: true, CascadeDelete: true},
			&core.RelationField{Name: "ticket", CollectionId: tickets.Id, MaxSelect: 1, Required: true},
			&core.BoolField{Name: "released"},
			&core.AutodateField{Name: "created", OnCreate: true},
			&core.AutodateField{Name: "updated", OnCreate: true, OnUpdate: true},
		)

		// A ticket may have at most one live association. Released rows stay
		// behind as history.
		collection.AddIndex("idx_order_tickets_live_ticket", true, "ticket", "released = false")
		collection.AddIndex("idx_order_tickets_order", false, "`order`", "")

		return app.Save(collection)
	}, func(app core.App) error {
		collection, err := app.FindCollectionByNameOrId("order_tickets")
		if err != nil {
			return err
		}
		return app.Delete(collection)
	})
}
