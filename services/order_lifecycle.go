package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"raffle-system/internal/status"
	"raffle-system/models"
	"raffle-system/monitoring"

	"github.com/pocketbase/dbx"
	"github.com/pocketbase/pocketbase/core"
	"github.com/pocketbase/pocketbase/tools/types"
)

// ConfirmReservation moves a draft order to PENDING_PAYMENT. Tickets stay
// RESERVED under the original TTL until payment is confirmed.
func (s *ReservationService) ConfirmReservation(ctx context.Context, orderID string) (*models.Order, error) {
	var order *models.Order
	err := s.run(ctx, func(app core.App) error {
		rec, err := findOrderRecordTx(app, orderID)
		if err != nil {
			return err
		}

		switch rec.GetString("status") {
		case models.OrderPendingPayment:
			// Replayed confirmation, nothing to change.
		case models.OrderDraft:
			rec.Set("status", models.OrderPendingPayment)
			if err := app.Save(rec); err != nil {
				return err
			}
		default:
			return &status.TransitionError{OrderID: rec.Id, From: rec.GetString("status"), To: models.OrderPendingPayment}
		}

		order = models.OrderFromRecord(rec)
		order.Numbers, err = loadOrderNumbersTx(app, rec.Id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return order, nil
}

// ConfirmPaid marks a PENDING_PAYMENT order as PAID and flips its tickets
// RESERVED -> SOLD. Orders already released by the expiry sweep lose
// deterministically with an invalid transition.
func (s *ReservationService) ConfirmPaid(ctx context.Context, orderID, proofRef string) (*models.Order, error) {
	var order *models.Order
	err := s.run(ctx, func(app core.App) error {
		rec, err := findOrderRecordTx(app, orderID)
		if err != nil {
			return err
		}
		if rec.GetString("status") != models.OrderPendingPayment {
			return &status.TransitionError{OrderID: rec.Id, From: rec.GetString("status"), To: models.OrderPaid}
		}

		held, err := heldTicketIDsTx(app, rec.Id)
		if err != nil {
			return err
		}
		if len(held) != rec.GetInt("quantity") {
			return &status.TransitionError{OrderID: rec.Id, From: rec.GetString("status"), To: models.OrderPaid}
		}
		for _, ticketID := range held {
			ok, err := casSellTicket(app, ticketID, rec.Id)
			if err != nil {
				return err
			}
			if !ok {
				return &status.TransitionError{OrderID: rec.Id, From: rec.GetString("status"), To: models.OrderPaid}
			}
		}

		rec.Set("status", models.OrderPaid)
		rec.Set("paid_at", types.NowDateTime())
		if proofRef != "" {
			rec.Set("proof_reference", proofRef)
		}
		if err := app.Save(rec); err != nil {
			return err
		}

		order = models.OrderFromRecord(rec)
		order.Numbers, err = loadOrderNumbersTx(app, rec.Id)
		return err
	})
	if err != nil {
		return nil, err
	}

	monitoring.TrackOrderPaid()
	if s.notify != nil {
		s.notify.OrderPaid(ctx, order)
	}
	return order, nil
}

// CancelOrder releases an open order's tickets and marks it CANCELLED.
// Cancelling an order that is already CANCELLED or EXPIRED is a no-op.
func (s *ReservationService) CancelOrder(ctx context.Context, orderID, reason string) (*models.Order, error) {
	var order *models.Order
	err := s.run(ctx, func(app core.App) error {
		rec, err := findOrderRecordTx(app, orderID)
		if err != nil {
			return err
		}

		switch rec.GetString("status") {
		case models.OrderCancelled, models.OrderExpired:
			order = models.OrderFromRecord(rec)
			return nil
		case models.OrderPaid:
			return &status.TransitionError{OrderID: rec.Id, From: models.OrderPaid, To: models.OrderCancelled}
		}

		released, err := releaseOrderTicketsTx(app, rec.Id)
		if err != nil {
			return err
		}
		monitoring.TrackTicketsReleased(released)

		rec.Set("status", models.OrderCancelled)
		if reason != "" {
			rec.Set("cancel_reason", reason)
		}
		if err := app.Save(rec); err != nil {
			return err
		}

		order = models.OrderFromRecord(rec)
		return nil
	})
	if err != nil {
		return nil, err
	}

	monitoring.TrackOrderCancelled()
	if s.notify != nil {
		s.notify.OrderCancelled(ctx, order)
	}
	return order, nil
}

// AttachProof stores the payment proof reference on a PENDING_PAYMENT order.
// The order stays PENDING_PAYMENT until an operator confirms the payment.
func (s *ReservationService) AttachProof(ctx context.Context, orderID, proofRef string) (*models.Order, error) {
	var order *models.Order
	err := s.run(ctx, func(app core.App) error {
		rec, err := findOrderRecordTx(app, orderID)
		if err != nil {
			return err
		}

		switch rec.GetString("status") {
		case models.OrderPendingPayment:
			rec.Set("proof_reference", proofRef)
			if err := app.Save(rec); err != nil {
				return err
			}
		case models.OrderPaid:
			// Proof arriving after confirmation changes nothing.
		default:
			return &status.TransitionError{OrderID: rec.Id, From: rec.GetString("status"), To: models.OrderPendingPayment}
		}

		order = models.OrderFromRecord(rec)
		order.Numbers, err = loadOrderNumbersTx(app, rec.Id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return order, nil
}

// GetOrder loads one order with its held ticket numbers.
func (s *ReservationService) GetOrder(ctx context.Context, orderID string) (*models.Order, error) {
	rec, err := findOrderRecordTx(s.app, orderID)
	if err != nil {
		return nil, err
	}
	order := models.OrderFromRecord(rec)
	order.Numbers, err = loadOrderNumbersTx(s.app, rec.Id)
	if err != nil {
		return nil, err
	}
	return order, nil
}

// GetOrderByCode resolves the short human-facing code, e.g. from a bank
// transfer memo.
func (s *ReservationService) GetOrderByCode(ctx context.Context, code string) (*models.Order, error) {
	rec, err := s.app.FindFirstRecordByFilter("orders", "code = {:code}", dbx.Params{"code": code})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("order code %s: %w", code, status.ErrNotFound)
		}
		return nil, err
	}
	order := models.OrderFromRecord(rec)
	order.Numbers, err = loadOrderNumbersTx(s.app, rec.Id)
	if err != nil {
		return nil, err
	}
	return order, nil
}

// OrdersForContact lists a contact's most recent orders, newest first.
func (s *ReservationService) OrdersForContact(ctx context.Context, contactID string, limit int) ([]*models.Order, error) {
	if limit <= 0 {
		limit = 5
	}
	recs, err := s.app.FindRecordsByFilter("orders",
		"contact = {:contact}", "-created", limit, 0,
		dbx.Params{"contact": contactID})
	if err != nil {
		return nil, err
	}

	orders := make([]*models.Order, 0, len(recs))
	for _, rec := range recs {
		order := models.OrderFromRecord(rec)
		order.Numbers, err = loadOrderNumbersTx(s.app, rec.Id)
		if err != nil {
			return nil, err
		}
		orders = append(orders, order)
	}
	return orders, nil
}

// ListPendingPayment lists orders awaiting operator confirmation, oldest first.
func (s *ReservationService) ListPendingPayment(ctx context.Context, limit int) ([]*models.Order, error) {
	if limit <= 0 {
		limit = 50
	}
	recs, err := s.app.FindRecordsByFilter("orders",
		"status = {:status}", "created", limit, 0,
		dbx.Params{"status": models.OrderPendingPayment})
	if err != nil {
		return nil, err
	}

	orders := make([]*models.Order, 0, len(recs))
	for _, rec := range recs {
		order := models.OrderFromRecord(rec)
		order.Numbers, err = loadOrderNumbersTx(s.app, rec.Id)
		if err != nil {
			return nil, err
		}
		orders = append(orders, order)
	}
	return orders, nil
}

// casSellTicket flips one ticket RESERVED -> SOLD iff it is still held by the
// given order.
func casSellTicket(app core.App, ticketID, orderID string) (bool, error) {
	res, err := app.DB().NewQuery(`
		UPDATE tickets
		SET status = {:sold}, reserved_until = '', updated = {:now}
		WHERE id = {:id} AND status = {:reserved} AND [[order]] = {:order}
	`).Bind(dbx.Params{
		"sold":     models.TicketSold,
		"reserved": models.TicketReserved,
		"order":    orderID,
		"now":      types.NowDateTime(),
		"id":       ticketID,
	}).Execute()
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// releaseOrderTicketsTx returns every ticket still held by the order to
// AVAILABLE and retires the live association rows. Returns how many tickets
// were actually released.
func releaseOrderTicketsTx(app core.App, orderID string) (int, error) {
	res, err := app.DB().NewQuery(`
		UPDATE tickets
		SET status = {:available}, [[order]] = '', reserved_until = '', updated = {:now}
		WHERE [[order]] = {:order} AND status = {:reserved}
	`).Bind(dbx.Params{
		"available": models.TicketAvailable,
		"reserved":  models.TicketReserved,
		"order":     orderID,
		"now":       types.NowDateTime(),
	}).Execute()
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}

	_, err = app.DB().NewQuery(`
		UPDATE order_tickets
		SET released = true, updated = {:now}
		WHERE [[order]] = {:order} AND released = false
	`).Bind(dbx.Params{
		"order": orderID,
		"now":   types.NowDateTime(),
	}).Execute()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

func heldTicketIDsTx(app core.App, orderID string) ([]string, error) {
	ids := []string{}
	err := app.DB().
		Select("id").
		From("tickets").
		Where(dbx.HashExp{"order": orderID, "status": models.TicketReserved}).
		OrderBy("number ASC").
		Column(&ids)
	return ids, err
}

func loadOrderNumbersTx(app core.App, orderID string) ([]int, error) {
	nums := []int{}
	err := app.DB().
		Select("number").
		From("tickets").
		Where(dbx.HashExp{"order": orderID}).
		OrderBy("number ASC").
		Column(&nums)
	return nums, err
}

func findOrderRecordTx(app core.App, orderID string) (*core.Record, error) {
	rec, err := app.FindRecordById("orders", orderID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("order %s: %w", orderID, status.ErrNotFound)
		}
		return nil, err
	}
	return rec, nil
}
