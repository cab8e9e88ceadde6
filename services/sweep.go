package services

import (
	"context"
	"time"

	"raffle-system/models"
	"raffle-system/monitoring"

	"github.com/pocketbase/dbx"
	"github.com/pocketbase/pocketbase/core"
	"github.com/pocketbase/pocketbase/tools/types"
)

// SweepExpired releases every reservation whose TTL elapsed before now and
// expires orders left with no held tickets. Safe to run concurrently with
// reservations and with itself: each release is guarded by the same
// compare-and-set the reserve path uses, so a ticket is released at most once.
func (s *ReservationService) SweepExpired(ctx context.Context, now time.Time) (int, []string, error) {
	var released int
	var expired []string

	err := s.run(ctx, func(app core.App) error {
		var err error
		released, expired, err = sweepTx(app, now, "", nil)
		return err
	})
	if err != nil {
		return 0, nil, err
	}

	monitoring.TrackSweep(released, len(expired))
	if s.notify != nil && len(expired) > 0 {
		s.notify.OrdersExpired(ctx, expired)
	}
	return released, expired, nil
}

// sweepTx is the transactional body of the sweep. raffleID and numbers narrow
// the scan so reserve paths can release lapsed holds on just the tickets they
// are about to take.
func sweepTx(app core.App, now time.Time, raffleID string, numbers []int) (int, []string, error) {
	nowDT, err := types.ParseDateTime(now)
	if err != nil {
		return 0, nil, err
	}

	q := app.DB().
		Select("id", "number", "status", "order").
		From("tickets").
		Where(dbx.HashExp{"status": models.TicketReserved}).
		AndWhere(dbx.NewExp("reserved_until != ''")).
		AndWhere(dbx.NewExp("reserved_until <= {:now}", dbx.Params{"now": nowDT}))
	if raffleID != "" {
		q.AndWhere(dbx.HashExp{"raffle": raffleID})
	}
	if len(numbers) > 0 {
		vals := make([]any, len(numbers))
		for i, n := range numbers {
			vals[i] = n
		}
		q.AndWhere(dbx.In("number", vals...))
	}

	lapsed := []ticketRow{}
	if err := q.OrderBy("number ASC").All(&lapsed); err != nil {
		return 0, nil, err
	}
	if len(lapsed) == 0 {
		return 0, nil, nil
	}

	released := 0
	orderIDs := []string{}
	seen := map[string]bool{}
	for _, t := range lapsed {
		ok, err := casReleaseLapsedTicket(app, t.ID, nowDT)
		if err != nil {
			return 0, nil, err
		}
		if !ok {
			continue
		}
		released++

		_, err = app.DB().NewQuery(`
			UPDATE order_tickets
			SET released = true, updated = {:now}
			WHERE ticket = {:ticket} AND released = false
		`).Bind(dbx.Params{"ticket": t.ID, "now": types.NowDateTime()}).Execute()
		if err != nil {
			return 0, nil, err
		}

		if t.OrderID != "" && !seen[t.OrderID] {
			seen[t.OrderID] = true
			orderIDs = append(orderIDs, t.OrderID)
		}
	}

	expired := []string{}
	for _, orderID := range orderIDs {
		done, err := expireEmptiedOrderTx(app, orderID)
		if err != nil {
			return 0, nil, err
		}
		if done {
			expired = append(expired, orderID)
		}
	}

	return released, expired, nil
}

// casReleaseLapsedTicket returns one ticket to AVAILABLE iff it is still a
// lapsed reservation at the time of the update.
func casReleaseLapsedTicket(app core.App, ticketID string, now types.DateTime) (bool, error) {
	res, err := app.DB().NewQuery(`
		UPDATE tickets
		SET status = {:available}, [[order]] = '', reserved_until = '', updated = {:ts}
		WHERE id = {:id} AND status = {:reserved} AND reserved_until != '' AND reserved_until <= {:now}
	`).Bind(dbx.Params{
		"available": models.TicketAvailable,
		"reserved":  models.TicketReserved,
		"id":        ticketID,
		"now":       now,
		"ts":        types.NowDateTime(),
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

// expireEmptiedOrderTx flips an open order to EXPIRED once none of its
// association rows are live. Reports whether the order was expired here.
func expireEmptiedOrderTx(app core.App, orderID string) (bool, error) {
	var live int
	err := app.DB().NewQuery(`
		SELECT COUNT(*) FROM order_tickets
		WHERE [[order]] = {:order} AND released = false
	`).Bind(dbx.Params{"order": orderID}).Row(&live)
	if err != nil {
		return false, err
	}
	if live > 0 {
		return false, nil
	}

	rec, err := findOrderRecordTx(app, orderID)
	if err != nil {
		return false, err
	}
	if !models.OrderFromRecord(rec).Open() {
		return false, nil
	}

	rec.Set("status", models.OrderExpired)
	rec.Set("cancel_reason", "reservation expired")
	if err := app.Save(rec); err != nil {
		return false, err
	}
	return true, nil
}
