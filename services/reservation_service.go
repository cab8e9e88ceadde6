package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"slices"
	"time"

	"raffle-system/config"
	"raffle-system/internal/status"
	"raffle-system/models"
	"raffle-system/monitoring"
	"raffle-system/utils"

	"github.com/pocketbase/dbx"
	"github.com/pocketbase/pocketbase/core"
	"github.com/pocketbase/pocketbase/tools/types"
	"github.com/shopspring/decimal"
)

// ReservationService owns every Ticket/Order/OrderTicket mutation. All writes
// go through compare-and-set updates inside a transaction, so concurrent
// reservations resolve first-committer-wins instead of double-allocating.
type ReservationService struct {
	app    core.App
	cfg    *config.Config
	notify *NotifyService

	// inTx marks a clone bound to a caller-owned transaction: operations run
	// directly on app and skip the retry wrapper and post-commit notifications.
	inTx bool
}

func NewReservationService(app core.App, cfg *config.Config, notify *NotifyService) *ReservationService {
	return &ReservationService{app: app, cfg: cfg, notify: notify}
}

// WithTx returns a clone that executes inside txApp. The dispatcher uses it to
// compose reservations with a conversation transition in one transaction.
func (s *ReservationService) WithTx(txApp core.App) *ReservationService {
	clone := *s
	clone.app = txApp
	clone.notify = nil
	clone.inTx = true
	return &clone
}

// run executes fn transactionally with a bounded retry budget. Typed domain
// errors are terminal; anything else is presumed a store conflict, retried,
// and finally surfaced as a transient conflict.
func (s *ReservationService) run(ctx context.Context, fn func(core.App) error) error {
	if s.inTx {
		return fn(s.app)
	}

	attempts := s.cfg.ReserveRetryAttempts
	if attempts < 1 {
		attempts = 1
	}

	var err error
	for i := 0; i < attempts; i++ {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if i > 0 {
			monitoring.TrackStoreRetry()
			time.Sleep(time.Duration(i) * 25 * time.Millisecond)
		}

		err = s.app.RunInTransaction(func(txApp core.App) error {
			return fn(txApp)
		})
		if err == nil || status.IsDomain(err) {
			return err
		}

		slog.Warn("store conflict, retrying", "attempt", i+1, "error", err)
	}

	return &status.ConflictError{Attempts: attempts, Cause: err}
}

// ReserveSpecific reserves exactly the given numbers for the contact, or
// nothing at all. The new order starts in DRAFT with the reservation TTL
// already ticking.
func (s *ReservationService) ReserveSpecific(ctx context.Context, raffleID, contactID string, numbers []int) (*models.Order, error) {
	numbers = dedupeSorted(numbers)
	if len(numbers) == 0 {
		return nil, status.ErrEmptySelection
	}
	if err := s.checkQuantity(len(numbers)); err != nil {
		return nil, err
	}

	var order *models.Order
	err := s.run(ctx, func(app core.App) error {
		raffle, err := findActiveRaffleTx(app, raffleID)
		if err != nil {
			return err
		}

		var outside []int
		for _, n := range numbers {
			if !raffle.InRange(n) {
				outside = append(outside, n)
			}
		}
		if len(outside) > 0 {
			return &status.OutOfRangeError{Numbers: outside, Min: raffle.MinNumber, Max: raffle.MaxNumber}
		}

		now := time.Now()
		if _, _, err := sweepTx(app, now, raffleID, numbers); err != nil {
			return err
		}

		rows, err := loadTicketRowsTx(app, raffleID, numbers)
		if err != nil {
			return err
		}
		if len(rows) != len(numbers) {
			return fmt.Errorf("raffle %s: ticket pool is missing numbers: %w", raffleID, status.ErrNotFound)
		}

		var taken []int
		for _, row := range rows {
			if row.Status != models.TicketAvailable {
				taken = append(taken, row.Number)
			}
		}
		if len(taken) > 0 {
			return &status.TakenNumbersError{Numbers: taken}
		}

		order, err = s.reserveTicketsTx(app, raffle, contactID, rows, now)
		return err
	})

	monitoring.TrackReservation(models.ModePick, err)
	if err != nil {
		return nil, err
	}
	return order, nil
}

// errTicketContention forces a rollback when a prevalidated ticket loses its
// compare-and-set. It is deliberately not a domain error: the snapshot the
// candidates came from is stale, so the retry wrapper must re-run the whole
// transaction from a fresh read (and, for random picks, a fresh sample).
var errTicketContention = errors.New("ticket claim contention, rolling back")

// ReserveRandom reserves qty tickets sampled uniformly from the AVAILABLE set.
// A sample that loses a race rolls back and is redrawn on the next attempt;
// the operation never reserves a partial quantity.
func (s *ReservationService) ReserveRandom(ctx context.Context, raffleID, contactID string, qty int) (*models.Order, error) {
	if err := s.checkQuantity(qty); err != nil {
		return nil, err
	}

	var order *models.Order
	err := s.run(ctx, func(app core.App) error {
		raffle, err := findActiveRaffleTx(app, raffleID)
		if err != nil {
			return err
		}

		now := time.Now()
		if _, _, err := sweepTx(app, now, raffleID, nil); err != nil {
			return err
		}

		pool, err := loadAvailableRowsTx(app, raffleID)
		if err != nil {
			return err
		}
		if len(pool) < qty {
			return &status.AvailabilityError{Requested: qty, Available: len(pool)}
		}

		picks := sampleTickets(pool, qty)

		order, err = s.reserveTicketsTx(app, raffle, contactID, picks, now)
		return err
	})

	monitoring.TrackReservation(models.ModeRandom, err)
	if err != nil {
		return nil, err
	}
	return order, nil
}

func (s *ReservationService) checkQuantity(qty int) error {
	if qty < s.cfg.MinTicketsPerOrder || qty > s.cfg.MaxTicketsPerOrder {
		return &status.QuantityError{Qty: qty, Min: s.cfg.MinTicketsPerOrder, Max: s.cfg.MaxTicketsPerOrder}
	}
	return nil
}

// reserveTicketsTx creates the draft order and flips every candidate ticket
// AVAILABLE -> RESERVED. Any ticket losing its compare-and-set aborts the
// whole reservation.
func (s *ReservationService) reserveTicketsTx(app core.App, raffle *models.Raffle, contactID string, picks []ticketRow, now time.Time) (*models.Order, error) {
	slices.SortFunc(picks, func(a, b ticketRow) int { return a.Number - b.Number })

	until, err := types.ParseDateTime(now.Add(s.cfg.ReservationTTL))
	if err != nil {
		return nil, err
	}

	code, err := utils.NewOrderCode()
	if err != nil {
		return nil, err
	}

	ordersCol, err := app.FindCollectionByNameOrId("orders")
	if err != nil {
		return nil, err
	}

	qty := len(picks)
	total := raffle.TicketPrice.Mul(decimal.NewFromInt(int64(qty)))

	orderRec := core.NewRecord(ordersCol)
	orderRec.Set("code", code)
	orderRec.Set("raffle", raffle.ID)
	orderRec.Set("contact", contactID)
	orderRec.Set("quantity", qty)
	orderRec.Set("unit_price", raffle.TicketPrice.String())
	orderRec.Set("total_amount", total.String())
	orderRec.Set("status", models.OrderDraft)
	orderRec.Set("expires_at", until)
	if err := app.Save(orderRec); err != nil {
		return nil, err
	}

	for _, pick := range picks {
		ok, err := casReserveTicket(app, pick.ID, orderRec.Id, until)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, errTicketContention
		}
	}

	assocCol, err := app.FindCollectionByNameOrId("order_tickets")
	if err != nil {
		return nil, err
	}
	for _, pick := range picks {
		assoc := core.NewRecord(assocCol)
		assoc.Set("order", orderRec.Id)
		assoc.Set("ticket", pick.ID)
		assoc.Set("released", false)
		if err := app.Save(assoc); err != nil {
			return nil, err
		}
	}

	order := models.OrderFromRecord(orderRec)
	for _, pick := range picks {
		order.Numbers = append(order.Numbers, pick.Number)
	}
	return order, nil
}

// casReserveTicket flips one ticket AVAILABLE -> RESERVED iff it is still
// AVAILABLE. Reports false when the precondition no longer holds.
func casReserveTicket(app core.App, ticketID, orderID string, until types.DateTime) (bool, error) {
	res, err := app.DB().NewQuery(`
		UPDATE tickets
		SET status = {:reserved}, [[order]] = {:order}, reserved_until = {:until}, updated = {:now}
		WHERE id = {:id} AND status = {:available}
	`).Bind(dbx.Params{
		"reserved":  models.TicketReserved,
		"available": models.TicketAvailable,
		"order":     orderID,
		"until":     until,
		"now":       types.NowDateTime(),
		"id":        ticketID,
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

type ticketRow struct {
	ID      string `db:"id"`
	Number  int    `db:"number"`
	Status  string `db:"status"`
	OrderID string `db:"order"`
}

func loadTicketRowsTx(app core.App, raffleID string, numbers []int) ([]ticketRow, error) {
	vals := make([]any, len(numbers))
	for i, n := range numbers {
		vals[i] = n
	}

	rows := []ticketRow{}
	err := app.DB().
		Select("id", "number", "status", "order").
		From("tickets").
		Where(dbx.HashExp{"raffle": raffleID}).
		AndWhere(dbx.In("number", vals...)).
		OrderBy("number ASC").
		All(&rows)
	return rows, err
}

func loadAvailableRowsTx(app core.App, raffleID string) ([]ticketRow, error) {
	rows := []ticketRow{}
	err := app.DB().
		Select("id", "number", "status", "order").
		From("tickets").
		Where(dbx.HashExp{"raffle": raffleID, "status": models.TicketAvailable}).
		OrderBy("number ASC").
		All(&rows)
	return rows, err
}

// sampleTickets picks qty entries uniformly without replacement.
func sampleTickets(pool []ticketRow, qty int) []ticketRow {
	idx := rand.Perm(len(pool))[:qty]
	picks := make([]ticketRow, qty)
	for i, j := range idx {
		picks[i] = pool[j]
	}
	return picks
}

// dedupeSorted returns the distinct numbers in ascending order. Ascending
// update order keeps concurrent reservations deadlock free.
func dedupeSorted(numbers []int) []int {
	out := slices.Clone(numbers)
	slices.Sort(out)
	return slices.Compact(out)
}

func findActiveRaffleTx(app core.App, raffleID string) (*models.Raffle, error) {
	raffle, err := findRaffleTx(app, raffleID)
	if err != nil {
		return nil, err
	}
	if !raffle.IsActive() {
		return nil, fmt.Errorf("raffle %s (%s): %w", raffle.ID, raffle.Status, status.ErrRaffleInactive)
	}
	return raffle, nil
}

func findRaffleTx(app core.App, raffleID string) (*models.Raffle, error) {
	rec, err := app.FindRecordById("raffles", raffleID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("raffle %s: %w", raffleID, status.ErrNotFound)
		}
		return nil, err
	}
	return models.RaffleFromRecord(rec), nil
}
