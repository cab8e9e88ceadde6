package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"strings"
	"time"

	"raffle-system/internal/status"
	"raffle-system/models"
	"raffle-system/monitoring"

	"github.com/pocketbase/dbx"
	"github.com/pocketbase/pocketbase/core"
	"github.com/pocketbase/pocketbase/tools/security"
	"github.com/pocketbase/pocketbase/tools/types"
)

const ticketInsertBatch = 200

const recordIdAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"

// GetRaffle loads one raffle by id.
func (s *ReservationService) GetRaffle(ctx context.Context, raffleID string) (*models.Raffle, error) {
	return findRaffleTx(s.app, raffleID)
}

// ActiveRaffles lists raffles currently open for sale, oldest first.
func (s *ReservationService) ActiveRaffles(ctx context.Context) ([]*models.Raffle, error) {
	recs, err := s.app.FindRecordsByFilter("raffles",
		"status = {:status}", "created", 0, 0,
		dbx.Params{"status": models.RaffleActive})
	if err != nil {
		return nil, err
	}

	raffles := make([]*models.Raffle, 0, len(recs))
	for _, rec := range recs {
		raffles = append(raffles, models.RaffleFromRecord(rec))
	}
	return raffles, nil
}

// Availability reports the committed inventory split for one raffle along
// with the concrete numbers still open for sale.
func (s *ReservationService) Availability(ctx context.Context, raffleID string) (*models.Availability, error) {
	if _, err := findRaffleTx(s.app, raffleID); err != nil {
		return nil, err
	}

	type statusCount struct {
		Status string `db:"status"`
		Count  int    `db:"c"`
	}
	counts := []statusCount{}
	err := s.app.DB().
		Select("status", "COUNT(*) AS c").
		From("tickets").
		Where(dbx.HashExp{"raffle": raffleID}).
		GroupBy("status").
		All(&counts)
	if err != nil {
		return nil, err
	}

	avail := &models.Availability{RaffleID: raffleID}
	for _, sc := range counts {
		switch sc.Status {
		case models.TicketAvailable:
			avail.Available = sc.Count
		case models.TicketReserved:
			avail.Reserved = sc.Count
		case models.TicketSold:
			avail.Sold = sc.Count
		}
	}

	nums := []int{}
	err = s.app.DB().
		Select("number").
		From("tickets").
		Where(dbx.HashExp{"raffle": raffleID, "status": models.TicketAvailable}).
		OrderBy("number ASC").
		Column(&nums)
	if err != nil {
		return nil, err
	}
	avail.AvailableNumbers = nums
	return avail, nil
}

// DrawWinner picks a uniformly random SOLD ticket and finalizes the raffle as
// drawn. Draft raffles cannot be drawn and a raffle is drawn at most once.
func (s *ReservationService) DrawWinner(ctx context.Context, raffleID string) (*models.DrawResult, error) {
	var result *models.DrawResult
	err := s.run(ctx, func(app core.App) error {
		rec, err := app.FindRecordById("raffles", raffleID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("raffle %s: %w", raffleID, status.ErrNotFound)
			}
			return err
		}
		raffle := models.RaffleFromRecord(rec)
		switch raffle.Status {
		case models.RaffleDrawn:
			return fmt.Errorf("raffle %s already drawn: %w", raffleID, status.ErrInvalidTransition)
		case models.RaffleDraft:
			return fmt.Errorf("raffle %s (%s): %w", raffleID, raffle.Status, status.ErrRaffleInactive)
		}

		sold := []ticketRow{}
		err = app.DB().
			Select("id", "number", "status", "order").
			From("tickets").
			Where(dbx.HashExp{"raffle": raffleID, "status": models.TicketSold}).
			OrderBy("number ASC").
			All(&sold)
		if err != nil {
			return err
		}
		if len(sold) == 0 {
			return &status.AvailabilityError{Requested: 1, Available: 0}
		}

		winner := sold[rand.IntN(len(sold))]

		rec.Set("status", models.RaffleDrawn)
		rec.Set("winner_number", winner.Number)
		rec.Set("drawn_at", types.NowDateTime())
		if err := app.Save(rec); err != nil {
			return err
		}

		result = &models.DrawResult{RaffleID: raffleID, WinnerNumber: winner.Number}
		if winner.OrderID != "" {
			orderRec, err := findOrderRecordTx(app, winner.OrderID)
			if err != nil {
				return err
			}
			result.OrderID = orderRec.Id
			result.OrderCode = orderRec.GetString("code")
			result.ContactID = orderRec.GetString("contact")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	monitoring.TrackDraw()
	if s.notify != nil {
		s.notify.RaffleDrawn(ctx, result)
	}
	return result, nil
}

// GenerateTickets fills the raffle's number range with AVAILABLE tickets.
// Already present numbers are skipped, so re-running after a partial failure
// only adds the missing rows.
func (s *ReservationService) GenerateTickets(ctx context.Context, raffleID string) (int, error) {
	raffle, err := findRaffleTx(s.app, raffleID)
	if err != nil {
		return 0, err
	}
	if raffle.PoolSize() <= 0 {
		return 0, fmt.Errorf("raffle %s has an empty number range: %w", raffleID, status.ErrInvalidQuantity)
	}
	if raffle.PoolSize() > s.cfg.MaxPoolSize {
		return 0, fmt.Errorf("raffle %s pool of %d exceeds the %d limit: %w",
			raffleID, raffle.PoolSize(), s.cfg.MaxPoolSize, status.ErrInvalidQuantity)
	}

	start := time.Now()
	inserted := 0
	for lo := raffle.MinNumber; lo <= raffle.MaxNumber; lo += ticketInsertBatch {
		hi := lo + ticketInsertBatch - 1
		if hi > raffle.MaxNumber {
			hi = raffle.MaxNumber
		}

		if err := ctx.Err(); err != nil {
			return inserted, err
		}

		err := s.app.RunInTransaction(func(txApp core.App) error {
			n, err := insertTicketBatchTx(txApp, raffleID, lo, hi)
			inserted += n
			return err
		})
		if err != nil {
			return inserted, err
		}
	}

	slog.Info("ticket pool ready",
		"raffle", raffleID,
		"range", fmt.Sprintf("%d-%d", raffle.MinNumber, raffle.MaxNumber),
		"inserted", inserted,
		"took", time.Since(start).Round(time.Millisecond).String(),
	)
	return inserted, nil
}

func insertTicketBatchTx(app core.App, raffleID string, lo, hi int) (int, error) {
	var sb strings.Builder
	sb.WriteString("INSERT OR IGNORE INTO tickets (id, raffle, number, status, [[order]], reserved_until, created, updated) VALUES ")

	params := dbx.Params{
		"raffle": raffleID,
		"status": models.TicketAvailable,
		"ts":     types.NowDateTime(),
	}
	for n := lo; n <= hi; n++ {
		if n > lo {
			sb.WriteString(", ")
		}
		i := n - lo
		fmt.Fprintf(&sb, "({:id%d}, {:raffle}, {:n%d}, {:status}, '', '', {:ts}, {:ts})", i, i)
		params[fmt.Sprintf("id%d", i)] = security.RandomStringWithAlphabet(15, recordIdAlphabet)
		params[fmt.Sprintf("n%d", i)] = n
	}

	res, err := app.DB().NewQuery(sb.String()).Bind(params).Execute()
	if err != nil {
		return 0, err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(rows), nil
}

// CloseDueRaffles flips active raffles whose draw date has passed to closed,
// stopping further sales while they wait for the draw.
func (s *ReservationService) CloseDueRaffles(ctx context.Context, now time.Time) (int, error) {
	nowDT, err := types.ParseDateTime(now)
	if err != nil {
		return 0, err
	}

	recs, err := s.app.FindRecordsByFilter("raffles",
		"status = {:status} && draw_date != '' && draw_date <= {:now}", "created", 0, 0,
		dbx.Params{"status": models.RaffleActive, "now": nowDT.String()})
	if err != nil {
		return 0, err
	}

	closed := 0
	for _, rec := range recs {
		rec.Set("status", models.RaffleClosed)
		if err := s.app.Save(rec); err != nil {
			return closed, err
		}
		closed++
		slog.Info("raffle closed for draw", "raffle", rec.Id, "name", rec.GetString("name"))
	}
	return closed, nil
}
