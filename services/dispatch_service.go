package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"raffle-system/config"
	"raffle-system/models"
	"raffle-system/monitoring"

	"github.com/google/uuid"
	"github.com/pocketbase/dbx"
	"github.com/pocketbase/pocketbase/core"
	"github.com/pocketbase/pocketbase/tools/types"
	"github.com/redis/go-redis/v9"
)

const dedupKeyPrefix = "dedup:msg:"

// DispatchService is the single entry point for inbound chat messages. It
// deduplicates by provider message id, advances the conversation and persists
// the contact's new state, the reservation side effects and the processed
// event marker in one transaction. Replays of an already processed message
// return the recorded outcome without touching anything.
type DispatchService struct {
	app     core.App
	cfg     *config.Config
	redis   *redis.Client
	reserve *ReservationService
	flow    *ConversationFlow
	notify  *NotifyService
}

func NewDispatchService(app core.App, cfg *config.Config, redisClient *redis.Client, reserve *ReservationService, flow *ConversationFlow, notify *NotifyService) *DispatchService {
	return &DispatchService{
		app:     app,
		cfg:     cfg,
		redis:   redisClient,
		reserve: reserve,
		flow:    flow,
		notify:  notify,
	}
}

// Dispatch processes one inbound message end to end.
func (s *DispatchService) Dispatch(ctx context.Context, msg *models.InboundMessage) (*models.DispatchOutcome, error) {
	if msg.ProviderMessageID == "" || msg.From == "" {
		return nil, fmt.Errorf("inbound message lacks a provider id or sender")
	}

	start := time.Now()
	correlationID := uuid.NewString()

	// Fast path: the Redis marker is advisory. When it says "seen before" and
	// the store has the recorded outcome, replays are served without opening a
	// transaction. Redis being down or wrong only costs us that shortcut.
	if s.redis != nil {
		acquired, err := s.redis.SetNX(ctx, dedupKeyPrefix+msg.ProviderMessageID, correlationID, s.cfg.DedupWindow).Result()
		if err != nil {
			slog.Warn("dedup marker unavailable", "error", err)
		} else if !acquired {
			if outcome := s.recordedOutcome(msg.ProviderMessageID); outcome != nil {
				monitoring.TrackDuplicate()
				monitoring.TrackDispatch(time.Since(start), nil)
				return outcome, nil
			}
		}
	}

	var outcome *models.DispatchOutcome
	var events []FlowEvent
	var prevState string

	err := s.app.RunInTransaction(func(txApp core.App) error {
		eventRec, recorded, err := findOrCreateEventTx(txApp, msg, correlationID)
		if err != nil {
			return err
		}
		if recorded != nil {
			outcome = recorded
			return nil
		}

		contactRec, err := findOrCreateContactTx(txApp, msg.From, msg.DisplayName)
		if err != nil {
			return err
		}
		contact := models.ContactFromRecord(contactRec)
		prevState = contact.State

		transition, err := s.flow.Advance(ctx, s.reserve.WithTx(txApp), contact, msg)
		if err != nil {
			return err
		}
		events = transition.Events

		contactRec.Set("state", transition.State)
		contactRec.Set("context", transition.Context)
		contactRec.Set("last_interaction_at", types.NowDateTime())
		if msg.DisplayName != "" {
			contactRec.Set("display_name", msg.DisplayName)
		}
		if err := txApp.Save(contactRec); err != nil {
			return err
		}

		outcome = &models.DispatchOutcome{
			CorrelationID: correlationID,
			ContactID:     contactRec.Id,
			State:         transition.State,
			Reply:         transition.Reply,
		}

		eventRec.Set("contact", contactRec.Id)
		eventRec.Set("outcome", outcome)
		eventRec.Set("processed", true)
		eventRec.Set("processed_at", types.NowDateTime())
		return txApp.Save(eventRec)
	})

	monitoring.TrackDispatch(time.Since(start), err)
	if err != nil {
		return nil, err
	}

	if outcome.Duplicate {
		monitoring.TrackDuplicate()
		return outcome, nil
	}

	monitoring.TrackTransition(prevState, outcome.State)
	if s.notify != nil {
		for _, ev := range events {
			if ev.Kind == FlowEventOrderCancelled {
				s.notify.OrderCancelled(ctx, ev.Order)
			}
		}
	}
	return outcome, nil
}

// recordedOutcome returns the stored outcome for an already processed message,
// or nil when there is nothing usable.
func (s *DispatchService) recordedOutcome(providerMessageID string) *models.DispatchOutcome {
	rec, err := s.app.FindFirstRecordByFilter("inbound_events",
		"provider_message_id = {:id}", dbx.Params{"id": providerMessageID})
	if err != nil || !rec.GetBool("processed") {
		return nil
	}
	return storedOutcome(rec)
}

func storedOutcome(rec *core.Record) *models.DispatchOutcome {
	outcome := &models.DispatchOutcome{}
	if err := rec.UnmarshalJSONField("outcome", outcome); err != nil {
		slog.Error("unreadable recorded outcome", "event", rec.Id, "error", err)
		return nil
	}
	outcome.Duplicate = true
	return outcome
}

// findOrCreateEventTx claims the per-message event row. For a message that was
// already fully processed it returns the recorded outcome instead; the unique
// index on provider_message_id backstops two concurrent first deliveries.
func findOrCreateEventTx(txApp core.App, msg *models.InboundMessage, correlationID string) (*core.Record, *models.DispatchOutcome, error) {
	rec, err := txApp.FindFirstRecordByFilter("inbound_events",
		"provider_message_id = {:id}", dbx.Params{"id": msg.ProviderMessageID})
	if err == nil {
		if rec.GetBool("processed") {
			if outcome := storedOutcome(rec); outcome != nil {
				return nil, outcome, nil
			}
			return nil, nil, fmt.Errorf("event %s processed but outcome unreadable", rec.Id)
		}
		return rec, nil, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, nil, err
	}

	col, err := txApp.FindCollectionByNameOrId("inbound_events")
	if err != nil {
		return nil, nil, err
	}
	rec = core.NewRecord(col)
	rec.Set("provider_message_id", msg.ProviderMessageID)
	rec.Set("kind", msg.Kind)
	rec.Set("correlation_id", correlationID)
	if len(msg.Raw) > 0 {
		rec.Set("payload", string(msg.Raw))
	}
	rec.Set("processed", false)
	if err := txApp.Save(rec); err != nil {
		return nil, nil, err
	}
	return rec, nil, nil
}

func findOrCreateContactTx(txApp core.App, phone, displayName string) (*core.Record, error) {
	rec, err := txApp.FindFirstRecordByFilter("contacts",
		"phone = {:phone}", dbx.Params{"phone": phone})
	if err == nil {
		return rec, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}

	col, err := txApp.FindCollectionByNameOrId("contacts")
	if err != nil {
		return nil, err
	}
	rec = core.NewRecord(col)
	rec.Set("phone", phone)
	rec.Set("display_name", displayName)
	rec.Set("state", models.StateMenu)
	rec.Set("last_interaction_at", types.NowDateTime())
	if err := txApp.Save(rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// PurgeDedupMarkers removes processed event rows older than the dedup window.
// Redis markers expire on their own.
func (s *DispatchService) PurgeDedupMarkers(ctx context.Context) (int, error) {
	cutoff, err := types.ParseDateTime(time.Now().Add(-s.cfg.DedupWindow))
	if err != nil {
		return 0, err
	}

	res, err := s.app.DB().NewQuery(`
		DELETE FROM inbound_events
		WHERE processed = true AND created != '' AND created <= {:cutoff}
	`).Bind(dbx.Params{"cutoff": cutoff}).Execute()
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if n > 0 {
		slog.Info("purged old inbound events", "count", n)
	}
	return int(n), nil
}
