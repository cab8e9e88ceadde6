package bankfeed

import (
	"context"
	"crypto/hmac"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"raffle-system/config"
	"raffle-system/internal/status"
	"raffle-system/models"
	"raffle-system/security"
	"raffle-system/services"

	"github.com/pocketbase/dbx"
	"github.com/pocketbase/pocketbase/core"
	"github.com/pocketbase/pocketbase/tools/types"
	pubnub "github.com/pubnub/go/v7"
	"github.com/shopspring/decimal"
)

var orderCodeRe = regexp.MustCompile(`\bR-[0-9A-F]{8}\b`)

// Feed subscribes to the bank's transfer notification channel and records
// every alert for operator review. An alert can be linked to the order whose
// code appears in the transfer memo, but confirming the payment stays a manual
// operator action.
type Feed struct {
	app     core.App
	reserve *services.ReservationService
	notify  *services.NotifyService

	pn       *pubnub.PubNub
	listener *pubnub.Listener
	channel  string
	hmacKey  string
}

type payload struct {
	RefID         string          `json:"refNo"`
	Ccy           string          `json:"sourceCurrency"`
	Payer         string          `json:"sourceName"`
	AccountNumber string          `json:"sourceAccount"`
	Amount        decimal.Decimal `json:"txnAmount"`
	Memo          string          `json:"description"`
	CreatedAt     string          `json:"txnDateTime"`
	Signature     string          `json:"signature,omitempty"`
}

// New connects the feed when it is enabled and configured; otherwise it
// returns nil and the system runs without bank alerts.
func New(ctx context.Context, cfg *config.Config, app core.App, reserve *services.ReservationService, notify *services.NotifyService) (*Feed, error) {
	if !cfg.BankFeedEnabled {
		return nil, nil
	}
	if cfg.BankFeedSubscribeKey == "" || cfg.BankFeedChannel == "" {
		return nil, fmt.Errorf("bank feed enabled but subscribe key or channel missing")
	}

	pnCfg := pubnub.NewConfigWithUserId(pubnub.UserId(cfg.PubNubUUID))
	pnCfg.SubscribeKey = cfg.BankFeedSubscribeKey
	if cfg.BankFeedCipherKey != "" {
		pnCfg.CipherKey = cfg.BankFeedCipherKey
	}

	f := &Feed{
		app:      app,
		reserve:  reserve,
		notify:   notify,
		pn:       pubnub.NewPubNub(pnCfg),
		listener: pubnub.NewListener(),
		channel:  cfg.BankFeedChannel,
		hmacKey:  cfg.BankFeedHMACKey,
	}

	f.pn.AddListener(f.listener)
	go f.processSubscription(ctx)
	f.pn.Subscribe().Channels([]string{f.channel}).Execute()

	slog.Info("bank feed subscribed", "channel", f.channel)
	return f, nil
}

func (f *Feed) Stop() {
	f.pn.UnsubscribeAll()
	log.Println("bank feed closed")
}

func (f *Feed) processSubscription(ctx context.Context) {
	for {
		select {
		case st := <-f.listener.Status:
			switch st.Category {
			case pubnub.PNConnectedCategory:
				log.Println("bank feed connected to pubnub")
			case pubnub.PNReconnectedCategory:
				log.Println("bank feed reconnected to pubnub")
			case pubnub.PNDisconnectedCategory:
				log.Println("bank feed disconnected from pubnub")
			case pubnub.PNAccessDeniedCategory:
				log.Println("bank feed access denied")
			default:
				log.Println("bank feed pubnub status:", st.Category)
			}

		case message := <-f.listener.Message:
			f.handleMessage(ctx, message)

		case <-ctx.Done():
			log.Println("bank feed subscription stopped")
			return
		}
	}
}

func (f *Feed) handleMessage(ctx context.Context, message *pubnub.PNMessage) {
	p, err := decodePayload(message.Message)
	if err != nil {
		slog.Warn("undecodable bank alert", "error", err)
		return
	}
	if p.RefID == "" {
		slog.Warn("bank alert without refNo dropped")
		return
	}
	if f.hmacKey != "" && !p.verify(f.hmacKey) {
		slog.Warn("bank alert failed signature check", "ref_id", p.RefID)
		return
	}

	alert, err := f.storeAlert(p)
	if err != nil {
		slog.Error("bank alert not stored", "ref_id", p.RefID, "error", err)
		return
	}
	if alert == nil {
		// Redelivered alert, already on file.
		return
	}

	f.matchOrder(ctx, alert)
	if f.notify != nil {
		f.notify.PaymentAlert(ctx, alert)
	}
}

// decodePayload accepts the raw JSON string form as well as an already
// unmarshalled object, which is how the SDK delivers unencrypted messages.
func decodePayload(raw any) (*payload, error) {
	p := &payload{}
	switch v := raw.(type) {
	case string:
		if err := json.NewDecoder(strings.NewReader(v)).Decode(p); err != nil {
			return nil, err
		}
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		if err := json.Unmarshal(data, p); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// verify checks the alert signature over the fields that identify the
// transfer.
func (p *payload) verify(key string) bool {
	signed := p.RefID + "|" + p.AccountNumber + "|" + p.Amount.String()
	expected := security.Hmac256([]byte(signed), []byte(key))
	return hmac.Equal([]byte(p.Signature), []byte(expected))
}

// storeAlert persists a new alert and returns nil for one already recorded
// under the same refNo.
func (f *Feed) storeAlert(p *payload) (*models.PaymentAlert, error) {
	_, err := f.app.FindFirstRecordByFilter("payment_alerts",
		"ref_id = {:ref}", dbx.Params{"ref": p.RefID})
	if err == nil {
		return nil, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}

	col, err := f.app.FindCollectionByNameOrId("payment_alerts")
	if err != nil {
		return nil, err
	}

	rec := core.NewRecord(col)
	rec.Set("ref_id", p.RefID)
	rec.Set("payer", p.Payer)
	rec.Set("account_number", p.AccountNumber)
	rec.Set("memo", p.Memo)
	rec.Set("amount", p.Amount.String())
	rec.Set("currency", p.Ccy)
	if ts, err := time.ParseInLocation("2006-01-02 15:04:05", p.CreatedAt, time.Local); err == nil {
		if dt, err := types.ParseDateTime(ts); err == nil {
			rec.Set("received_at", dt)
		}
	}
	if raw, err := json.Marshal(p); err == nil {
		rec.Set("raw", string(raw))
	}
	if err := f.app.Save(rec); err != nil {
		return nil, err
	}

	slog.Info("bank alert recorded", "ref_id", p.RefID, "amount", p.Amount.String())
	return models.PaymentAlertFromRecord(rec), nil
}

// matchOrder links the alert to the open order whose code appears in the
// transfer memo. It never confirms the payment itself.
func (f *Feed) matchOrder(ctx context.Context, alert *models.PaymentAlert) {
	code := orderCodeRe.FindString(strings.ToUpper(alert.Memo))
	if code == "" {
		return
	}

	order, err := f.reserve.GetOrderByCode(ctx, code)
	if err != nil {
		if !errors.Is(err, status.ErrNotFound) {
			slog.Error("bank alert order lookup failed", "code", code, "error", err)
		}
		return
	}
	if !order.Open() {
		return
	}

	rec, err := f.app.FindRecordById("payment_alerts", alert.ID)
	if err != nil {
		return
	}
	rec.Set("matched_order", order.ID)
	if err := f.app.Save(rec); err != nil {
		slog.Error("bank alert match not saved", "ref_id", alert.RefID, "error", err)
		return
	}
	alert.MatchedOrderID = order.ID

	slog.Info("bank alert matched to order", "ref_id", alert.RefID, "order", order.Code)
}
