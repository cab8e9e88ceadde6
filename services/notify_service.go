package services

import (
	"context"
	"log/slog"

	"raffle-system/models"
	"raffle-system/utils"

	pubnub "github.com/pubnub/go"
)

// NotifyService publishes operator-facing events to the ops PubNub channel.
// Publishes are fire and forget behind a circuit breaker, so a flaky PubNub
// never slows down or fails a reservation.
type NotifyService struct {
	pubnub  *pubnub.PubNub
	channel string
	breaker *utils.CircuitBreaker
}

func NewNotifyService(pn *pubnub.PubNub, channel string) *NotifyService {
	return &NotifyService{
		pubnub:  pn,
		channel: channel,
		breaker: utils.NewCircuitBreaker("pubnub-ops"),
	}
}

func (n *NotifyService) OrderPaid(ctx context.Context, order *models.Order) {
	if order == nil {
		return
	}
	n.publish(map[string]any{
		"type":    "order_paid",
		"order":   order.ID,
		"code":    order.Code,
		"raffle":  order.RaffleID,
		"numbers": order.Numbers,
		"total":   order.TotalAmount.String(),
	})
}

func (n *NotifyService) OrderCancelled(ctx context.Context, order *models.Order) {
	if order == nil {
		return
	}
	n.publish(map[string]any{
		"type":   "order_cancelled",
		"order":  order.ID,
		"code":   order.Code,
		"raffle": order.RaffleID,
		"reason": order.CancelReason,
	})
}

func (n *NotifyService) OrdersExpired(ctx context.Context, orderIDs []string) {
	if len(orderIDs) == 0 {
		return
	}
	n.publish(map[string]any{
		"type":   "orders_expired",
		"orders": orderIDs,
		"count":  len(orderIDs),
	})
}

func (n *NotifyService) RaffleDrawn(ctx context.Context, result *models.DrawResult) {
	if result == nil {
		return
	}
	n.publish(map[string]any{
		"type":          "raffle_drawn",
		"raffle":        result.RaffleID,
		"winner_number": result.WinnerNumber,
		"order":         result.OrderID,
		"code":          result.OrderCode,
	})
}

func (n *NotifyService) PaymentAlert(ctx context.Context, alert *models.PaymentAlert) {
	if alert == nil {
		return
	}
	n.publish(map[string]any{
		"type":    "payment_alert",
		"ref_id":  alert.RefID,
		"payer":   alert.Payer,
		"amount":  alert.Amount.String(),
		"matched": alert.MatchedOrderID,
	})
}

func (n *NotifyService) publish(message map[string]any) {
	if n == nil || n.pubnub == nil {
		return
	}

	go func() {
		err := n.breaker.Do(context.Background(), func() error {
			_, _, err := n.pubnub.Publish().
				Channel(n.channel).
				Message(message).
				Execute()
			return err
		})
		if err != nil {
			slog.Warn("ops publish dropped", "type", message["type"], "error", err)
		}
	}()
}
