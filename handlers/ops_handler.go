package handlers

import (
	"errors"
	"net/http"
	"time"

	"raffle-system/internal/status"
	"raffle-system/models"
	"raffle-system/services"

	"github.com/pocketbase/pocketbase"
	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"
)

// OpsHandler is the operator-facing API: inventory checks, payment
// confirmation, cancellations and the winner draw.
type OpsHandler struct {
	app     *pocketbase.PocketBase
	reserve *services.ReservationService
}

func NewOpsHandler(app *pocketbase.PocketBase, reserve *services.ReservationService) *OpsHandler {
	return &OpsHandler{
		app:     app,
		reserve: reserve,
	}
}

// GetAvailability - inventory split and open numbers for one raffle
func (h *OpsHandler) GetAvailability(e *core.RequestEvent) error {
	raffleID := e.Request.PathValue("raffleId")

	avail, err := h.reserve.Availability(e.Request.Context(), raffleID)
	if err != nil {
		return apiError(err)
	}
	return e.JSON(http.StatusOK, avail)
}

// ConfirmPayment - mark a pending order as paid
func (h *OpsHandler) ConfirmPayment(e *core.RequestEvent) error {
	orderID := e.Request.PathValue("orderId")

	var req struct {
		ProofReference string `json:"proof_reference"`
	}
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}

	order, err := h.reserve.ConfirmPaid(e.Request.Context(), orderID, req.ProofReference)
	if err != nil {
		return apiError(err)
	}
	return e.JSON(http.StatusOK, order)
}

// CancelOrder - release an open order's tickets
func (h *OpsHandler) CancelOrder(e *core.RequestEvent) error {
	orderID := e.Request.PathValue("orderId")

	var req struct {
		Reason string `json:"reason"`
	}
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}
	if req.Reason == "" {
		req.Reason = "cancelled by operator"
	}

	order, err := h.reserve.CancelOrder(e.Request.Context(), orderID, req.Reason)
	if err != nil {
		return apiError(err)
	}
	return e.JSON(http.StatusOK, order)
}

// ListPendingOrders - orders awaiting payment confirmation, oldest first
func (h *OpsHandler) ListPendingOrders(e *core.RequestEvent) error {
	orders, err := h.reserve.ListPendingPayment(e.Request.Context(), 100)
	if err != nil {
		return apiError(err)
	}

	type pendingOrder struct {
		*models.Order
		ContactPhone string `json:"contact_phone,omitempty"`
		ContactName  string `json:"contact_name,omitempty"`
	}
	out := make([]pendingOrder, 0, len(orders))
	for _, order := range orders {
		po := pendingOrder{Order: order}
		if contact, err := h.app.FindRecordById("contacts", order.ContactID); err == nil {
			po.ContactPhone = contact.GetString("phone")
			po.ContactName = contact.GetString("display_name")
		}
		out = append(out, po)
	}
	return e.JSON(http.StatusOK, map[string]any{"orders": out, "count": len(out)})
}

// DrawWinner - finalize the raffle with a random sold ticket
func (h *OpsHandler) DrawWinner(e *core.RequestEvent) error {
	raffleID := e.Request.PathValue("raffleId")

	result, err := h.reserve.DrawWinner(e.Request.Context(), raffleID)
	if err != nil {
		return apiError(err)
	}
	return e.JSON(http.StatusOK, result)
}

// RunSweep - trigger the expiry sweep outside its schedule
func (h *OpsHandler) RunSweep(e *core.RequestEvent) error {
	released, expired, err := h.reserve.SweepExpired(e.Request.Context(), time.Now())
	if err != nil {
		return apiError(err)
	}
	return e.JSON(http.StatusOK, map[string]any{
		"tickets_released": released,
		"orders_expired":   expired,
	})
}

// ListPaymentAlerts - recent bank transfer alerts
func (h *OpsHandler) ListPaymentAlerts(e *core.RequestEvent) error {
	recs, err := h.app.FindRecordsByFilter("payment_alerts", "", "-created", 100, 0)
	if err != nil {
		return apiError(err)
	}

	alerts := make([]*models.PaymentAlert, 0, len(recs))
	for _, rec := range recs {
		alerts = append(alerts, models.PaymentAlertFromRecord(rec))
	}
	return e.JSON(http.StatusOK, map[string]any{"alerts": alerts, "count": len(alerts)})
}

// MatchPaymentAlert - link an alert to an order by hand
func (h *OpsHandler) MatchPaymentAlert(e *core.RequestEvent) error {
	alertID := e.Request.PathValue("alertId")

	var req struct {
		OrderID string `json:"order_id"`
	}
	if err := e.BindBody(&req); err != nil || req.OrderID == "" {
		return apis.NewBadRequestError("order_id is required", err)
	}

	order, err := h.reserve.GetOrder(e.Request.Context(), req.OrderID)
	if err != nil {
		return apiError(err)
	}

	rec, err := h.app.FindRecordById("payment_alerts", alertID)
	if err != nil {
		return apis.NewNotFoundError("Alert not found", err)
	}
	rec.Set("matched_order", order.ID)
	if err := h.app.Save(rec); err != nil {
		return err
	}
	return e.JSON(http.StatusOK, models.PaymentAlertFromRecord(rec))
}

// apiError translates reservation failures into HTTP errors. Typed rejections
// become 4xx with their message; anything unexpected bubbles up as a 500.
func apiError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, status.ErrNotFound):
		return apis.NewNotFoundError(err.Error(), nil)
	case errors.Is(err, status.ErrTransientConflict):
		return apis.NewApiError(http.StatusConflict, err.Error(), nil)
	case status.IsDomain(err):
		return apis.NewBadRequestError(err.Error(), nil)
	default:
		return err
	}
}
