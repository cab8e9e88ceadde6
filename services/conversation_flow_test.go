package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"raffle-system/config"
	"raffle-system/internal/status"
	"raffle-system/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeEngine implements ConversationEngine with overridable function fields.
// Calling an operation a test did not stub fails loudly.
type fakeEngine struct {
	getRaffle          func(raffleID string) (*models.Raffle, error)
	activeRaffles      func() ([]*models.Raffle, error)
	availability       func(raffleID string) (*models.Availability, error)
	reserveSpecific    func(raffleID, contactID string, numbers []int) (*models.Order, error)
	reserveRandom      func(raffleID, contactID string, qty int) (*models.Order, error)
	confirmReservation func(orderID string) (*models.Order, error)
	cancelOrder        func(orderID, reason string) (*models.Order, error)
	attachProof        func(orderID, proofRef string) (*models.Order, error)
	getOrder           func(orderID string) (*models.Order, error)
	ordersForContact   func(contactID string, limit int) ([]*models.Order, error)
}

func (f *fakeEngine) GetRaffle(_ context.Context, raffleID string) (*models.Raffle, error) {
	if f.getRaffle == nil {
		panic("unexpected GetRaffle call")
	}
	return f.getRaffle(raffleID)
}

func (f *fakeEngine) ActiveRaffles(_ context.Context) ([]*models.Raffle, error) {
	if f.activeRaffles == nil {
		panic("unexpected ActiveRaffles call")
	}
	return f.activeRaffles()
}

func (f *fakeEngine) Availability(_ context.Context, raffleID string) (*models.Availability, error) {
	if f.availability == nil {
		panic("unexpected Availability call")
	}
	return f.availability(raffleID)
}

func (f *fakeEngine) ReserveSpecific(_ context.Context, raffleID, contactID string, numbers []int) (*models.Order, error) {
	if f.reserveSpecific == nil {
		panic("unexpected ReserveSpecific call")
	}
	return f.reserveSpecific(raffleID, contactID, numbers)
}

func (f *fakeEngine) ReserveRandom(_ context.Context, raffleID, contactID string, qty int) (*models.Order, error) {
	if f.reserveRandom == nil {
		panic("unexpected ReserveRandom call")
	}
	return f.reserveRandom(raffleID, contactID, qty)
}

func (f *fakeEngine) ConfirmReservation(_ context.Context, orderID string) (*models.Order, error) {
	if f.confirmReservation == nil {
		panic("unexpected ConfirmReservation call")
	}
	return f.confirmReservation(orderID)
}

func (f *fakeEngine) CancelOrder(_ context.Context, orderID, reason string) (*models.Order, error) {
	if f.cancelOrder == nil {
		panic("unexpected CancelOrder call")
	}
	return f.cancelOrder(orderID, reason)
}

func (f *fakeEngine) AttachProof(_ context.Context, orderID, proofRef string) (*models.Order, error) {
	if f.attachProof == nil {
		panic("unexpected AttachProof call")
	}
	return f.attachProof(orderID, proofRef)
}

func (f *fakeEngine) GetOrder(_ context.Context, orderID string) (*models.Order, error) {
	if f.getOrder == nil {
		panic("unexpected GetOrder call")
	}
	return f.getOrder(orderID)
}

func (f *fakeEngine) OrdersForContact(_ context.Context, contactID string, limit int) ([]*models.Order, error) {
	if f.ordersForContact == nil {
		panic("unexpected OrdersForContact call")
	}
	return f.ordersForContact(contactID, limit)
}

func testFlowConfig() *config.Config {
	return &config.Config{
		ReservationTTL:      30 * time.Minute,
		MinTicketsPerOrder:  1,
		MaxTicketsPerOrder:  5,
		PaymentInstructions: "Transfer to account 010-12-00-123456789.",
	}
}

func testRaffle() *models.Raffle {
	return &models.Raffle{
		ID:          "raffle-1",
		Name:        "New Year Raffle",
		TicketPrice: decimal.RequireFromString("50000"),
		Currency:    "LAK",
		MinNumber:   1,
		MaxNumber:   100,
		Status:      models.RaffleActive,
	}
}

func testOrder() *models.Order {
	return &models.Order{
		ID:          "order-1",
		Code:        "R-AB12CD34",
		RaffleID:    "raffle-1",
		ContactID:   "contact-1",
		Quantity:    2,
		UnitPrice:   decimal.RequireFromString("50000"),
		TotalAmount: decimal.RequireFromString("100000"),
		Status:      models.OrderDraft,
		Numbers:     []int{7, 13},
	}
}

// setupFlowTest wires a flow against an engine that knows one active raffle.
func setupFlowTest() (*ConversationFlow, *fakeEngine) {
	eng := &fakeEngine{
		getRaffle: func(string) (*models.Raffle, error) { return testRaffle(), nil },
		activeRaffles: func() ([]*models.Raffle, error) {
			return []*models.Raffle{testRaffle()}, nil
		},
		availability: func(string) (*models.Availability, error) {
			return &models.Availability{RaffleID: "raffle-1", Available: 98, Reserved: 1, Sold: 1}, nil
		},
	}
	return NewConversationFlow(testFlowConfig()), eng
}

func contactIn(state string, cctx models.ConversationContext) *models.Contact {
	return &models.Contact{ID: "contact-1", Phone: "8562077777777", State: state, Context: cctx}
}

func textMsg(text string) *models.InboundMessage {
	return &models.InboundMessage{ProviderMessageID: "wamid.1", From: "8562077777777", Kind: models.KindText, Text: text}
}

func TestConversationFlow_GlobalCommandBeatsState(t *testing.T) {
	flow, eng := setupFlowTest()
	contact := contactIn(models.StateAskQty, models.ConversationContext{RaffleID: "raffle-1", Mode: models.ModeRandom})

	tr, err := flow.Advance(context.Background(), eng, contact, textMsg("MENU"))

	require.NoError(t, err)
	assert.Equal(t, models.StateMenu, tr.State)
	assert.True(t, tr.Context.IsZero())
	assert.Contains(t, tr.Reply.Text, "New Year Raffle")
}

func TestConversationFlow_HelpKeepsState(t *testing.T) {
	flow, eng := setupFlowTest()
	cctx := models.ConversationContext{RaffleID: "raffle-1", Mode: models.ModePick}
	contact := contactIn(models.StateAskPickNumbers, cctx)

	tr, err := flow.Advance(context.Background(), eng, contact, textMsg("help"))

	require.NoError(t, err)
	assert.Equal(t, models.StateAskPickNumbers, tr.State)
	assert.Equal(t, cctx, tr.Context)
	assert.Contains(t, tr.Reply.Text, "MENU")
}

func TestConversationFlow_MenuSelectByIndex(t *testing.T) {
	flow, eng := setupFlowTest()
	contact := contactIn(models.StateMenu, models.ConversationContext{})

	tr, err := flow.Advance(context.Background(), eng, contact, textMsg("1"))

	require.NoError(t, err)
	assert.Equal(t, models.StateChooseMode, tr.State)
	assert.Equal(t, "raffle-1", tr.Context.RaffleID)
	assert.Contains(t, tr.Reply.Text, "New Year Raffle")
	assert.Contains(t, tr.Reply.Text, "98 of 100")
	require.Len(t, tr.Reply.Choices, 2)
	assert.Equal(t, "pick", tr.Reply.Choices[0].ID)
	assert.Equal(t, "random", tr.Reply.Choices[1].ID)
}

func TestConversationFlow_MenuSelectByButtonID(t *testing.T) {
	flow, eng := setupFlowTest()
	contact := contactIn(models.StateMenu, models.ConversationContext{})

	msg := &models.InboundMessage{ProviderMessageID: "wamid.2", From: "8562077777777", Kind: models.KindNumberSelection, Text: "raffle:raffle-1"}
	tr, err := flow.Advance(context.Background(), eng, contact, msg)

	require.NoError(t, err)
	assert.Equal(t, models.StateChooseMode, tr.State)
	assert.Equal(t, "raffle-1", tr.Context.RaffleID)
}

func TestConversationFlow_MenuUnrecognizedInput(t *testing.T) {
	flow, eng := setupFlowTest()
	contact := contactIn(models.StateMenu, models.ConversationContext{})

	tr, err := flow.Advance(context.Background(), eng, contact, textMsg("buy me tickets"))

	require.NoError(t, err)
	assert.Equal(t, models.StateMenu, tr.State)
	assert.Contains(t, tr.Reply.Text, "I didn't catch that")
}

func TestConversationFlow_ChooseModePick(t *testing.T) {
	flow, eng := setupFlowTest()
	contact := contactIn(models.StateChooseMode, models.ConversationContext{RaffleID: "raffle-1"})

	tr, err := flow.Advance(context.Background(), eng, contact, textMsg("pick"))

	require.NoError(t, err)
	assert.Equal(t, models.StateAskPickNumbers, tr.State)
	assert.Equal(t, models.ModePick, tr.Context.Mode)
	assert.Contains(t, tr.Reply.Text, "between 1 and 100")
}

func TestConversationFlow_ChooseModeRandom(t *testing.T) {
	flow, eng := setupFlowTest()
	contact := contactIn(models.StateChooseMode, models.ConversationContext{RaffleID: "raffle-1"})

	tr, err := flow.Advance(context.Background(), eng, contact, textMsg("random"))

	require.NoError(t, err)
	assert.Equal(t, models.StateAskQty, tr.State)
	assert.Equal(t, models.ModeRandom, tr.Context.Mode)
	assert.Contains(t, tr.Reply.Text, "(1-5)")
}

func TestConversationFlow_RandomShortcutReservesDirectly(t *testing.T) {
	flow, eng := setupFlowTest()

	var gotQty int
	eng.reserveRandom = func(raffleID, contactID string, qty int) (*models.Order, error) {
		assert.Equal(t, "raffle-1", raffleID)
		assert.Equal(t, "contact-1", contactID)
		gotQty = qty
		return testOrder(), nil
	}

	contact := contactIn(models.StateChooseMode, models.ConversationContext{RaffleID: "raffle-1"})
	tr, err := flow.Advance(context.Background(), eng, contact, textMsg("random 3"))

	require.NoError(t, err)
	assert.Equal(t, 3, gotQty)
	assert.Equal(t, models.StateConfirmReservation, tr.State)
	assert.Equal(t, "order-1", tr.Context.DraftOrderID)
	assert.Equal(t, models.ModeRandom, tr.Context.Mode)
	assert.Empty(t, tr.Context.PickedNumbers)
	assert.Contains(t, tr.Reply.Text, "7, 13")
	assert.Contains(t, tr.Reply.Text, "R-AB12CD34")
	assert.Contains(t, tr.Reply.Text, "100000 LAK")
	assert.Contains(t, tr.Reply.Text, "30 minutes")
}

func TestConversationFlow_AskQtyReserves(t *testing.T) {
	flow, eng := setupFlowTest()
	eng.reserveRandom = func(_, _ string, qty int) (*models.Order, error) {
		assert.Equal(t, 2, qty)
		return testOrder(), nil
	}

	contact := contactIn(models.StateAskQty, models.ConversationContext{RaffleID: "raffle-1", Mode: models.ModeRandom})
	tr, err := flow.Advance(context.Background(), eng, contact, textMsg("2"))

	require.NoError(t, err)
	assert.Equal(t, models.StateConfirmReservation, tr.State)
}

func TestConversationFlow_AskQtyRejectsNonNumeric(t *testing.T) {
	flow, eng := setupFlowTest()
	contact := contactIn(models.StateAskQty, models.ConversationContext{RaffleID: "raffle-1", Mode: models.ModeRandom})

	tr, err := flow.Advance(context.Background(), eng, contact, textMsg("a few"))

	require.NoError(t, err)
	assert.Equal(t, models.StateAskQty, tr.State)
	assert.Contains(t, tr.Reply.Text, "quantity as a number")
}

func TestConversationFlow_AskQtyTooMany(t *testing.T) {
	flow, eng := setupFlowTest()
	eng.reserveRandom = func(_, _ string, qty int) (*models.Order, error) {
		return nil, &status.QuantityError{Qty: qty, Min: 1, Max: 5}
	}

	contact := contactIn(models.StateAskQty, models.ConversationContext{RaffleID: "raffle-1", Mode: models.ModeRandom})
	tr, err := flow.Advance(context.Background(), eng, contact, textMsg("12"))

	require.NoError(t, err)
	assert.Equal(t, models.StateAskQty, tr.State)
	assert.Contains(t, tr.Reply.Text, "between 1 and 5")
}

func TestConversationFlow_PickNumbersReserves(t *testing.T) {
	flow, eng := setupFlowTest()

	var gotNumbers []int
	eng.reserveSpecific = func(raffleID, contactID string, numbers []int) (*models.Order, error) {
		gotNumbers = numbers
		return testOrder(), nil
	}

	contact := contactIn(models.StateAskPickNumbers, models.ConversationContext{RaffleID: "raffle-1", Mode: models.ModePick})
	tr, err := flow.Advance(context.Background(), eng, contact, textMsg("7, 13"))

	require.NoError(t, err)
	assert.Equal(t, []int{7, 13}, gotNumbers)
	assert.Equal(t, models.StateConfirmReservation, tr.State)
	assert.Equal(t, []int{7, 13}, tr.Context.PickedNumbers)
}

func TestConversationFlow_PickNumbersTaken(t *testing.T) {
	flow, eng := setupFlowTest()
	eng.reserveSpecific = func(_, _ string, _ []int) (*models.Order, error) {
		return nil, &status.TakenNumbersError{Numbers: []int{13}}
	}

	cctx := models.ConversationContext{RaffleID: "raffle-1", Mode: models.ModePick}
	contact := contactIn(models.StateAskPickNumbers, cctx)
	tr, err := flow.Advance(context.Background(), eng, contact, textMsg("7, 13"))

	require.NoError(t, err)
	assert.Equal(t, models.StateAskPickNumbers, tr.State)
	assert.Equal(t, cctx, tr.Context)
	assert.Contains(t, tr.Reply.Text, "Already taken: 13")
}

func TestConversationFlow_PickNumbersGarbage(t *testing.T) {
	flow, eng := setupFlowTest()
	contact := contactIn(models.StateAskPickNumbers, models.ConversationContext{RaffleID: "raffle-1", Mode: models.ModePick})

	tr, err := flow.Advance(context.Background(), eng, contact, textMsg("seven and nine"))

	require.NoError(t, err)
	assert.Equal(t, models.StateAskPickNumbers, tr.State)
	assert.Contains(t, tr.Reply.Text, "separated by commas")
}

func TestConversationFlow_ConfirmMovesToWaitProof(t *testing.T) {
	flow, eng := setupFlowTest()

	confirmed := testOrder()
	confirmed.Status = models.OrderPendingPayment
	eng.confirmReservation = func(orderID string) (*models.Order, error) {
		assert.Equal(t, "order-1", orderID)
		return confirmed, nil
	}

	cctx := models.ConversationContext{RaffleID: "raffle-1", Mode: models.ModePick, Qty: 2, DraftOrderID: "order-1", PickedNumbers: []int{7, 13}}
	contact := contactIn(models.StateConfirmReservation, cctx)
	tr, err := flow.Advance(context.Background(), eng, contact, textMsg("confirm"))

	require.NoError(t, err)
	assert.Equal(t, models.StateWaitProof, tr.State)
	assert.Equal(t, "order-1", tr.Context.DraftOrderID)
	assert.Contains(t, tr.Reply.Text, "010-12-00-123456789")
	assert.Contains(t, tr.Reply.Text, "SKIP")
}

func TestConversationFlow_ConfirmUnclearInputRepeatsSummary(t *testing.T) {
	flow, eng := setupFlowTest()
	eng.getOrder = func(orderID string) (*models.Order, error) { return testOrder(), nil }

	contact := contactIn(models.StateConfirmReservation, models.ConversationContext{RaffleID: "raffle-1", DraftOrderID: "order-1"})
	tr, err := flow.Advance(context.Background(), eng, contact, textMsg("hmm"))

	require.NoError(t, err)
	assert.Equal(t, models.StateConfirmReservation, tr.State)
	assert.Contains(t, tr.Reply.Text, "R-AB12CD34")
	assert.Contains(t, tr.Reply.Text, "CONFIRM")
}

func TestConversationFlow_ConfirmAfterExpiryResetsToMenu(t *testing.T) {
	flow, eng := setupFlowTest()
	eng.confirmReservation = func(orderID string) (*models.Order, error) {
		return nil, &status.TransitionError{OrderID: orderID, From: models.OrderExpired, To: models.OrderPendingPayment}
	}
	expired := testOrder()
	expired.Status = models.OrderExpired
	eng.getOrder = func(string) (*models.Order, error) { return expired, nil }

	contact := contactIn(models.StateConfirmReservation, models.ConversationContext{RaffleID: "raffle-1", DraftOrderID: "order-1"})
	tr, err := flow.Advance(context.Background(), eng, contact, textMsg("confirm"))

	require.NoError(t, err)
	assert.Equal(t, models.StateMenu, tr.State)
	assert.True(t, tr.Context.IsZero())
	assert.Contains(t, tr.Reply.Text, "reservation expired")
}

func TestConversationFlow_WaitProofSkip(t *testing.T) {
	flow, eng := setupFlowTest()
	cctx := models.ConversationContext{RaffleID: "raffle-1", Mode: models.ModePick, DraftOrderID: "order-1"}
	contact := contactIn(models.StateWaitProof, cctx)

	tr, err := flow.Advance(context.Background(), eng, contact, textMsg("skip"))

	require.NoError(t, err)
	assert.Equal(t, models.StateDone, tr.State)
	assert.Equal(t, "raffle-1", tr.Context.RaffleID)
	assert.Equal(t, "order-1", tr.Context.DraftOrderID)
	assert.Empty(t, tr.Context.Mode)
}

func TestConversationFlow_WaitProofImage(t *testing.T) {
	flow, eng := setupFlowTest()

	var gotRef string
	eng.attachProof = func(orderID, proofRef string) (*models.Order, error) {
		gotRef = proofRef
		o := testOrder()
		o.Status = models.OrderPendingPayment
		o.ProofReference = proofRef
		return o, nil
	}

	contact := contactIn(models.StateWaitProof, models.ConversationContext{RaffleID: "raffle-1", DraftOrderID: "order-1"})
	msg := &models.InboundMessage{ProviderMessageID: "wamid.3", From: "8562077777777", Kind: models.KindImage, MediaID: "media-9"}
	tr, err := flow.Advance(context.Background(), eng, contact, msg)

	require.NoError(t, err)
	assert.Equal(t, "media:media-9", gotRef)
	assert.Equal(t, models.StateDone, tr.State)
	assert.Contains(t, tr.Reply.Text, "R-AB12CD34")
}

func TestConversationFlow_WaitProofTransferReference(t *testing.T) {
	flow, eng := setupFlowTest()

	var gotRef string
	eng.attachProof = func(_, proofRef string) (*models.Order, error) {
		gotRef = proofRef
		return testOrder(), nil
	}

	contact := contactIn(models.StateWaitProof, models.ConversationContext{RaffleID: "raffle-1", DraftOrderID: "order-1"})
	tr, err := flow.Advance(context.Background(), eng, contact, textMsg("FT20260822001"))

	require.NoError(t, err)
	assert.Equal(t, "FT20260822001", gotRef)
	assert.Equal(t, models.StateDone, tr.State)
}

func TestConversationFlow_CancelReleasesHeldOrder(t *testing.T) {
	flow, eng := setupFlowTest()

	cancelled := testOrder()
	cancelled.Status = models.OrderCancelled
	var gotReason string
	eng.cancelOrder = func(orderID, reason string) (*models.Order, error) {
		assert.Equal(t, "order-1", orderID)
		gotReason = reason
		return cancelled, nil
	}

	contact := contactIn(models.StateConfirmReservation, models.ConversationContext{RaffleID: "raffle-1", DraftOrderID: "order-1"})
	tr, err := flow.Advance(context.Background(), eng, contact, textMsg("cancel"))

	require.NoError(t, err)
	assert.Equal(t, "cancelled in chat", gotReason)
	assert.Equal(t, models.StateMenu, tr.State)
	assert.True(t, tr.Context.IsZero())
	require.Len(t, tr.Events, 1)
	assert.Equal(t, FlowEventOrderCancelled, tr.Events[0].Kind)
	assert.Contains(t, tr.Reply.Text, "numbers are free again")
}

func TestConversationFlow_CancelWithNothingHeld(t *testing.T) {
	flow, eng := setupFlowTest()
	contact := contactIn(models.StateMenu, models.ConversationContext{})

	tr, err := flow.Advance(context.Background(), eng, contact, textMsg("cancel"))

	require.NoError(t, err)
	assert.Equal(t, models.StateMenu, tr.State)
	assert.Empty(t, tr.Events)
	assert.Contains(t, tr.Reply.Text, "nothing to cancel")
}

func TestConversationFlow_MenuCommandReleasesDraft(t *testing.T) {
	flow, eng := setupFlowTest()

	draft := testOrder()
	eng.getOrder = func(string) (*models.Order, error) { return draft, nil }
	cancelled := testOrder()
	cancelled.Status = models.OrderCancelled
	eng.cancelOrder = func(orderID, reason string) (*models.Order, error) {
		assert.Equal(t, "returned to menu", reason)
		return cancelled, nil
	}

	contact := contactIn(models.StateConfirmReservation, models.ConversationContext{RaffleID: "raffle-1", DraftOrderID: "order-1"})
	tr, err := flow.Advance(context.Background(), eng, contact, textMsg("menu"))

	require.NoError(t, err)
	assert.Equal(t, models.StateMenu, tr.State)
	require.Len(t, tr.Events, 1)
	assert.Contains(t, tr.Reply.Text, "was released")
}

func TestConversationFlow_MenuCommandKeepsConfirmedOrder(t *testing.T) {
	flow, eng := setupFlowTest()

	pending := testOrder()
	pending.Status = models.OrderPendingPayment
	eng.getOrder = func(string) (*models.Order, error) { return pending, nil }

	contact := contactIn(models.StateWaitProof, models.ConversationContext{RaffleID: "raffle-1", DraftOrderID: "order-1"})
	tr, err := flow.Advance(context.Background(), eng, contact, textMsg("menu"))

	require.NoError(t, err)
	assert.Equal(t, models.StateMenu, tr.State)
	assert.Empty(t, tr.Events)
	assert.NotContains(t, tr.Reply.Text, "was released")
}

func TestConversationFlow_OrdersCommand(t *testing.T) {
	flow, eng := setupFlowTest()

	paid := testOrder()
	paid.Status = models.OrderPaid
	eng.ordersForContact = func(contactID string, limit int) ([]*models.Order, error) {
		assert.Equal(t, "contact-1", contactID)
		assert.Equal(t, 5, limit)
		return []*models.Order{paid}, nil
	}

	contact := contactIn(models.StateDone, models.ConversationContext{RaffleID: "raffle-1", DraftOrderID: "order-1"})
	tr, err := flow.Advance(context.Background(), eng, contact, textMsg("orders"))

	require.NoError(t, err)
	assert.Equal(t, models.StateDone, tr.State)
	assert.Contains(t, tr.Reply.Text, "R-AB12CD34")
	assert.Contains(t, tr.Reply.Text, models.OrderPaid)
	assert.Contains(t, tr.Reply.Text, "7, 13")
}

func TestConversationFlow_DoneAcceptsLateProof(t *testing.T) {
	flow, eng := setupFlowTest()

	var gotRef string
	eng.attachProof = func(_, proofRef string) (*models.Order, error) {
		gotRef = proofRef
		return testOrder(), nil
	}

	contact := contactIn(models.StateDone, models.ConversationContext{RaffleID: "raffle-1", DraftOrderID: "order-1"})
	msg := &models.InboundMessage{ProviderMessageID: "wamid.4", From: "8562077777777", Kind: models.KindImage, MediaID: "media-late"}
	tr, err := flow.Advance(context.Background(), eng, contact, msg)

	require.NoError(t, err)
	assert.Equal(t, "media:media-late", gotRef)
	assert.Equal(t, models.StateDone, tr.State)
	assert.Contains(t, tr.Reply.Text, "proof recorded")
}

func TestConversationFlow_UnexpectedEngineErrorAborts(t *testing.T) {
	flow, eng := setupFlowTest()
	eng.reserveSpecific = func(_, _ string, _ []int) (*models.Order, error) {
		return nil, errors.New("database gone")
	}

	contact := contactIn(models.StateAskPickNumbers, models.ConversationContext{RaffleID: "raffle-1", Mode: models.ModePick})
	tr, err := flow.Advance(context.Background(), eng, contact, textMsg("7"))

	require.Error(t, err)
	assert.Nil(t, tr)
}

func TestConversationFlow_InactiveRaffleResetsToMenu(t *testing.T) {
	flow, eng := setupFlowTest()
	eng.reserveRandom = func(_, _ string, _ int) (*models.Order, error) {
		return nil, status.ErrRaffleInactive
	}

	contact := contactIn(models.StateAskQty, models.ConversationContext{RaffleID: "raffle-1", Mode: models.ModeRandom})
	tr, err := flow.Advance(context.Background(), eng, contact, textMsg("2"))

	require.NoError(t, err)
	assert.Equal(t, models.StateMenu, tr.State)
	assert.Contains(t, tr.Reply.Text, "no longer open")
}

func TestRenderEngineError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"out of range", &status.OutOfRangeError{Numbers: []int{0, 101}, Min: 1, Max: 100}, "outside the 1-100 range: 0, 101"},
		{"taken", &status.TakenNumbersError{Numbers: []int{7}}, "Already taken: 7"},
		{"availability", &status.AvailabilityError{Requested: 10, Available: 4}, "Only 4 ticket(s)"},
		{"quantity", &status.QuantityError{Qty: 9, Min: 1, Max: 5}, "between 1 and 5"},
		{"empty selection", status.ErrEmptySelection, "at least one number"},
		{"invalid transition", status.ErrInvalidTransition, "no longer be changed"},
		{"transient conflict", &status.ConflictError{Attempts: 3, Cause: errors.New("busy")}, "try again"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Contains(t, renderEngineError(tt.err), tt.want)
		})
	}
}

func TestParseNumberList(t *testing.T) {
	tests := []struct {
		input string
		want  []int
		ok    bool
	}{
		{"7", []int{7}, true},
		{"5, 12, 18", []int{5, 12, 18}, true},
		{"5;12 18", []int{5, 12, 18}, true},
		{"  3 ,4 ", []int{3, 4}, true},
		{"", nil, false},
		{"five", nil, false},
		{"3, x", nil, false},
	}

	for _, tt := range tests {
		got, ok := parseNumberList(tt.input)
		assert.Equal(t, tt.ok, ok, "input %q", tt.input)
		if tt.ok {
			assert.Equal(t, tt.want, got, "input %q", tt.input)
		}
	}
}

func TestMatchRaffle(t *testing.T) {
	raffles := []*models.Raffle{
		{ID: "r1", Name: "New Year Raffle"},
		{ID: "r2", Name: "Songkran Raffle"},
	}

	assert.Equal(t, "r1", matchRaffle(raffles, "1").ID)
	assert.Equal(t, "r2", matchRaffle(raffles, "2").ID)
	assert.Nil(t, matchRaffle(raffles, "3"))
	assert.Nil(t, matchRaffle(raffles, "0"))

	assert.Equal(t, "r2", matchRaffle(raffles, "raffle:r2").ID)
	assert.Nil(t, matchRaffle(raffles, "raffle:unknown"))

	assert.Equal(t, "r1", matchRaffle(raffles, "new year raffle").ID)
	assert.Nil(t, matchRaffle(raffles, "unknown raffle"))
}
