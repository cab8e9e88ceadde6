package services

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"raffle-system/config"
	"raffle-system/internal/status"
	"raffle-system/models"
)

// ConversationEngine is the slice of the reservation API the chat flow drives.
// The dispatcher passes a transaction-bound implementation so a reply and its
// reservation commit or roll back together.
type ConversationEngine interface {
	GetRaffle(ctx context.Context, raffleID string) (*models.Raffle, error)
	ActiveRaffles(ctx context.Context) ([]*models.Raffle, error)
	Availability(ctx context.Context, raffleID string) (*models.Availability, error)
	ReserveSpecific(ctx context.Context, raffleID, contactID string, numbers []int) (*models.Order, error)
	ReserveRandom(ctx context.Context, raffleID, contactID string, qty int) (*models.Order, error)
	ConfirmReservation(ctx context.Context, orderID string) (*models.Order, error)
	CancelOrder(ctx context.Context, orderID, reason string) (*models.Order, error)
	AttachProof(ctx context.Context, orderID, proofRef string) (*models.Order, error)
	GetOrder(ctx context.Context, orderID string) (*models.Order, error)
	OrdersForContact(ctx context.Context, contactID string, limit int) ([]*models.Order, error)
}

// Transition is the outcome of advancing a conversation by one inbound
// message: the contact's next state and scratchpad, the reply to send, and
// events to publish after the surrounding transaction commits.
type Transition struct {
	State   string
	Context models.ConversationContext
	Reply   *models.Prompt
	Events  []FlowEvent
}

type FlowEvent struct {
	Kind  string
	Order *models.Order
}

const FlowEventOrderCancelled = "order_cancelled"

var randomShortcutRe = regexp.MustCompile(`^(?:random|aleatorio|azar)\s+(\d{1,4})$`)

// Keyword sets accept English and Spanish plus the ids carried by interactive
// button replies.
var (
	menuWords    = wordSet("menu", "menú", "volver", "inicio", "start", "hola", "hello", "hi")
	cancelWords  = wordSet("cancel", "cancelar")
	helpWords    = wordSet("help", "ayuda")
	ordersWords  = wordSet("orders", "pedidos", "mis pedidos")
	pickWords    = wordSet("pick", "elegir", "1")
	randomWords  = wordSet("random", "aleatorio", "azar", "2")
	confirmWords = wordSet("confirm", "confirmar", "si", "sí", "yes", "ok")
	skipWords    = wordSet("skip", "saltar", "later", "luego", "despues", "después")
)

func wordSet(words ...string) map[string]bool {
	set := make(map[string]bool, len(words))
	for _, w := range words {
		set[w] = true
	}
	return set
}

// ConversationFlow advances one contact's conversation per inbound message.
// It holds no mutable state of its own; everything it needs arrives as the
// contact snapshot and leaves as a Transition.
type ConversationFlow struct {
	cfg *config.Config
}

func NewConversationFlow(cfg *config.Config) *ConversationFlow {
	return &ConversationFlow{cfg: cfg}
}

// Advance computes the next state, scratchpad and reply for one message.
// Command keywords win over the per-state handling regardless of state.
// Expected engine failures (taken numbers, lapsed reservations and the like)
// become advisory replies that leave the state alone; anything else is
// returned as an error so the caller can abort the whole dispatch.
func (f *ConversationFlow) Advance(ctx context.Context, eng ConversationEngine, contact *models.Contact, msg *models.InboundMessage) (*Transition, error) {
	text := strings.ToLower(strings.TrimSpace(msg.Text))

	switch {
	case menuWords[text]:
		return f.commandMenu(ctx, eng, contact, "")
	case cancelWords[text]:
		return f.commandCancel(ctx, eng, contact)
	case helpWords[text]:
		return f.stay(contact, f.helpText()), nil
	case ordersWords[text]:
		return f.commandOrders(ctx, eng, contact)
	}

	switch contact.State {
	case models.StateMenu:
		return f.handleMenu(ctx, eng, contact, text)
	case models.StateChooseMode:
		return f.handleChooseMode(ctx, eng, contact, text)
	case models.StateAskQty:
		return f.handleAskQty(ctx, eng, contact, text)
	case models.StateAskPickNumbers:
		return f.handleAskPick(ctx, eng, contact, text)
	case models.StateConfirmReservation:
		return f.handleConfirmReservation(ctx, eng, contact, text)
	case models.StateWaitProof:
		return f.handleWaitProof(ctx, eng, contact, msg)
	case models.StateDone:
		return f.handleDone(ctx, eng, contact, msg)
	default:
		// Unknown persisted state, start over from the menu.
		return f.commandMenu(ctx, eng, contact, "")
	}
}

// commandMenu returns to the raffle menu. An order still sitting in DRAFT is
// released on the way out; a confirmed one keeps its reservation.
func (f *ConversationFlow) commandMenu(ctx context.Context, eng ConversationEngine, contact *models.Contact, notice string) (*Transition, error) {
	var events []FlowEvent

	if draftID := contact.Context.DraftOrderID; draftID != "" {
		order, err := eng.GetOrder(ctx, draftID)
		switch {
		case err == nil && order.Status == models.OrderDraft:
			cancelled, cerr := eng.CancelOrder(ctx, draftID, "returned to menu")
			if cerr != nil {
				if !status.IsDomain(cerr) {
					return nil, cerr
				}
			} else {
				events = append(events, FlowEvent{Kind: FlowEventOrderCancelled, Order: cancelled})
				notice += fmt.Sprintf("Order %s was released. ", cancelled.Code)
			}
		case err != nil && !errors.Is(err, status.ErrNotFound):
			return nil, err
		}
	}

	reply, err := f.menuPrompt(ctx, eng, notice)
	if err != nil {
		return nil, err
	}
	return &Transition{
		State:   models.StateMenu,
		Context: models.ConversationContext{},
		Reply:   reply,
		Events:  events,
	}, nil
}

// commandCancel releases whichever open order the conversation is holding and
// returns to the menu.
func (f *ConversationFlow) commandCancel(ctx context.Context, eng ConversationEngine, contact *models.Contact) (*Transition, error) {
	orderID := contact.Context.DraftOrderID
	if orderID == "" {
		return f.commandMenu(ctx, eng, contact, "There is nothing to cancel. ")
	}

	order, err := eng.CancelOrder(ctx, orderID, "cancelled in chat")
	if err != nil {
		if !status.IsDomain(err) {
			return nil, err
		}
		// Already paid or gone, nothing to release.
		contact.Context.DraftOrderID = ""
		return f.commandMenu(ctx, eng, contact, "That order can no longer be cancelled. ")
	}

	reply, rerr := f.menuPrompt(ctx, eng, fmt.Sprintf("Order %s cancelled, the numbers are free again. ", order.Code))
	if rerr != nil {
		return nil, rerr
	}
	return &Transition{
		State:   models.StateMenu,
		Context: models.ConversationContext{},
		Reply:   reply,
		Events:  []FlowEvent{{Kind: FlowEventOrderCancelled, Order: order}},
	}, nil
}

func (f *ConversationFlow) commandOrders(ctx context.Context, eng ConversationEngine, contact *models.Contact) (*Transition, error) {
	orders, err := eng.OrdersForContact(ctx, contact.ID, 5)
	if err != nil {
		return nil, err
	}
	if len(orders) == 0 {
		return f.stay(contact, "You have no orders yet. Reply MENU to see the open raffles."), nil
	}

	var sb strings.Builder
	sb.WriteString("Your recent orders:\n")
	for _, o := range orders {
		sb.WriteString(fmt.Sprintf("%s  %s  %d ticket(s)", o.Code, o.Status, o.Quantity))
		if len(o.Numbers) > 0 {
			sb.WriteString("  numbers " + joinInts(o.Numbers))
		}
		sb.WriteString("\n")
	}
	sb.WriteString("Reply MENU for more raffles.")
	return f.stay(contact, sb.String()), nil
}

func (f *ConversationFlow) handleMenu(ctx context.Context, eng ConversationEngine, contact *models.Contact, text string) (*Transition, error) {
	raffles, err := eng.ActiveRaffles(ctx)
	if err != nil {
		return nil, err
	}

	raffle := matchRaffle(raffles, text)
	if raffle == nil {
		reply, err := f.menuPrompt(ctx, eng, "I didn't catch that. ")
		if err != nil {
			return nil, err
		}
		return &Transition{State: models.StateMenu, Context: models.ConversationContext{}, Reply: reply}, nil
	}

	avail, err := eng.Availability(ctx, raffle.ID)
	if err != nil {
		return nil, err
	}

	text = fmt.Sprintf("%s, %s %s per ticket. %d of %d numbers are still open.\nReply PICK to choose your own numbers or RANDOM for a quick pick (you can also reply RANDOM 3).",
		raffle.Name, raffle.TicketPrice.String(), raffle.Currency, avail.Available, raffle.PoolSize())
	return &Transition{
		State:   models.StateChooseMode,
		Context: models.ConversationContext{RaffleID: raffle.ID},
		Reply: &models.Prompt{
			Text: text,
			Choices: []models.PromptChoice{
				{ID: "pick", Title: "Pick numbers"},
				{ID: "random", Title: "Quick pick"},
			},
		},
	}, nil
}

func (f *ConversationFlow) handleChooseMode(ctx context.Context, eng ConversationEngine, contact *models.Contact, text string) (*Transition, error) {
	cctx := contact.Context

	if m := randomShortcutRe.FindStringSubmatch(text); m != nil {
		qty, _ := strconv.Atoi(m[1])
		return f.reserveRandom(ctx, eng, contact, qty)
	}

	switch {
	case pickWords[text]:
		raffle, err := eng.GetRaffle(ctx, cctx.RaffleID)
		if err != nil {
			return f.engineFailure(ctx, eng, contact, err)
		}
		avail, err := eng.Availability(ctx, cctx.RaffleID)
		if err != nil {
			return nil, err
		}
		cctx.Mode = models.ModePick
		return &Transition{
			State:   models.StateAskPickNumbers,
			Context: cctx,
			Reply: &models.Prompt{Text: fmt.Sprintf("Send the numbers you want between %d and %d, separated by commas (e.g. 7, 13, 21). %d are still open.",
				raffle.MinNumber, raffle.MaxNumber, avail.Available)},
		}, nil
	case randomWords[text]:
		cctx.Mode = models.ModeRandom
		return &Transition{
			State:   models.StateAskQty,
			Context: cctx,
			Reply: &models.Prompt{Text: fmt.Sprintf("How many tickets would you like? (%d-%d)",
				f.cfg.MinTicketsPerOrder, f.cfg.MaxTicketsPerOrder)},
		}, nil
	default:
		return f.stay(contact, "Reply PICK to choose your own numbers or RANDOM for a quick pick."), nil
	}
}

func (f *ConversationFlow) handleAskQty(ctx context.Context, eng ConversationEngine, contact *models.Contact, text string) (*Transition, error) {
	qty, err := strconv.Atoi(text)
	if err != nil {
		return f.stay(contact, fmt.Sprintf("Send just the quantity as a number (%d-%d).",
			f.cfg.MinTicketsPerOrder, f.cfg.MaxTicketsPerOrder)), nil
	}
	return f.reserveRandom(ctx, eng, contact, qty)
}

func (f *ConversationFlow) handleAskPick(ctx context.Context, eng ConversationEngine, contact *models.Contact, text string) (*Transition, error) {
	numbers, ok := parseNumberList(text)
	if !ok {
		return f.stay(contact, "Send the numbers separated by commas, e.g. 5, 12, 18."), nil
	}

	order, err := eng.ReserveSpecific(ctx, contact.Context.RaffleID, contact.ID, numbers)
	if err != nil {
		return f.engineFailure(ctx, eng, contact, err)
	}
	return f.reservedTransition(ctx, eng, contact, order, models.ModePick)
}

func (f *ConversationFlow) reserveRandom(ctx context.Context, eng ConversationEngine, contact *models.Contact, qty int) (*Transition, error) {
	order, err := eng.ReserveRandom(ctx, contact.Context.RaffleID, contact.ID, qty)
	if err != nil {
		return f.engineFailure(ctx, eng, contact, err)
	}
	return f.reservedTransition(ctx, eng, contact, order, models.ModeRandom)
}

// reservedTransition moves a fresh draft reservation to the confirmation step.
func (f *ConversationFlow) reservedTransition(ctx context.Context, eng ConversationEngine, contact *models.Contact, order *models.Order, mode string) (*Transition, error) {
	raffle, err := eng.GetRaffle(ctx, order.RaffleID)
	if err != nil {
		return nil, err
	}

	cctx := contact.Context
	cctx.Mode = mode
	cctx.Qty = order.Quantity
	cctx.DraftOrderID = order.ID
	if mode == models.ModePick {
		cctx.PickedNumbers = order.Numbers
	} else {
		cctx.PickedNumbers = nil
	}

	ttlMinutes := int(f.cfg.ReservationTTL.Minutes())
	text := fmt.Sprintf("You got numbers %s.\nOrder %s, total %s %s.\nThey are held for %d minutes. Reply CONFIRM to continue or CANCEL to release them.",
		joinInts(order.Numbers), order.Code, order.TotalAmount.String(), raffle.Currency, ttlMinutes)
	return &Transition{
		State:   models.StateConfirmReservation,
		Context: cctx,
		Reply: &models.Prompt{
			Text: text,
			Choices: []models.PromptChoice{
				{ID: "confirm", Title: "Confirm"},
				{ID: "cancel", Title: "Cancel"},
			},
		},
	}, nil
}

func (f *ConversationFlow) handleConfirmReservation(ctx context.Context, eng ConversationEngine, contact *models.Contact, text string) (*Transition, error) {
	cctx := contact.Context
	if cctx.DraftOrderID == "" {
		return f.commandMenu(ctx, eng, contact, "")
	}

	if !confirmWords[text] {
		order, err := eng.GetOrder(ctx, cctx.DraftOrderID)
		if err != nil {
			return f.engineFailure(ctx, eng, contact, err)
		}
		return f.stay(contact, fmt.Sprintf("Order %s holds numbers %s. Reply CONFIRM to continue or CANCEL to release them.",
			order.Code, joinInts(order.Numbers))), nil
	}

	order, err := eng.ConfirmReservation(ctx, cctx.DraftOrderID)
	if err != nil {
		return f.engineFailure(ctx, eng, contact, err)
	}

	raffle, err := eng.GetRaffle(ctx, order.RaffleID)
	if err != nil {
		return nil, err
	}

	text = fmt.Sprintf("Order %s confirmed!\n%s\nTotal: %s %s.\nSend the payment proof here (a photo or the transfer reference). Reply SKIP to send it later.",
		order.Code, f.cfg.PaymentInstructions, order.TotalAmount.String(), raffle.Currency)
	return &Transition{
		State:   models.StateWaitProof,
		Context: cctx,
		Reply:   &models.Prompt{Text: text},
	}, nil
}

func (f *ConversationFlow) handleWaitProof(ctx context.Context, eng ConversationEngine, contact *models.Contact, msg *models.InboundMessage) (*Transition, error) {
	cctx := contact.Context
	if cctx.DraftOrderID == "" {
		return f.commandMenu(ctx, eng, contact, "")
	}
	text := strings.TrimSpace(msg.Text)

	if skipWords[strings.ToLower(text)] {
		return &Transition{
			State:   models.StateDone,
			Context: models.ConversationContext{RaffleID: cctx.RaffleID, DraftOrderID: cctx.DraftOrderID},
			Reply:   &models.Prompt{Text: "No problem. Send the proof here whenever you are ready, or reply ORDERS to check your order."},
		}, nil
	}

	proofRef := ""
	switch {
	case msg.Kind == models.KindImage && msg.MediaID != "":
		proofRef = "media:" + msg.MediaID
	case text != "":
		proofRef = text
	default:
		return f.stay(contact, "Send a photo of the transfer or the reference code. Reply SKIP to send it later."), nil
	}

	order, err := eng.AttachProof(ctx, cctx.DraftOrderID, proofRef)
	if err != nil {
		return f.engineFailure(ctx, eng, contact, err)
	}

	return &Transition{
		State:   models.StateDone,
		Context: models.ConversationContext{RaffleID: cctx.RaffleID, DraftOrderID: cctx.DraftOrderID},
		Reply: &models.Prompt{Text: fmt.Sprintf("Got it! We received the proof for order %s and will confirm the payment shortly. Reply ORDERS to check the status.",
			order.Code)},
	}, nil
}

func (f *ConversationFlow) handleDone(ctx context.Context, eng ConversationEngine, contact *models.Contact, msg *models.InboundMessage) (*Transition, error) {
	cctx := contact.Context

	// A proof photo arriving late still lands on the order.
	if msg.Kind == models.KindImage && msg.MediaID != "" && cctx.DraftOrderID != "" {
		order, err := eng.AttachProof(ctx, cctx.DraftOrderID, "media:"+msg.MediaID)
		if err != nil {
			return f.engineFailure(ctx, eng, contact, err)
		}
		return f.stay(contact, fmt.Sprintf("Thanks, proof recorded for order %s.", order.Code)), nil
	}

	return f.stay(contact, "Reply MENU to enter another raffle or ORDERS to see your tickets."), nil
}

// engineFailure renders an expected reservation failure as an advisory reply.
// A lapsed or vanished order resets the conversation; anything the contact can
// fix by answering differently keeps the current state. Unexpected errors are
// passed through for the dispatcher to abort on.
func (f *ConversationFlow) engineFailure(ctx context.Context, eng ConversationEngine, contact *models.Contact, err error) (*Transition, error) {
	if !status.IsDomain(err) {
		return nil, err
	}

	var transition *status.TransitionError
	expired := errors.As(err, &transition) && (transition.From == models.OrderExpired || transition.From == models.OrderCancelled)
	if expired || errors.Is(err, status.ErrNotFound) {
		return f.commandMenu(ctx, eng, contact, "Your reservation expired and the numbers were released. ")
	}
	if errors.Is(err, status.ErrRaffleInactive) {
		return f.commandMenu(ctx, eng, contact, "That raffle is no longer open. ")
	}

	return f.stay(contact, renderEngineError(err)), nil
}

func renderEngineError(err error) string {
	var outOfRange *status.OutOfRangeError
	if errors.As(err, &outOfRange) {
		return fmt.Sprintf("These numbers are outside the %d-%d range: %s.",
			outOfRange.Min, outOfRange.Max, joinInts(outOfRange.Numbers))
	}
	var taken *status.TakenNumbersError
	if errors.As(err, &taken) {
		return fmt.Sprintf("Already taken: %s. Pick different numbers.", joinInts(taken.Numbers))
	}
	var avail *status.AvailabilityError
	if errors.As(err, &avail) {
		return fmt.Sprintf("Only %d ticket(s) are left and you asked for %d. Try a smaller quantity.",
			avail.Available, avail.Requested)
	}
	var qty *status.QuantityError
	if errors.As(err, &qty) {
		return fmt.Sprintf("You can buy between %d and %d tickets per order.", qty.Min, qty.Max)
	}
	switch {
	case errors.Is(err, status.ErrEmptySelection):
		return "Send at least one number."
	case errors.Is(err, status.ErrInvalidTransition):
		return "That order can no longer be changed. Reply ORDERS to check it."
	case errors.Is(err, status.ErrTransientConflict):
		return "A lot of people are buying right now. Please try again."
	default:
		return "Something went wrong, please try again."
	}
}

func (f *ConversationFlow) menuPrompt(ctx context.Context, eng ConversationEngine, notice string) (*models.Prompt, error) {
	raffles, err := eng.ActiveRaffles(ctx)
	if err != nil {
		return nil, err
	}
	if len(raffles) == 0 {
		return &models.Prompt{Text: notice + "No raffles are open right now, check back soon!"}, nil
	}

	var sb strings.Builder
	sb.WriteString(notice)
	sb.WriteString("Reply with the number of the raffle you want to enter:\n")
	choices := make([]models.PromptChoice, 0, len(raffles))
	for i, r := range raffles {
		sb.WriteString(fmt.Sprintf("%d) %s, %s %s per ticket\n", i+1, r.Name, r.TicketPrice.String(), r.Currency))
		choices = append(choices, models.PromptChoice{ID: "raffle:" + r.ID, Title: r.Name})
	}
	sb.WriteString("Commands: HELP, ORDERS, CANCEL.")
	return &models.Prompt{Text: sb.String(), Choices: choices}, nil
}

func (f *ConversationFlow) helpText() string {
	return fmt.Sprintf("I sell raffle tickets.\nMENU shows the open raffles, ORDERS your purchases, CANCEL releases a pending reservation.\nYou can buy %d-%d tickets per order and reservations are held for %d minutes.",
		f.cfg.MinTicketsPerOrder, f.cfg.MaxTicketsPerOrder, int(f.cfg.ReservationTTL.Minutes()))
}

// stay keeps the state and scratchpad untouched and only sends a reply.
func (f *ConversationFlow) stay(contact *models.Contact, text string) *Transition {
	return &Transition{
		State:   contact.State,
		Context: contact.Context,
		Reply:   &models.Prompt{Text: text},
	}
}

func matchRaffle(raffles []*models.Raffle, text string) *models.Raffle {
	if id, found := strings.CutPrefix(text, "raffle:"); found {
		for _, r := range raffles {
			if r.ID == id {
				return r
			}
		}
		return nil
	}
	if idx, err := strconv.Atoi(text); err == nil {
		if idx >= 1 && idx <= len(raffles) {
			return raffles[idx-1]
		}
		return nil
	}
	for _, r := range raffles {
		if strings.ToLower(r.Name) == text {
			return r
		}
	}
	return nil
}

func parseNumberList(text string) ([]int, bool) {
	fields := strings.FieldsFunc(text, func(r rune) bool {
		return r == ',' || r == ';' || unicode.IsSpace(r)
	})
	if len(fields) == 0 {
		return nil, false
	}
	numbers := make([]int, 0, len(fields))
	for _, field := range fields {
		n, err := strconv.Atoi(field)
		if err != nil {
			return nil, false
		}
		numbers = append(numbers, n)
	}
	return numbers, true
}

func joinInts(numbers []int) string {
	parts := make([]string, len(numbers))
	for i, n := range numbers {
		parts[i] = strconv.Itoa(n)
	}
	return strings.Join(parts, ", ")
}
