package status

import (
	"errors"
	"fmt"
)

// Sentinels for every failure the reservation engine and dispatcher can surface.
// Callers branch with errors.Is; the carrier types below match their sentinel and
// expose details through errors.As.
var (
	ErrOutOfRange               = errors.New("reserve: number outside raffle range")
	ErrAlreadyTaken             = errors.New("reserve: ticket no longer available")
	ErrEmptySelection           = errors.New("reserve: no numbers selected")
	ErrInvalidQuantity          = errors.New("reserve: quantity out of bounds")
	ErrInsufficientAvailability = errors.New("reserve: not enough tickets available")
	ErrRaffleInactive           = errors.New("raffle: raffle is not active")
	ErrInvalidTransition        = errors.New("order: transition not allowed from current status")
	ErrNotFound                 = errors.New("store: record not found")
	ErrTransientConflict        = errors.New("store: conflicting concurrent update, retry later")
)

// OutOfRangeError reports which requested numbers fall outside [Min, Max].
type OutOfRangeError struct {
	Numbers []int
	Min     int
	Max     int
}

func (e *OutOfRangeError) Error() string {
	return fmt.Sprintf("reserve: numbers %v outside raffle range [%d, %d]", e.Numbers, e.Min, e.Max)
}

func (e *OutOfRangeError) Is(target error) bool { return target == ErrOutOfRange }

// TakenNumbersError reports which requested numbers were not AVAILABLE.
type TakenNumbersError struct {
	Numbers []int
}

func (e *TakenNumbersError) Error() string {
	return fmt.Sprintf("reserve: tickets %v no longer available", e.Numbers)
}

func (e *TakenNumbersError) Is(target error) bool { return target == ErrAlreadyTaken }

// AvailabilityError reports a random reservation that could not be filled.
type AvailabilityError struct {
	Requested int
	Available int
}

func (e *AvailabilityError) Error() string {
	return fmt.Sprintf("reserve: requested %d tickets, only %d available", e.Requested, e.Available)
}

func (e *AvailabilityError) Is(target error) bool { return target == ErrInsufficientAvailability }

// QuantityError reports a ticket count outside the per-order bounds.
type QuantityError struct {
	Qty int
	Min int
	Max int
}

func (e *QuantityError) Error() string {
	return fmt.Sprintf("reserve: quantity %d outside allowed range [%d, %d]", e.Qty, e.Min, e.Max)
}

func (e *QuantityError) Is(target error) bool { return target == ErrInvalidQuantity }

// TransitionError reports an order status change that is not permitted.
type TransitionError struct {
	OrderID string
	From    string
	To      string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("order %s: cannot transition %s -> %s", e.OrderID, e.From, e.To)
}

func (e *TransitionError) Is(target error) bool { return target == ErrInvalidTransition }

// ConflictError wraps a store-level failure that survived the retry budget.
// Unwrap exposes the last underlying cause for logging.
type ConflictError struct {
	Attempts int
	Cause    error
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("store: still conflicting after %d attempts: %v", e.Attempts, e.Cause)
}

func (e *ConflictError) Is(target error) bool { return target == ErrTransientConflict }

func (e *ConflictError) Unwrap() error { return e.Cause }

// IsDomain reports whether err belongs to the reservation taxonomy, i.e. it is a
// terminal outcome that must never be retried.
func IsDomain(err error) bool {
	for _, sentinel := range []error{
		ErrOutOfRange,
		ErrAlreadyTaken,
		ErrEmptySelection,
		ErrInvalidQuantity,
		ErrInsufficientAvailability,
		ErrRaffleInactive,
		ErrInvalidTransition,
		ErrNotFound,
		ErrTransientConflict,
	} {
		if errors.Is(err, sentinel) {
			return true
		}
	}
	return false
}
