package domain

import (
	"errors"
	"fmt"

	"restopos/backend/internal/money"
)

// Recoverable operator-facing failures carry enough structured detail to
// render a specific message; callers match them with errors.As / errors.Is.

var (
	ErrNoOpenShift        = errors.New("no open shift")
	ErrShiftHasOpenOrders = errors.New("shift has orders still processing")
)

type InvalidOrderStateError struct {
	OrderID   string
	Current   OrderStatus
	Attempted OrderStatus
}

func (e *InvalidOrderStateError) Error() string {
	return fmt.Sprintf("order %s: cannot move from %s to %s", e.OrderID, e.Current, e.Attempted)
}

type PaymentShortfallError struct {
	OrderID  string
	Required money.Cents
	Paid     money.Cents
}

func (e *PaymentShortfallError) Shortfall() money.Cents {
	return e.Required - e.Paid
}

func (e *PaymentShortfallError) Error() string {
	return fmt.Sprintf("order %s: payment %s short of total %s (shortfall %s)",
		e.OrderID, e.Paid, e.Required, e.Shortfall())
}

type ReturnQuantityExceededError struct {
	OrderItemID string
	Requested   int64
	Available   int64
}

func (e *ReturnQuantityExceededError) Error() string {
	return fmt.Sprintf("order item %s: return of %d exceeds available %d",
		e.OrderItemID, e.Requested, e.Available)
}

type RefundDistributionMismatchError struct {
	ReturnTotal money.Cents
	RefundTotal money.Cents
}

func (e *RefundDistributionMismatchError) Error() string {
	return fmt.Sprintf("refund rows sum to %s but return total is %s",
		e.RefundTotal, e.ReturnTotal)
}

// AggregationIntegrityError reports an impossible derived figure found by
// the daily reconciliation engine. It is surfaced for manual review and
// never silently clamped.
type AggregationIntegrityError struct {
	ProductID   string
	Date        string
	EndQuantity money.Quantity
}

func (e *AggregationIntegrityError) Error() string {
	return fmt.Sprintf("daily record %s/%s: derived end quantity %s is negative",
		e.ProductID, e.Date, e.EndQuantity)
}
