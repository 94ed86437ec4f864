package orders

import (
	"time"

	"github.com/aguardi/storefront-backend/pkg/enums"
	pkgerrors "github.com/aguardi/storefront-backend/pkg/errors"
)

// allowedTransitions is the full lifecycle graph. Cancelled and refunded
// are terminal.
var allowedTransitions = map[enums.OrderStatus][]enums.OrderStatus{
	enums.OrderStatusPending:    {enums.OrderStatusPaid, enums.OrderStatusCancelled},
	enums.OrderStatusPaid:       {enums.OrderStatusProcessing, enums.OrderStatusCancelled},
	enums.OrderStatusProcessing: {enums.OrderStatusShipped, enums.OrderStatusCancelled},
	enums.OrderStatusShipped:    {enums.OrderStatusDelivered},
	enums.OrderStatusDelivered:  {enums.OrderStatusRefunded},
}

// CanTransition reports whether from may move to to.
func CanTransition(from, to enums.OrderStatus) bool {
	for _, candidate := range allowedTransitions[from] {
		if candidate == to {
			return true
		}
	}
	return false
}

// TransitionStamps returns the timestamp columns to set alongside a
// status change. Each lifecycle timestamp is written exactly once, on
// the transition that reaches its status.
func TransitionStamps(to enums.OrderStatus, now time.Time) map[string]any {
	switch to {
	case enums.OrderStatusPaid:
		return map[string]any{"paid_at": now}
	case enums.OrderStatusShipped:
		return map[string]any{"shipped_at": now}
	case enums.OrderStatusDelivered:
		return map[string]any{"delivered_at": now}
	case enums.OrderStatusCancelled:
		return map[string]any{"cancelled_at": now}
	}
	return nil
}

// CheckTransition returns a typed state conflict when the move is not allowed.
func CheckTransition(from, to enums.OrderStatus) error {
	if !to.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, "unknown order status")
	}
	if !CanTransition(from, to) {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "order status transition not allowed").
			WithDetails(map[string]any{
				"from": from.String(),
				"to":   to.String(),
			})
	}
	return nil
}
