package payments

import "github.com/aguardi/storefront-backend/pkg/enums"

// gatewayStatuses maps raw gateway status strings onto our payment
// lifecycle. The gateway vocabulary is stable but new values have shown
// up without notice, so unknown values fall back to pending and are
// surfaced by the caller.
var gatewayStatuses = map[string]enums.PaymentStatus{
	"pending":      enums.PaymentStatusPending,
	"in_process":   enums.PaymentStatusInProcess,
	"in_mediation": enums.PaymentStatusInProcess,
	"authorized":   enums.PaymentStatusInProcess,
	"approved":     enums.PaymentStatusApproved,
	"rejected":     enums.PaymentStatusRejected,
	"cancelled":    enums.PaymentStatusCancelled,
	"refunded":     enums.PaymentStatusRefunded,
	"charged_back": enums.PaymentStatusChargedBack,
}

// MapGatewayStatus translates a gateway status string. The second return
// reports whether the value was recognized.
func MapGatewayStatus(raw string) (enums.PaymentStatus, bool) {
	if status, ok := gatewayStatuses[raw]; ok {
		return status, true
	}
	return enums.PaymentStatusPending, false
}
