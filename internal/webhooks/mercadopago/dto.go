package mercadopago

import "strings"

// Notification is the webhook body the gateway posts. Older
// integrations send "topic" instead of "type", both are accepted.
type Notification struct {
	ID     int64  `json:"id"`
	Type   string `json:"type"`
	Topic  string `json:"topic"`
	Action string `json:"action"`
	Data   struct {
		ID string `json:"id"`
	} `json:"data"`
}

// EventType returns the normalized notification kind.
func (n Notification) EventType() string {
	if n.Type != "" {
		return n.Type
	}
	return n.Topic
}

// IsPaymentEvent reports whether the notification refers to a payment.
func (n Notification) IsPaymentEvent() bool {
	return strings.EqualFold(n.EventType(), "payment")
}

// PaymentID returns the gateway payment identifier carried by the
// notification, empty when absent.
func (n Notification) PaymentID() string {
	return strings.TrimSpace(n.Data.ID)
}
