package payloads

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/aguardi/storefront-backend/pkg/enums"
)

// OrderCreatedEvent signals a checkout committed a new order.
type OrderCreatedEvent struct {
	OrderID     uuid.UUID       `json:"order_id"`
	OrderNumber string          `json:"order_number"`
	UserID      uuid.UUID       `json:"user_id"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	ItemCount   int             `json:"item_count"`
}

// OrderStatusChangedEvent is emitted on every lifecycle transition.
type OrderStatusChangedEvent struct {
	OrderID     uuid.UUID         `json:"order_id"`
	OrderNumber string            `json:"order_number"`
	FromStatus  enums.OrderStatus `json:"from_status"`
	ToStatus    enums.OrderStatus `json:"to_status"`
}

// PaymentConfirmedEvent surfaces a gateway approval.
type PaymentConfirmedEvent struct {
	PaymentID         uuid.UUID           `json:"payment_id"`
	OrderID           uuid.UUID           `json:"order_id"`
	ExternalPaymentID string              `json:"external_payment_id"`
	Status            enums.PaymentStatus `json:"status"`
	Amount            decimal.Decimal     `json:"amount"`
}
