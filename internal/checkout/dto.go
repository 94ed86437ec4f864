package checkout

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/aguardi/storefront-backend/internal/orders"
	"github.com/aguardi/storefront-backend/internal/payments"
)

// ItemInput is one requested order line.
type ItemInput struct {
	ProductID uuid.UUID `json:"product_id" validate:"required"`
	Quantity  int       `json:"quantity" validate:"required,gt=0"`
}

// ShippingInput is the delivery address captured at checkout.
type ShippingInput struct {
	RecipientName string  `json:"recipient_name" validate:"required"`
	Phone         string  `json:"phone" validate:"required"`
	AddressLine1  string  `json:"address_line1" validate:"required"`
	AddressLine2  *string `json:"address_line2,omitempty"`
	City          string  `json:"city" validate:"required"`
	State         string  `json:"state" validate:"required"`
	PostalCode    string  `json:"postal_code" validate:"required"`
	Country       string  `json:"country" validate:"required"`
}

// Request is the full checkout payload. Notes are free text from the
// customer, stored verbatim on the order.
type Request struct {
	Items    []ItemInput   `json:"items" validate:"required,min=1,dive"`
	Shipping ShippingInput `json:"shipping" validate:"required"`
	Notes    *string       `json:"notes,omitempty"`
}

// Result is returned once the order is committed and the gateway
// preference exists. InitPoint is where the customer completes payment.
type Result struct {
	Order   *orders.OrderDTO     `json:"order"`
	Payment *payments.PaymentDTO `json:"payment"`
}

// ShippingEstimate tells the storefront what delivery will cost for a
// cart subtotal before the order is placed.
type ShippingEstimate struct {
	Subtotal       decimal.Decimal `json:"subtotal"`
	ShippingCost   decimal.Decimal `json:"shipping_cost"`
	FreeShippingAt decimal.Decimal `json:"free_shipping_at"`
	FreeShipping   bool            `json:"free_shipping"`
}
