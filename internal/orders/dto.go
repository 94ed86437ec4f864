package orders

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/aguardi/storefront-backend/pkg/db/models"
	"github.com/aguardi/storefront-backend/pkg/enums"
	"github.com/aguardi/storefront-backend/pkg/pagination"
)

// OrderDTO is the order transport shape including its immutable children.
type OrderDTO struct {
	ID            uuid.UUID         `json:"id"`
	OrderNumber   string            `json:"order_number"`
	UserID        uuid.UUID         `json:"user_id"`
	Status        enums.OrderStatus `json:"status"`
	Subtotal      decimal.Decimal   `json:"subtotal"`
	ShippingCost  decimal.Decimal   `json:"shipping_cost"`
	Discount      decimal.Decimal   `json:"discount"`
	TotalAmount   decimal.Decimal   `json:"total_amount"`
	CustomerNotes *string           `json:"customer_notes,omitempty"`
	AdminNotes    *string           `json:"admin_notes,omitempty"`
	Items         []OrderItemDTO    `json:"items"`
	ShippingInfo  *ShippingInfoDTO  `json:"shipping_info,omitempty"`
	PaidAt        *time.Time        `json:"paid_at,omitempty"`
	ShippedAt     *time.Time        `json:"shipped_at,omitempty"`
	DeliveredAt   *time.Time        `json:"delivered_at,omitempty"`
	CancelledAt   *time.Time        `json:"cancelled_at,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
	UpdatedAt     time.Time         `json:"updated_at"`
}

type OrderItemDTO struct {
	ID          uuid.UUID       `json:"id"`
	ProductID   uuid.UUID       `json:"product_id"`
	ProductName string          `json:"product_name"`
	ImageURL    *string         `json:"image_url,omitempty"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Quantity    int             `json:"quantity"`
	Subtotal    decimal.Decimal `json:"subtotal"`
}

type ShippingInfoDTO struct {
	RecipientName  string  `json:"recipient_name"`
	Phone          string  `json:"phone"`
	AddressLine1   string  `json:"address_line1"`
	AddressLine2   *string `json:"address_line2,omitempty"`
	City           string  `json:"city"`
	State          string  `json:"state"`
	PostalCode     string  `json:"postal_code"`
	Country        string  `json:"country"`
	TrackingNumber *string `json:"tracking_number,omitempty"`
	Carrier        *string `json:"carrier,omitempty"`
}

// TrackingInput carries the carrier details supplied when an order ships.
type TrackingInput struct {
	TrackingNumber string `json:"tracking_number" validate:"required"`
	Carrier        string `json:"carrier" validate:"required"`
}

// ListFilter narrows order listings.
type ListFilter struct {
	Status     *enums.OrderStatus
	Pagination pagination.Params
}

// OrderPage bundles one page of orders with its metadata.
type OrderPage struct {
	Items []OrderDTO      `json:"items"`
	Page  pagination.Page `json:"page"`
}

func FromModel(o *models.Order) *OrderDTO {
	if o == nil {
		return nil
	}
	dto := &OrderDTO{
		ID:            o.ID,
		OrderNumber:   o.OrderNumber,
		UserID:        o.UserID,
		Status:        o.Status,
		Subtotal:      o.Subtotal,
		ShippingCost:  o.ShippingCost,
		Discount:      o.Discount,
		TotalAmount:   o.TotalAmount,
		CustomerNotes: o.CustomerNotes,
		AdminNotes:    o.AdminNotes,
		Items:         make([]OrderItemDTO, 0, len(o.Items)),
		PaidAt:        o.PaidAt,
		ShippedAt:     o.ShippedAt,
		DeliveredAt:   o.DeliveredAt,
		CancelledAt:   o.CancelledAt,
		CreatedAt:     o.CreatedAt,
		UpdatedAt:     o.UpdatedAt,
	}
	for _, item := range o.Items {
		dto.Items = append(dto.Items, OrderItemDTO{
			ID:          item.ID,
			ProductID:   item.ProductID,
			ProductName: item.ProductName,
			ImageURL:    item.ImageURL,
			UnitPrice:   item.UnitPrice,
			Quantity:    item.Quantity,
			Subtotal:    item.Subtotal,
		})
	}
	if o.ShippingInfo != nil {
		dto.ShippingInfo = &ShippingInfoDTO{
			RecipientName:  o.ShippingInfo.RecipientName,
			Phone:          o.ShippingInfo.Phone,
			AddressLine1:   o.ShippingInfo.AddressLine1,
			AddressLine2:   o.ShippingInfo.AddressLine2,
			City:           o.ShippingInfo.City,
			State:          o.ShippingInfo.State,
			PostalCode:     o.ShippingInfo.PostalCode,
			Country:        o.ShippingInfo.Country,
			TrackingNumber: o.ShippingInfo.TrackingNumber,
			Carrier:        o.ShippingInfo.Carrier,
		}
	}
	return dto
}

func fromModels(rows []models.Order) []OrderDTO {
	items := make([]OrderDTO, 0, len(rows))
	for i := range rows {
		items = append(items, *FromModel(&rows[i]))
	}
	return items
}
