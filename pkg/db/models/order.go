package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/aguardi/storefront-backend/pkg/enums"
)

// Order is the purchase aggregate root. Items and shipping info are
// created together with the order and never mutated afterwards.
type Order struct {
	ID            uuid.UUID         `gorm:"column:id;type:uuid;primaryKey"`
	OrderNumber   string            `gorm:"column:order_number;not null;uniqueIndex"`
	UserID        uuid.UUID         `gorm:"column:user_id;type:uuid;not null;index"`
	Status        enums.OrderStatus `gorm:"column:status;not null;default:'pending'"`
	Subtotal      decimal.Decimal   `gorm:"column:subtotal;type:numeric(12,2);not null"`
	ShippingCost  decimal.Decimal   `gorm:"column:shipping_cost;type:numeric(12,2);not null"`
	Discount      decimal.Decimal   `gorm:"column:discount;type:numeric(12,2);not null"`
	TotalAmount   decimal.Decimal   `gorm:"column:total_amount;type:numeric(12,2);not null"`
	CustomerNotes *string           `gorm:"column:customer_notes"`
	AdminNotes    *string           `gorm:"column:admin_notes"`
	Items         []OrderItem       `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	ShippingInfo  *ShippingInfo     `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	PaidAt        *time.Time        `gorm:"column:paid_at"`
	ShippedAt     *time.Time        `gorm:"column:shipped_at"`
	DeliveredAt   *time.Time        `gorm:"column:delivered_at"`
	CancelledAt   *time.Time        `gorm:"column:cancelled_at"`
	CreatedAt     time.Time         `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time         `gorm:"column:updated_at;autoUpdateTime"`
}
