package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/aguardi/storefront-backend/pkg/enums"
)

// Payment tracks the gateway charge attached to an order. ExternalPaymentID
// is the gateway's payment identifier and stays nil until the gateway
// reports it, PreferenceID is assigned when the checkout preference is
// created.
type Payment struct {
	ID                uuid.UUID           `gorm:"column:id;type:uuid;primaryKey"`
	OrderID           uuid.UUID           `gorm:"column:order_id;type:uuid;not null;uniqueIndex"`
	Status            enums.PaymentStatus `gorm:"column:status;not null;default:'pending'"`
	Method            enums.PaymentMethod `gorm:"column:method;not null;default:'mercadopago'"`
	Amount            decimal.Decimal     `gorm:"column:amount;type:numeric(12,2);not null"`
	ExternalPaymentID *string             `gorm:"column:external_payment_id;uniqueIndex"`
	PreferenceID      *string             `gorm:"column:preference_id;index"`
	InitPoint         *string             `gorm:"column:init_point"`
	StatusDetail      *string             `gorm:"column:status_detail"`
	PayerEmail        *string             `gorm:"column:payer_email"`
	ApprovedAt        *time.Time          `gorm:"column:approved_at"`
	RejectedAt        *time.Time          `gorm:"column:rejected_at"`
	RefundedAt        *time.Time          `gorm:"column:refunded_at"`
	CreatedAt         time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}
